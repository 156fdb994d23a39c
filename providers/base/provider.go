package base

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/oxhq/testgap/core"
)

// LanguageConfig defines language-specific behavior that must be implemented
type LanguageConfig interface {
	// Metadata
	Language() string
	Extensions() []string
	TestFilePatterns() []string
	GetLanguage() *sitter.Language

	// Language-specific AST mapping
	FunctionNodeTypes() []string
	ExtractNodeName(node *sitter.Node, source string) string

	// SyntaxIssue flags nodes the grammar accepts but the language rejects.
	// An empty string means the node is fine.
	SyntaxIssue(node *sitter.Node) string
}

// Provider provides common functionality for all language providers
type Provider struct {
	config LanguageConfig
	parser *sitter.Parser
	mu     sync.Mutex // sitter.Parser is not safe for concurrent use
}

// New creates a base provider with language-specific config
func New(config LanguageConfig) *Provider {
	parser := sitter.NewParser()
	lang := config.GetLanguage()
	if lang == nil {
		panic(fmt.Sprintf("Failed to load %s language for tree-sitter", config.Language()))
	}
	parser.SetLanguage(lang)

	return &Provider{
		config: config,
		parser: parser,
	}
}

// Language returns language identifier
func (p *Provider) Language() string {
	return p.config.Language()
}

// Extensions returns supported file extensions
func (p *Provider) Extensions() []string {
	return p.config.Extensions()
}

// TestFilePatterns returns the base name globs of the language's test files
func (p *Provider) TestFilePatterns() []string {
	return p.config.TestFilePatterns()
}

func (p *Provider) parse(ctx context.Context, source string) (*sitter.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.parser.ParseCtx(ctx, nil, []byte(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse source")
	}
	return tree, nil
}

// Validate checks syntax. Tree-sitter always yields a tree, so malformed input
// shows up as ERROR or missing nodes rather than a parse failure.
func (p *Provider) Validate(ctx context.Context, source string) (core.ValidationResult, error) {
	tree, err := p.parse(ctx, source)
	if err != nil {
		return core.ValidationResult{}, err
	}
	defer tree.Close()

	var issues []core.SyntaxIssue
	root := tree.RootNode()
	if root.HasError() {
		p.findErrors(root, &issues)
		if len(issues) == 0 {
			issues = append(issues, core.SyntaxIssue{
				Line:    int(root.StartPoint().Row) + 1,
				Column:  int(root.StartPoint().Column) + 1,
				Message: "syntax error",
			})
		}
	} else {
		p.findRejected(root, &issues)
	}

	return core.ValidationResult{
		Valid:  len(issues) == 0,
		Errors: issues,
	}, nil
}

// FindFunctions returns every function or method definition matching name.
// Name accepts the same wildcards as matchesPattern.
func (p *Provider) FindFunctions(ctx context.Context, source, name string) ([]core.Match, error) {
	tree, err := p.parse(ctx, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	nodeTypes := p.config.FunctionNodeTypes()
	var matches []core.Match

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if slices.Contains(nodeTypes, node.Type()) {
			found := p.config.ExtractNodeName(node, source)
			if found != "" && matchesPattern(found, name) {
				matches = append(matches, core.Match{
					Type: "function",
					Name: found,
					Location: core.Location{
						Line:      int(node.StartPoint().Row) + 1,
						Column:    int(node.StartPoint().Column) + 1,
						EndLine:   int(node.EndPoint().Row) + 1,
						EndColumn: int(node.EndPoint().Column) + 1,
					},
					Content: source[node.StartByte():node.EndByte()],
				})
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())

	return matches, nil
}

// matchesPattern checks if name matches pattern (with wildcards)
func matchesPattern(name, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	if after, ok := strings.CutPrefix(pattern, "*"); ok {
		return strings.HasSuffix(name, after)
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	if strings.Contains(pattern, "*") {
		parts := strings.Split(pattern, "*")
		if len(parts) == 2 {
			return strings.HasPrefix(name, parts[0]) && strings.HasSuffix(name, parts[1])
		}
	}

	return name == pattern
}

// findRejected collects nodes the language config refuses
func (p *Provider) findRejected(node *sitter.Node, issues *[]core.SyntaxIssue) {
	if msg := p.config.SyntaxIssue(node); msg != "" {
		*issues = append(*issues, core.SyntaxIssue{
			Line:    int(node.StartPoint().Row) + 1,
			Column:  int(node.StartPoint().Column) + 1,
			Message: msg,
		})
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		p.findRejected(node.Child(i), issues)
	}
}

// findErrors looks for syntax errors in AST
func (p *Provider) findErrors(node *sitter.Node, issues *[]core.SyntaxIssue) {
	switch {
	case node.IsMissing():
		*issues = append(*issues, core.SyntaxIssue{
			Line:    int(node.StartPoint().Row) + 1,
			Column:  int(node.StartPoint().Column) + 1,
			Message: fmt.Sprintf("missing %s", node.Type()),
		})
	case node.Type() == "ERROR":
		*issues = append(*issues, core.SyntaxIssue{
			Line:    int(node.StartPoint().Row) + 1,
			Column:  int(node.StartPoint().Column) + 1,
			Message: "syntax error",
		})
		// Nested errors add noise once the outer node is reported
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.findErrors(node.Child(i), issues)
	}
}
