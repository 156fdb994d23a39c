package golang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// Config maps Go syntax onto the base provider
type Config struct{}

func (c *Config) Language() string { return "go" }

func (c *Config) Extensions() []string { return []string{".go"} }

// TestFilePatterns is the go tool's own rule
func (c *Config) TestFilePatterns() []string { return []string{"*_test.go"} }

func (c *Config) GetLanguage() *sitter.Language {
	return golang.GetLanguage()
}

// FunctionNodeTypes includes methods, so a probe name matches either
// func Name() or func (r *T) Name()
func (c *Config) FunctionNodeTypes() []string {
	return []string{"function_declaration", "method_declaration"}
}

// SyntaxIssue has nothing to add; the Go grammar reports its own errors
func (c *Config) SyntaxIssue(*sitter.Node) string { return "" }

func (c *Config) ExtractNodeName(node *sitter.Node, source string) string {
	name := node.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	return name.Content([]byte(source))
}
