package python

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Config maps Python syntax onto the base provider. Classes are walked
// through, so methods are found the same way as module level functions.
type Config struct{}

func (c *Config) Language() string { return "python" }

func (c *Config) Extensions() []string {
	return []string{".py", ".pyw", ".pyi"}
}

// TestFilePatterns follows pytest discovery
func (c *Config) TestFilePatterns() []string {
	return []string{"test_*.py", "*_test.py"}
}

func (c *Config) GetLanguage() *sitter.Language {
	return python.GetLanguage()
}

// FunctionNodeTypes lists plain definitions. Async defs share the node type
// and are filtered out in ExtractNodeName. Decorated functions nest their
// function_definition inside decorated_definition.
func (c *Config) FunctionNodeTypes() []string {
	return []string{"function_definition"}
}

// ExtractNodeName reads the name field of a definition, falling back to the
// first identifier child for nodes without one. Async defs have no name here,
// so the probe lookup never matches them.
func (c *Config) ExtractNodeName(node *sitter.Node, source string) string {
	if isAsync(node) {
		return ""
	}
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content([]byte(source))
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() == "identifier" {
			return child.Content([]byte(source))
		}
	}
	return ""
}

// SyntaxIssue reports Python 2 statements and empty blocks. The grammar
// accepts both, the interpreter does not: a def whose body lost its
// indentation parses as an empty block followed by top level statements.
func (c *Config) SyntaxIssue(node *sitter.Node) string {
	switch node.Type() {
	case "print_statement":
		return "print statement is not valid in Python 3"
	case "exec_statement":
		return "exec statement is not valid in Python 3"
	case "block":
		if node.NamedChildCount() == 0 {
			return "expected an indented block"
		}
	}
	return ""
}

func isAsync(node *sitter.Node) bool {
	if node.Type() != "function_definition" || node.ChildCount() == 0 {
		return false
	}
	return node.Child(0).Type() == "async"
}
