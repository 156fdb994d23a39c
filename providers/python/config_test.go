package python

import (
	"slices"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
)

func TestConfig_Metadata(t *testing.T) {
	config := &Config{}

	if config.Language() != "python" {
		t.Errorf("Expected language 'python', got '%s'", config.Language())
	}
	for _, ext := range []string{".py", ".pyw", ".pyi"} {
		if !slices.Contains(config.Extensions(), ext) {
			t.Errorf("Expected extension '%s' not found", ext)
		}
	}
	if config.GetLanguage() == nil {
		t.Fatal("GetLanguage returned nil")
	}
}

func TestConfig_ExtractNodeName(t *testing.T) {
	config := &Config{}
	source := "class UserService:\n    def get_user(self, user_id):\n        return None\n"

	parser := sitter.NewParser()
	parser.SetLanguage(config.GetLanguage())
	tree := parser.Parse(nil, []byte(source))
	defer tree.Close()

	var names []string
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		switch node.Type() {
		case "class_definition", "function_definition":
			names = append(names, config.ExtractNodeName(node, source))
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())

	want := []string{"UserService", "get_user"}
	if !slices.Equal(names, want) {
		t.Errorf("Expected names %v, got %v", want, names)
	}
}

func TestConfig_TestFilePatterns(t *testing.T) {
	config := &Config{}
	want := []string{"test_*.py", "*_test.py"}
	if !slices.Equal(config.TestFilePatterns(), want) {
		t.Errorf("Expected patterns %v, got %v", want, config.TestFilePatterns())
	}
}
