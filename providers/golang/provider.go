package golang

import (
	"github.com/oxhq/testgap/providers/base"
	"github.com/oxhq/testgap/providers/catalog"
)

func init() {
	c := &Config{}
	catalog.Register(catalog.LanguageInfo{
		ID:           c.Language(),
		Extensions:   c.Extensions(),
		TestPatterns: c.TestFilePatterns(),
	})
}

// New returns a tree-sitter backed provider for Go sources
func New() *base.Provider {
	return base.New(&Config{})
}
