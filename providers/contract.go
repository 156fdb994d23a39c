package providers

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/providers/catalog"
	"github.com/oxhq/testgap/providers/golang"
	"github.com/oxhq/testgap/providers/python"
)

// Provider interface for language-specific implementations
type Provider interface {
	// Metadata
	Language() string
	Extensions() []string
	TestFilePatterns() []string

	// Core operations
	Validate(ctx context.Context, source string) (core.ValidationResult, error)
	FindFunctions(ctx context.Context, source, name string) ([]core.Match, error)
}

// Registry manages all providers
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// NewDefaultRegistry registers the built-in Python and Go providers
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(python.New())
	r.Register(golang.New())
	return r
}

// Register adds a provider
func (r *Registry) Register(provider Provider) {
	r.providers[strings.ToLower(provider.Language())] = provider
	catalog.Register(catalog.LanguageInfo{
		ID:           provider.Language(),
		Extensions:   provider.Extensions(),
		TestPatterns: provider.TestFilePatterns(),
	})
}

// Get retrieves provider by language
func (r *Registry) Get(language string) (Provider, bool) {
	p, exists := r.providers[strings.ToLower(language)]
	return p, exists
}

// ForPath resolves the provider for a file by its extension
func (r *Registry) ForPath(path string) (Provider, error) {
	info, ok := catalog.LookupByPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: no provider for extension %q (%s)", core.ErrUnsupportedLanguage, filepath.Ext(path), path)
	}
	p, ok := r.Get(info.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", core.ErrUnsupportedLanguage, info.ID)
	}
	return p, nil
}

// Languages returns all registered language identifiers, sorted
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.providers))
	for k := range r.providers {
		langs = append(langs, k)
	}
	sort.Strings(langs)
	return langs
}
