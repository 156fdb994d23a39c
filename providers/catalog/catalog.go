// Package catalog maps file paths to languages without building providers.
// Language packages register from init, so importing one for side effects is
// enough for the file walker to label sources and tests.
package catalog

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// LanguageInfo describes one language: the extensions it owns and the base
// name globs its test files follow (test_*.py, *_test.go)
type LanguageInfo struct {
	ID           string
	Extensions   []string
	TestPatterns []string
}

var (
	mu        sync.RWMutex
	languages = make(map[string]LanguageInfo)
	owners    = make(map[string]string) // extension -> language id
)

// Register stores or replaces a language entry. An entry registered without
// test patterns keeps the patterns of the entry it replaces.
func Register(info LanguageInfo) {
	id := strings.ToLower(strings.TrimSpace(info.ID))
	if id == "" {
		return
	}
	info.ID = id
	info.Extensions = normalizeExtensions(info.Extensions)

	mu.Lock()
	defer mu.Unlock()

	if prev, ok := languages[id]; ok && len(info.TestPatterns) == 0 {
		info.TestPatterns = prev.TestPatterns
	}
	languages[id] = info
	for _, ext := range info.Extensions {
		owners[ext] = id
	}
}

// LookupByExtension returns the language owning ext ("py" and ".PY" both work)
func LookupByExtension(ext string) (LanguageInfo, bool) {
	normalized := normalizeExtensions([]string{ext})
	if len(normalized) == 0 {
		return LanguageInfo{}, false
	}

	mu.RLock()
	defer mu.RUnlock()
	id, ok := owners[normalized[0]]
	if !ok {
		return LanguageInfo{}, false
	}
	return languages[id], true
}

// LookupByPath resolves the language of a file from its extension
func LookupByPath(p string) (LanguageInfo, bool) {
	return LookupByExtension(filepath.Ext(p))
}

// IsTestFile reports whether p follows the test naming convention of its
// language. Unknown languages are never test files.
func IsTestFile(p string) bool {
	info, ok := LookupByPath(p)
	if !ok {
		return false
	}
	return info.MatchesTest(p)
}

// MatchesTest checks the base name of p against the test patterns
func (l LanguageInfo) MatchesTest(p string) bool {
	base := path.Base(filepath.ToSlash(p))
	for _, pattern := range l.TestPatterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// Languages returns every registered entry ordered by id
func Languages() []LanguageInfo {
	mu.RLock()
	defer mu.RUnlock()

	infos := make([]LanguageInfo, 0, len(languages))
	for _, info := range languages {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if ext[0] != '.' {
			ext = "." + ext
		}
		if !contains(out, ext) {
			out = append(out, ext)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
