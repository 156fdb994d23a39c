package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oxhq/testgap/providers/catalog"
)

// FileScope selects the files a scan looks at
type FileScope struct {
	Path     string   `json:"path"`                // Root path to scan
	Include  []string `json:"include,omitempty"`   // Patterns to include (**/*.py)
	Exclude  []string `json:"exclude,omitempty"`   // Patterns to exclude
	MaxDepth int      `json:"max_depth,omitempty"` // 0 = unlimited
	MaxFiles int      `json:"max_files,omitempty"` // 0 = unlimited
}

// DefaultScanInclude are the candidate source patterns of a security scan
var DefaultScanInclude = []string{"**/*.py", "**/*.go"}

// DefaultScanExclude skips VCS metadata and virtualenvs
var DefaultScanExclude = []string{"**/.git/**", "**/.venv/**", "**/__pycache__/**", "**/vendor/**"}

// FileWalker discovers files under a root in parallel
type FileWalker struct {
	workers    int
	bufferSize int
}

// NewFileWalker sizes the worker pool for I/O bound stat calls
func NewFileWalker() *FileWalker {
	return &FileWalker{
		workers:    runtime.NumCPU() * 2,
		bufferSize: 256,
	}
}

// WalkResult is a discovered file
type WalkResult struct {
	Path     string
	Size     int64
	Language string
	Test     bool // named like a test file of its language
	Error    error
}

// Walk streams every file under scope.Path that matches the include patterns
// and none of the exclude patterns
func (fw *FileWalker) Walk(ctx context.Context, scope FileScope) (<-chan WalkResult, error) {
	if err := fw.validateScope(scope); err != nil {
		return nil, err
	}

	results := make(chan WalkResult, fw.bufferSize)
	paths := make(chan string, fw.bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < fw.workers; i++ {
		wg.Add(1)
		go fw.worker(ctx, paths, results, &wg)
	}

	go func() {
		defer close(paths)
		processed := 0
		fw.scanDirectory(ctx, scope.Path, scope, paths, 0, &processed)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results, nil
}

func (fw *FileWalker) worker(ctx context.Context, paths <-chan string, results chan<- WalkResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-paths:
			if !ok {
				return
			}

			result := WalkResult{
				Path:     path,
				Language: detectLanguage(path),
				Test:     catalog.IsTestFile(path),
			}
			if info, err := os.Stat(path); err != nil {
				result.Error = err
			} else {
				result.Size = info.Size()
			}

			select {
			case <-ctx.Done():
				return
			case results <- result:
			}
		}
	}
}

func (fw *FileWalker) scanDirectory(
	ctx context.Context,
	dirPath string,
	scope FileScope,
	paths chan<- string,
	depth int,
	processed *int,
) {
	if scope.MaxFiles > 0 && *processed >= scope.MaxFiles {
		return
	}
	if scope.MaxDepth > 0 && depth > scope.MaxDepth {
		return
	}
	if ctx.Err() != nil {
		return
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return // unreadable directories are skipped
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		fullPath := filepath.Join(dirPath, entry.Name())
		rel := relativeTo(scope.Path, fullPath)

		if entry.IsDir() {
			if matchAny(rel+"/", scope.Exclude) {
				continue
			}
			fw.scanDirectory(ctx, fullPath, scope, paths, depth+1, processed)
			continue
		}

		if matchAny(rel, scope.Exclude) || !includes(rel, scope.Include) {
			continue
		}
		if scope.MaxFiles > 0 && *processed >= scope.MaxFiles {
			return
		}
		select {
		case <-ctx.Done():
			return
		case paths <- fullPath:
			*processed++
		}
	}
}

// Collect walks scope and returns the matching paths sorted. A root that does
// not exist yields no files.
func (fw *FileWalker) Collect(ctx context.Context, scope FileScope) ([]WalkResult, error) {
	results, err := fw.Walk(ctx, scope)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []WalkResult
	for result := range results {
		if result.Error != nil {
			continue
		}
		files = append(files, result)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// LanguageStats counts discovered files per language
func LanguageStats(files []WalkResult) map[string]int {
	stats := make(map[string]int)
	for _, f := range files {
		stats[f.Language]++
	}
	return stats
}

// SplitTests separates test files from the sources they cover
func SplitTests(files []WalkResult) (sources, tests []WalkResult) {
	for _, f := range files {
		if f.Test {
			tests = append(tests, f)
		} else {
			sources = append(sources, f)
		}
	}
	return sources, tests
}

func detectLanguage(path string) string {
	if info, ok := catalog.LookupByPath(path); ok {
		return info.ID
	}
	return "unknown"
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func includes(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchAny(path, patterns)
}

func matchAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPattern(path, pattern) {
			return true
		}
	}
	return false
}

// matchPattern matches slash-separated paths with ** support. Patterns
// without a separator are also tried against the base name.
func matchPattern(path, pattern string) bool {
	if matched, err := doublestar.Match(pattern, path); err == nil && matched {
		return true
	}

	if !strings.Contains(pattern, "/") {
		if matched, err := doublestar.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}

	return false
}

func (fw *FileWalker) validateScope(scope FileScope) error {
	if scope.Path == "" {
		return fmt.Errorf("path is required")
	}

	info, err := os.Stat(scope.Path)
	if err != nil {
		return fmt.Errorf("cannot access path %s: %w", scope.Path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path %s is not a directory", scope.Path)
	}

	return nil
}
