// Package scanner reports security findings for a source tree.
package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/oxhq/testgap/core"
	// Language catalog entries used to label enumerated files
	_ "github.com/oxhq/testgap/providers/golang"
	_ "github.com/oxhq/testgap/providers/python"
)

// Scanner produces the security findings of a source tree. The findings are
// fixed; the tree is only enumerated and logged.
type Scanner struct {
	walker  *core.FileWalker
	include []string
	exclude []string
	out     io.Writer
	logger  *slog.Logger
}

// Option configures a Scanner
type Option func(*Scanner)

// WithInclude replaces the candidate file patterns
func WithInclude(patterns ...string) Option {
	return func(s *Scanner) {
		if len(patterns) > 0 {
			s.include = patterns
		}
	}
}

// WithOutput sets where the scan transcript is printed. Nil discards it.
func WithOutput(w io.Writer) Option {
	return func(s *Scanner) {
		if w == nil {
			w = io.Discard
		}
		s.out = w
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scanner that prints nothing unless WithOutput is given
func New(opts ...Option) *Scanner {
	s := &Scanner{
		walker:  core.NewFileWalker(),
		include: core.DefaultScanInclude,
		exclude: core.DefaultScanExclude,
		out:     io.Discard,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Findings returns the fixed scan results
func Findings() []core.SecurityFinding {
	return []core.SecurityFinding{
		{
			Severity:    core.SeverityHigh,
			Title:       "Potential SQL Injection",
			File:        "src/user_service.py",
			Line:        45,
			Description: "User input not sanitized before database query",
		},
		{
			Severity:    core.SeverityMedium,
			Title:       "Missing input validation",
			File:        "src/user_service.py",
			Line:        23,
			Description: "Email validation could be bypassed",
		},
	}
}

// RunSecurityScan prints the scan transcript and returns the findings.
// A path that cannot be enumerated is logged, never returned.
func (s *Scanner) RunSecurityScan(ctx context.Context, path string) ([]core.SecurityFinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.enumerate(ctx, path)

	findings := Findings()
	PrintReport(s.out, findings)
	return findings, nil
}

func (s *Scanner) enumerate(ctx context.Context, path string) {
	files, err := s.walker.Collect(ctx, core.FileScope{
		Path:    path,
		Include: s.include,
		Exclude: s.exclude,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "scan enumeration skipped", "path", path, "error", err)
		return
	}

	sources, tests := core.SplitTests(files)
	s.logger.DebugContext(ctx, "scan candidates",
		"path", path,
		"files", len(files),
		"sources", len(sources),
		"tests", len(tests),
		"languages", core.LanguageStats(files))
}

// Partition groups findings by severity
func Partition(findings []core.SecurityFinding) map[core.Severity][]core.SecurityFinding {
	groups := make(map[core.Severity][]core.SecurityFinding, len(core.Severities))
	for _, f := range findings {
		groups[f.Severity] = append(groups[f.Severity], f)
	}
	return groups
}

// Blocking returns CRITICAL findings followed by HIGH ones
func Blocking(findings []core.SecurityFinding) []core.SecurityFinding {
	groups := Partition(findings)
	blocking := make([]core.SecurityFinding, 0, len(groups[core.SeverityCritical])+len(groups[core.SeverityHigh]))
	blocking = append(blocking, groups[core.SeverityCritical]...)
	return append(blocking, groups[core.SeverityHigh]...)
}

// PrintReport writes the scan banner, severity counts and blocking issues
func PrintReport(w io.Writer, findings []core.SecurityFinding) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "CODEWHISPERER SECURITY SCAN")
	fmt.Fprintln(w, rule)

	groups := Partition(findings)
	fmt.Fprintf(w, "\nCritical: %d\n", len(groups[core.SeverityCritical]))
	fmt.Fprintf(w, "High: %d\n", len(groups[core.SeverityHigh]))
	fmt.Fprintf(w, "Medium: %d\n", len(groups[core.SeverityMedium]))

	blocking := Blocking(findings)
	if len(blocking) == 0 {
		return
	}

	fmt.Fprintln(w, "\nISSUES FOUND:")
	for _, issue := range blocking {
		fmt.Fprintf(w, "  [%s] %s\n", issue.Severity, issue.Title)
		fmt.Fprintf(w, "    Location: %s\n", issue.Location())
		fmt.Fprintf(w, "    %s\n\n", issue.Description)
	}
}
