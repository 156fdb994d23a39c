// Package gaps reports untested branches and error paths of a probe function
// and proposes tests that would cover them.
package gaps

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/providers"
)

// Analyzer locates the probe function in a source file and maps it to a
// fixed gap taxonomy
type Analyzer struct {
	registry *providers.Registry
	table    Table
	probe    string
	logger   *slog.Logger
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithTable replaces the built-in gap table
func WithTable(t Table) Option {
	return func(a *Analyzer) { a.table = t }
}

// WithProbe changes the function name to look for
func WithProbe(name string) Option {
	return func(a *Analyzer) {
		if name != "" {
			a.probe = name
		}
	}
}

// WithLogger sets the logger used for diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer creates an analyzer. A nil registry uses the built-in providers.
func NewAnalyzer(registry *providers.Registry, opts ...Option) *Analyzer {
	if registry == nil {
		registry = providers.NewDefaultRegistry()
	}
	a := &Analyzer{
		registry: registry,
		table:    DefaultTable(),
		probe:    ProbeFunction,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Probe returns the function name the analyzer looks for
func (a *Analyzer) Probe() string {
	return a.probe
}

// AnalyzeCoverageGaps returns the gap report for the probe function in
// sourcePath. A missing function yields an empty report, not an error.
// Malformed source yields a *core.ParseError. testPath is not read.
func (a *Analyzer) AnalyzeCoverageGaps(ctx context.Context, sourcePath, testPath string) (core.GapReport, error) {
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return core.GapReport{}, fmt.Errorf("read source: %w", err)
	}

	provider, err := a.registry.ForPath(sourcePath)
	if err != nil {
		return core.GapReport{}, err
	}

	validation, err := provider.Validate(ctx, string(source))
	if err != nil {
		return core.GapReport{}, fmt.Errorf("parse %s: %w", sourcePath, err)
	}
	if !validation.Valid {
		first := validation.Errors[0]
		return core.GapReport{}, &core.ParseError{
			File:   sourcePath,
			Line:   first.Line,
			Column: first.Column,
			Detail: first.Message,
		}
	}

	matches, err := provider.FindFunctions(ctx, string(source), a.probe)
	if err != nil {
		return core.GapReport{}, fmt.Errorf("locate %s: %w", a.probe, err)
	}
	if len(matches) == 0 {
		a.logger.DebugContext(ctx, "probe function not found",
			"function", a.probe,
			"source", sourcePath,
			"test", testPath)
		return core.EmptyGapReport(), nil
	}

	report, ok := a.table.Lookup(a.probe)
	if !ok {
		a.logger.DebugContext(ctx, "no gap table entry",
			"function", a.probe)
		return core.EmptyGapReport(), nil
	}

	a.logger.DebugContext(ctx, "coverage gaps classified",
		"function", a.probe,
		"line", matches[0].Location.Line,
		"gaps", len(report.Gaps),
		"proposed_tests", len(report.ProposedTests))

	return report, nil
}
