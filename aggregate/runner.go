// Package aggregate runs the gap classifier, the AI analyzer and the
// security scanner in sequence and merges their results into one report.
// A failing analyzer never stops the others.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/internal/console"
	"github.com/oxhq/testgap/internal/logger"
)

// ReportFile is the name of the combined report in the output directory
const ReportFile = "combined_analysis.json"

const ruleWidth = 60

// ToolsUsed is recorded in every summary
var ToolsUsed = []string{"Basic AI", "Bedrock AI", "CodeWhisperer"}

type GapAnalyzer interface {
	AnalyzeCoverageGaps(ctx context.Context, sourcePath, testPath string) (core.GapReport, error)
}

type AIAnalyzer interface {
	AnalyzeCodeWithAI(ctx context.Context, sourceText, testText string) (core.AIAnalysisResult, error)
}

type SecurityScanner interface {
	RunSecurityScan(ctx context.Context, path string) ([]core.SecurityFinding, error)
}

// Recorder persists a finished report, returning its run id
type Recorder interface {
	Record(ctx context.Context, sourcePath, testPath string, report core.CombinedReport) (string, error)
}

// Config wires the runner. Gaps, AI and Scanner may be nil; a missing
// analyzer is reported as a failed slot.
type Config struct {
	SourcePath string
	TestPath   string
	ScanPath   string
	OutDir     string

	Gaps     GapAnalyzer
	AI       AIAnalyzer
	Scanner  SecurityScanner
	Recorder Recorder

	Writer  *core.AtomicWriter
	Printer *console.Printer
	Logger  *slog.Logger
}

// Runner executes one combined analysis
type Runner struct {
	cfg Config
}

func NewRunner(cfg Config) *Runner {
	if cfg.Writer == nil {
		cfg.Writer = core.NewAtomicWriter(core.DefaultAtomicConfig())
	}
	if cfg.Printer == nil {
		cfg.Printer = console.New(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ScanPath == "" {
		cfg.ScanPath = filepath.Dir(cfg.SourcePath)
	}
	return &Runner{cfg: cfg}
}

// ReportPath is where Run writes the combined report
func (r *Runner) ReportPath() string {
	return filepath.Join(r.cfg.OutDir, ReportFile)
}

// Run executes the three analyzers, prints the transcript and writes the
// report. Only a failure to write the report is returned.
func (r *Runner) Run(ctx context.Context) (core.CombinedReport, error) {
	p := r.cfg.Printer
	p.Banner("COMBINED AI ANALYSIS", ruleWidth)

	report := core.CombinedReport{
		BasicAI:      r.runBasic(ctx),
		BedrockAI:    r.runBedrock(ctx),
		SecurityScan: r.runScan(ctx),
	}
	report.Summary = Summarize(report)

	p.Println()
	p.Banner("COMBINED ANALYSIS SUMMARY", ruleWidth)
	p.Printf("\nTotal Gaps Detected: %d\n", report.Summary.TotalGapsDetected)
	p.Printf("Total Tests Proposed: %d\n", report.Summary.TotalTestsProposed)
	p.Printf("Security Issues: %d\n", report.Summary.SecurityIssues)
	p.Println("Tools Used: Basic AI + Bedrock + CodeWhisperer")

	path := r.ReportPath()
	if r.cfg.OutDir != "" {
		if err := os.MkdirAll(r.cfg.OutDir, 0o755); err != nil {
			return report, fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := r.cfg.Writer.WriteJSON(path, report); err != nil {
		return report, fmt.Errorf("write %s: %w", path, err)
	}

	p.Println()
	p.Success("Combined analysis saved to %s", path)
	p.Rule(ruleWidth)

	r.record(ctx, report)

	return report, nil
}

func (r *Runner) runBasic(ctx context.Context) core.Slot[core.GapReport] {
	p := r.cfg.Printer
	p.Step(1, 3, "Running Basic AI Analysis...")

	ctx = logger.WithComponent(ctx, "basic_ai")
	report, err := contain(ctx, func(ctx context.Context) (core.GapReport, error) {
		if r.cfg.Gaps == nil {
			return core.GapReport{}, errors.New("gap analyzer not configured")
		}
		return r.cfg.Gaps.AnalyzeCoverageGaps(ctx, r.cfg.SourcePath, r.cfg.TestPath)
	})
	if err != nil {
		r.cfg.Logger.WarnContext(ctx, "analyzer failed", "error", err)
		p.Failure("Basic AI failed: %v", err)
		return core.Failed[core.GapReport](err)
	}

	p.Success("Basic AI: Found %d gaps", len(report.Gaps))
	return core.OK(report)
}

func (r *Runner) runBedrock(ctx context.Context) core.Slot[core.AIAnalysisResult] {
	p := r.cfg.Printer
	p.Step(2, 3, "Running Bedrock AI Analysis...")

	ctx = logger.WithComponent(ctx, "bedrock_ai")
	result, err := contain(ctx, func(ctx context.Context) (core.AIAnalysisResult, error) {
		if r.cfg.AI == nil {
			return core.AIAnalysisResult{}, errors.New("AI analyzer not configured")
		}
		sourceText, err := os.ReadFile(r.cfg.SourcePath)
		if err != nil {
			return core.AIAnalysisResult{}, err
		}
		testText, err := os.ReadFile(r.cfg.TestPath)
		if err != nil {
			return core.AIAnalysisResult{}, err
		}
		return r.cfg.AI.AnalyzeCodeWithAI(ctx, string(sourceText), string(testText))
	})
	if err != nil {
		r.cfg.Logger.WarnContext(ctx, "analyzer failed", "error", err)
		p.Failure("Bedrock not available, using fallback")
		return core.Fallback[core.AIAnalysisResult](err)
	}

	result = result.Normalize()
	p.Success("Bedrock AI: Found %d gaps", len(result.Gaps))
	return core.OK(result)
}

func (r *Runner) runScan(ctx context.Context) core.Slot[[]core.SecurityFinding] {
	p := r.cfg.Printer
	p.Step(3, 3, "Running CodeWhisperer Security Scan...")

	ctx = logger.WithComponent(ctx, "security_scan")
	findings, err := contain(ctx, func(ctx context.Context) ([]core.SecurityFinding, error) {
		if r.cfg.Scanner == nil {
			return nil, errors.New("security scanner not configured")
		}
		return r.cfg.Scanner.RunSecurityScan(ctx, r.cfg.ScanPath)
	})
	if err != nil {
		r.cfg.Logger.WarnContext(ctx, "analyzer failed", "error", err)
		p.Failure("Security scan failed: %v", err)
		return core.Failed[[]core.SecurityFinding](err)
	}

	if findings == nil {
		findings = []core.SecurityFinding{}
	}
	p.Success("Security Scan: Found %d issues", len(findings))
	return core.OK(findings)
}

func (r *Runner) record(ctx context.Context, report core.CombinedReport) {
	if r.cfg.Recorder == nil {
		return
	}
	id, err := r.cfg.Recorder.Record(ctx, r.cfg.SourcePath, r.cfg.TestPath, report)
	if err != nil {
		r.cfg.Logger.WarnContext(ctx, "failed to record analysis run", "error", err)
		return
	}
	r.cfg.Logger.InfoContext(logger.WithRunID(ctx, id), "analysis run recorded")
}

// contain runs fn and turns a panic into an error so one analyzer cannot
// take down the run
func contain[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			v = zero
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Summarize counts gaps, proposed tests and security issues. Failed slots
// count as zero.
func Summarize(report core.CombinedReport) core.SummaryStats {
	stats := core.SummaryStats{
		ToolsUsed: append([]string(nil), ToolsUsed...),
	}
	if basic, ok := report.BasicAI.Get(); ok {
		stats.TotalGapsDetected = len(basic.Gaps)
		stats.TotalTestsProposed = len(basic.ProposedTests)
	}
	if findings, ok := report.SecurityScan.Get(); ok {
		stats.SecurityIssues = len(findings)
	}
	return stats
}
