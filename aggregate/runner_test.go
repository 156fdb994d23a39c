package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/gaps"
	"github.com/oxhq/testgap/internal/console"
	"github.com/oxhq/testgap/scanner"
)

const (
	fixtureSource = "../testdata/user_service.py"
	fixtureTests  = "../testdata/test_user_service.py"
)

type stubAI struct {
	result core.AIAnalysisResult
	err    error
	source string
}

func (s *stubAI) AnalyzeCodeWithAI(_ context.Context, sourceText, _ string) (core.AIAnalysisResult, error) {
	s.source = sourceText
	return s.result, s.err
}

type stubScanner struct {
	findings []core.SecurityFinding
	err      error
	panicMsg string
}

func (s *stubScanner) RunSecurityScan(context.Context, string) ([]core.SecurityFinding, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.findings, s.err
}

type stubGaps struct{ err error }

func (s stubGaps) AnalyzeCoverageGaps(context.Context, string, string) (core.GapReport, error) {
	return core.GapReport{}, s.err
}

type stubRecorder struct {
	calls  int
	report core.CombinedReport
	err    error
}

func (s *stubRecorder) Record(_ context.Context, _, _ string, report core.CombinedReport) (string, error) {
	s.calls++
	s.report = report
	return "run-1", s.err
}

func plainOutput(t *testing.T) (*bytes.Buffer, *console.Printer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	return &buf, console.New(&buf)
}

func readReport(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestRun_ScannerFailureIsContained(t *testing.T) {
	out, printer := plainOutput(t)
	dir := t.TempDir()

	runner := NewRunner(Config{
		SourcePath: fixtureSource,
		TestPath:   fixtureTests,
		OutDir:     dir,
		Gaps:       gaps.NewAnalyzer(nil),
		AI:         &stubAI{result: core.AIAnalysisResult{Gaps: []string{"g"}}},
		Scanner:    &stubScanner{err: errors.New("scan timeout")},
		Printer:    printer,
	})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Summary.TotalGapsDetected)
	assert.Equal(t, 5, report.Summary.TotalTestsProposed)
	assert.Equal(t, 0, report.Summary.SecurityIssues)
	assert.Equal(t, []string{"security_scan"}, report.FailedSlots())

	doc := readReport(t, filepath.Join(dir, ReportFile))
	assert.JSONEq(t, `{"error":"scan timeout"}`, string(doc["security_scan"]))

	var summary core.SummaryStats
	require.NoError(t, json.Unmarshal(doc["summary"], &summary))
	assert.Equal(t, 5, summary.TotalGapsDetected)
	assert.Equal(t, ToolsUsed, summary.ToolsUsed)

	assert.Contains(t, out.String(), "✗ Security scan failed: scan timeout\n")
	assert.Contains(t, out.String(), "✓ Basic AI: Found 5 gaps\n")
}

func TestRun_AllSucceed(t *testing.T) {
	out, printer := plainOutput(t)
	dir := t.TempDir()
	ai := &stubAI{result: core.AIAnalysisResult{Gaps: []string{"a", "b"}}}
	recorder := &stubRecorder{}

	runner := NewRunner(Config{
		SourcePath: fixtureSource,
		TestPath:   fixtureTests,
		OutDir:     dir,
		Gaps:       gaps.NewAnalyzer(nil),
		AI:         ai,
		Scanner:    scanner.New(),
		Recorder:   recorder,
		Printer:    printer,
	})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.FailedSlots())
	assert.Equal(t, 2, report.Summary.SecurityIssues)
	assert.Contains(t, ai.source, "validate_and_process_user")

	result, ok := report.BedrockAI.Get()
	require.True(t, ok)
	assert.Equal(t, []string{}, result.Tests)

	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, report, recorder.report)

	rule := strings.Repeat("=", 60)
	want := rule + "\nCOMBINED AI ANALYSIS\n" + rule + "\n" +
		"\n[1/3] Running Basic AI Analysis...\n" +
		"✓ Basic AI: Found 5 gaps\n" +
		"\n[2/3] Running Bedrock AI Analysis...\n" +
		"✓ Bedrock AI: Found 2 gaps\n" +
		"\n[3/3] Running CodeWhisperer Security Scan...\n" +
		"✓ Security Scan: Found 2 issues\n" +
		"\n" + rule + "\nCOMBINED ANALYSIS SUMMARY\n" + rule + "\n" +
		"\nTotal Gaps Detected: 5\n" +
		"Total Tests Proposed: 5\n" +
		"Security Issues: 2\n" +
		"Tools Used: Basic AI + Bedrock + CodeWhisperer\n" +
		"\n✓ Combined analysis saved to " + filepath.Join(dir, ReportFile) + "\n" +
		rule + "\n"
	assert.Equal(t, want, out.String())

	doc := readReport(t, filepath.Join(dir, ReportFile))
	assert.Len(t, doc, 4)
}

func TestRun_BedrockFallbackSlot(t *testing.T) {
	out, printer := plainOutput(t)
	dir := t.TempDir()

	svcErr := &core.ServiceError{Kind: core.ServiceUnavailable, Err: errors.New("connection refused")}
	runner := NewRunner(Config{
		SourcePath: fixtureSource,
		TestPath:   fixtureTests,
		OutDir:     dir,
		Gaps:       gaps.NewAnalyzer(nil),
		AI:         &stubAI{err: svcErr},
		Scanner:    scanner.New(),
		Printer:    printer,
	})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.BedrockAI.Err)
	assert.Equal(t, core.StatusFallback, report.BedrockAI.Err.Status)

	doc := readReport(t, filepath.Join(dir, ReportFile))
	assert.JSONEq(t, `{"status":"fallback","error":"model service unavailable: connection refused"}`, string(doc["bedrock_ai"]))
	assert.Contains(t, out.String(), "✗ Bedrock not available, using fallback\n")
	assert.Equal(t, 5, report.Summary.TotalGapsDetected)
}

func TestRun_PanicAndMissingAnalyzers(t *testing.T) {
	_, printer := plainOutput(t)
	dir := t.TempDir()

	runner := NewRunner(Config{
		SourcePath: fixtureSource,
		TestPath:   fixtureTests,
		OutDir:     dir,
		Gaps:       stubGaps{err: errors.New("boom")},
		Scanner:    &stubScanner{panicMsg: "index out of range"},
		Printer:    printer,
	})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"basic_ai", "bedrock_ai", "security_scan"}, report.FailedSlots())
	assert.Equal(t, "boom", report.BasicAI.Err.Error)
	assert.Equal(t, "AI analyzer not configured", report.BedrockAI.Err.Error)
	assert.Equal(t, "panic: index out of range", report.SecurityScan.Err.Error)
	assert.Equal(t, core.SummaryStats{ToolsUsed: ToolsUsed}, report.Summary)
}

func TestRun_MissingTestFileFailsBedrockOnly(t *testing.T) {
	_, printer := plainOutput(t)
	dir := t.TempDir()

	runner := NewRunner(Config{
		SourcePath: fixtureSource,
		TestPath:   filepath.Join(dir, "missing_test.py"),
		OutDir:     dir,
		Gaps:       gaps.NewAnalyzer(nil),
		AI:         &stubAI{},
		Scanner:    scanner.New(),
		Printer:    printer,
	})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bedrock_ai"}, report.FailedSlots())
	assert.True(t, report.BasicAI.OK())
}

func TestRun_RecorderFailureIsNotFatal(t *testing.T) {
	_, printer := plainOutput(t)
	recorder := &stubRecorder{err: errors.New("database is locked")}

	runner := NewRunner(Config{
		SourcePath: fixtureSource,
		TestPath:   fixtureTests,
		OutDir:     t.TempDir(),
		Gaps:       gaps.NewAnalyzer(nil),
		Scanner:    scanner.New(),
		Recorder:   recorder,
		Printer:    printer,
	})

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recorder.calls)
}

func TestRun_WriteFailure(t *testing.T) {
	_, printer := plainOutput(t)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	runner := NewRunner(Config{
		SourcePath: fixtureSource,
		TestPath:   fixtureTests,
		OutDir:     filepath.Join(blocker, "out"),
		Gaps:       gaps.NewAnalyzer(nil),
		Printer:    printer,
	})

	_, err := runner.Run(context.Background())
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	report := core.CombinedReport{
		BasicAI: core.OK(core.GapReport{
			Gaps:          []string{"a", "b"},
			ProposedTests: []core.TestDescriptor{{Name: "t"}},
		}),
		BedrockAI:    core.Fallback[core.AIAnalysisResult](errors.New("x")),
		SecurityScan: core.OK([]core.SecurityFinding{{Severity: core.SeverityLow}}),
	}

	stats := Summarize(report)
	assert.Equal(t, 2, stats.TotalGapsDetected)
	assert.Equal(t, 1, stats.TotalTestsProposed)
	assert.Equal(t, 1, stats.SecurityIssues)

	stats.ToolsUsed[0] = "mutated"
	assert.Equal(t, "Basic AI", ToolsUsed[0])
}
