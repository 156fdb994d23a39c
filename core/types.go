package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GapReport lists untested branches of a probe function and the tests that
// would cover them
type GapReport struct {
	Gaps          []string         `json:"gaps"`
	ProposedTests []TestDescriptor `json:"proposed_tests"`
}

// EmptyGapReport is returned when the probe function is not present
func EmptyGapReport() GapReport {
	return GapReport{
		Gaps:          []string{},
		ProposedTests: []TestDescriptor{},
	}
}

// TestDescriptor describes a proposed test. It is text, not executable code.
type TestDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MockSetup   string `json:"mock_setup"`
	Assertion   string `json:"assertion"`
}

// AIAnalysisResult holds the four buckets requested from the model
type AIAnalysisResult struct {
	Gaps           []string `json:"gaps"`
	Tests          []string `json:"tests"`
	EdgeCases      []string `json:"edge_cases"`
	SecurityIssues []string `json:"security_issues"`
}

// Normalize replaces nil buckets with empty ones so they serialize as []
func (r AIAnalysisResult) Normalize() AIAnalysisResult {
	if r.Gaps == nil {
		r.Gaps = []string{}
	}
	if r.Tests == nil {
		r.Tests = []string{}
	}
	if r.EdgeCases == nil {
		r.EdgeCases = []string{}
	}
	if r.SecurityIssues == nil {
		r.SecurityIssues = []string{}
	}
	return r
}

// Severity of a security finding
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every level from most to least severe
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities: CRITICAL > HIGH > MEDIUM > LOW. Unknown is 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the four defined levels
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity accepts any casing of the four defined levels
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return s, nil
}

// UnmarshalJSON rejects severities outside the defined set
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SecurityFinding is a single scanner result
type SecurityFinding struct {
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Description string   `json:"description"`
}

// Location formats the finding position as file:line
func (f SecurityFinding) Location() string {
	return fmt.Sprintf("%s:%d", f.File, f.Line)
}

// SummaryStats are the counts printed at the end of a combined run
type SummaryStats struct {
	TotalGapsDetected  int      `json:"total_gaps_detected"`
	TotalTestsProposed int      `json:"total_tests_proposed"`
	SecurityIssues     int      `json:"security_issues"`
	ToolsUsed          []string `json:"tools_used"`
}

// CombinedReport merges the three analyzer outputs. Every slot is always
// populated, either with a value or with an ErrorWrapper.
type CombinedReport struct {
	BasicAI      Slot[GapReport]         `json:"basic_ai"`
	BedrockAI    Slot[AIAnalysisResult]  `json:"bedrock_ai"`
	SecurityScan Slot[[]SecurityFinding] `json:"security_scan"`
	Summary      SummaryStats            `json:"summary"`
}

// FailedSlots returns the JSON names of slots holding an ErrorWrapper
func (r CombinedReport) FailedSlots() []string {
	var failed []string
	if !r.BasicAI.OK() {
		failed = append(failed, "basic_ai")
	}
	if !r.BedrockAI.OK() {
		failed = append(failed, "bedrock_ai")
	}
	if !r.SecurityScan.OK() {
		failed = append(failed, "security_scan")
	}
	return failed
}

// Match is a code element located by a language provider
type Match struct {
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
	Content  string   `json:"content,omitempty"`
}

// Location in source code, 1-based
type Location struct {
	File      string `json:"file,omitempty"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"end_line,omitempty"`
	EndColumn int    `json:"end_column,omitempty"`
}

// SyntaxIssue is a syntax error position reported by a provider
type SyntaxIssue struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// ValidationResult from syntax check
type ValidationResult struct {
	Valid  bool          `json:"valid"`
	Errors []SyntaxIssue `json:"errors,omitempty"`
}
