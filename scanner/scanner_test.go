package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/testgap/core"
)

func TestRunSecurityScan_FixedFindings(t *testing.T) {
	for _, path := range []string{"../testdata", filepath.Join(t.TempDir(), "missing"), ""} {
		findings, err := New().RunSecurityScan(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, Findings(), findings, "path %q", path)
	}
}

func TestRunSecurityScan_JSONShape(t *testing.T) {
	findings, err := New().RunSecurityScan(context.Background(), "src/")
	require.NoError(t, err)

	data, err := json.Marshal(findings)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"severity":"HIGH","title":"Potential SQL Injection","file":"src/user_service.py","line":45,"description":"User input not sanitized before database query"},
		{"severity":"MEDIUM","title":"Missing input validation","file":"src/user_service.py","line":23,"description":"Email validation could be bypassed"}
	]`, string(data))
}

func TestRunSecurityScan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().RunSecurityScan(ctx, "../testdata")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSecurityScan_Transcript(t *testing.T) {
	var out bytes.Buffer
	_, err := New(WithOutput(&out), WithInclude("**/*.py")).RunSecurityScan(context.Background(), "../testdata")
	require.NoError(t, err)

	rule := strings.Repeat("=", 50)
	want := rule + "\n" +
		"CODEWHISPERER SECURITY SCAN\n" +
		rule + "\n" +
		"\nCritical: 0\n" +
		"High: 1\n" +
		"Medium: 1\n" +
		"\nISSUES FOUND:\n" +
		"  [HIGH] Potential SQL Injection\n" +
		"    Location: src/user_service.py:45\n" +
		"    User input not sanitized before database query\n\n"
	assert.Equal(t, want, out.String())
}

func TestPrintReport_NoBlockingIssues(t *testing.T) {
	var out bytes.Buffer
	PrintReport(&out, []core.SecurityFinding{{Severity: core.SeverityLow, Title: "t"}})

	assert.NotContains(t, out.String(), "ISSUES FOUND")
	assert.True(t, strings.HasSuffix(out.String(), "Medium: 0\n"))
}

func TestBlocking(t *testing.T) {
	findings := []core.SecurityFinding{
		{Severity: core.SeverityMedium, Title: "m"},
		{Severity: core.SeverityHigh, Title: "h1"},
		{Severity: core.SeverityCritical, Title: "c"},
		{Severity: core.SeverityLow, Title: "l"},
		{Severity: core.SeverityHigh, Title: "h2"},
	}

	blocking := Blocking(findings)

	titles := make([]string, 0, len(blocking))
	for _, f := range blocking {
		titles = append(titles, f.Title)
	}
	assert.Equal(t, []string{"c", "h1", "h2"}, titles)

	groups := Partition(findings)
	assert.Equal(t, len(groups[core.SeverityHigh])+len(groups[core.SeverityCritical]), len(blocking))
	assert.Len(t, groups[core.SeverityMedium], 1)
	assert.Len(t, groups[core.SeverityLow], 1)

	assert.Len(t, Blocking(Findings()), 1)
	assert.Empty(t, Blocking(nil))
}
