package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/testgap/bedrock"
	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/emitter"
)

type fakeModel struct {
	reply string
	err   error
}

func (f fakeModel) InvokeModel(context.Context, string) (string, error) {
	return f.reply, f.err
}

type harness struct {
	dir     string
	source  string
	test    string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	model   bedrock.ModelClient
	dialErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	prevColor := color.NoColor
	color.NoColor = true
	prevLogger := slog.Default()
	t.Cleanup(func() {
		color.NoColor = prevColor
		slog.SetDefault(prevLogger)
	})

	dir := t.TempDir()
	h := &harness{
		dir:    dir,
		source: filepath.Join(dir, "src", "user_service.py"),
		test:   filepath.Join(dir, "tests", "test_user_service.py"),
		model:  fakeModel{err: &core.ServiceError{Kind: core.ServiceUnavailable, Err: errors.New("no route to host")}},
	}
	copyFixture(t, "../../testdata/user_service.py", h.source)
	copyFixture(t, "../../testdata/test_user_service.py", h.test)
	return h
}

func copyFixture(t *testing.T, from, to string) {
	t.Helper()
	data, err := os.ReadFile(from)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(to), 0o755))
	require.NoError(t, os.WriteFile(to, data, 0o644))
}

func (h *harness) run(args ...string) error {
	h.stdout.Reset()
	h.stderr.Reset()

	a := newApp(&h.stdout, &h.stderr)
	a.envFiles = []string{filepath.Join(h.dir, "missing.env")}
	a.newModelClient = func(context.Context, bedrock.Config) (bedrock.ModelClient, error) {
		if h.dialErr != nil {
			return nil, h.dialErr
		}
		return h.model, nil
	}

	cmd := newRootCmd(a)
	cmd.SetArgs(append([]string{"--source", h.source, "--test", h.test, "--out", h.dir}, args...))
	return cmd.ExecuteContext(context.Background())
}

func (h *harness) readJSON(t *testing.T, name string, v any) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestAnalyzeCommand(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("analyze"))

	out := h.stdout.String()
	assert.True(t, strings.HasPrefix(out, strings.Repeat("=", 50)+"\nPR COMMENT POSTED:\n"))
	assert.Contains(t, out, "Gaps detected: 5 untested branches/paths")
	assert.Contains(t, out, "- test_user_already_exists: Test ValueError when user exists")
}

func TestAnalyzeCommand_MissingSource(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(h.source))

	assert.Error(t, h.run("analyze"))
}

func TestBedrockCommand_Fallback(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("bedrock"))

	assert.Contains(t, h.stdout.String(), "Bedrock not available: model service unavailable: no route to host\n")
	assert.Contains(t, h.stdout.String(), "Falling back to basic AI analysis...\n")

	var result core.AIAnalysisResult
	h.readJSON(t, bedrockReportFile, &result)
	assert.Equal(t, bedrock.FallbackResult(), result)
}

func TestBedrockCommand_ClientConstructionFails(t *testing.T) {
	h := newHarness(t)
	h.dialErr = &core.ServiceError{Kind: core.ServiceAuth, Err: errors.New("no credentials")}

	require.NoError(t, h.run("bedrock"))
	assert.Contains(t, h.stdout.String(), "Bedrock not available: model service auth: no credentials")
}

func TestBedrockCommand_Success(t *testing.T) {
	h := newHarness(t)
	h.model = fakeModel{reply: `{"gaps":["Branch: Admin override path"],"tests":["def test_x(): pass"]}`}

	require.NoError(t, h.run("bedrock"))

	assert.Contains(t, h.stdout.String(), "BEDROCK AI ANALYSIS")
	assert.Contains(t, h.stdout.String(), "Gaps Found: 1\n  - Branch: Admin override path\n")

	var result core.AIAnalysisResult
	h.readJSON(t, bedrockReportFile, &result)
	assert.Equal(t, []string{"def test_x(): pass"}, result.Tests)
	assert.Equal(t, []string{}, result.EdgeCases)
}

func TestScanCommand(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("scan", filepath.Join(h.dir, "src")))

	assert.Contains(t, h.stdout.String(), "CODEWHISPERER SECURITY SCAN")
	assert.Contains(t, h.stdout.String(), "Security report saved to "+filepath.Join(h.dir, securityReportFile))

	var findings []core.SecurityFinding
	h.readJSON(t, securityReportFile, &findings)
	require.Len(t, findings, 2)
	assert.Equal(t, core.SeverityHigh, findings[0].Severity)
}

func TestCombinedCommand_WithHistory(t *testing.T) {
	h := newHarness(t)
	dbPath := filepath.Join(h.dir, "history", "runs.db")

	require.NoError(t, h.run("combined", "--db", dbPath))

	out := h.stdout.String()
	assert.Contains(t, out, "✓ Basic AI: Found 5 gaps")
	assert.Contains(t, out, "✗ Bedrock not available, using fallback")
	assert.Contains(t, out, "✓ Security Scan: Found 2 issues")
	assert.Contains(t, out, "Total Gaps Detected: 5")

	var doc map[string]json.RawMessage
	h.readJSON(t, "combined_analysis.json", &doc)
	assert.JSONEq(t, `{"status":"fallback","error":"model service unavailable: no route to host"}`, string(doc["bedrock_ai"]))

	require.NoError(t, h.run("history", "--db", dbPath))
	assert.Contains(t, h.stdout.String(), "ID")
	assert.Contains(t, h.stdout.String(), "bedrock_ai")
	assert.Contains(t, h.stdout.String(), h.source)
}

func TestHistoryCommand(t *testing.T) {
	h := newHarness(t)

	err := h.run("history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no history database configured")

	require.NoError(t, h.run("history", "--db", filepath.Join(h.dir, "empty.db")))
	assert.Contains(t, h.stdout.String(), "No analysis runs recorded")
}

func TestHistoryCommand_Keep(t *testing.T) {
	h := newHarness(t)
	dbPath := filepath.Join(h.dir, "runs.db")

	require.NoError(t, h.run("combined", "--db", dbPath))
	require.NoError(t, h.run("combined", "--db", dbPath))

	require.NoError(t, h.run("history", "--db", dbPath, "--keep", "1"))
	out := h.stdout.String()
	assert.Contains(t, out, "Pruned 1 runs\n")
	assert.Equal(t, 1, strings.Count(out, h.source))
}

func TestGenerateCommand(t *testing.T) {
	h := newHarness(t)
	before, err := os.ReadFile(h.test)
	require.NoError(t, err)

	require.NoError(t, h.run("generate", "--dry-run"))
	after, err := os.ReadFile(h.test)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Contains(t, h.stdout.String(), "+# AI-GENERATED TESTS")

	require.NoError(t, h.run("generate"))
	require.NoError(t, h.run("generate", "--dedupe"))
	require.NoError(t, h.run("generate"))

	after, err = os.ReadFile(h.test)
	require.NoError(t, err)
	assert.Equal(t, string(before)+emitter.GenerateTests()+emitter.GenerateTests(), string(after))
	assert.Contains(t, h.stdout.String(), "[PASS] Test-only PR created with generated tests")
}

func TestGenerateCommand_Backup(t *testing.T) {
	h := newHarness(t)
	before, err := os.ReadFile(h.test)
	require.NoError(t, err)

	require.NoError(t, h.run("generate", "--backup"))

	matches, err := filepath.Glob(h.test + ".bak.*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	saved, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, before, saved)
}

func TestInvalidConfiguration(t *testing.T) {
	h := newHarness(t)

	err := h.run("analyze", "--model", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model id is required")
}

func TestDebugLogsToStderr(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("analyze", "--debug"))
	assert.Contains(t, h.stderr.String(), "configuration loaded")
	assert.NotContains(t, h.stdout.String(), "configuration loaded")
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd(newApp(&bytes.Buffer{}, &bytes.Buffer{}))

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"analyze", "bedrock", "scan", "combined", "generate", "history"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"source", "test", "out", "db", "debug", "region", "model"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}
