package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oxhq/testgap/bedrock"
	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/db"
	"github.com/oxhq/testgap/internal/config"
	"github.com/oxhq/testgap/internal/console"
	"github.com/oxhq/testgap/internal/logger"
)

// app carries state shared by every command of one invocation
type app struct {
	stdout io.Writer
	stderr io.Writer

	cfg    config.Config
	logger *slog.Logger

	// envFiles are passed to godotenv; empty means ./.env
	envFiles []string

	newModelClient func(ctx context.Context, cfg bedrock.Config) (bedrock.ModelClient, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:         stdout,
		stderr:         stderr,
		logger:         slog.Default(),
		newModelClient: defaultModelClient,
	}
}

func defaultModelClient(ctx context.Context, cfg bedrock.Config) (bedrock.ModelClient, error) {
	client, err := bedrock.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type rootFlags struct {
	source   string
	test     string
	out      string
	dbURL    string
	debug    bool
	region   string
	model    string
	endpoint string
}

func newRootCmd(a *app) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:   "testgap",
		Short: "Detect untested code paths and propose tests",
		Long: `testgap finds untested branches of a source file, asks a Bedrock-hosted
model for candidate tests, runs a security scan and merges everything into
one JSON report. Analyzer failures are recorded in the report and never fail
the command.`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd, flags)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.source, "source", "", "Source file to analyze (default src/user_service.py)")
	pf.StringVar(&flags.test, "test", "", "Test file of the source (default tests/test_user_service.py)")
	pf.StringVar(&flags.out, "out", "", "Directory for JSON reports (default .)")
	pf.StringVar(&flags.dbURL, "db", "", "Run history database: file path, :memory: or libsql URL")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.region, "region", "", "AWS region of the Bedrock runtime")
	pf.StringVar(&flags.model, "model", "", "Bedrock model id")
	pf.StringVar(&flags.endpoint, "endpoint", "", "Override the Bedrock runtime endpoint")

	root.AddCommand(
		newAnalyzeCmd(a),
		newBedrockCmd(a),
		newScanCmd(a),
		newCombinedCmd(a),
		newGenerateCmd(a),
		newHistoryCmd(a),
	)

	return root
}

// configure layers defaults, .env, TESTGAP_* variables and flags
func (a *app) configure(cmd *cobra.Command, flags rootFlags) error {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}

	fs := cmd.Flags()
	if fs.Changed("source") {
		cfg.SourcePath = flags.source
	}
	if fs.Changed("test") {
		cfg.TestPath = flags.test
	}
	if fs.Changed("out") {
		cfg.OutDir = flags.out
	}
	if fs.Changed("db") {
		cfg.DatabaseURL = flags.dbURL
	}
	if fs.Changed("debug") {
		cfg.Debug = flags.debug
	}
	if fs.Changed("region") {
		cfg.Region = flags.region
	}
	if fs.Changed("model") {
		cfg.ModelID = flags.model
	}
	if fs.Changed("endpoint") {
		cfg.Endpoint = flags.endpoint
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.cfg = cfg
	a.logger = logger.Setup(a.stderr, logger.Options{Format: cfg.LogFormat, Debug: cfg.Debug})
	a.logger.Debug("configuration loaded",
		"source", cfg.SourcePath,
		"test", cfg.TestPath,
		"out", cfg.OutDir,
		"region", cfg.Region,
		"model", cfg.ModelID,
		"history", cfg.DatabaseURL != "")
	return nil
}

func (a *app) printer() *console.Printer {
	return console.New(a.stdout)
}

func (a *app) writer() *core.AtomicWriter {
	return core.NewAtomicWriter(core.DefaultAtomicConfig())
}

// outPath resolves name inside the output directory, creating it
func (a *app) outPath(name string) (string, error) {
	if a.cfg.OutDir != "" && a.cfg.OutDir != "." {
		if err := os.MkdirAll(a.cfg.OutDir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	return filepath.Join(a.cfg.OutDir, name), nil
}

func (a *app) scanPath() string {
	if a.cfg.ScanPath != "" {
		return a.cfg.ScanPath
	}
	return filepath.Dir(a.cfg.SourcePath)
}

func (a *app) openStore() (*db.Store, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no history database configured (use --db or TESTGAP_DB)")
	}
	return db.Open(a.cfg.DatabaseURL, a.cfg.Debug)
}
