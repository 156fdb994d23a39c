package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxhq/testgap/aggregate"
	"github.com/oxhq/testgap/bedrock"
	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/emitter"
	"github.com/oxhq/testgap/gaps"
	"github.com/oxhq/testgap/scanner"
)

const (
	bedrockReportFile  = "bedrock_analysis.json"
	securityReportFile = "security-report.json"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Classify untested branches and print the PR comment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer := gaps.NewAnalyzer(nil, gaps.WithLogger(a.logger))

			report, err := analyzer.AnalyzeCoverageGaps(cmd.Context(), a.cfg.SourcePath, a.cfg.TestPath)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", a.cfg.SourcePath, err)
			}

			gaps.PostPRComment(a.stdout, report)
			return nil
		},
	}
}

func newBedrockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bedrock",
		Short: "Ask the Bedrock model for gaps and tests, falling back when unavailable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := a.printer()

			result, err := a.analyzeWithModel(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "bedrock analysis failed", "error", err)
				p.Printf("Bedrock not available: %v\n", err)
				p.Println("Falling back to basic AI analysis...")
				result = bedrock.FallbackResult()
			} else {
				bedrock.PrintSummary(a.stdout, result)
			}

			path, err := a.outPath(bedrockReportFile)
			if err != nil {
				return err
			}
			if err := a.writer().WriteJSON(path, result.Normalize()); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			return nil
		},
	}
}

func (a *app) analyzeWithModel(ctx context.Context) (core.AIAnalysisResult, error) {
	client, err := a.newModelClient(ctx, a.cfg.Bedrock())
	if err != nil {
		return core.AIAnalysisResult{}, err
	}
	analyzer := bedrock.NewAnalyzer(client, bedrock.WithLogger(a.logger))
	return analyzer.AnalyzeFiles(ctx, a.cfg.SourcePath, a.cfg.TestPath)
}

func newScanCmd(a *app) *cobra.Command {
	var include []string

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Run the security scan and write security-report.json",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.scanPath()
			if len(args) == 1 {
				path = args[0]
			}

			s := scanner.New(
				scanner.WithOutput(a.stdout),
				scanner.WithInclude(include...),
				scanner.WithLogger(a.logger),
			)
			findings, err := s.RunSecurityScan(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("scan %s: %w", path, err)
			}

			out, err := a.outPath(securityReportFile)
			if err != nil {
				return err
			}
			if err := a.writer().WriteJSON(out, findings); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			p := a.printer()
			p.Printf("\nSecurity report saved to %s\n", out)
			p.Rule(50)

			if blocking := scanner.Blocking(findings); len(blocking) > 0 {
				a.logger.InfoContext(cmd.Context(), "blocking security findings", "count", len(blocking))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&include, "include", nil, "Candidate file globs (default **/*.py, **/*.go)")
	return cmd
}

// failedAI stands in for the AI analyzer when no client could be built
type failedAI struct{ err error }

func (f failedAI) AnalyzeCodeWithAI(context.Context, string, string) (core.AIAnalysisResult, error) {
	return core.AIAnalysisResult{}, f.err
}

func newCombinedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "combined",
		Short: "Run all three analyzers and write combined_analysis.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var ai aggregate.AIAnalyzer
			if client, err := a.newModelClient(ctx, a.cfg.Bedrock()); err != nil {
				ai = failedAI{err: err}
			} else {
				ai = bedrock.NewAnalyzer(client, bedrock.WithLogger(a.logger))
			}

			runnerCfg := aggregate.Config{
				SourcePath: a.cfg.SourcePath,
				TestPath:   a.cfg.TestPath,
				ScanPath:   a.scanPath(),
				OutDir:     a.cfg.OutDir,
				Gaps:       gaps.NewAnalyzer(nil, gaps.WithLogger(a.logger)),
				AI:         ai,
				Scanner:    scanner.New(scanner.WithOutput(a.stdout), scanner.WithLogger(a.logger)),
				Writer:     a.writer(),
				Printer:    a.printer(),
				Logger:     a.logger,
			}

			if a.cfg.DatabaseURL != "" {
				store, err := a.openStore()
				if err != nil {
					a.logger.WarnContext(ctx, "run history disabled", "error", err)
				} else {
					defer store.Close()
					runnerCfg.Recorder = store
				}
			}

			_, err := aggregate.NewRunner(runnerCfg).Run(ctx)
			return err
		},
	}
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		opts   emitter.Options
		backup bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Append the generated tests to the test file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wcfg := core.DefaultAtomicConfig()
			wcfg.Backup = backup
			e := emitter.New(opts, core.NewAtomicWriter(wcfg), a.printer())
			if _, err := e.CreateTestPR(cmd.Context(), a.cfg.TestPath); err != nil {
				return fmt.Errorf("generate tests: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Dedupe, "dedupe", false, "Skip when the generated tests are already present")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print a diff instead of writing")
	cmd.Flags().BoolVar(&backup, "backup", false, "Copy the test file to <file>.bak.<time> before appending")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit, keep int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded combined analysis runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if cmd.Flags().Changed("keep") {
				removed, err := store.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				a.printer().Printf("Pruned %d runs\n", removed)
			}

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				a.printer().Println("No analysis runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tGAPS\tTESTS\tSECURITY\tFAILED\tSOURCE")
			for _, run := range runs {
				failed := strings.Join(run.FailedSlots, ",")
				if failed == "" {
					failed = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					run.ID,
					run.CreatedAt.Local().Format(time.DateTime),
					run.TotalGaps,
					run.TotalTests,
					run.SecurityIssues,
					failed,
					run.SourceFile)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to list")
	cmd.Flags().IntVar(&keep, "keep", 0, "Delete all but the newest N runs before listing")
	return cmd
}
