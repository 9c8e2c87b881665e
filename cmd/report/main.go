// Package main renders rankings of past runs, either from the result store or
// from result files.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"candle-pattern-lab/internal/app"
	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/evaluator"
	"candle-pattern-lab/internal/orchestrator"
	"candle-pattern-lab/internal/reporting"
	"candle-pattern-lab/internal/verification"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags app.CommonFlags

	root := &cobra.Command{
		Use:          "report",
		Short:        "Render rankings of past strategy runs",
		SilenceUsage: true,
	}
	flags.Register(root)
	root.AddCommand(newRunsCmd(&flags), newShowCmd(&flags), newVerifyCmd(&flags), newFileCmd())
	return root
}

func newRunsCmd(flags *app.CommonFlags) *cobra.Command {
	var (
		symbol   string
		interval string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				runs, err := a.Stores.Results.ListRuns(ctx, symbol, interval, limit)
				if err != nil {
					return err
				}
				fmt.Println(runsTable(runs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "Only runs of this symbol")
	cmd.Flags().StringVar(&interval, "interval", "", "Only runs of this interval")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs listed, 0 for all")
	return cmd
}

func newShowCmd(flags *app.CommonFlags) *cobra.Command {
	var (
		top    int
		format string
	)
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Render the ranking of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				run, err := a.Stores.Results.GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				results, err := a.Stores.Results.GetResults(ctx, run.RunID)
				if err != nil {
					return fmt.Errorf("results of run %s: %w", run.RunID, err)
				}
				ranking, err := reporting.BuildRanking(run.Symbol, run.Interval, run.StartedAt, run.Strategies, results, top)
				if err != nil {
					return err
				}
				return render(ranking, format)
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", reporting.DefaultTopN, "Rows in the ranking")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, markdown or csv")
	return cmd
}

func newVerifyCmd(flags *app.CommonFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "verify RUN_ID",
		Short: "Replay the stored results of a run and report divergences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
					ResultStore: a.Stores.Results,
					CandleStore: a.Stores.Candles,
					Evaluator:   evaluator.NewPatternEvaluator(),
					Limit:       limit,
				})
				report, err := verifier.VerifyRun(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Printf("Run %s: %d/%d results match\n", report.RunID, report.MatchedResults, report.TotalResults)
				for _, r := range report.Results {
					for _, d := range r.Divergences {
						fmt.Printf("  %s %s: stored %v, replayed %v\n", shortID(r.StrategyID), d.Field, d.Expected, d.Actual)
					}
				}
				if report.DivergentResults > 0 {
					return fmt.Errorf("%d divergent results", report.DivergentResults)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", reporting.DefaultTopN, "Verify only the best N results, 0 for all")
	return cmd
}

func newFileCmd() *cobra.Command {
	var (
		top    int
		format string
	)
	cmd := &cobra.Command{
		Use:   "file PATH",
		Short: "Render the ranking of a result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			symbol, interval, at, err := reporting.ParseResultFileName(args[0])
			if err != nil {
				return err
			}
			results, err := reporting.ReadResults(args[0])
			if err != nil {
				return err
			}
			ranked := orchestrator.RankResults(results)
			ranking, err := reporting.BuildRanking(symbol, interval, at, len(results), ranked, top)
			if err != nil {
				return err
			}
			return render(ranking, format)
		},
	}
	cmd.Flags().IntVar(&top, "top", reporting.DefaultTopN, "Rows in the ranking")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, markdown or csv")
	return cmd
}

func withApp(cmd *cobra.Command, flags *app.CommonFlags, fn func(context.Context, *app.App) error) error {
	cfg, logger, err := flags.Load(cmd)
	if err != nil {
		return err
	}
	ctx, stop := app.SignalContext()
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func render(r *reporting.Ranking, format string) error {
	switch format {
	case "table":
		fmt.Println(reporting.RenderTable(r))
	case "markdown", "md":
		fmt.Print(reporting.RenderMarkdown(r))
	case "csv":
		out, err := reporting.RenderCSV(r.Top)
		if err != nil {
			return err
		}
		fmt.Print(out)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

func runsTable(runs []*domain.RunSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Symbol", "Interval", "Started", "Candles", "Strategies", "Affined", "Best Final", "Duration"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RunID, r.Symbol, r.Interval,
			r.StartedAt.Format(time.RFC3339),
			r.Candles, r.Strategies, r.Affined,
			fmt.Sprintf("%.2f", r.BestFinalMoney),
			r.Duration.Round(time.Millisecond),
		})
	}
	if len(runs) == 0 {
		t.AppendRow(table.Row{"no runs"})
	}
	return t.Render()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
