// Package main runs one strategy sweep offline against the cached candles and
// prints the ranking.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"candle-pattern-lab/internal/app"
	"candle-pattern-lab/internal/reporting"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		flags      app.CommonFlags
		workers    int
		minTrades  int
		top        int
		startMoney float64
		patterns   []string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:          "backtest SYMBOL INTERVAL",
		Short:        "Sweep pattern strategies over a cached candle history",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.Load(cmd)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if fs.Changed("workers") {
				cfg.Backtest.Workers = workers
			}
			if fs.Changed("min-trades") {
				cfg.Backtest.MinTrades = minTrades
			}
			if fs.Changed("top") {
				cfg.Backtest.TopN = top
			}
			if fs.Changed("start-money") {
				cfg.Backtest.StartMoney = startMoney
			}
			if fs.Changed("patterns") {
				cfg.Backtest.Patterns = patterns
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := app.SignalContext()
			defer stop()

			a, err := app.New(ctx, cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Backtest.RunTest(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out.Summary)
			}

			s := out.Summary
			fmt.Println(reporting.RenderTable(out.Ranking))
			fmt.Printf("Run %s: %d candles, %d strategies, %d affined, %s\n",
				s.RunID, s.Candles, s.Strategies, s.Affined, s.Duration)
			for _, path := range s.ResultFiles {
				fmt.Println("  " + path)
			}
			return nil
		},
	}

	flags.Register(cmd)
	fs := cmd.Flags()
	fs.IntVar(&workers, "workers", 0, "Worker count (default from config, 8)")
	fs.IntVar(&minTrades, "min-trades", 0, "Affined filter: closed trades must exceed this")
	fs.IntVar(&top, "top", 0, "Rows in the ranking")
	fs.Float64Var(&startMoney, "start-money", 0, "Starting balance of every strategy")
	fs.StringSliceVar(&patterns, "patterns", nil, "Pattern families to sweep: W, M")
	fs.BoolVar(&outputJSON, "json", false, "Print the run summary as JSON")
	return cmd
}
