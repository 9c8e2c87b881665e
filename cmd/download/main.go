// Package main downloads one candle history from Binance into the candle cache.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"candle-pattern-lab/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		flags     app.CommonFlags
		batches   int
		batchSize int
	)

	cmd := &cobra.Command{
		Use:          "download SYMBOL INTERVAL",
		Short:        "Download and cache the candle history of a symbol",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.Load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("batches") {
				cfg.Exchange.Batches = batches
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.Exchange.BatchLimit = batchSize
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

			res, err := a.Download.Download(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			logger.WithFields(logrus.Fields{
				"symbol":      res.Symbol,
				"interval":    res.Interval,
				"candles":     res.Candles,
				"batches":     res.Batches,
				"stopped":     res.Stopped,
				"local_clock": res.LocalClock,
				"duration":    res.Duration,
			}).Info("Download complete")
			return nil
		},
	}

	flags.Register(cmd)
	cmd.Flags().IntVar(&batches, "batches", 0, "Number of kline requests (default from config, 100)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Candles per request (default from config, 1000)")
	return cmd
}
