// Package main runs the HTTP API together with the download and backtest
// queue managers.
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
		flags   app.CommonFlags
		addr    string
		workers int
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the candle pattern lab API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.Load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("workers") {
				cfg.Backtest.Workers = workers
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

			logger.WithFields(logrus.Fields{
				"addr":    cfg.Server.Addr,
				"market":  cfg.MarketType(),
				"workers": cfg.Backtest.Workers,
			}).Info("Candle pattern lab starting")

			if err := a.Serve(ctx); err != nil {
				return err
			}
			logger.Info("Candle pattern lab stopped")
			return nil
		},
	}

	flags.Register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config, :8000)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Backtest worker count")
	return cmd
}
