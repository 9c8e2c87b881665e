// Package app wires configuration, stores, services, queues and the HTTP API
// into one process.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"candle-pattern-lab/internal/api"
	"candle-pattern-lab/internal/backtest"
	"candle-pattern-lab/internal/config"
	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/download"
	"candle-pattern-lab/internal/evaluator"
	"candle-pattern-lab/internal/jobqueue"
	"candle-pattern-lab/internal/market"
	"candle-pattern-lab/internal/market/binance"
	"candle-pattern-lab/internal/orchestrator"
)

// Queue names, used as metric labels.
const (
	DownloadQueue = "download"
	BacktestQueue = "backtest"
)

// Options overrides components built from configuration. Zero fields use the defaults.
type Options struct {
	Market    market.Client       // default: Binance client from cfg.Exchange
	Evaluator evaluator.Evaluator // default: evaluator.NewPatternEvaluator()
}

// App holds every long-lived component of the process.
type App struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	Stores   *Stores
	Progress *orchestrator.Broadcaster
	Backtest *backtest.Service
	Download *download.Service

	Downloads *jobqueue.Queue[domain.DownloadJob]
	Backtests *jobqueue.Queue[domain.BacktestJob]

	cleanup func()
}

// New builds the application from cfg.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, opts Options) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	stores, cleanup, err := createStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	client := opts.Market
	if client == nil {
		client = binance.New(binance.Options{
			Market:    cfg.MarketType(),
			BaseURL:   cfg.Exchange.BaseURL,
			APIKey:    cfg.Exchange.APIKey,
			SecretKey: cfg.Exchange.SecretKey,
		})
	}
	eval := opts.Evaluator
	if eval == nil {
		eval = evaluator.NewPatternEvaluator()
	}

	progress := orchestrator.NewBroadcaster()
	orch := orchestrator.New(orchestrator.Options{
		Evaluator:      eval,
		Workers:        cfg.Backtest.Workers,
		ReportInterval: cfg.Backtest.ReportInterval.Duration,
		Filter:         orchestrator.MinTradesFilter(cfg.Backtest.MinTrades),
		Sink:           progress,
		Logger:         logger,
	})

	bt := backtest.NewService(backtest.Options{
		Candles:      stores.Candles,
		Orchestrator: orch,
		Results:      stores.Results,
		ResultsDir:   cfg.Storage.ResultsDir,
		Sweep:        cfg.Backtest.Sweep,
		Patterns:     cfg.PatternFamilies(),
		Market:       cfg.MarketType(),
		StartMoney:   cfg.Backtest.StartMoney,
		TopN:         cfg.Backtest.TopN,
		Logger:       logger,
	})

	dl := download.NewService(download.Options{
		Client:     client,
		Store:      stores.Candles,
		Batches:    cfg.Exchange.Batches,
		BatchLimit: cfg.Exchange.BatchLimit,
		Logger:     logger,
	})

	queueOpts := jobqueue.Options{
		MaxLen:       cfg.Queue.MaxLen,
		PollInterval: cfg.Queue.PollInterval.Duration,
		Logger:       logger,
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Stores:    stores,
		Progress:  progress,
		Backtest:  bt,
		Download:  dl,
		Downloads: jobqueue.New(DownloadQueue, dl.Handle, queueOpts),
		Backtests: jobqueue.New(BacktestQueue, bt.HandleJob, queueOpts),
		cleanup:   cleanup,
	}, nil
}

// Close releases store connections.
func (a *App) Close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// Serve runs both queue drain loops and the HTTP API until ctx is cancelled
// or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	server, err := api.NewServer(api.Options{
		Addr:      a.Config.Server.Addr,
		Tester:    a.Backtest,
		Downloads: a.Downloads,
		Backtests: a.Backtests,
		Progress:  a.Progress,
		Sweep:     a.Config.Backtest.Sweep,
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queueErr(DownloadQueue, a.Downloads.Run(gctx))
	})
	g.Go(func() error {
		return queueErr(BacktestQueue, a.Backtests.Run(gctx))
	})
	g.Go(func() error {
		return server.Start(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func queueErr(name string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("%s queue: %w", name, err)
}
