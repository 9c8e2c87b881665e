// Package backtest runs strategy sweeps against cached candles and persists the outcome.
// It coordinates: load candles → expand sweep → orchestrate → write result files → store run
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/grid"
	"candle-pattern-lab/internal/orchestrator"
	"candle-pattern-lab/internal/reporting"
	"candle-pattern-lab/internal/storage"
)

// Defaults for Options.
const (
	DefaultResultsDir = "results"
	DefaultStartMoney = 100.0
)

var (
	// ErrAlreadyRunning is returned by RunTest while another test run holds the gate.
	ErrAlreadyRunning = errors.New("a strategy test is already running")

	// ErrNoData is returned when no candles are cached for the requested symbol/interval.
	ErrNoData = errors.New("no cached candles")

	// ErrInvalidRequest is returned for requests missing a symbol or interval.
	ErrInvalidRequest = errors.New("invalid backtest request")
)

// Options for creating a Service.
type Options struct {
	// Required
	Candles      storage.CandleStore
	Orchestrator *orchestrator.Orchestrator

	// Optional
	Results    storage.ResultStore    // persists run summaries and affined results
	ResultsDir string                 // default "results"
	Sweep      domain.StrategySweep   // default sweep of RunTest, default domain.DefaultSweep()
	Patterns   []domain.PatternFamily // default W and M
	Market     domain.MarketType      // default spot
	StartMoney float64                // default 100
	TopN       int                    // ranking rows, default reporting.DefaultTopN
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

// Request describes one sweep.
type Request struct {
	Symbol     string
	Interval   string
	Sweep      domain.StrategySweep
	Patterns   []domain.PatternFamily
	Market     domain.MarketType
	StartMoney float64
}

// Outcome is everything a finished run produced.
type Outcome struct {
	Summary domain.RunSummary
	Run     *orchestrator.RunResult
	Ranking *reporting.Ranking
}

// Service runs sweeps one at a time. RunTest refuses to start while another
// sweep holds the gate; HandleJob and Run wait for it.
type Service struct {
	candles      storage.CandleStore
	results      storage.ResultStore
	orchestrator *orchestrator.Orchestrator
	resultsDir   string
	defaults     Request
	topN         int
	logger       logrus.FieldLogger
	now          func() time.Time

	gate runGate

	mu      sync.RWMutex
	lastRun *domain.RunSummary
}

// NewService creates a backtest Service.
func NewService(opts Options) *Service {
	resultsDir := opts.ResultsDir
	if resultsDir == "" {
		resultsDir = DefaultResultsDir
	}
	sweep := opts.Sweep
	if sweep == (domain.StrategySweep{}) {
		sweep = domain.DefaultSweep()
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []domain.PatternFamily{domain.PatternW, domain.PatternM}
	}
	marketType := opts.Market
	if marketType == "" {
		marketType = domain.MarketSpot
	}
	startMoney := opts.StartMoney
	if startMoney <= 0 {
		startMoney = DefaultStartMoney
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = reporting.DefaultTopN
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		candles:      opts.Candles,
		results:      opts.Results,
		orchestrator: opts.Orchestrator,
		resultsDir:   resultsDir,
		defaults: Request{
			Sweep:      sweep,
			Patterns:   append([]domain.PatternFamily(nil), patterns...),
			Market:     marketType,
			StartMoney: startMoney,
		},
		topN:   topN,
		logger: logger.WithField("component", "backtest"),
		now:    now,
		gate:   newRunGate(),
	}
}

// Running reports whether a sweep is in progress.
func (s *Service) Running() bool {
	return s.gate.Held()
}

// LastRun returns the summary of the most recent successful run.
func (s *Service) LastRun() (*domain.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil, false
	}
	run := *s.lastRun
	return &run, true
}

// RunTest runs the default sweep for symbol/interval. It returns
// ErrAlreadyRunning without waiting when another sweep is in progress.
func (s *Service) RunTest(ctx context.Context, symbol, interval string) (*Outcome, error) {
	if !s.gate.TryAcquire() {
		return nil, ErrAlreadyRunning
	}
	defer s.gate.Release()

	req := s.defaults
	req.Symbol = symbol
	req.Interval = interval
	return s.run(ctx, req)
}

// HandleJob processes a queued backtest job. Zero-valued job fields fall back
// to the service defaults.
func (s *Service) HandleJob(ctx context.Context, job domain.BacktestJob) error {
	req := s.defaults
	req.Symbol = job.Symbol
	req.Interval = job.Interval
	if job.Sweep != (domain.StrategySweep{}) {
		req.Sweep = job.Sweep
	}
	if len(job.Patterns) > 0 {
		req.Patterns = job.Patterns
	}
	if job.Market != "" {
		req.Market = job.Market
	}
	if job.StartMoney > 0 {
		req.StartMoney = job.StartMoney
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"symbol":   job.Symbol,
		"interval": job.Interval,
	}).Info("backtest job started")

	if _, err := s.Run(ctx, req); err != nil {
		return fmt.Errorf("backtest %s-%s: %w", job.Symbol, job.Interval, err)
	}
	return nil
}

// Run executes one sweep, waiting until no other sweep is in progress.
func (s *Service) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("%w: symbol and interval are required", ErrInvalidRequest)
	}
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	return s.run(ctx, req)
}

func (s *Service) run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("%w: symbol and interval are required", ErrInvalidRequest)
	}
	symbol := domain.NormalizeSymbol(req.Symbol)
	interval := req.Interval

	series, err := s.candles.Load(ctx, symbol, interval)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && series.Empty()) {
		return nil, fmt.Errorf("%w for %s - %s", ErrNoData, symbol, interval)
	}
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}

	descriptors, err := grid.ExpandPatterns(req.Sweep, req.Market, req.StartMoney, req.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("expand sweep: %w", err)
	}

	runID := uuid.NewString()
	logger := s.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"symbol":   symbol,
		"interval": interval,
	})
	logger.Infof("%d strategies to test", len(descriptors))

	run, err := s.orchestrator.RunWithOptions(ctx, series, descriptors, orchestrator.RunOptions{RunID: runID})
	if err != nil {
		return nil, err
	}

	finishedAt := s.now()
	files, err := reporting.WriteResults(s.resultsDir, symbol, interval, finishedAt, run.Results, run.Affined)
	if err != nil {
		return nil, fmt.Errorf("write results: %w", err)
	}

	ranked := run.RankedAffined()
	ranking, err := reporting.BuildRanking(symbol, interval, finishedAt, len(run.Results), ranked, s.topN)
	if err != nil {
		return nil, fmt.Errorf("build ranking: %w", err)
	}
	rankingFiles, err := reporting.WriteRanking(s.resultsDir, reporting.ResultFileName(symbol, interval, finishedAt), ranking)
	if err != nil {
		return nil, fmt.Errorf("write ranking: %w", err)
	}
	files = append(files, rankingFiles...)

	summary := domain.RunSummary{
		RunID:             runID,
		Symbol:            symbol,
		Interval:          interval,
		SeriesFingerprint: series.Fingerprint(),
		Candles:           series.Len(),
		Strategies:        len(run.Results),
		Affined:           len(run.Affined),
		Workers:           len(run.Chunks),
		StartedAt:         run.StartedAt.UTC(),
		Duration:          run.Elapsed,
		ResultFiles:       files,
	}
	if len(ranked) > 0 {
		summary.BestStrategyID = ranked[0].StrategyID
		summary.BestFinalMoney = ranked[0].FinalMoney
	}

	if s.results != nil {
		if err := s.results.InsertRun(ctx, &summary, ranked); err != nil {
			logger.WithError(err).Warn("failed to store run results")
		}
	}

	s.mu.Lock()
	last := summary
	s.lastRun = &last
	s.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"strategies": summary.Strategies,
		"affined":    summary.Affined,
		"elapsed":    summary.Duration.Round(time.Millisecond),
	}).Info("strategy test finished")

	return &Outcome{Summary: summary, Run: run, Ranking: ranking}, nil
}
