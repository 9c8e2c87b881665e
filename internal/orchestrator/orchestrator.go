// Package orchestrator runs a strategy sweep over a candle series.
// It coordinates: partition → parallel evaluation → progress aggregation → merge → filter
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/evaluator"
	"candle-pattern-lab/internal/observability"
)

// Defaults for Options.
const (
	DefaultWorkers        = 8
	DefaultReportInterval = time.Second

	// samplesPerWorker sizes the shared progress channel.
	samplesPerWorker = 4
)

// ErrWorkerFailed is returned when an evaluation panics or errors.
// No partial result is returned alongside it.
var ErrWorkerFailed = errors.New("backtest worker failed")

// Orchestrator evaluates descriptors across a fixed number of workers.
type Orchestrator struct {
	evaluator      evaluator.Evaluator
	workers        int
	reportInterval time.Duration
	filter         Filter
	sink           ProgressSink
	logger         logrus.FieldLogger
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Evaluator evaluator.Evaluator

	// Optional
	Workers        int           // default 8
	ReportInterval time.Duration // progress aggregation tick, default 1s
	Filter         Filter        // default MinTradesFilter(100)
	Sink           ProgressSink  // receives progress snapshots
	Logger         logrus.FieldLogger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	interval := opts.ReportInterval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	filter := opts.Filter
	if filter == nil {
		filter = MinTradesFilter(DefaultMinTrades)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Orchestrator{
		evaluator:      opts.Evaluator,
		workers:        workers,
		reportInterval: interval,
		filter:         filter,
		sink:           opts.Sink,
		logger:         logger.WithField("component", "orchestrator"),
	}
}

// Workers returns the configured worker count.
func (o *Orchestrator) Workers() int {
	return o.workers
}

// RunOptions carries per-run labels attached to progress and logs.
type RunOptions struct {
	RunID string
}

// RunResult contains results from one run.
type RunResult struct {
	RunID     string
	Results   []domain.StrategyResult // one per descriptor, in descriptor order
	Affined   []domain.StrategyResult // Results accepted by the run filter
	Chunks    []domain.Chunk
	StartedAt time.Time
	Elapsed   time.Duration
}

// Ranked returns Results ordered by final money descending.
func (r *RunResult) Ranked() []domain.StrategyResult {
	return RankResults(r.Results)
}

// RankedAffined returns Affined ordered by final money descending.
func (r *RunResult) RankedAffined() []domain.StrategyResult {
	return RankResults(r.Affined)
}

// Run evaluates every descriptor against series and blocks until all workers joined.
// Once started a run is not cancelled by ctx; it stops early only when a worker fails.
func (o *Orchestrator) Run(ctx context.Context, series domain.CandleSeries, descriptors []domain.StrategyDescriptor) (*RunResult, error) {
	return o.RunWithOptions(ctx, series, descriptors, RunOptions{})
}

// RunWithOptions is Run with per-run labels.
func (o *Orchestrator) RunWithOptions(ctx context.Context, series domain.CandleSeries, descriptors []domain.StrategyDescriptor, ropts RunOptions) (*RunResult, error) {
	if o.evaluator == nil {
		return nil, fmt.Errorf("%w: no evaluator configured", ErrWorkerFailed)
	}

	start := time.Now()
	logger := o.logger.WithFields(logrus.Fields{
		"run_id":   ropts.RunID,
		"symbol":   series.Symbol,
		"interval": series.Interval,
	})

	chunks := Partition(len(descriptors), o.workers)
	result := &RunResult{
		RunID:     ropts.RunID,
		Chunks:    chunks,
		StartedAt: start,
	}
	if len(chunks) == 0 {
		result.Results = []domain.StrategyResult{}
		result.Affined = []domain.StrategyResult{}
		o.publish(snapshot(nil, 0, true), ropts.RunID, series)
		return result, nil
	}

	logger.Infof("Running %d strategies on %d candles with %d workers", len(descriptors), series.Len(), len(chunks))
	observability.RunStarted()
	defer observability.RunFinished()

	samples := make(chan domain.ProgressSample, len(chunks)*samplesPerWorker)
	partials := make([][]domain.StrategyResult, len(chunks))

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, chunk := range chunks {
		g.Go(func() error {
			out, err := o.runChunk(gctx, series, descriptors, chunk, samples)
			if err != nil {
				return err
			}
			partials[chunk.Worker] = out
			return nil
		})
	}

	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(done)
	}()

	fractions := o.aggregate(samples, done, len(chunks), start, ropts.RunID, series, logger)
	result.Elapsed = time.Since(start)

	if waitErr != nil {
		logger.WithError(waitErr).Errorf("Run failed after %s", result.Elapsed)
		observability.RecordRun("error", result.Elapsed.Seconds(), 0, 0, time.Now().Unix())
		return nil, waitErr
	}

	final := snapshot(fractions, result.Elapsed, true)
	o.publish(final, ropts.RunID, series)

	merged := make([]domain.StrategyResult, 0, len(descriptors))
	for _, part := range partials {
		merged = append(merged, part...)
	}
	result.Results = merged
	result.Affined = ApplyFilter(merged, o.filter)

	logger.Infof("Strategies tested in %s: %d results, %d affined",
		result.Elapsed.Round(time.Millisecond), len(result.Results), len(result.Affined))
	observability.RecordRun("success", result.Elapsed.Seconds(), len(result.Results), len(result.Affined), time.Now().Unix())

	return result, nil
}

// runChunk evaluates one chunk sequentially. Panics are converted into ErrWorkerFailed.
func (o *Orchestrator) runChunk(
	ctx context.Context,
	series domain.CandleSeries,
	descriptors []domain.StrategyDescriptor,
	chunk domain.Chunk,
	samples chan<- domain.ProgressSample,
) (out []domain.StrategyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: worker %d: panic: %v", ErrWorkerFailed, chunk.Worker, r)
		}
	}()

	out = make([]domain.StrategyResult, 0, chunk.Len)
	for k := 0; k < chunk.Len; k++ {
		// a sibling failed, the run result will be discarded
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		d := descriptors[chunk.Start+k]
		res, evalErr := o.evaluator.Evaluate(series, d)
		if evalErr != nil {
			return nil, fmt.Errorf("%w: worker %d strategy %s: %w", ErrWorkerFailed, chunk.Worker, d.ID(), evalErr)
		}
		out = append(out, res)

		if k+1 < chunk.Len {
			select {
			case samples <- domain.ProgressSample{Worker: chunk.Worker, Fraction: float64(k+1) / float64(chunk.Len)}:
			default:
			}
		}
	}

	// The completion sample is always delivered; the aggregator drains until the group is done.
	samples <- domain.ProgressSample{Worker: chunk.Worker, Fraction: 1}
	return out, nil
}

// aggregate folds progress samples into per-worker fractions until done is closed.
// Completion is driven by done, never by the samples themselves.
func (o *Orchestrator) aggregate(
	samples <-chan domain.ProgressSample,
	done <-chan struct{},
	workers int,
	start time.Time,
	runID string,
	series domain.CandleSeries,
	logger logrus.FieldLogger,
) []float64 {
	fractions := make([]float64, workers)
	apply := func(s domain.ProgressSample) {
		if s.Worker < 0 || s.Worker >= workers {
			return
		}
		if s.Fraction > fractions[s.Worker] {
			fractions[s.Worker] = s.Fraction
		}
	}

	ticker := time.NewTicker(o.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case s := <-samples:
			apply(s)
		case <-ticker.C:
			p := snapshot(fractions, time.Since(start), false)
			o.publish(p, runID, series)
			logger.Infof("Progress %.2f%% elapsed %s eta %s remaining %s",
				p.Percent(), p.Elapsed.Round(time.Second), p.ETA.Round(time.Second), p.Remaining.Round(time.Second))
		case <-done:
			for {
				select {
				case s := <-samples:
					apply(s)
				default:
					return fractions
				}
			}
		}
	}
}

func (o *Orchestrator) publish(p Progress, runID string, series domain.CandleSeries) {
	observability.SetRunProgress(p.Overall)
	if o.sink == nil {
		return
	}
	p.RunID = runID
	p.Symbol = series.Symbol
	p.Interval = series.Interval
	o.sink.Publish(p)
}
