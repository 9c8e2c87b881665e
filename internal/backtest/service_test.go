package backtest

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/evaluator"
	"candle-pattern-lab/internal/market/stub"
	"candle-pattern-lab/internal/orchestrator"
	"candle-pattern-lab/internal/storage/memory"
)

// indexEvaluator closes d.Index trades and ends with StartMoney + Index.
func indexEvaluator(_ domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
	return domain.StrategyResult{
		StrategyID:     d.ID(),
		Descriptor:     d,
		TotalClosed:    d.Index,
		Wins:           d.Index,
		FinalMoney:     d.StartMoney + float64(d.Index),
		MoneyEvolution: []float64{d.StartMoney, d.StartMoney + float64(d.Index)},
	}, nil
}

type fixture struct {
	svc     *Service
	candles *memory.CandleStore
	results *memory.ResultStore
	dir     string
}

func newFixture(t *testing.T, eval evaluator.Evaluator) *fixture {
	t.Helper()

	logger, _ := test.NewNullLogger()
	candles := memory.NewCandleStore()
	results := memory.NewResultStore()
	dir := t.TempDir()

	require.NoError(t, candles.Save(context.Background(), "BTCUSDT", "1h",
		stub.GenerateCandles(1_700_000_000_000, int64(time.Hour/time.Millisecond), 200)))

	orch := orchestrator.New(orchestrator.Options{
		Evaluator:      eval,
		Workers:        4,
		ReportInterval: 10 * time.Millisecond,
		Logger:         logger,
	})

	svc := NewService(Options{
		Candles:      candles,
		Orchestrator: orch,
		Results:      results,
		ResultsDir:   dir,
		Logger:       logger,
		Now:          func() time.Time { return time.Date(2024, 3, 7, 9, 5, 4, 0, time.UTC) },
	})
	return &fixture{svc: svc, candles: candles, results: results, dir: dir}
}

func TestRunTest_DefaultSweep(t *testing.T) {
	f := newFixture(t, evaluator.Func(indexEvaluator))
	ctx := context.Background()

	out, err := f.svc.RunTest(ctx, "btcusdt", "1h")
	require.NoError(t, err)

	summary := out.Summary
	assert.Equal(t, "BTCUSDT", summary.Symbol)
	assert.Equal(t, "1h", summary.Interval)
	assert.Equal(t, 200, summary.Candles)
	assert.Equal(t, 400, summary.Strategies)
	assert.Equal(t, 299, summary.Affined) // indices 101..399
	assert.Equal(t, 4, summary.Workers)
	assert.Equal(t, 100.0+399, summary.BestFinalMoney)
	assert.Len(t, summary.SeriesFingerprint, 64)

	// Four result files plus the ranking markdown and CSV.
	require.Len(t, summary.ResultFiles, 6)
	for _, path := range summary.ResultFiles {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	last, ok := f.svc.LastRun()
	require.True(t, ok)
	assert.Equal(t, summary.RunID, last.RunID)

	stored, err := f.results.GetResults(ctx, summary.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 299)
	assert.Equal(t, summary.BestStrategyID, stored[0].StrategyID)

	assert.False(t, f.svc.Running())
}

func TestRunTest_NoData(t *testing.T) {
	f := newFixture(t, evaluator.Func(indexEvaluator))

	_, err := f.svc.RunTest(context.Background(), "ETHUSDT", "1h")
	assert.ErrorIs(t, err, ErrNoData)

	_, ok := f.svc.LastRun()
	assert.False(t, ok)
}

func TestRunTest_AlreadyRunning(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	blocking := evaluator.Func(func(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
		<-release
		return indexEvaluator(series, d)
	})
	f := newFixture(t, blocking)
	defer once.Do(func() { close(release) })

	errCh := make(chan error, 1)
	go func() {
		_, err := f.svc.RunTest(context.Background(), "BTCUSDT", "1h")
		errCh <- err
	}()

	require.Eventually(t, f.svc.Running, time.Second, 5*time.Millisecond)

	_, err := f.svc.RunTest(context.Background(), "BTCUSDT", "1h")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	once.Do(func() { close(release) })
	require.NoError(t, <-errCh)
	assert.False(t, f.svc.Running())
}

func TestRunTest_WorkerFailure(t *testing.T) {
	failing := evaluator.Func(func(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
		if d.Index == 7 {
			return domain.StrategyResult{}, errors.New("boom")
		}
		return indexEvaluator(series, d)
	})
	f := newFixture(t, failing)

	_, err := f.svc.RunTest(context.Background(), "BTCUSDT", "1h")
	assert.ErrorIs(t, err, orchestrator.ErrWorkerFailed)

	_, ok := f.svc.LastRun()
	assert.False(t, ok)
	assert.False(t, f.svc.Running(), "gate must be released after a failed run")

	runs, err := f.results.ListRuns(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestHandleJob_CustomSweep(t *testing.T) {
	f := newFixture(t, evaluator.Func(indexEvaluator))

	sweep := domain.StrategySweep{
		TakeProfit:   domain.NewRange(1.0, 2.0, 1.0),
		StopLoss:     domain.NewRange(0.5, 0.5, 0.1),
		Repetitions:  domain.NewRange(1, 2, 1),
		WindowSize:   domain.NewRange(10, 10, 1),
		RiskFraction: domain.NewRange(1.0, 1.0, 1.0),
	}
	job := domain.NewBacktestJob("btcusdt", "1h", sweep, domain.MarketFutures, 500, domain.PatternM)

	require.NoError(t, f.svc.HandleJob(context.Background(), job))

	last, ok := f.svc.LastRun()
	require.True(t, ok)
	assert.Equal(t, 4, last.Strategies)
	assert.Equal(t, 0, last.Affined)

	assert.False(t, f.svc.Running(), "gate must be released after a job")
}

func TestHandleJob_Errors(t *testing.T) {
	f := newFixture(t, evaluator.Func(indexEvaluator))
	ctx := context.Background()

	err := f.svc.HandleJob(ctx, domain.NewBacktestJob("ETHUSDT", "1h", domain.StrategySweep{}, "", 0))
	assert.ErrorIs(t, err, ErrNoData)

	bad := domain.DefaultSweep()
	bad.WindowSize = domain.NewRange(30, 10, 5)
	err = f.svc.HandleJob(ctx, domain.NewBacktestJob("BTCUSDT", "1h", bad, domain.MarketSpot, 100))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = f.svc.Run(ctx, Request{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRunTest_FewAffinedResults(t *testing.T) {
	// Only indices 0..2 pass the trade filter.
	few := evaluator.Func(func(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
		res, err := indexEvaluator(series, d)
		if d.Index < 3 {
			res.TotalClosed = 150
		} else {
			res.TotalClosed = 0
		}
		return res, err
	})
	f := newFixture(t, few)

	out, err := f.svc.RunTest(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, 3, out.Summary.Affined)
	require.Len(t, out.Ranking.Top, 3)
	assert.Equal(t, 102.0, out.Ranking.Summary.FinalMoneyP90)
	assert.Equal(t, 100.0, out.Ranking.Summary.FinalMoneyP10)
}

func TestHandleJob_WaitsForRunningTest(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	blocking := evaluator.Func(func(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
		<-release
		return indexEvaluator(series, d)
	})
	f := newFixture(t, blocking)
	defer once.Do(func() { close(release) })

	testErr := make(chan error, 1)
	go func() {
		_, err := f.svc.RunTest(context.Background(), "BTCUSDT", "1h")
		testErr <- err
	}()
	require.Eventually(t, f.svc.Running, time.Second, 5*time.Millisecond)

	// A job whose context ends while the gate is held gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.svc.HandleJob(ctx, domain.NewBacktestJob("BTCUSDT", "1h", domain.StrategySweep{}, "", 0))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	jobErr := make(chan error, 1)
	go func() {
		jobErr <- f.svc.HandleJob(context.Background(), domain.NewBacktestJob("BTCUSDT", "1h", domain.StrategySweep{}, "", 0))
	}()

	select {
	case err := <-jobErr:
		t.Fatalf("job finished while a test run held the gate: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = f.svc.RunTest(context.Background(), "BTCUSDT", "1h")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	once.Do(func() { close(release) })
	require.NoError(t, <-testErr)
	require.NoError(t, <-jobErr)
	assert.False(t, f.svc.Running())
}
