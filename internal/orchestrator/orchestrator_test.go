package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/evaluator"
)

func makeDescriptors(n int) []domain.StrategyDescriptor {
	out := make([]domain.StrategyDescriptor, n)
	for i := range out {
		out[i] = domain.StrategyDescriptor{
			Index:        i,
			Pattern:      domain.PatternW,
			Market:       domain.MarketSpot,
			StartMoney:   100,
			TakeProfit:   float64(i) + 1,
			StopLoss:     1,
			Repetitions:  1,
			WindowSize:   10,
			RiskFraction: 1,
		}
	}
	return out
}

// indexEvaluator returns Index closed trades and Index final money.
func indexEvaluator(delay time.Duration) evaluator.Func {
	return func(_ domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
		if delay > 0 {
			time.Sleep(delay)
		}
		return domain.StrategyResult{
			StrategyID:  d.ID(),
			Descriptor:  d,
			TotalClosed: d.Index,
			FinalMoney:  float64(d.Index),
		}, nil
	}
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []Progress
}

func (s *recordingSink) Publish(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, p)
}

func (s *recordingSink) all() []Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Progress(nil), s.snapshots...)
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestOrchestrator_Run_Completeness(t *testing.T) {
	descriptors := makeDescriptors(37)
	orch := New(Options{
		Evaluator: indexEvaluator(0),
		Workers:   8,
		Filter:    MinTradesFilter(1000),
		Logger:    quietLogger(),
	})

	result, err := orch.Run(context.Background(), domain.CandleSeries{Symbol: "BTCUSDT", Interval: "1m"}, descriptors)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Results) != len(descriptors) {
		t.Fatalf("len(Results) = %d, want %d", len(result.Results), len(descriptors))
	}
	seen := make(map[string]int)
	for i, r := range result.Results {
		seen[r.StrategyID]++
		if r.Descriptor.Index != i {
			t.Errorf("Results[%d] is descriptor %d, want descriptor order", i, r.Descriptor.Index)
		}
	}
	for _, d := range descriptors {
		if seen[d.ID()] != 1 {
			t.Errorf("descriptor %d appears %d times", d.Index, seen[d.ID()])
		}
	}
	if len(result.Chunks) != 8 {
		t.Errorf("len(Chunks) = %d, want 8", len(result.Chunks))
	}
	if len(result.Affined) != 0 {
		t.Errorf("len(Affined) = %d, want 0", len(result.Affined))
	}
}

func TestOrchestrator_Run_DefaultFilter(t *testing.T) {
	descriptors := makeDescriptors(150)
	orch := New(Options{Evaluator: indexEvaluator(0), Workers: 4, Logger: quietLogger()})

	result, err := orch.Run(context.Background(), domain.CandleSeries{}, descriptors)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Index 101..149 have more than 100 closed trades
	if len(result.Affined) != 49 {
		t.Fatalf("len(Affined) = %d, want 49", len(result.Affined))
	}
	for _, r := range result.Affined {
		if r.TotalClosed <= DefaultMinTrades {
			t.Errorf("affined result with %d trades", r.TotalClosed)
		}
	}
	if len(result.Results) != 150 {
		t.Errorf("filter mutated Results: len = %d", len(result.Results))
	}
}

func TestOrchestrator_Run_Progress(t *testing.T) {
	sink := &recordingSink{}
	orch := New(Options{
		Evaluator:      indexEvaluator(2 * time.Millisecond),
		Workers:        4,
		ReportInterval: 5 * time.Millisecond,
		Sink:           sink,
		Logger:         quietLogger(),
	})

	_, err := orch.RunWithOptions(context.Background(), domain.CandleSeries{Symbol: "ETHUSDT", Interval: "5m"}, makeDescriptors(40), RunOptions{RunID: "run-1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snaps := sink.all()
	if len(snaps) == 0 {
		t.Fatal("no progress published")
	}

	last := snaps[len(snaps)-1]
	if !last.Done || last.Overall != 1 {
		t.Errorf("last snapshot = %+v, want done at 1.0", last)
	}
	if last.RunID != "run-1" || last.Symbol != "ETHUSDT" || last.Interval != "5m" {
		t.Errorf("labels not attached: %+v", last)
	}
	for _, f := range last.Workers {
		if f != 1 {
			t.Errorf("worker fraction = %v, want 1", f)
		}
	}

	prev := make([]float64, 4)
	prevOverall := 0.0
	for _, s := range snaps {
		if s.Overall < prevOverall {
			t.Errorf("overall progress decreased: %v -> %v", prevOverall, s.Overall)
		}
		prevOverall = s.Overall
		for w, f := range s.Workers {
			if f < prev[w] || f < 0 || f > 1 {
				t.Errorf("worker %d fraction %v after %v", w, f, prev[w])
			}
			prev[w] = f
		}
	}
}

func TestOrchestrator_Run_PanicFailsRun(t *testing.T) {
	var calls atomic.Int32
	eval := evaluator.Func(func(_ domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
		calls.Add(1)
		if d.Index == 17 {
			panic("boom")
		}
		return domain.StrategyResult{StrategyID: d.ID(), Descriptor: d}, nil
	})
	orch := New(Options{Evaluator: eval, Workers: 4, Logger: quietLogger()})

	result, err := orch.Run(context.Background(), domain.CandleSeries{}, makeDescriptors(40))
	if !errors.Is(err, ErrWorkerFailed) {
		t.Fatalf("Run() error = %v, want ErrWorkerFailed", err)
	}
	if result != nil {
		t.Errorf("Run() returned a partial result: %+v", result)
	}
}

func TestOrchestrator_Run_EvaluatorError(t *testing.T) {
	sentinel := errors.New("bad candle")
	eval := evaluator.Func(func(_ domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
		if d.Index == 3 {
			return domain.StrategyResult{}, sentinel
		}
		return domain.StrategyResult{StrategyID: d.ID(), Descriptor: d}, nil
	})
	orch := New(Options{Evaluator: eval, Workers: 2, Logger: quietLogger()})

	_, err := orch.Run(context.Background(), domain.CandleSeries{}, makeDescriptors(10))
	if !errors.Is(err, ErrWorkerFailed) || !errors.Is(err, sentinel) {
		t.Fatalf("Run() error = %v, want ErrWorkerFailed wrapping the evaluator error", err)
	}
}

func TestOrchestrator_Run_Empty(t *testing.T) {
	orch := New(Options{Evaluator: indexEvaluator(0), Logger: quietLogger()})

	result, err := orch.Run(context.Background(), domain.CandleSeries{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Results) != 0 || len(result.Chunks) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestOrchestrator_Run_IgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := New(Options{Evaluator: indexEvaluator(0), Workers: 3, Logger: quietLogger()})
	result, err := orch.Run(ctx, domain.CandleSeries{}, makeDescriptors(12))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Results) != 12 {
		t.Errorf("len(Results) = %d, want 12", len(result.Results))
	}
}

func TestApplyFilter_SubsetAndIdempotent(t *testing.T) {
	results := []domain.StrategyResult{
		{StrategyID: "a", TotalClosed: 50},
		{StrategyID: "b", TotalClosed: 101},
		{StrategyID: "c", TotalClosed: 100},
		{StrategyID: "d", TotalClosed: 250},
	}
	f := MinTradesFilter(100)

	once := ApplyFilter(results, f)
	twice := ApplyFilter(once, f)

	if len(once) != 2 || once[0].StrategyID != "b" || once[1].StrategyID != "d" {
		t.Fatalf("ApplyFilter() = %+v", once)
	}
	if len(twice) != len(once) {
		t.Fatalf("ApplyFilter not idempotent: %d != %d", len(twice), len(once))
	}
	for i := range once {
		if once[i].StrategyID != twice[i].StrategyID {
			t.Errorf("ApplyFilter not idempotent at %d", i)
		}
	}
	if len(results) != 4 || results[0].StrategyID != "a" {
		t.Error("ApplyFilter modified its input")
	}
	if all := ApplyFilter(results, nil); len(all) != 4 {
		t.Errorf("nil filter kept %d, want 4", len(all))
	}
}

func TestRankResults(t *testing.T) {
	results := []domain.StrategyResult{
		{StrategyID: "b", FinalMoney: 120},
		{StrategyID: "a", FinalMoney: 120},
		{StrategyID: "c", FinalMoney: 90},
		{StrategyID: "d", FinalMoney: 300},
	}
	ranked := RankResults(results)

	got := make([]string, len(ranked))
	for i, r := range ranked {
		got[i] = r.StrategyID
	}
	want := []string{"d", "a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RankResults() order = %v, want %v", got, want)
		}
	}
	if results[0].StrategyID != "b" {
		t.Error("RankResults modified its input")
	}
	if !sort.SliceIsSorted(ranked, func(i, j int) bool { return ranked[i].FinalMoney > ranked[j].FinalMoney }) {
		t.Error("ranking not sorted by final money")
	}
}
