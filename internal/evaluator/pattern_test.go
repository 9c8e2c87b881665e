package evaluator

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"candle-pattern-lab/internal/domain"
)

// wCloses draws a double bottom whose neckline breaks at index 13.
var wCloses = []float64{100, 100, 100, 100, 100, 98, 96, 98, 100, 98, 96, 98, 100, 102}

func makeSeries(closes []float64) domain.CandleSeries {
	candles := make([]domain.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		candles[i] = domain.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i+1)*60_000 - 1,
			Open:      prev,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    10,
		}
		prev = c
	}
	return domain.NewCandleSeries("BTCUSDT", "1m", candles)
}

func mirror(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i, c := range closes {
		out[i] = 200 - c
	}
	return out
}

func testEvaluator() *PatternEvaluator {
	e := NewPatternEvaluator()
	e.ATRPeriod = 3
	return e
}

func descriptor(pattern domain.PatternFamily, market domain.MarketType) domain.StrategyDescriptor {
	return domain.StrategyDescriptor{
		Pattern:      pattern,
		Market:       market,
		StartMoney:   100,
		TakeProfit:   1,
		StopLoss:     1,
		Repetitions:  1,
		WindowSize:   10,
		RiskFraction: 1,
	}
}

func TestPatternEvaluator_WTakeProfit(t *testing.T) {
	series := makeSeries(append(append([]float64{}, wCloses...), 106))

	got, trades, err := testEvaluator().Simulate(series, descriptor(domain.PatternW, domain.MarketSpot))
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if got.TotalClosed != 1 || got.Wins != 1 || got.Losses != 0 {
		t.Fatalf("closed=%d wins=%d losses=%d, want 1/1/0", got.TotalClosed, got.Wins, got.Losses)
	}
	if len(trades) != 1 || trades[0].EntryIndex != 13 || trades[0].ExitReason != ExitReasonTakeProfit {
		t.Fatalf("unexpected trades %+v", trades)
	}
	if !trades[0].Long {
		t.Error("W trade should be long")
	}
	if got.FinalMoney <= 100 {
		t.Errorf("FinalMoney = %v, want > 100", got.FinalMoney)
	}
	if len(got.MoneyEvolution) != 2 || got.MoneyEvolution[0] != 100 || got.MoneyEvolution[1] != got.FinalMoney {
		t.Errorf("MoneyEvolution = %v", got.MoneyEvolution)
	}
	// spot notional is capped at the current money
	if notional := trades[0].Quantity * trades[0].EntryPrice; notional > 100+1e-9 {
		t.Errorf("spot notional = %v, want <= 100", notional)
	}
}

func TestPatternEvaluator_WStopLoss(t *testing.T) {
	series := makeSeries(append(append([]float64{}, wCloses...), 96))

	got, trades, err := testEvaluator().Simulate(series, descriptor(domain.PatternW, domain.MarketSpot))
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if got.TotalClosed != 1 || got.Losses != 1 {
		t.Fatalf("closed=%d losses=%d, want 1/1", got.TotalClosed, got.Losses)
	}
	if trades[0].ExitReason != ExitReasonStopLoss {
		t.Errorf("ExitReason = %s, want %s", trades[0].ExitReason, ExitReasonStopLoss)
	}
	if got.FinalMoney >= 100 {
		t.Errorf("FinalMoney = %v, want < 100", got.FinalMoney)
	}
	if got.MaxDrawdown <= 0 {
		t.Errorf("MaxDrawdown = %v, want > 0", got.MaxDrawdown)
	}
}

func TestPatternEvaluator_MShortFutures(t *testing.T) {
	series := makeSeries(mirror(append(append([]float64{}, wCloses...), 106)))

	got, trades, err := testEvaluator().Simulate(series, descriptor(domain.PatternM, domain.MarketFutures))
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if got.TotalClosed != 1 || got.Wins != 1 {
		t.Fatalf("closed=%d wins=%d, want 1/1", got.TotalClosed, got.Wins)
	}
	if trades[0].Long {
		t.Error("M trade should be short")
	}
	if notional := trades[0].Quantity * trades[0].EntryPrice; notional > 100*DefaultMaxLeverage+1e-9 {
		t.Errorf("futures notional = %v, want <= %v", notional, 100*DefaultMaxLeverage)
	}
}

func TestPatternEvaluator_OpenPositionNotCounted(t *testing.T) {
	series := makeSeries(wCloses)

	got, err := testEvaluator().Evaluate(series, descriptor(domain.PatternW, domain.MarketSpot))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got.TotalClosed != 0 || got.FinalMoney != 100 {
		t.Errorf("closed=%d final=%v, want 0/100", got.TotalClosed, got.FinalMoney)
	}
}

func TestPatternEvaluator_FlatSeries(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100
	}
	d := descriptor(domain.PatternW, domain.MarketSpot)

	got, err := testEvaluator().Evaluate(makeSeries(closes), d)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got.TotalClosed != 0 {
		t.Errorf("TotalClosed = %d, want 0", got.TotalClosed)
	}
	if got.StrategyID != d.ID() {
		t.Errorf("StrategyID = %s, want %s", got.StrategyID, d.ID())
	}
	if !reflect.DeepEqual(got.MoneyEvolution, []float64{100}) {
		t.Errorf("MoneyEvolution = %v, want [100]", got.MoneyEvolution)
	}
}

func TestPatternEvaluator_ShortSeries(t *testing.T) {
	got, err := testEvaluator().Evaluate(makeSeries([]float64{100, 101}), descriptor(domain.PatternW, domain.MarketSpot))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got.TotalClosed != 0 || got.FinalMoney != 100 {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestPatternEvaluator_InvalidDescriptor(t *testing.T) {
	bad := []domain.StrategyDescriptor{}
	for _, mutate := range []func(*domain.StrategyDescriptor){
		func(d *domain.StrategyDescriptor) { d.Pattern = "X" },
		func(d *domain.StrategyDescriptor) { d.Market = "margin" },
		func(d *domain.StrategyDescriptor) { d.StartMoney = 0 },
		func(d *domain.StrategyDescriptor) { d.TakeProfit = 0 },
		func(d *domain.StrategyDescriptor) { d.Repetitions = 0 },
		func(d *domain.StrategyDescriptor) { d.WindowSize = 2 },
		func(d *domain.StrategyDescriptor) { d.RiskFraction = 1.5 },
	} {
		d := descriptor(domain.PatternW, domain.MarketSpot)
		mutate(&d)
		bad = append(bad, d)
	}

	for _, d := range bad {
		if _, err := testEvaluator().Evaluate(makeSeries(wCloses), d); !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("Evaluate(%+v) error = %v, want ErrInvalidDescriptor", d, err)
		}
	}
}

func TestPatternEvaluator_ConcurrentSameSeries(t *testing.T) {
	series := makeSeries(append(append([]float64{}, wCloses...), 106))
	snapshot := append([]domain.Candle(nil), series.Candles...)
	e := testEvaluator()
	d := descriptor(domain.PatternW, domain.MarketSpot)

	want, err := e.Evaluate(series, d)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	var wg sync.WaitGroup
	results := make([]domain.StrategyResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = e.Evaluate(series, d)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if !reflect.DeepEqual(got, want) {
			t.Errorf("results[%d] = %+v, want %+v", i, got, want)
		}
	}
	if !reflect.DeepEqual(series.Candles, snapshot) {
		t.Error("series was modified")
	}
}

func TestFunc(t *testing.T) {
	var called bool
	f := Func(func(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
		called = true
		return domain.StrategyResult{StrategyID: d.ID()}, nil
	})
	if _, err := f.Evaluate(domain.CandleSeries{}, descriptor(domain.PatternW, domain.MarketSpot)); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !called {
		t.Error("Func was not called")
	}
}
