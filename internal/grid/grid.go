// Package grid expands a parameter sweep into the ordered list of strategy
// descriptors a backtest run evaluates.
package grid

import (
	"errors"
	"fmt"
	"math"

	"candle-pattern-lab/internal/domain"
)

// MaxDescriptors bounds the size of a single expansion.
const MaxDescriptors = 5_000_000

var (
	// ErrSweepTooLarge is returned when the expansion would exceed MaxDescriptors.
	ErrSweepTooLarge = errors.New("sweep too large")
	// ErrInvalidMeta is returned when the fixed strategy fields are invalid.
	ErrInvalidMeta = errors.New("invalid strategy meta")
)

// Count returns the number of descriptors Expand produces for one pattern,
// without allocating them. The sweep must be valid.
func Count(sweep domain.StrategySweep) int {
	return sweep.TakeProfit.Len() *
		sweep.StopLoss.Len() *
		sweep.Repetitions.Len() *
		sweep.WindowSize.Len() *
		sweep.RiskFraction.Len()
}

// approxCount computes the expansion size in floating point so that absurd
// sweeps are rejected before any integer conversion can overflow.
func approxCount(sweep domain.StrategySweep) float64 {
	size := func(lo, hi, step float64) float64 {
		return math.Floor((hi-lo)/step) + 1
	}
	return size(sweep.TakeProfit.Min, sweep.TakeProfit.Max, sweep.TakeProfit.Step) *
		size(sweep.StopLoss.Min, sweep.StopLoss.Max, sweep.StopLoss.Step) *
		size(float64(sweep.Repetitions.Min), float64(sweep.Repetitions.Max), float64(sweep.Repetitions.Step)) *
		size(float64(sweep.WindowSize.Min), float64(sweep.WindowSize.Max), float64(sweep.WindowSize.Step)) *
		size(sweep.RiskFraction.Min, sweep.RiskFraction.Max, sweep.RiskFraction.Step)
}

// Expand returns every combination of the sweep ranges for a single pattern.
// Order is take-profit, stop-loss, repetitions, window, risk (outermost to innermost).
// Descriptor indexes are 0..n-1 in that order.
func Expand(sweep domain.StrategySweep, meta domain.StrategyMeta) ([]domain.StrategyDescriptor, error) {
	return ExpandPatterns(sweep, meta.Market, meta.StartMoney, meta.Pattern)
}

// ExpandPatterns expands the sweep once per pattern, pattern being the outermost
// dimension. Indexes run continuously across patterns.
func ExpandPatterns(sweep domain.StrategySweep, market domain.MarketType, startMoney float64, patterns ...domain.PatternFamily) ([]domain.StrategyDescriptor, error) {
	if err := sweep.Validate(); err != nil {
		return nil, err
	}
	if !market.IsValid() {
		return nil, fmt.Errorf("%w: market %q", ErrInvalidMeta, market)
	}
	if !(startMoney > 0) {
		return nil, fmt.Errorf("%w: start money must be > 0, got %v", ErrInvalidMeta, startMoney)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: no pattern", ErrInvalidMeta)
	}
	for _, p := range patterns {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: pattern %q", ErrInvalidMeta, p)
		}
	}

	if approx := approxCount(sweep) * float64(len(patterns)); approx > MaxDescriptors {
		return nil, fmt.Errorf("%w: ~%.0f descriptors (max %d)", ErrSweepTooLarge, approx, MaxDescriptors)
	}
	total := Count(sweep) * len(patterns)

	tps := sweep.TakeProfit.Values()
	sls := sweep.StopLoss.Values()
	reps := sweep.Repetitions.Values()
	windows := sweep.WindowSize.Values()
	risks := sweep.RiskFraction.Values()

	out := make([]domain.StrategyDescriptor, 0, total)
	for _, pattern := range patterns {
		for _, tp := range tps {
			for _, sl := range sls {
				for _, rep := range reps {
					for _, window := range windows {
						for _, risk := range risks {
							out = append(out, domain.StrategyDescriptor{
								Index:        len(out),
								Pattern:      pattern,
								Market:       market,
								StartMoney:   startMoney,
								TakeProfit:   tp,
								StopLoss:     sl,
								Repetitions:  rep,
								WindowSize:   window,
								RiskFraction: risk,
							})
						}
					}
				}
			}
		}
	}
	return out, nil
}
