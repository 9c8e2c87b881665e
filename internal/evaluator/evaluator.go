// Package evaluator simulates a strategy descriptor over a candle series.
package evaluator

import (
	"errors"

	"candle-pattern-lab/internal/domain"
)

// ErrInvalidDescriptor is returned when a descriptor cannot be simulated.
var ErrInvalidDescriptor = errors.New("invalid strategy descriptor")

// Evaluator simulates one strategy over a candle series.
// Implementations must be safe for concurrent calls sharing the same series
// and must not modify the series.
type Evaluator interface {
	Evaluate(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func func(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error)

// Evaluate calls f(series, d).
func (f Func) Evaluate(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
	return f(series, d)
}

// Ensure Func implements Evaluator
var _ Evaluator = Func(nil)
