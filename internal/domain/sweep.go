package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRange is returned when a sweep range cannot be expanded.
var ErrInvalidRange = errors.New("invalid sweep range")

// rangeEpsilon absorbs float error when counting steps, so that 0.2..2 step 0.2
// yields ten values instead of nine.
const rangeEpsilon = 1e-9

// Number is the set of types a sweep range can iterate over.
type Number interface {
	~int | ~float64
}

// Range is an inclusive numeric range walked with a fixed step.
type Range[T Number] struct {
	Min  T `json:"min" toml:"min"`
	Max  T `json:"max" toml:"max"`
	Step T `json:"step" toml:"step"`
}

// NewRange builds a Range.
func NewRange[T Number](min, max, step T) Range[T] {
	return Range[T]{Min: min, Max: max, Step: step}
}

// Validate checks Step > 0 and Min <= Max.
func (r Range[T]) Validate() error {
	lo, hi, step := float64(r.Min), float64(r.Max), float64(r.Step)
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsNaN(step) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return fmt.Errorf("%w: non-finite bound", ErrInvalidRange)
	}
	if !(step > 0) {
		return fmt.Errorf("%w: step must be > 0, got %v", ErrInvalidRange, r.Step)
	}
	if lo > hi {
		return fmt.Errorf("%w: min %v > max %v", ErrInvalidRange, r.Min, r.Max)
	}
	return nil
}

// Len returns the number of values in the range. The range must be valid.
func (r Range[T]) Len() int {
	span := (float64(r.Max) - float64(r.Min)) / float64(r.Step)
	return int(math.Floor(span+rangeEpsilon)) + 1
}

// Values returns Min, Min+Step, ... up to Max. Values are computed by index so
// float steps never accumulate error. The range must be valid.
func (r Range[T]) Values() []T {
	n := r.Len()
	out := make([]T, n)
	for i := range out {
		v := r.Min + T(i)*r.Step
		if v > r.Max {
			v = r.Max
		}
		out[i] = v
	}
	return out
}

// StrategySweep declares the parameter grid of a backtest.
type StrategySweep struct {
	TakeProfit   Range[float64] `json:"take_profit" toml:"take_profit"`
	StopLoss     Range[float64] `json:"stop_loss" toml:"stop_loss"`
	Repetitions  Range[int]     `json:"repetitions" toml:"repetitions"`
	WindowSize   Range[int]     `json:"window_size" toml:"window_size"`
	RiskFraction Range[float64] `json:"risk_fraction" toml:"risk_fraction"`
}

// Validate checks every range of the sweep, naming the first invalid one.
func (s StrategySweep) Validate() error {
	checks := []struct {
		name string
		err  error
	}{
		{"take_profit", s.TakeProfit.Validate()},
		{"stop_loss", s.StopLoss.Validate()},
		{"repetitions", s.Repetitions.Validate()},
		{"window_size", s.WindowSize.Validate()},
		{"risk_fraction", s.RiskFraction.Validate()},
	}
	for _, c := range checks {
		if c.err != nil {
			return fmt.Errorf("%s: %w", c.name, c.err)
		}
	}
	return nil
}

// DefaultSweep returns the grid historically used for W/M pattern tests.
func DefaultSweep() StrategySweep {
	return StrategySweep{
		TakeProfit:   NewRange(0.5, 4.0, 1.0),
		StopLoss:     NewRange(0.2, 2.0, 0.2),
		Repetitions:  NewRange(1, 1, 1),
		WindowSize:   NewRange(10, 30, 5),
		RiskFraction: NewRange(1.0, 1.0, 1.0),
	}
}
