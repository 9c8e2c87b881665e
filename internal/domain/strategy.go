package domain

import (
	"fmt"

	"candle-pattern-lab/internal/idhash"
)

// StrategyDescriptor is one fully parameterized trading rule drawn from a sweep.
// Descriptors are values: they are created by the grid expander and never modified.
type StrategyDescriptor struct {
	Index      int           `json:"index"` // position in the expanded sequence
	Pattern    PatternFamily `json:"pattern"`
	Market     MarketType    `json:"market"`
	StartMoney float64       `json:"start_money"`

	// Swept parameters
	TakeProfit   float64 `json:"take_profit"`   // take-profit distance, in ATR multiples
	StopLoss     float64 `json:"stop_loss"`     // stop-loss distance, in ATR multiples
	Repetitions  int     `json:"repetitions"`   // consecutive candles confirming a breakout
	WindowSize   int     `json:"window_size"`   // candles scanned for the pattern
	RiskFraction float64 `json:"risk_fraction"` // share of current money risked per trade
}

// ID returns a deterministic identifier derived from every parameter of the
// descriptor. Index is excluded so that the same rule keeps its ID across sweeps.
func (d StrategyDescriptor) ID() string {
	return idhash.ComputeStrategyID(
		d.Pattern.String(),
		d.Market.String(),
		d.StartMoney,
		d.TakeProfit,
		d.StopLoss,
		d.Repetitions,
		d.WindowSize,
		d.RiskFraction,
	)
}

// Name returns a human readable label for the descriptor.
func (d StrategyDescriptor) Name() string {
	return fmt.Sprintf("%s-%s-tp%g-sl%g-r%d-w%d-k%g",
		d.Pattern, d.Market, d.TakeProfit, d.StopLoss, d.Repetitions, d.WindowSize, d.RiskFraction)
}

// StrategyMeta holds the fixed fields shared by every descriptor of one expansion.
type StrategyMeta struct {
	StartMoney float64
	Market     MarketType
	Pattern    PatternFamily
}
