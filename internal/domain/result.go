package domain

// StrategyResult is the outcome of simulating one descriptor over a candle series.
// Corresponds to the strategy_results table in PostgreSQL and the result JSON files.
type StrategyResult struct {
	StrategyID string             `json:"strategy_id" csv:"strategy_id"`
	Descriptor StrategyDescriptor `json:"strategy" csv:"-"`

	// Outcome
	TotalClosed int     `json:"total_closed" csv:"total_closed"` // closed trades
	Wins        int     `json:"wins" csv:"wins"`
	Losses      int     `json:"losses" csv:"losses"`
	FinalMoney  float64 `json:"final_money" csv:"final_money"`
	MaxDrawdown float64 `json:"max_drawdown" csv:"max_drawdown"` // fraction of peak money, 0..1

	// MoneyEvolution is the money after each closed trade, starting with StartMoney.
	MoneyEvolution []float64 `json:"money_evolution,omitempty" csv:"-"`
}

// WinRate returns Wins / TotalClosed, or 0 when nothing was closed.
func (r StrategyResult) WinRate() float64 {
	if r.TotalClosed == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.TotalClosed)
}

// ReturnPct returns the final money relative to the start money, in percent.
func (r StrategyResult) ReturnPct() float64 {
	if r.Descriptor.StartMoney == 0 {
		return 0
	}
	return (r.FinalMoney - r.Descriptor.StartMoney) / r.Descriptor.StartMoney * 100
}

// WithoutMoneyEvolution returns a copy of r with the equity sequence dropped.
func (r StrategyResult) WithoutMoneyEvolution() StrategyResult {
	r.MoneyEvolution = nil
	return r
}

// StripMoneyEvolution returns copies of results without their equity sequences.
// The input slice is not modified.
func StripMoneyEvolution(results []StrategyResult) []StrategyResult {
	out := make([]StrategyResult, len(results))
	for i, r := range results {
		out[i] = r.WithoutMoneyEvolution()
	}
	return out
}
