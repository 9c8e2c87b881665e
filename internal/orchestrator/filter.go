package orchestrator

import (
	"sort"

	"candle-pattern-lab/internal/domain"
)

// DefaultMinTrades is the closed-trade threshold of the default run filter.
const DefaultMinTrades = 100

// Filter decides whether a result is kept in the affined set.
type Filter func(domain.StrategyResult) bool

// MinTradesFilter keeps results with strictly more than min closed trades.
func MinTradesFilter(min int) Filter {
	return func(r domain.StrategyResult) bool {
		return r.TotalClosed > min
	}
}

// ApplyFilter returns the results accepted by f, in input order.
// The input slice is not modified. A nil filter keeps everything.
func ApplyFilter(results []domain.StrategyResult, f Filter) []domain.StrategyResult {
	out := make([]domain.StrategyResult, 0, len(results))
	for _, r := range results {
		if f == nil || f(r) {
			out = append(out, r)
		}
	}
	return out
}

// RankResults returns a copy of results ordered by final money descending,
// ties broken by strategy ID.
func RankResults(results []domain.StrategyResult) []domain.StrategyResult {
	out := make([]domain.StrategyResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalMoney != out[j].FinalMoney {
			return out[i].FinalMoney > out[j].FinalMoney
		}
		return out[i].StrategyID < out[j].StrategyID
	})
	return out
}
