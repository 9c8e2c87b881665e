// Package verification re-runs stored strategy results against the cached
// candles and reports every field that no longer matches.
package verification

import (
	"context"
	"math"

	"candle-pattern-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single strategy result.
type VerificationResult struct {
	StrategyID         string
	Match              bool // true if all fields match
	Divergences        []FieldDivergence
	StoredFinalMoney   float64
	ReplayedFinalMoney float64
}

// VerificationReport contains results for one verified run.
type VerificationReport struct {
	RunID             string
	SeriesFingerprint string
	TotalResults      int // results verified
	MatchedResults    int
	DivergentResults  int
	Results           []VerificationResult
}

// Verifier verifies stored runs by replaying them.
type Verifier interface {
	// VerifyRun loads a stored run, re-evaluates the descriptors of its stored
	// results against the candles the run used and compares every outcome field.
	VerifyRun(ctx context.Context, runID string) (*VerificationReport, error)
}

// CompareResults compares two strategy results and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func CompareResults(stored, replayed domain.StrategyResult) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, expected, actual interface{}) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if stored.StrategyID != replayed.StrategyID {
		add("StrategyID", stored.StrategyID, replayed.StrategyID)
	}
	if stored.TotalClosed != replayed.TotalClosed {
		add("TotalClosed", stored.TotalClosed, replayed.TotalClosed)
	}
	if stored.Wins != replayed.Wins {
		add("Wins", stored.Wins, replayed.Wins)
	}
	if stored.Losses != replayed.Losses {
		add("Losses", stored.Losses, replayed.Losses)
	}
	if !floatEquals(stored.FinalMoney, replayed.FinalMoney) {
		add("FinalMoney", stored.FinalMoney, replayed.FinalMoney)
	}
	if !floatEquals(stored.MaxDrawdown, replayed.MaxDrawdown) {
		add("MaxDrawdown", stored.MaxDrawdown, replayed.MaxDrawdown)
	}

	// Result files without money evolution carry none; skip the comparison then.
	if len(stored.MoneyEvolution) > 0 {
		if len(stored.MoneyEvolution) != len(replayed.MoneyEvolution) {
			add("MoneyEvolution", len(stored.MoneyEvolution), len(replayed.MoneyEvolution))
		} else {
			for i := range stored.MoneyEvolution {
				if !floatEquals(stored.MoneyEvolution[i], replayed.MoneyEvolution[i]) {
					add("MoneyEvolution", stored.MoneyEvolution[i], replayed.MoneyEvolution[i])
					break
				}
			}
		}
	}

	return divergences
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
