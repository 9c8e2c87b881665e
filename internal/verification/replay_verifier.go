package verification

import (
	"context"
	"errors"
	"fmt"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/evaluator"
	"candle-pattern-lab/internal/storage"
)

var (
	// ErrRunNotFound is returned when run ID doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrCandlesNotFound is returned when the run's candles are no longer cached.
	ErrCandlesNotFound = errors.New("candles not found")

	// ErrSeriesChanged is returned when the cached candles differ from the ones the run used.
	ErrSeriesChanged = errors.New("candle series changed since the run")
)

// ReplayVerifier implements Verifier interface.
type ReplayVerifier struct {
	results   storage.ResultStore
	candles   storage.CandleStore
	evaluator evaluator.Evaluator
	limit     int
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	ResultStore storage.ResultStore
	CandleStore storage.CandleStore
	Evaluator   evaluator.Evaluator
	Limit       int // verify only the best Limit results, 0 verifies all
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		results:   opts.ResultStore,
		candles:   opts.CandleStore,
		evaluator: opts.Evaluator,
		limit:     opts.Limit,
	}
}

// VerifyRun verifies the stored results of runID.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationReport, error) {
	// 1. Load stored run
	run, err := v.results.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	// 2. Load the candles and make sure they are the ones the run saw
	series, err := v.candles.Load(ctx, run.Symbol, run.Interval)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s %s", ErrCandlesNotFound, run.Symbol, run.Interval)
		}
		return nil, err
	}
	if fp := series.Fingerprint(); fp != run.SeriesFingerprint {
		return nil, fmt.Errorf("%w: stored %s, cached %s", ErrSeriesChanged, run.SeriesFingerprint, fp)
	}

	// 3. Load stored results
	stored, err := v.results.GetResults(ctx, run.RunID)
	if err != nil {
		return nil, err
	}
	if v.limit > 0 && len(stored) > v.limit {
		stored = stored[:v.limit]
	}

	report := &VerificationReport{
		RunID:             run.RunID,
		SeriesFingerprint: run.SeriesFingerprint,
		TotalResults:      len(stored),
		Results:           make([]VerificationResult, 0, len(stored)),
	}

	// 4. Replay and compare
	for _, res := range stored {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := v.verifyResult(series, res)
		report.Results = append(report.Results, result)
		if result.Match {
			report.MatchedResults++
		} else {
			report.DivergentResults++
		}
	}

	return report, nil
}

func (v *ReplayVerifier) verifyResult(series domain.CandleSeries, stored domain.StrategyResult) VerificationResult {
	replayed, err := v.evaluator.Evaluate(series, stored.Descriptor)
	if err != nil {
		// Record error as divergence
		return VerificationResult{
			StrategyID:       stored.StrategyID,
			StoredFinalMoney: stored.FinalMoney,
			Divergences: []FieldDivergence{
				{Field: "Error", Expected: nil, Actual: err.Error()},
			},
		}
	}

	divergences := CompareResults(stored, replayed)
	return VerificationResult{
		StrategyID:         stored.StrategyID,
		Match:              len(divergences) == 0,
		Divergences:        divergences,
		StoredFinalMoney:   stored.FinalMoney,
		ReplayedFinalMoney: replayed.FinalMoney,
	}
}

// Ensure ReplayVerifier implements Verifier
var _ Verifier = (*ReplayVerifier)(nil)
