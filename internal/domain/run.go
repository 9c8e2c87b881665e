package domain

import "time"

// Chunk is the contiguous slice of descriptors assigned to one worker.
type Chunk struct {
	Worker int // 0-based worker index
	Start  int // first descriptor index
	Len    int // number of descriptors, >= 1
}

// End returns the exclusive end index of the chunk.
func (c Chunk) End() int {
	return c.Start + c.Len
}

// ProgressSample reports how far one worker got through its chunk.
// Fractions reported by a worker are non-decreasing, in [0, 1].
type ProgressSample struct {
	Worker   int
	Fraction float64
}

// RunSummary describes a finished backtest run.
// Corresponds to the backtest_runs table in PostgreSQL.
type RunSummary struct {
	RunID             string        `json:"run_id"`
	Symbol            string        `json:"symbol"`
	Interval          string        `json:"interval"`
	SeriesFingerprint string        `json:"series_fingerprint"`
	Candles           int           `json:"candles"`
	Strategies        int           `json:"strategies"`
	Affined           int           `json:"affined"`
	Workers           int           `json:"workers"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	BestStrategyID    string        `json:"best_strategy_id,omitempty"`
	BestFinalMoney    float64       `json:"best_final_money,omitempty"`
	ResultFiles       []string      `json:"result_files,omitempty"`
}
