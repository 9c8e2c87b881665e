package storage

import (
	"context"
	"errors"

	"candle-pattern-lab/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateKey is returned by ResultStore.InsertRun for a run ID that is
	// already stored. Runs are never updated in place.
	ErrDuplicateKey = errors.New("duplicate key")
)

// SeriesInfo describes one stored candle history.
type SeriesInfo struct {
	Symbol    string `json:"symbol"`
	Interval  string `json:"interval"`
	Candles   int    `json:"candles"`
	FirstOpen int64  `json:"first_open"` // Unix ms
	LastOpen  int64  `json:"last_open"`  // Unix ms
}

// CandleStore provides access to cached candle histories keyed by (symbol, interval).
type CandleStore interface {
	// Save replaces the stored history of symbol/interval with candles.
	// Candles are stored ascending by open time, one per open time.
	Save(ctx context.Context, symbol, interval string, candles []domain.Candle) error

	// Load returns the stored history. Returns ErrNotFound if nothing is stored.
	Load(ctx context.Context, symbol, interval string) (domain.CandleSeries, error)

	// List returns every stored history, ordered by symbol then interval.
	List(ctx context.Context) ([]SeriesInfo, error)
}

// ResultStore provides access to backtest_runs and strategy_results storage.
type ResultStore interface {
	// InsertRun stores a run and its results atomically.
	// Returns ErrDuplicateKey if run_id exists.
	InsertRun(ctx context.Context, run *domain.RunSummary, results []domain.StrategyResult) error

	// GetRun retrieves a run by ID. Returns ErrNotFound if not exists.
	GetRun(ctx context.Context, runID string) (*domain.RunSummary, error)

	// ListRuns retrieves runs for symbol/interval, newest first.
	// Empty symbol or interval match everything.
	ListRuns(ctx context.Context, symbol, interval string, limit int) ([]*domain.RunSummary, error)

	// GetResults retrieves the results of a run ranked by final money DESC, strategy_id ASC.
	GetResults(ctx context.Context, runID string) ([]domain.StrategyResult, error)
}
