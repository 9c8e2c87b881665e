package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/observability"
	"candle-pattern-lab/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *Pool
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

const insertResultQuery = `
	INSERT INTO strategy_results (
		run_id, rank, strategy_id, descriptor,
		total_closed, wins, losses, final_money, max_drawdown, money_evolution
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9, $10
	)
`

const runColumns = `
	run_id, symbol, kline_interval, series_fingerprint,
	candles, strategies, affined, workers,
	started_at, duration_ms, best_strategy_id, best_final_money, result_files
`

// InsertRun stores a run and its results atomically.
// Fails entirely on a duplicate run_id or a duplicate strategy_id within results.
func (s *ResultStore) InsertRun(ctx context.Context, run *domain.RunSummary, results []domain.StrategyResult) (err error) {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "insert_run", time.Since(start).Seconds(), err)
	}()

	resultFiles := run.ResultFiles
	if resultFiles == nil {
		resultFiles = []string{}
	}

	rows := make([][]any, 0, len(results))
	for i, r := range results {
		if r.StrategyID == "" {
			return storage.ErrInvalidInput
		}
		descriptor, err := json.Marshal(r.Descriptor)
		if err != nil {
			return fmt.Errorf("marshal descriptor %s: %w", r.StrategyID, err)
		}
		evolution := r.MoneyEvolution
		if evolution == nil {
			evolution = []float64{}
		}
		rows = append(rows, []any{
			run.RunID, i, r.StrategyID, descriptor,
			r.TotalClosed, r.Wins, r.Losses, r.FinalMoney, r.MaxDrawdown, evolution,
		})
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO backtest_runs (`+runColumns+`) VALUES (
				$1, $2, $3, $4,
				$5, $6, $7, $8,
				$9, $10, $11, $12, $13
			)
		`,
			run.RunID, run.Symbol, run.Interval, run.SeriesFingerprint,
			run.Candles, run.Strategies, run.Affined, run.Workers,
			run.StartedAt.UTC(), run.Duration.Milliseconds(), run.BestStrategyID, run.BestFinalMoney, resultFiles,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert backtest run: %w", err)
		}

		// One round trip for every result row; a duplicate strategy_id aborts the tx.
		batch := &pgx.Batch{}
		for _, args := range rows {
			batch.Queue(insertResultQuery, args...)
		}
		br := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				if isForeignKeyError(err) {
					return fmt.Errorf("%w: run %s", storage.ErrNotFound, run.RunID)
				}
				return fmt.Errorf("insert strategy result: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close result batch: %w", err)
		}
		return nil
	})
}

// GetRun retrieves a run by ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetRun(ctx context.Context, runID string) (*domain.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE run_id = $1`

	row := s.pool.QueryRow(ctx, query, runID)
	run, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest run by id: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs for symbol/interval, newest first.
// Empty symbol or interval match everything; limit <= 0 means no limit.
func (s *ResultStore) ListRuns(ctx context.Context, symbol, interval string, limit int) ([]*domain.RunSummary, error) {
	if symbol != "" {
		symbol = domain.NormalizeSymbol(symbol)
	}

	query := `
		SELECT ` + runColumns + `
		FROM backtest_runs
		WHERE ($1 = '' OR symbol = $1)
		  AND ($2 = '' OR kline_interval = $2)
		ORDER BY started_at DESC, run_id ASC
	`
	args := []any{symbol, interval}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backtest runs: %w", err)
	}
	defer rows.Close()

	var result []*domain.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run row: %w", err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest run rows: %w", err)
	}
	return result, nil
}

// GetResults retrieves the results of a run ranked by final money DESC, strategy_id ASC.
// Returns ErrNotFound if the run does not exist.
func (s *ResultStore) GetResults(ctx context.Context, runID string) (_ []domain.StrategyResult, err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "get_results", time.Since(start).Seconds(), err)
	}()

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM backtest_runs WHERE run_id = $1)`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check backtest run: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	query := `
		SELECT strategy_id, descriptor, total_closed, wins, losses, final_money, max_drawdown, money_evolution
		FROM strategy_results
		WHERE run_id = $1
		ORDER BY final_money DESC, strategy_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get strategy results: %w", err)
	}
	defer rows.Close()

	result := []domain.StrategyResult{}
	for rows.Next() {
		var r domain.StrategyResult
		var descriptor []byte
		err := rows.Scan(
			&r.StrategyID, &descriptor,
			&r.TotalClosed, &r.Wins, &r.Losses, &r.FinalMoney, &r.MaxDrawdown, &r.MoneyEvolution,
		)
		if err != nil {
			return nil, fmt.Errorf("scan strategy result row: %w", err)
		}
		if err := json.Unmarshal(descriptor, &r.Descriptor); err != nil {
			return nil, fmt.Errorf("unmarshal descriptor %s: %w", r.StrategyID, err)
		}
		if len(r.MoneyEvolution) == 0 {
			r.MoneyEvolution = nil
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy result rows: %w", err)
	}
	return result, nil
}

// scanRun scans a single backtest_runs row.
func scanRun(row pgx.Row) (*domain.RunSummary, error) {
	var run domain.RunSummary
	var durationMs int64

	err := row.Scan(
		&run.RunID, &run.Symbol, &run.Interval, &run.SeriesFingerprint,
		&run.Candles, &run.Strategies, &run.Affined, &run.Workers,
		&run.StartedAt, &durationMs, &run.BestStrategyID, &run.BestFinalMoney, &run.ResultFiles,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = run.StartedAt.UTC()
	run.Duration = time.Duration(durationMs) * time.Millisecond
	if len(run.ResultFiles) == 0 {
		run.ResultFiles = nil
	}
	return &run, nil
}
