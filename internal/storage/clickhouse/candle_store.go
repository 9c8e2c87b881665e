package clickhouse

import (
	"context"
	"fmt"
	"time"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/observability"
	"candle-pattern-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using the ClickHouse klines table.
//
// Every Save writes a new version of the history; reads only see the latest
// version of a (symbol, interval) pair, so a Save replaces what was there.
// Saving an empty history is a no-op.
type CandleStore struct {
	conn *Conn
	now  func() time.Time
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// Save writes candles as a new version of the symbol/interval history.
func (s *CandleStore) Save(ctx context.Context, symbol, interval string, candles []domain.Candle) (err error) {
	if symbol == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	series := domain.NewCandleSeries(domain.NormalizeSymbol(symbol), interval, candles)
	if series.Empty() {
		return nil
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "klines_insert", time.Since(start).Seconds(), err)
	}()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO klines (
			symbol, kline_interval, open_time, close_time,
			open, high, low, close, volume, trades, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := uint64(s.now().UnixNano())
	for _, c := range series.Candles {
		err = batch.Append(
			series.Symbol, series.Interval, c.OpenTime, c.CloseTime,
			c.Open, c.High, c.Low, c.Close, c.Volume, uint64(c.Trades), version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Load returns the latest version of the history. Returns ErrNotFound if nothing is stored.
func (s *CandleStore) Load(ctx context.Context, symbol, interval string) (series domain.CandleSeries, err error) {
	symbol = domain.NormalizeSymbol(symbol)

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "klines_select", time.Since(start).Seconds(), err)
	}()

	query := `
		SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM klines FINAL
		WHERE symbol = ? AND kline_interval = ?
		  AND version = (
			SELECT max(version) FROM klines
			WHERE symbol = ? AND kline_interval = ?
		  )
		ORDER BY open_time ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval, symbol, interval)
	if err != nil {
		return domain.CandleSeries{}, fmt.Errorf("query klines: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandles(rows)
	if err != nil {
		return domain.CandleSeries{}, err
	}
	if len(candles) == 0 {
		return domain.CandleSeries{}, storage.ErrNotFound
	}
	return domain.CandleSeries{Symbol: symbol, Interval: interval, Candles: candles}, nil
}

// List returns every stored history, ordered by symbol then interval.
func (s *CandleStore) List(ctx context.Context) ([]storage.SeriesInfo, error) {
	query := `
		SELECT symbol, kline_interval, count(), min(open_time), max(open_time)
		FROM klines FINAL
		WHERE (symbol, kline_interval, version) IN (
			SELECT symbol, kline_interval, max(version)
			FROM klines
			GROUP BY symbol, kline_interval
		)
		GROUP BY symbol, kline_interval
		ORDER BY symbol, kline_interval
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query klines summary: %w", err)
	}
	defer rows.Close()

	result := []storage.SeriesInfo{}
	for rows.Next() {
		var info storage.SeriesInfo
		var count uint64
		if err := rows.Scan(&info.Symbol, &info.Interval, &count, &info.FirstOpen, &info.LastOpen); err != nil {
			return nil, fmt.Errorf("scan klines summary row: %w", err)
		}
		info.Candles = int(count)
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate klines summary rows: %w", err)
	}
	return result, nil
}

// scanCandles scans multiple rows.
func scanCandles(rows rowScanner) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		var trades uint64

		err := rows.Scan(
			&c.OpenTime, &c.CloseTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &trades,
		)
		if err != nil {
			return nil, fmt.Errorf("scan kline row: %w", err)
		}

		c.Trades = int64(trades)
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kline rows: %w", err)
	}

	return candles, nil
}
