package domain

import (
	"time"

	"github.com/google/uuid"
)

// DownloadJob asks for the candle history of one symbol/interval to be fetched and cached.
type DownloadJob struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewDownloadJob creates a DownloadJob with a fresh ID and a normalized symbol.
func NewDownloadJob(symbol, interval string) DownloadJob {
	return DownloadJob{
		ID:         uuid.NewString(),
		Symbol:     NormalizeSymbol(symbol),
		Interval:   interval,
		EnqueuedAt: time.Now().UTC(),
	}
}

// BacktestJob asks for a sweep to be run against cached candles.
type BacktestJob struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Interval   string          `json:"interval"`
	Sweep      StrategySweep   `json:"sweep"`
	Patterns   []PatternFamily `json:"patterns"`
	Market     MarketType      `json:"market"`
	StartMoney float64         `json:"start_money"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewBacktestJob creates a BacktestJob with a fresh ID and a normalized symbol.
// The pattern slice is copied.
func NewBacktestJob(symbol, interval string, sweep StrategySweep, market MarketType, startMoney float64, patterns ...PatternFamily) BacktestJob {
	return BacktestJob{
		ID:         uuid.NewString(),
		Symbol:     NormalizeSymbol(symbol),
		Interval:   interval,
		Sweep:      sweep,
		Patterns:   append([]PatternFamily(nil), patterns...),
		Market:     market,
		StartMoney: startMoney,
		EnqueuedAt: time.Now().UTC(),
	}
}
