// Package market defines the exchange market-data contract used by downloads.
package market

import (
	"context"
	"errors"

	"candle-pattern-lab/internal/domain"
)

// ErrInvalidRequest is returned for kline requests that cannot be sent.
var ErrInvalidRequest = errors.New("invalid kline request")

// MaxKlineLimit is the largest page the exchange serves per kline request.
const MaxKlineLimit = 1000

// KlineRequest selects one page of klines.
type KlineRequest struct {
	Symbol    string
	Interval  string
	StartTime int64 // Unix ms, inclusive
	EndTime   int64 // Unix ms, inclusive; 0 means open-ended
	Limit     int
}

// Validate checks the request fields.
func (r KlineRequest) Validate() error {
	switch {
	case r.Symbol == "":
		return errors.Join(ErrInvalidRequest, errors.New("symbol is required"))
	case r.Interval == "":
		return errors.Join(ErrInvalidRequest, errors.New("interval is required"))
	case r.Limit <= 0 || r.Limit > MaxKlineLimit:
		return errors.Join(ErrInvalidRequest, errors.New("limit out of range"))
	case r.EndTime != 0 && r.EndTime < r.StartTime:
		return errors.Join(ErrInvalidRequest, errors.New("end before start"))
	}
	return nil
}

// Client provides exchange time and historical klines.
type Client interface {
	// ServerTime returns the exchange clock, Unix ms.
	ServerTime(ctx context.Context) (int64, error)

	// Klines returns one page of candles, ascending by open time.
	Klines(ctx context.Context, req KlineRequest) ([]domain.Candle, error)
}
