package domain

import (
	"sort"

	"candle-pattern-lab/internal/idhash"
)

// Candle is one OHLC kline bucket.
// Corresponds to the klines table in ClickHouse and the JSON candle cache.
type Candle struct {
	OpenTime  int64   `json:"open_time"`  // bucket open, Unix ms
	CloseTime int64   `json:"close_time"` // bucket close, Unix ms
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"` // number of exchange trades in the bucket
}

// CandleSeries is the time-ascending candle history of one symbol/interval pair.
// A series is shared read-only by every worker of a backtest run and must
// never be modified after it has been built.
type CandleSeries struct {
	Symbol   string
	Interval string
	Candles  []Candle
}

// NewCandleSeries copies candles into a new series ordered by OpenTime.
// Candles sharing an OpenTime keep the last occurrence.
func NewCandleSeries(symbol, interval string, candles []Candle) CandleSeries {
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpenTime < out[j].OpenTime
	})

	deduped := out[:0]
	for _, c := range out {
		n := len(deduped)
		if n > 0 && deduped[n-1].OpenTime == c.OpenTime {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}

	return CandleSeries{
		Symbol:   symbol,
		Interval: interval,
		Candles:  deduped,
	}
}

// Len returns the number of candles in the series.
func (s CandleSeries) Len() int {
	return len(s.Candles)
}

// Empty reports whether the series holds no candles.
func (s CandleSeries) Empty() bool {
	return len(s.Candles) == 0
}

// Fingerprint identifies the series content by symbol, interval, length and
// first/last open times. Two runs over the same cached data share it.
func (s CandleSeries) Fingerprint() string {
	var first, last int64
	if n := len(s.Candles); n > 0 {
		first = s.Candles[0].OpenTime
		last = s.Candles[n-1].OpenTime
	}
	return idhash.ComputeSeriesFingerprint(s.Symbol, s.Interval, len(s.Candles), first, last)
}
