// Package stub provides an in-memory market.Client for tests and offline runs.
package stub

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/market"
)

// ErrServerTime is returned by ServerTime when FailServerTime is set.
var ErrServerTime = errors.New("stub: server time unavailable")

// Client serves candles from memory.
type Client struct {
	mu             sync.Mutex
	now            int64
	candles        map[string][]domain.Candle // key: symbol-interval
	failServerTime bool
	failAfter      int // Klines calls allowed before failing; <0 never fails
	calls          []market.KlineRequest
}

// New creates a stub whose server clock reads now (Unix ms).
func New(now int64) *Client {
	return &Client{
		now:       now,
		candles:   make(map[string][]domain.Candle),
		failAfter: -1,
	}
}

// SetCandles installs the candles served for symbol/interval.
func (c *Client) SetCandles(symbol, interval string, candles []domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sorted := append([]domain.Candle(nil), candles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenTime < sorted[j].OpenTime })
	c.candles[domain.CacheKey(symbol, interval)] = sorted
}

// FailServerTime makes ServerTime return ErrServerTime.
func (c *Client) FailServerTime(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failServerTime = fail
}

// FailKlinesAfter makes every Klines call after the first n fail. n < 0 disables failures.
func (c *Client) FailKlinesAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAfter = n
}

// Calls returns the kline requests received so far.
func (c *Client) Calls() []market.KlineRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]market.KlineRequest(nil), c.calls...)
}

// ServerTime implements market.Client.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failServerTime {
		return 0, ErrServerTime
	}
	return c.now, nil
}

// Klines implements market.Client.
func (c *Client) Klines(ctx context.Context, req market.KlineRequest) ([]domain.Candle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failAfter >= 0 && len(c.calls) >= c.failAfter {
		c.calls = append(c.calls, req)
		return nil, errors.New("stub: klines unavailable")
	}
	c.calls = append(c.calls, req)

	end := req.EndTime
	if end == 0 {
		end = math.MaxInt64
	}
	var out []domain.Candle
	for _, k := range c.candles[domain.CacheKey(req.Symbol, req.Interval)] {
		if k.OpenTime < req.StartTime || k.OpenTime > end {
			continue
		}
		out = append(out, k)
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

// GenerateCandles builds n synthetic candles of the given step (ms) starting at
// start, oscillating so that chart patterns appear.
func GenerateCandles(start, step int64, n int) []domain.Candle {
	out := make([]domain.Candle, n)
	prev := 100.0
	for i := range out {
		price := 100 + 5*math.Sin(float64(i)/4) + 2*math.Sin(float64(i)/1.7)
		out[i] = domain.Candle{
			OpenTime:  start + int64(i)*step,
			CloseTime: start + int64(i+1)*step - 1,
			Open:      prev,
			High:      math.Max(prev, price) + 0.3,
			Low:       math.Min(prev, price) - 0.3,
			Close:     price,
			Volume:    1 + float64(i%7),
			Trades:    int64(10 + i%5),
		}
		prev = price
	}
	return out
}

// Ensure Client implements market.Client
var _ market.Client = (*Client)(nil)
