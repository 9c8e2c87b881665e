// Package binance implements market.Client on top of the Binance REST API.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/market"
	"candle-pattern-lab/internal/observability"
)

// Options for creating Client.
type Options struct {
	Market    domain.MarketType // spot (default) or futures
	BaseURL   string            // overrides the exchange endpoint when set
	APIKey    string            // klines and server time are public; keys are optional
	SecretKey string
}

// Client is a market.Client backed by go-binance.
type Client struct {
	market  domain.MarketType
	spot    *gobinance.Client
	futures *futures.Client
}

// New creates a new Client.
func New(opts Options) *Client {
	c := &Client{market: opts.Market}
	if c.market == "" {
		c.market = domain.MarketSpot
	}

	if c.market == domain.MarketFutures {
		c.futures = futures.NewClient(opts.APIKey, opts.SecretKey)
		if opts.BaseURL != "" {
			c.futures.BaseURL = opts.BaseURL
		}
		return c
	}

	c.spot = gobinance.NewClient(opts.APIKey, opts.SecretKey)
	if opts.BaseURL != "" {
		c.spot.BaseURL = opts.BaseURL
	}
	return c
}

// ServerTime implements market.Client.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	start := time.Now()
	var (
		ts  int64
		err error
	)
	if c.futures != nil {
		ts, err = c.futures.NewServerTimeService().Do(ctx)
	} else {
		ts, err = c.spot.NewServerTimeService().Do(ctx)
	}
	observability.RecordExchangeLatency("server_time", time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("binance server time: %w", err)
	}
	return ts, nil
}

// Klines implements market.Client.
func (c *Client) Klines(ctx context.Context, req market.KlineRequest) ([]domain.Candle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		observability.RecordExchangeLatency("klines", time.Since(start).Seconds())
	}()

	if c.futures != nil {
		svc := c.futures.NewKlinesService().
			Symbol(req.Symbol).
			Interval(req.Interval).
			StartTime(req.StartTime).
			Limit(req.Limit)
		if req.EndTime > 0 {
			svc = svc.EndTime(req.EndTime)
		}
		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance futures klines %s-%s: %w", req.Symbol, req.Interval, err)
		}
		out := make([]domain.Candle, 0, len(klines))
		for _, k := range klines {
			candle, err := toCandle(k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.TradeNum)
			if err != nil {
				return nil, err
			}
			out = append(out, candle)
		}
		return out, nil
	}

	svc := c.spot.NewKlinesService().
		Symbol(req.Symbol).
		Interval(req.Interval).
		StartTime(req.StartTime).
		Limit(req.Limit)
	if req.EndTime > 0 {
		svc = svc.EndTime(req.EndTime)
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s-%s: %w", req.Symbol, req.Interval, err)
	}
	out := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := toCandle(k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close, k.Volume, k.TradeNum)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}
	return out, nil
}

// toCandle parses the decimal strings the exchange returns.
func toCandle(openTime, closeTime int64, open, high, low, closePrice, volume string, trades int64) (domain.Candle, error) {
	values := [5]float64{}
	for i, s := range [5]string{open, high, low, closePrice, volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parse kline %d field %d (%q): %w", openTime, i, s, err)
		}
		values[i] = v
	}
	return domain.Candle{
		OpenTime:  openTime,
		CloseTime: closeTime,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Trades:    trades,
	}, nil
}

// Ensure Client implements market.Client
var _ market.Client = (*Client)(nil)
