// Package download fetches kline histories from the exchange into the candle store.
package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/market"
	"candle-pattern-lab/internal/observability"
	"candle-pattern-lab/internal/storage"
)

// Download defaults.
const (
	DefaultBatches    = 100
	DefaultBatchLimit = market.MaxKlineLimit
	logEveryBatches   = 10
)

var (
	// ErrUnknownInterval is returned for interval strings that cannot be parsed.
	ErrUnknownInterval = errors.New("unknown kline interval")

	// ErrNoCandles is returned when the exchange returned no candle at all.
	ErrNoCandles = errors.New("no candles downloaded")
)

// Options configures a Service.
type Options struct {
	Client     market.Client
	Store      storage.CandleStore
	Batches    int // number of pages walked, default DefaultBatches
	BatchLimit int // candles per page, default DefaultBatchLimit
	Logger     logrus.FieldLogger
	Now        func() time.Time // local clock, used when the exchange clock is unavailable
}

// Service downloads kline histories page by page and replaces the cached history.
type Service struct {
	client     market.Client
	store      storage.CandleStore
	batches    int
	batchLimit int
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewService creates a download service.
func NewService(opts Options) *Service {
	batches := opts.Batches
	if batches <= 0 {
		batches = DefaultBatches
	}
	batchLimit := opts.BatchLimit
	if batchLimit <= 0 || batchLimit > market.MaxKlineLimit {
		batchLimit = DefaultBatchLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		client:     opts.Client,
		store:      opts.Store,
		batches:    batches,
		batchLimit: batchLimit,
		logger:     logger.WithField("component", "download"),
		now:        now,
	}
}

// Result contains statistics from one download.
type Result struct {
	Symbol     string
	Interval   string
	Candles    int   // candles stored after dedupe
	Batches    int   // pages fetched successfully
	Stopped    bool  // a page failed and the walk stopped early
	ServerTime int64 // Unix ms the walk was anchored on
	LocalClock bool  // ServerTime came from the local clock
	Duration   time.Duration
}

// Download walks Batches pages of BatchLimit candles, ending at the exchange
// clock, and replaces the cached history of symbol/interval with what it got.
// The walk stops at the first failed page; candles fetched before it are kept.
func (s *Service) Download(ctx context.Context, symbol, interval string) (*Result, error) {
	start := time.Now()
	symbol = domain.NormalizeSymbol(symbol)

	step, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{"symbol": symbol, "interval": interval})
	result := &Result{Symbol: symbol, Interval: interval}

	serverTime, err := s.client.ServerTime(ctx)
	if err != nil {
		serverTime = s.now().UnixMilli()
		result.LocalClock = true
		logger.WithError(err).Warn("server time unavailable, using local clock")
	} else {
		logger.WithField("server_time", serverTime).Debug("server time")
	}
	result.ServerTime = serverTime

	window := step.Milliseconds() * int64(s.batchLimit)
	from := serverTime - int64(s.batches)*window

	var candles []domain.Candle
	for i := 0; i < s.batches; i++ {
		req := market.KlineRequest{
			Symbol:    symbol,
			Interval:  interval,
			StartTime: from,
			EndTime:   from + window - 1,
			Limit:     s.batchLimit,
		}

		page, err := s.client.Klines(ctx, req)
		if err != nil {
			observability.RecordDownloadBatch("error", 0)
			logger.WithError(err).WithField("batch", i+1).Warn("kline request failed, stopping download")
			result.Stopped = true
			break
		}
		observability.RecordDownloadBatch("ok", len(page))

		candles = append(candles, page...)
		result.Batches++
		from += window

		if (i+1)%logEveryBatches == 0 {
			logger.Infof("Retrieved %d/%d batches of kline data", i+1, s.batches)
		}
	}

	if len(candles) == 0 {
		return result, fmt.Errorf("%w for %s-%s", ErrNoCandles, symbol, interval)
	}

	series := domain.NewCandleSeries(symbol, interval, candles)
	if err := s.store.Save(ctx, symbol, interval, series.Candles); err != nil {
		return result, fmt.Errorf("save candles: %w", err)
	}

	result.Candles = series.Len()
	result.Duration = time.Since(start)
	observability.RecordDownloadSuccess(s.now().Unix())

	logger.WithFields(logrus.Fields{
		"candles":  result.Candles,
		"batches":  result.Batches,
		"duration": result.Duration,
	}).Info("download complete")

	return result, nil
}

// Handle processes a queued download job.
func (s *Service) Handle(ctx context.Context, job domain.DownloadJob) error {
	s.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"symbol":   job.Symbol,
		"interval": job.Interval,
	}).Info("download job started")

	if _, err := s.Download(ctx, job.Symbol, job.Interval); err != nil {
		return fmt.Errorf("download %s-%s: %w", job.Symbol, job.Interval, err)
	}
	return nil
}
