package download

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/market/stub"
	"candle-pattern-lab/internal/storage"
	"candle-pattern-lab/internal/storage/memory"
)

const testNow = int64(1_700_000_000_000)

// newTestService serves 3 pages of 10 one-minute candles ending at testNow.
func newTestService(t *testing.T) (*Service, *stub.Client, *memory.CandleStore) {
	t.Helper()

	client := stub.New(testNow)
	from := testNow - 3*10*int64(time.Minute/time.Millisecond)
	client.SetCandles("BTCUSDT", "1m", stub.GenerateCandles(from, int64(time.Minute/time.Millisecond), 30))

	store := memory.NewCandleStore()
	logger, _ := test.NewNullLogger()
	svc := NewService(Options{
		Client:     client,
		Store:      store,
		Batches:    3,
		BatchLimit: 10,
		Logger:     logger,
		Now:        func() time.Time { return time.UnixMilli(testNow) },
	})
	return svc, client, store
}

func TestDownload_AllBatches(t *testing.T) {
	svc, client, store := newTestService(t)
	ctx := context.Background()

	result, err := svc.Download(ctx, "btcusdt", "1m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Candles != 30 || result.Batches != 3 || result.Stopped {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.LocalClock {
		t.Error("expected exchange clock to be used")
	}

	calls := client.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 kline requests, got %d", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		if calls[i].StartTime != calls[i-1].EndTime+1 {
			t.Errorf("request %d does not continue request %d: %+v %+v", i, i-1, calls[i-1], calls[i])
		}
	}
	if calls[2].EndTime != testNow-1 {
		t.Errorf("last window should end at server time, got %d", calls[2].EndTime)
	}

	series, err := store.Load(ctx, "BTCUSDT", "1m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if series.Len() != 30 {
		t.Errorf("expected 30 stored candles, got %d", series.Len())
	}
}

func TestDownload_ServerTimeFallback(t *testing.T) {
	svc, client, _ := newTestService(t)
	client.FailServerTime(true)

	result, err := svc.Download(context.Background(), "BTCUSDT", "1m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.LocalClock {
		t.Error("expected local clock fallback")
	}
	if result.ServerTime != testNow {
		t.Errorf("expected anchor %d, got %d", testNow, result.ServerTime)
	}
	if result.Candles != 30 {
		t.Errorf("expected 30 candles, got %d", result.Candles)
	}
}

func TestDownload_StopsAtFirstFailedBatch(t *testing.T) {
	svc, client, store := newTestService(t)
	client.FailKlinesAfter(2)

	result, err := svc.Download(context.Background(), "BTCUSDT", "1m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Stopped || result.Batches != 2 || result.Candles != 20 {
		t.Errorf("unexpected result: %+v", result)
	}
	if n := len(client.Calls()); n != 3 {
		t.Errorf("expected walk to stop after the failed request, got %d requests", n)
	}

	series, _ := store.Load(context.Background(), "BTCUSDT", "1m")
	if series.Len() != 20 {
		t.Errorf("expected 20 stored candles, got %d", series.Len())
	}
}

func TestDownload_NothingFetched(t *testing.T) {
	svc, client, store := newTestService(t)
	ctx := context.Background()

	if err := store.Save(ctx, "BTCUSDT", "1m", []domain.Candle{{OpenTime: 1}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	client.FailKlinesAfter(0)

	_, err := svc.Download(ctx, "BTCUSDT", "1m")
	if !errors.Is(err, ErrNoCandles) {
		t.Fatalf("expected ErrNoCandles, got %v", err)
	}

	// The previous cache is left untouched.
	series, err := store.Load(ctx, "BTCUSDT", "1m")
	if err != nil || series.Len() != 1 {
		t.Errorf("expected seeded cache to survive, got %d candles, err %v", series.Len(), err)
	}
}

func TestDownload_ReplacesCache(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	if err := store.Save(ctx, "BTCUSDT", "1m", []domain.Candle{{OpenTime: 1}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Download(ctx, "BTCUSDT", "1m"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	series, _ := store.Load(ctx, "BTCUSDT", "1m")
	if series.Len() != 30 || series.Candles[0].OpenTime == 1 {
		t.Errorf("expected cache to be replaced, got %d candles", series.Len())
	}
}

func TestDownload_UnknownInterval(t *testing.T) {
	svc, client, _ := newTestService(t)

	_, err := svc.Download(context.Background(), "BTCUSDT", "7x")
	if !errors.Is(err, ErrUnknownInterval) {
		t.Fatalf("expected ErrUnknownInterval, got %v", err)
	}
	if len(client.Calls()) != 0 {
		t.Error("no request should be sent for an unknown interval")
	}
}

func TestHandle(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	if err := svc.Handle(ctx, domain.NewDownloadJob("btcusdt", "1m")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Load(ctx, "BTCUSDT", "1m"); err != nil {
		t.Fatalf("expected cached candles, got %v", err)
	}

	err := svc.Handle(ctx, domain.NewDownloadJob("ETHUSDT", "1m"))
	if !errors.Is(err, ErrNoCandles) {
		t.Errorf("expected ErrNoCandles for unknown symbol, got %v", err)
	}
	if _, err := store.Load(ctx, "ETHUSDT", "1m"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected nothing cached for ETHUSDT, got %v", err)
	}
}

func TestIntervalDuration(t *testing.T) {
	tests := []struct {
		interval string
		want     time.Duration
		wantErr  bool
	}{
		{"1s", time.Second, false},
		{"1m", time.Minute, false},
		{"15m", 15 * time.Minute, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"1M", 30 * 24 * time.Hour, false},
		{"", 0, true},
		{"m", 0, true},
		{"0m", 0, true},
		{"5y", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			got, err := IntervalDuration(tt.interval)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownInterval) {
					t.Errorf("expected ErrUnknownInterval, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
