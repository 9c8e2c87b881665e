package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/storage"
	"candle-pattern-lab/internal/storage/memory"
)

var errMirrorDown = errors.New("mirror down")

// failingStore fails every Save.
type failingStore struct {
	*memory.CandleStore
}

func (failingStore) Save(context.Context, string, string, []domain.Candle) error {
	return errMirrorDown
}

func testCandles() []domain.Candle {
	return []domain.Candle{
		{OpenTime: 60_000, CloseTime: 119_999, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{OpenTime: 0, CloseTime: 59_999, Open: 1, High: 1.2, Low: 0.9, Close: 1},
	}
}

func TestMirroredCandleStore_SaveWritesEveryStore(t *testing.T) {
	ctx := context.Background()
	primary := memory.NewCandleStore()
	mirror := memory.NewCandleStore()
	logger, _ := test.NewNullLogger()

	store := storage.NewMirroredCandleStore(logger, primary, mirror)
	if err := store.Save(ctx, "BTCUSDT", "1m", testCandles()); err != nil {
		t.Fatalf("save: %v", err)
	}

	for name, s := range map[string]storage.CandleStore{"primary": primary, "mirror": mirror} {
		series, err := s.Load(ctx, "BTCUSDT", "1m")
		if err != nil {
			t.Fatalf("%s load: %v", name, err)
		}
		if series.Len() != 2 || series.Candles[0].OpenTime != 0 {
			t.Errorf("%s: unexpected series %+v", name, series)
		}
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Candles != 2 {
		t.Errorf("unexpected list: %+v", infos)
	}
}

func TestMirroredCandleStore_MirrorFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	primary := memory.NewCandleStore()
	logger, hook := test.NewNullLogger()

	store := storage.NewMirroredCandleStore(logger, primary, failingStore{memory.NewCandleStore()})
	if err := store.Save(ctx, "BTCUSDT", "1m", testCandles()); err != nil {
		t.Fatalf("mirror failure must not fail Save: %v", err)
	}
	if _, err := store.Load(ctx, "BTCUSDT", "1m"); err != nil {
		t.Fatalf("primary should hold the candles: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning, got %+v", entry)
	}
	if !errors.Is(entry.Data[logrus.ErrorKey].(error), errMirrorDown) {
		t.Errorf("expected mirror error in the log entry, got %v", entry.Data[logrus.ErrorKey])
	}
}

func TestMirroredCandleStore_PrimaryFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := storage.NewMirroredCandleStore(logger, failingStore{memory.NewCandleStore()}, memory.NewCandleStore())

	err := store.Save(context.Background(), "BTCUSDT", "1m", testCandles())
	if !errors.Is(err, errMirrorDown) {
		t.Errorf("expected primary error, got %v", err)
	}
}
