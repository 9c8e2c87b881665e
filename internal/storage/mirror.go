package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"candle-pattern-lab/internal/domain"
)

// MirroredCandleStore reads from a primary store and writes to the primary and
// every mirror. Mirror write failures are logged and do not fail Save.
type MirroredCandleStore struct {
	primary CandleStore
	mirrors []CandleStore
	logger  logrus.FieldLogger
}

// NewMirroredCandleStore creates a MirroredCandleStore.
func NewMirroredCandleStore(logger logrus.FieldLogger, primary CandleStore, mirrors ...CandleStore) *MirroredCandleStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MirroredCandleStore{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.WithField("component", "candle_store"),
	}
}

// Save writes to the primary store, then to each mirror.
func (s *MirroredCandleStore) Save(ctx context.Context, symbol, interval string, candles []domain.Candle) error {
	if err := s.primary.Save(ctx, symbol, interval, candles); err != nil {
		return fmt.Errorf("save primary: %w", err)
	}
	for i, m := range s.mirrors {
		if err := m.Save(ctx, symbol, interval, candles); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"symbol":   symbol,
				"interval": interval,
				"mirror":   i,
			}).Warn("Mirror candle write failed")
		}
	}
	return nil
}

// Load reads from the primary store.
func (s *MirroredCandleStore) Load(ctx context.Context, symbol, interval string) (domain.CandleSeries, error) {
	return s.primary.Load(ctx, symbol, interval)
}

// List reads from the primary store.
func (s *MirroredCandleStore) List(ctx context.Context) ([]SeriesInfo, error) {
	return s.primary.List(ctx)
}

// Compile-time interface check.
var _ CandleStore = (*MirroredCandleStore)(nil)
