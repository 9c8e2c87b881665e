package memory

import (
	"context"
	"sort"
	"sync"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]domain.CandleSeries // keyed by SYMBOL-interval
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]domain.CandleSeries),
	}
}

// Save replaces the stored history of symbol/interval.
func (s *CandleStore) Save(_ context.Context, symbol, interval string, candles []domain.Candle) error {
	if symbol == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	symbol = domain.NormalizeSymbol(symbol)
	series := domain.NewCandleSeries(symbol, interval, candles)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[domain.CacheKey(symbol, interval)] = series
	return nil
}

// Load returns a copy of the stored history. Returns ErrNotFound if nothing is stored.
func (s *CandleStore) Load(_ context.Context, symbol, interval string) (domain.CandleSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.data[domain.CacheKey(symbol, interval)]
	if !ok {
		return domain.CandleSeries{}, storage.ErrNotFound
	}
	candles := make([]domain.Candle, len(series.Candles))
	copy(candles, series.Candles)
	series.Candles = candles
	return series, nil
}

// List returns every stored history, ordered by symbol then interval.
func (s *CandleStore) List(_ context.Context) ([]storage.SeriesInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.SeriesInfo, 0, len(s.data))
	for _, series := range s.data {
		info := storage.SeriesInfo{
			Symbol:   series.Symbol,
			Interval: series.Interval,
			Candles:  series.Len(),
		}
		if !series.Empty() {
			info.FirstOpen = series.Candles[0].OpenTime
			info.LastOpen = series.Candles[series.Len()-1].OpenTime
		}
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Interval < result[j].Interval
	})

	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
