// Package filecache stores candle histories as JSON files, one per symbol/interval.
package filecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/storage"
)

const fileExt = ".json"

// CandleStore implements storage.CandleStore on a directory of JSON files
// named {SYMBOL}-{interval}.json.
type CandleStore struct {
	dir string
	mu  sync.RWMutex
}

// NewCandleStore creates a CandleStore rooted at dir. The directory is created on first write.
func NewCandleStore(dir string) *CandleStore {
	return &CandleStore{dir: dir}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// Dir returns the cache directory.
func (s *CandleStore) Dir() string {
	return s.dir
}

// Path returns the cache file of symbol/interval.
func (s *CandleStore) Path(symbol, interval string) string {
	return filepath.Join(s.dir, domain.CacheKey(symbol, interval)+fileExt)
}

// Save replaces the cache file of symbol/interval. The file is written to a
// temporary name first and renamed, so readers never see a partial file.
func (s *CandleStore) Save(_ context.Context, symbol, interval string, candles []domain.Candle) error {
	if symbol == "" || interval == "" || strings.ContainsAny(symbol+interval, `/\`) {
		return storage.ErrInvalidInput
	}
	series := domain.NewCandleSeries(domain.NormalizeSymbol(symbol), interval, candles)

	data, err := json.Marshal(series.Candles)
	if err != nil {
		return fmt.Errorf("marshal candles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".candles-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(symbol, interval)); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Load reads the cache file of symbol/interval. Returns ErrNotFound if it does not exist.
func (s *CandleStore) Load(_ context.Context, symbol, interval string) (domain.CandleSeries, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.Path(symbol, interval))
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.CandleSeries{}, storage.ErrNotFound
		}
		return domain.CandleSeries{}, fmt.Errorf("read cache file: %w", err)
	}

	var candles []domain.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return domain.CandleSeries{}, fmt.Errorf("decode cache file %s: %w", s.Path(symbol, interval), err)
	}
	return domain.NewCandleSeries(domain.NormalizeSymbol(symbol), interval, candles), nil
}

// List returns every cached history, ordered by symbol then interval.
// Files that cannot be decoded are skipped.
func (s *CandleStore) List(ctx context.Context) ([]storage.SeriesInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []storage.SeriesInfo{}, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	result := make([]storage.SeriesInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		symbol, interval, ok := strings.Cut(strings.TrimSuffix(name, fileExt), "-")
		if !ok || symbol == "" || interval == "" {
			continue
		}

		series, err := s.Load(ctx, symbol, interval)
		if err != nil {
			continue
		}
		info := storage.SeriesInfo{Symbol: series.Symbol, Interval: series.Interval, Candles: series.Len()}
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
