package memory

import (
	"context"
	"sort"
	"sync"

	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu      sync.RWMutex
	runs    map[string]*domain.RunSummary
	results map[string][]domain.StrategyResult // keyed by run_id
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		runs:    make(map[string]*domain.RunSummary),
		results: make(map[string][]domain.StrategyResult),
	}
}

// InsertRun stores a run and its results. Returns ErrDuplicateKey if run_id exists.
func (s *ResultStore) InsertRun(_ context.Context, run *domain.RunSummary, results []domain.StrategyResult) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	// Check intra-batch duplicate strategy IDs
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if r.StrategyID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[r.StrategyID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.StrategyID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	runCopy := *run
	runCopy.ResultFiles = append([]string(nil), run.ResultFiles...)
	s.runs[run.RunID] = &runCopy

	stored := make([]domain.StrategyResult, len(results))
	for i, r := range results {
		r.MoneyEvolution = append([]float64(nil), r.MoneyEvolution...)
		stored[i] = r
	}
	s.results[run.RunID] = stored

	return nil
}

// GetRun retrieves a run by ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetRun(_ context.Context, runID string) (*domain.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	runCopy := *run
	return &runCopy, nil
}

// ListRuns retrieves runs for symbol/interval, newest first.
func (s *ResultStore) ListRuns(_ context.Context, symbol, interval string, limit int) ([]*domain.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RunSummary
	for _, run := range s.runs {
		if symbol != "" && run.Symbol != domain.NormalizeSymbol(symbol) {
			continue
		}
		if interval != "" && run.Interval != interval {
			continue
		}
		runCopy := *run
		result = append(result, &runCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].RunID < result[j].RunID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetResults retrieves the results of a run ranked by final money DESC, strategy_id ASC.
func (s *ResultStore) GetResults(_ context.Context, runID string) ([]domain.StrategyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.results[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	result := make([]domain.StrategyResult, len(stored))
	for i, r := range stored {
		r.MoneyEvolution = append([]float64(nil), r.MoneyEvolution...)
		result[i] = r
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].FinalMoney != result[j].FinalMoney {
			return result[i].FinalMoney > result[j].FinalMoney
		}
		return result[i].StrategyID < result[j].StrategyID
	})

	return result, nil
}

var _ storage.ResultStore = (*ResultStore)(nil)
