// Package reporting writes backtest result files and renders strategy rankings.
package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"candle-pattern-lab/internal/domain"
)

// ErrBadResultName is returned when a file name was not produced by ResultFileName.
var ErrBadResultName = errors.New("not a result file name")

// Result file layout under the results directory.
const (
	FullDir           = "full"
	AffinedDir        = "affined"
	MoneyEvolutionDir = "withMoneyEvolution"
	RankingDir        = "ranking"
)

// ResultFileName returns {SYMBOL}-{interval}_{Y}_{M}_{D}_{h}h{m}m{s}s.json for at, in UTC.
// Date fields are not zero padded.
func ResultFileName(symbol, interval string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s-%s_%d_%d_%d_%dh%dm%ds.json",
		domain.NormalizeSymbol(symbol), interval,
		at.Year(), int(at.Month()), at.Day(),
		at.Hour(), at.Minute(), at.Second(),
	)
}

// ParseResultFileName is the inverse of ResultFileName.
func ParseResultFileName(name string) (symbol, interval string, at time.Time, err error) {
	base := strings.TrimSuffix(filepath.Base(name), ".json")
	head, stamp, ok := strings.Cut(base, "_")
	if !ok {
		return "", "", time.Time{}, fmt.Errorf("%w: %s", ErrBadResultName, name)
	}
	symbol, interval, ok = strings.Cut(head, "-")
	if !ok || symbol == "" || interval == "" {
		return "", "", time.Time{}, fmt.Errorf("%w: %s", ErrBadResultName, name)
	}

	var y, mo, d, h, mi, sec int
	if _, err := fmt.Sscanf(stamp, "%d_%d_%d_%dh%dm%ds", &y, &mo, &d, &h, &mi, &sec); err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: %s: %v", ErrBadResultName, name, err)
	}
	return symbol, interval, time.Date(y, time.Month(mo), d, h, mi, sec, 0, time.UTC), nil
}

// WriteResults writes the four result files of a run and returns their paths:
//
//	{dir}/full/withMoneyEvolution/{name}
//	{dir}/full/{name}
//	{dir}/affined/withMoneyEvolution/{name}
//	{dir}/affined/{name}
//
// The variants without money evolution are written from copies; results and
// affined are not modified.
func WriteResults(dir, symbol, interval string, at time.Time, results, affined []domain.StrategyResult) ([]string, error) {
	name := ResultFileName(symbol, interval, at)

	files := []struct {
		path    string
		results []domain.StrategyResult
	}{
		{filepath.Join(dir, FullDir, MoneyEvolutionDir, name), results},
		{filepath.Join(dir, FullDir, name), domain.StripMoneyEvolution(results)},
		{filepath.Join(dir, AffinedDir, MoneyEvolutionDir, name), affined},
		{filepath.Join(dir, AffinedDir, name), domain.StripMoneyEvolution(affined)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		if err := writeJSON(f.path, f.results); err != nil {
			return paths, err
		}
		paths = append(paths, f.path)
	}
	return paths, nil
}

// ReadResults reads a result file written by WriteResults.
func ReadResults(path string) ([]domain.StrategyResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", path, err)
	}
	var results []domain.StrategyResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", path, err)
	}
	return results, nil
}

func writeJSON(path string, results []domain.StrategyResult) error {
	if results == nil {
		results = []domain.StrategyResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
