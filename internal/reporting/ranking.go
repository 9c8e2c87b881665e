package reporting

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"candle-pattern-lab/internal/domain"
)

// DefaultTopN is the number of strategies listed in a ranking.
const DefaultTopN = 20

// Ranking is the rendered view of one run's best strategies.
type Ranking struct {
	Symbol      string
	Interval    string
	GeneratedAt time.Time
	Total       int // results evaluated
	Affined     int // results kept by the filter
	Top         []RankingRow
	Summary     Summary
}

// RankingRow represents one row in the ranking table and CSV export.
type RankingRow struct {
	Rank         int     `csv:"rank"`
	StrategyID   string  `csv:"strategy_id"`
	Pattern      string  `csv:"pattern"`
	Market       string  `csv:"market"`
	TakeProfit   float64 `csv:"take_profit"`
	StopLoss     float64 `csv:"stop_loss"`
	Repetitions  int     `csv:"repetitions"`
	WindowSize   int     `csv:"window_size"`
	RiskFraction float64 `csv:"risk_fraction"`
	TotalClosed  int     `csv:"total_closed"`
	Wins         int     `csv:"wins"`
	Losses       int     `csv:"losses"`
	WinRate      float64 `csv:"win_rate"`
	FinalMoney   float64 `csv:"final_money"`
	ReturnPct    float64 `csv:"return_pct"`
	MaxDrawdown  float64 `csv:"max_drawdown"`
}

// Summary holds distribution statistics of the final money over a result set.
type Summary struct {
	Count            int
	FinalMoneyMean   float64
	FinalMoneyMedian float64
	FinalMoneyStdDev float64
	FinalMoneyP10    float64
	FinalMoneyP90    float64
	WinRateMean      float64
}

// BuildRanking takes ranked results (best first) and keeps the top n rows.
// total is the size of the full result set the ranked slice was filtered from.
func BuildRanking(symbol, interval string, generatedAt time.Time, total int, ranked []domain.StrategyResult, topN int) (*Ranking, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}

	summary, err := Summarize(ranked)
	if err != nil {
		return nil, err
	}

	r := &Ranking{
		Symbol:      domain.NormalizeSymbol(symbol),
		Interval:    interval,
		GeneratedAt: generatedAt.UTC(),
		Total:       total,
		Affined:     len(ranked),
		Summary:     summary,
	}

	for i, res := range ranked {
		if i == topN {
			break
		}
		d := res.Descriptor
		r.Top = append(r.Top, RankingRow{
			Rank:         i + 1,
			StrategyID:   res.StrategyID,
			Pattern:      d.Pattern.String(),
			Market:       d.Market.String(),
			TakeProfit:   d.TakeProfit,
			StopLoss:     d.StopLoss,
			Repetitions:  d.Repetitions,
			WindowSize:   d.WindowSize,
			RiskFraction: d.RiskFraction,
			TotalClosed:  res.TotalClosed,
			Wins:         res.Wins,
			Losses:       res.Losses,
			WinRate:      res.WinRate(),
			FinalMoney:   res.FinalMoney,
			ReturnPct:    res.ReturnPct(),
			MaxDrawdown:  res.MaxDrawdown,
		})
	}

	return r, nil
}

// Summarize computes final money statistics. An empty input yields a zero Summary.
func Summarize(results []domain.StrategyResult) (Summary, error) {
	if len(results) == 0 {
		return Summary{}, nil
	}

	money := make(stats.Float64Data, len(results))
	winRates := make(stats.Float64Data, len(results))
	for i, r := range results {
		money[i] = r.FinalMoney
		winRates[i] = r.WinRate()
	}

	s := Summary{Count: len(results)}
	var errs []error
	var err error

	s.FinalMoneyMean, err = money.Mean()
	errs = append(errs, err)
	s.FinalMoneyMedian, err = money.Median()
	errs = append(errs, err)
	s.FinalMoneyStdDev, err = money.StandardDeviation()
	errs = append(errs, err)
	// Nearest rank is defined for any non-empty input; interpolated
	// percentiles need at least 100/p samples.
	s.FinalMoneyP10, err = money.PercentileNearestRank(10)
	errs = append(errs, err)
	s.FinalMoneyP90, err = money.PercentileNearestRank(90)
	errs = append(errs, err)
	s.WinRateMean, err = winRates.Mean()
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return Summary{}, fmt.Errorf("summarize results: %w", err)
	}
	return s, nil
}

// WriteRanking writes the markdown and CSV renderings of r next to each other
// under {dir}/ranking/ and returns their paths.
func WriteRanking(dir, resultName string, r *Ranking) ([]string, error) {
	base := filepath.Join(dir, RankingDir, strings.TrimSuffix(resultName, ".json"))

	csv, err := RenderCSV(r.Top)
	if err != nil {
		return nil, err
	}

	paths := []string{base + ".md", base + ".csv"}
	if err := writeFile(paths[0], []byte(RenderMarkdown(r))); err != nil {
		return nil, err
	}
	if err := writeFile(paths[1], []byte(csv)); err != nil {
		return nil, err
	}
	return paths, nil
}
