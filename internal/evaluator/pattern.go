package evaluator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"candle-pattern-lab/internal/domain"
)

// Default PatternEvaluator parameters.
const (
	DefaultATRPeriod   = 14
	DefaultTolerance   = 0.5  // max distance between the two extremes, in ATR
	DefaultMinDepth    = 0.5  // min distance between extremes and neckline, in ATR
	DefaultMaxLeverage = 10.0 // futures notional cap, in multiples of current money
)

// Exit reason codes
const (
	ExitReasonTakeProfit = "TAKE_PROFIT"
	ExitReasonStopLoss   = "STOP_LOSS"
)

// PatternEvaluator trades W (double bottom) and M (double top) breakouts.
//
// A W setup is two lows of the look-back window within Tolerance ATR of each
// other, separated by a neckline at least MinDepth ATR above them. The setup
// triggers a long entry when the last Repetitions candles all close above the
// neckline. M is the mirror image and enters short. Exits sit at TakeProfit and
// StopLoss ATR multiples from the entry; when one candle touches both, the stop
// is assumed to fill first.
//
// Each trade risks RiskFraction of the current money at the stop. On spot the
// position notional is capped at the current money; on futures it is capped at
// MaxLeverage times the current money.
type PatternEvaluator struct {
	ATRPeriod   int
	Tolerance   float64
	MinDepth    float64
	MaxLeverage float64
}

// NewPatternEvaluator creates a PatternEvaluator with default parameters.
func NewPatternEvaluator() *PatternEvaluator {
	return &PatternEvaluator{
		ATRPeriod:   DefaultATRPeriod,
		Tolerance:   DefaultTolerance,
		MinDepth:    DefaultMinDepth,
		MaxLeverage: DefaultMaxLeverage,
	}
}

// Trade is one closed position.
type Trade struct {
	EntryIndex int
	ExitIndex  int
	Long       bool
	Neckline   float64
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	ExitReason string
}

// Evaluate implements Evaluator.
func (e *PatternEvaluator) Evaluate(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, error) {
	result, _, err := e.Simulate(series, d)
	return result, err
}

// Simulate runs the descriptor and also returns the closed trades.
func (e *PatternEvaluator) Simulate(series domain.CandleSeries, d domain.StrategyDescriptor) (domain.StrategyResult, []Trade, error) {
	if err := validateDescriptor(d); err != nil {
		return domain.StrategyResult{}, nil, err
	}

	result := domain.StrategyResult{
		StrategyID:     d.ID(),
		Descriptor:     d,
		FinalMoney:     d.StartMoney,
		MoneyEvolution: []float64{d.StartMoney},
	}

	candles := series.Candles
	n := len(candles)
	if n < d.WindowSize+d.Repetitions+1 {
		return result, nil, nil
	}

	atr := e.atr(candles)
	long := d.Pattern == domain.PatternW
	money := d.StartMoney
	peak := money
	var trades []Trade

	for i := d.WindowSize + d.Repetitions; i < n && money > 0; i++ {
		neckline, ok := e.findSetup(candles, atr, i, d, long)
		if !ok {
			continue
		}

		entry := candles[i].Close
		a := atr[i]
		var tp, sl float64
		if long {
			tp, sl = entry+d.TakeProfit*a, entry-d.StopLoss*a
		} else {
			tp, sl = entry-d.TakeProfit*a, entry+d.StopLoss*a
		}
		if long && sl <= 0 {
			continue
		}
		qty := e.quantity(money, entry, d.StopLoss*a, d)
		if qty <= 0 {
			continue
		}

		exitIdx, exitPrice, reason := scanExit(candles, i+1, long, tp, sl)
		if exitIdx < 0 {
			// position still open at the end of the series
			break
		}

		pnl := qty * (exitPrice - entry)
		if !long {
			pnl = -pnl
		}
		money += pnl
		if money < 0 {
			money = 0
		}

		result.TotalClosed++
		if pnl > 0 {
			result.Wins++
		} else {
			result.Losses++
		}
		result.MoneyEvolution = append(result.MoneyEvolution, money)
		if money > peak {
			peak = money
		}
		if dd := (peak - money) / peak; dd > result.MaxDrawdown {
			result.MaxDrawdown = dd
		}

		trades = append(trades, Trade{
			EntryIndex: i,
			ExitIndex:  exitIdx,
			Long:       long,
			Neckline:   neckline,
			EntryPrice: entry,
			ExitPrice:  exitPrice,
			Quantity:   qty,
			PnL:        pnl,
			ExitReason: reason,
		})
		i = exitIdx
	}

	result.FinalMoney = money
	return result, trades, nil
}

func validateDescriptor(d domain.StrategyDescriptor) error {
	switch {
	case !d.Pattern.IsValid():
		return fmt.Errorf("%w: pattern %q", ErrInvalidDescriptor, d.Pattern)
	case !d.Market.IsValid():
		return fmt.Errorf("%w: market %q", ErrInvalidDescriptor, d.Market)
	case !(d.StartMoney > 0):
		return fmt.Errorf("%w: start money %v", ErrInvalidDescriptor, d.StartMoney)
	case !(d.TakeProfit > 0) || !(d.StopLoss > 0):
		return fmt.Errorf("%w: take profit %v, stop loss %v", ErrInvalidDescriptor, d.TakeProfit, d.StopLoss)
	case d.Repetitions < 1:
		return fmt.Errorf("%w: repetitions %d", ErrInvalidDescriptor, d.Repetitions)
	case d.WindowSize < 4:
		return fmt.Errorf("%w: window size %d", ErrInvalidDescriptor, d.WindowSize)
	case !(d.RiskFraction > 0) || d.RiskFraction > 1:
		return fmt.Errorf("%w: risk fraction %v", ErrInvalidDescriptor, d.RiskFraction)
	}
	return nil
}

func (e *PatternEvaluator) atr(candles []domain.Candle) []float64 {
	period := e.ATRPeriod
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(candles) <= period {
		return make([]float64, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	return talib.Atr(highs, lows, closes, period)
}

// findSetup checks whether candle i completes a confirmed breakout of a
// pattern found in the window preceding the confirmation candles.
func (e *PatternEvaluator) findSetup(candles []domain.Candle, atr []float64, i int, d domain.StrategyDescriptor, long bool) (float64, bool) {
	a := atr[i]
	if !(a > 0) || math.IsInf(a, 0) {
		return 0, false
	}

	end := i - d.Repetitions + 1 // first confirmation candle
	start := end - d.WindowSize
	if start < 0 {
		return 0, false
	}
	mid := start + d.WindowSize/2

	first, second := start, mid
	for j := start; j < end; j++ {
		if j < mid && better(candles[j], candles[first], long) {
			first = j
		}
		if j >= mid && better(candles[j], candles[second], long) {
			second = j
		}
	}
	if second-first < 2 {
		return 0, false
	}

	ext1, ext2 := extreme(candles[first], long), extreme(candles[second], long)
	if math.Abs(ext1-ext2) > e.Tolerance*a {
		return 0, false
	}

	// neckline: highest high (W) or lowest low (M) between the two extremes
	neckline := opposite(candles[first+1], long)
	for j := first + 2; j < second; j++ {
		v := opposite(candles[j], long)
		if (long && v > neckline) || (!long && v < neckline) {
			neckline = v
		}
	}

	if long {
		if neckline-math.Max(ext1, ext2) < e.MinDepth*a {
			return 0, false
		}
	} else if math.Min(ext1, ext2)-neckline < e.MinDepth*a {
		return 0, false
	}

	// the candle before the confirmation must not have broken out already
	if crossed(candles[end-1].Close, neckline, long) {
		return 0, false
	}
	for j := end; j <= i; j++ {
		if !crossed(candles[j].Close, neckline, long) {
			return 0, false
		}
	}
	return neckline, true
}

func (e *PatternEvaluator) quantity(money, entry, stopDistance float64, d domain.StrategyDescriptor) float64 {
	if !(stopDistance > 0) || !(entry > 0) {
		return 0
	}
	qty := money * d.RiskFraction / stopDistance

	maxNotional := money
	if d.Market == domain.MarketFutures {
		leverage := e.MaxLeverage
		if leverage < 1 {
			leverage = 1
		}
		maxNotional = money * leverage
	}
	if qty*entry > maxNotional {
		qty = maxNotional / entry
	}
	return qty
}

// scanExit walks forward from index from until the stop or the target is hit.
// Returns exit index -1 when neither is reached.
func scanExit(candles []domain.Candle, from int, long bool, tp, sl float64) (int, float64, string) {
	for j := from; j < len(candles); j++ {
		c := candles[j]
		if long {
			if c.Low <= sl {
				return j, sl, ExitReasonStopLoss
			}
			if c.High >= tp {
				return j, tp, ExitReasonTakeProfit
			}
			continue
		}
		if c.High >= sl {
			return j, sl, ExitReasonStopLoss
		}
		if c.Low <= tp {
			return j, tp, ExitReasonTakeProfit
		}
	}
	return -1, 0, ""
}

func better(c, than domain.Candle, long bool) bool {
	if long {
		return c.Low < than.Low
	}
	return c.High > than.High
}

func extreme(c domain.Candle, long bool) float64 {
	if long {
		return c.Low
	}
	return c.High
}

func opposite(c domain.Candle, long bool) float64 {
	if long {
		return c.High
	}
	return c.Low
}

func crossed(price, neckline float64, long bool) bool {
	if long {
		return price > neckline
	}
	return price < neckline
}

// Ensure PatternEvaluator implements Evaluator
var _ Evaluator = (*PatternEvaluator)(nil)
