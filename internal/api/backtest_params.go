package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"candle-pattern-lab/internal/domain"
)

var errBadParam = errors.New("invalid backtest parameter")

// backtestParams are the optional query parameters of /api/backtest. Ranges
// are written "min:max:step"; patterns is a comma separated list.
type backtestParams struct {
	Market       string  `form:"market"`
	StartMoney   float64 `form:"start_money"`
	Patterns     string  `form:"patterns"`
	TakeProfit   string  `form:"take_profit"`
	StopLoss     string  `form:"stop_loss"`
	Repetitions  string  `form:"repetitions"`
	WindowSize   string  `form:"window_size"`
	RiskFraction string  `form:"risk_fraction"`
}

// job builds the BacktestJob. Ranges that are not given come from base; when no
// range is given the sweep stays zero and the backtest service uses its own default.
func (p backtestParams) job(symbol, interval string, base domain.StrategySweep) (domain.BacktestJob, error) {
	market := domain.MarketType(strings.ToLower(p.Market))
	if market != "" && !market.IsValid() {
		return domain.BacktestJob{}, fmt.Errorf("%w: market %q", errBadParam, p.Market)
	}
	if p.StartMoney < 0 {
		return domain.BacktestJob{}, fmt.Errorf("%w: start_money %v", errBadParam, p.StartMoney)
	}

	var patterns []domain.PatternFamily
	for _, raw := range strings.Split(p.Patterns, ",") {
		raw = strings.ToUpper(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		pattern := domain.PatternFamily(raw)
		if !pattern.IsValid() {
			return domain.BacktestJob{}, fmt.Errorf("%w: pattern %q", errBadParam, raw)
		}
		patterns = append(patterns, pattern)
	}

	sweep := base
	overrides := []error{
		setRange(&sweep.TakeProfit, "take_profit", p.TakeProfit, parseFloat),
		setRange(&sweep.StopLoss, "stop_loss", p.StopLoss, parseFloat),
		setRange(&sweep.Repetitions, "repetitions", p.Repetitions, strconv.Atoi),
		setRange(&sweep.WindowSize, "window_size", p.WindowSize, strconv.Atoi),
		setRange(&sweep.RiskFraction, "risk_fraction", p.RiskFraction, parseFloat),
	}
	if err := errors.Join(overrides...); err != nil {
		return domain.BacktestJob{}, err
	}
	if sweep == base {
		sweep = domain.StrategySweep{}
	} else if err := sweep.Validate(); err != nil {
		return domain.BacktestJob{}, fmt.Errorf("%w: %w", errBadParam, err)
	}

	return domain.NewBacktestJob(symbol, interval, sweep, market, p.StartMoney, patterns...), nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// setRange parses raw into r. An empty raw leaves r unchanged.
func setRange[T domain.Number](r *domain.Range[T], name, raw string, parse func(string) (T, error)) error {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return fmt.Errorf("%w: %s must be min:max:step, got %q", errBadParam, name, raw)
	}
	var vals [3]T
	for i, part := range parts {
		v, err := parse(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errBadParam, name, err)
		}
		vals[i] = v
	}
	*r = domain.NewRange(vals[0], vals[1], vals[2])
	return nil
}
