package domain

import "strings"

// MarketType is the market a strategy trades on.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// String returns the string representation of MarketType.
func (m MarketType) String() string {
	return string(m)
}

// IsValid checks if the market type is a valid value.
func (m MarketType) IsValid() bool {
	return m == MarketSpot || m == MarketFutures
}

// PatternFamily is the chart pattern a strategy trades.
type PatternFamily string

const (
	PatternW PatternFamily = "W" // double bottom, long on neckline breakout
	PatternM PatternFamily = "M" // double top, short on neckline breakdown
)

// String returns the string representation of PatternFamily.
func (p PatternFamily) String() string {
	return string(p)
}

// IsValid checks if the pattern family is a valid value.
func (p PatternFamily) IsValid() bool {
	return p == PatternW || p == PatternM
}

// NormalizeSymbol upper-cases and trims a market symbol.
// Intervals are case-sensitive on the exchange ("1m" vs "1M") and are never normalized.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// CacheKey returns the "{SYMBOL}-{interval}" key used by candle caches.
func CacheKey(symbol, interval string) string {
	return NormalizeSymbol(symbol) + "-" + interval
}
