package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ComputeStrategyID computes a deterministic strategy_id using SHA256.
// Formula: SHA256(pattern|market|start_money|take_profit|stop_loss|repetitions|window_size|risk_fraction)
// Floats are formatted with the shortest representation that round-trips.
// Returns hex-encoded hash (64 characters).
func ComputeStrategyID(
	pattern string,
	market string,
	startMoney float64,
	takeProfit float64,
	stopLoss float64,
	repetitions int,
	windowSize int,
	riskFraction float64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d|%s",
		pattern,
		market,
		formatFloat(startMoney),
		formatFloat(takeProfit),
		formatFloat(stopLoss),
		repetitions,
		windowSize,
		formatFloat(riskFraction),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
