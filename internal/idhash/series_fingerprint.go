package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSeriesFingerprint computes a deterministic fingerprint of a candle series.
// Formula: SHA256(symbol|interval|count|first_open_time|last_open_time)
// Two runs over the same cached data share a fingerprint.
// Returns hex-encoded hash (64 characters).
func ComputeSeriesFingerprint(
	symbol string,
	interval string,
	count int,
	firstOpenTime int64,
	lastOpenTime int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%d",
		symbol,
		interval,
		count,
		firstOpenTime,
		lastOpenTime,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
