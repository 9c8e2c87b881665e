package orchestrator

import "candle-pattern-lab/internal/domain"

// Partition splits n items into at most w contiguous chunks of ceil(n/w) items.
// Chunks never start at or beyond n and the last active chunk holds the remainder,
// so fewer than w chunks are returned when n is small. n <= 0 or w <= 0 yields none.
func Partition(n, w int) []domain.Chunk {
	if n <= 0 || w <= 0 {
		return nil
	}

	size := (n + w - 1) / w
	chunks := make([]domain.Chunk, 0, w)
	for i := 0; i < w; i++ {
		start := i * size
		if start >= n {
			break
		}
		length := size
		if start+length > n {
			length = n - start
		}
		chunks = append(chunks, domain.Chunk{Worker: i, Start: start, Len: length})
	}
	return chunks
}
