package orchestrator

import (
	"sync"
	"time"
)

// Progress is a snapshot of a running backtest.
type Progress struct {
	RunID     string        `json:"run_id"`
	Symbol    string        `json:"symbol"`
	Interval  string        `json:"interval"`
	Overall   float64       `json:"overall"` // mean worker fraction, 0..1
	Workers   []float64     `json:"workers"`
	Elapsed   time.Duration `json:"elapsed"`
	ETA       time.Duration `json:"eta"`       // estimated total duration, 0 while unknown
	Remaining time.Duration `json:"remaining"` // ETA - Elapsed
	Done      bool          `json:"done"`
}

// Percent returns Overall in percent.
func (p Progress) Percent() float64 {
	return p.Overall * 100
}

// ProgressSink receives progress snapshots. Publish must not block.
type ProgressSink interface {
	Publish(p Progress)
}

// snapshot builds a Progress from per-worker fractions.
func snapshot(fractions []float64, elapsed time.Duration, done bool) Progress {
	workers := make([]float64, len(fractions))
	copy(workers, fractions)

	var sum float64
	for _, f := range workers {
		sum += f
	}
	p := Progress{Workers: workers, Elapsed: elapsed, Done: done}
	if len(workers) > 0 {
		p.Overall = sum / float64(len(workers))
	}

	if pct := p.Percent(); pct > 0 {
		p.ETA = time.Duration(float64(elapsed) * (100 / pct))
		p.Remaining = p.ETA - elapsed
		if p.Remaining < 0 {
			p.Remaining = 0
		}
	}
	return p
}

// Broadcaster fans progress snapshots out to subscribers.
// Slow subscribers miss snapshots instead of blocking the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Progress
	nextID int
	latest Progress
	has    bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Progress)}
}

// Publish implements ProgressSink.
func (b *Broadcaster) Publish(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = p
	b.has = true
	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it and
// closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Progress, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Progress, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Latest returns the last published snapshot, if any.
func (b *Broadcaster) Latest() (Progress, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.has
}

// Ensure Broadcaster implements ProgressSink
var _ ProgressSink = (*Broadcaster)(nil)
