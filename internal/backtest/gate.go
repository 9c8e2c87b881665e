package backtest

import "context"

// runGate admits at most one sweep at a time. The zero value is not usable;
// create one with newRunGate.
type runGate chan struct{}

func newRunGate() runGate {
	return make(runGate, 1)
}

// TryAcquire claims the gate without waiting. It returns false if the gate is held.
func (g runGate) TryAcquire() bool {
	select {
	case g <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire waits for the gate or for ctx to end.
func (g runGate) Acquire(ctx context.Context) error {
	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the gate.
func (g runGate) Release() {
	<-g
}

// Held reports whether the gate is currently claimed.
func (g runGate) Held() bool {
	return len(g) > 0
}
