// Package jobqueue provides a FIFO job queue drained by a single background loop.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"candle-pattern-lab/internal/observability"
)

var (
	// ErrClosed is returned by Submit once the drain loop has stopped for good.
	ErrClosed = errors.New("job queue closed")
	// ErrQueueFull is returned by Submit when MaxLen is set and reached.
	ErrQueueFull = errors.New("job queue full")
	// ErrAlreadyRunning is returned by Run when a drain loop is already active.
	ErrAlreadyRunning = errors.New("job queue already running")
)

// Handler processes one job. Errors are logged; the loop keeps draining.
type Handler[J any] func(ctx context.Context, job J) error

// Options for creating Queue.
type Options struct {
	// MaxLen bounds the number of waiting jobs. 0 means unbounded.
	MaxLen int

	// PollInterval adds a periodic wake-up on top of the Submit signal. 0 disables it.
	PollInterval time.Duration

	// OnBusyChange is called from the drain loop whenever the busy flag flips.
	OnBusyChange func(busy bool)

	Logger logrus.FieldLogger
}

// Queue is a mutex-guarded unbounded FIFO (unless MaxLen is set) drained by Run.
// Jobs are handled one at a time in submission order.
type Queue[J any] struct {
	name    string
	handler Handler[J]
	opts    Options
	logger  logrus.FieldLogger

	mu      sync.Mutex
	jobs    []J
	closed  bool
	running bool

	wake      chan struct{}
	busy      atomic.Bool
	processed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a new Queue. name labels logs and metrics.
func New[J any](name string, handler Handler[J], opts Options) *Queue[J] {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Queue[J]{
		name:    name,
		handler: handler,
		opts:    opts,
		logger:  logger.WithFields(logrus.Fields{"component": "jobqueue", "queue": name}),
		wake:    make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *Queue[J]) Name() string {
	return q.name
}

// Submit appends a job and returns immediately.
func (q *Queue[J]) Submit(job J) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		observability.RecordJobRejected(q.name, "closed")
		return ErrClosed
	}
	if q.opts.MaxLen > 0 && len(q.jobs) >= q.opts.MaxLen {
		q.mu.Unlock()
		observability.RecordJobRejected(q.name, "full")
		return fmt.Errorf("%w: %d jobs waiting", ErrQueueFull, q.opts.MaxLen)
	}
	q.jobs = append(q.jobs, job)
	depth := len(q.jobs)
	q.mu.Unlock()

	observability.UpdateQueue(q.name, depth, q.busy.Load())

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Busy reports whether the drain loop is processing jobs. The value is advisory:
// it may change right after it is read.
func (q *Queue[J]) Busy() bool {
	return q.busy.Load()
}

// Running reports whether Run is active.
func (q *Queue[J]) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Len returns the number of waiting jobs.
func (q *Queue[J]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Processed returns the number of jobs handled, successfully or not.
func (q *Queue[J]) Processed() uint64 {
	return q.processed.Load()
}

// Failed returns the number of jobs whose handler errored or panicked.
func (q *Queue[J]) Failed() uint64 {
	return q.failed.Load()
}

// Run drains the queue until ctx is cancelled. A job being handled when ctx is
// cancelled runs to completion; waiting jobs are dropped and Submit starts
// returning ErrClosed.
func (q *Queue[J]) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.running = true
	q.mu.Unlock()

	defer q.close()

	var tick <-chan time.Time
	if q.opts.PollInterval > 0 {
		ticker := time.NewTicker(q.opts.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	q.logger.Info("Queue manager started")
	for {
		q.drain(ctx)

		select {
		case <-ctx.Done():
			q.logger.Info("Queue manager stopped")
			return ctx.Err()
		case <-q.wake:
		case <-tick:
		}
	}
}

// drain processes jobs until the queue is observed empty.
func (q *Queue[J]) drain(ctx context.Context) {
	job, ok := q.pop()
	if !ok {
		return
	}

	q.setBusy(true)
	defer q.setBusy(false)

	for ok {
		q.handle(ctx, job)
		if ctx.Err() != nil {
			return
		}
		job, ok = q.pop()
	}
}

func (q *Queue[J]) pop() (J, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero J
	if len(q.jobs) == 0 {
		return zero, false
	}
	job := q.jobs[0]
	q.jobs[0] = zero
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.jobs = nil
	}
	return job, true
}

// handle runs the handler, isolating its errors and panics from the loop.
func (q *Queue[J]) handle(ctx context.Context, job J) {
	start := time.Now()
	status := "success"

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return q.handler(context.WithoutCancel(ctx), job)
	}()

	q.processed.Add(1)
	if err != nil {
		q.failed.Add(1)
		status = "error"
		q.logger.WithError(err).Errorf("Job failed after %s", time.Since(start).Round(time.Millisecond))
	} else {
		q.logger.Debugf("Job done in %s", time.Since(start).Round(time.Millisecond))
	}
	observability.RecordJob(q.name, status, time.Since(start).Seconds())
	observability.UpdateQueue(q.name, q.Len(), true)
}

func (q *Queue[J]) setBusy(busy bool) {
	if q.busy.Swap(busy) == busy {
		return
	}
	observability.UpdateQueue(q.name, q.Len(), busy)
	if q.opts.OnBusyChange != nil {
		q.opts.OnBusyChange(busy)
	}
}

func (q *Queue[J]) close() {
	q.mu.Lock()
	q.closed = true
	q.running = false
	dropped := len(q.jobs)
	q.jobs = nil
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warnf("Dropped %d waiting jobs on shutdown", dropped)
	}
	observability.UpdateQueue(q.name, 0, false)
}
