// Package sweep periodically re-arms wake-ups for pending scheduled
// messages. The OS-level timer is unreliable: wake-ups registered
// before a process restart are gone, and capability demotions can
// leave a message without an exact alarm. The sweeper is the second
// line of defense that keeps every pending fire time covered.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Result is the outcome of one sweep. Armed counts the wake-ups the
// sweep re-registered; a panic inside the sweep surfaces as Err.
type Result struct {
	Armed int
	Err   error
	At    time.Time
	Took  time.Duration
}

type Sweeper struct {
	interval time.Duration
	sweepFn  func(context.Context) (int, error)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu sync.Mutex
	last   Result
}

func New(interval time.Duration, sweepFn func(context.Context) (int, error)) (*Sweeper, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if sweepFn == nil {
		return nil, errors.New("sweepFn must not be nil")
	}
	return &Sweeper{
		interval: interval,
		sweepFn:  sweepFn,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the sweep loop, with an immediate first sweep.
// Returns false when already running.
func (s *Sweeper) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("alarm sweeper started", "interval", s.interval.String())

		s.sweep(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("alarm sweeper stopping")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()

	return true
}

// Stop halts the loop and waits for the in-flight sweep to finish.
// Returns false when not running.
func (s *Sweeper) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("alarm sweeper stopped")
	return true
}

func (s *Sweeper) IsRunning() bool {
	return s.running.Load()
}

// LastResult reports the most recent sweep outcome. ok is false until
// the first sweep has finished.
func (s *Sweeper) LastResult() (Result, bool) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last, !s.last.At.IsZero()
}

// sweep runs one pass, recovers a panicking sweepFn, and records the
// outcome for LastResult.
func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	armed, err := s.runProtected(ctx)

	res := Result{Armed: armed, Err: err, At: start, Took: time.Since(start)}
	s.lastMu.Lock()
	s.last = res
	s.lastMu.Unlock()

	if err != nil {
		slog.Error("sweep failed", "error", err, "duration_ms", res.Took.Milliseconds())
		return
	}
	slog.Debug("sweep completed", "armed", armed, "duration_ms", res.Took.Milliseconds())
}

func (s *Sweeper) runProtected(ctx context.Context) (armed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
		}
	}()
	return s.sweepFn(ctx)
}
