package sweep

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	t.Run("interval must be > 0", func(t *testing.T) {
		t.Parallel()

		s, err := New(0, func(context.Context) (int, error) { return 0, nil })
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil sweeper, got %#v", s)
		}
	})

	t.Run("sweepFn must not be nil", func(t *testing.T) {
		t.Parallel()

		s, err := New(100*time.Millisecond, nil)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil sweeper, got %#v", s)
		}
	})
}

func TestSweeper_StartStop_Basics(t *testing.T) {
	var calls atomic.Int64

	s, err := New(10*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if s.IsRunning() {
		t.Fatalf("expected sweeper not running initially")
	}
	if _, ok := s.LastResult(); ok {
		t.Fatalf("expected no result before the first sweep")
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true on first call")
	}
	if !s.IsRunning() {
		t.Fatalf("expected sweeper running after Start()")
	}

	// Start should fail when already running.
	if ok := s.Start(); ok {
		t.Fatalf("expected Start() false when already running")
	}

	// There is an immediate sweep on Start().
	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true on first call")
	}
	if s.IsRunning() {
		t.Fatalf("expected sweeper not running after Stop()")
	}

	// Stop should fail when already stopped.
	if ok := s.Stop(); ok {
		t.Fatalf("expected Stop() false when already stopped")
	}
}

func TestSweeper_DoesNotSweepAfterStop(t *testing.T) {
	var calls atomic.Int64

	s, err := New(10*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	waitForAtLeast(t, &calls, 2, 750*time.Millisecond)
	beforeStop := calls.Load()

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	// Sleep longer than the interval to ensure no further sweeps occur.
	time.Sleep(100 * time.Millisecond)
	afterStop := calls.Load()

	if afterStop != beforeStop {
		t.Fatalf("expected no sweeps after Stop; before=%d after=%d", beforeStop, afterStop)
	}
}

func TestSweeper_LastResultRecordsArmedCount(t *testing.T) {
	var calls atomic.Int64

	s, err := New(10*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 3, nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		if res, ok := s.LastResult(); ok {
			if res.Armed != 3 {
				t.Fatalf("expected Armed = 3, got %d", res.Armed)
			}
			if res.Err != nil {
				t.Fatalf("expected no error, got %v", res.Err)
			}
			if res.At.IsZero() {
				t.Fatalf("expected a sweep timestamp")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no result recorded in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweeper_LastResultRecordsError(t *testing.T) {
	var calls atomic.Int64
	sweepErr := errors.New("store unavailable")

	s, err := New(10*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, sweepErr
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		if res, ok := s.LastResult(); ok {
			if !errors.Is(res.Err, sweepErr) {
				t.Fatalf("expected recorded error %v, got %v", sweepErr, res.Err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no result recorded in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweeper_PanicInSweepIsRecoveredAndContinues(t *testing.T) {
	var calls atomic.Int64
	var panicked atomic.Bool

	s, err := New(10*time.Millisecond, func(context.Context) (int, error) {
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
		calls.Add(1)
		return 0, nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	// If the panic is recovered, the loop keeps sweeping afterwards.
	waitForAtLeast(t, &calls, 1, 750*time.Millisecond)
}

func TestSweeper_SweepFnReceivesCancelableContext(t *testing.T) {
	var capturedMu sync.Mutex
	var captured context.Context

	s, err := New(10*time.Millisecond, func(ctx context.Context) (int, error) {
		capturedMu.Lock()
		if captured == nil {
			captured = ctx
		}
		capturedMu.Unlock()
		return 0, nil
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		capturedMu.Lock()
		got := captured
		capturedMu.Unlock()

		if got != nil {
			break
		}
		if time.Now().After(deadline) {
			_ = s.Stop()
			t.Fatalf("did not capture sweep context in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	capturedMu.Lock()
	ctx := captured
	capturedMu.Unlock()

	select {
	case <-ctx.Done():
		// ok
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected sweep context to be canceled after Stop()")
	}
}

// waitForAtLeast waits until calls >= n or fails the test after timeout.
// Uses polling to avoid test flakes across CI.
func waitForAtLeast(t *testing.T, calls *atomic.Int64, n int64, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if calls.Load() >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for calls >= %d (got %d)", n, calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
