// Package alarm registers one-shot wall-clock wake-ups for scheduled
// messages. Platform scheduling capabilities degrade in tiers: exact
// idle-surviving wake-ups first, inexact idle-surviving next, plain
// exact last. Capability failures demote to the next tier; only an
// all-tiers failure is reported, and callers are expected to log it
// rather than propagate it.
package alarm

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Tier identifies which scheduling capability actually took the alarm.
type Tier int

const (
	TierExactIdle Tier = iota
	TierInexactIdle
	TierExact
)

func (t Tier) String() string {
	switch t {
	case TierExactIdle:
		return "exact_idle"
	case TierInexactIdle:
		return "inexact_idle"
	case TierExact:
		return "exact"
	default:
		return "unknown"
	}
}

// ErrAllTiersFailed means no scheduling capability accepted the alarm.
var ErrAllTiersFailed = errors.New("alarm: all scheduling tiers failed")

// Alarms is the wake-up collaborator. The token identifies the alarm
// for cancellation; this system uses the scheduled message id.
type Alarms interface {
	Schedule(fireAt int64, token int64) (Tier, error)
	Cancel(token int64)
}

// attempt is one capability tier: it either accepts the wake-up or
// fails, in which case the next tier is tried.
type attempt struct {
	tier Tier
	fn   func(fireAt int64, token int64) error
}

// ClockAlarms schedules wake-ups with process-local timers. Each token
// owns at most one timer; rescheduling a token replaces its alarm.
type ClockAlarms struct {
	fire     func(token int64)
	attempts []attempt
	now      func() time.Time

	mu     sync.Mutex
	timers map[int64]*time.Timer
}

// NewClockAlarms builds the default alarm service. fire is invoked on
// its own goroutine when an alarm goes off.
func NewClockAlarms(fire func(token int64)) *ClockAlarms {
	if fire == nil {
		panic("alarm: fire callback must not be nil")
	}
	a := &ClockAlarms{
		fire:   fire,
		now:    time.Now,
		timers: map[int64]*time.Timer{},
	}
	a.attempts = []attempt{
		{TierExactIdle, a.setTimer},
		{TierInexactIdle, a.setTimer},
		{TierExact, a.setTimer},
	}
	return a
}

// WithAttempts overrides the capability tiers. Used by platforms whose
// exact scheduling can be denied, and by tests.
func (a *ClockAlarms) WithAttempts(fns map[Tier]func(fireAt, token int64) error) *ClockAlarms {
	attempts := make([]attempt, 0, len(a.attempts))
	for _, at := range a.attempts {
		if fn, ok := fns[at.tier]; ok && fn != nil {
			at.fn = fn
		}
		attempts = append(attempts, at)
	}
	a.attempts = attempts
	return a
}

// Schedule walks the tiers in order and returns the tier that accepted
// the alarm. Fire times in the past fire immediately.
func (a *ClockAlarms) Schedule(fireAt int64, token int64) (Tier, error) {
	var lastErr error
	for _, at := range a.attempts {
		if err := at.fn(fireAt, token); err != nil {
			lastErr = err
			continue
		}
		return at.tier, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrAllTiersFailed, lastErr)
}

func (a *ClockAlarms) Cancel(token int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.timers[token]; ok {
		t.Stop()
		delete(a.timers, token)
	}
}

// Stop cancels every pending alarm. Used at shutdown.
func (a *ClockAlarms) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for token, t := range a.timers {
		t.Stop()
		delete(a.timers, token)
	}
}

func (a *ClockAlarms) setTimer(fireAt int64, token int64) error {
	delay := time.Duration(fireAt-a.now().UnixMilli()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.timers[token]; ok {
		prev.Stop()
	}
	a.timers[token] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		delete(a.timers, token)
		a.mu.Unlock()
		a.fire(token)
	})
	return nil
}
