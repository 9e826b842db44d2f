package store

import (
	"sync"
	"sync/atomic"
	"time"
)

// Entity names the table a Change refers to.
type Entity string

const (
	EntityMessage Entity = "scheduled_message"
	EntityGroup   Entity = "scheduled_group"
)

// Op is the kind of mutation that happened.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is published after every committed mutation. Consumers that need
// fresh aggregates re-read the store when they receive one; the payload is
// deliberately identifiers only, never entity state. GroupID names the
// group whose aggregates the mutation touched (the group itself for group
// changes) and is zero for ungrouped messages.
type Change struct {
	Entity  Entity
	Op      Op
	ID      int64
	GroupID int64
	Time    time.Time
}

// Notifier is an in-memory fan-out of store changes.
//
// Publish never blocks: slow subscribers drop changes. That is acceptable
// because a Change only means "re-read", and a dropped one is covered by
// the next mutation or the next pull.
type Notifier struct {
	mu   sync.RWMutex
	subs map[uint64]chan Change
	seq  atomic.Uint64
}

func NewNotifier() *Notifier {
	return &Notifier{subs: map[uint64]chan Change{}}
}

func (n *Notifier) Publish(c Change) {
	if n == nil {
		return
	}
	if c.Time.IsZero() {
		c.Time = time.Now()
	}

	// Sends are non-blocking, so holding the read lock here is cheap and
	// guarantees no send races a concurrent close from cancel.
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribe registers a buffered listener and returns the channel plus a
// cancel func. Cancel is idempotent and closes the channel.
func (n *Notifier) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)
	id := n.seq.Add(1)

	n.mu.Lock()
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
