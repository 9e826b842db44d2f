package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/jjiill888/quik/internal/model"
	"github.com/jjiill888/quik/internal/store"
)

// Invalidator subscribes to store changes and drops the cached stats of
// any group a mutation touched, so cached reads go stale for at most one
// render cycle instead of a full TTL. Deletion is best-effort: a failed
// delete is logged and the TTL remains the backstop.
type Invalidator struct {
	cancel func()
	done   chan struct{}
}

func NewInvalidator(notifier *store.Notifier, stats StatsCache) *Invalidator {
	ch, cancel := notifier.Subscribe(64)
	inv := &Invalidator{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(inv.done)
		for c := range ch {
			if c.GroupID == model.NoGroupID {
				continue
			}
			ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
			if err := stats.Invalidate(ctx, c.GroupID); err != nil {
				slog.Warn("stats invalidation failed",
					"group", c.GroupID, "entity", c.Entity, "op", c.Op, "error", err)
			}
			cancelCtx()
		}
	}()
	return inv
}

// Stop unsubscribes and waits for the worker to drain.
func (i *Invalidator) Stop() {
	i.cancel()
	<-i.done
}
