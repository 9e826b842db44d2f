package cache

import (
	"context"
	"errors"

	"github.com/jjiill888/quik/internal/model"
)

// ErrMiss is returned when no cached stats exist for a group.
var ErrMiss = errors.New("cache: miss")

// StatsCache keeps per-group completion stats warm for list screens.
// A stale entry is acceptable for at most one TTL window; mutation
// paths invalidate best-effort.
type StatsCache interface {
	StoreStats(ctx context.Context, groupID int64, stats model.GroupStats) error
	GetStats(ctx context.Context, groupID int64) (model.GroupStats, error)
	Invalidate(ctx context.Context, groupID int64) error
}
