// Package aggregate holds the pure stat and ordering rules for the
// list and detail screens. Everything here is synchronous and safe to
// run on any goroutine; callers re-invoke it when the store notifies a
// change or on each render.
package aggregate

import (
	"sort"

	"github.com/jjiill888/quik/internal/model"
)

// GroupStats computes per-group completion counts from a message
// slice. Ungrouped messages are ignored. Every group in groups gets an
// entry, empty groups included.
func GroupStats(groups []model.ScheduledGroup, messages []model.ScheduledMessage) map[int64]model.GroupStats {
	counts := map[int64]model.GroupStats{}
	for _, g := range groups {
		counts[g.ID] = model.GroupStats{}
	}
	for _, m := range messages {
		if !m.Grouped() {
			continue
		}
		s := counts[m.GroupID]
		s.Total++
		if m.Completed {
			s.Completed++
		}
		counts[m.GroupID] = s
	}
	for id, s := range counts {
		s.Pending = s.Total - s.Completed
		s.AllCompleted = s.Total > 0 && s.Pending == 0
		counts[id] = s
	}
	return counts
}

// StatsFor computes the stats of a single group's message slice.
func StatsFor(messages []model.ScheduledMessage) model.GroupStats {
	var s model.GroupStats
	for _, m := range messages {
		s.Total++
		if m.Completed {
			s.Completed++
		}
	}
	s.Pending = s.Total - s.Completed
	s.AllCompleted = s.Total > 0 && s.Pending == 0
	return s
}

// SortGroups orders groups for the list screen: groups with work left
// come before fully completed ones, newest created first within each
// bucket.
func SortGroups(groups []model.ScheduledGroup, stats map[int64]model.GroupStats) {
	sort.SliceStable(groups, func(i, j int) bool {
		ci := stats[groups[i].ID].AllCompleted
		cj := stats[groups[j].ID].AllCompleted
		if ci != cj {
			return !ci
		}
		return groups[i].CreatedAt > groups[j].CreatedAt
	})
}

// SortGroupMessages orders a group's messages for the detail screen:
// incomplete first, most recently completed next among completed ones,
// newest id first as the tie-break (the effective order among
// incomplete items, whose completedAt is zero).
func SortGroupMessages(messages []model.ScheduledMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		if a.CompletedAt != b.CompletedAt {
			return a.CompletedAt > b.CompletedAt
		}
		return a.ID > b.ID
	})
}

// SortMessages orders the unfiltered list: incomplete first, soonest
// due first among incomplete, most recently completed first among
// completed.
func SortMessages(messages []model.ScheduledMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.CompletedAt > b.CompletedAt
	})
}
