package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jjiill888/quik/internal/alarm"
	"github.com/jjiill888/quik/internal/model"
	"github.com/jjiill888/quik/internal/repo"
	"github.com/jjiill888/quik/internal/store"
)

// GroupMessage is one row of a batch: the parser's valid rows map to
// this, and hand-entered messages use it too.
type GroupMessage struct {
	ScheduledAtMilli int64
	PhoneNumber      string
	Body             string
	Name             string
}

// deleteWorkers bounds the background pool for batch deletes.
const deleteWorkers = 4

// GroupService owns the group creation pipeline, scheduling of single
// messages, and all deletion paths (which also cancel pending
// wake-ups).
type GroupService struct {
	groups   repo.ScheduledGroupRepository
	messages repo.ScheduledMessageRepository
	alarms   alarm.Alarms
}

func NewGroupService(groups repo.ScheduledGroupRepository, messages repo.ScheduledMessageRepository, alarms alarm.Alarms) *GroupService {
	return &GroupService{groups: groups, messages: messages, alarms: alarms}
}

// CreateGroupWithMessages persists the group, then its messages, then
// requests one wake-up per message. A message that fails to persist is
// logged and skipped; a wake-up that cannot be scheduled is logged and
// the message stays persisted (it can still be sent late or manually).
// Only a failure to persist the group itself aborts the pipeline.
func (s *GroupService) CreateGroupWithMessages(ctx context.Context, name, description string, msgs []GroupMessage) (model.ScheduledGroup, error) {
	batchID := uuid.NewString()

	group, err := s.groups.Create(ctx, name, description)
	if err != nil {
		return model.ScheduledGroup{}, err
	}
	slog.Info("scheduled group created",
		"batch", batchID, "group", group.ID, "name", group.Name, "messages", len(msgs))

	saved := make([]model.ScheduledMessage, 0, len(msgs))
	for _, m := range msgs {
		message, err := s.messages.Save(ctx, repo.SaveMessageParams{
			Date:           m.ScheduledAtMilli,
			SubscriptionID: model.DefaultSubscriptionID,
			Recipients:     []string{m.PhoneNumber},
			SendAsGroup:    false,
			Body:           m.Body,
			ConversationID: 0,
			GroupID:        group.ID,
		})
		if err != nil {
			slog.Error("failed to persist group message, continuing",
				"batch", batchID, "group", group.ID, "phone", m.PhoneNumber, "error", err)
			continue
		}
		saved = append(saved, message)
	}

	for _, m := range saved {
		s.scheduleAlarm(m)
	}
	return group, nil
}

// ScheduleMessage persists a single scheduled message (grouped or not)
// and requests its wake-up.
func (s *GroupService) ScheduleMessage(ctx context.Context, p repo.SaveMessageParams) (model.ScheduledMessage, error) {
	message, err := s.messages.Save(ctx, p)
	if err != nil {
		return model.ScheduledMessage{}, err
	}
	s.scheduleAlarm(message)
	return message, nil
}

// UpdateGroup renames a group or edits its description.
func (s *GroupService) UpdateGroup(ctx context.Context, g model.ScheduledGroup) error {
	return s.groups.Update(ctx, g)
}

// DeleteMessage cancels the message's pending wake-up and removes it.
// An already-absent message is a benign no-op.
func (s *GroupService) DeleteMessage(ctx context.Context, id int64) error {
	s.alarms.Cancel(id)
	if err := s.messages.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// DeleteMessages removes many messages through a bounded background
// pool. It returns immediately; each id is deleted fire-and-forget and
// failures are only logged.
func (s *GroupService) DeleteMessages(ids []int64) {
	snapshot := make([]int64, len(ids))
	copy(snapshot, ids)

	go func() {
		var g errgroup.Group
		g.SetLimit(deleteWorkers)
		for _, id := range snapshot {
			id := id
			g.Go(func() error {
				if err := s.DeleteMessage(context.Background(), id); err != nil {
					slog.Error("background delete failed", "id", id, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// DeleteGroup cancels the wake-ups of every member message, then
// removes the group and its messages. The member ids are materialized
// first so the iteration cannot race the cascade.
func (s *GroupService) DeleteGroup(ctx context.Context, id int64) error {
	ids, err := s.messages.IDsForGroup(ctx, id)
	if err != nil {
		return err
	}
	for _, messageID := range ids {
		s.alarms.Cancel(messageID)
	}

	if err := s.groups.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	slog.Info("scheduled group deleted", "group", id, "messages", len(ids))
	return nil
}

// RefreshAlarms re-arms a wake-up for every incomplete message. Run at
// startup and by the sweeper to cover fire times that passed while the
// process was down; past-due messages fire immediately.
func (s *GroupService) RefreshAlarms(ctx context.Context) (int, error) {
	messages, err := s.messages.List(ctx)
	if err != nil {
		return 0, err
	}

	armed := 0
	for _, m := range messages {
		if m.Completed {
			continue
		}
		s.scheduleAlarm(m)
		armed++
	}
	return armed, nil
}

func (s *GroupService) scheduleAlarm(m model.ScheduledMessage) {
	tier, err := s.alarms.Schedule(m.Date, m.ID)
	if err != nil {
		slog.Error("failed to schedule wake-up, message stays persisted",
			"id", m.ID, "date", m.Date, "error", err)
		return
	}
	slog.Debug("wake-up scheduled", "id", m.ID, "date", m.Date, "tier", tier.String())
}
