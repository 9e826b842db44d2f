package repo

import (
	"context"

	"github.com/jjiill888/quik/internal/model"
)

// SaveMessageParams carries everything needed to persist a new
// scheduled message. The id is allocated by the repository.
type SaveMessageParams struct {
	Date           int64
	SubscriptionID int
	Recipients     []string
	SendAsGroup    bool
	Body           string
	Attachments    []string
	ConversationID int64
	GroupID        int64
}

type ScheduledMessageRepository interface {
	// Save allocates the next id and persists the message in one
	// transaction. The first id on an empty table is 0.
	Save(ctx context.Context, p SaveMessageParams) (model.ScheduledMessage, error)

	Update(ctx context.Context, m model.ScheduledMessage) error

	// Get returns store.ErrNotFound when the message is absent.
	Get(ctx context.Context, id int64) (model.ScheduledMessage, error)

	// List returns every message ordered for the unfiltered screen:
	// incomplete first, then soonest due, then most recently completed.
	List(ctx context.Context) ([]model.ScheduledMessage, error)

	// ListForGroup orders a group's messages for the detail screen:
	// incomplete first, most recently completed next, newest id last key.
	ListForGroup(ctx context.Context, groupID int64) ([]model.ScheduledMessage, error)

	ListForConversation(ctx context.Context, conversationID int64) ([]model.ScheduledMessage, error)

	// MarkCompleted sets completed and completedAt. Absent id returns
	// store.ErrNotFound.
	MarkCompleted(ctx context.Context, id int64, completedAt int64) error

	Delete(ctx context.Context, id int64) error

	// IDsSnapshot materializes the ids of all messages, ordered by date,
	// as an immutable list safe to iterate while the store mutates.
	IDsSnapshot(ctx context.Context) ([]int64, error)

	// IDsForGroup is the snapshot used by cascade delete and alarm cancel.
	IDsForGroup(ctx context.Context, groupID int64) ([]int64, error)
}

type ScheduledGroupRepository interface {
	// Create allocates the next group id (starting at 1; 0 is the
	// "no group" sentinel and is never assigned) and persists the group.
	Create(ctx context.Context, name, description string) (model.ScheduledGroup, error)

	// Get returns store.ErrNotFound when the group is absent.
	Get(ctx context.Context, id int64) (model.ScheduledGroup, error)

	List(ctx context.Context) ([]model.ScheduledGroup, error)

	// Update rewrites name and description and bumps updatedAt.
	Update(ctx context.Context, g model.ScheduledGroup) error

	// Delete removes the group and cascades to all of its messages in
	// one transaction.
	Delete(ctx context.Context, id int64) error
}

// ThreadRepository resolves a stable conversation thread id for a
// recipient set, creating one on first use.
type ThreadRepository interface {
	ResolveOrCreate(ctx context.Context, recipients []string) (int64, error)
}
