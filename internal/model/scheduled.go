package model

const (
	// NoGroupID marks a message that does not belong to any group.
	// Group ids start at 1, so 0 is never a real group.
	NoGroupID int64 = 0

	// DefaultSubscriptionID selects the system default SIM/subscription.
	DefaultSubscriptionID = -1
)

const (
	MaxGroupNameLen        = 100
	MaxGroupDescriptionLen = 500
)

// ScheduledMessage is one outbound message awaiting delivery.
// Date and CompletedAt are epoch milliseconds.
type ScheduledMessage struct {
	ID             int64
	Date           int64
	SubscriptionID int
	Recipients     []string
	SendAsGroup    bool
	Body           string
	Attachments    []string
	ConversationID int64
	GroupID        int64
	Completed      bool
	CompletedAt    int64
}

// Grouped reports whether the message belongs to a scheduled group,
// which decides complete-vs-delete at fire time.
func (m ScheduledMessage) Grouped() bool {
	return m.GroupID != NoGroupID
}

// ScheduledGroup is a named batch of scheduled messages.
type ScheduledGroup struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   int64
	UpdatedAt   int64
}

// GroupStats summarizes message completion within one group.
type GroupStats struct {
	Total        int  `json:"total"`
	Completed    int  `json:"completed"`
	Pending      int  `json:"pending"`
	AllCompleted bool `json:"allCompleted"`
}
