package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jjiill888/quik/internal/model"
	"github.com/jjiill888/quik/internal/store"
)

const messageColumns = `id, date, subscription_id, recipients, send_as_group,
       body, attachments, conversation_id, group_id, completed, completed_at`

type SQLiteMessageRepo struct {
	db       *sql.DB
	notifier *store.Notifier
}

func NewSQLiteMessageRepo(db *sql.DB, notifier *store.Notifier) *SQLiteMessageRepo {
	return &SQLiteMessageRepo{db: db, notifier: notifier}
}

var _ ScheduledMessageRepository = (*SQLiteMessageRepo)(nil)

func (r *SQLiteMessageRepo) Save(ctx context.Context, p SaveMessageParams) (model.ScheduledMessage, error) {
	if len(p.Recipients) == 0 {
		return model.ScheduledMessage{}, errors.New("at least one recipient is required")
	}

	recipients, err := encodeList(p.Recipients)
	if err != nil {
		return model.ScheduledMessage{}, err
	}
	attachments, err := encodeList(p.Attachments)
	if err != nil {
		return model.ScheduledMessage{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ScheduledMessage{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Allocate max+1 inside the insert transaction so concurrent saves
	// cannot observe the same id. First id on an empty table is 0.
	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), -1) + 1 FROM scheduled_messages`,
	).Scan(&id); err != nil {
		return model.ScheduledMessage{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scheduled_messages
			(id, date, subscription_id, recipients, send_as_group,
			 body, attachments, conversation_id, group_id, completed, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)
	`, id, p.Date, p.SubscriptionID, recipients, p.SendAsGroup,
		p.Body, attachments, p.ConversationID, p.GroupID); err != nil {
		return model.ScheduledMessage{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.ScheduledMessage{}, err
	}

	r.notifier.Publish(store.Change{Entity: store.EntityMessage, Op: store.OpCreate, ID: id, GroupID: p.GroupID})

	return model.ScheduledMessage{
		ID:             id,
		Date:           p.Date,
		SubscriptionID: p.SubscriptionID,
		Recipients:     p.Recipients,
		SendAsGroup:    p.SendAsGroup,
		Body:           p.Body,
		Attachments:    p.Attachments,
		ConversationID: p.ConversationID,
		GroupID:        p.GroupID,
	}, nil
}

func (r *SQLiteMessageRepo) Update(ctx context.Context, m model.ScheduledMessage) error {
	recipients, err := encodeList(m.Recipients)
	if err != nil {
		return err
	}
	attachments, err := encodeList(m.Attachments)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET date = ?, subscription_id = ?, recipients = ?, send_as_group = ?,
		    body = ?, attachments = ?, conversation_id = ?, group_id = ?,
		    completed = ?, completed_at = ?
		WHERE id = ?
	`, m.Date, m.SubscriptionID, recipients, m.SendAsGroup,
		m.Body, attachments, m.ConversationID, m.GroupID,
		m.Completed, m.CompletedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	r.notifier.Publish(store.Change{Entity: store.EntityMessage, Op: store.OpUpdate, ID: m.ID, GroupID: m.GroupID})
	return nil
}

func (r *SQLiteMessageRepo) Get(ctx context.Context, id int64) (model.ScheduledMessage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE id = ?
	`, id)
	return scanMessage(row)
}

func (r *SQLiteMessageRepo) List(ctx context.Context) ([]model.ScheduledMessage, error) {
	return r.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		ORDER BY completed ASC, date ASC, completed_at DESC
	`)
}

func (r *SQLiteMessageRepo) ListForGroup(ctx context.Context, groupID int64) ([]model.ScheduledMessage, error) {
	return r.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE group_id = ?
		ORDER BY completed ASC, completed_at DESC, id DESC
	`, groupID)
}

func (r *SQLiteMessageRepo) ListForConversation(ctx context.Context, conversationID int64) ([]model.ScheduledMessage, error) {
	return r.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE conversation_id = ?
		ORDER BY completed ASC, date ASC, completed_at DESC
	`, conversationID)
}

func (r *SQLiteMessageRepo) MarkCompleted(ctx context.Context, id int64, completedAt int64) error {
	var groupID int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE scheduled_messages
		SET completed = 1, completed_at = ?
		WHERE id = ?
		RETURNING group_id
	`, completedAt, id).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	r.notifier.Publish(store.Change{Entity: store.EntityMessage, Op: store.OpUpdate, ID: id, GroupID: groupID})
	return nil
}

func (r *SQLiteMessageRepo) Delete(ctx context.Context, id int64) error {
	var groupID int64
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM scheduled_messages WHERE id = ? RETURNING group_id
	`, id).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	r.notifier.Publish(store.Change{Entity: store.EntityMessage, Op: store.OpDelete, ID: id, GroupID: groupID})
	return nil
}

func (r *SQLiteMessageRepo) IDsSnapshot(ctx context.Context) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT id FROM scheduled_messages ORDER BY date ASC`)
}

func (r *SQLiteMessageRepo) IDsForGroup(ctx context.Context, groupID int64) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT id FROM scheduled_messages WHERE group_id = ? ORDER BY date ASC`, groupID)
}

func (r *SQLiteMessageRepo) queryMessages(ctx context.Context, query string, args ...any) ([]model.ScheduledMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduledMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteMessageRepo) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (model.ScheduledMessage, error) {
	var m model.ScheduledMessage
	var recipients, attachments string

	err := row.Scan(
		&m.ID,
		&m.Date,
		&m.SubscriptionID,
		&recipients,
		&m.SendAsGroup,
		&m.Body,
		&attachments,
		&m.ConversationID,
		&m.GroupID,
		&m.Completed,
		&m.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduledMessage{}, store.ErrNotFound
	}
	if err != nil {
		return model.ScheduledMessage{}, err
	}

	if m.Recipients, err = decodeList(recipients); err != nil {
		return model.ScheduledMessage{}, fmt.Errorf("decode recipients for message %d: %w", m.ID, err)
	}
	if m.Attachments, err = decodeList(attachments); err != nil {
		return model.ScheduledMessage{}, fmt.Errorf("decode attachments for message %d: %w", m.ID, err)
	}
	return m, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}
