package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jjiill888/quik/internal/model"
	"github.com/jjiill888/quik/internal/store"
)

type SQLiteGroupRepo struct {
	db       *sql.DB
	notifier *store.Notifier
	now      func() time.Time
}

func NewSQLiteGroupRepo(db *sql.DB, notifier *store.Notifier) *SQLiteGroupRepo {
	return &SQLiteGroupRepo{db: db, notifier: notifier, now: time.Now}
}

var _ ScheduledGroupRepository = (*SQLiteGroupRepo)(nil)

func (r *SQLiteGroupRepo) Create(ctx context.Context, name, description string) (model.ScheduledGroup, error) {
	if name == "" {
		return model.ScheduledGroup{}, errors.New("group name is required")
	}
	if len([]rune(name)) > model.MaxGroupNameLen {
		return model.ScheduledGroup{}, fmt.Errorf("group name exceeds %d chars", model.MaxGroupNameLen)
	}
	if len([]rune(description)) > model.MaxGroupDescriptionLen {
		return model.ScheduledGroup{}, fmt.Errorf("group description exceeds %d chars", model.MaxGroupDescriptionLen)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ScheduledGroup{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Group ids start at 1; 0 stays reserved as the "no group" sentinel.
	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM scheduled_groups`,
	).Scan(&id); err != nil {
		return model.ScheduledGroup{}, err
	}

	now := r.now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scheduled_groups (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, description, now, now); err != nil {
		return model.ScheduledGroup{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.ScheduledGroup{}, err
	}

	r.notifier.Publish(store.Change{Entity: store.EntityGroup, Op: store.OpCreate, ID: id, GroupID: id})

	return model.ScheduledGroup{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *SQLiteGroupRepo) Get(ctx context.Context, id int64) (model.ScheduledGroup, error) {
	var g model.ScheduledGroup
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM scheduled_groups
		WHERE id = ?
	`, id).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduledGroup{}, store.ErrNotFound
	}
	if err != nil {
		return model.ScheduledGroup{}, err
	}
	return g, nil
}

func (r *SQLiteGroupRepo) List(ctx context.Context) ([]model.ScheduledGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM scheduled_groups
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduledGroup
	for rows.Next() {
		var g model.ScheduledGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteGroupRepo) Update(ctx context.Context, g model.ScheduledGroup) error {
	if len([]rune(g.Name)) > model.MaxGroupNameLen {
		return fmt.Errorf("group name exceeds %d chars", model.MaxGroupNameLen)
	}
	if len([]rune(g.Description)) > model.MaxGroupDescriptionLen {
		return fmt.Errorf("group description exceeds %d chars", model.MaxGroupDescriptionLen)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_groups
		SET name = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, g.Name, g.Description, r.now().UnixMilli(), g.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	r.notifier.Publish(store.Change{Entity: store.EntityGroup, Op: store.OpUpdate, ID: g.ID, GroupID: g.ID})
	return nil
}

// Delete removes the group and every message that belongs to it as a
// single transaction, so a fire callback can never observe a message
// whose group is already gone.
func (r *SQLiteGroupRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_messages WHERE group_id = ?`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM scheduled_groups WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.notifier.Publish(store.Change{Entity: store.EntityGroup, Op: store.OpDelete, ID: id, GroupID: id})
	return nil
}
