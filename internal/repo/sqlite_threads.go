package repo

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
)

// SQLiteThreadRepo maps a recipient set to a stable thread id. The key is
// order-insensitive: ["a","b"] and ["b","a"] resolve to the same thread.
type SQLiteThreadRepo struct {
	db *sql.DB
}

func NewSQLiteThreadRepo(db *sql.DB) *SQLiteThreadRepo {
	return &SQLiteThreadRepo{db: db}
}

var _ ThreadRepository = (*SQLiteThreadRepo)(nil)

func (r *SQLiteThreadRepo) ResolveOrCreate(ctx context.Context, recipients []string) (int64, error) {
	if len(recipients) == 0 {
		return 0, errors.New("at least one recipient is required")
	}
	key := threadKey(recipients)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM threads WHERE recipients_key = ?`, key).Scan(&id)
	switch {
	case err == nil:
		return id, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return 0, err
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM threads`,
	).Scan(&id); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO threads (id, recipients_key) VALUES (?, ?)`, id, key,
	); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func threadKey(recipients []string) string {
	normalized := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if trimmed := strings.TrimSpace(r); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	sort.Strings(normalized)
	return strings.Join(normalized, ",")
}
