package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"foodbudget/internal/core"
	"foodbudget/internal/store"
)

const pendingColumns = expenseColumns + `, synced, attempts, last_error, synced_at`

func scanPending(sc rowScanner) (store.PendingExpense, error) {
	var (
		p         store.PendingExpense
		date      string
		meal      string
		createdAt int64
		synced    int
		syncedAt  sql.NullInt64
	)
	err := sc.Scan(&p.ID, &date, &meal, &p.Amount, &p.UserID, &p.UserEmail, &createdAt,
		&synced, &p.Attempts, &p.LastError, &syncedAt)
	if err != nil {
		return store.PendingExpense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return store.PendingExpense{}, fmt.Errorf("pending expense %s: %w", p.ID, err)
	}
	p.Date = d
	p.Meal = core.Meal(meal)
	p.CreatedAt = fromUnixNano(createdAt)
	p.Synced = synced != 0
	if syncedAt.Valid {
		p.SyncedAt = fromUnixNano(syncedAt.Int64)
	}
	return p, nil
}

// Put stores e as unsynced, replacing any previous copy.
func (s *SQLiteStore) Put(ctx context.Context, e core.Expense) error {
	if e.ID == "" {
		return store.ErrMissingID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			meal = excluded.meal,
			amount = excluded.amount,
			user_id = excluded.user_id,
			user_email = excluded.user_email,
			created_at = excluded.created_at,
			synced = 0,
			attempts = 0,
			last_error = '',
			synced_at = NULL`,
		e.ID, e.Date.String(), string(e.Meal), e.Amount, e.UserID, e.UserEmail, unixNano(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("cache pending expense: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPending(ctx context.Context, id string) (store.PendingExpense, error) {
	p, err := scanPending(s.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.PendingExpense{}, fmt.Errorf("pending expense %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.PendingExpense{}, fmt.Errorf("get pending expense: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]store.PendingExpense, error) {
	return s.listPending(ctx,
		`SELECT `+pendingColumns+` FROM pending_expenses WHERE user_id = ? ORDER BY created_at, id`, userID)
}

// ListUnsynced returns up to limit unsynced entries, oldest first. A
// non-positive limit returns all of them.
func (s *SQLiteStore) ListUnsynced(ctx context.Context, limit int) ([]store.PendingExpense, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.listPending(ctx,
		`SELECT `+pendingColumns+` FROM pending_expenses WHERE synced = 0 ORDER BY created_at, id LIMIT ?`, limit)
}

func (s *SQLiteStore) listPending(ctx context.Context, query string, args ...any) ([]store.PendingExpense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending expenses: %w", err)
	}
	defer rows.Close()

	var out []store.PendingExpense
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending expense: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_expenses SET synced = 1, last_error = '', synced_at = ? WHERE id = ?`,
		s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending expense %s: %w", id, store.ErrNotFound)
	}
	slog.DebugContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_expenses SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		reason, id)
	if err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending expense %s: %w", id, store.ErrNotFound)
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "id", id, "reason", reason)
	return nil
}
