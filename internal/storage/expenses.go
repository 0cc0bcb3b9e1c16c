package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"foodbudget/internal/core"
	"foodbudget/internal/store"
)

const expenseColumns = `id, date, meal, amount, user_id, user_email, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(sc rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		date      string
		meal      string
		createdAt int64
	)
	if err := sc.Scan(&e.ID, &date, &meal, &e.Amount, &e.UserID, &e.UserEmail, &createdAt); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	e.Date = d
	e.Meal = core.Meal(meal)
	e.CreatedAt = fromUnixNano(createdAt)
	return e, nil
}

// QueryByDateRange returns records dated start..end inclusive, oldest first.
func (s *SQLiteStore) QueryByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE date >= ? AND date <= ? ORDER BY date, created_at, id`,
		start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Create(ctx context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date.String(), string(e.Meal), e.Amount, e.UserID, e.UserEmail, unixNano(e.CreatedAt))
	if isUniqueViolation(err) {
		return "", fmt.Errorf("expense %s: %w", e.ID, store.ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("create expense: %w", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite", "id", e.ID, "date", e.Date.String(), "meal", e.Meal, "amount", e.Amount)
	return e.ID, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	e, err := scanExpense(tx.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("load expense: %w", err)
	}

	e = patch.Apply(e)
	if _, err := tx.ExecContext(ctx,
		`UPDATE expenses SET date = ?, meal = ?, amount = ? WHERE id = ?`,
		e.Date.String(), string(e.Meal), e.Amount, id); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	return nil
}
