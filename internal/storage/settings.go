package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"foodbudget/internal/core"
)

func (s *SQLiteStore) ReadSettings(ctx context.Context) (core.Settings, error) {
	var st core.Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT number_of_people, daily_limit_per_person FROM settings WHERE id = 1`).
		Scan(&st.NumberOfPeople, &st.DailyLimitPerPerson)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) WriteSettings(ctx context.Context, st core.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, number_of_people, daily_limit_per_person, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number_of_people = excluded.number_of_people,
			daily_limit_per_person = excluded.daily_limit_per_person,
			updated_at = excluded.updated_at`,
		st.NumberOfPeople, st.DailyLimitPerPerson, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
