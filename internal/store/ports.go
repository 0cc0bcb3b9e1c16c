// Package store declares the persistence ports used by the budget service,
// the auth layer and the sync worker.
package store

import (
	"context"
	"errors"
	"time"

	"foodbudget/internal/core"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("already exists")
	ErrMissingID = errors.New("missing id")
)

// Ports for outbound adapters.
type (
	// RecordStore holds expense records. Create assigns an id when the
	// expense has none and returns it.
	RecordStore interface {
		QueryByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error)
		Get(ctx context.Context, id string) (core.Expense, error)
		Create(ctx context.Context, e core.Expense) (string, error)
		Update(ctx context.Context, id string, patch core.ExpensePatch) (core.Expense, error)
		Delete(ctx context.Context, id string) error
	}

	// SettingsStore holds the singleton budget configuration. ReadSettings
	// returns core.DefaultSettings when nothing was saved; WriteSettings
	// replaces the whole document.
	SettingsStore interface {
		ReadSettings(ctx context.Context) (core.Settings, error)
		WriteSettings(ctx context.Context, s core.Settings) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, u *core.User) error
		GetUserByEmail(ctx context.Context, email string) (*core.User, error)
		GetUserByID(ctx context.Context, id string) (*core.User, error)
	}

	// PendingCache keeps locally created expenses until the sync worker has
	// pushed them to the record store.
	PendingCache interface {
		Put(ctx context.Context, e core.Expense) error
		GetPending(ctx context.Context, id string) (PendingExpense, error)
		ListByUser(ctx context.Context, userID string) ([]PendingExpense, error)
		ListUnsynced(ctx context.Context, limit int) ([]PendingExpense, error)
		MarkSynced(ctx context.Context, id string) error
		MarkFailed(ctx context.Context, id string, reason string) error
	}
)

type PendingExpense struct {
	core.Expense
	Synced    bool      `json:"synced"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	SyncedAt  time.Time `json:"syncedAt,omitempty"`
}
