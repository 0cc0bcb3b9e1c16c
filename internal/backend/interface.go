// Package backend assembles the stores for the configured data backend.
package backend

import (
	"context"

	"foodbudget/internal/metrics"
	"foodbudget/internal/store"
)

type CleanupFunc func() error

// Backend bundles the store ports. Pending is nil unless writes are queued
// locally and pushed to the record store by the sync worker.
type Backend struct {
	Records  store.RecordStore
	Settings store.SettingsStore
	Users    store.UserStore
	Pending  store.PendingCache

	// Ping reports whether local storage is reachable.
	Ping func(ctx context.Context) error
}

// Queued reports whether new expenses go through the pending cache.
func (b *Backend) Queued() bool { return b.Pending != nil }

type BackendResult struct {
	Backend *Backend
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// sqlite and sheets; sheets keeps settings, users and the pending cache
	// in SQLite.
	SQLiteDBPath string

	// sheets only
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Metrics is handed to stores that report data problems; may be nil.
	Metrics *metrics.Metrics
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
