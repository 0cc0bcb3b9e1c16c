package backend

import (
	"context"
	"fmt"

	"foodbudget/internal/log"
	"foodbudget/internal/storage"
	"foodbudget/internal/store/memory"
	"foodbudget/internal/store/sheets"
)

type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	db, err := storage.New(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{
		Backend: &Backend{Records: db, Settings: db, Users: db, Ping: db.Ping},
		Cleanup: db.Close,
	}, nil
}

// createSheetsBackend reads and writes records in Google Sheets. New
// expenses are queued in SQLite first so a slow or unavailable Sheets API
// never blocks the request path.
func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	db, err := storage.New(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	cli, err := sheets.New(ctx, sheets.Options{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		Metrics:            config.Metrics,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet", config.GoogleSheetName,
		"db_path", config.SQLiteDBPath)
	return &BackendResult{
		Backend: &Backend{Records: cli, Settings: db, Users: db, Pending: db, Ping: db.Ping},
		Cleanup: db.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	mem := memory.New()
	f.logger.Info("Initialized memory backend")
	return &BackendResult{
		Backend: &Backend{
			Records:  mem,
			Settings: mem,
			Users:    mem,
			Ping:     func(context.Context) error { return nil },
		},
	}, nil
}
