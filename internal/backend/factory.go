// Package backend constructs the configured system of record behind a
// single interface, so the rest of the application never branches on
// the storage kind.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"advancebot/internal/config"
	"advancebot/internal/ledger/google"
	"advancebot/internal/ledger/memory"
	"advancebot/internal/storage"
)

// Factory creates backends based on configuration.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Create builds the backend named by cfg.DataBackend.
func (f *Factory) Create(ctx context.Context, cfg *config.Config) (*Result, error) {
	kind := Kind(cfg.DataBackend)
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid backend kind: %s", cfg.DataBackend)
	}

	switch kind {
	case MemoryBackend:
		return f.createMemory()
	case SQLiteBackend:
		return f.createSQLite(cfg)
	case SheetsBackend:
		return f.createSheets(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported backend kind: %s", kind)
	}
}

func (f *Factory) createMemory() (*Result, error) {
	store := memory.NewSeeded()

	f.logger.Info("Initialized memory backend")

	return &Result{Backend: store, Cleanup: nil}, nil
}

func (f *Factory) createSQLite(cfg *config.Config) (*Result, error) {
	repo, err := storage.NewRepository(cfg.SQLiteDBPath, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)

	return &Result{Backend: repo, Cleanup: repo.Close}, nil
}

func (f *Factory) createSheets(ctx context.Context, cfg *config.Config) (*Result, error) {
	creds, err := google.ReadCredentials(cfg.GoogleCredentialsJSON, cfg.GoogleCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load Google credentials: %w", err)
	}

	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: creds,
		ReferenceSheet:  cfg.GoogleReferenceSheet,
		AuditSheet:      cfg.GoogleAuditSheet,
		UsersSheet:      cfg.GoogleUsersSheet,
		SummarySheet:    cfg.GoogleSummarySheet,
		TemplateSheet:   cfg.GoogleTemplateSheet,
		Location:        cfg.Location(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"spreadsheet_id", cfg.GoogleSpreadsheetID)

	return &Result{Backend: cli, Cleanup: nil}, nil
}
