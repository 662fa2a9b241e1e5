package store

import (
	"fmt"

	"github.com/1broseidon/vitalstream/internal/config"
	"github.com/1broseidon/vitalstream/internal/logging"
)

// BackendType represents the type of history backend
type BackendType string

const (
	// BackendMemory keeps the bounded history in process memory
	BackendMemory BackendType = "memory"
	// BackendBadger uses BadgerDB for embedded persistent history
	BackendBadger BackendType = "badger"
	// BackendPostgres uses PostgreSQL for persistent history
	BackendPostgres BackendType = "postgres"
)

// New creates a history store based on configuration
func New(cfg *config.StorageConfig, logger *logging.Logger) (HistoryStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	backendType := BackendType(cfg.Backend)
	if backendType == "" {
		backendType = BackendMemory
	}

	switch backendType {
	case BackendMemory:
		return NewMemoryStore(cfg.MaxRecords, cfg.MaxBytes, logger), nil

	case BackendBadger:
		return NewBadgerStore(cfg.Badger.Path, cfg.MaxRecords, cfg.MaxBytes, cfg.Badger.RetentionDays, logger)

	case BackendPostgres:
		connString := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Postgres.Host,
			cfg.Postgres.Port,
			cfg.Postgres.User,
			cfg.Postgres.Password,
			cfg.Postgres.Database,
			cfg.Postgres.SSLMode,
		)

		return NewPostgresStore(connString, cfg.MaxRecords, cfg.MaxBytes, logger)

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (valid options: memory, badger, postgres)", cfg.Backend)
	}
}
