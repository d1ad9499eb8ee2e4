package usage

import (
	"context"
	"errors"
	"fmt"

	"llmbridge/internal/storage"
)

// Result holds the initialized journal and its dependencies.
// The caller is responsible for calling Close() to release resources.
type Result struct {
	Logger  Recorder
	Reader  Reader
	Storage storage.Storage
}

// Close releases all resources held by the journal.
// Safe to call multiple times.
func (r *Result) Close() error {
	var errs []error
	if r.Logger != nil {
		if err := r.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("logger close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// New creates a usage journal from configuration.
// Returns a Result containing the logger, reader and storage for lifecycle
// management. The caller must call Result.Close() during shutdown.
//
// If the journal is disabled, returns a NoopLogger with nil reader and storage.
func New(ctx context.Context, cfg Config, storageCfg storage.Config) (*Result, error) {
	if !cfg.Enabled {
		return &Result{Logger: &NoopLogger{}}, nil
	}

	if storageCfg.Type == "" {
		storageCfg = storage.DefaultConfig()
	}

	store, err := storage.New(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	usageStore, reader, err := buildStoreAndReader(store, cfg.RetentionDays)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Result{
		Logger:  NewLogger(usageStore, cfg),
		Reader:  reader,
		Storage: store,
	}, nil
}

// NewWithSharedStorage creates a usage journal using a shared storage
// connection. The caller is responsible for closing the storage separately.
func NewWithSharedStorage(cfg Config, store storage.Storage) (*Result, error) {
	if !cfg.Enabled {
		return &Result{Logger: &NoopLogger{}}, nil
	}

	if store == nil {
		return nil, fmt.Errorf("storage is required when the usage journal is enabled")
	}

	usageStore, reader, err := buildStoreAndReader(store, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}

	return &Result{
		Logger: NewLogger(usageStore, cfg),
		Reader: reader,
		// Storage stays nil: the caller owns the shared connection.
	}, nil
}

// buildStoreAndReader creates the write and read side for the storage backend.
func buildStoreAndReader(store storage.Storage, retentionDays int) (Store, Reader, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		s, err := NewSQLiteStore(store.SQLiteDB(), retentionDays)
		if err != nil {
			return nil, nil, err
		}
		r, err := NewSQLiteReader(store.SQLiteDB())
		if err != nil {
			return nil, nil, err
		}
		return s, r, nil

	case storage.TypePostgreSQL:
		pool := store.PostgreSQLPool()
		if pool == nil {
			return nil, nil, fmt.Errorf("PostgreSQL pool is nil")
		}
		s, err := NewPostgreSQLStore(pool, retentionDays)
		if err != nil {
			return nil, nil, err
		}
		r, err := NewPostgreSQLReader(pool)
		if err != nil {
			return nil, nil, err
		}
		return s, r, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}
