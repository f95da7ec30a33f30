package storage

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/mediator/pkg/config"
	"mercator-hq/mediator/pkg/reflection"
)

// Open creates the backend named by cfg.Backend.
func Open(cfg config.StorageConfig, logger *slog.Logger) (reflection.Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		s, err := NewSQLiteStorage(&SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// Discard is a Storage that keeps nothing.
type Discard struct{}

func (Discard) Store(ctx context.Context, r *reflection.Reflection) error {
	if r == nil {
		return reflection.NewStorageError("none", "store", reflection.ErrNilReflection)
	}
	return nil
}

func (Discard) Query(ctx context.Context, q *reflection.Query) ([]*reflection.Reflection, error) {
	return []*reflection.Reflection{}, nil
}

func (Discard) Count(ctx context.Context, q *reflection.Query) (int64, error) { return 0, nil }

func (Discard) Delete(ctx context.Context, q *reflection.Query) (int64, error) { return 0, nil }

func (Discard) Close() error { return nil }

var (
	_ reflection.Storage = (*MemoryStorage)(nil)
	_ reflection.Storage = (*SQLiteStorage)(nil)
	_ reflection.Storage = Discard{}
)
