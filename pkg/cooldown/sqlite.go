package cooldown

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists cooldown state in SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.Mutex
	closeOnce sync.Once

	acquireStmt *sql.Stmt
	lastStmt    *sql.Stmt
	resetStmt   *sql.Stmt
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (creating if needed) a cooldown database.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trigger_cooldowns (
		key TEXT PRIMARY KEY,
		last_fired INTEGER NOT NULL,
		fire_count INTEGER NOT NULL DEFAULT 1
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	// The conditional upsert only touches the row when the window has
	// elapsed, so RowsAffected tells whether this caller acquired.
	s.acquireStmt, err = s.db.Prepare(`
		INSERT INTO trigger_cooldowns (key, last_fired, fire_count)
		VALUES (?, ?, 1)
		ON CONFLICT (key) DO UPDATE SET
			last_fired = excluded.last_fired,
			fire_count = trigger_cooldowns.fire_count + 1
		WHERE trigger_cooldowns.last_fired <= ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare acquire statement: %w", err)
	}

	s.lastStmt, err = s.db.Prepare(`SELECT last_fired FROM trigger_cooldowns WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare last statement: %w", err)
	}

	s.resetStmt, err = s.db.Prepare(`DELETE FROM trigger_cooldowns WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare reset statement: %w", err)
	}
	return nil
}

// TryAcquire implements Store.
func (s *SQLiteStore) TryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Duration, error) {
	if key == "" {
		return false, 0, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.acquireStmt.ExecContext(ctx, key, now.UnixNano(), now.Add(-window).UnixNano())
	if err != nil {
		return false, 0, fmt.Errorf("failed to acquire cooldown: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return true, 0, nil
	}

	var last int64
	if err := s.lastStmt.QueryRowContext(ctx, key).Scan(&last); err != nil {
		return false, 0, fmt.Errorf("failed to load cooldown: %w", err)
	}
	return false, remaining(time.Unix(0, last), now, window), nil
}

// LastFired implements Store.
func (s *SQLiteStore) LastFired(ctx context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last int64
	err := s.lastStmt.QueryRowContext(ctx, key).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load cooldown: %w", err)
	}
	return time.Unix(0, last), true, nil
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.resetStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to reset cooldown: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.acquireStmt, s.lastStmt, s.resetStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}
