/*
Package store persists user preferences, the feedback log and custom gesture
responses in SQLite.

The database uses modernc.org/sqlite (pure Go, no CGo). When the database
cannot be opened the store disables itself: writes become no-ops and reads
return nothing, so the engine keeps running on in-memory defaults.
*/
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-gesture/internal/log"
)

// DefaultPath returns ~/.gesture/gesture.db, or a relative fallback when
// the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gesture", "gesture.db")
	}
	return filepath.Join(home, ".gesture", "gesture.db")
}

// SQLite is the SQLite-backed store.
type SQLite struct {
	db       *sql.DB
	path     string
	enabled  bool
	mu       sync.Mutex
	initOnce sync.Once
	initErr  error
	logger   *slog.Logger
}

// New creates a store for the database at path. An empty path disables
// persistence.
func New(path string) *SQLite {
	return &SQLite{
		path:    path,
		enabled: path != "",
		logger:  log.Component("store"),
	}
}

// Open creates the store and initializes it. Initialization failures are
// logged and leave the store disabled.
func Open(ctx context.Context, path string) *SQLite {
	s := New(path)
	if err := s.Init(ctx); err != nil {
		s.logger.Warn("preference store unavailable, continuing without persistence", "path", path, "err", err)
	}
	return s
}

// Init opens the database and runs migrations. It runs once.
func (s *SQLite) Init(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	s.initOnce.Do(func() {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			s.initErr = fmt.Errorf("create store directory: %w", err)
			s.enabled = false
			return
		}

		db, err := sql.Open("sqlite", s.path)
		if err != nil {
			s.initErr = fmt.Errorf("open database: %w", err)
			s.enabled = false
			return
		}
		// One writer keeps SQLite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			s.initErr = fmt.Errorf("ping database: %w", err)
			s.enabled = false
			return
		}
		s.db = db

		if err := s.runMigrations(ctx); err != nil {
			db.Close()
			s.db = nil
			s.initErr = fmt.Errorf("migrate database: %w", err)
			s.enabled = false
			return
		}
		s.logger.Debug("preference store ready", "path", s.path)
	})

	return s.initErr
}

// Enabled reports whether persistence is active.
func (s *SQLite) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready()
}

func (s *SQLite) ready() bool {
	return s.enabled && s.db != nil
}

// Path returns the database location.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.enabled = false
	return err
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
