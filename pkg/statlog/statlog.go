// Package statlog keeps a local SQLite history of stat samples recorded
// explicitly by the caller. Live stats are never served from it.
package statlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Bibi40k/vmgmt/configs"
)

// Sample is one recorded stat value.
type Sample struct {
	Provider   string    `json:"provider" yaml:"provider"`
	Stat       string    `json:"stat" yaml:"stat"`
	Value      float64   `json:"value" yaml:"value"`
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// Store is a SQLite-backed stat history.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// Open opens or creates the history database at path. ":memory:" keeps
// it in memory. A nil logger falls back to slog.Default().
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create dir for %s: %w", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}
	// one connection: sqlite serializes writers and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize stats schema: %w", err)
	}
	logger.Debug("Stats history opened", "path", path)
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS stat_samples (
			provider TEXT NOT NULL,
			stat TEXT NOT NULL,
			value REAL NOT NULL,
			recorded_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create samples table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_stat_samples_lookup
		ON stat_samples(provider, stat, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Record stores every stat in stats with the current time.
func (s *Store) Record(ctx context.Context, provider string, stats map[string]float64) error {
	return s.RecordAt(ctx, provider, stats, time.Now())
}

// RecordAt stores every stat in stats as sampled at t, in one transaction.
func (s *Store) RecordAt(ctx context.Context, provider string, stats map[string]float64, t time.Time) error {
	if provider == "" {
		return fmt.Errorf("provider is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stat_samples (provider, stat, value, recorded_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, provider, name, stats[name], t.UnixNano()); err != nil {
			return fmt.Errorf("record %s/%s: %w", provider, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	s.logger.Debug("Recorded stats", "provider", provider, "count", len(names))
	return nil
}

// History returns up to limit samples of stat for provider, newest first.
// limit <= 0 uses the configured default.
func (s *Store) History(ctx context.Context, provider, stat string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = configs.Defaults.Stats.HistoryLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, stat, value, recorded_at
		FROM stat_samples
		WHERE provider = ? AND stat = ?
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?
	`, provider, stat, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	samples := []Sample{}
	for rows.Next() {
		var (
			sm   Sample
			nano int64
		)
		if err := rows.Scan(&sm.Provider, &sm.Stat, &sm.Value, &nano); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		sm.RecordedAt = time.Unix(0, nano)
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return samples, nil
}

// Prune deletes samples recorded before cutoff and returns how many.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM stat_samples WHERE recorded_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	if n > 0 {
		s.logger.Info("Pruned stats history", "removed", n, "before", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
