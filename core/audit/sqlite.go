// Package audit persists network change notifications to SQLite. It records
// what happened to the network for later inspection and never restores
// variant state from the database.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/adalundhe/gridvar/core/network"
)

// Event kinds stored in the kind column.
const (
	EventCreation       = "creation"
	EventRemoval        = "removal"
	EventUpdate         = "update"
	EventVariantCreated = "variant_created"
	EventVariantRemoved = "variant_removed"
)

var ErrClosed = errors.New("audit sink closed")

// Record is one stored event. VariantID is empty for events not tied to a
// variant.
type Record struct {
	ID         int64
	RunID      string
	Network    string
	Kind       string
	VariantID  string
	SourceID   string
	EntityID   string
	EntityKind string
	Attribute  string
	OldValue   string
	NewValue   string
	At         time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS change_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	network TEXT NOT NULL,
	kind TEXT NOT NULL,
	variant_id TEXT NOT NULL DEFAULT '',
	source_id TEXT NOT NULL DEFAULT '',
	entity_id TEXT NOT NULL DEFAULT '',
	entity_kind TEXT NOT NULL DEFAULT '',
	attribute TEXT NOT NULL DEFAULT '',
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_change_events_variant ON change_events(run_id, variant_id);
`

// SQLiteSink is a network.Listener writing every notification to a table.
// Listener methods cannot return errors; failed writes are logged and the
// last one is kept for LastError.
type SQLiteSink struct {
	db      *sql.DB
	path    string
	runID   string
	network string

	cache   *ristretto.Cache
	version atomic.Uint64

	mu      sync.Mutex
	closed  bool
	lastErr error

	logger *slog.Logger
	now    func() time.Time
}

type SinkConfig struct {
	// Path of the database file. ":memory:" keeps everything in memory.
	Path string

	// Network labels the rows; usually the network id.
	Network string

	// CacheEntries bounds the per-variant query cache. Zero disables it.
	CacheEntries int64

	Logger *slog.Logger
}

type cachedEvents struct {
	version uint64
	records []Record
}

// OpenSQLiteSink opens or creates the database at cfg.Path. Every sink gets a
// fresh run id so several runs can share one file.
func OpenSQLiteSink(cfg SinkConfig) (*SQLiteSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit: empty database path")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if cfg.Path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()

	s := &SQLiteSink{
		db:      db,
		path:    cfg.Path,
		runID:   runID,
		network: cfg.Network,
		logger:  logger.With(slog.String("audit_run", runID)),
		now:     time.Now,
	}

	if cfg.CacheEntries > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cfg.CacheEntries * 10,
			MaxCost:     cfg.CacheEntries,
			BufferItems: 64,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize query cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

func (s *SQLiteSink) RunID() string { return s.runID }

func (s *SQLiteSink) Path() string { return s.path }

// LastError returns the most recent write failure, if any.
func (s *SQLiteSink) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cache != nil {
		s.cache.Close()
	}
	return s.db.Close()
}

// =============================================================================
// network.Listener
// =============================================================================

func (s *SQLiteSink) OnCreation(identifiable network.Identifiable) {
	s.write(Record{Kind: EventCreation, EntityID: identifiable.ID(), EntityKind: identifiable.Kind().String()})
}

func (s *SQLiteSink) OnRemoval(identifiable network.Identifiable) {
	s.write(Record{Kind: EventRemoval, EntityID: identifiable.ID(), EntityKind: identifiable.Kind().String()})
}

func (s *SQLiteSink) OnUpdate(identifiable network.Identifiable, attribute string, oldValue, newValue any) {
	s.write(Record{
		Kind:       EventUpdate,
		EntityID:   identifiable.ID(),
		EntityKind: identifiable.Kind().String(),
		Attribute:  attribute,
		OldValue:   fmt.Sprint(oldValue),
		NewValue:   fmt.Sprint(newValue),
	})
}

func (s *SQLiteSink) OnVariantUpdate(identifiable network.Identifiable, attribute, variantID string, oldValue, newValue any) {
	s.write(Record{
		Kind:       EventUpdate,
		VariantID:  variantID,
		EntityID:   identifiable.ID(),
		EntityKind: identifiable.Kind().String(),
		Attribute:  attribute,
		OldValue:   fmt.Sprint(oldValue),
		NewValue:   fmt.Sprint(newValue),
	})
}

func (s *SQLiteSink) OnVariantCreated(sourceVariantID, targetVariantID string) {
	s.write(Record{Kind: EventVariantCreated, VariantID: targetVariantID, SourceID: sourceVariantID})
}

func (s *SQLiteSink) OnVariantRemoved(variantID string) {
	s.write(Record{Kind: EventVariantRemoved, VariantID: variantID})
}

func (s *SQLiteSink) write(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.lastErr = ErrClosed
		return
	}

	_, err := s.db.Exec(`
		INSERT INTO change_events
			(run_id, network, kind, variant_id, source_id, entity_id, entity_kind, attribute, old_value, new_value, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, s.network, r.Kind, r.VariantID, r.SourceID, r.EntityID, r.EntityKind,
		r.Attribute, r.OldValue, r.NewValue, s.now().UTC(),
	)
	s.version.Add(1)
	if err != nil {
		s.lastErr = fmt.Errorf("failed to record %s event: %w", r.Kind, err)
		s.logger.Error("audit write failed", slog.String("kind", r.Kind), slog.String("error", err.Error()))
	}
}

// =============================================================================
// Queries
// =============================================================================

// Events returns the events of this run tagged with variantID, oldest first.
// An empty variantID selects events not tied to a variant.
func (s *SQLiteSink) Events(ctx context.Context, variantID string) ([]Record, error) {
	version := s.version.Load()
	if s.cache != nil {
		if v, ok := s.cache.Get(variantID); ok {
			if cached, ok := v.(*cachedEvents); ok && cached.version == version {
				return append([]Record(nil), cached.records...), nil
			}
		}
	}

	records, err := s.query(ctx, `WHERE run_id = ? AND variant_id = ?`, s.runID, variantID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(variantID, &cachedEvents{version: version, records: records}, 1)
	}
	return append([]Record(nil), records...), nil
}

// All returns every event of this run, oldest first.
func (s *SQLiteSink) All(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `WHERE run_id = ?`, s.runID)
}

func (s *SQLiteSink) query(ctx context.Context, where string, args ...any) ([]Record, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return queryRecords(ctx, s.db, where, args...)
}

func queryRecords(ctx context.Context, db *sql.DB, where string, args ...any) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, run_id, network, kind, variant_id, source_id, entity_id, entity_kind,
			attribute, old_value, new_value, at
		FROM change_events `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RunID, &r.Network, &r.Kind, &r.VariantID, &r.SourceID,
			&r.EntityID, &r.EntityKind, &r.Attribute, &r.OldValue, &r.NewValue, &r.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

var _ network.Listener = (*SQLiteSink)(nil)
