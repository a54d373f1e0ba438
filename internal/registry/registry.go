// Package registry persists watch records: the binding between a remote
// table, its local materialization, and the freshness signal observed at the
// last successful resync. The store is SQLite mirrored into memory; reads are
// served from the mirror, writes go through the database first.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// ErrInvalidRecord is returned by Upsert when a record violates the
// registry invariants (negative row limit, missing identity fields).
var ErrInvalidRecord = errors.New("registry: invalid record")

// ErrNotWatched is returned by Remove when no record exists for the key.
var ErrNotWatched = errors.New("registry: table is not watched")

// SQL statements for registry operations.
const (
	sqlLoadWatches = `SELECT project_id, table_id, local_path, last_signal,
		row_limit, include_headers
		FROM watches ORDER BY id`

	sqlUpsertWatch = `INSERT INTO watches
		(project_id, table_id, local_path, last_signal, row_limit,
		 include_headers, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, table_id) DO UPDATE SET
		 local_path = excluded.local_path,
		 last_signal = excluded.last_signal,
		 row_limit = excluded.row_limit,
		 include_headers = excluded.include_headers,
		 updated_at = excluded.updated_at`

	sqlDeleteWatch = `DELETE FROM watches WHERE project_id = ? AND table_id = ?`
)

// Record is the unit of tracked state: one watched table.
type Record struct {
	Project        string // owning project; part of the record's identity
	Table          string // remote table identifier; part of the identity
	LocalPath      string // where the table is materialized
	LastSignal     string // freshness marker at last successful resync; "" if never resolved
	RowLimit       int    // 0 means unlimited
	IncludeHeaders bool   // whether the materialized output carries a header row
}

// Key is the composite identity of a record.
type Key struct {
	Project string
	Table   string
}

// Key returns the record's composite identity.
func (r *Record) Key() Key {
	return Key{Project: r.Project, Table: r.Table}
}

// validate checks the registry invariants. Callers construct records; the
// registry only rejects what would corrupt the store.
func (r *Record) validate() error {
	if r.Project == "" || r.Table == "" {
		return fmt.Errorf("%w: empty identity (project=%q table=%q)", ErrInvalidRecord, r.Project, r.Table)
	}

	if r.RowLimit < 0 {
		return fmt.Errorf("%w: negative row limit %d", ErrInvalidRecord, r.RowLimit)
	}

	return nil
}

// Registry is the sole writer to the watches database. All operations are
// synchronous; reads are served from the in-memory mirror loaded at Open.
type Registry struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests

	mu    sync.Mutex
	byKey map[Key]*Record
	order []Key // insertion order, for stable listing
}

// Open opens (or creates) the SQLite database at dbPath, runs migrations,
// and loads the mirror. The database uses WAL mode with synchronous=FULL
// for crash-safe durability.
func Open(dbPath string, logger *slog.Logger) (*Registry, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	reg := &Registry{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
		byKey:   make(map[Key]*Record),
	}

	if err := reg.load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("registry opened",
		slog.String("db_path", dbPath),
		slog.Int("records", len(reg.order)),
	)

	return reg, nil
}

// load reads the entire watches table into the mirror in insertion order.
func (r *Registry) load(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, sqlLoadWatches)
	if err != nil {
		return fmt.Errorf("registry: loading watches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		var includeHeaders int

		if err := rows.Scan(&rec.Project, &rec.Table, &rec.LocalPath,
			&rec.LastSignal, &rec.RowLimit, &includeHeaders); err != nil {
			return fmt.Errorf("registry: scanning watch row: %w", err)
		}

		rec.IncludeHeaders = includeHeaders != 0

		key := rec.Key()
		r.byKey[key] = &rec
		r.order = append(r.order, key)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("registry: iterating watch rows: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a record by composite key (last-write-wins).
// Replacement keeps the record's position in the listing order; SQLite's
// ON CONFLICT UPDATE preserves the rowid, so the mirror and the store agree.
func (r *Registry) Upsert(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc().UnixNano()

	headers := 0
	if rec.IncludeHeaders {
		headers = 1
	}

	_, err := r.db.ExecContext(ctx, sqlUpsertWatch,
		rec.Project, rec.Table, rec.LocalPath, rec.LastSignal,
		rec.RowLimit, headers, now, now,
	)
	if err != nil {
		return fmt.Errorf("registry: upserting %s/%s: %w", rec.Project, rec.Table, err)
	}

	key := rec.Key()
	stored := *rec

	if _, exists := r.byKey[key]; !exists {
		r.order = append(r.order, key)
	}

	r.byKey[key] = &stored

	return nil
}

// Remove deletes a record by composite key. Returns ErrNotWatched when no
// record exists.
func (r *Registry) Remove(ctx context.Context, project, table string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{Project: project, Table: table}
	if _, exists := r.byKey[key]; !exists {
		return fmt.Errorf("%w: %s/%s", ErrNotWatched, project, table)
	}

	if _, err := r.db.ExecContext(ctx, sqlDeleteWatch, project, table); err != nil {
		return fmt.Errorf("registry: removing %s/%s: %w", project, table, err)
	}

	delete(r.byKey, key)

	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return nil
}

// Get returns a copy of the record for the key, if present.
func (r *Registry) Get(project, table string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byKey[Key{Project: project, Table: table}]
	if !ok {
		return nil, false
	}

	cp := *rec

	return &cp, true
}

// ListAll returns copies of all records in insertion order. The snapshot is
// safe to iterate while other goroutines mutate the registry.
func (r *Registry) ListAll() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.byKey[key])
	}

	return out
}

// ListByProject returns copies of the project's records in insertion order.
func (r *Registry) ListByProject(project string) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record

	for _, key := range r.order {
		if key.Project == project {
			out = append(out, *r.byKey[key])
		}
	}

	return out
}

// Count returns the number of records, optionally restricted to a project.
// An empty project counts everything.
func (r *Registry) Count(project string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if project == "" {
		return len(r.order)
	}

	n := 0

	for _, key := range r.order {
		if key.Project == project {
			n++
		}
	}

	return n
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}
