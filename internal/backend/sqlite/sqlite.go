// Package sqlite implements a single-file backend on SQLite. Every filled node of an
// IDS occurrence is one row, so lazy loading reads single nodes on demand.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"imaspy/internal/backend"
	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// DefaultFile is the database file name used when the entry path is a directory.
const DefaultFile = "imaspy.sqlite"

// Options configure the database connection.
type Options struct {
	// Driver is the database/sql driver: "sqlite" (modernc, pure Go, default) or
	// "sqlite3" (mattn, requires cgo).
	Driver string
	// BusyTimeout is how long writers wait for a locked database.
	BusyTimeout time.Duration
}

// Store is the NodeStore of a SQLite entry.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// DBPath returns the database file of an entry path: the path itself when it has a
// .sqlite or .db extension, otherwise DefaultFile inside the directory.
func DBPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sqlite", ".db", ".sqlite3":
		return path
	}
	return filepath.Join(path, DefaultFile)
}

// Open opens the entry at path as a backend.
func Open(path string, mode backend.Mode, opts Options) (*backend.Adapter, error) {
	s, err := OpenStore(path, mode, opts)
	if err != nil {
		return nil, err
	}
	return backend.NewAdapter("sqlite", s, backend.Capabilities{Lazy: true, GetSlice: true, PutSlice: true}), nil
}

// OpenStore opens the database of the entry at path.
func OpenStore(path string, mode backend.Mode, opts Options) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryBackend, "sqlite.OpenStore")
	defer timer.Stop()

	dbPath := DBPath(path)
	_, statErr := os.Stat(dbPath)
	exists := statErr == nil
	switch mode {
	case backend.ModeRead:
		if !exists {
			return nil, fmt.Errorf("%w: %s", backend.ErrNotExist, dbPath)
		}
	case backend.ModeExclusive:
		if exists {
			return nil, fmt.Errorf("%w: %s", backend.ErrExists, dbPath)
		}
	case backend.ModeWrite:
		if exists {
			if err := removeDB(dbPath); err != nil {
				return nil, fmt.Errorf("failed to remove existing database: %w", err)
			}
		}
	}
	if mode != backend.ModeRead {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	driver := opts.Driver
	if driver == "" {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		logging.BackendDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.BackendDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.BackendDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.BackendDebug("opened sqlite entry %s (driver %s, mode %s)", dbPath, driver, mode)
	return s, nil
}

func removeDB(dbPath string) error {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Version implements backend.NodeStore.
func (s *Store) Version(ctx context.Context, name string, occ int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT dd_version FROM occurrences WHERE ids = ? AND occurrence = ?", name, occ).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s/%d", backend.ErrNoData, name, occ)
	}
	return v, err
}

// Load implements backend.NodeStore.
func (s *Store) Load(ctx context.Context, name string, occ int) (*backend.Occurrence, error) {
	version, err := s.Version(ctx, name, occ)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, size, value FROM nodes WHERE ids = ? AND occurrence = ? ORDER BY seq", name, occ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o := &backend.Occurrence{DDVersion: version}
	for rows.Next() {
		var (
			r    ids.Record
			blob []byte
		)
		if err := rows.Scan(&r.Path, &r.Size, &blob); err != nil {
			return nil, err
		}
		if r.Value, err = decodeValue(blob); err != nil {
			return nil, fmt.Errorf("%s/%d %s: %w", name, occ, r.Path, err)
		}
		o.Records = append(o.Records, r)
	}
	return o, rows.Err()
}

func decodeValue(blob []byte) (*ids.EncodedValue, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var ev ids.EncodedValue
	if err := cbor.Unmarshal(blob, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Save implements backend.NodeStore. The occurrence is replaced in one
// transaction and the put is recorded in the journal.
func (s *Store) Save(ctx context.Context, name string, occ int, o *backend.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE ids = ? AND occurrence = ?", name, occ); err != nil {
		return err
	}
	putID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO occurrences (ids, occurrence, dd_version, put_id, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(ids, occurrence) DO UPDATE SET
		   dd_version = excluded.dd_version, put_id = excluded.put_id, updated_at = excluded.updated_at`,
		name, occ, o.DDVersion, putID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO nodes (ids, occurrence, path, seq, size, value) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range o.Records {
		var blob []byte
		if r.Value != nil {
			if blob, err = cbor.Marshal(r.Value); err != nil {
				return fmt.Errorf("encode %s: %w", r.Path, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, name, occ, r.Path, i, r.Size, blob); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO put_journal (id, ids, occurrence, dd_version, nodes) VALUES (?, ?, ?, ?, ?)",
		putID, name, occ, o.DDVersion, len(o.Records)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logging.BackendDebug("sqlite: stored %s/%d (%d nodes, put %s)", name, occ, len(o.Records), putID)
	return nil
}

// Delete implements backend.NodeStore.
func (s *Store) Delete(ctx context.Context, name string, occ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		"DELETE FROM nodes WHERE ids = ? AND occurrence = ?",
		"DELETE FROM occurrences WHERE ids = ? AND occurrence = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, name, occ); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Occurrences implements backend.NodeStore.
func (s *Store) Occurrences(ctx context.Context, name string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT occurrence FROM occurrences WHERE ids = ? ORDER BY occurrence", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var occ int
		if err := rows.Scan(&occ); err != nil {
			return nil, err
		}
		out = append(out, occ)
	}
	return out, rows.Err()
}

// Records implements backend.LazyStore.
func (s *Store) Records(_ context.Context, name string, occ int) (backend.Records, error) {
	return &records{s: s, name: name, occ: occ}, nil
}

// Close implements backend.NodeStore. With erase the database file is removed.
func (s *Store) Close(erase bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Close()
	if erase {
		err = errors.Join(err, removeDB(s.dbPath))
	}
	return err
}

// JournalEntry is one recorded put.
type JournalEntry struct {
	ID         string
	IDS        string
	Occurrence int
	DDVersion  string
	Nodes      int
	CreatedAt  time.Time
}

// Journal lists the recorded puts, oldest first.
func (s *Store) Journal(ctx context.Context) ([]JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ids, occurrence, dd_version, nodes, created_at FROM put_journal ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalEntry
	for rows.Next() {
		var (
			e       JournalEntry
			created any
		)
		if err := rows.Scan(&e.ID, &e.IDS, &e.Occurrence, &e.DDVersion, &e.Nodes, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTimestamp(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// parseTimestamp accepts both the time.Time of the modernc driver and the text
// CURRENT_TIMESTAMP stores.
func parseTimestamp(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		t, _ := time.Parse(time.DateTime, x)
		return t
	case []byte:
		t, _ := time.Parse(time.DateTime, string(x))
		return t
	}
	return time.Time{}
}

// records reads single nodes for lazy loading.
type records struct {
	s    *Store
	name string
	occ  int
}

func (r *records) Size(ctx context.Context, path string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int
	err := r.s.db.QueryRowContext(ctx,
		"SELECT size FROM nodes WHERE ids = ? AND occurrence = ? AND path = ?", r.name, r.occ, path).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (r *records) Value(ctx context.Context, path string) (*ids.EncodedValue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var blob []byte
	err := r.s.db.QueryRowContext(ctx,
		"SELECT value FROM nodes WHERE ids = ? AND occurrence = ? AND path = ?", r.name, r.occ, path).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeValue(blob)
}
