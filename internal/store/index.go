package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rozsasarpi/gridcast/internal/market"
)

// IndexEntry is one row of the Storage Index: everything needed to
// locate and describe an artifact without opening it.
type IndexEntry struct {
	Product             market.Product
	StartTime           time.Time
	EndTime             time.Time
	GenerationTimestamp time.Time
	IsFallback          bool
	FilePath            string
	SchemaVersion       string
}

// Index is the sqlite-backed Storage Index. Writes are serialized by a
// mutex; reads are lock-free against an in-memory snapshot refreshed
// after every write, so writers never starve readers, grounded on the
// teacher's internal/database/db.go connection-setup idiom (pure-Go
// modernc.org/sqlite, WAL mode, tuned PRAGMAs).
type Index struct {
	db       *sql.DB
	mu       sync.Mutex
	snapshot atomic.Value // []IndexEntry
}

// OpenIndex opens (creating if absent) the sqlite index database at
// path and loads its current contents into the lock-free snapshot.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: index mkdir: %w", err)
	}
	connStr := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=cache_size(-64000)"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open index: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer, simplest correct option for this index's size

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping index: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		product TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		generation_timestamp TEXT NOT NULL,
		is_fallback INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		schema_version TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("store: migrate index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_product_start ON artifacts(product, start_time)`); err != nil {
		return nil, fmt.Errorf("store: index product_start: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.refreshSnapshot(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Close closes the underlying sqlite connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Entries returns the current in-memory snapshot, lock-free.
func (idx *Index) Entries() []IndexEntry {
	v := idx.snapshot.Load()
	if v == nil {
		return nil
	}
	return v.([]IndexEntry)
}

// Append adds one entry to the index, persists it, and refreshes the
// snapshot. Guarded by idx.mu so writers serialize.
func (idx *Index) Append(e IndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, err := idx.db.Exec(
		`INSERT INTO artifacts (product, start_time, end_time, generation_timestamp, is_fallback, file_path, schema_version) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Product), e.StartTime.Format(time.RFC3339Nano), e.EndTime.Format(time.RFC3339Nano),
		e.GenerationTimestamp.Format(time.RFC3339Nano), e.IsFallback, e.FilePath, e.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("store: append index entry: %w", err)
	}
	return idx.refreshSnapshot()
}

// Remove deletes every entry whose FilePath is in paths, in one
// transaction, then refreshes the snapshot. Used by the archival job
// after an artifact has been uploaded and pruned from local disk.
func (idx *Index) Remove(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("store: remove begin: %w", err)
	}
	stmt, err := tx.Prepare(`DELETE FROM artifacts WHERE file_path = ?`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: remove prepare: %w", err)
	}
	for _, p := range paths {
		if _, err := stmt.Exec(p); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("store: remove exec: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: remove commit: %w", err)
	}
	return idx.refreshSnapshot()
}

// Rebuild replaces the entire index with entries, in one transaction.
func (idx *Index) Rebuild(entries []IndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("store: rebuild begin: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM artifacts`); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: rebuild delete: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO artifacts (product, start_time, end_time, generation_timestamp, is_fallback, file_path, schema_version) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: rebuild prepare: %w", err)
	}
	for _, e := range entries {
		if _, err := stmt.Exec(string(e.Product), e.StartTime.Format(time.RFC3339Nano), e.EndTime.Format(time.RFC3339Nano),
			e.GenerationTimestamp.Format(time.RFC3339Nano), e.IsFallback, e.FilePath, e.SchemaVersion); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("store: rebuild insert: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: rebuild commit: %w", err)
	}
	return idx.refreshSnapshot()
}

func (idx *Index) refreshSnapshot() error {
	rows, err := idx.db.Query(`SELECT product, start_time, end_time, generation_timestamp, is_fallback, file_path, schema_version FROM artifacts ORDER BY product, start_time`)
	if err != nil {
		return fmt.Errorf("store: refresh snapshot query: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var e IndexEntry
		var product, start, end, genTS string
		if err := rows.Scan(&product, &start, &end, &genTS, &e.IsFallback, &e.FilePath, &e.SchemaVersion); err != nil {
			return fmt.Errorf("store: refresh snapshot scan: %w", err)
		}
		e.Product = market.Product(product)
		if e.StartTime, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return fmt.Errorf("store: parse start_time: %w", err)
		}
		if e.EndTime, err = time.Parse(time.RFC3339Nano, end); err != nil {
			return fmt.Errorf("store: parse end_time: %w", err)
		}
		if e.GenerationTimestamp, err = time.Parse(time.RFC3339Nano, genTS); err != nil {
			return fmt.Errorf("store: parse generation_timestamp: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: refresh snapshot rows: %w", err)
	}
	idx.snapshot.Store(entries)
	return nil
}
