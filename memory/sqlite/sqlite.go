// Package sqlite provides a durable memory.Journal backed by SQLite through
// the pure Go modernc.org/sqlite driver. Payloads are stored as deterministic
// CBOR so a reloaded record has the same digest it was written with.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/hupe1980/saathi/core"
	"github.com/hupe1980/saathi/internal/codec"
	"github.com/hupe1980/saathi/logging"
	"github.com/hupe1980/saathi/memory"
)

var _ memory.Journal = (*Journal)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS memory_records (
	session_id  TEXT    NOT NULL,
	category    TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	id          TEXT    NOT NULL,
	payload     BLOB    NOT NULL,
	importance  REAL    NOT NULL,
	size        INTEGER NOT NULL,
	version     INTEGER NOT NULL,
	digest      TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, category, name)
);
CREATE INDEX IF NOT EXISTS memory_records_session ON memory_records (session_id, category);
`

// Options configures a Journal.
type Options struct {
	// BusyTimeout is applied through PRAGMA busy_timeout. Default 5s.
	BusyTimeout time.Duration
	Logger      logging.Logger
}

// Journal persists memory records in a single SQLite table.
type Journal struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway journal.
func Open(ctx context.Context, path string, optFns ...func(o *Options)) (*Journal, error) {
	opts := Options{BusyTimeout: 5 * time.Second, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// alive for the lifetime of the journal.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds())); err != nil {
		opts.Logger.Debug("failed to set sqlite busy_timeout", "error", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		opts.Logger.Debug("failed to set sqlite journal_mode=WAL", "error", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Journal{db: db, logger: opts.Logger}, nil
}

// Load returns every persisted record.
func (j *Journal) Load(ctx context.Context) ([]core.MemoryRecord, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT session_id, category, name, id, payload, importance, size, version, digest, created_at, accessed_at FROM memory_records ORDER BY accessed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	defer rows.Close()

	var out []core.MemoryRecord
	for rows.Next() {
		var (
			rec               core.MemoryRecord
			category          string
			payload           []byte
			created, accessed int64
		)
		if err := rows.Scan(&rec.Key.SessionID, &category, &rec.Key.Name, &rec.ID, &payload, &rec.Importance, &rec.Size, &rec.Version, &rec.Digest, &created, &accessed); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		rec.Key.Category = core.Category(category)
		if err := codec.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: decode payload %s: %w", rec.Key, err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		rec.AccessedAt = time.Unix(0, accessed).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}

	j.logger.Debug("sqlite journal loaded", "records", len(out))

	return out, nil
}

// Upsert writes rec, replacing any row with the same key.
func (j *Journal) Upsert(ctx context.Context, rec core.MemoryRecord) error {
	payload, err := codec.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("sqlite: encode payload %s: %w", rec.Key, err)
	}

	_, err = j.db.ExecContext(ctx, `
INSERT INTO memory_records (session_id, category, name, id, payload, importance, size, version, digest, created_at, accessed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (session_id, category, name) DO UPDATE SET
	id = excluded.id,
	payload = excluded.payload,
	importance = excluded.importance,
	size = excluded.size,
	version = excluded.version,
	digest = excluded.digest,
	accessed_at = excluded.accessed_at`,
		rec.Key.SessionID, string(rec.Key.Category), rec.Key.Name, rec.ID, payload, rec.Importance, rec.Size,
		rec.Version, rec.Digest, rec.CreatedAt.UnixNano(), rec.AccessedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite: upsert %s: %w", rec.Key, err)
	}

	return nil
}

// Delete removes the given keys in one transaction.
func (j *Journal) Delete(ctx context.Context, keys ...core.RecordKey) (err error) {
	if len(keys) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM memory_records WHERE session_id = ? AND category = ? AND name = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err = stmt.ExecContext(ctx, k.SessionID, string(k.Category), k.Name); err != nil {
			return fmt.Errorf("sqlite: delete %s: %w", k, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	return nil
}

// Stats summarizes the persisted bank without loading payloads.
type Stats struct {
	Records    int
	Size       int
	ByCategory map[core.Category]int
}

// Stats counts persisted records and their total size.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT category, COUNT(*), COALESCE(SUM(size), 0) FROM memory_records GROUP BY category`)
	if err != nil {
		return Stats{}, fmt.Errorf("sqlite: stats: %w", err)
	}
	defer rows.Close()

	st := Stats{ByCategory: map[core.Category]int{}}
	for rows.Next() {
		var (
			category    string
			count, size int
		)
		if err := rows.Scan(&category, &count, &size); err != nil {
			return Stats{}, fmt.Errorf("sqlite: scan stats: %w", err)
		}
		st.ByCategory[core.Category(category)] = count
		st.Records += count
		st.Size += size
	}

	return st, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
