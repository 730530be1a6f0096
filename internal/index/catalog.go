// Package index owns the lifecycle of the persisted vector index: deciding
// on startup whether the stored index is still valid for the current
// document set, rebuilding it when it is not, and exposing a ready-to-query
// index to the rest of the system.
//
// The persisted record has two parts, both inside the index directory:
// the serialised vector index (index.gob) and a SQLite catalog (catalog.db)
// holding the corpus fingerprint the index was built from plus per-document
// bookkeeping for introspection.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// BuildRecord is the catalog row describing the last completed build.
// The stored Fingerprint is the validity contract: the persisted index is
// reusable iff it equals the current scan's corpus fingerprint.
type BuildRecord struct {
	// Fingerprint is the corpus fingerprint at build time.
	Fingerprint string
	// DocCount is the number of documents indexed.
	DocCount int
	// ChunkCount is the number of chunks embedded.
	ChunkCount int
	// EmbeddingModel is the embedding model identifier used at build time.
	EmbeddingModel string
	// ChunkSize and ChunkOverlap are the chunking parameters used at build time.
	ChunkSize    int
	ChunkOverlap int
	// BuiltAt is when the build completed.
	BuiltAt time.Time
}

// DocumentRecord is one indexed document's catalog row.
type DocumentRecord struct {
	// Path is the document path relative to the documents root.
	Path string
	// Digest is the document's content digest at build time.
	Digest string
	// Chunks is the number of chunks the document produced.
	Chunks int
}

// Catalog is the SQLite-backed store for build metadata. A missing catalog
// (or missing row) is the valid first-run state, not an error.
type Catalog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenCatalog opens (or creates) the catalog at the given path and runs the
// schema migration. Use ":memory:" for an in-memory catalog in tests.
func OpenCatalog(path string) (*Catalog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// OpenCatalogIn opens the catalog inside an index directory, using the same
// filename the manager persists to. Intended for read-only introspection
// (e.g. `pickme index --status`).
func OpenCatalogIn(dir string) (*Catalog, error) {
	return OpenCatalog(filepath.Join(dir, catalogFile))
}

// migrate creates the schema if it does not already exist.
func (c *Catalog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS index_meta (
    id              INTEGER PRIMARY KEY CHECK (id = 1),
    fingerprint     TEXT    NOT NULL,
    doc_count       INTEGER NOT NULL,
    chunk_count     INTEGER NOT NULL,
    embedding_model TEXT    NOT NULL,
    chunk_size      INTEGER NOT NULL,
    chunk_overlap   INTEGER NOT NULL,
    built_at        INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS documents (
    path   TEXT PRIMARY KEY,
    digest TEXT    NOT NULL,
    chunks INTEGER NOT NULL
);
`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Record returns the last completed build record, or nil if no build has
// ever completed (first run).
func (c *Catalog) Record(ctx context.Context) (*BuildRecord, error) {
	const q = `
SELECT fingerprint, doc_count, chunk_count, embedding_model, chunk_size, chunk_overlap, built_at
FROM   index_meta WHERE id = 1`

	var rec BuildRecord
	var ts int64
	err := c.db.QueryRowContext(ctx, q).Scan(
		&rec.Fingerprint, &rec.DocCount, &rec.ChunkCount,
		&rec.EmbeddingModel, &rec.ChunkSize, &rec.ChunkOverlap, &ts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: record: %w", err)
	}
	rec.BuiltAt = time.Unix(ts, 0)
	return &rec, nil
}

// SetRecord replaces the build record and per-document rows in a single
// transaction. It is called only after the serialised index has been swapped
// into place, so a crash before this point leaves the old (now mismatching)
// fingerprint behind and the next run rebuilds.
func (c *Catalog) SetRecord(ctx context.Context, rec *BuildRecord, docs []DocumentRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	const upsert = `
INSERT INTO index_meta (id, fingerprint, doc_count, chunk_count, embedding_model, chunk_size, chunk_overlap, built_at)
VALUES (1, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    fingerprint     = excluded.fingerprint,
    doc_count       = excluded.doc_count,
    chunk_count     = excluded.chunk_count,
    embedding_model = excluded.embedding_model,
    chunk_size      = excluded.chunk_size,
    chunk_overlap   = excluded.chunk_overlap,
    built_at        = excluded.built_at`

	if _, err := tx.ExecContext(ctx, upsert,
		rec.Fingerprint, rec.DocCount, rec.ChunkCount,
		rec.EmbeddingModel, rec.ChunkSize, rec.ChunkOverlap, rec.BuiltAt.Unix(),
	); err != nil {
		return fmt.Errorf("catalog: set record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("catalog: clear documents: %w", err)
	}
	for _, d := range docs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (path, digest, chunks) VALUES (?, ?, ?)`,
			d.Path, d.Digest, d.Chunks,
		); err != nil {
			return fmt.Errorf("catalog: insert document %s: %w", d.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// Documents returns the per-document rows of the last completed build,
// ordered by path.
func (c *Catalog) Documents(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT path, digest, chunks FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("catalog: documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.Path, &d.Digest, &d.Chunks); err != nil {
			return nil, fmt.Errorf("catalog: documents scan: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: documents rows: %w", err)
	}
	return docs, nil
}

// Close releases the database connection pool.
func (c *Catalog) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("catalog: close: %w", err)
	}
	return nil
}
