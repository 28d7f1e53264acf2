// Package sqlite implements vectorstore.Store on a local SQLite file, using
// the pure-Go modernc.org/sqlite driver. Similarity is computed in Go over
// every vector of the index, which suits development-sized corpora.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/logging"
	"github.com/mwiater/semsearch/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS indexes (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS vectors (
	index_name TEXT NOT NULL REFERENCES indexes(name) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (index_name, id)
);`

// Store is a SQLite-backed index.
type Store struct {
	db     *sql.DB
	path   string
	name   string
	metric string
}

// Open opens (creating if needed) the database at cfg.SQLitePath and binds
// the store to cfg.IndexName.
func Open(cfg appconfig.VectorStoreConfig) (*Store, error) {
	path := cfg.SQLitePath
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize sqlite schema: %w", err)
		}
	}
	metric := cfg.Metric
	if metric == "" {
		metric = "cosine"
	}
	return &Store{db: db, path: path, name: cfg.IndexName, metric: metric}, nil
}

// Backend returns "sqlite".
func (s *Store) Backend() string { return appconfig.BackendSQLite }

// Name returns the index name.
func (s *Store) Name() string { return s.name }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Exists reports whether the index row is present.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexes WHERE name = ?`, s.name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query index: %w", err)
	}
	return n > 0, nil
}

// Create registers the index. SQLite indexes are ready immediately.
func (s *Store) Create(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid index dimension %d", dimension)
	}
	if s.metric != "cosine" && s.metric != "dotproduct" {
		return fmt.Errorf("metric %q is not supported by the sqlite backend", s.metric)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexes (name, dimension, metric, created_at) VALUES (?, ?, ?, ?)`,
		s.name, dimension, s.metric, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert index: %w", err)
	}
	return nil
}

// Describe returns the stored index definition.
func (s *Store) Describe(ctx context.Context) (vectorstore.IndexDescription, error) {
	desc := vectorstore.IndexDescription{Name: s.name, Host: s.path, Ready: true, Cloud: "local"}
	err := s.db.QueryRowContext(ctx, `SELECT dimension, metric FROM indexes WHERE name = ?`, s.name).
		Scan(&desc.Dimension, &desc.Metric)
	if errors.Is(err, sql.ErrNoRows) {
		return vectorstore.IndexDescription{}, fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, s.name)
	}
	if err != nil {
		return vectorstore.IndexDescription{}, fmt.Errorf("describe index: %w", err)
	}
	return desc, nil
}

// Delete drops the index and its vectors.
func (s *Store) Delete(ctx context.Context) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE index_name = ?`, s.name); err != nil {
		return false, fmt.Errorf("delete vectors: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE name = ?`, s.name)
	if err != nil {
		return false, fmt.Errorf("delete index: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Upsert inserts or replaces records in one transaction.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) (int, error) {
	desc, err := s.Describe(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors (index_name, id, embedding, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT (index_name, id) DO UPDATE SET embedding = excluded.embedding, metadata = excluded.metadata`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("record id must be set")
		}
		if len(r.Values) != desc.Dimension {
			return 0, fmt.Errorf("record %s has dimension %d, index expects %d", r.ID, len(r.Values), desc.Dimension)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.name, r.ID, encodeVector(r.Values), string(meta)); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logging.LogEvent("[SQLITE] Upserted %d vectors into %q", len(records), s.name)
	return len(records), nil
}

// Query scores every vector against the query and returns the topK best.
func (s *Store) Query(ctx context.Context, query []float32, topK int) ([]vectorstore.Match, error) {
	desc, err := s.Describe(ctx)
	if err != nil {
		return nil, err
	}
	if len(query) != desc.Dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), desc.Dimension)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding, metadata FROM vectors WHERE index_name = ?`, s.name)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	var matches []vectorstore.Match
	for rows.Next() {
		var (
			id   string
			blob []byte
			meta string
		)
		if err := rows.Scan(&id, &blob, &meta); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("vector %s: %w", id, err)
		}
		m := vectorstore.Match{ID: id, Score: s.score(query, vec)}
		if strings.TrimSpace(meta) != "" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, fmt.Errorf("metadata for %s: %w", id, err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.SortMatches(matches, topK), nil
}

func (s *Store) score(a, b []float32) float32 {
	if s.metric == "dotproduct" {
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return dot
	}
	return vectorstore.Cosine(a, b)
}

// Stats counts the vectors in the index.
func (s *Store) Stats(ctx context.Context) (vectorstore.Stats, error) {
	desc, err := s.Describe(ctx)
	if err != nil {
		return vectorstore.Stats{}, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors WHERE index_name = ?`, s.name).Scan(&n); err != nil {
		return vectorstore.Stats{}, fmt.Errorf("count vectors: %w", err)
	}
	return vectorstore.Stats{Dimension: desc.Dimension, TotalVectorCount: n, Namespaces: map[string]int{"": n}}, nil
}
