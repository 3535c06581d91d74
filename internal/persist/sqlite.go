// Package persist provides the default PersistentStore implementation:
// a SQLite-backed durable mirror of indexed chunks, guarded against
// concurrent first-open races by a file lock.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure-Go driver, no cgo

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// SQLiteStore is the default ragtypes.PersistentStore: a collection-
// scoped, id-keyed durable mirror backed by SQLite.
type SQLiteStore struct {
	path string

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// New builds a SQLiteStore for the database file at path. Pass ":memory:"
// for an ephemeral in-process store (used by tests and CLI dry-runs).
func New(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Initialize opens the database (acquiring a cross-process lock around
// first-open so concurrent pipeline instances don't race creating the
// schema), configures WAL mode for concurrent readers, and migrates the
// schema.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	dsn := s.path
	if s.path != ":memory:" {
		dir := filepath.Dir(s.path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("persist: create dir: %w", err)
		}

		lock := flock.New(filepath.Join(dir, ".ragcore-persist.lock"))
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("persist: acquire init lock: %w", err)
		}
		defer lock.Unlock()

		dsn = s.path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("persist: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("persist: set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return fmt.Errorf("persist: migrate schema: %w", err)
	}

	s.db = db
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	collection          TEXT NOT NULL,
	id                  TEXT NOT NULL,
	content             TEXT NOT NULL,
	contextual_content  TEXT NOT NULL DEFAULT '',
	chunk_index         INTEGER NOT NULL,
	start_offset        INTEGER NOT NULL,
	end_offset          INTEGER NOT NULL,
	metadata_json       TEXT NOT NULL DEFAULT '{}',
	dense_embedding     BLOB,
	sparse_embedding    TEXT,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

func (s *SQLiteStore) requireOpen() (*sql.DB, error) {
	if s.db == nil || s.closed {
		return nil, fmt.Errorf("persist: store not initialized")
	}
	return s.db, nil
}

// LoadDocuments returns every document stored for collection.
func (s *SQLiteStore) LoadDocuments(ctx context.Context, collection string) ([]ragtypes.StoredDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.requireOpen()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, content, contextual_content, chunk_index, start_offset, end_offset,
		       metadata_json, dense_embedding, sparse_embedding
		FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("persist: query documents: %w", err)
	}
	defer rows.Close()

	var out []ragtypes.StoredDoc
	for rows.Next() {
		var (
			id, content, contextualContent, metadataJSON string
			chunkIndex, startOffset, endOffset           int
			denseBlob                                    []byte
			sparseJSON                                   sql.NullString
		)
		if err := rows.Scan(&id, &content, &contextualContent, &chunkIndex, &startOffset, &endOffset,
			&metadataJSON, &denseBlob, &sparseJSON); err != nil {
			return nil, fmt.Errorf("persist: scan document: %w", err)
		}

		var metadata ragtypes.Metadata
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("persist: decode metadata for %q: %w", id, err)
		}

		doc := ragtypes.StoredDoc{
			Chunk: ragtypes.Chunk{
				ID:                id,
				Content:           content,
				ContextualContent: contextualContent,
				ChunkIndex:        chunkIndex,
				StartOffset:       startOffset,
				EndOffset:         endOffset,
				Metadata:          metadata,
			},
			DenseEmbedding: decodeFloat32Blob(denseBlob),
		}
		if sparseJSON.Valid && sparseJSON.String != "" {
			sparse := make(ragtypes.SparseEmbedding)
			if err := json.Unmarshal([]byte(sparseJSON.String), &sparse); err != nil {
				return nil, fmt.Errorf("persist: decode sparse embedding for %q: %w", id, err)
			}
			doc.SparseEmbedding = sparse
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// SaveDocuments upserts docs into collection inside a single transaction.
func (s *SQLiteStore) SaveDocuments(ctx context.Context, collection string, docs []ragtypes.StoredDoc) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.requireOpen()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (collection, id, content, contextual_content, chunk_index,
		                        start_offset, end_offset, metadata_json, dense_embedding, sparse_embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			content=excluded.content, contextual_content=excluded.contextual_content,
			chunk_index=excluded.chunk_index, start_offset=excluded.start_offset,
			end_offset=excluded.end_offset, metadata_json=excluded.metadata_json,
			dense_embedding=excluded.dense_embedding, sparse_embedding=excluded.sparse_embedding`)
	if err != nil {
		return fmt.Errorf("persist: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		metadataJSON, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("persist: encode metadata for %q: %w", d.ID, err)
		}
		var sparseJSON []byte
		if d.SparseEmbedding != nil {
			sparseJSON, err = json.Marshal(d.SparseEmbedding)
			if err != nil {
				return fmt.Errorf("persist: encode sparse embedding for %q: %w", d.ID, err)
			}
		}

		if _, err := stmt.ExecContext(ctx, collection, d.ID, d.Content, d.ContextualContent, d.ChunkIndex,
			d.StartOffset, d.EndOffset, string(metadataJSON), encodeFloat32Blob(d.DenseEmbedding), string(sparseJSON)); err != nil {
			return fmt.Errorf("persist: upsert document %q: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteDocuments removes ids from collection.
func (s *SQLiteStore) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.requireOpen()
	if err != nil {
		return err
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM documents WHERE collection = ? AND id IN (%s)", strings.Join(placeholders, ","))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("persist: delete documents: %w", err)
	}
	return nil
}

// ClearCollection removes every document in collection.
func (s *SQLiteStore) ClearCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.requireOpen()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("persist: clear collection: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ ragtypes.PersistentStore = (*SQLiteStore)(nil)
