// Package storage provides SQLite persistence for document indices and
// question sessions.
//
// Information Hiding:
// - SQLite connection management hidden behind index.Cache
// - Schema and serialization details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/lectern/index"
	"github.com/richinex/lectern/model"
)

// SqliteStore implements index.Cache using SQLite. One row per document
// records its embedder fingerprint; chunks, vectors, and summary leaves
// live in child tables and are replaced wholesale on store.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			doc_id TEXT PRIMARY KEY,
			path TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL,
			chunk_count INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS chunks (
			doc_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			token_count INTEGER NOT NULL,
			overlap INTEGER NOT NULL,
			vector TEXT NOT NULL,
			PRIMARY KEY (doc_id, seq),
			FOREIGN KEY (doc_id) REFERENCES documents(doc_id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS summary_leaves (
			doc_id TEXT NOT NULL,
			leaf_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			PRIMARY KEY (doc_id, leaf_index),
			FOREIGN KEY (doc_id) REFERENCES documents(doc_id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS answers (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			status TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_answers_created
		ON answers(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load returns the cached entry for the document, or index.ErrCacheMiss
// when no row exists, the fingerprint differs, or the stored parts are
// inconsistent with each other.
func (s *SqliteStore) Load(ctx context.Context, docID, fingerprint string) (*index.CacheEntry, error) {
	var path, storedFingerprint string
	var chunkCount int
	err := s.db.QueryRowContext(ctx,
		"SELECT path, fingerprint, chunk_count FROM documents WHERE doc_id = ?",
		docID).Scan(&path, &storedFingerprint, &chunkCount)
	if err == sql.ErrNoRows {
		return nil, index.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	if storedFingerprint != fingerprint {
		return nil, index.ErrCacheMiss
	}

	chunks, vectors, err := s.loadChunks(ctx, docID)
	if err != nil {
		return nil, err
	}
	leaves, err := s.loadLeaves(ctx, docID)
	if err != nil {
		return nil, err
	}

	// A half-written or tampered entry is a miss, not an error.
	if len(chunks) != chunkCount || len(chunks) == 0 || len(leaves) == 0 {
		return nil, index.ErrCacheMiss
	}

	return &index.CacheEntry{
		DocID:         docID,
		Path:          path,
		Fingerprint:   storedFingerprint,
		Chunks:        chunks,
		Vectors:       vectors,
		SummaryLeaves: leaves,
	}, nil
}

func (s *SqliteStore) loadChunks(ctx context.Context, docID string) ([]model.Chunk, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, text, token_count, overlap, vector FROM chunks WHERE doc_id = ? ORDER BY seq ASC",
		docID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	var vectors [][]float32
	for rows.Next() {
		var ch model.Chunk
		var encoded string
		if err := rows.Scan(&ch.Seq, &ch.Text, &ch.TokenCount, &ch.Overlap, &encoded); err != nil {
			return nil, nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		ch.DocID = docID

		var vector []float32
		if err := json.Unmarshal([]byte(encoded), &vector); err != nil {
			return nil, nil, fmt.Errorf("failed to decode vector for chunk %d: %w", ch.Seq, err)
		}
		chunks = append(chunks, ch)
		vectors = append(vectors, vector)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	return chunks, vectors, nil
}

func (s *SqliteStore) loadLeaves(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT text FROM summary_leaves WHERE doc_id = ? ORDER BY leaf_index ASC",
		docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary leaves: %w", err)
	}
	defer rows.Close()

	var leaves []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan summary leaf: %w", err)
		}
		leaves = append(leaves, text)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary leaves: %w", err)
	}

	return leaves, nil
}

// Store replaces the document's cached entry in a single transaction, so a
// concurrent Load never observes a partial write.
func (s *SqliteStore) Store(ctx context.Context, entry *index.CacheEntry) error {
	if len(entry.Chunks) != len(entry.Vectors) {
		return fmt.Errorf("entry for %q has %d chunks but %d vectors",
			entry.DocID, len(entry.Chunks), len(entry.Vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after Commit.
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, "DELETE FROM documents WHERE doc_id = ?", entry.DocID)
	if err != nil {
		return fmt.Errorf("failed to clear old entry: %w", err)
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", entry.DocID)
	if err != nil {
		return fmt.Errorf("failed to clear old chunks: %w", err)
	}
	_, err = tx.ExecContext(ctx, "DELETE FROM summary_leaves WHERE doc_id = ?", entry.DocID)
	if err != nil {
		return fmt.Errorf("failed to clear old summary leaves: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO documents (doc_id, path, fingerprint, chunk_count) VALUES (?, ?, ?, ?)",
		entry.DocID, entry.Path, entry.Fingerprint, len(entry.Chunks))
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (doc_id, seq, text, token_count, overlap, vector) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	for i, ch := range entry.Chunks {
		encoded, err := json.Marshal(entry.Vectors[i])
		if err != nil {
			return fmt.Errorf("failed to encode vector for chunk %d: %w", ch.Seq, err)
		}
		if _, err := chunkStmt.ExecContext(ctx, entry.DocID, ch.Seq, ch.Text, ch.TokenCount, ch.Overlap, string(encoded)); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	leafStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO summary_leaves (doc_id, leaf_index, text) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare leaf insert: %w", err)
	}
	defer leafStmt.Close()

	for i, leaf := range entry.SummaryLeaves {
		if _, err := leafStmt.ExecContext(ctx, entry.DocID, i, leaf); err != nil {
			return fmt.Errorf("failed to insert summary leaf: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DocumentRecord describes one cached document.
type DocumentRecord struct {
	DocID       string
	Path        string
	Fingerprint string
	ChunkCount  int
	CreatedAt   string
}

// ListDocuments returns all cached documents, newest first.
func (s *SqliteStore) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_id, path, fingerprint, chunk_count, created_at FROM documents ORDER BY created_at DESC, doc_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	records := []DocumentRecord{}
	for rows.Next() {
		var rec DocumentRecord
		if err := rows.Scan(&rec.DocID, &rec.Path, &rec.Fingerprint, &rec.ChunkCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return records, nil
}

// DeleteDocument removes one document's cached entry.
func (s *SqliteStore) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"documents", "chunks", "summary_leaves"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE doc_id = ?", docID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Clear removes every cached document. The answer log is kept.
func (s *SqliteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"chunks", "summary_leaves", "documents"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AnswerRecord is one logged question/answer exchange.
type AnswerRecord struct {
	ID         string
	Question   string
	Answer     string
	Status     string
	Provider   string
	Model      string
	DurationMs int64
	CreatedAt  int64
}

// LogAnswer records a completed exchange. A zero ID or timestamp is filled
// in.
func (s *SqliteStore) LogAnswer(ctx context.Context, rec AnswerRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answers (id, question, answer, status, provider, model, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Question, rec.Answer, rec.Status, rec.Provider, rec.Model, rec.DurationMs, rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to log answer: %w", err)
	}

	return rec.ID, nil
}

// ListAnswers returns up to limit logged exchanges, newest first.
// A non-positive limit returns all of them.
func (s *SqliteStore) ListAnswers(ctx context.Context, limit int) ([]AnswerRecord, error) {
	query := "SELECT id, question, answer, status, provider, model, duration_ms, created_at FROM answers ORDER BY created_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	records := []AnswerRecord{}
	for rows.Next() {
		var rec AnswerRecord
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer, &rec.Status, &rec.Provider, &rec.Model, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answers: %w", err)
	}

	return records, nil
}
