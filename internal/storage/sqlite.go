package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		document_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		content TEXT NOT NULL,
		page INTEGER NOT NULL DEFAULT 0,
		sheet TEXT NOT NULL DEFAULT '',
		line_start INTEGER NOT NULL DEFAULT 0,
		line_end INTEGER NOT NULL DEFAULT 0,
		embedding BLOB,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveDocument writes the document and all of its chunks in one transaction.
// Chunk order is preserved via the autoincrement sequence.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, created_at) VALUES (?, ?, ?)`,
		doc.ID, doc.Filename, doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, filename, content, page, sheet, line_start, line_end, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocID, ch.Filename, ch.Text,
			ch.Location.Page, ch.Location.Sheet, ch.Location.LineStart, ch.Location.LineEnd,
			encodeVector(ch.Vector),
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteDocument removes the document and all of its chunks in one transaction.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return tx.Commit()
}

// LoadAll returns all documents and all chunks, chunks in insertion order.
func (s *SQLiteStorage) LoadAll(ctx context.Context) ([]*models.Document, []*models.Chunk, error) {
	docRows, err := s.db.QueryContext(ctx, `SELECT id, filename, created_at FROM documents`)
	if err != nil {
		return nil, nil, fmt.Errorf("query documents: %w", err)
	}
	defer docRows.Close()

	var docs []*models.Document
	for docRows.Next() {
		var doc models.Document
		if err := docRows.Scan(&doc.ID, &doc.Filename, &doc.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, err
	}

	chunkRows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, filename, content, page, sheet, line_start, line_end, embedding
		 FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, nil, fmt.Errorf("query chunks: %w", err)
	}
	defer chunkRows.Close()

	counts := make(map[string]int)
	var chunks []*models.Chunk
	for chunkRows.Next() {
		var ch models.Chunk
		var blob []byte
		if err := chunkRows.Scan(&ch.ID, &ch.DocID, &ch.Filename, &ch.Text,
			&ch.Location.Page, &ch.Location.Sheet, &ch.Location.LineStart, &ch.Location.LineEnd,
			&blob); err != nil {
			return nil, nil, fmt.Errorf("scan chunk: %w", err)
		}
		ch.Vector = decodeVector(blob)
		chunks = append(chunks, &ch)
		counts[ch.DocID]++
	}
	if err := chunkRows.Err(); err != nil {
		return nil, nil, err
	}
	for _, doc := range docs {
		doc.ChunkCount = counts[doc.ID]
	}

	return docs, chunks, nil
}

// Clear removes all documents and chunks.
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	return tx.Commit()
}

// CountDocuments returns the number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountChunks returns the number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// encodeVector serializes a float32 vector as little-endian bytes.
func encodeVector(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

// decodeVector deserializes little-endian bytes into a float32 vector.
func decodeVector(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
