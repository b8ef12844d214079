package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/advisorstack/oracle-advisor/internal/models"
)

// Store persists document chunks in SQLite so the index can be rebuilt on
// startup. Embeddings are stored as little-endian float32 blobs.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS document_chunks (
	id        TEXT NOT NULL,
	namespace TEXT NOT NULL,
	doc_id    TEXT NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL,
	PRIMARY KEY (namespace, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_namespace ON document_chunks (namespace);`

// NewStore opens (or creates) the chunk database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("index store path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init index schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveChunks writes chunks in a single transaction, replacing any existing
// rows with the same (namespace, id). Re-running the same batch is a no-op.
func (s *Store) SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO document_chunks (id, namespace, doc_id, text, embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Namespace, c.DocID, c.Text, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteChunk removes a persisted chunk.
func (s *Store) DeleteChunk(ctx context.Context, namespace, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM document_chunks WHERE namespace = ? AND id = ?", namespace, id)
	return err
}

// LoadAll returns every persisted chunk grouped by namespace. Rows whose
// embedding length disagrees with dims are skipped rather than poisoning the
// index.
func (s *Store) LoadAll(ctx context.Context, dims int) (map[string][]models.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, namespace, doc_id, text, embedding FROM document_chunks ORDER BY namespace, id")
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.DocumentChunk)
	for rows.Next() {
		var (
			c    models.DocumentChunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Namespace, &c.DocID, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil || len(vec) != dims {
			continue
		}
		c.Embedding = vec
		out[c.Namespace] = append(out[c.Namespace], c)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
