// Package vectorstore adapts the pgvector-backed chunk table to the
// retrieval pipeline. Every query is filtered by owner: the owner filter is a
// hard security boundary, not an optimization.
package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnavailable marks a backing-service failure. Callers surface it as a
// retrieval failure, not a fatal crash.
var ErrUnavailable = errors.New("vector store unavailable")

// DefaultEmbeddingDimensions is the expected length of vectors stored in the
// pgvector column.
const DefaultEmbeddingDimensions = 1536

// Record is one page's text plus its embedding and ownership metadata.
// Records are keyed by (owner, document, page): re-upserting the same key
// overwrites in place, which keeps ingestion retries idempotent.
type Record struct {
	OwnerID    string
	DocumentID string
	Page       int
	Text       string
	Vector     []float32
}

// Match is a similarity hit. Score is cosine similarity clamped to [0,1].
type Match struct {
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	SourceFile string  `json:"sourceFile"`
	Score      float64 `json:"score"`
}

// Store is the vector database contract used by ingestion and retrieval.
type Store interface {
	Upsert(ctx context.Context, records []Record) (int, error)
	Search(ctx context.Context, ownerID string, vector []float32, topK int) ([]Match, error)
	DeleteDocument(ctx context.Context, ownerID, documentID string) (int64, error)
}

// PgStore implements Store on a Postgres database with the pgvector extension.
type PgStore struct {
	DB *sql.DB
}

func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{DB: db}
}

// Upsert stores or overwrites chunk embeddings. Returns the number of records
// written.
func (s *PgStore) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO document_chunks (owner_id, document_id, page, content, embedding, created_at)
VALUES ($1,$2,$3,$4,$5::vector,NOW())
ON CONFLICT (owner_id, document_id, page) DO UPDATE SET
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding,
  created_at = NOW();
`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.OwnerID == "" {
			return 0, fmt.Errorf("owner_id required")
		}
		if rec.DocumentID == "" {
			return 0, fmt.Errorf("document_id required")
		}
		vectorLiteral, err := encodeVectorLiteral(rec.Vector)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, rec.OwnerID, rec.DocumentID, rec.Page, rec.Text, vectorLiteral); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return len(records), nil
}

// Search returns the closest chunks for the supplied vector, scoped to one
// owner, ordered by descending score.
func (s *PgStore) Search(ctx context.Context, ownerID string, vector []float32, topK int) ([]Match, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id required")
	}
	if topK <= 0 {
		topK = 3
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT content, page, document_id, embedding <=> $1::vector AS distance
FROM document_chunks
WHERE owner_id = $2
ORDER BY embedding <=> $1::vector
LIMIT $3
`, vecLiteral, ownerID, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var matches []Match
	for rows.Next() {
		var (
			m        Match
			distance float64
		)
		if err := rows.Scan(&m.Text, &m.Page, &m.SourceFile, &distance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		m.Score = clampScore(1 - distance)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return matches, nil
}

// DeleteDocument removes every chunk belonging to one document of one owner.
func (s *PgStore) DeleteDocument(ctx context.Context, ownerID, documentID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
DELETE FROM document_chunks WHERE owner_id=$1 AND document_id=$2
`, ownerID, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func clampScore(val float64) float64 {
	if val < 0 {
		return 0
	}
	if val > 1 {
		return 1
	}
	return val
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
