// Package archive persists answered queries to the query_log table for
// analytics and debugging.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pageoak/bookrag/internal/log"
)

// Record is one answered query with its timings and sources.
type Record struct {
	ID           string         `json:"id"`
	Query        string         `json:"query"`
	Answer       string         `json:"answer"`
	Model        string         `json:"model"`
	Mode         string         `json:"mode"`
	Grounded     bool           `json:"grounded"`
	Groundedness float32        `json:"groundedness"`
	InputTokens  int64          `json:"input_tokens"`
	OutputTokens int64          `json:"output_tokens"`
	RetrievalMS  int64          `json:"retrieval_ms"`
	GenerationMS int64          `json:"generation_ms"`
	ValidationMS int64          `json:"validation_ms"`
	TotalMS      int64          `json:"total_ms"`
	Sources      []RecordSource `json:"sources"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RecordSource is a compact reference to a chunk that backed an answer.
type RecordSource struct {
	DocID      string  `json:"doc_id,omitempty"`
	Chapter    string  `json:"chapter,omitempty"`
	Section    string  `json:"section,omitempty"`
	Subsection string  `json:"subsection,omitempty"`
	Similarity float32 `json:"similarity"`
}

// NewRecordID generates an archive record ID.
func NewRecordID() string {
	return "qry_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Store writes records to PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a Store over an existing connection pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Save inserts one record. A zero ID or CreatedAt is filled in.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Sources == nil {
		rec.Sources = []RecordSource{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_log (
			id, query, answer, model, mode, grounded, groundedness,
			input_tokens, output_tokens,
			retrieval_ms, generation_ms, validation_ms, total_ms,
			sources, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.Query, rec.Answer, rec.Model, rec.Mode, rec.Grounded, rec.Groundedness,
		rec.InputTokens, rec.OutputTokens,
		rec.RetrievalMS, rec.GenerationMS, rec.ValidationMS, rec.TotalMS,
		rec.Sources, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting query log record: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, query, answer, model, mode, grounded, groundedness,
		       input_tokens, output_tokens,
		       retrieval_ms, generation_ms, validation_ms, total_ms,
		       sources, created_at
		FROM query_log
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying query log: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.Query, &rec.Answer, &rec.Model, &rec.Mode, &rec.Grounded, &rec.Groundedness,
			&rec.InputTokens, &rec.OutputTokens,
			&rec.RetrievalMS, &rec.GenerationMS, &rec.ValidationMS, &rec.TotalMS,
			&rec.Sources, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning query log record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query log: %w", err)
	}
	return records, nil
}
