package vecstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/pageoak/bookrag/internal/log"
)

// PgxIndex is the production Index backed by PostgreSQL with pgvector.
// Similarity search uses the cosine distance operator; the HNSW index
// created by the migrations keeps it fast at corpus scale.
//
// The pool must have pgvector types registered, see database.Open.
type PgxIndex struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPgxIndex creates an Index over an existing connection pool.
func NewPgxIndex(pool *pgxpool.Pool, logger log.Logger) *PgxIndex {
	return &PgxIndex{pool: pool, logger: logger}
}

const upsertSQL = `
	INSERT INTO chunks (id, content, embedding, content_hash, book_version, metadata)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding,
		content_hash = EXCLUDED.content_hash,
		book_version = EXCLUDED.book_version,
		metadata = EXCLUDED.metadata`

// Upsert implements Index.
func (p *PgxIndex) Upsert(ctx context.Context, item Item) error {
	_, err := p.pool.Exec(ctx, upsertSQL,
		item.ID, item.Content, pgvector.NewVector(item.Embedding),
		item.ContentHash, item.BookVersion, item.Metadata)
	if err != nil {
		return fmt.Errorf("upserting chunk %s: %w", item.ID, err)
	}
	return nil
}

// UpsertBatch implements Index. Items go through a single pipelined
// batch; a failure aborts and reports how many statements succeeded.
func (p *PgxIndex) UpsertBatch(ctx context.Context, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(upsertSQL,
			item.ID, item.Content, pgvector.NewVector(item.Embedding),
			item.ContentHash, item.BookVersion, item.Metadata)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			p.logger.Warn("closing upsert batch", "error", err)
		}
	}()

	for i := range items {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("upserting chunk %d of %d: %w", i+1, len(items), err)
		}
	}
	return len(items), nil
}

// Search implements Index. Similarity is 1 minus cosine distance,
// clamped to [0,1].
func (p *PgxIndex) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if filter == nil {
		filter = map[string]string{}
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE metadata @> $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector), filter, k)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var similarity float64
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		r.Similarity = clampSimilarity(float32(similarity))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// ExistingHashes implements Index.
func (p *PgxIndex) ExistingHashes(ctx context.Context, bookVersion string) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT content_hash FROM chunks WHERE book_version = $1`, bookVersion)
	if err != nil {
		return nil, fmt.Errorf("loading content hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning content hash: %w", err)
		}
		hashes[h] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating content hashes: %w", err)
	}
	return hashes, nil
}

// CollectionInfo implements Index.
func (p *PgxIndex) CollectionInfo(ctx context.Context) (Info, error) {
	var info Info
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&info.Chunks); err != nil {
		return Info{}, fmt.Errorf("counting chunks: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT DISTINCT book_version FROM chunks ORDER BY book_version`)
	if err != nil {
		return Info{}, fmt.Errorf("listing book versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return Info{}, fmt.Errorf("scanning book version: %w", err)
		}
		info.BookVersions = append(info.BookVersions, v)
	}
	if err := rows.Err(); err != nil {
		return Info{}, fmt.Errorf("iterating book versions: %w", err)
	}
	return info, nil
}
