// Package vecstore stores chunk embeddings and serves cosine
// similarity search over them.
//
// Two implementations exist: PgxIndex persists to PostgreSQL with the
// pgvector extension, and MemoryIndex keeps everything in process for
// tests and small corpora. Both key items by a stable content-derived
// ID so re-upserting identical content overwrites instead of duplicating.
package vecstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrDimensionMismatch indicates a vector with the wrong length for the index.
var ErrDimensionMismatch = errors.New("vecstore: dimension mismatch")

// Metadata keys stored with every item.
const (
	MetaBookVersion = "book_version"
	MetaChapter     = "chapter"
	MetaSection     = "section"
	MetaSubsection  = "subsection"
	MetaChunkIndex  = "chunk_index"
)

// Item is a stored chunk with its embedding.
type Item struct {
	ID          string
	Content     string
	Embedding   []float32
	ContentHash string
	BookVersion string
	Metadata    map[string]string
}

// Result is a search hit with its cosine similarity in [0,1].
type Result struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

// Info summarizes the collection for health and status endpoints.
type Info struct {
	Chunks       int64    `json:"chunks"`
	BookVersions []string `json:"book_versions"`
}

// Index is the storage interface the ingestion and retrieval pipelines
// depend on.
type Index interface {
	// Upsert stores one item, replacing any existing item with the same ID.
	Upsert(ctx context.Context, item Item) error

	// UpsertBatch stores items and returns how many were written.
	UpsertBatch(ctx context.Context, items []Item) (int, error)

	// Search returns up to k items most similar to vector, best first.
	// filter restricts results to items whose metadata contains every
	// given key/value pair. Zero matches is not an error.
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error)

	// ExistingHashes returns the content hashes already stored for a
	// book version, for deduplication before embedding.
	ExistingHashes(ctx context.Context, bookVersion string) (map[string]bool, error)

	// CollectionInfo reports chunk count and known book versions.
	CollectionInfo(ctx context.Context) (Info, error)
}

// StableID derives a deterministic item ID from a content hash and book
// version, so the same chunk in the same version always maps to one row.
func StableID(contentHash, bookVersion string) string {
	sum := sha256.Sum256([]byte(contentHash + ":" + bookVersion))
	return "chunk_" + hex.EncodeToString(sum[:])[:32]
}

// clampSimilarity keeps float noise from pushing cosine values outside [0,1].
func clampSimilarity(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
