// Package retrieve embeds a query and finds the most relevant chunks
// in the vector index.
package retrieve

import (
	"context"
	"fmt"

	"github.com/pageoak/bookrag/internal/embed"
	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/vecstore"
)

// Chunk is a retrieved passage with its source location and similarity.
// ID is the vector-index identifier of the row the passage came from.
type Chunk struct {
	ID         string  `json:"doc_id"`
	Content    string  `json:"content_excerpt"`
	Similarity float32 `json:"similarity"`
	Chapter    string  `json:"chapter,omitempty"`
	Section    string  `json:"section,omitempty"`
	Subsection string  `json:"subsection,omitempty"`
}

// Metadata describes a retrieval for logging and API responses.
type Metadata struct {
	QueryTokens     int     `json:"query_tokens"`
	ChunksRetrieved int     `json:"chunks_retrieved"`
	BookVersion     string  `json:"book_version"`
	MinSimilarity   float32 `json:"min_similarity"`
}

// Retriever performs similarity search with a similarity floor.
type Retriever struct {
	embedder      embed.Provider
	index         vecstore.Index
	topK          int
	minSimilarity float32
	logger        log.Logger
}

// New creates a Retriever with the given defaults. Options on Retrieve
// override them per call.
func New(embedder embed.Provider, index vecstore.Index, topK int, minSimilarity float32, logger log.Logger) *Retriever {
	return &Retriever{
		embedder:      embedder,
		index:         index,
		topK:          topK,
		minSimilarity: minSimilarity,
		logger:        logger,
	}
}

// Option adjusts a single Retrieve call.
type Option func(*options)

type options struct {
	topK          int
	minSimilarity float32
	chapter       string
}

// WithTopK overrides the number of chunks to return.
func WithTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithMinSimilarity overrides the similarity floor.
func WithMinSimilarity(min float32) Option {
	return func(o *options) { o.minSimilarity = min }
}

// WithChapter restricts retrieval to a single chapter.
func WithChapter(chapter string) Option {
	return func(o *options) { o.chapter = chapter }
}

// Retrieve embeds query and returns up to topK chunks from bookVersion
// with similarity at or above the floor, best first. Zero results is
// not an error; the caller decides how to respond.
func (r *Retriever) Retrieve(ctx context.Context, query, bookVersion string, opts ...Option) ([]Chunk, Metadata, error) {
	o := options{topK: r.topK, minSimilarity: r.minSimilarity}
	for _, opt := range opts {
		opt(&o)
	}

	meta := Metadata{
		QueryTokens:   r.embedder.EstimateTokens(query),
		BookVersion:   bookVersion,
		MinSimilarity: o.minSimilarity,
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, meta, fmt.Errorf("embedding query: %w", err)
	}

	filter := map[string]string{vecstore.MetaBookVersion: bookVersion}
	if o.chapter != "" {
		filter[vecstore.MetaChapter] = o.chapter
	}

	// Over-fetch so the similarity floor does not starve the result set.
	results, err := r.index.Search(ctx, vector, o.topK*2, filter)
	if err != nil {
		return nil, meta, fmt.Errorf("searching index: %w", err)
	}

	chunks := make([]Chunk, 0, o.topK)
	for _, res := range results {
		if res.Similarity < o.minSimilarity {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         res.ID,
			Content:    res.Content,
			Similarity: res.Similarity,
			Chapter:    res.Metadata[vecstore.MetaChapter],
			Section:    res.Metadata[vecstore.MetaSection],
			Subsection: res.Metadata[vecstore.MetaSubsection],
		})
		if len(chunks) == o.topK {
			break
		}
	}
	meta.ChunksRetrieved = len(chunks)

	r.logger.Debug("retrieval complete",
		"candidates", len(results),
		"returned", len(chunks),
		"book_version", bookVersion,
		"min_similarity", o.minSimilarity,
	)

	return chunks, meta, nil
}
