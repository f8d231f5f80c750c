package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pageoak/bookrag/internal/chunk"
	"github.com/pageoak/bookrag/internal/vecstore"
)

// IngestRequest is one chapter (or other unit) of book content.
type IngestRequest struct {
	Content     string
	Chapter     string
	Section     string
	BookVersion string // empty uses the configured default
}

// ChunkDetail describes one chunk's fate during ingestion.
type ChunkDetail struct {
	ID         string `json:"id"`
	Chapter    string `json:"chapter,omitempty"`
	Section    string `json:"section,omitempty"`
	Subsection string `json:"subsection,omitempty"`
	Tokens     int    `json:"tokens"`
	Duplicate  bool   `json:"duplicate"`
}

// IngestResult summarizes an ingestion run.
type IngestResult struct {
	BookVersion       string        `json:"book_version"`
	TotalChunks       int           `json:"total_chunks"`
	Ingested          int           `json:"ingested"`
	SkippedDuplicates int           `json:"skipped_duplicates"`
	VectorsStored     int           `json:"vectors_stored"`
	Chunks            []ChunkDetail `json:"chunks"`
}

// Ingest chunks content, deduplicates against what is already stored
// for the book version, embeds the remainder, and upserts into the
// index. Duplicates are detected before embedding so re-ingesting a
// chapter costs no API tokens.
func (o *Orchestrator) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if req.Content == "" {
		return IngestResult{}, ErrEmptyContent
	}
	bookVersion := req.BookVersion
	if bookVersion == "" {
		bookVersion = o.cfg.DefaultBookVersion
	}
	result := IngestResult{BookVersion: bookVersion}

	chunks := o.splitter.Split(req.Content, req.Chapter, req.Section)
	result.TotalChunks = len(chunks)
	if len(chunks) == 0 {
		return result, nil
	}

	existing, err := o.index.ExistingHashes(ctx, bookVersion)
	if err != nil {
		return result, fmt.Errorf("loading existing hashes: %w", err)
	}

	var fresh []chunk.Chunk
	for _, c := range chunks {
		detail := ChunkDetail{
			ID:         vecstore.StableID(c.ContentHash, bookVersion),
			Chapter:    c.Chapter,
			Section:    c.Section,
			Subsection: c.Subsection,
			Tokens:     chunk.EstimateTokens(c.Content),
			Duplicate:  existing[c.ContentHash],
		}
		result.Chunks = append(result.Chunks, detail)
		if detail.Duplicate {
			result.SkippedDuplicates++
			continue
		}
		// Identical content can repeat within one request too.
		existing[c.ContentHash] = true
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		o.logger.Info("ingest skipped, all chunks already stored",
			"book_version", bookVersion,
			"chunks", len(chunks),
		)
		return result, nil
	}

	texts := make([]string, len(fresh))
	for i, c := range fresh {
		texts[i] = c.Content
	}

	embedCtx, cancel := o.stageCtx(ctx)
	vectors, err := o.embedder.EmbedBatch(embedCtx, texts)
	cancel()
	if err != nil {
		return result, fmt.Errorf("embedding %d chunks: %w", len(fresh), err)
	}

	items := make([]vecstore.Item, len(fresh))
	for i, c := range fresh {
		items[i] = vecstore.Item{
			ID:          vecstore.StableID(c.ContentHash, bookVersion),
			Content:     c.Content,
			Embedding:   vectors[i],
			ContentHash: c.ContentHash,
			BookVersion: bookVersion,
			Metadata: map[string]string{
				vecstore.MetaBookVersion: bookVersion,
				vecstore.MetaChapter:     c.Chapter,
				vecstore.MetaSection:     c.Section,
				vecstore.MetaSubsection:  c.Subsection,
				vecstore.MetaChunkIndex:  strconv.Itoa(c.ChunkIndex),
			},
		}
	}

	stored, err := o.index.UpsertBatch(ctx, items)
	result.VectorsStored = stored
	result.Ingested = stored
	if err != nil {
		return result, fmt.Errorf("storing %d chunks: %w", len(items), err)
	}

	o.logger.Info("ingest complete",
		"book_version", bookVersion,
		"chapter", req.Chapter,
		"total_chunks", result.TotalChunks,
		"ingested", result.Ingested,
		"skipped_duplicates", result.SkippedDuplicates,
	)
	return result, nil
}
