// Package pipeline orchestrates the ingestion and query flows.
//
// Ingestion: split content into chunks, skip chunks already stored for
// the book version, embed the rest, upsert into the vector index.
//
// Query: retrieve (or take the reader's selected text), assemble
// context, generate an answer, validate groundedness in selected-text
// mode, archive the result. The query flow degrades instead of
// failing: after input validation passes, every downstream failure
// turns into a fallback answer so the caller always gets a response.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/pageoak/bookrag/internal/archive"
	"github.com/pageoak/bookrag/internal/chunk"
	"github.com/pageoak/bookrag/internal/embed"
	"github.com/pageoak/bookrag/internal/generate"
	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/retrieve"
	"github.com/pageoak/bookrag/internal/validate"
	"github.com/pageoak/bookrag/internal/vecstore"
)

// Input validation errors. These are the only errors Query returns;
// everything downstream degrades to a fallback answer.
var (
	ErrEmptyQuery        = errors.New("query text is empty")
	ErrEmptySelectedText = errors.New("selected text is empty")
	ErrEmptyContent      = errors.New("ingest content is empty")
)

// Static fallback answers, kept byte-identical across releases because
// clients match on them.
const (
	AnswerGenerationFailed = "Sorry, I couldn't generate a response at this time. Please try again later."
	AnswerNoResults        = "I couldn't find relevant information in the book to answer your question."
	AnswerNotGrounded      = "I couldn't find an answer to your question in the selected text."
)

// Archiver persists answered queries. Failures are logged and
// swallowed; archiving never affects the response.
type Archiver interface {
	Save(ctx context.Context, rec archive.Record) error
}

// Config carries the orchestrator tunables.
type Config struct {
	DefaultBookVersion   string
	SelectedTextMaxChars int
	StageTimeout         time.Duration
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	splitter  *chunk.Splitter
	embedder  embed.Provider
	index     vecstore.Index
	retriever *retrieve.Retriever
	generator generate.Provider
	validator *validate.Validator
	archiver  Archiver // nil disables archiving
	cfg       Config
	logger    log.Logger
}

// New creates an Orchestrator. archiver may be nil to disable the
// query log.
func New(
	splitter *chunk.Splitter,
	embedder embed.Provider,
	index vecstore.Index,
	retriever *retrieve.Retriever,
	generator generate.Provider,
	validator *validate.Validator,
	archiver Archiver,
	cfg Config,
	logger log.Logger,
) *Orchestrator {
	if cfg.DefaultBookVersion == "" {
		cfg.DefaultBookVersion = "v1.0"
	}
	if cfg.SelectedTextMaxChars <= 0 {
		cfg.SelectedTextMaxChars = 12000
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Second
	}
	return &Orchestrator{
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		retriever: retriever,
		generator: generator,
		validator: validator,
		archiver:  archiver,
		cfg:       cfg,
		logger:    logger,
	}
}

// stageCtx bounds a single pipeline stage.
func (o *Orchestrator) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.StageTimeout)
}

// millisSince returns elapsed whole milliseconds since start.
func millisSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
