package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pageoak/bookrag/internal/archive"
	"github.com/pageoak/bookrag/internal/assemble"
	"github.com/pageoak/bookrag/internal/chunk"
	"github.com/pageoak/bookrag/internal/generate"
	"github.com/pageoak/bookrag/internal/retrieve"
)

// ErrInvalidMode indicates an unknown query mode.
var ErrInvalidMode = errors.New("invalid query mode")

// sourceExcerptChars caps the source content echoed back in responses.
// The generator still sees the full chunk text through the assembled
// context.
const sourceExcerptChars = 200

// QueryRequest is one question from a reader.
type QueryRequest struct {
	Question     string
	Mode         generate.Mode // empty defaults to full_book
	SelectedText string        // required in selected_text mode
	BookVersion  string        // empty uses the configured default
	Chapter      string        // optional chapter restriction, full_book only
	TopK         int           // optional override, full_book only
}

// Metrics are per-stage latencies in whole milliseconds.
type Metrics struct {
	RetrievalMS  int64 `json:"retrieval_ms"`
	GenerationMS int64 `json:"generation_ms"`
	ValidationMS int64 `json:"validation_ms"`
	TotalMS      int64 `json:"total_ms"`
}

// QueryResult is the always-produced answer envelope.
type QueryResult struct {
	Answer       string            `json:"answer"`
	Mode         generate.Mode     `json:"mode"`
	Model        string            `json:"model,omitempty"`
	Grounded     bool              `json:"grounded"`
	Groundedness float32           `json:"groundedness,omitempty"`
	Sources      []retrieve.Chunk  `json:"sources"`
	Retrieval    retrieve.Metadata `json:"retrieval"`
	InputTokens  int64             `json:"input_tokens"`
	OutputTokens int64             `json:"output_tokens"`
	Metrics      Metrics           `json:"metrics"`
}

// Query answers a question. It returns an error only for invalid
// input; once the pipeline starts, failures degrade to fallback
// answers so the caller always gets a QueryResult.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return QueryResult{}, ErrEmptyQuery
	}
	if req.Mode == "" {
		req.Mode = generate.ModeFullBook
	}
	if !req.Mode.Valid() {
		return QueryResult{}, ErrInvalidMode
	}
	if req.Mode == generate.ModeSelectedText && strings.TrimSpace(req.SelectedText) == "" {
		return QueryResult{}, ErrEmptySelectedText
	}
	if req.BookVersion == "" {
		req.BookVersion = o.cfg.DefaultBookVersion
	}

	start := time.Now()
	result := QueryResult{Mode: req.Mode, Grounded: true, Sources: []retrieve.Chunk{}}

	var contextBlock string
	switch req.Mode {
	case generate.ModeSelectedText:
		contextBlock = o.selectedTextContext(req, &result)
	default:
		var ok bool
		contextBlock, ok = o.retrieveContext(ctx, req, &result)
		if !ok {
			result.Metrics.TotalMS = millisSince(start)
			o.archiveResult(ctx, req, result)
			return result, nil
		}
	}

	o.generateAnswer(ctx, req, contextBlock, &result)

	if req.Mode == generate.ModeSelectedText && result.Model != "" {
		o.validateAnswer(ctx, req.SelectedText, &result)
	}

	result.Metrics.TotalMS = millisSince(start)
	o.archiveResult(ctx, req, result)
	return result, nil
}

// selectedTextContext caps the selected passage and records it as the
// single, fully relevant source.
func (o *Orchestrator) selectedTextContext(req QueryRequest, result *QueryResult) string {
	text := req.SelectedText
	if len(text) > o.cfg.SelectedTextMaxChars {
		text = truncateUTF8(text, o.cfg.SelectedTextMaxChars)
		o.logger.Debug("selected text truncated",
			"original_chars", len(req.SelectedText),
			"max_chars", o.cfg.SelectedTextMaxChars,
		)
	}
	result.Sources = []retrieve.Chunk{{
		ID:         "sel_" + chunk.HashContent(text)[:12],
		Content:    truncateUTF8(text, sourceExcerptChars),
		Similarity: 1.0,
		Section:    "Selected text",
	}}
	result.Retrieval = retrieve.Metadata{
		ChunksRetrieved: 1,
		BookVersion:     req.BookVersion,
	}
	return text
}

// retrieveContext runs timed retrieval. The second return is false
// when the pipeline should stop with the answer already set.
func (o *Orchestrator) retrieveContext(ctx context.Context, req QueryRequest, result *QueryResult) (string, bool) {
	var opts []retrieve.Option
	if req.TopK > 0 {
		opts = append(opts, retrieve.WithTopK(req.TopK))
	}
	if req.Chapter != "" {
		opts = append(opts, retrieve.WithChapter(req.Chapter))
	}

	stageCtx, cancel := o.stageCtx(ctx)
	defer cancel()

	retrievalStart := time.Now()
	chunks, meta, err := o.retriever.Retrieve(stageCtx, req.Question, req.BookVersion, opts...)
	result.Metrics.RetrievalMS = millisSince(retrievalStart)
	result.Retrieval = meta

	if err != nil {
		o.logger.Error("retrieval failed, returning fallback answer", "error", err)
		result.Answer = AnswerGenerationFailed
		result.Grounded = false
		return "", false
	}
	if len(chunks) == 0 {
		// Nothing relevant stored; don't burn a generation call.
		result.Answer = AnswerNoResults
		return "", false
	}

	result.Sources = excerptSources(chunks)
	return assemble.Context(chunks), true
}

// excerptSources copies chunks with content cut down to a preview.
func excerptSources(chunks []retrieve.Chunk) []retrieve.Chunk {
	out := make([]retrieve.Chunk, len(chunks))
	for i, c := range chunks {
		c.Content = truncateUTF8(c.Content, sourceExcerptChars)
		out[i] = c
	}
	return out
}

// generateAnswer runs timed generation, degrading to the static
// apology on failure.
func (o *Orchestrator) generateAnswer(ctx context.Context, req QueryRequest, contextBlock string, result *QueryResult) {
	stageCtx, cancel := o.stageCtx(ctx)
	defer cancel()

	generationStart := time.Now()
	answer, err := o.generator.Generate(stageCtx, generate.Request{
		Question: req.Question,
		Context:  contextBlock,
		Mode:     req.Mode,
	})
	result.Metrics.GenerationMS = millisSince(generationStart)

	if err != nil {
		o.logger.Error("generation failed, returning fallback answer", "error", err)
		result.Answer = AnswerGenerationFailed
		result.Grounded = false
		return
	}

	result.Answer = answer.Text
	result.Model = answer.Model
	result.InputTokens = answer.InputTokens
	result.OutputTokens = answer.OutputTokens
}

// validateAnswer checks groundedness against the selected text and
// replaces ungrounded answers with the refusal message.
func (o *Orchestrator) validateAnswer(ctx context.Context, selectedText string, result *QueryResult) {
	stageCtx, cancel := o.stageCtx(ctx)
	defer cancel()

	validationStart := time.Now()
	grounded, score := o.validator.IsGrounded(stageCtx, result.Answer, selectedText)
	result.Metrics.ValidationMS = millisSince(validationStart)

	result.Grounded = grounded
	result.Groundedness = score
	if !grounded {
		o.logger.Warn("answer not grounded in selected text, replacing",
			"score", score,
			"threshold", o.validator.Threshold(),
		)
		result.Answer = AnswerNotGrounded
	}
}

// archiveResult persists the answered query. Failures never affect the
// response.
func (o *Orchestrator) archiveResult(ctx context.Context, req QueryRequest, result QueryResult) {
	if o.archiver == nil {
		return
	}

	sources := make([]archive.RecordSource, 0, len(result.Sources))
	for _, s := range result.Sources {
		sources = append(sources, archive.RecordSource{
			DocID:      s.ID,
			Chapter:    s.Chapter,
			Section:    s.Section,
			Subsection: s.Subsection,
			Similarity: s.Similarity,
		})
	}

	rec := archive.Record{
		Query:        req.Question,
		Answer:       result.Answer,
		Model:        result.Model,
		Mode:         string(result.Mode),
		Grounded:     result.Grounded,
		Groundedness: result.Groundedness,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		RetrievalMS:  result.Metrics.RetrievalMS,
		GenerationMS: result.Metrics.GenerationMS,
		ValidationMS: result.Metrics.ValidationMS,
		TotalMS:      result.Metrics.TotalMS,
		Sources:      sources,
	}
	if err := o.archiver.Save(ctx, rec); err != nil {
		o.logger.Warn("failed to archive query", "error", err)
	}
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
