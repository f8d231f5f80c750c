package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/pageoak/bookrag/internal/archive"
	"github.com/pageoak/bookrag/internal/chunk"
	"github.com/pageoak/bookrag/internal/generate"
	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/retrieve"
	"github.com/pageoak/bookrag/internal/testutil"
	"github.com/pageoak/bookrag/internal/validate"
	"github.com/pageoak/bookrag/internal/vecstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memArchiver records archived queries in memory.
type memArchiver struct {
	mu      sync.Mutex
	records []archive.Record
	fail    error
}

func (a *memArchiver) Save(_ context.Context, rec archive.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return a.fail
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *memArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func (a *memArchiver) last() archive.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[len(a.records)-1]
}

type testDeps struct {
	embedder  *testutil.MockEmbedder
	generator *testutil.MockGenerator
	index     *vecstore.MemoryIndex
	archiver  *memArchiver
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *testDeps) {
	t.Helper()

	deps := &testDeps{
		embedder:  testutil.NewMockEmbedder(8),
		generator: testutil.NewMockGenerator("mock answer"),
		index:     vecstore.NewMemoryIndex(8),
		archiver:  &memArchiver{},
	}

	logger := log.NewNop()
	o := New(
		chunk.NewSplitter(800),
		deps.embedder,
		deps.index,
		retrieve.New(deps.embedder, deps.index, 5, 0.5, logger),
		deps.generator,
		validate.New(deps.embedder, 0.75, logger),
		deps.archiver,
		Config{
			DefaultBookVersion:   "v1.0",
			SelectedTextMaxChars: 200,
			StageTimeout:         5 * time.Second,
		},
		logger,
	)
	return o, deps
}

const chapterContent = "# Intro\nROS 2 is a robotics middleware. Nodes exchange messages over topics."

func TestIngestThenQuery(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := t.Context()

	// Make the stored chunk and the question embed to the same direction.
	stored := "ROS 2 is a robotics middleware. Nodes exchange messages over topics."
	deps.embedder.SetVector(stored, []float32{1, 0, 0, 0, 0, 0, 0, 0})
	deps.embedder.SetVector("What is ROS 2?", []float32{1, 0, 0, 0, 0, 0, 0, 0})

	res, err := o.Ingest(ctx, IngestRequest{Content: chapterContent, Chapter: "Chapter 1"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.TotalChunks != 1 || res.Ingested != 1 || res.SkippedDuplicates != 0 {
		t.Fatalf("ingest result = %+v", res)
	}
	if res.Chunks[0].Section != "Intro" || res.Chunks[0].Chapter != "Chapter 1" {
		t.Errorf("chunk detail = %+v", res.Chunks[0])
	}

	deps.generator.AddResponse("ros 2", "ROS 2 is a middleware for robots.")

	result, err := o.Query(ctx, QueryRequest{Question: "What is ROS 2?"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Answer != "ROS 2 is a middleware for robots." {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.Mode != generate.ModeFullBook {
		t.Errorf("mode = %q", result.Mode)
	}
	if len(result.Sources) == 0 {
		t.Fatal("no sources returned")
	}
	if result.Sources[0].Chapter != "Chapter 1" {
		t.Errorf("source = %+v", result.Sources[0])
	}
	if result.Sources[0].ID == "" {
		t.Error("source missing its index ID")
	}
	if rec := deps.archiver.last(); len(rec.Sources) == 0 || rec.Sources[0].DocID != result.Sources[0].ID {
		t.Errorf("archived sources = %+v", rec.Sources)
	}
	if result.Metrics.TotalMS < 0 {
		t.Errorf("metrics = %+v", result.Metrics)
	}

	// The generator must have seen the assembled context, not raw chunks.
	calls := deps.generator.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Context, "[Source 1:") {
		t.Errorf("generator context = %q", calls[0].Context)
	}
}

func TestIngestDeduplicatesOnReingest(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := t.Context()

	first, err := o.Ingest(ctx, IngestRequest{Content: chapterContent, Chapter: "Chapter 1"})
	if err != nil {
		t.Fatal(err)
	}
	embedCallsAfterFirst := deps.embedder.Calls()

	second, err := o.Ingest(ctx, IngestRequest{Content: chapterContent, Chapter: "Chapter 1"})
	if err != nil {
		t.Fatal(err)
	}

	if second.SkippedDuplicates != first.TotalChunks {
		t.Errorf("second ingest skipped %d, want %d", second.SkippedDuplicates, first.TotalChunks)
	}
	if second.Ingested != 0 || second.VectorsStored != 0 {
		t.Errorf("second ingest stored chunks: %+v", second)
	}
	if deps.embedder.Calls() != embedCallsAfterFirst {
		t.Error("duplicate ingest paid for embeddings")
	}

	info, err := deps.index.CollectionInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Chunks != int64(first.TotalChunks) {
		t.Errorf("index holds %d chunks, want %d", info.Chunks, first.TotalChunks)
	}
}

func TestIngestSameContentDifferentVersion(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := t.Context()

	if _, err := o.Ingest(ctx, IngestRequest{Content: chapterContent, BookVersion: "v1.0"}); err != nil {
		t.Fatal(err)
	}
	res, err := o.Ingest(ctx, IngestRequest{Content: chapterContent, BookVersion: "v2.0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedDuplicates != 0 || res.Ingested == 0 {
		t.Errorf("dedup must be per book version: %+v", res)
	}
}

func TestIngestEmptyContent(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if _, err := o.Ingest(t.Context(), IngestRequest{}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestQueryInputValidation(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := t.Context()

	if _, err := o.Query(ctx, QueryRequest{Question: "   "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := o.Query(ctx, QueryRequest{
		Question: "q", Mode: generate.ModeSelectedText,
	}); !errors.Is(err, ErrEmptySelectedText) {
		t.Errorf("expected ErrEmptySelectedText, got %v", err)
	}
	if _, err := o.Query(ctx, QueryRequest{Question: "q", Mode: "agentic"}); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestQueryNoResultsShortCircuits(t *testing.T) {
	o, deps := newTestOrchestrator(t)

	result, err := o.Query(t.Context(), QueryRequest{Question: "anything at all"})
	if err != nil {
		t.Fatalf("empty index query must not fail: %v", err)
	}
	if !strings.Contains(result.Answer, "couldn't find relevant information") {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(deps.generator.Calls()) != 0 {
		t.Error("generation was called despite empty retrieval")
	}
	if len(result.Sources) != 0 {
		t.Errorf("sources = %+v, want none", result.Sources)
	}
}

func TestQueryGenerationFailureDegrades(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := t.Context()

	deps.embedder.SetVector("the chunk text goes here.", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	deps.embedder.SetVector("question", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	if _, err := o.Ingest(ctx, IngestRequest{Content: "the chunk text goes here."}); err != nil {
		t.Fatal(err)
	}

	deps.generator.Fail(errors.New("503 unavailable"))

	result, err := o.Query(ctx, QueryRequest{Question: "question"})
	if err != nil {
		t.Fatalf("generation failure must not fail the query: %v", err)
	}
	if result.Answer != AnswerGenerationFailed {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.Grounded {
		t.Error("failed generation reported grounded")
	}
}

func TestQuerySelectedTextGrounded(t *testing.T) {
	o, deps := newTestOrchestrator(t)

	selected := "Gazebo is a robot simulator used with ROS."
	answer := "Gazebo simulates robots."
	deps.embedder.SetVector(selected, []float32{1, 0, 0, 0, 0, 0, 0, 0})
	deps.embedder.SetVector(answer, []float32{0.97, 0.03, 0, 0, 0, 0, 0, 0})
	deps.generator.AddResponse("gazebo", answer)

	result, err := o.Query(t.Context(), QueryRequest{
		Question:     "What is Gazebo?",
		Mode:         generate.ModeSelectedText,
		SelectedText: selected,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Answer != answer {
		t.Errorf("answer = %q", result.Answer)
	}
	if !result.Grounded || result.Groundedness < 0.75 {
		t.Errorf("grounded = %v score = %v", result.Grounded, result.Groundedness)
	}
	if len(result.Sources) != 1 || result.Sources[0].Similarity != 1.0 {
		t.Errorf("sources = %+v", result.Sources)
	}
	wantID := "sel_" + chunk.HashContent(selected)[:12]
	if result.Sources[0].ID != wantID {
		t.Errorf("synthetic source ID = %q, want %q", result.Sources[0].ID, wantID)
	}
}

func TestQuerySelectedTextUngroundedReplaced(t *testing.T) {
	o, deps := newTestOrchestrator(t)

	selected := "The chapter discusses sensor fusion."
	hallucination := "Paris is the capital of France."
	deps.embedder.SetVector(selected, []float32{1, 0, 0, 0, 0, 0, 0, 0})
	deps.embedder.SetVector(hallucination, []float32{0, 1, 0, 0, 0, 0, 0, 0})
	deps.generator.AddResponse("capital", hallucination)

	result, err := o.Query(t.Context(), QueryRequest{
		Question:     "What is the capital of France?",
		Mode:         generate.ModeSelectedText,
		SelectedText: selected,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Answer != AnswerNotGrounded {
		t.Errorf("ungrounded answer not replaced: %q", result.Answer)
	}
	if result.Grounded {
		t.Error("ungrounded answer reported grounded")
	}
	if result.Groundedness > 0.1 {
		t.Errorf("groundedness = %v, want ~0", result.Groundedness)
	}
}

func TestQuerySelectedTextTruncated(t *testing.T) {
	o, deps := newTestOrchestrator(t)

	long := strings.Repeat("all work and no play. ", 50) // well over the 200-char cap
	result, err := o.Query(t.Context(), QueryRequest{
		Question:     "what does it say?",
		Mode:         generate.ModeSelectedText,
		SelectedText: long,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Sources[0].Content) > 200 {
		t.Errorf("selected text not truncated: %d chars", len(result.Sources[0].Content))
	}

	calls := deps.generator.Calls()
	if len(calls) != 1 || len(calls[0].Context) > 200 {
		t.Error("generator saw untruncated selected text")
	}
}

func TestQuerySourcesAreExcerpts(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := t.Context()

	// One chunk well over the excerpt cap.
	long := strings.TrimSpace(strings.Repeat("Robots fuse sensor data continuously. ", 15))
	deps.embedder.SetVector(long, []float32{1, 0, 0, 0, 0, 0, 0, 0})
	deps.embedder.SetVector("how do robots sense?", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	if _, err := o.Ingest(ctx, IngestRequest{Content: long}); err != nil {
		t.Fatal(err)
	}

	result, err := o.Query(ctx, QueryRequest{Question: "how do robots sense?"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Sources) == 0 {
		t.Fatal("no sources returned")
	}
	if len(result.Sources[0].Content) > 200 {
		t.Errorf("source content not excerpted: %d chars", len(result.Sources[0].Content))
	}

	// The generator still works from the full text.
	calls := deps.generator.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Context, long) {
		t.Error("generator context lost the full chunk text")
	}
}

func TestQueryArchivesResult(t *testing.T) {
	o, deps := newTestOrchestrator(t)

	result, err := o.Query(t.Context(), QueryRequest{Question: "unanswerable"})
	if err != nil {
		t.Fatal(err)
	}
	if deps.archiver.count() != 1 {
		t.Fatalf("archived %d records, want 1", deps.archiver.count())
	}
	rec := deps.archiver.last()
	if rec.Query != "unanswerable" || rec.Answer != result.Answer {
		t.Errorf("archived record = %+v", rec)
	}
	if rec.Mode != string(generate.ModeFullBook) {
		t.Errorf("archived mode = %q", rec.Mode)
	}
}

func TestQueryArchiveFailureSwallowed(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	deps.archiver.fail = errors.New("database down")

	if _, err := o.Query(t.Context(), QueryRequest{Question: "still works"}); err != nil {
		t.Errorf("archive failure leaked: %v", err)
	}
}

func TestTruncateUTF8KeepsRunesWhole(t *testing.T) {
	s := "héllo wörld" // multibyte characters
	for max := 1; max <= len(s); max++ {
		got := truncateUTF8(s, max)
		if len(got) > max {
			t.Fatalf("truncateUTF8(%q, %d) = %d bytes", s, max, len(got))
		}
		if !strings.HasPrefix(s, got) {
			t.Fatalf("truncateUTF8 produced non-prefix %q", got)
		}
	}
}
