package retrieve

import (
	"errors"
	"testing"

	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/testutil"
	"github.com/pageoak/bookrag/internal/vecstore"
)

// seedIndex stores three chunks with controlled similarity to "the query".
func seedIndex(t *testing.T, embedder *testutil.MockEmbedder) vecstore.Index {
	t.Helper()

	embedder.SetVector("the query", []float32{1, 0, 0})
	embedder.SetVector("close match", []float32{0.98, 0.02, 0})
	embedder.SetVector("middling match", []float32{0.7, 0.7, 0})
	embedder.SetVector("unrelated", []float32{0, 1, 0})

	idx := vecstore.NewMemoryIndex(3)
	for _, content := range []string{"close match", "middling match", "unrelated"} {
		vec, err := embedder.Embed(t.Context(), content)
		if err != nil {
			t.Fatal(err)
		}
		hash := content // hash value is irrelevant here, only uniqueness
		err = idx.Upsert(t.Context(), vecstore.Item{
			ID:          vecstore.StableID(hash, "v1.0"),
			Content:     content,
			Embedding:   vec,
			ContentHash: hash,
			BookVersion: "v1.0",
			Metadata: map[string]string{
				vecstore.MetaBookVersion: "v1.0",
				vecstore.MetaChapter:     "Chapter 1",
				vecstore.MetaSection:     "Basics",
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return idx
}

func TestRetrieveFiltersBySimilarity(t *testing.T) {
	embedder := testutil.NewMockEmbedder(3)
	idx := seedIndex(t, embedder)

	r := New(embedder, idx, 5, 0.5, log.NewNop())
	chunks, meta, err := r.Retrieve(t.Context(), "the query", "v1.0")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	// "unrelated" is orthogonal and must fall below the 0.5 floor.
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].Content != "close match" {
		t.Errorf("best chunk = %q", chunks[0].Content)
	}
	if chunks[0].Similarity < chunks[1].Similarity {
		t.Error("chunks not ordered best first")
	}
	if chunks[0].Chapter != "Chapter 1" || chunks[0].Section != "Basics" {
		t.Errorf("metadata not carried through: %+v", chunks[0])
	}
	if chunks[0].ID != vecstore.StableID("close match", "v1.0") {
		t.Errorf("index ID not carried through: %q", chunks[0].ID)
	}
	if meta.ChunksRetrieved != 2 || meta.BookVersion != "v1.0" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestRetrieveHigherFloorReturnsFewer(t *testing.T) {
	embedder := testutil.NewMockEmbedder(3)
	idx := seedIndex(t, embedder)

	r := New(embedder, idx, 5, 0.5, log.NewNop())
	chunks, _, err := r.Retrieve(t.Context(), "the query", "v1.0", WithMinSimilarity(0.9))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Content != "close match" {
		t.Errorf("floor 0.9 returned %+v, want only close match", chunks)
	}
}

func TestRetrieveTopKCap(t *testing.T) {
	embedder := testutil.NewMockEmbedder(3)
	idx := seedIndex(t, embedder)

	r := New(embedder, idx, 5, 0.0, log.NewNop())
	chunks, _, err := r.Retrieve(t.Context(), "the query", "v1.0", WithTopK(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Errorf("got %d chunks with top_k=1", len(chunks))
	}
}

func TestRetrieveNoMatchesIsNotError(t *testing.T) {
	embedder := testutil.NewMockEmbedder(3)
	idx := vecstore.NewMemoryIndex(3)

	r := New(embedder, idx, 5, 0.5, log.NewNop())
	chunks, meta, err := r.Retrieve(t.Context(), "anything", "v1.0")
	if err != nil {
		t.Fatalf("empty index should not error: %v", err)
	}
	if len(chunks) != 0 || meta.ChunksRetrieved != 0 {
		t.Errorf("expected zero chunks, got %+v", chunks)
	}
}

func TestRetrieveWrongBookVersion(t *testing.T) {
	embedder := testutil.NewMockEmbedder(3)
	idx := seedIndex(t, embedder)

	r := New(embedder, idx, 5, 0.0, log.NewNop())
	chunks, _, err := r.Retrieve(t.Context(), "the query", "v9.9")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("version filter leaked %d chunks", len(chunks))
	}
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	embedder := testutil.NewMockEmbedder(3)
	idx := seedIndex(t, embedder)
	embedder.Fail(errors.New("embedder down"))

	r := New(embedder, idx, 5, 0.5, log.NewNop())
	if _, _, err := r.Retrieve(t.Context(), "the query", "v1.0"); err == nil {
		t.Error("embedder failure should surface as an error")
	}
}
