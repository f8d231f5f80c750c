package vecstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index using brute-force cosine search.
// Safe for concurrent use. Intended for tests and small corpora; the
// production path is PgxIndex.
type MemoryIndex struct {
	dimension int

	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		items:     make(map[string]Item),
	}
}

// Upsert implements Index.
func (m *MemoryIndex) Upsert(_ context.Context, item Item) error {
	if len(item.Embedding) != m.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(item.Embedding), m.dimension)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

// UpsertBatch implements Index.
func (m *MemoryIndex) UpsertBatch(ctx context.Context, items []Item) (int, error) {
	for i, item := range items {
		if err := m.Upsert(ctx, item); err != nil {
			return i, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return len(items), nil
}

// Search implements Index.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), m.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.items))
	for _, item := range m.items {
		if !matchesFilter(item, filter) {
			continue
		}
		results = append(results, Result{
			ID:         item.ID,
			Content:    item.Content,
			Similarity: clampSimilarity(cosine(vector, item.Embedding)),
			Metadata:   item.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID // deterministic order on ties
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ExistingHashes implements Index.
func (m *MemoryIndex) ExistingHashes(_ context.Context, bookVersion string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := make(map[string]bool)
	for _, item := range m.items {
		if item.BookVersion == bookVersion {
			hashes[item.ContentHash] = true
		}
	}
	return hashes, nil
}

// CollectionInfo implements Index.
func (m *MemoryIndex) CollectionInfo(_ context.Context) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, item := range m.items {
		seen[item.BookVersion] = true
	}
	versions := make([]string, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	return Info{
		Chunks:       int64(len(m.items)),
		BookVersions: versions,
	}, nil
}

func matchesFilter(item Item, filter map[string]string) bool {
	for key, want := range filter {
		if item.Metadata[key] != want {
			return false
		}
	}
	return true
}

// cosine computes cosine similarity between equal-length vectors.
// Zero vectors yield 0.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
