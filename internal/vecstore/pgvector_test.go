package vecstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/testutil"
	"github.com/pageoak/bookrag/internal/vecstore"
)

// pgItem builds a 1536-dim item whose direction is set by the first
// three components.
func pgItem(id, hash, version string, x, y, z float32) vecstore.Item {
	vec := make([]float32, 1536)
	vec[0], vec[1], vec[2] = x, y, z
	return vecstore.Item{
		ID:          id,
		Content:     "content of " + id,
		Embedding:   vec,
		ContentHash: hash,
		BookVersion: version,
		Metadata: map[string]string{
			vecstore.MetaBookVersion: version,
			vecstore.MetaChapter:     "Chapter 1",
		},
	}
}

func queryVec(x, y, z float32) []float32 {
	vec := make([]float32, 1536)
	vec[0], vec[1], vec[2] = x, y, z
	return vec
}

func TestPgxIndexRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	idx := vecstore.NewPgxIndex(tdb.Pool, log.NewNop())

	n, err := idx.UpsertBatch(ctx, []vecstore.Item{
		pgItem("chunk_a", "ha", "v1.0", 1, 0, 0),
		pgItem("chunk_b", "hb", "v1.0", 0, 1, 0),
		pgItem("chunk_c", "hc", "v2.0", 1, 0, 0),
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	results, err := idx.Search(ctx, queryVec(1, 0, 0), 5,
		map[string]string{vecstore.MetaBookVersion: "v1.0"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk_a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Similarity), 0.001)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
	assert.Equal(t, "Chapter 1", results[0].Metadata[vecstore.MetaChapter])

	hashes, err := idx.ExistingHashes(ctx, "v1.0")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"ha": true, "hb": true}, hashes)

	info, err := idx.CollectionInfo(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, info.Chunks)
	assert.Equal(t, []string{"v1.0", "v2.0"}, info.BookVersions)
}

func TestPgxIndexUpsertOverwrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := t.Context()
	idx := vecstore.NewPgxIndex(tdb.Pool, log.NewNop())

	require.NoError(t, idx.Upsert(ctx, pgItem("chunk_a", "ha", "v1.0", 1, 0, 0)))
	require.NoError(t, idx.Upsert(ctx, pgItem("chunk_a", "ha2", "v1.0", 0, 1, 0)))

	info, err := idx.CollectionInfo(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Chunks)

	hashes, err := idx.ExistingHashes(ctx, "v1.0")
	require.NoError(t, err)
	assert.True(t, hashes["ha2"])
	assert.False(t, hashes["ha"])
}
