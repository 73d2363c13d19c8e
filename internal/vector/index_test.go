package vector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suxatcode/helix-db-sub002/internal/storage"
)

func openEngine(t *testing.T) *storage.Engine {
	t.Helper()
	eng, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func testIndex() *Index {
	return New(Config{M: 8, EfConstruction: 64, EfSearch: 64, Metric: Euclidean})
}

// TestInsertAndSearchFindsNearest covers spec.md §4.3's core contract:
// searching for a point returns the vector closest to it first.
func TestInsertAndSearchFindsNearest(t *testing.T) {
	eng := openEngine(t)
	ix := testIndex()

	w := eng.NewWriteTxn()
	points := [][]float32{{0, 0}, {10, 10}, {1, 1}, {20, 20}}
	var ids []storage.ID
	for _, p := range points {
		v, err := ix.Insert(w, p, nil)
		require.NoError(t, err)
		ids = append(ids, v.ID)
	}
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	hits, err := ix.Search(r, []float32{0.4, 0.4}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ids[0], hits[0].Vector.ID)
}

// TestSearchKLimitsResultCount covers the k truncation on Search.
func TestSearchKLimitsResultCount(t *testing.T) {
	eng := openEngine(t)
	ix := testIndex()

	w := eng.NewWriteTxn()
	for i := 0; i < 10; i++ {
		_, err := ix.Insert(w, []float32{float32(i), float32(i)}, nil)
		require.NoError(t, err)
	}
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	hits, err := ix.Search(r, []float32{0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

// TestSearchEmptyIndexReturnsNoHits covers the no-entry-point case.
func TestSearchEmptyIndexReturnsNoHits(t *testing.T) {
	eng := openEngine(t)
	ix := testIndex()

	r := eng.NewReadTxn()
	defer r.Discard()
	hits, err := ix.Search(r, []float32{0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// TestBruteForceSearchAgreesWithDistance covers brute_force_search_v
// (spec.md §4.3): an exact scan ranks vectors by true distance to the
// query, unaffected by any approximation the graph search makes.
func TestBruteForceSearchAgreesWithDistance(t *testing.T) {
	eng := openEngine(t)
	ix := testIndex()

	w := eng.NewWriteTxn()
	far, err := ix.Insert(w, []float32{100, 100}, nil)
	require.NoError(t, err)
	near, err := ix.Insert(w, []float32{1, 1}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	hits, err := ix.BruteForceSearch(r, []float32{0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near.ID, hits[0].Vector.ID)
	assert.Equal(t, far.ID, hits[1].Vector.ID)
}

// TestBruteForceSearchHonorsPredicate covers the optional post-filter
// predicate spec.md §4.3 names.
func TestBruteForceSearchHonorsPredicate(t *testing.T) {
	eng := openEngine(t)
	ix := testIndex()

	w := eng.NewWriteTxn()
	_, err := ix.Insert(w, []float32{0, 0}, map[string]storage.Value{"tag": storage.Str("skip")})
	require.NoError(t, err)
	kept, err := ix.Insert(w, []float32{5, 5}, map[string]storage.Value{"tag": storage.Str("keep")})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	hits, err := ix.BruteForceSearch(r, []float32{0, 0}, 5, func(v *storage.HVector) bool {
		return v.Properties["tag"].Str == "keep"
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, kept.ID, hits[0].Vector.ID)
}

// TestDeleteRepairsNeighborGraph covers Delete's promise to remove a
// vector from every level's adjacency list it appears in, not just its
// own record.
func TestDeleteRepairsNeighborGraph(t *testing.T) {
	eng := openEngine(t)
	ix := testIndex()

	w := eng.NewWriteTxn()
	var ids []storage.ID
	for i := 0; i < 5; i++ {
		v, err := ix.Insert(w, []float32{float32(i), 0}, nil)
		require.NoError(t, err)
		ids = append(ids, v.ID)
	}
	require.NoError(t, w.Commit())

	w2 := eng.NewWriteTxn()
	require.NoError(t, ix.Delete(w2, ids[0]))
	require.NoError(t, w2.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	_, err := r.GetVector(ids[0])
	assert.Error(t, err)

	for level := uint8(0); level < 3; level++ {
		for _, id := range ids[1:] {
			neighbors, err := r.GetNeighbors(level, id)
			require.NoError(t, err)
			for _, n := range neighbors {
				assert.NotEqual(t, ids[0], n)
			}
		}
	}

	hits, err := ix.BruteForceSearch(r, []float32{0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

// TestDeleteEntryPointPromotesReplacement covers the entry-point
// promotion path: deleting the current entry point leaves the index
// still searchable.
func TestDeleteEntryPointPromotesReplacement(t *testing.T) {
	eng := openEngine(t)
	ix := testIndex()

	w := eng.NewWriteTxn()
	first, err := ix.Insert(w, []float32{0, 0}, nil)
	require.NoError(t, err)
	second, err := ix.Insert(w, []float32{1, 1}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r0 := eng.NewReadTxn()
	epID, _, ok, err := r0.EntryPoint()
	require.NoError(t, err)
	require.True(t, ok)
	r0.Discard()

	w2 := eng.NewWriteTxn()
	require.NoError(t, ix.Delete(w2, epID))
	require.NoError(t, w2.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	_, _, ok, err = r.EntryPoint()
	require.NoError(t, err)
	assert.True(t, ok)

	remaining := first.ID
	if epID == first.ID {
		remaining = second.ID
	}
	hits, err := ix.Search(r, []float32{0.4, 0.4}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, remaining, hits[0].Vector.ID)
}

// TestSearchRecallAgainstBruteForce covers spec.md §8's HNSW recall@10
// property: on a modest random corpus, graph search should agree with
// the exact brute-force ranking for at least 8 of the top 10 neighbors.
func TestSearchRecallAgainstBruteForce(t *testing.T) {
	eng := openEngine(t)
	ix := New(Config{M: 16, EfConstruction: 128, EfSearch: 128, Metric: Euclidean})

	rng := rand.New(rand.NewSource(1))
	w := eng.NewWriteTxn()
	for i := 0; i < 200; i++ {
		data := []float32{rng.Float32() * 100, rng.Float32() * 100, rng.Float32() * 100}
		_, err := ix.Insert(w, data, nil)
		require.NoError(t, err)
	}
	require.NoError(t, w.Commit())

	query := []float32{50, 50, 50}
	r := eng.NewReadTxn()
	defer r.Discard()

	exact, err := ix.BruteForceSearch(r, query, 10, nil)
	require.NoError(t, err)
	approx, err := ix.Search(r, query, 10, nil)
	require.NoError(t, err)

	exactIDs := make(map[storage.ID]bool, len(exact))
	for _, h := range exact {
		exactIDs[h.Vector.ID] = true
	}
	matched := 0
	for _, h := range approx {
		if exactIDs[h.Vector.ID] {
			matched++
		}
	}
	assert.GreaterOrEqual(t, matched, 8, "expected recall@10 >= 0.8, got %d/10 matches", matched)
}
