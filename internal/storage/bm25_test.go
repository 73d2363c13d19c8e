package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSearchBM25RanksBetterMatchFirst covers the full-text supplement:
// a document sharing more query terms should outscore one sharing
// fewer, and a term absent from the corpus should not error.
func TestSearchBM25RanksBetterMatchFirst(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	fox, err := w.AddNode("Doc", map[string]Value{"text": Str("the quick brown fox jumps over the lazy dog")})
	require.NoError(t, err)
	graph, err := w.AddNode("Doc", map[string]Value{"text": Str("graph databases store nodes and edges")})
	require.NoError(t, err)
	require.NoError(t, w.IndexBM25Document("Doc", fox.ID, "the quick brown fox jumps over the lazy dog"))
	require.NoError(t, w.IndexBM25Document("Doc", graph.ID, "graph databases store nodes and edges"))
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()

	hits, err := r.SearchBM25("Doc", "graph nodes", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, graph.ID, hits[0].Node.ID)

	none, err := r.SearchBM25("Doc", "nonexistentterm", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestSearchBM25EmptyCorpusReturnsNoHits covers a label with no indexed
// documents yet.
func TestSearchBM25EmptyCorpusReturnsNoHits(t *testing.T) {
	eng := openTestEngine(t)
	r := eng.NewReadTxn()
	defer r.Discard()

	hits, err := r.SearchBM25("Doc", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// TestSearchBM25RespectsLimit covers the limit truncation.
func TestSearchBM25RespectsLimit(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	for _, text := range []string{"alpha beta", "alpha gamma", "alpha delta"} {
		node, err := w.AddNode("Doc", map[string]Value{"text": Str(text)})
		require.NoError(t, err)
		require.NoError(t, w.IndexBM25Document("Doc", node.ID, text))
	}
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	hits, err := r.SearchBM25("Doc", "alpha", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}
