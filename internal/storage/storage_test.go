package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suxatcode/helix-db-sub002/internal/herr"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func openIndexedEngine(t *testing.T, indices ...string) *Engine {
	t.Helper()
	eng, err := Open(Options{InMemory: true, DataDir: "helixdb-inmemory-indexed", SecondaryIndices: indices})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// TestNodeRoundTrip covers spec.md §8's storage round-trip property: a
// node written and committed reads back with the same label and
// properties.
func TestNodeRoundTrip(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	node, err := w.AddNode("User", map[string]Value{"name": Str("alice"), "age": Int(30)})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	got, err := r.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, "User", got.Label)
	assert.Equal(t, Str("alice"), got.Properties["name"])
	assert.Equal(t, Int(30), got.Properties["age"])
}

// TestNodeWithNoPropertiesNormalizesToNil covers the design note that
// an absent map and a present-but-empty map must read back identically.
func TestNodeWithNoPropertiesNormalizesToNil(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	node, err := w.AddNode("Empty", map[string]Value{})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	got, err := r.GetNode(node.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Properties)
}

// TestGetNodeMissingReturnsNotFound covers the not-found contract
// GetNode promises.
func TestGetNodeMissingReturnsNotFound(t *testing.T) {
	eng := openTestEngine(t)
	r := eng.NewReadTxn()
	defer r.Discard()

	missing, err := NewID()
	require.NoError(t, err)
	_, err = r.GetNode(missing)
	assert.True(t, herr.IsNotFound(err))
}

// TestEdgeRoundTrip covers the edge half of the storage round-trip
// property.
func TestEdgeRoundTrip(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	alice, err := w.AddNode("User", nil)
	require.NoError(t, err)
	bob, err := w.AddNode("User", nil)
	require.NoError(t, err)
	edge, err := w.AddEdge("Follows", alice.ID, bob.ID, EdgeTypeNode, EdgeTypeNode, map[string]Value{"since": Int(2024)}, true)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	got, err := r.GetEdge(edge.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.From)
	assert.Equal(t, bob.ID, got.To)
	assert.Equal(t, Int(2024), got.Properties["since"])
}

// TestAddEdgeShouldCheckRejectsMissingEndpoint covers add_edge's
// endpoint validation (spec.md §4.1).
func TestAddEdgeShouldCheckRejectsMissingEndpoint(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	defer w.Discard()
	alice, err := w.AddNode("User", nil)
	require.NoError(t, err)

	missing, err := NewID()
	require.NoError(t, err)
	_, err = w.AddEdge("Follows", alice.ID, missing, EdgeTypeNode, EdgeTypeNode, nil, true)
	assert.Error(t, err)
}

// TestAdjacencyIntegrity covers spec.md §8's adjacency integrity
// property: out/in edges and their dereferenced nodes agree from both
// endpoints, filtered correctly by label.
func TestAdjacencyIntegrity(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	alice, err := w.AddNode("User", nil)
	require.NoError(t, err)
	bob, err := w.AddNode("User", nil)
	require.NoError(t, err)
	carol, err := w.AddNode("User", nil)
	require.NoError(t, err)

	_, err = w.AddEdge("Follows", alice.ID, bob.ID, EdgeTypeNode, EdgeTypeNode, nil, true)
	require.NoError(t, err)
	_, err = w.AddEdge("Blocks", alice.ID, carol.ID, EdgeTypeNode, EdgeTypeNode, nil, true)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()

	out, err := r.GetOutEdges(alice.ID, "")
	require.NoError(t, err)
	assert.Len(t, out, 2)

	followsOnly, err := r.GetOutEdges(alice.ID, "Follows")
	require.NoError(t, err)
	require.Len(t, followsOnly, 1)
	assert.Equal(t, bob.ID, followsOnly[0].To)

	inBob, err := r.GetInEdges(bob.ID, "Follows")
	require.NoError(t, err)
	require.Len(t, inBob, 1)
	assert.Equal(t, alice.ID, inBob[0].From)

	outNodes, err := r.GetOutNodes(alice.ID, "Follows")
	require.NoError(t, err)
	require.Len(t, outNodes, 1)
	assert.Equal(t, bob.ID, outNodes[0].ID)

	inNodes, err := r.GetInNodes(carol.ID, "")
	require.NoError(t, err)
	require.Len(t, inNodes, 1)
	assert.Equal(t, alice.ID, inNodes[0].ID)
}

// TestDropNodeRemovesIncidentEdges covers DropNode's promise to clean
// up every adjacency row touching the dropped node.
func TestDropNodeRemovesIncidentEdges(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	alice, err := w.AddNode("User", nil)
	require.NoError(t, err)
	bob, err := w.AddNode("User", nil)
	require.NoError(t, err)
	edge, err := w.AddEdge("Follows", alice.ID, bob.ID, EdgeTypeNode, EdgeTypeNode, nil, true)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	w2 := eng.NewWriteTxn()
	require.NoError(t, w2.DropNode(alice.ID))
	require.NoError(t, w2.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	_, err = r.GetNode(alice.ID)
	assert.Error(t, err)
	_, err = r.GetEdge(edge.ID)
	assert.Error(t, err)
	inBob, err := r.GetInEdges(bob.ID, "")
	require.NoError(t, err)
	assert.Empty(t, inBob)
}

// TestUpdateNodeMergesProperties covers update_node's read-merge
// contract: unspecified properties survive, patched ones change.
func TestUpdateNodeMergesProperties(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	node, err := w.AddNode("User", map[string]Value{"name": Str("alice"), "age": Int(30)})
	require.NoError(t, err)
	updated, err := w.UpdateNode(node.ID, map[string]Value{"age": Int(31)})
	require.NoError(t, err)
	assert.Equal(t, Str("alice"), updated.Properties["name"])
	assert.Equal(t, Int(31), updated.Properties["age"])
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	got, err := r.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, Int(31), got.Properties["age"])
}

// TestSecondaryIndexLookupAndRewrite covers spec.md §8's secondary
// index property: a node is reachable by its indexed value, and an
// update that changes the value moves the index row rather than
// duplicating it.
func TestSecondaryIndexLookupAndRewrite(t *testing.T) {
	eng := openIndexedEngine(t, "email")

	w := eng.NewWriteTxn()
	node, err := w.AddNode("User", map[string]Value{"email": Str("alice@example.com")})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	found, err := r.NodeFromIndex("email", Str("alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, node.ID, found.ID)
	r.Discard()

	w2 := eng.NewWriteTxn()
	_, err = w2.UpdateNode(node.ID, map[string]Value{"email": Str("alice2@example.com")})
	require.NoError(t, err)
	require.NoError(t, w2.Commit())

	r2 := eng.NewReadTxn()
	defer r2.Discard()
	_, err = r2.NodeFromIndex("email", Str("alice@example.com"))
	assert.Error(t, err)
	found2, err := r2.NodeFromIndex("email", Str("alice2@example.com"))
	require.NoError(t, err)
	assert.Equal(t, node.ID, found2.ID)
}

// TestNodeFromIndexUnknownIndexName covers the explicit
// herr.IndexNotFound path for a name never registered on the engine.
func TestNodeFromIndexUnknownIndexName(t *testing.T) {
	eng := openTestEngine(t)
	r := eng.NewReadTxn()
	defer r.Discard()

	_, err := r.NodeFromIndex("nope", Str("x"))
	assert.Error(t, err)
}

// TestGetNodesByLabel and TestAllNodes cover the label-index and
// full-table scans underlying GetUsers-style handlers.
func TestGetNodesByLabel(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	_, err := w.AddNode("User", nil)
	require.NoError(t, err)
	_, err = w.AddNode("User", nil)
	require.NoError(t, err)
	_, err = w.AddNode("Post", nil)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	users, err := r.GetNodesByLabel("User")
	require.NoError(t, err)
	assert.Len(t, users, 2)
	all, err := r.AllNodes()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
