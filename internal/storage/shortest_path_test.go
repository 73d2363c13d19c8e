package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestShortestPathWalksThroughIntermediateNode covers spec.md §8's
// shortest-path property: BFS finds the two-hop path alice->bob->carol
// rather than any longer detour.
func TestShortestPathWalksThroughIntermediateNode(t *testing.T) {
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
	_, err = w.AddEdge("Follows", bob.ID, carol.ID, EdgeTypeNode, EdgeTypeNode, nil, true)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()

	path, err := r.ShortestPath(alice.ID, carol.ID, "Follows")
	require.NoError(t, err)
	require.Len(t, path.Nodes, 3)
	assert.Equal(t, alice.ID, path.Nodes[0].ID)
	assert.Equal(t, bob.ID, path.Nodes[1].ID)
	assert.Equal(t, carol.ID, path.Nodes[2].ID)
	require.Len(t, path.Edges, 2)
}

// TestShortestPathSameNodeIsTrivial covers the from==to base case.
func TestShortestPathSameNodeIsTrivial(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	alice, err := w.AddNode("User", nil)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	path, err := r.ShortestPath(alice.ID, alice.ID, "")
	require.NoError(t, err)
	require.Len(t, path.Nodes, 1)
	assert.Empty(t, path.Edges)
}

// TestShortestPathNoRouteErrors covers the unreachable case.
func TestShortestPathNoRouteErrors(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	alice, err := w.AddNode("User", nil)
	require.NoError(t, err)
	bob, err := w.AddNode("User", nil)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()
	_, err = r.ShortestPath(alice.ID, bob.ID, "")
	assert.Error(t, err)
}

// TestShortestMutualPathRequiresReciprocalEdges covers Open Question 3:
// a one-way edge is not a valid hop for ShortestMutualPath even though
// it is a valid hop for ShortestPath.
func TestShortestMutualPathRequiresReciprocalEdges(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	alice, err := w.AddNode("User", nil)
	require.NoError(t, err)
	bob, err := w.AddNode("User", nil)
	require.NoError(t, err)
	_, err = w.AddEdge("Follows", alice.ID, bob.ID, EdgeTypeNode, EdgeTypeNode, nil, true)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()

	_, err = r.ShortestPath(alice.ID, bob.ID, "Follows")
	require.NoError(t, err)

	_, err = r.ShortestMutualPath(alice.ID, bob.ID, "Follows")
	assert.Error(t, err)
}

// TestShortestMutualPathFindsReciprocalRoute covers the positive case:
// once bob follows alice back, the mutual path succeeds.
func TestShortestMutualPathFindsReciprocalRoute(t *testing.T) {
	eng := openTestEngine(t)

	w := eng.NewWriteTxn()
	alice, err := w.AddNode("User", nil)
	require.NoError(t, err)
	bob, err := w.AddNode("User", nil)
	require.NoError(t, err)
	_, err = w.AddEdge("Follows", alice.ID, bob.ID, EdgeTypeNode, EdgeTypeNode, nil, true)
	require.NoError(t, err)
	_, err = w.AddEdge("Follows", bob.ID, alice.ID, EdgeTypeNode, EdgeTypeNode, nil, true)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r := eng.NewReadTxn()
	defer r.Discard()

	path, err := r.ShortestMutualPath(alice.ID, bob.ID, "Follows")
	require.NoError(t, err)
	require.Len(t, path.Nodes, 2)
	assert.Equal(t, bob.ID, path.Nodes[1].ID)
}
