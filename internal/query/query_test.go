package query

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suxatcode/helix-db-sub002/internal/router"
	"github.com/suxatcode/helix-db-sub002/internal/storage"
	"github.com/suxatcode/helix-db-sub002/internal/traversal"
)

func testEngine(t *testing.T) *storage.Engine {
	t.Helper()
	eng, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func testRouter(t *testing.T, eng *storage.Engine) *router.Router {
	t.Helper()
	reg := router.NewRegistry()
	Register(reg)
	return router.Build(reg, eng)
}

// TestCreateUserThenGetUsers covers spec.md §8 scenarios 1 and 2: a
// write handler followed by a read handler observing its effect.
func TestCreateUserThenGetUsers(t *testing.T) {
	eng := testEngine(t)
	rt := testRouter(t, eng)

	createResp := rt.Dispatch(router.Request{Method: "POST", Path: "/create_user", Body: []byte("{}")})
	require.Equal(t, 200, createResp.Status)

	var created struct {
		User storage.Node `json:"user"`
	}
	require.NoError(t, json.Unmarshal(createResp.Body, &created))
	assert.Equal(t, "User", created.User.Label)
	assert.Equal(t, storage.Str("Alice"), created.User.Properties["name"])
	assert.Equal(t, storage.Int(30), created.User.Properties["age"])

	listResp := rt.Dispatch(router.Request{Method: "GET", Path: "/get_users"})
	require.Equal(t, 200, listResp.Status)

	var listed struct {
		Users []storage.Node `json:"users"`
	}
	require.NoError(t, json.Unmarshal(listResp.Body, &listed))
	require.Len(t, listed.Users, 1)
	assert.Equal(t, created.User.ID, listed.Users[0].ID)
}

// TestFollowersOf covers spec.md §8 scenario 3: a query-parameterized
// GET handler walking an incoming edge.
func TestFollowersOf(t *testing.T) {
	eng := testEngine(t)
	rt := testRouter(t, eng)

	w := eng.NewWriteTxn()
	rw := traversal.NewRw(w)
	aliceVals, err := rw.AddN("User", map[string]storage.Value{"name": storage.Str("alice")}).CollectTo()
	require.NoError(t, err)
	bobVals, err := rw.Empty().AddN("User", map[string]storage.Value{"name": storage.Str("bob")}).CollectTo()
	require.NoError(t, err)
	alice, bob := aliceVals[0].Node.ID, bobVals[0].Node.ID
	_, err = rw.Empty().AddE("Follows", alice, bob, storage.EdgeTypeNode, storage.EdgeTypeNode, nil, true).CollectTo()
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	resp := rt.Dispatch(router.Request{
		Method: "GET",
		Path:   "/followers_of",
		Query:  map[string]string{"id": bob.String()},
	})
	require.Equal(t, 200, resp.Status)

	var result struct {
		Users []storage.Node `json:"users"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &result))
	require.Len(t, result.Users, 1)
	assert.Equal(t, alice, result.Users[0].ID)
}

func TestFollowersOfMissingIDParam(t *testing.T) {
	eng := testEngine(t)
	rt := testRouter(t, eng)

	resp := rt.Dispatch(router.Request{Method: "GET", Path: "/followers_of"})
	assert.Equal(t, 500, resp.Status)
	assert.Contains(t, string(resp.Body), "id query parameter")
}

// TestInsertAndSearchVector covers spec.md §8 scenario 4: nearest
// neighbor search should return the closest inserted vector.
func TestInsertAndSearchVector(t *testing.T) {
	eng := testEngine(t)
	rt := testRouter(t, eng)

	for _, v := range [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
		body, err := json.Marshal(insertVectorRequest{Data: v})
		require.NoError(t, err)
		resp := rt.Dispatch(router.Request{Method: "POST", Path: "/insert_vector", Body: body})
		require.Equal(t, 200, resp.Status, string(resp.Body))
	}

	body, err := json.Marshal(searchVectorRequest{Query: []float32{0.9, 0.1, 0}, K: 1})
	require.NoError(t, err)
	resp := rt.Dispatch(router.Request{Method: "POST", Path: "/search_vector", Body: body})
	require.Equal(t, 200, resp.Status, string(resp.Body))

	var result struct {
		Vectors []storage.HVector `json:"vectors"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &result))
	require.Len(t, result.Vectors, 1)
	assert.Equal(t, []float32{1, 0, 0}, result.Vectors[0].Data)
}

// TestConcurrentWritersNodeCount covers spec.md §8 scenario 5: two
// concurrent writers each adding 1000 nodes yield a count of 2000 with
// no id collisions.
func TestConcurrentWritersNodeCount(t *testing.T) {
	eng := testEngine(t)
	rt := testRouter(t, eng)

	const perWriter = 1000
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				w := eng.NewWriteTxn()
				_, err := traversal.NewRw(w).AddN("Bulk", nil).CollectTo()
				require.NoError(t, err)
				require.NoError(t, w.Commit())
			}
		}()
	}
	wg.Wait()

	resp := rt.Dispatch(router.Request{Method: "GET", Path: "/node_count"})
	require.Equal(t, 200, resp.Status)

	var result struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &result))
	assert.Equal(t, 2*perWriter, result.Count)

	r := eng.NewReadTxn()
	defer r.Discard()
	vals, err := traversal.NewRo(r).N().CollectTo()
	require.NoError(t, err)
	seen := make(map[storage.ID]bool, len(vals))
	for _, v := range vals {
		assert.False(t, seen[v.Node.ID], "duplicate id %s", v.Node.ID)
		seen[v.Node.ID] = true
	}
}

// TestMissingRouteReturns404 and TestNodeNotFoundHandlerReturns500
// cover spec.md §8 scenario 6.
func TestMissingRouteReturns404(t *testing.T) {
	eng := testEngine(t)
	rt := testRouter(t, eng)

	resp := rt.Dispatch(router.Request{Method: "GET", Path: "/missing"})
	assert.Equal(t, 404, resp.Status)
}

func TestNodeNotFoundHandlerReturns500(t *testing.T) {
	eng := testEngine(t)
	reg := router.NewRegistry()
	Register(reg)
	reg.Register("lookup_nope", NodeNotFoundDemo)
	rt := router.Build(reg, eng)

	resp := rt.Dispatch(router.Request{
		Method: "GET",
		Path:   "/lookup_nope",
		Query:  map[string]string{"id": "nope"},
	})
	assert.Equal(t, 500, resp.Status)
	assert.Contains(t, string(resp.Body), "node_not_found")
}

// TestIndexAndSearchDocuments covers the full-text supplement: indexed
// documents should be retrievable by a BM25 query over their text, and
// the better-matching document should score first.
func TestIndexAndSearchDocuments(t *testing.T) {
	eng := testEngine(t)
	rt := testRouter(t, eng)

	docs := []string{
		"the quick brown fox jumps over the lazy dog",
		"graph databases store nodes and edges",
	}
	for _, text := range docs {
		body, err := json.Marshal(indexDocumentRequest{Label: "Doc", Text: text})
		require.NoError(t, err)
		resp := rt.Dispatch(router.Request{Method: "POST", Path: "/index_document", Body: body})
		require.Equal(t, 200, resp.Status, string(resp.Body))
	}

	body, err := json.Marshal(searchDocumentsRequest{Label: "Doc", Query: "graph nodes", Limit: 5})
	require.NoError(t, err)
	resp := rt.Dispatch(router.Request{Method: "POST", Path: "/search_documents", Body: body})
	require.Equal(t, 200, resp.Status, string(resp.Body))

	var result struct {
		Nodes []storage.Node `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &result))
	require.Len(t, result.Nodes, 1)
	assert.Equal(t, docs[1], result.Nodes[0].Properties["text"].Str)
}
