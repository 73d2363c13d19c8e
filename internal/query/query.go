// Package query holds HelixDB's registered queries: the Go functions
// that would, in a complete deployment, be emitted by the HelixQL
// compiler (out of scope here — see spec.md §1) and collected into a
// router.Registry at startup.
//
// Every handler follows the contract spec.md §4.4 states: read
// request.body as JSON, open a read or write transaction, run a
// traversal, write JSON to the response. None of them retain the
// transaction or the engine past return.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/suxatcode/helix-db-sub002/internal/herr"
	"github.com/suxatcode/helix-db-sub002/internal/router"
	"github.com/suxatcode/helix-db-sub002/internal/storage"
	"github.com/suxatcode/helix-db-sub002/internal/traversal"
	"github.com/suxatcode/helix-db-sub002/internal/vector"
)

// Register binds every query in this package into reg, mirroring the
// explicit startup registration spec.md §9 calls for in place of
// file-scope static registration.
func Register(reg *router.Registry) {
	reg.Register("create_user", CreateUser)
	reg.Register("get_users", GetUsers)
	reg.Register("followers_of", FollowersOf)
	reg.Register("insert_vector", InsertVector)
	reg.Register("search_vector", SearchVector)
	reg.Register("node_count", NodeCount)
	reg.Register("index_document", IndexDocument)
	reg.Register("search_documents", SearchDocuments)
}

func jsonResponse(status int, v any) (router.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return router.Response{}, herr.Wrap(herr.KindIO, "marshal response", err)
	}
	return router.Response{Status: status, Body: body}, nil
}

// CreateUser implements spec.md §8 scenario 1: POST {} to
// /create_user adds a single User node.
func CreateUser(in router.HandlerInput) (router.Response, error) {
	w := in.Engine.NewWriteTxn()
	defer w.Discard()

	nodes, err := traversal.NewRw(w).
		AddN("User", map[string]storage.Value{
			"name": storage.Str("Alice"),
			"age":  storage.Int(30),
		}).
		CollectTo()
	if err != nil {
		return router.Response{}, err
	}
	if err := w.Commit(); err != nil {
		return router.Response{}, herr.Wrap(herr.KindStorage, "commit create_user", err)
	}

	return jsonResponse(200, map[string]*storage.Node{"user": nodes[0].Node})
}

// GetUsers implements spec.md §8 scenario 2: list every User node.
func GetUsers(in router.HandlerInput) (router.Response, error) {
	r := in.Engine.NewReadTxn()
	defer r.Discard()

	vals, err := traversal.NewRo(r).NFromType("User").CollectTo()
	if err != nil {
		return router.Response{}, err
	}
	users := make([]*storage.Node, len(vals))
	for i, v := range vals {
		users[i] = v.Node
	}
	return jsonResponse(200, map[string][]*storage.Node{"users": users})
}

// FollowersOf implements spec.md §8 scenario 3: GET /followers_of?id=
// returns every node with a "Follows" edge into the given node.
func FollowersOf(in router.HandlerInput) (router.Response, error) {
	idStr := in.Request.Query["id"]
	if idStr == "" {
		return router.Response{}, herr.New(herr.KindConversion, "followers_of requires an id query parameter")
	}
	id, err := storage.ParseID(idStr)
	if err != nil {
		return router.Response{}, herr.Wrap(herr.KindConversion, "parse id query parameter", err)
	}

	r := in.Engine.NewReadTxn()
	defer r.Discard()

	vals, err := traversal.NewRo(r).NFromID(id).In("Follows").CollectTo()
	if err != nil {
		return router.Response{}, err
	}
	users := make([]*storage.Node, len(vals))
	for i, v := range vals {
		users[i] = v.Node
	}
	return jsonResponse(200, map[string][]*storage.Node{"users": users})
}

// vectorIndex opens an HNSW index over eng's configured parameters
// with cosine distance (spec.md §4.3's default metric).
func vectorIndex(eng *storage.Engine) *vector.Index {
	cfg := vector.ConfigFromStorage(eng.VectorConfig(), vector.Cosine)
	return vector.New(cfg)
}

// insertVectorRequest is the JSON body /insert_vector expects.
type insertVectorRequest struct {
	Data []float32 `json:"data"`
}

// InsertVector implements half of spec.md §8 scenario 4: insert one
// vector into the HNSW index.
func InsertVector(in router.HandlerInput) (router.Response, error) {
	var req insertVectorRequest
	if err := json.Unmarshal(in.Request.Body, &req); err != nil {
		return router.Response{}, herr.Wrap(herr.KindConversion, "parse insert_vector body", err)
	}

	w := in.Engine.NewWriteTxn()
	defer w.Discard()

	ix := vectorIndex(in.Engine)
	vals, err := traversal.NewRw(w).InsertV(ix, req.Data, nil).CollectTo()
	if err != nil {
		return router.Response{}, err
	}
	if err := w.Commit(); err != nil {
		return router.Response{}, herr.Wrap(herr.KindStorage, "commit insert_vector", err)
	}

	return jsonResponse(200, map[string]*storage.HVector{"vector": vals[0].Vector})
}

// searchVectorRequest is the JSON body /search_vector expects.
type searchVectorRequest struct {
	Query []float32 `json:"query"`
	K     int       `json:"k"`
}

// SearchVector implements the other half of spec.md §8 scenario 4: k
// nearest neighbors to a query vector.
func SearchVector(in router.HandlerInput) (router.Response, error) {
	var req searchVectorRequest
	if err := json.Unmarshal(in.Request.Body, &req); err != nil {
		return router.Response{}, herr.Wrap(herr.KindConversion, "parse search_vector body", err)
	}
	if req.K <= 0 {
		req.K = 1
	}

	r := in.Engine.NewReadTxn()
	defer r.Discard()

	ix := vectorIndex(in.Engine)
	vals, err := traversal.NewRo(r).SearchV(ix, req.Query, req.K, nil).CollectTo()
	if err != nil {
		return router.Response{}, err
	}
	hits := make([]*storage.HVector, len(vals))
	for i, v := range vals {
		hits[i] = v.Vector
	}
	return jsonResponse(200, map[string][]*storage.HVector{"vectors": hits})
}

// NodeCount implements the counting half of spec.md §8 scenario 5:
// n().count() over the whole graph.
func NodeCount(in router.HandlerInput) (router.Response, error) {
	r := in.Engine.NewReadTxn()
	defer r.Discard()

	vals, err := traversal.NewRo(r).N().Count().CollectTo()
	if err != nil {
		return router.Response{}, err
	}
	return jsonResponse(200, map[string]int{"count": vals[0].Count})
}

// NodeNotFoundDemo implements spec.md §8 scenario 6's second half: a
// handler that always fails lookup against a nonexistent id, so the
// router is exercised producing a 500 mentioning node-not-found.
func NodeNotFoundDemo(in router.HandlerInput) (router.Response, error) {
	return router.Response{}, herr.NodeNotFound(fmt.Sprintf("%v", in.Request.Query["id"]))
}

// indexDocumentRequest is the JSON body /index_document expects.
type indexDocumentRequest struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// IndexDocument implements the full-text supplement from SPEC_FULL.md
// §4: add a node carrying the document text, then index that text
// into label's BM25 table in the same write transaction.
func IndexDocument(in router.HandlerInput) (router.Response, error) {
	var req indexDocumentRequest
	if err := json.Unmarshal(in.Request.Body, &req); err != nil {
		return router.Response{}, herr.Wrap(herr.KindConversion, "parse index_document body", err)
	}

	w := in.Engine.NewWriteTxn()
	defer w.Discard()

	nodes, err := traversal.NewRw(w).
		AddN(req.Label, map[string]storage.Value{"text": storage.Str(req.Text)}).
		CollectTo()
	if err != nil {
		return router.Response{}, err
	}
	node := nodes[0].Node

	if err := w.IndexBM25Document(req.Label, node.ID, req.Text); err != nil {
		return router.Response{}, err
	}
	if err := w.Commit(); err != nil {
		return router.Response{}, herr.Wrap(herr.KindStorage, "commit index_document", err)
	}

	return jsonResponse(200, map[string]*storage.Node{"node": node})
}

// searchDocumentsRequest is the JSON body /search_documents expects.
type searchDocumentsRequest struct {
	Label string `json:"label"`
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchDocuments implements the read half of the full-text supplement:
// the top matching nodes for query, scored by Okapi BM25 against
// label's corpus.
func SearchDocuments(in router.HandlerInput) (router.Response, error) {
	var req searchDocumentsRequest
	if err := json.Unmarshal(in.Request.Body, &req); err != nil {
		return router.Response{}, herr.Wrap(herr.KindConversion, "parse search_documents body", err)
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	r := in.Engine.NewReadTxn()
	defer r.Discard()

	vals, err := traversal.NewRo(r).SearchBM25Index(req.Label, req.Query, req.Limit).CollectTo()
	if err != nil {
		return router.Response{}, err
	}
	nodes := make([]*storage.Node, len(vals))
	for i, v := range vals {
		nodes[i] = v.Node
	}
	return jsonResponse(200, map[string][]*storage.Node{"nodes": nodes})
}
