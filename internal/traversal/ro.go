package traversal

import (
	"github.com/suxatcode/helix-db-sub002/internal/herr"
	"github.com/suxatcode/helix-db-sub002/internal/pool"
	"github.com/suxatcode/helix-db-sub002/internal/storage"
	"github.com/suxatcode/helix-db-sub002/internal/vector"
)

// Ro is a read-only traversal: every step reads through the same
// storage.ReadTxn snapshot, so a multi-step chain sees one consistent
// view of the graph even under concurrent writers.
type Ro struct {
	txn *storage.ReadTxn
	src Producer
}

// NewRo opens an empty read-only traversal against txn. Call a source
// step (N, E, NFromID, ...) before chaining anything else.
func NewRo(txn *storage.ReadTxn) *Ro {
	return &Ro{txn: txn, src: fromItems(nil)}
}

func (r *Ro) with(src Producer) *Ro {
	return &Ro{txn: r.txn, src: src}
}

func (r *Ro) fail(err error) *Ro {
	return r.with(errProducer(err))
}

// --- source steps ---

// Empty discards whatever stream r carries and starts a new, empty one.
func (r *Ro) Empty() *Ro { return r.with(fromItems(nil)) }

// FromValues seeds the stream with literal values (HelixQL's
// identifier-to-value source step).
func (r *Ro) FromValues(vals []storage.Value) *Ro {
	tvs := make([]TraversalVal, len(vals))
	for i, v := range vals {
		tvs[i] = ValueVal(v)
	}
	return r.with(fromVals(tvs))
}

// N opens onto every node in the graph.
func (r *Ro) N() *Ro {
	nodes, err := r.txn.AllNodes()
	if err != nil {
		return r.fail(err)
	}
	return r.with(fromVals(nodeVals(nodes)))
}

// NFromType opens onto every node carrying label.
func (r *Ro) NFromType(label string) *Ro {
	nodes, err := r.txn.GetNodesByLabel(label)
	if err != nil {
		return r.fail(err)
	}
	return r.with(fromVals(nodeVals(nodes)))
}

// NFromID opens onto a single node by id.
func (r *Ro) NFromID(id storage.ID) *Ro {
	node, err := r.txn.GetNode(id)
	if err != nil {
		return r.fail(err)
	}
	return r.with(fromVals([]TraversalVal{NodeVal(node)}))
}

// NFromIndex opens onto the node whose secondary index value matches.
func (r *Ro) NFromIndex(indexName string, value storage.Value) *Ro {
	node, err := r.txn.NodeFromIndex(indexName, value)
	if err != nil {
		return r.fail(err)
	}
	return r.with(fromVals([]TraversalVal{NodeVal(node)}))
}

// E opens onto every edge in the graph.
func (r *Ro) E() *Ro {
	edges, err := r.txn.AllEdges()
	if err != nil {
		return r.fail(err)
	}
	return r.with(fromVals(edgeVals(edges)))
}

// EFromType opens onto every edge carrying label.
func (r *Ro) EFromType(label string) *Ro {
	edges, err := r.txn.GetEdgesByLabel(label)
	if err != nil {
		return r.fail(err)
	}
	return r.with(fromVals(edgeVals(edges)))
}

// EFromID opens onto a single edge by id.
func (r *Ro) EFromID(id storage.ID) *Ro {
	edge, err := r.txn.GetEdge(id)
	if err != nil {
		return r.fail(err)
	}
	return r.with(fromVals([]TraversalVal{EdgeVal(edge)}))
}

// --- graph steps ---

func (r *Ro) flatMapNode(fn func(*storage.Node) ([]TraversalVal, error)) *Ro {
	return r.with(chain(r.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		if in.Val.Kind != KindNode {
			return emit(Item{Err: herr.New(herr.KindTraversal, "step requires a node item")})
		}
		vals, err := fn(in.Val.Node)
		if err != nil {
			return emit(Item{Err: err})
		}
		for _, v := range vals {
			if !emit(Item{Val: v}) {
				return false
			}
		}
		return true
	}))
}

func (r *Ro) flatMapEdge(fn func(*storage.Edge) ([]TraversalVal, error)) *Ro {
	return r.with(chain(r.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		if in.Val.Kind != KindEdge {
			return emit(Item{Err: herr.New(herr.KindTraversal, "step requires an edge item")})
		}
		vals, err := fn(in.Val.Edge)
		if err != nil {
			return emit(Item{Err: err})
		}
		for _, v := range vals {
			if !emit(Item{Val: v}) {
				return false
			}
		}
		return true
	}))
}

// Out steps from each node to its out-neighbors across label.
func (r *Ro) Out(label string) *Ro {
	return r.flatMapNode(func(n *storage.Node) ([]TraversalVal, error) {
		nodes, err := r.txn.GetOutNodes(n.ID, label)
		if err != nil {
			return nil, err
		}
		return nodeVals(nodes), nil
	})
}

// In steps from each node to its in-neighbors across label.
func (r *Ro) In(label string) *Ro {
	return r.flatMapNode(func(n *storage.Node) ([]TraversalVal, error) {
		nodes, err := r.txn.GetInNodes(n.ID, label)
		if err != nil {
			return nil, err
		}
		return nodeVals(nodes), nil
	})
}

// OutE steps from each node to its outbound edges across label.
func (r *Ro) OutE(label string) *Ro {
	return r.flatMapNode(func(n *storage.Node) ([]TraversalVal, error) {
		edges, err := r.txn.GetOutEdges(n.ID, label)
		if err != nil {
			return nil, err
		}
		return edgeVals(edges), nil
	})
}

// InE steps from each node to its inbound edges across label.
func (r *Ro) InE(label string) *Ro {
	return r.flatMapNode(func(n *storage.Node) ([]TraversalVal, error) {
		edges, err := r.txn.GetInEdges(n.ID, label)
		if err != nil {
			return nil, err
		}
		return edgeVals(edges), nil
	})
}

// FromN steps from each edge to its source node.
func (r *Ro) FromN() *Ro {
	return r.flatMapEdge(func(e *storage.Edge) ([]TraversalVal, error) {
		n, err := r.txn.GetNode(e.From)
		if err != nil {
			return nil, err
		}
		return []TraversalVal{NodeVal(n)}, nil
	})
}

// ToN steps from each edge to its destination node.
func (r *Ro) ToN() *Ro {
	return r.flatMapEdge(func(e *storage.Edge) ([]TraversalVal, error) {
		n, err := r.txn.GetNode(e.To)
		if err != nil {
			return nil, err
		}
		return []TraversalVal{NodeVal(n)}, nil
	})
}

// ShortestPath steps from each node to the shortest path reaching to
// across edges labeled label.
func (r *Ro) ShortestPath(to storage.ID, label string) *Ro {
	return r.flatMapNode(func(n *storage.Node) ([]TraversalVal, error) {
		path, err := r.txn.ShortestPath(n.ID, to, label)
		if err != nil {
			return nil, err
		}
		return []TraversalVal{PathVal(path)}, nil
	})
}

// ShortestMutualPath is ShortestPath restricted to hops with a
// same-label edge running the other way too.
func (r *Ro) ShortestMutualPath(to storage.ID, label string) *Ro {
	return r.flatMapNode(func(n *storage.Node) ([]TraversalVal, error) {
		path, err := r.txn.ShortestMutualPath(n.ID, to, label)
		if err != nil {
			return nil, err
		}
		return []TraversalVal{PathVal(path)}, nil
	})
}

// --- utility steps ---

// Range keeps items at index [offset, offset+limit). limit < 0 means
// unbounded.
func (r *Ro) Range(offset, limit int) *Ro {
	idx := 0
	taken := 0
	return r.with(chain(r.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		cur := idx
		idx++
		if cur < offset {
			return true
		}
		if limit >= 0 && taken >= limit {
			return false
		}
		taken++
		if !emit(Item{Val: in.Val}) {
			return false
		}
		return !(limit >= 0 && taken >= limit)
	}))
}

// Dedup drops items whose dedup key has already been seen in this
// stream.
func (r *Ro) Dedup() *Ro {
	seen := make(map[string]bool)
	return r.with(chain(r.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		k := in.Val.dedupKey()
		if seen[k] {
			return true
		}
		seen[k] = true
		return emit(Item{Val: in.Val})
	}))
}

// Count consumes the stream and replaces it with a single count item.
func (r *Ro) Count() *Ro {
	n := 0
	var firstErr error
	r.src(func(it Item) bool {
		if it.Err != nil {
			firstErr = it.Err
			return false
		}
		n++
		return true
	})
	if firstErr != nil {
		return r.fail(firstErr)
	}
	return r.with(fromVals([]TraversalVal{CountVal(n)}))
}

// FilterRef keeps only items for which pred returns true; it never
// mutates the underlying graph (the `_ref` half of HelixQL's filter
// naming convention).
func (r *Ro) FilterRef(pred func(TraversalVal) bool) *Ro {
	return r.with(chain(r.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		if !pred(in.Val) {
			return true
		}
		return emit(Item{Val: in.Val})
	}))
}

// MapTraversal applies fn to every item, replacing it in place.
func (r *Ro) MapTraversal(fn func(TraversalVal) TraversalVal) *Ro {
	return r.with(chain(r.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		return emit(Item{Val: fn(in.Val)})
	}))
}

// CheckProperty keeps only node/edge/vector items whose property key
// equals expected.
func (r *Ro) CheckProperty(key string, expected storage.Value) *Ro {
	return r.FilterRef(func(tv TraversalVal) bool {
		var props map[string]storage.Value
		switch tv.Kind {
		case KindNode:
			props = tv.Node.Properties
		case KindEdge:
			props = tv.Edge.Properties
		case KindVector:
			props = tv.Vector.Properties
		default:
			return false
		}
		v, ok := props[key]
		return ok && v.Equal(expected)
	})
}

// --- vector steps ---

// SearchV replaces the stream with the k nearest vectors to query via
// ix's HNSW graph, optionally restricted by filter.
func (r *Ro) SearchV(ix *vector.Index, query []float32, k int, filter vector.Predicate) *Ro {
	hits, err := ix.Search(r.txn, query, k, filter)
	if err != nil {
		return r.fail(err)
	}
	vals := make([]TraversalVal, len(hits))
	for i, h := range hits {
		vals[i] = VectorVal(h.Vector)
	}
	return r.with(fromVals(vals))
}

// BruteForceSearchV is SearchV without the HNSW graph — an exact
// linear scan, useful to validate recall or on small corpora.
func (r *Ro) BruteForceSearchV(ix *vector.Index, query []float32, k int, filter vector.Predicate) *Ro {
	hits, err := ix.BruteForceSearch(r.txn, query, k, filter)
	if err != nil {
		return r.fail(err)
	}
	vals := make([]TraversalVal, len(hits))
	for i, h := range hits {
		vals[i] = VectorVal(h.Vector)
	}
	return r.with(fromVals(vals))
}

// --- full-text step ---

// SearchBM25Index replaces the stream with the top `limit` nodes
// tagged `label` by Okapi BM25 score against query, best match first
// (spec.md §4 supplement: per-label full-text search).
func (r *Ro) SearchBM25Index(label, query string, limit int) *Ro {
	hits, err := r.txn.SearchBM25(label, query, limit)
	if err != nil {
		return r.fail(err)
	}
	vals := make([]TraversalVal, len(hits))
	for i, h := range hits {
		vals[i] = NodeVal(h.Node)
	}
	return r.with(fromVals(vals))
}

// --- terminal collectors ---

// CollectTo materializes the stream, stopping at the first error.
func (r *Ro) CollectTo() ([]TraversalVal, error) {
	var out []TraversalVal
	var firstErr error
	r.src(func(it Item) bool {
		if it.Err != nil {
			firstErr = it.Err
			return false
		}
		out = append(out, it.Val)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// TakeAndCollectTo materializes at most n items, stopping the upstream
// pipeline as soon as n are gathered.
func (r *Ro) TakeAndCollectTo(n int) ([]TraversalVal, error) {
	var out []TraversalVal
	var firstErr error
	r.src(func(it Item) bool {
		if it.Err != nil {
			firstErr = it.Err
			return false
		}
		out = append(out, it.Val)
		return len(out) < n
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// CollectDedup materializes the stream with duplicate entities
// (matched by dedup key) collapsed.
func (r *Ro) CollectDedup() ([]TraversalVal, error) {
	vals, err := r.CollectTo()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(vals))
	out := make([]TraversalVal, 0, len(vals))
	for _, v := range vals {
		k := v.dedupKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out, nil
}

// CollectToObj stops the pipeline at its first produced value and
// returns it as a plain Go value suitable for a JSON response body,
// or nil if the stream is empty.
func (r *Ro) CollectToObj() (any, error) {
	vals, err := r.TakeAndCollectTo(1)
	if err != nil {
		return nil, err
	}
	scratch := pool.GetValueSlice()
	defer pool.PutValueSlice(scratch)
	for _, v := range vals {
		scratch = append(scratch, v.Native())
	}
	if len(scratch) == 0 {
		return nil, nil
	}
	return scratch[0], nil
}

// CollectToVal stops the pipeline at its first produced value and
// returns it coerced to storage.Value, or the zero Value if the
// stream is empty.
func (r *Ro) CollectToVal() (storage.Value, error) {
	vals, err := r.TakeAndCollectTo(1)
	if err != nil {
		return storage.Value{}, err
	}
	if len(vals) == 0 {
		return storage.Value{}, nil
	}
	return vals[0].ToValue(), nil
}

// TryCollect materializes every successful item alongside every error
// encountered, instead of stopping at the first one — used by handlers
// that want partial results (e.g. a bulk read across several ids).
func (r *Ro) TryCollect() ([]TraversalVal, []error) {
	var out []TraversalVal
	var errs []error
	r.src(func(it Item) bool {
		if it.Err != nil {
			errs = append(errs, it.Err)
			return true
		}
		out = append(out, it.Val)
		return true
	})
	return out, errs
}
