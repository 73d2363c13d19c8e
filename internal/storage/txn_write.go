package storage

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/suxatcode/helix-db-sub002/internal/herr"
)

// WriteTxn is a read-write transaction backed by a BadgerDB update
// transaction. Several WriteTxns may be open at the same time; no lock
// keeps a second writer out. BadgerDB checks for conflicts at Commit,
// which fails when a key this transaction read was written by another
// transaction that committed first. Any number of ReadTxn snapshots may
// run alongside the writers.
//
// WriteTxn embeds ReadTxn so every read primitive is available inside
// a write transaction too (a handler reads back what it just wrote
// before Commit).
type WriteTxn struct {
	ReadTxn
}

// NewWriteTxn opens a new read-write transaction.
func (e *Engine) NewWriteTxn() *WriteTxn {
	return &WriteTxn{ReadTxn{e: e, txn: e.db.NewTransaction(true)}}
}

// Commit applies every write performed on this transaction.
func (w *WriteTxn) Commit() error {
	if err := w.txn.Commit(); err != nil {
		return herr.Wrap(herr.KindStorage, "commit", err)
	}
	return nil
}

// AddNode creates a node with a freshly minted id, writing its primary
// record, its label index row, and one secondary-index row per
// configured index name the properties carry a value for.
func (w *WriteTxn) AddNode(label string, props map[string]Value) (*Node, error) {
	id, err := NewID()
	if err != nil {
		return nil, herr.Wrap(herr.KindIO, "mint node id", err)
	}
	node := &Node{ID: id, Label: label, Properties: normalizeProps(props)}
	if err := w.putNode(node); err != nil {
		return nil, err
	}
	return node, nil
}

func (w *WriteTxn) putNode(node *Node) error {
	data, err := encodeNode(node)
	if err != nil {
		return herr.Wrap(herr.KindConversion, "encode node", err)
	}
	if err := w.txn.Set(nodeKey(node.ID), data); err != nil {
		return herr.Wrap(herr.KindStorage, "set node", err)
	}
	if err := w.txn.Set(nodeLabelKey(node.Label, node.ID), []byte{}); err != nil {
		return herr.Wrap(herr.KindStorage, "set node label", err)
	}
	for name := range w.e.secondaryIndices {
		val, ok := node.Properties[name]
		if !ok {
			continue
		}
		if err := w.txn.Set(secondaryIndexDBKey(name, val), node.ID.Bytes()); err != nil {
			return herr.Wrap(herr.KindStorage, "set secondary index", err)
		}
	}
	return nil
}

// BulkAddNode appends a node with an id assumed already sorted and
// monotonic relative to prior calls, skipping secondary-index
// maintenance — the bulk-load fast path from original_source/'s
// append-only loaders, for seeding large graphs before normal traffic
// begins.
func (w *WriteTxn) BulkAddNode(id ID, label string, props map[string]Value) error {
	node := &Node{ID: id, Label: label, Properties: normalizeProps(props)}
	data, err := encodeNode(node)
	if err != nil {
		return herr.Wrap(herr.KindConversion, "encode node", err)
	}
	if err := w.txn.Set(nodeKey(node.ID), data); err != nil {
		return herr.Wrap(herr.KindStorage, "set node", err)
	}
	return w.txn.Set(nodeLabelKey(node.Label, node.ID), []byte{})
}

// edgeEndpointExists validates an endpoint against the expected kind
// when should_check requests it (spec.md §4.1 add_edge).
func (w *WriteTxn) edgeEndpointExists(id ID, kind EdgeType) bool {
	switch kind {
	case EdgeTypeVector:
		_, err := w.txn.Get(vectorKey(id))
		return err == nil
	default:
		_, err := w.txn.Get(nodeKey(id))
		return err == nil
	}
}

// AddEdge creates a directed, labeled edge between from and to. When
// shouldCheck is true, both endpoints must already exist as the given
// EdgeType or herr.KindConversion is returned.
func (w *WriteTxn) AddEdge(label string, from, to ID, fromKind, toKind EdgeType, props map[string]Value, shouldCheck bool) (*Edge, error) {
	if shouldCheck {
		if !w.edgeEndpointExists(from, fromKind) {
			return nil, herr.New(herr.KindConversion, "add_edge: from endpoint does not exist")
		}
		if !w.edgeEndpointExists(to, toKind) {
			return nil, herr.New(herr.KindConversion, "add_edge: to endpoint does not exist")
		}
	}
	id, err := NewID()
	if err != nil {
		return nil, herr.Wrap(herr.KindIO, "mint edge id", err)
	}
	edge := &Edge{ID: id, Label: label, From: from, To: to, Properties: normalizeProps(props)}
	if err := w.putEdge(edge); err != nil {
		return nil, err
	}
	return edge, nil
}

func (w *WriteTxn) putEdge(edge *Edge) error {
	data, err := encodeEdge(edge)
	if err != nil {
		return herr.Wrap(herr.KindConversion, "encode edge", err)
	}
	if err := w.txn.Set(edgeKey(edge.ID), data); err != nil {
		return herr.Wrap(herr.KindStorage, "set edge", err)
	}
	if err := w.txn.Set(edgeLabelKey(edge.Label, edge.ID), []byte{}); err != nil {
		return herr.Wrap(herr.KindStorage, "set edge label", err)
	}
	if err := w.txn.Set(outEdgeKey(edge.From, edge.Label, edge.ID), edge.To.Bytes()); err != nil {
		return herr.Wrap(herr.KindStorage, "set out edge", err)
	}
	if err := w.txn.Set(inEdgeKey(edge.To, edge.Label, edge.ID), edge.From.Bytes()); err != nil {
		return herr.Wrap(herr.KindStorage, "set in edge", err)
	}
	return nil
}

// BulkAddEdge mirrors BulkAddNode for edges: no endpoint validation, no
// secondary-index work, id assumed already minted and sorted.
func (w *WriteTxn) BulkAddEdge(id ID, label string, from, to ID, props map[string]Value) error {
	edge := &Edge{ID: id, Label: label, From: from, To: to, Properties: normalizeProps(props)}
	return w.putEdge(edge)
}

// DropNode removes a node, every edge touching it (in both
// directions), and every secondary-index row it appeared in.
func (w *WriteTxn) DropNode(id ID) error {
	node, err := w.GetNode(id)
	if err != nil {
		return err
	}

	out, err := w.GetOutEdges(id, "")
	if err != nil {
		return err
	}
	in, err := w.GetInEdges(id, "")
	if err != nil {
		return err
	}
	for _, e := range out {
		if err := w.dropEdgeRows(e); err != nil {
			return err
		}
	}
	for _, e := range in {
		if err := w.dropEdgeRows(e); err != nil {
			return err
		}
	}

	for name := range w.e.secondaryIndices {
		if val, ok := node.Properties[name]; ok {
			if err := w.txn.Delete(secondaryIndexDBKey(name, val)); err != nil {
				return herr.Wrap(herr.KindStorage, "drop secondary index", err)
			}
		}
	}
	if err := w.txn.Delete(nodeLabelKey(node.Label, node.ID)); err != nil {
		return herr.Wrap(herr.KindStorage, "drop node label", err)
	}
	if err := w.txn.Delete(nodeKey(id)); err != nil {
		return herr.Wrap(herr.KindStorage, "drop node", err)
	}
	return nil
}

// dropEdgeRows removes every row an edge occupies: both adjacency
// rows, its label row and its primary record (callers that already
// hold the Edge value use this to avoid a redundant GetEdge).
func (w *WriteTxn) dropEdgeRows(e *Edge) error {
	if err := w.txn.Delete(outEdgeKey(e.From, e.Label, e.ID)); err != nil {
		return herr.Wrap(herr.KindStorage, "drop out edge", err)
	}
	if err := w.txn.Delete(inEdgeKey(e.To, e.Label, e.ID)); err != nil {
		return herr.Wrap(herr.KindStorage, "drop in edge", err)
	}
	if err := w.txn.Delete(edgeLabelKey(e.Label, e.ID)); err != nil {
		return herr.Wrap(herr.KindStorage, "drop edge label", err)
	}
	return w.txn.Delete(edgeKey(e.ID))
}

// DropEdge removes a single edge and its adjacency rows.
func (w *WriteTxn) DropEdge(id ID) error {
	edge, err := w.GetEdge(id)
	if err != nil {
		return err
	}
	return w.dropEdgeRows(edge)
}

// UpdateNode read-merges patch into the node's properties and
// re-indexes only the secondary-index entries whose value actually
// changed (spec.md §4.1 update_node).
func (w *WriteTxn) UpdateNode(id ID, patch map[string]Value) (*Node, error) {
	node, err := w.GetNode(id)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]Value, len(node.Properties)+len(patch))
	for k, v := range node.Properties {
		merged[k] = v
	}
	for name := range w.e.secondaryIndices {
		old, hadOld := node.Properties[name]
		newVal, hasNew := patch[name]
		if !hasNew || (hadOld && old.Equal(newVal)) {
			continue
		}
		if hadOld {
			if err := w.txn.Delete(secondaryIndexDBKey(name, old)); err != nil {
				return nil, herr.Wrap(herr.KindStorage, "drop stale secondary index", err)
			}
		}
		if err := w.txn.Set(secondaryIndexDBKey(name, newVal), id.Bytes()); err != nil {
			return nil, herr.Wrap(herr.KindStorage, "set secondary index", err)
		}
	}
	for k, v := range patch {
		merged[k] = v
	}
	node.Properties = normalizeProps(merged)
	data, err := encodeNode(node)
	if err != nil {
		return nil, herr.Wrap(herr.KindConversion, "encode node", err)
	}
	if err := w.txn.Set(nodeKey(node.ID), data); err != nil {
		return nil, herr.Wrap(herr.KindStorage, "set node", err)
	}
	return node, nil
}

// UpdateEdge read-merges patch into an edge's properties (edges carry
// no secondary indices, per spec.md §4.1 — only node properties are
// indexable).
func (w *WriteTxn) UpdateEdge(id ID, patch map[string]Value) (*Edge, error) {
	edge, err := w.GetEdge(id)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]Value, len(edge.Properties)+len(patch))
	for k, v := range edge.Properties {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	edge.Properties = normalizeProps(merged)
	data, err := encodeEdge(edge)
	if err != nil {
		return nil, herr.Wrap(herr.KindConversion, "encode edge", err)
	}
	if err := w.txn.Set(edgeKey(edge.ID), data); err != nil {
		return nil, herr.Wrap(herr.KindStorage, "set edge", err)
	}
	return edge, nil
}

// PutVector stores a vector's primary record. The HNSW index (package
// vector) owns the neighbor-graph rows (prefixVecLevel, prefixEntryPoint)
// and calls this for the record itself.
func (w *WriteTxn) PutVector(v *HVector) error {
	data, err := encodeVector(v)
	if err != nil {
		return herr.Wrap(herr.KindConversion, "encode vector", err)
	}
	if err := w.txn.Set(vectorKey(v.ID), data); err != nil {
		return herr.Wrap(herr.KindStorage, "set vector", err)
	}
	return nil
}

// GetVector returns the vector record for id.
func (r *ReadTxn) GetVector(id ID) (*HVector, error) {
	item, err := r.txn.Get(vectorKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, herr.VectorNotFound(id.String())
	}
	if err != nil {
		return nil, herr.Wrap(herr.KindStorage, "get vector", err)
	}
	var v *HVector
	err = item.Value(func(val []byte) error {
		var decodeErr error
		v, decodeErr = decodeVector(val)
		return decodeErr
	})
	if err != nil {
		return nil, herr.Wrap(herr.KindConversion, "decode vector", err)
	}
	return v, nil
}

// DropVector removes a vector's primary record. Callers are
// responsible for first repairing the HNSW neighbor graph (package
// vector's Delete), matching the teacher's split between storage-level
// deletes and index-level graph repair.
func (w *WriteTxn) DropVector(id ID) error {
	return w.txn.Delete(vectorKey(id))
}
