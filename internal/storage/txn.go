package storage

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"
	"github.com/suxatcode/helix-db-sub002/internal/herr"
)

// ReadTxn is a read-only snapshot transaction (spec.md §4.2: "Read
// iterator Ro<I> carries a reference to a read transaction").
//
// A ReadTxn observes a stable point-in-time snapshot taken at
// creation; concurrent writes committed afterwards are invisible
// (spec.md §5).
type ReadTxn struct {
	e   *Engine
	txn *badger.Txn
}

// NewReadTxn opens a new read snapshot. The caller must Discard it.
func (e *Engine) NewReadTxn() *ReadTxn {
	return &ReadTxn{e: e, txn: e.db.NewTransaction(false)}
}

// Discard releases the snapshot without applying any changes (a
// ReadTxn never has any to apply).
func (r *ReadTxn) Discard() { r.txn.Discard() }

func (r *ReadTxn) Engine() *Engine { return r.e }

// CheckExists reports whether id names a node or an edge currently in
// the store.
func (r *ReadTxn) CheckExists(id ID) bool {
	if _, err := r.txn.Get(nodeKey(id)); err == nil {
		return true
	}
	if _, err := r.txn.Get(edgeKey(id)); err == nil {
		return true
	}
	return false
}

// GetNode returns the node record for id, or herr.NodeNotFound.
func (r *ReadTxn) GetNode(id ID) (*Node, error) {
	item, err := r.txn.Get(nodeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, herr.NodeNotFound(id.String())
	}
	if err != nil {
		return nil, herr.Wrap(herr.KindStorage, "get node", err)
	}
	var node *Node
	err = item.Value(func(val []byte) error {
		var decodeErr error
		node, decodeErr = decodeNode(val)
		return decodeErr
	})
	if err != nil {
		return nil, herr.Wrap(herr.KindConversion, "decode node", err)
	}
	return node, nil
}

// GetEdge returns the edge record for id, or herr.EdgeNotFound.
func (r *ReadTxn) GetEdge(id ID) (*Edge, error) {
	item, err := r.txn.Get(edgeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, herr.EdgeNotFound(id.String())
	}
	if err != nil {
		return nil, herr.Wrap(herr.KindStorage, "get edge", err)
	}
	var edge *Edge
	err = item.Value(func(val []byte) error {
		var decodeErr error
		edge, decodeErr = decodeEdge(val)
		return decodeErr
	})
	if err != nil {
		return nil, herr.Wrap(herr.KindConversion, "decode edge", err)
	}
	return edge, nil
}

// adjacencyRow is one (other endpoint, edge id) pair discovered by
// scanning an adjacency prefix.
type adjacencyRow struct {
	other ID
	edge  ID
}

// scanAdjacency walks prefix, decoding each row's value as the 16-byte
// "other endpoint" id and the key's trailing 16 bytes as the edge id —
// the emulated DUPSORT row shape from keys.go.
func scanAdjacency(txn *badger.Txn, prefix []byte) ([]adjacencyRow, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var rows []adjacencyRow
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		edgeID := extractTailID(item.KeyCopy(nil))
		var otherID ID
		if err := item.Value(func(val []byte) error {
			otherID = IDFromBytes(val)
			return nil
		}); err != nil {
			return nil, herr.Wrap(herr.KindStorage, "scan adjacency", err)
		}
		rows = append(rows, adjacencyRow{other: otherID, edge: edgeID})
	}
	return rows, nil
}

// resolveEdges turns adjacency rows into Edge records, confirming each
// row's edge id still exists (a row can only go stale within the same
// transaction that deletes it, since drops rewrite both adjacency
// tables atomically).
func (r *ReadTxn) resolveEdges(rows []adjacencyRow) ([]*Edge, error) {
	edges := make([]*Edge, 0, len(rows))
	for _, row := range rows {
		edge, err := r.GetEdge(row.edge)
		if err != nil {
			if herr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// GetOutEdges returns the edges leaving from with the given label, or
// every outgoing edge when label is empty (spec.md §4.1).
func (r *ReadTxn) GetOutEdges(from ID, label string) ([]*Edge, error) {
	prefix := outEdgePrefixAll(from)
	if label != "" {
		prefix = outEdgePrefixLabel(from, label)
	}
	rows, err := scanAdjacency(r.txn, prefix)
	if err != nil {
		return nil, err
	}
	return r.resolveEdges(rows)
}

// GetInEdges returns the edges arriving at to with the given label, or
// every incoming edge when label is empty.
func (r *ReadTxn) GetInEdges(to ID, label string) ([]*Edge, error) {
	prefix := inEdgePrefixAll(to)
	if label != "" {
		prefix = inEdgePrefixLabel(to, label)
	}
	rows, err := scanAdjacency(r.txn, prefix)
	if err != nil {
		return nil, err
	}
	return r.resolveEdges(rows)
}

// GetOutNodes dereferences the To endpoint of every matching outgoing
// edge.
func (r *ReadTxn) GetOutNodes(from ID, label string) ([]*Node, error) {
	edges, err := r.GetOutEdges(from, label)
	if err != nil {
		return nil, err
	}
	return r.dereference(edges, func(e *Edge) ID { return e.To })
}

// GetInNodes dereferences the From endpoint of every matching incoming
// edge.
func (r *ReadTxn) GetInNodes(to ID, label string) ([]*Node, error) {
	edges, err := r.GetInEdges(to, label)
	if err != nil {
		return nil, err
	}
	return r.dereference(edges, func(e *Edge) ID { return e.From })
}

func (r *ReadTxn) dereference(edges []*Edge, pick func(*Edge) ID) ([]*Node, error) {
	nodes := make([]*Node, 0, len(edges))
	for _, e := range edges {
		n, err := r.GetNode(pick(e))
		if err != nil {
			if herr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// GetNodesByLabel prefix-scans node_labels_db for every node tagged
// with label.
func (r *ReadTxn) GetNodesByLabel(label string) ([]*Node, error) {
	prefix := nodeLabelPrefix(label)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	var nodes []*Node
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id := extractTailID(it.Item().KeyCopy(nil))
		node, err := r.GetNode(id)
		if err != nil {
			if herr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// GetEdgesByLabel prefix-scans edge_labels_db.
func (r *ReadTxn) GetEdgesByLabel(label string) ([]*Edge, error) {
	prefix := edgeLabelPrefix(label)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	var edges []*Edge
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id := extractTailID(it.Item().KeyCopy(nil))
		edge, err := r.GetEdge(id)
		if err != nil {
			if herr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// AllNodes scans every row of nodes_db, in id order.
func (r *ReadTxn) AllNodes() ([]*Node, error) {
	prefix := []byte{prefixNode}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	var nodes []*Node
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var node *Node
		if err := item.Value(func(val []byte) error {
			var decodeErr error
			node, decodeErr = decodeNode(val)
			return decodeErr
		}); err != nil {
			return nil, herr.Wrap(herr.KindConversion, "decode node", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// AllEdges scans every row of edges_db, in id order.
func (r *ReadTxn) AllEdges() ([]*Edge, error) {
	prefix := []byte{prefixEdge}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	var edges []*Edge
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var edge *Edge
		if err := item.Value(func(val []byte) error {
			var decodeErr error
			edge, decodeErr = decodeEdge(val)
			return decodeErr
		}); err != nil {
			return nil, herr.Wrap(herr.KindConversion, "decode edge", err)
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// NodeFromIndex looks up the single node carrying value on the named
// secondary index.
func (r *ReadTxn) NodeFromIndex(indexName string, value Value) (*Node, error) {
	if !r.e.HasSecondaryIndex(indexName) {
		return nil, herr.IndexNotFound(indexName)
	}
	key := secondaryIndexDBKey(indexName, value)
	item, err := r.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, herr.NodeNotFound("<index:" + indexName + ">")
	}
	if err != nil {
		return nil, herr.Wrap(herr.KindStorage, "index lookup", err)
	}
	var id ID
	if err := item.Value(func(val []byte) error {
		id = IDFromBytes(val)
		return nil
	}); err != nil {
		return nil, herr.Wrap(herr.KindStorage, "index lookup value", err)
	}
	return r.GetNode(id)
}

// compareIndexKey orders two keys lexicographically, the order in which
// BadgerDB iterates the adjacency tables.
func compareIndexKey(a, b []byte) int { return bytes.Compare(a, b) }
