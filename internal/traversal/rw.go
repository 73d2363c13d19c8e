package traversal

import (
	"github.com/suxatcode/helix-db-sub002/internal/herr"
	"github.com/suxatcode/helix-db-sub002/internal/storage"
	"github.com/suxatcode/helix-db-sub002/internal/vector"
)

// Rw is a read-write traversal: it carries its own storage.WriteTxn
// and reuses Ro's read-side steps (Out, In, Range, ...) against that
// same transaction's embedded ReadTxn, so a chain that writes then
// reads sees its own writes.
type Rw struct {
	*Ro
	wtxn *storage.WriteTxn
}

// NewRw opens an empty read-write traversal against wtxn.
func NewRw(wtxn *storage.WriteTxn) *Rw {
	return &Rw{Ro: NewRo(&wtxn.ReadTxn), wtxn: wtxn}
}

func (w *Rw) rewrap(ro *Ro) *Rw {
	return &Rw{Ro: ro, wtxn: w.wtxn}
}

func (w *Rw) emptyRo() *Ro {
	return &Ro{txn: &w.wtxn.ReadTxn, src: fromItems(nil)}
}

func (w *Rw) failRo(err error) *Ro {
	return &Ro{txn: &w.wtxn.ReadTxn, src: errProducer(err)}
}

// --- read-side passthroughs, rewrapped so a write can follow ---

func (w *Rw) Empty() *Rw                   { return w.rewrap(w.Ro.Empty()) }
func (w *Rw) Out(label string) *Rw         { return w.rewrap(w.Ro.Out(label)) }
func (w *Rw) In(label string) *Rw          { return w.rewrap(w.Ro.In(label)) }
func (w *Rw) OutE(label string) *Rw        { return w.rewrap(w.Ro.OutE(label)) }
func (w *Rw) InE(label string) *Rw         { return w.rewrap(w.Ro.InE(label)) }
func (w *Rw) FromN() *Rw                   { return w.rewrap(w.Ro.FromN()) }
func (w *Rw) ToN() *Rw                     { return w.rewrap(w.Ro.ToN()) }
func (w *Rw) Range(offset, limit int) *Rw  { return w.rewrap(w.Ro.Range(offset, limit)) }
func (w *Rw) Dedup() *Rw                   { return w.rewrap(w.Ro.Dedup()) }
func (w *Rw) Count() *Rw                   { return w.rewrap(w.Ro.Count()) }
func (w *Rw) NFromID(id storage.ID) *Rw    { return w.rewrap(w.Ro.NFromID(id)) }
func (w *Rw) EFromID(id storage.ID) *Rw    { return w.rewrap(w.Ro.EFromID(id)) }
func (w *Rw) NFromType(label string) *Rw   { return w.rewrap(w.Ro.NFromType(label)) }
func (w *Rw) EFromType(label string) *Rw   { return w.rewrap(w.Ro.EFromType(label)) }

func (w *Rw) FilterRef(pred func(TraversalVal) bool) *Rw {
	return w.rewrap(w.Ro.FilterRef(pred))
}

func (w *Rw) CheckProperty(key string, expected storage.Value) *Rw {
	return w.rewrap(w.Ro.CheckProperty(key, expected))
}

// FilterMut keeps items for which pred returns true, where pred is
// free to perform its own writes against wtxn as it inspects each
// item (HelixQL's `_mut` filter variant — e.g. dropping an item AND
// its dangling reverse edge in the same pass).
func (w *Rw) FilterMut(pred func(*storage.WriteTxn, TraversalVal) (bool, error)) *Rw {
	return w.rewrap(&Ro{txn: &w.wtxn.ReadTxn, src: chain(w.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		keep, err := pred(w.wtxn, in.Val)
		if err != nil {
			return emit(Item{Err: err})
		}
		if !keep {
			return true
		}
		return emit(Item{Val: in.Val})
	})})
}

// --- write steps ---

// AddN creates a node and makes it the sole item of the stream.
func (w *Rw) AddN(label string, props map[string]storage.Value) *Rw {
	node, err := w.wtxn.AddNode(label, props)
	if err != nil {
		return w.rewrap(w.failRo(err))
	}
	return w.rewrap(&Ro{txn: &w.wtxn.ReadTxn, src: fromVals([]TraversalVal{NodeVal(node)})})
}

// AddE creates an edge and makes it the sole item of the stream.
func (w *Rw) AddE(label string, from, to storage.ID, fromKind, toKind storage.EdgeType, props map[string]storage.Value, shouldCheck bool) *Rw {
	edge, err := w.wtxn.AddEdge(label, from, to, fromKind, toKind, props, shouldCheck)
	if err != nil {
		return w.rewrap(w.failRo(err))
	}
	return w.rewrap(&Ro{txn: &w.wtxn.ReadTxn, src: fromVals([]TraversalVal{EdgeVal(edge)})})
}

// BulkAddN appends a node without secondary-index maintenance,
// assuming ids are inserted in increasing order (spec.md's bulk-load
// fast path). The stream is left empty; bulk loaders consume ids by
// side effect, not by traversal.
func (w *Rw) BulkAddN(id storage.ID, label string, props map[string]storage.Value) *Rw {
	if err := w.wtxn.BulkAddNode(id, label, props); err != nil {
		return w.rewrap(w.failRo(err))
	}
	return w.rewrap(w.emptyRo())
}

// BulkAddE appends an edge without secondary-index maintenance.
func (w *Rw) BulkAddE(id storage.ID, label string, from, to storage.ID, props map[string]storage.Value) *Rw {
	if err := w.wtxn.BulkAddEdge(id, label, from, to, props); err != nil {
		return w.rewrap(w.failRo(err))
	}
	return w.rewrap(w.emptyRo())
}

// Update merges patch into every node/edge item's properties,
// re-emitting the updated item.
func (w *Rw) Update(patch map[string]storage.Value) *Rw {
	return w.rewrap(&Ro{txn: &w.wtxn.ReadTxn, src: chain(w.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		switch in.Val.Kind {
		case KindNode:
			n, err := w.wtxn.UpdateNode(in.Val.Node.ID, patch)
			if err != nil {
				return emit(Item{Err: err})
			}
			return emit(Item{Val: NodeVal(n)})
		case KindEdge:
			e, err := w.wtxn.UpdateEdge(in.Val.Edge.ID, patch)
			if err != nil {
				return emit(Item{Err: err})
			}
			return emit(Item{Val: EdgeVal(e)})
		default:
			return emit(Item{Err: herr.New(herr.KindTraversal, "update requires a node or edge item")})
		}
	})})
}

// Drop deletes every node/edge item from the graph. Dropped items are
// not re-emitted; a vector item yields an error instead (vectors are
// removed through DropV).
func (w *Rw) Drop() *Rw {
	return w.rewrap(&Ro{txn: &w.wtxn.ReadTxn, src: chain(w.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		var err error
		switch in.Val.Kind {
		case KindNode:
			err = w.wtxn.DropNode(in.Val.Node.ID)
		case KindEdge:
			err = w.wtxn.DropEdge(in.Val.Edge.ID)
		case KindVector:
			err = herr.New(herr.KindTraversal, "drop a vector through its index, not the raw traversal (see DropV)")
		default:
			err = herr.New(herr.KindTraversal, "drop requires a node, edge or vector item")
		}
		if err != nil {
			return emit(Item{Err: err})
		}
		return true
	})})
}

// --- vector write steps ---

// InsertV inserts one vector into ix and makes it the sole item of
// the stream.
func (w *Rw) InsertV(ix *vector.Index, data []float32, props map[string]storage.Value) *Rw {
	v, err := ix.Insert(w.wtxn, data, props)
	if err != nil {
		return w.rewrap(w.failRo(err))
	}
	return w.rewrap(&Ro{txn: &w.wtxn.ReadTxn, src: fromVals([]TraversalVal{VectorVal(v)})})
}

// InsertVs inserts a batch of vectors into ix, pairing data[i] with
// props[i] when present.
func (w *Rw) InsertVs(ix *vector.Index, data [][]float32, props []map[string]storage.Value) *Rw {
	out := make([]TraversalVal, 0, len(data))
	for i, d := range data {
		var p map[string]storage.Value
		if i < len(props) {
			p = props[i]
		}
		v, err := ix.Insert(w.wtxn, d, p)
		if err != nil {
			return w.rewrap(w.failRo(err))
		}
		out = append(out, VectorVal(v))
	}
	return w.rewrap(&Ro{txn: &w.wtxn.ReadTxn, src: fromVals(out)})
}

// DropV removes every vector item from ix's HNSW graph.
func (w *Rw) DropV(ix *vector.Index) *Rw {
	return w.rewrap(&Ro{txn: &w.wtxn.ReadTxn, src: chain(w.src, func(in Item, emit func(Item) bool) bool {
		if in.Err != nil {
			return emit(Item{Err: in.Err})
		}
		if in.Val.Kind != KindVector {
			return emit(Item{Err: herr.New(herr.KindTraversal, "drop_v requires a vector item")})
		}
		if err := ix.Delete(w.wtxn, in.Val.Vector.ID); err != nil {
			return emit(Item{Err: err})
		}
		return true
	})})
}

// Commit finalizes every write this traversal performed.
func (w *Rw) Commit() error { return w.wtxn.Commit() }

// Discard abandons every write this traversal performed.
func (w *Rw) Discard() { w.wtxn.Discard() }
