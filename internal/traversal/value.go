// Package traversal implements the lazy, composable iterator pipeline
// HelixQL handlers are built from (spec.md §4.2): a source step opens
// onto the graph or vector index, a chain of graph/utility/vector
// steps transforms the stream, and a terminal collector materializes
// it. Every item carries Result<TraversalVal, Error> semantics — a
// failed step does not panic the pipeline, it turns into an error
// item downstream steps and collectors can choose to propagate or
// (via TryCollect) gather alongside any successes.
//
// There is no iterator-combinator library in the example pack this
// could be grounded on line-for-line; the push-style Producer/emit
// shape here is the standard Go idiom for a cancellable generator
// (the same shape `bufio.Scanner`-adjacent code and `iter.Seq` use),
// adapted to the source→steps→collector algebra spec.md describes.
package traversal

import (
	"fmt"

	"github.com/suxatcode/helix-db-sub002/internal/storage"
)

// Kind tags the variant carried by a TraversalVal.
type Kind int

const (
	KindEmpty Kind = iota
	KindNode
	KindEdge
	KindVector
	KindCount
	KindPath
	KindValue
)

// TraversalVal is the value flowing through the pipeline (spec.md
// §4.2: "Result<TraversalVal, Error>"). Only the field matching Kind
// is meaningful.
type TraversalVal struct {
	Kind   Kind
	Node   *storage.Node
	Edge   *storage.Edge
	Vector *storage.HVector
	Count  int
	Path   *storage.Path
	Val    storage.Value
}

func NodeVal(n *storage.Node) TraversalVal     { return TraversalVal{Kind: KindNode, Node: n} }
func EdgeVal(e *storage.Edge) TraversalVal     { return TraversalVal{Kind: KindEdge, Edge: e} }
func VectorVal(v *storage.HVector) TraversalVal { return TraversalVal{Kind: KindVector, Vector: v} }
func CountVal(c int) TraversalVal              { return TraversalVal{Kind: KindCount, Count: c} }
func PathVal(p *storage.Path) TraversalVal     { return TraversalVal{Kind: KindPath, Path: p} }
func ValueVal(v storage.Value) TraversalVal    { return TraversalVal{Kind: KindValue, Val: v} }

// Native unwraps a TraversalVal to a plain Go value for a JSON
// response body.
func (t TraversalVal) Native() any {
	switch t.Kind {
	case KindNode:
		return t.Node
	case KindEdge:
		return t.Edge
	case KindVector:
		return t.Vector
	case KindCount:
		return t.Count
	case KindPath:
		return t.Path
	case KindValue:
		return t.Val.Native()
	default:
		return nil
	}
}

// ToValue coerces a TraversalVal into a storage.Value, used by
// collect_to_val.
func (t TraversalVal) ToValue() storage.Value {
	switch t.Kind {
	case KindValue:
		return t.Val
	case KindCount:
		return storage.Int(int64(t.Count))
	case KindNode:
		return storage.Str(t.Node.ID.String())
	case KindEdge:
		return storage.Str(t.Edge.ID.String())
	case KindVector:
		return storage.Str(t.Vector.ID.String())
	default:
		return storage.Null()
	}
}

// dedupKey identifies a TraversalVal for the purposes of Dedup()/
// CollectDedup(): entity-kind values dedup by id, everything else by
// its native Go value's formatted form.
func (t TraversalVal) dedupKey() string {
	switch t.Kind {
	case KindNode:
		return "n:" + t.Node.ID.String()
	case KindEdge:
		return "e:" + t.Edge.ID.String()
	case KindVector:
		return "v:" + t.Vector.ID.String()
	default:
		return fmt.Sprintf("%T:%v", t.Native(), t.Native())
	}
}

// Item is one element of a traversal stream: either a value or an
// error, never both.
type Item struct {
	Val TraversalVal
	Err error
}

// Producer is a push-style, cancellable generator: it calls emit once
// per item, stopping early if emit returns false. Nothing in a
// pipeline runs until a terminal collector invokes the outermost
// Producer, which is what makes step chaining lazy.
type Producer func(emit func(Item) bool)

func fromItems(items []Item) Producer {
	return func(emit func(Item) bool) {
		for _, it := range items {
			if !emit(it) {
				return
			}
		}
	}
}

func fromVals(vals []TraversalVal) Producer {
	items := make([]Item, len(vals))
	for i, v := range vals {
		items[i] = Item{Val: v}
	}
	return fromItems(items)
}

func errProducer(err error) Producer {
	return func(emit func(Item) bool) { emit(Item{Err: err}) }
}

func nodeVals(nodes []*storage.Node) []TraversalVal {
	out := make([]TraversalVal, len(nodes))
	for i, n := range nodes {
		out[i] = NodeVal(n)
	}
	return out
}

func edgeVals(edges []*storage.Edge) []TraversalVal {
	out := make([]TraversalVal, len(edges))
	for i, e := range edges {
		out[i] = EdgeVal(e)
	}
	return out
}

// stepFn transforms one upstream item, calling emit zero or more
// times, and returns whether the upstream producer should keep going.
type stepFn func(in Item, emit func(Item) bool) bool

// chain wraps src with step, giving step the chance to stop the whole
// pipeline early (e.g. Range's upper bound) without upstream running
// to completion first.
func chain(src Producer, step stepFn) Producer {
	return func(emit func(Item) bool) {
		cont := true
		src(func(it Item) bool {
			if !cont {
				return false
			}
			cont = step(it, emit)
			return cont
		})
	}
}
