package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"

	"github.com/suxatcode/helix-db-sub002/internal/herr"
	"github.com/suxatcode/helix-db-sub002/internal/storage"
)

// Config mirrors storage.VectorConfig plus the distance metric chosen
// at index-open time (spec.md §4.3).
type Config struct {
	M              int
	EfConstruction int
	EfSearch       int
	Metric         Metric
}

// ConfigFromStorage adapts the engine's configured HNSW parameters.
func ConfigFromStorage(vc storage.VectorConfig, metric Metric) Config {
	if metric == nil {
		metric = Cosine
	}
	return Config{M: vc.M, EfConstruction: vc.EfConstruction, EfSearch: vc.EfSearch, Metric: metric}
}

// txnReader is the read surface Index needs; storage.ReadTxn and
// storage.WriteTxn (which embeds it) both satisfy it, so every search
// helper below works unmodified whether called mid-write or read-only.
type txnReader interface {
	GetVector(storage.ID) (*storage.HVector, error)
	GetNeighbors(level uint8, id storage.ID) ([]storage.ID, error)
}

// Index is a client of the same transactional BadgerDB handle the
// graph store uses: every read goes through a storage.ReadTxn, every
// write through a storage.WriteTxn, exactly like any other traversal
// step (spec.md §4.3, "the vector index is a client of the same
// transactional store, not a parallel one").
type Index struct {
	cfg Config
}

// New constructs an Index bound to cfg. It holds no state of its own;
// the graph itself lives entirely in the rows storage.ReadTxn/WriteTxn
// expose (GetNeighbors, EntryPoint, GetVector, ...).
func New(cfg Config) *Index {
	return &Index{cfg: cfg}
}

// Hit is one scored match from Search or BruteForceSearch.
type Hit struct {
	Vector   *storage.HVector
	Distance float64
}

// randomLevel samples an insertion level from the exponential decay
// distribution HNSW construction uses, with decay parameter 1/ln(M)
// (spec.md §4.3, "level sampling").
func (ix *Index) randomLevel() uint8 {
	if ix.cfg.M <= 1 {
		return 0
	}
	lambda := 1.0 / math.Log(float64(ix.cfg.M))
	level := int(-math.Log(rand.Float64()) * lambda)
	if level > 255 {
		level = 255
	}
	return uint8(level)
}

// Insert adds data to the index, returning the freshly stored vector
// record. props are carried through to the stored HVector (e.g. a
// payload the caller wants returned alongside search hits).
func (ix *Index) Insert(w *storage.WriteTxn, data []float32, props map[string]storage.Value) (*storage.HVector, error) {
	id, err := storage.NewID()
	if err != nil {
		return nil, herr.Wrap(herr.KindIO, "mint vector id", err)
	}
	level := ix.randomLevel()
	v := &storage.HVector{ID: id, Level: level, Data: data, Properties: props}
	if err := w.PutVector(v); err != nil {
		return nil, err
	}

	epID, epLevel, ok, err := w.EntryPoint()
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := w.SetEntryPoint(id, level); err != nil {
			return nil, err
		}
		return v, nil
	}

	ep := epID
	for l := epLevel; l > level; l-- {
		next, err := ix.greedyStep(w, data, ep, l)
		if err != nil {
			return nil, err
		}
		ep = next
	}

	top := level
	if epLevel < top {
		top = epLevel
	}
	for l := int(top); l >= 0; l-- {
		candidates, err := ix.searchLayer(w, data, ep, ix.cfg.EfConstruction, uint8(l), nil)
		if err != nil {
			return nil, err
		}
		neighbors := ix.selectNeighbors(data, candidates, ix.cfg.M)
		ids := make([]storage.ID, len(neighbors))
		for i, c := range neighbors {
			ids[i] = c.Vector.ID
		}
		if err := w.SetNeighbors(uint8(l), id, ids); err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if err := ix.link(w, uint8(l), n.Vector, id, data); err != nil {
				return nil, err
			}
		}
		if len(candidates) > 0 {
			ep = candidates[0].Vector.ID
		}
	}

	if level > epLevel {
		if err := w.SetEntryPoint(id, level); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// link adds `id` to neighbor's adjacency list at level, pruning back
// to M entries with the neighbor-selection heuristic when it overflows
// (spec.md §4.3, "bidirectional edges with pruning").
func (ix *Index) link(w *storage.WriteTxn, level uint8, neighbor *storage.HVector, id storage.ID, data []float32) error {
	existing, err := w.GetNeighbors(level, neighbor.ID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e == id {
			return nil
		}
	}
	if len(existing) < ix.cfg.M {
		return w.SetNeighbors(level, neighbor.ID, append(existing, id))
	}

	candidates := make([]Hit, 0, len(existing)+1)
	for _, e := range existing {
		v, err := w.GetVector(e)
		if err != nil {
			continue
		}
		candidates = append(candidates, Hit{Vector: v, Distance: ix.cfg.Metric(neighbor.Data, v.Data)})
	}
	candidates = append(candidates, Hit{Vector: &storage.HVector{ID: id, Data: data}, Distance: ix.cfg.Metric(neighbor.Data, data)})
	pruned := ix.selectNeighbors(neighbor.Data, candidates, ix.cfg.M)
	ids := make([]storage.ID, len(pruned))
	for i, c := range pruned {
		ids[i] = c.Vector.ID
	}
	return w.SetNeighbors(level, neighbor.ID, ids)
}

// greedyStep performs a single descent toward the locally closest
// neighbor of `from` at `level` (spec.md §4.3, "greedy descent").
func (ix *Index) greedyStep(r txnReader, query []float32, from storage.ID, level uint8) (storage.ID, error) {
	cur := from
	curVec, err := r.GetVector(cur)
	if err != nil {
		return from, err
	}
	curDist := ix.cfg.Metric(query, curVec.Data)

	for {
		neighbors, err := r.GetNeighbors(level, cur)
		if err != nil {
			return cur, err
		}
		changed := false
		for _, n := range neighbors {
			v, err := r.GetVector(n)
			if err != nil {
				continue
			}
			d := ix.cfg.Metric(query, v.Data)
			if d < curDist {
				cur, curDist, changed = n, d, true
			}
		}
		if !changed {
			return cur, nil
		}
	}
}

// heapItem is one candidate in a distHeap; isMax switches the heap
// between min-ordering (the candidate frontier) and max-ordering (the
// bounded result set), matching the two-heap best-first search shape
// used throughout the HNSW literature.
type heapItem struct {
	hit   Hit
	isMax bool
}

type distHeap []heapItem

func (h distHeap) Len() int { return len(h) }
func (h distHeap) Less(i, j int) bool {
	if h[i].isMax {
		return h[i].hit.Distance > h[j].hit.Distance
	}
	return h[i].hit.Distance < h[j].hit.Distance
}
func (h distHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x interface{}) {
	*h = append(*h, x.(heapItem))
}
func (h *distHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Predicate filters candidate vectors during search (the "optional
// post-filter predicates" of spec.md §4.3).
type Predicate func(*storage.HVector) bool

// searchLayer is the bounded best-first search HNSW performs within a
// single level (spec.md §4.3), grounded on the teacher's
// searchLayer/hnswDistHeap pair in pkg/search/hnsw_index.go.
func (ix *Index) searchLayer(r txnReader, query []float32, entry storage.ID, ef int, level uint8, filter Predicate) ([]Hit, error) {
	entryVec, err := r.GetVector(entry)
	if err != nil {
		return nil, err
	}
	visited := map[storage.ID]bool{entry: true}

	candidates := &distHeap{}
	heap.Init(candidates)
	results := &distHeap{}
	heap.Init(results)

	entryDist := ix.cfg.Metric(query, entryVec.Data)
	heap.Push(candidates, heapItem{hit: Hit{Vector: entryVec, Distance: entryDist}, isMax: false})
	if filter == nil || filter(entryVec) {
		heap.Push(results, heapItem{hit: Hit{Vector: entryVec, Distance: entryDist}, isMax: true})
	}

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(heapItem).hit

		if results.Len() >= ef {
			furthest := (*results)[0].hit
			if closest.Distance > furthest.Distance {
				break
			}
		}

		neighbors, err := r.GetNeighbors(level, closest.Vector.ID)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			visited[n] = true
			v, err := r.GetVector(n)
			if err != nil {
				continue
			}
			d := ix.cfg.Metric(query, v.Data)
			if results.Len() < ef || d < (*results)[0].hit.Distance {
				heap.Push(candidates, heapItem{hit: Hit{Vector: v, Distance: d}, isMax: false})
				if filter == nil || filter(v) {
					heap.Push(results, heapItem{hit: Hit{Vector: v, Distance: d}, isMax: true})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			}
		}
	}

	out := make([]Hit, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(heapItem).hit
	}
	return out, nil
}

// selectNeighbors implements HNSW's diversity-preferring
// neighbor-selection heuristic (spec.md §4.3): candidates are
// considered nearest-to-query first, and a candidate is discarded if
// an already-selected neighbor lies closer to it than query does,
// since such a candidate would only add a redundant edge rather than
// reach toward a new part of the graph.
func (ix *Index) selectNeighbors(query []float32, candidates []Hit, m int) []Hit {
	sorted := make([]Hit, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })

	selected := make([]Hit, 0, m)
	for _, c := range sorted {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if ix.cfg.Metric(s.Vector.Data, c.Vector.Data) < c.Distance {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		}
	}
	return selected
}

// Search runs the layered HNSW search: greedy descent from the entry
// point down to level 1, then bounded best-first search at level 0
// (spec.md §4.3).
func (ix *Index) Search(r *storage.ReadTxn, query []float32, k int, filter Predicate) ([]Hit, error) {
	epID, epLevel, ok, err := r.EntryPoint()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	ep := epID
	for l := epLevel; l > 0; l-- {
		next, err := ix.greedyStep(r, query, ep, l)
		if err != nil {
			return nil, err
		}
		ep = next
	}

	ef := ix.cfg.EfSearch
	if ef < k {
		ef = k
	}
	hits, err := ix.searchLayer(r, query, ep, ef, 0, filter)
	if err != nil {
		return nil, err
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// BruteForceSearch scores query against every stored vector exactly,
// for recall benchmarking or small collections (spec.md §4.3
// brute_force_search_v) — grounded on the teacher's VectorIndex.Search
// brute-force scan, generalized to the storage-backed vector table and
// a pluggable metric instead of cosine-only.
func (ix *Index) BruteForceSearch(r *storage.ReadTxn, query []float32, k int, filter Predicate) ([]Hit, error) {
	all, err := r.AllVectors()
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(all))
	for _, v := range all {
		if filter != nil && !filter(v) {
			continue
		}
		hits = append(hits, Hit{Vector: v, Distance: ix.cfg.Metric(query, v.Data)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete removes a vector from the index, repairing every level's
// neighbor lists and, if the vector was the entry point, promoting
// another vector in its place.
func (ix *Index) Delete(w *storage.WriteTxn, id storage.ID) error {
	v, err := w.GetVector(id)
	if err != nil {
		return err
	}

	for l := 0; l <= int(v.Level); l++ {
		neighbors, err := w.GetNeighbors(uint8(l), id)
		if err != nil {
			return err
		}
		for _, n := range neighbors {
			peers, err := w.GetNeighbors(uint8(l), n)
			if err != nil {
				continue
			}
			filtered := peers[:0:0]
			for _, p := range peers {
				if p != id {
					filtered = append(filtered, p)
				}
			}
			if err := w.SetNeighbors(uint8(l), n, filtered); err != nil {
				return err
			}
		}
		if err := w.DeleteNeighbors(uint8(l), id); err != nil {
			return err
		}
	}

	epID, epLevel, ok, err := w.EntryPoint()
	if err != nil {
		return err
	}
	if ok && epID == id {
		if err := ix.promoteEntryPoint(w, epLevel); err != nil {
			return err
		}
	}

	return w.DropVector(id)
}

// promoteEntryPoint scans the vectors table for a replacement entry
// point after the current one is deleted. The vectors table is small
// relative to graph traffic in the workloads this index targets, so a
// linear scan here (rather than a dedicated max-level index) keeps the
// on-disk schema simple.
func (ix *Index) promoteEntryPoint(w *storage.WriteTxn, afterLevel uint8) error {
	all, err := w.AllVectors()
	if err != nil {
		return err
	}
	var best *storage.HVector
	for _, v := range all {
		if best == nil || v.Level > best.Level {
			best = v
		}
	}
	if best == nil {
		return w.ClearEntryPoint()
	}
	return w.SetEntryPoint(best.ID, best.Level)
}
