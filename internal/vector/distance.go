// Package vector implements the HNSW approximate nearest-neighbor
// index HelixDB keeps alongside its graph store (spec.md §4.3).
//
// Package vector generalizes the teacher's pkg/search/{hnsw_index,
// vector_index}.go: same layered-graph construction and brute-force
// fallback, rewritten to operate over storage.ID and the same
// transactional BadgerDB handle the graph uses, with a selectable
// distance metric instead of the teacher's cosine-only
// github.com/orneryd/nornicdb/pkg/math/vector helpers (dropped since
// nothing else in this module needs that package — see DESIGN.md).
package vector

import "math"

// Metric computes a distance between two equal-length vectors; lower
// is closer. Both metrics Index supports operate on raw vectors, not
// pre-normalized ones; Cosine divides by both norms itself.
type Metric func(a, b []float32) float64

// Cosine returns 1 - cosine_similarity(a, b), in [0, 2].
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - sim
}

// Euclidean returns the L2 distance between a and b.
func Euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MetricByName resolves a metric name ("cosine" or empty, "euclidean"
// or "l2"); the config file has no field that selects a metric.
func MetricByName(name string) (Metric, bool) {
	switch name {
	case "", "cosine":
		return Cosine, true
	case "euclidean", "l2":
		return Euclidean, true
	default:
		return nil, false
	}
}
