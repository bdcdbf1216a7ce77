// Package vectorindex implements the MTree / HNSW Index Sessions of
// spec.md §2.5 and §4.1: per-index handles producing (doc-id, distance) or
// (thing, distance) k-NN result lists.
//
// MTree sessions are grounded on pkg/search/vector_index.go's exact
// brute-force search (the glossary defines MTree as "a metric tree for
// exact k-NN", and the teacher's only exact vector index is the brute-force
// cosine one — same guarantee, different distance function family).
// HNSW sessions are grounded on pkg/search/hnsw_index.go's real multi-layer
// graph implementation, including its dual-mode container/heap bounded
// priority list, which doubles as the grounding pattern for pkg/bfk's
// accumulator (spec.md I4).
package vectorindex

import (
	"math"

	"github.com/orneryd/iqe/pkg/dberr"
)

// DistanceFunc computes a total distance between two equal-length vectors.
// Returns dberr.ErrDimensionMismatch when lengths differ, matching spec.md
// §4.3's "distance functions must be total over the indexed dimensionality;
// dimension mismatch is a typed error".
type DistanceFunc func(a, b []float64) (float64, error)

func checkDims(a, b []float64) error {
	if len(a) != len(b) {
		return dberr.ErrDimensionMismatch
	}
	return nil
}

// Euclidean is the raw L2 distance (not similarity). Grounded on
// pkg/math/vector/similarity.go's EuclideanSimilarity, inverted back to a
// true distance since BFK and MTree/HNSW need distance, not similarity
// (similarity.go returns 1/(1+dist), which spec.md's k-NN ordering cannot
// use directly).
func Euclidean(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Cosine returns a distance derived from cosine similarity: 1 - cos(a,b),
// so 0 means identical direction and 2 means opposite. Grounded on
// pkg/math/vector/similarity.go's CosineSimilarityFloat64.
func Cosine(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - sim, nil
}

// Manhattan is the L1 distance.
func Manhattan(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum, nil
}

// ByName resolves a catalogue.MTreeParams/HnswParams Distance string to a
// DistanceFunc, defaulting to Euclidean.
func ByName(name string) DistanceFunc {
	switch name {
	case "cosine":
		return Cosine
	case "manhattan":
		return Manhattan
	default:
		return Euclidean
	}
}
