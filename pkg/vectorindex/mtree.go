package vectorindex

import (
	"sort"
	"sync"

	"github.com/orneryd/iqe/pkg/dberr"
	"github.com/orneryd/iqe/pkg/thing"
)

// MTreeResult is one (doc-id, distance) pair from an MTree k-NN search.
type MTreeResult struct {
	DocId    thing.DocId
	Distance float64
}

// MTreeSession is a per-IndexRef handle over a metric-tree index: exact
// k-NN search over vectors keyed by a dense doc-id, plus the doc-id map
// needed to resolve results back to Things (spec.md §3's MtEntry).
//
// Grounded on pkg/search/vector_index.go's VectorIndex: same
// add/brute-force-search/RWMutex shape, generalised from a fixed cosine
// similarity to any DistanceFunc since MTree sessions in spec.md are
// distance-parametrised per index definition.
type MTreeSession struct {
	mu       sync.RWMutex
	dim      int
	dist     DistanceFunc
	vectors  map[thing.DocId][]float64
	docOf    map[thing.Thing]thing.DocId
	thingOf  map[thing.DocId]thing.Thing
	nextID   thing.DocId
}

// NewMTreeSession creates an empty MTree session for the given dimension
// and distance function.
func NewMTreeSession(dim int, dist DistanceFunc) *MTreeSession {
	return &MTreeSession{
		dim:     dim,
		dist:    dist,
		vectors: map[thing.DocId][]float64{},
		docOf:   map[thing.Thing]thing.DocId{},
		thingOf: map[thing.DocId]thing.Thing{},
	}
}

// Add indexes (or replaces) the vector for t.
func (s *MTreeSession) Add(t thing.Thing, vec []float64) error {
	if len(vec) != s.dim {
		return dberr.ErrDimensionMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.docOf[t]
	if !ok {
		id = s.nextID
		s.nextID++
		s.docOf[t] = id
		s.thingOf[id] = t
	}
	cp := append([]float64{}, vec...)
	s.vectors[id] = cp
	return nil
}

// GetDocID resolves a Thing's DocId, mirroring ftindex's doc-id map.
func (s *MTreeSession) GetDocID(t thing.Thing) (thing.DocId, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.docOf[t]
	return id, ok
}

// ThingOf resolves a DocId back to its Thing.
func (s *MTreeSession) ThingOf(id thing.DocId) (thing.Thing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.thingOf[id]
	return t, ok
}

// KnnSearch runs an exact brute-force k-NN search, run once at plan attach
// and stored on the MtEntry (spec.md §4.1: "obtain or create an MTree
// session, run knn_search once, store result").
func (s *MTreeSession) KnnSearch(query []float64, k int) ([]MTreeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MTreeResult, 0, len(s.vectors))
	for id, vec := range s.vectors {
		d, err := s.dist(query, vec)
		if err != nil {
			return nil, err
		}
		out = append(out, MTreeResult{DocId: id, Distance: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		// Deterministic tiebreak by DocId, analogous to Thing ordering
		// (spec.md I4) when distances collide.
		return out[i].DocId < out[j].DocId
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}
