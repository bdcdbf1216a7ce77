package vectorindex

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/orneryd/iqe/pkg/dberr"
	"github.com/orneryd/iqe/pkg/thing"
)

// HnswConfig mirrors pkg/search/hnsw_index.go's HNSWConfig: the standard
// Malkov/Yashunin parameters.
type HnswConfig struct {
	M               int
	EfConstruction  int
	EfSearch        int
	LevelMultiplier float64
}

// DefaultHnswConfig matches DefaultHNSWConfig in the teacher.
func DefaultHnswConfig() HnswConfig {
	return HnswConfig{
		M:               16,
		EfConstruction:  200,
		EfSearch:        100,
		LevelMultiplier: 1.0 / math.Log(16),
	}
}

type hnswNode struct {
	t         thing.Thing
	vector    []float64
	level     int
	neighbors [][]thing.Thing // per-level neighbor lists
}

// HnswSession is a per-IndexRef handle over a shared HNSW graph, producing
// (thing, distance) k-NN lists (spec.md §3's HnswEntry). Grounded on
// pkg/search/hnsw_index.go: same multi-layer insertion, same
// searchLayer/selectNeighbors structure, same dual-mode heap for bounded
// ef-sized candidate lists, generalised to operate on thing.Thing directly
// rather than a bare string id, since spec.md's Ann operator pre-materialises
// a Thing list, not a doc-id list.
type HnswSession struct {
	mu     sync.RWMutex
	cfg    HnswConfig
	dim    int
	dist   DistanceFunc
	nodes  map[thing.Thing]*hnswNode
	entry  thing.Thing
	hasEntry bool
	maxLevel int
}

// NewHnswSession creates an empty HNSW session.
func NewHnswSession(dim int, dist DistanceFunc, cfg HnswConfig) *HnswSession {
	if cfg.M == 0 {
		cfg = DefaultHnswConfig()
	}
	return &HnswSession{cfg: cfg, dim: dim, dist: dist, nodes: map[thing.Thing]*hnswNode{}}
}

func (s *HnswSession) randomLevel() int {
	r := rand.Float64()
	if r <= 0 {
		r = 1e-12
	}
	level := int(-math.Log(r) * s.cfg.LevelMultiplier)
	return level
}

// Add inserts t into the graph with vector vec, the index *build* path
// spec.md §1 treats as external; present so tests can seed a graph.
func (s *HnswSession) Add(t thing.Thing, vec []float64) error {
	if len(vec) != s.dim {
		return dberr.ErrDimensionMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	level := s.randomLevel()
	node := &hnswNode{t: t, vector: append([]float64{}, vec...), level: level, neighbors: make([][]thing.Thing, level+1)}
	s.nodes[t] = node

	if !s.hasEntry {
		s.entry = t
		s.hasEntry = true
		s.maxLevel = level
		return nil
	}

	cur := s.entry
	for lc := s.maxLevel; lc > level; lc-- {
		cur = s.searchLayerSingle(vec, cur, lc)
	}

	for lc := minInt(level, s.maxLevel); lc >= 0; lc-- {
		candidates, err := s.searchLayer(vec, cur, s.cfg.EfConstruction, lc)
		if err != nil {
			return err
		}
		neighbors := s.selectNeighbors(candidates, s.cfg.M)
		node.neighbors[lc] = neighbors
		for _, nb := range neighbors {
			nbNode := s.nodes[nb]
			if nbNode == nil || lc > nbNode.level {
				continue
			}
			reCandidates, err := s.asCandidates(nbNode.vector, nbNode.neighbors[lc])
			if err != nil {
				return err
			}
			newDist, err := s.dist(nbNode.vector, vec)
			if err != nil {
				return err
			}
			reCandidates = append(reCandidates, candidate{t: t, dist: newDist})
			nbNode.neighbors[lc] = s.selectNeighbors(reCandidates, s.cfg.M)
		}
		if len(candidates) > 0 {
			cur = candidates[0].t
		}
	}

	if level > s.maxLevel {
		s.maxLevel = level
		s.entry = t
	}
	return nil
}

type candidate struct {
	t    thing.Thing
	dist float64
}

// asCandidates recomputes true distances from ref to each of ts, used when
// re-optimizing an existing node's neighbor list after a new insertion
// changes what its best M neighbors are.
func (s *HnswSession) asCandidates(ref []float64, ts []thing.Thing) ([]candidate, error) {
	out := make([]candidate, 0, len(ts))
	for _, t := range ts {
		n, ok := s.nodes[t]
		if !ok {
			continue
		}
		d, err := s.dist(ref, n.vector)
		if err != nil {
			return nil, err
		}
		out = append(out, candidate{t: t, dist: d})
	}
	return out, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// searchLayerSingle greedily walks down to the single nearest neighbor at
// layer lc, used while descending from the entry point's top level.
func (s *HnswSession) searchLayerSingle(query []float64, start thing.Thing, lc int) thing.Thing {
	best := start
	bestDist, _ := s.dist(query, s.nodes[start].vector)
	improved := true
	for improved {
		improved = false
		node := s.nodes[best]
		if node == nil || lc >= len(node.neighbors) {
			break
		}
		for _, nb := range node.neighbors[lc] {
			nbNode := s.nodes[nb]
			if nbNode == nil {
				continue
			}
			d, _ := s.dist(query, nbNode.vector)
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
	}
	return best
}

// searchLayer runs an ef-bounded bidirectional search at layer lc, the same
// two-heap (candidates min-heap, results max-heap) shape as
// hnsw_index.go's searchLayer.
func (s *HnswSession) searchLayer(query []float64, start thing.Thing, ef int, lc int) ([]candidate, error) {
	visited := map[thing.Thing]bool{start: true}
	d0, err := s.dist(query, s.nodes[start].vector)
	if err != nil {
		return nil, err
	}

	candidates := &distHeap{isMax: false}
	heap.Push(candidates, distItem{t: start, dist: d0})
	results := &distHeap{isMax: true}
	heap.Push(results, distItem{t: start, dist: d0})

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(distItem)
		if results.Len() >= ef {
			worst := results.items[0]
			if c.dist > worst.dist {
				break
			}
		}
		node := s.nodes[c.t]
		if node == nil || lc >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[lc] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode := s.nodes[nb]
			if nbNode == nil {
				continue
			}
			d, err := s.dist(query, nbNode.vector)
			if err != nil {
				return nil, err
			}
			if results.Len() < ef {
				heap.Push(candidates, distItem{t: nb, dist: d})
				heap.Push(results, distItem{t: nb, dist: d})
			} else if d < results.items[0].dist {
				heap.Push(candidates, distItem{t: nb, dist: d})
				heap.Push(results, distItem{t: nb, dist: d})
				heap.Pop(results)
			}
		}
	}

	out := make([]candidate, 0, results.Len())
	for _, it := range results.items {
		out = append(out, candidate{t: it.t, dist: it.dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out, nil
}

func (s *HnswSession) selectNeighbors(candidates []candidate, m int) []thing.Thing {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]thing.Thing, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.t)
	}
	return out
}

// HnswResult is one (thing, distance) pair from an HNSW ANN search.
type HnswResult struct {
	Thing    thing.Thing
	Distance float64
}

// KnnSearch runs an approximate k-NN search for n neighbors with the given
// ef (the per-query override named in SPEC_FULL's supplemented feature #3,
// resolving spec.md §9's HNSW ef open question).
func (s *HnswSession) KnnSearch(query []float64, n, ef int) ([]HnswResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasEntry {
		return nil, nil
	}
	if ef <= 0 {
		ef = s.cfg.EfSearch
	}
	if ef < n {
		ef = n
	}

	cur := s.entry
	for lc := s.maxLevel; lc > 0; lc-- {
		cur = s.searchLayerSingle(query, cur, lc)
	}
	candidates, err := s.searchLayer(query, cur, ef, 0)
	if err != nil {
		return nil, err
	}
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]HnswResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, HnswResult{Thing: c.t, Distance: c.dist})
	}
	return out, nil
}

// Size returns the number of indexed vectors.
func (s *HnswSession) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// distItem is one entry in a distHeap.
type distItem struct {
	t    thing.Thing
	dist float64
}

// distHeap is a container/heap-backed priority list that acts as either a
// min-heap (isMax=false, smallest distance first — used for the candidate
// frontier) or a max-heap (isMax=true, largest distance first — used for
// the bounded result set so the worst current result is always at the
// root for eviction). Copied verbatim in spirit from
// pkg/search/hnsw_index.go's hnswDistHeap; this dual-mode shape is also the
// grounding pattern for pkg/bfk's bounded priority list (spec.md I4).
type distHeap struct {
	items []distItem
	isMax bool
}

func (h distHeap) Len() int { return len(h.items) }
func (h distHeap) Less(i, j int) bool {
	if h.isMax {
		return h.items[i].dist > h.items[j].dist
	}
	return h.items[i].dist < h.items[j].dist
}
func (h distHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *distHeap) Push(x any)   { h.items = append(h.items, x.(distItem)) }
func (h *distHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}
