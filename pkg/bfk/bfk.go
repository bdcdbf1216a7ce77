// Package bfk implements the Brute-Force Knn Accumulator of spec.md §4.3: a
// two-phase (Collect, Iterate) structure that keeps, per expression, a
// bounded top-k list of (thing, distance) pairs built by scanning every
// candidate row once, then answers membership queries against the frozen
// result during the Iterate phase.
//
// Grounded on pkg/search/hnsw_index.go's hnswDistHeap: the same
// container/heap-backed bounded priority list (there used for ef-bounded
// candidate frontiers), here used as the k-bounded accumulator spec.md's
// I4 invariant requires ("the accumulator never holds more than k
// entries; insertion past a full accumulator evicts the single worst
// entry only when the new entry improves upon it").
package bfk

import (
	"container/heap"
	"sort"

	"github.com/orneryd/iqe/pkg/thing"
)

// IterationStage is the BFK accumulator's two-phase state machine
// (spec.md §4.3): None (not yet attached to any expression), Collect
// (accumulating candidates during the scan), Iterate (frozen, answering
// membership/ordering queries).
type IterationStage int

const (
	StageNone IterationStage = iota
	StageCollect
	StageIterate
)

func (s IterationStage) String() string {
	switch s {
	case StageCollect:
		return "Collect"
	case StageIterate:
		return "Iterate"
	default:
		return "None"
	}
}

// Result is one accumulated (thing, distance) pair, ordered ascending by
// distance once frozen.
type Result struct {
	Thing    thing.Thing
	Distance float64
}

// entry is one heap-held candidate, carrying the thing.Thing.Less
// tiebreak spec.md I4 requires for distance ties.
type entry struct {
	t    thing.Thing
	dist float64
}

// maxHeap keeps the current top-k in a root-is-worst arrangement so a
// single Peek/Pop tells the accumulator whether a new candidate improves
// on the current worst-of-k.
type maxHeap []entry

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	// Larger (worse) tiebreak sorts first so the heap's root remains a
	// deterministic pick among equal distances.
	return h[j].t.Less(h[i].t)
}
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(entry)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Accumulator is one expression's bounded top-k candidate list plus its
// frozen Iterate-phase result set.
type Accumulator struct {
	k       int
	stage   IterationStage
	heap    maxHeap
	frozen  []Result
	present map[thing.Thing]bool
}

// New creates an accumulator bounded to k results (spec.md I4; k<=0 means
// unbounded, collecting every candidate offered).
func New(k int) *Accumulator {
	return &Accumulator{k: k, stage: StageCollect}
}

// Stage reports the accumulator's current phase.
func (a *Accumulator) Stage() IterationStage { return a.stage }

// Offer presents one candidate during the Collect phase. Calling Offer
// after Freeze is a programming error and panics, matching spec.md's
// "the accumulator is single-writer during Collect, single-reader during
// Iterate" non-goal of supporting interleaved phases.
func (a *Accumulator) Offer(t thing.Thing, dist float64) {
	if a.stage != StageCollect {
		panic("bfk: Offer called outside Collect stage")
	}
	if a.k <= 0 {
		heap.Push(&a.heap, entry{t: t, dist: dist})
		return
	}
	if a.heap.Len() < a.k {
		heap.Push(&a.heap, entry{t: t, dist: dist})
		return
	}
	worst := a.heap[0]
	if dist < worst.dist || (dist == worst.dist && t.Less(worst.t)) {
		a.heap[0] = entry{t: t, dist: dist}
		heap.Fix(&a.heap, 0)
	}
}

// Freeze transitions the accumulator from Collect to Iterate, draining
// the heap into an ascending-distance result list (spec.md's
// build_bruteforce_knn_result) and building the membership index used by
// Contains during Iterate.
func (a *Accumulator) Freeze() []Result {
	if a.stage == StageIterate {
		return a.frozen
	}
	items := append(maxHeap{}, a.heap...)
	sort.Slice(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		return items[i].t.Less(items[j].t)
	})
	a.frozen = make([]Result, len(items))
	a.present = make(map[thing.Thing]bool, len(items))
	for i, it := range items {
		a.frozen[i] = Result{Thing: it.t, Distance: it.dist}
		a.present[it.t] = true
	}
	a.stage = StageIterate
	a.heap = nil
	return a.frozen
}

// Results returns the frozen top-k list; empty until Freeze is called.
func (a *Accumulator) Results() []Result { return a.frozen }

// Contains reports whether t is a member of the frozen top-k result,
// spec.md §4.3's Iterate-phase membership test. Calling Contains before
// Freeze always returns false.
func (a *Accumulator) Contains(t thing.Thing) bool {
	if a.stage != StageIterate {
		return false
	}
	return a.present[t]
}

// Len reports how many candidates are currently held (pre-freeze: the
// live heap size, bounded by k; post-freeze: the frozen result size).
func (a *Accumulator) Len() int {
	if a.stage == StageIterate {
		return len(a.frozen)
	}
	return a.heap.Len()
}
