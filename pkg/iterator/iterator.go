// Package iterator implements the Thing Iterator family from spec.md §4.2:
// a tagged sum of lazy, forward-only, non-restartable, single-consumer
// cursors over record identifiers, sharing one Next(ctx, limit) contract.
//
// Modelled as a tagged sum (one Kind plus per-variant fields) rather than
// an interface with many implementations, per spec.md §9's design note, so
// the query executor can inspect and explain a plan without type-asserting
// through a trait-object-shaped abstraction. Grounded on
// pkg/storage/badger.go's key-prefix-scan idioms (labelIndexKey/
// labelIndexPrefix, outgoingIndexKey/outgoingIndexPrefix) generalised from
// fixed node/edge prefixes to the catalogue's per-index KeyBase.
package iterator

import (
	"context"
	"sort"

	"github.com/orneryd/iqe/pkg/kvt"
	"github.com/orneryd/iqe/pkg/thing"
)

// Kind discriminates the ThingIterator variants of spec.md §4.2.
type Kind int

const (
	KindIndexEqual Kind = iota
	KindUniqueEqual
	KindIndexRange
	KindUniqueRange
	KindIndexUnion
	KindUniqueUnion
	KindIndexJoin
	KindUniqueJoin
	KindMatches
	KindKnn
	KindThings
)

func (k Kind) String() string {
	switch k {
	case KindIndexEqual:
		return "IndexEqual"
	case KindUniqueEqual:
		return "UniqueEqual"
	case KindIndexRange:
		return "IndexRange"
	case KindUniqueRange:
		return "UniqueRange"
	case KindIndexUnion:
		return "IndexUnion"
	case KindUniqueUnion:
		return "UniqueUnion"
	case KindIndexJoin:
		return "IndexJoin"
	case KindUniqueJoin:
		return "UniqueJoin"
	case KindMatches:
		return "Matches"
	case KindKnn:
		return "Knn"
	case KindThings:
		return "Things"
	default:
		return "Unknown"
	}
}

// ThingIterator is the tagged-sum iterator type. Exactly one of the
// per-variant fields is populated, selected by Kind. Iterators are
// forward-only: calling Next after it has returned an empty slice yields
// an empty slice again (idempotent exhaustion, never an error).
type ThingIterator struct {
	Kind Kind

	equal   *equalState
	rang    *rangeState
	union   *unionState
	join    *joinState
	matches *matchesState
	knn     *knnState
	things  *thingsState
}

// Next pulls up to limit Things. An empty result (with nil error) means the
// iterator is exhausted. Errors from the underlying store are surfaced
// unchanged, per spec.md §4.2.
func (it *ThingIterator) Next(ctx context.Context, limit int) ([]thing.Thing, error) {
	switch it.Kind {
	case KindIndexEqual, KindUniqueEqual:
		return it.equal.next(ctx, limit)
	case KindIndexRange, KindUniqueRange:
		return it.rang.next(ctx, limit)
	case KindIndexUnion, KindUniqueUnion:
		return it.union.next(ctx, limit)
	case KindIndexJoin, KindUniqueJoin:
		return it.join.next(ctx, limit)
	case KindMatches:
		return it.matches.next(ctx, limit)
	case KindKnn:
		return it.knn.next(ctx, limit)
	case KindThings:
		return it.things.next(ctx, limit)
	default:
		return nil, nil
	}
}

// --- IndexEqual / UniqueEqual -------------------------------------------------

type equalState struct {
	tx     kvt.Transaction
	base   kvt.KeyBase
	value  any
	unique bool
	done   bool
	fromKey []byte
	toKey   []byte
}

// NewIndexEqual builds an equal-scan iterator over a (possibly) non-unique
// index: every key under base.EqualKey(value)+tiebreaker is returned.
func NewIndexEqual(tx kvt.Transaction, base kvt.KeyBase, value any) *ThingIterator {
	return &ThingIterator{Kind: KindIndexEqual, equal: &equalState{tx: tx, base: base, value: value, fromKey: base.EqualKey(value)}}
}

// NewUniqueEqual builds an equal-scan iterator over a unique index: at most
// one Thing is ever returned.
func NewUniqueEqual(tx kvt.Transaction, base kvt.KeyBase, value any) *ThingIterator {
	return &ThingIterator{Kind: KindUniqueEqual, equal: &equalState{tx: tx, base: base, value: value, unique: true, fromKey: base.EqualKey(value)}}
}

func (s *equalState) next(ctx context.Context, limit int) ([]thing.Thing, error) {
	if s.done {
		return nil, nil
	}
	if s.unique {
		s.done = true
		v, ok, err := s.tx.Get(ctx, s.fromKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		t, ok := kvt.DecodeThing(v)
		if !ok {
			return nil, nil
		}
		return []thing.Thing{t}, nil
	}

	// Non-unique: scan the half-open range [equalKey, equalKey+0xFF×9) which
	// covers equalKey itself plus every 8-byte tiebreaker-suffixed variant,
	// but stops before the next distinct encoded value. The upper bound is
	// fixed on the first call so re-arming fromKey does not move it.
	if s.toKey == nil {
		s.toKey = append(append([]byte{}, s.fromKey...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	}
	kvs, err := s.tx.Range(ctx, s.fromKey, s.toKey, limit)
	if err != nil {
		return nil, err
	}
	s.done = true // Range already drains everything up to limit in one call.
	out := make([]thing.Thing, 0, len(kvs))
	for _, kv := range kvs {
		if t, ok := kvt.DecodeThing(kv.Value); ok {
			out = append(out, t)
		}
	}
	if len(kvs) == limit && limit > 0 {
		// More might remain; re-arm from the last key seen.
		s.done = false
		s.fromKey = append(append([]byte{}, kvs[len(kvs)-1].Key...), 0x00)
	}
	return out, nil
}

// --- IndexRange / UniqueRange -------------------------------------------------

type rangeState struct {
	tx   kvt.Transaction
	from []byte
	to   []byte
	done bool
}

// NewIndexRange/NewUniqueRange build an ordered scan between two
// RangeValues, honouring inclusive-start/end flags (spec.md §4.2). A
// degenerate range (from > to) naturally yields nothing.
func NewIndexRange(tx kvt.Transaction, base kvt.KeyBase, fromVal any, fromIncl bool, toVal any, toIncl bool) *ThingIterator {
	from, to := base.RangeBounds(fromVal, fromIncl, toVal, toIncl)
	return &ThingIterator{Kind: KindIndexRange, rang: &rangeState{tx: tx, from: from, to: to}}
}

func NewUniqueRange(tx kvt.Transaction, base kvt.KeyBase, fromVal any, fromIncl bool, toVal any, toIncl bool) *ThingIterator {
	from, to := base.RangeBounds(fromVal, fromIncl, toVal, toIncl)
	return &ThingIterator{Kind: KindUniqueRange, rang: &rangeState{tx: tx, from: from, to: to}}
}

func (s *rangeState) next(ctx context.Context, limit int) ([]thing.Thing, error) {
	if s.done {
		return nil, nil
	}
	kvs, err := s.tx.Range(ctx, s.from, s.to, limit)
	if err != nil {
		return nil, err
	}
	if len(kvs) == 0 || len(kvs) < limit || limit <= 0 {
		s.done = true
	} else {
		s.from = append(append([]byte{}, kvs[len(kvs)-1].Key...), 0x00)
	}
	out := make([]thing.Thing, 0, len(kvs))
	for _, kv := range kvs {
		if t, ok := kvt.DecodeThing(kv.Value); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- IndexUnion / UniqueUnion -------------------------------------------------

type unionState struct {
	subs []*ThingIterator
	idx  int
}

// NewIndexUnion/NewUniqueUnion build an ordered concatenation of per-value
// equal scans, input order preserved, no deduplication — see SPEC_FULL's
// supplemented-features note resolving spec.md §9's Union open question.
func NewIndexUnion(tx kvt.Transaction, base kvt.KeyBase, values []any) *ThingIterator {
	subs := make([]*ThingIterator, len(values))
	for i, v := range values {
		subs[i] = NewIndexEqual(tx, base, v)
	}
	return &ThingIterator{Kind: KindIndexUnion, union: &unionState{subs: subs}}
}

func NewUniqueUnion(tx kvt.Transaction, base kvt.KeyBase, values []any) *ThingIterator {
	subs := make([]*ThingIterator, len(values))
	for i, v := range values {
		subs[i] = NewUniqueEqual(tx, base, v)
	}
	return &ThingIterator{Kind: KindUniqueUnion, union: &unionState{subs: subs}}
}

func (s *unionState) next(ctx context.Context, limit int) ([]thing.Thing, error) {
	out := make([]thing.Thing, 0, limit)
	for s.idx < len(s.subs) {
		remaining := limit
		if remaining > 0 {
			remaining -= len(out)
			if remaining <= 0 {
				break
			}
		}
		batch, err := s.subs[s.idx].Next(ctx, remaining)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			s.idx++
			continue
		}
		out = append(out, batch...)
	}
	return out, nil
}

// --- IndexJoin / UniqueJoin ----------------------------------------------------

// Prober answers, for one Thing, whether it satisfies an inner join
// condition — a single cheap point lookup, never a full index drain. This
// is the mechanism spec.md §4.2 describes as "for each outer row, an inner
// equal iterator is opened using the outer row's join value", and what
// spec.md §9 means by allocating inner iterators "lazily to cap open
// cursors": there is never more than one key lookup in flight per outer
// row per inner condition, regardless of how large the inner index is.
type Prober func(ctx context.Context, t thing.Thing) (bool, error)

// EqualProber builds a Prober testing whether t is the (or a) Thing stored
// under base's key for value, without draining the index: a unique index
// does one Get-and-compare against its single key per value; a non-unique
// index does one Exists check against the specific (value, t) tiebreaker
// key, which encodes the pair directly (pkg/kvt/keys.go's TieBreakerKey).
func EqualProber(tx kvt.Transaction, base kvt.KeyBase, value any, unique bool) Prober {
	if unique {
		key := base.EqualKey(value)
		return func(ctx context.Context, t thing.Thing) (bool, error) {
			v, ok, err := tx.Get(ctx, key)
			if err != nil || !ok {
				return false, err
			}
			got, ok := kvt.DecodeThing(v)
			return ok && got == t, nil
		}
	}
	return func(ctx context.Context, t thing.Thing) (bool, error) {
		return tx.Exists(ctx, base.TieBreakerKey(value, t))
	}
}

// UnionProber builds a Prober that is true if t satisfies EqualProber for
// any of values, short-circuiting on the first match.
func UnionProber(tx kvt.Transaction, base kvt.KeyBase, values []any, unique bool) Prober {
	probers := make([]Prober, len(values))
	for i, v := range values {
		probers[i] = EqualProber(tx, base, v, unique)
	}
	return func(ctx context.Context, t thing.Thing) (bool, error) {
		for _, p := range probers {
			ok, err := p(ctx, t)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// JoinProber builds a Prober for a nested Join used as another join's inner
// condition: true only if t satisfies every one of probers.
func JoinProber(probers []Prober) Prober {
	return func(ctx context.Context, t thing.Thing) (bool, error) {
		for _, p := range probers {
			ok, err := p(ctx, t)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

type joinState struct {
	outer  *ThingIterator
	inners []Prober
	done   bool
}

// NewIndexJoin/NewUniqueJoin build a nested-loop join: outer is streamed row
// by row, and for each outer row, every inner Prober is consulted with a
// single point lookup keyed on that row — never a full inner-index drain
// (spec.md §4.2's per-outer-row model, spec.md §9's lazy-cursor-cap note).
// Empty outer (outer == nil) yields empty output.
func NewIndexJoin(outer *ThingIterator, inners []Prober) *ThingIterator {
	return newJoin(KindIndexJoin, outer, inners)
}

func NewUniqueJoin(outer *ThingIterator, inners []Prober) *ThingIterator {
	return newJoin(KindUniqueJoin, outer, inners)
}

func newJoin(kind Kind, outer *ThingIterator, inners []Prober) *ThingIterator {
	if outer == nil {
		return &ThingIterator{Kind: kind, join: &joinState{done: true}}
	}
	return &ThingIterator{Kind: kind, join: &joinState{outer: outer, inners: inners}}
}

func (s *joinState) next(ctx context.Context, limit int) ([]thing.Thing, error) {
	if s.done || s.outer == nil {
		return nil, nil
	}
	out := make([]thing.Thing, 0, limit)
	for {
		want := limit
		if want > 0 {
			want -= len(out)
			if want <= 0 {
				break
			}
		}
		batch, err := s.outer.Next(ctx, want)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			s.done = true
			break
		}
		for _, t := range batch {
			keep := true
			for _, p := range s.inners {
				ok, err := p(ctx, t)
				if err != nil {
					return nil, err
				}
				if !ok {
					keep = false
					break
				}
			}
			if keep {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// --- Matches --------------------------------------------------------------

type matchesState struct {
	things []thing.Thing
	idx    int
}

// NewMatches builds an iterator over the FT postings: Things corresponding
// to doc-ids present in every query-term posting set (sorted intersection).
// If any term has no postings, the result is empty, per spec.md §4.2.
func NewMatches(termPostings [][]thing.DocId, resolve func(thing.DocId) (thing.Thing, bool)) *ThingIterator {
	ids := intersectSortedPostings(termPostings)
	out := make([]thing.Thing, 0, len(ids))
	for _, id := range ids {
		if t, ok := resolve(id); ok {
			out = append(out, t)
		}
	}
	return &ThingIterator{Kind: KindMatches, matches: &matchesState{things: out}}
}

func intersectSortedPostings(termPostings [][]thing.DocId) []thing.DocId {
	if len(termPostings) == 0 {
		return nil
	}
	for _, p := range termPostings {
		if len(p) == 0 {
			return nil
		}
	}
	sets := make([]map[thing.DocId]bool, len(termPostings))
	for i, p := range termPostings {
		m := make(map[thing.DocId]bool, len(p))
		for _, id := range p {
			m[id] = true
		}
		sets[i] = m
	}
	var out []thing.DocId
	for _, id := range termPostings[0] {
		in := true
		for _, m := range sets[1:] {
			if !m[id] {
				in = false
				break
			}
		}
		if in {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *matchesState) next(_ context.Context, limit int) ([]thing.Thing, error) {
	if s.idx >= len(s.things) {
		return nil, nil
	}
	end := len(s.things)
	if limit > 0 && s.idx+limit < end {
		end = s.idx + limit
	}
	out := s.things[s.idx:end]
	s.idx = end
	return out, nil
}

// --- Knn (DocIds) -----------------------------------------------------------

type knnState struct {
	things []thing.Thing
	idx    int
}

// NewKnn wraps a pre-materialised doc-id list (in MTree result order) plus
// a doc-id to Thing resolver (spec.md §4.2).
func NewKnn(docIds []thing.DocId, resolve func(thing.DocId) (thing.Thing, bool)) *ThingIterator {
	out := make([]thing.Thing, 0, len(docIds))
	for _, id := range docIds {
		if t, ok := resolve(id); ok {
			out = append(out, t)
		}
	}
	return &ThingIterator{Kind: KindKnn, knn: &knnState{things: out}}
}

func (s *knnState) next(_ context.Context, limit int) ([]thing.Thing, error) {
	if s.idx >= len(s.things) {
		return nil, nil
	}
	end := len(s.things)
	if limit > 0 && s.idx+limit < end {
		end = s.idx + limit
	}
	out := s.things[s.idx:end]
	s.idx = end
	return out, nil
}

// --- Things -----------------------------------------------------------------

type thingsState struct {
	things []thing.Thing
	idx    int
}

// NewThings wraps a pre-materialised Thing list (HNSW output).
func NewThings(things []thing.Thing) *ThingIterator {
	return &ThingIterator{Kind: KindThings, things: &thingsState{things: things}}
}

func (s *thingsState) next(_ context.Context, limit int) ([]thing.Thing, error) {
	if s.idx >= len(s.things) {
		return nil, nil
	}
	end := len(s.things)
	if limit > 0 && s.idx+limit < end {
		end = s.idx + limit
	}
	out := s.things[s.idx:end]
	s.idx = end
	return out, nil
}
