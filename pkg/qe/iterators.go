package qe

import (
	"github.com/orneryd/iqe/pkg/catalogue"
	"github.com/orneryd/iqe/pkg/ftindex"
	"github.com/orneryd/iqe/pkg/iterator"
	"github.com/orneryd/iqe/pkg/kvt"
	"github.com/orneryd/iqe/pkg/thing"
)

func (qe *QueryExecutor) keyBase(def catalogue.IndexDef) kvt.KeyBase {
	return kvt.KeyBase{Namespace: qe.ns, Database: qe.db, Table: def.Table, Index: def.Name}
}

// NewIterator dispatches IteratorEntry(ref) to a concrete ThingIterator,
// spec.md §4.1's iterator construction contract. Returns (nil, false, nil)
// — not an error — when the operator/index pairing isn't one §4.1
// recognises; the driver falls back to a table scan.
func (qe *QueryExecutor) NewIterator(ref thing.IteratorRef) (*iterator.ThingIterator, bool, error) {
	qe.mu.RLock()
	defer qe.mu.RUnlock()
	if int(ref) >= len(qe.itEntries) {
		return nil, false, nil
	}
	entry := qe.itEntries[ref]
	if !entry.Single {
		return qe.newRangeIterator(entry)
	}
	return qe.newSingleIterator(entry.Expression, entry.Option)
}

func (qe *QueryExecutor) newRangeIterator(entry IteratorEntry) (*iterator.ThingIterator, bool, error) {
	def, ok := qe.cat.GetIndexDef(entry.IxRef)
	if !ok {
		return nil, false, nil
	}
	base := qe.keyBase(def)
	switch def.Kind {
	case catalogue.KindIdx:
		return iterator.NewIndexRange(qe.tx, base, entry.From.Value, entry.From.Inclusive, entry.To.Value, entry.To.Inclusive), true, nil
	case catalogue.KindUniq:
		return iterator.NewUniqueRange(qe.tx, base, entry.From.Value, entry.From.Inclusive, entry.To.Value, entry.To.Inclusive), true, nil
	default:
		return nil, false, nil
	}
}

func (qe *QueryExecutor) newSingleIterator(expression string, opt catalogue.IndexOption) (*iterator.ThingIterator, bool, error) {
	def, ok := qe.cat.GetIndexDef(opt.IxRef)
	if !ok {
		return nil, false, nil
	}

	switch opt.Op.Kind {
	case catalogue.OpEquality, catalogue.OpExactness:
		return qe.newIndexIterator(def, opt)
	case catalogue.OpUnion:
		return qe.newUnionIterator(def, opt)
	case catalogue.OpJoin:
		return qe.newJoinIterator(def, opt, 0)
	case catalogue.OpMatches:
		return qe.newSearchIterator(expression)
	case catalogue.OpKnn:
		return qe.newMTreeIterator(expression)
	case catalogue.OpAnn:
		return qe.newHnswIterator(expression)
	default:
		return nil, false, nil
	}
}

// newIndexIterator builds an Equal iterator for Equality/Exactness.
// Exactness is only meaningful for Idx per SPEC_FULL's resolution of
// spec.md §9's first open question (the original source's Uniq match arm
// has no Exactness case at all); Uniq + Exactness therefore falls through
// to the table-scan fallback, matching that asymmetry exactly.
func (qe *QueryExecutor) newIndexIterator(def catalogue.IndexDef, opt catalogue.IndexOption) (*iterator.ThingIterator, bool, error) {
	base := qe.keyBase(def)
	switch def.Kind {
	case catalogue.KindIdx:
		return iterator.NewIndexEqual(qe.tx, base, opt.Op.Value), true, nil
	case catalogue.KindUniq:
		if opt.Op.Kind == catalogue.OpExactness {
			return nil, false, nil
		}
		return iterator.NewUniqueEqual(qe.tx, base, opt.Op.Value), true, nil
	default:
		return nil, false, nil
	}
}

func (qe *QueryExecutor) newUnionIterator(def catalogue.IndexDef, opt catalogue.IndexOption) (*iterator.ThingIterator, bool, error) {
	base := qe.keyBase(def)
	switch def.Kind {
	case catalogue.KindIdx:
		return iterator.NewIndexUnion(qe.tx, base, opt.Op.Values), true, nil
	case catalogue.KindUniq:
		return iterator.NewUniqueUnion(qe.tx, base, opt.Op.Values), true, nil
	default:
		return nil, false, nil
	}
}

// maxJoinDepth bounds build_iterators' recursion over nested Join options
// (spec.md §9's "bound recursion depth" note); Go has no async-recursion
// stack-safety net, so this is an explicit counter rather than a language
// guarantee.
const maxJoinDepth = 8

// newJoinIterator builds the outer (streamed) leg of a Join from
// opt.Op.Joins[0] exactly as a top-level iterator would be built, then
// turns every remaining Joins entry into a Prober (newJoinProber) rather
// than a full iterator: spec.md §4.2 opens each inner condition per outer
// row via a point lookup keyed on that row, and spec.md §9 requires inner
// iterators be allocated lazily to cap open cursors, so only the outer leg
// ever streams — inner conditions are never drained up front.
func (qe *QueryExecutor) newJoinIterator(def catalogue.IndexDef, opt catalogue.IndexOption, depth int) (*iterator.ThingIterator, bool, error) {
	if depth >= maxJoinDepth || len(opt.Op.Joins) == 0 {
		return nil, false, nil
	}

	outerOpt := opt.Op.Joins[0]
	outerDef, ok := qe.cat.GetIndexDef(outerOpt.IxRef)
	if !ok {
		return nil, false, nil
	}
	var (
		outer *iterator.ThingIterator
		got   bool
		err   error
	)
	switch outerOpt.Op.Kind {
	case catalogue.OpEquality, catalogue.OpExactness:
		outer, got, err = qe.newIndexIterator(outerDef, outerOpt)
	case catalogue.OpUnion:
		outer, got, err = qe.newUnionIterator(outerDef, outerOpt)
	case catalogue.OpJoin:
		outer, got, err = qe.newJoinIterator(outerDef, outerOpt, depth+1)
	default:
		got = false
	}
	if err != nil {
		return nil, false, err
	}
	if !got {
		return nil, false, nil
	}

	inners := make([]iterator.Prober, 0, len(opt.Op.Joins)-1)
	for _, inner := range opt.Op.Joins[1:] {
		p, got, err := qe.newJoinProber(inner, depth+1)
		if err != nil {
			return nil, false, err
		}
		if !got {
			return nil, false, nil
		}
		inners = append(inners, p)
	}

	switch def.Kind {
	case catalogue.KindUniq:
		return iterator.NewUniqueJoin(outer, inners), true, nil
	default:
		return iterator.NewIndexJoin(outer, inners), true, nil
	}
}

// newJoinProber builds the Prober for one inner Join condition: a single
// point lookup per probed Thing, never a full index drain. Mirrors
// newIndexIterator/newUnionIterator's Equality/Exactness/Union dispatch and
// recurses into JoinProber for a nested Join used as another join's inner
// condition.
func (qe *QueryExecutor) newJoinProber(opt catalogue.IndexOption, depth int) (iterator.Prober, bool, error) {
	if depth >= maxJoinDepth {
		return nil, false, nil
	}
	def, ok := qe.cat.GetIndexDef(opt.IxRef)
	if !ok {
		return nil, false, nil
	}
	base := qe.keyBase(def)
	unique := def.Kind == catalogue.KindUniq

	switch opt.Op.Kind {
	case catalogue.OpEquality, catalogue.OpExactness:
		if def.Kind != catalogue.KindIdx && def.Kind != catalogue.KindUniq {
			return nil, false, nil
		}
		if unique && opt.Op.Kind == catalogue.OpExactness {
			return nil, false, nil // same Uniq+Exactness asymmetry as newIndexIterator
		}
		return iterator.EqualProber(qe.tx, base, opt.Op.Value, unique), true, nil
	case catalogue.OpUnion:
		if def.Kind != catalogue.KindIdx && def.Kind != catalogue.KindUniq {
			return nil, false, nil
		}
		return iterator.UnionProber(qe.tx, base, opt.Op.Values, unique), true, nil
	case catalogue.OpJoin:
		probers := make([]iterator.Prober, 0, len(opt.Op.Joins))
		for _, inner := range opt.Op.Joins {
			p, got, err := qe.newJoinProber(inner, depth+1)
			if err != nil {
				return nil, false, err
			}
			if !got {
				return nil, false, nil
			}
			probers = append(probers, p)
		}
		if len(probers) == 0 {
			return nil, false, nil
		}
		return iterator.JoinProber(probers), true, nil
	default:
		return nil, false, nil
	}
}

func (qe *QueryExecutor) newSearchIterator(expression string) (*iterator.ThingIterator, bool, error) {
	e, ok := qe.ftEntries[expression]
	if !ok {
		return nil, false, nil
	}
	postings := ftindex.TermPostingLists(e.termsDocs)
	return iterator.NewMatches(postings, e.index.ThingOf), true, nil
}

func (qe *QueryExecutor) newMTreeIterator(expression string) (*iterator.ThingIterator, bool, error) {
	e, ok := qe.mtEntries[expression]
	if !ok {
		return nil, false, nil
	}
	ids := make([]thing.DocId, len(e.results))
	for i, r := range e.results {
		ids[i] = r.DocId
	}
	return iterator.NewKnn(ids, e.session.ThingOf), true, nil
}

func (qe *QueryExecutor) newHnswIterator(expression string) (*iterator.ThingIterator, bool, error) {
	e, ok := qe.hnswEntries[expression]
	if !ok {
		return nil, false, nil
	}
	things := make([]thing.Thing, len(e.results))
	for i, r := range e.results {
		things[i] = r.Thing
	}
	return iterator.NewThings(things), true, nil
}
