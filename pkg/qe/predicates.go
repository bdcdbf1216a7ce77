package qe

import (
	"context"
	"fmt"

	"github.com/orneryd/iqe/pkg/bfk"
	"github.com/orneryd/iqe/pkg/dberr"
	"github.com/orneryd/iqe/pkg/ftindex"
	"github.com/orneryd/iqe/pkg/thing"
)

// Matches answers the full-text predicate callback of spec.md §4.1.
// Selects between the "by doc-id" and "by value" strategies deterministically:
// by doc-id when the index is defined over the current table (the common
// case, since the record's own DocId can be resolved directly), by value
// otherwise (e.g. the matched value arrived via a join from another table).
func (qe *QueryExecutor) Matches(ctx context.Context, expression string, t thing.Thing, value any) (bool, error) {
	qe.mu.RLock()
	e, ok := qe.ftEntries[expression]
	qe.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("qe: matches: %w", dberr.ErrNoIndexFoundForMatch)
	}

	if def, _ := qe.cat.GetIndexDef(e.option.IxRef); def.Table == qe.table {
		id, found := e.index.GetDocID(t)
		if !found {
			return false, nil
		}
		return e.index.HasPositiveByDocID(id, e.termsList), nil
	}

	// By value: analyze the non-indexed side using the index's analyzer and
	// test subset containment against the query-term set.
	s, isStr := value.(string)
	if !isStr {
		return false, nil
	}
	docSet := e.index.ExtractIndexingTerms(s)
	return ftindex.IsSubset(e.termsSet, docSet), nil
}

// Score computes BM25 for t under matchRef's FT entry, resolving DocId
// from the doc-id map when not supplied (spec.md §4.1). Returns
// (0, false, NoIndexFoundForMatch) when matchRef names no FT entry.
func (qe *QueryExecutor) Score(matchRef thing.MatchRef, t thing.Thing, docID *thing.DocId) (float64, bool, error) {
	qe.mu.RLock()
	expr, ok := qe.matchRefs[matchRef]
	qe.mu.RUnlock()
	if !ok {
		return 0, false, fmt.Errorf("qe: score: %w", dberr.ErrNoIndexFoundForMatch)
	}
	e := qe.ftEntries[expr]
	if e == nil || e.scorer == nil {
		return 0, false, nil
	}
	id := docID
	if id == nil {
		resolved, found := e.index.GetDocID(t)
		if !found {
			return 0, false, nil
		}
		id = &resolved
	}
	score, ok := e.scorer.Score(*id)
	return score, ok, nil
}

// Highlight delegates to the FT index with matchRef's ordered term list
// (spec.md §4.1/§4.4).
func (qe *QueryExecutor) Highlight(t thing.Thing, prefix, suffix string, matchRef thing.MatchRef, partial bool) (string, bool, error) {
	expr, ok := qe.matchRefs[matchRef]
	if !ok {
		return "", false, fmt.Errorf("qe: highlight: %w", dberr.ErrNoIndexFoundForMatch)
	}
	e := qe.ftEntries[expr]
	if e == nil {
		return "", false, nil
	}
	id, found := e.index.GetDocID(t)
	if !found {
		return "", false, nil
	}
	s, ok := e.index.Highlight(id, e.termsList, prefix, suffix, partial)
	return s, ok, nil
}

// Offsets returns positional offsets for matchRef's highlighted terms
// against t (spec.md §4.1/§4.4).
func (qe *QueryExecutor) Offsets(t thing.Thing, matchRef thing.MatchRef, partial bool) ([]ftindex.Offset, bool, error) {
	expr, ok := qe.matchRefs[matchRef]
	if !ok {
		return nil, false, fmt.Errorf("qe: offsets: %w", dberr.ErrNoIndexFoundForMatch)
	}
	e := qe.ftEntries[expr]
	if e == nil {
		return nil, false, nil
	}
	id, found := e.index.GetDocID(t)
	if !found {
		return nil, false, nil
	}
	offs, ok := e.index.ExtractOffsets(id, e.termsList, partial)
	return offs, ok, nil
}

// Knn implements the two-phase brute-force k-NN predicate of spec.md §4.3.
// Phase 1 (stage != Iterate): computes the record's vector via the
// expression's idiom, offers (distance, t) to the bounded accumulator, and
// always returns true (the record stays in the candidate set for later
// filters). Phase 2 (stage == Iterate): answers membership against the
// frozen top-k; an expression with zero accumulated results always
// answers false.
func (qe *QueryExecutor) Knn(expression string, t thing.Thing, doc any) (bool, error) {
	qe.mu.RLock()
	e, ok := qe.bfk[expression]
	stage := qe.stage
	qe.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if stage == bfk.StageIterate {
		if e.acc.Len() == 0 {
			return false, nil
		}
		return e.acc.Contains(t), nil
	}

	vec, err := e.idiom(doc)
	if err != nil {
		return false, err
	}
	dist, err := e.expr(e.vector, vec)
	if err != nil {
		return false, err
	}
	e.acc.Offer(t, dist)
	return true, nil
}
