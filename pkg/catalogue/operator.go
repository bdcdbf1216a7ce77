package catalogue

import (
	"fmt"

	"github.com/orneryd/iqe/pkg/thing"
)

// Value is an opaque, comparable record field value. The executor never
// interprets it beyond encoding it into an index key or comparing it for
// equality/ordering; the scan driver and analyzer are the only external
// collaborators that know its concrete shape (out of scope here, per
// spec.md §1).
type Value = any

// OperatorKind discriminates the IndexOperator variants recognised in
// spec.md §4.1.
type OperatorKind int

const (
	OpEquality OperatorKind = iota
	OpExactness
	OpUnion
	OpRange
	OpJoin
	OpMatches
	OpKnn
	OpAnn
)

// RangeValue is one bound of a Range operator: a value plus whether that
// bound is inclusive.
type RangeValue struct {
	Value     Value
	Inclusive bool
}

// IndexOperator is the predicate half of an IndexOption: what comparison is
// being asked of the index named by the option's IndexRef.
type IndexOperator struct {
	Kind OperatorKind

	// Equality / Exactness
	Value Value

	// Union
	Values []Value

	// Range
	From RangeValue
	To   RangeValue

	// Join
	Joins []IndexOption

	// Matches
	Query    string
	MatchRef *thing.MatchRef

	// Knn (MTree) / Ann (HNSW)
	Vector []float64
	K      int  // Knn
	N      int  // Ann result count
	Ef     int  // Ann: per-query ef override (see SPEC_FULL supplemented features #3)
}

// Equality builds an Equality(v) operator.
func Equality(v Value) IndexOperator { return IndexOperator{Kind: OpEquality, Value: v} }

// Exactness builds an Exactness(v) operator.
func Exactness(v Value) IndexOperator { return IndexOperator{Kind: OpExactness, Value: v} }

// Union builds a Union([v...]) operator.
func Union(vs []Value) IndexOperator { return IndexOperator{Kind: OpUnion, Values: vs} }

// Range builds a Range(from, to) operator.
func Range(from, to RangeValue) IndexOperator {
	return IndexOperator{Kind: OpRange, From: from, To: to}
}

// Join builds a Join([IndexOption...]) operator.
func Join(opts []IndexOption) IndexOperator { return IndexOperator{Kind: OpJoin, Joins: opts} }

// Matches builds a Matches(query, ref?) operator.
func Matches(query string, ref *thing.MatchRef) IndexOperator {
	return IndexOperator{Kind: OpMatches, Query: query, MatchRef: ref}
}

// Knn builds a Knn(vector, k) operator (MTree).
func Knn(vector []float64, k int) IndexOperator {
	return IndexOperator{Kind: OpKnn, Vector: vector, K: k}
}

// Ann builds an Ann(vector, n, ef) operator (HNSW).
func Ann(vector []float64, n, ef int) IndexOperator {
	return IndexOperator{Kind: OpAnn, Vector: vector, N: n, Ef: ef}
}

// IndexOption is a plan-level binding of one predicate: (IndexRef,
// operator). Immutable after plan build (spec.md §3).
type IndexOption struct {
	IxRef thing.IndexRef
	Op    IndexOperator
	// IDPos records which side of the comparison the indexed field sits on,
	// used by the FT "by value" match strategy (spec.md §4.1) to know which
	// side to analyze.
	IDPos IdiomPosition
}

// IdiomPosition records whether the indexed idiom sits on the left or right
// of a matches() comparison.
type IdiomPosition int

const (
	IdiomLeft IdiomPosition = iota
	IdiomRight
)

// Explain renders a structured description of this option, the single-entry
// counterpart of IteratorEntry.Explain for Range entries (spec.md §4.5 /
// SPEC_FULL supplemented feature #4).
func (o IndexOption) Explain(defs []IndexDef) map[string]any {
	e := map[string]any{}
	if int(o.IxRef) < len(defs) {
		e["index"] = defs[o.IxRef].Name
	}
	switch o.Op.Kind {
	case OpEquality:
		e["equality"] = o.Op.Value
	case OpExactness:
		e["exactness"] = o.Op.Value
	case OpUnion:
		e["union"] = o.Op.Values
	case OpRange:
		e["from"] = o.Op.From
		e["to"] = o.Op.To
	case OpJoin:
		joins := make([]map[string]any, 0, len(o.Op.Joins))
		for _, j := range o.Op.Joins {
			joins = append(joins, j.Explain(defs))
		}
		e["join"] = joins
	case OpMatches:
		e["matches"] = o.Op.Query
	case OpKnn:
		e["knn"] = fmt.Sprintf("k=%d", o.Op.K)
	case OpAnn:
		e["ann"] = fmt.Sprintf("n=%d ef=%d", o.Op.N, o.Op.Ef)
	}
	return e
}
