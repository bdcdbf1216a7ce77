// Package thing defines the canonical record identity and the small dense
// handle types the query executor threads everywhere: DocId, IndexRef,
// MatchRef and IteratorRef.
//
// These are value types, freely copied, matching the teacher's NodeID/EdgeID
// string-alias style in pkg/storage/types.go.
package thing

import "fmt"

// Thing is a record identity: (table, id). Comparable, so it can be used as
// a map key and sorted by its natural ordering.
type Thing struct {
	Table string
	ID    string
}

// New builds a Thing.
func New(table, id string) Thing {
	return Thing{Table: table, ID: id}
}

// String renders a Thing the way record ids are conventionally printed,
// e.g. "person:alice".
func (t Thing) String() string {
	return fmt.Sprintf("%s:%s", t.Table, t.ID)
}

// Less gives Things a total order: table first, then id. Used to break
// distance ties deterministically in BFK priority lists (spec.md I4 and
// §4.3).
func (t Thing) Less(o Thing) bool {
	if t.Table != o.Table {
		return t.Table < o.Table
	}
	return t.ID < o.ID
}

// DocId is a dense integer id assigned by an FT/MTree index to each indexed
// document. Only valid under the session that allocated it.
type DocId uint64

// IndexRef is a stable index into the catalogue's definition list. Valid for
// the lifetime of a compiled plan.
type IndexRef uint32

// MatchRef is a user-visible small integer handle tying an `@N@`-annotated
// match occurrence in a query to the predicate that produced it.
type MatchRef uint8

// IteratorRef is a dense handle into the query executor's it_entries list.
type IteratorRef uint16
