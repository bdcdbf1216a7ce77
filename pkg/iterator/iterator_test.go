package iterator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/iqe/pkg/kvt"
	"github.com/orneryd/iqe/pkg/thing"
)

func seedIndex(t *testing.T, tx kvt.Transaction, base kvt.KeyBase, entries map[any][]thing.Thing) {
	t.Helper()
	ctx := context.Background()
	for v, things := range entries {
		for _, th := range things {
			key := base.TieBreakerKey(v, th)
			require.NoError(t, tx.Put(ctx, key, kvt.EncodeThing(th)))
		}
	}
}

func drain(t *testing.T, it *ThingIterator, limit int) []thing.Thing {
	t.Helper()
	ctx := context.Background()
	var out []thing.Thing
	for {
		batch, err := it.Next(ctx, limit)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
	}
	return out
}

func TestIndexEqualScenario(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	base := kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_n"}
	seedIndex(t, tx, base, map[any][]thing.Thing{
		5: {thing.New("t", "1"), thing.New("t", "2")},
		6: {thing.New("t", "3")},
	})

	it := NewIndexEqual(tx, base, 5)
	got := drain(t, it, 0)
	assert.ElementsMatch(t, []thing.Thing{thing.New("t", "1"), thing.New("t", "2")}, got)
}

func TestUniqueEqualAtMostOne(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	base := kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_email"}
	ctx := context.Background()
	require.NoError(t, tx.Put(ctx, base.EqualKey("a@x.com"), kvt.EncodeThing(thing.New("t", "1"))))

	it := NewUniqueEqual(tx, base, "a@x.com")
	got := drain(t, it, 0)
	require.Len(t, got, 1)
	assert.Equal(t, thing.New("t", "1"), got[0])

	miss := NewUniqueEqual(tx, base, "missing@x.com")
	assert.Empty(t, drain(t, miss, 0))
}

func TestIndexRangeHalfOpen(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	base := kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_n"}
	seedIndex(t, tx, base, map[any][]thing.Thing{
		1.0: {thing.New("t", "1")},
		2.0: {thing.New("t", "2")},
		5.0: {thing.New("t", "5")},
		9.0: {thing.New("t", "9")},
	})

	it := NewIndexRange(tx, base, 2.0, true, 9.0, false)
	got := drain(t, it, 0)
	assert.ElementsMatch(t, []thing.Thing{thing.New("t", "2"), thing.New("t", "5")}, got)
}

func TestIndexUnionNoDedup(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	base := kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_n"}
	seedIndex(t, tx, base, map[any][]thing.Thing{
		1: {thing.New("t", "1")},
		2: {thing.New("t", "2")},
	})

	it := NewIndexUnion(tx, base, []any{1, 2, 1})
	got := drain(t, it, 0)
	assert.Len(t, got, 3)
}

func TestIndexJoinIntersection(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	baseA := kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_a"}
	baseB := kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_b"}
	seedIndex(t, tx, baseA, map[any][]thing.Thing{
		1: {thing.New("t", "1"), thing.New("t", "2"), thing.New("t", "3")},
	})
	seedIndex(t, tx, baseB, map[any][]thing.Thing{
		1: {thing.New("t", "2"), thing.New("t", "3"), thing.New("t", "4")},
	})

	outer := NewIndexEqual(tx, baseA, 1)
	inner := EqualProber(tx, baseB, 1, false)
	join := NewIndexJoin(outer, []Prober{inner})
	got := drain(t, join, 0)
	assert.ElementsMatch(t, []thing.Thing{thing.New("t", "2"), thing.New("t", "3")}, got)
}

func TestIndexJoinEmptyIterators(t *testing.T) {
	join := NewIndexJoin(nil, nil)
	assert.Empty(t, drain(t, join, 0))
}

func TestIndexJoinProbesPerOuterRowWithoutDrainingInner(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	baseA := kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_a"}
	baseB := kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_b"}
	seedIndex(t, tx, baseA, map[any][]thing.Thing{
		1: {thing.New("t", "1")},
	})
	// baseB holds many entries under value 1; a correct join only ever
	// probes the single outer row "1", never drains baseB's full postings.
	big := make(map[any][]thing.Thing)
	var bThings []thing.Thing
	for i := 0; i < 500; i++ {
		bThings = append(bThings, thing.New("t", string(rune('a'+i%26))+string(rune('0'+i/26))))
	}
	bThings = append(bThings, thing.New("t", "1"))
	big[1] = bThings
	seedIndex(t, tx, baseB, big)

	outer := NewIndexEqual(tx, baseA, 1)
	inner := EqualProber(tx, baseB, 1, false)
	join := NewIndexJoin(outer, []Prober{inner})
	got := drain(t, join, 0)
	assert.Equal(t, []thing.Thing{thing.New("t", "1")}, got)
}

func TestMatchesIntersectsPostings(t *testing.T) {
	resolve := func(id thing.DocId) (thing.Thing, bool) {
		return thing.New("t", string(rune('0'+int(id)))), true
	}
	postings := [][]thing.DocId{{1, 2, 3}, {2, 3, 4}}
	it := NewMatches(postings, resolve)
	got := drain(t, it, 0)
	assert.ElementsMatch(t, []thing.Thing{thing.New("t", "2"), thing.New("t", "3")}, got)
}

func TestMatchesEmptyWhenAnyTermHasNoPostings(t *testing.T) {
	resolve := func(id thing.DocId) (thing.Thing, bool) { return thing.New("t", "x"), true }
	it := NewMatches([][]thing.DocId{{1, 2}, {}}, resolve)
	assert.Empty(t, drain(t, it, 0))
}

func TestThingsIteratorPaginates(t *testing.T) {
	things := []thing.Thing{thing.New("t", "1"), thing.New("t", "2"), thing.New("t", "3")}
	it := NewThings(things)
	first := drain(t, it, 2)
	assert.Equal(t, things, first)
}

func TestExhaustedIteratorIsIdempotent(t *testing.T) {
	it := NewThings([]thing.Thing{thing.New("t", "1")})
	ctx := context.Background()
	batch, err := it.Next(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, batch, 1)

	again, err := it.Next(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, again)

	onceMore, err := it.Next(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, onceMore)
}
