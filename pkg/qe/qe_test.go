package qe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/iqe/pkg/bfk"
	"github.com/orneryd/iqe/pkg/catalogue"
	"github.com/orneryd/iqe/pkg/dberr"
	"github.com/orneryd/iqe/pkg/ftindex"
	"github.com/orneryd/iqe/pkg/kvt"
	"github.com/orneryd/iqe/pkg/thing"
)

func seed(t *testing.T, tx kvt.Transaction, base kvt.KeyBase, entries map[any][]thing.Thing) {
	t.Helper()
	ctx := context.Background()
	for v, things := range entries {
		for _, th := range things {
			require.NoError(t, tx.Put(ctx, base.TieBreakerKey(v, th), kvt.EncodeThing(th)))
		}
	}
}

func drain(t *testing.T, ex *QueryExecutor, ref thing.IteratorRef) []thing.Thing {
	t.Helper()
	ctx := context.Background()
	it, ok, err := ex.NewIterator(ref)
	require.NoError(t, err)
	require.True(t, ok)
	var out []thing.Thing
	for {
		batch, err := it.Next(ctx, 0)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
	}
	return out
}

func TestEqualityScenario(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	cat := catalogue.New(catalogue.IndexDef{Name: "by_n", Table: "t", Kind: catalogue.KindIdx})
	seed(t, tx, kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_n"}, map[any][]thing.Thing{
		5: {thing.New("t", "1"), thing.New("t", "2")},
	})

	opts := IndexesMap{
		Options:     []OptionEntry{{Expression: "n = 5", Option: catalogue.IndexOption{IxRef: 0, Op: catalogue.Equality(5)}}},
		Definitions: cat.Definitions,
	}
	ex, err := New("t", opts, nil, cat, Config{Namespace: "ns", Database: "db", Tx: tx})
	require.NoError(t, err)

	ref := ex.AddIteratorEntry(IteratorEntry{Single: true, Expression: "n = 5", Option: opts.Options[0].Option})
	ex.Freeze()

	got := drain(t, ex, ref)
	assert.ElementsMatch(t, []thing.Thing{thing.New("t", "1"), thing.New("t", "2")}, got)
}

func TestRangeHalfOpenScenario(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	cat := catalogue.New(catalogue.IndexDef{Name: "by_n", Table: "t", Kind: catalogue.KindIdx})
	seed(t, tx, kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_n"}, map[any][]thing.Thing{
		1.0: {thing.New("t", "1")},
		2.0: {thing.New("t", "2")},
		5.0: {thing.New("t", "5")},
		9.0: {thing.New("t", "9")},
	})

	cfg := Config{Namespace: "ns", Database: "db", Tx: tx}
	ex, err := New("t", IndexesMap{Definitions: cat.Definitions}, nil, cat, cfg)
	require.NoError(t, err)

	ref := ex.AddIteratorEntry(IteratorEntry{
		IxRef: 0,
		From:  catalogue.RangeValue{Value: 2.0, Inclusive: true},
		To:    catalogue.RangeValue{Value: 9.0, Inclusive: false},
	})
	ex.Freeze()

	got := drain(t, ex, ref)
	assert.ElementsMatch(t, []thing.Thing{thing.New("t", "2"), thing.New("t", "5")}, got)
}

func TestUnionScenario(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(false)
	cat := catalogue.New(catalogue.IndexDef{Name: "by_n", Table: "t", Kind: catalogue.KindIdx})
	seed(t, tx, kvt.KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_n"}, map[any][]thing.Thing{
		1: {thing.New("t", "1")},
		2: {thing.New("t", "2")},
	})

	cfg := Config{Namespace: "ns", Database: "db", Tx: tx}
	opts := IndexesMap{
		Options:     []OptionEntry{{Expression: "n in [1,2]", Option: catalogue.IndexOption{IxRef: 0, Op: catalogue.Union([]any{1, 2})}}},
		Definitions: cat.Definitions,
	}
	ex, err := New("t", opts, nil, cat, cfg)
	require.NoError(t, err)

	ref := ex.AddIteratorEntry(IteratorEntry{Single: true, Expression: "n in [1,2]", Option: opts.Options[0].Option})
	ex.Freeze()

	got := drain(t, ex, ref)
	assert.ElementsMatch(t, []thing.Thing{thing.New("t", "1"), thing.New("t", "2")}, got)
}

func TestMatchesAndScoreScenario(t *testing.T) {
	store := kvt.NewMemoryStore()
	tx := store.Begin(true)
	cat := catalogue.New(catalogue.IndexDef{
		Name: "by_text", Table: "t", Kind: catalogue.KindSearch,
		Search: &catalogue.SearchParams{Analyzer: "default", BM25K1: 1.2, BM25B: 0.75},
	})

	ftRef := thing.IndexRef(0)
	idx := ftindex.New(ftindex.NewAnalyzer("default"), 1.2, 0.75)
	idx.IndexDocument(thing.New("t", "1"), "the quick brown fox")
	idx.IndexDocument(thing.New("t", "2"), "lazy dog")
	idx.IndexDocument(thing.New("t", "3"), "quick dog")
	idx.IndexDocument(thing.New("t", "4"), "cat sleeps all day")

	matchRef := thing.MatchRef(1)
	opts := IndexesMap{
		Options: []OptionEntry{
			{Expression: "body @1@ matches 'quick dog'", Option: catalogue.IndexOption{IxRef: ftRef, Op: catalogue.Matches("quick dog", &matchRef)}},
		},
		Definitions: cat.Definitions,
	}
	ex, err := New("t", opts, nil, cat, Config{
		Namespace:  "ns",
		Database:   "db",
		Tx:         tx,
		FTSessions: map[thing.IndexRef]*ftindex.Index{ftRef: idx},
	})
	require.NoError(t, err)

	ref := ex.AddIteratorEntry(IteratorEntry{Single: true, Expression: opts.Options[0].Expression, Option: opts.Options[0].Option})
	ex.Freeze()

	got := drain(t, ex, ref)
	assert.ElementsMatch(t, []thing.Thing{thing.New("t", "3")}, got)

	score, ok, err := ex.Score(matchRef, thing.New("t", "3"), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, score, 0.0)

	_, ok, err = ex.Score(matchRef, thing.New("t", "4"), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDuplicateMatchRefFails(t *testing.T) {
	cat := catalogue.New(
		catalogue.IndexDef{Name: "by_a", Table: "t", Kind: catalogue.KindSearch, Search: &catalogue.SearchParams{}},
		catalogue.IndexDef{Name: "by_b", Table: "t", Kind: catalogue.KindSearch, Search: &catalogue.SearchParams{}},
	)
	ref := thing.MatchRef(1)
	opts := IndexesMap{
		Options: []OptionEntry{
			{Expression: "a matches 'x'", Option: catalogue.IndexOption{IxRef: 0, Op: catalogue.Matches("x", &ref)}},
			{Expression: "b matches 'y'", Option: catalogue.IndexOption{IxRef: 1, Op: catalogue.Matches("y", &ref)}},
		},
		Definitions: cat.Definitions,
	}
	_, err := New("t", opts, nil, cat, Config{Namespace: "ns", Database: "db"})
	require.Error(t, err)
	assert.True(t, dberr.IsDuplicatedMatchRef(err))
}

func TestBruteForceKnnTwoPhase(t *testing.T) {
	cat := catalogue.New()
	ex, err := New("t", IndexesMap{Definitions: cat.Definitions}, []BfkExpr{
		{
			Expression: "vec <|2|> [0,0]",
			K:          2,
			Vector:     []float64{0, 0},
			Distance: func(a, b []float64) (float64, error) {
				var sum float64
				for i := range a {
					d := a[i] - b[i]
					sum += d * d
				}
				return sum, nil
			},
			Idiom: func(doc any) ([]float64, error) { return doc.([]float64), nil },
		},
	}, cat, Config{Namespace: "ns", Database: "db"})
	require.NoError(t, err)
	assert.True(t, ex.HasBruteforceKnn())

	t1, t2, t3 := thing.New("t", "1"), thing.New("t", "2"), thing.New("t", "3")
	docs := map[thing.Thing][]float64{t1: {1, 0}, t2: {0, 2}, t3: {3, 4}}

	ex.SetIterationStage(bfk.StageCollect)
	for th, vec := range docs {
		keep, err := ex.Knn("vec <|2|> [0,0]", th, vec)
		require.NoError(t, err)
		assert.True(t, keep)
	}

	ex.SetIterationStage(bfk.StageIterate)
	in1, err := ex.Knn("vec <|2|> [0,0]", t1, nil)
	require.NoError(t, err)
	assert.True(t, in1)

	in3, err := ex.Knn("vec <|2|> [0,0]", t3, nil)
	require.NoError(t, err)
	assert.False(t, in3)
}
