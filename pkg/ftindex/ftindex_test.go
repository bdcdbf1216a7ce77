package ftindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/iqe/pkg/thing"
)

func TestAnalyzerTokenizeDropsStopWordsAndShortTokens(t *testing.T) {
	a := NewAnalyzer("")
	got := a.Tokenize("The quick brown fox is a dog")
	assert.Equal(t, []string{"quick", "brown", "fox", "dog"}, got)
}

func TestIndexDocumentAndGetDocID(t *testing.T) {
	idx := New(NewAnalyzer("default"), 0, 0)
	foxThing := thing.New("t", "1")
	id := idx.IndexDocument(foxThing, "the quick brown fox")

	got, ok := idx.GetDocID(foxThing)
	require.True(t, ok)
	assert.Equal(t, id, got)

	back, ok := idx.ThingOf(id)
	require.True(t, ok)
	assert.Equal(t, foxThing, back)
}

func TestGetTermsDocsUnknownTerm(t *testing.T) {
	idx := New(NewAnalyzer("default"), 0, 0)
	idx.IndexDocument(thing.New("t", "1"), "quick dog")

	tds := idx.GetTermsDocs([]string{"quick", "elephant"})
	require.Len(t, tds, 2)
	assert.True(t, tds[0].ok)
	assert.False(t, tds[1].ok)

	lists := TermPostingLists(tds)
	assert.NotEmpty(t, lists[0])
	assert.Empty(t, lists[1])
}

func TestHasPositiveByDocID(t *testing.T) {
	idx := New(NewAnalyzer("default"), 0, 0)
	id := idx.IndexDocument(thing.New("t", "1"), "quick dog")

	assert.True(t, idx.HasPositiveByDocID(id, []string{"quick", "dog"}))
	assert.False(t, idx.HasPositiveByDocID(id, []string{"quick", "cat"}))
	assert.False(t, idx.HasPositiveByDocID(id, nil))
}

func TestIsSubset(t *testing.T) {
	querySet := map[string]bool{"quick": true, "dog": true}
	docSet := map[string]bool{"quick": true, "dog": true, "lazy": true}
	assert.True(t, IsSubset(querySet, docSet))

	docSet2 := map[string]bool{"quick": true}
	assert.False(t, IsSubset(querySet, docSet2))
	assert.False(t, IsSubset(nil, docSet))
}

func TestScoreMonotonicWithTermFrequency(t *testing.T) {
	idx := New(NewAnalyzer("default"), DefaultK1, DefaultB)
	low := idx.IndexDocument(thing.New("t", "low"), "dog runs in the park")
	high := idx.IndexDocument(thing.New("t", "high"), "dog dog dog runs in the park with another dog")
	idx.IndexDocument(thing.New("t", "other"), "cat sleeps all day")

	tds := idx.GetTermsDocs([]string{"dog"})
	scorer := idx.NewScorer(tds)
	require.NotNil(t, scorer)

	lowScore, ok := scorer.Score(low)
	require.True(t, ok)
	highScore, ok := scorer.Score(high)
	require.True(t, ok)
	assert.Greater(t, highScore, lowScore)
}

func TestScoreNoMatchReturnsFalse(t *testing.T) {
	idx := New(NewAnalyzer("default"), DefaultK1, DefaultB)
	idx.IndexDocument(thing.New("t", "1"), "cat sleeps all day")

	tds := idx.GetTermsDocs([]string{"dog"})
	scorer := idx.NewScorer(tds)
	assert.Nil(t, scorer)
}

func TestHighlightWrapsMatches(t *testing.T) {
	idx := New(NewAnalyzer("default"), 0, 0)
	id := idx.IndexDocument(thing.New("t", "1"), "the quick brown fox")

	out, ok := idx.Highlight(id, []string{"quick", "fox"}, "<b>", "</b>", false)
	require.True(t, ok)
	assert.Equal(t, "the <b>quick</b> brown <b>fox</b>", out)
}

func TestExtractOffsets(t *testing.T) {
	idx := New(NewAnalyzer("default"), 0, 0)
	id := idx.IndexDocument(thing.New("t", "1"), "the quick brown fox jumps over the quick dog")

	offsets, ok := idx.ExtractOffsets(id, []string{"quick"}, false)
	require.True(t, ok)
	assert.Len(t, offsets, 2)
}
