package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/iqe/pkg/dberr"
	"github.com/orneryd/iqe/pkg/thing"
)

func TestEuclideanDistance(t *testing.T) {
	d, err := Euclidean([]float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-9)
}

func TestDistanceDimensionMismatch(t *testing.T) {
	_, err := Euclidean([]float64{0, 0}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, dberr.ErrDimensionMismatch)
}

func TestCosineIdenticalDirection(t *testing.T) {
	d, err := Cosine([]float64{1, 1}, []float64{2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-9)
}

func TestByNameDefaultsToEuclidean(t *testing.T) {
	d, err := ByName("unknown")([]float64{0}, []float64{3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, d)
}

func TestMTreeKnnSearchExact(t *testing.T) {
	s := NewMTreeSession(2, Euclidean)
	t1 := thing.New("t", "1")
	t2 := thing.New("t", "2")
	t3 := thing.New("t", "3")
	require.NoError(t, s.Add(t1, []float64{1, 0}))
	require.NoError(t, s.Add(t2, []float64{0, 2}))
	require.NoError(t, s.Add(t3, []float64{3, 4}))

	results, err := s.KnnSearch([]float64{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	id1, _ := s.GetDocID(t1)
	id2, _ := s.GetDocID(t2)
	assert.Equal(t, id1, results[0].DocId)
	assert.Equal(t, id2, results[1].DocId)
}

func TestMTreeAddDimensionMismatch(t *testing.T) {
	s := NewMTreeSession(2, Euclidean)
	err := s.Add(thing.New("t", "1"), []float64{1, 2, 3})
	assert.ErrorIs(t, err, dberr.ErrDimensionMismatch)
}

func TestHnswKnnSearchApproximatesExact(t *testing.T) {
	cfg := DefaultHnswConfig()
	s := NewHnswSession(2, Euclidean, cfg)

	things := map[string][]float64{
		"1": {1, 0}, "2": {0, 2}, "3": {3, 4}, "4": {5, 5}, "5": {-1, -1},
	}
	for id, vec := range things {
		require.NoError(t, s.Add(thing.New("t", id), vec))
	}
	assert.Equal(t, 5, s.Size())

	results, err := s.KnnSearch([]float64{0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := map[string]bool{}
	for _, r := range results {
		ids[r.Thing.ID] = true
	}
	assert.True(t, ids["1"] || ids["5"])
}

func TestHnswAddDimensionMismatch(t *testing.T) {
	s := NewHnswSession(2, Euclidean, DefaultHnswConfig())
	err := s.Add(thing.New("t", "1"), []float64{1, 2, 3})
	assert.ErrorIs(t, err, dberr.ErrDimensionMismatch)
}
