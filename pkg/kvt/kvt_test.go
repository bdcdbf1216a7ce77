package kvt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/iqe/pkg/dberr"
	"github.com/orneryd/iqe/pkg/thing"
)

func TestKeyBasePrefixAndEqualKey(t *testing.T) {
	b := KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_n"}
	prefix := b.Prefix()
	key := b.EqualKey(5)
	assert.True(t, len(key) > len(prefix))
	assert.Equal(t, prefix, key[:len(prefix)])
}

func TestEncodeValueFloatOrdering(t *testing.T) {
	lo := EncodeValue(-5.0)
	mid := EncodeValue(0.0)
	hi := EncodeValue(5.0)
	assert.True(t, string(lo) < string(mid))
	assert.True(t, string(mid) < string(hi))
}

func TestRangeBoundsInclusiveExclusive(t *testing.T) {
	b := KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_n"}

	fromIncl, toExcl := b.RangeBounds(2, true, 5, false)
	fromExcl, toIncl := b.RangeBounds(2, false, 5, true)

	assert.True(t, string(fromIncl) < string(fromExcl))
	assert.True(t, string(toExcl) < string(toIncl))
}

func TestTieBreakerKeyDeterministic(t *testing.T) {
	b := KeyBase{Namespace: "ns", Database: "db", Table: "t", Index: "by_vec"}
	tt := thing.New("t", "1")
	k1 := b.TieBreakerKey([]float64{1, 2}, tt)
	k2 := b.TieBreakerKey([]float64{1, 2}, tt)
	assert.Equal(t, k1, k2)

	other := b.TieBreakerKey([]float64{1, 2}, thing.New("t", "2"))
	assert.NotEqual(t, k1, other)
}

func TestMemTxnFinishedIdempotence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tx := store.Begin(false)
	require.NoError(t, tx.Cancel(ctx))
	assert.ErrorIs(t, tx.Cancel(ctx), dberr.ErrTxFinished)

	tx2 := store.Begin(false)
	require.NoError(t, tx2.Commit(ctx))
	assert.ErrorIs(t, tx2.Commit(ctx), dberr.ErrTxFinished)
}

func TestMemTxnReadonlyCommitFails(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tx := store.Begin(true)
	assert.ErrorIs(t, tx.Commit(ctx), dberr.ErrTxReadonly)
}

func TestMemTxnReadonlyRejectsWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tx := store.Begin(true)

	assert.ErrorIs(t, tx.Put(ctx, []byte("k"), []byte("v")), dberr.ErrTxReadonly)
	assert.ErrorIs(t, tx.PutIfAbsent(ctx, []byte("k"), []byte("v")), dberr.ErrTxReadonly)
	assert.ErrorIs(t, tx.CompareAndPut(ctx, []byte("k"), []byte("v"), nil), dberr.ErrTxReadonly)
	assert.ErrorIs(t, tx.Delete(ctx, []byte("k")), dberr.ErrTxReadonly)
	assert.ErrorIs(t, tx.CompareAndDelete(ctx, []byte("k"), []byte("v")), dberr.ErrTxReadonly)

	_, ok, err := tx.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemTxnPutIfAbsent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tx := store.Begin(false)

	require.NoError(t, tx.PutIfAbsent(ctx, []byte("k"), []byte("v1")))
	assert.ErrorIs(t, tx.PutIfAbsent(ctx, []byte("k"), []byte("v2")), dberr.ErrKeyAlreadyExists)

	v, ok, err := tx.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))
}

func TestMemTxnCompareAndPutAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tx := store.Begin(false)

	assert.ErrorIs(t, tx.CompareAndPut(ctx, []byte("k"), []byte("v1"), []byte("stale")), dberr.ErrConditionNotMet)
	require.NoError(t, tx.CompareAndPut(ctx, []byte("k"), []byte("v1"), nil))
	require.NoError(t, tx.CompareAndPut(ctx, []byte("k"), []byte("v2"), []byte("v1")))

	assert.ErrorIs(t, tx.CompareAndDelete(ctx, []byte("k"), []byte("wrong")), dberr.ErrConditionNotMet)
	require.NoError(t, tx.CompareAndDelete(ctx, []byte("k"), []byte("v2")))

	_, ok, err := tx.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemTxnRangeAndCommitVisibility(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	writer := store.Begin(false)
	require.NoError(t, writer.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, writer.Put(ctx, []byte("b"), []byte("2")))
	require.NoError(t, writer.Put(ctx, []byte("c"), []byte("3")))
	require.NoError(t, writer.Commit(ctx))

	reader := store.Begin(true)
	kvs, err := reader.Range(ctx, []byte("a"), []byte("c"), 0)
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	assert.Equal(t, "a", string(kvs[0].Key))
	assert.Equal(t, "b", string(kvs[1].Key))
}

func TestMemTxnReadYourWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	tx := store.Begin(false)

	require.NoError(t, tx.Put(ctx, []byte("k"), []byte("v")))
	exists, err := tx.Exists(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, tx.Delete(ctx, []byte("k")))
	exists, err = tx.Exists(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, exists)
}
