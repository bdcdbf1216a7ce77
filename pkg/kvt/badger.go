package kvt

import (
	"bytes"
	"context"
	"errors"
	"log"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/iqe/pkg/dberr"
)

// BadgerStore is the production KVT backend, wrapping a *badger.DB exactly
// the way pkg/storage/badger.go's BadgerEngine wraps one — same
// low-memory-friendly option tuning, same "pass nil for a quiet logger by
// default" convention.
type BadgerStore struct {
	db     *badger.DB
	logger *log.Logger
}

// BadgerOptions configures the badger-backed KVT store. Mirrors
// storage.BadgerOptions.
type BadgerOptions struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
	Logger     *log.Logger
}

// OpenBadgerStore opens (or creates) a badger-backed KVT store.
func OpenBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	bo := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		bo = bo.WithInMemory(true)
	}
	if opts.SyncWrites {
		bo = bo.WithSyncWrites(true)
	}
	bo = bo.WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(bo)
	if err != nil {
		return nil, wrapStoreErr("open", err)
	}
	return &BadgerStore{db: db, logger: opts.Logger}, nil
}

// Close closes the underlying badger database.
func (s *BadgerStore) Close() error {
	return wrapStoreErr("close", s.db.Close())
}

// Begin opens a new transaction, read-only or read-write.
func (s *BadgerStore) Begin(readOnly bool) Transaction {
	return &badgerTxn{txn: s.db.NewTransaction(!readOnly), readOnly: readOnly, logger: s.logger}
}

type badgerTxn struct {
	txn      *badger.Txn
	readOnly bool
	finished bool
	logger   *log.Logger
}

func (t *badgerTxn) Exists(_ context.Context, key []byte) (bool, error) {
	if t.finished {
		return false, dberr.ErrTxFinished
	}
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreErr("exists", err)
	}
	return true, nil
}

func (t *badgerTxn) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	if t.finished {
		return nil, false, dberr.ErrTxFinished
	}
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapStoreErr("get", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, wrapStoreErr("get", err)
	}
	return val, true, nil
}

func (t *badgerTxn) Put(_ context.Context, key, value []byte) error {
	if t.finished {
		return dberr.ErrTxFinished
	}
	if t.readOnly {
		return dberr.ErrTxReadonly
	}
	return wrapStoreErr("put", t.txn.Set(key, value))
}

func (t *badgerTxn) PutIfAbsent(ctx context.Context, key, value []byte) error {
	if t.finished {
		return dberr.ErrTxFinished
	}
	exists, err := t.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return dberr.ErrKeyAlreadyExists
	}
	return t.Put(ctx, key, value)
}

func (t *badgerTxn) CompareAndPut(ctx context.Context, key, value, expected []byte) error {
	if t.finished {
		return dberr.ErrTxFinished
	}
	cur, ok, err := t.Get(ctx, key)
	if err != nil {
		return err
	}
	if expected == nil {
		if ok {
			return dberr.ErrConditionNotMet
		}
	} else if !ok || !bytes.Equal(cur, expected) {
		return dberr.ErrConditionNotMet
	}
	return t.Put(ctx, key, value)
}

func (t *badgerTxn) Delete(_ context.Context, key []byte) error {
	if t.finished {
		return dberr.ErrTxFinished
	}
	if t.readOnly {
		return dberr.ErrTxReadonly
	}
	return wrapStoreErr("delete", t.txn.Delete(key))
}

func (t *badgerTxn) CompareAndDelete(ctx context.Context, key, expected []byte) error {
	if t.finished {
		return dberr.ErrTxFinished
	}
	cur, ok, err := t.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || !bytes.Equal(cur, expected) {
		return dberr.ErrConditionNotMet
	}
	return t.Delete(ctx, key)
}

// Range performs an ordered prefix/range scan. Holding the iterator across
// a suspension point that reaches the store is permitted but, per spec.md
// §5, should not span iterator pulls — Range here gathers its full batch
// (bounded by limit) before returning, rather than handing back a live
// cursor, to keep that guarantee trivially true.
func (t *badgerTxn) Range(ctx context.Context, start, end []byte, limit int) ([]KV, error) {
	if t.finished {
		return nil, dberr.ErrTxFinished
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	if limit > 0 && limit < 100 {
		opts.PrefetchSize = limit
	}
	it := t.txn.NewIterator(opts)
	defer it.Close()

	out := make([]KV, 0, limit)
	for it.Seek(start); it.Valid(); it.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		item := it.Item()
		k := item.KeyCopy(nil)
		if end != nil && bytes.Compare(k, end) >= 0 {
			break
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, wrapStoreErr("range", err)
		}
		out = append(out, KV{Key: k, Value: v})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (t *badgerTxn) Commit(_ context.Context) error {
	if t.finished {
		return dberr.ErrTxFinished
	}
	if t.readOnly {
		t.finished = true
		t.txn.Discard()
		return dberr.ErrTxReadonly
	}
	t.finished = true
	return wrapStoreErr("commit", t.txn.Commit())
}

func (t *badgerTxn) Cancel(_ context.Context) error {
	if t.finished {
		return dberr.ErrTxFinished
	}
	t.finished = true
	t.txn.Discard()
	return nil
}

func (t *badgerTxn) ReadOnly() bool { return t.readOnly }
