// Package kvt defines the KV Transaction (KVT) contract the query executor
// is built against, plus two adaptors: a badger-backed one for production
// and an in-memory one for tests.
//
// The contract mirrors pkg/storage/badger_transaction.go's operation set
// (read-your-writes via tracked pending ops, ACID commit/rollback) but is
// generalised from Node/Edge graph records to opaque byte keys/values,
// since the query executor only ever needs a byte-oriented transactional
// range scan (spec.md §6).
package kvt

import (
	"context"

	"github.com/orneryd/iqe/pkg/dberr"
)

// KV is one key/value pair returned from a range scan, in ascending key
// order.
type KV struct {
	Key   []byte
	Value []byte
}

// Transaction is the external interface the query executor is built
// against. Single-writer per datastore; multiple concurrent readers.
// Double-finalisation (commit after commit, cancel after cancel, or either
// after the other) fails with dberr.ErrTxFinished.
type Transaction interface {
	// Exists reports whether key is present.
	Exists(ctx context.Context, key []byte) (bool, error)

	// Get returns the value for key, or ok=false if absent.
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)

	// Put sets key to value unconditionally.
	Put(ctx context.Context, key, value []byte) error

	// PutIfAbsent sets key to value only if key is not already present;
	// fails with dberr.ErrKeyAlreadyExists otherwise.
	PutIfAbsent(ctx context.Context, key, value []byte) error

	// CompareAndPut sets key to value only if the current value equals
	// expected (nil expected means "key must not exist"). Fails with
	// dberr.ErrConditionNotMet when the witness does not match.
	CompareAndPut(ctx context.Context, key, value, expected []byte) error

	// Delete removes key. A no-op if key is absent.
	Delete(ctx context.Context, key []byte) error

	// CompareAndDelete removes key only if its current value equals
	// expected. Fails with dberr.ErrConditionNotMet otherwise.
	CompareAndDelete(ctx context.Context, key, expected []byte) error

	// Range returns up to limit key/value pairs in [start, end) ascending
	// key order. limit <= 0 means unbounded.
	Range(ctx context.Context, start, end []byte, limit int) ([]KV, error)

	// Commit finalises the transaction. Fails with dberr.ErrTxReadonly on a
	// read-only transaction, dberr.ErrTxFinished if already finalised.
	Commit(ctx context.Context) error

	// Cancel aborts the transaction, discarding any writes. Fails with
	// dberr.ErrTxFinished if already finalised.
	Cancel(ctx context.Context) error

	// ReadOnly reports whether this transaction was opened read-only.
	ReadOnly() bool
}

// wrapStoreErr is the single place the KVT adaptors funnel
// underlying-store errors through, so they surface
// unchanged in shape per spec.md §7 ("predicate callbacks surface store
// and analyzer errors unchanged").
func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &dberr.StoreError{Op: op, Err: err}
}
