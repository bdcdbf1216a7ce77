package kvt

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/orneryd/iqe/pkg/dberr"
)

// MemoryStore is a minimal sorted-map KV store, the in-memory counterpart
// to BadgerStore. Grounded on pkg/storage/memory.go's in-memory Engine —
// the teacher keeps a pure-Go, disk-free implementation alongside the
// badger one for fast unit tests, and this module does the same for KVT.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Begin opens a new transaction over the store. Mirrors
// BadgerEngine's implicit one-transaction-per-call-site pattern: the
// in-memory store buffers writes in the transaction and only publishes
// them to the shared map on Commit, following
// pkg/storage/transaction.go's pendingNodes/deletedNodes buffering.
func (s *MemoryStore) Begin(readOnly bool) Transaction {
	return &memTxn{store: s, readOnly: readOnly, writes: map[string][]byte{}, deletes: map[string]bool{}}
}

type memTxn struct {
	mu       sync.Mutex
	store    *MemoryStore
	readOnly bool
	writes   map[string][]byte
	deletes  map[string]bool
	finished bool
}

func (t *memTxn) checkFinished() error {
	if t.finished {
		return dberr.ErrTxFinished
	}
	return nil
}

// view returns the value for key as seen by this transaction: its own
// pending writes/deletes take precedence over the committed snapshot,
// giving read-your-writes semantics as in BadgerTransaction.
func (t *memTxn) view(key string) ([]byte, bool) {
	if t.deletes[key] {
		return nil, false
	}
	if v, ok := t.writes[key]; ok {
		return v, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	v, ok := t.store.data[key]
	return v, ok
}

func (t *memTxn) Exists(_ context.Context, key []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return false, err
	}
	_, ok := t.view(string(key))
	return ok, nil
}

func (t *memTxn) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return nil, false, err
	}
	v, ok := t.view(string(key))
	return v, ok, nil
}

func (t *memTxn) Put(_ context.Context, key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return err
	}
	if t.readOnly {
		return dberr.ErrTxReadonly
	}
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte{}, value...)
	return nil
}

func (t *memTxn) PutIfAbsent(_ context.Context, key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return err
	}
	if t.readOnly {
		return dberr.ErrTxReadonly
	}
	if _, ok := t.view(string(key)); ok {
		return dberr.ErrKeyAlreadyExists
	}
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte{}, value...)
	return nil
}

func (t *memTxn) CompareAndPut(_ context.Context, key, value, expected []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return err
	}
	if t.readOnly {
		return dberr.ErrTxReadonly
	}
	cur, ok := t.view(string(key))
	if expected == nil {
		if ok {
			return dberr.ErrConditionNotMet
		}
	} else if !ok || !bytes.Equal(cur, expected) {
		return dberr.ErrConditionNotMet
	}
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte{}, value...)
	return nil
}

func (t *memTxn) Delete(_ context.Context, key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return err
	}
	if t.readOnly {
		return dberr.ErrTxReadonly
	}
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = true
	return nil
}

func (t *memTxn) CompareAndDelete(_ context.Context, key, expected []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return err
	}
	if t.readOnly {
		return dberr.ErrTxReadonly
	}
	cur, ok := t.view(string(key))
	if !ok || !bytes.Equal(cur, expected) {
		return dberr.ErrConditionNotMet
	}
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = true
	return nil
}

func (t *memTxn) Range(ctx context.Context, start, end []byte, limit int) ([]KV, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	keys := make([]string, 0, len(t.store.data)+len(t.writes))
	seen := make(map[string]bool)
	for k := range t.store.data {
		keys = append(keys, k)
		seen[k] = true
	}
	t.store.mu.RUnlock()
	for k := range t.writes {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]KV, 0, limit)
	for _, k := range keys {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		kb := []byte(k)
		if bytes.Compare(kb, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(kb, end) >= 0 {
			break
		}
		v, ok := t.view(k)
		if !ok {
			continue
		}
		out = append(out, KV{Key: kb, Value: v})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (t *memTxn) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return err
	}
	if t.readOnly {
		return dberr.ErrTxReadonly
	}
	t.store.mu.Lock()
	for k := range t.deletes {
		delete(t.store.data, k)
	}
	for k, v := range t.writes {
		t.store.data[k] = v
	}
	t.store.mu.Unlock()
	t.finished = true
	return nil
}

func (t *memTxn) Cancel(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFinished(); err != nil {
		return err
	}
	t.finished = true
	return nil
}

func (t *memTxn) ReadOnly() bool { return t.readOnly }
