// Package dberr defines the error kinds surfaced by the index-aware query
// executor and its collaborators.
//
// Errors are plain sentinel values or small structs wrapped with fmt.Errorf
// and %w, the same shape storage.ConstraintViolationError uses in the
// storage layer this module grew out of. Callers use errors.Is/errors.As.
package dberr

import (
	"errors"
	"fmt"
)

// Sentinel kinds that carry no extra context.
var (
	// ErrInvalidURL is returned by the endpoint layer only; the executor
	// never produces it directly but re-exports it for completeness.
	ErrInvalidURL = errors.New("invalid url")

	// ErrNoIndexFoundForMatch is returned when matches() is invoked with an
	// unknown MatchRef, or without a corresponding FT entry.
	ErrNoIndexFoundForMatch = errors.New("no index found for match")

	// ErrTxFinished is returned by any operation on a transaction that has
	// already been committed or cancelled.
	ErrTxFinished = errors.New("transaction already finished")

	// ErrTxReadonly is returned when commit is called on a read-only
	// transaction.
	ErrTxReadonly = errors.New("transaction is read-only")

	// ErrKeyAlreadyExists is returned by put_if_absent when the key is
	// already present.
	ErrKeyAlreadyExists = errors.New("key already exists")

	// ErrConditionNotMet is returned by compare_and_put / compare_and_delete
	// when the supplied witness does not match the stored value.
	ErrConditionNotMet = errors.New("condition not met")

	// ErrDimensionMismatch is returned by a BFK distance function when the
	// query vector and the computed document vector have different
	// dimensionality. Fatal to the current query.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// DuplicatedMatchRefError is a build-time error: two Matches(...) operators
// in one plan registered the same MatchRef.
type DuplicatedMatchRefError struct {
	MatchRef int
}

func (e *DuplicatedMatchRefError) Error() string {
	return fmt.Sprintf("duplicated match reference @%d@", e.MatchRef)
}

// StoreError wraps an opaque error surfaced by the underlying KV store.
// Predicate callbacks propagate these unchanged; they are fatal to the
// current record and, by driver policy, to the query.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// AnalyzerError wraps an opaque error surfaced by the FT analyzer while
// extracting terms from a query string or a record value.
type AnalyzerError struct {
	Err error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer error: %v", e.Err)
}

func (e *AnalyzerError) Unwrap() error { return e.Err }

// IsDuplicatedMatchRef reports whether err is a DuplicatedMatchRefError.
func IsDuplicatedMatchRef(err error) bool {
	var d *DuplicatedMatchRefError
	return errors.As(err, &d)
}
