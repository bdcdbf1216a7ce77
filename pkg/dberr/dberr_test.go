package dberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuplicatedMatchRefError(t *testing.T) {
	err := fmt.Errorf("qe: %w", &DuplicatedMatchRefError{MatchRef: 3})
	assert.True(t, IsDuplicatedMatchRef(err))
	assert.Contains(t, err.Error(), "@3@")

	assert.False(t, IsDuplicatedMatchRef(ErrTxFinished))
}

func TestStoreErrorUnwrap(t *testing.T) {
	underlying := errors.New("disk full")
	err := &StoreError{Op: "range", Err: underlying}
	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "range")
}

func TestAnalyzerErrorUnwrap(t *testing.T) {
	underlying := errors.New("bad tokenizer")
	err := &AnalyzerError{Err: underlying}
	assert.ErrorIs(t, err, underlying)
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrInvalidURL, ErrNoIndexFoundForMatch, ErrTxFinished, ErrTxReadonly, ErrKeyAlreadyExists, ErrConditionNotMet, ErrDimensionMismatch}
	for i := range sentinels {
		for j := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, sentinels[i], sentinels[j])
		}
	}
}
