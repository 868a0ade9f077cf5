// Package persist defines the contract between sessions and storage
// backends, and the error taxonomy backends report.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
)

// Backend executes queries and applies change sets.
//
// Fetch returns only records of q.Entity, ordered by q.Sort with the
// (seq, id) tiebreak, never nil. Apply is atomic: either every change in
// the set is stored or none is. On success Apply writes the sequence number
// it assigned into the Seq of each element of changes.Inserts.
//
// Implementations: store (database/sql), gormstore (GORM), memstore.
type Backend interface {
	Fetch(ctx context.Context, q queryir.Query) ([]record.Snapshot, error)
	Apply(ctx context.Context, changes record.ChangeSet) error
	Identifier() string
	Close() error
}

// ErrorCode categorizes storage failures.
type ErrorCode string

const (
	// CodeReadFailure indicates a fetch could not be executed.
	CodeReadFailure ErrorCode = "READ_FAILURE"

	// CodeWriteFailure indicates a change set could not be applied.
	CodeWriteFailure ErrorCode = "WRITE_FAILURE"
)

// Sentinel causes wrapped inside StoreError.
var (
	ErrClosed         = errors.New("backend closed")
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateID    = errors.New("duplicate record id")
)

// StoreError is the only error type backends return.
type StoreError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the failed operation, e.g. "fetch User".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ReadFailure wraps err as a READ_FAILURE for op.
func ReadFailure(op string, err error) *StoreError {
	return &StoreError{Code: CodeReadFailure, Op: op, Err: err}
}

// WriteFailure wraps err as a WRITE_FAILURE for op.
func WriteFailure(op string, err error) *StoreError {
	return &StoreError{Code: CodeWriteFailure, Op: op, Err: err}
}

// IsReadFailure returns true if err is a read failure.
// Uses errors.As to handle wrapped errors.
func IsReadFailure(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == CodeReadFailure
	}
	return false
}

// IsWriteFailure returns true if err is a write failure.
// Uses errors.As to handle wrapped errors.
func IsWriteFailure(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == CodeWriteFailure
	}
	return false
}
