package filter

import (
	"context"

	"github.com/roach88/strata/internal/queryir"
)

// DeleteExecutor stages deletion of every record matching q and returns a
// handle of type U describing the pending change.
type DeleteExecutor[U any] func(ctx context.Context, q queryir.Query) U

// DeleteRequest is a Request bound to an executor. Combinators return new
// DeleteRequests sharing the executor.
type DeleteRequest[U any] struct {
	executor DeleteExecutor[U]
	request  Request
}

// NewDeleteRequest binds req to exec.
func NewDeleteRequest[U any](exec DeleteExecutor[U], req Request) DeleteRequest[U] {
	return DeleteRequest[U]{executor: exec, request: req}
}

// SuchThat replaces the predicate with p.
func (d DeleteRequest[U]) SuchThat(p queryir.Predicate) DeleteRequest[U] {
	return DeleteRequest[U]{executor: d.executor, request: d.request.SuchThat(p)}
}

// And conjoins p with the current predicate.
func (d DeleteRequest[U]) And(p queryir.Predicate) DeleteRequest[U] {
	return DeleteRequest[U]{executor: d.executor, request: d.request.And(p)}
}

// Or disjoins p with the current predicate.
func (d DeleteRequest[U]) Or(p queryir.Predicate) DeleteRequest[U] {
	return DeleteRequest[U]{executor: d.executor, request: d.request.Or(p)}
}

// Excluding conjoins the negation of p.
func (d DeleteRequest[U]) Excluding(p queryir.Predicate) DeleteRequest[U] {
	return DeleteRequest[U]{executor: d.executor, request: d.request.Excluding(p)}
}

// Request returns the underlying filter request.
func (d DeleteRequest[U]) Request() Request { return d.request }

// Predicate returns the accumulated predicate, or nil when none was set.
func (d DeleteRequest[U]) Predicate() queryir.Predicate { return d.request.Predicate() }

// SortKeys returns a copy of the sort keys.
func (d DeleteRequest[U]) SortKeys() []queryir.SortKey { return d.request.SortKeys() }

// LimitValue returns the row limit; 0 means unlimited.
func (d DeleteRequest[U]) LimitValue() int { return d.request.LimitValue() }

// OffsetValue returns the number of leading rows skipped.
func (d DeleteRequest[U]) OffsetValue() int { return d.request.OffsetValue() }

// BatchSizeValue returns the fetch batch size hint.
func (d DeleteRequest[U]) BatchSizeValue() int { return d.request.BatchSizeValue() }

// Execute stages the deletion. Nothing is committed.
func (d DeleteRequest[U]) Execute(ctx context.Context) U {
	return d.executor(ctx, d.request.Query())
}
