package filter

import (
	"github.com/roach88/strata/internal/queryir"
)

// Request accumulates a predicate, ordering and paging for one entity kind.
type Request struct {
	entity    string
	predicate queryir.Predicate
	sort      []queryir.SortKey
	limit     int
	offset    int
	batchSize int
}

// New starts an unfiltered request for entity.
func New(entity string) Request {
	return Request{entity: entity}
}

// SuchThat replaces the predicate with p.
func (r Request) SuchThat(p queryir.Predicate) Request {
	r.sort = cloneSort(r.sort)
	r.predicate = orTrue(p)
	return r
}

// And conjoins p with the current predicate.
func (r Request) And(p queryir.Predicate) Request {
	if r.predicate == nil {
		return r.SuchThat(p)
	}
	r.sort = cloneSort(r.sort)
	r.predicate = queryir.And{Predicates: []queryir.Predicate{r.predicate, orTrue(p)}}
	return r
}

// Or disjoins p with the current predicate.
func (r Request) Or(p queryir.Predicate) Request {
	if r.predicate == nil {
		return r.SuchThat(p)
	}
	r.sort = cloneSort(r.sort)
	r.predicate = queryir.Or{Predicates: []queryir.Predicate{r.predicate, orTrue(p)}}
	return r
}

// Excluding conjoins the negation of p.
func (r Request) Excluding(p queryir.Predicate) Request {
	not := queryir.Not{Predicate: orTrue(p)}
	if r.predicate == nil {
		return r.SuchThat(not)
	}
	r.sort = cloneSort(r.sort)
	r.predicate = queryir.And{Predicates: []queryir.Predicate{r.predicate, not}}
	return r
}

// SortBy appends an ascending sort key.
func (r Request) SortBy(field string) Request {
	return r.appendSort(queryir.SortKey{Field: field})
}

// SortByDescending appends a descending sort key.
func (r Request) SortByDescending(field string) Request {
	return r.appendSort(queryir.SortKey{Field: field, Descending: true})
}

func (r Request) appendSort(key queryir.SortKey) Request {
	sort := make([]queryir.SortKey, len(r.sort), len(r.sort)+1)
	copy(sort, r.sort)
	r.sort = append(sort, key)
	return r
}

// Limit caps the number of results. Zero means unlimited.
func (r Request) Limit(n int) Request {
	r.sort = cloneSort(r.sort)
	r.limit = n
	return r
}

// Offset skips the first n results.
func (r Request) Offset(n int) Request {
	r.sort = cloneSort(r.sort)
	r.offset = n
	return r
}

// BatchSize hints how many rows a backend should load at a time.
func (r Request) BatchSize(n int) Request {
	r.sort = cloneSort(r.sort)
	r.batchSize = n
	return r
}

// Entity returns the entity kind the request reads.
func (r Request) Entity() string { return r.entity }

// Predicate returns the accumulated predicate, or nil when none was set.
func (r Request) Predicate() queryir.Predicate { return r.predicate }

// SortKeys returns a copy of the sort keys in priority order.
func (r Request) SortKeys() []queryir.SortKey { return cloneSort(r.sort) }

// LimitValue returns the row limit; 0 means unlimited.
func (r Request) LimitValue() int { return r.limit }

// OffsetValue returns the number of leading rows skipped.
func (r Request) OffsetValue() int { return r.offset }

// BatchSizeValue returns the fetch batch size hint; 0 means one batch.
func (r Request) BatchSizeValue() int { return r.batchSize }

// Query returns the request as a query value.
func (r Request) Query() queryir.Query {
	return queryir.Query{
		Entity:    r.entity,
		Filter:    r.predicate,
		Sort:      cloneSort(r.sort),
		Limit:     r.limit,
		Offset:    r.offset,
		BatchSize: r.batchSize,
	}
}

func (r Request) String() string {
	return r.Query().String()
}

func orTrue(p queryir.Predicate) queryir.Predicate {
	if p == nil {
		return queryir.True{}
	}
	return p
}

func cloneSort(keys []queryir.SortKey) []queryir.SortKey {
	if keys == nil {
		return nil
	}
	out := make([]queryir.SortKey, len(keys))
	copy(out, keys)
	return out
}
