// Package memstore is an in-memory persist.Backend.
//
// It evaluates queries with queryir.Eval and queryir.SortRecords, the same
// semantics the SQLite backends compile to, and supports fault injection
// for exercising read and write failure paths.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
)

// Store keeps snapshots in a map keyed by record ID.
//
// Thread-safety: Store is safe for concurrent use; sessions sharing it
// still need their own synchronization.
type Store struct {
	mu         sync.Mutex
	identifier string
	records    map[string]record.Snapshot
	seq        int64
	closed     bool
	failReads  error
	failWrites error
}

var _ persist.Backend = (*Store)(nil)

// New creates an empty store.
func New(identifier string) *Store {
	return &Store{
		identifier: identifier,
		records:    make(map[string]record.Snapshot),
	}
}

// Identifier returns the name carried on pending updates.
func (s *Store) Identifier() string {
	return s.identifier
}

// Close marks the store closed; later calls fail with persist.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailReads makes every subsequent Fetch fail with err. Nil heals.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = err
}

// FailWrites makes every subsequent Apply fail with err. Nil heals.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

// Len returns the number of stored records across all entities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Fetch returns records of q.Entity matching q, in query order.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Fetch(ctx context.Context, q queryir.Query) ([]record.Snapshot, error) {
	op := "fetch " + q.Entity

	if err := ctx.Err(); err != nil {
		return nil, persist.ReadFailure(op, err)
	}
	if err := queryir.Check(q); err != nil {
		return nil, persist.ReadFailure(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, persist.ReadFailure(op, persist.ErrClosed)
	}
	if s.failReads != nil {
		return nil, persist.ReadFailure(op, s.failReads)
	}

	matched := []record.Snapshot{}
	for _, snap := range s.records {
		if snap.Entity != q.Entity {
			continue
		}
		if queryir.Eval(q.Filter, snap.Attrs) {
			matched = append(matched, snap.Clone())
		}
	}

	queryir.SortRecords(matched, q.Sort, snapshotAttrs, bySeqThenID)
	return queryir.Page(matched, q.Limit, q.Offset), nil
}

func snapshotAttrs(s record.Snapshot) ir.IRObject {
	return s.Attrs
}

// bySeqThenID is the tiebreak every backend uses.
func bySeqThenID(a, b record.Snapshot) int {
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Apply stores a change set atomically: inserts, then updates, then
// deletes. A duplicate insert or a missing update target fails the whole
// set; deleting a missing record is a no-op.
func (s *Store) Apply(ctx context.Context, changes record.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return persist.WriteFailure("apply", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persist.WriteFailure("apply", persist.ErrClosed)
	}
	if s.failWrites != nil {
		return persist.WriteFailure("apply", s.failWrites)
	}

	// Stage on a copy so a failure leaves the store untouched.
	next := make(map[string]record.Snapshot, len(s.records)+len(changes.Inserts))
	for id, snap := range s.records {
		next[id] = snap
	}
	seq := s.seq

	for _, snap := range changes.Inserts {
		if _, exists := next[snap.ID]; exists {
			return persist.WriteFailure("apply", fmt.Errorf("insert %s %s: %w", snap.Entity, snap.ID, persist.ErrDuplicateID))
		}
		attrs, err := canonicalize(snap.Attrs)
		if err != nil {
			return persist.WriteFailure("apply", fmt.Errorf("insert %s %s: %w", snap.Entity, snap.ID, err))
		}
		seq++
		next[snap.ID] = record.Snapshot{ID: snap.ID, Entity: snap.Entity, Seq: seq, Attrs: attrs}
	}

	for _, snap := range changes.Updates {
		cur, exists := next[snap.ID]
		if !exists || cur.Entity != snap.Entity {
			return persist.WriteFailure("apply", fmt.Errorf("update %s %s: %w", snap.Entity, snap.ID, persist.ErrRecordNotFound))
		}
		attrs, err := canonicalize(snap.Attrs)
		if err != nil {
			return persist.WriteFailure("apply", fmt.Errorf("update %s %s: %w", snap.Entity, snap.ID, err))
		}
		cur.Attrs = attrs
		next[snap.ID] = cur
	}

	for _, snap := range changes.Deletes {
		if cur, exists := next[snap.ID]; exists && cur.Entity == snap.Entity {
			delete(next, snap.ID)
		}
	}

	s.records = next
	s.seq = seq
	for i := range changes.Inserts {
		changes.Inserts[i].Seq = next[changes.Inserts[i].ID].Seq
	}
	return nil
}

// canonicalize round-trips attributes through canonical JSON so stored
// values match what the SQLite backends persist (NFC strings, no nulls).
func canonicalize(attrs ir.IRObject) (ir.IRObject, error) {
	if attrs == nil {
		return ir.IRObject{}, nil
	}
	data, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return nil, err
	}
	v, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("attributes decoded to %T", v)
	}
	return obj, nil
}
