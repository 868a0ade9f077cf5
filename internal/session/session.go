// Package session implements a unit of work over a persist.Backend.
//
// A Session loads records into an identity map, tracks inserts, attribute
// edits and removals, and writes them in one atomic Apply on Save. Reads
// see the session's own pending changes: edited records are re-evaluated
// against the query, removed records disappear and matching inserts are
// appended after persisted records.
//
// A Session is not safe for concurrent use. Different sessions over the
// same backend are independent.
package session

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
	"github.com/roach88/strata/internal/schema"
)

// Session stages record changes until Save.
type Session struct {
	backend persist.Backend
	schema  *schema.Schema
	ids     record.IDGenerator
	logger  *zap.Logger

	loaded   map[string]*record.Record // persisted records seen by Fetch
	inserted []*record.Record          // pending inserts, in staging order
	removed  []*record.Record          // persisted records staged for removal
}

// Option configures a Session.
type Option func(*Session)

// WithSchema validates queries on Fetch and records on Save.
func WithSchema(s *schema.Schema) Option {
	return func(sess *Session) {
		sess.schema = s
	}
}

// WithIDGenerator sets the generator for inserted record IDs.
// Default: record.UUIDv7Generator.
func WithIDGenerator(g record.IDGenerator) Option {
	return func(sess *Session) {
		sess.ids = g
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(sess *Session) {
		sess.logger = l
	}
}

// New creates a session over backend.
func New(backend persist.Backend, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		ids:     record.UUIDv7Generator{},
		logger:  zap.NewNop(),
		loaded:  make(map[string]*record.Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identifier names the backing store.
func (s *Session) Identifier() string {
	return s.backend.Identifier()
}

// Logger returns the session's logger.
func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// Fetch returns records matching q as seen through pending changes.
//
// Invalid queries and schema violations are returned as READ_FAILURE
// errors, the same as backend read errors.
func (s *Session) Fetch(ctx context.Context, q queryir.Query) ([]*record.Record, error) {
	op := "fetch " + q.Entity
	if err := queryir.Check(q); err != nil {
		return nil, persist.ReadFailure(op, err)
	}
	if s.schema != nil {
		if err := s.schema.CheckQuery(q); err != nil {
			return nil, persist.ReadFailure(op, err)
		}
	}

	var (
		out []*record.Record
		err error
	)
	if s.hasPending(q.Entity) {
		out, err = s.fetchMerged(ctx, q)
	} else {
		out, err = s.fetchDirect(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("fetch",
		zap.String("query", q.String()),
		zap.String("fingerprint", q.Fingerprint()),
		zap.Int("results", len(out)))
	return out, nil
}

// fetchDirect pushes ordering and paging down to the backend.
func (s *Session) fetchDirect(ctx context.Context, q queryir.Query) ([]*record.Record, error) {
	snaps, err := s.backend.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, s.adopt(snap))
	}
	return out, nil
}

// fetchMerged evaluates the filter against local state, then orders and
// pages in memory.
func (s *Session) fetchMerged(ctx context.Context, q queryir.Query) ([]*record.Record, error) {
	snaps, err := s.backend.Fetch(ctx, queryir.Query{
		Entity:    q.Entity,
		Filter:    q.Filter,
		BatchSize: q.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]*record.Record, len(snaps))
	for _, snap := range snaps {
		rec := s.adopt(snap)
		candidates[rec.ID()] = rec
	}
	// Edited records may match now even though their stored form does not.
	for id, rec := range s.loaded {
		if rec.Entity() == q.Entity && rec.IsDirty() {
			candidates[id] = rec
		}
	}
	for _, rec := range s.removed {
		delete(candidates, rec.ID())
	}

	out := make([]*record.Record, 0, len(candidates))
	for _, rec := range candidates {
		if queryir.Eval(q.Filter, rec.Attributes()) {
			out = append(out, rec)
		}
	}

	pendingRank := make(map[string]int, len(s.inserted))
	for i, rec := range s.inserted {
		if rec.Entity() != q.Entity {
			continue
		}
		pendingRank[rec.ID()] = i
		if queryir.Eval(q.Filter, rec.Attributes()) {
			out = append(out, rec)
		}
	}

	queryir.SortRecords(out, q.Sort, (*record.Record).Attributes, func(a, b *record.Record) int {
		ra, aPending := pendingRank[a.ID()]
		rb, bPending := pendingRank[b.ID()]
		switch {
		case aPending && bPending:
			return ra - rb
		case aPending:
			return 1
		case bPending:
			return -1
		}
		return compareSeqID(a, b)
	})
	return queryir.Page(out, q.Limit, q.Offset), nil
}

// adopt maps a snapshot to the session's instance for that ID.
func (s *Session) adopt(snap record.Snapshot) *record.Record {
	if rec, ok := s.loaded[snap.ID]; ok {
		rec.Refresh(snap)
		return rec
	}
	rec := record.FromSnapshot(snap)
	s.loaded[snap.ID] = rec
	return rec
}

func (s *Session) hasPending(entity string) bool {
	for _, rec := range s.inserted {
		if rec.Entity() == entity {
			return true
		}
	}
	for _, rec := range s.removed {
		if rec.Entity() == entity {
			return true
		}
	}
	for _, rec := range s.loaded {
		if rec.Entity() == entity && rec.IsDirty() {
			return true
		}
	}
	return false
}

// Insert stages a new empty record of kind. The record is pending
// immediately; Remove cancels it.
func (s *Session) Insert(kind string) (*record.Record, error) {
	if !queryir.ValidField(kind) {
		return nil, &queryir.QueryError{Field: kind, Message: "invalid entity kind"}
	}
	if s.schema != nil {
		if _, ok := s.schema.Kind(kind); !ok {
			return nil, &schema.SchemaError{Field: kind, Message: "unknown entity kind"}
		}
	}
	rec := record.New(s.ids.Generate(), kind)
	s.inserted = append(s.inserted, rec)
	return rec, nil
}

// Remove stages rec for deletion. Removing a pending insert cancels the
// insert; removing a record twice is a no-op.
func (s *Session) Remove(rec *record.Record) {
	for i, pending := range s.inserted {
		if pending == rec || pending.ID() == rec.ID() {
			s.inserted = append(s.inserted[:i:i], s.inserted[i+1:]...)
			return
		}
	}
	for _, r := range s.removed {
		if r.ID() == rec.ID() {
			return
		}
	}
	s.removed = append(s.removed, rec)
}

// IsPendingInsert reports whether rec is staged for creation.
func (s *Session) IsPendingInsert(rec *record.Record) bool {
	for _, pending := range s.inserted {
		if pending.ID() == rec.ID() {
			return true
		}
	}
	return false
}

// IsRemoved reports whether rec is staged for removal.
func (s *Session) IsRemoved(rec *record.Record) bool {
	for _, r := range s.removed {
		if r.ID() == rec.ID() {
			return true
		}
	}
	return false
}

// Pending returns the changes Save would apply. Updates are ordered by
// (seq, id); inserts and deletes keep staging order.
func (s *Session) Pending() record.ChangeSet {
	var changes record.ChangeSet
	for _, rec := range s.inserted {
		changes.Inserts = append(changes.Inserts, rec.Snapshot())
	}

	var dirty []*record.Record
	for _, rec := range s.loaded {
		if rec.IsDirty() && !s.IsRemoved(rec) {
			dirty = append(dirty, rec)
		}
	}
	sort.Slice(dirty, func(i, j int) bool {
		return compareSeqID(dirty[i], dirty[j]) < 0
	})
	for _, rec := range dirty {
		changes.Updates = append(changes.Updates, rec.Snapshot())
	}

	for _, rec := range s.removed {
		changes.Deletes = append(changes.Deletes, rec.Snapshot())
	}
	return changes
}

// HasChanges reports whether Save would write anything.
func (s *Session) HasChanges() bool {
	return !s.Pending().Empty()
}

// Save applies pending changes atomically. On failure nothing is written
// and the pending changes are kept, so the caller can retry or Rollback.
func (s *Session) Save(ctx context.Context) error {
	changes := s.Pending()
	if changes.Empty() {
		return nil
	}

	if s.schema != nil {
		for _, set := range [][]record.Snapshot{changes.Inserts, changes.Updates} {
			for _, snap := range set {
				if err := s.schema.CheckRecord(snap); err != nil {
					return persist.WriteFailure("save", err)
				}
			}
		}
	}

	if err := s.backend.Apply(ctx, changes); err != nil {
		s.logger.Warn("save failed", zap.String("store", s.Identifier()), zap.Error(err))
		return err
	}

	for i, rec := range s.inserted {
		rec.SetSeq(changes.Inserts[i].Seq)
		rec.MarkClean()
		s.loaded[rec.ID()] = rec
	}
	for _, rec := range s.loaded {
		if rec.IsDirty() {
			rec.MarkClean()
		}
	}
	for _, rec := range s.removed {
		delete(s.loaded, rec.ID())
	}
	s.inserted = nil
	s.removed = nil

	s.logger.Debug("saved",
		zap.String("store", s.Identifier()),
		zap.Int("inserts", len(changes.Inserts)),
		zap.Int("updates", len(changes.Updates)),
		zap.Int("deletes", len(changes.Deletes)))
	return nil
}

// Rollback discards pending inserts, reverts edits and clears removals.
func (s *Session) Rollback() {
	s.inserted = nil
	s.removed = nil
	for _, rec := range s.loaded {
		if rec.IsDirty() {
			rec.Revert()
		}
	}
}

func compareSeqID(a, b *record.Record) int {
	switch {
	case a.Seq() < b.Seq():
		return -1
	case a.Seq() > b.Seq():
		return 1
	case a.ID() < b.ID():
		return -1
	case a.ID() > b.ID():
		return 1
	}
	return 0
}
