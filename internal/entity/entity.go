package entity

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/filter"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
	"github.com/roach88/strata/internal/session"
)

// Storage is the write handle passed to Prevalidate and Modify. Changes
// made through it land in the same session as the operation that invoked
// the callback.
type Storage interface {
	Identifier() string
	Fetch(ctx context.Context, q queryir.Query) FetchResult
	Insert(kind string) (*record.Record, error)
	Remove(rec *record.Record)
	// IsPendingInsert reports whether rec was created in this session and
	// not yet saved, which lets Modify tell a create from an update.
	IsPendingInsert(rec *record.Record) bool
	Reconcile(ctx context.Context, spec Spec) Update
}

// Spec describes one reconciliation.
type Spec struct {
	// Kind is the entity kind instantiated on creation.
	Kind string
	// ShouldCreate allows creating a record when none match.
	ShouldCreate bool
	// ShouldUpdate runs Modify on existing matches.
	ShouldUpdate bool
	// Query selects candidate records. An empty Query.Entity means Kind.
	Query queryir.Query
	// Prevalidate runs on a new record before Modify. Returning false
	// discards the record. Nil accepts every record.
	Prevalidate func(ctx context.Context, rec *record.Record, s Storage) bool
	// Modify runs once per affected record. Nil does nothing.
	Modify func(ctx context.Context, rec *record.Record, s Storage)
}

// FetchResult is the outcome of a read. Records is empty, never nil, when
// the read degraded.
type FetchResult struct {
	Records  []*record.Record
	Degraded error
}

// Entity runs reconciliation against a session.
//
// Entity is not safe for concurrent use; it shares its session's
// single-goroutine contract.
type Entity struct {
	sess       *session.Session
	identifier string
	logger     *zap.Logger
}

var _ Storage = (*Entity)(nil)

// Option configures an Entity.
type Option func(*Entity)

// WithLogger overrides the session's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Entity) {
		e.logger = l
	}
}

// New binds an Entity to sess.
func New(sess *session.Session, opts ...Option) *Entity {
	e := &Entity{
		sess:       sess,
		identifier: sess.Identifier(),
		logger:     sess.Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Identifier names the store changes are pending against.
func (e *Entity) Identifier() string {
	return e.identifier
}

// Session returns the session changes are staged in.
func (e *Entity) Session() *session.Session {
	return e.sess
}

// Reconcile applies the decision table, first match wins:
//
//  1. ShouldUpdate and at least one match: Modify each match.
//  2. ShouldCreate: stage a new record of Kind; if Prevalidate rejects it,
//     discard it without calling Modify, otherwise Modify it.
//  3. Otherwise: nothing.
//
// A failed read counts as zero matches and is reported on Update.Degraded.
func (e *Entity) Reconcile(ctx context.Context, spec Spec) Update {
	q := spec.Query
	if q.Entity == "" {
		q.Entity = spec.Kind
	}

	var degraded error
	if spec.ShouldUpdate {
		res := e.Fetch(ctx, q)
		degraded = res.Degraded
		if len(res.Records) > 0 {
			for _, rec := range res.Records {
				if spec.Modify != nil {
					spec.Modify(ctx, rec, e)
				}
			}
			return e.update(Updated, res.Records, degraded)
		}
	}

	if !spec.ShouldCreate {
		return e.update(NoOp, nil, degraded)
	}
	return e.create(ctx, spec, degraded)
}

func (e *Entity) create(ctx context.Context, spec Spec, degraded error) Update {
	rec, err := e.sess.Insert(spec.Kind)
	if err != nil {
		u := e.update(NoOp, nil, degraded)
		u.Err = err
		return u
	}

	if spec.Prevalidate != nil && !spec.Prevalidate(ctx, rec, e) {
		e.sess.Remove(rec)
		e.logger.Debug("new record rejected by prevalidation",
			zap.String("kind", spec.Kind),
			zap.String("id", rec.ID()))
		return e.update(Rejected, []*record.Record{rec}, degraded)
	}

	if spec.Modify != nil {
		spec.Modify(ctx, rec, e)
	}
	return e.update(Created, []*record.Record{rec}, degraded)
}

// Fetch reads records matching q through the session. A failed read
// yields no records and sets Degraded.
func (e *Entity) Fetch(ctx context.Context, q queryir.Query) FetchResult {
	recs, err := e.sess.Fetch(ctx, q)
	if err != nil {
		e.logger.Warn("fetch degraded to empty result",
			zap.String("store", e.identifier),
			zap.String("query", q.String()),
			zap.Error(err))
		return FetchResult{Records: []*record.Record{}, Degraded: err}
	}
	return FetchResult{Records: recs}
}

// Delete stages every record matching q for removal.
func (e *Entity) Delete(ctx context.Context, q queryir.Query) Update {
	res := e.Fetch(ctx, q)
	for _, rec := range res.Records {
		e.sess.Remove(rec)
	}
	if len(res.Records) == 0 {
		return e.update(NoOp, nil, res.Degraded)
	}
	return e.update(Deleted, res.Records, res.Degraded)
}

// DeleteRequest starts a delete request for kind whose Execute calls
// Delete.
func (e *Entity) DeleteRequest(kind string) filter.DeleteRequest[Update] {
	return filter.NewDeleteRequest[Update](e.Delete, filter.New(kind))
}

// Insert stages a new record of kind in the session.
func (e *Entity) Insert(kind string) (*record.Record, error) {
	return e.sess.Insert(kind)
}

// Remove stages rec for removal in the session.
func (e *Entity) Remove(rec *record.Record) {
	e.sess.Remove(rec)
}

// IsPendingInsert reports whether rec is staged for creation.
func (e *Entity) IsPendingInsert(rec *record.Record) bool {
	return e.sess.IsPendingInsert(rec)
}

func (e *Entity) update(outcome Outcome, affected []*record.Record, degraded error) Update {
	return Update{
		Identifier: e.identifier,
		Outcome:    outcome,
		Affected:   affected,
		Degraded:   degraded,
		session:    e.sess,
	}
}
