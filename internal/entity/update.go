package entity

import (
	"context"

	"github.com/roach88/strata/internal/record"
	"github.com/roach88/strata/internal/session"
)

// Outcome is the branch an operation took.
type Outcome int

const (
	// NoOp means nothing was staged.
	NoOp Outcome = iota
	// Updated means Modify ran on existing records.
	Updated
	// Created means a new record was staged and Modify ran on it.
	Created
	// Rejected means Prevalidate refused a new record; it was discarded.
	Rejected
	// Deleted means matching records were staged for removal.
	Deleted
)

// String returns the lowercase outcome name used in logs and output.
func (o Outcome) String() string {
	switch o {
	case NoOp:
		return "noop"
	case Updated:
		return "updated"
	case Created:
		return "created"
	case Rejected:
		return "rejected"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Update is a pending change against a session. It is returned without
// committing.
type Update struct {
	// Identifier names the store the change is pending against.
	Identifier string
	// Outcome is the branch taken. On Rejected, Affected holds the
	// discarded record, which is no longer pending.
	Outcome Outcome
	// Affected holds the records modified, created or staged for removal.
	// A rejected record is included so callers can inspect it.
	Affected []*record.Record
	// Degraded is the read failure that was treated as zero matches.
	Degraded error
	// Err is set when nothing could be staged, e.g. an unknown kind.
	Err error

	session *session.Session
}

// Commit saves every pending change in the session, including changes
// staged by other operations.
func (u Update) Commit(ctx context.Context) error {
	if u.Err != nil {
		return u.Err
	}
	if u.session == nil {
		return nil
	}
	return u.session.Save(ctx)
}

// Changed reports whether the operation staged anything.
func (u Update) Changed() bool {
	switch u.Outcome {
	case Updated, Created, Deleted:
		return true
	default:
		return false
	}
}
