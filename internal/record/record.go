// Package record defines the entity instances a session manages and the
// immutable snapshots exchanged with storage backends.
package record

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/strata/internal/ir"
)

// Snapshot is the immutable form of a record exchanged with backends.
//
// Seq is assigned by the backend on insert and is the first ordering
// tiebreak; it is zero for records that were never persisted.
type Snapshot struct {
	ID     string      `json:"id"`
	Entity string      `json:"entity"`
	Seq    int64       `json:"seq"`
	Attrs  ir.IRObject `json:"attrs"`
}

// Clone returns a copy that shares no attribute map with s.
func (s Snapshot) Clone() Snapshot {
	s.Attrs = s.Attrs.Clone()
	if s.Attrs == nil {
		s.Attrs = ir.IRObject{}
	}
	return s
}

// ChangeSet groups staged mutations for one Apply call.
// Backends apply inserts, then updates, then deletes, atomically.
type ChangeSet struct {
	Inserts []Snapshot `json:"inserts"`
	Updates []Snapshot `json:"updates"`
	Deletes []Snapshot `json:"deletes"`
}

// Empty reports whether the change set has nothing to apply.
func (c ChangeSet) Empty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.Deletes) == 0
}

// Len returns the total number of staged mutations.
func (c ChangeSet) Len() int {
	return len(c.Inserts) + len(c.Updates) + len(c.Deletes)
}

// Record is a mutable entity instance owned by a session.
//
// Attributes are scalars only. Setting an attribute to null removes it, so a
// stored record never holds an explicit null. Strings are NFC normalized on
// write so every backend compares the same bytes.
//
// Record is not safe for concurrent use; it belongs to its session's
// goroutine.
type Record struct {
	id     string
	entity string
	seq    int64
	attrs  ir.IRObject
	clean  ir.IRObject
	dirty  bool
}

// New creates an empty, never-persisted record.
func New(id, entity string) *Record {
	return &Record{
		id:     id,
		entity: entity,
		attrs:  ir.IRObject{},
		clean:  ir.IRObject{},
	}
}

// FromSnapshot creates a clean record from backend data.
func FromSnapshot(s Snapshot) *Record {
	s = s.Clone()
	return &Record{
		id:     s.ID,
		entity: s.Entity,
		seq:    s.Seq,
		attrs:  s.Attrs,
		clean:  s.Attrs.Clone(),
	}
}

// ID returns the record identifier.
func (r *Record) ID() string { return r.id }

// Entity returns the entity kind.
func (r *Record) Entity() string { return r.entity }

// Seq returns the backend insertion sequence (zero before first save).
func (r *Record) Seq() int64 { return r.seq }

// Get returns an attribute value, or ir.IRNull{} when absent.
func (r *Record) Get(field string) ir.IRValue {
	v, ok := r.attrs[field]
	if !ok {
		return ir.IRNull{}
	}
	return v
}

// Set assigns an attribute. A null value removes the attribute.
func (r *Record) Set(field string, value ir.IRValue) error {
	if field == "" {
		return fmt.Errorf("set attribute on %s %s: empty attribute name", r.entity, r.id)
	}
	switch v := value.(type) {
	case nil, ir.IRNull:
		if _, ok := r.attrs[field]; ok {
			delete(r.attrs, field)
			r.dirty = true
		}
		return nil
	case ir.IRString:
		value = ir.IRString(norm.NFC.String(string(v)))
	case ir.IRInt, ir.IRBool:
	default:
		return fmt.Errorf("set attribute %q on %s %s: unsupported value type %T", field, r.entity, r.id, value)
	}
	if cur, ok := r.attrs[field]; ok && sameValue(cur, value) {
		return nil
	}
	r.attrs[field] = value
	r.dirty = true
	return nil
}

// sameValue is stricter than ir.Equal: true and 1 are different writes.
func sameValue(a, b ir.IRValue) bool {
	return a == b
}

// Attributes returns a copy of the record's attributes.
func (r *Record) Attributes() ir.IRObject {
	return r.attrs.Clone()
}

// IsDirty reports whether attributes changed since the last save or load.
func (r *Record) IsDirty() bool {
	return r.dirty
}

// Snapshot returns the record's current state.
func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		ID:     r.id,
		Entity: r.entity,
		Seq:    r.seq,
		Attrs:  r.attrs.Clone(),
	}
}

// MarkClean records the current attributes as persisted.
func (r *Record) MarkClean() {
	r.clean = r.attrs.Clone()
	r.dirty = false
}

// Revert discards unsaved attribute changes.
func (r *Record) Revert() {
	r.attrs = r.clean.Clone()
	r.dirty = false
}

// Refresh adopts backend state for a clean record. Dirty records keep their
// local edits and only pick up the sequence number.
func (r *Record) Refresh(s Snapshot) {
	r.seq = s.Seq
	if r.dirty {
		return
	}
	r.attrs = s.Attrs.Clone()
	if r.attrs == nil {
		r.attrs = ir.IRObject{}
	}
	r.clean = r.attrs.Clone()
}

// SetSeq records the sequence number assigned on insert.
func (r *Record) SetSeq(seq int64) {
	r.seq = seq
}
