package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
)

func ids(snaps []record.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}

func TestFetch_EvaluatesAndOrders(t *testing.T) {
	s := New("mem")
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, record.ChangeSet{Inserts: []record.Snapshot{
		{ID: "a", Entity: "User", Attrs: ir.IRObject{"age": ir.IRInt(2)}},
		{ID: "b", Entity: "User"},
		{ID: "c", Entity: "User", Attrs: ir.IRObject{"age": ir.IRInt(1)}},
		{ID: "x", Entity: "Pet", Attrs: ir.IRObject{"age": ir.IRInt(1)}},
	}}))

	got, err := s.Fetch(ctx, queryir.Query{Entity: "User"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got), "insertion order by default")

	got, err = s.Fetch(ctx, queryir.Query{Entity: "User", Sort: []queryir.SortKey{{Field: "age"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got))

	got, err = s.Fetch(ctx, queryir.Query{Entity: "User", Filter: queryir.Equals{Field: "age", Value: ir.IRInt(1)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))

	got, err = s.Fetch(ctx, queryir.Query{Entity: "User", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestFetch_ReturnsCopies(t *testing.T) {
	s := New("mem")
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, record.ChangeSet{Inserts: []record.Snapshot{
		{ID: "a", Entity: "User", Attrs: ir.IRObject{"n": ir.IRInt(1)}},
	}}))

	got, err := s.Fetch(ctx, queryir.Query{Entity: "User"})
	require.NoError(t, err)
	got[0].Attrs["n"] = ir.IRInt(99)

	again, err := s.Fetch(ctx, queryir.Query{Entity: "User"})
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1), again[0].Attrs["n"])
}

func TestFetch_FaultInjection(t *testing.T) {
	s := New("mem")
	ctx := context.Background()

	s.FailReads(errors.New("injected"))
	_, err := s.Fetch(ctx, queryir.Query{Entity: "User"})
	require.Error(t, err)
	assert.True(t, persist.IsReadFailure(err))

	s.FailReads(nil)
	_, err = s.Fetch(ctx, queryir.Query{Entity: "User"})
	assert.NoError(t, err)
}

func TestFetch_InvalidQuery(t *testing.T) {
	_, err := New("mem").Fetch(context.Background(), queryir.Query{
		Entity: "User",
		Filter: queryir.StringMatch{Field: "a", Op: queryir.Matches, Value: "["},
	})
	require.Error(t, err)
	assert.True(t, persist.IsReadFailure(err))
}

func TestFetch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New("mem").Fetch(ctx, queryir.Query{Entity: "User"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApply_Atomic(t *testing.T) {
	s := New("mem")
	ctx := context.Background()

	err := s.Apply(ctx, record.ChangeSet{
		Inserts: []record.Snapshot{{ID: "a", Entity: "User"}},
		Updates: []record.Snapshot{{ID: "ghost", Entity: "User"}},
	})
	require.Error(t, err)
	assert.True(t, persist.IsWriteFailure(err))
	assert.ErrorIs(t, err, persist.ErrRecordNotFound)
	assert.Equal(t, 0, s.Len())

	// seq is not consumed by the failed set
	require.NoError(t, s.Apply(ctx, record.ChangeSet{Inserts: []record.Snapshot{{ID: "a", Entity: "User"}}}))
	got, err := s.Fetch(ctx, queryir.Query{Entity: "User"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got[0].Seq)
}

func TestApply_DuplicateAndNulls(t *testing.T) {
	s := New("mem")
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, record.ChangeSet{Inserts: []record.Snapshot{{ID: "a", Entity: "User"}}}))

	err := s.Apply(ctx, record.ChangeSet{Inserts: []record.Snapshot{{ID: "a", Entity: "User"}}})
	assert.ErrorIs(t, err, persist.ErrDuplicateID)

	err = s.Apply(ctx, record.ChangeSet{Inserts: []record.Snapshot{{ID: "b", Entity: "User", Attrs: ir.IRObject{"x": ir.IRNull{}}}}})
	assert.True(t, persist.IsWriteFailure(err))
}

func TestApply_NormalizesStrings(t *testing.T) {
	s := New("mem")
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, record.ChangeSet{Inserts: []record.Snapshot{
		{ID: "a", Entity: "User", Attrs: ir.IRObject{"name": ir.IRString("cafe\u0301")}},
	}}))

	got, err := s.Fetch(ctx, queryir.Query{Entity: "User", Filter: queryir.Equals{Field: "name", Value: ir.IRString("caf\u00e9")}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestApply_DeleteRespectsEntity(t *testing.T) {
	s := New("mem")
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, record.ChangeSet{Inserts: []record.Snapshot{{ID: "a", Entity: "User"}}}))

	require.NoError(t, s.Apply(ctx, record.ChangeSet{Deletes: []record.Snapshot{{ID: "a", Entity: "Pet"}, {ID: "zz", Entity: "User"}}}))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Apply(ctx, record.ChangeSet{Deletes: []record.Snapshot{{ID: "a", Entity: "User"}}}))
	assert.Equal(t, 0, s.Len())
}

func TestClosed(t *testing.T) {
	s := New("mem")
	require.NoError(t, s.Close())

	_, err := s.Fetch(context.Background(), queryir.Query{Entity: "User"})
	assert.ErrorIs(t, err, persist.ErrClosed)

	err = s.Apply(context.Background(), record.ChangeSet{Inserts: []record.Snapshot{{ID: "a", Entity: "User"}}})
	assert.ErrorIs(t, err, persist.ErrClosed)
	assert.True(t, persist.IsWriteFailure(err))
}
