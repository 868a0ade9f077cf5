package gormstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "gorm.db"), "gorm-test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insert(t *testing.T, s *Store, snaps ...record.Snapshot) {
	t.Helper()
	require.NoError(t, s.Apply(context.Background(), record.ChangeSet{Inserts: snaps}))
}

func ids(snaps []record.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}

func TestOpen_Migrates(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, "gorm-test", s.Identifier())
	assert.True(t, s.DB().Migrator().HasTable("records"))
	assert.True(t, s.DB().Migrator().HasColumn(&recordRow{}, "checksum"))
}

func TestFetch_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	insert(t, s,
		record.Snapshot{ID: "u1", Entity: "User", Attrs: ir.IRObject{"email": ir.IRString("a@x.com"), "age": ir.IRInt(30)}},
		record.Snapshot{ID: "p1", Entity: "Pet", Attrs: ir.IRObject{"email": ir.IRString("a@x.com")}},
	)

	snaps, err := s.Fetch(context.Background(), queryir.Query{
		Entity: "User",
		Filter: queryir.Equals{Field: "email", Value: ir.IRString("a@x.com")},
	})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "u1", snaps[0].ID)
	assert.Equal(t, ir.IRInt(30), snaps[0].Attrs["age"])
	assert.Positive(t, snaps[0].Seq)
}

func TestFetch_TrueFilterIsNotPrimaryKey(t *testing.T) {
	s := createTestStore(t)
	insert(t, s,
		record.Snapshot{ID: "u1", Entity: "User"},
		record.Snapshot{ID: "u2", Entity: "User"},
	)

	snaps, err := s.Fetch(context.Background(), queryir.Query{Entity: "User", Filter: queryir.True{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids(snaps))

	snaps, err = s.Fetch(context.Background(), queryir.Query{Entity: "User", Filter: queryir.Or{}})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestFetch_BatchesPreserveOrder(t *testing.T) {
	s := createTestStore(t)
	var snaps []record.Snapshot
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		snaps = append(snaps, record.Snapshot{ID: id, Entity: "Row", Attrs: ir.IRObject{"even": ir.IRBool(id == "r2" || id == "r4")}})
	}
	insert(t, s, snaps...)
	ctx := context.Background()

	all, err := s.Fetch(ctx, queryir.Query{Entity: "Row", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, ids(all))

	odd, err := s.Fetch(ctx, queryir.Query{
		Entity:    "Row",
		Filter:    queryir.Not{Predicate: queryir.Equals{Field: "even", Value: ir.IRBool(true)}},
		BatchSize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r3", "r5"}, ids(odd))
}

func TestFetch_SortLimitOffset(t *testing.T) {
	s := createTestStore(t)
	insert(t, s,
		record.Snapshot{ID: "a", Entity: "User", Attrs: ir.IRObject{"age": ir.IRInt(3)}},
		record.Snapshot{ID: "b", Entity: "User", Attrs: ir.IRObject{"age": ir.IRInt(1)}},
		record.Snapshot{ID: "c", Entity: "User"},
	)
	ctx := context.Background()

	got, err := s.Fetch(ctx, queryir.Query{Entity: "User", Sort: []queryir.SortKey{{Field: "age", Descending: true}}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))

	got, err = s.Fetch(ctx, queryir.Query{Entity: "User", Sort: []queryir.SortKey{{Field: "age"}}, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(got))
}

func TestFetch_InvalidQueryIsReadFailure(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Fetch(context.Background(), queryir.Query{Entity: ""})
	require.Error(t, err)
	assert.True(t, persist.IsReadFailure(err))
}

func TestApply_UpdateMissingRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Apply(ctx, record.ChangeSet{
		Inserts: []record.Snapshot{{ID: "u1", Entity: "User"}},
		Updates: []record.Snapshot{{ID: "ghost", Entity: "User", Attrs: ir.IRObject{"a": ir.IRInt(1)}}},
	})
	require.Error(t, err)
	assert.True(t, persist.IsWriteFailure(err))
	assert.ErrorIs(t, err, persist.ErrRecordNotFound)

	snaps, err := s.Fetch(ctx, queryir.Query{Entity: "User"})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestApply_UpdateAndDelete(t *testing.T) {
	s := createTestStore(t)
	insert(t, s,
		record.Snapshot{ID: "u1", Entity: "User", Attrs: ir.IRObject{"n": ir.IRInt(1)}},
		record.Snapshot{ID: "u2", Entity: "User", Attrs: ir.IRObject{"n": ir.IRInt(2)}},
	)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, record.ChangeSet{
		Updates: []record.Snapshot{{ID: "u1", Entity: "User", Attrs: ir.IRObject{"n": ir.IRInt(5)}}},
		Deletes: []record.Snapshot{{ID: "u2", Entity: "User"}, {ID: "gone", Entity: "User"}},
	}))

	snaps, err := s.Fetch(ctx, queryir.Query{Entity: "User"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, ir.IRInt(5), snaps[0].Attrs["n"])

	var row recordRow
	require.NoError(t, s.DB().First(&row, "id = ?", "u1").Error)
	sum, err := ir.RecordChecksum("User", ir.IRObject{"n": ir.IRInt(5)})
	require.NoError(t, err)
	assert.Equal(t, sum, row.Checksum)
}

func TestApply_DuplicateIDIsWriteFailure(t *testing.T) {
	s := createTestStore(t)
	insert(t, s, record.Snapshot{ID: "u1", Entity: "User"})

	err := s.Apply(context.Background(), record.ChangeSet{
		Inserts: []record.Snapshot{{ID: "u1", Entity: "User"}},
	})
	require.Error(t, err)
	assert.True(t, persist.IsWriteFailure(err))
}

func TestVerify(t *testing.T) {
	s := createTestStore(t)
	insert(t, s,
		record.Snapshot{ID: "a", Entity: "Person", Attrs: ir.IRObject{"name": ir.IRString("Ann")}},
		record.Snapshot{ID: "b", Entity: "Person", Attrs: ir.IRObject{"name": ir.IRString("Bob")}},
	)

	mismatched, err := s.Verify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mismatched)

	require.NoError(t, s.DB().Exec(`UPDATE records SET attrs = '{"name":"Eve"}' WHERE id = 'b'`).Error)

	mismatched, err = s.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, mismatched)
}
