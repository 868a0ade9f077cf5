package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/memstore"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/record"
	"github.com/roach88/strata/internal/schema"
	"github.com/roach88/strata/internal/testutil"
)

func seeded(t *testing.T, snaps ...record.Snapshot) *memstore.Store {
	t.Helper()
	store := memstore.New("mem")
	require.NoError(t, store.Apply(context.Background(), record.ChangeSet{Inserts: snaps}))
	return store
}

func user(id string, age int64) record.Snapshot {
	return record.Snapshot{ID: id, Entity: "User", Attrs: ir.IRObject{"age": ir.IRInt(age)}}
}

func ids(recs []*record.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}

var all = queryir.Query{Entity: "User"}

func TestFetch_IdentityMap(t *testing.T) {
	sess := New(seeded(t, user("a", 1)))
	ctx := context.Background()

	first, err := sess.Fetch(ctx, all)
	require.NoError(t, err)
	second, err := sess.Fetch(ctx, all)
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Same(t, first[0], second[0])
}

func TestFetch_PushesDownWithoutPendingChanges(t *testing.T) {
	sess := New(seeded(t, user("a", 3), user("b", 1), user("c", 2)))

	got, err := sess.Fetch(context.Background(), queryir.Query{
		Entity: "User",
		Sort:   []queryir.SortKey{{Field: "age"}},
		Limit:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(got))
}

func TestFetch_SeesPendingChanges(t *testing.T) {
	sess := New(seeded(t, user("a", 1), user("b", 2), user("c", 3)),
		WithIDGenerator(record.NewFixedGenerator("n1", "n2")))
	ctx := context.Background()
	adults := queryir.Query{Entity: "User", Filter: queryir.In{Field: "age", Values: []ir.IRValue{ir.IRInt(2), ir.IRInt(3)}}}

	loaded, err := sess.Fetch(ctx, all)
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	// a now matches, b no longer does, c is removed
	require.NoError(t, loaded[0].Set("age", ir.IRInt(2)))
	require.NoError(t, loaded[1].Set("age", ir.IRInt(9)))
	sess.Remove(loaded[2])

	n1, err := sess.Insert("User")
	require.NoError(t, err)
	require.NoError(t, n1.Set("age", ir.IRInt(3)))
	n2, err := sess.Insert("User")
	require.NoError(t, err)
	require.NoError(t, n2.Set("age", ir.IRInt(7)))

	got, err := sess.Fetch(ctx, adults)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "n1"}, ids(got))

	got, err = sess.Fetch(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "n1", "n2"}, ids(got), "persisted by seq, then inserts in staging order")

	got, err = sess.Fetch(ctx, queryir.Query{Entity: "User", Sort: []queryir.SortKey{{Field: "age", Descending: true}}, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"n2", "n1"}, ids(got))
}

func TestFetch_OtherEntitiesUnaffected(t *testing.T) {
	store := seeded(t, user("a", 1), record.Snapshot{ID: "p", Entity: "Pet"})
	sess := New(store, WithIDGenerator(record.NewFixedGenerator("n1")))
	ctx := context.Background()

	_, err := sess.Insert("User")
	require.NoError(t, err)

	pets, err := sess.Fetch(ctx, queryir.Query{Entity: "Pet"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, ids(pets))
}

func TestFetch_Failures(t *testing.T) {
	store := seeded(t, user("a", 1))
	sess := New(store)
	ctx := context.Background()

	_, err := sess.Fetch(ctx, queryir.Query{})
	assert.True(t, persist.IsReadFailure(err), "invalid query")

	store.FailReads(errors.New("disk on fire"))
	_, err = sess.Fetch(ctx, all)
	assert.True(t, persist.IsReadFailure(err))
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestInsertRemove_CancelsPendingInsert(t *testing.T) {
	sess := New(memstore.New("mem"), WithIDGenerator(record.NewFixedGenerator("n1")))

	rec, err := sess.Insert("User")
	require.NoError(t, err)
	assert.True(t, sess.IsPendingInsert(rec))
	assert.True(t, sess.HasChanges())

	sess.Remove(rec)
	assert.False(t, sess.IsPendingInsert(rec))
	assert.False(t, sess.HasChanges())
	assert.True(t, sess.Pending().Empty())
}

func TestInsert_InvalidKind(t *testing.T) {
	_, err := New(memstore.New("mem")).Insert("not a kind")
	assert.True(t, queryir.IsQueryError(err))
}

func TestSave(t *testing.T) {
	store := seeded(t, user("a", 1), user("b", 2))
	sess := New(store, WithIDGenerator(record.NewFixedGenerator("n1")))
	ctx := context.Background()

	loaded, err := sess.Fetch(ctx, all)
	require.NoError(t, err)
	require.NoError(t, loaded[0].Set("age", ir.IRInt(10)))
	sess.Remove(loaded[1])
	sess.Remove(loaded[1])
	n1, err := sess.Insert("User")
	require.NoError(t, err)
	require.NoError(t, n1.Set("age", ir.IRInt(5)))

	pending := sess.Pending()
	assert.Len(t, pending.Inserts, 1)
	assert.Len(t, pending.Updates, 1)
	assert.Len(t, pending.Deletes, 1)

	require.NoError(t, sess.Save(ctx))
	assert.False(t, sess.HasChanges())

	fresh := New(store)
	got, err := fresh.Fetch(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "n1"}, ids(got))
	assert.Equal(t, ir.IRInt(10), got[0].Get("age"))
	assert.Equal(t, ir.IRInt(5), got[1].Get("age"))
}

func TestSave_EmptyIsNoOp(t *testing.T) {
	store := memstore.New("mem")
	store.FailWrites(errors.New("must not be called"))
	assert.NoError(t, New(store).Save(context.Background()))
}

func TestSave_FailureKeepsPending(t *testing.T) {
	store := memstore.New("mem")
	sess := New(store, WithIDGenerator(record.NewFixedGenerator("n1")))
	ctx := context.Background()

	_, err := sess.Insert("User")
	require.NoError(t, err)

	store.FailWrites(errors.New("read-only"))
	err = sess.Save(ctx)
	require.Error(t, err)
	assert.True(t, persist.IsWriteFailure(err))
	assert.True(t, sess.HasChanges())

	store.FailWrites(nil)
	require.NoError(t, sess.Save(ctx))
	assert.Equal(t, 1, store.Len())
}

func TestRollback(t *testing.T) {
	sess := New(seeded(t, user("a", 1), user("b", 2)), WithIDGenerator(record.NewFixedGenerator("n1")))
	ctx := context.Background()

	loaded, err := sess.Fetch(ctx, all)
	require.NoError(t, err)
	require.NoError(t, loaded[0].Set("age", ir.IRInt(99)))
	sess.Remove(loaded[1])
	_, err = sess.Insert("User")
	require.NoError(t, err)

	sess.Rollback()
	assert.False(t, sess.HasChanges())
	assert.Equal(t, ir.IRInt(1), loaded[0].Get("age"))

	got, err := sess.Fetch(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestSchema(t *testing.T) {
	s, err := schema.Compile(`entity: User: { age: int, nick?: string }`)
	require.NoError(t, err)

	store := memstore.New("mem")
	sess := New(store, WithSchema(s), WithIDGenerator(record.NewFixedGenerator("n1", "n2")))
	ctx := context.Background()

	_, err = sess.Insert("Pet")
	var schemaErr *schema.SchemaError
	assert.True(t, errors.As(err, &schemaErr))

	_, err = sess.Fetch(ctx, queryir.Query{Entity: "User", Filter: queryir.Equals{Field: "email", Value: ir.IRString("x")}})
	assert.True(t, persist.IsReadFailure(err))
	assert.True(t, errors.As(err, &schemaErr))

	rec, err := sess.Insert("User")
	require.NoError(t, err)
	err = sess.Save(ctx)
	assert.True(t, persist.IsWriteFailure(err), "age is required")
	assert.Equal(t, 0, store.Len())

	require.NoError(t, rec.Set("age", ir.IRInt(4)))
	require.NoError(t, sess.Save(ctx))
	assert.Equal(t, 1, store.Len())
}

func TestSave_AssignsSeqToInsertedRecords(t *testing.T) {
	named := func(name string) queryir.Query {
		return queryir.Query{
			Entity: "User",
			Filter: queryir.Equals{Field: "name", Value: ir.IRString(name)},
			Limit:  1,
		}
	}

	for _, b := range testutil.Backends() {
		t.Run(b.Name, func(t *testing.T) {
			backend := b.Open(t)
			ctx := context.Background()
			sess := New(backend, WithIDGenerator(record.NewFixedGenerator("b", "a")))

			var created []*record.Record
			for range 2 {
				rec, err := sess.Insert("User")
				require.NoError(t, err)
				require.NoError(t, rec.Set("name", ir.IRString("x")))
				created = append(created, rec)
			}
			require.NoError(t, sess.Save(ctx))
			assert.Less(t, created[0].Seq(), created[1].Seq())
			assert.NotZero(t, created[0].Seq())

			for _, rec := range created {
				require.NoError(t, rec.Set("name", ir.IRString("y")))
			}
			pending, err := sess.Fetch(ctx, named("y"))
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, ids(pending))

			require.NoError(t, sess.Save(ctx))
			committed, err := New(backend).Fetch(ctx, named("y"))
			require.NoError(t, err)
			assert.Equal(t, ids(pending), ids(committed))
		})
	}
}
