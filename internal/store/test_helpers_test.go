package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/record"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, "test")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seed inserts records in order and returns their snapshots.
func seed(t *testing.T, s *Store, entity string, rows ...ir.IRObject) {
	t.Helper()
	var cs record.ChangeSet
	for i, attrs := range rows {
		cs.Inserts = append(cs.Inserts, record.Snapshot{
			ID:     entity + "-" + string(rune('a'+i)),
			Entity: entity,
			Attrs:  attrs,
		})
	}
	require.NoError(t, s.Apply(context.Background(), cs))
}

func ids(snaps []record.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}
