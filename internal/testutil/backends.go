// Package testutil provides test helpers shared across packages: a
// deterministic ID generator and the matrix of persistence backends that
// store-agnostic tests run against.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/gormstore"
	"github.com/roach88/strata/internal/memstore"
	"github.com/roach88/strata/internal/persist"
	"github.com/roach88/strata/internal/store"
)

// Backend is one entry of the backend matrix.
type Backend struct {
	Name string
	Open func(t testing.TB) persist.Backend
}

// Backends returns every persist.Backend implementation, each opened on
// fresh storage and closed when the test ends.
func Backends() []Backend {
	return []Backend{
		{Name: "sqlite", Open: OpenSQLite},
		{Name: "gorm", Open: OpenGorm},
		{Name: "memory", Open: OpenMemory},
	}
}

// OpenSQLite opens a database/sql store in a temp directory.
func OpenSQLite(t testing.TB) persist.Backend {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "strata.db"), "sqlite-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// OpenGorm opens a GORM store in a temp directory.
func OpenGorm(t testing.TB) persist.Backend {
	t.Helper()
	s, err := gormstore.Open(filepath.Join(t.TempDir(), "strata-gorm.db"), "gorm-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// OpenMemory returns an empty in-memory store.
func OpenMemory(t testing.TB) persist.Backend {
	t.Helper()
	s := memstore.New("memory-test")
	t.Cleanup(func() { _ = s.Close() })
	return s
}
