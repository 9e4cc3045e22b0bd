// Package sqlitetest sets up throwaway migrated databases for tests.
package sqlitetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jdholdren/feedhub/internal/migrations"
	"github.com/jdholdren/feedhub/internal/sqlite"
)

// NewRepo returns a repo over a fresh, migrated database file that's removed when the test ends.
func NewRepo(t *testing.T) sqlite.Repo {
	t.Helper()

	dbx, err := sqlite.Open(filepath.Join(t.TempDir(), "feedhub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })

	require.NoError(t, migrations.Run(dbx))

	return sqlite.New(dbx)
}
