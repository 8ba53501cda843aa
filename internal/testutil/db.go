package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/pkg/database"
)

// NewDB opens a migrated in-memory SQLite database that is closed when the
// test ends.
func NewDB(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{Driver: database.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db).Run(context.Background()))
	return db
}

// Exec runs seed statements, failing the test on the first error.
func Exec(t testing.TB, db *database.DB, query string, args ...interface{}) {
	t.Helper()
	_, err := db.Exec(db.Rebind(query), args...)
	require.NoError(t, err)
}
