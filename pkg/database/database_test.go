package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/testutil"
	"github.com/OldStager01/farm-bi/pkg/database"
)

func TestStatus_MigratedSchema(t *testing.T) {
	db := testutil.NewDB(t)

	st, err := db.Status(context.Background(), database.BITables...)

	require.NoError(t, err)
	assert.Equal(t, database.DriverSQLite, st.Driver)
	assert.NotEmpty(t, st.Version)
	assert.Empty(t, st.MissingTables)
}

func TestStatus_MissingTable(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.Exec(t, db, `DROP TABLE period_locks`)

	st, err := db.Status(context.Background(), database.BITables...)

	require.ErrorIs(t, err, database.ErrSchemaIncomplete)
	require.NotNil(t, st)
	assert.Equal(t, []string{"period_locks"}, st.MissingTables)
}

func TestTableExists(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	tests := []struct {
		table string
		want  bool
	}{
		{"alerts", true},
		{"pago_nomina", true},
		{"clusters", false},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			got, err := db.TableExists(ctx, tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
