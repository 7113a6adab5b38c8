package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravedigest/ravedigest/pkg/database"
	"github.com/ravedigest/ravedigest/test/util"
)

func TestMigrationsCreateTables(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	for _, table := range []string{"rave_articles", "digests"} {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1 AND table_schema = current_schema()
			)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist after migrations", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := util.SetupTestDatabase(t)

	// SetupTestDatabase already migrated once; a second run is a no-op.
	require.NoError(t, database.Migrate(db, "test"))
}

func TestHealthReportsPoolStats(t *testing.T) {
	db := util.SetupTestDatabase(t)
	client := database.NewClientFromDB(db)

	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 10, status.MaxOpenConns)
	assert.GreaterOrEqual(t, status.ResponseTime, int64(0))
}
