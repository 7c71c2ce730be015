package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/homereach/lead-exchange-backend/internal/testutil/containers"
)

// NewContainerTestDB starts a disposable Postgres container, applies the
// schema, and registers cleanup. Used by the integration suite so it
// does not depend on a locally running Postgres.
func NewContainerTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := containers.NewPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := sql.Open("postgres", container.ConnectionString)
	require.NoError(t, err)

	err = db.Ping()
	require.NoError(t, err)

	tdb := &TestDB{
		t:      t,
		db:     db,
		dbName: "lex_test",
	}

	t.Cleanup(func() {
		db.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	tdb.InitSchema()

	return tdb
}
