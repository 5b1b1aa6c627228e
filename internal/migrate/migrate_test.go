package migrate_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-mcp/internal/migrate"
	"github.com/chirino/memory-mcp/internal/testutil/testpg"
)

func TestRunFreshInstallCreatesCurrentSchema(t *testing.T) {
	ctx := context.Background()
	dbURL := testpg.StartPostgres(t)

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrate.Run(ctx, pool))

	var version int
	err = pool.QueryRow(ctx, `SELECT (value)::int FROM system_state WHERE key = 'db_version'`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, migrate.CurrentVersion, version)

	for _, table := range []string{"memories", "system_state", "label_tokens"} {
		var exists bool
		err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		require.Truef(t, exists, "expected table %s to exist", table)
	}
}

func TestConcurrentStartupsRaceOneWinner(t *testing.T) {
	ctx := context.Background()
	dbURL := testpg.StartPostgres(t)

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	const n = 4
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- migrate.Run(ctx, pool)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err, "losers of the advisory-lock race must skip without error")
	}

	var version int
	err = pool.QueryRow(ctx, `SELECT (value)::int FROM system_state WHERE key = 'db_version'`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, migrate.CurrentVersion, version)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dbURL := testpg.StartPostgres(t)

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrate.Run(ctx, pool))
	require.NoError(t, migrate.Run(ctx, pool))

	var version int
	err = pool.QueryRow(ctx, `SELECT (value)::int FROM system_state WHERE key = 'db_version'`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, migrate.CurrentVersion, version)
}
