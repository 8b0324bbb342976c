// Package sqltest opens migrated sqlstore.Store instances for tests.
//
// SQLite stores are backed by a file in t.TempDir() and are always available.
// Postgres stores use the DSN from CIRCULATION_POSTGRES_DSN (or the local test database)
// and the adapter selected via the ADAPTER_TYPE environment variable.
// Tests are skipped when the Postgres database is not reachable.
package sqltest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore"
	"github.com/AntonStoeckl/library-circulation-go/library/shell/config"
)

// Adapter types supported via the ADAPTER_TYPE environment variable.
const (
	AdapterPGXPool = "pgx.pool"
	AdapterSQLDB   = "sql.db"
	AdapterSQLXDB  = "sqlx.db"
)

// OpenSQLiteStore returns a migrated SQLite store in a temporary directory.
func OpenSQLiteStore(t testing.TB, options ...sqlstore.Option) *sqlstore.Store {
	t.Helper()

	ctx := context.Background()

	db, err := config.OpenSQLite(ctx, filepath.Join(t.TempDir(), "circulation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := sqlstore.NewSQLiteStore(db, options...)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	return store
}

// OpenPostgresStore returns a migrated and emptied Postgres store or skips the test.
func OpenPostgresStore(t testing.TB, options ...sqlstore.Option) *sqlstore.Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dsn := os.Getenv(config.EnvPostgresDSN)
	if dsn == "" {
		dsn = config.PostgresTestDSN()
	}

	var store *sqlstore.Store
	var err error

	switch adapterType := os.Getenv("ADAPTER_TYPE"); adapterType {
	case AdapterSQLDB:
		db, openErr := config.OpenPostgresSQLDB(ctx, dsn)
		skipIfUnreachable(t, openErr)
		t.Cleanup(func() { _ = db.Close() })
		store, err = sqlstore.NewPostgresStoreFromSQLDB(db, options...)

	case AdapterSQLXDB:
		db, openErr := config.OpenPostgresSQLX(ctx, dsn)
		skipIfUnreachable(t, openErr)
		t.Cleanup(func() { _ = db.Close() })
		store, err = sqlstore.NewPostgresStoreFromSQLX(db, options...)

	case AdapterPGXPool, "":
		pool, openErr := config.NewPGXPool(ctx, dsn)
		skipIfUnreachable(t, openErr)
		t.Cleanup(pool.Close)
		store, err = sqlstore.NewPostgresStoreFromPGXPool(pool, options...)

	default:
		t.Fatalf("unsupported ADAPTER_TYPE %q", adapterType)
	}

	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Truncate(ctx))

	return store
}

func skipIfUnreachable(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
}
