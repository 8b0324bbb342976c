package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/library/shell/config"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

func Test_FromLookup_UsesDefaultsWithoutEnvironment(t *testing.T) {
	// act
	cfg, err := config.FromLookup(lookupFrom(nil))

	// assert
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, config.StorePostgresPGX, cfg.Store)
}

func Test_FromLookup_ReadsEnvironment(t *testing.T) {
	// arrange
	env := map[string]string{
		config.EnvHTTPAddr:            ":8080",
		config.EnvStore:               "sqlite",
		config.EnvSQLitePath:          "/tmp/lib.db",
		config.EnvRedisAddr:           "localhost:6379",
		config.EnvLockTTL:             "3s",
		config.EnvLogLevel:            "debug",
		config.EnvUnconditionalDelete: "true",
		config.EnvShutdownTimeout:     "1m",
	}

	// act
	cfg, err := config.FromLookup(lookupFrom(env))

	// assert
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
	assert.Equal(t, "/tmp/lib.db", cfg.SQLitePath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.UnconditionalDelete)
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
}

func Test_FromLookup_RejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown store", env: map[string]string{config.EnvStore: "mongo"}},
		{name: "malformed duration", env: map[string]string{config.EnvLockTTL: "soon"}},
		{name: "malformed bool", env: map[string]string{config.EnvUnconditionalDelete: "maybe"}},
		{name: "malformed log level", env: map[string]string{config.EnvLogLevel: "loud"}},
		{name: "replica without pgx", env: map[string]string{config.EnvStore: "postgres-sql", config.EnvPostgresReplicaDSN: "postgres://replica"}},
		{name: "empty dsn", env: map[string]string{config.EnvPostgresDSN: ""}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := config.FromLookup(lookupFrom(tc.env))

			// assert
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}
