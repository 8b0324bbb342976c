package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreKind selects the RecordStore implementation.
type StoreKind string

const (
	StorePostgresPGX  StoreKind = "postgres-pgx"
	StorePostgresSQL  StoreKind = "postgres-sql"
	StorePostgresSQLX StoreKind = "postgres-sqlx"
	StoreSQLite       StoreKind = "sqlite"
	StoreMemory       StoreKind = "memory"
)

// Environment variable names.
const (
	EnvHTTPAddr            = "CIRCULATION_HTTP_ADDR"
	EnvStore               = "CIRCULATION_STORE"
	EnvPostgresDSN         = "CIRCULATION_POSTGRES_DSN"
	EnvPostgresReplicaDSN  = "CIRCULATION_POSTGRES_REPLICA_DSN"
	EnvSQLitePath          = "CIRCULATION_SQLITE_PATH"
	EnvRedisAddr           = "CIRCULATION_REDIS_ADDR"
	EnvLockTTL             = "CIRCULATION_LOCK_TTL"
	EnvLogLevel            = "CIRCULATION_LOG_LEVEL"
	EnvOTLPTracesEndpoint  = "CIRCULATION_OTLP_TRACES_ENDPOINT"
	EnvOTLPMetricsEndpoint = "CIRCULATION_OTLP_METRICS_ENDPOINT"
	EnvUnconditionalDelete = "CIRCULATION_UNCONDITIONAL_DELETE"
	EnvShutdownTimeout     = "CIRCULATION_SHUTDOWN_TIMEOUT"
)

// ErrInvalidConfig is joined into every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all settings of the circulation service.
type Config struct {
	HTTPAddr            string
	Store               StoreKind
	PostgresDSN         string
	PostgresReplicaDSN  string
	SQLitePath          string
	RedisAddr           string
	LockTTL             time.Duration
	LogLevel            slog.Level
	OTLPTracesEndpoint  string
	OTLPMetricsEndpoint string
	UnconditionalDelete bool
	ShutdownTimeout     time.Duration
	ServiceName         string
}

// Default returns the configuration used when no environment variable is set.
func Default() Config {
	return Config{
		HTTPAddr:        ":5000",
		Store:           StorePostgresPGX,
		PostgresDSN:     PostgresDefaultDSN(),
		SQLitePath:      "circulation.db",
		LockTTL:         10 * time.Second,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: 10 * time.Second,
		ServiceName:     "library-circulation",
	}
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads the configuration through lookup, starting from Default.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	setString := func(env string, target *string) {
		if value, ok := lookup(env); ok {
			*target = strings.TrimSpace(value)
		}
	}

	setDuration := func(env string, target *time.Duration) {
		if value, ok := lookup(env); ok {
			parsed, err := time.ParseDuration(strings.TrimSpace(value))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", env, err))
				return
			}
			*target = parsed
		}
	}

	setString(EnvHTTPAddr, &cfg.HTTPAddr)
	setString(EnvPostgresDSN, &cfg.PostgresDSN)
	setString(EnvPostgresReplicaDSN, &cfg.PostgresReplicaDSN)
	setString(EnvSQLitePath, &cfg.SQLitePath)
	setString(EnvRedisAddr, &cfg.RedisAddr)
	setString(EnvOTLPTracesEndpoint, &cfg.OTLPTracesEndpoint)
	setString(EnvOTLPMetricsEndpoint, &cfg.OTLPMetricsEndpoint)
	setDuration(EnvLockTTL, &cfg.LockTTL)
	setDuration(EnvShutdownTimeout, &cfg.ShutdownTimeout)

	if value, ok := lookup(EnvStore); ok {
		cfg.Store = StoreKind(strings.TrimSpace(value))
	}

	if value, ok := lookup(EnvLogLevel); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvLogLevel, err))
		}
	}

	if value, ok := lookup(EnvUnconditionalDelete); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvUnconditionalDelete, err))
		}
		cfg.UnconditionalDelete = parsed
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the consistency of the settings.
func (c Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address must not be empty"))
	}

	switch c.Store {
	case StorePostgresPGX, StorePostgresSQL, StorePostgresSQLX:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("store %s requires a postgres dsn", c.Store))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("store sqlite requires a database path"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	if c.PostgresReplicaDSN != "" && c.Store != StorePostgresPGX {
		errs = append(errs, fmt.Errorf("a read replica is only supported with store %s", StorePostgresPGX))
	}

	if c.LockTTL <= 0 {
		errs = append(errs, errors.New("lock ttl must be positive"))
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}

	return nil
}
