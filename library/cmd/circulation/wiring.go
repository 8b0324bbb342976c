package main

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/memstore"
	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/circulation/redislock"
	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore"
	"github.com/AntonStoeckl/library-circulation-go/library/shell/config"
)

const instrumentationName = "github.com/AntonStoeckl/library-circulation-go"

// app holds everything a command needs, built once at startup.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	handler   slog.Handler
	store     circulation.RecordStore
	sqlStore  *sqlstore.Store
	providers *config.ObservabilityProviders
	metrics   circulation.MetricsCollector
	tracing   circulation.TracingCollector
	locker    circulation.BookLocker
	closers   []func() error
}

func newApp(ctx context.Context, cfg config.Config, withObservability bool) (*app, error) {
	logger, handler := newLogger(cfg)
	a := &app{cfg: cfg, logger: logger, handler: handler}

	if withObservability {
		if err := a.setupObservability(ctx); err != nil {
			return nil, errors.Join(err, a.close(ctx))
		}
	}

	if err := a.openStore(ctx); err != nil {
		return nil, errors.Join(err, a.close(ctx))
	}

	return a, nil
}

func (a *app) setupObservability(ctx context.Context) error {
	providers, err := config.NewObservabilityProviders(ctx, a.cfg, version)
	if err != nil {
		return err
	}

	a.providers = providers

	if providers.MeterProvider != nil {
		a.metrics = oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))
	}

	if providers.TracerProvider != nil {
		a.tracing = oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))
	}

	a.logger.Info("observability configured",
		"metrics", providers.MeterProvider != nil,
		"tracing", providers.TracerProvider != nil,
	)

	return nil
}

func (a *app) sqlStoreOptions() []sqlstore.Option {
	options := []sqlstore.Option{sqlstore.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(a.handler))}

	if a.metrics != nil {
		options = append(options, sqlstore.WithMetrics(a.metrics))
	}

	if a.tracing != nil {
		options = append(options, sqlstore.WithTracing(a.tracing))
	}

	return options
}

func (a *app) openStore(ctx context.Context) error {
	var err error

	switch a.cfg.Store {
	case config.StoreMemory:
		a.store = memstore.New()
		return nil

	case config.StoreSQLite:
		db, openErr := config.OpenSQLite(ctx, a.cfg.SQLitePath)
		if openErr != nil {
			return openErr
		}
		a.closers = append(a.closers, db.Close)
		a.sqlStore, err = sqlstore.NewSQLiteStore(db, a.sqlStoreOptions()...)

	case config.StorePostgresSQL:
		db, openErr := config.OpenPostgresSQLDB(ctx, a.cfg.PostgresDSN)
		if openErr != nil {
			return openErr
		}
		a.closers = append(a.closers, db.Close)
		a.sqlStore, err = sqlstore.NewPostgresStoreFromSQLDB(db, a.sqlStoreOptions()...)

	case config.StorePostgresSQLX:
		db, openErr := config.OpenPostgresSQLX(ctx, a.cfg.PostgresDSN)
		if openErr != nil {
			return openErr
		}
		a.closers = append(a.closers, db.Close)
		a.sqlStore, err = sqlstore.NewPostgresStoreFromSQLX(db, a.sqlStoreOptions()...)

	default:
		pool, openErr := config.NewPGXPool(ctx, a.cfg.PostgresDSN)
		if openErr != nil {
			return openErr
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		if a.cfg.PostgresReplicaDSN == "" {
			a.sqlStore, err = sqlstore.NewPostgresStoreFromPGXPool(pool, a.sqlStoreOptions()...)
			break
		}

		replica, replicaErr := config.NewPGXPool(ctx, a.cfg.PostgresReplicaDSN)
		if replicaErr != nil {
			return replicaErr
		}
		a.closers = append(a.closers, func() error { replica.Close(); return nil })
		a.sqlStore, err = sqlstore.NewPostgresStoreFromPGXPoolAndReplica(pool, replica, a.sqlStoreOptions()...)
	}

	if err != nil {
		return err
	}

	a.store = a.sqlStore

	return nil
}

func (a *app) setupLocker(ctx context.Context) error {
	if a.cfg.RedisAddr == "" {
		return nil
	}

	client, err := config.NewRedisClient(ctx, a.cfg.RedisAddr)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)

	locker, err := redislock.New(client, redislock.WithTTL(a.cfg.LockTTL))
	if err != nil {
		return err
	}

	a.locker = locker
	a.logger.Info("per-book lock enabled", "redis_addr", a.cfg.RedisAddr)

	return nil
}

func (a *app) newEngine() (*circulation.Engine, error) {
	options := []circulation.Option{
		circulation.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(a.handler)),
	}

	if a.cfg.UnconditionalDelete {
		options = append(options, circulation.WithUnconditionalDelete())
	}

	if a.locker != nil {
		options = append(options, circulation.WithBookLocker(a.locker))
	}

	if a.metrics != nil {
		options = append(options, circulation.WithMetrics(a.metrics))
	}

	if a.tracing != nil {
		options = append(options, circulation.WithTracing(a.tracing))
	}

	return circulation.NewEngine(a.store, options...)
}

// migrate creates the schema of SQL stores; the memory store needs none.
func (a *app) migrate(ctx context.Context) error {
	if a.sqlStore == nil {
		return nil
	}

	return a.sqlStore.Migrate(ctx)
}

func (a *app) close(ctx context.Context) error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}

	if a.providers != nil {
		errs = append(errs, a.providers.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
