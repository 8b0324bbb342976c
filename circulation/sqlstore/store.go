package sqlstore

import (
	"database/sql"
	"regexp"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore/internal/adapters"
)

// Dialect names as registered with goqu.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

const (
	tableBooks        = "books"
	tableMembers      = "members"
	tableLoans        = "loans"
	tableTransactions = "transactions"
)

var tablePrefixPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is a circulation.RecordStore on a SQL database.
type Store struct {
	db               adapters.DBAdapter
	dialect          string
	tablePrefix      string
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
}

// Option configures a Store.
type Option func(*Store) error

// WithTablePrefix prefixes all table names, e.g. "lib_" gives lib_books, lib_members, and so on.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) error {
		if prefix == "" {
			return circulation.ErrEmptyTableNameSupplied
		}

		if !tablePrefixPattern.MatchString(prefix) {
			return ErrInvalidTablePrefix
		}

		s.tablePrefix = prefix

		return nil
	}
}

// WithLogger sets the logger for the Store.
//
// Debug level: SQL statements with execution timing
// Warn level: failures to close rows
// Error level: failed statements.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, which takes precedence over WithLogger.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(s *Store) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Store.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(s *Store) error {
		s.tracingCollector = collector
		return nil
	}
}

// NewPostgresStoreFromPGXPool creates a Postgres Store on a pgx pool.
func NewPostgresStoreFromPGXPool(pool *pgxpool.Pool, options ...Option) (*Store, error) {
	if pool == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(pool), DialectPostgres, options)
}

// NewPostgresStoreFromPGXPoolAndReplica creates a Postgres Store whose eventually consistent reads
// (see circulation.WithEventualConsistency) go to the replica pool.
func NewPostgresStoreFromPGXPoolAndReplica(pool *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Store, error) {
	if pool == nil || replica == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapterWithReplica(pool, replica), DialectPostgres, options)
}

// NewPostgresStoreFromSQLDB creates a Postgres Store on a database/sql handle (lib/pq driver).
func NewPostgresStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), DialectPostgres, options)
}

// NewPostgresStoreFromSQLX creates a Postgres Store on a sqlx handle.
func NewPostgresStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), DialectPostgres, options)
}

// NewSQLiteStore creates a SQLite Store on a database/sql handle (mattn/go-sqlite3 driver).
func NewSQLiteStore(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), DialectSQLite, options)
}

func newStore(db adapters.DBAdapter, dialect string, options []Option) (*Store, error) {
	s := &Store{db: db, dialect: dialect}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Dialect returns the goqu dialect name of the store.
func (s *Store) Dialect() string {
	return s.dialect
}

func (s *Store) sqlBuilder() goqu.DialectWrapper {
	return goqu.Dialect(s.dialect)
}

func (s *Store) table(name string) string {
	return s.tablePrefix + name
}

var _ circulation.RecordStore = (*Store)(nil)
