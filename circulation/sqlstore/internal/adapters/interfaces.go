package adapters

import (
	"context"
	"errors"
)

// ErrUniqueViolation is joined into errors caused by a unique constraint violation, whatever the driver.
var ErrUniqueViolation = errors.New("unique constraint violated")

// DBAdapter defines the database operations needed by the record store.
type DBAdapter interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (DBResult, error)
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
