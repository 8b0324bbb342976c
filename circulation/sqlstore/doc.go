// Package sqlstore implements circulation.RecordStore on SQL databases.
//
// Queries are built with goqu in prepared mode for the postgres or sqlite3 dialect.
// Postgres is supported through pgxpool (optionally with a read replica), database/sql with lib/pq,
// and sqlx; SQLite through database/sql with mattn/go-sqlite3.
//
// The compare-and-swap on the book status is a single conditional UPDATE:
//
//	UPDATE books SET status = $1, borrower = $2, updated_at = $3 WHERE isbn = $4 AND status = $5
//
// Zero affected rows means another caller changed the book first (or it does not exist),
// which is reported as circulation.ErrPreconditionFailed.
package sqlstore
