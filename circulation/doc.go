// Package circulation implements the book circulation engine of a small lending library.
//
// The engine issues books to borrowers and accepts them back, keeping three kinds of records
// consistent: the Book inventory, the Member (borrower) profiles with their Loan history,
// and an append-only ledger of circulation Transactions.
//
// Mutual exclusion on a single book is achieved with a compare-and-swap on the book status
// inside the RecordStore, so two concurrent Issue calls for the same ISBN produce exactly one
// success and one ConflictError. A BookLocker can be configured as an additional per-book guard.
//
// Everything the engine needs from the outside world is injected:
//   - RecordStore: memstore (in-memory) or sqlstore (Postgres via pgx/sql/sqlx, SQLite)
//   - BookLocker: optional, e.g., redislock
//   - Logger, ContextualLogger, MetricsCollector, TracingCollector: optional observability,
//     with OpenTelemetry implementations in the oteladapters package
package circulation
