package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// Column names shared by both dialects.
const (
	colID               = "id"
	colISBN             = "isbn"
	colTitle            = "title"
	colAuthor           = "author"
	colStatus           = "status"
	colBorrower         = "borrower"
	colCreatedAt        = "created_at"
	colUpdatedAt        = "updated_at"
	colName             = "name"
	colMobile           = "mobile"
	colEmail            = "email"
	colBookID           = "book_id"
	colIssueDate        = "issue_date"
	colMemberID         = "member_id"
	colBorrowerName     = "borrower_name"
	colBorrowerMobile   = "borrower_mobile"
	colIssuedAt         = "issued_at"
	colDueDate          = "due_date"
	colReturnedAt       = "returned_at"
	colReturnedByName   = "returned_by_name"
	colReturnedByMobile = "returned_by_mobile"
	colSequenceNumber   = "sequence_number"
	colTransactionType  = "transaction_type"
	colTransactionDate  = "transaction_date"
	colDetails          = "details"
)

// schemaTemplate uses %[1]s for the table prefix, %[2]s for the timestamp type,
// %[3]s for the sequence column definition and %[4]s for the JSON type.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]sbooks (
	id         TEXT PRIMARY KEY,
	isbn       TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL,
	author     TEXT NOT NULL,
	status     TEXT NOT NULL CHECK (status IN ('available', 'borrowed')),
	borrower   TEXT NOT NULL DEFAULT '',
	created_at %[2]s NOT NULL,
	updated_at %[2]s NOT NULL,
	CHECK ((status = 'borrowed') = (borrower <> ''))
);

CREATE TABLE IF NOT EXISTS %[1]smembers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	mobile     TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL,
	book_id    TEXT NOT NULL DEFAULT '',
	issue_date %[2]s NULL,
	created_at %[2]s NOT NULL
);

CREATE INDEX IF NOT EXISTS %[1]smembers_book_id_idx ON %[1]smembers (book_id);

CREATE TABLE IF NOT EXISTS %[1]sloans (
	id                 TEXT PRIMARY KEY,
	isbn               TEXT NOT NULL,
	member_id          TEXT NOT NULL DEFAULT '',
	borrower_name      TEXT NOT NULL,
	borrower_mobile    TEXT NOT NULL,
	issued_at          %[2]s NOT NULL,
	due_date           %[2]s NOT NULL,
	returned_at        %[2]s NULL,
	returned_by_name   TEXT NOT NULL DEFAULT '',
	returned_by_mobile TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS %[1]sloans_open_isbn_idx ON %[1]sloans (isbn) WHERE returned_at IS NULL;

CREATE TABLE IF NOT EXISTS %[1]stransactions (
	sequence_number  %[3]s,
	id               TEXT NOT NULL UNIQUE,
	book_id          TEXT NOT NULL,
	isbn             TEXT NOT NULL,
	member_id        TEXT NOT NULL,
	transaction_type TEXT NOT NULL CHECK (transaction_type IN ('issue', 'return')),
	transaction_date %[2]s NOT NULL,
	details          %[4]s NOT NULL
);

CREATE INDEX IF NOT EXISTS %[1]stransactions_isbn_idx ON %[1]stransactions (isbn);
`

// SchemaStatements returns the DDL statements that create the tables of the store.
func (s *Store) SchemaStatements() []string {
	var ddl string

	switch s.dialect {
	case DialectSQLite:
		ddl = fmt.Sprintf(schemaTemplate, s.tablePrefix, "TIMESTAMP", "INTEGER PRIMARY KEY AUTOINCREMENT", "TEXT")
	default:
		ddl = fmt.Sprintf(schemaTemplate, s.tablePrefix, "TIMESTAMPTZ", "BIGSERIAL PRIMARY KEY", "JSONB")
	}

	statements := make([]string, 0, 8)
	for _, statement := range strings.Split(ddl, ";") {
		if trimmed := strings.TrimSpace(statement); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}

	return statements
}

// Migrate creates the tables and indexes if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, statement := range s.SchemaStatements() {
		if _, err := s.exec(ctx, operationMigrate, rawSQL(statement)); err != nil {
			return err
		}
	}

	return nil
}

// Truncate removes all rows from all tables. Meant for tests.
func (s *Store) Truncate(ctx context.Context) error {
	tables := []string{s.table(tableTransactions), s.table(tableLoans), s.table(tableMembers), s.table(tableBooks)}

	if s.dialect == DialectPostgres {
		_, err := s.exec(ctx, operationMigrate, rawSQL("TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY"))
		return err
	}

	for _, table := range tables {
		if _, err := s.exec(ctx, operationMigrate, rawSQL("DELETE FROM "+table)); err != nil {
			return err
		}
	}

	return nil
}
