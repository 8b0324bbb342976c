package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore/internal/adapters"
)

func bookColumns() []any {
	return []any{colID, colISBN, colTitle, colAuthor, colStatus, colBorrower, colCreatedAt, colUpdatedAt}
}

func scanBook(rows adapters.DBRows) (circulation.Book, error) {
	var book circulation.Book
	var status string

	if err := rows.Scan(
		&book.ID,
		&book.ISBN,
		&book.Title,
		&book.Author,
		&status,
		&book.Borrower,
		&book.CreatedAt,
		&book.UpdatedAt,
	); err != nil {
		return circulation.Book{}, err
	}

	book.Status = circulation.BookStatus(status)
	book.CreatedAt = book.CreatedAt.UTC()
	book.UpdatedAt = book.UpdatedAt.UTC()

	return book, nil
}

// InsertBook implements circulation.BookStore.
func (s *Store) InsertBook(ctx context.Context, book circulation.Book) error {
	insert := s.sqlBuilder().
		Insert(s.table(tableBooks)).
		Prepared(true).
		Rows(goqu.Record{
			colID:        book.ID,
			colISBN:      book.ISBN,
			colTitle:     book.Title,
			colAuthor:    book.Author,
			colStatus:    string(book.Status),
			colBorrower:  book.Borrower,
			colCreatedAt: book.CreatedAt,
			colUpdatedAt: book.UpdatedAt,
		})

	_, err := s.exec(ctx, operationInsertBook, insert)

	return err
}

// FindBookByISBN implements circulation.BookStore.
func (s *Store) FindBookByISBN(ctx context.Context, isbn string) (circulation.Book, error) {
	selectStmt := s.sqlBuilder().
		From(s.table(tableBooks)).
		Prepared(true).
		Select(bookColumns()...).
		Where(goqu.C(colISBN).Eq(isbn)).
		Limit(1)

	return s.queryOneBook(ctx, operationFindBook, selectStmt)
}

// ListBooksByStatus implements circulation.BookStore. Books are ordered by ISBN.
func (s *Store) ListBooksByStatus(ctx context.Context, status circulation.BookStatus) ([]circulation.Book, error) {
	selectStmt := s.sqlBuilder().
		From(s.table(tableBooks)).
		Prepared(true).
		Select(bookColumns()...).
		Where(goqu.C(colStatus).Eq(string(status))).
		Order(goqu.I(colISBN).Asc())

	books := make([]circulation.Book, 0)
	err := s.query(ctx, operationListBooks, selectStmt, func(rows adapters.DBRows) error {
		book, err := scanBook(rows)
		if err != nil {
			return err
		}

		books = append(books, book)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return books, nil
}

// CompareAndSwapBookStatus implements circulation.BookStore with a conditional UPDATE.
// Postgres returns the updated row in the same statement; SQLite reads it back afterwards.
func (s *Store) CompareAndSwapBookStatus(ctx context.Context, swap circulation.StatusSwap) (circulation.Book, error) {
	update := s.sqlBuilder().
		Update(s.table(tableBooks)).
		Prepared(true).
		Set(goqu.Record{
			colStatus:    string(swap.Next),
			colBorrower:  swap.Borrower,
			colUpdatedAt: swap.At,
		}).
		Where(goqu.Ex{
			colISBN:   swap.ISBN,
			colStatus: string(swap.Expected),
		})

	if s.dialect == DialectPostgres {
		book, err := s.queryOneBook(ctx, operationSwapStatus, update.Returning(bookColumns()...))
		if err != nil {
			return circulation.Book{}, mapNotFoundToPrecondition(err)
		}

		return book, nil
	}

	rowsAffected, err := s.exec(ctx, operationSwapStatus, update)
	if err != nil {
		return circulation.Book{}, err
	}

	if rowsAffected == 0 {
		return circulation.Book{}, circulation.ErrPreconditionFailed
	}

	return s.FindBookByISBN(ctx, swap.ISBN)
}

// DeleteBook implements circulation.BookStore.
func (s *Store) DeleteBook(ctx context.Context, isbn string, onlyIfStatus circulation.BookStatus) (int64, error) {
	where := goqu.Ex{colISBN: isbn}
	if onlyIfStatus != "" {
		where[colStatus] = string(onlyIfStatus)
	}

	deleteStmt := s.sqlBuilder().
		Delete(s.table(tableBooks)).
		Prepared(true).
		Where(where)

	return s.exec(ctx, operationDeleteBook, deleteStmt)
}

func (s *Store) queryOneBook(ctx context.Context, operation string, builder sqlBuilder) (circulation.Book, error) {
	var book circulation.Book
	found := false

	err := s.query(ctx, operation, builder, func(rows adapters.DBRows) error {
		var scanErr error
		book, scanErr = scanBook(rows)
		found = scanErr == nil

		return scanErr
	})
	if err != nil {
		return circulation.Book{}, err
	}

	if !found {
		return circulation.Book{}, circulation.ErrRecordNotFound
	}

	return book, nil
}

func mapNotFoundToPrecondition(err error) error {
	if errors.Is(err, circulation.ErrRecordNotFound) {
		return circulation.ErrPreconditionFailed
	}

	return err
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return *t
}
