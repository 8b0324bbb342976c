// Package storecontract holds the behavior every circulation.RecordStore implementation must show.
// Store packages call Run from their tests with a factory that returns an empty store.
package storecontract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Factory returns an empty, ready to use store.
type Factory func(t *testing.T) circulation.RecordStore

var baseTime = time.Date(2024, time.March, 1, 9, 30, 0, 123000, time.UTC)

// Run executes the contract against stores created by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("books", func(t *testing.T) { runBooks(t, newStore) })
	t.Run("compare and swap", func(t *testing.T) { runCompareAndSwap(t, newStore) })
	t.Run("members", func(t *testing.T) { runMembers(t, newStore) })
	t.Run("loans", func(t *testing.T) { runLoans(t, newStore) })
	t.Run("transactions", func(t *testing.T) { runTransactions(t, newStore) })
}

// FixtureBook returns an available book with the given ISBN.
func FixtureBook(isbn string) circulation.Book {
	return circulation.Book{
		ID:        "book-" + isbn,
		ISBN:      isbn,
		Title:     "Title " + isbn,
		Author:    "Author " + isbn,
		Status:    circulation.StatusAvailable,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

// FixtureMember returns a member with the given mobile number.
func FixtureMember(id, mobile string) circulation.Member {
	return circulation.Member{
		ID:        id,
		Name:      "Member " + id,
		Mobile:    mobile,
		Email:     id + "@example.org",
		CreatedAt: baseTime,
	}
}

func runBooks(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("insert and find", func(t *testing.T) {
		// arrange
		store := newStore(t)
		book := FixtureBook("978-0")

		// act
		err := store.InsertBook(ctx, book)

		// assert
		require.NoError(t, err)
		found, err := store.FindBookByISBN(ctx, book.ISBN)
		require.NoError(t, err)
		assert.Equal(t, book, found)
	})

	t.Run("missing book", func(t *testing.T) {
		store := newStore(t)

		_, err := store.FindBookByISBN(ctx, "unknown")

		assert.ErrorIs(t, err, circulation.ErrRecordNotFound)
	})

	t.Run("duplicate isbn", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertBook(ctx, FixtureBook("978-0")))

		duplicate := FixtureBook("978-0")
		duplicate.ID = "another-id"
		err := store.InsertBook(ctx, duplicate)

		assert.ErrorIs(t, err, circulation.ErrDuplicateRecord)
	})

	t.Run("list by status ordered by isbn", func(t *testing.T) {
		// arrange
		store := newStore(t)
		for _, isbn := range []string{"978-3", "978-1", "978-2"} {
			require.NoError(t, store.InsertBook(ctx, FixtureBook(isbn)))
		}
		_, err := store.CompareAndSwapBookStatus(ctx, circulation.StatusSwap{
			ISBN: "978-2", Expected: circulation.StatusAvailable, Next: circulation.StatusBorrowed, Borrower: "Ann", At: baseTime,
		})
		require.NoError(t, err)

		// act
		available, err := store.ListBooksByStatus(ctx, circulation.StatusAvailable)

		// assert
		require.NoError(t, err)
		require.Len(t, available, 2)
		assert.Equal(t, "978-1", available[0].ISBN)
		assert.Equal(t, "978-3", available[1].ISBN)

		borrowed, err := store.ListBooksByStatus(ctx, circulation.StatusBorrowed)
		require.NoError(t, err)
		require.Len(t, borrowed, 1)
		assert.Equal(t, "Ann", borrowed[0].Borrower)
	})

	t.Run("list empty", func(t *testing.T) {
		store := newStore(t)

		books, err := store.ListBooksByStatus(ctx, circulation.StatusAvailable)

		require.NoError(t, err)
		assert.Empty(t, books)
	})

	t.Run("conditional delete", func(t *testing.T) {
		// arrange
		store := newStore(t)
		require.NoError(t, store.InsertBook(ctx, FixtureBook("978-1")))
		_, err := store.CompareAndSwapBookStatus(ctx, circulation.StatusSwap{
			ISBN: "978-1", Expected: circulation.StatusAvailable, Next: circulation.StatusBorrowed, Borrower: "Ann", At: baseTime,
		})
		require.NoError(t, err)

		// act
		guarded, err := store.DeleteBook(ctx, "978-1", circulation.StatusAvailable)
		require.NoError(t, err)
		unconditional, err := store.DeleteBook(ctx, "978-1", "")
		require.NoError(t, err)
		missing, err := store.DeleteBook(ctx, "978-1", "")
		require.NoError(t, err)

		// assert
		assert.Equal(t, int64(0), guarded)
		assert.Equal(t, int64(1), unconditional)
		assert.Equal(t, int64(0), missing)
		_, err = store.FindBookByISBN(ctx, "978-1")
		assert.ErrorIs(t, err, circulation.ErrRecordNotFound)
	})
}

func runCompareAndSwap(t *testing.T, newStore Factory) {
	ctx := context.Background()
	later := baseTime.Add(time.Hour)

	t.Run("matching status", func(t *testing.T) {
		// arrange
		store := newStore(t)
		require.NoError(t, store.InsertBook(ctx, FixtureBook("978-1")))

		// act
		book, err := store.CompareAndSwapBookStatus(ctx, circulation.StatusSwap{
			ISBN: "978-1", Expected: circulation.StatusAvailable, Next: circulation.StatusBorrowed, Borrower: "Ann", At: later,
		})

		// assert
		require.NoError(t, err)
		assert.Equal(t, circulation.StatusBorrowed, book.Status)
		assert.Equal(t, "Ann", book.Borrower)
		assert.True(t, later.Equal(book.UpdatedAt))
		assert.True(t, baseTime.Equal(book.CreatedAt))

		found, err := store.FindBookByISBN(ctx, "978-1")
		require.NoError(t, err)
		assert.Equal(t, book, found)
	})

	t.Run("stale expectation", func(t *testing.T) {
		// arrange
		store := newStore(t)
		require.NoError(t, store.InsertBook(ctx, FixtureBook("978-1")))

		// act
		_, err := store.CompareAndSwapBookStatus(ctx, circulation.StatusSwap{
			ISBN: "978-1", Expected: circulation.StatusBorrowed, Next: circulation.StatusAvailable, At: later,
		})

		// assert
		assert.ErrorIs(t, err, circulation.ErrPreconditionFailed)
		found, findErr := store.FindBookByISBN(ctx, "978-1")
		require.NoError(t, findErr)
		assert.Equal(t, FixtureBook("978-1"), found)
	})

	t.Run("missing book", func(t *testing.T) {
		store := newStore(t)

		_, err := store.CompareAndSwapBookStatus(ctx, circulation.StatusSwap{
			ISBN: "978-9", Expected: circulation.StatusAvailable, Next: circulation.StatusBorrowed, Borrower: "Ann", At: later,
		})

		assert.ErrorIs(t, err, circulation.ErrPreconditionFailed)
	})
}

func runMembers(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("insert and find", func(t *testing.T) {
		// arrange
		store := newStore(t)
		member := FixtureMember("m-1", "0170000001")

		// act
		require.NoError(t, store.InsertMember(ctx, member))

		// assert
		byID, err := store.FindMemberByID(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, member, byID)

		byMobile, err := store.FindMemberByMobile(ctx, "0170000001")
		require.NoError(t, err)
		assert.Equal(t, member, byMobile)

		_, err = store.FindMemberByBookID(ctx, "978-1")
		assert.ErrorIs(t, err, circulation.ErrRecordNotFound)
	})

	t.Run("duplicate mobile", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertMember(ctx, FixtureMember("m-1", "0170000001")))

		err := store.InsertMember(ctx, FixtureMember("m-2", "0170000001"))

		assert.ErrorIs(t, err, circulation.ErrDuplicateRecord)
	})

	t.Run("update links a book", func(t *testing.T) {
		// arrange
		store := newStore(t)
		member := FixtureMember("m-1", "0170000001")
		require.NoError(t, store.InsertMember(ctx, member))
		issued := baseTime.Add(2 * time.Hour)
		member.BookID = "978-1"
		member.IssueDate = &issued
		member.Name = "Renamed"

		// act
		err := store.UpdateMember(ctx, member)

		// assert
		require.NoError(t, err)
		linked, err := store.FindMemberByBookID(ctx, "978-1")
		require.NoError(t, err)
		assert.Equal(t, member, linked)

		member.BookID = ""
		member.IssueDate = nil
		require.NoError(t, store.UpdateMember(ctx, member))
		unlinked, err := store.FindMemberByID(ctx, "m-1")
		require.NoError(t, err)
		assert.Empty(t, unlinked.BookID)
		assert.Nil(t, unlinked.IssueDate)
	})

	t.Run("update missing member", func(t *testing.T) {
		store := newStore(t)

		err := store.UpdateMember(ctx, FixtureMember("m-9", "0170000009"))

		assert.ErrorIs(t, err, circulation.ErrRecordNotFound)
	})

	t.Run("list and delete", func(t *testing.T) {
		// arrange
		store := newStore(t)
		first := FixtureMember("m-1", "0170000001")
		second := FixtureMember("m-2", "0170000002")
		second.CreatedAt = baseTime.Add(time.Minute)
		require.NoError(t, store.InsertMember(ctx, second))
		require.NoError(t, store.InsertMember(ctx, first))

		// act
		members, err := store.ListMembers(ctx)
		require.NoError(t, err)
		deleted, err := store.DeleteMember(ctx, "m-1")
		require.NoError(t, err)
		deletedAgain, err := store.DeleteMember(ctx, "m-1")
		require.NoError(t, err)

		// assert
		require.Len(t, members, 2)
		assert.Equal(t, "m-1", members[0].ID)
		assert.Equal(t, "m-2", members[1].ID)
		assert.Equal(t, int64(1), deleted)
		assert.Equal(t, int64(0), deletedAgain)
	})
}

func runLoans(t *testing.T, newStore Factory) {
	ctx := context.Background()

	newLoan := func(id string, issuedAt time.Time) circulation.Loan {
		return circulation.Loan{
			ID:             id,
			ISBN:           "978-1",
			MemberID:       "m-1",
			BorrowerName:   "Ann",
			BorrowerMobile: "0170000001",
			IssuedAt:       issuedAt,
			DueDate:        issuedAt.Add(14 * 24 * time.Hour),
		}
	}

	t.Run("open loan lifecycle", func(t *testing.T) {
		// arrange
		store := newStore(t)
		loan := newLoan("loan-1", baseTime)
		require.NoError(t, store.InsertLoan(ctx, loan))

		// act
		open, err := store.FindOpenLoanByISBN(ctx, "978-1")
		require.NoError(t, err)
		assert.Equal(t, loan, open)

		returnedAt := baseTime.Add(48 * time.Hour)
		open.ReturnedAt = &returnedAt
		open.ReturnedByName = "Ann"
		open.ReturnedByMobile = "0170000001"
		closeErr := store.CloseLoan(ctx, open)

		// assert
		require.NoError(t, closeErr)
		_, err = store.FindOpenLoanByISBN(ctx, "978-1")
		assert.ErrorIs(t, err, circulation.ErrRecordNotFound)
		assert.ErrorIs(t, store.CloseLoan(ctx, open), circulation.ErrPreconditionFailed)

		loans, err := store.ListLoansByISBN(ctx, "978-1")
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, open, loans[0])
	})

	t.Run("one open loan per isbn", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertLoan(ctx, newLoan("loan-1", baseTime)))

		err := store.InsertLoan(ctx, newLoan("loan-2", baseTime.Add(time.Hour)))

		assert.ErrorIs(t, err, circulation.ErrDuplicateRecord)
	})

	t.Run("history ordered by issue time", func(t *testing.T) {
		// arrange
		store := newStore(t)
		first := newLoan("loan-1", baseTime)
		returnedAt := baseTime.Add(time.Hour)
		first.ReturnedAt = &returnedAt
		require.NoError(t, store.InsertLoan(ctx, first))
		require.NoError(t, store.InsertLoan(ctx, newLoan("loan-2", baseTime.Add(2*time.Hour))))

		// act
		loans, err := store.ListLoansByISBN(ctx, "978-1")

		// assert
		require.NoError(t, err)
		require.Len(t, loans, 2)
		assert.Equal(t, "loan-1", loans[0].ID)
		assert.False(t, loans[0].IsOpen())
		assert.Equal(t, "loan-2", loans[1].ID)
		assert.True(t, loans[1].IsOpen())
	})

	t.Run("close missing loan", func(t *testing.T) {
		store := newStore(t)
		returnedAt := baseTime

		loan := newLoan("loan-9", baseTime)
		loan.ReturnedAt = &returnedAt
		err := store.CloseLoan(ctx, loan)

		assert.ErrorIs(t, err, circulation.ErrPreconditionFailed)
	})
}

func runTransactions(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("append and list in order", func(t *testing.T) {
		// arrange
		store := newStore(t)
		dueDate := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
		issue := circulation.Transaction{
			ID:              "tx-1",
			BookID:          "book-978-1",
			ISBN:            "978-1",
			MemberID:        "0170000001",
			TransactionType: circulation.TransactionIssue,
			TransactionDate: baseTime,
			Details:         circulation.TransactionDetails{BorrowerName: "Ann", DueDate: &dueDate},
		}
		ret := circulation.Transaction{
			ID:              "tx-0",
			BookID:          "book-978-1",
			ISBN:            "978-1",
			MemberID:        "0170000001",
			TransactionType: circulation.TransactionReturn,
			TransactionDate: baseTime.Add(time.Hour),
			Details:         circulation.TransactionDetails{ReturnedByName: "Ann", ReturnedByMobile: "0170000001"},
		}

		// act
		require.NoError(t, store.AppendTransaction(ctx, issue))
		require.NoError(t, store.AppendTransaction(ctx, ret))
		txs, err := store.ListTransactionsByISBN(ctx, "978-1")

		// assert
		require.NoError(t, err)
		assert.Equal(t, []circulation.Transaction{issue, ret}, txs)
	})

	t.Run("duplicate id", func(t *testing.T) {
		store := newStore(t)
		tx := circulation.Transaction{
			ID: "tx-1", BookID: "b", ISBN: "978-1", MemberID: "0170000001",
			TransactionType: circulation.TransactionIssue, TransactionDate: baseTime,
		}
		require.NoError(t, store.AppendTransaction(ctx, tx))

		err := store.AppendTransaction(ctx, tx)

		assert.ErrorIs(t, err, circulation.ErrDuplicateRecord)
	})

	t.Run("empty ledger", func(t *testing.T) {
		store := newStore(t)

		txs, err := store.ListTransactionsByISBN(ctx, "978-1")

		require.NoError(t, err)
		assert.Empty(t, txs)
	})
}
