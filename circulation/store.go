package circulation

import (
	"context"
	"time"
)

// RecordStore is the persistence port of the engine.
//
// Implementations must make CompareAndSwapBookStatus atomic per ISBN and must never hold
// an internal lock across a call back into the caller. Lookups of missing records return
// ErrRecordNotFound, conditional writes that match no row return ErrPreconditionFailed and
// unique constraint violations return ErrDuplicateRecord (each possibly joined with a driver error).
type RecordStore interface {
	BookStore
	MemberStore
	LoanStore
	TransactionLedger
}

// StatusSwap describes a conditional status transition of one book.
type StatusSwap struct {
	ISBN     string
	Expected BookStatus
	Next     BookStatus
	Borrower string
	At       time.Time
}

// BookStore persists the book inventory.
type BookStore interface {
	InsertBook(ctx context.Context, book Book) error
	FindBookByISBN(ctx context.Context, isbn string) (Book, error)
	ListBooksByStatus(ctx context.Context, status BookStatus) ([]Book, error)

	// CompareAndSwapBookStatus sets status and borrower only if the current status equals swap.Expected
	// and returns the updated book. It returns ErrPreconditionFailed if the book is missing or in another status.
	CompareAndSwapBookStatus(ctx context.Context, swap StatusSwap) (Book, error)

	// DeleteBook removes the book and returns the number of deleted rows.
	// A non-empty onlyIfStatus restricts the delete to a book in that status.
	DeleteBook(ctx context.Context, isbn string, onlyIfStatus BookStatus) (int64, error)
}

// MemberStore persists borrower profiles.
type MemberStore interface {
	InsertMember(ctx context.Context, member Member) error
	FindMemberByID(ctx context.Context, id string) (Member, error)
	FindMemberByMobile(ctx context.Context, mobile string) (Member, error)
	FindMemberByBookID(ctx context.Context, bookID string) (Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	UpdateMember(ctx context.Context, member Member) error
	DeleteMember(ctx context.Context, id string) (int64, error)
}

// LoanStore persists loans. At most one open loan may exist per ISBN.
type LoanStore interface {
	InsertLoan(ctx context.Context, loan Loan) error
	FindOpenLoanByISBN(ctx context.Context, isbn string) (Loan, error)

	// CloseLoan stores the return data of an open loan.
	// It returns ErrPreconditionFailed if the loan does not exist or is already closed.
	CloseLoan(ctx context.Context, loan Loan) error
	ListLoansByISBN(ctx context.Context, isbn string) ([]Loan, error)
}

// TransactionLedger is the append-only circulation ledger.
type TransactionLedger interface {
	AppendTransaction(ctx context.Context, tx Transaction) error
	ListTransactionsByISBN(ctx context.Context, isbn string) ([]Transaction, error)
}

// Unlock releases a lock obtained from a BookLocker.
type Unlock func(ctx context.Context) error

// BookLocker provides per-book mutual exclusion across engine instances.
// Lock returns ErrLockNotAcquired if the lock could not be obtained before ctx is done.
type BookLocker interface {
	Lock(ctx context.Context, isbn string) (Unlock, error)
}
