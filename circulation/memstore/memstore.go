// Package memstore provides an in-memory circulation.RecordStore.
//
// All operations are atomic with respect to each other. The internal mutex only guards map
// access and is never held while calling back into the caller.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Store is an in-memory circulation.RecordStore.
type Store struct {
	mu           sync.RWMutex
	books        map[string]circulation.Book   // by ISBN
	members      map[string]circulation.Member // by ID
	loans        []circulation.Loan
	transactions []circulation.Transaction
	failures     map[string]error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		books:    make(map[string]circulation.Book),
		members:  make(map[string]circulation.Member),
		failures: make(map[string]error),
	}
}

// Method names accepted by FailOn.
const (
	MethodInsertBook               = "InsertBook"
	MethodFindBookByISBN           = "FindBookByISBN"
	MethodListBooksByStatus        = "ListBooksByStatus"
	MethodCompareAndSwapBookStatus = "CompareAndSwapBookStatus"
	MethodDeleteBook               = "DeleteBook"
	MethodInsertMember             = "InsertMember"
	MethodFindMemberByID           = "FindMemberByID"
	MethodFindMemberByMobile       = "FindMemberByMobile"
	MethodFindMemberByBookID       = "FindMemberByBookID"
	MethodListMembers              = "ListMembers"
	MethodUpdateMember             = "UpdateMember"
	MethodDeleteMember             = "DeleteMember"
	MethodInsertLoan               = "InsertLoan"
	MethodFindOpenLoanByISBN       = "FindOpenLoanByISBN"
	MethodCloseLoan                = "CloseLoan"
	MethodListLoansByISBN          = "ListLoansByISBN"
	MethodAppendTransaction        = "AppendTransaction"
	MethodListTransactionsByISBN   = "ListTransactionsByISBN"
)

// FailOn makes every later call of the named method return err; a nil err clears the failure.
// It exists to exercise the error paths of the engine.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, method)
		return
	}

	s.failures[method] = err
}

func (s *Store) failure(method string) error {
	return s.failures[method]
}

// InsertBook implements circulation.BookStore.
func (s *Store) InsertBook(ctx context.Context, book circulation.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodInsertBook); err != nil {
		return err
	}

	if _, exists := s.books[book.ISBN]; exists {
		return circulation.ErrDuplicateRecord
	}

	s.books[book.ISBN] = book

	return nil
}

// FindBookByISBN implements circulation.BookStore.
func (s *Store) FindBookByISBN(ctx context.Context, isbn string) (circulation.Book, error) {
	if err := ctx.Err(); err != nil {
		return circulation.Book{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(MethodFindBookByISBN); err != nil {
		return circulation.Book{}, err
	}

	book, ok := s.books[isbn]
	if !ok {
		return circulation.Book{}, circulation.ErrRecordNotFound
	}

	return book, nil
}

// ListBooksByStatus implements circulation.BookStore. Books are ordered by ISBN.
func (s *Store) ListBooksByStatus(ctx context.Context, status circulation.BookStatus) ([]circulation.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(MethodListBooksByStatus); err != nil {
		return nil, err
	}

	books := lo.Filter(lo.Values(s.books), func(book circulation.Book, _ int) bool {
		return book.Status == status
	})

	sort.Slice(books, func(i, j int) bool { return books[i].ISBN < books[j].ISBN })

	return books, nil
}

// CompareAndSwapBookStatus implements circulation.BookStore.
func (s *Store) CompareAndSwapBookStatus(ctx context.Context, swap circulation.StatusSwap) (circulation.Book, error) {
	if err := ctx.Err(); err != nil {
		return circulation.Book{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodCompareAndSwapBookStatus); err != nil {
		return circulation.Book{}, err
	}

	book, ok := s.books[swap.ISBN]
	if !ok || book.Status != swap.Expected {
		return circulation.Book{}, circulation.ErrPreconditionFailed
	}

	book.Status = swap.Next
	book.Borrower = swap.Borrower
	book.UpdatedAt = swap.At
	s.books[swap.ISBN] = book

	return book, nil
}

// DeleteBook implements circulation.BookStore.
func (s *Store) DeleteBook(ctx context.Context, isbn string, onlyIfStatus circulation.BookStatus) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodDeleteBook); err != nil {
		return 0, err
	}

	book, ok := s.books[isbn]
	if !ok || (onlyIfStatus != "" && book.Status != onlyIfStatus) {
		return 0, nil
	}

	delete(s.books, isbn)

	return 1, nil
}

// InsertMember implements circulation.MemberStore.
func (s *Store) InsertMember(ctx context.Context, member circulation.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodInsertMember); err != nil {
		return err
	}

	if _, exists := s.members[member.ID]; exists || s.mobileTaken(member.Mobile, member.ID) {
		return circulation.ErrDuplicateRecord
	}

	s.members[member.ID] = copyMember(member)

	return nil
}

// FindMemberByID implements circulation.MemberStore.
func (s *Store) FindMemberByID(ctx context.Context, id string) (circulation.Member, error) {
	if err := ctx.Err(); err != nil {
		return circulation.Member{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(MethodFindMemberByID); err != nil {
		return circulation.Member{}, err
	}

	member, ok := s.members[id]
	if !ok {
		return circulation.Member{}, circulation.ErrRecordNotFound
	}

	return copyMember(member), nil
}

// FindMemberByMobile implements circulation.MemberStore.
func (s *Store) FindMemberByMobile(ctx context.Context, mobile string) (circulation.Member, error) {
	return s.findMember(ctx, MethodFindMemberByMobile, func(m circulation.Member) bool { return m.Mobile == mobile })
}

// FindMemberByBookID implements circulation.MemberStore.
func (s *Store) FindMemberByBookID(ctx context.Context, bookID string) (circulation.Member, error) {
	return s.findMember(ctx, MethodFindMemberByBookID, func(m circulation.Member) bool { return m.BookID == bookID })
}

func (s *Store) findMember(
	ctx context.Context,
	method string,
	predicate func(circulation.Member) bool,
) (circulation.Member, error) {

	if err := ctx.Err(); err != nil {
		return circulation.Member{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(method); err != nil {
		return circulation.Member{}, err
	}

	member, ok := lo.Find(s.sortedMembers(), predicate)
	if !ok {
		return circulation.Member{}, circulation.ErrRecordNotFound
	}

	return copyMember(member), nil
}

// ListMembers implements circulation.MemberStore. Members are ordered by creation time.
func (s *Store) ListMembers(ctx context.Context) ([]circulation.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(MethodListMembers); err != nil {
		return nil, err
	}

	return lo.Map(s.sortedMembers(), func(m circulation.Member, _ int) circulation.Member {
		return copyMember(m)
	}), nil
}

// UpdateMember implements circulation.MemberStore.
func (s *Store) UpdateMember(ctx context.Context, member circulation.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodUpdateMember); err != nil {
		return err
	}

	if _, ok := s.members[member.ID]; !ok {
		return circulation.ErrRecordNotFound
	}

	if s.mobileTaken(member.Mobile, member.ID) {
		return circulation.ErrDuplicateRecord
	}

	s.members[member.ID] = copyMember(member)

	return nil
}

// DeleteMember implements circulation.MemberStore.
func (s *Store) DeleteMember(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodDeleteMember); err != nil {
		return 0, err
	}

	if _, ok := s.members[id]; !ok {
		return 0, nil
	}

	delete(s.members, id)

	return 1, nil
}

// InsertLoan implements circulation.LoanStore.
func (s *Store) InsertLoan(ctx context.Context, loan circulation.Loan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodInsertLoan); err != nil {
		return err
	}

	if _, _, open := s.openLoan(loan.ISBN); open && loan.IsOpen() {
		return circulation.ErrDuplicateRecord
	}

	s.loans = append(s.loans, copyLoan(loan))

	return nil
}

// FindOpenLoanByISBN implements circulation.LoanStore.
func (s *Store) FindOpenLoanByISBN(ctx context.Context, isbn string) (circulation.Loan, error) {
	if err := ctx.Err(); err != nil {
		return circulation.Loan{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(MethodFindOpenLoanByISBN); err != nil {
		return circulation.Loan{}, err
	}

	loan, _, ok := s.openLoan(isbn)
	if !ok {
		return circulation.Loan{}, circulation.ErrRecordNotFound
	}

	return copyLoan(loan), nil
}

// CloseLoan implements circulation.LoanStore.
func (s *Store) CloseLoan(ctx context.Context, loan circulation.Loan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodCloseLoan); err != nil {
		return err
	}

	_, idx, ok := lo.FindIndexOf(s.loans, func(l circulation.Loan) bool { return l.ID == loan.ID && l.IsOpen() })
	if !ok {
		return circulation.ErrPreconditionFailed
	}

	closed := s.loans[idx]
	closed.ReturnedAt = loan.ReturnedAt
	closed.ReturnedByName = loan.ReturnedByName
	closed.ReturnedByMobile = loan.ReturnedByMobile
	s.loans[idx] = copyLoan(closed)

	return nil
}

// ListLoansByISBN implements circulation.LoanStore.
func (s *Store) ListLoansByISBN(ctx context.Context, isbn string) ([]circulation.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(MethodListLoansByISBN); err != nil {
		return nil, err
	}

	loans := lo.Filter(s.loans, func(l circulation.Loan, _ int) bool { return l.ISBN == isbn })

	return lo.Map(loans, func(l circulation.Loan, _ int) circulation.Loan { return copyLoan(l) }), nil
}

// AppendTransaction implements circulation.TransactionLedger.
func (s *Store) AppendTransaction(ctx context.Context, tx circulation.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(MethodAppendTransaction); err != nil {
		return err
	}

	if lo.ContainsBy(s.transactions, func(existing circulation.Transaction) bool { return existing.ID == tx.ID }) {
		return circulation.ErrDuplicateRecord
	}

	s.transactions = append(s.transactions, copyTransaction(tx))

	return nil
}

// ListTransactionsByISBN implements circulation.TransactionLedger.
func (s *Store) ListTransactionsByISBN(ctx context.Context, isbn string) ([]circulation.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(MethodListTransactionsByISBN); err != nil {
		return nil, err
	}

	txs := lo.Filter(s.transactions, func(tx circulation.Transaction, _ int) bool { return tx.ISBN == isbn })

	return lo.Map(txs, func(tx circulation.Transaction, _ int) circulation.Transaction { return copyTransaction(tx) }), nil
}

// PutBook stores a book as-is, bypassing all checks. Useful to set up inconsistent states in tests.
func (s *Store) PutBook(book circulation.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books[book.ISBN] = book
}

func (s *Store) mobileTaken(mobile, exceptID string) bool {
	return lo.SomeBy(lo.Values(s.members), func(m circulation.Member) bool {
		return m.Mobile == mobile && m.ID != exceptID
	})
}

func (s *Store) openLoan(isbn string) (circulation.Loan, int, bool) {
	return lo.FindIndexOf(s.loans, func(l circulation.Loan) bool { return l.ISBN == isbn && l.IsOpen() })
}

func (s *Store) sortedMembers() []circulation.Member {
	members := lo.Values(s.members)
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].ID < members[j].ID
		}

		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})

	return members
}

func copyMember(m circulation.Member) circulation.Member {
	if m.IssueDate != nil {
		issueDate := *m.IssueDate
		m.IssueDate = &issueDate
	}

	return m
}

func copyLoan(l circulation.Loan) circulation.Loan {
	if l.ReturnedAt != nil {
		returnedAt := *l.ReturnedAt
		l.ReturnedAt = &returnedAt
	}

	return l
}

func copyTransaction(tx circulation.Transaction) circulation.Transaction {
	if tx.Details.DueDate != nil {
		dueDate := *tx.Details.DueDate
		tx.Details.DueDate = &dueDate
	}

	return tx
}

var _ circulation.RecordStore = (*Store)(nil)
