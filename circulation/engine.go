package circulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultDependentWriteTimeout = 5 * time.Second

// Engine is the circulation engine. It is safe for concurrent use.
type Engine struct {
	store                 RecordStore
	locker                BookLocker
	clock                 func() time.Time
	newID                 func() string
	unconditionalDelete   bool
	dependentWriteTimeout time.Duration
	logger                Logger
	contextualLogger      ContextualLogger
	metricsCollector      MetricsCollector
	tracingCollector      TracingCollector
}

// NewEngine creates an Engine on top of the given RecordStore.
func NewEngine(store RecordStore, options ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilRecordStore
	}

	e := &Engine{
		store:                 store,
		clock:                 defaultClock,
		newID:                 defaultID,
		dependentWriteTimeout: defaultDependentWriteTimeout,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func defaultID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Issue lends the available book with the given ISBN to the borrower described by req.
//
// The status change from available to borrowed is a compare-and-swap, so of several concurrent
// Issue calls for the same book exactly one succeeds and the others get a ConflictError.
// The borrowing member is looked up before the status change. After it, the issue transaction,
// the loan and the member link are each attempted even if an earlier one failed. Any failures are
// reported as one InconsistentStateError together with the partially populated IssueResult;
// the book stays borrowed.
func (e *Engine) Issue(ctx context.Context, isbn string, req IssueRequest) (result IssueResult, err error) {
	ctx, obs := e.startObservation(ctx, OperationIssue, AttrISBN, isbn)
	defer func() { obs.finish(err, AttrBorrower, req.Borrower) }()

	req = req.normalized()

	if err = validateISBN(OperationIssue, isbn); err != nil {
		return IssueResult{}, err
	}

	if err = validateRequest(OperationIssue, req); err != nil {
		return IssueResult{}, err
	}

	dueDate, err := parseDueDate(OperationIssue, req.DueDate)
	if err != nil {
		return IssueResult{}, err
	}

	release, err := e.lockBook(ctx, OperationIssue, isbn)
	if err != nil {
		return IssueResult{}, err
	}
	defer release()

	ctx = WithStrongConsistency(ctx)

	book, err := e.findBook(ctx, OperationIssue, isbn)
	if err != nil {
		return IssueResult{}, err
	}

	if !book.IsAvailable() {
		return IssueResult{}, conflictError(OperationIssue, fmt.Sprintf("book %s is already borrowed", isbn))
	}

	member, found, err := e.findMemberByMobile(ctx, req.Mobile)
	if err != nil {
		return IssueResult{}, storeError(OperationIssue, err)
	}

	if err = abortedError(ctx, OperationIssue); err != nil {
		return IssueResult{}, err
	}

	now := e.clock()

	book, err = e.store.CompareAndSwapBookStatus(ctx, StatusSwap{
		ISBN:     isbn,
		Expected: StatusAvailable,
		Next:     StatusBorrowed,
		Borrower: req.Borrower,
		At:       now,
	})
	if err != nil {
		return IssueResult{}, e.swapError(ctx, OperationIssue, isbn, err, "is already borrowed")
	}

	result = IssueResult{Book: book, DueDate: dueDate, RequestedDueDate: req.DueDate}

	writeCtx, cancel := e.dependentWriteContext(ctx)
	defer cancel()

	var failed dependentWrites

	tx := Transaction{
		ID:              e.newID(),
		BookID:          book.ID,
		ISBN:            isbn,
		MemberID:        req.Mobile,
		TransactionType: TransactionIssue,
		TransactionDate: now,
		Details: TransactionDetails{
			BorrowerName: req.Borrower,
			DueDate:      &dueDate,
		},
	}

	if txErr := e.store.AppendTransaction(writeCtx, tx); txErr != nil {
		failed.add("the issue transaction was not recorded", txErr)
	} else {
		result.Transaction = tx
	}

	loan := Loan{
		ID:             e.newID(),
		ISBN:           isbn,
		BorrowerName:   req.Borrower,
		BorrowerMobile: req.Mobile,
		IssuedAt:       now,
		DueDate:        dueDate,
	}
	if found {
		loan.MemberID = member.ID
	}

	if loanErr := e.store.InsertLoan(writeCtx, loan); loanErr != nil {
		failed.add("the loan was not recorded", loanErr)
	} else {
		result.Loan = loan
	}

	if found {
		member.BookID = isbn
		member.IssueDate = &now

		if linkErr := e.store.UpdateMember(writeCtx, member); linkErr != nil {
			failed.add(fmt.Sprintf("member %s was not linked", member.ID), linkErr)
		}
	}

	return result, failed.err(OperationIssue, fmt.Sprintf("book %s was issued but", isbn))
}

// Return takes the borrowed book with the given ISBN back.
//
// The book becomes available and its borrower is cleared, then the return transaction is appended,
// the open loan is closed and the linked member is unlinked. Each of these is attempted even if an
// earlier one failed. If no open loan exists for the book, the book is still made available but an
// InconsistentStateError is returned.
//
// The returner's name and mobile are stored on the closed Loan (ReturnedByName, ReturnedByMobile)
// and in the return Transaction's details; the Member profile itself is only unlinked from the book.
func (e *Engine) Return(ctx context.Context, isbn string, req ReturnRequest) (result ReturnResult, err error) {
	ctx, obs := e.startObservation(ctx, OperationReturn, AttrISBN, isbn)
	defer func() { obs.finish(err) }()

	req = req.normalized()

	if err = validateISBN(OperationReturn, isbn); err != nil {
		return ReturnResult{}, err
	}

	if err = validateRequest(OperationReturn, req); err != nil {
		return ReturnResult{}, err
	}

	release, err := e.lockBook(ctx, OperationReturn, isbn)
	if err != nil {
		return ReturnResult{}, err
	}
	defer release()

	ctx = WithStrongConsistency(ctx)

	book, err := e.findBook(ctx, OperationReturn, isbn)
	if err != nil {
		return ReturnResult{}, err
	}

	if book.IsAvailable() {
		return ReturnResult{}, conflictError(OperationReturn, fmt.Sprintf("book %s was not borrowed", isbn))
	}

	loan, hasLoan, err := e.findOpenLoan(ctx, isbn)
	if err != nil {
		return ReturnResult{}, storeError(OperationReturn, err)
	}

	if err = abortedError(ctx, OperationReturn); err != nil {
		return ReturnResult{}, err
	}

	now := e.clock()

	book, err = e.store.CompareAndSwapBookStatus(ctx, StatusSwap{
		ISBN:     isbn,
		Expected: StatusBorrowed,
		Next:     StatusAvailable,
		At:       now,
	})
	if err != nil {
		return ReturnResult{}, e.swapError(ctx, OperationReturn, isbn, err, "was not borrowed")
	}

	result = ReturnResult{Book: book}

	writeCtx, cancel := e.dependentWriteContext(ctx)
	defer cancel()

	memberID := req.Mobile
	if memberID == "" && hasLoan {
		memberID = loan.BorrowerMobile
	}

	tx := Transaction{
		ID:              e.newID(),
		BookID:          book.ID,
		ISBN:            isbn,
		MemberID:        memberID,
		TransactionType: TransactionReturn,
		TransactionDate: now,
		Details: TransactionDetails{
			ReturnedByName:   req.BorrowerName,
			ReturnedByMobile: req.Mobile,
		},
	}

	var failed dependentWrites

	if txErr := e.store.AppendTransaction(writeCtx, tx); txErr != nil {
		failed.add("the return transaction was not recorded", txErr)
	} else {
		result.Transaction = tx
	}

	if hasLoan {
		loan.ReturnedAt = &now
		loan.ReturnedByName = req.BorrowerName
		loan.ReturnedByMobile = req.Mobile

		if loanErr := e.store.CloseLoan(writeCtx, loan); loanErr != nil {
			failed.add(fmt.Sprintf("loan %s was not closed", loan.ID), loanErr)
		} else {
			result.Loan = &loan
		}
	} else {
		failed.add("no open loan exists for it", ErrRecordNotFound)
	}

	if unlinkErr := e.unlinkMember(writeCtx, isbn); unlinkErr != nil {
		failed.add("its member was not unlinked", unlinkErr)
	}

	return result, failed.err(OperationReturn, fmt.Sprintf("book %s was returned but", isbn))
}

// DeleteBook removes the book with the given ISBN from the inventory and returns the number of removed books.
// A borrowed book is only removed if the Engine was created WithUnconditionalDelete, otherwise a
// ConflictError is returned.
func (e *Engine) DeleteBook(ctx context.Context, isbn string) (deleted int64, err error) {
	ctx, obs := e.startObservation(ctx, OperationDeleteBook, AttrISBN, isbn)
	defer func() { obs.finish(err, AttrCount, deleted) }()

	if err = validateISBN(OperationDeleteBook, isbn); err != nil {
		return 0, err
	}

	release, err := e.lockBook(ctx, OperationDeleteBook, isbn)
	if err != nil {
		return 0, err
	}
	defer release()

	ctx = WithStrongConsistency(ctx)

	if err = abortedError(ctx, OperationDeleteBook); err != nil {
		return 0, err
	}

	onlyIfStatus := StatusAvailable
	if e.unconditionalDelete {
		onlyIfStatus = ""
	}

	deleted, err = e.store.DeleteBook(ctx, isbn, onlyIfStatus)
	if err != nil {
		return 0, storeError(OperationDeleteBook, err)
	}

	if deleted > 0 {
		return deleted, nil
	}

	if _, err = e.findBook(ctx, OperationDeleteBook, isbn); err != nil {
		return 0, err
	}

	return 0, conflictError(OperationDeleteBook, fmt.Sprintf("book %s is borrowed and cannot be deleted", isbn))
}

// AddBook adds an available book to the inventory.
func (e *Engine) AddBook(ctx context.Context, newBook NewBook) (book Book, err error) {
	ctx, obs := e.startObservation(ctx, OperationAddBook, AttrISBN, newBook.ISBN)
	defer func() { obs.finish(err) }()

	newBook = newBook.normalized()

	if err = validateRequest(OperationAddBook, newBook); err != nil {
		return Book{}, err
	}

	now := e.clock()
	book = Book{
		ID:        e.newID(),
		ISBN:      newBook.ISBN,
		Title:     newBook.Title,
		Author:    newBook.Author,
		Status:    StatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err = e.store.InsertBook(ctx, book); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return Book{}, conflictError(OperationAddBook, fmt.Sprintf("a book with ISBN %s already exists", newBook.ISBN))
		}

		return Book{}, storeError(OperationAddBook, err)
	}

	return book, nil
}

// GetBook returns the book with the given ISBN.
func (e *Engine) GetBook(ctx context.Context, isbn string) (book Book, err error) {
	ctx, obs := e.startObservation(ctx, OperationGetBook, AttrISBN, isbn)
	defer func() { obs.finish(err) }()

	if err = validateISBN(OperationGetBook, isbn); err != nil {
		return Book{}, err
	}

	return e.findBook(ctx, OperationGetBook, isbn)
}

// ListAvailableBooks returns all books that can be issued; an empty inventory is a NotFoundError.
func (e *Engine) ListAvailableBooks(ctx context.Context) (books []Book, err error) {
	ctx, obs := e.startObservation(ctx, OperationListAvailableBooks)
	defer func() { obs.finish(err, AttrCount, len(books)) }()

	books, err = e.store.ListBooksByStatus(WithEventualConsistency(ctx), StatusAvailable)
	if err != nil {
		return nil, storeError(OperationListAvailableBooks, err)
	}

	if len(books) == 0 {
		return nil, notFoundError(OperationListAvailableBooks, "no available books")
	}

	return books, nil
}

// ListMembers returns all members; no members is a NotFoundError.
func (e *Engine) ListMembers(ctx context.Context) (members []Member, err error) {
	ctx, obs := e.startObservation(ctx, OperationListMembers)
	defer func() { obs.finish(err, AttrCount, len(members)) }()

	members, err = e.store.ListMembers(WithEventualConsistency(ctx))
	if err != nil {
		return nil, storeError(OperationListMembers, err)
	}

	if len(members) == 0 {
		return nil, notFoundError(OperationListMembers, "no members")
	}

	return members, nil
}

// GetMember returns the member with the given id.
func (e *Engine) GetMember(ctx context.Context, id string) (member Member, err error) {
	ctx, obs := e.startObservation(ctx, OperationGetMember, AttrMemberID, id)
	defer func() { obs.finish(err) }()

	member, err = e.store.FindMemberByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Member{}, notFoundError(OperationGetMember, fmt.Sprintf("member %s not found", id))
		}

		return Member{}, storeError(OperationGetMember, err)
	}

	return member, nil
}

// AddMember registers a member; the mobile number must be unique.
func (e *Engine) AddMember(ctx context.Context, newMember NewMember) (member Member, err error) {
	ctx, obs := e.startObservation(ctx, OperationAddMember)
	defer func() { obs.finish(err, AttrMemberID, member.ID) }()

	newMember = newMember.normalized()

	if err = validateRequest(OperationAddMember, newMember); err != nil {
		return Member{}, err
	}

	member = Member{
		ID:        e.newID(),
		Name:      newMember.Name,
		Mobile:    newMember.Mobile,
		Email:     newMember.Email,
		CreatedAt: e.clock(),
	}

	if err = e.store.InsertMember(ctx, member); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return Member{}, conflictError(OperationAddMember, fmt.Sprintf("a member with mobile %s already exists", member.Mobile))
		}

		return Member{}, storeError(OperationAddMember, err)
	}

	return member, nil
}

// UpdateMember changes the contact fields of the member associated with the book bookID.
func (e *Engine) UpdateMember(ctx context.Context, bookID string, update MemberUpdate) (member Member, err error) {
	ctx, obs := e.startObservation(ctx, OperationUpdateMember, AttrISBN, bookID)
	defer func() { obs.finish(err) }()

	update = update.normalized()

	if err = validateISBN(OperationUpdateMember, bookID); err != nil {
		return Member{}, err
	}

	if err = validateRequest(OperationUpdateMember, update); err != nil {
		return Member{}, err
	}

	member, err = e.findMemberByBookID(ctx, OperationUpdateMember, bookID)
	if err != nil {
		return Member{}, err
	}

	if update.Name != "" {
		member.Name = update.Name
	}

	if update.Mobile != "" {
		member.Mobile = update.Mobile
	}

	if err = e.store.UpdateMember(ctx, member); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateRecord):
			return Member{}, conflictError(OperationUpdateMember, fmt.Sprintf("a member with mobile %s already exists", member.Mobile))
		case errors.Is(err, ErrRecordNotFound):
			return Member{}, notFoundError(OperationUpdateMember, fmt.Sprintf("no member is associated with book %s", bookID))
		default:
			return Member{}, storeError(OperationUpdateMember, err)
		}
	}

	return member, nil
}

// DeleteMember removes the member associated with the book bookID and returns the number of removed members.
func (e *Engine) DeleteMember(ctx context.Context, bookID string) (deleted int64, err error) {
	ctx, obs := e.startObservation(ctx, OperationDeleteMember, AttrISBN, bookID)
	defer func() { obs.finish(err, AttrCount, deleted) }()

	if err = validateISBN(OperationDeleteMember, bookID); err != nil {
		return 0, err
	}

	member, err := e.findMemberByBookID(ctx, OperationDeleteMember, bookID)
	if err != nil {
		return 0, err
	}

	deleted, err = e.store.DeleteMember(ctx, member.ID)
	if err != nil {
		return 0, storeError(OperationDeleteMember, err)
	}

	if deleted == 0 {
		return 0, notFoundError(OperationDeleteMember, fmt.Sprintf("no member is associated with book %s", bookID))
	}

	return deleted, nil
}

// ListTransactions returns the ledger entries of a book in the order they were appended.
func (e *Engine) ListTransactions(ctx context.Context, isbn string) (txs []Transaction, err error) {
	ctx, obs := e.startObservation(ctx, OperationListTransactions, AttrISBN, isbn)
	defer func() { obs.finish(err, AttrCount, len(txs)) }()

	if err = validateISBN(OperationListTransactions, isbn); err != nil {
		return nil, err
	}

	txs, err = e.store.ListTransactionsByISBN(WithEventualConsistency(ctx), isbn)
	if err != nil {
		return nil, storeError(OperationListTransactions, err)
	}

	if len(txs) == 0 {
		return nil, notFoundError(OperationListTransactions, fmt.Sprintf("no transactions for book %s", isbn))
	}

	return txs, nil
}

// ListLoans returns the loan history of a book, oldest first.
func (e *Engine) ListLoans(ctx context.Context, isbn string) (loans []Loan, err error) {
	ctx, obs := e.startObservation(ctx, OperationListLoans, AttrISBN, isbn)
	defer func() { obs.finish(err, AttrCount, len(loans)) }()

	if err = validateISBN(OperationListLoans, isbn); err != nil {
		return nil, err
	}

	loans, err = e.store.ListLoansByISBN(WithEventualConsistency(ctx), isbn)
	if err != nil {
		return nil, storeError(OperationListLoans, err)
	}

	if len(loans) == 0 {
		return nil, notFoundError(OperationListLoans, fmt.Sprintf("no loans for book %s", isbn))
	}

	return loans, nil
}

func (e *Engine) findBook(ctx context.Context, op, isbn string) (Book, error) {
	book, err := e.store.FindBookByISBN(ctx, isbn)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Book{}, notFoundError(op, fmt.Sprintf("book %s not found", isbn))
		}

		return Book{}, storeError(op, err)
	}

	return book, nil
}

func (e *Engine) findMemberByBookID(ctx context.Context, op, bookID string) (Member, error) {
	member, err := e.store.FindMemberByBookID(ctx, bookID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Member{}, notFoundError(op, fmt.Sprintf("no member is associated with book %s", bookID))
		}

		return Member{}, storeError(op, err)
	}

	return member, nil
}

func (e *Engine) findMemberByMobile(ctx context.Context, mobile string) (Member, bool, error) {
	member, err := e.store.FindMemberByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Member{}, false, nil
		}

		return Member{}, false, err
	}

	return member, true, nil
}

func (e *Engine) findOpenLoan(ctx context.Context, isbn string) (Loan, bool, error) {
	loan, err := e.store.FindOpenLoanByISBN(ctx, isbn)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Loan{}, false, nil
		}

		return Loan{}, false, err
	}

	return loan, true, nil
}

func (e *Engine) unlinkMember(ctx context.Context, isbn string) error {
	member, err := e.store.FindMemberByBookID(ctx, isbn)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}

		return err
	}

	member.BookID = ""
	member.IssueDate = nil

	return e.store.UpdateMember(ctx, member)
}

// swapError classifies a failed compare-and-swap: the book vanished, or another caller changed it first.
func (e *Engine) swapError(ctx context.Context, op, isbn string, err error, conflictReason string) error {
	if !errors.Is(err, ErrPreconditionFailed) {
		return storeError(op, err)
	}

	if _, findErr := e.findBook(ctx, op, isbn); findErr != nil {
		return findErr
	}

	return conflictError(op, fmt.Sprintf("book %s %s", isbn, conflictReason))
}

// dependentWriteContext detaches from the caller's cancellation once the primary write is committed.
func (e *Engine) dependentWriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.dependentWriteTimeout)
}

func (e *Engine) lockBook(ctx context.Context, op, isbn string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}

	unlock, err := e.locker.Lock(ctx, isbn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, newError(KindStore, op, "operation aborted before any write", errors.Join(ctxErr, err))
		}

		if errors.Is(err, ErrLockNotAcquired) {
			return nil, newError(KindConflict, op, fmt.Sprintf("book %s is locked by a concurrent operation", isbn), err)
		}

		return nil, storeError(op, err)
	}

	e.logDebug(ctx, logMsgLockAcquired, AttrOperation, op, AttrISBN, isbn)

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.dependentWriteTimeout)
		defer cancel()

		if unlockErr := unlock(unlockCtx); unlockErr != nil {
			e.logWarn(ctx, logMsgUnlockFailed, AttrOperation, op, AttrISBN, isbn, AttrError, unlockErr.Error())
		}
	}, nil
}

// dependentWrites collects the failures of the writes that follow a committed status change.
type dependentWrites struct {
	reasons []string
	causes  []error
}

func (d *dependentWrites) add(reason string, cause error) {
	d.reasons = append(d.reasons, reason)
	d.causes = append(d.causes, cause)
}

// err returns nil if nothing failed, otherwise one InconsistentStateError naming every failed write.
func (d *dependentWrites) err(op, prefix string) error {
	if len(d.causes) == 0 {
		return nil
	}

	return inconsistentStateError(op, prefix+" "+strings.Join(d.reasons, ", "), errors.Join(d.causes...))
}

func abortedError(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return newError(KindStore, op, "operation aborted before any write", err)
	}

	return nil
}
