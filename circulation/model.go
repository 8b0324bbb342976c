package circulation

import (
	"fmt"
	"time"
)

// BookStatus is the lending status of a Book.
type BookStatus string

const (
	// StatusAvailable means the book is on the shelf and can be issued.
	StatusAvailable BookStatus = "available"

	// StatusBorrowed means the book is currently issued to a borrower.
	StatusBorrowed BookStatus = "borrowed"
)

// IsValid reports whether s is one of the known statuses.
func (s BookStatus) IsValid() bool {
	return s == StatusAvailable || s == StatusBorrowed
}

// TransactionType discriminates the entries of the circulation ledger.
type TransactionType string

const (
	TransactionIssue  TransactionType = "issue"
	TransactionReturn TransactionType = "return"
)

// Book is a single lendable copy in the inventory, identified by its ISBN.
type Book struct {
	ID        string     `json:"id"`
	ISBN      string     `json:"isbn"`
	Title     string     `json:"title"`
	Author    string     `json:"author"`
	Status    BookStatus `json:"status"`
	Borrower  string     `json:"borrower"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsAvailable reports whether the book can be issued.
func (b Book) IsAvailable() bool {
	return b.Status == StatusAvailable
}

// Validate checks that Borrower is set exactly when the book is borrowed.
func (b Book) Validate() error {
	if !b.Status.IsValid() {
		return fmt.Errorf("book %q has unknown status %q", b.ISBN, b.Status)
	}

	if b.Status == StatusBorrowed && b.Borrower == "" {
		return fmt.Errorf("book %q is borrowed but has no borrower", b.ISBN)
	}

	if b.Status == StatusAvailable && b.Borrower != "" {
		return fmt.Errorf("book %q is available but still has borrower %q", b.ISBN, b.Borrower)
	}

	return nil
}

// Member is the durable profile of a borrower.
// BookID holds the ISBN of the book currently associated with the member, empty if none.
type Member struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Mobile    string     `json:"mobile"`
	Email     string     `json:"email"`
	BookID    string     `json:"bookId"`
	IssueDate *time.Time `json:"issueDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Loan records one lending of a book, from issue to return.
// A loan with a nil ReturnedAt is open; there is at most one open loan per ISBN.
type Loan struct {
	ID               string     `json:"id"`
	ISBN             string     `json:"isbn"`
	MemberID         string     `json:"memberId,omitempty"`
	BorrowerName     string     `json:"borrowerName"`
	BorrowerMobile   string     `json:"borrowerMobile"`
	IssuedAt         time.Time  `json:"issuedAt"`
	DueDate          time.Time  `json:"dueDate"`
	ReturnedAt       *time.Time `json:"returnedAt,omitempty"`
	ReturnedByName   string     `json:"returnedByName,omitempty"`
	ReturnedByMobile string     `json:"returnedByMobile,omitempty"`
}

// IsOpen reports whether the loan has not been closed by a return yet.
func (l Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}

// IsOverdue reports whether an open loan is past its due date at the given instant.
func (l Loan) IsOverdue(at time.Time) bool {
	return l.IsOpen() && at.After(l.DueDate)
}

// Transaction is an immutable entry of the circulation ledger.
// MemberID carries the borrower's mobile number.
type Transaction struct {
	ID              string             `json:"id"`
	BookID          string             `json:"bookId"`
	ISBN            string             `json:"isbn"`
	MemberID        string             `json:"memberId"`
	TransactionType TransactionType    `json:"transactionType"`
	TransactionDate time.Time          `json:"transactionDate"`
	Details         TransactionDetails `json:"details"`
}

// TransactionDetails holds the type specific data of a ledger entry.
type TransactionDetails struct {
	BorrowerName     string     `json:"borrowerName,omitempty"`
	DueDate          *time.Time `json:"dueDate,omitempty"`
	ReturnedByName   string     `json:"returnedByName,omitempty"`
	ReturnedByMobile string     `json:"returnedByMobile,omitempty"`
}

// IssueResult is what a successful (or partially successful) Issue produces.
type IssueResult struct {
	Book        Book        `json:"book"`
	Transaction Transaction `json:"transaction"`
	Loan        Loan        `json:"loan"`
	DueDate     time.Time   `json:"dueDate"`

	// RequestedDueDate echoes the due date exactly as the caller sent it.
	RequestedDueDate string `json:"requestedDueDate"`
}

// ReturnResult is what a successful (or partially successful) Return produces.
// Loan is nil when no open loan was found for the book.
type ReturnResult struct {
	Book        Book        `json:"book"`
	Transaction Transaction `json:"transaction"`
	Loan        *Loan       `json:"loan,omitempty"`
}
