package sqlstore

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore/internal/adapters"
)

func loanColumns() []any {
	return []any{
		colID, colISBN, colMemberID, colBorrowerName, colBorrowerMobile,
		colIssuedAt, colDueDate, colReturnedAt, colReturnedByName, colReturnedByMobile,
	}
}

func scanLoan(rows adapters.DBRows) (circulation.Loan, error) {
	var loan circulation.Loan
	var returnedAt sql.NullTime

	if err := rows.Scan(
		&loan.ID,
		&loan.ISBN,
		&loan.MemberID,
		&loan.BorrowerName,
		&loan.BorrowerMobile,
		&loan.IssuedAt,
		&loan.DueDate,
		&returnedAt,
		&loan.ReturnedByName,
		&loan.ReturnedByMobile,
	); err != nil {
		return circulation.Loan{}, err
	}

	loan.IssuedAt = loan.IssuedAt.UTC()
	loan.DueDate = loan.DueDate.UTC()

	if returnedAt.Valid {
		returned := returnedAt.Time.UTC()
		loan.ReturnedAt = &returned
	}

	return loan, nil
}

// InsertLoan implements circulation.LoanStore.
// A second open loan for the same ISBN violates a unique index and yields circulation.ErrDuplicateRecord.
func (s *Store) InsertLoan(ctx context.Context, loan circulation.Loan) error {
	insert := s.sqlBuilder().
		Insert(s.table(tableLoans)).
		Prepared(true).
		Rows(goqu.Record{
			colID:               loan.ID,
			colISBN:             loan.ISBN,
			colMemberID:         loan.MemberID,
			colBorrowerName:     loan.BorrowerName,
			colBorrowerMobile:   loan.BorrowerMobile,
			colIssuedAt:         loan.IssuedAt,
			colDueDate:          loan.DueDate,
			colReturnedAt:       nullableTime(loan.ReturnedAt),
			colReturnedByName:   loan.ReturnedByName,
			colReturnedByMobile: loan.ReturnedByMobile,
		})

	_, err := s.exec(ctx, operationInsertLoan, insert)

	return err
}

// FindOpenLoanByISBN implements circulation.LoanStore.
func (s *Store) FindOpenLoanByISBN(ctx context.Context, isbn string) (circulation.Loan, error) {
	selectStmt := s.sqlBuilder().
		From(s.table(tableLoans)).
		Prepared(true).
		Select(loanColumns()...).
		Where(goqu.C(colISBN).Eq(isbn), goqu.C(colReturnedAt).IsNull()).
		Limit(1)

	loans, err := s.queryLoans(ctx, operationFindLoan, selectStmt)
	if err != nil {
		return circulation.Loan{}, err
	}

	if len(loans) == 0 {
		return circulation.Loan{}, circulation.ErrRecordNotFound
	}

	return loans[0], nil
}

// CloseLoan implements circulation.LoanStore.
func (s *Store) CloseLoan(ctx context.Context, loan circulation.Loan) error {
	update := s.sqlBuilder().
		Update(s.table(tableLoans)).
		Prepared(true).
		Set(goqu.Record{
			colReturnedAt:       nullableTime(loan.ReturnedAt),
			colReturnedByName:   loan.ReturnedByName,
			colReturnedByMobile: loan.ReturnedByMobile,
		}).
		Where(goqu.C(colID).Eq(loan.ID), goqu.C(colReturnedAt).IsNull())

	rowsAffected, err := s.exec(ctx, operationCloseLoan, update)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrPreconditionFailed
	}

	return nil
}

// ListLoansByISBN implements circulation.LoanStore. Loans are ordered by issue time.
func (s *Store) ListLoansByISBN(ctx context.Context, isbn string) ([]circulation.Loan, error) {
	selectStmt := s.sqlBuilder().
		From(s.table(tableLoans)).
		Prepared(true).
		Select(loanColumns()...).
		Where(goqu.C(colISBN).Eq(isbn)).
		Order(goqu.I(colIssuedAt).Asc(), goqu.I(colID).Asc())

	return s.queryLoans(ctx, operationListLoans, selectStmt)
}

func (s *Store) queryLoans(ctx context.Context, operation string, builder sqlBuilder) ([]circulation.Loan, error) {
	loans := make([]circulation.Loan, 0)

	err := s.query(ctx, operation, builder, func(rows adapters.DBRows) error {
		loan, err := scanLoan(rows)
		if err != nil {
			return err
		}

		loans = append(loans, loan)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return loans, nil
}
