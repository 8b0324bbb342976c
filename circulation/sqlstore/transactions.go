package sqlstore

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore/internal/adapters"
)

var detailsCodec = jsoniter.ConfigFastest

// AppendTransaction implements circulation.TransactionLedger.
// The details are stored as JSON (jsonb on Postgres, text on SQLite).
func (s *Store) AppendTransaction(ctx context.Context, tx circulation.Transaction) error {
	details, err := detailsCodec.MarshalToString(tx.Details)
	if err != nil {
		return errors.Join(ErrEncodingDetailsFailed, err)
	}

	insert := s.sqlBuilder().
		Insert(s.table(tableTransactions)).
		Prepared(true).
		Rows(goqu.Record{
			colID:              tx.ID,
			colBookID:          tx.BookID,
			colISBN:            tx.ISBN,
			colMemberID:        tx.MemberID,
			colTransactionType: string(tx.TransactionType),
			colTransactionDate: tx.TransactionDate,
			colDetails:         details,
		})

	_, err = s.exec(ctx, operationAppendTx, insert)

	return err
}

// ListTransactionsByISBN implements circulation.TransactionLedger, in append order.
func (s *Store) ListTransactionsByISBN(ctx context.Context, isbn string) ([]circulation.Transaction, error) {
	selectStmt := s.sqlBuilder().
		From(s.table(tableTransactions)).
		Prepared(true).
		Select(colID, colBookID, colISBN, colMemberID, colTransactionType, colTransactionDate, colDetails).
		Where(goqu.C(colISBN).Eq(isbn)).
		Order(goqu.I(colSequenceNumber).Asc())

	txs := make([]circulation.Transaction, 0)

	err := s.query(ctx, operationListTx, selectStmt, func(rows adapters.DBRows) error {
		var tx circulation.Transaction
		var txType string
		var details []byte

		if err := rows.Scan(&tx.ID, &tx.BookID, &tx.ISBN, &tx.MemberID, &txType, &tx.TransactionDate, &details); err != nil {
			return err
		}

		if err := detailsCodec.Unmarshal(details, &tx.Details); err != nil {
			return errors.Join(ErrEncodingDetailsFailed, err)
		}

		tx.TransactionType = circulation.TransactionType(txType)
		tx.TransactionDate = tx.TransactionDate.UTC()
		txs = append(txs, tx)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return txs, nil
}
