package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore/internal/adapters"
)

// sqlBuilder is implemented by all goqu datasets.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

// query runs a SELECT (or a statement with RETURNING) and calls scan for each row.
func (s *Store) query(
	ctx context.Context,
	operation string,
	builder sqlBuilder,
	scan func(rows adapters.DBRows) error,
) (err error) {

	ctx, finish := s.observe(ctx, operation)
	defer func() { finish(err) }()

	sqlQuery, args, buildErr := builder.ToSQL()
	if buildErr != nil {
		s.logError(ctx, logMsgStatementFailed, logAttrOperation, operation, logAttrError, buildErr.Error())
		return errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	start := time.Now()
	rows, queryErr := s.db.Query(ctx, sqlQuery, args...)
	s.logQueryWithDuration(ctx, sqlQuery, operation, time.Since(start))

	if queryErr != nil {
		s.logError(ctx, logMsgStatementFailed, logAttrOperation, operation, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		return toStoreError(ErrQueryingFailed, queryErr)
	}
	defer s.closeRows(ctx, rows)

	for rows.Next() {
		if scanErr := scan(rows); scanErr != nil {
			s.logError(ctx, logMsgStatementFailed, logAttrOperation, operation, logAttrError, scanErr.Error())
			return errors.Join(ErrScanningRowFailed, scanErr)
		}
	}

	if iterErr := rows.Err(); iterErr != nil {
		s.logError(ctx, logMsgStatementFailed, logAttrOperation, operation, logAttrError, iterErr.Error(), logAttrQuery, sqlQuery)
		return toStoreError(ErrQueryingFailed, iterErr)
	}

	return nil
}

// exec runs an INSERT, UPDATE, DELETE or DDL statement and returns the number of affected rows.
func (s *Store) exec(ctx context.Context, operation string, builder sqlBuilder) (rowsAffected int64, err error) {
	ctx, finish := s.observe(ctx, operation)
	defer func() { finish(err) }()

	sqlQuery, args, buildErr := builder.ToSQL()
	if buildErr != nil {
		s.logError(ctx, logMsgStatementFailed, logAttrOperation, operation, logAttrError, buildErr.Error())
		return 0, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	start := time.Now()
	result, execErr := s.db.Exec(ctx, sqlQuery, args...)
	s.logQueryWithDuration(ctx, sqlQuery, operation, time.Since(start))

	if execErr != nil {
		s.logError(ctx, logMsgStatementFailed, logAttrOperation, operation, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		return 0, toStoreError(ErrExecutingFailed, execErr)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return 0, errors.Join(ErrGettingRowsAffectedFailed, rowsErr)
	}

	return rowsAffected, nil
}

// rawSQL adapts a plain statement without arguments to sqlBuilder.
type rawSQL string

func (r rawSQL) ToSQL() (string, []any, error) {
	return string(r), nil, nil
}

func (s *Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// toStoreError maps unique violations to circulation.ErrDuplicateRecord and keeps the driver error.
func toStoreError(sentinel error, err error) error {
	if errors.Is(err, adapters.ErrUniqueViolation) {
		return errors.Join(circulation.ErrDuplicateRecord, err)
	}

	return errors.Join(sentinel, err)
}
