package sqlstore

import "errors"

var (
	// ErrBuildingQueryFailed is returned when goqu cannot build a statement.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrQueryingFailed is returned when a query fails or its iteration ends with an error.
	ErrQueryingFailed = errors.New("querying failed")

	// ErrExecutingFailed is returned when a statement fails.
	ErrExecutingFailed = errors.New("executing statement failed")

	// ErrScanningRowFailed is returned when a row cannot be scanned.
	ErrScanningRowFailed = errors.New("scanning db row failed")

	// ErrGettingRowsAffectedFailed is returned when the affected row count is unavailable.
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")

	// ErrEncodingDetailsFailed is returned when transaction details cannot be (un)marshaled.
	ErrEncodingDetailsFailed = errors.New("encoding transaction details failed")

	// ErrInvalidTablePrefix is returned for a table prefix that is not a plain SQL identifier.
	ErrInvalidTablePrefix = errors.New("table prefix must match [a-z_][a-z0-9_]*")
)
