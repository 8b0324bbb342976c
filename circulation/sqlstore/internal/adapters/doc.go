// Package adapters hides the differences between pgxpool, database/sql and sqlx behind one small interface.
package adapters
