package config

import (
	"context"
	"database/sql"
	"net/url"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// OpenSQLite opens the SQLite database file at path.
// SQLite serializes writers, so the pool is limited to one connection to avoid "database is locked" errors.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, pingErr
	}

	return db, nil
}
