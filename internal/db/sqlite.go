// Package db opens the SQLite control-plane store and runs its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Hardened DSN parameters applied to every connection.
const (
	busyTimeoutMS = "5000"
	synchronous   = "NORMAL"
	journalMode   = "WAL"
)

// OpenSQLite opens a pool for the given SQLite file. mode "write" yields a
// single-connection pool with immediate transaction locking; mode "read"
// yields a pool of maxOpen connections (0 defaults to 4).
func OpenSQLite(path, mode string, maxOpen int) (*sql.DB, error) {
	if mode != "read" && mode != "write" {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be \"read\" or \"write\"", mode)
	}

	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeoutMS)
	params.Set("_synchronous", synchronous)
	params.Set("_foreign_keys", "on")
	if mode == "write" {
		params.Set("_txlock", "immediate")
	}

	pool, err := sql.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	if mode == "write" {
		pool.SetMaxOpenConns(1)
		pool.SetMaxIdleConns(1)
	} else {
		if maxOpen <= 0 {
			maxOpen = 4
		}
		pool.SetMaxOpenConns(maxOpen)
		pool.SetMaxIdleConns(maxOpen)
	}
	pool.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}
	return pool, nil
}

// OpenSQLitePair opens the write pool (single connection) and a read pool
// for the same file. This is how an HTTP server should talk to SQLite
// concurrently.
func OpenSQLitePair(path string, readMaxOpen int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = OpenSQLite(path, "write", 0)
	if err != nil {
		return nil, nil, err
	}
	readDB, err = OpenSQLite(path, "read", readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}
	return writeDB, readDB, nil
}
