package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// busyRetry re-runs writes that lost the race for sqlite's write lock, e.g.
// when two pagechat processes share one database file.
type busyRetry struct {
	attempts int
	backoff  time.Duration
}

var writeRetry = busyRetry{attempts: 4, backoff: 25 * time.Millisecond}

func (r busyRetry) run(ctx context.Context, fn func() error) error {
	backoff := r.backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil || attempt >= r.attempts || !isBusy(err) {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

// writeTx runs fn in a transaction, retrying the whole transaction while the
// database is busy.
func (db *DB) writeTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return writeRetry.run(ctx, func() error {
		return db.Transaction(ctx, fn)
	})
}

// execWithRetry runs a single write statement, retrying while the database
// is busy.
func (db *DB) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := writeRetry.run(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func isBusy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
