// Package repository implements the store contracts on MySQL through
// database/sql. Queries are hand-written; capacity counters move with
// single conditional UPDATE statements and rows that a unit of work
// mutates are read with SELECT ... FOR UPDATE.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/booking-engine/internal/store"
)

// MySQL server error numbers the repositories react to.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// mapError translates driver errors into store sentinels. Unknown errors
// pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == errDupEntry {
		return store.ErrDuplicate
	}
	return err
}

// retryable reports whether the whole transaction may be replayed.
func retryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == errDeadlock || me.Number == errLockWaitTimeout
}
