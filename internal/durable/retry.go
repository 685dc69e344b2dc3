package durable

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// IsDeadlockOrLockWait classifies the transient driver errors that warrant a
// retry: Postgres deadlock/serialization failures and SQLite's busy/locked
// errors, the two drivers Open dispatches between.
func IsDeadlockOrLockWait(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadlock detected"),
		strings.Contains(msg, "could not serialize access"),
		strings.Contains(msg, "lock wait timeout"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "sqlite_busy"):
		return true
	default:
		return false
	}
}

// WithRetry runs fn inside a gorm transaction, making up to three attempts
// in total with exponential backoff (25ms * attempt^2) on deadlock/lock-wait errors,
// per spec.md §4.4. This generalizes the teacher's closure-based executeLive
// retry loop into a typed combinator parameterised by a transient-error
// classifier, per the "per-request closure-based retry" redesign note.
func WithRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := db.Transaction(fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsDeadlockOrLockWait(err) || attempt == maxAttempts {
			return err
		}
		time.Sleep(time.Duration(25*attempt*attempt) * time.Millisecond)
	}
	return lastErr
}

// ErrNotFound is returned by repository lookups that find no row, wrapping
// gorm.ErrRecordNotFound so callers do not need to import gorm directly.
var ErrNotFound = gorm.ErrRecordNotFound

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
