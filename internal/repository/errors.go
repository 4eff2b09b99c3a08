package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrGoalNotFound = errors.New("goal not found")

	// ErrGoalNotEditable means the goal exists but is no longer
	// effectively active: completed, expired, or past its deadline.
	ErrGoalNotEditable = errors.New("goal is not editable")
)

// TransientError marks store failures that are safe to retry: lock
// timeouts, serialization conflicts and connection problems. All goal
// mutations are idempotent, so a retried operation never double-counts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient store error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err (anywhere in its chain) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classify wraps retryable driver errors in TransientError and passes
// everything else through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return &TransientError{Err: err}
		}
		if strings.HasPrefix(pgErr.Code, "08") { // connection_exception class
			return &TransientError{Err: err}
		}
		return err
	}

	// modernc sqlite reports lock contention via its error text
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return &TransientError{Err: err}
	}

	return err
}

// isConstraintViolation detects duplicate-key errors. Link inserts use
// ON CONFLICT DO NOTHING, so this only fires as a safety net under racing
// duplicate deliveries; callers treat it as a benign no-op.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}

	return strings.Contains(err.Error(), "constraint failed")
}
