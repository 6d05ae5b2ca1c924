package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind classifies failures returned by the engine
type ErrorKind string

const (
	KindValidation            ErrorKind = "validation"
	KindNotFound              ErrorKind = "not_found"
	KindInvalidState          ErrorKind = "invalid_state"
	KindUnauthorized          ErrorKind = "unauthorized"
	KindInsufficientFunds     ErrorKind = "insufficient_funds"
	KindAlreadyJoined         ErrorKind = "already_joined"
	KindIDAllocationExhausted ErrorKind = "id_allocation_exhausted"
	KindTransient             ErrorKind = "transient"
	KindInternal              ErrorKind = "internal"
)

// Reasons attached to invalid state errors
const (
	ReasonClosed         = "closed"
	ReasonAlreadySettled = "already_settled"
)

// Error is the error type returned by every engine operation
type Error struct {
	Kind   ErrorKind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind, and by reason when the sentinel has one
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Sentinels for errors.Is
var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidState          = &Error{Kind: KindInvalidState}
	ErrClosed                = &Error{Kind: KindInvalidState, Reason: ReasonClosed}
	ErrAlreadySettled        = &Error{Kind: KindInvalidState, Reason: ReasonAlreadySettled}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrInsufficientFunds     = &Error{Kind: KindInsufficientFunds}
	ErrAlreadyJoined         = &Error{Kind: KindAlreadyJoined}
	ErrIDAllocationExhausted = &Error{Kind: KindIDAllocationExhausted}
	ErrTransient             = &Error{Kind: KindTransient}
)

func newError(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

func invalidState(op, reason string) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Reason: reason}
}

// KindOf returns the kind of err, or an empty kind for foreign errors
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// storageError wraps a repository failure for the caller. Engine errors
// pass through unchanged.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.TableName == "wager_participants" {
		return &Error{Kind: KindAlreadyJoined, Op: op, Err: err}
	}
	return &Error{Kind: KindTransient, Op: op, Err: err}
}
