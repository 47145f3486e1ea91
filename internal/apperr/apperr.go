// Package apperr classifies failures of backend operations into the taxonomy
// the dashboard reacts to: cancelled work is silent, everything else is
// reported once.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindCancelled       Kind = "cancelled"
	KindTransport       Kind = "transport"
	KindApplication     Kind = "application"
	KindEmptyInput      Kind = "empty_input"
	KindDeclined        Kind = "declined"
	KindUnauthenticated Kind = "unauthenticated"
	KindBusy            Kind = "busy"
	KindInvalid         Kind = "invalid"
)

// Error is the unified error type for backend-facing operations.
type Error struct {
	kind    Kind
	op      string
	message string
	cause   error
}

// Sentinels usable with errors.Is; matching is by kind.
var (
	ErrCancelled        = &Error{kind: KindCancelled, message: "operation cancelled"}
	ErrNothingToUpdate  = &Error{kind: KindEmptyInput, message: "nothing to update"}
	ErrDeclined         = &Error{kind: KindDeclined, message: "operation declined"}
	ErrNotAuthenticated = &Error{kind: KindUnauthenticated, message: "not logged in"}
	ErrBusy             = &Error{kind: KindBusy, message: "another bulk action is running"}
)

// Invalid reports input the operation cannot accept.
func Invalid(op, message string) *Error {
	return &Error{kind: KindInvalid, op: op, message: message}
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{kind: kind, op: op, message: message}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, op string, cause error, message string) *Error {
	return &Error{kind: kind, op: op, message: message, cause: cause}
}

// Application reports a transport success carrying a failure discriminator.
func Application(op, backendMessage string) *Error {
	return &Error{kind: KindApplication, op: op, message: backendMessage}
}

// Transport reports a request that could not complete.
func Transport(op string, cause error) *Error {
	return &Error{kind: KindTransport, op: op, message: "request failed", cause: cause}
}

// Cancelled reports that op was superseded or aborted.
func Cancelled(op string, cause error) *Error {
	return &Error{kind: KindCancelled, op: op, message: "operation cancelled", cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.message
	if e.op != "" {
		msg = e.op + ": " + msg
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// Kind returns the category.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindUnknown
	}
	return e.kind
}

// Message is the backend or internal message without op and cause.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Op is the name of the failed operation.
func (e *Error) Op() string {
	if e == nil {
		return ""
	}
	return e.op
}

// KindOf returns the kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsCancelled reports whether err stems from a cancelled operation.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == KindCancelled {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Classify resolves an error caught at a call site. When ctx has been
// cancelled the failure is attributed to the cancellation regardless of how
// the transport reported it.
func Classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.kind != KindCancelled && ctx != nil && errors.Is(ctx.Err(), context.Canceled) {
			return Cancelled(op, err)
		}
		return err
	}
	if (ctx != nil && errors.Is(ctx.Err(), context.Canceled)) || errors.Is(err, context.Canceled) {
		return Cancelled(op, err)
	}
	return Transport(op, err)
}

// Silent reports errors that must never reach the operator.
func Silent(err error) bool {
	if err == nil {
		return true
	}
	switch KindOf(err) {
	case KindCancelled, KindDeclined:
		return true
	}
	return errors.Is(err, context.Canceled)
}
