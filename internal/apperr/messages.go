package apperr

import "errors"

const (
	msgServerError      = "server error, please try again later"
	msgNothingToUpdate  = "nothing to update"
	msgNotAuthenticated = "please log in again"
	msgGenericFailure   = "operation failed"
	msgBusy             = "another bulk action is running, try again when it finishes"
)

// UserMessage returns the single operator-facing text for err, or "" when the
// error must be suppressed.
func UserMessage(err error) string {
	if Silent(err) {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) {
		return msgServerError
	}

	switch e.kind {
	case KindEmptyInput:
		if e.message != "" {
			return e.message
		}
		return msgNothingToUpdate
	case KindBusy:
		return msgBusy
	case KindInvalid:
		if e.message != "" {
			return e.message
		}
		return msgGenericFailure
	case KindUnauthenticated:
		return msgNotAuthenticated
	case KindApplication:
		if e.message != "" {
			return e.message
		}
		return msgGenericFailure
	default:
		return msgServerError
	}
}
