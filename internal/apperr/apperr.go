// Package apperr provides the error taxonomy shared by all API operations.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-readable classification of an error.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindNotFound           Kind = "NotFound"
	KindAlreadyTaken       Kind = "AlreadyTaken"
	KindInvalidTransition  Kind = "InvalidTransition"
	KindInvalidState       Kind = "InvalidState"
	KindWasherNotEligible  Kind = "WasherNotEligible"
	KindGatewayTimeout     Kind = "GatewayTimeout"
	KindPaymentFailed      Kind = "PaymentFailed"
	KindSettlementConflict Kind = "SettlementConflict"
)

// Error carries a Kind alongside a human-readable message. Err, when set,
// preserves the underlying cause for logging and errors.Is/As chains.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain. The second return is false
// when the chain contains no *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPStatus maps an error kind to the response status used by the API layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyTaken, KindInvalidTransition, KindInvalidState:
		return http.StatusConflict
	case KindWasherNotEligible:
		return http.StatusForbidden
	case KindPaymentFailed:
		return http.StatusPaymentRequired
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	case KindSettlementConflict:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
