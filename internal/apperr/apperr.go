// Package apperr defines the error kinds shared by the domain, service and HTTP layers.
//
// Domain failures are declared once as sentinel *Error values. Call sites attach detail with
// Withf or a cause with Wrap; errors.Is matches on the error code, so a detailed copy still
// matches its sentinel.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the boundary layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindVerification
	KindGateway
	KindIntegrity
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindVerification:
		return "verification"
	case KindGateway:
		return "gateway"
	case KindIntegrity:
		return "integrity"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is a typed application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New declares a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of e with formatted detail appended to its message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e carrying cause. The cause is part of Error() but never of
// PublicMessage().
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// PublicMessage is the text that may be shown to API clients.
func (e *Error) PublicMessage() string {
	switch e.Kind {
	case KindGateway:
		return "Payment gateway error. Please try again later."
	case KindIntegrity, KindUnknown:
		return "Internal server error"
	default:
		return e.Message
	}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindUnknown
}

// Generic errors used across layers.
var (
	ErrIntegrity = New(KindIntegrity, "integrity_error", "database integrity error")
	ErrGateway   = New(KindGateway, "gateway_error", "payment gateway error")
)
