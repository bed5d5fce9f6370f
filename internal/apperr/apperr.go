// Package apperr carries the error taxonomy shared by every service:
// validation, unauthenticated, forbidden, not-found, conflict, internal.
// Callers (HTTP adapters, CLIs) map kinds to their own status codes;
// unauthenticated and forbidden stay distinguishable for 401 vs 403.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Error is the concrete error value all services return for expected
// failures. Missing is populated only for forbidden errors raised by
// all-of permission checks.
type Error struct {
	Kind    Kind
	Message string
	Missing []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// ForbiddenMissing reports an all-of permission check failure with the
// exact codes the actor lacks.
func ForbiddenMissing(codes []string) *Error {
	return &Error{
		Kind:    KindForbidden,
		Message: fmt.Sprintf("missing permissions: %v", codes),
		Missing: codes,
	}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Cause: cause}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsValidation(err error) bool      { return KindOf(err) == KindValidation }
func IsUnauthenticated(err error) bool { return KindOf(err) == KindUnauthenticated }
func IsForbidden(err error) bool       { return KindOf(err) == KindForbidden }
func IsNotFound(err error) bool        { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool        { return KindOf(err) == KindConflict }

// MissingCodes returns the permission codes a forbidden error reported.
func MissingCodes(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Missing
	}
	return nil
}
