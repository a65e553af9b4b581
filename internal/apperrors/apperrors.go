// Package apperrors defines the error taxonomy shared by every settlement
// operation. Business code returns an *Error carrying one Code; handlers
// translate the code to an HTTP status and a safe, generic message. Internal
// detail never crosses the trust boundary.
package apperrors

import (
	"errors"
	"fmt"
)

// Code classifies an operation failure.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInsufficientFunds Code = "INSUFFICIENT_BALANCE"
	CodeInvalidTransition Code = "INVALID_STATE_TRANSITION"
	CodeNotFound          Code = "NOT_FOUND"
	CodeAuthorization     Code = "AUTHORIZATION_ERROR"
	CodeConflict          Code = "CONFLICT"
	CodeDuplicateEntry    Code = "DUPLICATE_ENTRY"
	// CodeWallet marks a ledger invariant violation. It is an internal
	// defect, never a normal user outcome.
	CodeWallet Code = "WALLET_ERROR"
)

// Error is a classified application error.
type Error struct {
	ErrCode Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrCode, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two *Error values by code, so callers can compare
// against a bare New(code, "") sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.ErrCode == t.ErrCode
	}
	return false
}

// New creates a classified error.
func New(code Code, msg string) *Error {
	return &Error{ErrCode: code, Message: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{ErrCode: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a classified error.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{ErrCode: code, Message: msg, cause: cause}
}

// CodeOf extracts the code from err, or empty when err is not classified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.ErrCode
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
