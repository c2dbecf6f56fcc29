// Package errcode defines stable business error codes shared by the ledger,
// bridge, rollup and API layers.
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, user-visible error identifier.
type Code string

const (
	CodeNotFound                  Code = "NOT_FOUND"
	CodeInvalidNonce              Code = "INVALID_NONCE"
	CodeInvalidSignature          Code = "INVALID_SIGNATURE"
	CodeInvalidAmount             Code = "INVALID_AMOUNT"
	CodeInsufficientBalance       Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientStake         Code = "INSUFFICIENT_STAKE"
	CodeNegativeBalance           Code = "NEGATIVE_BALANCE"
	CodeBelowMinimum              Code = "BELOW_MINIMUM"
	CodeInsufficientConfirmations Code = "INSUFFICIENT_CONFIRMATIONS"
	CodeDoubleSpendSuspected      Code = "DOUBLE_SPEND_SUSPECTED"
	CodeBridgeBroadcastFailure    Code = "BRIDGE_BROADCAST_FAILURE"
	CodeFraudDetected             Code = "FRAUD_DETECTED"
	CodeNotLeader                 Code = "NOT_LEADER"
	CodeInvalidRequest            Code = "INVALID_REQUEST"
	CodeInternal                  Code = "INTERNAL"
)

// Error is a business rule error. Two errors match under errors.Is when
// their codes are equal, so a wrapped error with a specific message still
// matches the package-level sentinel.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// New returns an error with the code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound                  = &Error{Code: CodeNotFound}
	ErrInvalidNonce              = &Error{Code: CodeInvalidNonce}
	ErrInvalidSignature          = &Error{Code: CodeInvalidSignature}
	ErrInvalidAmount             = &Error{Code: CodeInvalidAmount}
	ErrInsufficientBalance       = &Error{Code: CodeInsufficientBalance}
	ErrInsufficientStake         = &Error{Code: CodeInsufficientStake}
	ErrNegativeBalance           = &Error{Code: CodeNegativeBalance}
	ErrBelowMinimum              = &Error{Code: CodeBelowMinimum}
	ErrInsufficientConfirmations = &Error{Code: CodeInsufficientConfirmations}
	ErrDoubleSpendSuspected      = &Error{Code: CodeDoubleSpendSuspected}
	ErrBridgeBroadcastFailure    = &Error{Code: CodeBridgeBroadcastFailure}
	ErrFraudDetected             = &Error{Code: CodeFraudDetected}
	ErrNotLeader                 = &Error{Code: CodeNotLeader}
	ErrInvalidRequest            = &Error{Code: CodeInvalidRequest}
)

// From extracts the business error from err. Errors that are not business
// errors are reported as CodeInternal with a generic message so internal
// details never reach the caller.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: "internal error"}
}

// HTTPStatus maps a code to the status used by the API layer.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidNonce, CodeInvalidSignature, CodeInvalidAmount,
		CodeNegativeBalance, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeInsufficientBalance, CodeInsufficientStake, CodeBelowMinimum:
		return http.StatusUnprocessableEntity
	case CodeInsufficientConfirmations, CodeNotLeader:
		return http.StatusConflict
	case CodeDoubleSpendSuspected, CodeFraudDetected:
		return http.StatusConflict
	case CodeBridgeBroadcastFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
