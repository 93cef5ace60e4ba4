package apperror

import "fmt"

// Code classifies an application error.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	CodePermissionDenied    Code = "PERMISSION_DENIED"
	CodeBackendFailure      Code = "BACKEND_FAILURE"
	CodeTransactionFailed   Code = "TRANSACTION_FAILED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is a typed application error carrying a classification code and an
// optional cause. All per-update failures are reduced to one of these at the
// handler boundary.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is match on the code, so sentinels like
// NotFound("user", id) and a repository NotFound compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

func NotFound(resource, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id))
}

func InsufficientCredits(balance, required int64) *Error {
	return New(CodeInsufficientCredits,
		fmt.Sprintf("balance %d below required %d", balance, required))
}

func PermissionDenied(reason string) *Error {
	return New(CodePermissionDenied, reason)
}

func BackendFailure(operation string, err error) *Error {
	return Wrap(err, CodeBackendFailure, fmt.Sprintf("backend operation failed: %s", operation))
}

func TransactionFailed(operation string, err error) *Error {
	return Wrap(err, CodeTransactionFailed, fmt.Sprintf("transaction failed: %s", operation))
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code Code) bool {
	for err != nil {
		if appErr, ok := err.(*Error); ok {
			return appErr.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
