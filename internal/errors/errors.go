package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error category mapped to process exit codes.
type Code int

const (
	CodeSuccess    Code = 0
	CodeInternal   Code = 1
	CodeUsage      Code = 2
	CodeValidation Code = 10
	CodeAuth       Code = 11
	CodeSafety     Code = 12
	CodeExecution  Code = 13
	CodeRepayment  Code = 14
	CodeReentrancy Code = 15
	CodeNotFound   Code = 16
	CodeStore      Code = 17
)

// Error is a typed engine error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	if typed, ok := As(err); ok {
		return typed.Code == code
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if typed, ok := As(err); ok {
		return int(typed.Code)
	}
	return int(CodeInternal)
}
