package errors

import (
	stderrors "errors"
	"fmt"
)

// ExitError carries the process exit code and, for query failures, the
// result status that produced it.
type ExitError struct {
	Code   int
	Status string
	Err    error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(err error, code int) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

func Newf(code int, format string, args ...any) error {
	return &ExitError{
		Code: code,
		Err:  fmt.Errorf(format, args...),
	}
}

// NewStatus wraps err with the exit code of a non-OK result status.
func NewStatus(err error, status string) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: ForStatus(status), Status: status, Err: err}
}

func GetCode(err error) int {
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}
	return InputError
}

func GetStatus(err error) string {
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Status
	}
	return ""
}
