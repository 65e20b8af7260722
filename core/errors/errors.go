package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	ErrInternalServer         ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrNotFound               ErrorCode = "NOT_FOUND"
	ErrMissingCapability      ErrorCode = "MISSING_CAPABILITY"
	ErrUnsupportedOperation   ErrorCode = "UNSUPPORTED_OPERATION"
	ErrConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	ErrMaxAccountsExceeded    ErrorCode = "MAX_ACCOUNTS_EXCEEDED"
	ErrInvalidFormat          ErrorCode = "INVALID_FORMAT"
	ErrUnsupportedFolder      ErrorCode = "UNSUPPORTED_FOLDER"
	ErrStorage                ErrorCode = "STORAGE_ERROR"
)

// AppError is the error type returned across module boundaries. Details hold
// the structured facts (ids, limits, timestamps) a caller needs to build a
// message without inspecting the wrapped cause.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail sets a detail key and returns the same error for chaining.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString("]")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so errors.Is(err, &AppError{Code: X})
// works through wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// As finds the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrInternalServer for foreign errors.
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrInternalServer
}

// IsRetryable reports whether a caller may retry after re-reading state.
// Only optimistic concurrency conflicts qualify.
func IsRetryable(err error) bool {
	return HasCode(err, ErrConcurrentModification)
}

// Is and New re-export the standard helpers so packages that import this one
// under the name "errors" need no second import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func New(text string) error {
	return stderrors.New(text)
}
