package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the structured error type for Trenton.
// It carries enough classification for the scheduler to decide between
// retrying a file, recording a per-file failure and failing a whole job.
type Error struct {
	// Code is the unique error code (e.g., "ERR_402_UNSUPPORTED_FORMAT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Embedder, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with sentinel *Error values.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel values for errors.Is comparisons. Only the code is compared.
var (
	ErrUnsupportedFormat    = &Error{Code: ErrCodeUnsupportedFormat}
	ErrNotFound             = &Error{Code: ErrCodeNotFound}
	ErrInvalidInput         = &Error{Code: ErrCodeInvalidInput}
	ErrFullScanRunning      = &Error{Code: ErrCodeFullScanRunning}
	ErrJobFinished          = &Error{Code: ErrCodeJobFinished}
	ErrAlreadyExists        = &Error{Code: ErrCodeAlreadyExists}
	ErrFolderRemoved        = &Error{Code: ErrCodeFolderRemoved}
	ErrStoreWriteConflict   = &Error{Code: ErrCodeStoreWriteConflict}
	ErrStoreUnavailable     = &Error{Code: ErrCodeStoreUnavailable}
	ErrSchedulerUnavailable = &Error{Code: ErrCodeSchedulerUnavailable}
	ErrWatchOverflow        = &Error{Code: ErrCodeWatchOverflow}
)

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// NotFoundError creates an error for a missing folder, file or job.
func NotFoundError(message string) *Error {
	return New(ErrCodeNotFound, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
// Returns true if the chain contains an Error with Retryable set.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors fail the whole job rather than a single file.
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the chain.
// Returns empty string if no Error is present.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// GetCategory extracts the category from the chain.
func GetCategory(err error) Category {
	if e, ok := As(err); ok {
		return e.Category
	}
	return ""
}
