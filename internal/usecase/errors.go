package usecase

import "errors"

const (
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidState      = "INVALID_STATE"
	CodeValidation        = "VALIDATION_ERROR"
	CodeConflict          = "CONFLICT"
	CodeInvalidAmount     = "INVALID_AMOUNT"
)

// DomainError is a business rule violation. It is terminal for the request except CONFLICT,
// which the caller may retry after re-reading the prospect.
type DomainError struct {
	Code    string
	Message string
	Fields  []ValidationError
	Cause   error
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any *DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// Retryable reports whether the same request may succeed after re-reading state.
func (e *DomainError) Retryable() bool {
	return e.Code == CodeConflict
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// ErrorCode returns the domain code carried by err, or "" for technical errors.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

var (
	ErrNotFound          = &DomainError{Code: CodeNotFound}
	ErrForbidden         = &DomainError{Code: CodeForbidden}
	ErrInvalidTransition = &DomainError{Code: CodeInvalidTransition}
	ErrInvalidState      = &DomainError{Code: CodeInvalidState}
	ErrValidation        = &DomainError{Code: CodeValidation}
	ErrConflict          = &DomainError{Code: CodeConflict}
	ErrInvalidAmount     = &DomainError{Code: CodeInvalidAmount}
)

// TechnicalError wraps an infrastructure failure (database, broker, remote service).
type TechnicalError struct {
	Code    string
	Message string
	Cause   error
}

func (e *TechnicalError) Error() string {
	return e.Message
}

func (e *TechnicalError) Unwrap() error {
	return e.Cause
}

func IsTechnicalError(err error) bool {
	var te *TechnicalError
	return errors.As(err, &te)
}
