package errs

import (
	"errors"
	"fmt"
)

// Category classifies errors for routing decisions.
type Category string

const (
	CatNotFound   Category = "not_found"  // market or token unknown to the provider
	CatTransient  Category = "transient"  // network, timeout, rate limit, 5xx
	CatValidation Category = "validation" // bad input or malformed artifact
	CatFatal      Category = "fatal"      // engine or validator failure, ends the run
)

// DomainError is the structured error carried across package boundaries.
type DomainError struct {
	Category  Category
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code so sentinel values work with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Category == t.Category
	}
	return e.Category == t.Category && e.Code == t.Code
}

func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// Sentinels matching a whole category.
var (
	ErrNotFound   = &DomainError{Category: CatNotFound}
	ErrTransient  = &DomainError{Category: CatTransient}
	ErrValidation = &DomainError{Category: CatValidation}
	ErrFatal      = &DomainError{Category: CatFatal}
)

func NotFound(code, message string) *DomainError {
	return &DomainError{Category: CatNotFound, Code: code, Message: message}
}

func Transient(code, message string) *DomainError {
	return &DomainError{Category: CatTransient, Code: code, Message: message, Retryable: true}
}

func Validation(code, message string) *DomainError {
	return &DomainError{Category: CatValidation, Code: code, Message: message}
}

func Fatal(code, message string) *DomainError {
	return &DomainError{Category: CatFatal, Code: code, Message: message}
}

// IsRetryable reports whether any DomainError in the chain allows a retry.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// CategoryOf returns the category of the first DomainError in the chain.
func CategoryOf(err error) Category {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}

// FromStatus maps an HTTP status code from a provider to a DomainError.
func FromStatus(provider string, status int, body string) *DomainError {
	msg := fmt.Sprintf("%s returned HTTP %d", provider, status)
	if body != "" {
		msg += ": " + body
	}
	switch {
	case status == 404:
		return NotFound("HTTP_404", msg)
	case status == 408 || status == 429 || status >= 500:
		return Transient(fmt.Sprintf("HTTP_%d", status), msg)
	default:
		return Validation(fmt.Sprintf("HTTP_%d", status), msg)
	}
}
