package errorwrapper

import (
	"errors"
	"fmt"
)

// Common error types used across the application
var (
	// ErrInvalidInput indicates invalid caller input
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")
	// ErrIncompleteArtifact indicates a version snapshot exists but lacks its
	// full structural document (only a derived summary was ever stored).
	// Callers of comparison APIs must be able to degrade gracefully on this.
	ErrIncompleteArtifact = errors.New("incomplete artifact")
	// ErrInvalidConfiguration indicates configuration issues
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// WrapError wraps an error with additional context information
func WrapError(err error, message string) error {
	if err == nil {
		return fmt.Errorf("%s: <nil>", message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

// NewError creates a new error with a formatted message
func NewError(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// ValidationError represents validation errors with field-specific information
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NetworkError represents network-level fetch failures (DNS, connect, timeout).
type NetworkError struct {
	URL     string
	Reason  string
	Wrapped error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for URL '%s': %s", e.URL, e.Reason)
}

func (e *NetworkError) Unwrap() error {
	return e.Wrapped
}

// NewNetworkError creates a new network error
func NewNetworkError(url, reason string, wrapped error) *NetworkError {
	return &NetworkError{
		URL:     url,
		Reason:  reason,
		Wrapped: wrapped,
	}
}

// HTTPError represents a non-success HTTP response.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("HTTP %d error for URL '%s': %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("HTTP %d error: %s", e.StatusCode, e.Message)
}

// NewHTTPErrorWithURL creates a new HTTP error with URL context
func NewHTTPErrorWithURL(statusCode int, message, url string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		URL:        url,
	}
}

// ParseError represents a malformed specification document. A parse failure on
// an otherwise successful fetch is treated as a poll failure by the scheduler
// and must never reach the version store.
type ParseError struct {
	Source  string
	Reason  string
	Wrapped error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for '%s': %s", e.Source, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}

// NewParseError creates a new parse error
func NewParseError(source, reason string, wrapped error) *ParseError {
	return &ParseError{
		Source:  source,
		Reason:  reason,
		Wrapped: wrapped,
	}
}

// DeliveryError classifies an alert delivery failure as retryable or terminal.
type DeliveryError struct {
	Permanent bool
	Reason    string
	Wrapped   error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s delivery error: %s", kind, e.Reason)
}

func (e *DeliveryError) Unwrap() error {
	return e.Wrapped
}

// NewTransientDeliveryError creates a retryable delivery error (timeout, 5xx).
func NewTransientDeliveryError(reason string, wrapped error) *DeliveryError {
	return &DeliveryError{Permanent: false, Reason: reason, Wrapped: wrapped}
}

// NewPermanentDeliveryError creates a terminal delivery error (4xx, malformed destination).
func NewPermanentDeliveryError(reason string, wrapped error) *DeliveryError {
	return &DeliveryError{Permanent: true, Reason: reason, Wrapped: wrapped}
}

// IsPermanentDelivery reports whether err is a delivery error that must not be retried.
func IsPermanentDelivery(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}
