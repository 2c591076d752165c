// Package errors provides custom error types for the livemap system.
// These errors let callers tell a failed bulk load apart from a degraded
// sub-source or a dropped stream without matching on message text.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the livemap system
var (
	// ErrFetchFailed indicates the primary bulk fetch failed
	ErrFetchFailed = errors.New("fetch failed")

	// ErrPartialSource indicates a secondary bulk source failed and was degraded to empty
	ErrPartialSource = errors.New("partial source failure")

	// ErrStreamClosed indicates the push connection dropped or was refused
	ErrStreamClosed = errors.New("stream closed")

	// ErrMalformed indicates a payload could not be decoded
	ErrMalformed = errors.New("malformed payload")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// FetchError represents a failed bulk fetch of the primary event source.
type FetchError struct {
	Source     string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s failed (status %d): %s", e.Source, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s failed: %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed: %s", e.Source, e.Message)
	}
}

// Unwrap implements errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// NewFetchError creates a new FetchError
func NewFetchError(source string, statusCode int, message string, err error) *FetchError {
	return &FetchError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// SourceError represents a secondary bulk source that failed or returned
// unusable data. The load continues with that source empty.
type SourceError struct {
	Source string
	Err    error
}

// Error implements the error interface
func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s degraded: %v", e.Source, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SourceError) Is(target error) bool {
	return target == ErrPartialSource
}

// NewSourceError creates a new SourceError
func NewSourceError(source string, err error) *SourceError {
	return &SourceError{Source: source, Err: err}
}

// StreamError represents a dropped or refused push connection.
type StreamError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *StreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream %s refused (status %d)", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("stream %s closed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("stream %s closed", e.URL)
}

// Unwrap implements errors.Unwrap
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StreamError) Is(target error) bool {
	return target == ErrStreamClosed
}

// NewStreamError creates a new StreamError
func NewStreamError(url string, statusCode int, err error) *StreamError {
	return &StreamError{URL: url, StatusCode: statusCode, Err: err}
}

// ParseError represents a payload that could not be decoded
type ParseError struct {
	Format  string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Format, e.Message, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}

// NewParseError creates a new ParseError
func NewParseError(format, message string, err error) *ParseError {
	return &ParseError{Format: format, Message: message, Err: err}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsFetchFailure checks if an error is a failed primary bulk fetch
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrFetchFailed)
}

// IsPartialSource checks if an error is a degraded secondary source
func IsPartialSource(err error) bool {
	return errors.Is(err, ErrPartialSource)
}

// IsStreamClosed checks if an error is a stream failure
func IsStreamClosed(err error) bool {
	return errors.Is(err, ErrStreamClosed)
}

// IsMalformed checks if an error is a decode failure
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// WrapFetch wraps an error as a primary fetch failure
func WrapFetch(source string, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Source: source, Err: err}
}

// WrapSource wraps an error as a degraded secondary source
func WrapSource(source string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Source: source, Err: err}
}

// WrapParse wraps an error as a parse error
func WrapParse(format, message string, err error) error {
	if err == nil {
		return nil
	}
	return &ParseError{Format: format, Message: message, Err: err}
}
