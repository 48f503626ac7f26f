// Package errors provides custom error types for the vysync system.
// These errors enable programmatic error checking across the transport,
// store, and sync layers, in particular the transient/permanent split
// that drives retry behavior.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the vysync system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that a remote API rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrRemoteUnavailable indicates a remote system failed after all retries
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrStoreConflict indicates a uniqueness violation in the correlation store
	ErrStoreConflict = errors.New("store conflict")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// APIError represents an error response from one of the remote systems.
type APIError struct {
	System     string // "vcom" or "yuman"
	StatusCode int
	Endpoint   string
	Body       string // response body kept for diagnostics
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d) on %s: %s", e.System, e.StatusCode, e.Endpoint, e.Body)
	}
	return fmt.Sprintf("%s API error on %s: %v", e.System, e.Endpoint, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	if e.StatusCode == 429 {
		return target == ErrRateLimited
	}
	if e.StatusCode >= 500 {
		return target == ErrRemoteUnavailable
	}
	return false
}

// Transient reports whether the error is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500 || e.StatusCode == 0
}

// NewAPIError creates a new APIError
func NewAPIError(system string, statusCode int, endpoint, body string) *APIError {
	return &APIError{
		System:     system,
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Body:       body,
	}
}

// ValidationError represents a record that cannot be normalized or correlated.
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

// ConfigError represents a startup configuration error. Configuration
// errors are fatal: no reconciliation pass may begin with one pending.
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
	return &ConfigError{Component: component, Message: message, Err: err}
}

// StoreConflictError represents a uniqueness violation on a correlation
// record upsert. The orchestrator resolves it by re-reading and merging.
type StoreConflictError struct {
	Table  string
	Column string
	Value  string
	Err    error
}

// Error implements the error interface
func (e *StoreConflictError) Error() string {
	return fmt.Sprintf("store conflict on %s.%s=%s: %v", e.Table, e.Column, e.Value, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreConflictError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StoreConflictError) Is(target error) bool {
	return target == ErrStoreConflict || target == ErrAlreadyExists
}

// NewStoreConflictError creates a new StoreConflictError
func NewStoreConflictError(table, column, value string, err error) *StoreConflictError {
	return &StoreConflictError{Table: table, Column: column, Value: value, Err: err}
}

// SyncError represents a per-entity failure during a reconciliation pass.
type SyncError struct {
	Kind     string // entity kind: "site", "equipment", "ticket"
	EntityID string
	Stage    string // pass stage where the failure occurred
	Err      error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync error for %s %s at %s: %v", e.Kind, e.EntityID, e.Stage, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError creates a new SyncError
func NewSyncError(kind, entityID, stage string, err error) *SyncError {
	return &SyncError{Kind: kind, EntityID: entityID, Stage: stage, Err: err}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsStoreConflict checks if an error is a correlation store conflict
func IsStoreConflict(err error) bool {
	return errors.Is(err, ErrStoreConflict)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsTransient reports whether the error came from a remote condition
// that retrying could resolve (429, 5xx, network failure, timeout).
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrTimeout)
}

// As is an alias for the standard library errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is an alias for the standard library errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
