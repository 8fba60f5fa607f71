// Package engine provides the core types and the sequential execution engine
// for the PolicyProbe sanity runner.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassConfig indicates an invalid hierarchy config or selection.
	// Surfaces synchronously before any combination is attempted.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassInvocation indicates a step invocation failure, including
	// simulated failures and captured panics.
	ErrorClassInvocation ErrorClass = "invocation"

	// ErrorClassStorage indicates a progress store read or write failure.
	ErrorClassStorage ErrorClass = "storage"

	// ErrorClassPermanent indicates a non-recoverable internal error.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Execution is the execution ID that caused the error, if applicable.
	Execution string `json:"execution,omitempty"`

	// Step is the step being invoked when the error occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Execution != "" && e.Step != "" {
		return fmt.Sprintf("[%s] %s (execution=%s, step=%s): %s",
			e.Class, e.Message, e.Execution, e.Step, e.unwrapMessage())
	}
	if e.Execution != "" {
		return fmt.Sprintf("[%s] %s (execution=%s): %s",
			e.Class, e.Message, e.Execution, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigError creates a new config error.
func NewConfigError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConfig,
		Message: message,
		Err:     err,
	}
}

// NewInvocationError creates a new step invocation error.
func NewInvocationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInvocation,
		Message: message,
		Err:     err,
	}
}

// NewStorageError creates a new storage error.
func NewStorageError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassStorage,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithExecution adds execution context to an error.
func (e *EngineError) WithExecution(executionID string) *EngineError {
	e.Execution = executionID
	return e
}

// WithStep adds step context to an error.
func (e *EngineError) WithStep(step string) *EngineError {
	e.Step = step
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsConfigError returns true if the error is classified as a config error.
func IsConfigError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConfig
	}
	return false
}

// IsInvocationError returns true if the error is classified as an invocation error.
func IsInvocationError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInvocation
	}
	return false
}

// IsStorageError returns true if the error is classified as a storage error.
func IsStorageError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassStorage
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyExists   = "ALREADY_EXISTS"
	ErrCodeMissingToken    = "MISSING_TOKEN"
	ErrCodeSimulatedFail   = "SIMULATED_FAILURE"
	ErrCodePanic           = "STEP_PANIC"
	ErrCodeWriteFailed     = "WRITE_FAILED"
	ErrCodeCapacityReached = "CAPACITY_REACHED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)
