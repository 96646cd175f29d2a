// Package errors provides centralized error definitions and error handling utilities
// for foresight. It defines pipeline sentinel errors, typed errors for the three
// failure classes the pipeline can produce, and classification helpers.
//
// # Error Types
//
//   - PreconditionError: an action was triggered while its capability was locked.
//     The action is rejected without touching pipeline state.
//   - CollaboratorError: a storage or model operation reported failure.
//   - LivenessError: a blocking join did not observe its operation's completion
//     within the configured bound.
//   - ValidationError: invalid input handed to a pipeline component.
//
// # Usage
//
//	err := errors.NewPreconditionError("upload", "no data to upload")
//	if errors.Is(err, errors.ErrPrecondition) { ... }
//
//	var collab *errors.CollaboratorError
//	if errors.As(err, &collab) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Pipeline sentinel errors
var (
	// ErrPrecondition indicates that an action's capability is not unlocked.
	ErrPrecondition = New("precondition not satisfied")
	// ErrCollaborator indicates that a collaborator operation reported failure.
	ErrCollaborator = New("collaborator operation failed")
	// ErrNotCompleted indicates that a blocking join gave up waiting.
	ErrNotCompleted = New("operation did not complete")
	// ErrNoModel indicates that no model handle is available.
	ErrNoModel = New("no model available")
	// ErrModelNotCompiled indicates that a model handle exists but is not compiled.
	ErrModelNotCompiled = New("model is not compiled")
	// ErrInvalidPrediction indicates a prediction vector of the wrong shape.
	ErrInvalidPrediction = New("invalid prediction vector")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = New("not found")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ForesightError is the base interface for all foresight errors.
type ForesightError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Pipeline Errors
// -----------------------------------------------------------------------------

// PreconditionError is returned when an action is triggered while its
// capability is locked. It is reported to operators through the log, never
// through the user-visible status text.
//
// Example:
//
//	err := errors.NewPreconditionError("predict", "no model for prediction")
//	fmt.Println(err) // "precondition error [capability=predict]: no model for prediction"
type PreconditionError struct {
	baseError
	Capability string
}

// NewPreconditionError creates a new PreconditionError.
func NewPreconditionError(capability, reason string) *PreconditionError {
	return &PreconditionError{
		baseError: baseError{
			message:    reason,
			cause:      ErrPrecondition,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: false,
		},
		Capability: capability,
	}
}

// WithCause replaces the default cause (ErrPrecondition stays matchable).
func (e *PreconditionError) WithCause(cause error) *PreconditionError {
	e.cause = Join(ErrPrecondition, cause)
	return e
}

// Reason returns the human-readable rejection reason.
func (e *PreconditionError) Reason() string {
	return e.message
}

// Error returns the formatted error message.
func (e *PreconditionError) Error() string {
	prefix := "precondition error"
	if e.Capability != "" {
		prefix = fmt.Sprintf("precondition error [capability=%s]", e.Capability)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PreconditionError) Is(target error) bool {
	if _, ok := target.(*PreconditionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CollaboratorError represents a failure reported by a storage or model
// collaborator.
//
// Example:
//
//	err := errors.NewCollaboratorError("upload_blob", ioErr).WithCapability("upload")
type CollaboratorError struct {
	baseError
	Operation  string
	Capability string
}

// NewCollaboratorError creates a new CollaboratorError.
func NewCollaboratorError(operation string, cause error) *CollaboratorError {
	return &CollaboratorError{
		baseError: baseError{
			message:    operation + " failed",
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
	}
}

// WithCapability adds the capability whose action issued the operation.
func (e *CollaboratorError) WithCapability(c string) *CollaboratorError {
	e.Capability = c
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *CollaboratorError) WithRetryable(r bool) *CollaboratorError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *CollaboratorError) Error() string {
	var parts []string
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	if e.Capability != "" {
		parts = append(parts, fmt.Sprintf("capability=%s", e.Capability))
	}

	prefix := "collaborator error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("collaborator error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CollaboratorError) Is(target error) bool {
	if _, ok := target.(*CollaboratorError); ok {
		return true
	}
	if target == ErrCollaborator {
		return true
	}
	return e.baseError.Is(target)
}

// LivenessError is returned by a blocking join whose operation did not
// complete within the configured bound. The operation itself keeps running;
// only the wait is abandoned.
//
// Example:
//
//	err := errors.NewLivenessError("format", 30*time.Second)
//	fmt.Println(err) // "liveness error: format did not complete within 30s"
type LivenessError struct {
	baseError
	Operation string
	Waited    time.Duration
}

// NewLivenessError creates a new LivenessError.
func NewLivenessError(operation string, waited time.Duration) *LivenessError {
	return &LivenessError{
		baseError: baseError{
			message:    operation,
			cause:      ErrNotCompleted,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Operation: operation,
		Waited:    waited,
	}
}

// Error returns the formatted error message.
func (e *LivenessError) Error() string {
	return fmt.Sprintf("liveness error: %s did not complete within %s", e.Operation, e.Waited)
}

// Is checks if this error matches the target.
func (e *LivenessError) Is(target error) bool {
	if _, ok := target.(*LivenessError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("must be positive").WithField("num_features").WithValue(-1)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			cause:      ErrInvalidInput,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds the field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		if e.Value != nil {
			return fmt.Sprintf("validation error [field=%s]: %s (got: %v)", e.Field, e.message, e.Value)
		}
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. The pipeline itself never retries; callers
// decide.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var fsErr ForesightError
	if As(err, &fsErr) {
		return fsErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var fsErr ForesightError
	if As(err, &fsErr) {
		return fsErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ForesightError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var fsErr ForesightError
	if As(err, &fsErr) {
		return fsErr.Severity()
	}

	return SeverityError
}

// IsPrecondition reports whether err is a rejected-action error.
func IsPrecondition(err error) bool {
	return Is(err, ErrPrecondition)
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
