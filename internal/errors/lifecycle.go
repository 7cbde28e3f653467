package errors

import (
	"errors"
	"fmt"
	"time"
)

// Lifecycle sentinels
var (
	// ErrNotConnected is returned when a collaborator asks for the database
	// handle while the store is not connected. Operations fail immediately
	// instead of queueing until connectivity returns.
	ErrNotConnected = errors.New("store not connected")

	// ErrGatewayClosed is returned by the gateway once CloseAll has started
	ErrGatewayClosed = errors.New("realtime gateway closed")

	// ErrChannelNotFound is returned when a targeted emit names an unknown channel
	ErrChannelNotFound = errors.New("channel not found")

	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("application already started")

	// ErrStartupTimeout is the cause recorded when bring-up outlives its budget
	ErrStartupTimeout = errors.New("startup timeout exceeded")
)

// ConnectError reports a failed store connection attempt
type ConnectError struct {
	Reason string
	Cause  error
}

// Error implements the error interface
func (e *ConnectError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store connect failed: %s: %v", e.Reason, e.Cause)
	}
	return "store connect failed: " + e.Reason
}

// Unwrap returns the underlying driver error
func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// NewConnectError creates a ConnectError
func NewConnectError(reason string, cause error) *ConnectError {
	return &ConnectError{Reason: reason, Cause: cause}
}

// CloseError reports a shutdown step that did not complete cleanly
type CloseError struct {
	Step    string
	Elapsed time.Duration
	Cause   error
}

// Error implements the error interface
func (e *CloseError) Error() string {
	return fmt.Sprintf("shutdown step %q failed after %s: %v", e.Step, e.Elapsed.Round(time.Millisecond), e.Cause)
}

// Unwrap returns the step failure
func (e *CloseError) Unwrap() error {
	return e.Cause
}

// NewCloseError creates a CloseError
func NewCloseError(step string, elapsed time.Duration, cause error) *CloseError {
	return &CloseError{Step: step, Elapsed: elapsed, Cause: cause}
}

// StartupError reports the step at which bring-up aborted
type StartupError struct {
	Phase string
	Cause error
}

// Error implements the error interface
func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed during %s: %v", e.Phase, e.Cause)
}

// Unwrap returns the failure cause
func (e *StartupError) Unwrap() error {
	return e.Cause
}

// NewStartupError creates a StartupError
func NewStartupError(phase string, cause error) *StartupError {
	return &StartupError{Phase: phase, Cause: cause}
}

// HealthReportError reports that a health snapshot could not be assembled
type HealthReportError struct {
	Cause    error
	Panicked bool
}

// Error implements the error interface
func (e *HealthReportError) Error() string {
	if e.Panicked {
		return "health report failed: panic: " + e.Cause.Error()
	}
	return "health report failed: " + e.Cause.Error()
}

// Unwrap returns the introspection failure
func (e *HealthReportError) Unwrap() error {
	return e.Cause
}

// Message returns the underlying failure text without the report prefix
func (e *HealthReportError) Message() string {
	return e.Cause.Error()
}

// NewHealthReportError creates a HealthReportError. A recovered panic value
// that is not an error is converted into one.
func NewHealthReportError(cause any) *HealthReportError {
	switch c := cause.(type) {
	case error:
		return &HealthReportError{Cause: c}
	default:
		return &HealthReportError{Cause: fmt.Errorf("%v", c), Panicked: true}
	}
}
