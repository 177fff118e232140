// Package errs defines the standardized error taxonomy used across
// spawnkit, modeled on the calling convention of the teacher's
// pkg/errors: a typed error carrying a stable code, the component and
// operation that raised it, and an optional wrapped cause.
package errs

import "fmt"

// Code identifies one of the error kinds spawnkit.md §7 enumerates.
type Code string

const (
	CodeCaptureResolution   Code = "CAPTURE_RESOLUTION_FAILED"
	CodePayloadNonClonable  Code = "PAYLOAD_NON_CLONABLE"
	CodeWorkerJobFailure    Code = "WORKER_JOB_FAILED"
	CodeWorkerHost          Code = "WORKER_HOST_ERROR"
	CodeInvariantViolation  Code = "INVARIANT_VIOLATION"
	CodeShutdown            Code = "PROCESS_SHUTDOWN"
	CodeGeneration          Code = "GENERATION_FAILED"
	CodeSharedMemory        Code = "SHARED_MEMORY_ERROR"
)

// Error is spawnkit's standard error shape.
type Error struct {
	Code      Code
	Component string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s.%s: %s: %v", e.Code, e.Component, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s.%s: %s", e.Code, e.Component, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a standalone Error with no wrapped cause.
func New(code Code, component, operation, message string) *Error {
	return &Error{Code: code, Component: component, Operation: operation, Message: message}
}

// Wrap builds an Error that wraps cause, or returns nil if cause is nil.
func Wrap(code Code, component, operation string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Component: component, Operation: operation, Message: cause.Error(), Cause: cause}
}

// Is reports whether err (or something it wraps) carries code.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Code == code {
				return true
			}
			err = e.Cause
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
