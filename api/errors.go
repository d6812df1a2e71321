// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-bus.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrFdOutOfRange    = fmt.Errorf("descriptor outside slot fd range")
	ErrSlotMismatch    = fmt.Errorf("descriptor registered to another context")
	ErrTableFull       = fmt.Errorf("descriptor table full")
	ErrHandleClosed    = fmt.Errorf("handle already destroyed")
	ErrHooksRejected   = fmt.Errorf("bus object rejected hook installation")
	ErrLoopClosed      = fmt.Errorf("event loop is closed")
	ErrNotSupported    = fmt.Errorf("operation not supported on this platform")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeFdOutOfRange
	ErrCodeSlotMismatch
	ErrCodeTableFull
	ErrCodeHandleClosed
	ErrCodeHooksRejected
	ErrCodeLoopClosed
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
