// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for the xlink dispatch core.

package api

import (
	"errors"
	"fmt"
)

// Admission, resource and lifecycle errors shared by all packages.
var (
	ErrNotInitialized   = errors.New("dispatcher registry not initialized")
	ErrAlreadyDestroyed = errors.New("dispatcher registry already destroyed")
	ErrUnknownLink      = errors.New("unknown link id")
	ErrNotRunning       = errors.New("dispatcher is not running")
	ErrInvalidState     = errors.New("invalid dispatcher state for operation")
	ErrQueueFull        = errors.New("event queue full")
	ErrPoolExhausted    = errors.New("event buffer pool exhausted")
	ErrStartFailed      = errors.New("dispatcher worker failed to start")
	ErrJoinTimeout      = errors.New("dispatcher worker failed to join")
	ErrShortTransfer    = errors.New("short transfer")
	ErrTimeout          = errors.New("operation timeout")
	ErrNoData           = errors.New("no data available")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrTransportClosed  = errors.New("transport is closed")
)

// ErrorCode classifies an Error by the taxonomy callers act on.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	// ErrCodeAdmission: the request was rejected; the caller keeps the event.
	ErrCodeAdmission
	// ErrCodeTransient: an I/O failure that does not stop the worker.
	ErrCodeTransient
	// ErrCodeFatal: the dispatcher moved to ERROR and must not be reused.
	ErrCodeFatal
	// ErrCodeExhausted: a bounded resource ran dry; retry later.
	ErrCodeExhausted
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeAdmission:
		return "admission"
	case ErrCodeTransient:
		return "transient"
	case ErrCodeFatal:
		return "fatal"
	case ErrCodeExhausted:
		return "exhausted"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the sentinel behind the structured error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error wrapping cause.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
		Err:     cause,
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

// CodeOf returns the taxonomy code of err, or ErrCodeInternal when err
// carries no structured code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
