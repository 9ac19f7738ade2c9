package core

import (
	"errors"
	"fmt"
)

// Error is the structured failure produced while resolving tool calls,
// generating media, or driving the realtime sessions.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrCaptureFailed    ErrorType = "capture_failed"
	ErrParseFailed      ErrorType = "parse_failed"
	ErrGenerationFailed ErrorType = "generation_failed"
	ErrUnknownTool      ErrorType = "unknown_tool"
	ErrNotReady         ErrorType = "not_ready"
	ErrTransportFailed  ErrorType = "transport_failed"
	ErrInvalidArgument  ErrorType = "invalid_argument"
)

// NewCaptureFailedError reports that no usable frame was available.
func NewCaptureFailedError(message string) *Error {
	return &Error{Type: ErrCaptureFailed, Message: message}
}

// NewParseFailedError reports a malformed generation response.
func NewParseFailedError(message string) *Error {
	return &Error{Type: ErrParseFailed, Message: message}
}

// NewGenerationFailedError reports that the backend produced no usable output.
func NewGenerationFailedError(message string) *Error {
	return &Error{Type: ErrGenerationFailed, Message: message}
}

// NewUnknownToolError reports a tool name outside the declared set.
func NewUnknownToolError(name string) *Error {
	return &Error{Type: ErrUnknownTool, Message: "unknown tool: " + name, Param: "name"}
}

// NewNotReadyError reports a display request for media that was never generated.
func NewNotReadyError(message string) *Error {
	return &Error{Type: ErrNotReady, Message: message}
}

// NewTransportError wraps a session send/connect failure.
func NewTransportError(message string, cause error) *Error {
	return &Error{Type: ErrTransportFailed, Message: message, Cause: cause}
}

// NewInvalidArgumentError reports a missing or malformed tool argument.
func NewInvalidArgumentError(message, param string) *Error {
	return &Error{Type: ErrInvalidArgument, Message: message, Param: param}
}

// IsType reports whether err is (or wraps) a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// MessageOf returns a short human-readable message for err. *Error values
// yield their Message field without the type prefix.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
