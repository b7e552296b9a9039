// Package errors provides the structured error taxonomy for the realtime
// service: authentication failures at handshake time, malformed inbound
// frames, delivery failures, and external lookup failures.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeAuthentication indicates a rejected handshake (HTTP 401). Terminal:
	// the connection is never created.
	TypeAuthentication ErrorType = "authentication"
	// TypeMalformedMessage indicates an unparseable inbound frame. Recoverable:
	// the connection stays open and the sender gets an error notification.
	TypeMalformedMessage ErrorType = "malformed_message"
	// TypeDelivery indicates a failed or impossible send. Non-fatal, logged and dropped.
	TypeDelivery ErrorType = "delivery"
	// TypeLookup indicates an external directory or resolver failure. Aborts
	// only the broadcast call that triggered it.
	TypeLookup ErrorType = "lookup"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code used when the error surfaces on the
// upgrade request. Only authentication errors reach clients over HTTP; the
// remaining types are isolated per-message or per-broadcast-call.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeAuthentication:
		return http.StatusUnauthorized
	case TypeMalformedMessage:
		return http.StatusBadRequest
	case TypeLookup:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AuthenticationError creates a handshake rejection error (HTTP 401).
func AuthenticationError(message string) *Error {
	return &Error{
		Type:    TypeAuthentication,
		Message: message,
		Context: make(map[string]any),
	}
}

// MalformedMessageError creates an inbound parse error.
func MalformedMessageError(message string, cause error) *Error {
	return &Error{
		Type:    TypeMalformedMessage,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// DeliveryFailure creates a non-fatal delivery error.
func DeliveryFailure(message string) *Error {
	return &Error{
		Type:    TypeDelivery,
		Message: message,
		Context: make(map[string]any),
	}
}

// LookupFailure creates an external resolver error.
func LookupFailure(message string, cause error) *Error {
	return &Error{
		Type:    TypeLookup,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent on rejected upgrades.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an authentication error so unexpected handshake
// failures still fail closed.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return &Error{
		Type:    TypeAuthentication,
		Message: "handshake failed",
		Cause:   err,
		Context: make(map[string]any),
	}
}
