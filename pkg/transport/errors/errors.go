// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides error types and constants for the transport package.
package errors

import (
	"errors"
	"fmt"
)

// Common transport errors
var (
	ErrUnsupportedTransport = errors.New("unsupported transport type")
	ErrTransportNotStarted  = errors.New("transport not started")
	ErrTransportStarted     = errors.New("transport already started")
	ErrTransportClosed      = errors.New("transport closed")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrHandlerNotSet        = errors.New("session handler not set")
)

// TransportError represents an error related to transport operations
type TransportError struct {
	// Err is the underlying error
	Err error
	// SessionID is the client session the error belongs to, if any
	SessionID string
	// Message is an optional error message
	Message string
}

// Error returns the error message
func (e *TransportError) Error() string {
	if e.Message != "" {
		if e.SessionID != "" {
			return fmt.Sprintf("%s: %s (session: %s)", e.Err, e.Message, e.SessionID)
		}
		return fmt.Sprintf("%s: %s", e.Err, e.Message)
	}

	if e.SessionID != "" {
		return fmt.Sprintf("%s (session: %s)", e.Err, e.SessionID)
	}

	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error
func NewTransportError(err error, sessionID, message string) *TransportError {
	return &TransportError{
		Err:       err,
		SessionID: sessionID,
		Message:   message,
	}
}
