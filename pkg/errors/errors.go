// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy shared by every toolhost
// component. Errors are tagged with a Kind; the MCP frontend maps each
// kind onto a JSON-RPC error code and reports the kind to clients in
// the error's data member.
package errors

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Kind names a class of failure.
type Kind string

// Error kinds
const (
	// KindConfiguration is returned for malformed or incomplete configuration.
	KindConfiguration Kind = "ConfigurationError"

	// KindApplicationLoad is returned when a single application fails to load.
	KindApplicationLoad Kind = "ApplicationLoadError"

	// KindStoreUnavailable is returned when a store backend cannot be reached.
	KindStoreUnavailable Kind = "StoreUnavailable"

	// KindKeyNotFound is returned when a store has no value for a key.
	KindKeyNotFound Kind = "KeyNotFound"

	// KindPermissionDenied is returned when a store refuses an operation.
	KindPermissionDenied Kind = "PermissionDenied"

	// KindNotAuthorized is returned when an integration cannot produce credentials.
	KindNotAuthorized Kind = "NotAuthorized"

	// KindInvalidToolSignature is returned when a function cannot become a tool.
	KindInvalidToolSignature Kind = "InvalidToolSignature"

	// KindToolNameConflict is returned when a tool name is already registered.
	KindToolNameConflict Kind = "ToolNameConflict"

	// KindToolNotFound is returned when a tool name is not registered.
	KindToolNotFound Kind = "ToolNotFound"

	// KindToolReturnNotSerializable is returned when a tool result cannot be JSON encoded.
	KindToolReturnNotSerializable Kind = "ToolReturnNotSerializable"

	// KindValidation is returned when tool arguments violate the input schema.
	KindValidation Kind = "ValidationError"

	// KindUpstreamHTTP is returned when a third-party service answers non-2xx.
	KindUpstreamHTTP Kind = "UpstreamHttpError"

	// KindUpstreamTransport is returned for network, DNS and TLS failures.
	KindUpstreamTransport Kind = "UpstreamTransportError"

	// KindRequestTimeout is returned when a request exceeds its deadline.
	KindRequestTimeout Kind = "RequestTimeout"

	// KindRequestCancelled is returned when the client cancels a request.
	KindRequestCancelled Kind = "RequestCancelled"

	// KindToolExecution wraps any failure outside the taxonomy.
	KindToolExecution Kind = "ToolExecutionError"
)

// MaxBodyExcerpt bounds the upstream response body carried in errors.
const MaxBodyExcerpt = 512

// Error is a tagged error.
type Error struct {
	// Kind classifies the failure
	Kind Kind

	// Message is the human readable message. It never contains credential values.
	Message string

	// Details is machine readable context reported to clients
	Details any

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, &Error{Kind: KindToolNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// WithDetails returns e with its details replaced.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// New creates a new error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Newf creates a new error of the given kind with a formatted message.
func Newf(kind Kind, cause error, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...), cause)
}

// NewConfigurationError creates a configuration error listing the offending paths.
func NewConfigurationError(message string, paths []string, cause error) *Error {
	e := New(KindConfiguration, message, cause)
	if len(paths) > 0 {
		e.Details = map[string]any{"paths": paths}
	}
	return e
}

// NewApplicationLoadError creates an application load error for slug.
func NewApplicationLoadError(slug string, cause error) *Error {
	return Newf(KindApplicationLoad, cause, "failed to load application %q", slug).
		WithDetails(map[string]any{"application": slug})
}

// NewKeyNotFoundError creates a key not found error. Only the key name is reported.
func NewKeyNotFoundError(key string) *Error {
	return Newf(KindKeyNotFound, nil, "key %q not found", key).
		WithDetails(map[string]any{"key": key})
}

// NewStoreUnavailableError creates a store unavailable error.
func NewStoreUnavailableError(store string, cause error) *Error {
	return Newf(KindStoreUnavailable, cause, "%s store unavailable", store)
}

// NewPermissionDeniedError creates a permission denied error.
func NewPermissionDeniedError(message string, cause error) *Error {
	return New(KindPermissionDenied, message, cause)
}

// NewNotAuthorizedError creates a not authorized error naming the missing
// credential key. authURL may be empty.
func NewNotAuthorizedError(integration, key, authURL string, cause error) *Error {
	details := map[string]any{"integration": integration, "key": key}
	msg := fmt.Sprintf("integration %q is not authorized: no credentials found under key %s", integration, key)
	if authURL != "" {
		details["authorization_url"] = authURL
		msg += "; authorize at " + authURL
	}
	return New(KindNotAuthorized, msg, cause).WithDetails(details)
}

// NewValidationError creates a validation error carrying the offending
// JSON pointer paths and per-path messages.
func NewValidationError(paths []string, messages []string) *Error {
	msg := "invalid arguments"
	if len(messages) > 0 {
		msg = "invalid arguments: " + messages[0]
		if len(messages) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(messages)-1)
		}
	}
	if paths == nil {
		paths = []string{}
	}
	return New(KindValidation, msg, nil).WithDetails(map[string]any{
		"paths":  paths,
		"errors": messages,
	})
}

// NewUpstreamHTTPError creates an upstream error with the status code and a
// truncated body excerpt.
func NewUpstreamHTTPError(method, url string, status int, body []byte) *Error {
	excerpt := Excerpt(body)
	return Newf(KindUpstreamHTTP, nil, "%s %s returned HTTP %d", method, url, status).
		WithDetails(map[string]any{"status": status, "body": excerpt})
}

// NewUpstreamTransportError creates an upstream transport error.
func NewUpstreamTransportError(method, url string, cause error) *Error {
	return Newf(KindUpstreamTransport, cause, "%s %s failed", method, url)
}

// NewToolExecutionError wraps an error raised by a tool body.
func NewToolExecutionError(tool string, cause error) *Error {
	msg := "tool execution failed"
	details := map[string]any{"tool": tool}
	if cause != nil {
		details["message"] = cause.Error()
	}
	return Newf(KindToolExecution, cause, "%s: %s", msg, tool).WithDetails(details)
}

// Excerpt truncates b to MaxBodyExcerpt bytes on a rune boundary.
func Excerpt(b []byte) string {
	if len(b) <= MaxBodyExcerpt {
		return string(b)
	}
	cut := b[:MaxBodyExcerpt]
	for len(cut) > 0 && !utf8.Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + "..."
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindToolExecution when err carries none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindToolExecution
}

// HasKind reports whether any *Error in err's chain has the given kind.
func HasKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// IsKeyNotFound checks if the error is a key not found error
func IsKeyNotFound(err error) bool {
	return HasKind(err, KindKeyNotFound)
}

// IsNotAuthorized checks if the error is a not authorized error
func IsNotAuthorized(err error) bool {
	return HasKind(err, KindNotAuthorized)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return HasKind(err, KindValidation)
}

// IsToolNotFound checks if the error is a tool not found error
func IsToolNotFound(err error) bool {
	return HasKind(err, KindToolNotFound)
}

// IsToolNameConflict checks if the error is a tool name conflict error
func IsToolNameConflict(err error) bool {
	return HasKind(err, KindToolNameConflict)
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return HasKind(err, KindConfiguration)
}

// IsPermissionDenied checks if the error is a permission denied error
func IsPermissionDenied(err error) bool {
	return HasKind(err, KindPermissionDenied)
}
