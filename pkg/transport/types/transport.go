// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package types provides common types and interfaces for the transport package
// used in communication between MCP clients and the host's protocol server.
package types

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stacklok/toolhost/pkg/transport/errors"
)

// Middleware is a function that wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// NamedMiddleware pairs a middleware with a name used in logs.
type NamedMiddleware struct {
	Name     string
	Function Middleware
}

// Transport defines the interface for MCP transport implementations.
// A transport accepts client connections and feeds their messages to the
// session Handler it was created with.
type Transport interface {
	// Mode returns the transport mode.
	Mode() TransportType

	// Addr returns the address the transport listens on, or an empty
	// string for stdio.
	Addr() string

	// Start begins accepting clients. It returns once the transport is
	// serving.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the transport and closes every session.
	Stop(ctx context.Context) error

	// Done is closed when the transport stops serving, either because
	// Stop was called or because its input ended.
	Done() <-chan struct{}
}

// Conn delivers server-to-client messages. Implementations must be safe
// for concurrent use and must preserve the order of Send calls.
type Conn interface {
	Send(ctx context.Context, msg *Message) error
}

// ConnFunc adapts a function to the Conn interface.
type ConnFunc func(ctx context.Context, msg *Message) error

// Send calls f.
func (f ConnFunc) Send(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Dispatcher processes the inbound messages of one client session.
type Dispatcher interface {
	// Handle processes one raw JSON-RPC message. Responses and progress
	// notifications for a request carried by data are sent to out;
	// requests may complete after Handle returns.
	Handle(ctx context.Context, data []byte, out Conn)

	// Close cancels in-flight requests and ends the session.
	Close()

	// Done is closed once the session has ended.
	Done() <-chan struct{}
}

// Handler opens a Dispatcher for each new client session. conn receives
// messages that do not belong to a specific request.
type Handler interface {
	Open(conn Conn) Dispatcher
}

// TransportType represents the type of transport to use.
//
//nolint:revive // Intentionally named TransportType despite package name
type TransportType string

const (
	// TransportTypeStdio represents the stdio transport.
	TransportTypeStdio TransportType = "stdio"

	// TransportTypeSSE represents the SSE transport.
	TransportTypeSSE TransportType = "sse"

	// TransportTypeStreamableHTTP represents the streamable HTTP transport.
	TransportTypeStreamableHTTP TransportType = "streamable-http"
)

// String returns the string representation of the transport type.
func (t TransportType) String() string {
	return string(t)
}

// ParseTransportType parses a string into a transport type.
func ParseTransportType(s string) (TransportType, error) {
	switch s {
	case "stdio", "STDIO":
		return TransportTypeStdio, nil
	case "sse", "SSE":
		return TransportTypeSSE, nil
	case "streamable-http", "STREAMABLE-HTTP":
		return TransportTypeStreamableHTTP, nil
	default:
		return "", errors.ErrUnsupportedTransport
	}
}

// Config contains configuration options for a transport.
type Config struct {
	// Type is the type of transport to use.
	Type TransportType

	// Host is the host to use for network transports.
	Host string

	// Port is the port to use for network transports. Zero picks a free
	// port.
	Port int

	// Handler opens protocol sessions for connected clients.
	Handler Handler

	// Middlewares is a list of middleware functions to apply to the
	// protocol endpoints of HTTP transports. The first middleware is the
	// outermost wrapper.
	Middlewares []NamedMiddleware

	// PrometheusHandler is an optional HTTP handler for Prometheus metrics endpoint.
	// If provided, it will be exposed at /metrics on the transport's HTTP server.
	PrometheusHandler http.Handler

	// KeepAliveInterval is the interval between SSE keep-alive comments.
	KeepAliveInterval time.Duration

	// SessionTTL is how long an idle HTTP session is kept.
	SessionTTL time.Duration

	// Stdin and Stdout replace the process streams for the stdio transport.
	Stdin  io.Reader
	Stdout io.Writer
}
