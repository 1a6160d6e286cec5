// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ssecommon provides the Server-Sent Events framing shared by the
// SSE and streamable HTTP transports.
package ssecommon

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// HTTPSSEEndpoint is the endpoint for SSE connections
	HTTPSSEEndpoint = "/sse"
	// HTTPMessagesEndpoint is the endpoint for JSON-RPC messages
	HTTPMessagesEndpoint = "/messages"
	// SessionIDParam is the query parameter carrying the SSE session id.
	SessionIDParam = "session_id"

	// EventEndpoint announces the POST endpoint of an SSE session.
	EventEndpoint = "endpoint"
	// EventMessage carries one JSON-RPC message.
	EventMessage = "message"

	// DefaultKeepAliveInterval is the interval between keep-alive comments.
	DefaultKeepAliveInterval = 30 * time.Second
)

// SSEMessage represents a Server-Sent Event
type SSEMessage struct {
	EventType string
	Data      string
	CreatedAt time.Time
}

// NewSSEMessage creates a new SSE message
func NewSSEMessage(eventType, data string) *SSEMessage {
	return &SSEMessage{
		EventType: eventType,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// ToSSEString converts the message to an SSE-formatted string. Every line
// of Data becomes its own data field.
func (m *SSEMessage) ToSSEString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "event: %s\n", m.EventType)
	for _, line := range strings.Split(m.Data, "\n") {
		fmt.Fprintf(&sb, "data: %s\n", line)
	}
	sb.WriteString("\n")
	return sb.String()
}

// WriteKeepAlive writes an SSE comment that keeps idle connections open.
func WriteKeepAlive(w io.Writer) error {
	_, err := io.WriteString(w, ": keep-alive\n\n")
	return err
}
