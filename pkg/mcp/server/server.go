// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server implements the MCP protocol surface of the host: the
// session handshake, request dispatch against the tool registry,
// cancellation and per-call timeouts. It is transport agnostic; transports
// feed raw JSON-RPC messages to the sessions it opens.
package server

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/toolhost/pkg/tools"
	"github.com/stacklok/toolhost/pkg/transport/types"
	"github.com/stacklok/toolhost/pkg/versions"
)

// DefaultToolTimeout bounds a single request when no timeout is configured.
const DefaultToolTimeout = 30 * time.Second

// SupportedProtocolVersions lists the MCP revisions the server speaks,
// newest first.
var SupportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// Config holds the configuration for the MCP server
type Config struct {
	// Name and Version are reported as serverInfo during initialize.
	Name    string
	Version string

	// Instructions is optional guidance returned from initialize.
	Instructions string

	// ToolTimeout bounds each request. Zero selects DefaultToolTimeout.
	ToolTimeout time.Duration
}

// methodHandler serves one request method. It runs on its own goroutine.
type methodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Server serves a tool registry over MCP.
type Server struct {
	config   Config
	registry *tools.Registry
	methods  map[string]methodHandler
}

// New creates a server for registry.
func New(registry *tools.Registry, config Config) *Server {
	if config.Name == "" {
		config.Name = "toolhost"
	}
	if config.Version == "" {
		config.Version = versions.GetVersionInfo().Version
	}
	if config.ToolTimeout <= 0 {
		config.ToolTimeout = DefaultToolTimeout
	}

	s := &Server{
		config:   config,
		registry: registry,
	}
	s.methods = map[string]methodHandler{
		string(mcp.MethodPing):          s.handlePing,
		string(mcp.MethodToolsList):     s.handleListTools,
		string(mcp.MethodToolsCall):     s.handleCallTool,
		string(mcp.MethodResourcesList): s.handleListResources,
		string(mcp.MethodResourcesRead): s.handleReadResource,
		string(mcp.MethodPromptsList):   s.handleListPrompts,
		string(mcp.MethodPromptsGet):    s.handleGetPrompt,
	}
	return s
}

// Registry returns the registry the server serves.
func (s *Server) Registry() *tools.Registry {
	return s.registry
}

// Open implements types.Handler.
func (s *Server) Open(conn types.Conn) types.Dispatcher {
	return s.NewSession(conn)
}

// negotiateVersion returns the requested protocol version when supported
// and the newest supported version otherwise.
func negotiateVersion(requested string) string {
	if slices.Contains(SupportedProtocolVersions, requested) {
		return requested
	}
	return SupportedProtocolVersions[0]
}
