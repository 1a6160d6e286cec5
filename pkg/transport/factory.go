// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the transports that connect MCP clients to
// the host's protocol server.
package transport

import (
	"github.com/stacklok/toolhost/pkg/transport/errors"
	"github.com/stacklok/toolhost/pkg/transport/httpsse"
	"github.com/stacklok/toolhost/pkg/transport/streamable"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

// Factory creates transports
type Factory struct{}

// NewFactory creates a new transport factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create creates a transport based on the provided configuration
func (*Factory) Create(config types.Config) (types.Transport, error) {
	if config.Handler == nil {
		return nil, errors.ErrHandlerNotSet
	}
	switch config.Type {
	case types.TransportTypeStdio:
		return NewStdioTransport(config), nil
	case types.TransportTypeSSE:
		return httpsse.New(config), nil
	case types.TransportTypeStreamableHTTP:
		return streamable.New(config), nil
	default:
		return nil, errors.ErrUnsupportedTransport
	}
}
