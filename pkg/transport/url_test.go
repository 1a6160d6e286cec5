// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/toolhost/pkg/transport/types"
)

func TestGenerateMCPServerURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		transportType types.TransportType
		addr          string
		expected      string
	}{
		{name: "SSE transport", transportType: types.TransportTypeSSE, addr: "localhost:12345", expected: "http://localhost:12345/sse"},
		{name: "Streamable HTTP transport", transportType: types.TransportTypeStreamableHTTP, addr: "127.0.0.1:8080", expected: "http://127.0.0.1:8080/mcp"},
		{name: "stdio has no URL", transportType: types.TransportTypeStdio, addr: "", expected: ""},
		{name: "Unsupported transport type", transportType: "unsupported", addr: "localhost:1", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, GenerateMCPServerURL(tt.transportType, tt.addr))
		})
	}
}
