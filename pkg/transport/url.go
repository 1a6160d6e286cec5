// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/stacklok/toolhost/pkg/transport/ssecommon"
	"github.com/stacklok/toolhost/pkg/transport/streamable"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

// GenerateMCPServerURL returns the URL clients connect to for an HTTP
// transport listening on addr, or an empty string for stdio and unknown
// transports.
func GenerateMCPServerURL(transportType types.TransportType, addr string) string {
	switch transportType {
	case types.TransportTypeSSE:
		return fmt.Sprintf("http://%s%s", addr, ssecommon.HTTPSSEEndpoint)
	case types.TransportTypeStreamableHTTP:
		return fmt.Sprintf("http://%s%s", addr, streamable.HTTPStreamableHTTPEndpoint)
	default:
		return ""
	}
}
