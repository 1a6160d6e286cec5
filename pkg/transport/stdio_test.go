// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhost/pkg/mcp/server"
	"github.com/stacklok/toolhost/pkg/tools"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

const initializeRequest = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type stdioHarness struct {
	tr     *StdioTransport
	input  *io.PipeWriter
	output *bufio.Reader
}

func newStdioHarness(t *testing.T) *stdioHarness {
	t.Helper()
	reg := tools.NewRegistry()
	_, err := reg.RegisterFunc(tools.Func{Name: "add", Fn: func(in addArgs) int { return in.A + in.B }}, "")
	require.NoError(t, err)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	tr := NewStdioTransport(types.Config{
		Type:    types.TransportTypeStdio,
		Handler: server.New(reg, server.Config{}),
		Stdin:   inR,
		Stdout:  outW,
	})
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() {
		_ = inW.Close()
		_ = outR.Close()
	})
	return &stdioHarness{tr: tr, input: inW, output: bufio.NewReader(outR)}
}

func (h *stdioHarness) write(t *testing.T, s string) {
	t.Helper()
	_, err := io.WriteString(h.input, s)
	require.NoError(t, err)
}

func (h *stdioHarness) readLine(t *testing.T) map[string]any {
	t.Helper()
	line, err := h.output.ReadString('\n')
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &msg))
	return msg
}

func (h *stdioHarness) readFramed(t *testing.T) map[string]any {
	t.Helper()
	header, err := h.output.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(header, "Content-Length: "), header)
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "Content-Length: ")))
	require.NoError(t, err)
	blank, err := h.output.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "\r\n", blank)

	body := make([]byte, n)
	_, err = io.ReadFull(h.output, body)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func TestStdio_NewlineFraming(t *testing.T) {
	t.Parallel()

	h := newStdioHarness(t)
	assert.Equal(t, types.TransportTypeStdio, h.tr.Mode())
	assert.Empty(t, h.tr.Addr())

	h.write(t, initializeRequest+"\n")
	resp := h.readLine(t)
	assert.Equal(t, float64(1), resp["id"])

	h.write(t, "\n"+`{"jsonrpc":"2.0","method":"notifications/initialized"}`+"\n")
	h.write(t, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"add","arguments":{"a":1,"b":2}}}`+"\n")
	resp = h.readLine(t)
	assert.Equal(t, float64(2), resp["id"])
	content := resp["result"].(map[string]any)["content"].([]any)
	assert.Equal(t, "3", content[0].(map[string]any)["text"])

	h.write(t, "not json\n")
	resp = h.readLine(t)
	assert.Equal(t, float64(-32700), resp["error"].(map[string]any)["code"])
}

func TestStdio_ContentLengthFraming(t *testing.T) {
	t.Parallel()

	h := newStdioHarness(t)
	h.write(t, fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(initializeRequest), initializeRequest))
	resp := h.readFramed(t)
	assert.Equal(t, float64(1), resp["id"])

	ping := `{"jsonrpc":"2.0","id":"p","method":"ping"}`
	h.write(t, fmt.Sprintf("content-length: %d\r\nContent-Type: application/json\r\n\r\n%s", len(ping), ping))
	resp = h.readFramed(t)
	assert.Equal(t, "p", resp["id"])
}

func TestStdio_EOFEndsSession(t *testing.T) {
	t.Parallel()

	h := newStdioHarness(t)
	require.NoError(t, h.input.Close())

	select {
	case <-h.tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not finish after EOF")
	}
	assert.NoError(t, h.tr.Stop(context.Background()))
}

func TestStdio_MixedFramingKeepsFirst(t *testing.T) {
	t.Parallel()

	h := newStdioHarness(t)
	h.write(t, initializeRequest+"\n")
	resp := h.readLine(t)
	assert.Equal(t, float64(1), resp["id"])

	ping := `{"jsonrpc":"2.0","id":"p","method":"ping"}`
	h.write(t, fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(ping), ping))
	resp = h.readLine(t)
	assert.Equal(t, "p", resp["id"])
}

func TestStdio_BadContentLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
	}{
		{"not a number", "Content-Length: banana\r\n\r\n"},
		{"negative", "Content-Length: -4\r\n\r\n"},
		{"bad repeat after extra header", "Content-Length: 2\r\nContent-Length: x\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newStdioHarness(t)
			h.write(t, fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(initializeRequest), initializeRequest))
			resp := h.readFramed(t)
			assert.Equal(t, float64(1), resp["id"])

			h.write(t, tt.header)
			resp = h.readFramed(t)
			require.Contains(t, resp, "error")
			assert.Equal(t, float64(-32700), resp["error"].(map[string]any)["code"])
			assert.Nil(t, resp["id"])

			ping := `{"jsonrpc":"2.0","id":"p","method":"ping"}`
			h.write(t, fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(ping), ping))
			resp = h.readFramed(t)
			assert.Equal(t, "p", resp["id"])

			select {
			case <-h.tr.Done():
				t.Fatal("transport finished after a malformed header")
			default:
			}
		})
	}
}

func TestStdio_StartStop(t *testing.T) {
	t.Parallel()

	tr := NewStdioTransport(types.Config{Stdin: strings.NewReader("")})
	assert.Error(t, tr.Start(context.Background()), "no handler")
	assert.Error(t, tr.Stop(context.Background()), "not started")
}

func TestFactory_Create(t *testing.T) {
	t.Parallel()

	handler := server.New(tools.NewRegistry(), server.Config{})
	tests := []struct {
		transport types.TransportType
		wantErr   bool
	}{
		{types.TransportTypeStdio, false},
		{types.TransportTypeSSE, false},
		{types.TransportTypeStreamableHTTP, false},
		{"websocket", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.transport), func(t *testing.T) {
			t.Parallel()
			tr, err := NewFactory().Create(types.Config{Type: tt.transport, Handler: handler})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.transport, tr.Mode())
		})
	}

	_, err := NewFactory().Create(types.Config{Type: types.TransportTypeStdio})
	assert.Error(t, err)
}
