// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhost/pkg/application"
	"github.com/stacklok/toolhost/pkg/apps/zenquotes"
	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/tools"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

const waitTimeout = 5 * time.Second

// recorder is a Conn that queues every message it is sent.
type recorder struct {
	ch chan *types.Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *types.Message, 256)}
}

func (r *recorder) Send(_ context.Context, msg *types.Message) error {
	r.ch <- msg
	return nil
}

// next returns the next message decoded into a generic map.
func (r *recorder) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case msg := <-r.ch:
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

// empty asserts that nothing arrives within d.
func (r *recorder) empty(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-r.ch:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(d):
	}
}

func request(id any, method string, params any) []byte {
	msg := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	data, _ := json.Marshal(msg)
	return data
}

func notification(method string, params any) []byte {
	msg := map[string]any{"jsonrpc": "2.0", "method": method}
	if params != nil {
		msg["params"] = params
	}
	data, _ := json.Marshal(msg)
	return data
}

func errorData(t *testing.T, resp map[string]any) (code int, kind string, message string, details map[string]any) {
	t.Helper()
	rpcErr, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected an error response, got %v", resp)
	data, _ := rpcErr["data"].(map[string]any)
	details, _ = data["details"].(map[string]any)
	kind, _ = data["kind"].(string)
	message, _ = rpcErr["message"].(string)
	return int(rpcErr["code"].(float64)), kind, message, details
}

// readySession returns a session that completed the handshake.
func readySession(t *testing.T, srv *Server) (*Session, *recorder) {
	t.Helper()
	rec := newRecorder()
	sess := srv.NewSession(rec)
	t.Cleanup(sess.Close)

	ctx := context.Background()
	sess.Handle(ctx, request(0, "initialize", map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
	}), nil)
	resp := rec.next(t)
	require.Nil(t, resp["error"])
	sess.Handle(ctx, notification(NotificationInitialized, nil), nil)
	require.Equal(t, StateReady, sess.State())
	return sess, rec
}

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func add(in addArgs) int { return in.A + in.B }

func TestHandshake(t *testing.T) {
	t.Parallel()

	srv := New(tools.NewRegistry(), Config{Name: "toolhost-test", Version: "1.2.3", Instructions: "be nice"})
	rec := newRecorder()
	sess := srv.NewSession(rec)
	defer sess.Close()
	ctx := context.Background()

	assert.Equal(t, StateAccepted, sess.State())

	// Requests other than initialize and ping are refused before initialize.
	sess.Handle(ctx, request(1, "tools/list", nil), nil)
	code, kind, _, _ := errorData(t, rec.next(t))
	assert.Equal(t, types.CodeInvalidRequest, code)
	assert.Equal(t, KindSessionNotInitialized, kind)

	sess.Handle(ctx, request(2, "ping", nil), nil)
	pong := rec.next(t)
	assert.Equal(t, float64(2), pong["id"])
	assert.Equal(t, map[string]any{}, pong["result"])

	sess.Handle(ctx, request(3, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "client", "version": "0.1"},
	}), nil)
	resp := rec.next(t)
	assert.Equal(t, float64(3), resp["id"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])
	assert.Equal(t, map[string]any{"name": "toolhost-test", "version": "1.2.3"}, result["serverInfo"])
	assert.Equal(t, "be nice", result["instructions"])
	assert.Contains(t, result["capabilities"], "tools")
	assert.Equal(t, StateNegotiating, sess.State())
	assert.Equal(t, "2025-03-26", sess.ProtocolVersion())

	// Requests pipelined before initialized are served.
	sess.Handle(ctx, request(4, "tools/list", nil), nil)
	listed := rec.next(t)
	assert.Equal(t, map[string]any{"tools": []any{}}, listed["result"])

	sess.Handle(ctx, notification(NotificationInitialized, nil), nil)
	assert.Equal(t, StateReady, sess.State())

	sess.Handle(ctx, request(5, "initialize", map[string]any{"protocolVersion": "2025-06-18"}), nil)
	code, _, _, _ = errorData(t, rec.next(t))
	assert.Equal(t, types.CodeInvalidRequest, code)

	sess.Close()
	assert.Equal(t, StateClosed, sess.State())
	sess.Handle(ctx, request(6, "ping", nil), nil)
	rec.empty(t, 50*time.Millisecond)

	select {
	case <-sess.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session did not finish")
	}
}

func TestNegotiateVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		requested string
		want      string
	}{
		{"2025-06-18", "2025-06-18"},
		{"2025-03-26", "2025-03-26"},
		{"2024-11-05", "2024-11-05"},
		{"2099-01-01", "2025-06-18"},
		{"garbage", "2025-06-18"},
	}
	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, negotiateVersion(tt.requested))
		})
	}
}

func TestInitialize_MissingVersion(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	sess := New(tools.NewRegistry(), Config{}).NewSession(rec)
	defer sess.Close()

	sess.Handle(context.Background(), request(1, "initialize", map[string]any{}), nil)
	code, kind, _, details := errorData(t, rec.next(t))
	assert.Equal(t, types.CodeInvalidParams, code)
	assert.Equal(t, string(hosterr.KindValidation), kind)
	assert.Equal(t, []any{"/protocolVersion"}, details["paths"])
	assert.Equal(t, StateAccepted, sess.State())
}

func TestMalformedMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     string
		wantCode int
	}{
		{name: "invalid json", data: `{"jsonrpc":`, wantCode: types.CodeParseError},
		{name: "wrong version", data: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, wantCode: types.CodeInvalidRequest},
		{name: "batch", data: `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, wantCode: types.CodeInvalidRequest},
		{name: "neither request nor response", data: `{"jsonrpc":"2.0"}`, wantCode: types.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sess, rec := readySession(t, New(tools.NewRegistry(), Config{}))
			sess.Handle(context.Background(), []byte(tt.data), nil)

			resp := rec.next(t)
			assert.Nil(t, resp["id"])
			assert.Contains(t, resp, "id")
			code, _, _, _ := errorData(t, resp)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, StateReady, sess.State(), "malformed input must not change state")
		})
	}
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()

	sess, rec := readySession(t, New(tools.NewRegistry(), Config{}))
	sess.Handle(context.Background(), request("abc", "sampling/createMessage", nil), nil)

	resp := rec.next(t)
	assert.Equal(t, "abc", resp["id"])
	code, kind, _, _ := errorData(t, resp)
	assert.Equal(t, types.CodeMethodNotFound, code)
	assert.Equal(t, KindMethodNotFound, kind)
}

func TestStaticTool(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"q":"Simplicity is the soul of efficiency.","a":"Austin Freeman"}]`))
	}))
	defer upstream.Close()

	app, err := zenquotes.New(context.Background(), application.Config{
		Slug:    zenquotes.Slug,
		Options: map[string]any{"base_url": upstream.URL},
	})
	require.NoError(t, err)
	reg := tools.NewRegistry()
	for _, fn := range app.ListTools() {
		_, err := reg.RegisterFunc(fn, app.Slug())
		require.NoError(t, err)
	}

	sess, rec := readySession(t, New(reg, Config{}))
	ctx := context.Background()

	sess.Handle(ctx, request(1, "tools/list", nil), nil)
	resp := rec.next(t)
	listed, err := json.Marshal(resp["result"])
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"tools":[{"name":"zenquotes__get_quote","inputSchema":{"type":"object","properties":{},"required":[]}}]}`,
		string(listed))

	sess.Handle(ctx, request(2, "tools/call", map[string]any{"name": "zenquotes__get_quote", "arguments": map[string]any{}}), nil)
	resp = rec.next(t)
	require.Nil(t, resp["error"])
	content := resp["result"].(map[string]any)["content"].([]any)
	require.Len(t, content, 1)
	item := content[0].(map[string]any)
	assert.Equal(t, "text", item["type"])
	assert.NotEmpty(t, item["text"])
	assert.Contains(t, item["text"], "Austin Freeman")
}

func TestCallTool_Results(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	_, err := reg.RegisterFunc(tools.Func{Name: "add", Fn: add}, "")
	require.NoError(t, err)
	object, err := tools.NewTool("object", "", nil, func(context.Context, map[string]any) (any, error) {
		return map[string]any{"status": "ok"}, nil
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(object))

	sess, rec := readySession(t, New(reg, Config{}))
	ctx := context.Background()

	sess.Handle(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add","arguments":{"a":40,"b":2}}}`), nil)
	result := rec.next(t)["result"].(map[string]any)
	assert.Equal(t, []any{map[string]any{"type": "text", "text": "42"}}, result["content"])
	assert.NotContains(t, result, "structuredContent")

	sess.Handle(ctx, request(2, "tools/call", map[string]any{"name": "object"}), nil)
	result = rec.next(t)["result"].(map[string]any)
	assert.Equal(t, map[string]any{"status": "ok"}, result["structuredContent"])
}

func TestCallTool_Errors(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	_, err := reg.RegisterFunc(tools.Func{Name: "add", Fn: add}, "")
	require.NoError(t, err)
	missingKey, err := tools.NewTool("search", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, hosterr.NewNotAuthorizedError("tavily", "TAVILY_API_KEY", "", nil)
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(missingKey))
	failing, err := tools.NewTool("explode", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, fmt.Errorf("disk on fire")
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(failing))
	upstream, err := tools.NewTool("upstream", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, hosterr.NewUpstreamHTTPError("GET", "https://api.example.com/v1", 502, []byte("bad gateway"))
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(upstream))

	tests := []struct {
		name        string
		params      map[string]any
		wantCode    int
		wantKind    hosterr.Kind
		wantMessage string
		check       func(t *testing.T, details map[string]any)
	}{
		{
			name:     "schema rejection",
			params:   map[string]any{"name": "add", "arguments": map[string]any{"a": "hello", "b": 2}},
			wantCode: types.CodeInvalidParams,
			wantKind: hosterr.KindValidation,
			check: func(t *testing.T, details map[string]any) {
				t.Helper()
				assert.Equal(t, []any{"/a"}, details["paths"])
			},
		},
		{
			name:     "unknown tool",
			params:   map[string]any{"name": "nope"},
			wantCode: types.CodeInvalidParams,
			wantKind: hosterr.KindToolNotFound,
		},
		{
			name:     "missing name",
			params:   map[string]any{"arguments": map[string]any{}},
			wantCode: types.CodeInvalidParams,
			wantKind: hosterr.KindValidation,
		},
		{
			name:        "missing credential",
			params:      map[string]any{"name": "search", "arguments": map[string]any{"query": "mcp"}},
			wantCode:    CodeNotAuthorized,
			wantKind:    hosterr.KindNotAuthorized,
			wantMessage: "TAVILY_API_KEY",
		},
		{
			name:     "unexpected failure",
			params:   map[string]any{"name": "explode"},
			wantCode: CodeToolExecution,
			wantKind: hosterr.KindToolExecution,
			check: func(t *testing.T, details map[string]any) {
				t.Helper()
				assert.Equal(t, "disk on fire", details["message"])
			},
		},
		{
			name:     "upstream status",
			params:   map[string]any{"name": "upstream"},
			wantCode: CodeUpstreamHTTP,
			wantKind: hosterr.KindUpstreamHTTP,
			check: func(t *testing.T, details map[string]any) {
				t.Helper()
				assert.Equal(t, float64(502), details["status"])
				assert.Equal(t, "bad gateway", details["body"])
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sess, rec := readySession(t, New(reg, Config{}))
			sess.Handle(context.Background(), request(9, "tools/call", tt.params), nil)

			resp := rec.next(t)
			assert.Equal(t, float64(9), resp["id"])
			assert.NotContains(t, resp, "result")
			code, kind, message, details := errorData(t, resp)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, string(tt.wantKind), kind)
			if tt.wantMessage != "" {
				assert.Contains(t, message, tt.wantMessage)
			}
			if tt.check != nil {
				tt.check(t, details)
			}
		})
	}
}

func TestCallTool_Cancellation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	aborted := make(chan struct{})
	var startOnce sync.Once
	upstream := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		startOnce.Do(func() { close(started) })
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(100 * time.Second):
		}
	}))
	defer upstream.Close()

	reg := tools.NewRegistry()
	slow, err := tools.NewTool("slow", "", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		tools.ReportProgress(ctx, 1, 2, "calling upstream")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := upstream.Client().Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
		tools.ReportProgress(ctx, 2, 2, "after upstream")
		return "done", err
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(slow))

	sess, rec := readySession(t, New(reg, Config{}))
	ctx := context.Background()

	sess.Handle(ctx, request(7, "tools/call", map[string]any{
		"name":  "slow",
		"_meta": map[string]any{"progressToken": "tok"},
	}), nil)

	progress := rec.next(t)
	assert.Equal(t, NotificationProgress, progress["method"])
	assert.Equal(t, "tok", progress["params"].(map[string]any)["progressToken"])

	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("upstream call never started")
	}
	time.Sleep(50 * time.Millisecond)
	sess.Handle(ctx, notification(NotificationCancelled, map[string]any{"requestId": 7, "reason": "user abort"}), nil)

	resp := rec.next(t)
	assert.Equal(t, float64(7), resp["id"])
	code, kind, _, _ := errorData(t, resp)
	assert.Equal(t, CodeRequestCancelled, code)
	assert.Equal(t, string(hosterr.KindRequestCancelled), kind)

	select {
	case <-aborted:
	case <-time.After(waitTimeout):
		t.Fatal("outbound request was not aborted")
	}
	rec.empty(t, 100*time.Millisecond)
}

func TestCallTool_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	reg := tools.NewRegistry()
	stuck, err := tools.NewTool("stuck", "", nil, func(context.Context, map[string]any) (any, error) {
		<-release
		return "late", nil
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(stuck))

	sess, rec := readySession(t, New(reg, Config{ToolTimeout: 50 * time.Millisecond}))

	start := time.Now()
	sess.Handle(context.Background(), request(1, "tools/call", map[string]any{"name": "stuck"}), nil)
	resp := rec.next(t)
	code, kind, _, details := errorData(t, resp)
	assert.Equal(t, CodeRequestTimeout, code)
	assert.Equal(t, string(hosterr.KindRequestTimeout), kind)
	assert.Equal(t, "50ms", details["timeout"])
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCallTool_Concurrent(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	_, err := reg.RegisterFunc(tools.Func{Name: "add", Fn: add}, "")
	require.NoError(t, err)
	sess, rec := readySession(t, New(reg, Config{}))

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Handle(context.Background(), request(i, "tools/call", map[string]any{
				"name": "add", "arguments": map[string]any{"a": i, "b": 1},
			}), nil)
		}()
	}
	wg.Wait()

	seen := map[int]string{}
	for range n {
		resp := rec.next(t)
		id := int(resp["id"].(float64))
		content := resp["result"].(map[string]any)["content"].([]any)
		seen[id] = content[0].(map[string]any)["text"].(string)
	}
	for i := range n {
		assert.Equal(t, fmt.Sprint(i+1), seen[i])
	}
}

func TestClose_CancelsInflight(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	reg := tools.NewRegistry()
	wait, err := tools.NewTool("wait", "", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(wait))

	sess, rec := readySession(t, New(reg, Config{}))
	sess.Handle(context.Background(), request(1, "tools/call", map[string]any{"name": "wait"}), nil)
	<-entered

	sess.Close()
	_, kind, message, _ := errorData(t, rec.next(t))
	assert.Equal(t, string(hosterr.KindRequestCancelled), kind)
	assert.Equal(t, "session closed", message)

	select {
	case <-sess.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session did not finish")
	}
}

func TestResourcesAndPrompts(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	require.NoError(t, reg.AddResource(&tools.Resource{
		URI:      "zenquotes://today",
		Name:     "today",
		MIMEType: "text/plain",
		Read:     func(context.Context) (string, error) { return "quote of the day", nil },
	}))
	require.NoError(t, reg.AddPrompt(&tools.Prompt{
		Name:        "greet",
		Description: "Greets someone",
		Arguments:   []tools.PromptArgument{{Name: "who", Required: true}},
		Render: func(_ context.Context, args map[string]string) ([]tools.PromptMessage, error) {
			return []tools.PromptMessage{{Role: "user", Text: "Say hello to " + args["who"]}}, nil
		},
	}))

	sess, rec := readySession(t, New(reg, Config{}))
	ctx := context.Background()

	sess.Handle(ctx, request(1, "resources/list", nil), nil)
	resources := rec.next(t)["result"].(map[string]any)["resources"].([]any)
	require.Len(t, resources, 1)
	assert.Equal(t, "zenquotes://today", resources[0].(map[string]any)["uri"])

	sess.Handle(ctx, request(2, "resources/read", map[string]any{"uri": "zenquotes://today"}), nil)
	contents := rec.next(t)["result"].(map[string]any)["contents"].([]any)
	require.Len(t, contents, 1)
	assert.Equal(t, "quote of the day", contents[0].(map[string]any)["text"])

	sess.Handle(ctx, request(3, "resources/read", map[string]any{"uri": "zenquotes://missing"}), nil)
	_, kind, _, _ := errorData(t, rec.next(t))
	assert.Equal(t, string(hosterr.KindToolNotFound), kind)

	sess.Handle(ctx, request(4, "prompts/list", nil), nil)
	prompts := rec.next(t)["result"].(map[string]any)["prompts"].([]any)
	require.Len(t, prompts, 1)
	assert.Equal(t, "greet", prompts[0].(map[string]any)["name"])

	sess.Handle(ctx, request(5, "prompts/get", map[string]any{"name": "greet", "arguments": map[string]any{"who": "Ada"}}), nil)
	messages := rec.next(t)["result"].(map[string]any)["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "Say hello to Ada", msg["content"].(map[string]any)["text"])

	sess.Handle(ctx, request(6, "prompts/get", map[string]any{"name": "greet"}), nil)
	code, kind, _, details := errorData(t, rec.next(t))
	assert.Equal(t, types.CodeInvalidParams, code)
	assert.Equal(t, string(hosterr.KindValidation), kind)
	assert.Equal(t, []any{"/who"}, details["paths"])
}

func TestCodeForKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind hosterr.Kind
		want int
	}{
		{hosterr.KindValidation, -32602},
		{hosterr.KindInvalidToolSignature, -32602},
		{hosterr.KindToolNotFound, -32602},
		{hosterr.KindNotAuthorized, -32001},
		{hosterr.KindRequestTimeout, -32002},
		{hosterr.KindRequestCancelled, -32800},
		{hosterr.KindUpstreamHTTP, -32003},
		{hosterr.KindUpstreamTransport, -32004},
		{hosterr.KindToolReturnNotSerializable, -32005},
		{hosterr.KindToolExecution, -32000},
		{hosterr.KindStoreUnavailable, -32006},
		{hosterr.KindKeyNotFound, -32006},
		{hosterr.KindPermissionDenied, -32006},
		{hosterr.KindConfiguration, -32603},
		{hosterr.KindToolNameConflict, -32603},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CodeForKind(tt.kind))
		})
	}
}

func TestToRPCError_ContextErrors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CodeRequestCancelled, toRPCError(context.Canceled).Code)
	assert.Equal(t, CodeRequestTimeout, toRPCError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)).Code)

	internal := toRPCError(fmt.Errorf("password=hunter2"))
	assert.Equal(t, types.CodeInternalError, internal.Code)
	assert.NotContains(t, internal.Message, "hunter2")
}
