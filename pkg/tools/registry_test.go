// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func add(in addArgs) int { return in.A + in.B }

func listAll(context.Context) ([]string, error) { return []string{"one"}, nil }

func staticTool(t *testing.T, name string, value any) *Tool {
	t.Helper()
	tool, err := NewTool(name, "", nil, func(context.Context, map[string]any) (any, error) {
		return value, nil
	})
	require.NoError(t, err)
	return tool
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(staticTool(t, "first", 1)))
	require.NoError(t, r.Register(staticTool(t, "second", 2)))

	got, err := r.Get("second")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, []string{"first", "second"}, r.Names())
	assert.Equal(t, 2, r.Len())

	_, err = r.Get("missing")
	assert.True(t, hosterr.IsToolNotFound(err))
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(staticTool(t, "dup", 1)))
	err := r.Register(staticTool(t, "dup", 2))
	assert.True(t, hosterr.IsToolNameConflict(err))

	res, err := r.Call(context.Background(), "dup", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)
}

func TestRegistry_Unregister(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(staticTool(t, "a", 1)))
	require.NoError(t, r.Register(staticTool(t, "b", 2)))
	require.NoError(t, r.Register(staticTool(t, "c", 3)))

	require.NoError(t, r.Unregister("b"))
	assert.Equal(t, []string{"a", "c"}, r.Names())

	_, err := r.Call(context.Background(), "b", nil)
	assert.True(t, hosterr.IsToolNotFound(err))
	assert.True(t, hosterr.IsToolNotFound(r.Unregister("b")))

	require.NoError(t, r.Register(staticTool(t, "b", 4)))
	assert.Equal(t, []string{"a", "c", "b"}, r.Names())
	res, err := r.Call(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Value)
}

func TestRegistry_NamespaceCollision(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.RegisterFunc(Func{Name: "list", Fn: listAll}, "github")
	require.NoError(t, err)
	_, err = r.RegisterFunc(Func{Name: "list", Fn: listAll}, "jira")
	require.NoError(t, err)

	assert.Equal(t, []string{"github__list", "jira__list"}, r.Names())

	_, err = r.RegisterFunc(Func{Name: "github__list", Fn: listAll}, "")
	require.Error(t, err)
	assert.True(t, hosterr.IsToolNameConflict(err))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ConcurrentRegistrationSingleWinner(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	const workers = 32

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tool, err := NewTool("contended", "", nil, func(context.Context, map[string]any) (any, error) {
				return i, nil
			})
			if err != nil {
				return
			}
			if r.Register(tool) == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, []string{"contended"}, r.Names())
}

func TestRegistry_ListDuringRegistration(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	pending := make([]*Tool, 0, 200)
	for i := range 200 {
		pending = append(pending, staticTool(t, fmt.Sprintf("tool_%03d", i), i))
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, tool := range pending {
			_ = r.Register(tool)
		}
	}()

	for {
		names := r.Names()
		for i, n := range names {
			// Every observed listing is a prefix of the serial order.
			require.Equal(t, fmt.Sprintf("tool_%03d", i), n)
		}
		select {
		case <-done:
			assert.Equal(t, 200, r.Len())
			return
		default:
		}
	}
}

func TestRegistry_ListFormats(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.RegisterFunc(Func{
		Name: "add",
		Doc:  "Add two integers.\n\nArgs:\n    a: First addend.\n    b: Second addend.\n",
		Fn:   add,
	}, "")
	require.NoError(t, err)

	mcpList, err := r.List(FormatMCP)
	require.NoError(t, err)
	require.Len(t, mcpList, 1)
	native := mcpList[0].(Descriptor)
	assert.Equal(t, "add", native.Name)
	assert.Equal(t, "Add two integers.", native.Description)
	assert.Equal(t, []string{"a", "b"}, native.InputSchema["required"])

	fnList, err := r.List(FormatFunction)
	require.NoError(t, err)
	encoded, err := json.Marshal(fnList[0])
	require.NoError(t, err)
	var shape map[string]any
	require.NoError(t, json.Unmarshal(encoded, &shape))
	assert.Equal(t, "function", shape["type"])
	fn := shape["function"].(map[string]any)
	assert.Equal(t, "add", fn["name"])
	assert.Equal(t, "Add two integers.", fn["description"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])

	adapterList, err := r.List(FormatAdapter)
	require.NoError(t, err)
	adapter := adapterList[0].(AdapterDescriptor)
	assert.Equal(t, native.InputSchema, adapter.Schema)
	res, err := adapter.Execute(context.Background(), map[string]any{"a": 2, "b": "3"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Value)

	_, err = r.List(Format("yaml"))
	assert.Error(t, err)
}

func TestRegistry_CallValidation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.RegisterFunc(Func{Name: "add", Fn: add}, "")
	require.NoError(t, err)

	_, err = r.Call(context.Background(), "add", map[string]any{"a": "hello", "b": 2})
	require.Error(t, err)
	herr, ok := hosterr.As(err)
	require.True(t, ok)
	assert.Equal(t, hosterr.KindValidation, herr.Kind)
	assert.Equal(t, []string{"/a"}, herr.Details.(map[string]any)["paths"])

	res, err := r.Call(context.Background(), "add", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Value)
	assert.Equal(t, "3", res.Text())
}

func TestRegistry_CallErrors(t *testing.T) {
	t.Parallel()

	upstream := hosterr.NewUpstreamHTTPError("GET", "https://example.com", 500, []byte("boom"))
	tests := []struct {
		name    string
		handler Handler
		kind    hosterr.Kind
	}{
		{
			name: "plain error",
			handler: func(context.Context, map[string]any) (any, error) {
				return nil, errors.New("kaput")
			},
			kind: hosterr.KindToolExecution,
		},
		{
			name: "taxonomy error passes through",
			handler: func(context.Context, map[string]any) (any, error) {
				return nil, upstream
			},
			kind: hosterr.KindUpstreamHTTP,
		},
		{
			name: "panic",
			handler: func(context.Context, map[string]any) (any, error) {
				panic("bad state")
			},
			kind: hosterr.KindToolExecution,
		},
		{
			name: "not serializable",
			handler: func(context.Context, map[string]any) (any, error) {
				return make(chan int), nil
			},
			kind: hosterr.KindToolReturnNotSerializable,
		},
		{
			name: "deferred failure",
			handler: func(ctx context.Context, _ map[string]any) (any, error) {
				return Go(ctx, func(context.Context) (any, error) { return nil, errors.New("later") }), nil
			},
			kind: hosterr.KindToolExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewRegistry()
			tool, err := NewTool("t", "", nil, tt.handler)
			require.NoError(t, err)
			require.NoError(t, r.Register(tool))

			_, err = r.Call(context.Background(), "t", nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, hosterr.KindOf(err))
		})
	}
}

func TestRegistry_ToolExecutionErrorKeepsMessage(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	tool, err := NewTool("t", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("disk on fire")
	})
	require.NoError(t, err)
	require.NoError(t, r.Register(tool))

	_, err = r.Call(context.Background(), "t", nil)
	herr, ok := hosterr.As(err)
	require.True(t, ok)
	assert.Equal(t, "disk on fire", herr.Details.(map[string]any)["message"])
}

func TestRegistry_DeferredResult(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	tool, err := NewTool("slow", "", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		return Go(ctx, func(context.Context) (any, error) {
			time.Sleep(10 * time.Millisecond)
			return map[string]string{"status": "done"}, nil
		}), nil
	})
	require.NoError(t, err)
	require.NoError(t, r.Register(tool))

	res, err := r.Call(context.Background(), "slow", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"done"}`, string(res.JSON))
}

func TestRegistry_DeferredCancelled(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	tool, err := NewTool("stuck", "", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		return Go(ctx, func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), nil
	})
	require.NoError(t, err)
	require.NoError(t, r.Register(tool))

	cause := hosterr.New(hosterr.KindRequestCancelled, "request cancelled by client", nil)
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel(cause)
	}()

	_, err = r.Call(ctx, "stuck", nil)
	assert.Equal(t, hosterr.KindRequestCancelled, hosterr.KindOf(err))
}

func TestRegistry_ContextErrorsPassThrough(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	tool, err := NewTool("t", "", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("request aborted: %w", ctx.Err())
	})
	require.NoError(t, err)
	require.NoError(t, r.Register(tool))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Call(ctx, "t", nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, tagged := hosterr.As(err)
	assert.False(t, tagged)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (o *recordingObserver) StartCall(ctx context.Context, tool string) (context.Context, func(error)) {
	return ctx, func(err error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.calls = append(o.calls, tool)
		o.errs = append(o.errs, err)
	}
}

func TestRegistry_Observer(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	r := NewRegistry(WithObserver(obs))
	_, err := r.RegisterFunc(Func{Name: "add", Fn: add}, "")
	require.NoError(t, err)

	_, err = r.Call(context.Background(), "add", map[string]any{"a": 1, "b": 1})
	require.NoError(t, err)
	_, err = r.Call(context.Background(), "add", map[string]any{"a": "x"})
	require.Error(t, err)

	assert.Equal(t, []string{"add", "add"}, obs.calls)
	assert.NoError(t, obs.errs[0])
	assert.True(t, hosterr.IsValidation(obs.errs[1]))
}

func TestRegistry_ReportProgress(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	tool, err := NewTool("steps", "", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		for i := 1; i <= 3; i++ {
			ReportProgress(ctx, float64(i), 3, fmt.Sprintf("step %d", i))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.NoError(t, r.Register(tool))

	var got []string
	ctx := WithProgress(context.Background(), func(p, total float64, msg string) {
		got = append(got, fmt.Sprintf("%.0f/%.0f %s", p, total, msg))
	})
	res, err := r.Call(ctx, "steps", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text())
	assert.Equal(t, []string{"1/3 step 1", "2/3 step 2", "3/3 step 3"}, got)

	// Without a reporter the call still succeeds.
	_, err = r.Call(context.Background(), "steps", nil)
	require.NoError(t, err)
}

func TestRegister_InvalidTools(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.True(t, hosterr.HasKind(r.Register(&Tool{}), hosterr.KindInvalidToolSignature))
	assert.True(t, hosterr.HasKind(r.Register(&Tool{Name: "x"}), hosterr.KindInvalidToolSignature))

	_, err := r.RegisterFunc(Func{Name: "bad", Fn: func(int) {}}, "ns")
	assert.True(t, hosterr.HasKind(err, hosterr.KindInvalidToolSignature))
	assert.Equal(t, 0, r.Len())

	literal := &Tool{
		Name:        "literal",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{"n": map[string]any{"type": "integer"}}},
		Handler:     func(context.Context, map[string]any) (any, error) { return nil, nil },
	}
	require.NoError(t, r.Register(literal))
	_, err = r.Call(context.Background(), "literal", map[string]any{"n": "x"})
	assert.True(t, hosterr.IsValidation(err))
}

func TestResultText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello", (&Result{Value: "hello", JSON: json.RawMessage(`"hello"`)}).Text())
	assert.Equal(t, `{"a":1}`, (&Result{Value: map[string]int{"a": 1}, JSON: json.RawMessage(`{"a":1}`)}).Text())
	assert.Equal(t, "null", (&Result{JSON: json.RawMessage(`null`)}).Text())
}
