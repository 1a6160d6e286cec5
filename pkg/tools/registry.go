// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/schema"
)

// Observer is notified around every tool call. The returned function is
// invoked with the call's final error.
type Observer interface {
	StartCall(ctx context.Context, tool string) (context.Context, func(err error))
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver installs an observer for tool calls.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// snapshot is an immutable view of the registry contents. Writers build a
// new snapshot and swap it in, so readers never take a lock.
type snapshot struct {
	order     []string
	tools     map[string]*Tool
	resources []*Resource
	prompts   []*Prompt
}

func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		order:     make([]string, len(s.order)),
		tools:     make(map[string]*Tool, len(s.tools)),
		resources: append([]*Resource(nil), s.resources...),
		prompts:   append([]*Prompt(nil), s.prompts...),
	}
	copy(c.order, s.order)
	for k, v := range s.tools {
		c.tools[k] = v
	}
	return c
}

// Registry maps tool names to tools in insertion order. It is safe for
// concurrent use: reads are lock-free and writes are serialized.
type Registry struct {
	mu       sync.Mutex
	snap     atomic.Pointer[snapshot]
	observer Observer
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{tools: map[string]*Tool{}})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds t. A tool with the same name is rejected with
// ToolNameConflict.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return hosterr.New(hosterr.KindInvalidToolSignature, "tool name is required", nil)
	}
	if t.Handler == nil {
		return hosterr.Newf(hosterr.KindInvalidToolSignature, nil, "tool %q has no handler", t.Name)
	}
	if t.validate == nil {
		v, err := schema.NewValidator(t.InputSchema)
		if err != nil {
			return err
		}
		c := *t
		c.validate = v.Validate
		t = &c
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, exists := cur.tools[t.Name]; exists {
		return conflictError(t.Name)
	}
	next := cur.clone()
	next.order = append(next.order, t.Name)
	next.tools[t.Name] = t
	r.snap.Store(next)

	logger.Debugf("Registered tool %s", t.Name)
	return nil
}

// RegisterFunc runs fn through the schema engine, prefixes the namespace
// when one is given, and registers the result.
func (r *Registry) RegisterFunc(fn Func, namespace string) (*Tool, error) {
	t, err := FromFunc(fn)
	if err != nil {
		return nil, err
	}
	t = t.withName(Namespaced(namespace, t.Name))
	if err := r.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Unregister removes the tool called name. The tool is not callable once
// Unregister returns.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, exists := cur.tools[name]; !exists {
		return notFoundError(name)
	}
	next := cur.clone()
	delete(next.tools, name)
	for i, n := range next.order {
		if n == name {
			next.order = append(next.order[:i], next.order[i+1:]...)
			break
		}
	}
	r.snap.Store(next)

	logger.Debugf("Unregistered tool %s", name)
	return nil
}

// Get returns the tool called name or ToolNotFound.
func (r *Registry) Get(name string) (*Tool, error) {
	if t, ok := r.snap.Load().tools[name]; ok {
		return t, nil
	}
	return nil, notFoundError(name)
}

// Tools returns the registered tools in insertion order.
func (r *Registry) Tools() []*Tool {
	s := r.snap.Load()
	out := make([]*Tool, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.tools[n])
	}
	return out
}

// Names returns the registered tool names in insertion order.
func (r *Registry) Names() []string {
	s := r.snap.Load()
	return append([]string(nil), s.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.snap.Load().order)
}

// Call resolves name, validates args, invokes the tool and awaits a
// deferred result. Errors outside the taxonomy become ToolExecutionError.
// When ctx is done the context's cause is returned so callers can tell a
// client cancellation from a deadline.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (res *Result, err error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if r.observer != nil {
		var done func(error)
		ctx, done = r.observer.StartCall(ctx, name)
		defer func() { done(err) }()
	}

	validated, err := t.Validate(args)
	if err != nil {
		return nil, err
	}

	value, err := invoke(ctx, t, validated)
	if err == nil {
		if d, ok := value.(Deferred); ok {
			value, err = d.Await(ctx)
		}
	}
	if err != nil {
		return nil, classify(ctx, name, err)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, hosterr.Newf(hosterr.KindToolReturnNotSerializable, err,
			"tool %q returned a value that cannot be encoded as JSON", name).
			WithDetails(map[string]any{"tool": name, "type": fmt.Sprintf("%T", value)})
	}
	return &Result{Value: value, JSON: encoded}, nil
}

func invoke(ctx context.Context, t *Tool, args map[string]any) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("Tool %s panicked: %v\n%s", t.Name, p, debug.Stack())
			err = hosterr.NewToolExecutionError(t.Name, fmt.Errorf("panic: %v", p))
		}
	}()
	return t.Handler(ctx, args)
}

func classify(ctx context.Context, name string, err error) error {
	if _, ok := hosterr.As(err); ok {
		return err
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return context.Cause(ctx)
	}
	return hosterr.NewToolExecutionError(name, err)
}

func conflictError(name string) error {
	return hosterr.Newf(hosterr.KindToolNameConflict, nil, "tool %q is already registered", name).
		WithDetails(map[string]any{"tool": name})
}

func notFoundError(name string) error {
	return hosterr.Newf(hosterr.KindToolNotFound, nil, "tool %q not found", name).
		WithDetails(map[string]any{"tool": name})
}
