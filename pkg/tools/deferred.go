// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
)

// Deferred is a result that becomes available later. A handler may return a
// Deferred and the registry awaits it before responding.
type Deferred interface {
	Await(ctx context.Context) (any, error)
}

type future struct {
	done  chan struct{}
	value any
	err   error
}

// Go runs fn in its own goroutine and returns a Deferred for its result.
// fn receives ctx and should return promptly once ctx is done.
func Go(ctx context.Context, fn func(context.Context) (any, error)) Deferred {
	f := &future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if p := recover(); p != nil {
				f.err = fmt.Errorf("panic: %v", p)
			}
		}()
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Await blocks until the result is ready or ctx is done.
func (f *future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
