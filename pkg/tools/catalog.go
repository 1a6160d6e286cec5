// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

// Resource is a readable document served through resources/list and
// resources/read.
type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	Read        func(ctx context.Context) (string, error)
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// PromptMessage is one rendered prompt message.
type PromptMessage struct {
	Role string
	Text string
}

// Prompt is a template served through prompts/list and prompts/get.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
	Render      func(ctx context.Context, args map[string]string) ([]PromptMessage, error)
}

// AddResource adds a resource. URIs must be unique.
func (r *Registry) AddResource(res *Resource) error {
	if res == nil || res.URI == "" || res.Read == nil {
		return fmt.Errorf("resource requires a URI and a Read function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	for _, existing := range cur.resources {
		if existing.URI == res.URI {
			return hosterr.Newf(hosterr.KindToolNameConflict, nil, "resource %q is already registered", res.URI)
		}
	}
	next := cur.clone()
	next.resources = append(next.resources, res)
	r.snap.Store(next)
	return nil
}

// AddPrompt adds a prompt. Names must be unique.
func (r *Registry) AddPrompt(p *Prompt) error {
	if p == nil || p.Name == "" || p.Render == nil {
		return fmt.Errorf("prompt requires a name and a Render function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	for _, existing := range cur.prompts {
		if existing.Name == p.Name {
			return hosterr.Newf(hosterr.KindToolNameConflict, nil, "prompt %q is already registered", p.Name)
		}
	}
	next := cur.clone()
	next.prompts = append(next.prompts, p)
	r.snap.Store(next)
	return nil
}

// Resources returns the registered resources in insertion order.
func (r *Registry) Resources() []*Resource {
	return append([]*Resource(nil), r.snap.Load().resources...)
}

// Prompts returns the registered prompts in insertion order.
func (r *Registry) Prompts() []*Prompt {
	return append([]*Prompt(nil), r.snap.Load().prompts...)
}

// ReadResource reads the resource identified by uri.
func (r *Registry) ReadResource(ctx context.Context, uri string) (*Resource, string, error) {
	for _, res := range r.snap.Load().resources {
		if res.URI == uri {
			text, err := res.Read(ctx)
			return res, text, err
		}
	}
	return nil, "", hosterr.Newf(hosterr.KindToolNotFound, nil, "resource %q not found", uri).
		WithDetails(map[string]any{"uri": uri})
}

// GetPrompt renders the prompt called name. Missing required arguments are
// reported as a ValidationError.
func (r *Registry) GetPrompt(ctx context.Context, name string, args map[string]string) (*Prompt, []PromptMessage, error) {
	for _, p := range r.snap.Load().prompts {
		if p.Name != name {
			continue
		}
		var missing, messages []string
		for _, a := range p.Arguments {
			if _, ok := args[a.Name]; a.Required && !ok {
				missing = append(missing, "/"+a.Name)
				messages = append(messages, fmt.Sprintf("/%s: argument is required", a.Name))
			}
		}
		if len(missing) > 0 {
			return nil, nil, hosterr.NewValidationError(missing, messages)
		}
		msgs, err := p.Render(ctx, args)
		return p, msgs, err
	}
	return nil, nil, hosterr.Newf(hosterr.KindToolNotFound, nil, "prompt %q not found", name).
		WithDetails(map[string]any{"prompt": name})
}
