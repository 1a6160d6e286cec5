// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
)

// Format selects the shape of a tool listing.
type Format string

const (
	// FormatMCP is the native MCP shape and the authoritative one.
	FormatMCP Format = "mcp"
	// FormatFunction wraps each tool as {type:"function", function:{...}}.
	FormatFunction Format = "function"
	// FormatAdapter pairs the schema with an executable reference for
	// agent framework adapters.
	FormatAdapter Format = "adapter"
)

// Descriptor is the native MCP tool listing entry.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// FunctionDescriptor is the function-call projection of a tool.
type FunctionDescriptor struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the body of a FunctionDescriptor.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// AdapterDescriptor is the framework adapter projection of a tool. Execute
// routes through the registry, so arguments are validated the same way as
// for MCP calls.
type AdapterDescriptor struct {
	Name        string                                                          `json:"name"`
	Description string                                                          `json:"description"`
	Schema      map[string]any                                                  `json:"schema"`
	Execute     func(ctx context.Context, args map[string]any) (*Result, error) `json:"-"`
}

// Descriptors returns the native listing in insertion order.
func (r *Registry) Descriptors() []Descriptor {
	ts := r.Tools()
	out := make([]Descriptor, 0, len(ts))
	for _, t := range ts {
		out = append(out, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

// List returns the listing in the requested format. An empty format means
// FormatMCP.
func (r *Registry) List(format Format) ([]any, error) {
	ts := r.Tools()
	out := make([]any, 0, len(ts))
	switch format {
	case FormatMCP, "":
		for _, d := range r.Descriptors() {
			out = append(out, d)
		}
	case FormatFunction:
		for _, t := range ts {
			out = append(out, FunctionDescriptor{
				Type: "function",
				Function: FunctionSpec{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
	case FormatAdapter:
		for _, t := range ts {
			name := t.Name
			out = append(out, AdapterDescriptor{
				Name:        name,
				Description: t.Description,
				Schema:      t.InputSchema,
				Execute: func(ctx context.Context, args map[string]any) (*Result, error) {
					return r.Call(ctx, name, args)
				},
			})
		}
	default:
		return nil, fmt.Errorf("unknown listing format %q", format)
	}
	return out, nil
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatMCP, FormatFunction, FormatAdapter:
		return f, nil
	case "":
		return FormatMCP, nil
	default:
		return "", fmt.Errorf("unknown listing format %q (expected mcp, function or adapter)", s)
	}
}
