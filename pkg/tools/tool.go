// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tools provides the tool model and the registry that the MCP
// frontend serves.
package tools

import (
	"context"
	"encoding/json"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/schema"
)

// NamespaceSeparator joins a namespace and a tool name.
const NamespaceSeparator = "__"

// Handler executes a tool with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, schema-bound executable unit.
type Tool struct {
	Name         string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
	Handler      Handler

	validate func(map[string]any) (map[string]any, error)
}

// Func describes a tool-exposing function. Applications return these from
// ListTools and the registry turns them into tools through the schema engine.
type Func struct {
	// Name of the tool. Defaults to the snake_case Go function name.
	Name string
	// Description overrides the summary parsed from Doc.
	Description string
	// Doc is the docstring: a summary followed by an optional
	// parameter section.
	Doc string
	// Fn is the Go function; see schema.FromFunc for accepted shapes.
	Fn any
}

// NewTool builds a tool from an explicit input schema. The schema must
// compile; an invalid schema is reported as InvalidToolSignature.
func NewTool(name, description string, inputSchema map[string]any, handler Handler) (*Tool, error) {
	if name == "" {
		return nil, hosterr.New(hosterr.KindInvalidToolSignature, "tool name is required", nil)
	}
	if handler == nil {
		return nil, hosterr.Newf(hosterr.KindInvalidToolSignature, nil, "tool %q has no handler", name)
	}
	if inputSchema == nil {
		inputSchema = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		}
	}
	v, err := schema.NewValidator(inputSchema)
	if err != nil {
		return nil, err
	}
	return &Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
		Handler:     handler,
		validate:    v.Validate,
	}, nil
}

// FromFunc runs fn through the schema engine. The returned tool is not
// namespaced.
func FromFunc(fn Func) (*Tool, error) {
	f, err := schema.FromFunc(fn.Name, fn.Doc, fn.Fn)
	if err != nil {
		return nil, err
	}
	desc := f.Description
	if fn.Description != "" {
		desc = fn.Description
	}
	return &Tool{
		Name:         f.Name,
		Description:  desc,
		InputSchema:  f.InputSchema,
		OutputSchema: f.OutputSchema,
		Handler:      f.Call,
		validate:     f.Validate,
	}, nil
}

// Validate normalizes and checks args against the tool's input schema.
func (t *Tool) Validate(args map[string]any) (map[string]any, error) {
	if t.validate == nil {
		v, err := schema.NewValidator(t.InputSchema)
		if err != nil {
			return nil, err
		}
		return v.Validate(args)
	}
	return t.validate(args)
}

// withName returns a shallow copy of t renamed to name.
func (t *Tool) withName(name string) *Tool {
	c := *t
	c.Name = name
	return &c
}

// Namespaced prefixes name with namespace and the separator. An empty
// namespace leaves the name unchanged.
func Namespaced(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + NamespaceSeparator + name
}

// Result is the outcome of a successful tool call.
type Result struct {
	// Value is the value the tool returned.
	Value any
	// JSON is the encoded value.
	JSON json.RawMessage
}

// Text renders the result for a text content item. Strings are returned
// verbatim; other values as their JSON encoding.
func (r *Result) Text() string {
	if s, ok := r.Value.(string); ok {
		return s
	}
	if r.Value == nil {
		return "null"
	}
	return string(r.JSON)
}
