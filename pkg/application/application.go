// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package application defines the contract between the loader and the
// bundles of tools it hosts, and the HTTP and GraphQL helpers those bundles
// build on.
package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/toolhost/pkg/integration"
	"github.com/stacklok/toolhost/pkg/tools"
)

// Application is a set of tools sharing an integration and an outbound
// client.
type Application interface {
	// Slug is the application identifier, used as the default tool namespace.
	Slug() string
	// ListTools returns the tool-exposing functions in a stable order.
	ListTools() []tools.Func
	// Integration returns the authentication strategy, or nil.
	Integration() integration.Integration
}

// ResourceProvider is implemented by applications that serve resources.
type ResourceProvider interface {
	ListResources() []*tools.Resource
}

// PromptProvider is implemented by applications that serve prompts.
type PromptProvider interface {
	ListPrompts() []*tools.Prompt
}

// Factory constructs an application.
type Factory func(ctx context.Context, cfg Config) (Application, error)

// Config is everything an application receives at construction.
type Config struct {
	// Slug is the configured application name
	Slug string
	// Integration may be nil for applications that need no credentials
	Integration integration.Integration
	// Options are the free-form settings from the configuration document
	Options map[string]any
	// RateLimit caps outbound requests per second; zero disables it
	RateLimit float64
	// Timeout bounds each outbound request; zero means the networking default
	Timeout time.Duration
	// CABundle is an optional PEM bundle for upstream TLS
	CABundle string
	// HTTPClient replaces the client built from the settings above
	HTTPClient *http.Client
}

// StringOption returns Options[key] when it is a non-empty string, or def.
func (c Config) StringOption(key, def string) string {
	switch v := c.Options[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case fmt.Stringer:
		return v.String()
	}
	return def
}

// Base carries the slug and integration every application exposes.
type Base struct {
	slug  string
	integ integration.Integration
}

// NewBase returns a Base for cfg.
func NewBase(cfg Config) Base {
	return Base{slug: cfg.Slug, integ: cfg.Integration}
}

// Slug implements Application.
func (b *Base) Slug() string { return b.slug }

// Integration implements Application.
func (b *Base) Integration() integration.Integration { return b.integ }
