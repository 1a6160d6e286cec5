// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package zenquotes serves random quotes from zenquotes.io. It needs no
// credentials.
package zenquotes

import (
	"context"
	"fmt"

	"github.com/stacklok/toolhost/pkg/application"
	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/tools"
)

const (
	// Slug is the built-in application name.
	Slug = "zenquotes"
	// Module is the explicit implementation identifier.
	Module = "zenquotes/App"
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://zenquotes.io/api"
)

// App is the zenquotes application.
type App struct {
	*application.APIApplication
}

// New creates the application.
func New(_ context.Context, cfg application.Config) (application.Application, error) {
	api, err := application.NewAPIApplication(cfg, DefaultBaseURL)
	if err != nil {
		return nil, err
	}
	return &App{APIApplication: api}, nil
}

type quote struct {
	Quote  string `json:"q"`
	Author string `json:"a"`
}

// ListTools implements application.Application.
func (a *App) ListTools() []tools.Func {
	return []tools.Func{
		{Name: "get_quote", Fn: a.GetQuote},
	}
}

// ListResources implements application.ResourceProvider.
func (a *App) ListResources() []*tools.Resource {
	return []*tools.Resource{{
		URI:         "zenquotes://today",
		Name:        "quote-of-the-day",
		Description: "The quote of the day",
		MIMEType:    "text/plain",
		Read: func(ctx context.Context) (string, error) {
			return a.fetch(ctx, "/today")
		},
	}}
}

// GetQuote returns a random quote.
func (a *App) GetQuote(ctx context.Context) (string, error) {
	return a.fetch(ctx, "/random")
}

func (a *App) fetch(ctx context.Context, path string) (string, error) {
	quotes, err := application.GetJSON[[]quote](ctx, a.APIApplication, path)
	if err != nil {
		return "", err
	}
	if len(quotes) == 0 || quotes[0].Quote == "" {
		return "", hosterr.New(hosterr.KindUpstreamHTTP, "zenquotes returned no quote", nil).
			WithDetails(map[string]any{"path": path})
	}
	return fmt.Sprintf("%q - %s", quotes[0].Quote, quotes[0].Author), nil
}
