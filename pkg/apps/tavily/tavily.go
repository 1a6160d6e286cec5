// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tavily exposes the Tavily search API. Requests authenticate with
// an api_key integration.
package tavily

import (
	"context"

	"github.com/stacklok/toolhost/pkg/application"
	"github.com/stacklok/toolhost/pkg/tools"
)

const (
	// Slug is the built-in application name.
	Slug = "tavily"
	// Module is the explicit implementation identifier.
	Module = "tavily/App"
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.tavily.com"
)

// App is the Tavily application.
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

// ListTools implements application.Application.
func (a *App) ListTools() []tools.Func {
	return []tools.Func{
		{Name: "search", Doc: searchDoc, Fn: a.Search},
		{Name: "extract", Doc: extractDoc, Fn: a.Extract},
	}
}

const searchDoc = `Search the web and return ranked results with content snippets.

Args:
    query (str): The search query.
    search_depth (str, optional): "basic" or "advanced". Defaults to "basic".
    topic (str, optional): "general" or "news".
    max_results (int, optional): Maximum number of results. Defaults to 5.
    include_answer (bool, optional): Include a short generated answer.
    include_domains (list[str], optional): Only return results from these domains.
    exclude_domains (list[str], optional): Never return results from these domains.
`

// SearchInput are the arguments of the search tool.
type SearchInput struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth,omitempty" enum:"basic,advanced"`
	Topic          string   `json:"topic,omitempty" enum:"general,news"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeAnswer  bool     `json:"include_answer,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

// Search calls POST /search.
func (a *App) Search(ctx context.Context, in SearchInput) (any, error) {
	resp, err := a.Post(ctx, "/search", in)
	if err != nil {
		return nil, err
	}
	return resp.Value()
}

const extractDoc = `Extract the main content of one or more web pages.

Parameters
----------
urls : list[str]
    The pages to extract.
extract_depth : str, optional
    "basic" or "advanced". Defaults to "basic".
`

// ExtractInput are the arguments of the extract tool.
type ExtractInput struct {
	URLs         []string `json:"urls"`
	ExtractDepth string   `json:"extract_depth,omitempty" enum:"basic,advanced"`
}

// Extract calls POST /extract.
func (a *App) Extract(ctx context.Context, in ExtractInput) (any, error) {
	resp, err := a.Post(ctx, "/extract", in)
	if err != nil {
		return nil, err
	}
	return resp.Value()
}
