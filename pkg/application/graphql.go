// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package application

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/networking"
)

// GraphQLApplication is the base for applications that talk to a GraphQL
// endpoint. The base URL is the endpoint itself.
type GraphQLApplication struct {
	*APIApplication
}

// NewGraphQLApplication builds a GraphQL application over the base_url
// option, or defaultEndpoint.
func NewGraphQLApplication(cfg Config, defaultEndpoint string) (*GraphQLApplication, error) {
	api, err := NewAPIApplication(cfg, defaultEndpoint)
	if err != nil {
		return nil, err
	}
	return &GraphQLApplication{APIApplication: api}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// ExecuteQuery runs a query and returns its data member.
func (g *GraphQLApplication) ExecuteQuery(ctx context.Context, query string, vars map[string]any) (gjson.Result, error) {
	return g.execute(ctx, query, vars)
}

// ExecuteMutation runs a mutation and returns its data member.
func (g *GraphQLApplication) ExecuteMutation(ctx context.Context, mutation string, vars map[string]any) (gjson.Result, error) {
	return g.execute(ctx, mutation, vars)
}

func (g *GraphQLApplication) execute(ctx context.Context, document string, vars map[string]any) (gjson.Result, error) {
	resp, err := g.Post(ctx, "", graphQLRequest{Query: document, Variables: vars})
	if networking.IsHTTPError(err, http.StatusUnauthorized) {
		return gjson.Result{}, hosterr.Newf(hosterr.KindNotAuthorized, err,
			"%s rejected the stored credentials", g.Slug()).
			WithDetails(map[string]any{"application": g.Slug()})
	}
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, hosterr.New(hosterr.KindUpstreamHTTP, "GraphQL response is not valid JSON", nil).
			WithDetails(map[string]any{"status": resp.Status, "body": hosterr.Excerpt(resp.Body)})
	}

	if errs := resp.Path("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		messages := make([]string, 0, len(errs.Array()))
		for _, e := range errs.Array() {
			messages = append(messages, e.Get("message").String())
		}
		return gjson.Result{}, hosterr.Newf(hosterr.KindUpstreamHTTP, nil,
			"GraphQL request to %s failed: %s", g.Slug(), messages[0]).
			WithDetails(map[string]any{
				"status": resp.Status,
				"errors": messages,
				"body":   hosterr.Excerpt(resp.Body),
			})
	}
	return resp.Path("data"), nil
}
