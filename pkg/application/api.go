// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/networking"
	"github.com/stacklok/toolhost/pkg/versions"
)

// DefaultMaxTries is the number of attempts for GET requests.
const DefaultMaxTries = 3

// Response is a successful upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return hosterr.New(hosterr.KindUpstreamHTTP, "upstream response is not valid JSON", nil).
			WithDetails(map[string]any{"status": r.Status, "body": hosterr.Excerpt(r.Body)})
	}
	return nil
}

// Value decodes the body into a generic JSON value, keeping numbers exact.
func (r *Response) Value() (any, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, hosterr.New(hosterr.KindUpstreamHTTP, "upstream response is not valid JSON", nil).
			WithDetails(map[string]any{"status": r.Status, "body": hosterr.Excerpt(r.Body)})
	}
	return v, nil
}

// Path returns the gjson result for path in the body.
func (r *Response) Path(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// RequestOption customizes a single request.
type RequestOption func(*http.Request)

// WithQuery adds query parameters.
func WithQuery(values url.Values) RequestOption {
	return func(req *http.Request) {
		q := req.URL.Query()
		for k, vs := range values {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
}

// WithRequestHeader sets a header.
func WithRequestHeader(key, value string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set(key, value)
	}
}

// APIApplication is the base for applications that talk to a REST API.
type APIApplication struct {
	Base

	baseURL *url.URL
	client  *http.Client
}

// NewAPIApplication builds the pooled client for cfg. The base URL is the
// base_url option, or defaultBaseURL.
func NewAPIApplication(cfg Config, defaultBaseURL string) (*APIApplication, error) {
	raw := cfg.StringOption("base_url", defaultBaseURL)
	base, err := parseBaseURL(raw)
	if err != nil {
		return nil, hosterr.NewConfigurationError(
			fmt.Sprintf("application %s has an invalid base_url", cfg.Slug),
			[]string{"options.base_url"}, err)
	}

	client := cfg.HTTPClient
	if client == nil {
		builder := networking.NewHttpClientBuilder().
			WithUserAgent(versions.UserAgent()).
			WithRetries(DefaultMaxTries, 0).
			WithRateLimit(cfg.RateLimit, 1).
			WithCABundle(cfg.CABundle)
		if cfg.Timeout > 0 {
			builder = builder.WithTimeout(cfg.Timeout)
		}
		client, err = builder.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP client for %s: %w", cfg.Slug, err)
		}
	}

	return &APIApplication{
		Base:    NewBase(cfg),
		baseURL: base,
		client:  client,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("base URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL has no host")
	}
	u.Fragment = ""
	return u, nil
}

// BaseURL returns the resolved base URL.
func (a *APIApplication) BaseURL() string { return a.baseURL.String() }

// Client returns the pooled HTTP client.
func (a *APIApplication) Client() *http.Client { return a.client }

// Get issues a GET request.
func (a *APIApplication) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post issues a POST request with body encoded as JSON.
func (a *APIApplication) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put issues a PUT request with body encoded as JSON.
func (a *APIApplication) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodPut, path, body, opts...)
}

// Patch issues a PATCH request with body encoded as JSON.
func (a *APIApplication) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodPatch, path, body, opts...)
}

// Delete issues a DELETE request.
func (a *APIApplication) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return a.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Do sends a request to the base URL joined with path. Credentials are
// fetched from the integration for every call, before anything is sent.
func (a *APIApplication) Do(
	ctx context.Context, method, path string, body any, opts ...RequestOption,
) (*Response, error) {
	target, err := a.resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := encodeBody(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", networking.ContentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", networking.ContentTypeJSON)
	}
	for _, opt := range opts {
		opt(req)
	}

	if err := a.applyCredentials(ctx, req); err != nil {
		return nil, err
	}

	logger.Debugf("%s: %s %s", a.Slug(), method, networking.RedactURL(req.URL))
	resp, respBody, err := networking.Do(a.client, req, 0)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// GetJSON issues a GET request through a and decodes the JSON response
// body into T.
func GetJSON[T any](ctx context.Context, a *APIApplication, path string) (T, error) {
	var zero T
	target, err := a.resolve(path)
	if err != nil {
		return zero, err
	}
	logger.Debugf("%s: GET %s", a.Slug(), networking.RedactURL(target))
	res, err := networking.FetchJSON[T](ctx, a.client, target.String(),
		networking.WithDecorator(func(req *http.Request) error {
			return a.applyCredentials(ctx, req)
		}))
	if err != nil {
		return zero, err
	}
	return res.Data, nil
}

func (a *APIApplication) applyCredentials(ctx context.Context, req *http.Request) error {
	integ := a.Integration()
	if integ == nil {
		return nil
	}
	creds, err := integ.Credentials(ctx)
	if err != nil {
		return err
	}
	creds.Apply(req)
	return nil
}

// resolve joins path onto the base URL. Absolute URLs are rejected so that
// credentials only travel to the configured host.
func (a *APIApplication) resolve(path string) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if rel.IsAbs() || rel.Host != "" {
		return nil, fmt.Errorf("request path %q must be relative to the base URL", path)
	}

	u := *a.baseURL
	if rel.Path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
		u.RawPath = ""
	}
	// Query parameters fixed in the base URL are kept ahead of the path's.
	switch {
	case u.RawQuery == "":
		u.RawQuery = rel.RawQuery
	case rel.RawQuery != "":
		u.RawQuery += "&" + rel.RawQuery
	}
	return &u, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return payload, nil
}
