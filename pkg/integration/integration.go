// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package integration implements the authentication strategies applications
// use for outbound calls. An Integration reads credential material from a
// store.Store and turns it into request headers or query parameters; it holds
// no credential state of its own.
package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/store"
)

// Kind identifies an authentication strategy.
type Kind string

const (
	// KindAPIKey injects a single stored token through header templates.
	KindAPIKey Kind = "api_key"
	// KindBasicAuth injects an HTTP Basic Authorization header.
	KindBasicAuth Kind = "basic_auth"
	// KindOAuth2 injects a bearer access token, refreshing it when needed.
	KindOAuth2 Kind = "oauth2"
)

// Integration produces credentials for outbound requests.
type Integration interface {
	// Name returns the credential key the integration reads and writes.
	Name() string
	// Kind returns the authentication strategy.
	Kind() Kind
	// Authorize describes how a user can supply credentials. It never
	// mutates the store.
	Authorize(ctx context.Context) (*Authorization, error)
	// Credentials reads the store and returns the request decoration.
	Credentials(ctx context.Context) (*Credentials, error)
	// SetCredentials writes value to the store under the integration's key.
	SetCredentials(ctx context.Context, value []byte) error
}

// Authorization tells a user how to authorize an integration.
type Authorization struct {
	Kind         Kind   `json:"kind"`
	Instructions string `json:"instructions"`
	URL          string `json:"url,omitempty"`
}

// Credentials is the decoration applied to an outbound request.
type Credentials struct {
	Header http.Header
	Query  url.Values
}

// Apply sets the credential headers and query parameters on req.
func (c *Credentials) Apply(req *http.Request) {
	if c == nil {
		return
	}
	for name, values := range c.Header {
		req.Header.Del(name)
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if len(c.Query) > 0 {
		q := req.URL.Query()
		for name, values := range c.Query {
			q[name] = slices.Clone(values)
		}
		req.URL.RawQuery = q.Encode()
	}
}

// Config holds the kind-specific parameters of an integration.
type Config struct {
	// Name is the credential key
	Name string
	// Type selects the strategy
	Type Kind
	// Headers maps header names to value templates
	Headers map[string]string
	// Query maps query parameter names to value templates
	Query map[string]string

	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	CallbackPort int
	RedirectURL  string
	// Issuer enables OIDC discovery of AuthURL and TokenURL
	Issuer string
}

// New creates the integration described by cfg over st.
func New(ctx context.Context, cfg Config, st store.Store, opts ...Option) (Integration, error) {
	if cfg.Name == "" {
		return nil, hosterr.New(hosterr.KindConfiguration, "integration name is required", nil)
	}
	if st == nil {
		return nil, hosterr.New(hosterr.KindConfiguration, "integration "+cfg.Name+" has no store", nil)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	switch cfg.Type {
	case KindAPIKey:
		return NewAPIKey(cfg, st)
	case KindBasicAuth:
		return NewBasicAuth(cfg, st)
	case KindOAuth2:
		return NewOAuth2(ctx, cfg, st, o)
	default:
		return nil, hosterr.New(hosterr.KindConfiguration,
			fmt.Sprintf("unknown integration type %q for %s", cfg.Type, cfg.Name), nil)
	}
}

// ParseHeaderTemplate splits a "Name: value" template into its parts.
func ParseHeaderTemplate(tmpl string) (string, string, error) {
	name, value, ok := strings.Cut(tmpl, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("header template %q must have the form 'Name: value'", tmpl)
	}
	return http.CanonicalHeaderKey(name), strings.TrimSpace(value), nil
}

// render substitutes {placeholder} occurrences in every template.
func render(headers, query map[string]string, vars map[string]string) *Credentials {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	creds := &Credentials{Header: http.Header{}, Query: url.Values{}}
	for name, tmpl := range headers {
		creds.Header.Set(name, r.Replace(tmpl))
	}
	for name, tmpl := range query {
		creds.Query.Set(name, r.Replace(tmpl))
	}
	return creds
}

// readKey fetches the integration's credential, mapping an absent key to
// NotAuthorized. Other store errors pass through unchanged.
func readKey(ctx context.Context, st store.Store, key string, authURL string) ([]byte, error) {
	raw, err := st.Get(ctx, key)
	if err != nil {
		if hosterr.IsKeyNotFound(err) {
			return nil, hosterr.NewNotAuthorizedError(key, key, authURL, nil)
		}
		return nil, err
	}
	return raw, nil
}

func storeInstructions(st store.Store, key string, what string) string {
	switch st.Type() {
	case store.EnvironmentType:
		return fmt.Sprintf("Set the environment variable %s to %s.", store.NormalizeKey(key), what)
	case store.OnePasswordType:
		return fmt.Sprintf("Store %s in 1Password at the reference configured for %s.", what, key)
	default:
		return fmt.Sprintf("Store %s under key %s in the %s store (toolhost auth).", what, key, st.Type())
	}
}
