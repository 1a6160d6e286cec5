// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"strings"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/store"
)

// DefaultAPIKeyHeader is used when an api_key integration configures no
// header or query templates.
const DefaultAPIKeyHeader = "Authorization: Bearer {token}"

// APIKey reads a single token and substitutes it into header templates.
type APIKey struct {
	name    string
	store   store.Store
	headers map[string]string
	query   map[string]string
}

// NewAPIKey creates an api_key integration.
func NewAPIKey(cfg Config, st store.Store) (*APIKey, error) {
	headers := maps.Clone(cfg.Headers)
	if len(headers) == 0 && len(cfg.Query) == 0 {
		name, value, _ := ParseHeaderTemplate(DefaultAPIKeyHeader)
		headers = map[string]string{name: value}
	}
	return &APIKey{
		name:    cfg.Name,
		store:   st,
		headers: headers,
		query:   maps.Clone(cfg.Query),
	}, nil
}

// Name implements Integration.
func (a *APIKey) Name() string { return a.name }

// Kind implements Integration.
func (*APIKey) Kind() Kind { return KindAPIKey }

// Authorize implements Integration.
func (a *APIKey) Authorize(_ context.Context) (*Authorization, error) {
	return &Authorization{
		Kind:         KindAPIKey,
		Instructions: storeInstructions(a.store, a.name, "your API key"),
	}, nil
}

// Credentials implements Integration.
func (a *APIKey) Credentials(ctx context.Context) (*Credentials, error) {
	raw, err := readKey(ctx, a.store, a.name, "")
	if err != nil {
		return nil, err
	}
	token := extractToken(raw)
	if token == "" {
		return nil, hosterr.NewNotAuthorizedError(a.name, a.name, "", nil)
	}
	return render(a.headers, a.query, map[string]string{"token": token}), nil
}

// SetCredentials implements Integration.
func (a *APIKey) SetCredentials(ctx context.Context, value []byte) error {
	return a.store.Set(ctx, a.name, value)
}

// extractToken accepts a raw token, a JSON string, or a JSON object with an
// api_key, token or key member.
func extractToken(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			return strings.TrimSpace(s)
		}
	case '{':
		var obj map[string]any
		if json.Unmarshal(trimmed, &obj) == nil {
			for _, k := range []string{"api_key", "token", "key"} {
				if s, ok := obj[k].(string); ok && s != "" {
					return s
				}
			}
			return ""
		}
	}
	return string(trimmed)
}
