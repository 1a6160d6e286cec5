// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"maps"
	"strings"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/store"
)

// BasicAuth reads {username, password} and produces an HTTP Basic header.
type BasicAuth struct {
	name    string
	store   store.Store
	headers map[string]string
	query   map[string]string
}

type basicRecord struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewBasicAuth creates a basic_auth integration. Extra header templates may
// reference {username} and {password}.
func NewBasicAuth(cfg Config, st store.Store) (*BasicAuth, error) {
	return &BasicAuth{
		name:    cfg.Name,
		store:   st,
		headers: maps.Clone(cfg.Headers),
		query:   maps.Clone(cfg.Query),
	}, nil
}

// Name implements Integration.
func (b *BasicAuth) Name() string { return b.name }

// Kind implements Integration.
func (*BasicAuth) Kind() Kind { return KindBasicAuth }

// Authorize implements Integration.
func (b *BasicAuth) Authorize(_ context.Context) (*Authorization, error) {
	return &Authorization{
		Kind:         KindBasicAuth,
		Instructions: storeInstructions(b.store, b.name, `{"username": "...", "password": "..."}`),
	}, nil
}

// Credentials implements Integration.
func (b *BasicAuth) Credentials(ctx context.Context) (*Credentials, error) {
	raw, err := readKey(ctx, b.store, b.name, "")
	if err != nil {
		return nil, err
	}
	rec, ok := parseBasic(raw)
	if !ok {
		return nil, hosterr.NewNotAuthorizedError(b.name, b.name, "", nil)
	}

	creds := render(b.headers, b.query, map[string]string{
		"username": rec.Username,
		"password": rec.Password,
	})
	encoded := base64.StdEncoding.EncodeToString([]byte(rec.Username + ":" + rec.Password))
	creds.Header.Set("Authorization", "Basic "+encoded)
	return creds, nil
}

// SetCredentials implements Integration.
func (b *BasicAuth) SetCredentials(ctx context.Context, value []byte) error {
	return b.store.Set(ctx, b.name, value)
}

// EncodeBasic serializes a username and password the way BasicAuth reads them.
func EncodeBasic(username, password string) []byte {
	data, _ := json.Marshal(basicRecord{Username: username, Password: password})
	return data
}

// parseBasic accepts the JSON record or a "username:password" string.
func parseBasic(raw []byte) (basicRecord, bool) {
	var rec basicRecord
	if err := json.Unmarshal(raw, &rec); err == nil {
		return rec, rec.Username != ""
	}
	user, pass, ok := strings.Cut(strings.TrimSpace(string(raw)), ":")
	if !ok || user == "" {
		return basicRecord{}, false
	}
	return basicRecord{Username: user, Password: pass}, true
}
