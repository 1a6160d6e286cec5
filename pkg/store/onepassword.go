// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/1password/onepassword-sdk-go"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

//go:generate mockgen -destination=mocks/mock_onepassword.go -package=mocks -source=onepassword.go SecretResolver

// SecretResolver resolves 1Password secret references.
type SecretResolver interface {
	Resolve(ctx context.Context, secretReference string) (string, error)
}

const (
	onePasswordScheme   = "op://"
	onePasswordTokenEnv = "OP_SERVICE_ACCOUNT_TOKEN"
)

var onePasswordTimeout = 5 * time.Second

// OnePasswordStore is a read-only store backed by 1Password. A key is either
// a full op:// reference or a field name appended to the configured
// op://vault/item prefix.
type OnePasswordStore struct {
	resolver SecretResolver
	prefix   string
}

// NewOnePasswordStore creates a OnePasswordStore authenticated with the
// service account token in OP_SERVICE_ACCOUNT_TOKEN.
func NewOnePasswordStore(ctx context.Context, prefix string) (*OnePasswordStore, error) {
	token := os.Getenv(onePasswordTokenEnv)
	if token == "" {
		return nil, hosterr.New(hosterr.KindConfiguration, onePasswordTokenEnv+" is not set", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, onePasswordTimeout)
	defer cancel()

	client, err := onepassword.NewClient(
		ctx,
		onepassword.WithServiceAccountToken(token),
		onepassword.WithIntegrationInfo(onepassword.DefaultIntegrationName, onepassword.DefaultIntegrationVersion),
	)
	if err != nil {
		return nil, hosterr.NewStoreUnavailableError("1password", fmt.Errorf("error creating 1Password client: %w", err))
	}
	return NewOnePasswordStoreWithResolver(client.Secrets(), prefix), nil
}

// NewOnePasswordStoreWithResolver creates a OnePasswordStore over resolver.
func NewOnePasswordStoreWithResolver(resolver SecretResolver, prefix string) *OnePasswordStore {
	return &OnePasswordStore{resolver: resolver, prefix: strings.TrimSuffix(prefix, "/")}
}

func (s *OnePasswordStore) reference(key string) (string, bool) {
	if strings.HasPrefix(key, onePasswordScheme) {
		return key, true
	}
	if s.prefix == "" {
		return "", false
	}
	return s.prefix + "/" + key, true
}

// Get implements Store.
func (s *OnePasswordStore) Get(ctx context.Context, key string) ([]byte, error) {
	ref, ok := s.reference(key)
	if !ok {
		return nil, hosterr.NewKeyNotFoundError(key)
	}

	ctx, cancel := context.WithTimeout(ctx, onePasswordTimeout)
	defer cancel()

	secret, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "no item") || strings.Contains(msg, "no field") {
			return nil, hosterr.NewKeyNotFoundError(key)
		}
		return nil, hosterr.NewStoreUnavailableError("1password", fmt.Errorf("error resolving secret %s", key))
	}
	return []byte(secret), nil
}

// Set is not supported.
func (*OnePasswordStore) Set(_ context.Context, key string, _ []byte) error {
	return hosterr.NewPermissionDeniedError("1password store is read-only; cannot set "+key, nil)
}

// Delete is not supported.
func (*OnePasswordStore) Delete(_ context.Context, key string) error {
	return hosterr.NewPermissionDeniedError("1password store is read-only; cannot delete "+key, nil)
}

// ListKeys returns no keys; 1Password items are addressed by reference.
func (*OnePasswordStore) ListKeys(_ context.Context) ([]string, error) {
	return []string{}, nil
}

// Clear is not supported.
func (*OnePasswordStore) Clear(_ context.Context) error {
	return hosterr.NewPermissionDeniedError("1password store is read-only", nil)
}

// Type implements Store.
func (*OnePasswordStore) Type() Type {
	return OnePasswordType
}
