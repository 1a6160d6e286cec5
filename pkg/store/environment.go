// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
)

// EnvironmentStore reads and writes process environment variables. Keys are
// normalized and prefixed with an optional prefix. Writes last for the
// lifetime of the process.
type EnvironmentStore struct {
	mu      sync.Mutex
	prefix  string
	written map[string]struct{}
}

// NewEnvironmentStore creates an EnvironmentStore. prefix is normalized the
// same way as keys.
func NewEnvironmentStore(prefix string) *EnvironmentStore {
	if prefix != "" {
		prefix = NormalizeKey(prefix)
	}
	return &EnvironmentStore{
		prefix:  prefix,
		written: make(map[string]struct{}),
	}
}

func (s *EnvironmentStore) varName(key string) string {
	return s.prefix + NormalizeKey(key)
}

// Get implements Store.
func (s *EnvironmentStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.varName(key)
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, hosterr.NewKeyNotFoundError(name)
	}
	return []byte(v), nil
}

// Set implements Store.
func (s *EnvironmentStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.varName(key)
	if err := os.Setenv(name, string(value)); err != nil {
		return hosterr.NewPermissionDeniedError("failed to set environment variable "+name, err)
	}
	s.written[name] = struct{}{}
	logger.Debugw("environment store key set", "key", name)
	return nil
}

// Delete implements Store.
func (s *EnvironmentStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.varName(key)
	if _, ok := os.LookupEnv(name); !ok {
		return hosterr.NewKeyNotFoundError(name)
	}
	if err := os.Unsetenv(name); err != nil {
		return hosterr.NewPermissionDeniedError("failed to unset environment variable "+name, err)
	}
	delete(s.written, name)
	return nil
}

// ListKeys implements Store. Without a prefix every environment variable
// name is listed; with a prefix only matching variables are listed, with
// the prefix stripped.
func (s *EnvironmentStore) ListKeys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if name == "" || !strings.HasPrefix(name, s.prefix) {
			continue
		}
		keys = append(keys, strings.TrimPrefix(name, s.prefix))
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// Clear implements Store. Without a prefix only the variables written
// through this store are removed.
func (s *EnvironmentStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	if s.prefix == "" {
		for name := range s.written {
			names = append(names, name)
		}
	} else {
		for _, kv := range os.Environ() {
			name, _, _ := strings.Cut(kv, "=")
			if strings.HasPrefix(name, s.prefix) {
				names = append(names, name)
			}
		}
	}

	for _, name := range names {
		if err := os.Unsetenv(name); err != nil {
			return hosterr.NewPermissionDeniedError("failed to unset environment variable "+name, err)
		}
		delete(s.written, name)
	}
	return nil
}

// Type implements Store.
func (*EnvironmentStore) Type() Type {
	return EnvironmentType
}
