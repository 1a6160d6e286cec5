// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/zalando/go-keyring"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
)

// keyringIndexKey holds the JSON list of keys written through the store.
// OS secret services cannot enumerate the entries of a service portably.
const keyringIndexKey = "__toolhost_index__"

const keyringBinaryPrefix = "base64:"

// KeyringStore delegates to the OS secret service under a service name.
// On Linux hosts without a secret service it falls back to the kernel
// keyring. Keys are used verbatim.
type KeyringStore struct {
	mu      sync.Mutex
	service string
	backend keyringBackend
}

// NewKeyringStore creates a KeyringStore for service.
func NewKeyringStore(service string) *KeyringStore {
	return newKeyringStoreWithBackend(service, newSystemKeyring())
}

func newKeyringStoreWithBackend(service string, backend keyringBackend) *KeyringStore {
	return &KeyringStore{service: service, backend: backend}
}

// Get implements Store.
func (s *KeyringStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == keyringIndexKey {
		return nil, hosterr.NewKeyNotFoundError(key)
	}
	raw, err := s.backend.Get(s.service, key)
	if err != nil {
		return nil, s.mapError(key, err)
	}
	return decodeKeyringValue(raw)
}

// Set implements Store.
func (s *KeyringStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == keyringIndexKey {
		return hosterr.NewPermissionDeniedError("key "+key+" is reserved", nil)
	}
	if err := s.backend.Set(s.service, key, encodeKeyringValue(value)); err != nil {
		return s.mapError(key, err)
	}

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	if !slices.Contains(index, key) {
		index = append(index, key)
		if err := s.writeIndex(index); err != nil {
			return err
		}
	}
	logger.Debugw("keyring store key set", "service", s.service, "key", key)
	return nil
}

// Delete implements Store.
func (s *KeyringStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(s.service, key); err != nil {
		return s.mapError(key, err)
	}

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	if i := slices.Index(index, key); i >= 0 {
		return s.writeIndex(slices.Delete(index, i, i+1))
	}
	return nil
}

// ListKeys implements Store.
func (s *KeyringStore) ListKeys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	slices.Sort(index)
	return index, nil
}

// Clear implements Store.
func (s *KeyringStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	for _, key := range index {
		if err := s.backend.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return s.mapError(key, err)
		}
	}
	if err := s.backend.Delete(s.service, keyringIndexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return s.mapError(keyringIndexKey, err)
	}
	return nil
}

// Type implements Store.
func (*KeyringStore) Type() Type {
	return KeyringType
}

func (s *KeyringStore) readIndex() ([]string, error) {
	raw, err := s.backend.Get(s.service, keyringIndexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, s.mapError(keyringIndexKey, err)
	}
	var index []string
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		logger.Warnw("keyring index is corrupt, resetting", "service", s.service)
		return []string{}, nil
	}
	return index, nil
}

func (s *KeyringStore) writeIndex(index []string) error {
	data, err := json.Marshal(index)
	if err != nil {
		return hosterr.NewStoreUnavailableError("keyring", err)
	}
	if err := s.backend.Set(s.service, keyringIndexKey, string(data)); err != nil {
		return s.mapError(keyringIndexKey, err)
	}
	return nil
}

func (*KeyringStore) mapError(key string, err error) error {
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return hosterr.NewKeyNotFoundError(key)
	case errors.Is(err, keyring.ErrSetDataTooBig):
		return hosterr.NewPermissionDeniedError("value for key "+key+" is too large for the keyring", err)
	default:
		return hosterr.NewStoreUnavailableError("keyring", err)
	}
}

// encodeKeyringValue keeps text values readable by other keyring clients and
// base64-encodes binary values.
func encodeKeyringValue(value []byte) string {
	if utf8.Valid(value) && !strings.HasPrefix(string(value), keyringBinaryPrefix) {
		return string(value)
	}
	return keyringBinaryPrefix + base64.StdEncoding.EncodeToString(value)
}

func decodeKeyringValue(raw string) ([]byte, error) {
	if encoded, ok := strings.CutPrefix(raw, keyringBinaryPrefix); ok {
		v, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, hosterr.NewStoreUnavailableError("keyring", errors.New("corrupt binary value"))
		}
		return v, nil
	}
	return []byte(raw), nil
}
