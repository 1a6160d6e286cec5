// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/stacklok/toolhost/pkg/logger"
)

// keyringBackend is a secret service holding string values per service and
// key. Missing entries are reported as keyring.ErrNotFound.
type keyringBackend interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
	Name() string
}

// osKeyring is the desktop secret service (Keychain, Credential Manager or
// the freedesktop Secret Service).
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }

func (osKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }

func (osKeyring) Delete(service, key string) error { return keyring.Delete(service, key) }

func (osKeyring) Name() string { return "OS keyring" }

const (
	keyringCheckService = "toolhost-keyring-check"
	keyringCheckKey     = "check"
)

// compositeKeyring uses the first of its backends that accepts a write.
// The choice is made once, on first use. When none is usable the first
// backend is kept so its errors reach the caller.
type compositeKeyring struct {
	once     sync.Once
	backends []keyringBackend
	active   keyringBackend
}

func newSystemKeyring() *compositeKeyring {
	backends := []keyringBackend{osKeyring{}}
	if kc, err := newKeyctlKeyring(); err == nil {
		backends = append(backends, kc)
	} else {
		logger.Debugf("Kernel keyring not available: %v", err)
	}
	return &compositeKeyring{backends: backends}
}

func (c *compositeKeyring) pick() keyringBackend {
	c.once.Do(func() {
		for _, b := range c.backends {
			if keyringUsable(b) {
				c.active = b
				logger.Debugw("keyring backend selected", "backend", b.Name())
				return
			}
			logger.Debugw("keyring backend unusable", "backend", b.Name())
		}
		c.active = c.backends[0]
	})
	return c.active
}

func keyringUsable(b keyringBackend) bool {
	if err := b.Set(keyringCheckService, keyringCheckKey, "ok"); err != nil {
		return false
	}
	_ = b.Delete(keyringCheckService, keyringCheckKey)
	return true
}

func (c *compositeKeyring) Get(service, key string) (string, error) {
	return c.pick().Get(service, key)
}

func (c *compositeKeyring) Set(service, key, value string) error {
	return c.pick().Set(service, key, value)
}

func (c *compositeKeyring) Delete(service, key string) error {
	return c.pick().Delete(service, key)
}

func (c *compositeKeyring) Name() string {
	return c.pick().Name()
}
