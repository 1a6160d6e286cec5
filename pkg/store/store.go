// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store contains the credential stores used by integrations.
//
// A Store is an opaque key to bytes mapping. Stores never interpret or log
// values; only key names appear in log lines and errors.
package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store describes a credential store.
type Store interface {
	// Get returns the value stored under key, or a KeyNotFound error.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces any value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key, returning KeyNotFound if it was absent.
	Delete(ctx context.Context, key string) error
	// ListKeys returns the stored keys in ascending order.
	ListKeys(ctx context.Context) ([]string, error)
	// Clear removes every key owned by the store.
	Clear(ctx context.Context) error
	// Type reports the backend kind.
	Type() Type
}

// Type represents a store backend.
type Type string

const (
	// MemoryType is a non-persistent in-process store.
	MemoryType Type = "memory"

	// EnvironmentType reads and writes the process environment.
	EnvironmentType Type = "environment"

	// DiskType persists each key as a file in a private directory.
	DiskType Type = "disk"

	// KeyringType delegates to the OS secret service.
	KeyringType Type = "keyring"

	// RedisType stores keys in a Redis server.
	RedisType Type = "redis"

	// OnePasswordType resolves op:// references through 1Password. It is read-only.
	OnePasswordType Type = "1password"
)

// DefaultServiceName is the keyring service and default application name.
const DefaultServiceName = "toolhost"

// Config selects and parameterizes a store backend.
type Config struct {
	// Type is the backend kind
	Type Type
	// Path is the disk store root directory
	Path string
	// Name is the keyring service name
	Name string
	// URL is the redis connection URL
	URL string
	// Prefix namespaces keys in the environment, redis and 1password backends
	Prefix string
	// AppName names the host application; it picks the default disk path
	AppName string
}

// NewStore creates a Store for cfg.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case MemoryType, "":
		return NewMemoryStore(), nil
	case EnvironmentType:
		return NewEnvironmentStore(cfg.Prefix), nil
	case DiskType:
		path := cfg.Path
		if path == "" {
			path = DefaultDiskPath(cfg.AppName)
		}
		return NewDiskStore(path)
	case KeyringType:
		name := cfg.Name
		if name == "" {
			name = DefaultServiceName
		}
		return NewKeyringStore(name), nil
	case RedisType:
		return NewRedisStore(ctx, cfg.URL, cfg.Prefix)
	case OnePasswordType:
		return NewOnePasswordStore(ctx, cfg.Prefix)
	default:
		return nil, hosterr.New(hosterr.KindConfiguration, fmt.Sprintf("unknown store type %q", cfg.Type), nil)
	}
}

// NormalizeKey upper-cases key and maps every character that is not an
// ASCII letter or digit to '_'. The environment and disk stores address
// values by normalized keys.
func NormalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
