// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

func TestKeyringStore_Contract(t *testing.T) { //nolint:paralleltest // keyring mock is global
	keyring.MockInit()
	testStoreContract(t, NewKeyringStore("toolhost-test"))
}

func TestKeyringStore_BinaryAndPrefixedValues(t *testing.T) { //nolint:paralleltest // keyring mock is global
	keyring.MockInit()
	ctx := context.Background()
	s := NewKeyringStore("toolhost-test")

	for _, v := range [][]byte{{0xff, 0x00}, []byte("base64:looks-encoded"), []byte("text")} {
		require.NoError(t, s.Set(ctx, "k", v))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestKeyringStore_IndexKeyIsReserved(t *testing.T) { //nolint:paralleltest // keyring mock is global
	keyring.MockInit()
	ctx := context.Background()
	s := NewKeyringStore("toolhost-test")

	err := s.Set(ctx, keyringIndexKey, []byte("x"))
	assert.True(t, hosterr.IsPermissionDenied(err))

	_, err = s.Get(ctx, keyringIndexKey)
	assert.True(t, hosterr.IsKeyNotFound(err))
}

func TestKeyringStore_BackendFailure(t *testing.T) { //nolint:paralleltest // keyring mock is global
	keyring.MockInitWithError(errors.New("dbus unavailable"))
	t.Cleanup(keyring.MockInit)

	_, err := newKeyringStoreWithBackend("toolhost-test", osKeyring{}).Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, hosterr.KindStoreUnavailable, hosterr.KindOf(err))
}
