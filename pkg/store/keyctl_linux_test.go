// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyctlKeyring_RoundTrip(t *testing.T) {
	t.Parallel()

	kc, err := newKeyctlKeyring()
	if err != nil {
		t.Skipf("kernel keyring not available: %v", err)
	}
	if !keyringUsable(kc) {
		t.Skip("kernel keyring rejects writes")
	}

	service := "toolhost-test-" + t.Name()
	require.NoError(t, kc.Set(service, "k", "v1"))
	t.Cleanup(func() { _ = kc.Delete(service, "k") })

	got, err := kc.Get(service, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	require.NoError(t, kc.Set(service, "k", "v2"))
	got, err = kc.Get(service, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	require.NoError(t, kc.Delete(service, "k"))
	_, err = kc.Get(service, "k")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
	assert.ErrorIs(t, kc.Delete(service, "k"), keyring.ErrNotFound)
}

func TestKeyctlKeyring_BacksKeyringStore(t *testing.T) {
	t.Parallel()

	kc, err := newKeyctlKeyring()
	if err != nil || !keyringUsable(kc) {
		t.Skip("kernel keyring not available")
	}

	s := newKeyringStoreWithBackend("toolhost-test-"+t.Name(), kc)
	t.Cleanup(func() { _ = s.Clear(context.Background()) })
	testStoreContract(t, s)
}
