// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

func newTestRedisStore(t *testing.T, prefix string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), prefix)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Contract(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStore(t, "")
	testStoreContract(t, s)
}

func TestRedisStore_PrefixIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newTestRedisStore(t, "app-a:")
	require.NoError(t, mr.Set("app-b:OTHER", "x"))

	require.NoError(t, s.Set(ctx, "TOKEN", []byte("t")))
	assert.True(t, mr.Exists("app-a:TOKEN"))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"TOKEN"}, keys)

	require.NoError(t, s.Clear(ctx))
	assert.True(t, mr.Exists("app-b:OTHER"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	t.Parallel()

	s, mr := newTestRedisStore(t, "")
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, hosterr.KindStoreUnavailable, hosterr.KindOf(err))
}

func TestNewRedisStore_BadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(context.Background(), "not a url", "")
	require.Error(t, err)
	assert.True(t, hosterr.IsConfiguration(err))
}
