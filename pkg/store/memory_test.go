// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_KeysAreVerbatim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "api-key", []byte("lower")))
	require.NoError(t, s.Set(ctx, "API_KEY", []byte("upper")))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"API_KEY", "api-key"}, keys)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	value := []byte("secret")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = s.Set(ctx, key, []byte(key))
			_, _ = s.Get(ctx, key)
			_, _ = s.ListKeys(ctx)
		}()
	}
	wg.Wait()

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}
