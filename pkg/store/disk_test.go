// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

func newTestDiskStore(t *testing.T) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	return s
}

func TestDiskStore_Contract(t *testing.T) {
	t.Parallel()
	testStoreContract(t, newTestDiskStore(t))
}

func TestDiskStore_Permissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions only")
	}

	s := newTestDiskStore(t)
	require.NoError(t, s.Set(context.Background(), "github.token", []byte("t")))

	dirInfo, err := os.Stat(s.Root())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	fileInfo, err := os.Stat(filepath.Join(s.Root(), "GITHUB_TOKEN.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fileInfo.Mode().Perm())
}

func TestDiskStore_TightensExistingDirectory(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions only")
	}

	root := filepath.Join(t.TempDir(), "store")
	require.NoError(t, os.MkdirAll(root, 0o755))

	_, err := NewDiskStore(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestDiskStore_DurableAcrossInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "store")

	first, err := NewDiskStore(root)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "oauth-github", []byte(`{"access_token":"a","refresh_token":"r"}`)))

	// a fresh instance stands in for a restarted process
	second, err := NewDiskStore(root)
	require.NoError(t, err)
	got, err := second.Get(ctx, "OAUTH_GITHUB")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"access_token":"a","refresh_token":"r"}`), got)
}

func TestDiskStore_ValuesAreVerbatim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestDiskStore(t)

	tests := []struct {
		name  string
		value []byte
	}{
		{"compact json", []byte(`{"a":1}`)},
		{"indented json", []byte("{\n  \"a\": 1\n}")},
		{"json with html characters", []byte(`{"q":"<a&b>"}`)},
		{"json string", []byte(`"abc"`)},
		{"plain text", []byte("abc")},
		{"binary", []byte{0x00, 0xff, 0x10}},
		{"empty", []byte{}},
	}

	for _, tt := range tests {
		key := strings.ReplaceAll(tt.name, " ", "_")
		require.NoError(t, s.Set(ctx, key, tt.value), tt.name)
		got, err := s.Get(ctx, key)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.value, got, tt.name)
	}
}

func TestDiskStore_FileIsJSONDocument(t *testing.T) {
	t.Parallel()

	s := newTestDiskStore(t)
	require.NoError(t, s.Set(context.Background(), "tavily_api_key", []byte("abc")))

	data, err := os.ReadFile(filepath.Join(s.Root(), "TAVILY_API_KEY.json"))
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "tavily_api_key", rec["key"])
	assert.Equal(t, "base64", rec["encoding"])
}

func TestDiskStore_NoTempFilesLeftBehind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestDiskStore(t)
	for range 5 {
		require.NoError(t, s.Set(ctx, "k", []byte("v")))
	}

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), e.Name())
	}
}

func TestDiskStore_CorruptRecord(t *testing.T) {
	t.Parallel()

	s := newTestDiskStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "BROKEN.json"), []byte("not json"), 0o600))

	_, err := s.Get(context.Background(), "broken")
	require.Error(t, err)
	assert.Equal(t, hosterr.KindStoreUnavailable, hosterr.KindOf(err))
}
