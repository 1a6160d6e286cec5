// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/fileutils"
	"github.com/stacklok/toolhost/pkg/logger"
)

const (
	diskDirPerm  = 0o700
	diskFilePerm = 0o600
	diskFileExt  = ".json"
	diskLockFile = ".lock"

	encodingJSON   = "json"
	encodingBase64 = "base64"

	lockTimeout = 5 * time.Second
)

// DefaultDiskPath returns ~/.<app>/store.
func DefaultDiskPath(app string) string {
	if app == "" {
		app = DefaultServiceName
	}
	return filepath.Join(xdg.Home, "."+app, "store")
}

// diskRecord is the JSON document written for each key.
type diskRecord struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Encoding  string          `json:"encoding"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DiskStore persists each normalized key as one file under root. Writes are
// atomic (temp file plus rename) and serialized across processes with a lock
// file in root.
type DiskStore struct {
	mu   sync.Mutex
	root string
	lock *flock.Flock
}

// NewDiskStore creates root with owner-only permissions if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, diskDirPerm); err != nil {
		return nil, mapFSError("failed to create disk store directory", err)
	}
	// MkdirAll leaves the mode of an existing directory untouched
	if err := os.Chmod(root, diskDirPerm); err != nil {
		return nil, mapFSError("failed to restrict disk store directory", err)
	}
	return &DiskStore{
		root: root,
		lock: flock.New(filepath.Join(root, diskLockFile)),
	}, nil
}

// Root returns the store directory.
func (s *DiskStore) Root() string {
	return s.root
}

func (s *DiskStore) path(key string) (string, error) {
	name := NormalizeKey(key) + diskFileExt
	if err := fileutils.ValidateFileName(name); err != nil {
		return "", hosterr.New(hosterr.KindPermissionDenied, "invalid key", err)
	}
	return filepath.Join(s.root, name), nil
}

// Get implements Store.
func (s *DiskStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, hosterr.NewKeyNotFoundError(NormalizeKey(key))
		}
		return nil, mapFSError("failed to read key "+NormalizeKey(key), err)
	}

	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, hosterr.NewStoreUnavailableError("disk", fmt.Errorf("corrupt record for key %s", NormalizeKey(key)))
	}
	return decodeRecord(rec)
}

// Set implements Store.
func (s *DiskStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(key)
	if err != nil {
		return err
	}

	data, err := marshalRecord(encodeRecord(key, value))
	if err != nil {
		return hosterr.NewStoreUnavailableError("disk", err)
	}

	return s.withFileLock(ctx, func() error {
		if err := fileutils.AtomicWriteFile(path, data, diskFilePerm); err != nil {
			return mapFSError("failed to write key "+NormalizeKey(key), err)
		}
		logger.Debugw("disk store key written", "key", NormalizeKey(key))
		return nil
	})
}

// Delete implements Store.
func (s *DiskStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(key)
	if err != nil {
		return err
	}

	return s.withFileLock(ctx, func() error {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return hosterr.NewKeyNotFoundError(NormalizeKey(key))
			}
			return mapFSError("failed to delete key "+NormalizeKey(key), err)
		}
		return nil
	})
}

// ListKeys implements Store. Keys are returned in normalized form.
func (s *DiskStore) ListKeys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listLocked()
}

func (s *DiskStore) listLocked() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, mapFSError("failed to list disk store", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, diskFileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, diskFileExt))
	}
	slices.Sort(keys)
	return keys, nil
}

// Clear implements Store.
func (s *DiskStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(ctx, func() error {
		keys, err := s.listLocked()
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := os.Remove(filepath.Join(s.root, k+diskFileExt)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return mapFSError("failed to delete key "+k, err)
			}
		}
		return nil
	})
}

// Type implements Store.
func (*DiskStore) Type() Type {
	return DiskType
}

func (s *DiskStore) withFileLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return hosterr.NewStoreUnavailableError("disk", fmt.Errorf("failed to acquire lock: %w", err))
	}
	if !locked {
		return hosterr.NewStoreUnavailableError("disk", fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout))
	}
	defer func() { _ = s.lock.Unlock() }()

	return fn()
}

// encodeRecord embeds compact JSON values as-is and base64-encodes anything
// else, so that Get returns exactly the bytes given to Set.
func encodeRecord(key string, value []byte) diskRecord {
	rec := diskRecord{Key: key, UpdatedAt: time.Now().UTC()}
	if len(value) > 0 && json.Valid(value) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, value); err == nil && bytes.Equal(buf.Bytes(), value) {
			rec.Value = value
			rec.Encoding = encodingJSON
			return rec
		}
	}
	encoded, _ := json.Marshal(base64.StdEncoding.EncodeToString(value))
	rec.Value = encoded
	rec.Encoding = encodingBase64
	return rec
}

func marshalRecord(rec diskRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// embedded values must round-trip byte for byte
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(rec diskRecord) ([]byte, error) {
	switch rec.Encoding {
	case encodingJSON:
		return []byte(rec.Value), nil
	case encodingBase64:
		var s string
		if err := json.Unmarshal(rec.Value, &s); err != nil {
			return nil, hosterr.NewStoreUnavailableError("disk", fmt.Errorf("corrupt record for key %s", rec.Key))
		}
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, hosterr.NewStoreUnavailableError("disk", fmt.Errorf("unknown encoding %q", rec.Encoding))
	}
}

func mapFSError(msg string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return hosterr.NewPermissionDeniedError(msg, err)
	}
	return hosterr.New(hosterr.KindStoreUnavailable, msg, err)
}
