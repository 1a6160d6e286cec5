// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package store

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"golang.org/x/sys/unix"
)

// keyctlKeyring stores entries as "user" keys in the kernel user keyring.
// It serves headless hosts where no desktop secret service runs.
type keyctlKeyring struct {
	ringID int
}

func newKeyctlKeyring() (keyringBackend, error) {
	ringID, err := unix.KeyctlGetKeyringID(unix.KEY_SPEC_USER_KEYRING, true)
	if err != nil {
		return nil, fmt.Errorf("could not get user keyring: %w", err)
	}
	// Linking into the process keyring grants possession, which reads need.
	if _, err := unix.KeyctlInt(unix.KEYCTL_LINK, ringID, unix.KEY_SPEC_PROCESS_KEYRING, 0, 0); err != nil {
		return nil, fmt.Errorf("unable to link user keyring to process keyring: %w", err)
	}
	return &keyctlKeyring{ringID: ringID}, nil
}

func keyctlName(service, key string) string {
	return service + ":" + key
}

func (k *keyctlKeyring) Get(service, key string) (string, error) {
	id, err := unix.KeyctlSearch(k.ringID, "user", keyctlName(service, key), 0)
	if err != nil {
		return "", keyring.ErrNotFound
	}
	size, err := unix.KeyctlBuffer(unix.KEYCTL_READ, id, nil, 0)
	if err != nil {
		return "", fmt.Errorf("read of key %q failed: %w", key, err)
	}
	buf := make([]byte, size)
	n, err := unix.KeyctlBuffer(unix.KEYCTL_READ, id, buf, 0)
	if err != nil {
		return "", fmt.Errorf("read of key %q failed: %w", key, err)
	}
	if n > size {
		return "", fmt.Errorf("key %q changed while reading", key)
	}
	return string(buf[:n]), nil
}

func (k *keyctlKeyring) Set(service, key, value string) error {
	if _, err := unix.AddKey("user", keyctlName(service, key), []byte(value), k.ringID); err != nil {
		if errors.Is(err, unix.EDQUOT) || errors.Is(err, unix.EINVAL) {
			return fmt.Errorf("%w: %w", keyring.ErrSetDataTooBig, err)
		}
		return fmt.Errorf("failed to set key %q in user keyring: %w", key, err)
	}
	return nil
}

func (k *keyctlKeyring) Delete(service, key string) error {
	id, err := unix.KeyctlSearch(k.ringID, "user", keyctlName(service, key), 0)
	if err != nil {
		return keyring.ErrNotFound
	}
	if _, err := unix.KeyctlInt(unix.KEYCTL_UNLINK, id, k.ringID, 0, 0); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

func (*keyctlKeyring) Name() string {
	return "Linux keyctl"
}
