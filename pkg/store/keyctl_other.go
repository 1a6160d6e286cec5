// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package store

import "errors"

func newKeyctlKeyring() (keyringBackend, error) {
	return nil, errors.New("keyctl is only available on Linux")
}
