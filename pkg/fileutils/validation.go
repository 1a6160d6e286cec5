// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package fileutils

import (
	"fmt"
	"strings"
)

// MaxFileNameLength is the longest file name accepted by ValidateFileName.
const MaxFileNameLength = 200

// ValidateFileName checks that name can be used as a single path element
// inside a managed directory: it must be non-empty, not a dot entry, free of
// separators and NUL bytes, and not start with the temp file prefix used by
// AtomicWriteFile.
func ValidateFileName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("file name cannot be empty")
	case name == "." || name == "..":
		return fmt.Errorf("file name %q is not allowed", name)
	case len(name) > MaxFileNameLength:
		return fmt.Errorf("file name is too long (%d > %d)", len(name), MaxFileNameLength)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("file name %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("file name contains a null byte")
	case strings.HasPrefix(name, ".tmp-"):
		return fmt.Errorf("file name %q uses a reserved prefix", name)
	}
	return nil
}
