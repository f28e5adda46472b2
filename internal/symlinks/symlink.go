// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package symlinks reads and creates symlinks for the engine's
// FileAccess capability. Targets are raw strings, matching
// wire.Update.SymlinkTarget (§3) rather than the teacher's old
// protocol.Flags-tagged representation: this engine has no wire flags,
// just the presence of a non-empty target string.
package symlinks

import (
	"os"
)

// Read returns the raw target of the symlink at path, exactly as
// recorded on disk (no normalization, no following).
func Read(path string) (string, error) {
	return os.Readlink(path)
}

// IsSymlink reports whether path names a symlink without following it.
func IsSymlink(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	return fi.Mode()&os.ModeSymlink != 0, nil
}

// Create makes path a symlink pointing at target. Any pre-existing
// entry at path must be removed by the caller first (mirroring
// SaveToLocal's delete-then-create retype handling, §4.3).
func Create(path, target string) error {
	return os.Symlink(target, path)
}
