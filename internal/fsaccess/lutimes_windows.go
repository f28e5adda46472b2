// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build windows

package fsaccess

import (
	"os"
	"time"
)

// lutimes on Windows falls back to following the link: NTFS reparse
// points don't carry an independently settable mtime the way a Unix
// symlink inode does, so this best-effort touches the target instead.
func lutimes(path string, modTime time.Time) error {
	return os.Chtimes(path, modTime, modTime)
}
