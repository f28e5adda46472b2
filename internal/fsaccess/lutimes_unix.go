// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !windows

package fsaccess

import (
	"time"

	"golang.org/x/sys/unix"
)

// lutimes sets path's mtime without following a symlink, using
// unix.UtimesNanoAt with AT_SYMLINK_NOFOLLOW.
func lutimes(path string, modTime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(modTime.UnixNano()),
		unix.NsecToTimespec(modTime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW)
}
