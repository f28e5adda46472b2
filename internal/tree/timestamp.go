// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package tree

import "time"

// literalThreshold is the §3 invariant-4 / §9 exception: modTime values
// below this are left alone (used by tests to express sub-second
// orderings), everything else is quantized to whole seconds. Real
// watchers are not expected to ever produce a value this small; callers
// should not rely on the exception at runtime.
const literalThreshold = 1000

// sanityCheck adjusts modTime for far-future clock skew and quantizes to
// whole seconds, per §4.2 "Timestamp sanity".
func sanityCheck(modTime int64, now func() time.Time) int64 {
	nowMs := now().UnixMilli()
	if modTime > nowMs+time.Hour.Milliseconds() {
		return nowMs - time.Minute.Milliseconds()
	}
	if modTime < literalThreshold {
		return modTime
	}
	return modTime / 1000 * 1000
}
