// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package wire defines the on-the-wire Update message and its XDR framing.
// Update plays the role protocol.FileInfo plays in the teacher: one
// message type carries metadata for every kind of tree entry (file,
// directory, symlink, tombstone), distinguished by the derived Kind.
package wire

// InitialSyncMarker is the sentinel payload used in two places: as the
// seed placeholder for a regular file's Data ("metadata only, body to
// follow on demand") and as the Data of a body-request message. It must
// never reach SaveToLocal as an actual file body.
const InitialSyncMarker = "initialSyncMarker"

// Update is a metadata record for one path, exchanged between the two
// sides of a mount both as seed entries and as live change notifications.
type Update struct {
	// Path is forward-slash separated, relative to the mount root, never
	// leading or trailing a slash. The empty string denotes the mount
	// root itself.
	Path string

	// ModTime is milliseconds since the epoch. Zero is only valid on a
	// delete, where it signals "reuse the previous modTime" to the tree.
	ModTime int64

	IsDirectory bool

	// SymlinkTarget, when non-empty, marks this entry as a symlink; the
	// value is the raw target as recorded on disk (relative to the
	// symlink's parent once rewritten by the watcher).
	SymlinkTarget string

	// IsExecutable only applies to regular files.
	IsExecutable bool

	// Delete is a tombstone marker.
	Delete bool

	// Data is the file body, empty for directories, symlinks, deletes
	// and metadata-only messages. Seed entries for regular files and
	// body-requests carry InitialSyncMarker here instead of a body.
	Data []byte

	// IgnoreString carries the full text of a .gitignore file; only
	// non-empty when Path ends in "/.gitignore" or equals ".gitignore".
	IgnoreString string

	// Local is true when this Update originated on the side holding it;
	// it is flipped to false by SaveToRemote before the Update is put on
	// the wire.
	Local bool
}

// Kind enumerates the four shapes an Update can take, used by diff and
// save logic to branch instead of re-deriving the same three bools
// everywhere (Design Notes §9).
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
	KindTombstone
)

func (u Update) Kind() Kind {
	switch {
	case u.Delete:
		return KindTombstone
	case u.IsDirectory:
		return KindDirectory
	case u.SymlinkTarget != "":
		return KindSymlink
	default:
		return KindFile
	}
}

// IsSeedComplete reports whether this Update is the sentinel that closes
// out a seed stream: empty path, non-zero modTime, nothing else set.
func (u Update) IsSeedComplete() bool {
	return u.Path == "" && !u.IsDirectory && u.SymlinkTarget == "" && !u.Delete && len(u.Data) == 0 && u.ModTime != 0
}

// SeedCompleteMarker builds the seed-complete sentinel Update.
func SeedCompleteMarker(modTime int64) Update {
	return Update{ModTime: modTime}
}

// IsBodyRequest reports whether this Update is a request for the body of
// Path: a metadata-only Update whose Data is the InitialSyncMarker
// sentinel and which carries no other content.
func (u Update) IsBodyRequest() bool {
	return string(u.Data) == InitialSyncMarker && !u.IsDirectory && u.SymlinkTarget == "" && !u.Delete &&
		u.ModTime == 0 && !u.IsExecutable && u.IgnoreString == ""
}

// BodyRequest builds a body-request Update for path.
func BodyRequest(path string) Update {
	return Update{Path: path, Data: []byte(InitialSyncMarker)}
}

// IsKeepAlive reports whether this is the transport-level keep-alive
// probe (§5 "Timeouts"): the zero Update. The other messages with
// Path=="" are the root, which is always a directory, and the
// seed-complete sentinel, which carries a non-zero ModTime, so neither
// collides with the probe.
func (u Update) IsKeepAlive() bool {
	return u.Path == "" && !u.IsDirectory && u.ModTime == 0 && u.SymlinkTarget == "" && !u.Delete && len(u.Data) == 0
}

// KeepAliveProbe builds the keep-alive probe Update.
func KeepAliveProbe() Update {
	return Update{}
}
