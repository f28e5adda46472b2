// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package tree

import (
	"github.com/Recognized/mirror/internal/rules"
	"github.com/Recognized/mirror/internal/wire"
)

// setSlot implements the §4.2 "Slot-write rules" for one side of one
// node.
func (t *Tree) setSlot(idx nodeIndex, u wire.Update, s side) {
	n := &t.nodes[idx]
	prior := n.local
	if s == remote {
		prior = n.remote
	}

	rec := recordOf(u)
	rec.modTime = sanityCheck(rec.modTime, t.now)

	if prior != nil {
		switch {
		case rec.delete && rec.modTime == 0:
			// §3 invariant 5 / §4.2: delete marker preserves the
			// previous modTime rather than the event's zero value.
			rec.modTime = prior.modTime

		case prior.isDirectory && rec.isDirectory:
			// §3 invariant 6: directory modTime is pinned to its
			// first-seen value.
			rec.modTime = prior.modTime

		case prior.delete && !rec.delete && rec.modTime <= prior.modTime:
			// §3 invariant 7: restored file must beat its own
			// tombstone.
			rec.modTime = prior.modTime + 1000

		case !prior.delete && rec.delete && rec.modTime < prior.modTime:
			// A delete stamped earlier than the live file it deletes
			// is moved just past it. A delete with the same modTime is
			// left as is, and newerThan's tie-break favors the live file.
			rec.modTime = prior.modTime + 1000
		}
	}

	cascade := (prior != nil && prior.isDirectory && !rec.isDirectory) || rec.delete

	if s == local {
		n.local = &rec
	} else {
		n.remote = &rec
	}

	if cascade {
		t.deleteDescendants(idx, s)
	}

	if n.name == ".gitignore" {
		t.onGitignoreChanged(idx)
	}

	t.markDirty(idx)
}

// deleteDescendants cascades a delete/retype down the subtree rooted at
// idx on side s, preserving each descendant's prior modTime (§3
// invariant 8).
func (t *Tree) deleteDescendants(idx nodeIndex, s side) {
	for _, childIdx := range t.nodes[idx].children {
		child := &t.nodes[childIdx]
		prior := child.local
		if s == remote {
			prior = child.remote
		}
		if prior == nil || prior.delete {
			continue
		}
		rec := record{modTime: prior.modTime, delete: true}
		if s == local {
			child.local = &rec
		} else {
			child.remote = &rec
		}
		t.markDirty(childIdx)
		t.deleteDescendants(childIdx, s)
	}
}

// onGitignoreChanged updates the parent directory's compiled ignore
// rules from whichever side of this .gitignore node is newer, and
// invalidates the memoized shouldIgnore verdict for every descendant of
// that parent (§4.2).
func (t *Tree) onGitignoreChanged(idx nodeIndex) {
	parentIdx := t.nodes[idx].parent
	if parentIdx == noIndex {
		return
	}

	n := &t.nodes[idx]
	var text string
	if newerThan(n.remote, n.local) {
		if n.remote != nil {
			text = n.remote.ignoreString
		}
	} else if n.local != nil {
		text = n.local.ignoreString
	}

	pr, err := rules.ParseString(text, rules.ModeRelative)
	if err != nil {
		l.Warnf("tree: invalid .gitignore contents, ignoring: %v", err)
		return
	}

	parent := &t.nodes[parentIdx]
	if parent.ignoreRules.Equal(pr) {
		return
	}
	parent.ignoreRules = pr
	t.invalidateIgnoreSubtree(parentIdx)
}

// newerThan reports whether a is newer than b per §4.2 "Newer-than
// comparison", without the additional diff-pass suppression rules
// (directory-mtime noise, no-op deletes) — those live in IsLocalNewer /
// IsRemoteNewer.
func newerThan(a, b *record) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	if a.modTime == b.modTime {
		if a.delete && !b.delete {
			return false
		}
		if !a.delete && b.delete {
			return true
		}
		return false
	}
	return a.modTime > b.modTime
}

// suppressSync reports whether a sync action should be withheld even
// though a registers as newer than b: a no-op delete, or directory-mtime
// noise between two live directories.
func suppressSync(a, b *record) bool {
	if a.delete && (b == nil || b.delete) {
		return true
	}
	if !a.delete && a.isDirectory && b != nil && !b.delete && b.isDirectory {
		return true
	}
	return false
}

// IsLocalNewer reports whether this node's local side should win over
// its remote side (§4.2/§4.3 diff pass).
func (n Node) IsLocalNewer() bool {
	nn := n.n()
	return newerThan(nn.local, nn.remote) && !suppressSync(nn.local, nn.remote)
}

// IsRemoteNewer reports whether this node's remote side should win over
// its local side.
func (n Node) IsRemoteNewer() bool {
	nn := n.n()
	return newerThan(nn.remote, nn.local) && !suppressSync(nn.remote, nn.local)
}

// DifferentTypes reports whether the two sides currently disagree on
// entry type (a retype in flight), requiring a delete-then-create
// sequence per §4.3.
func (n Node) DifferentTypes() bool {
	nn := n.n()
	if nn.local == nil || nn.remote == nil {
		return false
	}
	if nn.local.delete || nn.remote.delete {
		return false
	}
	return nn.local.typ() != nn.remote.typ()
}
