// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package tree

import (
	"strings"

	"github.com/Recognized/mirror/internal/rules"
	"github.com/Recognized/mirror/internal/wire"
)

// Type is the derived shape of a node on one side, per §3.
type Type int

const (
	TypeAbsent Type = iota
	TypeFile
	TypeDirectory
	TypeSymlink
)

type nodeIndex int32

const noIndex nodeIndex = -1

// record is the stored half of an Update: everything except Path, which
// is reconstructed on demand by walking parents (invariant 3).
type record struct {
	modTime       int64
	isDirectory   bool
	symlinkTarget string
	isExecutable  bool
	delete        bool
	ignoreString  string
	awaitingData  bool // remote wins, is a regular file, but body hasn't arrived yet
}

func recordOf(u wire.Update) record {
	return record{
		modTime:       u.ModTime,
		isDirectory:   u.IsDirectory,
		symlinkTarget: u.SymlinkTarget,
		isExecutable:  u.IsExecutable,
		delete:        u.Delete,
		ignoreString:  u.IgnoreString,
	}
}

func (r *record) typ() Type {
	switch {
	case r == nil:
		return TypeAbsent
	case r.isDirectory:
		return TypeDirectory
	case r.symlinkTarget != "":
		return TypeSymlink
	default:
		return TypeFile
	}
}

type node struct {
	name       string
	parent     nodeIndex
	children   []nodeIndex
	childByName map[string]nodeIndex

	local, remote *record

	ignoreRules *rules.PathRules

	isDirty            bool
	hasDirtyDescendant bool

	shouldIgnoreMemo    *bool
}

// Node is a read/write handle onto one entry of a Tree. It is cheap to
// copy and stays valid for the lifetime of the Tree (arena indices are
// never reused within a session, per §3 "Lifecycle").
type Node struct {
	t   *Tree
	idx nodeIndex
}

func (n Node) n() *node { return &n.t.nodes[n.idx] }

// Path reconstructs the forward-slash path of this node by walking
// parents to the root.
func (n Node) Path() string {
	if n.idx == n.t.root {
		return ""
	}
	var parts []string
	for idx := n.idx; idx != n.t.root; idx = n.t.nodes[idx].parent {
		parts = append(parts, n.t.nodes[idx].name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

func (n Node) Name() string { return n.n().name }

func (n Node) IsRoot() bool { return n.idx == n.t.root }

func (n Node) IsDirty() bool { return n.n().isDirty }

func (n Node) HasDirtyDescendant() bool { return n.n().hasDirtyDescendant }

// LocalUpdate/RemoteUpdate reconstruct a full wire.Update for the given
// side, with Path filled back in, or ok=false if that side has never
// been populated (a synthetic placeholder ancestor).
func (n Node) LocalUpdate() (wire.Update, bool) { return n.sideUpdate(n.n().local) }
func (n Node) RemoteUpdate() (wire.Update, bool) { return n.sideUpdate(n.n().remote) }

func (n Node) sideUpdate(r *record) (wire.Update, bool) {
	if r == nil {
		return wire.Update{}, false
	}
	return wire.Update{
		Path:          n.Path(),
		ModTime:       r.modTime,
		IsDirectory:   r.isDirectory,
		SymlinkTarget: r.symlinkTarget,
		IsExecutable:  r.isExecutable,
		Delete:        r.delete,
		IgnoreString:  r.ignoreString,
	}, true
}

func (n Node) LocalType() Type  { return n.n().local.typ() }
func (n Node) RemoteType() Type { return n.n().remote.typ() }

// AwaitingData reports whether this node is a remote-wins regular file
// whose body hasn't arrived yet (§4.3's "awaiting-data" state).
func (n Node) AwaitingData() bool {
	r := n.n().remote
	return r != nil && r.awaitingData
}

func (n Node) SetAwaitingData(v bool) {
	r := n.n().remote
	if r != nil {
		r.awaitingData = v
	}
}

// Children returns the node's children in insertion order.
func (n Node) Children() []Node {
	ch := n.n().children
	out := make([]Node, len(ch))
	for i, idx := range ch {
		out[i] = Node{t: n.t, idx: idx}
	}
	return out
}

func (n Node) Parent() (Node, bool) {
	p := n.n().parent
	if p == noIndex {
		return Node{}, false
	}
	return Node{t: n.t, idx: p}, true
}
