// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tree implements UpdateTree: the path-indexed, dual-sided
// metadata store at the center of the engine (spec §3, §4.2). It is an
// arena of nodes addressed by slice index (Design Notes §9) rather than
// a pointer graph, so indices handed out as Node values stay valid
// across mutation.
//
// A Tree is owned exclusively by one SyncLogic worker and is not safe
// for concurrent use (§5 "Shared resources").
package tree

import (
	"errors"
	"strings"
	"time"

	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/rules"
	"github.com/Recognized/mirror/internal/wire"
)

var (
	ErrLeadingSlash  = errors.New("tree: path must not start with /")
	ErrTrailingSlash = errors.New("tree: path must not end with /")
)

var l = logger.DefaultLogger
var debugFacility = logger.DefaultLogger.NewFacility("tree", "update tree diff/decide internals")

// Tree is the path-indexed catalog of local+remote metadata per entry.
type Tree struct {
	nodes []node
	root  nodeIndex

	// extraIncludes/extraExcludes are the mount-wide rules from
	// configuration (§6), anchored at mount root.
	extraIncludes, extraExcludes *rules.PathRules

	now func() time.Time
}

// New creates an empty Tree (just the root node) with the given
// mount-wide include/exclude rule sets.
func New(extraIncludes, extraExcludes *rules.PathRules) *Tree {
	t := &Tree{
		extraIncludes: extraIncludes,
		extraExcludes: extraExcludes,
		now:           time.Now,
	}
	t.nodes = append(t.nodes, node{
		parent:      noIndex,
		childByName: make(map[string]nodeIndex),
	})
	t.root = 0
	rootRec := &record{isDirectory: true}
	t.nodes[t.root].local = rootRec
	t.nodes[t.root].remote = &record{isDirectory: true}
	return t
}

// Root returns a handle to the root node (invariant 2: always a
// directory on both sides, path "").
func (t *Tree) Root() Node { return Node{t: t, idx: t.root} }

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if strings.HasPrefix(path, "/") {
		return nil, ErrLeadingSlash
	}
	if strings.HasSuffix(path, "/") {
		return nil, ErrTrailingSlash
	}
	return strings.Split(path, "/"), nil
}

// Find navigates to the node for path, creating missing intermediate
// nodes (synthetic placeholders with no local/remote content, per
// invariant 1) along the way.
func (t *Tree) Find(path string) (Node, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Node{}, err
	}
	idx := t.root
	for _, seg := range segs {
		idx = t.childOrCreate(idx, seg)
	}
	return Node{t: t, idx: idx}, nil
}

func (t *Tree) childOrCreate(parent nodeIndex, name string) nodeIndex {
	p := &t.nodes[parent]
	if existing, ok := p.childByName[name]; ok {
		return existing
	}
	idx := nodeIndex(len(t.nodes))
	t.nodes = append(t.nodes, node{
		name:        name,
		parent:      parent,
		childByName: make(map[string]nodeIndex),
	})
	// p may be invalidated by the append if it reallocated; refetch.
	p = &t.nodes[parent]
	p.childByName[name] = idx
	p.children = append(p.children, idx)
	return idx
}

func (t *Tree) markDirty(idx nodeIndex) {
	t.nodes[idx].isDirty = true
	for cur := t.nodes[idx].parent; cur != noIndex; cur = t.nodes[cur].parent {
		if t.nodes[cur].hasDirtyDescendant {
			break
		}
		t.nodes[cur].hasDirtyDescendant = true
	}
}

// AddLocal applies a locally-observed Update to the tree (§4.2).
func (t *Tree) AddLocal(u wire.Update) error { return t.add(u, local) }

// AddRemote applies a peer-observed Update to the tree (§4.2).
func (t *Tree) AddRemote(u wire.Update) error { return t.add(u, remote) }

type side int

const (
	local side = iota
	remote
)

func (t *Tree) add(u wire.Update, s side) error {
	if u.Path == "" {
		// Root: never recurse, per §4.2 "If the path is the empty
		// string, do not recurse; set the root slot only."
		t.setSlot(t.root, u, s)
		return nil
	}
	segs, err := splitPath(u.Path)
	if err != nil {
		return err
	}
	idx := t.root
	for _, seg := range segs {
		idx = t.childOrCreate(idx, seg)
	}
	t.setSlot(idx, u, s)
	return nil
}

// VisitDirty does a breadth-first walk from root, invoking fn on every
// dirty node and clearing its dirty bit, descending only into subtrees
// whose hasDirtyDescendant bit is set (also cleared on visit). This is
// the hot path driving the diff pass (§4.2).
func (t *Tree) VisitDirty(fn func(Node)) {
	queue := []nodeIndex{t.root}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]

		n := &t.nodes[idx]
		descend := n.hasDirtyDescendant
		dirty := n.isDirty
		n.hasDirtyDescendant = false
		n.isDirty = false

		if dirty {
			fn(Node{t: t, idx: idx})
		}
		if descend {
			queue = append(queue, n.children...)
		}
	}
}

// VisitAll does an unconditional breadth-first walk of every node.
func (t *Tree) VisitAll(fn func(Node)) {
	queue := []nodeIndex{t.root}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		fn(Node{t: t, idx: idx})
		queue = append(queue, t.nodes[idx].children...)
	}
}

// Visit does an unconditional walk, invoking fn only for nodes matching
// pred, in VisitAll's breadth-first order.
func (t *Tree) Visit(pred func(Node) bool, fn func(Node)) {
	t.VisitAll(func(n Node) {
		if pred(n) {
			fn(n)
		}
	})
}

func (t *Tree) invalidateIgnoreSubtree(idx nodeIndex) {
	n := Node{t: t, idx: idx}
	n.n().shouldIgnoreMemo = nil
	for _, c := range n.Children() {
		t.invalidateIgnoreSubtree(c.idx)
	}
}
