// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package tree

import "strings"

// ShouldIgnore walks parents to decide whether this node is ignored
// (§4.3 "Ignore inheritance"), memoizing the verdict per node until a
// .gitignore in scope changes.
func (n Node) ShouldIgnore() bool {
	nn := n.n()
	if nn.shouldIgnoreMemo != nil {
		return *nn.shouldIgnoreMemo
	}

	verdict := n.computeShouldIgnore()
	nn.shouldIgnoreMemo = &verdict
	return verdict
}

func (n Node) computeShouldIgnore() bool {
	if n.IsRoot() {
		return false
	}

	isDir := n.n().local != nil && n.n().local.isDirectory
	if !isDir {
		isDir = n.n().remote != nil && n.n().remote.isDirectory
	}

	ancestorIgnores := false
	if parent, ok := n.Parent(); ok && parent.ShouldIgnore() {
		ancestorIgnores = true
	}
	for anc, ancOK := n.Parent(); !ancestorIgnores && ancOK; anc, ancOK = anc.Parent() {
		if anc.n().ignoreRules == nil {
			continue
		}
		rel := n.pathRelativeTo(anc)
		if anc.n().ignoreRules.Matches(rel, isDir) {
			ancestorIgnores = true
			break
		}
	}

	path := n.Path()
	extraExcluded := n.t.extraExcludes != nil && n.t.extraExcludes.Matches(path, isDir)
	extraIncluded := n.t.extraIncludes != nil && n.t.extraIncludes.Matches(path, isDir)

	return (ancestorIgnores || extraExcluded) && !extraIncluded
}

// pathRelativeTo strips ancestor's path prefix from n's path, per §4.3
// "test this node's path relative to that ancestor".
func (n Node) pathRelativeTo(ancestor Node) string {
	full := n.Path()
	prefix := ancestor.Path()
	if prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, prefix+"/")
}
