// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

package rules

import "testing"

func mustParse(t *testing.T, s string, mode Mode) *PathRules {
	t.Helper()
	pr, err := ParseString(s, mode)
	if err != nil {
		t.Fatalf("ParseString(%q): %v", s, err)
	}
	return pr
}

func TestEmptyMatchesNothing(t *testing.T) {
	pr := mustParse(t, "", ModeRelative)
	if pr.Matches("anything", false) {
		t.Error("empty rule set should never match")
	}
	if !pr.Empty() {
		t.Error("Empty() should be true")
	}
}

func TestBasicExclude(t *testing.T) {
	pr := mustParse(t, "*.tmp", ModeRelative)
	cases := map[string]bool{
		"foo.tmp":       true,
		"sub/foo.tmp":   true,
		"foo.tmp.bak":   false,
		"foo.txt":       false,
	}
	for path, want := range cases {
		if got := pr.Matches(path, false); got != want {
			t.Errorf("Matches(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestNegationLastMatchWins(t *testing.T) {
	pr := mustParse(t, "*.tmp\n!keep.tmp", ModeRelative)
	if pr.Matches("keep.tmp", false) {
		t.Error("keep.tmp should be un-ignored by the later negation")
	}
	if !pr.Matches("drop.tmp", false) {
		t.Error("drop.tmp should still be ignored")
	}

	// A later re-exclude should win back over an earlier negation.
	pr2 := mustParse(t, "!*.tmp\nbad.tmp", ModeRelative)
	if pr2.Matches("other.tmp", false) {
		t.Error("other.tmp should not be ignored (only bad.tmp is)")
	}
	if !pr2.Matches("bad.tmp", false) {
		t.Error("bad.tmp should be ignored by the final rule")
	}
}

func TestDirectoryOnly(t *testing.T) {
	pr := mustParse(t, "build/", ModeRelative)
	if !pr.Matches("build", true) {
		t.Error("build/ should match the directory")
	}
	if pr.Matches("build", false) {
		t.Error("build/ should not match a file of the same name")
	}
}

func TestAnchoredLeadingSlash(t *testing.T) {
	pr := mustParse(t, "/root.txt", ModeRelative)
	if !pr.Matches("root.txt", false) {
		t.Error("root.txt should match at root")
	}
	if pr.Matches("sub/root.txt", false) {
		t.Error("/root.txt should not match in a subdirectory")
	}
}

func TestDoubleStarAnyDepth(t *testing.T) {
	pr := mustParse(t, "**/generated", ModeRelative)
	if !pr.Matches("generated", true) {
		t.Error("**/generated should match at root too")
	}
	if !pr.Matches("a/b/c/generated", true) {
		t.Error("**/generated should match at any depth")
	}
}

func TestSingleStarDoesNotCrossSlash(t *testing.T) {
	pr := mustParse(t, "/a*c", ModeRelative)
	if !pr.Matches("abc", false) {
		t.Error("a*c should match abc")
	}
	if pr.Matches("a/c", false) {
		t.Error("single * must not cross a path separator")
	}
}

func TestAnchoredMode(t *testing.T) {
	// In ModeAnchored (mount-wide extra-excludes), a bare pattern only
	// matches at mount root; "**/" must be written explicitly for
	// any-depth matching.
	pr := mustParse(t, "target", ModeAnchored)
	if !pr.Matches("target", true) {
		t.Error("bare pattern should match at root in ModeAnchored")
	}
	if pr.Matches("sub/target", true) {
		t.Error("bare pattern should not match at depth in ModeAnchored")
	}

	pr2 := mustParse(t, "**/target", ModeAnchored)
	if !pr2.Matches("sub/target", true) {
		t.Error("**/target should match at depth even in ModeAnchored")
	}
}

func TestEqual(t *testing.T) {
	a := mustParse(t, "*.tmp\n", ModeRelative)
	b := mustParse(t, "*.tmp\n", ModeRelative)
	c := mustParse(t, "*.bak\n", ModeRelative)
	if !a.Equal(b) {
		t.Error("identical rule text should be Equal")
	}
	if a.Equal(c) {
		t.Error("different rule text should not be Equal")
	}
}

func TestCommentsAndBlankLines(t *testing.T) {
	pr := mustParse(t, "# comment\n\n*.tmp\n", ModeRelative)
	if !pr.Matches("a.tmp", false) {
		t.Error("comments and blank lines should be skipped, not compiled")
	}
}
