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

// Package rules implements a gitignore-style path matcher (PathRules):
// compile a newline-separated rule set once, then test paths against it
// many times. Precedence is last-match-wins, so a later negation
// (`!pattern`) overrides an earlier exclude.
package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gobwas/glob"
)

// Mode controls how a bare pattern (no leading "/") is anchored.
// .gitignore files use ModeRelative: a bare pattern matches at any depth
// below the file's own directory. The mount's configured extra-excludes
// and extra-includes use ModeAnchored: a bare pattern matches only at
// mount root, and callers write "**/pattern" for any-depth matching.
type Mode int

const (
	ModeRelative Mode = iota
	ModeAnchored
)

type rule struct {
	globs   []glob.Glob
	include bool
	dirOnly bool
}

func (ru rule) matches(path string, isDir bool) bool {
	if ru.dirOnly && !isDir {
		return false
	}
	for _, g := range ru.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// PathRules is a compiled, read-only set of gitignore-style rules.
type PathRules struct {
	rules []rule
	// raw is the verbatim source text, kept so two PathRules built from
	// identical text can be compared cheaply (see Equal).
	raw string
}

// Load reads and compiles a rule file from disk, gitignore-style.
func Load(path string) (*PathRules, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return Parse(fd, ModeRelative)
}

// Parse compiles a newline-separated rule set read from r.
func Parse(r io.Reader, mode Mode) (*PathRules, error) {
	var buf strings.Builder
	tee := io.TeeReader(r, &buf)

	pr := &PathRules{}
	scanner := bufio.NewScanner(tee)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ru, err := compile(line, mode)
		if err != nil {
			return nil, fmt.Errorf("rules: invalid pattern %q: %w", line, err)
		}
		pr.rules = append(pr.rules, ru)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	pr.raw = buf.String()
	return pr, nil
}

// ParseString compiles a rule set given directly as a string, convenient
// for the mount-wide extra-includes/excludes loaded from configuration.
func ParseString(s string, mode Mode) (*PathRules, error) {
	return Parse(strings.NewReader(s), mode)
}

func compile(line string, mode Mode) (rule, error) {
	include := true
	if strings.HasPrefix(line, "!") {
		line = line[1:]
		include = false
	}

	anchored := mode == ModeAnchored
	if strings.HasPrefix(line, "/") {
		anchored = true
		line = line[1:]
	}

	dirOnly := false
	if strings.HasSuffix(line, "/") {
		dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	if line == "" {
		return rule{}, fmt.Errorf("empty pattern")
	}

	var patterns []string
	switch {
	case strings.HasPrefix(line, "**/"):
		// The glob "**/x" needs a literal "/" before x; add the bare x
		// so the pattern also matches with zero leading segments.
		patterns = []string{line, strings.TrimPrefix(line, "**/")}
	case anchored:
		patterns = []string{line}
	default:
		// Bare pattern: matches at this level and at any depth below it.
		patterns = []string{line, "**/" + line}
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return rule{}, err
		}
		globs = append(globs, g)
	}

	return rule{globs: globs, include: include, dirOnly: dirOnly}, nil
}

// Matches reports whether relativePath (forward-slash separated, no
// leading slash) is ignored by this rule set. isDirectory selects
// directory-only ("pattern/") rules. The last matching rule wins; an
// empty rule set never matches.
func (p *PathRules) Matches(relativePath string, isDirectory bool) bool {
	if p == nil || len(p.rules) == 0 {
		return false
	}
	result := false
	for _, ru := range p.rules {
		if ru.matches(relativePath, isDirectory) {
			result = ru.include
		}
	}
	return result
}

// Empty reports whether the rule set has no rules at all.
func (p *PathRules) Empty() bool {
	return p == nil || len(p.rules) == 0
}

// Equal reports whether two rule sets were compiled from identical
// source text, used to decide whether a changed .gitignore actually
// changes behavior and needs a subtree invalidation.
func (p *PathRules) Equal(other *PathRules) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.raw == other.raw
}
