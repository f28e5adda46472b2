// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config holds the per-mount configuration surface described in
// spec §6: a mount root, an advisory remote root sent at handshake, the
// include/exclude ignore rule sets, debug-logging prefixes, and the
// mount key used to match sessions on either side.
package config

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/Recognized/mirror/internal/rules"
)

var mountKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Mount is one mount's configuration, as recognized by Session
// construction (§6). Listen/Connect select cmd/mirrord's concrete TCP
// transport for this mount; the abstract Session/Stream boundary
// itself carries none of this (§1 "the concrete RPC transport...is out
// of scope"), but the daemon entrypoint still needs to open one.
type Mount struct {
	MountRoot     string   `yaml:"mountRoot"`
	RemoteRoot    string   `yaml:"remoteRoot"`
	Includes      []string `yaml:"includes"`
	Excludes      []string `yaml:"excludes"`
	DebugPrefixes []string `yaml:"debugPrefixes"`
	MountKey      string   `yaml:"mountKey"`

	// Listen, when set, accepts one inbound connection per restart at
	// this address. Connect, when set, dials out instead. Exactly one
	// of the two mounts pairing on a given key should set Listen and
	// the other Connect.
	Listen  string `yaml:"listen"`
	Connect string `yaml:"connect"`
}

// File is the top-level YAML document read by cmd/mirrord: a list of
// mount definitions.
type File struct {
	Mounts []Mount `yaml:"mounts"`
}

// defaultExcludes is applied when a mount's Excludes list is empty, per
// §6 "excludes: PathRules (default includes target/)".
var defaultExcludes = []string{"target/"}

// Validate checks the mount key pattern and that a mount root was given.
func (m Mount) Validate() error {
	if m.MountRoot == "" {
		return fmt.Errorf("config: mountRoot is required")
	}
	if m.MountKey == "" {
		return fmt.Errorf("config: mountKey is required")
	}
	if !mountKeyPattern.MatchString(m.MountKey) {
		return fmt.Errorf("config: mountKey %q must match [A-Za-z0-9_-]+", m.MountKey)
	}
	if m.Listen == "" && m.Connect == "" {
		return fmt.Errorf("config: mount %q: one of listen or connect is required", m.MountKey)
	}
	return nil
}

// CompiledRules compiles this mount's includes/excludes, anchored at
// mount root per §4.1 ("Rules added via the config's extra-excludes are
// anchored at mount root").
func (m Mount) CompiledRules() (includes, excludes *rules.PathRules, err error) {
	excludeLines := m.Excludes
	if len(excludeLines) == 0 {
		excludeLines = defaultExcludes
	}
	includes, err = rules.ParseString(joinLines(m.Includes), rules.ModeAnchored)
	if err != nil {
		return nil, nil, fmt.Errorf("config: includes: %w", err)
	}
	excludes, err = rules.ParseString(joinLines(excludeLines), rules.ModeAnchored)
	if err != nil {
		return nil, nil, fmt.Errorf("config: excludes: %w", err)
	}
	return includes, excludes, nil
}

func joinLines(lines []string) string {
	var out string
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// Parse reads a mount-list YAML document.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return File{}, fmt.Errorf("config: parse: %w", err)
	}
	for i, m := range f.Mounts {
		if err := m.Validate(); err != nil {
			return File{}, fmt.Errorf("config: mount %d: %w", i, err)
		}
	}
	return f, nil
}

// LoadFile reads and parses a mount-list YAML document from path.
func LoadFile(path string) (File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fd.Close()
	return Parse(fd)
}
