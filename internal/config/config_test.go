// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"strings"
	"testing"
)

func TestParseMountList(t *testing.T) {
	doc := `
mounts:
  - mountRoot: /home/user/project
    remoteRoot: /srv/project
    mountKey: project-1
    listen: ":22001"
    excludes:
      - "*.log"
`
	f, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Mounts) != 1 {
		t.Fatalf("expected 1 mount, got %d", len(f.Mounts))
	}
	m := f.Mounts[0]
	if m.MountRoot != "/home/user/project" || m.MountKey != "project-1" {
		t.Fatalf("unexpected mount: %+v", m)
	}
}

func TestValidateRejectsBadMountKey(t *testing.T) {
	m := Mount{MountRoot: "/x", MountKey: "has a space"}
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for mount key with a space")
	}
}

func TestValidateRequiresMountRoot(t *testing.T) {
	m := Mount{MountKey: "ok"}
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for missing mountRoot")
	}
}

func TestValidateRequiresListenOrConnect(t *testing.T) {
	m := Mount{MountRoot: "/x", MountKey: "ok"}
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for missing listen/connect")
	}
	m.Listen = ":22001"
	if err := m.Validate(); err != nil {
		t.Fatalf("unexpected error once listen is set: %v", err)
	}
}

func TestCompiledRulesDefaultExcludesTarget(t *testing.T) {
	m := Mount{MountRoot: "/x", MountKey: "ok"}
	_, excludes, err := m.CompiledRules()
	if err != nil {
		t.Fatal(err)
	}
	if !excludes.Matches("target", true) {
		t.Fatal("expected default excludes to ignore target/ directories")
	}
}
