// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package fsaccess

import (
	"io"
	"os"
	"path"
	"strings"
	"time"
)

type memEntry struct {
	isDir      bool
	target     string // non-empty => symlink
	data       []byte
	executable bool
	modTime    time.Time
}

// Memory is an in-memory FileAccess fake for deterministic tests,
// without touching a real disk (§9 "Tests supply in-memory stubs").
type Memory struct {
	entries map[string]*memEntry
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]*memEntry{"": {isDir: true}}}
}

func (m *Memory) Mkdir(p string) error {
	for _, anc := range ancestors(p) {
		if m.entries[anc] == nil {
			m.entries[anc] = &memEntry{isDir: true}
		}
	}
	m.entries[p] = &memEntry{isDir: true}
	return nil
}

func (m *Memory) Write(p string, data []byte, executable bool) error {
	for _, anc := range ancestors(path.Dir(p)) {
		if anc == "." {
			continue
		}
		if m.entries[anc] == nil {
			m.entries[anc] = &memEntry{isDir: true}
		}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	e := m.entries[p]
	if e == nil {
		e = &memEntry{}
		m.entries[p] = e
	}
	e.isDir = false
	e.target = ""
	e.data = cp
	e.executable = executable
	return nil
}

func (m *Memory) Delete(p string, recursive bool) error {
	if _, ok := m.entries[p]; !ok {
		return nil
	}
	delete(m.entries, p)
	if recursive {
		prefix := p + "/"
		for k := range m.entries {
			if strings.HasPrefix(k, prefix) {
				delete(m.entries, k)
			}
		}
	}
	return nil
}

func (m *Memory) CreateSymlink(p, target string) error {
	m.entries[p] = &memEntry{target: target}
	return nil
}

func (m *Memory) ReadSymlink(p string) (string, error) {
	e, ok := m.entries[p]
	if !ok || e.target == "" {
		return "", os.ErrNotExist
	}
	return e.target, nil
}

func (m *Memory) ReadFile(p string) ([]byte, error) {
	e, ok := m.entries[p]
	if !ok || e.isDir {
		return nil, os.ErrNotExist
	}
	return e.data, nil
}

func (m *Memory) Stat(p string) (os.FileInfo, error) {
	if _, ok := m.entries[p]; !ok {
		return nil, os.ErrNotExist
	}
	return nil, nil
}

func (m *Memory) SetModifiedTime(p string, modTime time.Time, _ bool) error {
	e, ok := m.entries[p]
	if !ok {
		return os.ErrNotExist
	}
	e.modTime = modTime
	return nil
}

func (m *Memory) CopyInto(p string, w io.Writer) error {
	data, err := m.ReadFile(p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (m *Memory) IsExecutable(p string) bool {
	e, ok := m.entries[p]
	return ok && e.executable
}

func (m *Memory) Exists(p string) bool {
	_, ok := m.entries[p]
	return ok
}

func ancestors(p string) []string {
	if p == "" || p == "." {
		return nil
	}
	parts := strings.Split(p, "/")
	var out []string
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}
