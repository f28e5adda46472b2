// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package watch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/Recognized/mirror/internal/wire"
)

// FSWatcher is the OS-native FileWatcher backend, grounded on the
// teacher's metadata-only walk (internal/scanner/walk.go) for the
// initial snapshot and on fsnotify for live notifications. The
// teacher's own watcher, github.com/syncthing/notify, is a private
// fork not independently fetchable outside its module; fsnotify plays
// the same role here (see DESIGN.md).
type FSWatcher struct {
	root string
	w    *fsnotify.Watcher
	stop chan struct{}
}

func NewFSWatcher(root string) (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FSWatcher{root: root, w: w, stop: make(chan struct{})}, nil
}

func (f *FSWatcher) OnStart() {}

func (f *FSWatcher) OnStop() {
	close(f.stop)
	f.w.Close()
}

// PerformInitialScan walks the mount root, subscribing every directory
// it finds to fsnotify along the way, and returns one Update per entry.
// It follows no symlinks (os.Lstat, not os.Stat).
func (f *FSWatcher) PerformInitialScan() ([]wire.Update, error) {
	if err := checkDir(f.root); err != nil {
		return nil, err
	}

	var out []wire.Update
	err := filepath.Walk(f.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			l.Debugf("watch: %s: %v", p, err)
			return nil
		}
		if info.IsDir() {
			if watchErr := f.w.Add(p); watchErr != nil {
				l.Infof("watch: failed to watch %s: %v", p, watchErr)
			}
		}
		if p == f.root {
			return nil
		}
		rel, relErr := filepath.Rel(f.root, p)
		if relErr != nil {
			l.Debugf("watch: rel error: %s: %v", p, relErr)
			return nil
		}
		u, ok, updErr := f.updateFor(filepath.ToSlash(rel), p, info)
		if updErr != nil {
			l.Debugf("watch: %s: %v", rel, updErr)
			return nil
		}
		if ok {
			out = append(out, u)
		}
		return nil
	})
	return out, err
}

// RunOneLoop blocks until fsnotify reports something, or the watcher is
// stopped, translating the next batch of raw events into Updates. A
// single fsnotify event can expand into many Updates (a directory
// created by a move brings its whole subtree with it), so the full
// batch is returned rather than one Update at a time.
func (f *FSWatcher) RunOneLoop() ([]wire.Update, time.Duration, bool) {
	select {
	case ev, open := <-f.w.Events:
		if !open {
			return nil, 0, false
		}
		return f.handleEvent(ev), 0, true
	case err, open := <-f.w.Errors:
		if !open {
			return nil, 0, false
		}
		l.Infof("watch: %v", err)
		return nil, 0, true
	case <-f.stop:
		return nil, 0, false
	}
}

func (f *FSWatcher) handleEvent(ev fsnotify.Event) []wire.Update {
	rel, err := filepath.Rel(f.root, ev.Name)
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		f.w.Remove(ev.Name)
		return []wire.Update{{Path: rel, Delete: true}}
	}

	info, err := os.Lstat(ev.Name)
	if err != nil {
		// Vanished between the notification and the stat: a transient
		// race, not an error (§7 "Transient I/O").
		l.Debugf("watch: %s: %v", rel, err)
		return nil
	}

	u, ok, err := f.updateFor(rel, ev.Name, info)
	if err != nil {
		l.Debugf("watch: %s: %v", rel, err)
		return nil
	}
	if !ok {
		return nil
	}

	if !info.IsDir() {
		return []wire.Update{u}
	}

	if watchErr := f.w.Add(ev.Name); watchErr != nil {
		l.Infof("watch: failed to watch %s: %v", rel, watchErr)
	}
	if ev.Op&fsnotify.Create == 0 {
		return []wire.Update{u}
	}

	// A directory freshly created may already contain a subtree (moved
	// or copied into place in one step); pick that up now rather than
	// waiting for per-child events that may never individually fire.
	out := []wire.Update{u}
	out = append(out, f.scanInto(ev.Name)...)
	return out
}

func (f *FSWatcher) scanInto(dir string) []wire.Update {
	var out []wire.Update
	filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || p == dir {
			return nil
		}
		if info.IsDir() {
			if watchErr := f.w.Add(p); watchErr != nil {
				l.Infof("watch: failed to watch %s: %v", p, watchErr)
			}
		}
		rel, relErr := filepath.Rel(f.root, p)
		if relErr != nil {
			return nil
		}
		u, ok, updErr := f.updateFor(filepath.ToSlash(rel), p, info)
		if updErr == nil && ok {
			out = append(out, u)
		}
		return nil
	})
	return out
}

func (f *FSWatcher) updateFor(rel, full string, info os.FileInfo) (wire.Update, bool, error) {
	u := wire.Update{Path: rel, ModTime: info.ModTime().UnixMilli()}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(full)
		if err != nil {
			return wire.Update{}, false, err
		}
		u.SymlinkTarget = rewriteSymlinkTarget(f.root, rel, target)
	case info.IsDir():
		u.IsDirectory = true
	case info.Mode().IsRegular():
		u.IsExecutable = info.Mode()&0o111 != 0
		if filepath.Base(rel) == ".gitignore" {
			if data, err := os.ReadFile(full); err == nil && utf8.Valid(data) {
				u.IgnoreString = string(data)
			}
		}
	default:
		// Device files, sockets, etc: not representable, silently skip.
		return wire.Update{}, false, nil
	}
	return u, true, nil
}

// rewriteSymlinkTarget rewrites an absolute on-disk target that falls
// inside root to be relative to the symlink's own parent directory
// (§6), so the receiving side doesn't leak the sender's absolute
// filesystem layout. Targets outside root, or already relative, pass
// through unchanged.
func rewriteSymlinkTarget(root, rel, target string) string {
	if !filepath.IsAbs(target) {
		return target
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return target
	}
	relTarget, err := filepath.Rel(absRoot, target)
	if err != nil || relTarget == ".." || strings.HasPrefix(relTarget, ".."+string(filepath.Separator)) {
		return target
	}
	parentDir := filepath.Dir(filepath.Join(absRoot, rel))
	relToParent, err := filepath.Rel(parentDir, filepath.Join(absRoot, relTarget))
	if err != nil {
		return target
	}
	return filepath.ToSlash(relToParent)
}

func checkDir(dir string) error {
	info, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New(dir + ": not a directory")
	}
	return nil
}
