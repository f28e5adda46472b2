// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package fsaccess implements the FileAccess capability consumed by
// SaveToLocal and SaveToRemote (§4.4, §4.5, §6): mkdir/write/delete/
// symlink operations relative to an absolute mount root, plus the read
// side used when forwarding a local file's body to the peer.
package fsaccess

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/osutil"
	"github.com/Recognized/mirror/internal/symlinks"
)

var l = logger.DefaultLogger

// FileAccess is the capability the engine consumes for all filesystem
// I/O; a real Disk implementation and an in-memory fake both satisfy it
// (§4.4 / §9 "Polymorphism of FileWatcher / FileAccess").
type FileAccess interface {
	Mkdir(path string) error
	Write(path string, data []byte, executable bool) error
	Delete(path string, recursive bool) error
	CreateSymlink(path, target string) error
	ReadSymlink(path string) (string, error)
	ReadFile(path string) ([]byte, error)
	SetModifiedTime(path string, modTime time.Time, noFollow bool) error
	Stat(path string) (os.FileInfo, error)
}

// Disk is the real, OS-backed FileAccess implementation. All paths
// passed to its methods are relative to Root, joined with an absolute
// base (§6).
type Disk struct {
	Root string
}

func New(root string) *Disk {
	return &Disk{Root: root}
}

func (d *Disk) abs(rel string) string {
	return filepath.Join(d.Root, filepath.FromSlash(rel))
}

func (d *Disk) Mkdir(path string) error {
	return os.MkdirAll(d.abs(path), 0o777)
}

// Write replaces path's content atomically: the data lands in a
// temporary file in the same directory, then is renamed into place
// (§4.4 "using an atomic replace"), grounded on osutil.AtomicWriter.
// If that fails with a permission error, the pre-existing file is
// forced writable and the write is retried once (§7 "Permission /
// read-only").
func (d *Disk) Write(path string, data []byte, executable bool) error {
	full := d.abs(path)
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}

	write := func(p string) error {
		w, err := osutil.CreateAtomic(p, mode)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		return w.Close()
	}

	err := osutil.InWritableDir(write, full)
	if err != nil && os.IsPermission(err) {
		l.Debugf("fsaccess: %s not writable, forcing and retrying once: %v", path, err)
		if chmodErr := d.ForceWritable(path); chmodErr == nil {
			err = osutil.InWritableDir(write, full)
		}
	}
	return err
}

func (d *Disk) Delete(path string, recursive bool) error {
	full := d.abs(path)
	del := func(p string) error {
		if recursive {
			return os.RemoveAll(p)
		}
		return os.Remove(p)
	}
	err := osutil.InWritableDir(del, full)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (d *Disk) CreateSymlink(path, target string) error {
	full := d.abs(path)
	return osutil.InWritableDir(func(p string) error {
		os.Remove(p)
		return symlinks.Create(p, target)
	}, full)
}

func (d *Disk) ReadSymlink(path string) (string, error) {
	return symlinks.Read(d.abs(path))
}

func (d *Disk) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(d.abs(path))
}

func (d *Disk) Stat(path string) (os.FileInfo, error) {
	return os.Lstat(d.abs(path))
}

// SetModifiedTime sets path's mtime. When noFollow is set (symlinks),
// the platform-specific lutimes variant is used so the link itself,
// not its target, is retouched.
func (d *Disk) SetModifiedTime(path string, modTime time.Time, noFollow bool) error {
	full := d.abs(path)
	if noFollow {
		return lutimes(full, modTime)
	}
	return os.Chtimes(full, modTime, modTime)
}

// CopyInto streams path's content into w, used by SaveToRemote when
// forwarding a file body (§4.5).
func (d *Disk) CopyInto(path string, w io.Writer) error {
	fd, err := os.Open(d.abs(path))
	if err != nil {
		return err
	}
	defer fd.Close()
	_, err = io.Copy(w, fd)
	return err
}

// ForceWritable adds the owner-write bit at path, leaving the rest of
// the mode alone. Called by Write's retry path when the remote side is
// overwriting a file the local side had made read-only (§4.4, §7
// "Permission / read-only").
func (d *Disk) ForceWritable(path string) error {
	full := d.abs(path)
	info, err := os.Lstat(full)
	if err != nil {
		return err
	}
	if info.Mode()&0o200 != 0 {
		return nil
	}
	return os.Chmod(full, info.Mode()|0o200)
}
