// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package savelocal implements SaveToLocal (§4.4): the worker that
// drains saveToLocal and applies remote-origin Updates to the mount's
// filesystem via FileAccess.
package savelocal

import (
	"context"
	"time"

	"github.com/Recognized/mirror/internal/fsaccess"
	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/wire"
)

var l = logger.DefaultLogger

// Worker drains Queues.SaveToLocal and applies each Update to Access.
type Worker struct {
	Access fsaccess.FileAccess
	Queues *queue.Queues
}

func New(access fsaccess.FileAccess, q *queue.Queues) *Worker {
	return &Worker{Access: access, Queues: q}
}

func (w *Worker) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-w.Queues.SaveToLocal:
			w.apply(u)
		}
	}
}

func (w *Worker) apply(u wire.Update) {
	if u.Kind() == wire.KindFile && string(u.Data) == wire.InitialSyncMarker {
		// A seed placeholder reaching the write stage means SyncLogic
		// emitted an awaiting-data node without its body: a bug in seed
		// or body-request handling, not a condition to route around
		// (§7 "Invariant violation").
		l.Fatalln("savelocal: initialSyncMarker reached disk write for", u.Path)
	}

	var err error
	switch u.Kind() {
	case wire.KindTombstone:
		// Recursive covers both a file and a directory tombstone; a
		// non-recursive delete of a directory would otherwise fail on
		// ENOTEMPTY (§4.4).
		err = w.Access.Delete(u.Path, true)

	case wire.KindDirectory:
		if err = w.Access.Mkdir(u.Path); err == nil {
			err = w.Access.SetModifiedTime(u.Path, modTimeOf(u), false)
		}

	case wire.KindSymlink:
		if err = w.Access.CreateSymlink(u.Path, u.SymlinkTarget); err == nil {
			err = w.Access.SetModifiedTime(u.Path, modTimeOf(u), true)
		}

	case wire.KindFile:
		if err = w.Access.Write(u.Path, u.Data, u.IsExecutable); err == nil {
			err = w.Access.SetModifiedTime(u.Path, modTimeOf(u), false)
		}
	}

	if err != nil {
		l.Warnf("savelocal: %s: %v", u.Path, err)
		return
	}

	if !w.Queues.PutCommitted(queue.CommitEvent{Path: u.Path, ModTime: u.ModTime}) {
		return
	}
}

func modTimeOf(u wire.Update) time.Time {
	return time.UnixMilli(u.ModTime)
}
