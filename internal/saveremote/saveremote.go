// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package saveremote implements SaveToRemote (§4.5): the worker that
// drains saveToRemote, attaches file bodies read from disk where
// needed, and forwards each Update to the peer over a wire.Stream.
package saveremote

import (
	"context"
	"os"

	"github.com/Recognized/mirror/internal/events"
	"github.com/Recognized/mirror/internal/fsaccess"
	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/wire"
)

var l = logger.DefaultLogger

// Worker drains Queues.SaveToRemote, reading a regular file's body from
// Access when it wasn't already attached, then sends on Stream.
type Worker struct {
	Access fsaccess.FileAccess
	Stream wire.Stream
	Queues *queue.Queues
}

func New(access fsaccess.FileAccess, stream wire.Stream, q *queue.Queues) *Worker {
	return &Worker{Access: access, Stream: stream, Queues: q}
}

// Serve drains the queue until ctx is cancelled or a transport error
// occurs; a transport error is fatal to the session (§7 "Transport
// error": terminate, do not auto-reconnect) and is returned so the
// session's supervisor can tear the rest of the workers down.
func (w *Worker) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-w.Queues.SaveToRemote:
			if err := w.apply(u); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) apply(u wire.Update) error {
	if u.Kind() == wire.KindFile && len(u.Data) == 0 {
		data, err := w.Access.ReadFile(u.Path)
		switch {
		case err == nil:
			u.Data = data
		case os.IsNotExist(err):
			// Vanished between diff and read: transient, drop (§4.5).
			l.Debugf("saveremote: %s vanished before send, dropping", u.Path)
			return nil
		default:
			l.Warnf("saveremote: reading %s: %v", u.Path, err)
			return nil
		}
	}

	u.Local = false
	if err := w.Stream.Send(u); err != nil {
		l.Warnf("saveremote: sending %s: %v", u.Path, err)
		return err
	}
	if !u.IsBodyRequest() {
		events.Default.Log(events.ItemSynced, u.Path)
	}
	return nil
}
