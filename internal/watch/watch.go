// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package watch implements the FileWatcher capability (§6) and the
// worker that pumps its output onto a session's incoming queue.
package watch

import (
	"context"
	"time"

	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/wire"
)

var l = logger.DefaultLogger

// FileWatcher is the capability SyncLogic's local side consumes (§6,
// §9 "Polymorphism of FileWatcher / FileAccess"): a polling or OS-native
// backend, or an in-memory stub for tests, all plug in the same way.
//
// RunOneLoop departs from a bare "invoked repeatedly, no return value"
// shape by returning the batch of Updates it produced: a backend may
// discover several at once (e.g. a directory moved into the mount
// brings its whole subtree), and funnelling them through a side
// channel drained out-of-band risks a deadlock against a host that
// calls RunOneLoop synchronously. ok is false once the watcher source
// is exhausted or closed and the host should stop calling it.
type FileWatcher interface {
	PerformInitialScan() ([]wire.Update, error)
	OnStart()
	OnStop()
	RunOneLoop() (updates []wire.Update, next time.Duration, ok bool)
}

// Pump is the "task host" of §6: it owns one FileWatcher, drives its
// lifecycle and its RunOneLoop loop, and forwards every Update it
// produces onto a session's incoming queue tagged Local. It implements
// suture.Service so a session's supervisor can restart it.
type Pump struct {
	Watcher FileWatcher
	Queues  *queue.Queues
}

func NewPump(w FileWatcher, q *queue.Queues) *Pump {
	return &Pump{Watcher: w, Queues: q}
}

// Serve runs the watcher standalone: lifecycle, seed, then loop until
// ctx is cancelled or the source is exhausted. A session that needs the
// seed list itself (to stream it to a peer, §4.6) calls Seed and
// RunLoop separately instead of Serve, so the initial scan happens
// exactly once either way.
func (p *Pump) Serve(ctx context.Context) error {
	p.Watcher.OnStart()
	defer p.Watcher.OnStop()

	if _, err := p.Seed(ctx); err != nil {
		return err
	}
	return p.RunLoop(ctx)
}

// Seed performs the watcher's initial scan and forwards every entry
// onto the incoming queue, returning the same list so a caller that
// also streams it to a peer doesn't have to scan the mount twice.
func (p *Pump) Seed(ctx context.Context) ([]wire.Update, error) {
	initial, err := p.Watcher.PerformInitialScan()
	if err != nil {
		return nil, err
	}
	l.Infof("watch: initial scan found %d entries", len(initial))
	if !p.emit(ctx, initial) {
		return nil, ctx.Err()
	}
	return initial, nil
}

// RunLoop drives RunOneLoop until ctx is cancelled or the watcher is
// exhausted, forwarding every batch it produces.
func (p *Pump) RunLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		updates, next, ok := p.Watcher.RunOneLoop()
		if !p.emit(ctx, updates) {
			return ctx.Err()
		}
		if !ok {
			return nil
		}
		if next > 0 {
			select {
			case <-time.After(next):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (p *Pump) emit(ctx context.Context, updates []wire.Update) bool {
	for _, u := range updates {
		u.Local = true
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if !p.Queues.PutIncoming(queue.IncomingEvent{Update: u, Origin: queue.Local}) {
			return false
		}
	}
	return true
}
