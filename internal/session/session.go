// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package session implements §4.6: the handshake/seed-exchange dance
// and the supervised set of workers that make up one mount connection.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"
	"golang.org/x/time/rate"

	"github.com/Recognized/mirror/internal/events"
	"github.com/Recognized/mirror/internal/fsaccess"
	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/rules"
	"github.com/Recognized/mirror/internal/savelocal"
	"github.com/Recognized/mirror/internal/saveremote"
	"github.com/Recognized/mirror/internal/synclogic"
	"github.com/Recognized/mirror/internal/tree"
	"github.com/Recognized/mirror/internal/watch"
	"github.com/Recognized/mirror/internal/wire"
)

var l = logger.DefaultLogger

const (
	keepAliveInterval = 20 * time.Second

	// outgoingRate bounds how fast SaveToRemote may push ordinary
	// Updates onto the wire; the keep-alive prober writes directly on
	// the unwrapped Stream and so is never throttled behind a burst
	// (§9 "Session — expanded").
	outgoingRate  = 500
	outgoingBurst = 500
)

// Config carries the per-mount settings recognized at session
// construction (§6 "Configuration options").
type Config struct {
	MountKey      string
	MountRoot     string
	RemoteRoot    string
	Includes      *rules.PathRules
	Excludes      *rules.PathRules
	DebugPrefixes []string
}

// Session is a suture.Supervisor (teacher idiom, lib/model/folder.go
// embeds *suture.Supervisor) owning one mount connection's Tree, Queues
// and four long-lived workers, plus the stream plumbing around them.
type Session struct {
	supervisor *suture.Supervisor

	Config Config
	Queues *queue.Queues
	Tree   *tree.Tree
	Logic  *synclogic.SyncLogic
	Stream wire.Stream
}

// New wires one session's workers together but does not start them;
// call Serve to run the seed exchange and then the supervised loop.
func New(cfg Config, stream wire.Stream, watcher watch.FileWatcher, access fsaccess.FileAccess) *Session {
	q := queue.New(0, 0, 0)
	t := tree.New(cfg.Includes, cfg.Excludes)
	logic := synclogic.New(t, q)
	logic.DebugPrefixes = cfg.DebugPrefixes
	limiter := rate.NewLimiter(rate.Limit(outgoingRate), outgoingBurst)

	sup := suture.New(fmt.Sprintf("session-%s", cfg.MountKey), suture.Spec{
		EventHook: func(e suture.Event) { l.Infof("session %s: %s", cfg.MountKey, e) },
	})

	s := &Session{
		supervisor: sup,
		Config:     cfg,
		Queues:     q,
		Tree:       t,
		Logic:      logic,
		Stream:     stream,
	}

	pump := watch.NewPump(watcher, q)
	sup.Add(&seededPump{pump: pump, stream: stream})
	sup.Add(logic)
	sup.Add(savelocal.New(access, q))
	sup.Add(saveremote.New(access, &limitedStream{Stream: stream, limiter: limiter}, q))
	sup.Add(&receiver{stream: stream, queues: q})
	sup.Add(&prober{stream: stream})
	sup.Add(&closer{stream: stream})
	sup.Add(&stopCloser{queues: q})

	return s
}

// Serve runs the session until ctx is cancelled or a fatal error (a
// transport failure, an invariant violation) tears it down. All
// supervised workers are stopped and the underlying stream is closed
// before Serve returns (§4.6 step 5 "Shutdown").
func (s *Session) Serve(ctx context.Context) error {
	events.Default.Log(events.SessionStarted, s.Config.MountKey)
	defer events.Default.Log(events.SessionStopped, s.Config.MountKey)
	return s.supervisor.Serve(ctx)
}

// Backlog reports the session's current queue depths for the
// administrative query in §4.7.
func (s *Session) Backlog() queue.Backlog {
	return s.Queues.Backlog()
}

// seededPump performs the local half of §4.6 step 2: scan the mount,
// feed the results into the tree via the normal incoming queue, and
// separately stream them to the peer as seed Updates (data replaced
// with the initialSyncMarker placeholder for regular files), closing
// with the seed-complete sentinel. It also enqueues a local-origin
// seed-complete sentinel behind the scan's own entries, so SyncLogic
// can tell once it has actually applied all of them rather than merely
// having them queued (§4.6 step 3). It then hands off to the watcher's
// ordinary runtime loop.
type seededPump struct {
	pump   *watch.Pump
	stream wire.Stream
}

func (p *seededPump) Serve(ctx context.Context) error {
	p.pump.Watcher.OnStart()
	defer p.pump.Watcher.OnStop()

	initial, err := p.pump.Seed(ctx)
	if err != nil {
		return err
	}
	if !p.pump.Queues.PutIncoming(queue.IncomingEvent{
		Origin: queue.Local,
		Update: wire.SeedCompleteMarker(time.Now().UnixMilli()),
	}) {
		return ctx.Err()
	}

	for _, u := range initial {
		seed := u
		seed.Local = false
		if seed.Kind() == wire.KindFile {
			seed.Data = []byte(wire.InitialSyncMarker)
		}
		if err := p.stream.Send(seed); err != nil {
			return err
		}
	}
	if err := p.stream.Send(wire.SeedCompleteMarker(time.Now().UnixMilli())); err != nil {
		return err
	}
	l.Infof("session: seed sent (%d entries)", len(initial))

	return p.pump.RunLoop(ctx)
}

// receiver drains the peer's stream and feeds every Update onto the
// incoming queue tagged Remote; a keep-alive probe is swallowed here
// rather than reaching SyncLogic.
type receiver struct {
	stream wire.Stream
	queues *queue.Queues
}

func (r *receiver) Serve(ctx context.Context) error {
	for {
		u, err := r.stream.Recv()
		if err != nil {
			return err
		}
		if u.IsKeepAlive() {
			continue
		}
		if !r.queues.PutIncoming(queue.IncomingEvent{Update: u, Origin: queue.Remote}) {
			return ctx.Err()
		}
	}
}

// prober sends the periodic keep-alive probe (§5 "Timeouts").
type prober struct {
	stream wire.Stream
}

func (p *prober) Serve(ctx context.Context) error {
	return wire.KeepAlive(p.stream, keepAliveInterval, ctx.Done())
}

// closer unblocks any goroutine parked in a blocking read on stream
// once the session is cancelled (§5 "Cancellation": blocked I/O is
// terminated by closing the underlying handle).
type closer struct {
	stream wire.Stream
}

func (c *closer) Serve(ctx context.Context) error {
	<-ctx.Done()
	c.stream.Close()
	return ctx.Err()
}

// stopCloser closes the Queues' Stop channel once the session is
// cancelled, unblocking any goroutine parked on a full Put* call
// (§5 "Cancellation").
type stopCloser struct {
	queues *queue.Queues
}

func (c *stopCloser) Serve(ctx context.Context) error {
	<-ctx.Done()
	close(c.queues.Stop)
	return ctx.Err()
}

// limitedStream throttles ordinary outgoing traffic so a burst of
// SaveToRemote Updates can never starve the keep-alive prober, which
// holds the unwrapped Stream and bypasses this limiter entirely.
type limitedStream struct {
	wire.Stream
	limiter *rate.Limiter
}

func (s *limitedStream) Send(u wire.Update) error {
	if err := s.limiter.Wait(context.Background()); err != nil {
		return err
	}
	return s.Stream.Send(u)
}
