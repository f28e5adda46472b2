// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package queue implements the four bounded FIFO channels that wire the
// engine's stages together (spec §2, §5): FileWatcher and the peer
// stream both feed Incoming; SyncLogic drains Incoming and produces onto
// SaveToLocal and SaveToRemote.
package queue

import "github.com/Recognized/mirror/internal/wire"

// Origin tags an incoming Update with which side produced it.
type Origin int

const (
	Local Origin = iota
	Remote
)

func (o Origin) String() string {
	if o == Remote {
		return "remote"
	}
	return "local"
}

// IncomingEvent is one entry on the incoming queue: a metadata Update
// plus which side it came from.
type IncomingEvent struct {
	Update wire.Update
	Origin Origin
}

// CommitEvent reports a (path, modTime) pair SaveToLocal just wrote to
// disk on SyncLogic's behalf, so SyncLogic — the UpdateTree's sole
// owner (§5) — can enter it into its own echo-suppression set rather
// than have SaveToLocal reach into tree state across goroutines (§4.4
// "After each successful write, SyncLogic is notified").
type CommitEvent struct {
	Path    string
	ModTime int64
}

// Default capacities, per §5. incomingQueue is sized generously so a
// burst of filesystem or network events never blocks the producer; the
// output queues are smaller since SaveToLocal/SaveToRemote are expected
// to keep pace with disk and network I/O respectively.
const (
	DefaultIncomingCapacity     = 1_000_000
	DefaultSaveToLocalCapacity  = 100_000
	DefaultSaveToRemoteCapacity = 100_000
	DefaultCommittedCapacity    = 10_000
)

// Queues holds the four bounded FIFO channels wiring one session's
// workers together (§2). Producers block on a full channel (natural
// backpressure, §5); readers should select on Stop to notice a session
// shutdown.
type Queues struct {
	Incoming     chan IncomingEvent
	SaveToLocal  chan wire.Update
	SaveToRemote chan wire.Update
	Committed    chan CommitEvent

	Stop chan struct{}
}

// New allocates a Queues with the given capacities; 0 selects the
// package default for that channel.
func New(incomingCap, saveToLocalCap, saveToRemoteCap int) *Queues {
	if incomingCap == 0 {
		incomingCap = DefaultIncomingCapacity
	}
	if saveToLocalCap == 0 {
		saveToLocalCap = DefaultSaveToLocalCapacity
	}
	if saveToRemoteCap == 0 {
		saveToRemoteCap = DefaultSaveToRemoteCapacity
	}
	return &Queues{
		Incoming:     make(chan IncomingEvent, incomingCap),
		SaveToLocal:  make(chan wire.Update, saveToLocalCap),
		SaveToRemote: make(chan wire.Update, saveToRemoteCap),
		Committed:    make(chan CommitEvent, DefaultCommittedCapacity),
		Stop:         make(chan struct{}),
	}
}

// PutIncoming enqueues an event, honoring Stop so a producer that can't
// make progress during shutdown doesn't leak a goroutine (§5
// "Cancellation").
func (q *Queues) PutIncoming(e IncomingEvent) bool {
	select {
	case q.Incoming <- e:
		return true
	case <-q.Stop:
		return false
	}
}

func (q *Queues) PutSaveToLocal(u wire.Update) bool {
	select {
	case q.SaveToLocal <- u:
		return true
	case <-q.Stop:
		return false
	}
}

func (q *Queues) PutSaveToRemote(u wire.Update) bool {
	select {
	case q.SaveToRemote <- u:
		return true
	case <-q.Stop:
		return false
	}
}

func (q *Queues) PutCommitted(e CommitEvent) bool {
	select {
	case q.Committed <- e:
		return true
	case <-q.Stop:
		return false
	}
}

// Backlog reports the current number of buffered entries on the incoming
// and saveToRemote queues, exposed by Server's administrative query (§4.7).
type Backlog struct {
	Incoming     int
	SaveToRemote int
}

func (q *Queues) Backlog() Backlog {
	return Backlog{
		Incoming:     len(q.Incoming),
		SaveToRemote: len(q.SaveToRemote),
	}
}
