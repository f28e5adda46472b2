// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package synclogic implements SyncLogic (§4.3): the single-threaded
// owner of an UpdateTree that classifies incoming events, applies them,
// and decides per-node which side wins.
package synclogic

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Recognized/mirror/internal/events"
	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/tree"
	"github.com/Recognized/mirror/internal/wire"
)

var l = logger.DefaultLogger
var debugFacility = logger.DefaultLogger.NewFacility("synclogic", "diff/decide engine internals")

// echoWindow is how long a (path, modTime) pair SaveToLocal just wrote
// stays in the echo-suppression set (§8 Open Question decision: fixed
// at 5s).
const echoWindow = 5 * time.Second

type echoKey struct {
	path    string
	modTime int64
}

// SyncLogic owns one Tree exclusively (§5 "Shared resources") and is
// driven by a single goroutine's Serve loop; nothing else may touch the
// Tree for the lifetime of the session.
type SyncLogic struct {
	Tree   *tree.Tree
	Queues *queue.Queues

	echo        *lru.LRU[echoKey, struct{}]
	pendingData map[string][]byte

	// Rejected counts malformed Updates dropped at ingress (§7).
	Rejected atomic.Int64

	// SeedComplete receives a value whenever a remote seed-complete
	// sentinel (§6) is observed, so Session can drive the "initial
	// reconciliation" handshake step without polling the tree.
	SeedComplete chan struct{}

	// localSeedDone and remoteSeedDone track the two halves of §4.6 step
	// 3's gate: the local initial scan has been fully applied, and the
	// peer's seed-complete sentinel has been observed. seedGateOpen
	// latches true the first time both hold, so the gate is only ever
	// evaluated once.
	localSeedDone  bool
	remoteSeedDone bool
	seedGateOpen   bool

	// DebugPrefixes (§6 "debugPrefixes") names path prefixes logged at
	// Info level on every decision, regardless of the synclogic debug
	// facility's on/off state.
	DebugPrefixes []string
}

func New(t *tree.Tree, q *queue.Queues) *SyncLogic {
	return &SyncLogic{
		Tree:         t,
		Queues:       q,
		echo:         lru.NewLRU[echoKey, struct{}](4096, nil, echoWindow),
		pendingData:  make(map[string][]byte),
		SeedComplete: make(chan struct{}, 1),
	}
}

func (s *SyncLogic) isDebugPath(path string) bool {
	for _, prefix := range s.DebugPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Serve implements suture.Service: drain Incoming and Committed,
// applying each event to the Tree and running a diff pass after it
// (§4.3 "Loop: take one event; classify; apply"). Before both seeds are
// fully applied, events are classified and applied to the Tree as usual
// but no diff pass runs; once the gate opens, the first pass covers
// everything the two seeds produced in one go, and every event after
// that diffs individually (§4.6 step 3).
func (s *SyncLogic) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.Queues.Incoming:
			s.handle(ev)
			if !s.seedGateOpen {
				s.seedGateOpen = s.localSeedDone && s.remoteSeedDone
			}
			if s.seedGateOpen {
				s.Tree.VisitDirty(s.decide)
			}
		case c := <-s.Queues.Committed:
			s.echo.Add(echoKey{path: c.Path, modTime: c.ModTime}, struct{}{})
			events.Default.Log(events.ItemSynced, c.Path)
		}
	}
}

func (s *SyncLogic) handle(ev queue.IncomingEvent) {
	if ev.Origin == queue.Remote {
		s.handleRemote(ev.Update)
		return
	}
	s.handleLocal(ev.Update)
}

func (s *SyncLogic) handleLocal(u wire.Update) {
	if u.IsSeedComplete() {
		s.localSeedDone = true
		return
	}
	if !validPath(u.Path) {
		s.reject(u, "malformed path")
		return
	}
	if s.isEcho(u) {
		debugFacility.Debugf("synclogic: suppressing echo of our own write: %s@%d", u.Path, u.ModTime)
		return
	}
	u.Local = true
	if err := s.Tree.AddLocal(u); err != nil {
		s.reject(u, err.Error())
		return
	}
	events.Default.Log(events.LocalChanged, u.Path)
}

func (s *SyncLogic) handleRemote(u wire.Update) {
	if u.IsSeedComplete() {
		s.remoteSeedDone = true
		select {
		case s.SeedComplete <- struct{}{}:
		default:
		}
		return
	}
	if u.IsBodyRequest() {
		s.respondToBodyRequest(u.Path)
		return
	}
	if !validPath(u.Path) {
		s.reject(u, "malformed path")
		return
	}
	if len(u.Data) > 0 && string(u.Data) != wire.InitialSyncMarker && !u.IsDirectory && u.SymlinkTarget == "" && !u.Delete {
		s.pendingData[u.Path] = u.Data
	}
	u.Local = false
	if err := s.Tree.AddRemote(u); err != nil {
		s.reject(u, err.Error())
		return
	}
	events.Default.Log(events.RemoteChanged, u.Path)
	if n, err := s.Tree.Find(u.Path); err == nil && n.AwaitingData() {
		if _, ok := s.pendingData[u.Path]; ok {
			n.SetAwaitingData(false)
		}
	}
}

// respondToBodyRequest is the peer-originated request handling from §4.6
// step 3: the receiving side enqueues a SaveToRemote for its own local
// copy of path directly, bypassing the normal diff decision.
func (s *SyncLogic) respondToBodyRequest(path string) {
	n, err := s.Tree.Find(path)
	if err != nil {
		l.Infof("synclogic: body request for invalid path %q: %v", path, err)
		return
	}
	u, ok := n.LocalUpdate()
	if !ok || u.IsDirectory || u.SymlinkTarget != "" || u.Delete {
		l.Infof("synclogic: body request for %q has no matching local regular file", path)
		return
	}
	u.Path = path
	u.Data = nil // empty triggers SaveToRemote's disk read
	s.Queues.PutSaveToRemote(u)
}

func (s *SyncLogic) reject(u wire.Update, reason string) {
	s.Rejected.Add(1)
	l.Infof("synclogic: rejected update %q: %s", u.Path, reason)
	events.Default.Log(events.ItemRejected, u.Path)
}

func (s *SyncLogic) isEcho(u wire.Update) bool {
	_, ok := s.echo.Get(echoKey{path: u.Path, modTime: u.ModTime})
	return ok
}

// decide implements the §4.3 diff pass for one dirty node.
func (s *SyncLogic) decide(n tree.Node) {
	if n.ShouldIgnore() {
		return
	}
	path := n.Path()

	if s.isDebugPath(path) {
		l.Infof("synclogic: deciding %q: localNewer=%v remoteNewer=%v", path, n.IsLocalNewer(), n.IsRemoteNewer())
	}

	switch {
	case n.IsLocalNewer():
		u, ok := n.LocalUpdate()
		if !ok {
			return
		}
		u.Path = path
		u.Local = true
		if u.Kind() != wire.KindFile {
			u.Data = nil
		}
		events.Default.Log(events.ItemStarted, path)
		s.Queues.PutSaveToRemote(u)

	case n.IsRemoteNewer():
		s.decideRemoteWins(n, path)

	default:
		// Neither side is newer: no-op (§4.3).
	}
}

func (s *SyncLogic) decideRemoteWins(n tree.Node, path string) {
	u, ok := n.RemoteUpdate()
	if !ok {
		return
	}
	u.Path = path

	if u.Kind() == wire.KindFile {
		data, have := s.pendingData[path]
		if !have {
			n.SetAwaitingData(true)
			s.Queues.PutSaveToRemote(wire.BodyRequest(path))
			return
		}
		u.Data = data
		delete(s.pendingData, path)
		n.SetAwaitingData(false)
	}

	if n.DifferentTypes() {
		if localU, ok := n.LocalUpdate(); ok {
			s.Queues.PutSaveToLocal(wire.Update{Path: path, ModTime: localU.ModTime, Delete: true})
		}
	}

	events.Default.Log(events.ItemStarted, path)
	s.Queues.PutSaveToLocal(u)
}

// validPath rejects paths that escape the mount root or carry leading/
// trailing slashes (§7 "Malformed input"); tree.Find/AddLocal/AddRemote
// already reject the slash cases but not ".." traversal.
func validPath(path string) bool {
	if path == "" {
		return true
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." || seg == "" {
			return false
		}
	}
	return true
}
