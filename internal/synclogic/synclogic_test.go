// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package synclogic

import (
	"testing"
	"time"

	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/rules"
	"github.com/Recognized/mirror/internal/tree"
	"github.com/Recognized/mirror/internal/wire"
)

func newTestLogic() (*SyncLogic, *tree.Tree, *queue.Queues) {
	tr := tree.New(nil, nil)
	q := queue.New(16, 16, 16)
	return New(tr, q), tr, q
}

func drainOne(t *testing.T, ch chan wire.Update) wire.Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
		return wire.Update{}
	}
}

func expectEmpty(t *testing.T, ch chan wire.Update) {
	t.Helper()
	select {
	case u := <-ch:
		t.Fatalf("expected no update, got %+v", u)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLocalNewerEmitsToSaveToRemote(t *testing.T) {
	s, _, q := newTestLogic()
	s.handle(queue.IncomingEvent{Origin: queue.Local, Update: wire.Update{Path: "a.txt", ModTime: 5000}})
	s.Tree.VisitDirty(s.decide)

	u := drainOne(t, q.SaveToRemote)
	if u.Path != "a.txt" || u.ModTime != 5000 {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestRemoteNewerWithDataEmitsToSaveToLocal(t *testing.T) {
	s, _, q := newTestLogic()
	s.handle(queue.IncomingEvent{Origin: queue.Remote, Update: wire.Update{Path: "a.txt", ModTime: 5000, Data: []byte("hi")}})
	s.Tree.VisitDirty(s.decide)

	u := drainOne(t, q.SaveToLocal)
	if u.Path != "a.txt" || string(u.Data) != "hi" {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestRemoteNewerWithoutDataRequestsBody(t *testing.T) {
	s, _, q := newTestLogic()
	s.handle(queue.IncomingEvent{Origin: queue.Remote, Update: wire.Update{Path: "a.txt", ModTime: 5000}})
	s.Tree.VisitDirty(s.decide)

	req := drainOne(t, q.SaveToRemote)
	if !req.IsBodyRequest() || req.Path != "a.txt" {
		t.Fatalf("expected body request, got %+v", req)
	}
	expectEmpty(t, q.SaveToLocal)

	n, err := s.Tree.Find("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !n.AwaitingData() {
		t.Fatalf("expected node to be marked awaiting data")
	}

	// The body arrives as a normal remote Update carrying Data.
	s.handle(queue.IncomingEvent{Origin: queue.Remote, Update: wire.Update{Path: "a.txt", ModTime: 5000, Data: []byte("body")}})
	s.Tree.VisitDirty(s.decide)

	u := drainOne(t, q.SaveToLocal)
	if string(u.Data) != "body" {
		t.Fatalf("expected body delivered, got %+v", u)
	}
}

func TestBodyRequestRespondsFromLocalTreeState(t *testing.T) {
	s, _, q := newTestLogic()
	// Establish a local file, consuming the initial diff so the queue
	// used for the response assertion starts empty.
	s.handle(queue.IncomingEvent{Origin: queue.Local, Update: wire.Update{Path: "a.txt", ModTime: 5000}})
	s.Tree.VisitDirty(s.decide)
	drainOne(t, q.SaveToRemote) // the initial local->remote emission

	s.handle(queue.IncomingEvent{Origin: queue.Remote, Update: wire.BodyRequest("a.txt")})

	resp := drainOne(t, q.SaveToRemote)
	if resp.Path != "a.txt" || resp.IsBodyRequest() || len(resp.Data) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestLocalEchoOfOwnWriteIsSuppressed(t *testing.T) {
	s, _, q := newTestLogic()
	q.PutCommitted(queue.CommitEvent{Path: "a.txt", ModTime: 5000})
	select {
	case c := <-q.Committed:
		s.echo.Add(echoKey{path: c.Path, modTime: c.ModTime}, struct{}{})
	case <-time.After(time.Second):
		t.Fatal("committed event not delivered")
	}

	s.handle(queue.IncomingEvent{Origin: queue.Local, Update: wire.Update{Path: "a.txt", ModTime: 5000}})
	s.Tree.VisitDirty(s.decide)

	n, err := s.Tree.Find("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.LocalUpdate(); ok {
		t.Fatalf("echoed update should not have been applied to the tree")
	}
}

func TestMalformedPathIsRejectedNotApplied(t *testing.T) {
	s, _, _ := newTestLogic()
	s.handle(queue.IncomingEvent{Origin: queue.Local, Update: wire.Update{Path: "../escape.txt", ModTime: 5000}})
	if s.Rejected.Load() != 1 {
		t.Fatalf("expected one rejected update, got %d", s.Rejected.Load())
	}
}

func TestIgnoredNodeNeverEmitted(t *testing.T) {
	excl, err := rules.ParseString("ignored.txt\n", rules.ModeAnchored)
	if err != nil {
		t.Fatal(err)
	}
	tr := tree.New(nil, excl)
	q := queue.New(16, 16, 16)
	s := New(tr, q)

	s.handle(queue.IncomingEvent{Origin: queue.Local, Update: wire.Update{Path: "ignored.txt", ModTime: 5000}})
	s.Tree.VisitDirty(s.decide)

	expectEmpty(t, q.SaveToRemote)
}

func TestSeedCompleteSignalled(t *testing.T) {
	s, _, _ := newTestLogic()
	s.handle(queue.IncomingEvent{Origin: queue.Remote, Update: wire.SeedCompleteMarker(1234)})
	select {
	case <-s.SeedComplete:
	case <-time.After(time.Second):
		t.Fatal("expected seed-complete signal")
	}
}
