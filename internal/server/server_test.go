// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"errors"
	"testing"
	"time"

	"github.com/Recognized/mirror/internal/fsaccess"
	"github.com/Recognized/mirror/internal/session"
	"github.com/Recognized/mirror/internal/watch"
	"github.com/Recognized/mirror/internal/wire"
)

type deadStream struct{}

func (deadStream) Send(wire.Update) error     { return nil }
func (deadStream) Recv() (wire.Update, error) { return wire.Update{}, errors.New("no peer in test") }
func (deadStream) Close() error               { return nil }

func newTestSession(key string) *session.Session {
	return session.New(session.Config{MountKey: key}, deadStream{}, &watch.Memory{}, fsaccess.NewMemory())
}

func TestAcceptRegistersAndBacklogReportsIt(t *testing.T) {
	s := New()
	defer s.Shutdown()

	s.Accept("m1", newTestSession("m1"))

	waitForKeys(t, s, 1)
	if _, ok := s.Backlog("m1"); !ok {
		t.Fatal("expected backlog for registered mount")
	}
	if _, ok := s.Backlog("missing"); ok {
		t.Fatal("expected no backlog for unknown mount")
	}
}

func TestAcceptEvictsPriorSessionOnSameKey(t *testing.T) {
	s := New()
	defer s.Shutdown()

	s.Accept("m1", newTestSession("m1"))
	waitForKeys(t, s, 1)

	s.Accept("m1", newTestSession("m1"))
	waitForKeys(t, s, 1)
}

func TestShutdownStopsAllSessions(t *testing.T) {
	s := New()
	s.Accept("a", newTestSession("a"))
	s.Accept("b", newTestSession("b"))
	waitForKeys(t, s, 2)

	s.Shutdown()
	if len(s.MountKeys()) != 0 {
		t.Fatalf("expected no sessions after shutdown, got %v", s.MountKeys())
	}
}

func waitForKeys(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(s.MountKeys()) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d registered mount(s), got %v", n, s.MountKeys())
}
