// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package queue

import (
	"testing"
	"time"

	"github.com/Recognized/mirror/internal/wire"
)

func TestNewAppliesDefaultCapacitiesOnZero(t *testing.T) {
	q := New(0, 0, 0)
	if cap(q.Incoming) != DefaultIncomingCapacity {
		t.Errorf("Incoming cap = %d, want %d", cap(q.Incoming), DefaultIncomingCapacity)
	}
	if cap(q.SaveToLocal) != DefaultSaveToLocalCapacity {
		t.Errorf("SaveToLocal cap = %d, want %d", cap(q.SaveToLocal), DefaultSaveToLocalCapacity)
	}
	if cap(q.SaveToRemote) != DefaultSaveToRemoteCapacity {
		t.Errorf("SaveToRemote cap = %d, want %d", cap(q.SaveToRemote), DefaultSaveToRemoteCapacity)
	}
}

func TestNewHonorsExplicitCapacities(t *testing.T) {
	q := New(3, 4, 5)
	if cap(q.Incoming) != 3 || cap(q.SaveToLocal) != 4 || cap(q.SaveToRemote) != 5 {
		t.Fatalf("unexpected capacities: %d/%d/%d", cap(q.Incoming), cap(q.SaveToLocal), cap(q.SaveToRemote))
	}
}

func TestPutIncomingDeliversAndReportsBacklog(t *testing.T) {
	q := New(2, 2, 2)
	ev := IncomingEvent{Update: wire.Update{Path: "a.txt"}, Origin: Local}
	if !q.PutIncoming(ev) {
		t.Fatal("PutIncoming returned false with room available")
	}
	if got := q.Backlog().Incoming; got != 1 {
		t.Fatalf("backlog.Incoming = %d, want 1", got)
	}
	got := <-q.Incoming
	if got.Update.Path != "a.txt" || got.Origin != Local {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestPutUnblocksOnStop(t *testing.T) {
	q := New(1, 1, 1)
	// Fill the channel so a second Put would normally block forever.
	if !q.PutSaveToLocal(wire.Update{Path: "x"}) {
		t.Fatal("first PutSaveToLocal should have succeeded")
	}

	done := make(chan bool, 1)
	go func() { done <- q.PutSaveToLocal(wire.Update{Path: "y"}) }()

	select {
	case <-done:
		t.Fatal("PutSaveToLocal returned before Stop was closed")
	case <-time.After(20 * time.Millisecond):
	}

	close(q.Stop)

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected PutSaveToLocal to report failure after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("PutSaveToLocal did not unblock after Stop was closed")
	}
}

func TestOriginString(t *testing.T) {
	if Local.String() != "local" {
		t.Errorf("Local.String() = %q", Local.String())
	}
	if Remote.String() != "remote" {
		t.Errorf("Remote.String() = %q", Remote.String())
	}
}
