// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package watch

import (
	"context"
	"testing"
	"time"

	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/wire"
)

func TestPumpEmitsInitialScanThenBatches(t *testing.T) {
	mem := &Memory{
		Initial: []wire.Update{{Path: "a.txt", ModTime: 1000}},
		Batches: [][]wire.Update{
			{{Path: "b.txt", ModTime: 2000}},
		},
	}
	q := queue.New(0, 0, 0)
	p := NewPump(mem, q)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	var got []wire.Update
	for i := 0; i < 2; i++ {
		select {
		case ev := <-q.Incoming:
			if ev.Origin != queue.Local {
				t.Fatalf("expected Local origin, got %v", ev.Origin)
			}
			got = append(got, ev.Update)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for update")
		}
	}
	cancel()
	<-done

	if !mem.started || !mem.stopped {
		t.Fatalf("expected OnStart/OnStop to be called")
	}
	if got[0].Path != "a.txt" || got[1].Path != "b.txt" {
		t.Fatalf("unexpected update order: %+v", got)
	}
}

func TestPumpStopsWhenWatcherExhausted(t *testing.T) {
	mem := &Memory{}
	q := queue.New(0, 0, 0)
	p := NewPump(mem, q)

	done := make(chan error, 1)
	go func() { done <- p.Serve(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on clean exhaustion, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pump did not exit after watcher exhausted")
	}
}

func TestRewriteSymlinkTargetInsideRoot(t *testing.T) {
	got := rewriteSymlinkTarget("/mnt/root", "a/link", "/mnt/root/a/target.txt")
	if got != "target.txt" {
		t.Fatalf("expected relative rewrite, got %q", got)
	}
}

func TestRewriteSymlinkTargetOutsideRootUnchanged(t *testing.T) {
	target := "/etc/passwd"
	got := rewriteSymlinkTarget("/mnt/root", "a/link", target)
	if got != target {
		t.Fatalf("expected unchanged target, got %q", got)
	}
}

func TestRewriteSymlinkTargetAlreadyRelativeUnchanged(t *testing.T) {
	got := rewriteSymlinkTarget("/mnt/root", "a/link", "../b/target.txt")
	if got != "../b/target.txt" {
		t.Fatalf("expected unchanged relative target, got %q", got)
	}
}
