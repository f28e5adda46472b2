// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package saveremote

import (
	"errors"
	"testing"

	"github.com/Recognized/mirror/internal/fsaccess"
	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/wire"
)

type fakeStream struct {
	sent []wire.Update
	err  error
}

func (s *fakeStream) Send(u wire.Update) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, u)
	return nil
}
func (s *fakeStream) Recv() (wire.Update, error) { return wire.Update{}, errors.New("unused") }
func (s *fakeStream) Close() error               { return nil }

func TestApplyReadsBodyFromDiskWhenMissing(t *testing.T) {
	mem := fsaccess.NewMemory()
	mem.Write("a.txt", []byte("on disk"), false)
	stream := &fakeStream{}
	w := New(mem, stream, queue.New(16, 16, 16))

	if err := w.apply(wire.Update{Path: "a.txt", ModTime: 5000}); err != nil {
		t.Fatal(err)
	}
	if len(stream.sent) != 1 || string(stream.sent[0].Data) != "on disk" {
		t.Fatalf("expected body attached from disk, got %+v", stream.sent)
	}
	if stream.sent[0].Local {
		t.Fatalf("expected Local cleared before sending to peer")
	}
}

func TestApplyPassesThroughAlreadyAttachedData(t *testing.T) {
	mem := fsaccess.NewMemory()
	stream := &fakeStream{}
	w := New(mem, stream, queue.New(16, 16, 16))

	if err := w.apply(wire.Update{Path: "a.txt", ModTime: 5000, Data: []byte("already here")}); err != nil {
		t.Fatal(err)
	}
	if string(stream.sent[0].Data) != "already here" {
		t.Fatalf("unexpected data: %+v", stream.sent[0])
	}
}

func TestApplyDropsVanishedFileSilently(t *testing.T) {
	mem := fsaccess.NewMemory()
	stream := &fakeStream{}
	w := New(mem, stream, queue.New(16, 16, 16))

	if err := w.apply(wire.Update{Path: "missing.txt", ModTime: 5000}); err != nil {
		t.Fatal(err)
	}
	if len(stream.sent) != 0 {
		t.Fatalf("expected nothing sent for a vanished file")
	}
}

func TestApplyForwardsBodyRequestUnchanged(t *testing.T) {
	mem := fsaccess.NewMemory()
	stream := &fakeStream{}
	w := New(mem, stream, queue.New(16, 16, 16))

	if err := w.apply(wire.BodyRequest("a.txt")); err != nil {
		t.Fatal(err)
	}
	if len(stream.sent) != 1 || !stream.sent[0].IsBodyRequest() {
		t.Fatalf("expected body request forwarded unchanged, got %+v", stream.sent)
	}
}

func TestApplyPropagatesTransportError(t *testing.T) {
	mem := fsaccess.NewMemory()
	mem.Write("a.txt", []byte("x"), false)
	stream := &fakeStream{err: errors.New("connection reset")}
	w := New(mem, stream, queue.New(16, 16, 16))

	if err := w.apply(wire.Update{Path: "a.txt", ModTime: 5000}); err == nil {
		t.Fatal("expected transport error to propagate")
	}
}
