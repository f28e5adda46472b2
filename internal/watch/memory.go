// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package watch

import (
	"time"

	"github.com/Recognized/mirror/internal/wire"
)

// Memory is an in-memory FileWatcher fake (§9 "Tests supply in-memory
// stubs"): the initial scan and each subsequent RunOneLoop batch are
// supplied by the test rather than discovered from a real filesystem.
type Memory struct {
	Initial []wire.Update
	Batches [][]wire.Update

	started bool
	stopped bool
	next    int
}

func (m *Memory) OnStart() { m.started = true }
func (m *Memory) OnStop()  { m.stopped = true }

func (m *Memory) PerformInitialScan() ([]wire.Update, error) {
	return m.Initial, nil
}

func (m *Memory) RunOneLoop() ([]wire.Update, time.Duration, bool) {
	if m.next >= len(m.Batches) {
		return nil, 0, false
	}
	batch := m.Batches[m.next]
	m.next++
	return batch, 0, true
}
