// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package logger

import (
	"sync"
	"time"
)

type Line struct {
	Level   LogLevel
	Message string
	When    time.Time
}

// Recorder keeps the last size messages at or above the given level,
// with the first permanent of them never evicted (useful for keeping the
// first warning of a session visible even after the ring wraps).
type Recorder struct {
	mut       sync.Mutex
	lines     []Line
	size      int
	permanent int
}

func NewRecorder(l *Logger, level LogLevel, size, permanent int) *Recorder {
	r := &Recorder{size: size, permanent: permanent}
	l.AddHandler(level, r.append)
	return r
}

func (r *Recorder) append(level LogLevel, msg string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.lines = append(r.lines, Line{Level: level, Message: msg, When: time.Now()})
	if over := len(r.lines) - r.size; over > 0 && len(r.lines) > r.permanent {
		drop := over
		if r.permanent > 0 && drop > len(r.lines)-r.permanent {
			drop = len(r.lines) - r.permanent
		}
		r.lines = append(r.lines[:r.permanent], r.lines[r.permanent+drop:]...)
	}
}

func (r *Recorder) Since(t time.Time) []Line {
	r.mut.Lock()
	defer r.mut.Unlock()
	var out []Line
	for _, ln := range r.lines {
		if ln.When.After(t) {
			out = append(out, ln)
		}
	}
	return out
}
