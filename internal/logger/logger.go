// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

// Package logger implements a small leveled logger with per-facility
// debug gating and pluggable handlers.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
)

// Handler receives every message at or above the level it was registered
// for.
type Handler func(l LogLevel, msg string)

type facility struct {
	name string
	descr string
	debug bool
}

// Logger is a leveled, facility-aware wrapper around the standard log
// package. The zero value is not usable; use New.
type Logger struct {
	mut       sync.Mutex
	logger    *log.Logger
	handlers  [][]Handler // indexed by LogLevel
	facilities map[string]*facility
}

// DefaultLogger is shared by packages that don't construct their own.
var DefaultLogger = New()

func New() *Logger {
	return &Logger{
		logger:     log.New(os.Stderr, "", log.Ldate|log.Ltime),
		handlers:   make([][]Handler, 3),
		facilities: make(map[string]*facility),
	}
}

func (l *Logger) SetFlags(flag int) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.logger.SetFlags(flag)
}

func (l *Logger) SetPrefix(prefix string) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.logger.SetPrefix(prefix)
}

func (l *Logger) AddHandler(level LogLevel, h Handler) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.handlers[level] = append(l.handlers[level], h)
}

func (l *Logger) callHandlers(level LogLevel, s string) {
	for lv := LevelDebug; lv <= level; lv++ {
		for _, h := range l.handlers[lv] {
			h(level, s)
		}
	}
}

func (l *Logger) log(level LogLevel, vals ...interface{}) {
	s := fmt.Sprintln(vals...)
	l.mut.Lock()
	l.logger.Output(3, s)
	l.mut.Unlock()
	l.callHandlers(level, s)
}

func (l *Logger) logf(level LogLevel, format string, vals ...interface{}) {
	s := fmt.Sprintf(format, vals...)
	l.mut.Lock()
	l.logger.Output(3, s)
	l.mut.Unlock()
	l.callHandlers(level, s)
}

func (l *Logger) Debugln(vals ...interface{}) { l.log(LevelDebug, vals...) }
func (l *Logger) Debugf(format string, vals ...interface{}) { l.logf(LevelDebug, format, vals...) }
func (l *Logger) Infoln(vals ...interface{}) { l.log(LevelInfo, vals...) }
func (l *Logger) Infof(format string, vals ...interface{}) { l.logf(LevelInfo, format, vals...) }
func (l *Logger) Warnln(vals ...interface{}) { l.log(LevelWarn, vals...) }
func (l *Logger) Warnf(format string, vals ...interface{}) { l.logf(LevelWarn, format, vals...) }

// Fatalln logs at warn level and terminates the calling goroutine's
// session by panicking; callers that own a worker loop are expected to
// recover and tear the session down rather than let this crash the
// process.
func (l *Logger) Fatalln(vals ...interface{}) {
	l.log(LevelWarn, vals...)
	panic(fmt.Sprintln(vals...))
}

// Facility is a named subset of debug logging that can be toggled
// independently, e.g. "tree", "synclogic", "wire".
type Facility struct {
	l    *Logger
	name string
}

func (l *Logger) NewFacility(name, descr string) *Facility {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.facilities[name] = &facility{name: name, descr: descr}
	return &Facility{l: l, name: name}
}

func (l *Logger) SetDebug(facility string, enabled bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	if f, ok := l.facilities[facility]; ok {
		f.debug = enabled
	}
}

func (l *Logger) IsDebug(facility string) bool {
	l.mut.Lock()
	defer l.mut.Unlock()
	f, ok := l.facilities[facility]
	return ok && f.debug
}

func (f *Facility) Debugln(vals ...interface{}) {
	if f.l.IsDebug(f.name) {
		f.l.log(LevelDebug, vals...)
	}
}

func (f *Facility) Debugf(format string, vals ...interface{}) {
	if f.l.IsDebug(f.name) {
		f.l.logf(LevelDebug, format, vals...)
	}
}
