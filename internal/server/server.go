// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package server holds the set of active sessions, one per mount key
// (spec §4.7), and exposes their backlog depths both to in-process
// callers and to Prometheus.
package server

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/queue"
	"github.com/Recognized/mirror/internal/session"
	"github.com/Recognized/mirror/internal/syncutil"
)

var l = logger.DefaultLogger

var (
	metricIncomingBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mirror",
		Subsystem: "session",
		Name:      "incoming_backlog",
		Help:      "Number of buffered entries on a session's incoming queue.",
	}, []string{"mount"})
	metricSaveToRemoteBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mirror",
		Subsystem: "session",
		Name:      "save_to_remote_backlog",
		Help:      "Number of buffered entries on a session's saveToRemote queue.",
	}, []string{"mount"})
)

const backlogPollInterval = time.Second

// Server holds at most one active Session per mount key (§4.7). A
// second Accept for an already-connected key evicts and waits for the
// previous session to fully stop before the new one is registered.
type Server struct {
	mut      syncutil.RWMutex
	sessions map[string]*entry
}

type entry struct {
	session *session.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

func New() *Server {
	return &Server{
		mut:      syncutil.NewRWMutex(),
		sessions: make(map[string]*entry),
	}
}

// Accept registers sess under mountKey and starts it in the
// background, evicting any previous session on the same key first. It
// returns once sess is registered; it does not wait for sess to stop.
func (s *Server) Accept(mountKey string, sess *session.Session) {
	s.Evict(mountKey)

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{session: sess, cancel: cancel, done: make(chan struct{})}

	s.mut.Lock()
	s.sessions[mountKey] = e
	s.mut.Unlock()

	go s.run(mountKey, e, ctx)
}

func (s *Server) run(mountKey string, e *entry, ctx context.Context) {
	defer close(e.done)

	stopMetrics := make(chan struct{})
	go s.pollBacklog(mountKey, e.session, stopMetrics)

	err := e.session.Serve(ctx)
	close(stopMetrics)
	if err != nil {
		l.Infof("server: session %q stopped: %v", mountKey, err)
	}

	s.mut.Lock()
	if s.sessions[mountKey] == e {
		delete(s.sessions, mountKey)
	}
	s.mut.Unlock()

	metricIncomingBacklog.DeleteLabelValues(mountKey)
	metricSaveToRemoteBacklog.DeleteLabelValues(mountKey)
}

func (s *Server) pollBacklog(mountKey string, sess *session.Session, stop <-chan struct{}) {
	ticker := time.NewTicker(backlogPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b := sess.Backlog()
			metricIncomingBacklog.WithLabelValues(mountKey).Set(float64(b.Incoming))
			metricSaveToRemoteBacklog.WithLabelValues(mountKey).Set(float64(b.SaveToRemote))
		}
	}
}

// Evict stops and deregisters the session under mountKey, if any,
// blocking until it has fully stopped.
func (s *Server) Evict(mountKey string) {
	s.mut.Lock()
	e, ok := s.sessions[mountKey]
	if ok {
		delete(s.sessions, mountKey)
	}
	s.mut.Unlock()
	if !ok {
		return
	}
	e.cancel()
	<-e.done
}

// Backlog answers the administrative query of §4.7 for one mount key.
func (s *Server) Backlog(mountKey string) (queue.Backlog, bool) {
	s.mut.RLock()
	e, ok := s.sessions[mountKey]
	s.mut.RUnlock()
	if !ok {
		return queue.Backlog{}, false
	}
	return e.session.Backlog(), true
}

// MountKeys lists the currently active sessions.
func (s *Server) MountKeys() []string {
	s.mut.RLock()
	defer s.mut.RUnlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	return keys
}

// Shutdown evicts every active session and waits for them all to stop.
func (s *Server) Shutdown() {
	for _, k := range s.MountKeys() {
		s.Evict(k)
	}
}
