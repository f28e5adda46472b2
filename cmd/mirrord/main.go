// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mirrord runs one or more mount sessions from a YAML mount-list
// file, listening for or dialing out to each mount's peer over TCP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	_ "go.uber.org/automaxprocs"

	"github.com/Recognized/mirror/internal/config"
	"github.com/Recognized/mirror/internal/events"
	"github.com/Recognized/mirror/internal/fsaccess"
	"github.com/Recognized/mirror/internal/logger"
	"github.com/Recognized/mirror/internal/server"
	"github.com/Recognized/mirror/internal/session"
	"github.com/Recognized/mirror/internal/watch"
	"github.com/Recognized/mirror/internal/wire"
)

var l = logger.DefaultLogger

// recorder keeps the last warnings/errors logged by any package so
// they're visible over HTTP without needing a log aggregator.
var recorder = logger.NewRecorder(l, logger.LevelWarn, 250, 10)

type cli struct {
	Config      string `required:"" short:"c" help:"Path to the mount-list YAML file."`
	MetricsAddr string `default:":8222" help:"Listen address for the /metrics HTTP endpoint."`
	Debug       bool   `help:"Enable debug logging."`
	CompressMin int    `default:"1024" help:"Minimum frame size, in bytes, before lz4 compression is attempted."`
}

func main() {
	var params cli
	kong.Parse(&params)

	if params.Debug {
		l.SetDebug("tree", true)
		l.SetDebug("synclogic", true)
	}

	file, err := config.LoadFile(params.Config)
	if err != nil {
		l.Warnf("mirrord: loading %s: %v", params.Config, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New()

	go serveMetrics(params.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	d := &daemon{server: srv, compressMin: params.CompressMin}
	for _, m := range file.Mounts {
		d.startMount(gctx, g, m)
	}

	<-ctx.Done()
	l.Infof("mirrord: shutting down")
	srv.Shutdown()

	// Wait for every mount's listen/dial loop to notice ctx is done and
	// release its socket before the process exits.
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		l.Warnf("mirrord: mount loop: %v", err)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/recent-warnings", serveRecentWarnings)
	if err := http.ListenAndServe(addr, mux); err != nil {
		l.Warnf("mirrord: metrics server: %v", err)
	}
}

func serveRecentWarnings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recorder.Since(time.Time{}))
}

// daemon owns the listen/dial loops that turn config.Mount entries into
// live Sessions registered with the Server.
type daemon struct {
	server      *server.Server
	compressMin int
}

func (d *daemon) startMount(ctx context.Context, g *errgroup.Group, m config.Mount) {
	if m.Listen != "" {
		g.Go(func() error { return d.listenLoop(ctx, m) })
	}
	if m.Connect != "" {
		g.Go(func() error { return d.dialLoop(ctx, m) })
	}
}

func (d *daemon) listenLoop(ctx context.Context, m config.Mount) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", m.Listen)
	if err != nil {
		return fmt.Errorf("mount %q: listen %s: %w", m.MountKey, m.Listen, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.Warnf("mirrord: mount %q: accept: %v", m.MountKey, err)
			continue
		}
		go d.handleConn(ctx, m, conn)
	}
}

func (d *daemon) dialLoop(ctx context.Context, m config.Mount) error {
	const retryDelay = 5 * time.Second
	for ctx.Err() == nil {
		dialer := net.Dialer{Timeout: 10 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", m.Connect)
		if err != nil {
			l.Warnf("mirrord: mount %q: dial %s: %v", m.MountKey, m.Connect, err)
			select {
			case <-time.After(retryDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		d.handleConn(ctx, m, conn)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// handleConn performs the mount-key handshake (§4.6 step 1) and, on a
// match, starts the session.
func (d *daemon) handleConn(ctx context.Context, m config.Mount, conn net.Conn) {
	if err := handshake(conn, m.MountKey); err != nil {
		l.Infof("mirrord: mount %q: handshake: %v", m.MountKey, err)
		events.Default.Log(events.SessionRejected, m.MountKey)
		conn.Close()
		return
	}

	includes, excludes, err := m.CompiledRules()
	if err != nil {
		l.Warnf("mirrord: mount %q: %v", m.MountKey, err)
		conn.Close()
		return
	}

	watcher, err := watch.NewFSWatcher(m.MountRoot)
	if err != nil {
		l.Warnf("mirrord: mount %q: watcher: %v", m.MountKey, err)
		conn.Close()
		return
	}

	cfg := session.Config{
		MountKey:      m.MountKey,
		MountRoot:     m.MountRoot,
		RemoteRoot:    m.RemoteRoot,
		Includes:      includes,
		Excludes:      excludes,
		DebugPrefixes: m.DebugPrefixes,
	}
	stream := wire.NewConn(conn, wire.DefaultMaxFrameSize, d.compressMin)
	sess := session.New(cfg, stream, watcher, fsaccess.New(m.MountRoot))

	l.Infof("mirrord: mount %q: session established with %s", m.MountKey, conn.RemoteAddr())
	d.server.Accept(m.MountKey, sess)
}

// handshake exchanges a newline-terminated mount key with the peer and
// fails if they don't match (§4.6 step 1: "Server matches or rejects").
// It reads one byte at a time rather than through a bufio.Reader, since
// over-reading here would silently eat the first bytes of the XDR frame
// stream wire.NewConn goes on to read from the same conn.
func handshake(conn net.Conn, mountKey string) error {
	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	defer conn.SetDeadline(time.Time{})

	if _, err := fmt.Fprintf(conn, "%s\n", mountKey); err != nil {
		return fmt.Errorf("sending mount key: %w", err)
	}
	peerKey, err := readLine(conn)
	if err != nil {
		return fmt.Errorf("reading peer mount key: %w", err)
	}
	if peerKey != mountKey {
		return fmt.Errorf("mount key mismatch: got %q, want %q", peerKey, mountKey)
	}
	return nil
}

func readLine(r io.Reader) (string, error) {
	var buf bytes.Buffer
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n > 0 {
			if b[0] == '\n' {
				return buf.String(), nil
			}
			buf.WriteByte(b[0])
		}
		if err != nil {
			return "", err
		}
	}
}
