// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/Recognized/mirror/buffers"
)

// DefaultMaxFrameSize bounds a single framed message, per §6.
const DefaultMaxFrameSize = 1 << 30

// maxFrameBodyLen bounds Update.Data while decoding a single message; the
// real ceiling is whatever MaxFrameSize the Conn was constructed with,
// enforced before decodeXDR ever runs.
const maxFrameBodyLen = DefaultMaxFrameSize

// frame header: 4-byte big-endian length (of the XDR payload that
// follows), top bit set means the payload is lz4-compressed.
const compressedBit = uint32(1) << 31

// Stream is the abstract transport capability the engine consumes (§1,
// §6): a bidirectional stream of framed Update messages. Implementations
// are free to run over TCP, TLS, QUIC or an in-memory pipe; the engine
// itself is transport-agnostic.
type Stream interface {
	Send(Update) error
	Recv() (Update, error)
	Close() error
}

// Conn frames Updates over a net.Conn (or any io.ReadWriteCloser),
// compressing payloads above a threshold with lz4 and bounding message
// size at MaxFrameSize.
type Conn struct {
	rw          io.ReadWriteCloser
	r           *bufio.Reader
	maxFrame    uint32
	compressMin int

	writeMut sync.Mutex
	readMut  sync.Mutex
}

// NewConn wraps rw. maxFrame of 0 uses DefaultMaxFrameSize; compressMin
// of 0 disables compression negotiation (every frame sent uncompressed,
// every frame received decompressed if the flag says so).
func NewConn(rw io.ReadWriteCloser, maxFrame uint32, compressMin int) *Conn {
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &Conn{rw: rw, r: bufio.NewReader(rw), maxFrame: maxFrame, compressMin: compressMin}
}

func (c *Conn) Send(u Update) error {
	payload, err := u.MarshalXDR()
	if err != nil {
		return err
	}

	compressed := false
	if c.compressMin > 0 && len(payload) >= c.compressMin {
		packed := make([]byte, lz4.CompressBlockBound(len(payload)))
		var lc lz4.Compressor
		n, err := lc.CompressBlock(payload, packed)
		if err == nil && n > 0 && n < len(payload) {
			payload = packed[:n]
			compressed = true
		}
	}

	if uint32(len(payload)) > c.maxFrame {
		return fmt.Errorf("wire: frame of %d bytes exceeds max %d", len(payload), c.maxFrame)
	}

	header := uint32(len(payload))
	if compressed {
		header |= compressedBit
	}

	c.writeMut.Lock()
	defer c.writeMut.Unlock()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], header)
	if _, err := c.rw.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = c.rw.Write(payload)
	return err
}

func (c *Conn) Recv() (Update, error) {
	c.readMut.Lock()
	defer c.readMut.Unlock()

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return Update{}, err
	}
	header := binary.BigEndian.Uint32(lenBuf[:])
	compressed := header&compressedBit != 0
	size := header &^ compressedBit
	if size > c.maxFrame {
		return Update{}, fmt.Errorf("wire: incoming frame of %d bytes exceeds max %d", size, c.maxFrame)
	}

	payload := buffers.Get(int(size))
	defer buffers.Put(payload)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return Update{}, err
	}

	if compressed {
		// lz4 block compression doesn't embed the decompressed size, so
		// grow the destination buffer until it fits.
		dst := buffers.Get(len(payload) * 4)
		for {
			n, err := lz4.UncompressBlock(payload, dst)
			if err == nil {
				payload = dst[:n]
				break
			}
			buffers.Put(dst)
			dst = buffers.Get(len(dst) * 2)
		}
		defer buffers.Put(dst)
	}

	var u Update
	if err := u.UnmarshalXDR(payload); err != nil {
		return Update{}, err
	}
	return u, nil
}

func (c *Conn) Close() error {
	return c.rw.Close()
}

// KeepAlive sends a probe Update on stream every interval until stop is
// closed or a send fails, in which case it returns that error so the
// caller can tear the session down (§5 "Timeouts": probe every 20s,
// disconnect if unanswered within 5s — the response-timeout half of
// that contract belongs to the transport's own read deadline, outside
// this abstract Stream).
func KeepAlive(stream Stream, interval time.Duration, stop <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if err := stream.Send(KeepAliveProbe()); err != nil {
				return err
			}
		}
	}
}
