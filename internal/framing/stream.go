// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package framing reassembles the TAF wire format's length-prefixed
// frames out of an arbitrarily chunked byte stream, and queues
// outbound frames for writing. It is the Go-native version of
// spec.md §4.2: "ask how many bytes you need, feed the buffer, drain
// complete frames" — modeled on the teacher's countingReader/
// countingWriter wrappers (counting.go), generalized from byte
// counting to frame reassembly.
package framing

import (
	"bytes"
	"sync"

	"github.com/sh01/taf/internal/wire"
)

// lengthPrefixBytes is how much of the frame header must be buffered
// before the declared payload length can be read.
const lengthPrefixBytes = 4

// frameHeaderBytes is the full frame header: the uint32 length prefix
// plus the one-byte type code.
const frameHeaderBytes = 5

// FramedStream holds the inbound reassembly buffer and outbound write
// queue for one duplex connection. It does no I/O itself; callers feed
// it bytes read off the wire and drain bytes queued for writing. This
// split keeps FramedStream usable from a single-threaded event loop
// (spec.md §5) without tying it to any particular reactor.
type FramedStream struct {
	in []byte

	// outMu guards out and wake. QueueMessage is called from whichever
	// goroutine raises NOTIFY (the gazer's own, see internal/gazer) as
	// well as from the goroutine feeding inbound bytes (ACK/PONG
	// replies, via Feed -> eventstream.Dispatch), while PendingOutput/
	// HasPendingOutput/ConsumeOutput are called from a pump goroutine
	// that writes out to the transport. bytes.Buffer has no internal
	// synchronization, so all four need the same lock.
	outMu sync.Mutex
	out   bytes.Buffer

	// wake, if set via SetWakeChannel, receives a non-blocking signal
	// every time QueueMessage adds output — the hook an event-loop-less
	// caller (cmd/logs2stdout's stdio pump) uses to learn "there is now
	// something to write" without polling.
	wake chan struct{}
}

// New returns an empty FramedStream.
func New() *FramedStream {
	return &FramedStream{}
}

// NeedBytes reports the minimum number of buffered inbound bytes
// required before Feed can extract another message: 4, until the
// length prefix is visible, then 5 + payload-length until the whole
// top-level frame is buffered (spec.md §4.2).
func (s *FramedStream) NeedBytes() int {
	if len(s.in) < lengthPrefixBytes {
		return lengthPrefixBytes
	}
	payloadLen := int(s.in[0])<<24 | int(s.in[1])<<16 | int(s.in[2])<<8 | int(s.in[3])
	return frameHeaderBytes + payloadLen
}

// Feed appends newly read bytes to the inbound buffer and decodes as
// many complete top-level messages as are now available. Consumed
// bytes are dropped from the buffer. A protocol error aborts
// immediately and leaves the stream in an undefined state; callers
// must close the connection (spec.md §7).
func (s *FramedStream) Feed(data []byte) ([]wire.Object, error) {
	s.in = append(s.in, data...)

	var msgs []wire.Object
	for len(s.in) >= frameHeaderBytes {
		need := s.NeedBytes()
		if len(s.in) < need {
			break
		}

		obj, n, err := wire.DecodeMessage(s.in)
		if err != nil {
			return msgs, err
		}

		msgs = append(msgs, obj)
		s.in = s.in[n:]
	}

	return msgs, nil
}

// QueueMessage encodes a message (a list of objects, the first of
// which is the message type code) and appends it to the outbound
// queue.
func (s *FramedStream) QueueMessage(items ...wire.Object) {
	s.outMu.Lock()
	s.out.Write(wire.EncodeMessage(items...))
	wake := s.wake
	s.outMu.Unlock()

	if wake != nil {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// SetWakeChannel installs ch as the channel QueueMessage pings
// whenever it adds output. Pass a channel with capacity >= 1 so the
// non-blocking send never drops a wakeup that the reader hasn't
// gotten around to yet.
func (s *FramedStream) SetWakeChannel(ch chan struct{}) {
	s.outMu.Lock()
	s.wake = ch
	s.outMu.Unlock()
}

// PendingOutput returns a copy of the bytes currently queued for
// writing. The caller is expected to write some or all of them to the
// underlying stream and report back via ConsumeOutput.
func (s *FramedStream) PendingOutput() []byte {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	out := make([]byte, s.out.Len())
	copy(out, s.out.Bytes())
	return out
}

// HasPendingOutput reports whether any bytes are queued for writing —
// the "output queue is non-empty" condition spec.md §5 names as one of
// the event loop's suspension points (the loop should only watch for
// write-readiness while this is true).
func (s *FramedStream) HasPendingOutput() bool {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return s.out.Len() > 0
}

// ConsumeOutput drops the first n bytes of the outbound queue, for use
// after a partial or complete write.
func (s *FramedStream) ConsumeOutput(n int) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	remaining := s.out.Bytes()[n:]
	s.out.Reset()
	s.out.Write(remaining)
}
