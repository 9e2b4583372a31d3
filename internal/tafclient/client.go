// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package tafclient implements the consumer side of the TAF protocol
// (spec.md §4.4): the half that registers watches with a remote
// producer, selects which of them are armed via a WatchSet, and reacts
// to NOTIFY messages. Grounded on original_source/src/taf/event_proto.py's
// EventStreamClient and original_source/src/bin/taf_ui.py's Notifier,
// adapted onto the syncthing teacher's calmh/logger idiom.
package tafclient

import (
	"fmt"
	"os"
	"strings"

	"github.com/calmh/logger"

	"github.com/sh01/taf/internal/eventstream"
	"github.com/sh01/taf/internal/framing"
	"github.com/sh01/taf/internal/watch"
)

var l = logger.DefaultLogger
var debug = strings.Contains(os.Getenv("TAFTRACE"), "client") || strings.Contains(os.Getenv("TAFTRACE"), "all")

// NotifyFunc is invoked for every NOTIFY message the remote producer
// sends, with the index of the watch that fired.
type NotifyFunc func(idx int)

// Client is one end of a TAF connection, the consumer side. It owns no
// I/O itself: Outbound bytes accumulate in its FramedStream and the
// caller is responsible for pumping bytes in both directions (spec.md
// §5's single-threaded event loop model).
//
// Client never compiles the patterns it registers (spec.md §9, Open
// Question 3: the server does the matching; the client only needs to
// remember which index a pattern was assigned).
type Client struct {
	stream *framing.FramedStream
	watchs []watch.ClientWatch

	// AutoReset, when true, causes a RESET to be sent automatically
	// after every NOTIFY, mirroring taf_ui.py's Notifier.process_notify
	// with do_autoreset set. Off by default: the caller decides.
	AutoReset bool

	// NotifyHandler is invoked, if set, whenever a watch fires.
	NotifyHandler NotifyFunc
}

// New returns a Client with an empty watch list and its own outbound
// FramedStream.
func New() *Client {
	return &Client{stream: framing.New()}
}

// Stream exposes the underlying FramedStream so the caller can pump
// PendingOutput/ConsumeOutput and feed inbound bytes via Feed.
func (c *Client) Stream() *framing.FramedStream { return c.stream }

// AddWatch registers a new watch with the remote side and returns its
// assigned index. Indices are assigned densely in registration order,
// matching the server's expectation (spec.md §3) that WATCH_SETUP
// messages arrive in the order the client intends to reference them.
func (c *Client) AddWatch(filenamePattern, linePattern []byte) int {
	idx := len(c.watchs)
	c.watchs = append(c.watchs, watch.ClientWatch{
		Index:           idx,
		FilenamePattern: filenamePattern,
		LinePattern:     linePattern,
	})
	c.stream.QueueMessage(eventstream.WatchSetup(filenamePattern, linePattern).List...)
	if debug {
		l.Debugf("tafclient: added watch %d (fn=%q line=%q)", idx, filenamePattern, linePattern)
	}
	return idx
}

// WatchSet arms exactly the watches named by mask and disarms every
// other registered watch, mirroring Notifier.pick_ws.
func (c *Client) WatchSet(mask watch.Mask) {
	c.stream.QueueMessage(eventstream.WatchSet(mask).List...)
}

// WatchSetAll arms every watch registered so far — the convenience
// case taf_ui.py's start_forward uses as its initial WatchSet before
// any user selection (pick_ws(0) against a "watch set 0" that usually
// selects everything).
func (c *Client) WatchSetAll() {
	indices := make([]int, len(c.watchs))
	for i := range c.watchs {
		indices[i] = i
	}
	c.WatchSet(watch.NewMask(indices...))
}

// Reset sends a RESET, re-arming every currently-armed watch so it can
// fire again.
func (c *Client) Reset() {
	c.stream.QueueMessage(eventstream.Reset().List...)
}

// Ping sends a PING with the given opaque argument; the server will
// answer with PONG carrying the same value.
func (c *Client) Ping(arg uint64) {
	c.stream.QueueMessage(eventstream.Ping(arg).List...)
}

// Feed hands newly read bytes to the underlying FramedStream and
// dispatches every complete message that becomes available.
func (c *Client) Feed(data []byte) error {
	msgs, err := c.stream.Feed(data)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := eventstream.Dispatch(msg, c); err != nil {
			return err
		}
	}
	return nil
}

// SendPong answers a PING, per the shared handling in eventstream.Dispatch.
func (c *Client) SendPong(arg uint64) {
	c.stream.QueueMessage(eventstream.Pong(arg).List...)
}

// OnPong is a no-op: the client has no outstanding-ping bookkeeping to
// reconcile (the teacher's equivalent connection-health check lives
// one layer up, where the caller owns a keepalive timer).
func (c *Client) OnPong(arg uint64) error {
	if debug {
		l.Debugf("tafclient: pong %d", arg)
	}
	return nil
}

// OnAck acknowledges a prior WATCH_SETUP. The client doesn't need to do
// anything with it beyond logging: watch registration on this side is
// fire-and-forget (event_proto.py's add_watch never blocks on the ACK
// either).
func (c *Client) OnAck() error {
	if debug {
		l.Debugln("tafclient: ack")
	}
	return nil
}

// OnWatchSetup, OnWatchSet and OnReset are server-only messages; a
// conformant remote producer never sends them to a consumer.
func (c *Client) OnWatchSetup(fnPattern, linePattern []byte) error {
	return fmt.Errorf("tafclient: unexpected WATCH_SETUP from remote")
}

func (c *Client) OnWatchSet(mask []byte) error {
	return fmt.Errorf("tafclient: unexpected WATCH_SET from remote")
}

func (c *Client) OnReset() error {
	return fmt.Errorf("tafclient: unexpected RESET from remote")
}

// OnNotify handles a fired watch: it invokes the caller's NotifyFunc,
// and if AutoReset is set, immediately re-arms by sending RESET — the
// Go-native form of taf_ui.py's process_notify/do_autoreset.
func (c *Client) OnNotify(idx uint64) error {
	if debug {
		l.Debugf("tafclient: notify %d", idx)
	}
	if c.NotifyHandler != nil {
		c.NotifyHandler(int(idx))
	}
	if c.AutoReset {
		c.Reset()
	}
	return nil
}

var _ eventstream.Handler = (*Client)(nil)
