// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package tafserver implements the producer side of the TAF protocol
// (spec.md §4.5): the half that compiles watch patterns into regexps,
// tracks which ones are armed, and raises NOTIFY when a watched file's
// new content matches. Grounded on
// original_source/src/taf/event_proto.py's EventStreamServer, with one
// deliberate deviation: that class's notify/get_watchs path references
// a self.watches attribute that is never assigned (only self.watchs
// is), a latent bug masked at runtime only because process_msg_WATCH_SET
// has an identical typo (w.__active name-mangled per-watch rather than
// a real active flag) that keeps get_watchs from ever actually being
// exercised with a populated watch list in practice. spec.md §9, Open
// Question 1, asks for this not to be replicated: Server tracks armed
// state as a real per-watch field and matches against a single
// authoritative watch slice.
package tafserver

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/calmh/logger"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sh01/taf/internal/eventstream"
	"github.com/sh01/taf/internal/framing"
	"github.com/sh01/taf/internal/watch"
)

var l = logger.DefaultLogger
var debug = strings.Contains(os.Getenv("TAFTRACE"), "server") || strings.Contains(os.Getenv("TAFTRACE"), "all")

// ServerWatch is a watch as the server sees it: compiled patterns plus
// the armed ("active", set via WATCH_SET) and fired ("set", cleared by
// RESET) flags from spec.md §3.
type ServerWatch struct {
	Index      int
	FilenameRe *regexp.Regexp
	LineRe     *regexp.Regexp
	Active     bool
	Fired      bool
}

// matchCacheSize bounds the per-filename watch-match memoization
// (fn2ws in event_proto.py, a plain unbounded dict there); an LRU cap
// keeps a server one systemd unit away from leaking memory across a
// long-lived watch over a directory with churning filenames.
const matchCacheSize = 4096

// Server is one end of a TAF connection, the producer side.
//
// Server.watchs and every ServerWatch's Active/Fired flags are mutated
// from two different goroutines in cmd/logs2stdout: Notify runs on the
// gazer's watch goroutine, while OnWatchSetup/OnWatchSet/OnReset run on
// the stdio-reader goroutine via Feed. spec.md §5 requires the watch
// list and its flags to behave as if owned by a single event-loop
// thread; mu is what actually enforces that here, since the two
// goroutines are real rather than the single-threaded asyncio loop the
// original assumed.
type Server struct {
	stream *framing.FramedStream

	mu     sync.Mutex
	watchs []*ServerWatch

	// fn2ws memoizes, per filename, which watches' FilenameRe matched
	// it — event_proto.py's get_watchs cache, generalized to an LRU so
	// it can't grow without bound. Guarded by mu alongside watchs, since
	// a watch's arrival invalidates it.
	fn2ws *lru.Cache[string, []*ServerWatch]
}

// New returns a Server with no watches registered.
func New() *Server {
	cache, err := lru.New[string, []*ServerWatch](matchCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which matchCacheSize never is.
		panic(err)
	}
	return &Server{stream: framing.New(), fn2ws: cache}
}

// Stream exposes the underlying FramedStream so the caller can pump
// PendingOutput/ConsumeOutput and feed inbound bytes via Feed.
func (s *Server) Stream() *framing.FramedStream { return s.stream }

// Feed hands newly read bytes to the underlying FramedStream and
// dispatches every complete message that becomes available.
func (s *Server) Feed(data []byte) error {
	msgs, err := s.stream.Feed(data)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := eventstream.Dispatch(msg, s); err != nil {
			return err
		}
	}
	return nil
}

// watchsForFile returns the watches whose filename pattern matches fn,
// consulting (and populating) fn2ws. Per spec.md §4.6, matching is a
// substring search (regexp.MatchString), not a full-string match.
//
// Callers must hold s.mu.
func (s *Server) watchsForFile(fn string) []*ServerWatch {
	if ws, ok := s.fn2ws.Get(fn); ok {
		return ws
	}

	var ws []*ServerWatch
	for _, w := range s.watchs {
		if w.FilenameRe.MatchString(fn) {
			ws = append(ws, w)
		}
	}
	s.fn2ws.Add(fn, ws)
	return ws
}

// Notify checks every line yielded by lazyLines against the watches
// registered for fn; each watch that is armed, not already fired, and
// whose LinePattern matches at least one line is marked fired and
// raises a NOTIFY to the client. lazyLines is called at most once, and
// only if fn has at least one registered watch — this mirrors
// logs2stdout.py's FileGazer, which only ever decodes a file's new
// bytes into lines when some watch actually cares about that file.
//
// Notify runs on the gazer's own goroutine (see internal/gazer), not
// on the goroutine that feeds inbound protocol bytes; s.mu is what
// keeps it from racing OnWatchSetup/OnWatchSet/OnReset.
func (s *Server) Notify(fn string, lazyLines func() []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.watchsForFile(fn)
	if len(ws) == 0 {
		return
	}

	var lines []string
	var linesLoaded bool
	loadLines := func() []string {
		if !linesLoaded {
			lines = lazyLines()
			linesLoaded = true
		}
		return lines
	}

	for _, w := range ws {
		if !w.Active || w.Fired {
			continue
		}
		for _, line := range loadLines() {
			if w.LineRe.MatchString(line) {
				w.Fired = true
				s.stream.QueueMessage(eventstream.Notify(uint64(w.Index)).List...)
				if debug {
					l.Debugf("tafserver: watch %d fired on %q: %q", w.Index, fn, line)
				}
				break
			}
		}
	}
}

// OnWatchSetup compiles the two patterns, registers a new watch, and
// acknowledges it. Registration order is the watch's index, matching
// the client's AddWatch bookkeeping (spec.md §3).
func (s *Server) OnWatchSetup(fnPattern, linePattern []byte) error {
	fnRe, err := regexp.Compile(string(fnPattern))
	if err != nil {
		return fmt.Errorf("tafserver: bad filename pattern %q: %w", fnPattern, err)
	}
	lineRe, err := regexp.Compile(string(linePattern))
	if err != nil {
		return fmt.Errorf("tafserver: bad line pattern %q: %w", linePattern, err)
	}

	s.mu.Lock()
	w := &ServerWatch{
		Index:      len(s.watchs),
		FilenameRe: fnRe,
		LineRe:     lineRe,
	}
	s.watchs = append(s.watchs, w)
	// A new watch can change the match set for any filename already in
	// the cache, so the memoization must be invalidated wholesale
	// rather than patched incrementally.
	s.fn2ws.Purge()
	s.mu.Unlock()

	if debug {
		l.Debugf("tafserver: watch %d registered (fn=%q line=%q)", w.Index, fnPattern, linePattern)
	}
	s.stream.QueueMessage(eventstream.Ack().List...)
	return nil
}

// OnWatchSet arms exactly the watches named by mask and disarms every
// other registered watch (spec.md §3: WATCH_SET replaces the armed
// set wholesale, it does not merge with the previous one).
func (s *Server) OnWatchSet(maskBytes []byte) error {
	mask := watch.Mask(maskBytes)

	s.mu.Lock()
	for i, w := range s.watchs {
		w.Active = mask.Bit(i)
	}
	s.mu.Unlock()

	if debug {
		l.Debugf("tafserver: watch_set mask=% x", maskBytes)
	}
	return nil
}

// OnReset clears every watch's fired flag, letting it raise NOTIFY
// again on its next match.
func (s *Server) OnReset() error {
	s.mu.Lock()
	for _, w := range s.watchs {
		w.Fired = false
	}
	s.mu.Unlock()

	if debug {
		l.Debugln("tafserver: reset")
	}
	return nil
}

// SendPong answers a PING, per the shared handling in eventstream.Dispatch.
func (s *Server) SendPong(arg uint64) {
	s.stream.QueueMessage(eventstream.Pong(arg).List...)
}

// OnPong is a no-op: the server never sends PING on its own in this
// implementation, so there is nothing outstanding to reconcile.
func (s *Server) OnPong(arg uint64) error {
	if debug {
		l.Debugf("tafserver: pong %d", arg)
	}
	return nil
}

// OnAck, OnNotify are client-only messages; a conformant consumer
// never sends them to a producer.
func (s *Server) OnAck() error {
	return fmt.Errorf("tafserver: unexpected ACK from remote")
}

func (s *Server) OnNotify(idx uint64) error {
	return fmt.Errorf("tafserver: unexpected NOTIFY from remote")
}

var _ eventstream.Handler = (*Server)(nil)
