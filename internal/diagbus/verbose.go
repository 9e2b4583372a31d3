// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package diagbus

import (
	"fmt"

	"github.com/calmh/logger"
)

// VerboseService subscribes to a Bus and prints every event it
// receives in human-readable form at Verbose level, adapted from
// cmd/syncthing/verboseservice.go's verboseService — the same
// subscribe/format/print loop, retargeted from syncthing's
// device/folder event vocabulary to TAF's connection and watch
// lifecycle events.
type VerboseService struct {
	bus     *Bus
	stop    chan struct{}
	started chan struct{}
}

// NewVerboseService returns a VerboseService that will print events
// from bus once Serve is called.
func NewVerboseService(bus *Bus) *VerboseService {
	return &VerboseService{
		bus:     bus,
		stop:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

// Serve runs the verbose logging loop until Stop is called.
func (s *VerboseService) Serve() {
	sub := s.bus.Subscribe(AllEvents)
	defer s.bus.Unsubscribe(sub)

	select {
	case <-s.started:
	default:
		close(s.started)
	}

	for {
		ev, err := sub.Poll(pollInterval)
		switch err {
		case nil:
			if formatted := FormatEvent(ev); formatted != "" {
				logger.DefaultLogger.Verboseln(formatted)
			}
		case ErrTimeout:
			// Nothing published recently; check for Stop and loop.
		case ErrClosed:
			return
		}

		select {
		case <-s.stop:
			return
		default:
		}
	}
}

// Stop stops the verbose logging loop.
func (s *VerboseService) Stop() {
	close(s.stop)
}

// WaitForStart returns once Serve has subscribed and is ready to
// receive events.
func (s *VerboseService) WaitForStart() {
	<-s.started
}

// FormatEvent renders ev as a single human-readable line. Exposed so
// callers that can't route through calmh/logger's stdout-bound
// DefaultLogger (cmd/logs2stdout, whose stdout is the TAF wire stream
// itself) can still format events consistently for their own stderr
// writer.
func FormatEvent(ev Event) string {
	switch ev.Type {
	case ConnectionUp:
		return fmt.Sprintf("Connected to remote producer (%v)", ev.Data)
	case ConnectionDown:
		return fmt.Sprintf("Disconnected from remote producer: %v", ev.Data)
	case WatchRegistered:
		return fmt.Sprintf("Registered watch %v", ev.Data)
	case WatchSetChanged:
		return fmt.Sprintf("Watch set changed: %v armed", ev.Data)
	case WatchFired:
		return fmt.Sprintf("Watch %v fired", ev.Data)
	case ResetIssued:
		return "Reset issued"
	case ProtocolFault:
		return fmt.Sprintf("Protocol fault: %v", ev.Data)
	}
	return fmt.Sprintf("%s %#v", ev.Type, ev)
}
