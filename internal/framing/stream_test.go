// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

package framing

import (
	"testing"

	"github.com/sh01/taf/internal/wire"
)

func TestFeedArbitrarySplit(t *testing.T) {
	msg := wire.List(wire.Uint(0x06), wire.Uint(7))
	full := wire.Encode(msg)

	splits := [][]int{
		{len(full)},
		{1, len(full) - 1},
		{2, 2, len(full) - 4},
	}
	for i := 3; i < len(full); i++ {
		splits = append(splits, []int{i, len(full) - i})
	}

	for _, split := range splits {
		s := New()
		var got []wire.Object
		off := 0
		for _, n := range split {
			chunk := full[off : off+n]
			off += n
			msgs, err := s.Feed(chunk)
			if err != nil {
				t.Fatalf("split %v: Feed error: %v", split, err)
			}
			got = append(got, msgs...)
		}
		if len(got) != 1 {
			t.Fatalf("split %v: got %d messages, want 1", split, len(got))
		}
		if got[0].List[1].Uint64() != 7 {
			t.Fatalf("split %v: decoded wrong message: %v", split, got[0])
		}
	}
}

func TestFeedTwoConcatenatedMessages(t *testing.T) {
	m1 := wire.Encode(wire.List(wire.Uint(0), wire.Uint(111)))
	m2 := wire.Encode(wire.List(wire.Uint(1), wire.Uint(222)))

	s := New()
	msgs, err := s.Feed(append(append([]byte{}, m1...), m2...))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].List[1].Uint64() != 111 || msgs[1].List[1].Uint64() != 222 {
		t.Fatalf("messages out of order or wrong: %v", msgs)
	}
}

func TestNeedBytesProgression(t *testing.T) {
	s := New()
	if got := s.NeedBytes(); got != 4 {
		t.Fatalf("empty stream NeedBytes() = %d, want 4", got)
	}

	msg := wire.Encode(wire.List(wire.Uint(0), wire.Uint(1)))
	s.Feed(msg[:4])
	if got, want := s.NeedBytes(), len(msg); got != want {
		t.Fatalf("after header NeedBytes() = %d, want %d", got, want)
	}
}

func TestQueueAndConsumeOutput(t *testing.T) {
	s := New()
	s.QueueMessage(wire.Uint(0x01), wire.Uint(99))
	if !s.HasPendingOutput() {
		t.Fatal("expected pending output after QueueMessage")
	}
	pending := append([]byte{}, s.PendingOutput()...)
	s.ConsumeOutput(len(pending))
	if s.HasPendingOutput() {
		t.Fatal("expected no pending output after consuming all of it")
	}

	decoded, n, err := wire.DecodeMessage(pending)
	if err != nil || n != len(pending) {
		t.Fatalf("queued message did not decode cleanly: %v %d", err, n)
	}
	if decoded.List[1].Uint64() != 99 {
		t.Fatalf("wrong payload: %v", decoded)
	}
}

func TestFeedProtocolError(t *testing.T) {
	s := New()
	bad := []byte{0, 0, 0, 0, 0xFF}
	if _, err := s.Feed(bad); err == nil {
		t.Fatal("expected protocol error for unknown type code")
	}
}

func TestQueueMessagePingsWakeChannel(t *testing.T) {
	s := New()
	wake := make(chan struct{}, 1)
	s.SetWakeChannel(wake)

	s.QueueMessage(wire.Uint(0x02))
	select {
	case <-wake:
	default:
		t.Fatal("expected a wake signal after QueueMessage")
	}

	// A second QueueMessage before the first wake is drained should not
	// block on the non-blocking send.
	s.QueueMessage(wire.Uint(0x02))
	s.QueueMessage(wire.Uint(0x02))
}
