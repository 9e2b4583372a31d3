// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

package wire

import (
	"math/big"
	"reflect"
	"testing"
)

func bigFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad test constant: " + s)
	}
	return n
}

func roundTripValues() []Object {
	return []Object{
		Uint(0),
		Uint(1),
		Uint(42),
		Uint(127),
		Uint(128),
		Uint(255),
		Uint(256),
		Uint(1<<32 - 1),
		BigUint(bigFromString("18446744073709551617")), // 2**64 + 1
		Str(nil),
		Str([]byte("foo")),
		List(),
		List(Uint(42)),
		List(Str([]byte("foo"))),
		List(Str(nil), Uint(0), Uint(3), Str([]byte("bar"))),
		List(List(List(), Str([]byte("foo")))),
	}
}

func equalObjects(a, b Object) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindUint:
		return a.Num.Cmp(b.Num) == 0
	case KindBytes:
		return reflect.DeepEqual(a.Bytes, b.Bytes) || (len(a.Bytes) == 0 && len(b.Bytes) == 0)
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !equalObjects(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func TestRoundTrip(t *testing.T) {
	for _, v := range roundTripValues() {
		encoded := Encode(v)
		decoded, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(Encode(%v)): %v", v, err)
		}
		if n != len(encoded) {
			t.Fatalf("Decode(Encode(%v)) consumed %d of %d bytes", v, n, len(encoded))
		}
		if !equalObjects(v, decoded) {
			t.Fatalf("round trip mismatch: %v != %v", v, decoded)
		}
	}
}

func TestEncodeMinimality(t *testing.T) {
	cases := []struct {
		v            Object
		payloadBytes int
	}{
		{Uint(0), 0},
		{Uint(1), 1},
		{Uint(255), 1},
		{Uint(256), 2},
	}
	for _, c := range cases {
		enc := Encode(c.v)
		if len(enc) != frameHeaderSize+c.payloadBytes {
			t.Errorf("Encode(%v): got %d total bytes, want %d header + %d payload", c.v, len(enc), frameHeaderSize, c.payloadBytes)
		}
	}
}

func TestListTotalSizeInvariant(t *testing.T) {
	for _, v := range roundTripValues() {
		if v.Kind != KindList {
			continue
		}
		enc := Encode(v)
		declared := int(enc[0])<<24 | int(enc[1])<<16 | int(enc[2])<<8 | int(enc[3])
		if declared != len(enc)-frameHeaderSize {
			t.Errorf("List %v: declared payload length %d, actual %d", v, declared, len(enc)-frameHeaderSize)
		}
		// 4-byte count header plus children must equal payload-length exactly.
		childrenLen := declared - 4
		if childrenLen < 0 {
			t.Errorf("List %v: payload too short to hold the element count", v)
		}
	}
}

func TestDecodeUnknownTypeCode(t *testing.T) {
	data := []byte{0, 0, 0, 0, 0xFF}
	_, _, err := Decode(data)
	if err == nil {
		t.Fatal("expected protocol error for unknown type code")
	}
}

func TestDecodeTruncated(t *testing.T) {
	full := Encode(Str([]byte("hello world")))
	for i := 0; i < len(full); i++ {
		if _, _, err := Decode(full[:i]); err == nil {
			t.Fatalf("expected error decoding truncated input of length %d", i)
		}
	}
}

func TestDecodeMessageContract(t *testing.T) {
	// non-list root
	if _, _, err := DecodeMessage(Encode(Uint(1))); err == nil {
		t.Fatal("expected error for non-list message root")
	}
	// empty list
	if _, _, err := DecodeMessage(Encode(List())); err == nil {
		t.Fatal("expected error for empty list message root")
	}
	// first element not a uint
	if _, _, err := DecodeMessage(Encode(List(Str([]byte("x"))))); err == nil {
		t.Fatal("expected error for non-uint message type")
	}
	// valid message
	msg := List(Uint(0x06), Uint(3))
	obj, n, err := DecodeMessage(Encode(msg))
	if err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	if n != len(Encode(msg)) {
		t.Fatalf("consumed %d bytes, want %d", n, len(Encode(msg)))
	}
	if obj.List[0].Uint64() != 0x06 || obj.List[1].Uint64() != 3 {
		t.Fatalf("decoded message mismatch: %v", obj)
	}
}

func TestListElementCountMismatch(t *testing.T) {
	// Hand-craft a list frame that claims 2 elements but only contains one.
	inner := Encode(Uint(1))
	payload := append([]byte{0, 0, 0, 2}, inner...)
	header := []byte{
		byte(len(payload) >> 24), byte(len(payload) >> 16), byte(len(payload) >> 8), byte(len(payload)),
		byte(KindList),
	}
	data := append(header, payload...)
	if _, _, err := Decode(data); err == nil {
		t.Fatal("expected error for list element count mismatch")
	}
}
