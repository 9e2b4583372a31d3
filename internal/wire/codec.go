// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

package wire

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/calmh/xdr"
)

// frameHeaderSize is the fixed 5-byte header every object carries on the
// wire: a big-endian uint32 payload length followed by a uint8 type
// code. See header.go in the teacher's protocol package for the same
// idea applied to a single packed uint32 rather than a tagged value.
const frameHeaderSize = 5

// Encode serializes o as a complete framed object: header plus payload.
func Encode(o Object) []byte {
	var buf bytes.Buffer
	w := xdr.NewWriter(&buf)
	encodeInto(w, o)
	return buf.Bytes()
}

// EncodeMessage serializes items as a List object — the shape every
// top-level TAF message takes (see eventstream.Dispatch).
func EncodeMessage(items ...Object) []byte {
	return Encode(List(items...))
}

func encodeInto(w *xdr.Writer, o Object) {
	switch o.Kind {
	case KindUint:
		payload := minimalBigEndian(o.Num)
		writeHeader(w, KindUint, len(payload))
		w.WriteRaw(payload)

	case KindBytes:
		writeHeader(w, KindBytes, len(o.Bytes))
		w.WriteRaw(o.Bytes)

	case KindList:
		var children bytes.Buffer
		cw := xdr.NewWriter(&children)
		for _, child := range o.List {
			encodeInto(cw, child)
		}
		payloadLen := 4 + children.Len()
		writeHeader(w, KindList, payloadLen)
		w.WriteUint32(uint32(len(o.List)))
		w.WriteRaw(children.Bytes())

	default:
		panic("wire: encode of invalid object kind")
	}
}

func writeHeader(w *xdr.Writer, k Kind, payloadLen int) {
	w.WriteUint32(uint32(payloadLen))
	w.WriteRaw([]byte{byte(k)})
}

// minimalBigEndian returns the shortest big-endian byte representation
// of n, with zero encoding to a zero-length slice (spec.md §4.1).
func minimalBigEndian(n *big.Int) []byte {
	if n.Sign() == 0 {
		return nil
	}
	return n.Bytes()
}

// Decode parses a single framed object from the front of data. It
// returns the decoded object and the number of bytes consumed. data
// must already contain at least as many bytes as the frame declares;
// Framing (internal/framing) guarantees this via NeedBytes before
// calling Decode.
func Decode(data []byte) (Object, int, error) {
	if len(data) < frameHeaderSize {
		return Object{}, 0, newProtocolError("frame header truncated: have %d bytes, need %d", len(data), frameHeaderSize)
	}

	payloadLen := int(binary.BigEndian.Uint32(data[:4]))
	kind := Kind(data[4])
	total := frameHeaderSize + payloadLen

	if len(data) < total {
		return Object{}, 0, newProtocolError("frame truncated: declared payload %d bytes, have %d available", payloadLen, len(data)-frameHeaderSize)
	}

	payload := data[frameHeaderSize:total]

	switch kind {
	case KindUint:
		n := new(big.Int).SetBytes(payload)
		return Object{Kind: KindUint, Num: n}, total, nil

	case KindBytes:
		b := make([]byte, len(payload))
		copy(b, payload)
		return Object{Kind: KindBytes, Bytes: b}, total, nil

	case KindList:
		items, err := decodeListPayload(payload)
		if err != nil {
			return Object{}, 0, err
		}
		return Object{Kind: KindList, List: items}, total, nil

	default:
		return Object{}, 0, newProtocolError("unknown type code 0x%02x", uint8(kind))
	}
}

func decodeListPayload(payload []byte) ([]Object, error) {
	if len(payload) < 4 {
		return nil, newProtocolError("list payload too short for element count: %d bytes", len(payload))
	}
	count := int(binary.BigEndian.Uint32(payload[:4]))
	rest := payload[4:]

	items := make([]Object, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		if off > len(rest) {
			return nil, newProtocolError("list declares %d elements but payload ran out after %d", count, i)
		}
		obj, n, err := Decode(rest[off:])
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
		off += n
	}

	if off != len(rest) {
		return nil, newProtocolError("list payload size mismatch: consumed %d of %d bytes after %d elements", off, len(rest), count)
	}

	return items, nil
}

// DecodeMessage decodes a single top-level message frame and validates
// it has the message shape required by spec.md §4.1's contract: a
// non-empty list whose first element is a Uint.
func DecodeMessage(data []byte) (Object, int, error) {
	obj, n, err := Decode(data)
	if err != nil {
		return Object{}, 0, err
	}
	if obj.Kind != KindList {
		return Object{}, 0, newProtocolError("message root is not a list (got %s)", obj.Kind)
	}
	if len(obj.List) == 0 {
		return Object{}, 0, newProtocolError("message root list is empty")
	}
	if obj.List[0].Kind != KindUint {
		return Object{}, 0, newProtocolError("message type (first list element) is not a Uint (got %s)", obj.List[0].Kind)
	}
	return obj, n, nil
}
