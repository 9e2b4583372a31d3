// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

package wire

import (
	"fmt"
	"math/big"
)

// Kind identifies which of the three protocol object shapes a frame
// carries.
type Kind uint8

const (
	// KindUint is an arbitrary-precision non-negative integer, encoded
	// as the minimal big-endian byte representation of its value.
	KindUint Kind = 0x01
	// KindBytes is an opaque octet string.
	KindBytes Kind = 0x02
	// KindList is an ordered sequence of objects.
	KindList Kind = 0x03
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "Uint"
	case KindBytes:
		return "Bytes"
	case KindList:
		return "List"
	default:
		return fmt.Sprintf("Kind(0x%02x)", uint8(k))
	}
}

// Object is a single protocol value: a non-negative integer, a byte
// string, or a list of objects. Exactly one of the fields below is
// meaningful, selected by Kind.
type Object struct {
	Kind  Kind
	Num   *big.Int
	Bytes []byte
	List  []Object
}

// Uint wraps a uint64 as a protocol Uint object.
func Uint(v uint64) Object {
	return Object{Kind: KindUint, Num: new(big.Int).SetUint64(v)}
}

// BigUint wraps an arbitrary-precision non-negative integer. The sign of
// n is ignored by callers; TAF never needs to encode negative numbers.
func BigUint(n *big.Int) Object {
	return Object{Kind: KindUint, Num: new(big.Int).Set(n)}
}

// Str wraps a byte string as a protocol Bytes object.
func Str(b []byte) Object {
	return Object{Kind: KindBytes, Bytes: b}
}

// List wraps a sequence of objects as a protocol List object.
func List(items ...Object) Object {
	return Object{Kind: KindList, List: items}
}

// Uint64 returns the value of a Uint object, truncated to uint64. It
// panics if o is not a Uint; callers are expected to have already
// validated Kind via the message registry.
func (o Object) Uint64() uint64 {
	if o.Kind != KindUint {
		panic("wire: Uint64 called on non-Uint object")
	}
	return o.Num.Uint64()
}

func (o Object) String() string {
	switch o.Kind {
	case KindUint:
		return o.Num.String()
	case KindBytes:
		return fmt.Sprintf("%q", o.Bytes)
	case KindList:
		return fmt.Sprintf("%v", o.List)
	default:
		return "<invalid>"
	}
}
