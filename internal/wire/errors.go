// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package wire implements the TAF protocol object codec: a recursive,
// length-prefixed, typed value format (unsigned integers, byte strings,
// and lists of objects) used to build every message on the wire.
package wire

import "fmt"

// ProtocolError is returned for any malformed input: an unknown type
// code, a list whose declared element count or length doesn't match its
// contents, or a truncated frame. It is always fatal to the connection
// that produced it.
type ProtocolError struct {
	reason string
}

func newProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{reason: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	return "taf protocol error: " + e.reason
}
