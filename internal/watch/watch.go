// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package watch defines the shared Watch/WatchSet data model described
// in spec.md §3: ClientWatch and the Mask bitmask. The client never
// compiles patterns (spec.md §9, Open Question 3), so ClientWatch
// carries the raw byte-string patterns; the server's own watch type,
// tafserver.ServerWatch, lives in package tafserver and carries
// compiled regexps plus the armed/fired flags.
package watch

// ClientWatch is a watch as the client sees it: an index and the two
// patterns it was registered with, verbatim. No regex compilation
// happens on this side of the wire.
type ClientWatch struct {
	Index           int
	FilenamePattern []byte
	LinePattern     []byte
}
