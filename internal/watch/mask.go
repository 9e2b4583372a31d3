// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

package watch

// Mask is a WatchSet: a little-endian, minimum-length bitmask over
// watch indices (spec.md §3, §4.1). It is the one field on the wire
// that is interpreted little-endian rather than big-endian.
type Mask []byte

// NewMask builds a Mask selecting exactly the given watch indices, in
// the minimum number of bytes (an all-zero selection encodes as a
// zero-length Mask). Grounded on original_source/src/taf/event_proto.py's
// encode_vint(mask, 'little'), used by Config.add_watchset to turn a
// set of pattern indices into the wire bitmask.
func NewMask(indices ...int) Mask {
	var top int
	for _, idx := range indices {
		if idx > top {
			top = idx
		}
	}
	if len(indices) == 0 {
		return nil
	}

	nbytes := top/8 + 1
	m := make(Mask, nbytes)
	for _, idx := range indices {
		m[idx/8] |= 1 << uint(idx%8)
	}
	return trimTrailingZeros(m)
}

func trimTrailingZeros(m Mask) Mask {
	n := len(m)
	for n > 0 && m[n-1] == 0 {
		n--
	}
	return m[:n]
}

// Bit reports whether index i is selected. Indices at or beyond the
// mask's bit length are unset — this is also how spec.md §9's Open
// Question ("WATCH_SET bitmask past watch_count") is naturally
// resolved: Bit simply returns false for any index the mask doesn't
// reach, so extra high watch indices are left disarmed, and extra high
// mask bits (beyond the known watch count) are never read by anyone.
func (m Mask) Bit(i int) bool {
	byteIdx := i / 8
	if byteIdx < 0 || byteIdx >= len(m) {
		return false
	}
	return m[byteIdx]&(1<<uint(i%8)) != 0
}
