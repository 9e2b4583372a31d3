// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package metrics exposes Prometheus counters for TAF's connection
// byte traffic, adapted from the teacher's root-level counting.go
// (countingReader/countingWriter wrapping an io.Reader/io.Writer with
// atomic byte totals). Where the teacher accumulates into package-level
// atomics surfaced through TotalInOut(), here the same wrapper shape
// increments promauto counters instead, so the totals are scrapeable
// rather than only queryable in-process.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bytesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taf",
		Name:      "bytes_in_total",
		Help:      "Total bytes read from a TAF connection, by role.",
	}, []string{"role"})

	bytesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taf",
		Name:      "bytes_out_total",
		Help:      "Total bytes written to a TAF connection, by role.",
	}, []string{"role"})

	watchesFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taf",
		Name:      "watches_fired_total",
		Help:      "Total NOTIFY messages raised, by role.",
	}, []string{"role"})
)

// CountingReader wraps r, adding each Read's byte count to the
// taf_bytes_in_total counter under the given role ("client" or
// "server").
type CountingReader struct {
	io.Reader
	role string
}

// NewCountingReader wraps r for role (typically "client" or "server").
func NewCountingReader(r io.Reader, role string) *CountingReader {
	return &CountingReader{Reader: r, role: role}
}

func (c *CountingReader) Read(bs []byte) (int, error) {
	n, err := c.Reader.Read(bs)
	if n > 0 {
		bytesIn.WithLabelValues(c.role).Add(float64(n))
	}
	return n, err
}

// CountingWriter wraps w, adding each Write's byte count to the
// taf_bytes_out_total counter under the given role.
type CountingWriter struct {
	io.Writer
	role string
}

// NewCountingWriter wraps w for role.
func NewCountingWriter(w io.Writer, role string) *CountingWriter {
	return &CountingWriter{Writer: w, role: role}
}

func (c *CountingWriter) Write(bs []byte) (int, error) {
	n, err := c.Writer.Write(bs)
	if n > 0 {
		bytesOut.WithLabelValues(c.role).Add(float64(n))
	}
	return n, err
}

// WatchFired increments the fired-watch counter for role.
func WatchFired(role string) {
	watchesFired.WithLabelValues(role).Inc()
}
