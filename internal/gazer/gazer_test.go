// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

package gazer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sh01/taf/internal/tafserver"
	"github.com/sh01/taf/internal/watch"
	"github.com/sh01/taf/internal/wire"
)

func TestScanRecordsBaselineSizes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.log"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := New(dir, tafserver.New())
	if err := g.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	p := filepath.Join(dir, "app.log")
	if g.sizes[p] != 6 {
		t.Fatalf("recorded size = %d, want 6", g.sizes[p])
	}
}

func TestScanRespectsIgnoreGlobs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.log"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.tmp"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := New(dir, tafserver.New())
	g.IgnoreGlobs = []string{"*.tmp"}
	if err := g.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if _, ok := g.sizes[filepath.Join(dir, "app.tmp")]; ok {
		t.Fatal("app.tmp should have been ignored")
	}
	if _, ok := g.sizes[filepath.Join(dir, "app.log")]; !ok {
		t.Fatal("app.log should have been scanned")
	}
}

func TestScanRespectsTafignoreFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.log"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "debug.log"), []byte("junk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ignoreFileName), []byte("debug.log\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := New(dir, tafserver.New())
	if err := g.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if _, ok := g.sizes[filepath.Join(dir, "debug.log")]; ok {
		t.Fatal("debug.log should have been ignored per .tafignore")
	}
	if _, ok := g.sizes[filepath.Join(dir, "app.log")]; !ok {
		t.Fatal("app.log should have been scanned")
	}
}

func TestScanWithoutTafignoreFileSucceeds(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.log"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := New(dir, tafserver.New())
	if err := g.Scan(); err != nil {
		t.Fatalf("Scan should succeed with no .tafignore present: %v", err)
	}
}

func TestHandleEventFiresNotify(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "app.log")
	if err := os.WriteFile(p, []byte("line one\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := tafserver.New()
	if err := srv.OnWatchSetup([]byte(`\.log$`), []byte("ERROR")); err != nil {
		t.Fatalf("OnWatchSetup: %v", err)
	}
	srv.OnWatchSet(watch.NewMask(0))
	srv.Stream().ConsumeOutput(len(srv.Stream().PendingOutput()))

	g := New(dir, srv)
	if err := g.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("ERROR: disk full\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	g.handleEvent(p)

	out := srv.Stream().PendingOutput()
	if len(out) == 0 {
		t.Fatal("expected a queued NOTIFY after the watched line appeared")
	}
	obj, _, err := wire.DecodeMessage(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj.List[1].Uint64() != 0 {
		t.Fatalf("notify payload = %v, want watch 0", obj)
	}
}

func TestHandleEventSkipsUnchangedSize(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "app.log")
	if err := os.WriteFile(p, []byte("ERROR: already there\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := tafserver.New()
	srv.OnWatchSetup([]byte(`\.log$`), []byte("ERROR"))
	srv.OnWatchSet(watch.NewMask(0))
	srv.Stream().ConsumeOutput(len(srv.Stream().PendingOutput()))

	g := New(dir, srv)
	if err := g.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	g.handleEvent(p)
	if srv.Stream().HasPendingOutput() {
		t.Fatal("file size unchanged since baseline, should not notify")
	}
}
