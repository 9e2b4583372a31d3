// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
patterns:
  - name: errors
    filenamePattern: '\.log$'
    linePattern: 'ERROR'
  - name: warnings
    filenamePattern: '\.log$'
    linePattern: 'WARN'
watchSets:
  - description: Errors only
    patterns: [errors]
  - description: Everything
    patterns: [errors, warnings]
forwardHost: example.org
forwardDir: /var/log/myapp
autoreset: true
pidFile: /tmp/taf-ui.pid
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadParsesDocument(t *testing.T) {
	c, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Patterns) != 2 || c.Patterns[1].Name != "warnings" {
		t.Fatalf("patterns = %+v", c.Patterns)
	}
	if c.ForwardHost != "example.org" || !c.Autoreset {
		t.Fatalf("scalar fields wrong: %+v", c)
	}
}

func TestResolveBuildsMask(t *testing.T) {
	c, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	mask, err := c.Resolve(c.WatchSets[1])
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(mask) != 1 || mask[0] != 0x03 {
		t.Fatalf("mask = %v, want [0x03]", mask)
	}
}

func TestResolveRejectsUnknownPattern(t *testing.T) {
	c, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err = c.Resolve(WatchSetConfig{Description: "bad", Patterns: []string{"nope"}})
	if err == nil {
		t.Fatal("expected error for unknown pattern name")
	}
}

func TestLoadRejectsEmptyPatternList(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte("patterns: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for config with no patterns")
	}
}
