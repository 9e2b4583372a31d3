// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package transport spawns the remote TAF producer over ssh and
// exposes its stdin/stdout as a single io.ReadWriteCloser, the
// Go-native form of original_source/src/bin/taf_ui.py's
// start_forward (AsyncPopen(['ssh', tspec, '.../logs2stdout.py',
// '--cd', dir_], stdin=PIPE, stdout=PIPE)).
package transport

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// RemoteCommand is the remote binary invoked over ssh. It is a var,
// not a const, so a build can point it at a different install
// location without patching this package.
var RemoteCommand = "logs2stdout"

// SSHCommand is the local ssh client binary to invoke. Overridable for
// tests that want to substitute a stand-in process.
var SSHCommand = "ssh"

// Pipe is a subprocess's stdin/stdout glued together as a single
// stream, plus the means to wait for and kill the process.
type Pipe struct {
	io.Reader
	io.Writer
	cmd *exec.Cmd
}

// Close closes the subprocess's stdin (signaling EOF to the remote
// end) and waits for it to exit.
func (p *Pipe) Close() error {
	if wc, ok := p.Writer.(io.Closer); ok {
		wc.Close()
	}
	return p.cmd.Wait()
}

// Spawn starts `ssh host RemoteCommand --cd dir` and returns a Pipe
// wired to its stdin/stdout. The returned Pipe's Close terminates the
// remote process by closing its stdin; the caller is expected to
// cancel ctx (or Close the Pipe) on shutdown, mirroring
// ed_shutdown(ed) in the original, which tears the whole event loop
// down when either end of the stream closes.
func Spawn(ctx context.Context, host, dir string) (*Pipe, error) {
	cmd := exec.CommandContext(ctx, SSHCommand, host, RemoteCommand, "--cd", dir)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: starting ssh to %s: %w", host, err)
	}

	return &Pipe{Reader: stdout, Writer: stdin, cmd: cmd}, nil
}
