// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Command taf-ui is the local TAF consumer: it forks the remote
// producer over ssh, registers the configured watches, lets the
// operator pick a watch set, and reacts to NOTIFY by logging (and,
// when the config file sets autoreset, automatically re-arming).
// Grounded on original_source/src/bin/taf_ui.py's main()/Notifier,
// restructured around kong for flag parsing and thejerf/suture for
// its background services, the same pairing cmd/logs2stdout uses.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/calmh/logger"
	"github.com/thejerf/suture/v4"

	"github.com/sh01/taf/internal/buildinfo"
	"github.com/sh01/taf/internal/config"
	"github.com/sh01/taf/internal/diagbus"
	"github.com/sh01/taf/internal/metrics"
	"github.com/sh01/taf/internal/monitor"
	"github.com/sh01/taf/internal/pidlock"
	"github.com/sh01/taf/internal/tafclient"
	"github.com/sh01/taf/internal/transport"
)

var l = logger.DefaultLogger

type cliArgs struct {
	Config      string `short:"c" default:"~/.taf/config" help:"Path to the taf-ui configuration file."`
	LogLevel    int    `short:"L" default:"20" help:"Log level (unused placeholder retained from the original CLI shape)."`
	Monitor     bool   `help:"Run under a supervising process that restarts taf-ui on crash and captures panics."`
	PanicLogDir string `default:"~/.taf" help:"Directory panic logs are written to when -monitor is set."`
	Verbose     bool   `short:"v" help:"Print every diagnostic event to the console as it happens."`
	Version     bool   `help:"Print version and exit."`
}

func main() {
	var args cliArgs
	kong.Parse(&args, kong.Description("TAF local notifier UI."))

	if args.Version {
		fmt.Println(buildinfo.Long)
		return
	}

	if args.Monitor && os.Getenv("TAF_MONITORED") == "" {
		monitor.Run(expandHome(args.PanicLogDir))
		return
	}

	if err := run(expandHome(args.Config), args.Verbose); err != nil {
		l.Warnf("taf-ui: %v", err)
		os.Exit(1)
	}
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

func run(configPath string, verbose bool) error {
	if verbose {
		vs := diagbus.NewVerboseService(diagbus.Default)
		go vs.Serve()
		defer vs.Stop()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var lock *pidlock.Lock
	if cfg.PIDFile != "" {
		lock, err = pidlock.Acquire(expandHome(cfg.PIDFile))
		if err != nil {
			return err
		}
		defer lock.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	pipe, err := transport.Spawn(ctx, cfg.ForwardHost, cfg.ForwardDir)
	if err != nil {
		return err
	}
	defer pipe.Close()

	client := tafclient.New()
	client.AutoReset = cfg.Autoreset
	client.NotifyHandler = func(idx int) {
		diagbus.Default.Log(diagbus.WatchFired, idx)
		metrics.WatchFired("client")
		l.Infof("taf-ui: watch %d fired", idx)
	}

	for _, p := range cfg.Patterns {
		client.AddWatch([]byte(p.FilenamePattern), []byte(p.LinePattern))
	}

	if len(cfg.WatchSets) > 0 {
		mask, err := cfg.Resolve(cfg.WatchSets[0])
		if err != nil {
			return err
		}
		client.WatchSet(mask)
	} else {
		client.WatchSetAll()
	}
	client.Reset()

	resetCh := make(chan struct{}, 1)
	sigUsr1 := make(chan os.Signal, 1)
	signal.Notify(sigUsr1, syscall.SIGUSR1)
	go func() {
		for range sigUsr1 {
			select {
			case resetCh <- struct{}{}:
			default:
			}
		}
	}()

	// wake lets anything that queues outbound output off the reader
	// goroutine (resetService's RESET, below) tell the pump there's
	// something to flush, instead of the write sitting in the queue
	// until some unrelated inbound message arrives to trigger a flush.
	wake := make(chan struct{}, 1)
	client.Stream().SetWakeChannel(wake)

	sup := suture.NewSimple("taf-ui")
	sup.Add(&stdioPumpService{
		client: client,
		wake:   wake,
		pipe: struct {
			io.Reader
			io.Writer
		}{metrics.NewCountingReader(pipe, "client"), metrics.NewCountingWriter(pipe, "client")},
	})
	sup.Add(&resetService{client: client, resetCh: resetCh})

	errs := sup.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		// A signal asked us to shut down; that's a clean exit.
		sup.Stop()
		<-errs
		return nil
	case err := <-errs:
		// The supervisor tree terminated itself — stdioPumpService hit
		// EOF from the forwarded ssh pipe or a protocol error and
		// returned suture.ErrTerminateSupervisorTree rather than an
		// ordinary error, so the tree shut down instead of suture
		// restarting the pump in a backoff loop. spec.md §6/§7: this is
		// a process-level failure and must exit non-zero.
		return err
	}
}

// stdioPumpService reads framed TAF messages from the forwarded
// subprocess into client and writes client's queued output back to
// it — the consumer-side mirror of cmd/logs2stdout's stdioPumpService,
// reading/writing an ssh pipe instead of the process's own stdio.
type stdioPumpService struct {
	client *tafclient.Client
	wake   chan struct{}
	pipe   interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
	}
}

func (p *stdioPumpService) Serve(ctx context.Context) error {
	readErr := make(chan error, 1)
	buf := make([]byte, 64*1024)

	go func() {
		for {
			n, err := p.pipe.Read(buf)
			if n > 0 {
				if ferr := p.client.Feed(buf[:n]); ferr != nil {
					readErr <- ferr
					return
				}
				p.flush()
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			// The forwarded ssh pipe closed or sent a malformed frame
			// (spec.md §8 scenario 6). A plain error would just have
			// suture restart this service forever while run() hangs on
			// <-ctx.Done(); ErrTerminateSupervisorTree tears the whole
			// tree down instead so run() sees the failure and exits
			// non-zero (spec.md §6/§7).
			return fmt.Errorf("stdio pump: %w: %w", err, suture.ErrTerminateSupervisorTree)
		case <-p.wake:
			p.flush()
		}
	}
}

func (p *stdioPumpService) flush() {
	for p.client.Stream().HasPendingOutput() {
		out := p.client.Stream().PendingOutput()
		n, err := p.pipe.Write(out)
		if n > 0 {
			p.client.Stream().ConsumeOutput(n)
		}
		if err != nil {
			return
		}
		if n == len(out) {
			break
		}
	}
}

// resetService answers SIGUSR1 by sending RESET to the remote
// producer, the Go-native form of taf_ui.py's main() signal handler
// (`if si.signo == signal.SIGUSR1: n.reset()`).
type resetService struct {
	client  *tafclient.Client
	resetCh chan struct{}
}

func (r *resetService) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.resetCh:
			r.client.Reset()
			diagbus.Default.Log(diagbus.ResetIssued, nil)
			l.Infoln("taf-ui: reset via SIGUSR1")
		}
	}
}
