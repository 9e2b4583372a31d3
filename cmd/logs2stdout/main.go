// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Command logs2stdout is the remote TAF producer: it watches a
// directory tree and speaks the TAF protocol over stdin/stdout to
// whatever forked it over ssh. Grounded on
// original_source/src/bin/logs2stdout.py's main()/FileGazer, restructured
// around a thejerf/suture supervisor the way cmd/syncthing/main.go
// wires its own background services, and parsed with
// github.com/alecthomas/kong the way cmd/stupgrades/main.go does.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/calmh/logger"
	"github.com/thejerf/suture/v4"

	"github.com/sh01/taf/internal/buildinfo"
	"github.com/sh01/taf/internal/diagbus"
	"github.com/sh01/taf/internal/gazer"
	"github.com/sh01/taf/internal/metrics"
	"github.com/sh01/taf/internal/tafserver"
)

var l = logger.DefaultLogger

type cli struct {
	Cd      string `help:"Change to this directory before scanning and watching it." default:"."`
	Verbose bool   `short:"v" help:"Print every diagnostic event to stderr as it happens."`
	Version bool   `help:"Print version and exit."`
}

func main() {
	var params cli
	kctx := kong.Parse(&params, kong.Description("TAF remote log-watching producer."))
	_ = kctx

	if params.Version {
		fmt.Println(buildinfo.Long)
		return
	}

	if err := run(&params); err != nil {
		l.Warnf("logs2stdout: %v", err)
		os.Exit(1)
	}
}

func run(params *cli) error {
	if params.Cd != "." {
		if err := os.Chdir(params.Cd); err != nil {
			return fmt.Errorf("chdir %s: %w", params.Cd, err)
		}
	}

	if params.Verbose {
		// diagbus.VerboseService prints through calmh/logger's
		// DefaultLogger, which writes to stdout — unusable here since
		// stdout carries the TAF wire protocol itself. Subscribe
		// directly and write formatted lines to stderr instead.
		stop := make(chan struct{})
		go verboseToStderr(stop)
		defer close(stop)
	}

	srv := tafserver.New()
	wake := make(chan struct{}, 1)
	srv.Stream().SetWakeChannel(wake)
	gz := gazer.New(".", srv)

	if err := gz.Scan(); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	sup := suture.NewSimple("logs2stdout")
	sup.Add(&gazerService{gz: gz})
	sup.Add(&stdioPumpService{
		srv:    srv,
		wake:   wake,
		stdin:  metrics.NewCountingReader(os.Stdin, "server"),
		stdout: metrics.NewCountingWriter(os.Stdout, "server"),
	})

	errs := sup.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		// A signal asked us to shut down; that's a clean exit.
		sup.Stop()
		<-errs
		return nil
	case err := <-errs:
		// The supervisor tree terminated itself — stdioPumpService hit
		// stdin EOF or a protocol error and returned
		// suture.ErrTerminateSupervisorTree rather than an ordinary
		// error, so the whole tree shut down instead of suture
		// restarting the pump in a backoff loop. spec.md §6/§7: this is
		// a process-level failure and must exit non-zero.
		return err
	}
}

// verboseToStderr prints every diagbus event to stderr until stop is
// closed, the logs2stdout-safe counterpart of diagbus.VerboseService.
func verboseToStderr(stop chan struct{}) {
	sub := diagbus.Default.Subscribe(diagbus.AllEvents)
	defer diagbus.Default.Unsubscribe(sub)

	for {
		ev, err := sub.Poll(2 * time.Second)
		switch err {
		case nil:
			if formatted := diagbus.FormatEvent(ev); formatted != "" {
				fmt.Fprintln(os.Stderr, formatted)
			}
		case diagbus.ErrClosed:
			return
		}

		select {
		case <-stop:
			return
		default:
		}
	}
}

// gazerService adapts gazer.Gazer's blocking Watch into a
// suture.Service, the same shape cmd/syncthing/summaryservice.go wraps
// serviceFunc in, generalized to suture/v4's ctx-cancellable Serve.
type gazerService struct {
	gz *gazer.Gazer
}

func (g *gazerService) Serve(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- g.gz.Watch() }()

	select {
	case <-ctx.Done():
		g.gz.Close()
		<-done
		return nil
	case err := <-done:
		return err
	}
}

// stdioPumpService reads TAF protocol messages off stdin into srv and
// writes srv's queued output to stdout, the Go-native equivalent of
// logs2stdout.py's start_stdio (AsyncDataStream wrapping fd 0 and fd
// 1 directly rather than through a pty or pipe abstraction).
type stdioPumpService struct {
	srv    *tafserver.Server
	wake   chan struct{}
	stdin  *metrics.CountingReader
	stdout *metrics.CountingWriter
}

func (p *stdioPumpService) Serve(ctx context.Context) error {
	readErr := make(chan error, 1)
	buf := make([]byte, 64*1024)

	go func() {
		for {
			n, err := p.stdin.Read(buf)
			if n > 0 {
				if ferr := p.srv.Feed(buf[:n]); ferr != nil {
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
			// Stdin EOF (the remote ssh side went away) or a malformed
			// frame (spec.md §8 scenario 6) both mean this connection
			// is over. A plain error here would just have suture
			// restart this service forever while the process hangs on
			// <-ctx.Done() in run(); ErrTerminateSupervisorTree tells
			// suture to tear down the whole tree instead, so run() can
			// see the failure and exit non-zero (spec.md §6/§7).
			return fmt.Errorf("stdio pump: %w: %w", err, suture.ErrTerminateSupervisorTree)
		case <-p.wake:
			p.flush()
		}
	}
}

func (p *stdioPumpService) flush() {
	for p.srv.Stream().HasPendingOutput() {
		out := p.srv.Stream().PendingOutput()
		n, err := p.stdout.Write(out)
		if n > 0 {
			p.srv.Stream().ConsumeOutput(n)
		}
		if err != nil {
			return
		}
		if n == len(out) {
			break
		}
	}
}
