// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// Package buildinfo holds the ldflags-stamped version strings shared
// by cmd/logs2stdout and cmd/taf-ui, following the var-block-plus-init
// pattern cmd/syncthing/main.go uses for its own Version/BuildStamp/
// LongVersion trio.
package buildinfo

import (
	"fmt"
	"runtime"
	"strconv"
	"time"
)

// These are overridden at link time via -ldflags "-X ...".
var (
	Version    = "unknown-dev"
	BuildStamp = "0"
	BuildHost  = "unknown"
	BuildUser  = "unknown"
)

// BuildDate and Long are computed in init from the vars above.
var (
	BuildDate time.Time
	Long      string
)

func init() {
	stamp, _ := strconv.ParseInt(BuildStamp, 10, 64)
	BuildDate = time.Unix(stamp, 0)

	date := BuildDate.UTC().Format("2006-01-02 15:04:05 MST")
	Long = fmt.Sprintf("taf %s (%s %s-%s) %s@%s %s", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildUser, BuildHost, date)
}
