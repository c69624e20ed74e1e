// Package nlog is this module's logger: unbuffered (each line goes
// straight to stderr), timestamped with cmn/mono, and severity-gated. It is the only place any package in this
// repository writes log output — nothing calls fmt.Println or the stdlib
// log package directly.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"sync"

	"github.com/NVIDIA/swarmcore/cmn/mono"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) tag() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

var (
	mu     sync.Mutex
	out    = os.Stderr
	minSev = sevInfo
)

// SetLevel gates out info-level lines when quiet is true; cmd/swarmsim
// calls it from its --quiet flag (off by default).
func SetLevel(quiet bool) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		minSev = sevWarn
	} else {
		minSev = sevInfo
	}
}

func log(sev severity, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if sev < minSev {
		return
	}
	ts := mono.NanoTime()
	line := fmt.Sprintf(format, args...)
	fmt.Fprintf(out, "%s %d %s\n", sev.tag(), ts, line)
}

func Infof(format string, args ...any)    { log(sevInfo, format, args...) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }
func Errorf(format string, args ...any)   { log(sevErr, format, args...) }
