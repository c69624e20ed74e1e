// Package mono provides low-level monotonic time, decoupled from
// time.Time so hot paths (tick accounting, jitter scheduling) can work in
// plain int64 nanoseconds.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// nanoTimeImpl is overridden by fast_nanotime.go under the `mono` build
// tag to link directly against runtime.nanotime, skipping time.Now's
// wall-clock read. The portable default below measures from process start
// through time.Since, which reads Go's monotonic clock.
var (
	startTime    = time.Now()
	nanoTimeImpl = func() int64 { return int64(time.Since(startTime)) }
)

// NanoTime returns a monotonically non-decreasing nanosecond counter.
func NanoTime() int64 { return nanoTimeImpl() }

// Since returns the elapsed duration from a prior NanoTime() reading.
func Since(start int64) time.Duration { return time.Duration(NanoTime() - start) }
