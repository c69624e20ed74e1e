// Package host defines the contract between the membership engine and the
// runtime it is embedded in (spec §4.6): the simulator host in this repo's
// own `sim` package, or — out of scope for this repository, see
// SPEC_FULL.md — a real ARGoS/robot-runtime bridge. The engine never
// imports a concrete host; it only ever depends on this interface.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package host

import "github.com/NVIDIA/swarmcore/core/meta"

// Host is what the engine requires from its embedding runtime.
type Host interface {
	// SelfID is the id assigned to this robot before Swarmlist.construct.
	SelfID() meta.RobotID
	// NowStep is a monotonic step counter; the engine uses it only for
	// diagnostics and for the transmitter's chunk-schedule bookkeeping.
	NowStep() uint64
	// Send hands one fixed-size outbound frame to the messenger.
	Send(pkt []byte) error
	// RandSmall draws jitter in a small range (spec §4.4: a 7-bit value).
	RandSmall() uint8
	// RandHard draws a full-width seed, e.g. to seed a per-robot PRNG.
	RandHard() uint32
}
