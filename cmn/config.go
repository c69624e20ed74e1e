// Package cmn provides common types and configuration shared by every
// package in this module: the engine's host-visible configuration.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"github.com/pkg/errors"
)

// Config carries every host-visible configuration key for the membership
// engine, plus a handful of domain-stack additions.
type Config struct {
	// PacketSize is P: the fixed wire-format length in bytes.
	PacketSize int
	// ChunkDelay is the minimum step count between chunks (swarm_chunk_delay).
	ChunkDelay int
	// ChunkAmount is the max packets per chunk (swarm_chunk_amount).
	ChunkAmount int
	// TTIMax is ticks of inactivity before an entry becomes inactive.
	TTIMax uint8
	// RemoveOldEntries enables the ttr eviction stage.
	RemoveOldEntries bool
	// TTRMax is ticks before an inactive entry is evicted (ignored if
	// RemoveOldEntries is false).
	TTRMax uint8
	// LoopsPerTick is the host-step multiplier for one tick() call.
	LoopsPerTick int
	// LamportThreshold is T for the circular comparison.
	LamportThreshold uint32
	// LamportWidth is 8 or 32 (bits).
	LamportWidth int
	// RebroadcastTargetSuccess, if > 0, enables the new-entry rebroadcast
	// extension with the given target delivery probability p.
	RebroadcastTargetSuccess float64
	// PacketDropProbability is q, the host's simulated per-hop drop rate;
	// used only by the rebroadcast repeat-count formula and by sim.Harness.
	PacketDropProbability float64

	// MaxEntries bounds the swarmlist (0 = unbounded).
	MaxEntries int
}

// DefaultConfig returns a small ring/point-to-point-friendly baseline:
// 8-bit lamports, a threshold of 50, and no capacity bound.
func DefaultConfig() *Config {
	return &Config{
		PacketSize:               10,
		ChunkDelay:               5,
		ChunkAmount:              1,
		TTIMax:                   255,
		RemoveOldEntries:         false,
		TTRMax:                   255,
		LoopsPerTick:             10,
		LamportThreshold:         50,
		LamportWidth:             8,
		RebroadcastTargetSuccess: 0,
		PacketDropProbability:    0,
		MaxEntries:               0,
	}
}

// SlotSize is S = sizeof(R) + 1 + sizeof(LC): robot id (4 bytes) + mask (1
// byte) + lamport (1 or 4 bytes depending on LamportWidth).
func (c *Config) SlotSize() int {
	return 4 + 1 + c.LamportBytes()
}

// LamportBytes is sizeof(LC): 1 byte for an 8-bit lamport, 4 for 32-bit.
func (c *Config) LamportBytes() int {
	if c.LamportWidth == 32 {
		return 4
	}
	return 1
}

// NumSlots is K = floor((P-1)/S).
func (c *Config) NumSlots() int {
	s := c.SlotSize()
	if s <= 0 {
		return 0
	}
	return (c.PacketSize - 1) / s
}

// Validate rejects a configuration whose packet_size can't hold a single
// slot (spec §6, boundary B4): construction must fail deterministically
// rather than silently transmit empty frames forever.
func (c *Config) Validate() error {
	if c.NumSlots() <= 0 {
		return errors.Errorf("packet_size %d leaves no room for a slot of size %d (K=0)", c.PacketSize, c.SlotSize())
	}
	return nil
}

// Swarmlist.New and the transport constructors each take their own
// *Config explicitly and cache the handful of hot-path fields
// (LamportThreshold, TTIMax, ...) as their own struct fields at
// construction, rather than reading from a single process-wide config
// owner: one process in this engine's test suite and in sim.Harness
// legitimately runs many robots, each wanting its own independent
// config, which a single mutable global (aistore's own cmn.GCO/cmn.Rom
// idiom) cannot express. See DESIGN.md for the tradeoff.
