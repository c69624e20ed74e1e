// Package sim supplements spec.md's explicitly out-of-scope simulator host
// (§1) with an in-process reference implementation sufficient to exercise
// and test the engine end to end. It does not attempt to reproduce arena
// geometry, LED actuation, or the ARGoS/footbot runtime — only the two
// things the engine genuinely needs from a host: a topology of one-hop
// neighbors and a driver that steps time and delivers packets.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package sim

import "github.com/NVIDIA/swarmcore/core/meta"

// Topology reports robot placement and one-hop neighbor sets. Per spec
// §1, arbitrary arena geometry is out of scope; only a ring and a
// fully-connected mesh are provided here.
type Topology interface {
	Robots() []meta.RobotID
	Neighbors(id meta.RobotID) []meta.RobotID
}

type ring struct {
	ids []meta.RobotID
}

// NewRing places n robots (ids 1..n) on a ring where each robot's only
// one-hop neighbors are its immediate predecessor and successor.
func NewRing(n int) Topology {
	ids := make([]meta.RobotID, n)
	for i := range ids {
		ids[i] = meta.RobotID(i + 1)
	}
	return &ring{ids: ids}
}

func (r *ring) Robots() []meta.RobotID { return r.ids }

func (r *ring) Neighbors(id meta.RobotID) []meta.RobotID {
	n := len(r.ids)
	if n <= 1 {
		return nil
	}
	idx := int(id) - 1
	prev := r.ids[(idx-1+n)%n]
	next := r.ids[(idx+1)%n]
	if prev == next {
		return []meta.RobotID{prev}
	}
	return []meta.RobotID{prev, next}
}

type full struct {
	ids []meta.RobotID
}

// NewFullyConnected places n robots (ids 1..n) where every robot is a
// one-hop neighbor of every other.
func NewFullyConnected(n int) Topology {
	ids := make([]meta.RobotID, n)
	for i := range ids {
		ids[i] = meta.RobotID(i + 1)
	}
	return &full{ids: ids}
}

func (f *full) Robots() []meta.RobotID { return f.ids }

func (f *full) Neighbors(id meta.RobotID) []meta.RobotID {
	out := make([]meta.RobotID, 0, len(f.ids)-1)
	for _, other := range f.ids {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}
