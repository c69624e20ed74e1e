// Package transport implements the wire codec, the outgoing-packet
// Transmitter, and the incoming-packet Receiver described in spec
// §4.4/§4.5/§6. The frame layout is a fixed-length byte sequence: a
// leading type-tag byte, K fixed-width entry slots, reserved zero-filled
// padding, and — when the configured packet size leaves room — a
// whole-frame xxhash64 checksum that lets a corrupt frame be classified
// as MalformedPacket before slot parsing even starts.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"

	"github.com/NVIDIA/swarmcore/cmn"
	"github.com/NVIDIA/swarmcore/cmn/cos"
	"github.com/NVIDIA/swarmcore/core/meta"
)

// MsgType is the packet's leading type-tag byte.
type MsgType byte

const (
	// MsgEmpty marks an idle frame emitted by the messenger when there is
	// nothing to send; tolerated by the receiver without error.
	MsgEmpty MsgType = 0
	// MsgSwarm carries up to K swarmlist entry slots.
	MsgSwarm MsgType = 1
)

// checksumSize is the width of the optional trailing xxhash64 checksum.
const checksumSize = 8

// Packet is one fixed-length wire frame.
type Packet []byte

// NewPacket allocates a zero-filled frame of the configured length.
func NewPacket(cfg *cmn.Config) Packet { return make(Packet, cfg.PacketSize) }

// Type reports the frame's leading type-tag byte.
func (p Packet) Type() MsgType {
	if len(p) == 0 {
		return MsgEmpty
	}
	return MsgType(p[0])
}

// hasChecksum reports whether cfg's packet size leaves at least
// checksumSize reserved bytes past the last slot; the checksum then
// occupies the frame's final checksumSize bytes.
func hasChecksum(cfg *cmn.Config) bool {
	k := cfg.NumSlots()
	used := 1 + k*cfg.SlotSize()
	return cfg.PacketSize-used >= checksumSize
}

// EncodeSwarm packs up to K entries into a fresh SWARM packet. Fewer than
// K entries may be supplied; the remaining slots stay zero-filled but are
// still parsed on receipt, per spec §6.
func EncodeSwarm(cfg *cmn.Config, entries []meta.Entry) Packet {
	pkt := NewPacket(cfg)
	if len(pkt) == 0 {
		return pkt
	}
	pkt[0] = byte(MsgSwarm)
	k := cfg.NumSlots()
	slotSize := cfg.SlotSize()
	lamportBytes := cfg.LamportBytes()
	for i := 0; i < k && i < len(entries); i++ {
		off := 1 + i*slotSize
		encodeSlot(pkt[off:off+slotSize], entries[i], lamportBytes)
	}
	if hasChecksum(cfg) {
		sum := xxhash.Checksum64S(pkt[:len(pkt)-checksumSize], cos.ChecksumSeed)
		binary.LittleEndian.PutUint64(pkt[len(pkt)-checksumSize:], sum)
	}
	return pkt
}

// encodeSlot writes one entry into a slot using the documented byte order
// (spec §6): little-endian robot id, then the mask byte, then a
// little-endian lamport of 1 or 4 bytes depending on the configured width.
func encodeSlot(slot []byte, e meta.Entry, lamportBytes int) {
	binary.LittleEndian.PutUint32(slot[0:4], uint32(e.Robot))
	slot[4] = e.Mask
	if lamportBytes == 4 {
		binary.LittleEndian.PutUint32(slot[5:9], e.Lamport)
	} else {
		slot[5] = byte(e.Lamport)
	}
}

func decodeSlot(slot []byte, lamportBytes int) meta.Entry {
	robot := meta.RobotID(binary.LittleEndian.Uint32(slot[0:4]))
	mask := slot[4]
	var lamport uint32
	if lamportBytes == 4 {
		lamport = binary.LittleEndian.Uint32(slot[5:9])
	} else {
		lamport = uint32(slot[5])
	}
	return meta.Entry{Robot: robot, Mask: mask, Lamport: lamport}
}

// DecodeSwarm unpacks a SWARM packet's slots in order. Slot contents are
// parsed unconditionally, including zero-filled padding slots (spec §6):
// the caller (Receiver) is responsible for skipping the owner's own id.
func DecodeSwarm(cfg *cmn.Config, pkt Packet) ([]meta.Entry, error) {
	if pkt.Type() != MsgSwarm {
		return nil, cos.NewErrMalformedPacket("unexpected type tag %d, want SWARM(%d)", pkt.Type(), MsgSwarm)
	}
	k := cfg.NumSlots()
	slotSize := cfg.SlotSize()
	need := 1 + k*slotSize
	if len(pkt) < need {
		return nil, cos.NewErrMalformedPacket("truncated packet: have %d bytes, need %d", len(pkt), need)
	}
	if hasChecksum(cfg) {
		got := binary.LittleEndian.Uint64(pkt[len(pkt)-checksumSize:])
		want := xxhash.Checksum64S(pkt[:len(pkt)-checksumSize], cos.ChecksumSeed)
		if got != want {
			return nil, cos.NewErrMalformedPacket("checksum mismatch (got %x, want %x)", got, want)
		}
	}
	lamportBytes := cfg.LamportBytes()
	out := make([]meta.Entry, k)
	for i := 0; i < k; i++ {
		off := 1 + i*slotSize
		out[i] = decodeSlot(pkt[off:off+slotSize], lamportBytes)
	}
	return out, nil
}
