package transport_test

import (
	"testing"

	"github.com/NVIDIA/swarmcore/cmn"
	"github.com/NVIDIA/swarmcore/core/meta"
	"github.com/NVIDIA/swarmcore/transport"
)

func scenarioConfig() *cmn.Config {
	c := cmn.DefaultConfig()
	c.PacketSize = 10
	c.LamportThreshold = 50
	c.LamportWidth = 8
	c.TTIMax = 255
	return c
}

// R1: serializing an entry and parsing it back yields the same
// (robot, mask, lamport).
func TestRoundTripSingleSlot(t *testing.T) {
	cfg := scenarioConfig()
	want := meta.Entry{Robot: 7, Mask: 0x01, Lamport: 1}
	pkt := transport.EncodeSwarm(cfg, []meta.Entry{want})

	got, err := transport.DecodeSwarm(cfg, pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("K = %d, want 1", len(got))
	}
	if got[0].Robot != want.Robot || got[0].Mask != want.Mask || got[0].Lamport != want.Lamport {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got[0], want)
	}
}

func TestRoundTrip32BitLamport(t *testing.T) {
	cfg := scenarioConfig()
	cfg.LamportWidth = 32
	cfg.PacketSize = 10 // K = floor((10-1)/9) = 1
	want := meta.Entry{Robot: 0xDEADBEEF, Mask: 0xAB, Lamport: 0x01020304}
	pkt := transport.EncodeSwarm(cfg, []meta.Entry{want})

	got, err := transport.DecodeSwarm(cfg, pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[0] != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got[0], want)
	}
}

// Fewer entries than K are supplied: remaining slots stay zero-filled but
// are still parsed on receipt.
func TestEncodePadsUnusedSlotsWithZero(t *testing.T) {
	cfg := scenarioConfig()
	cfg.PacketSize = 19 // S=6 -> K=3
	pkt := transport.EncodeSwarm(cfg, []meta.Entry{{Robot: 1, Mask: 1, Lamport: 1}})

	got, err := transport.DecodeSwarm(cfg, pkt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("K = %d, want 3", len(got))
	}
	if got[1] != (meta.Entry{}) || got[2] != (meta.Entry{}) {
		t.Fatalf("unused slots should decode as zero entries, got %+v / %+v", got[1], got[2])
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	cfg := scenarioConfig()
	pkt := transport.NewPacket(cfg)
	pkt[0] = 0x7F
	if _, err := transport.DecodeSwarm(cfg, pkt); err == nil {
		t.Fatal("expected a MalformedPacket error for an unknown type tag")
	}
}

func TestDecodeRejectsTruncatedPacket(t *testing.T) {
	cfg := scenarioConfig()
	cfg.PacketSize = 7 // S=6, K=1, need=7: an exact fit, no reserved slack
	pkt := transport.EncodeSwarm(cfg, nil)
	if _, err := transport.DecodeSwarm(cfg, pkt[:len(pkt)-2]); err == nil {
		t.Fatal("expected a MalformedPacket error for a truncated packet")
	}
}

// B4: a packet_size too small to hold a single slot yields K==0.
func TestNumSlotsZeroWhenPacketTooSmall(t *testing.T) {
	cfg := scenarioConfig()
	cfg.PacketSize = 1
	if cfg.NumSlots() != 0 {
		t.Fatalf("NumSlots() = %d, want 0", cfg.NumSlots())
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject a K=0 configuration")
	}
}

// With a 32-bit lamport (S=9), a packet_size of 18 leaves exactly 8
// reserved tail bytes past the single slot it holds — enough room for the
// whole-frame checksum to kick in.
func TestChecksumDetectsCorruption(t *testing.T) {
	cfg := scenarioConfig()
	cfg.LamportWidth = 32
	cfg.PacketSize = 18
	pkt := transport.EncodeSwarm(cfg, []meta.Entry{{Robot: 1, Mask: 1, Lamport: 1}})
	pkt[1] ^= 0xFF // corrupt a byte inside the first slot

	if _, err := transport.DecodeSwarm(cfg, pkt); err == nil {
		t.Fatal("expected a checksum-mismatch MalformedPacket error")
	}
}
