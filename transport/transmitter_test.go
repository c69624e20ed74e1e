package transport_test

import (
	"sync"
	"testing"
	"time"

	"github.com/NVIDIA/swarmcore/core/meta"
	"github.com/NVIDIA/swarmcore/hk"
	"github.com/NVIDIA/swarmcore/swarmlist"
	"github.com/NVIDIA/swarmcore/transport"
)

// fakeHost is a deterministic, in-memory host.Host for unit tests: no
// jitter, a fixed seed, and an inbox a test can inspect directly. The
// mutex only matters for ScheduleChunks' test, where hk's own goroutine
// calls Send concurrently with the test goroutine's reads.
type fakeHost struct {
	self meta.RobotID
	step uint64

	mu   sync.Mutex
	sent []transport.Packet
}

func (h *fakeHost) SelfID() meta.RobotID { return h.self }
func (h *fakeHost) NowStep() uint64      { return h.step }
func (h *fakeHost) Send(pkt []byte) error {
	cp := make(transport.Packet, len(pkt))
	copy(cp, pkt)
	h.mu.Lock()
	h.sent = append(h.sent, cp)
	h.mu.Unlock()
	return nil
}
func (h *fakeHost) sentCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}
func (h *fakeHost) RandSmall() uint8 { return 0 } // no jitter, deterministic schedule
func (h *fakeHost) RandHard() uint32 { return 0xC0FFEE }

func TestTransmitMonotonicSelfLamport(t *testing.T) {
	cfg := scenarioConfig()
	sl := swarmlist.New(7, cfg)
	h := &fakeHost{self: 7}
	tx, err := transport.NewTransmitter(sl, cfg, h, nil)
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}

	var lamports []uint32
	for i := 0; i < 5; i++ {
		pkts := tx.BuildChunk()
		if len(pkts) != 1 {
			t.Fatalf("BuildChunk() returned %d packets, want 1", len(pkts))
		}
		entries, err := transport.DecodeSwarm(cfg, pkts[0])
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		lamports = append(lamports, entries[0].Lamport)
	}
	for i := 1; i < len(lamports); i++ {
		if lamports[i] != lamports[i-1]+1 {
			t.Fatalf("self-lamport not monotonically advancing: %v", lamports)
		}
	}
}

// A constructs, transmits once, and the resulting packet's single slot
// is {7, 0x01, 1} after the self-increment.
func TestSingleHopLearnScenario(t *testing.T) {
	cfg := scenarioConfig()
	cfg.PacketSize = 10 // S=6, K=1

	a := swarmlist.New(7, cfg)
	a.SetSelfMask(0x01)
	ah := &fakeHost{self: 7}
	atx, err := transport.NewTransmitter(a, cfg, ah, nil)
	if err != nil {
		t.Fatalf("NewTransmitter(a): %v", err)
	}

	pkts := atx.BuildChunk()
	if len(pkts) != 1 {
		t.Fatalf("A should emit exactly one packet, got %d", len(pkts))
	}
	entries, err := transport.DecodeSwarm(cfg, pkts[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entries[0] != (meta.Entry{Robot: 7, Mask: 0x01, Lamport: 1}) {
		t.Fatalf("A's first slot = %+v, want {7 0x01 1 0 0 false}", entries[0])
	}

	b := swarmlist.New(3, cfg)
	brx, err := transport.NewReceiver(b, cfg, nil)
	if err != nil {
		t.Fatalf("NewReceiver(b): %v", err)
	}
	if err := brx.Recv(pkts[0]); err != nil {
		t.Fatalf("B.Recv: %v", err)
	}
	if b.Size() != 2 || b.NumActive() != 2 {
		t.Fatalf("B size/num_active = %d/%d, want 2/2", b.Size(), b.NumActive())
	}
	e, ok := b.Get(7)
	if !ok || e.Mask != 0x01 || e.Lamport != 1 || e.TTI != 255 {
		t.Fatalf("B's entry for 7 = %+v (ok=%v), want mask=0x01 lamport=1 tti=255", e, ok)
	}
}

func TestTransmitSendsThroughHost(t *testing.T) {
	cfg := scenarioConfig()
	sl := swarmlist.New(1, cfg)
	_ = sl.Update(2, 0, 1)
	h := &fakeHost{self: 1}
	tx, err := transport.NewTransmitter(sl, cfg, h, nil)
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}
	if err := tx.Transmit(); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if len(h.sent) == 0 {
		t.Fatal("Transmit should have handed at least one packet to the host")
	}
}

func TestNewTransmitterRejectsTooSmallPacket(t *testing.T) {
	cfg := scenarioConfig()
	cfg.PacketSize = 1
	sl := swarmlist.New(1, cfg)
	h := &fakeHost{self: 1}
	if _, err := transport.NewTransmitter(sl, cfg, h, nil); err == nil {
		t.Fatal("expected NewTransmitter to reject a K=0 configuration")
	}
}

func TestDueFiresAfterChunkDelay(t *testing.T) {
	cfg := scenarioConfig()
	cfg.ChunkDelay = 5
	sl := swarmlist.New(1, cfg)
	h := &fakeHost{self: 1}
	tx, err := transport.NewTransmitter(sl, cfg, h, nil)
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}
	for step := uint64(0); step < 5; step++ {
		if tx.Due(step) {
			t.Fatalf("Due(%d) fired early", step)
		}
	}
	if !tx.Due(5) {
		t.Fatal("Due(5) should fire after ChunkDelay with zero jitter")
	}
}

// ScheduleChunks wires Transmit into the shared housekeeper for a host
// that drives chunk emission off wall clock instead of the sim harness's
// own discrete Due()/BuildChunk() step loop.
func TestScheduleChunksFiresViaHousekeeper(t *testing.T) {
	hk.TestInit()
	go hk.DefaultHK.Run()
	hk.WaitStarted()

	cfg := scenarioConfig()
	sl := swarmlist.New(1, cfg)
	_ = sl.Update(2, 0, 1)
	h := &fakeHost{self: 1}
	tx, err := transport.NewTransmitter(sl, cfg, h, nil)
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}

	name := tx.ScheduleChunks(5 * time.Millisecond)
	defer hk.Unreg(name)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.sentCount() > 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no packet sent; ScheduleChunks did not fire Transmit via the housekeeper")
}
