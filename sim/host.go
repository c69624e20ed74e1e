package sim

import "github.com/NVIDIA/swarmcore/core/meta"

// simHost implements host.Host (see package host) on top of a Harness: it
// hands outgoing packets to the harness's neighbor-broadcast, and draws
// jitter/seed entropy from the harness's own PRNG stream so a whole run is
// reproducible from a single seed.
type simHost struct {
	harness *Harness
	id      meta.RobotID
}

func (s *simHost) SelfID() meta.RobotID { return s.id }

func (s *simHost) NowStep() uint64 { return s.harness.step }

// Send is invoked by Transmitter.Transmit; the harness's own Step loop
// calls BuildChunk+broadcast directly instead, so this path only matters
// for a caller that drives a single robot's Transmitter outside the
// harness's batched scheduling (e.g. a future standalone mode).
func (s *simHost) Send(pkt []byte) error {
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	s.harness.broadcast(s.id, cp)
	return nil
}

func (s *simHost) RandSmall() uint8 { return uint8(s.harness.rng.Intn(128)) }

func (s *simHost) RandHard() uint32 { return uint32(s.harness.rng.Next()) }
