package transport

import (
	"github.com/NVIDIA/swarmcore/cmn"
	"github.com/NVIDIA/swarmcore/cmn/cos"
	"github.com/NVIDIA/swarmcore/stats"
	"github.com/NVIDIA/swarmcore/swarmlist"
)

// Receiver demultiplexes incoming packets by their leading type byte and
// feeds SWARM entries back through Swarmlist.Update.
type Receiver struct {
	sl    *swarmlist.Swarmlist
	cfg   *cmn.Config
	stats stats.Tracker
}

// NewReceiver constructs a Receiver for sl, validating cfg up front for
// the same reason NewTransmitter does: a packet_size too small for one
// slot must fail deterministically at construction, not silently later.
func NewReceiver(sl *swarmlist.Swarmlist, cfg *cmn.Config, st stats.Tracker) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Receiver{sl: sl, cfg: cfg, stats: st}, nil
}

// Recv dispatches one fully-formed incoming packet by its leading type
// byte. An idle (MsgEmpty) frame is tolerated without error. An unknown
// type byte is reported as a non-fatal MalformedPacket error; the
// swarmlist is left untouched either way.
func (rx *Receiver) Recv(pkt Packet) error {
	switch pkt.Type() {
	case MsgEmpty:
		return nil
	case MsgSwarm:
		return rx.recvSwarm(pkt)
	default:
		err := cos.NewErrMalformedPacket("unknown type tag %d", pkt.Type())
		rx.countMalformed()
		return err
	}
}

func (rx *Receiver) recvSwarm(pkt Packet) error {
	entries, err := DecodeSwarm(rx.cfg, pkt)
	if err != nil {
		rx.countMalformed()
		return err
	}

	self := rx.sl.Self()
	var errs cos.Errs
	for _, e := range entries {
		if e.Robot == self {
			continue
		}
		if uerr := rx.sl.Update(e.Robot, e.Mask, e.Lamport); uerr != nil {
			errs.Add(uerr)
			if cos.IsErrCapacityExceeded(uerr) {
				rx.countDropped()
			}
		}
	}
	rx.countReceived()
	_, joined := errs.JoinErr()
	return joined
}

func (rx *Receiver) countReceived() {
	if rx.stats != nil {
		rx.stats.Inc("packets.received")
	}
}

func (rx *Receiver) countMalformed() {
	if rx.stats != nil {
		rx.stats.Inc("packets.malformed")
	}
}

func (rx *Receiver) countDropped() {
	if rx.stats != nil {
		rx.stats.Inc("entries.dropped")
	}
}
