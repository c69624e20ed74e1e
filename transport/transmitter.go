package transport

import (
	"fmt"
	"math"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"golang.org/x/time/rate"

	"github.com/NVIDIA/swarmcore/cmn"
	"github.com/NVIDIA/swarmcore/cmn/cos"
	"github.com/NVIDIA/swarmcore/cmn/nlog"
	"github.com/NVIDIA/swarmcore/cmn/xoshiro256"
	"github.com/NVIDIA/swarmcore/core/meta"
	"github.com/NVIDIA/swarmcore/hk"
	"github.com/NVIDIA/swarmcore/host"
	"github.com/NVIDIA/swarmcore/stats"
	"github.com/NVIDIA/swarmcore/swarmlist"
)

// rebroadcastCadence: every Nth built packet is a "new-entry-heavy" frame
// when the rebroadcast extension is enabled, alternating with normal
// rotation according to a fixed cadence to bound starvation of older data.
const rebroadcastCadence = 3

type rebroadcastItem struct {
	id        meta.RobotID
	remaining int
}

// Transmitter packs swarmlist entries into fixed-capacity SWARM packets
// and hands them to the host messenger.
type Transmitter struct {
	sl    *swarmlist.Swarmlist
	cfg   *cmn.Config
	host  host.Host
	stats stats.Tracker
	rng   *xoshiro256.Source

	nextDue uint64

	selfMask    uint8
	selfLamport uint32

	chunkCount  int
	rebroadcast []rebroadcastItem
	dedup       *cuckoo.Filter

	// limiter caps real-world Transmit() call frequency independent of the
	// step-based jitter schedule (spec §4.4's chunk timer only bounds how
	// the *simulated* schedule advances); it is a defensive backstop for a
	// host that drives Transmit faster than swarm_chunk_delay intends.
	limiter *rate.Limiter
}

// NewTransmitter constructs a Transmitter for sl, seeding its own PRNG
// from the host's hard PRNG (chunk jitter itself is drawn from the host's
// RandSmall, see scheduleNext) and validating cfg up front (spec §6
// boundary B4: a packet_size too small for one slot must fail
// deterministically at construction, not silently at first transmit).
func NewTransmitter(sl *swarmlist.Swarmlist, cfg *cmn.Config, h host.Host, st stats.Tracker) (*Transmitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	delay := cfg.ChunkDelay
	if delay <= 0 {
		delay = 1
	}
	burst := cfg.ChunkAmount
	if burst <= 0 {
		burst = 1
	}
	tx := &Transmitter{
		sl:      sl,
		cfg:     cfg,
		host:    h,
		stats:   st,
		rng:     xoshiro256.New(uint64(h.RandHard())),
		limiter: rate.NewLimiter(rate.Every(time.Duration(delay)*time.Millisecond), burst),
	}
	tx.scheduleNext(h.NowStep())
	return tx, nil
}

func (tx *Transmitter) scheduleNext(step uint64) {
	jitter := uint64(tx.host.RandSmall() & 0x7F) // a 7-bit value, per spec §4.4
	tx.nextDue = step + uint64(tx.cfg.ChunkDelay) + jitter
}

// Due reports whether a chunk-transmit opportunity has arrived at `step`;
// if so it advances the internal schedule for the next one.
func (tx *Transmitter) Due(step uint64) bool {
	if step < tx.nextDue {
		return false
	}
	tx.scheduleNext(step)
	return true
}

// numPackets computes min(ceil(num_active/K), ChunkAmount), the upper
// bound on packets per chunk (spec §4.4).
func (tx *Transmitter) numPackets() int {
	k := tx.cfg.NumSlots()
	if k <= 0 {
		return 0
	}
	active := tx.sl.NumActive()
	want := (active + k - 1) / k
	if want < 1 {
		want = 1
	}
	if want > tx.cfg.ChunkAmount {
		want = tx.cfg.ChunkAmount
	}
	return want
}

// BuildChunk builds up to C = ChunkAmount packets ready to send, advancing
// the swarmlist's cursor and the owner's own lamport along the way. It is
// a pure builder (no host I/O) so it can be exercised directly by tests;
// Transmit is the host-facing counterpart.
func (tx *Transmitter) BuildChunk() []Packet {
	n := tx.numPackets()
	if n == 0 {
		return nil
	}
	tx.absorbNew()
	pkts := make([]Packet, 0, n)
	for i := 0; i < n; i++ {
		if pkt := tx.buildPacket(); pkt != nil {
			pkts = append(pkts, pkt)
		}
	}
	return pkts
}

// Transmit builds a chunk and hands every resulting packet to the host
// messenger, accumulating (non-fatal) send errors. A misbehaving host that
// calls Transmit faster than swarm_chunk_delay intends is throttled by the
// rate limiter rather than flooding the link; the throttled call is a
// no-op, not an error.
func (tx *Transmitter) Transmit() error {
	if !tx.limiter.Allow() {
		if tx.stats != nil {
			tx.stats.Inc("chunks.ratelimited")
		}
		return nil
	}
	var errs cos.Errs
	var sent, failed int64
	for _, pkt := range tx.BuildChunk() {
		if err := tx.host.Send(pkt); err != nil {
			errs.Add(err)
			failed++
			continue
		}
		sent++
	}
	if tx.stats != nil {
		tx.stats.AddMany(
			stats.NamedVal64{Name: "packets.sent", Value: sent},
			stats.NamedVal64{Name: "packets.sendfailed", Value: failed},
		)
		tx.stats.SetGauge("swarmlist.num_active", float64(tx.sl.NumActive()))
	}
	_, err := errs.JoinErr()
	return err
}

// ScheduleChunks registers tx.Transmit to fire every `interval` on the
// shared housekeeper, for a host that drives chunk emission off wall
// clock rather than the sim harness's own discrete, reproducible
// Due()/BuildChunk() step loop. Returns the registered hk name, for
// Unreg on teardown.
func (tx *Transmitter) ScheduleChunks(interval time.Duration) string {
	name := fmt.Sprintf("transmitter.chunk.%d%s", tx.sl.Self(), hk.NameSuffix)
	hk.Reg(name, func() (time.Duration, bool) {
		if err := tx.Transmit(); err != nil {
			nlog.Warningf("transmitter: %v", err)
		}
		return interval, true
	}, interval)
	return name
}

func (tx *Transmitter) buildPacket() Packet {
	k := tx.cfg.NumSlots()
	if tx.sl.Size() == 0 {
		// Pathological: the owner's own entry is missing. Should not occur
		// because self is always present (spec P3), but the transmitter
		// defensively restores it instead of sending, per spec §4.4.
		_ = tx.sl.Update(tx.sl.Self(), tx.selfMask, tx.selfLamport)
		return nil
	}

	tx.chunkCount++
	entries := make([]meta.Entry, 0, k)
	if tx.rebroadcastEnabled() && tx.chunkCount%rebroadcastCadence == 0 {
		entries = tx.fillFromRebroadcast(entries, k)
	}
	for len(entries) < k {
		e := tx.nextActiveEntry()
		if e.Robot == tx.sl.Self() {
			tx.selfMask = e.Mask
			tx.selfLamport = e.Lamport
		}
		entries = append(entries, e)
	}
	return EncodeSwarm(tx.cfg, entries)
}

// nextActiveEntry implements spec §4.4 steps 1-2 and 4: call GetNext;
// while the returned entry is inactive, Advance and retry; once active,
// Advance (unconditionally) and return it. Termination is guaranteed
// because the owner's entry is always active and reachable.
func (tx *Transmitter) nextActiveEntry() meta.Entry {
	for {
		e := tx.sl.GetNext()
		if !e.Active(tx.sl.Self()) {
			tx.sl.Advance()
			continue
		}
		tx.sl.Advance()
		return e
	}
}

func (tx *Transmitter) rebroadcastEnabled() bool {
	return tx.cfg.RebroadcastTargetSuccess > 0 && tx.cfg.RebroadcastTargetSuccess < 1
}

// fillFromRebroadcast drains priority entries off the front of the
// rebroadcast queue, filling up to k slots.
func (tx *Transmitter) fillFromRebroadcast(entries []meta.Entry, k int) []meta.Entry {
	for len(tx.rebroadcast) > 0 && len(entries) < k {
		item := &tx.rebroadcast[0]
		if e, ok := tx.sl.Get(item.id); ok {
			entries = append(entries, e)
		}
		item.remaining--
		if item.remaining <= 0 {
			tx.rebroadcast = tx.rebroadcast[1:]
		}
	}
	return entries
}

// absorbNew drains Swarmlist.DrainNew and, when the rebroadcast extension
// is enabled, enqueues each newly learned id for up to repeatCount()
// priority re-transmissions before it graduates to the normal rotation.
// A cuckoofilter bounds the dedupe check so a flapping robot at capacity
// doesn't repeatedly re-enqueue the same id.
func (tx *Transmitter) absorbNew() {
	newIDs := tx.sl.DrainNew()
	if !tx.rebroadcastEnabled() {
		return
	}
	n := tx.repeatCount()
	if n <= 0 {
		return
	}
	for _, id := range newIDs {
		if tx.alreadyQueued(id) {
			continue
		}
		tx.rebroadcast = append(tx.rebroadcast, rebroadcastItem{id: id, remaining: n})
	}
}

func (tx *Transmitter) alreadyQueued(id meta.RobotID) bool {
	if tx.dedup == nil {
		tx.dedup = cuckoo.NewFilter(1024)
	}
	key := idKey(id)
	if tx.dedup.Lookup(key) {
		return true
	}
	tx.dedup.Insert(key)
	return false
}

func idKey(id meta.RobotID) []byte {
	return []byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)}
}

// repeatCount computes ceil(log_q(1-p)), per spec §4.4, where p is the
// target success probability and q is the per-hop drop probability.
// Degenerate configurations (p or q out of (0,1)) disable the extension.
func (tx *Transmitter) repeatCount() int {
	p := tx.cfg.RebroadcastTargetSuccess
	q := tx.cfg.PacketDropProbability
	if p <= 0 || p >= 1 || q <= 0 || q >= 1 {
		return 0
	}
	n := math.Log(1-p) / math.Log(q)
	return int(math.Ceil(n))
}
