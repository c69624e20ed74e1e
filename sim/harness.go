package sim

import (
	"context"

	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/swarmcore/cmn"
	"github.com/NVIDIA/swarmcore/cmn/nlog"
	"github.com/NVIDIA/swarmcore/cmn/xoshiro256"
	"github.com/NVIDIA/swarmcore/core/meta"
	"github.com/NVIDIA/swarmcore/stats"
	"github.com/NVIDIA/swarmcore/swarmlist"
	"github.com/NVIDIA/swarmcore/transport"
)

// robot bundles one simulated robot's full engine stack plus the harness
// bookkeeping needed to join/leave it mid-run.
type robot struct {
	id    meta.RobotID
	sl    *swarmlist.Swarmlist
	tx    *transport.Transmitter
	rx    *transport.Receiver
	host  *simHost
	stats *stats.PromTracker

	joined  bool
	left    bool
	joinAt  uint64
	leaveAt uint64
	hasJoin bool
	hasLeft bool
}

// Harness drives discrete time steps across N engines, delivering packets
// between one-hop neighbors (per Topology) with a configurable drop
// probability, invoking Tick every LoopsPerTick steps, and checking the
// Scenario's termination predicate each step. Each robot's engine stays
// single-threaded per spec §5; errgroup only parallelizes *across* robots.
type Harness struct {
	cfg      *cmn.Config
	topo     Topology
	scenario Scenario
	robots   map[meta.RobotID]*robot
	inbox    map[meta.RobotID][]transport.Packet
	rng      *xoshiro256.Source
	step     uint64
	runID    string
}

// NewHarness constructs a harness for every robot named by topo, applies
// cfg to each, and runs the scenario's Init hook.
func NewHarness(cfg *cmn.Config, topo Topology, scenario Scenario, seed uint64) (*Harness, error) {
	runID, _ := shortid.Generate()
	h := &Harness{
		cfg:      cfg,
		topo:     topo,
		scenario: scenario,
		robots:   make(map[meta.RobotID]*robot),
		inbox:    make(map[meta.RobotID][]transport.Packet),
		rng:      xoshiro256.New(seed),
		runID:    runID,
	}
	for _, id := range topo.Robots() {
		if err := h.addRobot(id, true); err != nil {
			return nil, err
		}
	}
	scenario.Init(h)
	nlog.Infof("sim: run %s started with %d robots", h.runID, len(h.robots))
	return h, nil
}

func (h *Harness) addRobot(id meta.RobotID, joined bool) error {
	sl := swarmlist.New(id, h.cfg)
	st := stats.NewPromTracker()
	sh := &simHost{harness: h, id: id}
	tx, err := transport.NewTransmitter(sl, h.cfg, sh, st)
	if err != nil {
		return err
	}
	rx, err := transport.NewReceiver(sl, h.cfg, st)
	if err != nil {
		return err
	}
	h.robots[id] = &robot{id: id, sl: sl, tx: tx, rx: rx, host: sh, stats: st, joined: joined}
	return nil
}

// ScheduleJoin arranges for `id` to enter the swarm at step `at`, matching
// a robot that hasn't powered on yet rather than one that is merely
// inactive: an id outside the topology has no engine at all before that
// step, and an id already in the topology keeps its engine but is left
// out of stepping, delivery and convergence checks until then.
func (h *Harness) ScheduleJoin(id meta.RobotID, at uint64) {
	if r, ok := h.robots[id]; ok {
		r.hasJoin, r.joinAt = true, at
		r.joined = false
		return
	}
	// robot not in the topology yet; registered lazily at joinAt.
	h.robots[id] = &robot{id: id, hasJoin: true, joinAt: at}
}

// ScheduleLeave arranges for `id` to stop participating at step `at`: its
// engine stops transmitting and receiving, simulating a powered-off robot
// whose last-known entries simply age out on its former neighbors.
func (h *Harness) ScheduleLeave(id meta.RobotID, at uint64) {
	if r, ok := h.robots[id]; ok {
		r.hasLeft, r.leaveAt = true, at
	}
}

func (h *Harness) hasJoined(id meta.RobotID) bool {
	r, ok := h.robots[id]
	return ok && r.joined
}

func (h *Harness) hasLeft(id meta.RobotID) bool {
	r, ok := h.robots[id]
	return ok && r.left
}

// allSeeInactive reports whether every other live robot's swarmlist holds
// an inactive (or absent) entry for `id`.
func (h *Harness) allSeeInactive(id meta.RobotID) bool {
	for _, r := range h.robots {
		if !r.joined || r.left || r.id == id {
			continue
		}
		e, ok := r.sl.Get(id)
		if ok && e.Active(r.id) {
			return false
		}
	}
	return true
}

// HasConverged reports whether every joined, live robot holds an active
// entry for every other joined, live robot (Glossary: Consensus).
func (h *Harness) HasConverged() bool {
	for _, a := range h.robots {
		if !a.joined || a.left {
			continue
		}
		for _, b := range h.robots {
			if !b.joined || b.left || a.id == b.id {
				continue
			}
			e, ok := a.sl.Get(b.id)
			if !ok || !e.Active(a.id) {
				return false
			}
		}
	}
	return true
}

// Step advances the simulation by one host time step: applies any
// scheduled joins/leaves, delivers each robot's inbox into its receiver,
// runs Tick at the configured cadence, and lets each robot's transmitter
// emit a chunk if its schedule is due.
func (h *Harness) Step(ctx context.Context) error {
	h.step++
	h.applySchedule()

	// Pull each robot's queued packets out of the shared inbox map up front:
	// the map itself is not safe for the concurrent per-robot access below,
	// even though every goroutine only ever touches its own robot's key.
	pending := make(map[meta.RobotID][]transport.Packet, len(h.robots))
	for id, pkts := range h.inbox {
		pending[id] = pkts
	}
	h.inbox = make(map[meta.RobotID][]transport.Packet, len(h.robots))

	g, _ := errgroup.WithContext(ctx)
	for _, r := range h.robots {
		r := r
		if !r.joined || r.left {
			continue
		}
		pkts := pending[r.id]
		g.Go(func() error {
			h.deliverPackets(r, pkts)
			if h.cfg.LoopsPerTick > 0 && h.step%uint64(h.cfg.LoopsPerTick) == 0 {
				r.sl.Tick()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range h.robots {
		if !r.joined || r.left {
			continue
		}
		if r.tx.Due(h.step) {
			for _, pkt := range r.tx.BuildChunk() {
				h.broadcast(r.id, pkt)
			}
		}
	}
	return nil
}

func (h *Harness) applySchedule() {
	for _, r := range h.robots {
		if r.hasJoin && !r.joined && h.step >= r.joinAt {
			if r.sl == nil {
				if err := h.addRobot(r.id, true); err != nil {
					nlog.Errorf("sim: failed to join robot %d: %v", r.id, err)
					continue
				}
			} else {
				r.joined = true
			}
			nlog.Infof("sim: robot %d joined at step %d", r.id, h.step)
		}
		if r.hasLeft && !r.left && r.joined && h.step >= r.leaveAt {
			r.left = true
			nlog.Infof("sim: robot %d left at step %d", r.id, h.step)
		}
	}
}

// broadcast delivers pkt to every one-hop neighbor of `from`, dropping it
// independently per neighbor with probability cfg.PacketDropProbability.
func (h *Harness) broadcast(from meta.RobotID, pkt transport.Packet) {
	for _, to := range h.topo.Neighbors(from) {
		r, ok := h.robots[to]
		if !ok || !r.joined || r.left {
			continue
		}
		if h.cfg.PacketDropProbability > 0 && h.rng.Float64() < h.cfg.PacketDropProbability {
			continue
		}
		cp := make(transport.Packet, len(pkt))
		copy(cp, pkt)
		h.inbox[to] = append(h.inbox[to], cp)
	}
}

func (h *Harness) deliverPackets(r *robot, pkts []transport.Packet) {
	for _, pkt := range pkts {
		if err := r.rx.Recv(pkt); err != nil {
			nlog.Warningf("sim: robot %d: %v", r.id, err)
		}
	}
}

// Run steps the harness until the scenario finishes or maxSteps elapses.
func (h *Harness) Run(ctx context.Context, maxSteps uint64) (converged bool, steps uint64, err error) {
	for s := uint64(0); s < maxSteps; s++ {
		if err := h.Step(ctx); err != nil {
			return false, h.step, err
		}
		if h.scenario.IsFinished(h) {
			return true, h.step, nil
		}
	}
	return false, h.step, nil
}

// CurrentStep returns the current host step counter.
func (h *Harness) CurrentStep() uint64 { return h.step }

// RunID returns the short id assigned to this harness run.
func (h *Harness) RunID() string { return h.runID }

// Robot exposes one robot's swarmlist snapshot for reporting/CLI use.
func (h *Harness) Robot(id meta.RobotID) (*swarmlist.Swarmlist, bool) {
	r, ok := h.robots[id]
	if !ok || r.sl == nil {
		return nil, false
	}
	return r.sl, true
}

// Stats exposes one robot's accumulated counters for reporting/CLI use.
func (h *Harness) Stats(id meta.RobotID) (map[string]int64, bool) {
	r, ok := h.robots[id]
	if !ok || r.stats == nil {
		return nil, false
	}
	return r.stats.GetStats(), true
}
