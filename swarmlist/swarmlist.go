// Package swarmlist implements the per-robot swarmlist: the collection of
// meta.Entry records keyed by robot id, with O(1) lookup by id and O(1)
// sequential access by position, a moving "next to send" cursor, and a
// count of currently-active entries.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package swarmlist

import (
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/NVIDIA/swarmcore/cmn"
	"github.com/NVIDIA/swarmcore/cmn/cos"
	"github.com/NVIDIA/swarmcore/cmn/debug"
	"github.com/NVIDIA/swarmcore/core/meta"
	"github.com/NVIDIA/swarmcore/hk"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Counters tracks cumulative entry lifecycle events, exposed read-only
// through Swarmlist.Stats.
type Counters struct {
	Created      int64
	Refreshed    int64
	Reactivated  int64
	Evicted      int64
	Dropped      int64 // capacity-exceeded drops
	Rejected     int64 // stale/out-of-window observations ignored
}

// Swarmlist is the per-robot membership table. Exclusively owned by its
// robot; the zero value is not usable, use New.
type Swarmlist struct {
	mu sync.Mutex

	self    meta.RobotID
	entries []meta.Entry
	idx     map[meta.RobotID]int
	next    int
	active  int

	width     int
	threshold uint32
	ttiMax    uint8
	ttrMax    uint8
	removeOld bool
	maxEntries int

	stats    Counters
	dropped  *cuckoo.Filter // approximate recently-dropped-id membership

	newlyCreated []meta.RobotID // drained by the transmitter's rebroadcast queue
}

// New constructs an empty swarmlist for `self` and immediately inserts the
// owner's own entry. Postcondition: the owner's entry is present and
// active.
func New(self meta.RobotID, cfg *cmn.Config) *Swarmlist {
	sl := &Swarmlist{
		self:       self,
		idx:        make(map[meta.RobotID]int),
		width:      cfg.LamportWidth,
		threshold:  cfg.LamportThreshold,
		ttiMax:     cfg.TTIMax,
		ttrMax:     cfg.TTRMax,
		removeOld:  cfg.RemoveOldEntries,
		maxEntries: cfg.MaxEntries,
	}
	if cfg.MaxEntries > 0 {
		sl.dropped = cuckoo.NewFilter(1024)
	}
	sl.construct()
	return sl
}

// construct resets the table to just the owner's own entry. New is its
// only caller; the transmitter restores a missing owner entry through
// Update instead.
func (sl *Swarmlist) construct() {
	sl.entries = sl.entries[:0]
	for k := range sl.idx {
		delete(sl.idx, k)
	}
	sl.next = 0
	sl.active = 0
	sl.update(sl.self, 0, 0)
}

// Self returns the owning robot's id.
func (sl *Swarmlist) Self() meta.RobotID { return sl.self }

// SetSelfMask updates the owner's own application payload directly,
// bypassing the freshness rule: the robot knows its own mask locally and
// does not need to "observe" it via the Lamport comparison.
func (sl *Swarmlist) SetSelfMask(mask uint8) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if pos, ok := sl.idx[sl.self]; ok {
		sl.entries[pos].Mask = mask
	}
}

// Get returns a copy of the entry for id, if present.
func (sl *Swarmlist) Get(id meta.RobotID) (meta.Entry, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	pos, ok := sl.idx[id]
	if !ok {
		return meta.Entry{}, false
	}
	return sl.entries[pos], true
}

// Update applies the freshness rule to an incoming observation. For
// id == self this is a no-op: the owner trusts its own local state.
func (sl *Swarmlist) Update(id meta.RobotID, mask uint8, lamport uint32) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.update(id, mask, lamport)
}

func (sl *Swarmlist) update(id meta.RobotID, mask uint8, lamport uint32) error {
	if id == sl.self && len(sl.entries) > 0 {
		// self-observations never touch active/freshness fields once the
		// owner's entry already exists; the initial construct() call
		// above is the one exception (it creates that very entry).
		return nil
	}

	pos, ok := sl.idx[id]
	if !ok {
		return sl.create(id, mask, lamport)
	}

	e := &sl.entries[pos]
	if e.Active(sl.self) {
		if !meta.Newer(lamport, e.Lamport, sl.threshold, uint32(sl.width)) {
			sl.stats.Rejected++
			return nil
		}
		e.Lamport = lamport
		e.Mask = mask
		e.ResetTimer(sl.ttiMax)
		sl.stats.Refreshed++
		return nil
	}

	// inactive: reactivate on any lamport change
	if lamport == e.Lamport {
		sl.stats.Rejected++
		return nil
	}
	e.Lamport = lamport
	e.Mask = mask
	e.ResetTimer(sl.ttiMax)
	sl.active++
	sl.stats.Reactivated++
	return nil
}

func (sl *Swarmlist) create(id meta.RobotID, mask uint8, lamport uint32) error {
	if sl.maxEntries > 0 && len(sl.entries) >= sl.maxEntries {
		sl.stats.Dropped++
		if sl.dropped != nil {
			key := idKey(id)
			if !sl.dropped.Lookup(key) {
				sl.dropped.Insert(key)
			}
		}
		return cos.NewErrCapacityExceeded(sl.maxEntries)
	}
	e := meta.NewEntry(id, mask, lamport, sl.ttiMax)
	sl.idx[id] = len(sl.entries)
	sl.entries = append(sl.entries, e)
	sl.active++
	sl.stats.Created++
	sl.newlyCreated = append(sl.newlyCreated, id)
	sl.checkInvariants()
	return nil
}

// DrainNew returns every robot id created since the last DrainNew call and
// clears the buffer; used by the transmitter's optional rebroadcast queue
// to learn which ids deserve priority re-transmission.
func (sl *Swarmlist) DrainNew() []meta.RobotID {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	out := sl.newlyCreated
	sl.newlyCreated = nil
	return out
}

func idKey(id meta.RobotID) []byte {
	return []byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)}
}

// Tick decrements every entry's tti by one; active->inactive transitions
// maintain num_active, and — if removal is enabled — inactive entries'
// ttr is decremented and entries reaching ttr==0 are removed.
func (sl *Swarmlist) Tick() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	for i := range sl.entries {
		e := &sl.entries[i]
		if e.Active(sl.self) {
			wasActive := e.TTI > 0
			e.Tick()
			if wasActive && e.TTI == 0 && e.Robot != sl.self {
				sl.active--
				if sl.removeOld {
					e.StartRemovalTimer(sl.ttrMax)
				}
			}
			continue
		}
		if sl.removeOld && e.HasTTR {
			e.TickTTR()
		}
	}

	if sl.removeOld {
		sl.reapRemovable()
	}
	sl.checkInvariants()
}

// ScheduleTick registers sl.Tick to fire every `interval` on the shared
// housekeeper, realizing the host contract's schedule_tick(every=
// LOOPS_PER_TICK) (spec §4.6) for a host that drives the engine off wall
// clock rather than off the sim harness's own discrete, reproducible step
// loop. Returns the registered hk name, for Unreg on teardown.
func (sl *Swarmlist) ScheduleTick(interval time.Duration) string {
	name := fmt.Sprintf("swarmlist.tick.%d%s", sl.self, hk.NameSuffix)
	hk.Reg(name, func() (time.Duration, bool) {
		sl.Tick()
		return interval, true
	}, interval)
	return name
}

// reapRemovable removes every inactive entry whose ttr has reached 0, via
// swap-with-last, patching the cursor to stay valid.
func (sl *Swarmlist) reapRemovable() {
	for i := 0; i < len(sl.entries); {
		e := sl.entries[i]
		if e.Active(sl.self) || !e.HasTTR || e.TTR > 0 {
			i++
			continue
		}
		sl.removeAt(i)
		// do not advance i: the tail entry swapped into position i must
		// also be checked
	}
}

// removeAt frees slot `pos` by swapping in the tail entry and patching
// the id->position map and the cursor.
func (sl *Swarmlist) removeAt(pos int) {
	last := len(sl.entries) - 1
	removedID := sl.entries[pos].Robot

	if pos != last {
		sl.entries[pos] = sl.entries[last]
		sl.idx[sl.entries[pos].Robot] = pos
	}
	sl.entries = sl.entries[:last]
	delete(sl.idx, removedID)
	sl.stats.Evicted++

	switch {
	case pos == sl.next:
		// leave next unchanged: it now points at what was the tail
	case pos < sl.next:
		sl.next--
	}
	if sl.next >= len(sl.entries) {
		sl.next = 0
	}
}

// GetNext returns a copy of the entry at the cursor position, for use by
// the transmitter. Per this module's design decision (see DESIGN.md), the
// owner's lamport is incremented here, immediately before the copy is
// taken, whenever the cursor currently points at the owner's own entry —
// so every call that hands back self's entry yields a strictly newer
// lamport than the previous one.
func (sl *Swarmlist) GetNext() meta.Entry {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if len(sl.entries) == 0 {
		return meta.Entry{}
	}
	pos := sl.next
	e := &sl.entries[pos]
	if e.Robot == sl.self {
		e.IncrementLamport(sl.width)
	}
	return *e
}

// Advance moves the cursor forward by one, wrapping modulo size.
func (sl *Swarmlist) Advance() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if len(sl.entries) == 0 {
		sl.next = 0
		return
	}
	sl.next = (sl.next + 1) % len(sl.entries)
}

// Foreach iterates all entries in insertion order for observability/
// logging; the visitor receives a copy and may not mutate the swarmlist
// from within the callback.
func (sl *Swarmlist) Foreach(visit func(meta.Entry)) {
	sl.mu.Lock()
	snap := make([]meta.Entry, len(sl.entries))
	copy(snap, sl.entries)
	sl.mu.Unlock()
	for _, e := range snap {
		visit(e)
	}
}

// DumpJSON renders a snapshot of every entry as JSON, for diagnostic
// logging (spec §4.3 foreach(visitor), observability use). Uses jsoniter
// rather than encoding/json for the same reason the teacher does
// throughout its own hot paths: far fewer reflection allocations on a
// struct shape that never changes between calls.
func (sl *Swarmlist) DumpJSON() (string, error) {
	snap := sl.Snapshot()
	b, err := jsonAPI.Marshal(snap)
	if err != nil {
		return "", errors.Wrap(err, "swarmlist: marshal snapshot")
	}
	return string(b), nil
}

// Snapshot returns a defensive copy of every entry, for logging/tests.
func (sl *Swarmlist) Snapshot() []meta.Entry {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	out := make([]meta.Entry, len(sl.entries))
	copy(out, sl.entries)
	return out
}

func (sl *Swarmlist) Size() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.entries)
}

func (sl *Swarmlist) NumActive() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.active
}

func (sl *Swarmlist) Stats() Counters {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.stats
}

// checkInvariants re-validates the table's structural invariants under the
// `debug` build tag; a violation is fatal since it can only be produced by
// a bug in this package, never by caller input.
func (sl *Swarmlist) checkInvariants() {
	debug.Func(func() {
		if len(sl.idx) != len(sl.entries) {
			panic(cos.NewErrInvariantViolated("idmap has %d keys, sequence has %d entries", len(sl.idx), len(sl.entries)))
		}
		nactive := 0
		for pos, e := range sl.entries {
			mapped, ok := sl.idx[e.Robot]
			if !ok || mapped != pos {
				panic(cos.NewErrInvariantViolated("idmap[%d]=%d, want %d", e.Robot, mapped, pos))
			}
			if e.Active(sl.self) {
				nactive++
			}
		}
		if nactive != sl.active {
			panic(cos.NewErrInvariantViolated("num_active=%d, counted %d", sl.active, nactive))
		}
		if _, ok := sl.idx[sl.self]; !ok {
			panic(cos.NewErrInvariantViolated("owner entry missing"))
		}
	})
}
