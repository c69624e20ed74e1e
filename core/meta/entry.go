package meta

// RobotID identifies one robot in the swarm: an unsigned integer wide
// enough to cover the deployment.
type RobotID uint32

// Entry is the per-robot record held in a Swarmlist. It is a pure value
// type: Tick/ResetTimer/IncrementLamport only ever touch their own
// receiver, never swarmlist-wide bookkeeping (num_active, the cursor, the
// id->position map all live one level up, in package swarmlist).
type Entry struct {
	Robot   RobotID `json:"robot"`
	Mask    uint8   `json:"mask"`
	Lamport uint32  `json:"lamport"`
	TTI     uint8   `json:"tti"`
	TTR     uint8   `json:"ttr,omitempty"`
	// HasTTR reports whether TTR is meaningful for this entry (removal
	// enabled and the entry has gone inactive since its timer was last
	// reset).
	HasTTR bool `json:"-"`
}

// NewEntry constructs a freshly-observed entry: tti is reset to ttiMax.
func NewEntry(robot RobotID, mask uint8, lamport uint32, ttiMax uint8) Entry {
	return Entry{Robot: robot, Mask: mask, Lamport: lamport, TTI: ttiMax}
}

// Active reports whether the entry is currently considered a live member:
//
//	active(e) = (e.tti > 0) || (e.robot == self)
func (e Entry) Active(self RobotID) bool {
	return e.TTI > 0 || e.Robot == self
}

// Tick decrements TTI, saturating at 0.
func (e *Entry) Tick() { e.tickTTI() }

func (e *Entry) tickTTI() {
	if e.TTI > 0 {
		e.TTI--
	}
}

// TickTTR decrements TTR, saturating at 0. Only meaningful once HasTTR is
// set (removal enabled and the entry has decayed to inactive).
func (e *Entry) TickTTR() {
	if e.TTR > 0 {
		e.TTR--
	}
}

// ResetTimer assigns TTI := ttiMax.
func (e *Entry) ResetTimer(ttiMax uint8) {
	e.TTI = ttiMax
	e.HasTTR = false
	e.TTR = 0
}

// IncrementLamport increments the entry's own lamport modulo 2^width.
func (e *Entry) IncrementLamport(width int) {
	l := Lamport{Value: e.Lamport, Width: width}
	e.Lamport = l.Inc().Value
}

// StartRemovalTimer begins the ttr countdown: once decayed by Tick, if
// removal is enabled, ttr := ttrMax and counts down from there.
func (e *Entry) StartRemovalTimer(ttrMax uint8) {
	e.HasTTR = true
	e.TTR = ttrMax
}
