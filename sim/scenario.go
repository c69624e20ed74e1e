package sim

import "github.com/NVIDIA/swarmcore/core/meta"

// ScenarioKind tags the four experiment shapes Design Notes §9 prescribes
// as a replacement for the source's ExpStateBase subclass hierarchy:
// scenarios differ only in initial conditions and termination predicates,
// never in engine behavior.
type ScenarioKind int

const (
	Consensus ScenarioKind = iota
	Adding
	Removing
	Composite
)

// Scenario is a tagged variant: Init seeds a Harness's initial conditions
// (e.g. scheduling a robot to join or leave mid-run), IsFinished reports
// whether the run's termination predicate currently holds. Sub holds the
// constituent scenarios for Kind == Composite; it is nil otherwise.
type Scenario struct {
	Kind       ScenarioKind
	Sub        []Scenario
	Init       func(h *Harness)
	IsFinished func(h *Harness) bool
}

// NewConsensusScenario finishes once every joined robot holds an active
// entry for every other joined robot (Glossary: Consensus).
func NewConsensusScenario() Scenario {
	return Scenario{
		Kind:       Consensus,
		Init:       func(*Harness) {},
		IsFinished: func(h *Harness) bool { return h.HasConverged() },
	}
}

// NewAddingScenario schedules `joining` to join the swarm at `atStep` and
// finishes once consensus is reached including the new arrival.
func NewAddingScenario(joining meta.RobotID, atStep uint64) Scenario {
	return Scenario{
		Kind: Adding,
		Init: func(h *Harness) { h.ScheduleJoin(joining, atStep) },
		IsFinished: func(h *Harness) bool {
			return h.hasJoined(joining) && h.HasConverged()
		},
	}
}

// NewRemovingScenario schedules `leaving` to depart the swarm at `atStep`
// and finishes once every remaining robot has aged the departed robot's
// entry out to inactive.
func NewRemovingScenario(leaving meta.RobotID, atStep uint64) Scenario {
	return Scenario{
		Kind: Removing,
		Init: func(h *Harness) { h.ScheduleLeave(leaving, atStep) },
		IsFinished: func(h *Harness) bool {
			return h.hasLeft(leaving) && h.allSeeInactive(leaving)
		},
	}
}

// NewCompositeScenario runs every sub-scenario's Init and finishes only
// once all of them report finished.
func NewCompositeScenario(subs ...Scenario) Scenario {
	return Scenario{
		Kind: Composite,
		Sub:  subs,
		Init: func(h *Harness) {
			for _, s := range subs {
				s.Init(h)
			}
		},
		IsFinished: func(h *Harness) bool {
			for _, s := range subs {
				if !s.IsFinished(h) {
					return false
				}
			}
			return true
		},
	}
}
