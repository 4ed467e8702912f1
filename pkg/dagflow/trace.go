package dagflow

import (
	"cmp"
	"slices"
	"time"
)

// NodeInfo identifies the node a Trace belongs to.
type NodeInfo struct {
	Name    string
	Role    Role
	GraphID string
	Mode    Mode
	// Timeout is the effective wait timeout, NoTimeout when unbounded.
	Timeout time.Duration
}

// Trace records one node's progress through one run.
type Trace struct {
	Node  NodeInfo
	RunID string
	// State is the last state entered.
	State NodeState
	// Entered holds the time each state was first entered. States never
	// entered are absent.
	Entered map[NodeState]time.Time
	// FailedDependencies lists dependencies that reported failure, in the
	// order the failures arrived.
	FailedDependencies []string
	// Result is the unit's value when State is NodeSuccess.
	Result any
	// Err is set for FAILED, TIMEOUT and INEFFECTIVE.
	Err error
}

// Transition is one entry of a Trace's state timeline.
type Transition struct {
	State NodeState
	At    time.Time
}

// EnteredAt returns when s was entered, or the zero time.
func (t Trace) EnteredAt(s NodeState) time.Time {
	return t.Entered[s]
}

// Transitions returns the states entered, oldest first.
func (t Trace) Transitions() []Transition {
	out := make([]Transition, 0, len(t.Entered))
	for s, at := range t.Entered {
		out = append(out, Transition{State: s, At: at})
	}
	slices.SortFunc(out, func(a, b Transition) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return cmp.Compare(a.State, b.State)
	})
	return out
}

// Duration is the time from START to the final state, zero when the node
// never started or never finished.
func (t Trace) Duration() time.Duration {
	start, ok := t.Entered[NodeStart]
	if !ok || !t.State.IsTerminal() {
		return 0
	}
	return t.Entered[t.State].Sub(start)
}

// Finished reports whether the trace ended in a terminal state.
func (t Trace) Finished() bool {
	return t.State.IsTerminal()
}

// traceLog is the mutable side of a Trace, owned by a nodeRun and guarded by
// its mutex.
type traceLog struct {
	entered [len(nodeStateNames)]time.Time
	failed  []string
}

func (l *traceLog) enter(s NodeState, at time.Time) {
	if int(s) < len(l.entered) && l.entered[s].IsZero() {
		l.entered[s] = at
	}
}

func (l *traceLog) snapshot(info NodeInfo, runID string, state NodeState, result any, err error) Trace {
	t := Trace{
		Node:               info,
		RunID:              runID,
		State:              state,
		Entered:            make(map[NodeState]time.Time),
		FailedDependencies: slices.Clone(l.failed),
		Result:             result,
		Err:                err,
	}
	for s, at := range l.entered {
		if !at.IsZero() {
			t.Entered[NodeState(s)] = at
		}
	}
	return t
}
