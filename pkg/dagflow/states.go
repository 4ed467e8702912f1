package dagflow

import "slices"

// NodeState is the lifecycle state of a node within one run.
type NodeState int

const (
	NodeCreated NodeState = iota
	NodePrepared
	NodeStart
	NodeWaiting
	NodeRunning
	NodeSuccess
	NodeFailed
	NodeTimeout
	NodeIneffective
)

var nodeStateNames = [...]string{
	NodeCreated:     "CREATED",
	NodePrepared:    "PREPARED",
	NodeStart:       "START",
	NodeWaiting:     "WAITING",
	NodeRunning:     "RUNNING",
	NodeSuccess:     "SUCCESS",
	NodeFailed:      "FAILED",
	NodeTimeout:     "TIMEOUT",
	NodeIneffective: "INEFFECTIVE",
}

func (s NodeState) String() string {
	if s >= 0 && int(s) < len(nodeStateNames) {
		return nodeStateNames[s]
	}
	return "UNKNOWN"
}

// IsTerminal reports whether no other state can follow s.
func (s NodeState) IsTerminal() bool {
	return nodeTransitions.isTerminal(s)
}

// ParseNodeState is the inverse of NodeState.String.
func ParseNodeState(name string) (NodeState, bool) {
	i := slices.Index(nodeStateNames[:], name)
	return NodeState(i), i >= 0
}

// GraphState is the lifecycle state of a graph.
type GraphState int

const (
	GraphCreated GraphState = iota
	GraphInitializing
	GraphPrepared
	GraphScheduling
	GraphCompleted
)

var graphStateNames = [...]string{
	GraphCreated:      "CREATED",
	GraphInitializing: "INITIALIZING",
	GraphPrepared:     "PREPARED",
	GraphScheduling:   "SCHEDULING",
	GraphCompleted:    "COMPLETED",
}

func (s GraphState) String() string {
	if s >= 0 && int(s) < len(graphStateNames) {
		return graphStateNames[s]
	}
	return "UNKNOWN"
}

// IsTerminal reports whether no other state can follow s.
func (s GraphState) IsTerminal() bool {
	return graphTransitions.isTerminal(s)
}

// NodeTransitionAllowed reports whether a node may move from old to next.
func NodeTransitionAllowed(old, next NodeState) bool {
	return nodeTransitions.allowed(old, next)
}

// NodeMayReach reports whether some chain of legal transitions leads from
// from to to.
func NodeMayReach(from, to NodeState) bool {
	return nodeTransitions.mayReach(from, to)
}

// GraphTransitionAllowed reports whether a graph may move from old to next.
func GraphTransitionAllowed(old, next GraphState) bool {
	return graphTransitions.allowed(old, next)
}

// GraphMayReach reports whether some chain of legal transitions leads from
// from to to.
func GraphMayReach(from, to GraphState) bool {
	return graphTransitions.mayReach(from, to)
}

var nodeTransitions = newTransitions(map[NodeState][]NodeState{
	NodeCreated:     nil,
	NodePrepared:    {NodeCreated},
	NodeStart:       {NodePrepared},
	NodeWaiting:     {NodeStart},
	NodeRunning:     {NodeStart, NodeWaiting},
	NodeSuccess:     {NodeRunning},
	NodeFailed:      {NodeCreated, NodePrepared, NodeStart, NodeWaiting, NodeRunning},
	NodeTimeout:     {NodeStart, NodeWaiting, NodeRunning},
	NodeIneffective: {NodePrepared, NodeStart, NodeWaiting, NodeRunning},
})

var graphTransitions = newTransitions(map[GraphState][]GraphState{
	GraphCreated:      nil,
	GraphInitializing: {GraphCreated},
	GraphPrepared:     {GraphInitializing},
	GraphScheduling:   {GraphPrepared},
	GraphCompleted:    {GraphScheduling},
})

// transitions maps each state to its legal predecessors. A state with no
// predecessors is initial and may be entered from anywhere.
type transitions[S comparable] struct {
	preds map[S][]S
	reach map[S]map[S]bool // reach[from][to]
}

func newTransitions[S comparable](preds map[S][]S) *transitions[S] {
	t := &transitions[S]{preds: preds, reach: make(map[S]map[S]bool, len(preds))}
	for from := range preds {
		t.reach[from] = make(map[S]bool)
	}
	for to := range preds {
		for from := range preds {
			if t.search(from, to, map[S]bool{}) {
				t.reach[from][to] = true
			}
		}
	}
	return t
}

// search walks predecessors backwards from to, looking for from.
func (t *transitions[S]) search(from, to S, seen map[S]bool) bool {
	if seen[to] {
		return false
	}
	seen[to] = true
	for _, p := range t.preds[to] {
		if p == from || t.search(from, p, seen) {
			return true
		}
	}
	return false
}

func (t *transitions[S]) allowed(old, next S) bool {
	preds := t.preds[next]
	return len(preds) == 0 || slices.Contains(preds, old)
}

func (t *transitions[S]) mayReach(from, to S) bool {
	return t.reach[from][to]
}

func (t *transitions[S]) isTerminal(s S) bool {
	for _, ok := range t.reach[s] {
		if ok {
			return false
		}
	}
	return true
}
