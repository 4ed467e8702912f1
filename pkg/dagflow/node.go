package dagflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/randalmurphal/dagflow/pkg/dagflow/registry"
)

// NoTimeout disables a node's wait timeout.
const NoTimeout time.Duration = -1

// RecheckInterval is how often a WAITING node re-evaluates Unit.CanRun when
// no parameter or failure notice wakes it.
const RecheckInterval = 10 * time.Millisecond

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithNodeTimeout bounds how long the node waits for its dependencies.
// Zero inherits the graph's default, NoTimeout waits forever.
func WithNodeTimeout(d time.Duration) NodeOption {
	return func(n *Node) {
		n.timeout = d
	}
}

// stateListener observes node state changes within one run.
type stateListener func(n *Node, runID string, old, next NodeState)

// Node wraps a Unit with a state machine and a parameter buffer.
//
// All per-run fields live in a nodeRun. Calls whose context carries a run id
// (see NewContext) use that run's overlay, installed by BeginRun and removed
// by EndRun; calls without one use the node's canonical overlay. Writes for a
// run id with no installed overlay are dropped, reads fall back to canonical.
//
// Contexts built by the Scheduler are pinned to the overlays installed for
// their run. Once that run ends, writes through them are dropped even if a
// later run reuses the id.
type Node struct {
	unit    Unit
	name    string
	timeout time.Duration

	mu        sync.Mutex
	graph     *Graph
	expected  int
	canonical *nodeRun

	runs *registry.Registry[string, *nodeRun]
}

type nodeRun struct {
	mu       sync.Mutex
	runID    string
	info     NodeInfo
	state    NodeState
	expected int
	params   Params
	result   any
	err      error
	log      traceLog
	listener stateListener
	wake     chan struct{}
	ended    bool
}

// runBinding pins one scheduled run to the overlays installed for it.
type runBinding struct {
	overlays map[*Node]*nodeRun
}

type runBindingKey struct{}

func withBinding(ctx context.Context, b *runBinding) context.Context {
	return context.WithValue(ctx, runBindingKey{}, b)
}

func newNode(unit Unit, opts ...NodeOption) *Node {
	n := &Node{
		unit: unit,
		name: unit.Name(),
		runs: registry.New[string, *nodeRun](),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.canonical = n.freshRunLocked("", n.notifyObserver, nil)
	return n
}

// Name returns the unit's name.
func (n *Node) Name() string { return n.name }

// Unit returns the wrapped unit.
func (n *Node) Unit() Unit { return n.unit }

// IsRoot reports whether the node is its graph's root.
func (n *Node) IsRoot() bool { return n.unit.Role() == RoleRoot }

// IsTerminal reports whether the node is its graph's terminal.
func (n *Node) IsTerminal() bool { return n.unit.Role() == RoleTerminal }

// Timeout returns the configured timeout (zero means inherited).
func (n *Node) Timeout() time.Duration { return n.timeout }

func (n *Node) String() string { return n.name }

// Graph returns the owning graph, nil once removed.
func (n *Node) Graph() *Graph {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.graph
}

// ExpectedDependencies returns the number of direct dependencies.
func (n *Node) ExpectedDependencies() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.expected
}

func (n *Node) bind(g *Graph) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.graph = g
	c := n.canonical
	c.mu.Lock()
	c.info = n.infoLocked()
	c.mu.Unlock()
}

func (n *Node) setExpected(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expected = count
	c := n.canonical
	c.mu.Lock()
	c.expected = count
	c.mu.Unlock()
}

func (n *Node) infoLocked() NodeInfo {
	info := NodeInfo{Name: n.name, Role: n.unit.Role(), Timeout: n.timeout}
	if g := n.graph; g != nil {
		info.GraphID = g.id
		info.Mode = g.mode
		if info.Timeout == 0 {
			info.Timeout = g.timeout
		}
	}
	if info.Timeout <= 0 {
		info.Timeout = NoTimeout
	}
	return info
}

// freshRunLocked builds an overlay seeded from canonical defaults.
func (n *Node) freshRunLocked(runID string, listener stateListener, defaults Params) *nodeRun {
	r := &nodeRun{
		runID:    runID,
		info:     n.infoLocked(),
		state:    NodeCreated,
		expected: n.expected,
		params:   slices.Clone(defaults),
		listener: listener,
		wake:     make(chan struct{}, 1),
	}
	r.log.enter(NodeCreated, time.Now())
	return r
}

// BeginRun installs a fresh overlay for the run id carried by ctx, seeded
// from the canonical defaults. It returns false when ctx carries no run id
// or the run already has an overlay.
func (n *Node) BeginRun(ctx context.Context) bool {
	id, ok := runIDFrom(ctx)
	if !ok {
		return false
	}
	_, ok = n.beginRun(id, n.notifyObserver)
	return ok
}

func (n *Node) beginRun(runID string, listener stateListener) (*nodeRun, bool) {
	n.mu.Lock()
	c := n.canonical
	c.mu.Lock()
	defaults := slices.Clone(c.params)
	c.mu.Unlock()
	r := n.freshRunLocked(runID, listener, defaults)
	n.mu.Unlock()
	if !n.runs.Add(runID, r) {
		return nil, false
	}
	return r, true
}

// attach installs an overlay for runID, or returns the one already installed.
func (n *Node) attach(runID string) *nodeRun {
	if r, ok := n.beginRun(runID, n.notifyObserver); ok {
		return r
	}
	r, _ := n.runs.Get(runID)
	return r
}

// EndRun discards the overlay of the run id carried by ctx. Executions still
// using it stop at their next state change.
func (n *Node) EndRun(ctx context.Context) {
	if r := n.bound(ctx); r != nil {
		r.end()
	}
	if id, ok := runIDFrom(ctx); ok {
		if r, ok := n.runs.Take(id); ok {
			r.end()
		}
	}
}

// Reset discards the canonical overlay, default parameters included.
func (n *Node) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canonical = n.freshRunLocked("", n.notifyObserver, nil)
}

func (n *Node) canonicalRun() *nodeRun {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.canonical
}

// bound returns the overlay ctx is pinned to, if any.
func (n *Node) bound(ctx context.Context) *nodeRun {
	if ctx == nil {
		return nil
	}
	b, _ := ctx.Value(runBindingKey{}).(*runBinding)
	if b == nil {
		return nil
	}
	return b.overlays[n]
}

// writable returns the overlay ctx addresses, nil when its run has none or
// has ended.
func (n *Node) writable(ctx context.Context) *nodeRun {
	if r := n.bound(ctx); r != nil {
		if r.isEnded() {
			return nil
		}
		return r
	}
	id, ok := runIDFrom(ctx)
	if !ok {
		return n.canonicalRun()
	}
	r, _ := n.runs.Get(id)
	return r
}

// readable is writable with a canonical fallback. A pinned context keeps
// reading its own overlay after the run ended.
func (n *Node) readable(ctx context.Context) *nodeRun {
	if r := n.bound(ctx); r != nil {
		return r
	}
	if r := n.writable(ctx); r != nil {
		return r
	}
	return n.canonicalRun()
}

func (n *Node) notifyObserver(_ *Node, runID string, old, next NodeState) {
	if g := n.Graph(); g != nil {
		g.observer.OnNodeStateChanged(runID, n, old, next)
	}
}

// AddParam appends a value to the parameter buffer and wakes the node.
// Values are not deduplicated.
func (n *Node) AddParam(ctx context.Context, from string, value any) {
	r := n.writable(ctx)
	if r == nil {
		return
	}
	r.mu.Lock()
	r.params = append(r.params, Param{From: from, Value: value})
	r.mu.Unlock()
	r.signal()
}

// NotifyDependencyFailed records that dependency finished without a result
// and wakes the node.
func (n *Node) NotifyDependencyFailed(ctx context.Context, dependency string) {
	r := n.writable(ctx)
	if r == nil {
		return
	}
	r.mu.Lock()
	r.log.failed = append(r.log.failed, dependency)
	r.mu.Unlock()
	r.signal()
}

// State returns the node's state in the run view of ctx.
func (n *Node) State(ctx context.Context) NodeState {
	return n.readable(ctx).current()
}

// Params returns a copy of the parameter buffer in the run view of ctx.
func (n *Node) Params(ctx context.Context) Params {
	r := n.readable(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.params)
}

// IsScheduled reports whether the node has left CREATED.
func (n *Node) IsScheduled(ctx context.Context) bool {
	return n.State(ctx) != NodeCreated
}

// IsFinished reports whether the node reached a terminal state.
func (n *Node) IsFinished(ctx context.Context) bool {
	return n.State(ctx).IsTerminal()
}

// Prepare moves the node from CREATED to PREPARED.
func (n *Node) Prepare(ctx context.Context) bool {
	r := n.writable(ctx)
	return r != nil && n.transition(r, NodePrepared)
}

// Output returns the node's result in the run view of ctx.
func (n *Node) Output(ctx context.Context) (any, error) {
	r := n.readable(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.IsTerminal() {
		return nil, &NodeError{Node: n.name, Op: "output", Err: ErrNodeNotFinished}
	}
	return r.result, r.err
}

// Trace returns a snapshot of the node's trace in the run view of ctx.
func (n *Node) Trace(ctx context.Context) Trace {
	r := n.readable(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.snapshot(r.info, r.runID, r.state, r.result, r.err)
}

// Execute runs the node's wait loop on the calling goroutine.
//
// The node enters START and then, until its timeout elapses or RUNNING is no
// longer reachable, either runs the unit (when the mode and CanRun agree),
// becomes INEFFECTIVE (when failed dependencies rule out running), or enters
// WAITING. While waiting it re-evaluates every RecheckInterval, and at once
// when a parameter or failure notice arrives. The timeout, cancellation of
// ctx or the end of the run stop the wait. onCompleted receives the unit's result, or the failure that
// ended the node, exactly once.
//
// Execute returns false when the node timed out or was not PREPARED.
func (n *Node) Execute(ctx context.Context, onCompleted func(value any, err error)) bool {
	r := n.writable(ctx)
	if r == nil || !n.transition(r, NodeStart) {
		return false
	}
	complete := func(value any, err error) {
		if onCompleted != nil {
			onCompleted(value, err)
		}
	}

	r.mu.Lock()
	info := r.info
	r.mu.Unlock()

	start := time.Now()
	var deadline <-chan time.Time
	if info.Timeout > 0 {
		timer := time.NewTimer(info.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	expired := func() bool {
		return info.Timeout > 0 && time.Since(start) >= info.Timeout
	}
	var recheck *time.Ticker
	defer func() {
		if recheck != nil {
			recheck.Stop()
		}
	}()

	for !expired() && NodeMayReach(r.current(), NodeRunning) {
		if r.isEnded() {
			return false
		}

		params, failed, expected := r.inputs()

		if info.Mode.enough(len(params), expected) && n.unit.CanRun(params) {
			n.transition(r, NodeRunning)
			value, err := n.invoke(nodeContext(ctx, info.GraphID, n.name), params.sorted())
			if err != nil {
				if !n.finish(r, NodeFailed, nil, err) {
					return false
				}
				complete(nil, err)
				return true
			}
			if !n.finish(r, NodeSuccess, value, nil) {
				return false
			}
			complete(value, nil)
			return true
		}

		if info.Mode.ineffective(failed, expected) {
			err := &NodeError{Node: n.name, Op: "wait", Err: ErrNodeIneffective}
			if !n.finish(r, NodeIneffective, nil, err) {
				return false
			}
			complete(nil, err)
			return true
		}

		n.transition(r, NodeWaiting)
		if recheck == nil {
			recheck = time.NewTicker(RecheckInterval)
		}
		select {
		case <-r.wake:
		case <-recheck.C:
		case <-deadline:
		case <-ctx.Done():
			err := &NodeError{Node: n.name, Op: "wait", Err: fmt.Errorf("%w: %w", ErrNodeTimeout, context.Cause(ctx))}
			if n.finish(r, NodeTimeout, nil, err) {
				complete(nil, err)
			}
			return false
		}
	}

	if !expired() {
		return false
	}
	err := &NodeError{Node: n.name, Op: "wait", Err: ErrNodeTimeout}
	if n.finish(r, NodeTimeout, nil, err) {
		complete(nil, err)
	}
	return false
}

func (n *Node) invoke(ctx Context, params Params) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			value = nil
			err = &PanicError{Node: n.name, Value: p, Stack: string(debug.Stack())}
		}
	}()

	value, err = n.unit.Run(ctx, params)
	if err != nil {
		return nil, &NodeError{Node: n.name, Op: "run", Err: err}
	}
	return value, nil
}

// transition moves r to next if legal. Same-state and illegal moves are
// ignored.
func (n *Node) transition(r *nodeRun, next NodeState) bool {
	return n.apply(r, next, func(*nodeRun) {})
}

// finish enters a terminal state together with its outcome.
func (n *Node) finish(r *nodeRun, state NodeState, value any, err error) bool {
	return n.apply(r, state, func(r *nodeRun) {
		r.result = value
		r.err = err
	})
}

func (n *Node) apply(r *nodeRun, next NodeState, mutate func(*nodeRun)) bool {
	r.mu.Lock()
	old := r.state
	if r.ended || old == next || !NodeTransitionAllowed(old, next) {
		r.mu.Unlock()
		return false
	}
	mutate(r)
	r.state = next
	r.log.enter(next, time.Now())
	listener := r.listener
	r.mu.Unlock()

	if listener != nil {
		listener(n, r.runID, old, next)
	}
	return true
}

func (r *nodeRun) current() NodeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *nodeRun) inputs() (params Params, failed, expected int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.params), len(r.log.failed), r.expected
}

func (r *nodeRun) isEnded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func (r *nodeRun) end() {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
	r.signal()
}

func (r *nodeRun) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
