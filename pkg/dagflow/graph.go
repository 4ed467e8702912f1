package dagflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/dagflow/pkg/dagflow/registry"
)

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithTimeout sets the default wait timeout of nodes that do not set their
// own. Zero or negative means unbounded.
func WithTimeout(d time.Duration) GraphOption {
	return func(g *Graph) {
		g.timeout = d
	}
}

// WithObserver replaces the default LogObserver.
func WithObserver(o Observer) GraphOption {
	return func(g *Graph) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithGraphID sets the graph id instead of generating one.
func WithGraphID(id string) GraphOption {
	return func(g *Graph) {
		if id != "" {
			g.id = id
		}
	}
}

// WithGraphLogger sets the logger of the default observer and of Validate.
func WithGraphLogger(logger *slog.Logger) GraphOption {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Graph is a set of nodes joined by dependency edges, with exactly one root
// that receives input and at most one terminal that produces output.
//
// A Graph is built once and may then be scheduled any number of times,
// including concurrently. Building is safe for concurrent use, but the
// topology should not change while a run is active; runs work from a
// snapshot taken when they start.
//
// Example:
//
//	g := dagflow.NewGraph(dagflow.Parallel, dagflow.WithTimeout(time.Second))
//	root, _ := g.AddNode(dagflow.Root[string]())
//	upper, _ := g.AddNode(upperUnit)
//	final, _ := g.AddNode(dagflow.Terminal[string]())
//	_ = g.AddEdge(upper, root)
//	_ = g.AddEdge(final, upper)
type Graph struct {
	id       string
	mode     Mode
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger

	mu       sync.RWMutex
	state    GraphState
	nodes    []*Node
	byName   map[string]*Node
	depends  map[*Node][]*Node
	children map[*Node][]*Node
	edges    int
	root     *Node
	terminal *Node

	runs *registry.Registry[string, *graphRun]

	outMu      sync.Mutex
	hasOutput  bool
	lastOutput any
	lastErr    error
}

type graphRun struct {
	mu    sync.Mutex
	state GraphState
}

// NewGraph creates an empty graph in CREATED state.
func NewGraph(mode Mode, opts ...GraphOption) *Graph {
	g := &Graph{
		id:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		mode:     mode,
		logger:   slog.Default(),
		byName:   make(map[string]*Node),
		depends:  make(map[*Node][]*Node),
		children: make(map[*Node][]*Node),
		runs:     registry.New[string, *graphRun](),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.observer == nil {
		g.observer = NewLogObserver(g.logger)
	}
	return g
}

// ID returns the graph id.
func (g *Graph) ID() string { return g.id }

// Mode returns the dispatch mode.
func (g *Graph) Mode() Mode { return g.mode }

// Timeout returns the default node timeout, zero when unbounded.
func (g *Graph) Timeout() time.Duration { return g.timeout }

// AddNode wraps unit in a node and adds it to the graph.
//
// Returns a *StructuralError wrapping ErrNilUnit, ErrDuplicateNode,
// ErrDuplicateRoot or ErrDuplicateTerminal; the graph is unchanged on error.
func (g *Graph) AddNode(unit Unit, opts ...NodeOption) (*Node, error) {
	if unit == nil {
		return nil, g.structural("add node", "", ErrNilUnit)
	}
	name := unit.Name()

	g.mu.Lock()
	if _, exists := g.byName[name]; exists {
		g.mu.Unlock()
		return nil, g.structural("add node", name, ErrDuplicateNode)
	}
	if unit.Role() == RoleRoot && g.root != nil {
		g.mu.Unlock()
		return nil, g.structural("add node", name, ErrDuplicateRoot)
	}
	if unit.Role() == RoleTerminal && g.terminal != nil {
		g.mu.Unlock()
		return nil, g.structural("add node", name, ErrDuplicateTerminal)
	}

	n := newNode(unit, opts...)
	n.bind(g)
	g.nodes = append(g.nodes, n)
	g.byName[name] = n
	switch unit.Role() {
	case RoleRoot:
		g.root = n
	case RoleTerminal:
		g.terminal = n
	}
	old, changed := g.initializingLocked()
	g.mu.Unlock()

	g.observer.OnNodeAdded(g, n)
	if changed {
		g.observer.OnGraphStateChanged(g, "", old, GraphInitializing)
	}
	return n, nil
}

// AddEdge makes dependent depend on dependency.
//
// Returns a *StructuralError wrapping ErrNodeNotFound, ErrDuplicateEdge or
// ErrCycle; the graph is unchanged on error.
func (g *Graph) AddEdge(dependent, dependency *Node) error {
	subject := edgeSubject(dependent, dependency)

	g.mu.Lock()
	if !g.containsLocked(dependent) || !g.containsLocked(dependency) {
		g.mu.Unlock()
		return g.structural("add edge", subject, ErrNodeNotFound)
	}
	if slices.Contains(g.depends[dependent], dependency) {
		g.mu.Unlock()
		return g.structural("add edge", subject, ErrDuplicateEdge)
	}
	if dependent == dependency || g.dependsOnLocked(dependency, dependent) {
		g.mu.Unlock()
		return g.structural("add edge", subject, ErrCycle)
	}

	g.depends[dependent] = append(g.depends[dependent], dependency)
	g.children[dependency] = append(g.children[dependency], dependent)
	g.edges++
	dependent.setExpected(len(g.depends[dependent]))
	old, changed := g.initializingLocked()
	g.mu.Unlock()

	g.observer.OnEdgeAdded(g, dependent, dependency)
	if changed {
		g.observer.OnGraphStateChanged(g, "", old, GraphInitializing)
	}
	return nil
}

// AddEdgeByName is AddEdge with nodes looked up by name.
func (g *Graph) AddEdgeByName(dependent, dependency string) error {
	g.mu.RLock()
	from, okFrom := g.byName[dependent]
	to, okTo := g.byName[dependency]
	g.mu.RUnlock()

	if !okFrom || !okTo {
		return g.structural("add edge", dependent+" -> "+dependency, ErrNodeNotFound)
	}
	return g.AddEdge(from, to)
}

// Remove drops n and every edge touching it. The expected dependency count
// of n's children is recomputed. Returns false if n is not in the graph.
func (g *Graph) Remove(n *Node) bool {
	g.mu.Lock()
	if !g.containsLocked(n) {
		g.mu.Unlock()
		return false
	}

	for _, dep := range g.depends[n] {
		g.children[dep] = slices.DeleteFunc(g.children[dep], func(c *Node) bool { return c == n })
		g.edges--
	}
	for _, child := range g.children[n] {
		g.depends[child] = slices.DeleteFunc(g.depends[child], func(d *Node) bool { return d == n })
		child.setExpected(len(g.depends[child]))
		g.edges--
	}
	delete(g.depends, n)
	delete(g.children, n)
	delete(g.byName, n.Name())
	g.nodes = slices.DeleteFunc(g.nodes, func(other *Node) bool { return other == n })
	if g.root == n {
		g.root = nil
	}
	if g.terminal == n {
		g.terminal = nil
	}
	g.mu.Unlock()

	n.bind(nil)
	return true
}

// containsLocked requires g.mu.
func (g *Graph) containsLocked(n *Node) bool {
	if n == nil {
		return false
	}
	other, ok := g.byName[n.Name()]
	return ok && other == n
}

// dependsOnLocked reports whether from transitively depends on to.
func (g *Graph) dependsOnLocked(from, to *Node) bool {
	seen := make(map[*Node]bool)
	stack := []*Node{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.depends[n]...)
	}
	return false
}

func (g *Graph) initializingLocked() (GraphState, bool) {
	old := g.state
	if old == GraphInitializing || !GraphTransitionAllowed(old, GraphInitializing) {
		return old, false
	}
	g.state = GraphInitializing
	return old, true
}

func (g *Graph) structural(op, subject string, err error) error {
	return &StructuralError{Op: op, Graph: g.id, Subject: subject, Err: err}
}

func edgeSubject(dependent, dependency *Node) string {
	name := func(n *Node) string {
		if n == nil {
			return "<nil>"
		}
		return n.Name()
	}
	return name(dependent) + " -> " + name(dependency)
}

// SetInput delivers value to the root node in the run view of ctx.
func (g *Graph) SetInput(ctx context.Context, value any) error {
	root := g.Root()
	if root == nil {
		return g.structural("set input", "", ErrNoRoot)
	}
	root.AddParam(ctx, "", value)
	return nil
}

// Output returns the run's output.
//
// Within a run (ctx carries an active run id) it is the terminal node's
// result for that run. Otherwise it is the output of the last completed
// run, or the canonical terminal result when no run has completed.
func (g *Graph) Output(ctx context.Context) (any, error) {
	terminal := g.Terminal()
	if id, ok := runIDFrom(ctx); ok && g.runs.Has(id) {
		if terminal == nil {
			return nil, ErrNoTerminal
		}
		return terminal.Output(ctx)
	}

	g.outMu.Lock()
	if g.hasOutput {
		defer g.outMu.Unlock()
		return g.lastOutput, g.lastErr
	}
	g.outMu.Unlock()

	if terminal == nil {
		return nil, ErrNoTerminal
	}
	return terminal.Output(context.Background())
}

func (g *Graph) recordOutput(value any, err error) {
	g.outMu.Lock()
	defer g.outMu.Unlock()
	g.hasOutput = true
	g.lastOutput = value
	g.lastErr = err
}

// IsScheduling reports whether any node is scheduled but unfinished in the
// run view of ctx.
func (g *Graph) IsScheduling(ctx context.Context) bool {
	for _, n := range g.Nodes() {
		if n.IsScheduled(ctx) && !n.IsFinished(ctx) {
			return true
		}
	}
	return false
}

// State returns the graph state in the run view of ctx.
func (g *Graph) State(ctx context.Context) GraphState {
	if id, ok := runIDFrom(ctx); ok {
		if r, ok := g.runs.Get(id); ok {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.state
		}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// beginRun registers runID, starting from the graph's build state. Returns
// false if runID is already active.
func (g *Graph) beginRun(runID string) bool {
	g.mu.RLock()
	state := g.state
	g.mu.RUnlock()
	return g.runs.Add(runID, &graphRun{state: state})
}

func (g *Graph) endRun(runID string) {
	g.runs.Take(runID)
}

// advance moves the run's state forward, notifying the observer.
func (g *Graph) advance(runID string, next GraphState) bool {
	r, ok := g.runs.Get(runID)
	if !ok {
		return false
	}
	r.mu.Lock()
	old := r.state
	if old == next || !GraphTransitionAllowed(old, next) {
		r.mu.Unlock()
		return false
	}
	r.state = next
	r.mu.Unlock()

	g.observer.OnGraphStateChanged(g, runID, old, next)
	return true
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.nodes)
}

// Node looks a node up by name.
func (g *Graph) Node(name string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.byName[name]
	return n, ok
}

// Root returns the root node, nil if none.
func (g *Graph) Root() *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.root
}

// Terminal returns the terminal node, nil if none.
func (g *Graph) Terminal() *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.terminal
}

// Dependencies returns the direct dependencies of n in edge order.
func (g *Graph) Dependencies(n *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.depends[n])
}

// Children returns the direct dependents of n in edge order.
func (g *Graph) Children(n *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.children[n])
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges
}

// topology is a read-only copy of the graph structure used by one run.
type topology struct {
	nodes    []*Node
	depends  map[*Node][]*Node
	children map[*Node][]*Node
	root     *Node
	terminal *Node
}

func (g *Graph) snapshot() *topology {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t := &topology{
		nodes:    slices.Clone(g.nodes),
		depends:  make(map[*Node][]*Node, len(g.depends)),
		children: make(map[*Node][]*Node, len(g.children)),
		root:     g.root,
		terminal: g.terminal,
	}
	for n, deps := range g.depends {
		t.depends[n] = slices.Clone(deps)
	}
	for n, kids := range g.children {
		t.children[n] = slices.Clone(kids)
	}
	return t
}

// BuildAdjacencyMatrix returns the nodes in insertion order and a matrix
// where m[i][j] is 1 iff nodes[i] is a direct dependency of nodes[j].
func (g *Graph) BuildAdjacencyMatrix() ([]*Node, [][]int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	index := make(map[*Node]int, len(g.nodes))
	for i, n := range g.nodes {
		index[n] = i
	}
	m := make([][]int, len(g.nodes))
	for i := range m {
		m[i] = make([]int, len(g.nodes))
	}
	for dependent, deps := range g.depends {
		j := index[dependent]
		for _, dep := range deps {
			m[index[dep]][j] = 1
		}
	}
	return slices.Clone(g.nodes), m
}

// Validate reports a missing root or terminal. Nodes that cannot be reached
// from the root are logged as warnings. Schedule still dispatches them, but
// no parameter ever arrives: in parallel mode they wait out their timeout, in
// switch mode a dependency-free one turns INEFFECTIVE at once.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	if g.root == nil {
		errs = append(errs, ErrNoRoot)
	}
	if g.terminal == nil {
		errs = append(errs, ErrNoTerminal)
	}
	if g.root != nil {
		reached := map[*Node]bool{g.root: true}
		queue := []*Node{g.root}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for _, child := range g.children[n] {
				if !reached[child] {
					reached[child] = true
					queue = append(queue, child)
				}
			}
		}
		for _, n := range g.nodes {
			if !reached[n] {
				g.logger.Warn("node unreachable from root",
					slog.String("graph_id", g.id),
					slog.String("node", n.Name()),
				)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("graph %s: %w", g.id, errors.Join(errs...))
	}
	return nil
}

func (g *Graph) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fmt.Sprintf("Graph(%s, %s, %d nodes, %d edges)", g.id, g.mode, len(g.nodes), g.edges)
}
