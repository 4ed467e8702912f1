package dagflow

import (
	"log/slog"

	"github.com/randalmurphal/dagflow/pkg/dagflow/observability"
)

// Observer receives graph and node lifecycle notifications.
//
// Callbacks run synchronously on the goroutine that caused the change, which
// for node states is a pool worker. Implementations must be safe for
// concurrent use and should return quickly. runID is empty for changes made
// outside a run.
type Observer interface {
	OnGraphStateChanged(g *Graph, runID string, old, next GraphState)
	OnNodeAdded(g *Graph, n *Node)
	OnEdgeAdded(g *Graph, dependent, dependency *Node)
	OnNodeStateChanged(runID string, n *Node, old, next NodeState)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnGraphStateChanged(*Graph, string, GraphState, GraphState) {}
func (NopObserver) OnNodeAdded(*Graph, *Node)                                  {}
func (NopObserver) OnEdgeAdded(*Graph, *Node, *Node)                           {}
func (NopObserver) OnNodeStateChanged(string, *Node, NodeState, NodeState)     {}

// ObserverFuncs adapts optional callbacks to an Observer. Nil fields are
// skipped.
type ObserverFuncs struct {
	GraphStateChanged func(g *Graph, runID string, old, next GraphState)
	NodeAdded         func(g *Graph, n *Node)
	EdgeAdded         func(g *Graph, dependent, dependency *Node)
	NodeStateChanged  func(runID string, n *Node, old, next NodeState)
}

func (f ObserverFuncs) OnGraphStateChanged(g *Graph, runID string, old, next GraphState) {
	if f.GraphStateChanged != nil {
		f.GraphStateChanged(g, runID, old, next)
	}
}

func (f ObserverFuncs) OnNodeAdded(g *Graph, n *Node) {
	if f.NodeAdded != nil {
		f.NodeAdded(g, n)
	}
}

func (f ObserverFuncs) OnEdgeAdded(g *Graph, dependent, dependency *Node) {
	if f.EdgeAdded != nil {
		f.EdgeAdded(g, dependent, dependency)
	}
}

func (f ObserverFuncs) OnNodeStateChanged(runID string, n *Node, old, next NodeState) {
	if f.NodeStateChanged != nil {
		f.NodeStateChanged(runID, n, old, next)
	}
}

// LogObserver logs every notification at debug level. It is the default
// observer of a graph.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns a LogObserver, using slog.Default() when logger is
// nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) OnGraphStateChanged(g *Graph, runID string, old, next GraphState) {
	o.Logger.Debug("graph state changed",
		slog.String("graph_id", g.ID()),
		slog.String("run_id", runID),
		slog.String("from", old.String()),
		slog.String("to", next.String()),
	)
}

func (o *LogObserver) OnNodeAdded(g *Graph, n *Node) {
	o.Logger.Debug("node added",
		slog.String("graph_id", g.ID()),
		slog.String("node", n.Name()),
		slog.String("role", n.Unit().Role().String()),
	)
}

func (o *LogObserver) OnEdgeAdded(g *Graph, dependent, dependency *Node) {
	o.Logger.Debug("edge added",
		slog.String("graph_id", g.ID()),
		slog.String("dependent", dependent.Name()),
		slog.String("dependency", dependency.Name()),
	)
}

func (o *LogObserver) OnNodeStateChanged(runID string, n *Node, old, next NodeState) {
	logger := o.Logger
	if runID != "" {
		logger = logger.With(slog.String("run_id", runID))
	}
	observability.LogNodeState(logger, n.Name(), old.String(), next.String())
}

// MultiObserver fans notifications out in order.
type MultiObserver []Observer

func (m MultiObserver) OnGraphStateChanged(g *Graph, runID string, old, next GraphState) {
	for _, o := range m {
		o.OnGraphStateChanged(g, runID, old, next)
	}
}

func (m MultiObserver) OnNodeAdded(g *Graph, n *Node) {
	for _, o := range m {
		o.OnNodeAdded(g, n)
	}
}

func (m MultiObserver) OnEdgeAdded(g *Graph, dependent, dependency *Node) {
	for _, o := range m {
		o.OnEdgeAdded(g, dependent, dependency)
	}
}

func (m MultiObserver) OnNodeStateChanged(runID string, n *Node, old, next NodeState) {
	for _, o := range m {
		o.OnNodeStateChanged(runID, n, old, next)
	}
}
