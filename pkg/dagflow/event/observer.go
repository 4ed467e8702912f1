package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/dagflow/pkg/dagflow"
)

// GraphStateChange is the payload of TypeGraphStateChanged.
type GraphStateChange struct {
	GraphID string `json:"graph_id"`
	RunID   string `json:"run_id,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// NodeAdded is the payload of TypeNodeAdded.
type NodeAdded struct {
	GraphID string `json:"graph_id"`
	Node    string `json:"node"`
	Role    string `json:"role"`
}

// EdgeAdded is the payload of TypeEdgeAdded.
type EdgeAdded struct {
	GraphID    string `json:"graph_id"`
	Dependent  string `json:"dependent"`
	Dependency string `json:"dependency"`
}

// NodeStateChange is the payload of TypeNodeStateChanged.
type NodeStateChange struct {
	GraphID string `json:"graph_id"`
	RunID   string `json:"run_id,omitempty"`
	Node    string `json:"node"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// BusObserver publishes graph and node lifecycle notifications to a Bus.
//
// Events of one run share the run id as correlation id; events raised while
// building a graph are correlated by graph id. Publishing happens on the
// goroutine that raised the notification, so pair it with a non-blocking bus
// or a short PublishTimeout when subscribers may be slow.
type BusObserver struct {
	bus     Bus
	logger  *slog.Logger
	timeout time.Duration
}

// BusObserverOption configures a BusObserver.
type BusObserverOption func(*BusObserver)

// WithPublishTimeout bounds each Publish call. Default: 1s.
func WithPublishTimeout(d time.Duration) BusObserverOption {
	return func(o *BusObserver) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithObserverLogger sets the logger used for publish failures.
func WithObserverLogger(logger *slog.Logger) BusObserverOption {
	return func(o *BusObserver) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewBusObserver returns an observer publishing to bus.
//
//	bus := event.NewBus(event.BusConfig{NonBlocking: true})
//	g := dagflow.NewGraph(dagflow.Parallel,
//	    dagflow.WithObserver(event.NewBusObserver(bus)))
func NewBusObserver(bus Bus, opts ...BusObserverOption) *BusObserver {
	o := &BusObserver{
		bus:     bus,
		logger:  slog.Default(),
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ dagflow.Observer = (*BusObserver)(nil)

func (o *BusObserver) OnGraphStateChanged(g *dagflow.Graph, runID string, old, next dagflow.GraphState) {
	o.publish(New(TypeGraphStateChanged, g.ID(), GraphStateChange{
		GraphID: g.ID(),
		RunID:   runID,
		From:    old.String(),
		To:      next.String(),
	}, WithCorrelationID(correlation(g.ID(), runID))))
}

func (o *BusObserver) OnNodeAdded(g *dagflow.Graph, n *dagflow.Node) {
	o.publish(New(TypeNodeAdded, g.ID(), NodeAdded{
		GraphID: g.ID(),
		Node:    n.Name(),
		Role:    n.Unit().Role().String(),
	}, WithCorrelationID(g.ID())))
}

func (o *BusObserver) OnEdgeAdded(g *dagflow.Graph, dependent, dependency *dagflow.Node) {
	o.publish(New(TypeEdgeAdded, g.ID(), EdgeAdded{
		GraphID:    g.ID(),
		Dependent:  dependent.Name(),
		Dependency: dependency.Name(),
	}, WithCorrelationID(g.ID())))
}

func (o *BusObserver) OnNodeStateChanged(runID string, n *dagflow.Node, old, next dagflow.NodeState) {
	var graphID string
	if g := n.Graph(); g != nil {
		graphID = g.ID()
	}
	o.publish(New(TypeNodeStateChanged, graphID, NodeStateChange{
		GraphID: graphID,
		RunID:   runID,
		Node:    n.Name(),
		From:    old.String(),
		To:      next.String(),
	}, WithCorrelationID(correlation(graphID, runID))))
}

func (o *BusObserver) publish(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := o.bus.Publish(ctx, evt); err != nil {
		o.logger.Warn("publish lifecycle event failed",
			slog.String("event_type", evt.Type()),
			slog.String("error", err.Error()),
		)
	}
}

func correlation(graphID, runID string) string {
	if runID != "" {
		return runID
	}
	return graphID
}
