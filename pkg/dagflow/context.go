package dagflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context is handed to Unit.Run. It extends context.Context with the run's
// identity and a logger already enriched with graph, run and node fields.
//
// The run id also selects which run-scoped overlay a Node reads and writes,
// so a Context from one run never observes another run's node state.
type Context interface {
	context.Context

	// Logger never returns nil. It defaults to slog.Default().
	Logger() *slog.Logger

	// RunID identifies the run. Generated when not configured.
	RunID() string

	// GraphID is empty until the context is bound to a graph.
	GraphID() string

	// Node is the name of the node being executed, empty outside a node.
	Node() string
}

type runIDKey struct{}

// runIDFrom returns the run id carried by ctx, if any.
func runIDFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

type executionContext struct {
	context.Context

	logger  *slog.Logger
	runID   string
	graphID string
	node    string
}

func (c *executionContext) Logger() *slog.Logger { return c.logger }
func (c *executionContext) RunID() string        { return c.runID }
func (c *executionContext) GraphID() string      { return c.graphID }
func (c *executionContext) Node() string         { return c.node }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run id. Without it a UUID is generated.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates a run-scoped Context.
//
//	ctx := dagflow.NewContext(context.Background(),
//	    dagflow.WithLogger(logger),
//	    dagflow.WithContextRunID("run-123"))
//	node.BeginRun(ctx)
//	defer node.EndRun(ctx)
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	return newExecutionContext(ctx, opts...)
}

func newExecutionContext(ctx context.Context, opts ...ContextOption) *executionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
	}
	if parent, ok := ctx.(*executionContext); ok {
		ec.Context = parent.Context
		ec.logger = parent.logger
		ec.runID = parent.runID
		ec.graphID = parent.graphID
		ec.node = parent.node
	} else if id, ok := runIDFrom(ctx); ok {
		ec.runID = id
	}

	for _, opt := range opts {
		opt(ec)
	}
	if ec.runID == "" {
		ec.runID = uuid.NewString()
	}
	if id, ok := runIDFrom(ec.Context); !ok || id != ec.runID {
		ec.Context = context.WithValue(ec.Context, runIDKey{}, ec.runID)
	}
	return ec
}

// nodeContext builds the Context handed to a unit. Unlike NewContext it
// never invents a run id, so canonical executions stay canonical.
func nodeContext(ctx context.Context, graphID, node string) *executionContext {
	if ec, ok := ctx.(*executionContext); ok {
		if ec.node == node {
			return ec
		}
		return ec.withNode(node)
	}
	runID, _ := runIDFrom(ctx)
	return &executionContext{
		Context: ctx,
		logger:  slog.Default().With("node", node),
		runID:   runID,
		graphID: graphID,
		node:    node,
	}
}

func (c *executionContext) withGraph(graphID string) *executionContext {
	return &executionContext{
		Context: c.Context,
		logger:  c.logger.With("graph_id", graphID, "run_id", c.runID),
		runID:   c.runID,
		graphID: graphID,
	}
}

func (c *executionContext) withNode(node string) *executionContext {
	return &executionContext{
		Context: c.Context,
		logger:  c.logger.With("node", node),
		runID:   c.runID,
		graphID: c.graphID,
		node:    node,
	}
}

// withParent swaps the underlying context, e.g. to attach a span.
func (c *executionContext) withParent(parent context.Context) *executionContext {
	cp := *c
	cp.Context = parent
	if id, ok := runIDFrom(parent); !ok || id != c.runID {
		cp.Context = context.WithValue(parent, runIDKey{}, c.runID)
	}
	return &cp
}
