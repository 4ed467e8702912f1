package dagflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/dagflow/internal/xjson"
	"github.com/randalmurphal/dagflow/pkg/dagflow/config"
	"github.com/randalmurphal/dagflow/pkg/dagflow/history"
	"github.com/randalmurphal/dagflow/pkg/dagflow/observability"
)

// errAwaitDeadline cancels the nodes of a run Schedule stopped waiting for.
var errAwaitDeadline = errors.New("await deadline exceeded")

// Scheduler executes graphs on a shared worker pool.
//
// One Scheduler can run any number of graphs, and the same graph many times,
// concurrently. Each run gets its own id and node overlays, so runs never
// observe each other's parameters, traces or output.
//
// Example:
//
//	s, err := dagflow.NewScheduler(dagflow.WithWorkers(8))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	result, err := s.Schedule(ctx, g, "input")
type Scheduler struct {
	workers      int
	queueSize    int
	awaitTimeout time.Duration
	awaitGrace   time.Duration
	logger       *slog.Logger
	metrics      observability.MetricsRecorder
	spans        observability.SpanManager

	history       history.Store
	historyConfig *config.Config
	ownsHistory   bool

	pool      *pool
	closeOnce sync.Once
	closeErr  error
}

// NewScheduler creates a scheduler and starts its workers. It fails only
// when a configured history store cannot be opened.
func NewScheduler(opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		workers:      DefaultWorkers,
		queueSize:    DefaultQueueSize,
		awaitTimeout: DefaultAwaitTimeout,
		awaitGrace:   DefaultAwaitGrace,
		logger:       slog.Default(),
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.history == nil && s.historyConfig != nil {
		store, err := history.Open(*s.historyConfig)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		s.history = store
		s.ownsHistory = true
	}

	s.pool = newPool(s.workers, s.queueSize, s.logger)
	return s, nil
}

// Schedule runs g once with input and returns its Result.
//
// The returned error reports why the run could not be scheduled or awaited
// (ErrNilGraph, ErrNoRoot, ErrAlreadyScheduling, ErrSchedulerClosed, or the
// cancellation cause of ctx). Node failures are not errors here; they are
// recorded in the Result's history, and a failed terminal node shows up as
// Result.Err.
//
// The run id comes from WithRunID, else from ctx when it was built with
// NewContext, else it is generated. Two runs with the same id on the same
// graph cannot overlap. Nodes a run stopped waiting for keep their own
// overlays, so a later run reusing the id never sees their output.
func (s *Scheduler) Schedule(ctx context.Context, g *Graph, input any, opts ...RunOption) (*Result, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if s.pool.isClosed() {
		return nil, ErrSchedulerClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}
	ctxOpts := []ContextOption{WithLogger(s.logger)}
	if rc.runID != "" {
		ctxOpts = append(ctxOpts, WithContextRunID(rc.runID))
	}
	base := newExecutionContext(ctx, ctxOpts...)
	runID := base.RunID()

	topo := g.snapshot()
	if topo.root == nil {
		return nil, &StructuralError{Op: "schedule", Graph: g.ID(), Err: ErrNoRoot}
	}
	if g.IsScheduling(base) || !g.beginRun(runID) {
		return nil, fmt.Errorf("graph %s run %s: %w", g.ID(), runID, ErrAlreadyScheduling)
	}

	spanCtx, span := s.spans.StartRunSpan(ctx, g.ID(), runID, g.Mode().String())
	runCtx, cancel := context.WithCancelCause(spanCtx)
	logger := observability.EnrichLogger(s.logger, g.ID(), runID)

	binding := &runBinding{overlays: make(map[*Node]*nodeRun, len(topo.nodes))}
	for _, n := range topo.nodes {
		if r := n.attach(runID); r != nil {
			binding.overlays[n] = r
		}
	}
	ec := base.withGraph(g.ID()).withParent(withBinding(runCtx, binding))
	defer func() {
		cancel(context.Canceled)
		for _, n := range topo.nodes {
			n.EndRun(ec)
		}
		g.endRun(runID)
	}()

	start := time.Now()
	observability.LogRunStart(logger, runID, g.Mode().String(), len(topo.nodes))

	g.advance(runID, GraphPrepared)
	if err := g.SetInput(ec, input); err != nil {
		s.spans.EndSpanWithError(span, err)
		return nil, err
	}

	done := make(chan Trace, len(topo.nodes))
	submitted, submitErr := s.dispatch(ec, g, topo, logger, done)

	traces, pending := s.await(ctx, g, topo, ec, done, submitted, logger)
	cancel(errAwaitDeadline)

	g.advance(runID, GraphCompleted)
	output, outErr := g.Output(ec)
	g.recordOutput(output, outErr)

	result := &Result{
		GraphID:   g.ID(),
		RunID:     runID,
		Mode:      g.Mode(),
		StartedAt: start,
		Duration:  time.Since(start),
		History:   traces,
		Pending:   pending,
		Output:    output,
		Err:       outErr,
	}

	durationMs := float64(result.Duration.Microseconds()) / 1000
	if outErr != nil {
		observability.LogRunError(logger, runID, outErr, durationMs)
	}
	observability.LogRunComplete(logger, runID, durationMs, len(traces), len(pending))
	s.metrics.RecordGraphRun(spanCtx, g.Mode().String(), outErr == nil, result.Duration)
	s.spans.EndSpanWithError(span, outErr)
	s.persist(spanCtx, result, logger)

	if err := errors.Join(submitErr, context.Cause(ctx)); err != nil {
		return result, fmt.Errorf("graph %s run %s: %w", g.ID(), runID, err)
	}
	return result, nil
}

// dispatch submits the graph wave by wave. Wave 0 is the root; each later
// wave holds every unscheduled node whose dependencies are all scheduled.
func (s *Scheduler) dispatch(ec *executionContext, g *Graph, topo *topology, logger *slog.Logger, done chan<- Trace) (int, error) {
	submitted := 0
	for wave := 0; ; wave++ {
		candidates := topo.nodes
		if wave == 0 {
			candidates = []*Node{topo.root}
		}

		var batch []*Node
		for _, n := range candidates {
			if n.IsScheduled(ec) || !allScheduled(ec, topo.depends[n]) {
				continue
			}
			batch = append(batch, n)
		}
		if len(batch) == 0 {
			return submitted, nil
		}

		names := make([]string, len(batch))
		for i, n := range batch {
			n.Prepare(ec)
			names[i] = n.Name()
		}
		g.advance(ec.runID, GraphScheduling)
		observability.LogWave(logger, wave, names)
		s.metrics.RecordWave(ec, len(batch))

		for _, n := range batch {
			if err := s.pool.submit(ec, s.task(ec, n, topo.children[n], logger, done)); err != nil {
				return submitted, fmt.Errorf("submit node %s: %w", n.Name(), err)
			}
			submitted++
		}
	}
}

func allScheduled(ctx context.Context, nodes []*Node) bool {
	for _, n := range nodes {
		if !n.IsScheduled(ctx) {
			return false
		}
	}
	return true
}

// task executes n and forwards its outcome to every child.
func (s *Scheduler) task(ec *executionContext, n *Node, children []*Node, logger *slog.Logger, done chan<- Trace) func() {
	return func() {
		if n.writable(ec) == nil {
			return
		}
		spanCtx, span := s.spans.StartNodeSpan(ec, n.Name())
		nctx := ec.withParent(spanCtx)

		n.Execute(nctx, func(value any, err error) {
			for _, child := range children {
				if err != nil {
					child.NotifyDependencyFailed(ec, n.Name())
				} else {
					child.AddParam(ec, n.Name(), value)
				}
			}
		})

		tr := n.Trace(ec)
		if n.writable(ec) == nil {
			s.spans.EndSpanWithError(span, errAwaitDeadline)
			return
		}
		durationMs := float64(tr.Duration().Microseconds()) / 1000
		if tr.Err != nil {
			observability.LogNodeError(logger, n.Name(), tr.State.String(), tr.Err)
		} else {
			observability.LogNodeComplete(logger, n.Name(), durationMs)
		}
		s.metrics.RecordNodeExecution(spanCtx, n.Name(), tr.State.String(), tr.Duration(), tr.Err)
		s.spans.EndSpanWithError(span, tr.Err)
		done <- tr
	}
}

// await collects traces until every submitted node reported, the deadline
// passed, or ctx was cancelled. It returns the traces in completion order and
// the names of nodes that did not report.
func (s *Scheduler) await(ctx context.Context, g *Graph, topo *topology, ec *executionContext, done <-chan Trace, submitted int, logger *slog.Logger) ([]Trace, []string) {
	budget := s.awaitTimeout
	if g.Timeout() > 0 {
		budget = g.Timeout() + s.awaitGrace
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()

	traces := make([]Trace, 0, submitted)
	reported := make(map[string]bool, submitted)
collect:
	for len(traces) < submitted {
		select {
		case tr := <-done:
			traces = append(traces, tr)
			reported[tr.Node.Name] = true
		case <-timer.C:
			observability.LogAwaitTimeout(logger, ec.runID, budget, submitted-len(traces))
			break collect
		case <-ctx.Done():
			break collect
		}
	}

	var pending []string
	for _, n := range topo.nodes {
		if !reported[n.Name()] {
			pending = append(pending, n.Name())
		}
	}
	return traces, pending
}

func (s *Scheduler) persist(ctx context.Context, r *Result, logger *slog.Logger) {
	if s.history == nil {
		return
	}
	data, err := xjson.Marshal(r)
	if err != nil {
		observability.LogHistoryError(logger, r.RunID, "encode", err)
		return
	}
	if err := s.history.Save(r.GraphID, r.RunID, data); err != nil {
		observability.LogHistoryError(logger, r.RunID, "save", err)
		return
	}
	observability.LogHistorySaved(logger, r.RunID, len(data))
	s.metrics.RecordHistory(ctx, int64(len(data)))
}

// History loads a persisted Result.
func (s *Scheduler) History(runID string) (*Result, error) {
	if s.history == nil {
		return nil, history.ErrNotFound
	}
	data, err := s.history.Load(runID)
	if err != nil {
		return nil, err
	}
	return DecodeResult(data)
}

// Histories lists the persisted runs of a graph, oldest first.
func (s *Scheduler) Histories(graphID string) ([]history.Info, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(graphID)
}

// Close stops the workers after queued nodes finish and closes a history
// store opened from config. Safe to call more than once.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.pool.close()
		if s.ownsHistory && s.history != nil {
			s.closeErr = s.history.Close()
		}
	})
	return s.closeErr
}
