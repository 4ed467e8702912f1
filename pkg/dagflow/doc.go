/*
Package dagflow executes directed acyclic graphs of computation units.

# Overview

A Graph is built once from units joined by dependency edges and can then be
scheduled any number of times, concurrently, against different inputs. The
Scheduler dispatches nodes in waves onto a bounded worker pool, delivers each
node's result to its dependents, and collects a per-node Trace plus the
terminal node's output into a Result.

# Basic Usage

	g := dagflow.NewGraph(dagflow.Parallel, dagflow.WithTimeout(time.Second))

	root, _ := g.AddNode(dagflow.Root[string]())
	upper, _ := g.AddNode(dagflow.NewUnit("upper", func(ctx dagflow.Context, p dagflow.Params) (any, error) {
	    v, _ := p.First()
	    return strings.ToUpper(v.(string)), nil
	}))
	final, _ := g.AddNode(dagflow.Terminal[string]())

	_ = g.AddEdge(upper, root)
	_ = g.AddEdge(final, upper)

	s, err := dagflow.NewScheduler()
	if err != nil {
	    log.Fatal(err)
	}
	defer s.Close()

	result, err := s.Schedule(context.Background(), g, "hello")
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(result.Output) // "HELLO"

# Modes

In Parallel mode a node runs once every dependency delivered a value and
becomes INEFFECTIVE as soon as one dependency fails. In Switch mode a node
runs on the first value that arrives and becomes INEFFECTIVE only when every
dependency failed. Either way the unit's CanRun gets the final say before it
runs.

# Node States

	CREATED -> PREPARED -> START -> [WAITING ->] RUNNING -> SUCCESS | FAILED
	                                 START | WAITING | RUNNING -> TIMEOUT
	                       PREPARED | START | WAITING | RUNNING -> INEFFECTIVE

Failures never abort a run. A node that fails, times out or becomes
ineffective notifies its dependents, which decide for themselves according
to the mode.

# Runs

Every Schedule call has a run id. Node state, parameters and traces live in
a per-run overlay selected by the run id carried in the context, so
concurrent runs of one graph never see each other. Outside a run, nodes use
their canonical overlay.

# Error Handling

Structural mistakes (duplicate nodes, unknown nodes, cycles) return a
*StructuralError and leave the graph unchanged. Unit failures are wrapped in
*NodeError, recovered panics become *PanicError. Use errors.Is with the
sentinel errors to classify them.

# Observability

Logging uses log/slog. Metrics and spans use OpenTelemetry and are enabled
with WithMetrics and WithTracing. Graph and node lifecycle changes are also
delivered to the graph's Observer.
*/
package dagflow
