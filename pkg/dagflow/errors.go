package dagflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph construction.
var (
	// ErrNilUnit indicates AddNode was called without a unit.
	ErrNilUnit = errors.New("unit cannot be nil")

	// ErrDuplicateNode indicates a node with the same name is already in the graph.
	ErrDuplicateNode = errors.New("node already exists in graph")

	// ErrDuplicateRoot indicates a second root node was added.
	ErrDuplicateRoot = errors.New("graph already has a root node")

	// ErrDuplicateTerminal indicates a second terminal node was added.
	ErrDuplicateTerminal = errors.New("graph already has a terminal node")

	// ErrNodeNotFound indicates an edge or lookup references a node outside the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateEdge indicates the edge already exists.
	ErrDuplicateEdge = errors.New("edge already exists")

	// ErrCycle indicates the edge would close a cycle.
	ErrCycle = errors.New("edge would create a cycle")
)

// Sentinel errors for scheduling.
var (
	// ErrNilGraph indicates Schedule was called without a graph.
	ErrNilGraph = errors.New("graph cannot be nil")

	// ErrNoRoot indicates the graph has no root node to receive input.
	ErrNoRoot = errors.New("graph has no root node")

	// ErrNoTerminal indicates the graph has no terminal node to produce output.
	ErrNoTerminal = errors.New("graph has no terminal node")

	// ErrAlreadyScheduling indicates the run is already being scheduled.
	ErrAlreadyScheduling = errors.New("graph is already scheduling")

	// ErrSchedulerClosed indicates the scheduler's pool has been shut down.
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// Sentinel errors carried by nodes that finished without a result.
var (
	// ErrNodeTimeout indicates the node gave up waiting for its dependencies.
	ErrNodeTimeout = errors.New("node timeout")

	// ErrNodeIneffective indicates upstream failures made the node unable to run.
	ErrNodeIneffective = errors.New("node ineffective")

	// ErrNodeNotFinished indicates the node had not reached a terminal state.
	ErrNodeNotFinished = errors.New("node not finished")

	// ErrUnexpectedType indicates a pass-through unit received a value of the wrong type.
	ErrUnexpectedType = errors.New("unexpected parameter type")
)

// StructuralError reports a rejected graph mutation.
// The graph is left exactly as it was before the call.
type StructuralError struct {
	// Op is the rejected operation ("add node", "add edge", "set input").
	Op string
	// Graph is the id of the graph.
	Graph string
	// Subject names what was rejected, e.g. "s2" or "s2 -> s1".
	Subject string
	// Err is the sentinel describing the violation.
	Err error
}

func (e *StructuralError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("graph %s: %s: %v", e.Graph, e.Op, e.Err)
	}
	return fmt.Sprintf("graph %s: %s %s: %v", e.Graph, e.Op, e.Subject, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
type NodeError struct {
	// Node is the name of the node.
	Node string
	// Op is the step that failed ("run", "wait", "output").
	Op string
	// Err is the underlying error.
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.Node, e.Op, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a unit's Run.
type PanicError struct {
	// Node is the name of the node whose unit panicked.
	Node string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.Node, e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
