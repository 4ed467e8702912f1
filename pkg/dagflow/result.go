package dagflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/dagflow/internal/xjson"
)

// Result is the outcome of one Schedule call.
type Result struct {
	GraphID   string
	RunID     string
	Mode      Mode
	StartedAt time.Time
	Duration  time.Duration

	// History holds one trace per node that reported before the await
	// deadline, in completion order.
	History []Trace

	// Pending names the nodes that did not report in time.
	Pending []string

	// Output is the terminal node's result. Err is set instead when the
	// terminal failed, timed out, became ineffective, or is missing.
	Output any
	Err    error
}

// Trace returns the trace of the named node.
func (r *Result) Trace(node string) (Trace, bool) {
	for _, t := range r.History {
		if t.Node.Name == node {
			return t, true
		}
	}
	return Trace{}, false
}

// States maps node names to their final states.
func (r *Result) States() map[string]NodeState {
	out := make(map[string]NodeState, len(r.History))
	for _, t := range r.History {
		out[t.Node.Name] = t.State
	}
	return out
}

// RecordedError is an error restored from a persisted Result. Only the
// message survives; Is matches a target whose message it contains, so
// errors.Is(err, ErrNodeTimeout) keeps working after a round trip.
type RecordedError string

func (e RecordedError) Error() string { return string(e) }

func (e RecordedError) Is(target error) bool {
	return target != nil && strings.Contains(string(e), target.Error())
}

type resultRecord struct {
	GraphID    string        `json:"graph_id"`
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	DurationNs int64         `json:"duration_ns"`
	History    []traceRecord `json:"history"`
	Pending    []string      `json:"pending,omitempty"`
	Output     any           `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type traceRecord struct {
	Node               string               `json:"node"`
	Role               string               `json:"role"`
	TimeoutNs          int64                `json:"timeout_ns"`
	State              string               `json:"state"`
	Entered            map[string]time.Time `json:"entered"`
	FailedDependencies []string             `json:"failed_dependencies,omitempty"`
	Result             any                  `json:"result,omitempty"`
	Error              string               `json:"error,omitempty"`
}

// MarshalJSON encodes the Result as a history record. Node results and the
// output must themselves be JSON encodable.
func (r *Result) MarshalJSON() ([]byte, error) {
	rec := resultRecord{
		GraphID:    r.GraphID,
		RunID:      r.RunID,
		Mode:       r.Mode.String(),
		StartedAt:  r.StartedAt,
		DurationNs: int64(r.Duration),
		History:    make([]traceRecord, len(r.History)),
		Pending:    r.Pending,
		Output:     r.Output,
		Error:      errString(r.Err),
	}
	for i, t := range r.History {
		tr := traceRecord{
			Node:               t.Node.Name,
			Role:               t.Node.Role.String(),
			TimeoutNs:          int64(t.Node.Timeout),
			State:              t.State.String(),
			Entered:            make(map[string]time.Time, len(t.Entered)),
			FailedDependencies: t.FailedDependencies,
			Result:             t.Result,
			Error:              errString(t.Err),
		}
		for s, at := range t.Entered {
			tr.Entered[s.String()] = at
		}
		rec.History[i] = tr
	}
	return xjson.Marshal(rec)
}

// DecodeResult restores a Result written by MarshalJSON. Values come back as
// generic JSON values and errors as RecordedError.
func DecodeResult(data []byte) (*Result, error) {
	var rec resultRecord
	if err := xjson.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	mode, err := ParseMode(rec.Mode)
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	r := &Result{
		GraphID:   rec.GraphID,
		RunID:     rec.RunID,
		Mode:      mode,
		StartedAt: rec.StartedAt,
		Duration:  time.Duration(rec.DurationNs),
		History:   make([]Trace, len(rec.History)),
		Pending:   rec.Pending,
		Output:    rec.Output,
		Err:       recordedError(rec.Error),
	}
	for i, tr := range rec.History {
		state, ok := ParseNodeState(tr.State)
		if !ok {
			return nil, fmt.Errorf("decode result: node %s: unknown state %q", tr.Node, tr.State)
		}
		t := Trace{
			Node: NodeInfo{
				Name:    tr.Node,
				Role:    parseRole(tr.Role),
				GraphID: rec.GraphID,
				Mode:    mode,
				Timeout: time.Duration(tr.TimeoutNs),
			},
			RunID:              rec.RunID,
			State:              state,
			Entered:            make(map[NodeState]time.Time, len(tr.Entered)),
			FailedDependencies: tr.FailedDependencies,
			Result:             tr.Result,
			Err:                recordedError(tr.Error),
		}
		for name, at := range tr.Entered {
			if s, ok := ParseNodeState(name); ok {
				t.Entered[s] = at
			}
		}
		r.History[i] = t
	}
	return r, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func recordedError(msg string) error {
	if msg == "" {
		return nil
	}
	return RecordedError(msg)
}

func parseRole(s string) Role {
	switch s {
	case "root":
		return RoleRoot
	case "terminal":
		return RoleTerminal
	default:
		return RoleLogic
	}
}
