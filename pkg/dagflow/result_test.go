package dagflow

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dagflow/internal/xjson"
)

func TestResult_JSONRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	r := &Result{
		GraphID:   "g",
		RunID:     "r",
		Mode:      Switch,
		StartedAt: start,
		Duration:  42 * time.Millisecond,
		History: []Trace{{
			Node:  NodeInfo{Name: "root", Role: RoleRoot, GraphID: "g", Mode: Switch, Timeout: NoTimeout},
			RunID: "r",
			State: NodeSuccess,
			Entered: map[NodeState]time.Time{
				NodeCreated: start,
				NodeSuccess: start.Add(time.Millisecond),
			},
			Result: "X",
		}, {
			Node:               NodeInfo{Name: "final", Role: RoleTerminal, GraphID: "g", Mode: Switch, Timeout: time.Second},
			RunID:              "r",
			State:              NodeTimeout,
			Entered:            map[NodeState]time.Time{NodeTimeout: start.Add(time.Second)},
			FailedDependencies: []string{"root"},
			Err:                &NodeError{Node: "final", Op: "wait", Err: ErrNodeTimeout},
		}},
		Pending: []string{"late"},
		Err:     &NodeError{Node: "final", Op: "wait", Err: ErrNodeTimeout},
	}

	data, err := xjson.Marshal(r)
	require.NoError(t, err)

	got, err := DecodeResult(data)
	require.NoError(t, err)

	want := *r
	want.History = []Trace{r.History[0], r.History[1]}
	want.History[1].Err = RecordedError("node final: wait: node timeout")
	want.Err = RecordedError("node final: wait: node timeout")

	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("decoded result mismatch (-want +got):\n%s", diff)
	}
	assert.ErrorIs(t, got.Err, ErrNodeTimeout)
	assert.NotErrorIs(t, got.Err, ErrNodeIneffective)
}

func TestDecodeResult_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"bad mode", `{"mode":"serial"}`},
		{"bad state", `{"mode":"parallel","history":[{"node":"a","state":"DONE"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResult([]byte(tt.data))
			assert.ErrorContains(t, err, "decode result")
		})
	}
}

func TestResult_Lookups(t *testing.T) {
	r := &Result{History: []Trace{
		{Node: NodeInfo{Name: "a"}, State: NodeSuccess},
		{Node: NodeInfo{Name: "b"}, State: NodeFailed},
	}}

	tr, ok := r.Trace("b")
	assert.True(t, ok)
	assert.Equal(t, NodeFailed, tr.State)
	_, ok = r.Trace("c")
	assert.False(t, ok)

	assert.Equal(t, map[string]NodeState{"a": NodeSuccess, "b": NodeFailed}, r.States())
}

func TestTrace_Timeline(t *testing.T) {
	start := time.Now()
	tr := Trace{
		State: NodeSuccess,
		Entered: map[NodeState]time.Time{
			NodeSuccess: start.Add(30 * time.Millisecond),
			NodeStart:   start,
			NodeRunning: start.Add(10 * time.Millisecond),
		},
	}

	var states []NodeState
	for _, step := range tr.Transitions() {
		states = append(states, step.State)
	}
	assert.Equal(t, []NodeState{NodeStart, NodeRunning, NodeSuccess}, states)
	assert.Equal(t, 30*time.Millisecond, tr.Duration())
	assert.True(t, tr.Finished())

	tr.State = NodeWaiting
	assert.Zero(t, tr.Duration())
	assert.False(t, tr.Finished())
}

func TestRecordedError(t *testing.T) {
	err := RecordedError("node s1: run: injected failure")
	assert.ErrorIs(t, err, errInjected)
	assert.False(t, errors.Is(err, ErrNodeTimeout))
	assert.False(t, err.Is(nil))
}
