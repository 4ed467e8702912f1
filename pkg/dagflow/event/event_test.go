package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/randalmurphal/dagflow/pkg/dagflow/event"
)

func TestBaseEvent(t *testing.T) {
	type payload struct {
		Node  string `json:"node"`
		Count int    `json:"count"`
	}

	evt := event.New("node.state_changed", "graph-1", payload{Node: "s1", Count: 42})

	if evt.ID() == "" {
		t.Error("expected non-empty ID")
	}
	if evt.Type() != "node.state_changed" {
		t.Errorf("expected type node.state_changed, got %s", evt.Type())
	}
	if evt.Source() != "graph-1" {
		t.Errorf("expected source graph-1, got %s", evt.Source())
	}
	if evt.CorrelationID() != evt.ID() {
		t.Error("expected correlation ID to equal event ID for a root event")
	}
	if evt.CausationID() != "" {
		t.Errorf("expected empty causation ID, got %s", evt.CausationID())
	}
	if evt.Version() != 1 {
		t.Errorf("expected version 1, got %d", evt.Version())
	}
	if evt.Timestamp().IsZero() {
		t.Error("expected non-zero timestamp")
	}
	if evt.TypedData().Node != "s1" {
		t.Errorf("expected node s1, got %s", evt.TypedData().Node)
	}

	var decoded payload
	if err := json.Unmarshal(evt.DataBytes(), &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Count != 42 {
		t.Errorf("expected count 42, got %d", decoded.Count)
	}
}

func TestEventOptions(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	evt := event.New("graph.node_added", "g", map[string]string{"key": "value"},
		event.WithEventID("custom-id"),
		event.WithCorrelationID("corr-id"),
		event.WithCausationID("cause-id"),
		event.WithTimestamp(at),
		event.WithSchemaVersion(2),
	)

	if evt.ID() != "custom-id" {
		t.Errorf("expected custom-id, got %s", evt.ID())
	}
	if evt.CorrelationID() != "corr-id" {
		t.Errorf("expected corr-id, got %s", evt.CorrelationID())
	}
	if evt.CausationID() != "cause-id" {
		t.Errorf("expected cause-id, got %s", evt.CausationID())
	}
	if !evt.Timestamp().Equal(at) {
		t.Errorf("expected %v, got %v", at, evt.Timestamp())
	}
	if evt.Version() != 2 {
		t.Errorf("expected version 2, got %d", evt.Version())
	}
}

func TestNewFromParent(t *testing.T) {
	parent := event.New("graph.state_changed", "g", "prepared", event.WithCorrelationID("run-1"))
	child := event.NewFromParent(parent, "node.state_changed", "g", "start")

	if child.CorrelationID() != "run-1" {
		t.Errorf("expected correlation ID run-1, got %s", child.CorrelationID())
	}
	if child.CausationID() != parent.ID() {
		t.Errorf("expected causation ID %s, got %s", parent.ID(), child.CausationID())
	}
	if child.ID() == parent.ID() {
		t.Error("child should have its own ID")
	}
}

func TestEventJSON(t *testing.T) {
	evt := event.New("graph.edge_added", "g", event.EdgeAdded{GraphID: "g", Dependent: "s1", Dependency: "root"})

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded event.BaseEvent[event.EdgeAdded]
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.ID() != evt.ID() {
		t.Errorf("expected ID %s, got %s", evt.ID(), decoded.ID())
	}
	if decoded.Type() != evt.Type() {
		t.Errorf("expected type %s, got %s", evt.Type(), decoded.Type())
	}
	if decoded.TypedData() != evt.TypedData() {
		t.Errorf("expected payload %+v, got %+v", evt.TypedData(), decoded.TypedData())
	}
}

func TestHandlerFunc(t *testing.T) {
	var received event.Event
	handler := event.HandlerFunc(func(_ context.Context, evt event.Event) error {
		received = evt
		return errors.New("nope")
	})

	evt := event.New("x", "g", 1)
	if err := handler.Handle(context.Background(), evt); err == nil {
		t.Error("expected handler error")
	}
	if received == nil || received.ID() != evt.ID() {
		t.Error("wrong event received")
	}
}

func TestEventError(t *testing.T) {
	evt := event.New("x", "g", 1, event.WithEventID("e1"))

	err := &event.EventError{Event: evt, Subscriber: "sub-1", Err: event.ErrBusClosed}
	if !errors.Is(err, event.ErrBusClosed) {
		t.Error("expected EventError to unwrap to ErrBusClosed")
	}
	if got, want := err.Error(), "event e1 (x) subscriber sub-1: bus closed"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	err.Subscriber = ""
	if got, want := err.Error(), "event e1 (x): bus closed"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
