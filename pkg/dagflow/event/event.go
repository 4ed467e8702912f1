package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/dagflow/internal/xjson"
)

// Event types published by BusObserver.
const (
	TypeGraphStateChanged = "graph.state_changed"
	TypeNodeAdded         = "graph.node_added"
	TypeEdgeAdded         = "graph.edge_added"
	TypeNodeStateChanged  = "node.state_changed"
)

// Event is an immutable notification carried by a Bus.
type Event interface {
	ID() string
	Type() string   // e.g. "node.state_changed"
	Source() string // graph id for lifecycle events

	// CorrelationID groups related events. Lifecycle events of one run share
	// the run id.
	CorrelationID() string
	// CausationID is the id of the event that caused this one, if any.
	CausationID() string

	Timestamp() time.Time
	Version() int

	Data() any
	DataBytes() []byte
}

// Metadata holds the envelope fields of an event.
type Metadata struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	SchemaVersion int       `json:"schema_version"`
}

// BaseEvent is the generic Event implementation.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`

	cachedBytes []byte
}

func (e *BaseEvent[T]) ID() string            { return e.Meta.EventID }
func (e *BaseEvent[T]) Type() string          { return e.Meta.EventType }
func (e *BaseEvent[T]) Source() string        { return e.Meta.EventSource }
func (e *BaseEvent[T]) CorrelationID() string { return e.Meta.CorrelationID }
func (e *BaseEvent[T]) CausationID() string   { return e.Meta.CausationID }
func (e *BaseEvent[T]) Timestamp() time.Time  { return e.Meta.Timestamp }
func (e *BaseEvent[T]) Version() int          { return e.Meta.SchemaVersion }
func (e *BaseEvent[T]) Data() any             { return e.Payload }

// TypedData returns the payload without a type assertion.
func (e *BaseEvent[T]) TypedData() T {
	return e.Payload
}

// DataBytes returns the JSON encoded payload, or nil if it cannot be
// encoded. The encoding is computed once.
func (e *BaseEvent[T]) DataBytes() []byte {
	if e.cachedBytes == nil {
		e.cachedBytes, _ = xjson.Marshal(e.Payload)
	}
	return e.cachedBytes
}

func (e *BaseEvent[T]) MarshalJSON() ([]byte, error) {
	type alias BaseEvent[T]
	return xjson.Marshal((*alias)(e))
}

func (e *BaseEvent[T]) UnmarshalJSON(data []byte) error {
	type alias BaseEvent[T]
	if err := xjson.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	e.cachedBytes = nil
	return nil
}

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	id            string
	correlationID string
	causationID   string
	timestamp     time.Time
	version       int
}

// WithEventID sets the event id. Defaults to a UUID.
func WithEventID(id string) Option {
	return func(cfg *eventConfig) { cfg.id = id }
}

// WithCorrelationID sets the correlation id. Defaults to the event id.
func WithCorrelationID(id string) Option {
	return func(cfg *eventConfig) { cfg.correlationID = id }
}

// WithCausationID sets the id of the causing event.
func WithCausationID(id string) Option {
	return func(cfg *eventConfig) { cfg.causationID = id }
}

// WithTimestamp sets the event time. Defaults to time.Now().
func WithTimestamp(t time.Time) Option {
	return func(cfg *eventConfig) { cfg.timestamp = t }
}

// WithSchemaVersion sets the payload schema version. Defaults to 1.
func WithSchemaVersion(v int) Option {
	return func(cfg *eventConfig) { cfg.version = v }
}

// New creates an event.
func New[T any](eventType, source string, payload T, opts ...Option) *BaseEvent[T] {
	cfg := &eventConfig{
		id:        uuid.NewString(),
		timestamp: time.Now(),
		version:   1,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.correlationID == "" {
		cfg.correlationID = cfg.id
	}

	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:       cfg.id,
			EventType:     eventType,
			EventSource:   source,
			CorrelationID: cfg.correlationID,
			CausationID:   cfg.causationID,
			Timestamp:     cfg.timestamp,
			SchemaVersion: cfg.version,
		},
		Payload: payload,
	}
}

// NewFromParent creates an event caused by parent. It inherits the parent's
// correlation id unless opts override it.
func NewFromParent[T any](parent Event, eventType, source string, payload T, opts ...Option) *BaseEvent[T] {
	all := append([]Option{
		WithCorrelationID(parent.CorrelationID()),
		WithCausationID(parent.ID()),
	}, opts...)
	return New(eventType, source, payload, all...)
}

// Handler consumes events delivered by a Bus.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}
