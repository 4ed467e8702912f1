package event

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Bus distributes events to subscribers.
type Bus interface {
	// Publish delivers evt to every matching subscriber.
	Publish(ctx context.Context, evt Event) error

	// Subscribe registers handler for the given event types.
	Subscribe(types []string, handler Handler) (Subscription, error)

	// SubscribeAll registers handler for every event type.
	SubscribeAll(handler Handler) (Subscription, error)

	// Close stops the bus after delivering events already queued.
	Close() error
}

// Subscription is an active registration on a Bus.
type Subscription interface {
	ID() string

	// Unsubscribe stops delivery. Events already queued are still handled.
	// It must not be called from the subscription's own handler.
	Unsubscribe()

	Pause()
	Resume()
	IsPaused() bool
}

// BusConfig configures a LocalBus.
type BusConfig struct {
	// BufferSize is the queue length per subscription. Default: 256.
	BufferSize int

	// MaxSubscribers limits live subscriptions. Default: 0 (unlimited).
	MaxSubscribers int

	// NonBlocking drops events for subscribers whose queue is full instead
	// of waiting.
	NonBlocking bool

	// DeduplicateTTL drops events whose id was seen within the TTL.
	// Default: 0 (disabled).
	DeduplicateTTL time.Duration

	// OnDrop is called for every event dropped in non-blocking mode.
	OnDrop func(evt Event, subscriberID string)

	// OnError is called when a handler returns an error. Without it the
	// error is logged.
	OnError func(evt Event, subscriberID string, err error)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultBusConfig holds the defaults applied by NewBus.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// LocalBus is an in-memory Bus. Each subscription is served by its own
// goroutine, so a subscriber sees events in publish order.
type LocalBus struct {
	config BusConfig
	logger *slog.Logger

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	byType        map[string]map[string]*subscription
	wildcards     map[string]*subscription

	dedupeMu    sync.Mutex
	dedupeCache map[string]time.Time

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewBus creates a LocalBus.
func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &LocalBus{
		config:        config,
		logger:        logger,
		subscriptions: make(map[string]*subscription),
		byType:        make(map[string]map[string]*subscription),
		wildcards:     make(map[string]*subscription),
		closeCh:       make(chan struct{}),
	}
	if config.DeduplicateTTL > 0 {
		b.dedupeCache = make(map[string]time.Time)
		b.wg.Add(1)
		go b.cleanupDedupe()
	}
	return b
}

type subscription struct {
	id      string
	types   []string // empty = all types
	handler Handler
	events  chan Event
	paused  atomic.Bool
	once    sync.Once
	bus     *LocalBus
}

// Publish delivers evt to every matching, unpaused subscriber. In blocking
// mode it waits for queue space until ctx is done or the bus closes.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return &EventError{Event: evt, Err: ErrBusClosed}
	}
	if b.config.DeduplicateTTL > 0 && !b.firstSeen(evt) {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed.Load() {
		return &EventError{Event: evt, Err: ErrBusClosed}
	}

	for _, sub := range b.matching(evt.Type()) {
		if sub.paused.Load() {
			continue
		}
		if b.config.NonBlocking {
			select {
			case sub.events <- evt:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, sub.id)
				}
			}
			continue
		}
		select {
		case sub.events <- evt:
		case <-ctx.Done():
			return &EventError{Event: evt, Subscriber: sub.id, Err: context.Cause(ctx)}
		case <-b.closeCh:
			return &EventError{Event: evt, Subscriber: sub.id, Err: ErrBusClosed}
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(types []string, handler Handler) (Subscription, error) {
	return b.subscribe(types, handler)
}

func (b *LocalBus) SubscribeAll(handler Handler) (Subscription, error) {
	return b.subscribe(nil, handler)
}

func (b *LocalBus) subscribe(types []string, handler Handler) (*subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if b.config.MaxSubscribers > 0 && len(b.subscriptions) >= b.config.MaxSubscribers {
		return nil, ErrTooManySubscribers
	}

	sub := &subscription{
		id:      "sub-" + strconv.FormatInt(b.nextID.Add(1), 10),
		types:   types,
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		bus:     b,
	}
	b.subscriptions[sub.id] = sub
	if len(types) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[string]*subscription)
			}
			b.byType[t][sub.id] = sub
		}
	}

	b.wg.Add(1)
	go sub.process()
	return sub, nil
}

// matching returns the subscriptions for eventType. Callers hold b.mu.
func (b *LocalBus) matching(eventType string) []*subscription {
	subs := make([]*subscription, 0, len(b.byType[eventType])+len(b.wildcards))
	for _, sub := range b.byType[eventType] {
		subs = append(subs, sub)
	}
	for _, sub := range b.wildcards {
		subs = append(subs, sub)
	}
	return subs
}

// Close stops accepting events, lets every subscriber drain its queue and
// waits for them to finish. It is safe to call more than once.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	for _, sub := range b.subscriptions {
		sub.stop()
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (s *subscription) process() {
	defer s.bus.wg.Done()
	for evt := range s.events {
		if s.paused.Load() {
			continue
		}
		if err := s.handler.Handle(context.Background(), evt); err != nil {
			if s.bus.config.OnError != nil {
				s.bus.config.OnError(evt, s.id, err)
				continue
			}
			s.bus.logger.Warn("event handler failed",
				slog.String("subscriber", s.id),
				slog.String("event_id", evt.ID()),
				slog.String("event_type", evt.Type()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.events) })
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscriptions, s.id)
	delete(b.wildcards, s.id)
	for _, t := range s.types {
		delete(b.byType[t], s.id)
	}
	s.stop()
}

func (s *subscription) Pause()         { s.paused.Store(true) }
func (s *subscription) Resume()        { s.paused.Store(false) }
func (s *subscription) IsPaused() bool { return s.paused.Load() }

// firstSeen records evt's id and reports whether it was new.
func (b *LocalBus) firstSeen(evt Event) bool {
	b.dedupeMu.Lock()
	defer b.dedupeMu.Unlock()
	if _, ok := b.dedupeCache[evt.ID()]; ok {
		return false
	}
	b.dedupeCache[evt.ID()] = time.Now()
	return true
}

func (b *LocalBus) cleanupDedupe() {
	defer b.wg.Done()
	ticker := time.NewTicker(max(b.config.DeduplicateTTL/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-b.config.DeduplicateTTL)
			b.dedupeMu.Lock()
			for id, ts := range b.dedupeCache {
				if ts.Before(cutoff) {
					delete(b.dedupeCache, id)
				}
			}
			b.dedupeMu.Unlock()
		case <-b.closeCh:
			return
		}
	}
}
