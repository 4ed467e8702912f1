package event

import (
	"errors"
	"fmt"
)

var (
	// ErrBusClosed is returned when publishing to or subscribing on a closed
	// bus.
	ErrBusClosed = errors.New("bus closed")

	// ErrTooManySubscribers is returned when BusConfig.MaxSubscribers is
	// reached.
	ErrTooManySubscribers = errors.New("too many subscribers")
)

// EventError wraps a failure to deliver or handle an event.
type EventError struct {
	Event      Event
	Subscriber string
	Err        error
}

func (e *EventError) Error() string {
	if e.Subscriber != "" {
		return fmt.Sprintf("event %s (%s) subscriber %s: %v", e.Event.ID(), e.Event.Type(), e.Subscriber, e.Err)
	}
	return fmt.Sprintf("event %s (%s): %v", e.Event.ID(), e.Event.Type(), e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}
