// Package event publishes dagflow graph and node lifecycle notifications on
// an in-process pub/sub bus.
//
// # Events
//
// Every event carries an id, a type, a source and a correlation id. Use
// BaseEvent[T] for typed payloads:
//
//	evt := event.New(event.TypeNodeStateChanged, graphID, payload,
//	    event.WithCorrelationID(runID))
//
// NewFromParent derives an event that keeps the parent's correlation id and
// records the parent as its cause.
//
// # Bus
//
// LocalBus fans each event out to every matching subscription. Each
// subscription has its own queue and goroutine, so one subscriber sees
// events in publish order and a slow subscriber only delays itself:
//
//	bus := event.NewBus(event.BusConfig{BufferSize: 256})
//	defer bus.Close()
//
//	sub, err := bus.Subscribe([]string{event.TypeNodeStateChanged}, handler)
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
// Publish blocks while a subscriber's queue is full unless NonBlocking is
// set, in which case the event is dropped for that subscriber and OnDrop is
// called. Close delivers queued events before returning.
//
// # Lifecycle events
//
// BusObserver implements dagflow.Observer:
//
//	g := dagflow.NewGraph(dagflow.Parallel,
//	    dagflow.WithObserver(dagflow.MultiObserver{
//	        dagflow.NewLogObserver(logger),
//	        event.NewBusObserver(bus),
//	    }))
//
// It publishes TypeGraphStateChanged, TypeNodeAdded, TypeEdgeAdded and
// TypeNodeStateChanged events. Events raised during a run are correlated by
// run id, events raised while building the graph by graph id.
package event
