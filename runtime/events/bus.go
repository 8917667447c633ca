// Package events provides a lightweight pub/sub event bus for engine observability.
//
// Events are delivered in publish order on a single dispatcher goroutine, so a
// listener sees frames, turns and state changes in the order the engine
// applied them. Publish never blocks on listeners.
package events

import "sync"

// Listener is a function that handles events.
type Listener func(*Event)

// EventBus manages event distribution to listeners.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]Listener
	globalListeners []Listener

	qmu    sync.Mutex
	cond   *sync.Cond
	queue  []*Event
	closed bool
	done   chan struct{}
}

// NewEventBus creates a new event bus and starts its dispatcher.
func NewEventBus() *EventBus {
	eb := &EventBus{
		listeners: make(map[EventType][]Listener),
		done:      make(chan struct{}),
	}
	eb.cond = sync.NewCond(&eb.qmu)
	go eb.dispatch()
	return eb
}

// Subscribe registers a listener for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners[eventType] = append(eb.listeners[eventType], listener)
}

// SubscribeAll registers a listener for all event types.
func (eb *EventBus) SubscribeAll(listener Listener) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.globalListeners = append(eb.globalListeners, listener)
}

// Publish queues an event for delivery. Events published after Close are dropped.
func (eb *EventBus) Publish(event *Event) {
	if eb == nil || event == nil {
		return
	}
	eb.qmu.Lock()
	defer eb.qmu.Unlock()
	if eb.closed {
		return
	}
	eb.queue = append(eb.queue, event)
	eb.cond.Signal()
}

// Close stops accepting events and waits until every queued event has been
// delivered. It is safe to call more than once.
func (eb *EventBus) Close() {
	eb.qmu.Lock()
	if !eb.closed {
		eb.closed = true
		eb.cond.Signal()
	}
	eb.qmu.Unlock()
	<-eb.done
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]Listener)
	eb.globalListeners = nil
}

func (eb *EventBus) dispatch() {
	defer close(eb.done)
	for {
		eb.qmu.Lock()
		for len(eb.queue) == 0 && !eb.closed {
			eb.cond.Wait()
		}
		if len(eb.queue) == 0 {
			eb.qmu.Unlock()
			return
		}
		batch := eb.queue
		eb.queue = nil
		eb.qmu.Unlock()

		for _, event := range batch {
			eb.deliver(event)
		}
	}
}

func (eb *EventBus) deliver(event *Event) {
	eb.mu.RLock()
	typeListeners := eb.listeners[event.Type]

	specificListeners := make([]Listener, len(typeListeners))
	copy(specificListeners, typeListeners)

	globalListeners := make([]Listener, len(eb.globalListeners))
	copy(globalListeners, eb.globalListeners)
	eb.mu.RUnlock()

	for _, listener := range specificListeners {
		safeInvoke(listener, event)
	}
	for _, listener := range globalListeners {
		safeInvoke(listener, event)
	}
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
