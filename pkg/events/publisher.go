// Package events provides a small in-process publish/subscribe fan-out used
// to decouple session lifecycle transitions from the components that react to
// them (registry eviction, observability logging).
package events

import "sync"

// EventType represents the type of event
type EventType string

// Define event types
const (
	EventSessionCreated  EventType = "SESSION_CREATED"
	EventPlayersMatched  EventType = "PLAYERS_MATCHED"
	EventMoveApplied     EventType = "MOVE_APPLIED"
	EventClockTick       EventType = "CLOCK_TICK"
	EventSessionFinished EventType = "SESSION_FINISHED"
)

// Event represents an event in the system
type Event struct {
	Type      EventType
	SessionID string // Optional, can be empty for non-session events
	Payload   interface{}
}

// Handler is a function that processes events
type Handler func(event Event)

// Publisher is the central event publisher
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
}

// NewPublisher creates a new event publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (p *Publisher) Subscribe(eventType EventType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (p *Publisher) SubscribeAll(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers["*"] = append(p.subscribers["*"], handler)
}

// Publish broadcasts an event to all subscribers, including "all events"
// handlers. Handlers run concurrently; publishers never block on them.
func (p *Publisher) Publish(event Event) {
	p.mu.RLock()
	handlers := p.subscribers[event.Type]
	allHandlers := p.subscribers["*"]
	p.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
	for _, handler := range allHandlers {
		go handler(event)
	}
}
