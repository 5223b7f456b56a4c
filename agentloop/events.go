package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of loop event.
type EventKind string

const (
	EventInteractionStart EventKind = "interaction_start"
	EventInteractionEnd   EventKind = "interaction_end"
	EventIteration        EventKind = "iteration"
	EventPlan             EventKind = "plan"
	EventActionStart      EventKind = "action_start"
	EventActionEnd        EventKind = "action_end"
	EventObservation      EventKind = "observation"
	EventParseError       EventKind = "parse_error"
	EventOutput           EventKind = "output"
	EventCeiling          EventKind = "ceiling"
	EventError            EventKind = "error"
)

// Event is a typed notification emitted by the loop for host display.
type Event struct {
	Kind          EventKind              `json:"kind"`
	Timestamp     time.Time              `json:"timestamp"`
	InteractionID string                 `json:"interaction_id"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers loop events to the host application via a buffered
// channel. Emission never blocks: when the buffer is full the event is
// dropped rather than stalling the loop.
type EventEmitter struct {
	interactionID string
	ch            chan Event
	closed        bool
	mu            sync.Mutex
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(interactionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		interactionID: interactionID,
		ch:            make(chan Event, bufferSize),
	}
}

// SetInteractionID updates the ID stamped on subsequent events. The loop
// calls this at the start of each interaction.
func (e *EventEmitter) SetInteractionID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interactionID = id
}

// Emit sends an event to the channel. Closed emitters and full buffers drop
// the event silently.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:          kind,
		Timestamp:     time.Now(),
		InteractionID: e.interactionID,
		Data:          data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
