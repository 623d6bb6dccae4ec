/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package session

import "sync"

// ---- Session Event Keys ----

// EventKey identifies the type of session event emitted by the Store.
type EventKey string

const (
	EventStarted   EventKey = "session_started"
	EventUpdated   EventKey = "session_updated"
	EventEnded     EventKey = "session_ended"
	EventFailed    EventKey = "session_failed"
	EventCleared   EventKey = "session_cleared"
	EventRecording EventKey = "session_recording"
)

// ---- Event Emitter ----

// EventHandler is a callback function for events.
type EventHandler func(data interface{})

// EventEmitter provides a simple event pub/sub system.
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewEventEmitter creates a new EventEmitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[string][]EventHandler),
	}
}

// On registers an event handler for a specific event type.
func (e *EventEmitter) On(event string, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handler)
}

// Off removes all handlers for a specific event type.
func (e *EventEmitter) Off(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Emit fires an event, calling all registered handlers.
func (e *EventEmitter) Emit(event string, data interface{}) {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}
