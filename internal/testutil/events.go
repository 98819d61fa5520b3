package testutil

import (
	"sync"

	"github.com/mcoot/tagmatch/internal/model"
)

// EventRecorder collects events for assertions. Register Record as a bus handler.
type EventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

// Record stores an event
func (r *EventRecorder) Record(e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far
func (r *EventRecorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type
func (r *EventRecorder) OfType(t model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of one type were recorded
func (r *EventRecorder) Count(t model.EventType) int {
	return len(r.OfType(t))
}

// Reset clears the recorder
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
