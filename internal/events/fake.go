package events

import (
	"context"
	"sync"
)

// RecordedEvent is a captured emit, for assertions in tests.
type RecordedEvent struct {
	Event   string
	Payload map[string]any
}

type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(_ context.Context, event string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Event: event, Payload: payload})
}

func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) CountOf(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.Event == event {
			count++
		}
	}
	return count
}
