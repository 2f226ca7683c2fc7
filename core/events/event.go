package events

import (
	"sync"

	"vwtips/core/types"
)

// Event represents a structured state change emitted by the contract.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render the generic representation.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. logs, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Multi fans every event out to each non-nil emitter in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}

// Recorder keeps every emitted event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Raw renders the recorded events that expose a generic representation.
func (r *Recorder) Raw() []*types.Event {
	recorded := r.Events()
	out := make([]*types.Event, 0, len(recorded))
	for _, evt := range recorded {
		typed, ok := evt.(Typed)
		if !ok {
			continue
		}
		if raw := typed.Event(); raw != nil {
			out = append(out, raw)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Buffer holds events until they are flushed downstream or dropped. Safe for
// concurrent use.
type Buffer struct {
	mu      sync.Mutex
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
}

// Flush forwards the held events to to in emission order and returns how many
// were sent.
func (b *Buffer) Flush(to Emitter) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	held := b.pending
	b.pending = nil
	b.mu.Unlock()
	if to != nil {
		for _, evt := range held {
			to.Emit(evt)
		}
	}
	return len(held)
}

// Drop discards the held events and returns how many were lost.
func (b *Buffer) Drop() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.pending)
	b.pending = nil
	return n
}
