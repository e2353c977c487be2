package events

import "sync"

// Event represents a structured state change emitted by the farm.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// HeightEmitter is implemented by emitters that record the block height an
// event was committed at. Buffer and Fanout prefer EmitAt when available.
type HeightEmitter interface {
	EmitAt(height uint64, evt Event)
}

func emitAt(next Emitter, height uint64, evt Event) {
	if h, ok := next.(HeightEmitter); ok {
		h.EmitAt(height, evt)
		return
	}
	next.Emit(evt)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events raised during a state transition until the transition
// commits. Flush forwards them in emission order; Reset drops them when the
// transition rolls back.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Flush forwards buffered events to next, stamped with the height of the
// transition that raised them, and empties the buffer.
func (b *Buffer) Flush(next Emitter, height uint64) []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	out := b.events
	b.events = nil
	b.mu.Unlock()
	if next != nil {
		for _, evt := range out {
			emitAt(next, height, evt)
		}
	}
	return out
}

// Reset discards buffered events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Fanout forwards every event to each emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// EmitAt implements HeightEmitter.
func (f Fanout) EmitAt(height uint64, evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitAt(emitter, height, evt)
		}
	}
}
