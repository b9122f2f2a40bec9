package events

import (
	"context"
	"sync"
)

// defaultBuffer bounds the stream channel. The producer blocks when the
// consumer falls this far behind; events are never dropped.
const defaultBuffer = 256

// Stream is a bounded, ordered, single-producer event channel for one
// campaign. Closing the channel is the termination signal; a terminal
// event always precedes Close.
type Stream struct {
	ch chan Event

	mu      sync.Mutex
	history []Event
	closed  bool
}

// NewStream creates a stream with the default buffer size.
func NewStream() *Stream {
	return NewStreamSize(defaultBuffer)
}

// NewStreamSize creates a stream with an explicit buffer size.
func NewStreamSize(size int) *Stream {
	if size <= 0 {
		size = defaultBuffer
	}
	return &Stream{ch: make(chan Event, size)}
}

// Publish appends an event to the stream, blocking if the buffer is full.
// Returns ctx.Err() if the context ends first. Publishing to a closed
// stream is a silent no-op so a cancelling loop can finish unwinding.
func (s *Stream) Publish(ctx context.Context, e Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.history = append(s.history, e)
	s.mu.Unlock()

	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close terminates the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// History returns a copy of every event published so far, in order.
func (s *Stream) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}
