package services

import (
	"sync"

	"github.com/kerbaras/comicdl/pkg/data"
)

// ChannelSink forwards events to a buffered channel. Emit never blocks: when
// the buffer is full the event is dropped.
type ChannelSink struct {
	mu     sync.RWMutex
	ch     chan data.Event
	closed bool
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan data.Event, buffer)}
}

func (s *ChannelSink) Emit(e data.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		// Channel full, skip this update
	}
}

// Events returns the channel for receiving events.
func (s *ChannelSink) Events() <-chan data.Event {
	return s.ch
}

// Close stops delivery and closes the channel. It is safe to call twice.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Tee sends every event to each sink in order.
type Tee []data.EventSink

func (t Tee) Emit(e data.Event) {
	for _, s := range t {
		s.Emit(e)
	}
}
