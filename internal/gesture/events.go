package gesture

import (
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// EventKind identifies what an Event signals.
type EventKind string

const (
	// EventPlace fires once per debounce cycle when the opposite hand taps
	// while the L-shape is held. Consumers create a shot at Anchor.
	EventPlace EventKind = "place"
	// EventCouldPlace is a per-frame advisory while the L-shape is held and
	// no tap has happened yet. Consumers show the ghost preview and raise
	// the fingertip highlight.
	EventCouldPlace EventKind = "could_place"
	// EventLShapeEnded fires once when a highlighted hand stops forming
	// the L-shape. Consumers drop the fingertip highlight.
	EventLShapeEnded EventKind = "l_shape_ended"
	// EventRemoveFrame is the out-of-band request to tear down the preview.
	// The classifier never produces it.
	EventRemoveFrame EventKind = "remove_frame"
)

// EventKinds lists every kind in a stable order.
var EventKinds = []EventKind{EventPlace, EventCouldPlace, EventLShapeEnded, EventRemoveFrame}

// ParseEventKind validates a kind name.
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range EventKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Event is an immutable, fire-once signal.
type Event struct {
	Kind      EventKind
	Chirality hand.Chirality
	// Frame is the evaluation frame that produced the event (0 for
	// out-of-band events).
	Frame          uint64
	TimestampNanos int64
	// Anchor is the L-shape hand's anchor for place and could_place.
	Anchor hand.Anchor
}

// RemoveFrame builds the out-of-band preview teardown event.
func RemoveFrame(timestampNanos int64) Event {
	return Event{Kind: EventRemoveFrame, TimestampNanos: timestampNanos}
}

// Sink receives events. Emit is called from the frame loop and must not
// block; implementations must be safe for concurrent use because
// out-of-band events arrive from request goroutines.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Fanout delivers each event to every sink in order.
type Fanout []Sink

// Emit forwards ev to all sinks.
func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// ChannelSink hands events to a consumer goroutine through a buffered
// channel. When the buffer is full the event is dropped and counted, so
// a slow consumer can never stall the frame loop.
type ChannelSink struct {
	ch      chan Event
	kinds   map[EventKind]bool
	dropped atomic.Uint64
}

// NewChannelSink creates a sink with the given buffer. If kinds is
// non-empty only those kinds are queued.
func NewChannelSink(buffer int, kinds ...EventKind) *ChannelSink {
	s := &ChannelSink{ch: make(chan Event, buffer)}
	if len(kinds) > 0 {
		s.kinds = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}
	return s
}

// Emit queues ev without blocking.
func (s *ChannelSink) Emit(ev Event) {
	if s.kinds != nil && !s.kinds[ev.Kind] {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the receive side of the queue.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because the queue was full.
func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }
