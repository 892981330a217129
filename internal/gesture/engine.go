package gesture

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// GestureState is the debounce state shared between the two hands.
type GestureState struct {
	LShapeActive    bool           `json:"l_shape_active"`
	ActiveChirality hand.Chirality `json:"active_chirality"`
	// TapReleased is true while the debounce is armed; a tap only places
	// when it is true.
	TapReleased bool `json:"tap_released"`
}

// InitialState is the state of a fresh Engine.
func InitialState() GestureState {
	return GestureState{TapReleased: true}
}

// HandReading is one hand's classification for a frame.
type HandReading struct {
	Chirality hand.Chirality
	Tracked   bool
	LShape    LShapeResult
	Tap       TapResult
}

// FrameResult is everything one Evaluate call observed and decided.
type FrameResult struct {
	Frame          uint64
	TimestampNanos int64
	Left, Right    HandReading
	// Selected is the hand forming the L-shape this frame, None if neither.
	Selected hand.Chirality
	State    GestureState
	Events   []Event
}

// Hand returns the reading for c.
func (r *FrameResult) Hand(c hand.Chirality) HandReading {
	if c == hand.Right {
		return r.Right
	}
	return r.Left
}

// Engine runs the placement debounce over successive frames. One Engine
// owns one GestureState; Evaluate is meant to be called from a single
// frame loop, while the accessors may be used from any goroutine.
type Engine struct {
	sink       Sink
	thresholds atomic.Pointer[Thresholds]
	last       atomic.Pointer[FrameResult]

	mu          sync.Mutex
	state       GestureState
	frame       uint64
	highlighted [3]bool // indexed by hand.Chirality
}

// NewEngine creates an engine in the initial state. A nil sink discards
// events.
func NewEngine(th Thresholds, sink Sink) *Engine {
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	e := &Engine{sink: sink, state: InitialState()}
	e.thresholds.Store(&th)
	return e
}

// Thresholds returns the thresholds currently in use.
func (e *Engine) Thresholds() Thresholds {
	return *e.thresholds.Load()
}

// SetThresholds swaps the thresholds; the next Evaluate uses them.
func (e *Engine) SetThresholds(th Thresholds) {
	e.thresholds.Store(&th)
}

// State returns a copy of the current gesture state.
func (e *Engine) State() GestureState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastFrame returns the result of the most recent Evaluate, or nil before
// the first frame.
func (e *Engine) LastFrame() *FrameResult {
	return e.last.Load()
}

// Reset returns the engine to the initial state. Raised highlights are
// ended so consumers can clear them.
func (e *Engine) Reset() {
	e.mu.Lock()
	var ended []Event
	for _, c := range hand.Chiralities {
		if e.highlighted[c] {
			e.highlighted[c] = false
			ended = append(ended, Event{Kind: EventLShapeEnded, Chirality: c, Frame: e.frame})
		}
	}
	e.state = InitialState()
	e.mu.Unlock()
	for _, ev := range ended {
		e.sink.Emit(ev)
	}
}

func readHand(c hand.Chirality, p *hand.Pose, th Thresholds) HandReading {
	return HandReading{
		Chirality: c,
		Tracked:   p != nil && p.Tracked,
		LShape:    ClassifyLShape(p, th.LShapeAngleDeg),
		Tap:       ClassifyTap(p, th.TapDistanceM),
	}
}

// Evaluate classifies the latest pose of each hand and advances the
// debounce by one frame. Either pose may be nil when that hand has no
// tracking data. Events are handed to the sink before Evaluate returns.
func (e *Engine) Evaluate(left, right *hand.Pose) FrameResult {
	th := e.Thresholds()
	poses := [3]*hand.Pose{hand.Left: left, hand.Right: right}

	e.mu.Lock()
	e.frame++
	res := FrameResult{
		Frame:          e.frame,
		TimestampNanos: frameTimestamp(left, right),
		Left:           readHand(hand.Left, left, th),
		Right:          readHand(hand.Right, right, th),
	}

	lshape := func(c hand.Chirality) bool { return res.Hand(c).LShape.Detected }
	tap := func(c hand.Chirality) bool { return res.Hand(c).Tap.Detected }

	// While the debounce is held, a hand that is still pinching is the tap
	// hand and cannot be selected as the L-shape hand.
	candidate := func(c hand.Chirality) bool {
		return lshape(c) && (e.state.TapReleased || !tap(c))
	}
	anyTap := tap(hand.Left) || tap(hand.Right)

	selected := hand.None
	if c := e.state.ActiveChirality; c != hand.None && candidate(c) {
		selected = c
	} else {
		for _, c := range hand.Chiralities {
			if candidate(c) {
				selected = c
				break
			}
		}
	}
	res.Selected = selected

	var events []Event
	emit := func(kind EventKind, c hand.Chirality) {
		ev := Event{Kind: kind, Chirality: c, Frame: e.frame, TimestampNanos: res.TimestampNanos}
		if p := poses[c]; p != nil {
			ev.TimestampNanos = p.TimestampNanos
			ev.Anchor = p.Anchor
		}
		events = append(events, ev)
	}

	for _, c := range hand.Chiralities {
		if e.highlighted[c] && c != selected {
			e.highlighted[c] = false
			emit(EventLShapeEnded, c)
		}
	}

	if selected == hand.None {
		e.state.LShapeActive = false
		e.state.ActiveChirality = hand.None
		if !e.state.TapReleased && !anyTap {
			e.state.TapReleased = true
		}
	} else {
		e.state.LShapeActive = true
		e.state.ActiveChirality = selected
		tapped := tap(selected.Opposite())
		switch {
		case e.state.TapReleased && tapped:
			emit(EventPlace, selected)
			e.state.TapReleased = false
			e.state.ActiveChirality = hand.None
		case !e.state.TapReleased && !anyTap:
			e.state.TapReleased = true
		case e.state.TapReleased && !tapped:
			emit(EventCouldPlace, selected)
			e.highlighted[selected] = true
		}
	}

	res.State = e.state
	res.Events = events
	e.mu.Unlock()

	stored := res
	e.last.Store(&stored)
	for _, ev := range events {
		e.sink.Emit(ev)
	}
	return res
}

func frameTimestamp(left, right *hand.Pose) int64 {
	var ts int64
	for _, p := range []*hand.Pose{left, right} {
		if p != nil && p.TimestampNanos > ts {
			ts = p.TimestampNanos
		}
	}
	return ts
}
