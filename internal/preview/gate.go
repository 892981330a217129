// Package preview tracks the ghost shot frame shown while a hand holds
// the L-shape, and the fingertip highlights that go with it.
package preview

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/hand"
	"github.com/banshee-data/storyboard.xr/internal/storyboard"
)

// Highlight opacities.
const (
	HighlightOff = 0.0
	HighlightOn  = 1.0
)

// Snapshot is the preview state handed to the UI.
type Snapshot struct {
	Visible bool `json:"visible"`
	// Chirality is the hand the preview follows, None when hidden.
	Chirality hand.Chirality        `json:"chirality"`
	Transform *storyboard.Transform `json:"transform,omitempty"`
	Highlight struct {
		Left  float64 `json:"left"`
		Right float64 `json:"right"`
	} `json:"highlight"`
	// Frame is the evaluation frame of the last applied event.
	Frame uint64 `json:"frame"`
}

// Gate is a gesture.Sink driving preview visibility.
type Gate struct {
	offset atomic.Uint64 // math.Float64bits

	mu        sync.Mutex
	visible   bool
	chirality hand.Chirality
	transform *storyboard.Transform
	highlight [3]float64 // indexed by hand.Chirality
	frame     uint64
}

// NewGate returns a hidden preview. forwardOffset matches the placer so
// the ghost sits where the shot will land.
func NewGate(forwardOffset float64) *Gate {
	g := &Gate{}
	g.SetForwardOffset(forwardOffset)
	return g
}

// SetForwardOffset changes the preview offset for later events.
func (g *Gate) SetForwardOffset(m float64) {
	g.offset.Store(math.Float64bits(m))
}

// Emit applies one event.
func (g *Gate) Emit(ev gesture.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch ev.Kind {
	case gesture.EventCouldPlace:
		tr := storyboard.PlaceAtAnchor(ev.Anchor, math.Float64frombits(g.offset.Load()))
		g.visible = true
		g.chirality = ev.Chirality
		g.transform = &tr
		g.highlight[ev.Chirality] = HighlightOn
	case gesture.EventLShapeEnded:
		g.highlight[ev.Chirality] = HighlightOff
	case gesture.EventPlace:
		g.visible = false
		g.chirality = hand.None
	case gesture.EventRemoveFrame:
		g.visible = false
		g.chirality = hand.None
		g.transform = nil
		g.highlight = [3]float64{}
	default:
		return
	}
	g.frame = ev.Frame
}

// Snapshot returns a copy of the current preview state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{Visible: g.visible, Chirality: g.chirality, Frame: g.frame}
	if g.transform != nil {
		tr := *g.transform
		s.Transform = &tr
	}
	s.Highlight.Left = g.highlight[hand.Left]
	s.Highlight.Right = g.highlight[hand.Right]
	return s
}
