// Package diagnostics keeps a rolling history of per-frame gesture
// readings and renders it as charts for tuning thresholds.
package diagnostics

import (
	"math"
	"sync"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// DefaultCapacity holds ten seconds at 90 Hz.
const DefaultCapacity = 900

// Sample is one frame's readings. Angles and distances are NaN for a hand
// that could not be measured.
type Sample struct {
	Frame          uint64
	TimestampNanos int64
	LeftAngleDeg   float64
	RightAngleDeg  float64
	LeftTapM       float64
	RightTapM      float64
	Selected       hand.Chirality
	Events         int
}

// SampleFromFrame extracts the charted values from a frame result.
func SampleFromFrame(res gesture.FrameResult) Sample {
	return Sample{
		Frame:          res.Frame,
		TimestampNanos: res.TimestampNanos,
		LeftAngleDeg:   angle(res.Left),
		RightAngleDeg:  angle(res.Right),
		LeftTapM:       tapDistance(res.Left),
		RightTapM:      tapDistance(res.Right),
		Selected:       res.Selected,
		Events:         len(res.Events),
	}
}

func angle(r gesture.HandReading) float64 {
	if !r.LShape.Valid {
		return math.NaN()
	}
	return r.LShape.AngleDeg
}

func tapDistance(r gesture.HandReading) float64 {
	if !r.Tap.Valid {
		return math.NaN()
	}
	return r.Tap.DistanceM
}

// History is a fixed-size ring of samples. It implements
// tracking.Observer and is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	full    bool
}

// NewHistory creates a history holding the last capacity frames.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{samples: make([]Sample, capacity)}
}

// ObserveFrame records res, evicting the oldest sample when full.
func (h *History) ObserveFrame(res gesture.FrameResult) {
	s := SampleFromFrame(res)
	h.mu.Lock()
	h.samples[h.next] = s
	h.next++
	if h.next == len(h.samples) {
		h.next = 0
		h.full = true
	}
	h.mu.Unlock()
}

// Len returns the number of stored samples.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.samples)
	}
	return h.next
}

// Samples returns a copy of the stored samples, oldest first.
func (h *History) Samples() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]Sample(nil), h.samples[:h.next]...)
	}
	out := make([]Sample, 0, len(h.samples))
	out = append(out, h.samples[h.next:]...)
	return append(out, h.samples[:h.next]...)
}

// Reset drops every sample.
func (h *History) Reset() {
	h.mu.Lock()
	h.next = 0
	h.full = false
	h.mu.Unlock()
}
