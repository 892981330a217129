// Package tracking feeds hand poses to the gesture engine: it ingests
// pose datagrams from the headset bridge (live over UDP, or replayed from
// a capture), keeps the latest pose per hand, and runs the per-frame
// evaluation loop.
package tracking

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/storyboard.xr/internal/hand"
)

type slotEntry struct {
	pose       *hand.Pose
	receivedAt time.Time
}

// PoseSlots holds the most recent pose of each hand. Writers overwrite
// (last write wins) and readers never block. A stored pose must not be
// mutated afterwards.
type PoseSlots struct {
	left, right atomic.Pointer[slotEntry]
	writes      atomic.Uint64
}

func (s *PoseSlots) slot(c hand.Chirality) *atomic.Pointer[slotEntry] {
	switch c {
	case hand.Left:
		return &s.left
	case hand.Right:
		return &s.right
	default:
		return nil
	}
}

// Store replaces the pose for p.Chirality. It returns false for a nil
// pose or one without a chirality.
func (s *PoseSlots) Store(p *hand.Pose, receivedAt time.Time) bool {
	if p == nil {
		return false
	}
	slot := s.slot(p.Chirality)
	if slot == nil {
		return false
	}
	slot.Store(&slotEntry{pose: p, receivedAt: receivedAt})
	s.writes.Add(1)
	return true
}

// Latest returns the most recent pose of each hand; nil if none arrived.
func (s *PoseSlots) Latest() (left, right *hand.Pose) {
	return poseOf(s.left.Load()), poseOf(s.right.Load())
}

// Fresh is Latest, treating poses received before cutoff as missing.
func (s *PoseSlots) Fresh(cutoff time.Time) (left, right *hand.Pose) {
	fresh := func(e *slotEntry) *hand.Pose {
		if e == nil || e.receivedAt.Before(cutoff) {
			return nil
		}
		return e.pose
	}
	return fresh(s.left.Load()), fresh(s.right.Load())
}

// Clear drops both poses.
func (s *PoseSlots) Clear() {
	s.left.Store(nil)
	s.right.Store(nil)
}

// Writes returns how many poses have been stored.
func (s *PoseSlots) Writes() uint64 {
	return s.writes.Load()
}

func poseOf(e *slotEntry) *hand.Pose {
	if e == nil {
		return nil
	}
	return e.pose
}
