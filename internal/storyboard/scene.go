package storyboard

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInvalidScene is returned for scene numbers below 1.
var ErrInvalidScene = errors.New("scene number must be at least 1")

// SceneDocument is the export and import format of one scene.
type SceneDocument struct {
	Scene    int             `json:"scene"`
	Shots    []ShotRecord    `json:"shots"`
	Blockers []BlockerRecord `json:"blockers"`
}

// Normalize checks the document and rewrites every record's scene to the
// document's scene.
func (d *SceneDocument) Normalize() error {
	if d.Scene < 1 {
		return ErrInvalidScene
	}
	for i := range d.Shots {
		s := &d.Shots[i]
		if !s.Name.Valid() {
			return fmt.Errorf("shot %d: invalid name %q", i, s.Name)
		}
		if err := s.Transform.Validate(); err != nil {
			return fmt.Errorf("shot %d: %w", i, err)
		}
		s.Scene = d.Scene
	}
	for i := range d.Blockers {
		b := &d.Blockers[i]
		if b.Name == "" {
			b.Name = DefaultBlockerName
		}
		if err := b.Transform.Validate(); err != nil {
			return fmt.Errorf("blocker %d: %w", i, err)
		}
		b.Scene = d.Scene
	}
	return nil
}

// Session holds the scene currently being storyboarded.
type Session struct {
	scene atomic.Int64
}

// NewSession starts at the given scene, or scene 1 if it is invalid.
func NewSession(scene int) *Session {
	s := &Session{}
	if scene < 1 {
		scene = 1
	}
	s.scene.Store(int64(scene))
	return s
}

// Scene returns the current scene number.
func (s *Session) Scene() int {
	return int(s.scene.Load())
}

// SetScene switches the current scene.
func (s *Session) SetScene(scene int) error {
	if scene < 1 {
		return ErrInvalidScene
	}
	s.scene.Store(int64(scene))
	return nil
}
