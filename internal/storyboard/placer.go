package storyboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/monitoring"
	"github.com/banshee-data/storyboard.xr/internal/timeutil"
)

var logf = monitoring.Component("placer")

// ShotStore is the persistence the placer needs.
type ShotStore interface {
	ListShots(ctx context.Context, scene int) ([]ShotRecord, error)
	InsertShot(ctx context.Context, s ShotRecord) error
}

// PlacerConfig configures a Placer.
type PlacerConfig struct {
	// ForwardOffsetM pushes new shots along the hand's forward axis.
	ForwardOffsetM float64
	Clock          timeutil.Clock
	// OnPlaced, if set, is called after each shot is stored.
	OnPlaced func(ShotRecord)
}

// Placer turns place events into stored shots named with the scene's
// next free letter.
type Placer struct {
	store    ShotStore
	session  *Session
	clock    timeutil.Clock
	onPlaced func(ShotRecord)
	offset   atomic.Uint64 // math.Float64bits

	placed atomic.Uint64
	failed atomic.Uint64
}

// NewPlacer creates a placer writing to store in session's current scene.
func NewPlacer(store ShotStore, session *Session, cfg PlacerConfig) *Placer {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	p := &Placer{store: store, session: session, clock: cfg.Clock, onPlaced: cfg.OnPlaced}
	p.SetForwardOffset(cfg.ForwardOffsetM)
	return p
}

// SetForwardOffset changes the offset used for later placements.
func (p *Placer) SetForwardOffset(m float64) {
	p.offset.Store(math.Float64bits(m))
}

// Place stores a shot for a place event.
func (p *Placer) Place(ctx context.Context, ev gesture.Event) (ShotRecord, error) {
	if ev.Kind != gesture.EventPlace {
		return ShotRecord{}, fmt.Errorf("cannot place from %q event", ev.Kind)
	}
	scene := p.session.Scene()
	offset := math.Float64frombits(p.offset.Load())
	shot := NewShot(scene, Unnamed, PlaceAtAnchor(ev.Anchor, offset), p.clock.Now().UTC())
	shot.PlacedBy = ev.Chirality

	// A letter taken between listing and inserting (a concurrent API
	// create or rename) is retried with the next free one.
	var err error
	for range maxNameAttempts {
		if shot.Name, err = p.nextName(ctx, scene); err != nil {
			return ShotRecord{}, err
		}
		err = p.store.InsertShot(ctx, shot)
		if !errors.Is(err, ErrNameTaken) {
			break
		}
	}
	if err != nil {
		return ShotRecord{}, fmt.Errorf("insert shot: %w", err)
	}
	if p.onPlaced != nil {
		p.onPlaced(shot)
	}
	return shot, nil
}

const maxNameAttempts = 3

func (p *Placer) nextName(ctx context.Context, scene int) (ShotName, error) {
	existing, err := p.store.ListShots(ctx, scene)
	if err != nil {
		return "", fmt.Errorf("list shots: %w", err)
	}
	used := make([]ShotName, len(existing))
	for i, s := range existing {
		used[i] = s.Name
	}
	return NextShotName(used), nil
}

// Run places every place event from events until ctx is cancelled or
// events is closed. Failures are logged and counted; they never stop
// the loop.
func (p *Placer) Run(ctx context.Context, events <-chan gesture.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind != gesture.EventPlace {
				continue
			}
			shot, err := p.Place(ctx, ev)
			if err != nil {
				p.failed.Add(1)
				logf("placement from %s hand failed: %v", ev.Chirality, err)
				continue
			}
			p.placed.Add(1)
			logf("placed shot %s (%s) in scene %d", shot.Name.Display(), shot.ID, shot.Scene)
		}
	}
}

// Stats returns how many placements succeeded and failed.
func (p *Placer) Stats() (placed, failed uint64) {
	return p.placed.Load(), p.failed.Load()
}
