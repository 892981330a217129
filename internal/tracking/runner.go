package tracking

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/monitoring"
	"github.com/banshee-data/storyboard.xr/internal/timeutil"
)

var runnerLogf = monitoring.Component("gesture")

// Observer receives every frame result. Observers run on the frame loop
// and must return quickly.
type Observer interface {
	ObserveFrame(gesture.FrameResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(gesture.FrameResult)

// ObserveFrame calls f(res).
func (f ObserverFunc) ObserveFrame(res gesture.FrameResult) { f(res) }

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Engine   *gesture.Engine
	Slots    *PoseSlots
	Clock    timeutil.Clock
	Interval time.Duration
	// StaleAfter, when positive, treats poses older than this as missing
	// so a silent bridge cannot hold a gesture forever.
	StaleAfter time.Duration
	Observers  []Observer
}

// Runner evaluates the engine against the latest poses once per frame.
type Runner struct {
	engine     *gesture.Engine
	slots      *PoseSlots
	clock      timeutil.Clock
	staleAfter time.Duration
	observers  []Observer

	interval atomic.Int64
	frames   atomic.Uint64
}

// NewRunner creates a runner. Interval defaults to 90 Hz.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Slots == nil {
		cfg.Slots = &PoseSlots{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second / 90
	}
	r := &Runner{
		engine:     cfg.Engine,
		slots:      cfg.Slots,
		clock:      cfg.Clock,
		staleAfter: cfg.StaleAfter,
		observers:  cfg.Observers,
	}
	r.interval.Store(int64(cfg.Interval))
	return r
}

// SetInterval changes the frame interval; a running loop picks it up on
// its next tick.
func (r *Runner) SetInterval(d time.Duration) {
	if d > 0 {
		r.interval.Store(int64(d))
	}
}

// Interval returns the current frame interval.
func (r *Runner) Interval() time.Duration {
	return time.Duration(r.interval.Load())
}

// Frames returns how many frames have been evaluated.
func (r *Runner) Frames() uint64 {
	return r.frames.Load()
}

// Step evaluates one frame and notifies observers.
func (r *Runner) Step() gesture.FrameResult {
	left, right := r.slots.Latest()
	if r.staleAfter > 0 {
		left, right = r.slots.Fresh(r.clock.Now().Add(-r.staleAfter))
	}
	res := r.engine.Evaluate(left, right)
	r.frames.Add(1)
	for _, o := range r.observers {
		o.ObserveFrame(res)
	}
	return res
}

// Run steps once per interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	current := r.Interval()
	ticker := r.clock.NewTicker(current)
	defer ticker.Stop()
	runnerLogf("frame loop started at %.1f Hz", float64(time.Second)/float64(current))

	for {
		select {
		case <-ctx.Done():
			runnerLogf("frame loop stopped after %d frames", r.Frames())
			return ctx.Err()
		case <-ticker.C():
			r.Step()
			if d := r.Interval(); d != current {
				current = d
				ticker.Reset(d)
				runnerLogf("frame interval changed to %v", d)
			}
		}
	}
}
