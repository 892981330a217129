package tracking

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/storyboard.xr/internal/hand"
	"github.com/banshee-data/storyboard.xr/internal/timeutil"
)

// SyntheticCycle is the length of one scripted gesture cycle.
const SyntheticCycle = 4 * time.Second

// SyntheticGenerator scripts both hands through repeated placement
// cycles for development without a headset:
//
//	0.0s-1.0s  both hands relaxed
//	1.0s-2.5s  left hand L-shape, right relaxed
//	2.5s-3.0s  left L-shape, right thumb and index touching
//	3.0s-3.5s  left L-shape, right released
//	3.5s-4.0s  both hands relaxed
//
// The left anchor drifts on a slow circle so previews move.
type SyntheticGenerator struct {
	slots *PoseSlots
	clock timeutil.Clock
	start time.Time
}

// NewSyntheticGenerator writes into slots; the script starts now.
func NewSyntheticGenerator(slots *PoseSlots, clock timeutil.Clock) *SyntheticGenerator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyntheticGenerator{slots: slots, clock: clock, start: clock.Now()}
}

// PosesAt returns both hands at elapsed time into the script.
func (g *SyntheticGenerator) PosesAt(elapsed time.Duration) (left, right *hand.Pose) {
	ts := g.start.Add(elapsed).UnixNano()
	phase := elapsed % SyntheticCycle

	leftAngle, rightGap := 20.0, 0.04
	switch {
	case phase < time.Second:
	case phase < 2500*time.Millisecond:
		leftAngle = 80
	case phase < 3*time.Second:
		leftAngle, rightGap = 80, 0.004
	case phase < 3500*time.Millisecond:
		leftAngle = 80
	}

	theta := 2 * math.Pi * elapsed.Seconds() / 20
	left = syntheticHand(hand.Left, leftAngle, 0.05, ts)
	left.Anchor = hand.Anchor{
		Position:    r3.Vec{X: -0.2 + 0.1*math.Cos(theta), Y: 1.2, Z: -0.4 + 0.1*math.Sin(theta)},
		Orientation: quat.Number(r3.NewRotation(theta/4, r3.Vec{Y: 1})),
	}
	right = syntheticHand(hand.Right, 10, rightGap, ts)
	right.Anchor = hand.Anchor{Position: r3.Vec{X: 0.2, Y: 1.2, Z: -0.4}, Orientation: quat.Number{Real: 1}}
	return left, right
}

// Emit stores the poses for the current clock time.
func (g *SyntheticGenerator) Emit() {
	now := g.clock.Now()
	left, right := g.PosesAt(now.Sub(g.start))
	g.slots.Store(left, now)
	g.slots.Store(right, now)
}

// Run emits poses every interval until ctx is cancelled.
func (g *SyntheticGenerator) Run(ctx context.Context, interval time.Duration) error {
	ticker := g.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			g.Emit()
		}
	}
}

// syntheticHand builds a hand whose index finger is angleDeg from the
// thumb and whose index tip sits gap metres from the thumb tip. The thumb
// tip is the origin of the anchor frame.
func syntheticHand(c hand.Chirality, angleDeg, gap float64, ts int64) *hand.Pose {
	const thumb, index = 0.05, 0.08
	rad := angleDeg * math.Pi / 180
	dir := r3.Vec{X: math.Cos(rad), Y: math.Sin(rad)}
	tip := r3.Scale(gap, r3.Unit(r3.Add(dir, r3.Vec{Z: 1})))
	base := r3.Sub(tip, r3.Scale(index, dir))

	p := hand.NewPose(c, ts)
	p.SetJoint(hand.Wrist, r3.Vec{X: -0.1})
	p.SetJoint(hand.ThumbKnuckle, r3.Vec{X: -thumb})
	p.SetJoint(hand.ThumbIntermediateBase, r3.Vec{X: -thumb / 2})
	p.SetJoint(hand.ThumbTip, r3.Vec{})
	p.SetJoint(hand.IndexMetacarpal, base)
	p.SetJoint(hand.IndexKnuckle, r3.Add(base, r3.Scale(index/2, dir)))
	p.SetJoint(hand.IndexTip, tip)
	return p
}
