package gesture

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/storyboard.xr/internal/hand"
	"github.com/banshee-data/storyboard.xr/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestEngine() (*Engine, *recorder) {
	rec := &recorder{}
	return NewEngine(DefaultThresholds(), rec), rec
}

func lshape(c hand.Chirality) *hand.Pose { return testutil.LShapePose(c, 80) }
func tap(c hand.Chirality) *hand.Pose    { return testutil.TapPose(c, 0.005) }
func open(c hand.Chirality) *hand.Pose   { return testutil.OpenHandPose(c) }

func TestInitialState(t *testing.T) {
	e, _ := newTestEngine()
	if diff := cmp.Diff(GestureState{TapReleased: true}, e.State()); diff != "" {
		t.Errorf("initial state mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, e.LastFrame())
}

func TestCouldPlaceThenSinglePlace(t *testing.T) {
	e, rec := newTestEngine()

	for i := 0; i < 10; i++ {
		res := e.Evaluate(lshape(hand.Left), open(hand.Right))
		assert.Equal(t, hand.Left, res.Selected)
		assert.True(t, res.State.LShapeActive)
		assert.Equal(t, hand.Left, res.State.ActiveChirality)
	}
	assert.Equal(t, 10, rec.count(EventCouldPlace))
	assert.Zero(t, rec.count(EventPlace))

	rec.reset()
	res := e.Evaluate(lshape(hand.Left), tap(hand.Right))
	require.Len(t, res.Events, 1)
	assert.Equal(t, EventPlace, res.Events[0].Kind)
	assert.Equal(t, hand.Left, res.Events[0].Chirality)
	assert.Equal(t, uint64(11), res.Events[0].Frame)
	assert.False(t, res.State.TapReleased)
	assert.Equal(t, hand.None, res.State.ActiveChirality)

	// Holding the tap must not place again or advertise.
	for i := 0; i < 20; i++ {
		e.Evaluate(lshape(hand.Left), tap(hand.Right))
	}
	assert.Equal(t, 1, rec.count(EventPlace))
	assert.Zero(t, rec.count(EventCouldPlace))
}

func TestReleaseRearms(t *testing.T) {
	e, rec := newTestEngine()

	e.Evaluate(lshape(hand.Right), tap(hand.Left))
	assert.Equal(t, 1, rec.count(EventPlace))

	res := e.Evaluate(lshape(hand.Right), open(hand.Left))
	assert.Empty(t, res.Events, "release frame emits nothing")
	assert.True(t, res.State.TapReleased)

	res = e.Evaluate(lshape(hand.Right), open(hand.Left))
	require.Len(t, res.Events, 1)
	assert.Equal(t, EventCouldPlace, res.Events[0].Kind)

	e.Evaluate(lshape(hand.Right), tap(hand.Left))
	assert.Equal(t, 2, rec.count(EventPlace))
}

// pinchPose is a tap at 5 mm whose index finger points angleDeg away from
// the thumb, so at wide angles it also reads as an L-shape.
func pinchPose(c hand.Chirality, angleDeg float64) *hand.Pose {
	rad := angleDeg * math.Pi / 180
	p := testutil.TapPose(c, 0.005)
	tip := r3.Vec{X: 0.005}
	dir := r3.Vec{X: math.Cos(rad), Y: math.Sin(rad)}
	p.SetJoint(hand.IndexMetacarpal, r3.Sub(tip, r3.Scale(testutil.IndexLength, dir)))
	p.SetJoint(hand.IndexKnuckle, r3.Sub(tip, r3.Scale(testutil.IndexLength/2, dir)))
	return p
}

func TestHeldPinchNeverRearms(t *testing.T) {
	e, rec := newTestEngine()
	require.True(t, ClassifyLShape(pinchPose(hand.Left, 90), DefaultLShapeAngleDeg).Detected)
	require.True(t, ClassifyTap(pinchPose(hand.Left, 90), DefaultTapDistanceM).Detected)

	// The pinching hand's finger angle swings across the threshold while
	// the tap is held throughout.
	for i, angle := range []float64{0, 90, 0, 90, 90, 0} {
		res := e.Evaluate(pinchPose(hand.Left, angle), lshape(hand.Right))
		assert.False(t, res.State.TapReleased, "frame %d", i+1)
		assert.NotEqual(t, hand.Left, res.Selected, "frame %d: pinching hand selected", i+1)
	}
	assert.Equal(t, 1, rec.count(EventPlace))
	assert.Zero(t, rec.count(EventCouldPlace))

	// Releasing the pinch re-arms; the next tap places again.
	e.Evaluate(open(hand.Left), lshape(hand.Right))
	e.Evaluate(pinchPose(hand.Left, 0), lshape(hand.Right))
	assert.Equal(t, 2, rec.count(EventPlace))
}

func TestReleaseWithoutLShape(t *testing.T) {
	e, rec := newTestEngine()
	e.Evaluate(lshape(hand.Left), tap(hand.Right))

	// Both hands relax; the debounce re-arms with no L-shape present.
	res := e.Evaluate(open(hand.Left), open(hand.Right))
	assert.Equal(t, GestureState{TapReleased: true}, res.State)

	// A tap while no hand is L-shaped never places.
	e.Evaluate(open(hand.Left), tap(hand.Right))
	assert.Equal(t, 1, rec.count(EventPlace))

	// The debounce is armed, so the first L-shape frame with a tap places.
	res = e.Evaluate(lshape(hand.Left), tap(hand.Right))
	assert.Equal(t, 2, rec.count(EventPlace))
	assert.False(t, res.State.TapReleased)
}

func TestTapHeldAcrossLShapeLoss(t *testing.T) {
	e, rec := newTestEngine()
	e.Evaluate(lshape(hand.Left), tap(hand.Right))

	// L-shape drops while the tap is still held: the debounce stays held.
	res := e.Evaluate(open(hand.Left), tap(hand.Right))
	assert.False(t, res.State.TapReleased)
	assert.False(t, res.State.LShapeActive)

	e.Evaluate(lshape(hand.Left), tap(hand.Right))
	assert.Equal(t, 1, rec.count(EventPlace))
}

func TestMissingSkeletonResets(t *testing.T) {
	tests := []struct {
		name string
		left *hand.Pose
	}{
		{"nil pose", nil},
		{"untracked", testutil.UntrackedPose(hand.Left)},
		{"no joints", hand.NewPose(hand.Left, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newTestEngine()
			e.Evaluate(lshape(hand.Left), open(hand.Right))
			require.True(t, e.State().LShapeActive)
			rec.reset()

			res := e.Evaluate(tt.left, tap(hand.Right))
			assert.Zero(t, rec.count(EventPlace))
			assert.Zero(t, rec.count(EventCouldPlace))
			assert.Equal(t, 1, rec.count(EventLShapeEnded))
			assert.False(t, res.State.LShapeActive)
			assert.Equal(t, hand.None, res.State.ActiveChirality)
			assert.False(t, res.Left.Tracked && res.Left.LShape.Valid)
		})
	}
}

func TestBothHandsMissing(t *testing.T) {
	e, rec := newTestEngine()
	for i := 0; i < 5; i++ {
		res := e.Evaluate(nil, nil)
		assert.Equal(t, InitialState(), res.State)
	}
	assert.Empty(t, rec.events)
}

func TestSelectionPrefersActiveHand(t *testing.T) {
	e, _ := newTestEngine()

	res := e.Evaluate(open(hand.Left), lshape(hand.Right))
	assert.Equal(t, hand.Right, res.Selected)

	// Left joins the L-shape; right stays selected.
	res = e.Evaluate(lshape(hand.Left), lshape(hand.Right))
	assert.Equal(t, hand.Right, res.Selected)

	res = e.Evaluate(lshape(hand.Left), open(hand.Right))
	assert.Equal(t, hand.Left, res.Selected)

	fresh, _ := newTestEngine()
	res = fresh.Evaluate(lshape(hand.Left), lshape(hand.Right))
	assert.Equal(t, hand.Left, res.Selected, "left wins a tie")
}

func TestSingleActiveHandInvariant(t *testing.T) {
	e, _ := newTestEngine()
	frames := [][2]*hand.Pose{
		{lshape(hand.Left), lshape(hand.Right)},
		{lshape(hand.Left), tap(hand.Right)},
		{tap(hand.Left), lshape(hand.Right)},
		{open(hand.Left), open(hand.Right)},
		{lshape(hand.Left), lshape(hand.Right)},
		{nil, lshape(hand.Right)},
	}
	for i, f := range frames {
		res := e.Evaluate(f[0], f[1])
		if res.State.ActiveChirality != hand.None {
			assert.True(t, res.State.LShapeActive, "frame %d", i)
			assert.Equal(t, res.Selected, res.State.ActiveChirality, "frame %d", i)
		}
	}
}

func TestLShapeEndedOnce(t *testing.T) {
	e, rec := newTestEngine()
	e.Evaluate(lshape(hand.Left), open(hand.Right))
	e.Evaluate(open(hand.Left), open(hand.Right))
	e.Evaluate(open(hand.Left), open(hand.Right))
	assert.Equal(t, 1, rec.count(EventLShapeEnded))

	// No highlight was raised, so no end is reported.
	e2, rec2 := newTestEngine()
	e2.Evaluate(lshape(hand.Left), tap(hand.Right))
	e2.Evaluate(open(hand.Left), tap(hand.Right))
	assert.Zero(t, rec2.count(EventLShapeEnded))
}

func TestEventCarriesAnchor(t *testing.T) {
	e, rec := newTestEngine()
	left := lshape(hand.Left)
	left.TimestampNanos = 42
	left.Anchor.Position = r3.Vec{X: 1, Y: 2, Z: 3}
	right := tap(hand.Right)
	right.TimestampNanos = 43

	res := e.Evaluate(left, right)
	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, EventPlace, ev.Kind)
	assert.Equal(t, int64(42), ev.TimestampNanos)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, ev.Anchor.Position)
	assert.Equal(t, int64(43), res.TimestampNanos)
	assert.Equal(t, res.Frame, e.LastFrame().Frame)
}

func TestSetThresholds(t *testing.T) {
	e, rec := newTestEngine()
	p := testutil.LShapePose(hand.Left, 60)

	e.Evaluate(p, open(hand.Right))
	assert.Equal(t, 1, rec.count(EventCouldPlace))

	e.SetThresholds(Thresholds{LShapeAngleDeg: 70, TapDistanceM: DefaultTapDistanceM})
	assert.Equal(t, 70.0, e.Thresholds().LShapeAngleDeg)
	res := e.Evaluate(p, open(hand.Right))
	assert.Equal(t, hand.None, res.Selected)
	assert.Equal(t, 1, rec.count(EventCouldPlace))

	e.SetThresholds(Thresholds{LShapeAngleDeg: 70, TapDistanceM: 0.02})
	e.Evaluate(lshape(hand.Left), testutil.TapPose(hand.Right, 0.015))
	assert.Equal(t, 1, rec.count(EventPlace))
}

func TestReset(t *testing.T) {
	e, rec := newTestEngine()
	e.Evaluate(lshape(hand.Left), open(hand.Right))
	e.Reset()
	assert.Equal(t, InitialState(), e.State())
	assert.Equal(t, 1, rec.count(EventLShapeEnded))

	e.Reset()
	assert.Equal(t, 1, rec.count(EventLShapeEnded))
}

func TestChannelSink(t *testing.T) {
	s := NewChannelSink(2, EventPlace)
	s.Emit(Event{Kind: EventCouldPlace})
	s.Emit(Event{Kind: EventPlace, Frame: 1})
	s.Emit(Event{Kind: EventPlace, Frame: 2})
	s.Emit(Event{Kind: EventPlace, Frame: 3})

	assert.Equal(t, uint64(1), s.Dropped())
	assert.Equal(t, uint64(1), (<-s.Events()).Frame)
	assert.Equal(t, uint64(2), (<-s.Events()).Frame)

	all := NewChannelSink(1)
	all.Emit(RemoveFrame(7))
	ev := <-all.Events()
	assert.Equal(t, EventRemoveFrame, ev.Kind)
	assert.Equal(t, int64(7), ev.TimestampNanos)
}

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var calls int
	f := Fanout{a, nil, b, SinkFunc(func(Event) { calls++ })}
	f.Emit(Event{Kind: EventPlace})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Equal(t, 1, calls)
}

func TestParseEventKind(t *testing.T) {
	for _, k := range EventKinds {
		got, err := ParseEventKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseEventKind("wave")
	assert.Error(t, err)
}
