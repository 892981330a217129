package gesture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/storyboard.xr/internal/hand"
	"github.com/banshee-data/storyboard.xr/internal/testutil"
)

func TestFingerAngle(t *testing.T) {
	tests := []struct {
		name   string
		thumb  r3.Vec
		index  r3.Vec
		want   float64
		wantOK bool
	}{
		{"parallel", r3.Vec{X: 1}, r3.Vec{X: 2}, 0, true},
		{"perpendicular", r3.Vec{X: 1}, r3.Vec{Y: 1}, 90, true},
		{"opposite", r3.Vec{X: 1}, r3.Vec{X: -3}, 180, true},
		{"zero thumb", r3.Vec{}, r3.Vec{Y: 1}, math.NaN(), false},
		{"zero index", r3.Vec{X: 1}, r3.Vec{}, math.NaN(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FingerAngle(r3.Vec{}, tt.thumb, r3.Vec{Z: 1}, r3.Add(r3.Vec{Z: 1}, tt.index))
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestIsLShapeBoundary(t *testing.T) {
	assert.False(t, IsLShape(0, DefaultLShapeAngleDeg))
	assert.False(t, IsLShape(55.0, DefaultLShapeAngleDeg))
	assert.True(t, IsLShape(55.01, DefaultLShapeAngleDeg))
	assert.True(t, IsLShape(90, DefaultLShapeAngleDeg))
}

func TestIsTapBoundary(t *testing.T) {
	assert.True(t, IsTap(0, DefaultTapDistanceM))
	assert.True(t, IsTap(0.005, DefaultTapDistanceM))
	assert.False(t, IsTap(0.01, DefaultTapDistanceM))
	assert.False(t, IsTap(0.02, DefaultTapDistanceM))
}

func TestClassifyLShape(t *testing.T) {
	tests := []struct {
		name  string
		angle float64
		want  bool
	}{
		{"parallel fingers", 0, false},
		{"relaxed", 20, false},
		{"just under", 54.9, false},
		{"just over", 55.1, true},
		{"right angle", 90, true},
		{"wide", 150, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ClassifyLShape(testutil.LShapePose(hand.Left, tt.angle), DefaultLShapeAngleDeg)
			assert.True(t, res.Valid)
			assert.Equal(t, tt.want, res.Detected)
			assert.InDelta(t, tt.angle, res.AngleDeg, 1e-6)
		})
	}
}

func TestClassifyLShapeMissingData(t *testing.T) {
	partial := hand.NewPose(hand.Left, 0)
	partial.SetJoint(hand.ThumbTip, r3.Vec{X: 1})
	partial.SetJoint(hand.ThumbKnuckle, r3.Vec{})
	partial.SetJoint(hand.IndexTip, r3.Vec{Y: 1})

	degenerate := testutil.LShapePose(hand.Left, 90)
	degenerate.SetJoint(hand.ThumbTip, r3.Vec{X: -testutil.ThumbLength})

	for name, p := range map[string]*hand.Pose{
		"nil":         nil,
		"untracked":   testutil.UntrackedPose(hand.Left),
		"partial":     partial,
		"zero length": degenerate,
	} {
		t.Run(name, func(t *testing.T) {
			res := ClassifyLShape(p, DefaultLShapeAngleDeg)
			assert.False(t, res.Valid)
			assert.False(t, res.Detected)
			assert.True(t, math.IsNaN(res.AngleDeg))
		})
	}
}

func TestClassifyTap(t *testing.T) {
	assert.True(t, ClassifyTap(testutil.TapPose(hand.Right, 0.005), DefaultTapDistanceM).Detected)
	assert.False(t, ClassifyTap(testutil.TapPose(hand.Right, 0.01), DefaultTapDistanceM).Detected)
	assert.False(t, ClassifyTap(testutil.TapPose(hand.Right, 0.03), DefaultTapDistanceM).Detected)

	res := ClassifyTap(testutil.TapPose(hand.Right, 0.004), DefaultTapDistanceM)
	assert.True(t, res.Valid)
	assert.Equal(t, 0.004, res.DistanceM)

	for name, p := range map[string]*hand.Pose{
		"nil":       nil,
		"untracked": testutil.UntrackedPose(hand.Right),
		"no joints": hand.NewPose(hand.Right, 0),
	} {
		res := ClassifyTap(p, DefaultTapDistanceM)
		assert.False(t, res.Valid, name)
		assert.False(t, res.Detected, name)
	}
}
