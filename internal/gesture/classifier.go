package gesture

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// Default thresholds, matching config/tuning.defaults.json.
const (
	DefaultLShapeAngleDeg = 55.0
	DefaultTapDistanceM   = 0.01
)

// Thresholds are the two classifier cut-offs. Both comparisons are strict.
type Thresholds struct {
	LShapeAngleDeg float64
	TapDistanceM   float64
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{LShapeAngleDeg: DefaultLShapeAngleDeg, TapDistanceM: DefaultTapDistanceM}
}

// LShapeResult is the per-frame L-shape classification of one hand.
type LShapeResult struct {
	// Valid is false when a needed joint was unavailable or a finger
	// vector had zero length; AngleDeg is NaN in that case.
	Valid    bool
	Detected bool
	AngleDeg float64
}

// TapResult is the per-frame tap classification of one hand.
type TapResult struct {
	Valid     bool
	Detected  bool
	DistanceM float64
}

// FingerAngle returns the angle in degrees between the thumb vector
// (thumbTip - thumbBase) and the index vector (indexTip - indexBase).
// ok is false if either vector has zero length.
func FingerAngle(thumbBase, thumbTip, indexBase, indexTip r3.Vec) (deg float64, ok bool) {
	a := r3.Sub(thumbTip, thumbBase)
	b := r3.Sub(indexTip, indexBase)
	if r3.Norm(a) == 0 || r3.Norm(b) == 0 {
		return math.NaN(), false
	}
	dot := r3.Dot(r3.Unit(a), r3.Unit(b))
	// Rounding can push the dot product of unit vectors just outside [-1, 1].
	dot = math.Max(-1, math.Min(1, dot))
	return math.Acos(dot) * 180 / math.Pi, true
}

// IsLShape reports whether an angle is past the threshold.
func IsLShape(angleDeg, thresholdDeg float64) bool {
	return math.Abs(angleDeg) > thresholdDeg
}

// IsTap reports whether a fingertip distance is under the threshold.
func IsTap(distanceM, thresholdM float64) bool {
	return distanceM < thresholdM
}

// ClassifyLShape evaluates the L-shape gesture on one hand using the thumb
// knuckle, thumb tip, index metacarpal and index tip.
func ClassifyLShape(p *hand.Pose, thresholdDeg float64) LShapeResult {
	thumbBase, ok1 := p.Joint(hand.ThumbKnuckle)
	thumbTip, ok2 := p.Joint(hand.ThumbTip)
	indexBase, ok3 := p.Joint(hand.IndexMetacarpal)
	indexTip, ok4 := p.Joint(hand.IndexTip)
	if !(ok1 && ok2 && ok3 && ok4) {
		return LShapeResult{AngleDeg: math.NaN()}
	}
	angle, ok := FingerAngle(thumbBase, thumbTip, indexBase, indexTip)
	if !ok {
		return LShapeResult{AngleDeg: angle}
	}
	return LShapeResult{Valid: true, Detected: IsLShape(angle, thresholdDeg), AngleDeg: angle}
}

// ClassifyTap evaluates the tap gesture on one hand.
func ClassifyTap(p *hand.Pose, thresholdM float64) TapResult {
	thumbTip, ok1 := p.Joint(hand.ThumbTip)
	indexTip, ok2 := p.Joint(hand.IndexTip)
	if !(ok1 && ok2) {
		return TapResult{DistanceM: math.NaN()}
	}
	d := r3.Norm(r3.Sub(indexTip, thumbTip))
	return TapResult{Valid: true, Detected: IsTap(d, thresholdM), DistanceM: d}
}
