package storyboard

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// ErrInvalidTransform is returned for non-finite components, a zero
// rotation quaternion or a non-positive scale.
var ErrInvalidTransform = errors.New("invalid transform")

// Transform is a rigid placement plus per-axis scale, relative to the
// scene origin. Rotation is a quaternion in x, y, z, w order.
type Transform struct {
	Translation [3]float64 `json:"translation"`
	Rotation    [4]float64 `json:"rotation"`
	Scale       [3]float64 `json:"scale"`
}

// IdentityTransform is the origin with no rotation and unit scale.
func IdentityTransform() Transform {
	return Transform{
		Rotation: [4]float64{0, 0, 0, 1},
		Scale:    [3]float64{1, 1, 1},
	}
}

// TransformFrom builds a unit-scale transform from a position and
// orientation.
func TransformFrom(pos r3.Vec, rot r3.Rotation) Transform {
	return Transform{
		Translation: [3]float64{pos.X, pos.Y, pos.Z},
		Rotation:    [4]float64{rot.Imag, rot.Jmag, rot.Kmag, rot.Real},
		Scale:       [3]float64{1, 1, 1},
	}
}

// Position returns the translation as a vector.
func (t Transform) Position() r3.Vec {
	return r3.Vec{X: t.Translation[0], Y: t.Translation[1], Z: t.Translation[2]}
}

// Orientation returns the rotation as a gonum rotation. It is not
// normalised; call Validate first when the source is untrusted.
func (t Transform) Orientation() r3.Rotation {
	return r3.Rotation(quat.Number{Real: t.Rotation[3], Imag: t.Rotation[0], Jmag: t.Rotation[1], Kmag: t.Rotation[2]})
}

// ScaleVec returns the scale as a vector.
func (t Transform) ScaleVec() r3.Vec {
	return r3.Vec{X: t.Scale[0], Y: t.Scale[1], Z: t.Scale[2]}
}

// Validate checks the transform can be applied.
func (t Transform) Validate() error {
	for _, part := range [][]float64{t.Translation[:], t.Rotation[:], t.Scale[:]} {
		for _, v := range part {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite component", ErrInvalidTransform)
			}
		}
	}
	if quat.Abs(quat.Number(t.Orientation())) == 0 {
		return fmt.Errorf("%w: zero rotation", ErrInvalidTransform)
	}
	for _, s := range t.Scale {
		if s <= 0 {
			return fmt.Errorf("%w: scale must be positive", ErrInvalidTransform)
		}
	}
	return nil
}

// Normalized returns t with a unit rotation quaternion.
func (t Transform) Normalized() Transform {
	q := quat.Number(t.Orientation())
	if n := quat.Abs(q); n != 0 && n != 1 {
		q = quat.Scale(1/n, q)
		t.Rotation = [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real}
	}
	return t
}

// rotationTolerance bounds 1-|q1·q2| for two unit quaternions that are
// treated as the same rotation.
const rotationTolerance = 1e-12

// sameRotation reports whether patched, once normalised, is the rotation
// already stored. q and -q are the same rotation.
func sameRotation(patched, stored [4]float64) bool {
	p := Transform{Rotation: patched}.Normalized().Rotation
	var dot float64
	for i := range p {
		dot += p[i] * stored[i]
	}
	return 1-math.Abs(dot) <= rotationTolerance
}

// Forward and down in an anchor's local frame.
var (
	localForward = r3.Vec{Z: -1}
	localDown    = r3.Vec{Y: -1}
)

// PlaceAtAnchor returns the transform for a shot frame placed on a hand
// anchor, pushed forwardOffset metres along the anchor's forward axis.
func PlaceAtAnchor(a hand.Anchor, forwardOffset float64) Transform {
	pos := a.Apply(r3.Scale(forwardOffset, localForward))
	return TransformFrom(pos, a.Rotation())
}

// PlaceInFront returns the transform for an object placed forward metres
// in front of and down metres below a device anchor, keeping the device
// orientation.
func PlaceInFront(device hand.Anchor, forward, down float64) Transform {
	rot := device.Rotation()
	pos := r3.Add(device.Position, r3.Add(
		r3.Scale(forward, rot.Rotate(localForward)),
		r3.Scale(down, rot.Rotate(localDown)),
	))
	return TransformFrom(pos, rot)
}

// Grounded drops v onto the floor plane (y = 0).
func Grounded(v r3.Vec) r3.Vec {
	v.Y = 0
	return v
}
