// Package hand defines the per-hand joint snapshot delivered by the
// headset's hand-tracking bridge, and its JSON datagram codec.
//
// Joint positions are expressed in the hand-anchor frame; the Anchor
// carries the anchor's pose in world space and is what placements are
// attached to.
package hand

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Chirality identifies which hand a pose belongs to. The zero value means
// "no hand".
type Chirality uint8

const (
	None Chirality = iota
	Left
	Right
)

// Chiralities lists the two real hands in evaluation order.
var Chiralities = [...]Chirality{Left, Right}

// ErrUnknownChirality is returned when a chirality string is not
// "left" or "right".
var ErrUnknownChirality = errors.New("unknown chirality")

// Opposite returns the other hand. None maps to None.
func (c Chirality) Opposite() Chirality {
	switch c {
	case Left:
		return Right
	case Right:
		return Left
	default:
		return None
	}
}

func (c Chirality) String() string {
	switch c {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return ""
	}
}

// ParseChirality parses "left" or "right".
func ParseChirality(s string) (Chirality, error) {
	switch s {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownChirality, s)
	}
}

// MarshalText encodes None as the empty string.
func (c Chirality) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts "left", "right" or "" (None).
func (c *Chirality) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = None
		return nil
	}
	v, err := ParseChirality(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Joint names one of the seven tracked joints.
type Joint uint8

const (
	Wrist Joint = iota
	ThumbKnuckle
	ThumbIntermediateBase
	ThumbTip
	IndexMetacarpal
	IndexKnuckle
	IndexTip

	JointCount
)

var jointNames = [JointCount]string{
	Wrist:                 "wrist",
	ThumbKnuckle:          "thumbKnuckle",
	ThumbIntermediateBase: "thumbIntermediateBase",
	ThumbTip:              "thumbTip",
	IndexMetacarpal:       "indexFingerMetacarpal",
	IndexKnuckle:          "indexFingerKnuckle",
	IndexTip:              "indexFingerTip",
}

func (j Joint) String() string {
	if j < JointCount {
		return jointNames[j]
	}
	return fmt.Sprintf("joint(%d)", uint8(j))
}

// JointByName resolves a wire joint name.
func JointByName(name string) (Joint, bool) {
	for j, n := range jointNames {
		if n == name {
			return Joint(j), true
		}
	}
	return 0, false
}

// Anchor is the hand anchor's pose in world space.
type Anchor struct {
	Position    r3.Vec
	Orientation quat.Number
}

// IdentityAnchor is an anchor at the origin with no rotation.
var IdentityAnchor = Anchor{Orientation: quat.Number{Real: 1}}

// Rotation returns the anchor orientation as a unit rotation. A zero
// quaternion is treated as identity.
func (a Anchor) Rotation() r3.Rotation {
	return r3.Rotation(normalizeQuat(a.Orientation))
}

// Apply maps a point in the anchor frame into world space.
func (a Anchor) Apply(v r3.Vec) r3.Vec {
	return r3.Add(a.Position, a.Rotation().Rotate(v))
}

// Pose is one hand's joint snapshot for a single tracking update.
type Pose struct {
	Chirality      Chirality
	TimestampNanos int64
	// Tracked is false when the provider has an anchor but no skeleton.
	Tracked bool
	Anchor  Anchor

	joints [JointCount]r3.Vec
	known  uint8
}

// NewPose returns a tracked pose with no joints set.
func NewPose(c Chirality, timestampNanos int64) *Pose {
	return &Pose{
		Chirality:      c,
		TimestampNanos: timestampNanos,
		Tracked:        true,
		Anchor:         IdentityAnchor,
	}
}

// SetJoint records a joint position in the anchor frame.
func (p *Pose) SetJoint(j Joint, v r3.Vec) {
	if j >= JointCount {
		return
	}
	p.joints[j] = v
	p.known |= 1 << j
}

// Joint returns the joint position and whether it is available. Nothing is
// available on a nil or untracked pose.
func (p *Pose) Joint(j Joint) (r3.Vec, bool) {
	if p == nil || !p.Tracked || j >= JointCount || p.known&(1<<j) == 0 {
		return r3.Vec{}, false
	}
	return p.joints[j], true
}

// JointCount returns how many joints are available.
func (p *Pose) JointCount() int {
	if p == nil || !p.Tracked {
		return 0
	}
	n := 0
	for j := Joint(0); j < JointCount; j++ {
		if p.known&(1<<j) != 0 {
			n++
		}
	}
	return n
}

// WorldJoint maps an anchor-frame joint into world space using the anchor.
func (p *Pose) WorldJoint(j Joint) (r3.Vec, bool) {
	v, ok := p.Joint(j)
	if !ok {
		return r3.Vec{}, false
	}
	return p.Anchor.Apply(v), true
}

// normalizeQuat returns a unit quaternion, falling back to identity for
// a zero quaternion.
func normalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}
