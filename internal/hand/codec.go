package hand

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// wirePose is the JSON datagram sent by the headset bridge, one per hand
// per tracking update.
type wirePose struct {
	Hand    string               `json:"hand"`
	TS      int64                `json:"ts"`
	Tracked bool                 `json:"tracked"`
	Anchor  *wireAnchor          `json:"anchor,omitempty"`
	Joints  map[string][]float64 `json:"joints,omitempty"`
}

type wireAnchor struct {
	Position    []float64 `json:"position"`
	Orientation []float64 `json:"orientation,omitempty"` // x, y, z, w
}

// DecodePose parses a pose datagram. Unknown joint names are ignored so
// the bridge can report extra joints without breaking older services.
func DecodePose(data []byte) (*Pose, error) {
	var w wirePose
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode pose: %w", err)
	}
	c, err := ParseChirality(w.Hand)
	if err != nil {
		return nil, err
	}

	p := &Pose{
		Chirality:      c,
		TimestampNanos: w.TS,
		Tracked:        w.Tracked,
		Anchor:         IdentityAnchor,
	}

	if w.Anchor != nil {
		pos, err := vec3(w.Anchor.Position)
		if err != nil {
			return nil, fmt.Errorf("anchor position: %w", err)
		}
		p.Anchor.Position = pos
		if len(w.Anchor.Orientation) > 0 {
			q, err := quat4(w.Anchor.Orientation)
			if err != nil {
				return nil, fmt.Errorf("anchor orientation: %w", err)
			}
			p.Anchor.Orientation = q
		}
	}

	for name, raw := range w.Joints {
		j, ok := JointByName(name)
		if !ok {
			continue
		}
		v, err := vec3(raw)
		if err != nil {
			return nil, fmt.Errorf("joint %s: %w", name, err)
		}
		p.SetJoint(j, v)
	}
	return p, nil
}

// EncodePose renders a pose in the datagram format. Used by the synthetic
// generator and the replay tooling.
func EncodePose(p *Pose) ([]byte, error) {
	q := p.Anchor.Orientation
	w := wirePose{
		Hand:    p.Chirality.String(),
		TS:      p.TimestampNanos,
		Tracked: p.Tracked,
		Anchor: &wireAnchor{
			Position:    []float64{p.Anchor.Position.X, p.Anchor.Position.Y, p.Anchor.Position.Z},
			Orientation: []float64{q.Imag, q.Jmag, q.Kmag, q.Real},
		},
		Joints: make(map[string][]float64, JointCount),
	}
	for j := Joint(0); j < JointCount; j++ {
		if p.known&(1<<j) == 0 {
			continue
		}
		v := p.joints[j]
		w.Joints[j.String()] = []float64{v.X, v.Y, v.Z}
	}
	return json.Marshal(w)
}

func vec3(v []float64) (r3.Vec, error) {
	if len(v) != 3 {
		return r3.Vec{}, fmt.Errorf("expected 3 components, got %d", len(v))
	}
	if err := checkFinite(v); err != nil {
		return r3.Vec{}, err
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

func quat4(v []float64) (quat.Number, error) {
	if len(v) != 4 {
		return quat.Number{}, fmt.Errorf("expected 4 components, got %d", len(v))
	}
	if err := checkFinite(v); err != nil {
		return quat.Number{}, err
	}
	return quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2], Real: v[3]}, nil
}

func checkFinite(v []float64) error {
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("component %d is not finite", i)
		}
	}
	return nil
}
