// Package testutil provides shared test fixtures: synthetic hand poses
// with known finger geometry, and small HTTP helpers.
package testutil

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// Finger geometry used by the pose builders, in metres.
const (
	ThumbLength = 0.05
	IndexLength = 0.08
)

// LShapePose returns a tracked pose whose thumb and index vectors are
// angleDeg apart. The fingertips stay well over 1 cm apart for every
// angle, so the pose never reads as a tap.
//
// The thumb runs along +X ending at the origin; the index finger starts
// 3 cm up +Y and is rotated angleDeg from +X in the XY plane.
func LShapePose(c hand.Chirality, angleDeg float64) *hand.Pose {
	rad := angleDeg * math.Pi / 180
	p := hand.NewPose(c, 0)
	indexBase := r3.Vec{Y: 0.03}
	p.SetJoint(hand.Wrist, r3.Vec{X: -0.1})
	p.SetJoint(hand.ThumbKnuckle, r3.Vec{X: -ThumbLength})
	p.SetJoint(hand.ThumbIntermediateBase, r3.Vec{X: -ThumbLength / 2})
	p.SetJoint(hand.ThumbTip, r3.Vec{})
	p.SetJoint(hand.IndexMetacarpal, indexBase)
	p.SetJoint(hand.IndexKnuckle, r3.Add(indexBase, r3.Vec{X: IndexLength / 2 * math.Cos(rad), Y: IndexLength / 2 * math.Sin(rad)}))
	p.SetJoint(hand.IndexTip, r3.Add(indexBase, r3.Vec{X: IndexLength * math.Cos(rad), Y: IndexLength * math.Sin(rad)}))
	return p
}

// TapPose returns a tracked pose with the index tip distanceM from the
// thumb tip. Both fingers point along +X, so the pose is not L-shaped.
// The thumb tip sits at the origin and the distance is exact.
func TapPose(c hand.Chirality, distanceM float64) *hand.Pose {
	p := hand.NewPose(c, 0)
	p.SetJoint(hand.Wrist, r3.Vec{X: -0.1})
	p.SetJoint(hand.ThumbKnuckle, r3.Vec{X: -ThumbLength})
	p.SetJoint(hand.ThumbIntermediateBase, r3.Vec{X: -ThumbLength / 2})
	p.SetJoint(hand.ThumbTip, r3.Vec{})
	p.SetJoint(hand.IndexMetacarpal, r3.Vec{X: distanceM - IndexLength})
	p.SetJoint(hand.IndexKnuckle, r3.Vec{X: distanceM - IndexLength/2})
	p.SetJoint(hand.IndexTip, r3.Vec{X: distanceM})
	return p
}

// OpenHandPose is a relaxed hand: fingers 20 degrees apart, no tap.
func OpenHandPose(c hand.Chirality) *hand.Pose {
	return LShapePose(c, 20)
}

// UntrackedPose is a hand with an anchor but no skeleton.
func UntrackedPose(c hand.Chirality) *hand.Pose {
	p := LShapePose(c, 90)
	p.Tracked = false
	return p
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewJSONRequest creates a test request with body encoded as JSON. A nil
// body sends no payload.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, path, nil)
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeJSON decodes a recorded response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}
