package api

import (
	"net/http"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/hand"
	"github.com/banshee-data/storyboard.xr/internal/preview"
)

type thresholdsView struct {
	LShapeAngleDeg float64 `json:"l_shape_angle_deg"`
	TapDistanceM   float64 `json:"tap_distance_m"`
}

type lShapeView struct {
	Valid    bool     `json:"valid"`
	Detected bool     `json:"detected"`
	AngleDeg *float64 `json:"angle_deg"`
}

type tapView struct {
	Valid     bool     `json:"valid"`
	Detected  bool     `json:"detected"`
	DistanceM *float64 `json:"distance_m"`
}

type handView struct {
	Tracked bool       `json:"tracked"`
	LShape  lShapeView `json:"l_shape"`
	Tap     tapView    `json:"tap"`
}

type frameView struct {
	Frame          uint64         `json:"frame"`
	TimestampNanos int64          `json:"timestamp_nanos"`
	Selected       hand.Chirality `json:"selected"`
	Left           handView       `json:"left"`
	Right          handView       `json:"right"`
	Events         []string       `json:"events"`
}

// GestureResponse is the body of GET /api/gesture.
type GestureResponse struct {
	State      gesture.GestureState `json:"state"`
	Thresholds thresholdsView       `json:"thresholds"`
	// Frame is nil until the first frame has been evaluated.
	Frame   *frameView       `json:"frame"`
	Preview preview.Snapshot `json:"preview"`
}

func newHandView(r gesture.HandReading) handView {
	return handView{
		Tracked: r.Tracked,
		LShape: lShapeView{
			Valid:    r.LShape.Valid,
			Detected: r.LShape.Detected,
			AngleDeg: nullable(r.LShape.AngleDeg),
		},
		Tap: tapView{
			Valid:     r.Tap.Valid,
			Detected:  r.Tap.Detected,
			DistanceM: nullable(r.Tap.DistanceM),
		},
	}
}

func newFrameView(res *gesture.FrameResult) *frameView {
	if res == nil {
		return nil
	}
	events := make([]string, len(res.Events))
	for i, ev := range res.Events {
		events[i] = string(ev.Kind)
	}
	return &frameView{
		Frame:          res.Frame,
		TimestampNanos: res.TimestampNanos,
		Selected:       res.Selected,
		Left:           newHandView(res.Left),
		Right:          newHandView(res.Right),
		Events:         events,
	}
}

func (s *Server) gestureResponse() GestureResponse {
	th := s.engine.Thresholds()
	resp := GestureResponse{
		State:      s.engine.State(),
		Thresholds: thresholdsView{LShapeAngleDeg: th.LShapeAngleDeg, TapDistanceM: th.TapDistanceM},
		Frame:      newFrameView(s.engine.LastFrame()),
	}
	if s.gate != nil {
		resp.Preview = s.gate.Snapshot()
	}
	return resp
}

// handleGesture handles GET /api/gesture
func (s *Server) handleGesture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.engine == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "gesture engine not running")
		return
	}
	s.writeJSON(w, http.StatusOK, s.gestureResponse())
}

// handlePreviewRemove handles POST /api/preview/remove
func (s *Server) handlePreviewRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.RemoveFrame()
	var snap preview.Snapshot
	if s.gate != nil {
		snap = s.gate.Snapshot()
	}
	s.writeJSON(w, http.StatusOK, snap)
}
