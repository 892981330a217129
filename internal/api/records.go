package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/storyboard.xr/internal/hand"
	"github.com/banshee-data/storyboard.xr/internal/httputil"
	"github.com/banshee-data/storyboard.xr/internal/storyboard"
)

// maxBodyBytes bounds request bodies; scene documents are the largest.
const maxBodyBytes = 4 << 20

// CreateShotRequest is the body of POST /api/shots. Omitted fields get
// the next free name, the identity transform and the current scene.
type CreateShotRequest struct {
	Scene     int                   `json:"scene,omitempty"`
	Name      string                `json:"name,omitempty"`
	Transform *storyboard.Transform `json:"transform,omitempty"`
	Notes     string                `json:"notes,omitempty"`
}

// AnchorRequest is a world-space pose; Orientation is x, y, z, w.
type AnchorRequest struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

func (a AnchorRequest) anchor() hand.Anchor {
	o := a.Orientation
	return hand.Anchor{
		Position:    r3.Vec{X: a.Position[0], Y: a.Position[1], Z: a.Position[2]},
		Orientation: quat.Number{Imag: o[0], Jmag: o[1], Kmag: o[2], Real: o[3]},
	}
}

// CreateBlockerRequest is the body of POST /api/blockers. With Device the
// blocker is placed in front of the headset; with Transform it is placed
// there; otherwise it waits for its initial placement.
type CreateBlockerRequest struct {
	Scene     int                   `json:"scene,omitempty"`
	Name      string                `json:"name,omitempty"`
	Notes     string                `json:"notes,omitempty"`
	Device    *AnchorRequest        `json:"device,omitempty"`
	Transform *storyboard.Transform `json:"transform,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return httputil.DecodeJSON(w, r, v, maxBodyBytes)
}

// sceneParam reads ?scene=N, defaulting to the current scene. "all" or 0
// selects every scene.
func (s *Server) sceneParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("scene")
	switch v {
	case "":
		return s.session.Scene(), nil
	case "all":
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid scene %q", v)
	}
	return n, nil
}

// idFromPath extracts the record ID following prefix.
func idFromPath(path, prefix string) (uuid.UUID, error) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return uuid.Nil, errors.New("missing record ID")
	}
	return uuid.Parse(rest)
}

// handleShotsOrCreate handles GET and POST to /api/shots
func (s *Server) handleShotsOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListShots(w, r)
	case http.MethodPost:
		s.handleCreateShot(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListShots(w http.ResponseWriter, r *http.Request) {
	scene, err := s.sceneParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	shots, err := s.db.ListShots(r.Context(), scene)
	if err != nil {
		s.writeRecordError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shots)
}

func (s *Server) handleCreateShot(w http.ResponseWriter, r *http.Request) {
	var req CreateShotRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Scene == 0 {
		req.Scene = s.session.Scene()
	}
	if req.Scene < 1 {
		s.writeJSONError(w, http.StatusBadRequest, storyboard.ErrInvalidScene.Error())
		return
	}

	existing, err := s.db.ListShots(r.Context(), req.Scene)
	if err != nil {
		s.writeRecordError(w, err)
		return
	}
	used := make([]storyboard.ShotName, len(existing))
	for i, shot := range existing {
		used[i] = shot.Name
	}
	name := storyboard.NextShotName(used)
	if req.Name != "" {
		name, err = storyboard.ParseShotName(req.Name)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	tr := storyboard.IdentityTransform()
	if req.Transform != nil {
		if err := req.Transform.Validate(); err != nil {
			s.writeRecordError(w, err)
			return
		}
		tr = req.Transform.Normalized()
	}

	shot := storyboard.NewShot(req.Scene, name, tr, s.clock.Now().UTC())
	shot.Notes = req.Notes
	if err := s.db.InsertShot(r.Context(), shot); err != nil {
		s.writeRecordError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, shot)
}

// handleShotByID handles GET/PATCH/DELETE /api/shots/:id
func (s *Server) handleShotByID(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r.URL.Path, "/api/shots/")
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid shot ID")
		return
	}
	switch r.Method {
	case http.MethodGet:
		shot, err := s.db.GetShot(r.Context(), id)
		if err != nil {
			s.writeRecordError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, shot)
	case http.MethodPatch:
		s.handleUpdateShot(w, r, id)
	case http.MethodDelete:
		if err := s.db.DeleteShot(r.Context(), id); err != nil {
			s.writeRecordError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUpdateShot(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var patch storyboard.ShotPatch
	if err := decodeBody(w, r, &patch); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	shot, err := s.db.GetShot(r.Context(), id)
	if err != nil {
		s.writeRecordError(w, err)
		return
	}
	if err := shot.Apply(patch, s.clock.Now().UTC()); err != nil {
		s.writeApplyError(w, err)
		return
	}
	if err := s.db.UpdateShot(r.Context(), shot); err != nil {
		s.writeRecordError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shot)
}

// writeApplyError reports a rejected manipulation. Anything that is not a
// lock violation is a malformed patch.
func (s *Server) writeApplyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storyboard.ErrTranslationLocked),
		errors.Is(err, storyboard.ErrRotationLocked),
		errors.Is(err, storyboard.ErrScaleLocked):
		s.writeJSONError(w, http.StatusConflict, err.Error())
	default:
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	}
}

// handleBlockersOrCreate handles GET and POST to /api/blockers
func (s *Server) handleBlockersOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		scene, err := s.sceneParam(r)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		blockers, err := s.db.ListBlockers(r.Context(), scene)
		if err != nil {
			s.writeRecordError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, blockers)
	case http.MethodPost:
		s.handleCreateBlocker(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateBlocker(w http.ResponseWriter, r *http.Request) {
	var req CreateBlockerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Scene == 0 {
		req.Scene = s.session.Scene()
	}
	if req.Scene < 1 {
		s.writeJSONError(w, http.StatusBadRequest, storyboard.ErrInvalidScene.Error())
		return
	}

	now := s.clock.Now().UTC()
	b := storyboard.NewBlocker(req.Scene, req.Name, now)
	b.Notes = req.Notes
	switch {
	case req.Transform != nil:
		if err := req.Transform.Validate(); err != nil {
			s.writeRecordError(w, err)
			return
		}
		b.Transform = req.Transform.Normalized()
		b.NeedInitialization = false
	case req.Device != nil:
		off := s.offsets.Load()
		b.Initialize(req.Device.anchor(), off.forward, off.down, now)
	}

	if err := s.db.InsertBlocker(r.Context(), b); err != nil {
		s.writeRecordError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, b)
}

// handleBlockerByID handles GET/PATCH/DELETE /api/blockers/:id
func (s *Server) handleBlockerByID(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r.URL.Path, "/api/blockers/")
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid blocker ID")
		return
	}
	switch r.Method {
	case http.MethodGet:
		b, err := s.db.GetBlocker(r.Context(), id)
		if err != nil {
			s.writeRecordError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, b)
	case http.MethodPatch:
		var patch storyboard.BlockerPatch
		if err := decodeBody(w, r, &patch); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		b, err := s.db.GetBlocker(r.Context(), id)
		if err != nil {
			s.writeRecordError(w, err)
			return
		}
		if err := b.Apply(patch, s.clock.Now().UTC()); err != nil {
			s.writeApplyError(w, err)
			return
		}
		if err := s.db.UpdateBlocker(r.Context(), b); err != nil {
			s.writeRecordError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, b)
	case http.MethodDelete:
		if err := s.db.DeleteBlocker(r.Context(), id); err != nil {
			s.writeRecordError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
