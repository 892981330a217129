package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/storyboard.xr/internal/storyboard"
)

// SceneResponse is the body of GET /api/scene.
type SceneResponse struct {
	Scene  int   `json:"scene"`
	Scenes []int `json:"scenes"`
}

// SetSceneRequest is the body of PUT /api/scene.
type SetSceneRequest struct {
	Scene int `json:"scene"`
}

// handleScene handles GET and PUT to /api/scene
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req SetSceneRequest
		if err := decodeBody(w, r, &req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.session.SetScene(req.Scene); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scenes, err := s.db.Scenes(r.Context())
	if err != nil {
		s.writeRecordError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SceneResponse{Scene: s.session.Scene(), Scenes: scenes})
}

// handleSceneExport handles GET /api/scene/export?scene=N
func (s *Server) handleSceneExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scene, err := s.sceneParam(r)
	if err != nil || scene < 1 {
		s.writeJSONError(w, http.StatusBadRequest, storyboard.ErrInvalidScene.Error())
		return
	}
	doc, err := s.db.ExportScene(r.Context(), scene)
	if err != nil {
		s.writeRecordError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=scene-%d.json", scene))
	s.writeJSON(w, http.StatusOK, doc)
}

// handleSceneImport handles POST /api/scene/import[?replace=true]
func (s *Server) handleSceneImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	replace := false
	if v := r.URL.Query().Get("replace"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid replace %q", v))
			return
		}
		replace = b
	}

	var doc storyboard.SceneDocument
	if err := decodeBody(w, r, &doc); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := doc.Normalize(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.db.ImportScene(r.Context(), doc, replace); err != nil {
		s.writeRecordError(w, err)
		return
	}
	imported, err := s.db.ExportScene(r.Context(), doc.Scene)
	if err != nil {
		s.writeRecordError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, imported)
}
