// Package api serves the storyboard HTTP JSON API used by the UI layer.
package api

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/banshee-data/storyboard.xr/internal/db"
	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/httputil"
	"github.com/banshee-data/storyboard.xr/internal/preview"
	"github.com/banshee-data/storyboard.xr/internal/storyboard"
	"github.com/banshee-data/storyboard.xr/internal/timeutil"
	"github.com/banshee-data/storyboard.xr/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Default blocker placement relative to the device.
const (
	DefaultBlockerForwardM = 0.6
	DefaultBlockerDownM    = 0.2
)

// Config wires the server to the running service.
type Config struct {
	DB      *db.DB
	Engine  *gesture.Engine
	Gate    *preview.Gate
	Session *storyboard.Session
	// Sink receives out-of-band events such as remove_frame.
	Sink  gesture.Sink
	Clock timeutil.Clock

	BlockerForwardM float64
	BlockerDownM    float64
}

type blockerOffsets struct {
	forward, down float64
}

type Server struct {
	db      *db.DB
	engine  *gesture.Engine
	gate    *preview.Gate
	session *storyboard.Session
	sink    gesture.Sink
	clock   timeutil.Clock
	offsets atomic.Pointer[blockerOffsets]
}

func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Session == nil {
		cfg.Session = storyboard.NewSession(1)
	}
	if cfg.Sink == nil {
		cfg.Sink = gesture.SinkFunc(func(gesture.Event) {})
	}
	s := &Server{
		db:      cfg.DB,
		engine:  cfg.Engine,
		gate:    cfg.Gate,
		session: cfg.Session,
		sink:    cfg.Sink,
		clock:   cfg.Clock,
	}
	if cfg.BlockerForwardM == 0 && cfg.BlockerDownM == 0 {
		cfg.BlockerForwardM, cfg.BlockerDownM = DefaultBlockerForwardM, DefaultBlockerDownM
	}
	s.SetBlockerOffsets(cfg.BlockerForwardM, cfg.BlockerDownM)
	return s
}

// SetBlockerOffsets changes where new blockers appear relative to the
// device.
func (s *Server) SetBlockerOffsets(forward, down float64) {
	s.offsets.Store(&blockerOffsets{forward: forward, down: down})
}

// RemoveFrame emits the out-of-band preview teardown.
func (s *Server) RemoveFrame() {
	s.sink.Emit(gesture.RemoveFrame(s.clock.Now().UnixNano()))
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/gesture", s.handleGesture)
	mux.HandleFunc("/api/preview/remove", s.handlePreviewRemove)
	mux.HandleFunc("/api/shots", s.handleShotsOrCreate)
	mux.HandleFunc("/api/shots/", s.handleShotByID)
	mux.HandleFunc("/api/blockers", s.handleBlockersOrCreate)
	mux.HandleFunc("/api/blockers/", s.handleBlockerByID)
	mux.HandleFunc("/api/scene", s.handleScene)
	mux.HandleFunc("/api/scene/export", s.handleSceneExport)
	mux.HandleFunc("/api/scene/import", s.handleSceneImport)
	mux.HandleFunc("/api/version", s.handleVersion)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

// writeRecordError maps store and manipulation errors to a status code.
func (s *Server) writeRecordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storyboard.ErrTranslationLocked),
		errors.Is(err, storyboard.ErrRotationLocked),
		errors.Is(err, storyboard.ErrScaleLocked),
		errors.Is(err, storyboard.ErrNameTaken):
		s.writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storyboard.ErrInvalidTransform),
		errors.Is(err, storyboard.ErrInvalidScene):
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("storyboard request failed: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, version.Current())
}

// nullable turns NaN into JSON null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
