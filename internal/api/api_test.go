package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/hand"
	"github.com/banshee-data/storyboard.xr/internal/preview"
	"github.com/banshee-data/storyboard.xr/internal/storyboard"
	"github.com/banshee-data/storyboard.xr/internal/testutil"
	"github.com/banshee-data/storyboard.xr/internal/version"
)

var testNow = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.ServeMux().ServeHTTP(rec, testutil.NewJSONRequest(t, method, path, body))
	return rec
}

func (ts *testServer) createShot(t *testing.T, req CreateShotRequest) storyboard.ShotRecord {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/shots", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var shot storyboard.ShotRecord
	testutil.DecodeJSON(t, rec, &shot)
	return shot
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	testutil.DecodeJSON(t, rec, &body)
	return body["error"]
}

func TestHandleGesture(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/gesture", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var before map[string]any
	testutil.DecodeJSON(t, rec, &before)
	assert.Nil(t, before["frame"], "no frame evaluated yet")
	assert.Equal(t, true, before["state"].(map[string]any)["tap_released"])

	ts.engine.Evaluate(testutil.LShapePose(hand.Left, 90), nil)

	rec = ts.do(t, http.MethodGet, "/api/gesture", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var resp struct {
		State      gesture.GestureState `json:"state"`
		Thresholds thresholdsView       `json:"thresholds"`
		Frame      struct {
			Frame    uint64         `json:"frame"`
			Selected hand.Chirality `json:"selected"`
			Left     handView       `json:"left"`
			Right    handView       `json:"right"`
			Events   []string       `json:"events"`
		} `json:"frame"`
		Preview preview.Snapshot `json:"preview"`
	}
	testutil.DecodeJSON(t, rec, &resp)

	assert.True(t, resp.State.LShapeActive)
	assert.Equal(t, hand.Left, resp.State.ActiveChirality)
	assert.Equal(t, gesture.DefaultThresholds().LShapeAngleDeg, resp.Thresholds.LShapeAngleDeg)
	assert.Equal(t, uint64(1), resp.Frame.Frame)
	assert.Equal(t, hand.Left, resp.Frame.Selected)
	require.NotNil(t, resp.Frame.Left.LShape.AngleDeg)
	assert.InDelta(t, 90.0, *resp.Frame.Left.LShape.AngleDeg, 1e-9)
	assert.False(t, resp.Frame.Right.Tracked)
	assert.Nil(t, resp.Frame.Right.LShape.AngleDeg, "missing hand encodes null")
	assert.Nil(t, resp.Frame.Right.Tap.DistanceM)
	assert.Equal(t, []string{"could_place"}, resp.Frame.Events)
	assert.True(t, resp.Preview.Visible)
	assert.Equal(t, hand.Left, resp.Preview.Chirality)
}

func TestHandleGesture_NoEngine(t *testing.T) {
	s := NewServer(Config{})
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gesture", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)

	rec = httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/gesture", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestHandlePreviewRemove(t *testing.T) {
	ts := setupTestServer(t)
	ts.engine.Evaluate(nil, testutil.LShapePose(hand.Right, 90))
	require.True(t, ts.gate.Snapshot().Visible)

	rec := ts.do(t, http.MethodPost, "/api/preview/remove", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var snap preview.Snapshot
	testutil.DecodeJSON(t, rec, &snap)
	assert.False(t, snap.Visible)
	assert.Nil(t, snap.Transform)
	assert.Zero(t, snap.Highlight.Right)

	last := ts.events[len(ts.events)-1]
	assert.Equal(t, gesture.EventRemoveFrame, last.Kind)
	assert.Equal(t, testNow.UnixNano(), last.TimestampNanos)

	rec = ts.do(t, http.MethodGet, "/api/preview/remove", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestShots_CreateAndList(t *testing.T) {
	ts := setupTestServer(t)

	a := ts.createShot(t, CreateShotRequest{})
	assert.Equal(t, storyboard.ShotName("a"), a.Name)
	assert.Equal(t, 1, a.Scene)
	assert.Equal(t, storyboard.IdentityTransform(), a.Transform)
	assert.True(t, a.EnableTranslation && a.EnableRotation && a.EnableScale)
	assert.True(t, a.CreatedAt.Equal(testNow))

	b := ts.createShot(t, CreateShotRequest{
		Transform: &storyboard.Transform{
			Translation: [3]float64{1, 2, 3},
			Rotation:    [4]float64{0, 0, 0, 2},
			Scale:       [3]float64{1, 1, 1},
		},
		Notes: "wide",
	})
	assert.Equal(t, storyboard.ShotName("b"), b.Name)
	assert.Equal(t, [4]float64{0, 0, 0, 1}, b.Transform.Rotation, "rotation normalised")
	assert.Equal(t, "wide", b.Notes)

	d := ts.createShot(t, CreateShotRequest{Name: "D"})
	assert.Equal(t, storyboard.ShotName("d"), d.Name)

	other := ts.createShot(t, CreateShotRequest{Scene: 2})
	assert.Equal(t, storyboard.ShotName("a"), other.Name, "names are per scene")

	rec := ts.do(t, http.MethodGet, "/api/shots", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var shots []storyboard.ShotRecord
	testutil.DecodeJSON(t, rec, &shots)
	assert.Len(t, shots, 3)

	rec = ts.do(t, http.MethodGet, "/api/shots?scene=2", nil)
	testutil.DecodeJSON(t, rec, &shots)
	require.Len(t, shots, 1)
	assert.Equal(t, other.ID, shots[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/shots?scene=all", nil)
	testutil.DecodeJSON(t, rec, &shots)
	assert.Len(t, shots, 4)

	rec = ts.do(t, http.MethodGet, "/api/shots?scene=x", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestShots_CreateRejects(t *testing.T) {
	ts := setupTestServer(t)
	ts.createShot(t, CreateShotRequest{Name: "c"})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate name", CreateShotRequest{Name: "C"}, http.StatusConflict},
		{"bad name", CreateShotRequest{Name: "shot1"}, http.StatusBadRequest},
		{"negative scene", CreateShotRequest{Scene: -1}, http.StatusBadRequest},
		{"zero scale", CreateShotRequest{Transform: &storyboard.Transform{Rotation: [4]float64{0, 0, 0, 1}}}, http.StatusBadRequest},
		{"unknown field", map[string]any{"frame": 3}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/shots", tt.body)
			testutil.AssertStatusCode(t, rec.Code, tt.want)
			assert.NotEmpty(t, errorMessage(t, rec))
		})
	}

	rec := ts.do(t, http.MethodPut, "/api/shots", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestShots_RenameToTakenLetter(t *testing.T) {
	ts := setupTestServer(t)
	ts.createShot(t, CreateShotRequest{Name: "a"})
	b := ts.createShot(t, CreateShotRequest{Name: "b"})
	path := "/api/shots/" + b.ID.String()

	rec := ts.do(t, http.MethodPatch, path, map[string]any{"name": "a"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)
	assert.Contains(t, errorMessage(t, rec), storyboard.ErrNameTaken.Error())

	rec = ts.do(t, http.MethodGet, path, nil)
	var got storyboard.ShotRecord
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, storyboard.ShotName("b"), got.Name)

	// Unnamed may repeat, and a shot may keep its own letter.
	for _, name := range []string{"b", "unnamed"} {
		rec = ts.do(t, http.MethodPatch, path, map[string]any{"name": name})
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	}
	ts.createShot(t, CreateShotRequest{Name: "unnamed"})

	rec = ts.do(t, http.MethodPatch, path, map[string]any{"name": "c"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	rec = ts.do(t, http.MethodPost, "/api/shots", CreateShotRequest{Name: "c"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)
	assert.Contains(t, errorMessage(t, rec), storyboard.ErrNameTaken.Error())
}

func TestShots_ByID(t *testing.T) {
	ts := setupTestServer(t)
	shot := ts.createShot(t, CreateShotRequest{})
	path := "/api/shots/" + shot.ID.String()

	rec := ts.do(t, http.MethodGet, path, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var got storyboard.ShotRecord
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, shot.ID, got.ID)

	ts.clock.Advance(time.Minute)
	rec = ts.do(t, http.MethodPatch, path, map[string]any{
		"enableRotation": false,
		"translation":    []float64{0, 1.5, -2},
		"notes":          "close-up",
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, [3]float64{0, 1.5, -2}, got.Transform.Translation)
	assert.False(t, got.EnableRotation)
	assert.Equal(t, "close-up", got.Notes)
	assert.True(t, got.UpdatedAt.Equal(testNow.Add(time.Minute)))

	rec = ts.do(t, http.MethodPatch, path, map[string]any{"rotation": []float64{0, 1, 0, 0}})
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)
	assert.Equal(t, storyboard.ErrRotationLocked.Error(), errorMessage(t, rec))

	rec = ts.do(t, http.MethodPatch, path, map[string]any{"name": "7"})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = ts.do(t, http.MethodGet, path, nil)
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, [4]float64{0, 0, 0, 1}, got.Transform.Rotation, "rejected patch left the shot unchanged")

	rec = ts.do(t, http.MethodDelete, path, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)

	rec = ts.do(t, http.MethodGet, path, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	rec = ts.do(t, http.MethodDelete, path, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	rec = ts.do(t, http.MethodGet, "/api/shots/not-a-uuid", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	rec = ts.do(t, http.MethodPost, path, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestBlockers(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/blockers", CreateBlockerRequest{
		Name:   "Alice",
		Device: &AnchorRequest{Orientation: [4]float64{0, 0, 0, 1}},
	})
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var placed storyboard.BlockerRecord
	testutil.DecodeJSON(t, rec, &placed)
	assert.Equal(t, "Alice", placed.Name)
	assert.False(t, placed.NeedInitialization)
	assert.InDeltaSlice(t, []float64{0, -DefaultBlockerDownM, -DefaultBlockerForwardM}, placed.Transform.Translation[:], 1e-9)

	ts.SetBlockerOffsets(1, 0)
	rec = ts.do(t, http.MethodPost, "/api/blockers", CreateBlockerRequest{
		Device: &AnchorRequest{Position: [3]float64{0, 1.6, 0}, Orientation: [4]float64{0, 0, 0, 1}},
	})
	var moved storyboard.BlockerRecord
	testutil.DecodeJSON(t, rec, &moved)
	assert.Equal(t, storyboard.DefaultBlockerName, moved.Name)
	assert.InDeltaSlice(t, []float64{0, 1.6, -1}, moved.Transform.Translation[:], 1e-9)

	rec = ts.do(t, http.MethodPost, "/api/blockers", CreateBlockerRequest{Name: "prop"})
	var pending storyboard.BlockerRecord
	testutil.DecodeJSON(t, rec, &pending)
	assert.True(t, pending.NeedInitialization)

	rec = ts.do(t, http.MethodGet, "/api/blockers", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var list []storyboard.BlockerRecord
	testutil.DecodeJSON(t, rec, &list)
	assert.Len(t, list, 3)

	path := "/api/blockers/" + placed.ID.String()
	rec = ts.do(t, http.MethodPatch, path, map[string]any{"orientationLock": true})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = ts.do(t, http.MethodPatch, path, map[string]any{"rotation": []float64{0, 1, 0, 0}})
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)

	rec = ts.do(t, http.MethodPatch, path, map[string]any{"translation": []float64{2, 0, 2}})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var got storyboard.BlockerRecord
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, [3]float64{2, 0, 2}, got.Transform.Translation)
	assert.True(t, got.OrientationLock)

	rec = ts.do(t, http.MethodPatch, path, map[string]any{"name": " "})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = ts.do(t, http.MethodDelete, path, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
	rec = ts.do(t, http.MethodGet, path, nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestScene(t *testing.T) {
	ts := setupTestServer(t)
	ts.createShot(t, CreateShotRequest{Scene: 3})

	rec := ts.do(t, http.MethodGet, "/api/scene", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var resp SceneResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, SceneResponse{Scene: 1, Scenes: []int{3}}, resp)

	rec = ts.do(t, http.MethodPut, "/api/scene", SetSceneRequest{Scene: 3})
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 3, resp.Scene)
	assert.Equal(t, 3, ts.session.Scene())

	shot := ts.createShot(t, CreateShotRequest{})
	assert.Equal(t, 3, shot.Scene, "new shots land in the current scene")
	assert.Equal(t, storyboard.ShotName("b"), shot.Name)

	rec = ts.do(t, http.MethodPut, "/api/scene", SetSceneRequest{Scene: 0})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	assert.Equal(t, 3, ts.session.Scene())

	rec = ts.do(t, http.MethodDelete, "/api/scene", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestSceneExportImport(t *testing.T) {
	ts := setupTestServer(t)
	ts.createShot(t, CreateShotRequest{Notes: "opening"})
	ts.createShot(t, CreateShotRequest{})
	ts.do(t, http.MethodPost, "/api/blockers", CreateBlockerRequest{Name: "Bob"})

	rec := ts.do(t, http.MethodGet, "/api/scene/export", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "scene-1.json")
	var doc storyboard.SceneDocument
	testutil.DecodeJSON(t, rec, &doc)
	assert.Equal(t, 1, doc.Scene)
	assert.Len(t, doc.Shots, 2)
	assert.Len(t, doc.Blockers, 1)

	doc.Scene = 5
	rec = ts.do(t, http.MethodPost, "/api/scene/import", doc)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var imported storyboard.SceneDocument
	testutil.DecodeJSON(t, rec, &imported)
	assert.Equal(t, 5, imported.Scene)
	require.Len(t, imported.Shots, 2)
	for _, s := range imported.Shots {
		assert.Equal(t, 5, s.Scene)
	}

	rec = ts.do(t, http.MethodGet, "/api/scene/export?scene=5", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	replacement := storyboard.SceneDocument{Scene: 5}
	rec = ts.do(t, http.MethodPost, "/api/scene/import?replace=true", replacement)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec, &imported)
	assert.Empty(t, imported.Shots)
	assert.Empty(t, imported.Blockers)

	rec = ts.do(t, http.MethodPost, "/api/scene/import", storyboard.SceneDocument{})
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	rec = ts.do(t, http.MethodPost, "/api/scene/import?replace=maybe", replacement)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	rec = ts.do(t, http.MethodGet, "/api/scene/export?scene=all", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	rec = ts.do(t, http.MethodGet, "/api/scene/import", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestHandleVersion(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/version", nil)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var info version.Info
	testutil.DecodeJSON(t, rec, &info)
	assert.Equal(t, version.Current(), info)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/shots?scene=2", nil))

	testutil.AssertStatusCode(t, rec.Code, http.StatusTeapot)
	line := buf.String()
	assert.Contains(t, line, statusCodeColor(http.StatusTeapot))
	assert.Contains(t, line, "GET")
	assert.Contains(t, line, "/api/shots?scene=2")
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen},
		{304, colorYellow},
		{500, colorBoldRed},
		{101, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			got := statusCodeColor(tt.code)
			assert.True(t, strings.HasPrefix(got, tt.want))
			assert.Contains(t, got, fmt.Sprint(tt.code))
		})
	}
}

func TestNullable(t *testing.T) {
	v := 1.5
	assert.Equal(t, &v, nullable(1.5))
	b, err := json.Marshal(struct {
		A *float64 `json:"a"`
	}{nullable(math.NaN())})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null}`, string(b))
}
