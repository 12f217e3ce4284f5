package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dualview/dualview/mods/fetch"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/dualview/dualview/mods/server"
	"github.com/dualview/dualview/mods/viewer"
	"github.com/gorilla/websocket"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const catalogue = `{"layers":[
	{"id":"bm4326","title":"Blue Marble","type":"basemap","isDefault":true,"handleAs":"xyz_raster",
	 "mappingOptions":{"url":"https://tiles.example.org/4326/{z}/{x}/{y}.png","projection":"EPSG:4326"}},
	{"id":"bm3413","title":"Arctic","type":"basemap","isDefault":true,"handleAs":"xyz_raster",
	 "mappingOptions":{"url":"https://tiles.example.org/3413/{z}/{x}/{y}.png","projection":"EPSG:3413"}},
	{"id":"d1","type":"data","handleAs":"xyz_raster","mappingOptions":{"url":"https://tiles.example.org/d1/{z}/{x}/{y}.png"}},
	{"id":"d2","type":"data","handleAs":"xyz_raster","mappingOptions":{"url":"https://tiles.example.org/d2/{z}/{x}/{y}.png","extents":[120,30,130,40]}}
]}`

func newServer(t *testing.T) (*server.Server, *viewer.Viewer) {
	t.Helper()
	f := fetch.New(fetch.WithTTL(time.Minute))
	t.Cleanup(f.Close)
	v, err := viewer.New(viewer.Config{},
		viewer.WithLogger(logging.NewLog("viewer", io.Discard)),
		viewer.WithFetcher(f),
	)
	require.NoError(t, err)
	_, err = v.Ingest([]byte(catalogue), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	v.InitializeMap(viewer.InitOptions{})
	return server.New(v, server.WithLogger(logging.NewLog("http", io.Discard))), v
}

func call(t *testing.T, h http.Handler, method, path string, body any) (int, gjson.Result) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	rsp := w.Body.Bytes()
	require.True(t, gjson.ValidBytes(rsp), string(rsp))
	return w.Code, gjson.ParseBytes(rsp)
}

func TestEnvelope(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()

	code, rsp := call(t, r, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, rsp.Get("success").Bool())
	require.Equal(t, "success", rsp.Get("reason").String())
	require.NotEmpty(t, rsp.Get("elapse").String())
	require.True(t, rsp.Get("data.version.go").Exists())

	code, rsp = call(t, r, http.MethodPost, "/api/layers/nope/active", map[string]any{"active": true})
	require.Equal(t, http.StatusNotFound, code)
	require.False(t, rsp.Get("success").Bool())
	require.Contains(t, rsp.Get("reason").String(), "layer not found")
}

func TestLayersRoutes(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()

	code, rsp := call(t, r, http.MethodGet, "/api/layers?type=data", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(2), rsp.Get("data.#").Int())

	code, _ = call(t, r, http.MethodGet, "/api/layers?type=overlay", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, rsp = call(t, r, http.MethodPost, "/api/layers/d1/active", map[string]any{"active": true})
	require.Equal(t, http.StatusOK, code)
	require.True(t, rsp.Get("data.isActive").Bool())
	code, _ = call(t, r, http.MethodPost, "/api/layers/d2/active", map[string]any{"active": true})
	require.Equal(t, http.StatusOK, code)

	code, rsp = call(t, r, http.MethodPost, "/api/layers/d1/move", map[string]any{"direction": "top"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "d1", rsp.Get("data.id").String())
	code, _ = call(t, r, http.MethodPost, "/api/layers/d1/move", map[string]any{"direction": "sideways"})
	require.Equal(t, http.StatusBadRequest, code)

	code, rsp = call(t, r, http.MethodPost, "/api/layers/d1/opacity", map[string]any{"opacity": 0.25})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 0.25, rsp.Get("data.opacity").Float())
	code, _ = call(t, r, http.MethodPost, "/api/layers/d1/opacity", map[string]any{"opacity": 2})
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, r, http.MethodPost, "/api/layers/d1/opacity", map[string]any{})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/layers/d2/zoom", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodPost, "/api/layers/nope/zoom", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, rsp = call(t, r, http.MethodPost, "/api/layers/d1/selected", map[string]any{"selected": false})
	require.Equal(t, http.StatusOK, code)
	require.False(t, rsp.Get("data.isSelected").Bool())

	code, rsp = call(t, r, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, `["bm4326","d2","d1","_vector_drawings"]`, rsp.Get("data.2D.layers").Raw)

	code, _ = call(t, r, http.MethodDelete, "/api/layers/d1", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodDelete, "/api/layers/d1", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestIngestAndMerge(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()

	doc := `{"layers":[{"id":"d9","type":"data","handleAs":"xyz_raster","mappingOptions":{"url":"https://tiles.example.org/d9/{z}/{x}/{y}.png"}}]}`
	code, rsp := call(t, r, http.MethodPost, "/api/layers/ingest", map[string]any{
		"config":  json.RawMessage(doc),
		"options": map[string]any{"type": "json"},
	})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Equal(t, int64(1), rsp.Get("data.partials").Int())

	code, rsp = call(t, r, http.MethodGet, "/api/layers/pending", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(1), rsp.Get("data.pending.#").Int())

	code, rsp = call(t, r, http.MethodPost, "/api/layers/merge", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "d9", rsp.Get("data.added.0.id").String())

	xml, err := os.ReadFile(filepath.Join("..", "capabilities", "testdata", "wmts_modis.xml"))
	require.NoError(t, err)
	code, rsp = call(t, r, http.MethodPost, "/api/layers/ingest", map[string]any{
		"config":  string(xml),
		"options": map[string]any{"type": "wmts"},
	})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Greater(t, rsp.Get("data.partials").Int(), int64(0))

	code, _ = call(t, r, http.MethodPost, "/api/layers/ingest", map[string]any{
		"config":  doc,
		"options": map[string]any{"type": "csv"},
	})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestLoadSource(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()

	loc, err := filepath.Abs(filepath.Join("..", "capabilities", "testdata", "wmts_modis.xml"))
	require.NoError(t, err)
	code, rsp := call(t, r, http.MethodPost, "/api/layers/load", map[string]any{
		"options": map[string]any{
			"location": loc,
			"options":  map[string]any{"type": "wmts/xml"},
			"merge":    true,
		},
	})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Greater(t, rsp.Get("data.added.#").Int(), int64(0))

	code, _ = call(t, r, http.MethodPost, "/api/layers/load", map[string]any{"options": map[string]any{}})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestViewRoutes(t *testing.T) {
	s, v := newServer(t)
	r := s.Router()

	code, rsp := call(t, r, http.MethodPost, "/api/view/projection", map[string]any{"code": "EPSG:3413"})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Equal(t, "EPSG:3413", rsp.Get("data.projection").String())
	require.Equal(t, "bm3413", v.Registry().Active(layers.TypeBasemap)[0].ID)

	code, _ = call(t, r, http.MethodPost, "/api/view/projection", map[string]any{"code": "EPSG:1"})
	require.Equal(t, http.StatusBadRequest, code)

	code, rsp = call(t, r, http.MethodPost, "/api/view/mode", map[string]any{"mode": "globe"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "3D", rsp.Get("data.mode").String())
	code, _ = call(t, r, http.MethodPost, "/api/view/mode", map[string]any{"mode": "4D"})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/view/resize", map[string]any{"width": 640, "height": 480})
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodPost, "/api/view/resize", map[string]any{"width": 0, "height": 480})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/view/reset", map[string]any{"targetActive": true})
	require.Equal(t, http.StatusOK, code)

	code, rsp = call(t, r, http.MethodPost, "/api/view/extent", map[string]any{"extent": []float64{120, 30, 130, 40}, "targetActive": true})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Equal(t, "map3d", rsp.Get("data.map").String())
	require.InDelta(t, 125, (rsp.Get("data.extent.0").Float()+rsp.Get("data.extent.2").Float())/2, 1e-6)
	code, _ = call(t, r, http.MethodPost, "/api/view/extent", map[string]any{"extent": []float64{1, 2}})
	require.Equal(t, http.StatusBadRequest, code)

	code, rsp = call(t, r, http.MethodPost, "/api/view/click", map[string]any{"x": 320, "y": 240})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "map3d", rsp.Get("data.map").String())

	code, _ = call(t, r, http.MethodGet, "/api/view/pick?x=320&y=240", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodGet, "/api/view/pick?x=abc", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestDateAndPlotRoutes(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()

	code, rsp := call(t, r, http.MethodPost, "/api/date", map[string]any{"date": "2024-03-08"})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Equal(t, "2024-03-08T00:00:00Z", rsp.Get("data.date").String())
	code, rsp = call(t, r, http.MethodPost, "/api/date/step", map[string]any{"forward": true})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "2024-03-09T00:00:00Z", rsp.Get("data.date").String())
	code, rsp = call(t, r, http.MethodGet, "/api/date", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "2024-03-09T00:00:00Z", rsp.Get("data.date").String())
	code, _ = call(t, r, http.MethodPost, "/api/date", map[string]any{"date": "soon"})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPost, "/api/layers/d1/active", map[string]any{"active": true})
	require.Equal(t, http.StatusOK, code)
	code, rsp = call(t, r, http.MethodPost, "/api/drawings", map[string]any{
		"geometry": map[string]any{"type": "polygon", "coordinates": [][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}},
	})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	id := rsp.Get("data.id").String()

	code, rsp = call(t, r, http.MethodPost, "/api/plot/command", map[string]any{"geometryId": id, "fillDefault": true})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Equal(t, int64(1), rsp.Get("data.generation").Int())
	require.Equal(t, `["d1"]`, rsp.Get("data.info.datasets").Raw)
	require.Equal(t, id, rsp.Get("data.info.geometry.id").String())
	cmd := rsp.Get("data.command").String()
	require.Contains(t, cmd, "plotType = timeseries\r\n")
	require.Contains(t, cmd, `startDate = "2024-03-02T00:00:00.000Z"`)
	require.Contains(t, cmd, `endDate = "2024-03-09T00:00:00.000Z"`)
	require.Contains(t, cmd, `ds = ["d1"]`)

	code, rsp = call(t, r, http.MethodPost, "/api/plot/info", map[string]any{"plotType": "hovmollerlat"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "hovmollerlat", rsp.Get("data.plotType").String())
	code, rsp = call(t, r, http.MethodPost, "/api/plot/command", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(2), rsp.Get("data.generation").Int())
	require.Contains(t, rsp.Get("data.command").String(), "plotType = hovmollerlat")
	code, rsp = call(t, r, http.MethodGet, "/api/plot", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(2), rsp.Get("data.generation").Int())

	code, _ = call(t, r, http.MethodPost, "/api/plot/info", map[string]any{"plotType": "pie"})
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, r, http.MethodPost, "/api/plot/command", map[string]any{"geometryId": "nope"})
	require.Equal(t, http.StatusNotFound, code)
	code, _ = call(t, r, http.MethodPost, "/api/plot/command", map[string]any{"endDate": "later"})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestDrawingRoutes(t *testing.T) {
	s, _ := newServer(t)
	r := s.Router()

	code, rsp := call(t, r, http.MethodPost, "/api/drawings", map[string]any{
		"geometry": map[string]any{"type": "polygon", "coordinates": [][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}},
	})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	id := rsp.Get("data.id").String()
	require.NotEmpty(t, id)
	require.False(t, rsp.Get("data.partiallySynced").Bool())

	code, _ = call(t, r, http.MethodPost, "/api/drawings", map[string]any{
		"geometry": map[string]any{"type": "hexagon", "coordinates": [][]float64{{0, 0}}},
	})
	require.Equal(t, http.StatusBadRequest, code)

	code, rsp = call(t, r, http.MethodGet, "/api/drawings", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "FeatureCollection", rsp.Get("data.type").String())
	require.Equal(t, id, rsp.Get("data.features.0.id").String())

	code, rsp = call(t, r, http.MethodPost, "/api/drawings/"+id+"/retry", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, `[]`, rsp.Get("data.pendingMaps").Raw)

	code, _ = call(t, r, http.MethodDelete, "/api/drawings/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodDelete, "/api/drawings/"+id, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, r, http.MethodDelete, "/api/drawings", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestDrawSession(t *testing.T) {
	s, v := newServer(t)
	r := s.Router()

	code, _ := call(t, r, http.MethodPost, "/api/draw/complete", map[string]any{"points": []map[string]float64{{"x": 10, "y": 10}}})
	require.Equal(t, http.StatusConflict, code)

	code, rsp := call(t, r, http.MethodPost, "/api/draw/start", map[string]any{"geometryType": "line", "interaction": "measure"})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Equal(t, "measure", string(v.State().Interaction))

	code, rsp = call(t, r, http.MethodPost, "/api/draw/complete", map[string]any{
		"points": []map[string]float64{{"x": 400, "y": 384}, {"x": 600, "y": 384}},
	})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.Greater(t, rsp.Get("data.measurement").Float(), 0.0)
	require.Len(t, v.Drawings(), 1)

	// clicks are ignored while a session is armed
	code, rsp = call(t, r, http.MethodPost, "/api/view/click", map[string]any{"x": 10, "y": 10})
	require.Equal(t, http.StatusOK, code)
	require.False(t, rsp.Get("data").Exists())

	code, _ = call(t, r, http.MethodPost, "/api/draw/stop", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodPost, "/api/draw/stop", nil)
	require.Equal(t, http.StatusConflict, code)

	code, _ = call(t, r, http.MethodPost, "/api/draw/start", map[string]any{"geometryType": "star"})
	require.Equal(t, http.StatusBadRequest, code)

	code, rsp = call(t, r, http.MethodPost, "/api/draw/cancel", nil)
	require.Equal(t, http.StatusOK, code)
	require.False(t, rsp.Get("data.cancelled").Bool())
}

func TestAlertsAndEvents(t *testing.T) {
	s, _ := newServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	r := s.Router()
	code, _ := call(t, r, http.MethodPost, "/api/view/projection", map[string]any{"code": "EPSG:3413"})
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodPost, "/api/view/mode", map[string]any{"mode": "3D"})
	require.Equal(t, http.StatusOK, code)

	// the point is outside of the arctic projection so the flat map misses it
	code, rsp := call(t, r, http.MethodPost, "/api/drawings", map[string]any{
		"geometry": map[string]any{"type": "point", "coordinates": [][]float64{{10, -20}}},
	})
	require.Equal(t, http.StatusOK, code, rsp.Raw)
	require.True(t, rsp.Get("data.partiallySynced").Bool())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "GEOMETRY_SYNC_FAILED", gjson.GetBytes(msg, "kind").String())
	require.Equal(t, rsp.Get("data.id").String(), gjson.GetBytes(msg, "geometryId").String())

	code, rsp = call(t, r, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(1), rsp.Get("data.#").Int())

	code, rsp = call(t, r, http.MethodDelete, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, int64(1), rsp.Get("data.dismissed").Int())
}

func TestStatz(t *testing.T) {
	ingested := gometrics.GetOrRegisterCounter("layers.ingested", gometrics.DefaultRegistry).Count()
	s, _ := newServer(t)
	r := s.Router()
	call(t, r, http.MethodGet, "/api/healthz", nil)
	code, rsp := call(t, r, http.MethodGet, "/api/statz", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, rsp.Get("data.http\\.count").Exists())
	require.Equal(t, int64(4), rsp.Get("data.layers\\.ingested").Int()-ingested)
	require.Greater(t, rsp.Get("data.runtime.goroutines").Int(), int64(0))
	require.True(t, rsp.Get("data.runtime.heap_inuse").Exists())
}
