// Package globe is the 3D map backend. Imagery, vector data sources and
// 3D tilesets live in separate collections; drawn shapes are primitives
// held in earth-centred earth-fixed coordinates above all of them.
package globe

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/paulmach/orb"
)

// drill pick tolerance in pixels
const pickTolerance = 5

type globeLayer struct {
	rec      *layers.Record
	strategy mapview.Strategy
	rank     int
	display  int
	source   string
	extent   geo.Extent
	visible  bool
	opacity  float64
	fill     float64
	stroke   float64
}

func (gl *globeLayer) setOpacity(v float64) {
	gl.opacity = layers.ClampOpacity(v)
	gl.fill, gl.stroke = mapview.VectorAlpha(gl.opacity)
}

type Map struct {
	mu     sync.Mutex
	name   string
	log    logging.Log
	opts   mapview.ViewOptions
	active bool

	// view rectangle center and degrees per pixel
	center     orb.Point
	resolution float64
	width      int
	height     int

	imagery     []*globeLayer
	dataSources []*globeLayer
	tilesets    []*globeLayer
	cache       *mapview.LayerCache[*globeLayer]
	drawings    *globeLayer
	shapes      []*shape
	stats       mapview.Stats

	session   mapview.DrawSession
	listeners mapview.Listeners
}

var _ mapview.Map = (*Map)(nil)

func New(name string, opts mapview.ViewOptions) (*Map, error) {
	opts = opts.WithDefaults()
	if err := opts.DefaultExtent.Validate(); err != nil {
		return nil, fmt.Errorf("default extent, %w", err)
	}
	m := &Map{
		name:   name,
		log:    opts.Log,
		opts:   opts,
		width:  opts.Width,
		height: opts.Height,
		cache:  mapview.NewLayerCache[*globeLayer](),
		drawings: &globeLayer{
			rec:      &layers.Record{ID: mapview.DrawingsLayerID, Type: layers.TypeReference, Opacity: 1},
			strategy: mapview.Strategy{Kind: mapview.KindVector},
			rank:     layers.TypeReference.Rank(),
			visible:  true,
		},
	}
	if m.log == nil {
		m.log = logging.GetLog("mapview/globe")
	}
	m.drawings.setOpacity(1)
	m.fitLocked(opts.DefaultExtent)
	return m, nil
}

func (m *Map) Name() string { return m.name }

func (m *Map) Is3D() bool { return true }

func (m *Map) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Map) SetActive(active bool) {
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()
}

func (m *Map) Stats() mapview.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := m.stats
	ret.Features = len(m.shapes)
	ret.Zoom = float64(geo.Zoom(m.metersPerPixelLocked()))
	return ret
}

func (m *Map) AddEventListener(ev mapview.Event, cb mapview.Listener) {
	m.listeners.Add(ev, cb)
}

// SetProjection is not supported by the globe.
func (m *Map) SetProjection(code string) bool {
	m.log.Debugf("%s set projection %q, not supported", m.name, code)
	return false
}

// Projection reports the geographic projection used for the view
// rectangle.
func (m *Map) Projection() string { return geo.LatLonCode }

// ResetView flies back to the configured default box.
func (m *Map) ResetView() {
	m.mu.Lock()
	m.fitLocked(m.opts.DefaultExtent)
	m.mu.Unlock()
	m.listeners.Fire(mapview.EventMoveEnd)
}

func (m *Map) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.mu.Lock()
	m.width, m.height = width, height
	m.mu.Unlock()
}

func (m *Map) SetExtent(ext geo.Extent, proj string) bool {
	ll, err := geo.TransformExtent(ext, proj, geo.LatLonCode)
	if err != nil {
		m.log.Warnf("%s set extent %v %s, %s", m.name, ext, proj, err.Error())
		return false
	}
	m.mu.Lock()
	m.fitLocked(ll)
	m.mu.Unlock()
	m.listeners.Fire(mapview.EventMoveEnd)
	return true
}

// fitLocked shows ext, keeping the camera at least the minimum zoom
// distance away from the surface.
func (m *Map) fitLocked(ext geo.Extent) {
	m.center = ext.Center()
	res := math.Max(ext.Width()/float64(m.width), ext.Height()/float64(m.height))
	minRes := m.opts.MinZoomDistance / geo.MetersPerUnit[geo.UnitsDegrees] / float64(m.height)
	m.resolution = math.Max(res, minRes)
}

func (m *Map) Pan(dx, dy float64) {
	m.listeners.Fire(mapview.EventMoveStart)
	m.mu.Lock()
	m.center = orb.Point{m.center[0] + dx*m.resolution, m.center[1] - dy*m.resolution}
	m.mu.Unlock()
	m.listeners.Fire(mapview.EventMoveEnd)
}

func (m *Map) pixelToLonLatLocked(px mapview.Pixel) (orb.Point, bool) {
	pt := orb.Point{
		m.center[0] + (px.X-float64(m.width)/2)*m.resolution,
		m.center[1] - (px.Y-float64(m.height)/2)*m.resolution,
	}
	if pt[1] < -90 || pt[1] > 90 {
		return pt, false
	}
	return geo.ConstrainCoordinates(pt), true
}

func (m *Map) PixelToLatLon(px mapview.Pixel) (orb.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pixelToLonLatLocked(px)
}

func (m *Map) LatLonToPixel(pt orb.Point) (mapview.Pixel, bool) {
	if pt[1] < -90 || pt[1] > 90 {
		return mapview.Pixel{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return mapview.Pixel{
		X: float64(m.width)/2 + (pt[0]-m.center[0])/m.resolution,
		Y: float64(m.height)/2 - (pt[1]-m.center[1])/m.resolution,
	}, true
}

func (m *Map) ViewExtent() (geo.Extent, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hw := float64(m.width) / 2 * m.resolution
	hh := float64(m.height) / 2 * m.resolution
	return geo.Extent{m.center[0] - hw, m.center[1] - hh, m.center[0] + hw, m.center[1] + hh}, geo.LatLonCode
}

// metersPerPixel at the view center.
func (m *Map) metersPerPixelLocked() float64 {
	return m.resolution * geo.MetersPerUnit[geo.UnitsDegrees]
}

func describeSource(rec *layers.Record) string {
	mo := rec.MappingOptions
	parts := []string{string(rec.HandleAs), mo.URL}
	if mo.Layer != "" {
		parts = append(parts, "layer="+mo.Layer)
	}
	if fn := mo.URLFunctions["globe"]; fn != "" {
		parts = append(parts, "urlFunction="+fn)
	}
	return strings.Join(parts, " ")
}

func newLayer(rec *layers.Record) (*globeLayer, error) {
	strategy, err := mapview.ResolveStrategy(rec)
	if err != nil {
		return nil, err
	}
	gl := &globeLayer{
		rec:      rec.Clone(),
		strategy: strategy,
		rank:     rec.Type.Rank(),
		display:  rec.DisplayIndex,
		source:   describeSource(rec),
		extent:   geo.WorldExtent,
	}
	if gl.rank < 0 {
		return nil, fmt.Errorf("layer %q, invalid type %q", rec.ID, rec.Type)
	}
	if ext, code, err := rec.MappingOptions.Extent(); err == nil {
		if ll, err := geo.TransformExtent(ext, code, geo.LatLonCode); err == nil {
			gl.extent = ll
		}
	}
	gl.setOpacity(rec.Opacity)
	return gl, nil
}

func (m *Map) collection(kind mapview.Kind) *[]*globeLayer {
	switch kind {
	case mapview.KindImagery:
		return &m.imagery
	case mapview.KindTileset:
		return &m.tilesets
	default:
		return &m.dataSources
	}
}

// locateLocked finds the collection and index of a shown layer.
func (m *Map) locateLocked(id string) (*[]*globeLayer, int) {
	for _, coll := range []*[]*globeLayer{&m.imagery, &m.dataSources, &m.tilesets} {
		if idx := slices.IndexFunc(*coll, func(gl *globeLayer) bool { return gl.rec.ID == id }); idx >= 0 {
			return coll, idx
		}
	}
	return nil, -1
}
