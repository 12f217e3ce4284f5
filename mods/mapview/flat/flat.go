// Package flat is the 2D map backend: a projected plane holding an
// ordered layer stack with the drawings layer pinned on top.
package flat

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/paulmach/orb"
)

// hit tolerance in pixels
const hitTolerance = 3

type nativeLayer struct {
	rec      *layers.Record
	strategy mapview.Strategy
	rank     int
	display  int
	source   string
	extent   geo.Extent
	// footprint of a 3D tileset, drawn in place of the tileset
	footprint orb.Polygon
	visible   bool
	opacity   float64
	fill      float64
	stroke    float64
}

func (nl *nativeLayer) setOpacity(v float64) {
	nl.opacity = layers.ClampOpacity(v)
	nl.fill, nl.stroke = mapview.VectorAlpha(nl.opacity)
}

type feature struct {
	geom *drawing.Geometry
	// native is nil when the geometry lies outside the current projection
	native orb.Geometry
	center orb.Point
	radius float64
}

type Map struct {
	mu     sync.Mutex
	name   string
	log    logging.Log
	opts   mapview.ViewOptions
	active bool

	proj       *geo.Projection
	center     orb.Point
	resolution float64
	width      int
	height     int

	stack    []*nativeLayer
	cache    *mapview.LayerCache[*nativeLayer]
	drawings *nativeLayer
	features []*feature
	stats    mapview.Stats

	session   mapview.DrawSession
	listeners mapview.Listeners
}

var _ mapview.Map = (*Map)(nil)

// New creates a flat map in the container named name.
func New(name string, opts mapview.ViewOptions) (*Map, error) {
	opts = opts.WithDefaults()
	proj, ok := geo.GetPreconfiguredProjection(opts.Projection)
	if !ok {
		return nil, fmt.Errorf("%w: %q", geo.ErrUnknownProjection, opts.Projection)
	}
	m := &Map{
		name:   name,
		log:    opts.Log,
		opts:   opts,
		proj:   proj,
		width:  opts.Width,
		height: opts.Height,
		cache:  mapview.NewLayerCache[*nativeLayer](),
		drawings: &nativeLayer{
			rec:      &layers.Record{ID: mapview.DrawingsLayerID, Type: layers.TypeReference, HandleAs: layers.HandleAsVectorGeoJSON, Opacity: 1},
			strategy: mapview.Strategy{HandleAs: layers.HandleAsVectorGeoJSON, Kind: mapview.KindVector},
			rank:     layers.TypeReference.Rank(),
			visible:  true,
		},
	}
	if m.log == nil {
		m.log = logging.GetLog("mapview/flat")
	}
	m.drawings.setOpacity(1)
	m.fitLocked(proj.Extent)
	return m, nil
}

func (m *Map) Name() string { return m.name }

func (m *Map) Is3D() bool { return false }

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
	ret.Features = len(m.features)
	ret.Zoom = geo.ZoomForResolution(geo.MaxResolution(m.proj.Extent), m.resolution)
	return ret
}

func (m *Map) Projection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proj.Code
}

func (m *Map) AddEventListener(ev mapview.Event, cb mapview.Listener) {
	m.listeners.Add(ev, cb)
}

// SetProjection switches the view to code. Every stacked layer and drawn
// feature is re-derived for the new projection; nothing changes when
// any layer cannot be.
func (m *Map) SetProjection(code string) bool {
	return mapview.Guard(m.log, "set projection", func() bool {
		proj, ok := geo.GetPreconfiguredProjection(code)
		if !ok {
			m.log.Warnf("set projection %q, unknown projection", code)
			return false
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if proj == m.proj {
			return true
		}
		stack := make([]*nativeLayer, 0, len(m.stack))
		created := 0
		for _, nl := range m.stack {
			next, isNew, err := m.cache.GetOrCreate(nl.rec.ID, proj.Code, func() (*nativeLayer, error) {
				return newLayer(nl.rec, proj)
			})
			if err != nil {
				m.log.Warnf("set projection %s, layer %q, %s", proj.Code, nl.rec.ID, err.Error())
				return false
			}
			if isNew {
				created++
			}
			next.display = nl.display
			next.visible = nl.visible
			next.setOpacity(nl.opacity)
			stack = append(stack, next)
		}
		m.stats.LayersCreated += created
		m.stack = stack
		m.proj = proj
		for _, f := range m.features {
			m.deriveLocked(f)
		}
		m.fitLocked(proj.Extent)
		m.log.Debugf("%s projection %s", m.name, proj.Code)
		return true
	})
}

// deriveLocked computes the native shape of f in the current projection.
func (m *Map) deriveLocked(f *feature) {
	f.native = nil
	if f.geom.Type == drawing.GeometryCircle {
		c, err := m.proj.FromLonLat(f.geom.Center)
		if err != nil {
			return
		}
		f.center = c
		f.radius = f.geom.Radius / m.proj.MetersPerUnit()
		f.native = c
		return
	}
	native, err := projectGeometry(f.geom.Orb(), m.proj.FromLonLat)
	if err != nil {
		return
	}
	f.native = native
}

// projectGeometry applies fn to every vertex of g.
func projectGeometry(g orb.Geometry, fn func(orb.Point) (orb.Point, error)) (orb.Geometry, error) {
	switch v := g.(type) {
	case orb.Point:
		return fn(v)
	case orb.LineString:
		ret := make(orb.LineString, len(v))
		for i, p := range v {
			np, err := fn(p)
			if err != nil {
				return nil, err
			}
			ret[i] = np
		}
		return ret, nil
	case orb.Polygon:
		ret := make(orb.Polygon, len(v))
		for i, ring := range v {
			ls, err := projectGeometry(orb.LineString(ring), fn)
			if err != nil {
				return nil, err
			}
			ret[i] = orb.Ring(ls.(orb.LineString))
		}
		return ret, nil
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

func (m *Map) ResetView() {
	m.mu.Lock()
	m.fitLocked(m.proj.Extent)
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

// SetExtent fits the view to ext given in proj, never zooming in past
// the configured maximum zoom.
func (m *Map) SetExtent(ext geo.Extent, proj string) bool {
	m.mu.Lock()
	native, err := geo.TransformExtent(ext, proj, m.proj.Code)
	if err != nil {
		m.mu.Unlock()
		m.log.Warnf("set extent %v %s, %s", ext, proj, err.Error())
		return false
	}
	m.fitLocked(native)
	m.mu.Unlock()
	m.listeners.Fire(mapview.EventMoveEnd)
	return true
}

func (m *Map) fitLocked(ext geo.Extent) {
	m.center = ext.Center()
	res := math.Max(ext.Width()/float64(m.width), ext.Height()/float64(m.height))
	minRes := geo.ResolutionForZoom(geo.MaxResolution(m.proj.Extent), float64(m.opts.MaxZoom))
	m.resolution = math.Max(res, minRes)
}

// Pan moves the view by a pixel offset.
func (m *Map) Pan(dx, dy float64) {
	m.listeners.Fire(mapview.EventMoveStart)
	m.mu.Lock()
	m.center = orb.Point{m.center[0] + dx*m.resolution, m.center[1] - dy*m.resolution}
	m.mu.Unlock()
	m.listeners.Fire(mapview.EventMoveEnd)
}

func (m *Map) pixelToNativeLocked(px mapview.Pixel) orb.Point {
	return orb.Point{
		m.center[0] + (px.X-float64(m.width)/2)*m.resolution,
		m.center[1] - (px.Y-float64(m.height)/2)*m.resolution,
	}
}

func (m *Map) nativeToPixelLocked(pt orb.Point) mapview.Pixel {
	return mapview.Pixel{
		X: float64(m.width)/2 + (pt[0]-m.center[0])/m.resolution,
		Y: float64(m.height)/2 - (pt[1]-m.center[1])/m.resolution,
	}
}

func (m *Map) PixelToLatLon(px mapview.Pixel) (orb.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ll, err := m.proj.ToLonLat(m.pixelToNativeLocked(px))
	return ll, err == nil
}

func (m *Map) LatLonToPixel(pt orb.Point) (mapview.Pixel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	native, err := m.proj.FromLonLat(pt)
	if err != nil {
		return mapview.Pixel{}, false
	}
	return m.nativeToPixelLocked(native), true
}

// ViewExtent returns the visible extent in the view projection.
func (m *Map) ViewExtent() (geo.Extent, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hw := float64(m.width) / 2 * m.resolution
	hh := float64(m.height) / 2 * m.resolution
	return geo.Extent{m.center[0] - hw, m.center[1] - hh, m.center[0] + hw, m.center[1] + hh}, m.proj.Code
}

func (m *Map) indexLocked(id string) int {
	return slices.IndexFunc(m.stack, func(nl *nativeLayer) bool { return nl.rec.ID == id })
}
