package globe

import (
	"fmt"
	"slices"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// shape is a drawn primitive. Positions hold the outline, or the single
// position of a point; circles keep their surface center and radius in metres.
type shape struct {
	geom      *drawing.Geometry
	positions []geo.Cartesian3
	center    orb.Point
	radius    float64
}

func newShape(g *drawing.Geometry) *shape {
	s := &shape{geom: g.Clone()}
	if g.Type == drawing.GeometryCircle {
		s.center = g.Center
		s.radius = g.Radius
		return s
	}
	var pts []orb.Point
	switch v := g.Orb().(type) {
	case orb.Point:
		pts = []orb.Point{v}
	case orb.LineString:
		pts = v
	case orb.Polygon:
		if len(v) > 0 {
			pts = v[0]
		}
	}
	for _, p := range pts {
		s.positions = append(s.positions, geo.FromDegrees(p, 0))
	}
	return s
}

// outline converts the positions back to geographic coordinates.
func (s *shape) outline() []orb.Point {
	ret := make([]orb.Point, len(s.positions))
	for i, c := range s.positions {
		ret[i], _ = geo.ToDegrees(c)
	}
	return ret
}

func (m *Map) AddGeometry(g *drawing.Geometry) bool {
	return mapview.Guard(m.log, "add geometry", func() bool {
		if err := g.Validate(); err != nil {
			m.log.Warnf("%s add geometry, %s", m.name, err.Error())
			return false
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.addShapeLocked(g)
		return true
	})
}

func (m *Map) addShapeLocked(g *drawing.Geometry) {
	m.removeShapeLocked(g.ID)
	m.shapes = append(m.shapes, newShape(g))
}

func (m *Map) removeShapeLocked(id string) bool {
	idx := slices.IndexFunc(m.shapes, func(s *shape) bool { return s.geom.ID == id })
	if idx < 0 {
		return false
	}
	m.shapes = slices.Delete(m.shapes, idx, idx+1)
	return true
}

func (m *Map) RemoveShape(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeShapeLocked(id)
}

func (m *Map) RemoveAllDrawings() {
	m.mu.Lock()
	m.shapes = nil
	m.mu.Unlock()
}

// GetDataAtPoint drill-picks the drawn primitives under px and returns
// the first user-drawn one.
func (m *Map) GetDataAtPoint(px mapview.Pixel) []mapview.Hit {
	m.mu.Lock()
	defer m.mu.Unlock()
	ll, ok := m.pixelToLonLatLocked(px)
	if !ok {
		return nil
	}
	pick := geo.FromDegrees(ll, 0)
	tolMeters := pickTolerance * m.metersPerPixelLocked()
	tolDegrees := pickTolerance * m.resolution
	for i := len(m.shapes) - 1; i >= 0; i-- {
		s := m.shapes[i]
		if s.geom.Interaction != drawing.InteractionDraw {
			continue
		}
		if !s.hit(pick, ll, tolMeters, tolDegrees) {
			continue
		}
		return []mapview.Hit{{
			Map:        m.name,
			LayerID:    mapview.DrawingsLayerID,
			FeatureID:  s.geom.ID,
			Coordinate: ll,
		}}
	}
	return nil
}

func (s *shape) hit(pick geo.Cartesian3, ll orb.Point, tolMeters, tolDegrees float64) bool {
	switch s.geom.Type {
	case drawing.GeometryCircle:
		return geo.Distance(s.center, ll) <= s.radius+tolMeters
	case drawing.GeometryPoint:
		return len(s.positions) > 0 && s.positions[0].Distance(pick) <= tolMeters
	case drawing.GeometryLine, drawing.GeometryPolyline:
		return planar.DistanceFrom(orb.LineString(s.outline()), ll) <= tolDegrees
	case drawing.GeometryPolygon, drawing.GeometryBox:
		poly := orb.Polygon{orb.Ring(s.outline())}
		return planar.PolygonContains(poly, ll) || planar.DistanceFrom(poly, ll) <= tolDegrees
	}
	return false
}

func (m *Map) AddDrawHandler(gt drawing.GeometryType, interaction drawing.Interaction, onEnd mapview.DrawEndFunc) bool {
	if m.session.Start(gt, interaction, onEnd) {
		m.log.Debugf("%s draw session replaced by %s", m.name, gt)
	}
	return true
}

func (m *Map) CancelDraw() bool {
	return m.session.Cancel()
}

func (m *Map) DrawSession() (drawing.GeometryType, drawing.Interaction, bool) {
	return m.session.Current()
}

// NativeDrawInput picks the globe surface under each pixel. The radius
// is converted to metres.
func (m *Map) NativeDrawInput(pixels []mapview.Pixel, radiusPx float64) (mapview.DrawInput, error) {
	if len(pixels) == 0 {
		return mapview.DrawInput{}, fmt.Errorf("%w: no pixels", drawing.ErrInvalidGeometry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	in := mapview.DrawInput{Radius: radiusPx * m.metersPerPixelLocked()}
	for _, px := range pixels {
		ll, ok := m.pixelToLonLatLocked(px)
		if !ok {
			return mapview.DrawInput{}, fmt.Errorf("%w: %v", mapview.ErrOffView, px)
		}
		in.Positions = append(in.Positions, geo.FromDegrees(ll, 0))
	}
	return in, nil
}

func (m *Map) CompleteDraw(in mapview.DrawInput) (*drawing.Geometry, error) {
	gt, interaction, onEnd, ok := m.session.Finish()
	if !ok {
		return nil, mapview.ErrNoDrawSession
	}
	coords := make([]orb.Point, len(in.Positions))
	for i, c := range in.Positions {
		coords[i], _ = geo.ToDegrees(c)
	}
	var center orb.Point
	if len(coords) > 0 {
		center = coords[0]
	}
	g, err := mapview.Geographic(gt, interaction, coords, center, in.Radius)
	if err != nil {
		m.session.Resume(gt, interaction, onEnd)
		return nil, err
	}
	m.mu.Lock()
	m.addShapeLocked(g)
	m.mu.Unlock()
	if onEnd != nil {
		onEnd(g.Clone())
	}
	return g, nil
}
