package flat

import (
	"fmt"
	"slices"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// AddGeometry draws a geographic record on the drawings layer. A record
// with the same id is replaced.
func (m *Map) AddGeometry(g *drawing.Geometry) bool {
	return mapview.Guard(m.log, "add geometry", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.addFeatureLocked(g)
	})
}

func (m *Map) addFeatureLocked(g *drawing.Geometry) bool {
	f := &feature{geom: g.Clone()}
	m.deriveLocked(f)
	if f.native == nil {
		m.log.Warnf("%s add geometry %q, outside of %s", m.name, g.ID, m.proj.Code)
		return false
	}
	m.removeFeatureLocked(g.ID)
	m.features = append(m.features, f)
	return true
}

func (m *Map) removeFeatureLocked(id string) bool {
	idx := slices.IndexFunc(m.features, func(f *feature) bool { return f.geom.ID == id })
	if idx < 0 {
		return false
	}
	m.features = slices.Delete(m.features, idx, idx+1)
	return true
}

// RemoveShape erases a drawn feature and reports whether it was found.
func (m *Map) RemoveShape(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeFeatureLocked(id)
}

func (m *Map) RemoveAllDrawings() {
	m.mu.Lock()
	m.features = nil
	m.mu.Unlock()
}

// GetDataAtPoint returns the topmost drawn feature within the hit
// tolerance of px. Measurements are not selectable.
func (m *Map) GetDataAtPoint(px mapview.Pixel) []mapview.Hit {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt := m.pixelToNativeLocked(px)
	tol := hitTolerance * m.resolution
	for i := len(m.features) - 1; i >= 0; i-- {
		f := m.features[i]
		if f.native == nil || f.geom.Interaction != drawing.InteractionDraw {
			continue
		}
		if !hitFeature(f, pt, tol) {
			continue
		}
		coord, err := m.proj.ToLonLat(pt)
		if err != nil {
			coord = pt
		}
		return []mapview.Hit{{
			Map:        m.name,
			LayerID:    mapview.DrawingsLayerID,
			FeatureID:  f.geom.ID,
			Coordinate: coord,
		}}
	}
	return nil
}

func hitFeature(f *feature, pt orb.Point, tol float64) bool {
	if f.geom.Type == drawing.GeometryCircle {
		return planar.Distance(f.center, pt) <= f.radius+tol
	}
	switch g := f.native.(type) {
	case orb.Point:
		return planar.Distance(g, pt) <= tol
	case orb.LineString:
		return planar.DistanceFrom(g, pt) <= tol
	case orb.Polygon:
		return planar.PolygonContains(g, pt) || planar.DistanceFrom(g, pt) <= tol
	}
	return false
}

// AddDrawHandler starts a draw session, cancelling a running one.
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

// NativeDrawInput converts canvas pixels into a draw-end event. The
// radius is only used by circles.
func (m *Map) NativeDrawInput(pixels []mapview.Pixel, radiusPx float64) (mapview.DrawInput, error) {
	if len(pixels) == 0 {
		return mapview.DrawInput{}, fmt.Errorf("%w: no pixels", drawing.ErrInvalidGeometry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	in := mapview.DrawInput{Radius: radiusPx * m.resolution}
	for _, px := range pixels {
		in.Coordinates = append(in.Coordinates, m.pixelToNativeLocked(px))
	}
	return in, nil
}

// CompleteDraw finishes the running session with native coordinates,
// draws the result and passes its geographic record to the session
// callback.
func (m *Map) CompleteDraw(in mapview.DrawInput) (*drawing.Geometry, error) {
	gt, interaction, onEnd, ok := m.session.Finish()
	if !ok {
		return nil, mapview.ErrNoDrawSession
	}
	g, err := m.finishDraw(gt, interaction, in)
	if err != nil {
		// a rejected drawing keeps the session open for the next attempt
		m.session.Resume(gt, interaction, onEnd)
		return nil, err
	}
	if onEnd != nil {
		onEnd(g.Clone())
	}
	return g, nil
}

func (m *Map) finishDraw(gt drawing.GeometryType, interaction drawing.Interaction, in mapview.DrawInput) (*drawing.Geometry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coords := make([]orb.Point, 0, len(in.Coordinates))
	for _, c := range in.Coordinates {
		ll, err := m.proj.ToLonLat(c)
		if err != nil {
			return nil, err
		}
		coords = append(coords, ll)
	}
	var center orb.Point
	if len(coords) > 0 {
		center = coords[0]
	}
	g, err := mapview.Geographic(gt, interaction, coords, center, in.Radius*m.proj.MetersPerUnit())
	if err != nil {
		return nil, err
	}
	if !m.addFeatureLocked(g) {
		return nil, fmt.Errorf("%w: %s outside of %s", drawing.ErrInvalidGeometry, g.ID, m.proj.Code)
	}
	return g, nil
}
