// Package drawing defines user-drawn geometry records and the area
// selection registry holding their canonical geographic copies.
package drawing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dualview/dualview/mods/geo"
	"github.com/gofrs/uuid/v5"
	"github.com/paulmach/orb"
)

var ErrInvalidGeometry = errors.New("invalid geometry")

type GeometryType string

const (
	GeometryPoint    GeometryType = "point"
	GeometryLine     GeometryType = "line"
	GeometryPolyline GeometryType = "polyline"
	GeometryPolygon  GeometryType = "polygon"
	GeometryBox      GeometryType = "box"
	GeometryCircle   GeometryType = "circle"
)

func ParseGeometryType(s string) (GeometryType, error) {
	switch t := GeometryType(strings.ToLower(s)); t {
	case GeometryPoint, GeometryLine, GeometryPolyline, GeometryPolygon, GeometryBox, GeometryCircle:
		return t, nil
	case "linestring":
		return GeometryLine, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidGeometry, s)
	}
}

// Interaction is the tool a geometry was drawn with.
type Interaction string

const (
	InteractionDraw    Interaction = "draw"
	InteractionMeasure Interaction = "measure"
)

func ParseInteraction(s string) (Interaction, error) {
	switch i := Interaction(strings.ToLower(s)); i {
	case InteractionDraw, InteractionMeasure:
		return i, nil
	case "":
		return InteractionDraw, nil
	default:
		return "", fmt.Errorf("unknown interaction %q", s)
	}
}

type CoordinateSpace string

const (
	SpaceGeographic CoordinateSpace = "geographic"
	SpaceNative     CoordinateSpace = "native"
)

// Geometry is a user-drawn shape. The canonical copy is geographic
// (lon/lat degrees); backends derive their native copies from it.
type Geometry struct {
	ID              string          `json:"id" yaml:"id"`
	Type            GeometryType    `json:"type" yaml:"type"`
	CoordinateSpace CoordinateSpace `json:"coordinateSpace" yaml:"coordinateSpace"`
	Proj            string          `json:"proj" yaml:"proj"`
	Coordinates     []orb.Point     `json:"coordinates,omitempty" yaml:"coordinates,omitempty"`
	Center          orb.Point       `json:"center,omitzero" yaml:"center,omitempty"`
	// Radius of a circle in metres.
	Radius float64 `json:"radius,omitempty" yaml:"radius,omitempty"`
	// RadiusDegrees is Radius in geographic units.
	RadiusDegrees float64     `json:"radiusDegrees,omitempty" yaml:"radiusDegrees,omitempty"`
	BBox          *geo.Extent `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Interaction   Interaction `json:"interaction" yaml:"interaction"`
	Geodesic      bool        `json:"geodesic,omitempty" yaml:"geodesic,omitempty"`
	Measurement   float64     `json:"measurement,omitempty" yaml:"measurement,omitempty"`
	// PartiallySynced is set while the geometry is missing from some maps.
	PartiallySynced bool      `json:"partiallySynced" yaml:"partiallySynced"`
	PendingMaps     []string  `json:"pendingMaps,omitempty" yaml:"pendingMaps,omitempty"`
	CreatedAt       time.Time `json:"createdAt" yaml:"createdAt"`
}

var idgen = uuid.NewGen()

// NewID returns a fresh geometry id.
func NewID() string {
	id, err := idgen.NewV4()
	if err != nil {
		return fmt.Sprintf("geom-%d", time.Now().UnixNano())
	}
	return id.String()
}

func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	ret := *g
	ret.Coordinates = append([]orb.Point(nil), g.Coordinates...)
	ret.PendingMaps = append([]string(nil), g.PendingMaps...)
	if g.BBox != nil {
		bbox := *g.BBox
		ret.BBox = &bbox
	}
	return &ret
}

// Validate checks that the geometry has the coordinates its type needs.
func (g *Geometry) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidGeometry)
	}
	n := len(g.Coordinates)
	switch g.Type {
	case GeometryPoint:
		if n != 1 {
			return fmt.Errorf("%w: point needs 1 coordinate, got %d", ErrInvalidGeometry, n)
		}
	case GeometryLine, GeometryPolyline:
		if n < 2 {
			return fmt.Errorf("%w: %s needs 2 coordinates, got %d", ErrInvalidGeometry, g.Type, n)
		}
	case GeometryPolygon:
		if n < 3 {
			return fmt.Errorf("%w: polygon needs 3 coordinates, got %d", ErrInvalidGeometry, n)
		}
	case GeometryBox:
		if n < 2 && g.BBox == nil {
			return fmt.Errorf("%w: box needs 2 corners", ErrInvalidGeometry)
		}
	case GeometryCircle:
		if g.Radius <= 0 {
			return fmt.Errorf("%w: circle radius %v", ErrInvalidGeometry, g.Radius)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidGeometry, g.Type)
	}
	return nil
}

// Standardize returns the canonical geographic form of g: coordinates
// constrained to valid lon/lat, circle radius also given in degrees and
// box corners reduced to [minLon, minLat, maxLon, maxLat].
func Standardize(g *Geometry) (*Geometry, error) {
	ret := g.Clone()
	if ret.CoordinateSpace != "" && ret.CoordinateSpace != SpaceGeographic {
		return nil, fmt.Errorf("%w: %s coordinates", ErrInvalidGeometry, ret.CoordinateSpace)
	}
	ret.CoordinateSpace = SpaceGeographic
	ret.Proj = geo.LatLonCode
	if ret.Interaction == "" {
		ret.Interaction = InteractionDraw
	}
	for i, c := range ret.Coordinates {
		ret.Coordinates[i] = geo.ConstrainCoordinates(c)
	}
	switch ret.Type {
	case GeometryCircle:
		ret.Center = geo.ConstrainCoordinates(ret.Center)
		if ret.Radius <= 0 && ret.RadiusDegrees > 0 {
			ret.Radius = geo.DegreesToRadius(ret.RadiusDegrees)
		}
		ret.RadiusDegrees = geo.RadiusToDegrees(ret.Radius)
	case GeometryBox:
		if ret.BBox == nil {
			ext, err := geo.BoundingBox(ret.Coordinates)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrInvalidGeometry, err.Error())
			}
			ret.BBox = &ext
		}
		ret.Coordinates = []orb.Point{{ret.BBox[0], ret.BBox[1]}, {ret.BBox[2], ret.BBox[3]}}
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now()
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	if ret.Interaction == InteractionMeasure {
		ret.Measurement = geo.Measure(ret.Orb())
	}
	return ret, nil
}

// Orb returns the geographic shape of the geometry. Circles are
// approximated by a 64-gon.
func (g *Geometry) Orb() orb.Geometry {
	switch g.Type {
	case GeometryPoint:
		if len(g.Coordinates) > 0 {
			return g.Coordinates[0]
		}
		return orb.Point{}
	case GeometryLine, GeometryPolyline:
		return orb.LineString(g.Coordinates)
	case GeometryPolygon:
		ring := orb.Ring(append([]orb.Point(nil), g.Coordinates...))
		if len(ring) > 0 && !ring.Closed() {
			ring = append(ring, ring[0])
		}
		return orb.Polygon{ring}
	case GeometryBox:
		if g.BBox != nil {
			return g.BBox.Bound().ToPolygon()
		}
		return orb.MultiPoint(g.Coordinates).Bound().ToPolygon()
	case GeometryCircle:
		return geo.CirclePolygon(g.Center, g.Radius, 64)
	default:
		return orb.Collection{}
	}
}
