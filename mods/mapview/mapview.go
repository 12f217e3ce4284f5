// Package mapview is the contract shared by the flat (2D) and globe (3D)
// map backends. The viewer talks to backends only through Map.
package mapview

import (
	"errors"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/paulmach/orb"
)

// DrawingsLayerID is the vector layer holding user-drawn features. It is
// always the topmost layer of a map.
const DrawingsLayerID = "_vector_drawings"

var (
	ErrNoDrawSession = errors.New("no draw session")
	ErrOffView       = errors.New("pixel outside of view")
)

type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ViewOptions configure a map when it is created.
type ViewOptions struct {
	Width      int
	Height     int
	Projection string
	// DefaultExtent is the geographic box the globe returns to on reset.
	DefaultExtent   geo.Extent
	MaxZoom         int
	MinZoomDistance float64
	Log             logging.Log
}

func (vo ViewOptions) WithDefaults() ViewOptions {
	if vo.Width <= 0 {
		vo.Width = 1024
	}
	if vo.Height <= 0 {
		vo.Height = 768
	}
	if vo.Projection == "" {
		vo.Projection = geo.LatLonCode
	}
	if vo.DefaultExtent == (geo.Extent{}) {
		vo.DefaultExtent = geo.WorldExtent
	}
	if vo.MaxZoom <= 0 {
		vo.MaxZoom = 12
	}
	if vo.MinZoomDistance <= 0 {
		vo.MinZoomDistance = 500
	}
	return vo
}

// Hit is one feature found under a pixel.
type Hit struct {
	Map        string    `json:"map"`
	LayerID    string    `json:"layerId"`
	FeatureID  string    `json:"featureId"`
	Coordinate orb.Point `json:"coordinate"`
}

// DrawInput is a native draw-end event. Coordinates are in the flat map
// projection, Positions are earth-centred cartesian positions on the
// globe. Radius is in native units: projection units on the flat map,
// metres on the globe.
type DrawInput struct {
	Coordinates []orb.Point      `json:"coordinates,omitempty"`
	Positions   []geo.Cartesian3 `json:"positions,omitempty"`
	Radius      float64          `json:"radius,omitempty"`
}

// DrawEndFunc receives the geographic record of a finished drawing.
type DrawEndFunc func(g *drawing.Geometry)

// LayerState describes the native layer of a record.
type LayerState struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Visible     bool       `json:"visible"`
	Index       int        `json:"index"`
	Opacity     float64    `json:"opacity"`
	FillAlpha   float64    `json:"fillAlpha"`
	StrokeAlpha float64    `json:"strokeAlpha"`
	Extent      geo.Extent `json:"extent"`
	Source      string     `json:"source"`
}

// Stats counts native operations, so callers can tell reorders from
// rebuilds. Zoom is the current level in the backend's tile pyramid.
type Stats struct {
	LayersCreated int     `json:"layersCreated"`
	Reorders      int     `json:"reorders"`
	Features      int     `json:"features"`
	Zoom          float64 `json:"zoom"`
}

type Map interface {
	Name() string
	Is3D() bool
	IsActive() bool
	SetActive(active bool)

	CreateLayer(rec *layers.Record) bool
	ActivateLayer(rec *layers.Record, active bool) bool
	MoveLayer(id string, dir layers.Direction) bool
	SetLayerOpacity(id string, opacity float64) bool
	RemoveLayer(id string) bool
	LayerOrder() []string
	LayerState(id string) (LayerState, bool)
	Stats() Stats

	AddGeometry(g *drawing.Geometry) bool
	RemoveShape(id string) bool
	RemoveAllDrawings()
	GetDataAtPoint(px Pixel) []Hit

	AddDrawHandler(gt drawing.GeometryType, interaction drawing.Interaction, onEnd DrawEndFunc) bool
	NativeDrawInput(pixels []Pixel, radiusPx float64) (DrawInput, error)
	CompleteDraw(in DrawInput) (*drawing.Geometry, error)
	CancelDraw() bool
	DrawSession() (drawing.GeometryType, drawing.Interaction, bool)

	SetProjection(code string) bool
	Projection() string
	ResetView()
	Resize(width, height int)
	SetExtent(ext geo.Extent, proj string) bool
	Pan(dx, dy float64)
	PixelToLatLon(px Pixel) (orb.Point, bool)
	LatLonToPixel(pt orb.Point) (Pixel, bool)
	ViewExtent() (geo.Extent, string)
	AddEventListener(ev Event, cb Listener)
}

// VectorAlpha splits a layer opacity into fill and stroke alpha. Fills
// fade twice as fast so outlines stay visible at low opacity.
func VectorAlpha(opacity float64) (fill, stroke float64) {
	v := layers.ClampOpacity(opacity)
	return v * 0.5, v
}

// Guard runs fn and turns a panic of the native model into false plus a
// logged warning.
func Guard(log logging.Log, op string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("%s panic, %v", op, r)
			ok = false
		}
	}()
	return fn()
}

// Geographic returns a standardized geographic record built from the
// draw session's type and the given geographic shape.
func Geographic(gt drawing.GeometryType, interaction drawing.Interaction, coords []orb.Point, center orb.Point, radiusM float64) (*drawing.Geometry, error) {
	g := &drawing.Geometry{
		ID:          drawing.NewID(),
		Type:        gt,
		Interaction: interaction,
		Coordinates: coords,
	}
	if gt == drawing.GeometryCircle {
		g.Center = center
		g.Radius = radiusM
		g.Coordinates = nil
	}
	return drawing.Standardize(g)
}
