// Package geo holds the stateless coordinate utilities shared by the layer
// registry, both map backends and the viewer: projection lookup, extent
// reprojection, earth-centred cartesian conversion and geometry
// normalization.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	ErrUnknownProjection = errors.New("unknown projection")
	ErrOutOfDomain       = errors.New("coordinate out of projection domain")
	ErrInvalidExtent     = errors.New("invalid extent")
)

// LatLonCode is the code of the geographic projection every canonical
// geometry is stored in.
const LatLonCode = "EPSG:4326"

// Extent is [minX, minY, maxX, maxY] in the units of some projection.
type Extent [4]float64

// WorldExtent is the whole earth in geographic degrees.
var WorldExtent = Extent{-180, -90, 180, 90}

func ExtentFromBound(b orb.Bound) Extent {
	return Extent{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// ExtentFromSlice accepts the []float64 and []any shapes that arrive from
// decoded JSON layer options.
func ExtentFromSlice(v any) (Extent, error) {
	var ret Extent
	switch arr := v.(type) {
	case Extent:
		return arr, nil
	case []float64:
		if len(arr) != 4 {
			return ret, fmt.Errorf("%w: %d values", ErrInvalidExtent, len(arr))
		}
		copy(ret[:], arr)
	case []any:
		if len(arr) != 4 {
			return ret, fmt.Errorf("%w: %d values", ErrInvalidExtent, len(arr))
		}
		for i, e := range arr {
			switch n := e.(type) {
			case float64:
				ret[i] = n
			case int:
				ret[i] = float64(n)
			default:
				return ret, fmt.Errorf("%w: element %d is %T", ErrInvalidExtent, i, e)
			}
		}
	default:
		return ret, fmt.Errorf("%w: %T", ErrInvalidExtent, v)
	}
	return ret, ret.Validate()
}

func (e Extent) Validate() error {
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrInvalidExtent, e)
		}
	}
	if e[0] > e[2] || e[1] > e[3] {
		return fmt.Errorf("%w: min greater than max %v", ErrInvalidExtent, e)
	}
	return nil
}

func (e Extent) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e[0], e[1]}, Max: orb.Point{e[2], e[3]}}
}

func (e Extent) Center() orb.Point {
	return orb.Point{(e[0] + e[2]) / 2, (e[1] + e[3]) / 2}
}

func (e Extent) Width() float64  { return e[2] - e[0] }
func (e Extent) Height() float64 { return e[3] - e[1] }

func (e Extent) Slice() []float64 {
	return []float64{e[0], e[1], e[2], e[3]}
}

// Intersect returns the overlap of e and o and whether there is one.
func (e Extent) Intersect(o Extent) (Extent, bool) {
	ret := Extent{
		math.Max(e[0], o[0]), math.Max(e[1], o[1]),
		math.Min(e[2], o[2]), math.Min(e[3], o[3]),
	}
	if ret[0] > ret[2] || ret[1] > ret[3] {
		return Extent{}, false
	}
	return ret, true
}

// BoundingBox returns the extent enclosing all points.
func BoundingBox(points []orb.Point) (Extent, error) {
	if len(points) == 0 {
		return Extent{}, fmt.Errorf("%w: no points", ErrInvalidExtent)
	}
	return ExtentFromBound(orb.MultiPoint(points).Bound()), nil
}

// ConstrainCoordinates wraps longitude into [-180, 180] and clamps
// latitude into [-90, 90].
func ConstrainCoordinates(p orb.Point) orb.Point {
	lon := math.Mod(p[0]+180, 360)
	if lon < 0 {
		lon += 360
	}
	lon -= 180
	if lon == -180 && p[0] > 0 {
		lon = 180
	}
	lat := math.Max(-90, math.Min(90, p[1]))
	return orb.Point{lon, lat}
}
