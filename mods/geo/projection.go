package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

type Units string

const (
	UnitsDegrees Units = "degrees"
	UnitsMeters  Units = "m"
)

// MetersPerUnit follows the sphere radius used by web map clients for
// degree-based projections.
var MetersPerUnit = map[Units]float64{
	UnitsDegrees: 2 * math.Pi * 6370997 / 360,
	UnitsMeters:  1,
}

// Projection is one entry of the preconfigured projection table.
type Projection struct {
	Code    string   `json:"code" yaml:"code"`
	Aliases []string `json:"aliases" yaml:"aliases"`
	Units   Units    `json:"units" yaml:"units"`
	Extent  Extent   `json:"extent" yaml:"extent"`
	// Domain is the geographic area the projection is defined for.
	Domain Extent `json:"-" yaml:"-"`

	forward func(lon, lat float64) (x, y float64)
	inverse func(x, y float64) (lon, lat float64)
}

func (p *Projection) MetersPerUnit() float64 {
	return MetersPerUnit[p.Units]
}

// FromLonLat converts a geographic point into the projection's native plane.
func (p *Projection) FromLonLat(pt orb.Point) (orb.Point, error) {
	if pt[0] < p.Domain[0] || pt[0] > p.Domain[2] || pt[1] < p.Domain[1] || pt[1] > p.Domain[3] {
		return pt, fmt.Errorf("%w: %v in %s", ErrOutOfDomain, pt, p.Code)
	}
	x, y := p.forward(pt[0], pt[1])
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return pt, fmt.Errorf("%w: %v in %s", ErrOutOfDomain, pt, p.Code)
	}
	return orb.Point{x, y}, nil
}

// ToLonLat converts a native point into geographic coordinates.
func (p *Projection) ToLonLat(pt orb.Point) (orb.Point, error) {
	lon, lat := p.inverse(pt[0], pt[1])
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return pt, fmt.Errorf("%w: %v in %s", ErrOutOfDomain, pt, p.Code)
	}
	return orb.Point{lon, lat}, nil
}

const (
	mercatorMaxLat = 85.05112877980659
	mercatorExtent = 20037508.342789244
	polarExtent    = 4194304
)

var projections = []*Projection{
	{
		Code: "EPSG:4326",
		Aliases: []string{
			"CRS:84", "WGS84", "urn:ogc:def:crs:OGC:1.3:CRS84", "urn:ogc:def:crs:EPSG::4326",
			"urn:ogc:def:crs:EPSG:6.6:4326", "http://www.opengis.net/gml/srs/epsg.xml#4326",
		},
		Units:   UnitsDegrees,
		Extent:  WorldExtent,
		Domain:  WorldExtent,
		forward: func(lon, lat float64) (float64, float64) { return lon, lat },
		inverse: func(x, y float64) (float64, float64) { return x, y },
	},
	{
		Code: "EPSG:3857",
		Aliases: []string{
			"EPSG:900913", "EPSG:102100", "EPSG:102113", "urn:ogc:def:crs:EPSG::3857",
			"urn:ogc:def:crs:EPSG:6.18:3:3857", "http://www.opengis.net/gml/srs/epsg.xml#3857",
		},
		Units:   UnitsMeters,
		Extent:  Extent{-mercatorExtent, -mercatorExtent, mercatorExtent, mercatorExtent},
		Domain:  Extent{-180, -mercatorMaxLat, 180, mercatorMaxLat},
		forward: webMercatorForward,
		inverse: webMercatorInverse,
	},
	{
		Code:    "EPSG:3413",
		Aliases: []string{"urn:ogc:def:crs:EPSG::3413", "http://www.opengis.net/gml/srs/epsg.xml#3413"},
		Units:   UnitsMeters,
		Extent:  Extent{-polarExtent, -polarExtent, polarExtent, polarExtent},
		Domain:  Extent{-180, 30, 180, 90},
		forward: nsidcNorth.forward,
		inverse: nsidcNorth.inverse,
	},
	{
		Code:    "EPSG:3031",
		Aliases: []string{"urn:ogc:def:crs:EPSG::3031", "http://www.opengis.net/gml/srs/epsg.xml#3031"},
		Units:   UnitsMeters,
		Extent:  Extent{-polarExtent, -polarExtent, polarExtent, polarExtent},
		Domain:  Extent{-180, -90, 180, -30},
		forward: antarcticSouth.forward,
		inverse: antarcticSouth.inverse,
	},
}

func webMercatorForward(lon, lat float64) (float64, float64) {
	x, y, _ := wgs84.LonLat().To(wgs84.WebMercator())(lon, lat, 0)
	return x, y
}

func webMercatorInverse(x, y float64) (float64, float64) {
	lon, lat, _ := wgs84.WebMercator().To(wgs84.LonLat())(x, y, 0)
	return lon, lat
}

// Projections returns the preconfigured projection table.
func Projections() []*Projection {
	return projections
}

// GetPreconfiguredProjection resolves a code or any of its aliases.
// Versioned OGC urns ("urn:ogc:def:crs:EPSG:6.18:3:3857") are matched by
// their trailing code.
func GetPreconfiguredProjection(code string) (*Projection, bool) {
	code = strings.TrimSpace(code)
	for _, p := range projections {
		if strings.EqualFold(p.Code, code) {
			return p, true
		}
		for _, alias := range p.Aliases {
			if strings.EqualFold(alias, code) {
				return p, true
			}
		}
	}
	if strings.HasPrefix(strings.ToLower(code), "urn:ogc:def:crs:epsg:") {
		idx := strings.LastIndex(code, ":")
		return GetPreconfiguredProjection("EPSG:" + code[idx+1:])
	}
	return nil, false
}

func lookup(code string) (*Projection, error) {
	p, ok := GetPreconfiguredProjection(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProjection, code)
	}
	return p, nil
}

// Transform converts a point between two preconfigured projections.
func Transform(pt orb.Point, srcCode, dstCode string) (orb.Point, error) {
	src, err := lookup(srcCode)
	if err != nil {
		return pt, err
	}
	dst, err := lookup(dstCode)
	if err != nil {
		return pt, err
	}
	if src == dst {
		return pt, nil
	}
	ll, err := src.ToLonLat(pt)
	if err != nil {
		return pt, err
	}
	return dst.FromLonLat(ll)
}

// TransformExtent reprojects an extent by sampling its edges, so curved
// edges in the destination still fit inside the result. Samples that fall
// outside the destination's domain are clipped to it first.
func TransformExtent(ext Extent, srcCode, dstCode string) (Extent, error) {
	if err := ext.Validate(); err != nil {
		return ext, err
	}
	src, err := lookup(srcCode)
	if err != nil {
		return ext, err
	}
	dst, err := lookup(dstCode)
	if err != nil {
		return ext, err
	}
	if src == dst {
		return ext, nil
	}

	const stops = 8
	bound := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	sampled := false
	sample := func(x, y float64) {
		ll, err := src.ToLonLat(orb.Point{x, y})
		if err != nil {
			return
		}
		ll[0] = math.Max(dst.Domain[0], math.Min(dst.Domain[2], ll[0]))
		ll[1] = math.Max(dst.Domain[1], math.Min(dst.Domain[3], ll[1]))
		p, err := dst.FromLonLat(ll)
		if err != nil {
			return
		}
		bound = bound.Extend(p)
		sampled = true
	}
	for i := 0; i <= stops; i++ {
		f := float64(i) / stops
		x := ext[0] + f*ext.Width()
		y := ext[1] + f*ext.Height()
		sample(x, ext[1])
		sample(x, ext[3])
		sample(ext[0], y)
		sample(ext[2], y)
	}
	if !sampled {
		return ext, fmt.Errorf("%w: %v from %s to %s", ErrOutOfDomain, ext, src.Code, dst.Code)
	}
	return ExtentFromBound(bound), nil
}
