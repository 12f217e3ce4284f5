package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// RadiusToDegrees converts a circle radius in metres into geographic units.
func RadiusToDegrees(meters float64) float64 {
	return meters / MetersPerUnit[UnitsDegrees]
}

// DegreesToRadius is the inverse of RadiusToDegrees.
func DegreesToRadius(degrees float64) float64 {
	return degrees * MetersPerUnit[UnitsDegrees]
}

// CirclePolygon approximates a geodesic circle with n vertices.
func CirclePolygon(center orb.Point, radiusMeters float64, n int) orb.Polygon {
	if n < 8 {
		n = 8
	}
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		bearing := float64(i) * 360 / float64(n)
		ring = append(ring, orbgeo.PointAtBearingAndDistance(center, bearing, radiusMeters))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Distance is the great-circle distance in metres.
func Distance(a, b orb.Point) float64 {
	return orbgeo.DistanceHaversine(a, b)
}

// Measure returns the geodesic length (lines) or area (polygons) of g in
// metres or square metres.
func Measure(g orb.Geometry) float64 {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		return math.Abs(orbgeo.Area(g))
	default:
		return orbgeo.Length(g)
	}
}
