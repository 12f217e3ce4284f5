package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Cartesian3 is a position in earth-centred earth-fixed metres.
type Cartesian3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (c Cartesian3) Sub(o Cartesian3) Cartesian3 {
	return Cartesian3{c.X - o.X, c.Y - o.Y, c.Z - o.Z}
}

func (c Cartesian3) Magnitude() float64 {
	return math.Sqrt(c.X*c.X + c.Y*c.Y + c.Z*c.Z)
}

// Distance is the straight chord length between two positions.
func (c Cartesian3) Distance(o Cartesian3) float64 {
	return c.Sub(o).Magnitude()
}

// FromDegrees converts a geographic point and ellipsoid height to ECEF.
func FromDegrees(pt orb.Point, height float64) Cartesian3 {
	lam := pt[0] * math.Pi / 180
	phi := pt[1] * math.Pi / 180
	sinPhi := math.Sin(phi)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinPhi*sinPhi)
	return Cartesian3{
		X: (n + height) * math.Cos(phi) * math.Cos(lam),
		Y: (n + height) * math.Cos(phi) * math.Sin(lam),
		Z: (n*(1-wgs84E2) + height) * sinPhi,
	}
}

// ToDegrees converts an ECEF position back to geographic coordinates and
// the height above the ellipsoid.
func ToDegrees(c Cartesian3) (orb.Point, float64) {
	p := math.Hypot(c.X, c.Y)
	lon := math.Atan2(c.Y, c.X) * 180 / math.Pi
	if p < 1e-9 {
		b := wgs84A * (1 - wgs84F)
		if c.Z < 0 {
			return orb.Point{0, -90}, -c.Z - b
		}
		return orb.Point{0, 90}, c.Z - b
	}
	phi := math.Atan2(c.Z, p*(1-wgs84E2))
	var h float64
	for i := 0; i < 8; i++ {
		sinPhi := math.Sin(phi)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinPhi*sinPhi)
		h = p/math.Cos(phi) - n
		phi = math.Atan2(c.Z, p*(1-wgs84E2*n/(n+h)))
	}
	return orb.Point{lon, phi * 180 / math.Pi}, h
}
