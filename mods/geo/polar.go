package geo

import "math"

const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
)

var (
	wgs84E2 = wgs84F * (2 - wgs84F)
	wgs84E  = math.Sqrt(wgs84E2)
)

// polarStereographic is the ellipsoidal polar stereographic projection
// with a standard parallel (variant B), as used by EPSG:3413 and EPSG:3031.
type polarStereographic struct {
	south bool
	latTs float64 // degrees
	lon0  float64 // degrees
}

var (
	nsidcNorth     = polarStereographic{latTs: 70, lon0: -45}
	antarcticSouth = polarStereographic{south: true, latTs: -71, lon0: 0}
)

func (p polarStereographic) sign() float64 {
	if p.south {
		return -1
	}
	return 1
}

func tsfn(phi float64) float64 {
	es := wgs84E * math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-es)/(1+es), wgs84E/2)
}

func (p polarStereographic) scale() (tc, mc float64) {
	phic := p.sign() * p.latTs * math.Pi / 180
	sinc := math.Sin(phic)
	return tsfn(phic), math.Cos(phic) / math.Sqrt(1-wgs84E2*sinc*sinc)
}

func (p polarStereographic) forward(lon, lat float64) (float64, float64) {
	s := p.sign()
	phi := s * lat * math.Pi / 180
	dlam := s * (lon - p.lon0) * math.Pi / 180
	tc, mc := p.scale()
	rho := wgs84A * mc * tsfn(phi) / tc
	return s * rho * math.Sin(dlam), -s * rho * math.Cos(dlam)
}

func (p polarStereographic) inverse(x, y float64) (float64, float64) {
	s := p.sign()
	x, y = s*x, s*y
	tc, mc := p.scale()
	t := math.Hypot(x, y) * tc / (wgs84A * mc)
	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 16; i++ {
		es := wgs84E * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-es)/(1+es), wgs84E/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}
	lon := p.lon0 + s*math.Atan2(x, -y)*180/math.Pi
	return normalizeLon(lon), s * phi * 180 / math.Pi
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
