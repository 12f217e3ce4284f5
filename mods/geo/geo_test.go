package geo_test

import (
	"math"
	"testing"

	"github.com/dualview/dualview/mods/geo"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolution(t *testing.T) {
	assert.Equal(t, 10, geo.Zoom(152.8740565703525))
	assert.Equal(t, 0, geo.Zoom(156543.03392804097))
	assert.InDelta(t, 3.0, geo.ZoomForResolution(8, 1), 1e-12)
	assert.InDelta(t, 1.0, geo.ResolutionForZoom(8, 3), 1e-12)
}

func TestPreconfiguredProjection(t *testing.T) {
	tests := []struct {
		code   string
		expect string
	}{
		{"EPSG:4326", "EPSG:4326"},
		{"CRS:84", "EPSG:4326"},
		{"urn:ogc:def:crs:OGC:1.3:CRS84", "EPSG:4326"},
		{"EPSG:900913", "EPSG:3857"},
		{"urn:ogc:def:crs:EPSG:6.18:3:3857", "EPSG:3857"},
		{"urn:ogc:def:crs:EPSG:6.3:3413", "EPSG:3413"},
		{"epsg:3031", "EPSG:3031"},
	}
	for _, tt := range tests {
		p, ok := geo.GetPreconfiguredProjection(tt.code)
		require.True(t, ok, tt.code)
		require.Equal(t, tt.expect, p.Code, tt.code)
	}
	_, ok := geo.GetPreconfiguredProjection("EPSG:2154")
	require.False(t, ok)
}

func TestWebMercator(t *testing.T) {
	pt, err := geo.Transform(orb.Point{14.1, 62.3}, "EPSG:4326", "EPSG:3857")
	require.NoError(t, err)
	assert.InDelta(t, 1569604.8201851572, pt[0], 0.01)
	assert.InDelta(t, 8930630.669201756, pt[1], 0.01)

	_, err = geo.Transform(orb.Point{0, 89}, "EPSG:4326", "EPSG:3857")
	require.ErrorIs(t, err, geo.ErrOutOfDomain)

	_, err = geo.Transform(orb.Point{0, 0}, "EPSG:4326", "EPSG:9999")
	require.ErrorIs(t, err, geo.ErrUnknownProjection)
}

func TestRoundTrip(t *testing.T) {
	points := map[string][]orb.Point{
		"EPSG:4326": {{0, 0}, {-179.5, -89}, {120.25, 37.5}},
		"EPSG:3857": {{0, 0}, {-179.5, -85}, {126.978, 37.5665}, {14.1, 62.3}},
		"EPSG:3413": {{-45, 90}, {-45, 70}, {10, 75}, {-150.5, 45}, {135, 31}},
		"EPSG:3031": {{0, -90}, {0, -71}, {166.67, -77.85}, {-60, -45}},
	}
	for code, pts := range points {
		proj, ok := geo.GetPreconfiguredProjection(code)
		require.True(t, ok)
		for _, ll := range pts {
			native, err := proj.FromLonLat(ll)
			require.NoError(t, err, "%s %v", code, ll)
			back, err := proj.ToLonLat(native)
			require.NoError(t, err, "%s %v", code, ll)
			assert.InDelta(t, ll[1], back[1], 1e-7, "%s lat %v", code, ll)
			if math.Abs(ll[1]) < 90 {
				assert.InDelta(t, ll[0], back[0], 1e-7, "%s lon %v", code, ll)
			}
		}
	}
}

func TestPolarStereographic(t *testing.T) {
	north, _ := geo.GetPreconfiguredProjection("EPSG:3413")
	pole, err := north.FromLonLat(orb.Point{0, 90})
	require.NoError(t, err)
	assert.InDelta(t, 0, pole[0], 1e-6)
	assert.InDelta(t, 0, pole[1], 1e-6)

	// the central meridian -45 points straight down the y axis
	pt, err := north.FromLonLat(orb.Point{-45, 70})
	require.NoError(t, err)
	assert.InDelta(t, 0, pt[0], 1e-6)
	assert.Less(t, pt[1], 0.0)

	south, _ := geo.GetPreconfiguredProjection("EPSG:3031")
	pt, err = south.FromLonLat(orb.Point{0, -71})
	require.NoError(t, err)
	assert.InDelta(t, 0, pt[0], 1e-6)
	assert.Greater(t, pt[1], 0.0)

	_, err = south.FromLonLat(orb.Point{0, 10})
	require.ErrorIs(t, err, geo.ErrOutOfDomain)
}

func TestTransformExtent(t *testing.T) {
	ext, err := geo.TransformExtent(geo.Extent{-180, -85, 180, 85}, "EPSG:4326", "EPSG:3857")
	require.NoError(t, err)
	assert.InDelta(t, -20037508.342789244, ext[0], 1e-3)
	assert.InDelta(t, 20037508.342789244, ext[2], 1e-3)
	assert.InDelta(t, -ext[1], ext[3], 1e-3)

	back, err := geo.TransformExtent(ext, "EPSG:3857", "EPSG:4326")
	require.NoError(t, err)
	assert.InDelta(t, -180, back[0], 1e-7)
	assert.InDelta(t, 85, back[3], 1e-7)

	same, err := geo.TransformExtent(geo.Extent{1, 2, 3, 4}, "EPSG:4326", "CRS:84")
	require.NoError(t, err)
	require.Equal(t, geo.Extent{1, 2, 3, 4}, same)

	_, err = geo.TransformExtent(geo.Extent{3, 2, 1, 4}, "EPSG:4326", "EPSG:3857")
	require.ErrorIs(t, err, geo.ErrInvalidExtent)
}

func TestCartesian(t *testing.T) {
	c := geo.FromDegrees(orb.Point{0, 0}, 0)
	assert.InDelta(t, 6378137.0, c.X, 1e-6)
	assert.InDelta(t, 0, c.Y, 1e-6)
	assert.InDelta(t, 0, c.Z, 1e-6)

	for _, ll := range []orb.Point{{126.978, 37.5665}, {-45, -80}, {179.9, 0.5}, {10, 89.999}} {
		pt, h := geo.ToDegrees(geo.FromDegrees(ll, 1500))
		assert.InDelta(t, ll[0], pt[0], 1e-9)
		assert.InDelta(t, ll[1], pt[1], 1e-9)
		assert.InDelta(t, 1500, h, 1e-4)
	}

	pt, _ := geo.ToDegrees(geo.FromDegrees(orb.Point{0, 90}, 0))
	assert.Equal(t, 90.0, pt[1])
}

func TestBoundingBox(t *testing.T) {
	ext, err := geo.BoundingBox([]orb.Point{{10, 5}, {-3, 7}, {4, -2}})
	require.NoError(t, err)
	require.Equal(t, geo.Extent{-3, -2, 10, 7}, ext)

	_, err = geo.BoundingBox(nil)
	require.Error(t, err)

	ext, err = geo.ExtentFromSlice([]any{-180.0, -90.0, 180.0, 90.0})
	require.NoError(t, err)
	require.Equal(t, geo.WorldExtent, ext)
}

func TestConstrainCoordinates(t *testing.T) {
	assert.Equal(t, orb.Point{-170, 90}, geo.ConstrainCoordinates(orb.Point{190, 95}))
	assert.Equal(t, orb.Point{170, -90}, geo.ConstrainCoordinates(orb.Point{-190, -95}))
	assert.Equal(t, orb.Point{180, 0}, geo.ConstrainCoordinates(orb.Point{180, 0}))
}

func TestRadius(t *testing.T) {
	deg := geo.RadiusToDegrees(50000)
	assert.InDelta(t, 0.4496608, deg, 1e-6)
	assert.InDelta(t, 50000, geo.DegreesToRadius(deg), 1e-9)

	poly := geo.CirclePolygon(orb.Point{0, 0}, 50000, 64)
	require.Len(t, poly[0], 65)
	for _, p := range poly[0] {
		assert.InDelta(t, 50000, geo.Distance(orb.Point{0, 0}, p), 50)
	}
	assert.InDelta(t, math.Pi*50000*50000, geo.Measure(poly), math.Pi*50000*50000*0.01)
}
