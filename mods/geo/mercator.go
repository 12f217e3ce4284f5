package geo

import "math"

// Tile pyramid helpers for the spherical mercator grid.

const (
	TileSize          = 256.0
	initialResolution = 2 * math.Pi * 6378137 / TileSize
)

// Zoom gives the zoom level for given resolution (measured at Equator)
func Zoom(resolution float64) int {
	return int(math.Round(math.Log2(initialResolution / resolution)))
}

// MaxResolution is the resolution at which extent fills one tile.
func MaxResolution(ext Extent) float64 {
	return math.Max(ext.Width(), ext.Height()) / TileSize
}

// ZoomForResolution returns the fractional zoom of res in a pyramid whose
// level 0 has resolution maxRes.
func ZoomForResolution(maxRes, res float64) float64 {
	if res <= 0 || maxRes <= 0 {
		return 0
	}
	return math.Log2(maxRes / res)
}

// ResolutionForZoom is the inverse of ZoomForResolution.
func ResolutionForZoom(maxRes, zoom float64) float64 {
	return maxRes / math.Pow(2, zoom)
}

// ScaleToResolution converts an OGC scale denominator into map units per
// pixel, using the standardized 0.28mm rendering pixel.
func ScaleToResolution(scaleDenominator float64, metersPerUnit float64) float64 {
	return scaleDenominator * 0.28e-3 / metersPerUnit
}
