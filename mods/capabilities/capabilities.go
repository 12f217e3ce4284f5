// Package capabilities turns OGC capability documents, JSON layer
// catalogues and 3D tileset metadata into partial layer descriptions.
package capabilities

import (
	"errors"
)

var (
	ErrMalformed    = errors.New("malformed document")
	ErrNoLayers     = errors.New("no layers in document")
	ErrNoMatrixSet  = errors.New("tile matrix set not found")
	ErrNoTilesetURL = errors.New("tileset link not found")
)

const (
	HandleAsWMTS     = "wmts_raster"
	HandleAsWMS      = "wms_raster"
	HandleAs3DTiles  = "vector_3d_tiles"
	TilesetLinkTitle = "(GET 3DTILES)"
)

// TileGrid describes the tile pyramid of a WMTS layer.
type TileGrid struct {
	Origin      []float64 `json:"origin" yaml:"origin"`
	Resolutions []float64 `json:"resolutions" yaml:"resolutions"`
	MatrixIDs   []string  `json:"matrixIds" yaml:"matrixIds"`
	MinZoom     int       `json:"minZoom" yaml:"minZoom"`
	MaxZoom     int       `json:"maxZoom" yaml:"maxZoom"`
	TileSize    []int     `json:"tileSize" yaml:"tileSize"`
}

// Partial is one layer found in a source document. MappingOptions holds
// the engine connection parameters in their JSON shape.
type Partial struct {
	ID               string         `json:"id"`
	Title            string         `json:"title,omitempty"`
	Type             string         `json:"type,omitempty"`
	HandleAs         string         `json:"handleAs,omitempty"`
	MappingOptions   any            `json:"mappingOptions,omitempty"`
	UpdateParameters map[string]any `json:"updateParameters,omitempty"`
}
