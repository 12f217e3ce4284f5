// Package layers keeps the canonical layer registry and folds partial
// layer descriptors from every configured source into it.
package layers

import (
	"fmt"
	"strings"
)

// Type is the registry group a layer belongs to.
type Type string

const (
	TypeBasemap   Type = "basemap"
	TypeData      Type = "data"
	TypeReference Type = "reference"
	TypePartial   Type = "partial"
)

// GroupTypes are the groups that hold committed records, bottom first.
var GroupTypes = []Type{TypeBasemap, TypeData, TypeReference}

// Rank orders groups in the map stack. Basemaps are drawn at the bottom,
// reference layers above data. Unknown types rank -1.
func (t Type) Rank() int {
	switch t {
	case TypeBasemap:
		return 0
	case TypeData:
		return 1
	case TypeReference:
		return 2
	default:
		return -1
	}
}

func (t Type) Valid() bool { return t.Rank() >= 0 }

// HandleAs tags select the rendering strategy of a layer.
type HandleAs string

const (
	HandleAsGIBSRaster     HandleAs = "GIBS_raster"
	HandleAsWMTSRaster     HandleAs = "wmts_raster"
	HandleAsWMSRaster      HandleAs = "wms_raster"
	HandleAsXYZRaster      HandleAs = "xyz_raster"
	HandleAsVectorGeoJSON  HandleAs = "vector_geojson"
	HandleAsVectorTopoJSON HandleAs = "vector_topojson"
	HandleAsVectorKML      HandleAs = "vector_kml"
	HandleAsVector3DTiles  HandleAs = "vector_3d_tiles"
)

// SourceKind identifies the format of an ingested document.
type SourceKind string

const (
	SourceJSON    SourceKind = "json"
	SourceWMTSXML SourceKind = "wmts/xml"
	SourceWMSXML  SourceKind = "wms/xml"
	SourceTileset SourceKind = "tileset/json"
)

func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case SourceJSON, SourceWMTSXML, SourceWMSXML, SourceTileset:
		return k, nil
	case "wmts":
		return SourceWMTSXML, nil
	case "wms":
		return SourceWMSXML, nil
	case "tileset", "3dtiles":
		return SourceTileset, nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}

// Direction of a layer move within its group.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionTop    Direction = "top"
	DirectionBottom Direction = "bottom"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case DirectionUp, DirectionDown, DirectionTop, DirectionBottom:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// TargetIndex computes where an element at cur moves within [lo, hi].
func (d Direction) TargetIndex(cur, lo, hi int) int {
	var target int
	switch d {
	case DirectionUp:
		target = cur + 1
	case DirectionDown:
		target = cur - 1
	case DirectionTop:
		target = hi
	case DirectionBottom:
		target = lo
	default:
		target = cur
	}
	return max(lo, min(hi, target))
}
