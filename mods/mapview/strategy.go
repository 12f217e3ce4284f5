package mapview

import (
	"fmt"

	"github.com/dualview/dualview/mods/layers"
)

// Kind is the native layer family a handleAs tag renders as.
type Kind string

const (
	KindImagery Kind = "imagery"
	KindVector  Kind = "vector"
	KindTileset Kind = "tileset"
)

// Strategy describes how a handleAs tag is rendered.
type Strategy struct {
	HandleAs layers.HandleAs
	Kind     Kind
	// Tiled sources need a tile grid or a matrix set.
	Tiled bool
	// Named sources address one layer of a multi-layer service.
	Named bool
}

var strategies = map[layers.HandleAs]Strategy{
	layers.HandleAsGIBSRaster:     {HandleAs: layers.HandleAsGIBSRaster, Kind: KindImagery, Tiled: true, Named: true},
	layers.HandleAsWMTSRaster:     {HandleAs: layers.HandleAsWMTSRaster, Kind: KindImagery, Tiled: true, Named: true},
	layers.HandleAsWMSRaster:      {HandleAs: layers.HandleAsWMSRaster, Kind: KindImagery, Named: true},
	layers.HandleAsXYZRaster:      {HandleAs: layers.HandleAsXYZRaster, Kind: KindImagery},
	layers.HandleAsVectorGeoJSON:  {HandleAs: layers.HandleAsVectorGeoJSON, Kind: KindVector},
	layers.HandleAsVectorTopoJSON: {HandleAs: layers.HandleAsVectorTopoJSON, Kind: KindVector},
	layers.HandleAsVectorKML:      {HandleAs: layers.HandleAsVectorKML, Kind: KindVector},
	layers.HandleAsVector3DTiles:  {HandleAs: layers.HandleAsVector3DTiles, Kind: KindTileset},
}

// ResolveStrategy looks up the strategy of rec and checks that its
// mapping options carry what the strategy needs.
func ResolveStrategy(rec *layers.Record) (Strategy, error) {
	s, ok := strategies[rec.HandleAs]
	if !ok {
		return s, fmt.Errorf("layer %q, unsupported handleAs %q", rec.ID, rec.HandleAs)
	}
	mo := rec.MappingOptions
	if mo.URL == "" {
		return s, fmt.Errorf("layer %q, %s without url", rec.ID, rec.HandleAs)
	}
	if s.Named && mo.Layer == "" {
		return s, fmt.Errorf("layer %q, %s without layer name", rec.ID, rec.HandleAs)
	}
	if s.Tiled && mo.TileGrid == nil && mo.MatrixSet == "" {
		return s, fmt.Errorf("layer %q, %s without tile grid", rec.ID, rec.HandleAs)
	}
	return s, nil
}
