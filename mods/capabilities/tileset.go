package capabilities

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dualview/dualview/mods/geo"
	"github.com/tidwall/gjson"
)

// TilesetOptions are the connection parameters of a 3D tileset.
type TilesetOptions struct {
	URL           string            `json:"url"`
	URLFunctions  map[string]string `json:"urlFunctions"`
	TileFunctions map[string]string `json:"tileFunctions"`
	Projection    string            `json:"projection"`
	Extents       []float64         `json:"extents"`
}

// ParseTilesetMetadata reads catalogue metadata describing a 3D tileset.
// The tileset url is the link titled "(GET 3DTILES)"; boxes[0] is
// "minLat minLon maxLat maxLon" and is reordered to lon/lat order.
func ParseTilesetMetadata(doc []byte) ([]Partial, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: tileset metadata is not json", ErrMalformed)
	}
	meta := gjson.ParseBytes(doc)
	if !meta.IsObject() {
		return nil, fmt.Errorf("%w: tileset metadata is not an object", ErrMalformed)
	}

	var url string
	meta.Get("links").ForEach(func(_, link gjson.Result) bool {
		if link.Get("title").String() == TilesetLinkTitle {
			url = link.Get("href").String()
			return false
		}
		return true
	})
	if url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoTilesetURL, meta.Get("id").String())
	}

	extents := geo.WorldExtent
	if box := meta.Get("boxes.0"); box.Exists() && box.String() != "" {
		fields := strings.Fields(box.String())
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: tileset box %q", ErrMalformed, box.String())
		}
		var v [4]float64
		for i, f := range fields {
			n, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: tileset box %q", ErrMalformed, box.String())
			}
			v[i] = n
		}
		extents = geo.Extent{v[1], v[0], v[3], v[2]}
	}

	return []Partial{{
		ID:       meta.Get("id").String(),
		Title:    meta.Get("title").String(),
		Type:     "data",
		HandleAs: HandleAs3DTiles,
		MappingOptions: &TilesetOptions{
			URL:           url,
			URLFunctions:  map[string]string{},
			TileFunctions: map[string]string{},
			Projection:    geo.LatLonCode,
			Extents:       extents.Slice(),
		},
		UpdateParameters: map[string]any{"time": false},
	}}, nil
}
