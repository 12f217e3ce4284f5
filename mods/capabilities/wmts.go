package capabilities

import (
	"encoding/xml"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dualview/dualview/mods/geo"
)

type wmtsCapabilities struct {
	XMLName    xml.Name            `xml:"Capabilities"`
	Version    string              `xml:"version,attr"`
	Operations []owsOperation      `xml:"OperationsMetadata>Operation"`
	Layers     []wmtsLayer         `xml:"Contents>Layer"`
	MatrixSets []wmtsTileMatrixSet `xml:"Contents>TileMatrixSet"`
}

type owsOperation struct {
	Name string   `xml:"name,attr"`
	Gets []owsGet `xml:"DCP>HTTP>Get"`
}

type owsGet struct {
	Href        string          `xml:"href,attr"`
	Constraints []owsConstraint `xml:"Constraint"`
}

type owsConstraint struct {
	Name   string   `xml:"name,attr"`
	Values []string `xml:"AllowedValues>Value"`
}

type owsBoundingBox struct {
	LowerCorner string `xml:"LowerCorner"`
	UpperCorner string `xml:"UpperCorner"`
}

type wmtsLayer struct {
	Identifier string          `xml:"Identifier"`
	Name       string          `xml:"Name"`
	Title      string          `xml:"Title"`
	BBox       *owsBoundingBox `xml:"WGS84BoundingBox"`
	Formats    []string        `xml:"Format"`
	Links      []struct {
		TileMatrixSet string `xml:"TileMatrixSet"`
	} `xml:"TileMatrixSetLink"`
	ResourceURLs []struct {
		Format       string `xml:"format,attr"`
		ResourceType string `xml:"resourceType,attr"`
		Template     string `xml:"template,attr"`
	} `xml:"ResourceURL"`
}

type wmtsTileMatrixSet struct {
	Identifier   string           `xml:"Identifier"`
	SupportedCRS string           `xml:"SupportedCRS"`
	Matrices     []wmtsTileMatrix `xml:"TileMatrix"`
}

type wmtsTileMatrix struct {
	Identifier       string  `xml:"Identifier"`
	ScaleDenominator float64 `xml:"ScaleDenominator"`
	TopLeftCorner    string  `xml:"TopLeftCorner"`
	TileWidth        int     `xml:"TileWidth"`
	TileHeight       int     `xml:"TileHeight"`
	MatrixWidth      int     `xml:"MatrixWidth"`
	MatrixHeight     int     `xml:"MatrixHeight"`
}

// WMTSOptions are the connection parameters of one WMTS layer.
type WMTSOptions struct {
	URL             string    `json:"url"`
	Layer           string    `json:"layer"`
	Format          string    `json:"format"`
	RequestEncoding string    `json:"requestEncoding"`
	MatrixSet       string    `json:"matrixSet"`
	Projection      string    `json:"projection"`
	Extents         []float64 `json:"extents"`
	TileGrid        TileGrid  `json:"tileGrid"`
}

// ParseWMTS reads a WMTS 1.0.0 capabilities document and returns one
// partial per Contents/Layer. Layers whose options cannot be derived are
// skipped and reported in the joined error alongside the partials that
// could be built.
func ParseWMTS(doc []byte) ([]Partial, error) {
	caps := wmtsCapabilities{}
	if err := unmarshalXML(doc, &caps); err != nil {
		return nil, fmt.Errorf("%w: wmts, %s", ErrMalformed, err.Error())
	}
	if len(caps.Layers) == 0 {
		return nil, fmt.Errorf("%w: wmts", ErrNoLayers)
	}

	var ret []Partial
	var errs []error
	for _, layer := range caps.Layers {
		id := layer.Identifier
		if id == "" {
			id = layer.Name
		}
		if len(layer.Links) == 0 {
			errs = append(errs, fmt.Errorf("%w: layer %q has no TileMatrixSetLink", ErrNoMatrixSet, id))
			continue
		}
		opts, err := caps.optionsFor(layer, id, layer.Links[0].TileMatrixSet)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ret = append(ret, Partial{
			ID:             id,
			Title:          layer.Title,
			MappingOptions: opts,
		})
	}
	return ret, errors.Join(errs...)
}

// optionsFor resolves the tile grid, endpoint and extent of layer in the
// given matrix set.
func (caps *wmtsCapabilities) optionsFor(layer wmtsLayer, id string, matrixSet string) (*WMTSOptions, error) {
	var tms *wmtsTileMatrixSet
	for i := range caps.MatrixSets {
		if caps.MatrixSets[i].Identifier == matrixSet {
			tms = &caps.MatrixSets[i]
			break
		}
	}
	if tms == nil || len(tms.Matrices) == 0 {
		return nil, fmt.Errorf("%w: %q for layer %q", ErrNoMatrixSet, matrixSet, id)
	}
	proj, ok := geo.GetPreconfiguredProjection(tms.SupportedCRS)
	if !ok {
		return nil, fmt.Errorf("layer %q, %w: %q", id, geo.ErrUnknownProjection, tms.SupportedCRS)
	}

	opts := &WMTSOptions{
		Layer:      id,
		MatrixSet:  matrixSet,
		Projection: proj.Code,
	}
	if len(layer.Formats) > 0 {
		opts.Format = layer.Formats[0]
	}

	mpu := proj.MetersPerUnit()
	grid := TileGrid{
		Origin:  []float64{proj.Extent[0], proj.Extent[3]},
		MinZoom: 0,
		MaxZoom: len(tms.Matrices) - 1,
	}
	for _, m := range tms.Matrices {
		grid.Resolutions = append(grid.Resolutions, geo.ScaleToResolution(m.ScaleDenominator, mpu))
		grid.MatrixIDs = append(grid.MatrixIDs, m.Identifier)
	}
	first := tms.Matrices[0]
	grid.TileSize = []int{first.TileWidth, first.TileHeight}
	opts.TileGrid = grid

	// the layer bbox is kept only when it lies within the projection
	opts.Extents = proj.Extent.Slice()
	if layer.BBox != nil {
		lower, err1 := parseCorner(layer.BBox.LowerCorner)
		upper, err2 := parseCorner(layer.BBox.UpperCorner)
		if err1 == nil && err2 == nil {
			bbox := geo.Extent{lower[0], lower[1], upper[0], upper[1]}
			if ext, err := geo.TransformExtent(bbox, geo.LatLonCode, proj.Code); err == nil {
				if clipped, ok := ext.Intersect(proj.Extent); ok {
					opts.Extents = clipped.Slice()
				}
			}
		}
	}

	encoding, kvpURLs := caps.getTileEndpoints()
	if encoding == "KVP" && len(kvpURLs) > 0 {
		opts.RequestEncoding = "KVP"
		opts.URL = kvpURLs[0]
	} else {
		opts.RequestEncoding = "REST"
		for _, res := range layer.ResourceURLs {
			if res.ResourceType == "tile" && res.Format == opts.Format {
				opts.URL = res.Template
				break
			}
		}
		if opts.URL == "" {
			for _, res := range layer.ResourceURLs {
				if res.ResourceType == "tile" {
					opts.URL = res.Template
					if res.Format != "" {
						opts.Format = res.Format
					}
					break
				}
			}
		}
		if opts.URL == "" && len(kvpURLs) > 0 {
			opts.RequestEncoding = "KVP"
			opts.URL = kvpURLs[0]
		}
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: wmts layer %q has no tile endpoint", ErrMalformed, id)
	}
	return opts, nil
}

// getTileEndpoints returns the preferred request encoding and every KVP
// GetTile endpoint.
func (caps *wmtsCapabilities) getTileEndpoints() (string, []string) {
	encoding := ""
	var urls []string
	for _, op := range caps.Operations {
		if op.Name != "GetTile" {
			continue
		}
		for _, get := range op.Gets {
			var allowed []string
			for _, c := range get.Constraints {
				if c.Name == "GetEncoding" {
					allowed = c.Values
				}
			}
			if encoding == "" && len(allowed) > 0 {
				encoding = allowed[0]
			}
			if len(allowed) == 0 || slices.Contains(allowed, "KVP") {
				urls = append(urls, get.Href)
			}
		}
	}
	if encoding == "" && len(urls) > 0 {
		encoding = "KVP"
	}
	return encoding, urls
}

func parseCorner(s string) ([2]float64, error) {
	var ret [2]float64
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return ret, fmt.Errorf("%w: corner %q", ErrMalformed, s)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ret, fmt.Errorf("%w: corner %q", ErrMalformed, s)
		}
		ret[i] = v
	}
	return ret, nil
}
