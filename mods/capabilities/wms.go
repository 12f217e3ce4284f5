package capabilities

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strings"

	"github.com/dualview/dualview/mods/geo"
)

type wmsCapabilities struct {
	XMLName xml.Name
	Version string `xml:"version,attr"`
	GetMap  struct {
		Formats []string `xml:"Format"`
		Gets    []struct {
			Resource struct {
				Href string `xml:"href,attr"`
			} `xml:"OnlineResource"`
		} `xml:"DCPType>HTTP>Get"`
	} `xml:"Capability>Request>GetMap"`
	Root *wmsLayer `xml:"Capability>Layer"`
}

type wmsLayer struct {
	Name    string   `xml:"Name"`
	Title   string   `xml:"Title"`
	CRS     []string `xml:"CRS"`
	SRS     []string `xml:"SRS"`
	GeoBBox *struct {
		West  float64 `xml:"westBoundLongitude"`
		East  float64 `xml:"eastBoundLongitude"`
		South float64 `xml:"southBoundLatitude"`
		North float64 `xml:"northBoundLatitude"`
	} `xml:"EX_GeographicBoundingBox"`
	LatLonBBox *struct {
		MinX float64 `xml:"minx,attr"`
		MinY float64 `xml:"miny,attr"`
		MaxX float64 `xml:"maxx,attr"`
		MaxY float64 `xml:"maxy,attr"`
	} `xml:"LatLonBoundingBox"`
	Layers []*wmsLayer `xml:"Layer"`
}

// WMSOptions are the connection parameters of one WMS layer.
type WMSOptions struct {
	URL        string    `json:"url"`
	Layer      string    `json:"layer"`
	Format     string    `json:"format"`
	Version    string    `json:"version"`
	Projection string    `json:"projection"`
	Extents    []float64 `json:"extents"`
}

var preferredWMSFormats = []string{"image/png", "image/jpeg", "image/gif"}

// ParseWMS reads a WMS 1.1.1 or 1.3.0 capabilities document. Every named
// layer under the root layer becomes a partial; CRS and bounding boxes are
// inherited from ancestors as the standard prescribes.
func ParseWMS(doc []byte) ([]Partial, error) {
	caps := wmsCapabilities{}
	if err := unmarshalXML(doc, &caps); err != nil {
		return nil, fmt.Errorf("%w: wms, %s", ErrMalformed, err.Error())
	}
	if name := caps.XMLName.Local; name != "WMS_Capabilities" && name != "WMT_MS_Capabilities" {
		return nil, fmt.Errorf("%w: wms, unexpected root element %q", ErrMalformed, name)
	}
	if caps.Root == nil {
		return nil, fmt.Errorf("%w: wms", ErrNoLayers)
	}

	url := ""
	if len(caps.GetMap.Gets) > 0 {
		url = caps.GetMap.Gets[0].Resource.Href
	}
	format := ""
	for _, f := range preferredWMSFormats {
		if slices.Contains(caps.GetMap.Formats, f) {
			format = f
			break
		}
	}
	if format == "" && len(caps.GetMap.Formats) > 0 {
		format = caps.GetMap.Formats[0]
	}

	var ret []Partial
	var walk func(l *wmsLayer, crs []string, bbox *geo.Extent, top bool)
	walk = func(l *wmsLayer, crs []string, bbox *geo.Extent, top bool) {
		crs = append(append(append([]string{}, crs...), l.CRS...), l.SRS...)
		if ext, ok := l.extent(); ok {
			bbox = &ext
		}
		if l.Name != "" && (!top || len(l.Layers) == 0) {
			opts := &WMSOptions{
				URL:     url,
				Layer:   l.Name,
				Format:  format,
				Version: caps.Version,
			}
			opts.Projection = pickProjection(crs)
			opts.Extents = geo.WorldExtent.Slice()
			if bbox != nil {
				opts.Extents = bbox.Slice()
			}
			ret = append(ret, Partial{
				ID:             l.Name,
				Title:          l.Title,
				HandleAs:       HandleAsWMS,
				MappingOptions: opts,
			})
		}
		for _, child := range l.Layers {
			walk(child, crs, bbox, false)
		}
	}
	walk(caps.Root, nil, nil, true)

	if len(ret) == 0 {
		return nil, fmt.Errorf("%w: wms", ErrNoLayers)
	}
	return ret, nil
}

func (l *wmsLayer) extent() (geo.Extent, bool) {
	if b := l.GeoBBox; b != nil {
		return geo.Extent{b.West, b.South, b.East, b.North}, true
	}
	if b := l.LatLonBBox; b != nil {
		return geo.Extent{b.MinX, b.MinY, b.MaxX, b.MaxY}, true
	}
	return geo.Extent{}, false
}

// pickProjection prefers the geographic projection, then the first
// preconfigured one the layer advertises.
func pickProjection(crs []string) string {
	var first string
	for _, c := range crs {
		p, ok := geo.GetPreconfiguredProjection(strings.TrimSpace(c))
		if !ok {
			continue
		}
		if p.Code == geo.LatLonCode {
			return p.Code
		}
		if first == "" {
			first = p.Code
		}
	}
	if first == "" {
		return geo.LatLonCode
	}
	return first
}
