package layers

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/dualview/dualview/mods/capabilities"
	"github.com/dualview/dualview/mods/geo"
)

// Record is a committed layer. Records are owned by the Registry; callers
// receive clones.
type Record struct {
	ID               string         `json:"id" yaml:"id"`
	Type             Type           `json:"type" yaml:"type"`
	Title            string         `json:"title" yaml:"title"`
	HandleAs         HandleAs       `json:"handleAs" yaml:"handleAs"`
	IsActive         bool           `json:"isActive" yaml:"isActive"`
	IsSelected       bool           `json:"isSelected" yaml:"isSelected"`
	IsDisabled       bool           `json:"isDisabled" yaml:"isDisabled"`
	IsDefault        bool           `json:"isDefault" yaml:"isDefault"`
	Opacity          float64        `json:"opacity" yaml:"opacity"`
	DisplayIndex     int            `json:"displayIndex" yaml:"displayIndex"`
	MappingOptions   MappingOptions `json:"mappingOptions" yaml:"mappingOptions"`
	UpdateParameters map[string]any `json:"updateParameters,omitempty" yaml:"updateParameters,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// MappingOptions are the engine connection parameters of a layer.
type MappingOptions struct {
	URL             string                 `json:"url,omitempty" yaml:"url,omitempty"`
	Layer           string                 `json:"layer,omitempty" yaml:"layer,omitempty"`
	Format          string                 `json:"format,omitempty" yaml:"format,omitempty"`
	RequestEncoding string                 `json:"requestEncoding,omitempty" yaml:"requestEncoding,omitempty"`
	MatrixSet       string                 `json:"matrixSet,omitempty" yaml:"matrixSet,omitempty"`
	Version         string                 `json:"version,omitempty" yaml:"version,omitempty"`
	Projection      string                 `json:"projection,omitempty" yaml:"projection,omitempty"`
	Extents         []float64              `json:"extents,omitempty" yaml:"extents,omitempty"`
	TileGrid        *capabilities.TileGrid `json:"tileGrid,omitempty" yaml:"tileGrid,omitempty"`
	URLFunctions    map[string]string      `json:"urlFunctions,omitempty" yaml:"urlFunctions,omitempty"`
	TileFunctions   map[string]string      `json:"tileFunctions,omitempty" yaml:"tileFunctions,omitempty"`
}

// Extent returns the layer extents in the layer projection, or the
// projection extent when the layer has none.
func (mo MappingOptions) Extent() (geo.Extent, string, error) {
	proj := mo.Projection
	if proj == "" {
		proj = geo.LatLonCode
	}
	if len(mo.Extents) == 4 {
		ext := geo.Extent{mo.Extents[0], mo.Extents[1], mo.Extents[2], mo.Extents[3]}
		return ext, proj, ext.Validate()
	}
	p, ok := geo.GetPreconfiguredProjection(proj)
	if !ok {
		return geo.Extent{}, proj, fmt.Errorf("%w: %q", geo.ErrUnknownProjection, proj)
	}
	return p.Extent, p.Code, nil
}

// Key identifies the registry slot of a record.
func (r *Record) Key() string {
	return string(r.Type) + "/" + r.ID
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	ret := *r
	ret.MappingOptions.Extents = append([]float64(nil), r.MappingOptions.Extents...)
	if r.MappingOptions.TileGrid != nil {
		tg := *r.MappingOptions.TileGrid
		tg.Origin = append([]float64(nil), tg.Origin...)
		tg.Resolutions = append([]float64(nil), tg.Resolutions...)
		tg.MatrixIDs = append([]string(nil), tg.MatrixIDs...)
		tg.TileSize = append([]int(nil), tg.TileSize...)
		ret.MappingOptions.TileGrid = &tg
	}
	ret.MappingOptions.URLFunctions = cloneStrings(r.MappingOptions.URLFunctions)
	ret.MappingOptions.TileFunctions = cloneStrings(r.MappingOptions.TileFunctions)
	ret.UpdateParameters = cloneMap(r.UpdateParameters)
	ret.Metadata = cloneMap(r.Metadata)
	return &ret
}

// decodeRecord turns a merged field map into a typed record.
func decodeRecord(fields map[string]any) (*Record, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	rec := &Record{}
	if err := json.Unmarshal(b, rec); err != nil {
		return nil, fmt.Errorf("layer %v, %w", fields["id"], err)
	}
	rec.Opacity = ClampOpacity(rec.Opacity)
	return rec, nil
}

// ClampOpacity bounds v to [0, 1].
func ClampOpacity(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	ret := make(map[string]string, len(m))
	for k, v := range m {
		ret[k] = v
	}
	return ret
}
