// Package config loads the HCL configuration of a dualview process.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/dualview/dualview/mods/viewer"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

const (
	DefaultListen          = "127.0.0.1:5680"
	DefaultProjection      = "EPSG:4326"
	DefaultMaxZoom         = 12
	DefaultMinZoomDistance = 500.0
	DefaultCanvasWidth     = 1024
	DefaultCanvasHeight    = 768
)

type Config struct {
	Viewer  ViewerConfig   `json:"viewer" yaml:"viewer"`
	Sources []SourceConfig `json:"sources" yaml:"sources"`
	HTTP    HTTPConfig     `json:"http" yaml:"http"`
	Log     logging.Config `json:"log" yaml:"log"`
	// Dir is where relative source files are resolved from.
	Dir string `json:"-" yaml:"-"`
}

type ViewerConfig struct {
	DefaultProjection   string     `json:"defaultProjection" yaml:"defaultProjection"`
	DeleteLayerPartials bool       `json:"deleteLayerPartials" yaml:"deleteLayerPartials"`
	DefaultExtent       geo.Extent `json:"defaultBboxExtent" yaml:"defaultBboxExtent"`
	MaxZoom             int        `json:"maxZoom" yaml:"maxZoom"`
	MinZoomDistance3D   float64    `json:"minZoomDistance3D" yaml:"minZoomDistance3D"`
	CanvasWidth         int        `json:"canvasWidth" yaml:"canvasWidth"`
	CanvasHeight        int        `json:"canvasHeight" yaml:"canvasHeight"`
	// DefaultDate is the initial map date; today when zero.
	DefaultDate time.Time `json:"defaultDate,omitzero" yaml:"defaultDate,omitempty"`
}

type SourceConfig struct {
	Name      string            `json:"name" yaml:"name"`
	Type      layers.SourceKind `json:"type" yaml:"type"`
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`
	File      string            `json:"file,omitempty" yaml:"file,omitempty"`
	HandleAs  string            `json:"handleAs,omitempty" yaml:"handleAs,omitempty"`
	LayerType string            `json:"layerType,omitempty" yaml:"layerType,omitempty"`
	Defaults  map[string]any    `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Merge     bool              `json:"merge" yaml:"merge"`
}

type HTTPConfig struct {
	Listen string `json:"listen" yaml:"listen"`
	Debug  bool   `json:"debug" yaml:"debug"`
}

// hcl shapes; pointers tell a missing attribute from a zero value.
type fileBody struct {
	Viewer  *viewerBody  `hcl:"viewer,block"`
	Sources []sourceBody `hcl:"source,block"`
	HTTP    *httpBody    `hcl:"http,block"`
	Log     *logBody     `hcl:"log,block"`
}

type viewerBody struct {
	DefaultProjection   *string   `hcl:"default_projection,optional"`
	DeleteLayerPartials *bool     `hcl:"delete_layer_partials,optional"`
	DefaultBBoxExtent   []float64 `hcl:"default_bbox_extent,optional"`
	MaxZoom             *int      `hcl:"max_zoom,optional"`
	MinZoomDistance3D   *float64  `hcl:"min_zoom_distance_3d,optional"`
	CanvasWidth         *int      `hcl:"canvas_width,optional"`
	CanvasHeight        *int      `hcl:"canvas_height,optional"`
	DefaultDate         *string   `hcl:"default_date,optional"`
}

type sourceBody struct {
	Name      string  `hcl:"name,label"`
	Type      string  `hcl:"type"`
	URL       *string `hcl:"url,optional"`
	File      *string `hcl:"file,optional"`
	HandleAs  *string `hcl:"handle_as,optional"`
	LayerType *string `hcl:"layer_type,optional"`
	Defaults  *string `hcl:"defaults,optional"`
	Merge     *bool   `hcl:"merge,optional"`
}

type httpBody struct {
	Listen *string `hcl:"listen,optional"`
	Debug  *bool   `hcl:"debug,optional"`
}

type logBody struct {
	Console        *bool       `hcl:"console,optional"`
	Filename       *string     `hcl:"filename,optional"`
	Append         *bool       `hcl:"append,optional"`
	RotateSchedule *string     `hcl:"rotate_schedule,optional"`
	MaxSize        *int        `hcl:"max_size,optional"`
	MaxBackups     *int        `hcl:"max_backups,optional"`
	MaxAge         *int        `hcl:"max_age,optional"`
	Compress       *bool       `hcl:"compress,optional"`
	UTC            *bool       `hcl:"utc,optional"`
	PrefixWidth    *int        `hcl:"prefix_width,optional"`
	DefaultLevel   *string     `hcl:"default_level,optional"`
	Levels         []levelBody `hcl:"level,block"`
}

type levelBody struct {
	Pattern string `hcl:"pattern,label"`
	Level   string `hcl:"level"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Viewer: ViewerConfig{
			DefaultProjection:   DefaultProjection,
			DeleteLayerPartials: true,
			DefaultExtent:       geo.WorldExtent,
			MaxZoom:             DefaultMaxZoom,
			MinZoomDistance3D:   DefaultMinZoomDistance,
			CanvasWidth:         DefaultCanvasWidth,
			CanvasHeight:        DefaultCanvasHeight,
		},
		HTTP: HTTPConfig{Listen: DefaultListen},
		Log:  logging.PresetConfigStdout,
	}
}

func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(content, path)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		cfg.Dir = abs
	}
	return cfg, nil
}

// Load parses an HCL document. filename only labels diagnostics.
func Load(content []byte, filename string) (*Config, error) {
	file, diag := hclsyntax.ParseConfig(content, filename, hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return nil, errors.New(diag.Error())
	}
	var body fileBody
	if diag := gohcl.DecodeBody(file.Body, evalContext(filename), &body); diag.HasErrors() {
		return nil, errors.New(diag.Error())
	}
	cfg := Default()
	if err := body.apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func evalContext(filename string) *hcl.EvalContext {
	dir := "."
	if filename != "" {
		dir = filepath.Dir(filename)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	funcs := make(map[string]function.Function, len(Functions))
	for k, v := range Functions {
		funcs[k] = v
	}
	return &hcl.EvalContext{
		Functions: funcs,
		Variables: map[string]cty.Value{
			"config_dir": cty.StringVal(dir),
		},
	}
}

func (b *fileBody) apply(cfg *Config) error {
	if v := b.Viewer; v != nil {
		if v.DefaultProjection != nil {
			proj, ok := geo.GetPreconfiguredProjection(*v.DefaultProjection)
			if !ok {
				return fmt.Errorf("viewer.default_projection: unknown projection %q", *v.DefaultProjection)
			}
			cfg.Viewer.DefaultProjection = proj.Code
		}
		if v.DeleteLayerPartials != nil {
			cfg.Viewer.DeleteLayerPartials = *v.DeleteLayerPartials
		}
		if v.DefaultBBoxExtent != nil {
			ext, err := geo.ExtentFromSlice(v.DefaultBBoxExtent)
			if err != nil {
				return fmt.Errorf("viewer.default_bbox_extent: %w", err)
			}
			cfg.Viewer.DefaultExtent = ext
		}
		if v.MaxZoom != nil {
			if *v.MaxZoom < 0 || *v.MaxZoom > 30 {
				return fmt.Errorf("viewer.max_zoom: %d out of range [0, 30]", *v.MaxZoom)
			}
			cfg.Viewer.MaxZoom = *v.MaxZoom
		}
		if v.MinZoomDistance3D != nil {
			if *v.MinZoomDistance3D <= 0 {
				return fmt.Errorf("viewer.min_zoom_distance_3d: must be positive, got %v", *v.MinZoomDistance3D)
			}
			cfg.Viewer.MinZoomDistance3D = *v.MinZoomDistance3D
		}
		if v.CanvasWidth != nil {
			if *v.CanvasWidth <= 0 {
				return fmt.Errorf("viewer.canvas_width: must be positive, got %d", *v.CanvasWidth)
			}
			cfg.Viewer.CanvasWidth = *v.CanvasWidth
		}
		if v.CanvasHeight != nil {
			if *v.CanvasHeight <= 0 {
				return fmt.Errorf("viewer.canvas_height: must be positive, got %d", *v.CanvasHeight)
			}
			cfg.Viewer.CanvasHeight = *v.CanvasHeight
		}
		if v.DefaultDate != nil {
			date, err := viewer.ParseDate(*v.DefaultDate)
			if err != nil {
				return fmt.Errorf("viewer.default_date: %w", err)
			}
			cfg.Viewer.DefaultDate = date
		}
	}

	names := map[string]bool{}
	for _, s := range b.Sources {
		if names[s.Name] {
			return fmt.Errorf("source %q: duplicate name", s.Name)
		}
		names[s.Name] = true
		sc, err := s.toConfig()
		if err != nil {
			return err
		}
		cfg.Sources = append(cfg.Sources, sc)
	}

	if h := b.HTTP; h != nil {
		if h.Listen != nil {
			if *h.Listen == "" {
				return errors.New("http.listen: empty address")
			}
			cfg.HTTP.Listen = *h.Listen
		}
		if h.Debug != nil {
			cfg.HTTP.Debug = *h.Debug
		}
	}

	if l := b.Log; l != nil {
		lc := &cfg.Log
		setIf(&lc.Console, l.Console)
		setIf(&lc.Filename, l.Filename)
		setIf(&lc.Append, l.Append)
		setIf(&lc.RotateSchedule, l.RotateSchedule)
		setIf(&lc.MaxSize, l.MaxSize)
		setIf(&lc.MaxBackups, l.MaxBackups)
		setIf(&lc.MaxAge, l.MaxAge)
		setIf(&lc.Compress, l.Compress)
		setIf(&lc.UTC, l.UTC)
		setIf(&lc.PrefixWidth, l.PrefixWidth)
		if l.DefaultLevel != nil {
			if _, ok := logging.ParseLogLevelP(*l.DefaultLevel); !ok {
				return fmt.Errorf("log.default_level: invalid level %q", *l.DefaultLevel)
			}
			lc.DefaultLevel = *l.DefaultLevel
		}
		for _, lv := range l.Levels {
			if _, ok := logging.ParseLogLevelP(lv.Level); !ok {
				return fmt.Errorf("log.level %q: invalid level %q", lv.Pattern, lv.Level)
			}
			lc.Levels = append(lc.Levels, logging.LevelConfig{Pattern: lv.Pattern, Level: lv.Level})
		}
	}
	return nil
}

func (s *sourceBody) toConfig() (SourceConfig, error) {
	kind, err := layers.ParseSourceKind(s.Type)
	if err != nil {
		return SourceConfig{}, fmt.Errorf("source %q type: %w", s.Name, err)
	}
	ret := SourceConfig{Name: s.Name, Type: kind, Merge: true}
	setIf(&ret.URL, s.URL)
	setIf(&ret.File, s.File)
	setIf(&ret.HandleAs, s.HandleAs)
	setIf(&ret.LayerType, s.LayerType)
	setIf(&ret.Merge, s.Merge)
	if (ret.URL == "") == (ret.File == "") {
		return SourceConfig{}, fmt.Errorf("source %q: exactly one of url or file is required", s.Name)
	}
	if ret.LayerType != "" && !layers.Type(ret.LayerType).Valid() {
		return SourceConfig{}, fmt.Errorf("source %q layer_type: unknown type %q", s.Name, ret.LayerType)
	}
	if s.Defaults != nil {
		if err := json.Unmarshal([]byte(*s.Defaults), &ret.Defaults); err != nil {
			return SourceConfig{}, fmt.Errorf("source %q defaults: %w", s.Name, err)
		}
	}
	return ret, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ViewerConfig converts the file into the coordinator configuration.
func (c *Config) ViewerConfig(log logging.Log) viewer.Config {
	return viewer.Config{
		DefaultProjection: c.Viewer.DefaultProjection,
		DeletePartials:    c.Viewer.DeleteLayerPartials,
		Date:              c.Viewer.DefaultDate,
		View: mapview.ViewOptions{
			Width:           c.Viewer.CanvasWidth,
			Height:          c.Viewer.CanvasHeight,
			Projection:      c.Viewer.DefaultProjection,
			DefaultExtent:   c.Viewer.DefaultExtent,
			MaxZoom:         c.Viewer.MaxZoom,
			MinZoomDistance: c.Viewer.MinZoomDistance3D,
			Log:             log,
		},
	}
}

// Location is where the source document is fetched from.
func (s SourceConfig) Location(dir string) string {
	if s.URL != "" {
		return s.URL
	}
	if filepath.IsAbs(s.File) || dir == "" {
		return s.File
	}
	return filepath.Join(dir, s.File)
}

// LoadOptions converts every source into the coordinator's load requests,
// in file order.
func (c *Config) LoadOptions() []viewer.LoadOptions {
	ret := make([]viewer.LoadOptions, 0, len(c.Sources))
	for _, s := range c.Sources {
		ops := map[string]any{}
		for k, v := range s.Defaults {
			ops[k] = v
		}
		if s.HandleAs != "" {
			ops["handleAs"] = s.HandleAs
		}
		if s.LayerType != "" {
			ops["type"] = s.LayerType
		}
		if len(ops) == 0 {
			ops = nil
		}
		ret = append(ret, viewer.LoadOptions{
			Location: s.Location(c.Dir),
			Source: layers.SourceOptions{
				Type:       s.Type,
				URL:        s.Location(c.Dir),
				DefaultOps: ops,
			},
			Merge: s.Merge,
		})
	}
	return ret
}

const DefaultHCL = `# dualview configuration

viewer {
  default_projection    = "EPSG:4326"
  delete_layer_partials = true
  default_bbox_extent   = [-180, -90, 180, 90]
  max_zoom              = 12
  min_zoom_distance_3d  = 500
  canvas_width          = 1024
  canvas_height         = 768
  # default_date        = "2024-01-01"
}

source "catalogue" {
  type = "json"
  file = "${config_dir}/layers.json"
}

# source "gibs" {
#   type      = "wmts/xml"
#   url       = "https://gibs.earthdata.nasa.gov/wmts/epsg4326/best/1.0.0/WMTSCapabilities.xml"
#   handle_as = "GIBS_raster"
#   defaults  = jsonencode({ mappingOptions = { projection = "EPSG:4326" } })
# }

http {
  listen = env("DUALVIEW_LISTEN", "127.0.0.1:5680")
  debug  = false
}

log {
  filename      = "-"
  default_level = "INFO"
  level "mapview/*" {
    level = "WARN"
  }
}
`
