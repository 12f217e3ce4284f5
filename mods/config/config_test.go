package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dualview/dualview/mods/config"
	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load([]byte(``), "empty.hcl")
	require.NoError(t, err)
	require.Equal(t, "EPSG:4326", cfg.Viewer.DefaultProjection)
	require.True(t, cfg.Viewer.DeleteLayerPartials)
	require.Equal(t, geo.WorldExtent, cfg.Viewer.DefaultExtent)
	require.Equal(t, 12, cfg.Viewer.MaxZoom)
	require.Equal(t, 500.0, cfg.Viewer.MinZoomDistance3D)
	require.Equal(t, config.DefaultListen, cfg.HTTP.Listen)
	require.Empty(t, cfg.Sources)

	vc := cfg.ViewerConfig(nil)
	require.Equal(t, 1024, vc.View.Width)
	require.Equal(t, 768, vc.View.Height)
	require.Equal(t, "EPSG:4326", vc.View.Projection)
}

func TestLoad(t *testing.T) {
	t.Setenv("DUALVIEW_TEST_LISTEN", "0.0.0.0:9999")
	content := []byte(`
viewer {
  default_projection    = "epsg:3413"
  delete_layer_partials = false
  default_bbox_extent   = [100, 20, 140, 50]
  max_zoom              = 9
  min_zoom_distance_3d  = 250
  canvas_width          = 800
  canvas_height         = 600
  default_date          = "2024-03-01"
}

source "gibs" {
  type      = "wmts"
  url       = "https://example.com/wmts.xml"
  handle_as = "GIBS_raster"
  defaults  = jsonencode({ mappingOptions = { projection = "EPSG:3413" } })
}

source "local" {
  type       = "json"
  file       = "layers.json"
  layer_type = "basemap"
  merge      = false
}

http {
  listen = env("DUALVIEW_TEST_LISTEN", "127.0.0.1:1")
  debug  = true
}

log {
  filename      = "-"
  default_level = upper("warn")
  level "viewer" {
    level = "DEBUG"
  }
}
`)
	cfg, err := config.Load(content, "test.hcl")
	require.NoError(t, err)

	require.Equal(t, "EPSG:3413", cfg.Viewer.DefaultProjection)
	require.False(t, cfg.Viewer.DeleteLayerPartials)
	require.Equal(t, geo.Extent{100, 20, 140, 50}, cfg.Viewer.DefaultExtent)
	require.Equal(t, 9, cfg.Viewer.MaxZoom)
	require.Equal(t, 250.0, cfg.Viewer.MinZoomDistance3D)
	require.Equal(t, "0.0.0.0:9999", cfg.HTTP.Listen)
	require.True(t, cfg.HTTP.Debug)
	require.Equal(t, "WARN", cfg.Log.DefaultLevel)
	require.Len(t, cfg.Log.Levels, 1)
	require.Equal(t, "viewer", cfg.Log.Levels[0].Pattern)

	require.Len(t, cfg.Sources, 2)
	require.Equal(t, layers.SourceWMTSXML, cfg.Sources[0].Type)
	require.True(t, cfg.Sources[0].Merge)
	require.False(t, cfg.Sources[1].Merge)

	cfg.Dir = "/etc/dualview"
	opts := cfg.LoadOptions()
	require.Len(t, opts, 2)
	require.Equal(t, "https://example.com/wmts.xml", opts[0].Location)
	require.Equal(t, "GIBS_raster", opts[0].Source.DefaultOps["handleAs"])
	mo, ok := opts[0].Source.DefaultOps["mappingOptions"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "EPSG:3413", mo["projection"])
	require.Equal(t, filepath.Join("/etc/dualview", "layers.json"), opts[1].Location)
	require.Equal(t, "basemap", opts[1].Source.DefaultOps["type"])
	require.False(t, opts[1].Merge)

	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), cfg.Viewer.DefaultDate)

	vc := cfg.ViewerConfig(nil)
	require.False(t, vc.DeletePartials)
	require.Equal(t, cfg.Viewer.DefaultDate, vc.Date)
	require.Equal(t, 250.0, vc.View.MinZoomDistance)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"projection", `viewer { default_projection = "EPSG:9999" }`, "viewer.default_projection"},
		{"extent", `viewer { default_bbox_extent = [10, 10, 0, 0] }`, "viewer.default_bbox_extent"},
		{"extent_len", `viewer { default_bbox_extent = [10, 10] }`, "viewer.default_bbox_extent"},
		{"zoom", `viewer { max_zoom = 99 }`, "viewer.max_zoom"},
		{"distance", `viewer { min_zoom_distance_3d = 0 }`, "viewer.min_zoom_distance_3d"},
		{"width", `viewer { canvas_width = -1 }`, "viewer.canvas_width"},
		{"date", `viewer { default_date = "yesterday" }`, "viewer.default_date"},
		{"source_type", `source "a" { type = "csv"
url = "x" }`, `source "a" type`},
		{"source_location", `source "a" { type = "json" }`, "exactly one of url or file"},
		{"source_both", `source "a" { type = "json"
url = "x"
file = "y" }`, "exactly one of url or file"},
		{"source_layer_type", `source "a" { type = "json"
url = "x"
layer_type = "overlay" }`, `source "a" layer_type`},
		{"duplicate", `source "a" { type = "json"
url = "x" }
source "a" { type = "json"
url = "y" }`, "duplicate name"},
		{"defaults", `source "a" { type = "json"
url = "x"
defaults = "{" }`, `source "a" defaults`},
		{"level", `log { default_level = "LOUD" }`, "log.default_level"},
		{"listen", `http { listen = "" }`, "http.listen"},
		{"unknown_block", `database { }`, "database"},
		{"syntax", `viewer {`, "test.hcl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load([]byte(tt.content), "test.hcl")
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "viewer.hcl")
	require.NoError(t, os.WriteFile(path, []byte(config.DefaultHCL), 0o644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, dir, cfg.Dir)
	require.Len(t, cfg.Sources, 1)
	require.Equal(t, filepath.Join(dir, "layers.json"), cfg.LoadOptions()[0].Location)
	require.Equal(t, "INFO", cfg.Log.DefaultLevel)
}

func TestEnvFunc(t *testing.T) {
	cfg, err := config.Load([]byte(`http { listen = env("DUALVIEW_UNSET_VARIABLE", "127.0.0.1:7000") }`), "env.hcl")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.HTTP.Listen)
}
