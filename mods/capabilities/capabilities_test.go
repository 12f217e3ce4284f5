package capabilities_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dualview/dualview/mods/capabilities"
	"github.com/stretchr/testify/require"
)

func loadTestData(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func TestParseWMTS(t *testing.T) {
	partials, err := capabilities.ParseWMTS(loadTestData(t, "wmts_modis.xml"))
	require.NoError(t, err)
	require.Len(t, partials, 1)

	p := partials[0]
	require.Equal(t, "MODIS_Terra", p.ID)
	require.Equal(t, "Corrected Reflectance (True Color, MODIS, Terra)", p.Title)
	require.Empty(t, p.Type)

	opts, ok := p.MappingOptions.(*capabilities.WMTSOptions)
	require.True(t, ok)
	require.Equal(t, "https://tiles.example.org/wmts/epsg4326/best/wmts.cgi?", opts.URL)
	require.Equal(t, "KVP", opts.RequestEncoding)
	require.Equal(t, "MODIS_Terra", opts.Layer)
	require.Equal(t, "image/jpeg", opts.Format)
	require.Equal(t, "250m", opts.MatrixSet)
	require.Equal(t, "EPSG:4326", opts.Projection)
	require.Equal(t, []float64{-180, -90, 180, 90}, opts.Extents)
	require.Equal(t, []float64{-180, 90}, opts.TileGrid.Origin)
	require.Equal(t, []string{"0", "1", "2"}, opts.TileGrid.MatrixIDs)
	require.Equal(t, 0, opts.TileGrid.MinZoom)
	require.Equal(t, 2, opts.TileGrid.MaxZoom)
	require.Equal(t, []int{512, 512}, opts.TileGrid.TileSize)
	require.Len(t, opts.TileGrid.Resolutions, 3)
	require.InDelta(t, 0.5631303958391441, opts.TileGrid.Resolutions[0], 1e-9)
	require.InDelta(t, 0.28156519791957224, opts.TileGrid.Resolutions[1], 1e-9)
}

func TestParseWMTSRest(t *testing.T) {
	partials, err := capabilities.ParseWMTS(loadTestData(t, "wmts_rest.xml"))
	// the orphan layer points to a matrix set that does not exist
	require.ErrorIs(t, err, capabilities.ErrNoMatrixSet)
	require.Len(t, partials, 1)

	opts := partials[0].MappingOptions.(*capabilities.WMTSOptions)
	require.Equal(t, "Sea_Ice_Arctic", partials[0].ID)
	require.Equal(t, "REST", opts.RequestEncoding)
	require.Equal(t, "image/png", opts.Format)
	require.Equal(t, "https://tiles.example.org/arctic/{TileMatrix}/{TileRow}/{TileCol}.png", opts.URL)
	require.Equal(t, "EPSG:3413", opts.Projection)
	require.Equal(t, []float64{-4194304, 4194304}, opts.TileGrid.Origin)
	require.InDelta(t, 8192.0, opts.TileGrid.Resolutions[0], 1e-6)

	// the 60N bbox fits inside the polar grid
	require.Len(t, opts.Extents, 4)
	require.Greater(t, opts.Extents[0], -4194304.0)
	require.Less(t, opts.Extents[2], 4194304.0)
	require.Less(t, opts.Extents[0], 0.0)
	require.Greater(t, opts.Extents[3], 0.0)
}

func TestParseWMTSMalformed(t *testing.T) {
	_, err := capabilities.ParseWMTS([]byte("<Capabilities><Contents>"))
	require.ErrorIs(t, err, capabilities.ErrMalformed)

	_, err = capabilities.ParseWMTS([]byte(`<Capabilities version="1.0.0"><Contents/></Capabilities>`))
	require.ErrorIs(t, err, capabilities.ErrNoLayers)
}

func TestParseWMS130(t *testing.T) {
	partials, err := capabilities.ParseWMS(loadTestData(t, "wms_130.xml"))
	require.NoError(t, err)
	require.Len(t, partials, 2)

	coast := partials[0]
	require.Equal(t, "Coastlines", coast.ID)
	require.Equal(t, capabilities.HandleAsWMS, coast.HandleAs)
	opts := coast.MappingOptions.(*capabilities.WMSOptions)
	require.Equal(t, "https://maps.example.org/wms?", opts.URL)
	require.Equal(t, "image/png", opts.Format)
	require.Equal(t, "1.3.0", opts.Version)
	require.Equal(t, "EPSG:4326", opts.Projection)
	require.Equal(t, []float64{-180, -85, 180, 85}, opts.Extents)

	grat := partials[1].MappingOptions.(*capabilities.WMSOptions)
	require.Equal(t, "Graticule", grat.Layer)
	require.Equal(t, "EPSG:3857", grat.Projection)
	require.Equal(t, []float64{-10, 30, 40, 70}, grat.Extents)
}

func TestParseWMSLatin1(t *testing.T) {
	doc := loadTestData(t, "wms_130.xml")
	doc = bytes.Replace(doc, []byte(`encoding="UTF-8"`), []byte(`encoding="ISO-8859-1"`), 1)
	doc = bytes.Replace(doc, []byte("<Title>Coastlines</Title>"), []byte("<Title>C\xf4tes</Title>"), 1)

	partials, err := capabilities.ParseWMS(doc)
	require.NoError(t, err)
	require.Equal(t, "Côtes", partials[0].Title)

	doc = bytes.Replace(doc, []byte(`encoding="ISO-8859-1"`), []byte(`encoding="x-unknown-charset"`), 1)
	_, err = capabilities.ParseWMS(doc)
	require.ErrorIs(t, err, capabilities.ErrMalformed)
}

func TestParseWMS111(t *testing.T) {
	partials, err := capabilities.ParseWMS(loadTestData(t, "wms_111.xml"))
	require.NoError(t, err)
	require.Len(t, partials, 1)
	opts := partials[0].MappingOptions.(*capabilities.WMSOptions)
	require.Equal(t, "borders", opts.Layer)
	require.Equal(t, "http://legacy.example.org/cgi-bin/wms?", opts.URL)
	require.Equal(t, "image/gif", opts.Format)
	require.Equal(t, "1.1.1", opts.Version)
	require.Equal(t, []float64{-20, -35, 55, 38}, opts.Extents)

	_, err = capabilities.ParseWMS([]byte(`<html><body/></html>`))
	require.ErrorIs(t, err, capabilities.ErrMalformed)
}

func TestParseTilesetMetadata(t *testing.T) {
	partials, err := capabilities.ParseTilesetMetadata(loadTestData(t, "tileset_meta.json"))
	require.NoError(t, err)
	require.Len(t, partials, 1)

	p := partials[0]
	require.Equal(t, "city_buildings", p.ID)
	require.Equal(t, "City Buildings 3D", p.Title)
	require.Equal(t, "data", p.Type)
	require.Equal(t, capabilities.HandleAs3DTiles, p.HandleAs)
	require.Equal(t, map[string]any{"time": false}, p.UpdateParameters)

	opts := p.MappingOptions.(*capabilities.TilesetOptions)
	require.Equal(t, "https://data.example.org/buildings/tileset.json", opts.URL)
	require.Equal(t, "EPSG:4326", opts.Projection)
	require.Equal(t, []float64{126.8, 37.4, 127.2, 37.7}, opts.Extents)
}

func TestParseTilesetMetadataDefaults(t *testing.T) {
	doc := []byte(`{"id":"t","links":[{"title":"(GET 3DTILES)","href":"https://x/tileset.json"}],"boxes":[]}`)
	partials, err := capabilities.ParseTilesetMetadata(doc)
	require.NoError(t, err)
	opts := partials[0].MappingOptions.(*capabilities.TilesetOptions)
	require.Equal(t, []float64{-180, -90, 180, 90}, opts.Extents)

	_, err = capabilities.ParseTilesetMetadata([]byte(`{"id":"t","links":[]}`))
	require.ErrorIs(t, err, capabilities.ErrNoTilesetURL)

	_, err = capabilities.ParseTilesetMetadata([]byte(`{"id":`))
	require.ErrorIs(t, err, capabilities.ErrMalformed)
}

func TestParseCatalogue(t *testing.T) {
	layers, err := capabilities.ParseCatalogue(loadTestData(t, "catalogue.json"))
	require.ErrorIs(t, err, capabilities.ErrMalformed)
	require.Len(t, layers, 2)
	require.Equal(t, "MODIS_Terra", layers[0]["id"])
	require.Equal(t, map[string]any{"url": "https://example.org/modis.json"}, layers[0]["metadata"])
	require.Equal(t, true, layers[1]["isDefault"])

	_, err = capabilities.ParseCatalogue([]byte(`{"items":[]}`))
	require.ErrorIs(t, err, capabilities.ErrMalformed)
}
