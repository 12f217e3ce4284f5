package layers_test

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/stretchr/testify/require"
)

func loadTestData(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("..", "capabilities", "testdata", name))
	require.NoError(t, err)
	return b
}

func newRegistry(t *testing.T, opts ...layers.Option) (*layers.Registry, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts = append(opts, layers.WithLogger(logging.NewLog("layers", buf)))
	return layers.NewRegistry(opts...), buf
}

const modisJSON = `{"layers":[{"id":"MODIS_Terra","title":"MODIS from catalogue","type":"data","metadata":{"source":"json"}}]}`

func TestIngestWMTS(t *testing.T) {
	reg, _ := newRegistry(t)
	descs, err := reg.Ingest(loadTestData(t, "wmts_modis.xml"), layers.SourceOptions{Type: layers.SourceWMTSXML})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.Len(t, reg.Pending(), 1)

	result := reg.MergeLayers()
	require.Len(t, result.Added, 1)
	require.Empty(t, result.Unmatched)
	require.Empty(t, reg.Pending())

	all := reg.List("")
	require.Len(t, all, 1)
	rec := all[0]
	require.Equal(t, "MODIS_Terra", rec.ID)
	require.Equal(t, layers.TypeData, rec.Type)
	require.False(t, rec.IsActive)
	require.True(t, rec.IsSelected)
	require.Equal(t, 1.0, rec.Opacity)
	require.Equal(t, layers.HandleAsWMTSRaster, rec.HandleAs)
	require.Equal(t, "EPSG:4326", rec.MappingOptions.Projection)
	require.Equal(t, "kvpTimeParam_wmts", rec.MappingOptions.URLFunctions["flat"])
	require.NotNil(t, rec.MappingOptions.TileGrid)
	require.Equal(t, []string{"0", "1", "2"}, rec.MappingOptions.TileGrid.MatrixIDs)
	require.Equal(t, true, rec.UpdateParameters["time"])
}

func TestMergePrecedence(t *testing.T) {
	orders := map[string][]layers.SourceKind{
		"json-first": {layers.SourceJSON, layers.SourceWMTSXML},
		"wmts-first": {layers.SourceWMTSXML, layers.SourceJSON},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			reg, _ := newRegistry(t)
			for _, kind := range order {
				doc := []byte(modisJSON)
				if kind == layers.SourceWMTSXML {
					doc = loadTestData(t, "wmts_modis.xml")
				}
				_, err := reg.Ingest(doc, layers.SourceOptions{Type: kind})
				require.NoError(t, err)
			}
			result := reg.MergeLayers()
			require.Len(t, result.Added, 1)
			require.Empty(t, result.Unmatched)

			rec, ok := reg.Get(layers.TypeData, "MODIS_Terra")
			require.True(t, ok)
			require.Equal(t, "MODIS from catalogue", rec.Title)
			// capability-only fields are kept
			require.Equal(t, "250m", rec.MappingOptions.MatrixSet)
			require.Equal(t, "json", rec.Metadata["source"])
		})
	}
}

func TestMergeEmptyQueue(t *testing.T) {
	reg, buf := newRegistry(t)
	result := reg.MergeLayers()
	require.Empty(t, result.Added)
	require.Empty(t, result.Unmatched)
	require.Empty(t, reg.List(""))
	require.Empty(t, buf.String())
}

func TestMergeCollision(t *testing.T) {
	reg, buf := newRegistry(t)
	_, err := reg.Ingest([]byte(modisJSON), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	require.Len(t, reg.MergeLayers().Added, 1)

	other := `{"layers":[{"id":"MODIS_Terra","title":"second","type":"data"}]}`
	_, err = reg.Ingest([]byte(other), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	result := reg.MergeLayers()
	require.Empty(t, result.Added)
	require.Len(t, result.Unmatched, 1)
	require.Equal(t, []string{"data/MODIS_Terra"}, result.Collisions)
	require.Len(t, reg.Unmatched(), 1)
	require.Contains(t, buf.String(), "WARN")

	rec, _ := reg.Get(layers.TypeData, "MODIS_Terra")
	require.Equal(t, "MODIS from catalogue", rec.Title)

	// kept for a later pass
	pending := reg.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, "second", pending[0].Title())
}

func TestMergeDeletePartials(t *testing.T) {
	reg, _ := newRegistry(t, layers.WithDeletePartials(true))
	_, err := reg.Ingest([]byte(`{"layers":[{"id":"no_type"},{"title":"no id","type":"data"}]}`), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	result := reg.MergeLayers()
	require.Len(t, result.Unmatched, 2)
	require.Empty(t, result.Collisions)
	require.Empty(t, reg.Pending())
}

func TestMergeKeepsUnmatchedUntilTyped(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Ingest([]byte(`{"layers":[{"id":"late","title":"Late layer"}]}`), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	require.Len(t, reg.MergeLayers().Unmatched, 1)
	require.Len(t, reg.Pending(), 1)

	_, err = reg.Ingest([]byte(`{"layers":[{"id":"late","type":"reference"}]}`), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	result := reg.MergeLayers()
	require.Len(t, result.Added, 1)
	require.Equal(t, "Late layer", result.Added[0].Title)
	require.Equal(t, layers.TypeReference, result.Added[0].Type)
	require.Empty(t, reg.Pending())
}

func TestIngestUnknownSource(t *testing.T) {
	reg, buf := newRegistry(t)
	descs, err := reg.Ingest([]byte("whatever"), layers.SourceOptions{Type: "csv"})
	require.ErrorIs(t, err, layers.ErrUnknownSource)
	require.Empty(t, descs)
	require.Empty(t, reg.Pending())
	require.Contains(t, buf.String(), "WARN")

	descs, err = reg.Ingest([]byte("<Capabilities"), layers.SourceOptions{Type: layers.SourceWMTSXML})
	require.Error(t, err)
	require.Empty(t, descs)
	require.Empty(t, reg.Pending())
}

func TestIngestTilesetAsJSON(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Ingest(loadTestData(t, "tileset_meta.json"), layers.SourceOptions{
		Type:       layers.SourceJSON,
		DefaultOps: map[string]any{"handleAs": "vector_3d_tiles"},
	})
	require.NoError(t, err)
	reg.MergeLayers()
	rec, ok := reg.Get(layers.TypeData, "city_buildings")
	require.True(t, ok)
	require.Equal(t, layers.HandleAsVector3DTiles, rec.HandleAs)
	require.Equal(t, false, rec.UpdateParameters["time"])
	require.Equal(t, []float64{126.8, 37.4, 127.2, 37.7}, rec.MappingOptions.Extents)
}

func TestIngestDefaultOpsOverride(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Ingest(loadTestData(t, "wms_130.xml"), layers.SourceOptions{
		Type:       layers.SourceWMSXML,
		DefaultOps: map[string]any{"type": "reference", "opacity": 0.5},
	})
	require.NoError(t, err)
	result := reg.MergeLayers()
	require.Len(t, result.Added, 2)
	for _, rec := range reg.List(layers.TypeReference) {
		require.Equal(t, 0.5, rec.Opacity)
		require.Equal(t, layers.HandleAsWMSRaster, rec.HandleAs)
		require.Equal(t, "kvpTimeParam_wms", rec.MappingOptions.URLFunctions["globe"])
	}
}

func TestIngestFillDefaults(t *testing.T) {
	doc := []byte(`{"layers":[
		{"id":"bm","type":"basemap","handleAs":"xyz_raster"},
		{"id":"plain","title":"No type"}
	]}`)
	reg, _ := newRegistry(t)
	_, err := reg.Ingest(doc, layers.SourceOptions{Type: layers.SourceJSON, FillDefaults: true})
	require.NoError(t, err)
	result := reg.MergeLayers()
	require.Len(t, result.Added, 2)
	require.Empty(t, result.Unmatched)

	bm, ok := reg.Get(layers.TypeBasemap, "bm")
	require.True(t, ok)
	require.Equal(t, layers.HandleAsXYZRaster, bm.HandleAs)
	plain, ok := reg.Get(layers.TypeData, "plain")
	require.True(t, ok)
	require.Equal(t, layers.HandleAsWMSRaster, plain.HandleAs)
	require.Equal(t, "kvpTimeParam_wms", plain.MappingOptions.URLFunctions["flat"])

	// caller options still win over the base
	reg, _ = newRegistry(t)
	_, err = reg.Ingest(doc, layers.SourceOptions{Type: layers.SourceJSON, FillDefaults: true,
		DefaultOps: map[string]any{"type": "reference"}})
	require.NoError(t, err)
	require.Len(t, reg.MergeLayers().Added, 2)
	require.Len(t, reg.List(layers.TypeReference), 2)

	// without the base a typeless layer waits for its type
	reg, _ = newRegistry(t)
	_, err = reg.Ingest(doc, layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	require.Len(t, reg.MergeLayers().Unmatched, 1)

	reg, _ = newRegistry(t)
	_, err = reg.Ingest(loadTestData(t, "tileset_meta.json"), layers.SourceOptions{Type: layers.SourceTileset, FillDefaults: true})
	require.NoError(t, err)
	added := reg.MergeLayers().Added
	require.Len(t, added, 1)
	require.Equal(t, layers.HandleAsVector3DTiles, added[0].HandleAs)
	require.Equal(t, layers.TypeData, added[0].Type)
}

func TestUniqueSlots(t *testing.T) {
	docs := []string{
		`{"layers":[{"id":"a","type":"data"},{"id":"b","type":"basemap"}]}`,
		`{"layers":[{"id":"a","type":"reference"},{"id":"a","type":"data","title":"dup"}]}`,
		`{"layers":[{"id":"b","type":"basemap"},{"id":"c","type":"data"},{"id":"c"}]}`,
	}
	rnd := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		reg, _ := newRegistry(t)
		for i := 0; i < 6; i++ {
			doc := docs[rnd.Intn(len(docs))]
			reg.Ingest([]byte(doc), layers.SourceOptions{Type: layers.SourceJSON})
			if rnd.Intn(2) == 0 {
				reg.MergeLayers()
			}
		}
		reg.MergeLayers()
		seen := map[string]bool{}
		for _, rec := range reg.List("") {
			key := fmt.Sprintf("%s/%s", rec.Type, rec.ID)
			require.False(t, seen[key], key)
			seen[key] = true
		}
	}
}

func mergedRegistry(t *testing.T) *layers.Registry {
	t.Helper()
	reg, _ := newRegistry(t)
	doc := `{"layers":[
		{"id":"bm1","type":"basemap","isDefault":true,"mappingOptions":{"projection":"EPSG:4326"}},
		{"id":"bm2","type":"basemap","isDefault":true,"mappingOptions":{"projection":"EPSG:3857"}},
		{"id":"d1","type":"data"},{"id":"d2","type":"data"},{"id":"d3","type":"data"},
		{"id":"r1","type":"reference"}
	]}`
	_, err := reg.Ingest([]byte(doc), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	require.Len(t, reg.MergeLayers().Added, 6)
	return reg
}

func activeIDs(reg *layers.Registry, typ layers.Type) []string {
	var ret []string
	for _, rec := range reg.Active(typ) {
		ret = append(ret, rec.ID)
	}
	return ret
}

func TestActivateAndMove(t *testing.T) {
	reg := mergedRegistry(t)
	for _, id := range []string{"d1", "d2", "d3"} {
		rec, err := reg.SetActive(id, true)
		require.NoError(t, err)
		require.True(t, rec.IsActive)
	}
	require.Equal(t, []string{"d1", "d2", "d3"}, activeIDs(reg, layers.TypeData))

	_, err := reg.Move("d1", layers.DirectionTop)
	require.NoError(t, err)
	first := activeIDs(reg, layers.TypeData)
	require.Equal(t, []string{"d2", "d3", "d1"}, first)
	_, err = reg.Move("d1", layers.DirectionTop)
	require.NoError(t, err)
	require.Equal(t, first, activeIDs(reg, layers.TypeData))

	_, err = reg.Move("d1", layers.DirectionDown)
	require.NoError(t, err)
	require.Equal(t, []string{"d2", "d1", "d3"}, activeIDs(reg, layers.TypeData))
	_, err = reg.Move("d2", layers.DirectionBottom)
	require.NoError(t, err)
	_, err = reg.Move("d3", layers.DirectionUp)
	require.NoError(t, err)
	require.Equal(t, []string{"d2", "d1", "d3"}, activeIDs(reg, layers.TypeData))

	for i, rec := range reg.Active(layers.TypeData) {
		require.Equal(t, i+1, rec.DisplayIndex)
	}

	_, err = reg.SetActive("d1", false)
	require.NoError(t, err)
	require.Equal(t, []string{"d2", "d3"}, activeIDs(reg, layers.TypeData))

	_, err = reg.Move("d1", layers.DirectionUp)
	require.ErrorIs(t, err, layers.ErrNotActive)
	_, err = reg.SetActive("nope", true)
	require.ErrorIs(t, err, layers.ErrNotFound)
}

func TestSetOpacity(t *testing.T) {
	reg := mergedRegistry(t)
	for _, v := range []float64{0, 0.1, 0.25, 0.333, 0.5, 0.99, 1} {
		rec, err := reg.SetOpacity("d1", v)
		require.NoError(t, err)
		require.Equal(t, v, rec.Opacity)
		stored, _ := reg.Find("d1")
		require.Equal(t, v, stored.Opacity)
	}
	rec, err := reg.SetOpacity("d1", 1.7)
	require.NoError(t, err)
	require.Equal(t, 1.0, rec.Opacity)
	rec, err = reg.SetOpacity("d1", -3)
	require.NoError(t, err)
	require.Equal(t, 0.0, rec.Opacity)
}

func TestSelectionAndRemoval(t *testing.T) {
	reg := mergedRegistry(t)
	changed := reg.ClearSelected("")
	require.Len(t, changed, 3)
	for _, rec := range reg.List(layers.TypeData) {
		require.False(t, rec.IsSelected)
	}
	rec, _ := reg.Find("r1")
	require.True(t, rec.IsSelected)

	rec, err := reg.SetSelected("d2", true)
	require.NoError(t, err)
	require.True(t, rec.IsSelected)

	_, err = reg.SetActive("d2", true)
	require.NoError(t, err)
	removed, err := reg.Remove("d2")
	require.NoError(t, err)
	require.Equal(t, "d2", removed.ID)
	require.True(t, removed.IsActive)
	require.True(t, removed.IsSelected)
	_, ok := reg.Find("d2")
	require.False(t, ok)

	// the removed record is a copy, so committing d2 again starts clean
	removed.Title = "changed"
	removed.IsActive = true
	_, err = reg.Ingest([]byte(`{"layers":[{"id":"d2","type":"data","title":"again"}]}`), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	require.Len(t, reg.MergeLayers().Added, 1)
	again, ok := reg.Get(layers.TypeData, "d2")
	require.True(t, ok)
	require.Equal(t, "again", again.Title)
	require.False(t, again.IsActive)
	require.Equal(t, "changed", removed.Title)

	_, err = reg.Remove("d2")
	require.NoError(t, err)
	_, err = reg.Remove("d2")
	require.ErrorIs(t, err, layers.ErrNotFound)
}

func TestDefaultBasemap(t *testing.T) {
	reg := mergedRegistry(t)
	rec, ok := reg.DefaultBasemap("EPSG:3857")
	require.True(t, ok)
	require.Equal(t, "bm2", rec.ID)
	_, ok = reg.DefaultBasemap("EPSG:3031")
	require.False(t, ok)

	snap := reg.Snapshot()
	require.Len(t, snap[layers.TypeBasemap], 2)
	require.Len(t, snap[layers.TypeData], 3)
	require.Len(t, snap[layers.TypeReference], 1)

	// snapshots are copies
	snap[layers.TypeData][0].Title = "changed"
	rec, _ = reg.Find(snap[layers.TypeData][0].ID)
	require.Equal(t, "", rec.Title)
}

func TestMergeReindexesActive(t *testing.T) {
	reg, _ := newRegistry(t)
	doc := `{"layers":[
		{"id":"a","type":"data","isActive":true},
		{"id":"b","type":"data","isActive":true},
		{"id":"c","type":"data"}
	]}`
	_, err := reg.Ingest([]byte(doc), layers.SourceOptions{Type: layers.SourceJSON})
	require.NoError(t, err)
	reg.MergeLayers()
	active := reg.Active(layers.TypeData)
	require.Len(t, active, 2)
	require.Equal(t, "a", active[0].ID)
	require.Equal(t, 1, active[0].DisplayIndex)
	require.Equal(t, "b", active[1].ID)
	require.Equal(t, 2, active[1].DisplayIndex)
}
