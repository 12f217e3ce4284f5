package layers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeDeep(t *testing.T) {
	dst := map[string]any{
		"id":    "a",
		"title": "capability",
		"mappingOptions": map[string]any{
			"url":     "https://x",
			"extents": []any{-180.0, -90.0, 180.0, 90.0},
		},
	}
	src := map[string]any{
		"title": "json",
		"mappingOptions": map[string]any{
			"extents": []any{0.0, 0.0, 1.0, 1.0},
		},
	}
	ret := mergeDeep(dst, src)
	require.Equal(t, "json", ret["title"])
	mo := ret["mappingOptions"].(map[string]any)
	require.Equal(t, "https://x", mo["url"])
	require.Equal(t, []any{0.0, 0.0, 1.0, 1.0}, mo["extents"])

	// inputs untouched
	require.Equal(t, "capability", dst["title"])
	require.Equal(t, []any{-180.0, -90.0, 180.0, 90.0}, dst["mappingOptions"].(map[string]any)["extents"])
}

func TestFoldPartial(t *testing.T) {
	xml := Descriptor{Fields: map[string]any{"id": "a", "title": "xml", "handleAs": "wmts_raster"}, Source: SourceWMTSXML}
	js := Descriptor{Fields: map[string]any{"id": "a", "title": "json"}, Source: SourceJSON, FromJSON: true}

	ret := foldPartial(xml, js)
	require.Equal(t, "json", ret.Title())
	require.Equal(t, "wmts_raster", ret.Fields["handleAs"])
	require.True(t, ret.FromJSON)

	ret = foldPartial(js, xml)
	require.Equal(t, "json", ret.Title())
	require.Equal(t, "wmts_raster", ret.Fields["handleAs"])
	require.True(t, ret.FromJSON)
}

func TestTemplateFillsGapsOnly(t *testing.T) {
	fields := mergeDeep(layerTemplate(), map[string]any{"id": "a", "type": "data", "opacity": 0.3, "isSelected": false})
	rec, err := decodeRecord(fields)
	require.NoError(t, err)
	require.Equal(t, 0.3, rec.Opacity)
	require.False(t, rec.IsSelected)
	require.Equal(t, 1, rec.DisplayIndex)
	require.NotNil(t, rec.MappingOptions.URLFunctions)
}

func TestTargetIndex(t *testing.T) {
	require.Equal(t, 4, DirectionTop.TargetIndex(1, 0, 4))
	require.Equal(t, 0, DirectionBottom.TargetIndex(3, 0, 4))
	require.Equal(t, 4, DirectionUp.TargetIndex(4, 0, 4))
	require.Equal(t, 1, DirectionDown.TargetIndex(1, 1, 4))
	require.Equal(t, 2, DirectionUp.TargetIndex(1, 0, 4))
}
