package viewer

import (
	"context"
	"fmt"

	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
)

// LoadOptions describe one source document to load.
type LoadOptions struct {
	Location string               `json:"location"`
	Source   layers.SourceOptions `json:"options"`
	Merge    bool                 `json:"merge"`
}

func (v *Viewer) Ingest(raw []byte, opts layers.SourceOptions) ([]layers.Descriptor, error) {
	return v.registry.Ingest(raw, opts)
}

func (v *Viewer) MergeLayers() layers.MergeResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.MergeLayers()
}

// LoadLayerSource fetches a document, queues its layers and merges them
// when asked. Layers of every source kind start from BaseLayerOps. Only
// the fetch waits; the coordinator is locked for the merge alone.
func (v *Viewer) LoadLayerSource(ctx context.Context, opts LoadOptions) (layers.MergeResult, error) {
	if v.fetcher == nil {
		return layers.MergeResult{}, ErrNoFetcher
	}
	if opts.Source.URL == "" {
		opts.Source.URL = opts.Location
	}
	opts.Source.FillDefaults = true
	doc, err := v.fetcher.Fetch(ctx, opts.Location)
	if err != nil {
		return layers.MergeResult{}, fmt.Errorf("load %s, %w", opts.Location, err)
	}
	if _, err := v.registry.Ingest(doc, opts.Source); err != nil {
		v.log.Warnf("load %s, %s", opts.Location, err.Error())
	}
	if !opts.Merge {
		return layers.MergeResult{}, nil
	}
	return v.MergeLayers(), nil
}

// InitOptions override the initial view. Extent is given in
// ExtentProjection, EPSG:4326 when empty.
type InitOptions struct {
	Projection       string      `json:"projection,omitempty"`
	Extent           *geo.Extent `json:"extent,omitempty"`
	ExtentProjection string      `json:"extentProjection,omitempty"`
}

// InitializeMap merges whatever is queued, shows the layers that are
// active in the registry, falls back to the default basemap and resets
// both views. The projection and then the extent of opts are applied
// last; the maps stay initialized when either fails.
func (v *Viewer) InitializeMap(opts InitOptions) (layers.MergeResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	result := v.registry.MergeLayers()
	for _, rec := range v.registry.List("") {
		if !rec.IsActive {
			continue
		}
		for _, m := range v.maps() {
			if !m.ActivateLayer(rec, true) {
				v.raiseLocked(Alert{Kind: AlertLayerFailed, LayerID: rec.ID, Maps: []string{m.Name()},
					Message: fmt.Sprintf("layer %q could not be shown", rec.ID)})
			}
		}
	}
	if len(v.registry.Active(layers.TypeBasemap)) == 0 {
		v.activateDefaultBasemapLocked()
	}
	for _, m := range v.maps() {
		m.ResetView()
	}
	if opts.Projection != "" {
		proj, ok := geo.GetPreconfiguredProjection(opts.Projection)
		if !ok {
			return result, fmt.Errorf("%w: %q", geo.ErrUnknownProjection, opts.Projection)
		}
		if err := v.setProjectionLocked(proj); err != nil {
			return result, err
		}
	}
	if opts.Extent != nil {
		if err := v.setMapViewLocked(*opts.Extent, opts.ExtentProjection, true); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ActivateLayer shows or hides a layer on both maps.
func (v *Viewer) ActivateLayer(id string, active bool) (*layers.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activateLocked(id, active)
}

func (v *Viewer) activateLocked(id string, active bool) (*layers.Record, error) {
	rec, err := v.registry.SetActive(id, active)
	if err != nil {
		return nil, err
	}
	var failed []string
	for _, m := range v.maps() {
		if !m.ActivateLayer(rec, active) {
			failed = append(failed, m.Name())
		}
	}
	if len(failed) > 0 {
		v.raiseLocked(Alert{Kind: AlertLayerFailed, LayerID: id, Maps: failed,
			Message: fmt.Sprintf("layer %q could not be shown", id)})
	}
	return rec, nil
}

func (v *Viewer) SetLayerOpacity(id string, opacity float64) (*layers.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, err := v.registry.SetOpacity(id, opacity)
	if err != nil {
		return nil, err
	}
	for _, m := range v.maps() {
		if _, ok := m.LayerState(id); ok {
			m.SetLayerOpacity(id, rec.Opacity)
		}
	}
	return rec, nil
}

func (v *Viewer) MoveLayer(id string, dir layers.Direction) (*layers.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, err := v.registry.Move(id, dir)
	if err != nil {
		return nil, err
	}
	for _, m := range v.maps() {
		m.MoveLayer(id, dir)
	}
	return rec, nil
}

func (v *Viewer) SetLayerSelected(id string, selected bool) (*layers.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.SetSelected(id, selected)
}

func (v *Viewer) ClearSelectedLayers() []*layers.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.ClearSelected(layers.TypeData)
}

// RemoveLayerFromApp removes a layer from both maps, drops their cached
// native layers and deletes the record.
func (v *Viewer) RemoveLayerFromApp(id string) (*layers.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.registry.Find(id); !ok {
		return nil, fmt.Errorf("%w: %q", layers.ErrNotFound, id)
	}
	for _, m := range v.maps() {
		m.RemoveLayer(id)
	}
	return v.registry.Remove(id)
}

// ZoomToLayer fits the active map to the layer extents.
func (v *Viewer) ZoomToLayer(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.registry.Find(id)
	if !ok {
		return fmt.Errorf("%w: %q", layers.ErrNotFound, id)
	}
	ext, proj, err := rec.MappingOptions.Extent()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoLayerExtent, err.Error())
	}
	if !v.activeLocked().SetExtent(ext, proj) {
		return fmt.Errorf("%w: %q in %s", ErrNoLayerExtent, id, proj)
	}
	return nil
}

// SetBasemap hides the shown basemaps and shows id.
func (v *Viewer) SetBasemap(id string) (*layers.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.registry.Get(layers.TypeBasemap, id)
	if !ok {
		return nil, fmt.Errorf("%w: basemap %q", layers.ErrNotFound, id)
	}
	if rec.IsActive {
		return rec, nil
	}
	v.hideBasemapsLocked()
	return v.activateLocked(id, true)
}

func (v *Viewer) HideBasemap() []*layers.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hideBasemapsLocked()
}

func (v *Viewer) hideBasemapsLocked() []*layers.Record {
	var hidden []*layers.Record
	for _, rec := range v.registry.Active(layers.TypeBasemap) {
		if r, err := v.activateLocked(rec.ID, false); err == nil {
			hidden = append(hidden, r)
		}
	}
	return hidden
}

// ActivateDefaultBasemap shows the default basemap of the current
// projection.
func (v *Viewer) ActivateDefaultBasemap() (*layers.Record, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activateDefaultBasemapLocked()
}

func (v *Viewer) activateDefaultBasemapLocked() (*layers.Record, bool) {
	rec, ok := v.registry.DefaultBasemap(v.projection)
	if !ok {
		return nil, false
	}
	if rec.IsActive {
		return rec, true
	}
	rec, err := v.activateLocked(rec.ID, true)
	return rec, err == nil
}
