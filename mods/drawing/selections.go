package drawing

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// AreaSelections holds the canonical copy of every geometry drawn on at
// least one map.
type AreaSelections struct {
	mu    sync.RWMutex
	items map[string]*Geometry
}

func NewAreaSelections() *AreaSelections {
	return &AreaSelections{items: map[string]*Geometry{}}
}

func (as *AreaSelections) Put(g *Geometry) {
	as.mu.Lock()
	as.items[g.ID] = g.Clone()
	as.mu.Unlock()
}

func (as *AreaSelections) Get(id string) (*Geometry, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	g, ok := as.items[id]
	return g.Clone(), ok
}

func (as *AreaSelections) Remove(id string) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	_, ok := as.items[id]
	delete(as.items, id)
	return ok
}

func (as *AreaSelections) Clear() {
	as.mu.Lock()
	as.items = map[string]*Geometry{}
	as.mu.Unlock()
}

func (as *AreaSelections) Len() int {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return len(as.items)
}

// List returns every geometry in drawing order.
func (as *AreaSelections) List() []*Geometry {
	as.mu.RLock()
	ret := make([]*Geometry, 0, len(as.items))
	for _, g := range as.items {
		ret = append(ret, g.Clone())
	}
	as.mu.RUnlock()
	sort.Slice(ret, func(i, j int) bool {
		if !ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].CreatedAt.Before(ret[j].CreatedAt)
		}
		return ret[i].ID < ret[j].ID
	})
	return ret
}

// MarkPending records the maps a geometry is missing from. An empty list
// marks it fully synced.
func (as *AreaSelections) MarkPending(id string, maps []string) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	g, ok := as.items[id]
	if !ok {
		return fmt.Errorf("geometry %q not found", id)
	}
	g.PendingMaps = slices.Clone(maps)
	g.PartiallySynced = len(maps) > 0
	return nil
}

// FeatureCollection exports the selections as GeoJSON features carrying
// the record attributes as properties.
func (as *AreaSelections) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range as.List() {
		f := geojson.NewFeature(g.Orb())
		f.ID = g.ID
		f.Properties["type"] = string(g.Type)
		f.Properties["interaction"] = string(g.Interaction)
		f.Properties["partiallySynced"] = g.PartiallySynced
		if g.Type == GeometryCircle {
			f.Properties["center"] = []float64{g.Center[0], g.Center[1]}
			f.Properties["radius"] = g.Radius
			f.Properties["radiusDegrees"] = g.RadiusDegrees
		}
		if g.BBox != nil {
			f.BBox = geojson.BBox(g.BBox.Slice())
		}
		if g.Interaction == InteractionMeasure {
			f.Properties["measurement"] = g.Measurement
		}
		fc.Append(f)
	}
	return fc
}
