package globe

import (
	"slices"

	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/mapview"
)

func (m *Map) layerLocked(rec *layers.Record) (*globeLayer, error) {
	gl, created, err := m.cache.GetOrCreate(rec.ID, "", func() (*globeLayer, error) {
		return newLayer(rec)
	})
	if created {
		m.stats.LayersCreated++
	}
	return gl, err
}

func (m *Map) CreateLayer(rec *layers.Record) bool {
	return mapview.Guard(m.log, "create layer", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, err := m.layerLocked(rec); err != nil {
			m.log.Warnf("%s create layer %q, %s", m.name, rec.ID, err.Error())
			return false
		}
		return true
	})
}

func (m *Map) ActivateLayer(rec *layers.Record, active bool) bool {
	return mapview.Guard(m.log, "activate layer", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		coll, idx := m.locateLocked(rec.ID)
		if !active {
			if idx < 0 {
				return true
			}
			gl := (*coll)[idx]
			gl.visible = false
			*coll = slices.Delete(*coll, idx, idx+1)
			renumber(*coll, gl.rank)
			return true
		}
		gl, err := m.layerLocked(rec)
		if err != nil {
			m.log.Warnf("%s activate layer %q, %s", m.name, rec.ID, err.Error())
			return false
		}
		if idx >= 0 {
			*coll = slices.Delete(*coll, idx, idx+1)
			m.stats.Reorders++
		}
		gl.display = rec.DisplayIndex
		gl.visible = true
		gl.setOpacity(rec.Opacity)
		target := m.collection(gl.strategy.Kind)
		at := len(*target)
		for i, e := range *target {
			if e.rank > gl.rank || (e.rank == gl.rank && e.display > gl.display) {
				at = i
				break
			}
		}
		*target = slices.Insert(*target, at, gl)
		return true
	})
}

func renumber(coll []*globeLayer, rank int) {
	n := 0
	for _, gl := range coll {
		if gl.rank == rank {
			n++
			gl.display = n
		}
	}
}

// MoveLayer raises or lowers a layer one step at a time until it reaches
// its target within the group, so no tile is requested again.
func (m *Map) MoveLayer(id string, dir layers.Direction) bool {
	return mapview.Guard(m.log, "move layer", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		coll, cur := m.locateLocked(id)
		if cur < 0 {
			m.log.Warnf("%s move layer %q, not shown", m.name, id)
			return false
		}
		list := *coll
		gl := list[cur]
		lo, hi := -1, -1
		for i, e := range list {
			if e.rank == gl.rank {
				if lo < 0 {
					lo = i
				}
				hi = i
			}
		}
		target := dir.TargetIndex(cur, lo, hi)
		for cur < target {
			list[cur], list[cur+1] = list[cur+1], list[cur]
			cur++
			m.stats.Reorders++
		}
		for cur > target {
			list[cur], list[cur-1] = list[cur-1], list[cur]
			cur--
			m.stats.Reorders++
		}
		renumber(list, gl.rank)
		return true
	})
}

func (m *Map) SetLayerOpacity(id string, opacity float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == mapview.DrawingsLayerID {
		m.drawings.setOpacity(opacity)
		return true
	}
	gl, ok := m.cache.Get(id, "")
	if !ok {
		m.log.Warnf("%s set opacity %q, layer not created", m.name, id)
		return false
	}
	gl.setOpacity(opacity)
	return true
}

func (m *Map) RemoveLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := false
	if coll, idx := m.locateLocked(id); idx >= 0 {
		rank := (*coll)[idx].rank
		*coll = slices.Delete(*coll, idx, idx+1)
		renumber(*coll, rank)
		removed = true
	}
	if m.cache.Invalidate(id) > 0 {
		removed = true
	}
	return removed
}

// LayerOrder lists imagery, vector data sources and tilesets bottom
// first, then the drawn primitives.
func (m *Map) LayerOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []string
	for _, coll := range [][]*globeLayer{m.imagery, m.dataSources, m.tilesets} {
		for _, gl := range coll {
			ret = append(ret, gl.rec.ID)
		}
	}
	return append(ret, mapview.DrawingsLayerID)
}

func (m *Map) LayerState(id string) (mapview.LayerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == mapview.DrawingsLayerID {
		return stateOf(m.drawings, len(m.imagery)+len(m.dataSources)+len(m.tilesets)), true
	}
	offset := 0
	for _, coll := range [][]*globeLayer{m.imagery, m.dataSources, m.tilesets} {
		for i, gl := range coll {
			if gl.rec.ID == id {
				return stateOf(gl, offset+i), true
			}
		}
		offset += len(coll)
	}
	if gl, ok := m.cache.Get(id, ""); ok {
		return stateOf(gl, -1), true
	}
	return mapview.LayerState{}, false
}

func stateOf(gl *globeLayer, idx int) mapview.LayerState {
	return mapview.LayerState{
		ID:          gl.rec.ID,
		Kind:        gl.strategy.Kind,
		Visible:     gl.visible && idx >= 0,
		Index:       idx,
		Opacity:     gl.opacity,
		FillAlpha:   gl.fill,
		StrokeAlpha: gl.stroke,
		Extent:      gl.extent,
		Source:      gl.source,
	}
}
