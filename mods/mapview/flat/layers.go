package flat

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/mapview"
)

// newLayer builds the native layer of rec in proj.
func newLayer(rec *layers.Record, proj *geo.Projection) (*nativeLayer, error) {
	strategy, err := mapview.ResolveStrategy(rec)
	if err != nil {
		return nil, err
	}
	nl := &nativeLayer{
		rec:      rec.Clone(),
		strategy: strategy,
		rank:     rec.Type.Rank(),
		display:  rec.DisplayIndex,
		source:   describeSource(rec, "flat"),
		extent:   proj.Extent,
	}
	if nl.rank < 0 {
		return nil, fmt.Errorf("layer %q, invalid type %q", rec.ID, rec.Type)
	}
	if ext, code, err := rec.MappingOptions.Extent(); err == nil {
		if native, err := geo.TransformExtent(ext, code, proj.Code); err == nil {
			if clipped, ok := native.Intersect(proj.Extent); ok {
				nl.extent = clipped
			}
		}
	}
	if strategy.Kind == mapview.KindTileset {
		nl.footprint = nl.extent.Bound().ToPolygon()
	}
	nl.setOpacity(rec.Opacity)
	return nl, nil
}

// describeSource renders the request template of a layer for one engine.
func describeSource(rec *layers.Record, engine string) string {
	mo := rec.MappingOptions
	parts := []string{string(rec.HandleAs), mo.URL}
	if mo.Layer != "" {
		parts = append(parts, "layer="+mo.Layer)
	}
	if mo.MatrixSet != "" {
		parts = append(parts, "matrixSet="+mo.MatrixSet)
	}
	if fn := mo.URLFunctions[engine]; fn != "" {
		parts = append(parts, "urlFunction="+fn)
	}
	return strings.Join(parts, " ")
}

func (m *Map) layerLocked(rec *layers.Record) (*nativeLayer, error) {
	proj := m.proj
	nl, created, err := m.cache.GetOrCreate(rec.ID, proj.Code, func() (*nativeLayer, error) {
		return newLayer(rec, proj)
	})
	if created {
		m.stats.LayersCreated++
	}
	return nl, err
}

// CreateLayer builds the native layer of rec, reusing a cached one.
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

// ActivateLayer shows rec at its place in the stack, or takes it out of
// the stack. Deactivated layers stay cached.
func (m *Map) ActivateLayer(rec *layers.Record, active bool) bool {
	return mapview.Guard(m.log, "activate layer", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		idx := m.indexLocked(rec.ID)
		if !active {
			if idx < 0 {
				return true
			}
			nl := m.stack[idx]
			nl.visible = false
			m.stack = slices.Delete(m.stack, idx, idx+1)
			m.renumberLocked(nl.rank)
			return true
		}
		nl, err := m.layerLocked(rec)
		if err != nil {
			m.log.Warnf("%s activate layer %q, %s", m.name, rec.ID, err.Error())
			return false
		}
		if idx >= 0 {
			m.stack = slices.Delete(m.stack, idx, idx+1)
			m.stats.Reorders++
		}
		nl.display = rec.DisplayIndex
		nl.visible = true
		nl.setOpacity(rec.Opacity)
		m.insertLocked(nl)
		return true
	})
}

// insertLocked places nl above lower groups and above layers of its own
// group with a smaller or equal display index.
func (m *Map) insertLocked(nl *nativeLayer) {
	at := len(m.stack)
	for i, e := range m.stack {
		if e.rank > nl.rank || (e.rank == nl.rank && e.display > nl.display) {
			at = i
			break
		}
	}
	m.stack = slices.Insert(m.stack, at, nl)
}

// groupBounds returns the first and last stack index of rank.
func (m *Map) groupBounds(rank int) (lo, hi int) {
	lo, hi = -1, -1
	for i, nl := range m.stack {
		if nl.rank == rank {
			if lo < 0 {
				lo = i
			}
			hi = i
		}
	}
	return lo, hi
}

func (m *Map) renumberLocked(rank int) {
	n := 0
	for _, nl := range m.stack {
		if nl.rank == rank {
			n++
			nl.display = n
		}
	}
}

// MoveLayer moves a stacked layer within its group with a single
// reorder of the stack.
func (m *Map) MoveLayer(id string, dir layers.Direction) bool {
	return mapview.Guard(m.log, "move layer", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		cur := m.indexLocked(id)
		if cur < 0 {
			m.log.Warnf("%s move layer %q, not in stack", m.name, id)
			return false
		}
		nl := m.stack[cur]
		lo, hi := m.groupBounds(nl.rank)
		target := dir.TargetIndex(cur, lo, hi)
		if target != cur {
			m.stack = slices.Delete(m.stack, cur, cur+1)
			m.stack = slices.Insert(m.stack, target, nl)
			m.stats.Reorders++
		}
		m.renumberLocked(nl.rank)
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
	nl, ok := m.cache.Get(id, m.proj.Code)
	if !ok {
		m.log.Warnf("%s set opacity %q, layer not created", m.name, id)
		return false
	}
	nl.setOpacity(opacity)
	return true
}

// RemoveLayer drops the layer from the stack and every cached variant.
func (m *Map) RemoveLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := false
	if idx := m.indexLocked(id); idx >= 0 {
		rank := m.stack[idx].rank
		m.stack = slices.Delete(m.stack, idx, idx+1)
		m.renumberLocked(rank)
		removed = true
	}
	if m.cache.Invalidate(id) > 0 {
		removed = true
	}
	return removed
}

// LayerOrder lists the stacked layers bottom first. The drawings layer
// is always last.
func (m *Map) LayerOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]string, 0, len(m.stack)+1)
	for _, nl := range m.stack {
		ret = append(ret, nl.rec.ID)
	}
	return append(ret, mapview.DrawingsLayerID)
}

func (m *Map) LayerState(id string) (mapview.LayerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == mapview.DrawingsLayerID {
		return stateOf(m.drawings, len(m.stack)), true
	}
	if idx := m.indexLocked(id); idx >= 0 {
		return stateOf(m.stack[idx], idx), true
	}
	if nl, ok := m.cache.Get(id, m.proj.Code); ok {
		return stateOf(nl, -1), true
	}
	return mapview.LayerState{}, false
}

func stateOf(nl *nativeLayer, idx int) mapview.LayerState {
	return mapview.LayerState{
		ID:          nl.rec.ID,
		Kind:        nl.strategy.Kind,
		Visible:     nl.visible && idx >= 0,
		Index:       idx,
		Opacity:     nl.opacity,
		FillAlpha:   nl.fill,
		StrokeAlpha: nl.stroke,
		Extent:      nl.extent,
		Source:      nl.source,
	}
}
