package viewer

import (
	"fmt"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/paulmach/orb/geojson"
)

// EnableDrawing starts a draw session of gt on the active map. Every
// finished drawing is propagated to the other map and the session starts
// again until drawing is disabled.
func (v *Viewer) EnableDrawing(gt drawing.GeometryType) error {
	return v.enableInteraction(gt, drawing.InteractionDraw)
}

func (v *Viewer) EnableMeasuring(gt drawing.GeometryType) error {
	return v.enableInteraction(gt, drawing.InteractionMeasure)
}

func (v *Viewer) enableInteraction(gt drawing.GeometryType, interaction drawing.Interaction) error {
	if _, err := drawing.ParseGeometryType(string(gt)); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	active := v.activeLocked()
	v.drawing = &gt
	v.interaction = interaction
	active.AddDrawHandler(gt, interaction, v.drawEndFunc(active))
	v.invalidateClick()
	return nil
}

func (v *Viewer) DisableDrawing() bool {
	return v.disableInteraction(drawing.InteractionDraw)
}

func (v *Viewer) DisableMeasuring() bool {
	return v.disableInteraction(drawing.InteractionMeasure)
}

func (v *Viewer) disableInteraction(interaction drawing.Interaction) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.drawing == nil || v.interaction != interaction {
		return false
	}
	v.drawing = nil
	for _, m := range v.maps() {
		m.CancelDraw()
	}
	return true
}

// drawEndFunc propagates a drawing finished on src.
func (v *Viewer) drawEndFunc(src mapview.Map) mapview.DrawEndFunc {
	return func(g *drawing.Geometry) {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.selections.Put(g)
		metricDrawings.Inc(1)
		v.replayLocked(g, v.othersLocked(src))
		if v.drawing != nil && v.activeLocked() == src {
			src.AddDrawHandler(*v.drawing, v.interaction, v.drawEndFunc(src))
		}
	}
}

// replayLocked draws g on targets and records the maps it is missing
// from.
func (v *Viewer) replayLocked(g *drawing.Geometry, targets []mapview.Map) []string {
	var failed []string
	for _, m := range targets {
		if !m.AddGeometry(g) {
			failed = append(failed, m.Name())
		}
	}
	if err := v.selections.MarkPending(g.ID, failed); err != nil {
		v.log.Warnf("drawing %q, %s", g.ID, err.Error())
	}
	if len(failed) > 0 {
		metricSyncFailed.Inc(1)
		v.raiseLocked(Alert{
			Kind:       AlertGeometrySyncFailed,
			GeometryID: g.ID,
			Maps:       failed,
			Message:    fmt.Sprintf("%s %q could not be drawn on %v", g.Type, g.ID, failed),
		})
	}
	return failed
}

// CompleteDraw ends the draw session of the active map with the given
// canvas pixels, as the map's own draw-end event would.
func (v *Viewer) CompleteDraw(pixels []mapview.Pixel, radiusPx float64) (*drawing.Geometry, error) {
	v.mu.Lock()
	active := v.activeLocked()
	v.mu.Unlock()
	in, err := active.NativeDrawInput(pixels, radiusPx)
	if err != nil {
		return nil, err
	}
	g, err := active.CompleteDraw(in)
	if err != nil {
		v.rearm(active)
		return nil, err
	}
	if cur, ok := v.selections.Get(g.ID); ok {
		return cur, nil
	}
	return g, nil
}

// rearm restarts the session on m after a rejected drawing when drawing
// is still enabled and the map dropped its session.
func (v *Viewer) rearm(m mapview.Map) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.drawing == nil || v.activeLocked() != m {
		return
	}
	if _, _, running := m.DrawSession(); !running {
		m.AddDrawHandler(*v.drawing, v.interaction, v.drawEndFunc(m))
	}
}

func (v *Viewer) CancelDraw() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.drawing = nil
	return v.activeLocked().CancelDraw()
}

// AddDrawing draws a geographic geometry on the active map first and
// then on the other one. It fails only when no map could draw it.
func (v *Viewer) AddDrawing(g *drawing.Geometry) (*drawing.Geometry, error) {
	if g.ID == "" {
		g = g.Clone()
		g.ID = drawing.NewID()
	}
	std, err := drawing.Standardize(g)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	active := v.activeLocked()
	targets := v.othersLocked(active)
	if !active.AddGeometry(std) {
		var drawnOn mapview.Map
		for _, m := range targets {
			if m.AddGeometry(std) {
				drawnOn = m
				break
			}
		}
		if drawnOn == nil {
			return nil, fmt.Errorf("%w: %q", ErrDrawingFailed, std.ID)
		}
		targets = v.othersLocked(drawnOn)
	}
	v.selections.Put(std)
	metricDrawings.Inc(1)
	v.replayLocked(std, targets)
	cur, _ := v.selections.Get(std.ID)
	return cur, nil
}

// RemoveDrawing erases a drawing. The selection entry goes away when at
// least one map erased it.
func (v *Viewer) RemoveDrawing(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	removed := false
	for _, m := range v.maps() {
		if m.RemoveShape(id) {
			removed = true
		}
	}
	if !removed {
		return fmt.Errorf("%w: %q", ErrDrawingNotFound, id)
	}
	v.selections.Remove(id)
	v.invalidateClick()
	return nil
}

func (v *Viewer) RemoveAllDrawings() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.maps() {
		m.RemoveAllDrawings()
	}
	v.selections.Clear()
	v.invalidateClick()
}

// RetrySync replays a partially synced drawing on the maps it is missing
// from and returns the maps still missing it.
func (v *Viewer) RetrySync(id string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	g, ok := v.selections.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDrawingNotFound, id)
	}
	var targets []mapview.Map
	for _, m := range v.maps() {
		for _, name := range g.PendingMaps {
			if m.Name() == name {
				targets = append(targets, m)
			}
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}
	return v.replayLocked(g, targets), nil
}

func (v *Viewer) Drawings() []*drawing.Geometry {
	return v.selections.List()
}

func (v *Viewer) Drawing(id string) (*drawing.Geometry, bool) {
	return v.selections.Get(id)
}

func (v *Viewer) AreaSelectionsGeoJSON() *geojson.FeatureCollection {
	return v.selections.FeatureCollection()
}
