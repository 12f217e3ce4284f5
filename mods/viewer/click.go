package viewer

import (
	"time"

	"github.com/dualview/dualview/mods/mapview"
)

// Click is the pending selection made by a pixel click.
type Click struct {
	Map   string        `json:"map"`
	Pixel mapview.Pixel `json:"pixel"`
	Hit   *mapview.Hit  `json:"hit,omitempty"`
	Time  time.Time     `json:"time"`
}

// PixelClick hit-tests the active map and keeps the first hit as the
// pending selection. Clicks are ignored while drawing or measuring.
func (v *Viewer) PixelClick(px mapview.Pixel) *Click {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.drawing != nil {
		return nil
	}
	active := v.activeLocked()
	click := &Click{Map: active.Name(), Pixel: px, Time: time.Now()}
	if hits := active.GetDataAtPoint(px); len(hits) > 0 {
		hit := hits[0]
		click.Hit = &hit
	}
	v.clickMu.Lock()
	v.click = click
	v.clickMu.Unlock()
	return click
}

// GetDataAtPoint hit-tests the active map without touching the pending
// selection.
func (v *Viewer) GetDataAtPoint(px mapview.Pixel) []mapview.Hit {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activeLocked().GetDataAtPoint(px)
}

// Click returns the pending selection, nil when there is none.
func (v *Viewer) Click() *Click {
	v.clickMu.Lock()
	defer v.clickMu.Unlock()
	if v.click == nil {
		return nil
	}
	ret := *v.click
	return &ret
}

func (v *Viewer) invalidateClick() {
	v.clickMu.Lock()
	v.click = nil
	v.clickMu.Unlock()
}
