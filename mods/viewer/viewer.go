// Package viewer coordinates the flat and globe map backends around one
// layer registry and one set of area selections.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/dualview/dualview/mods/mapview/flat"
	"github.com/dualview/dualview/mods/mapview/globe"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	ErrUnknownMode      = errors.New("unknown map view mode")
	ErrDrawingNotFound  = errors.New("drawing not found")
	ErrProjectionChange = errors.New("projection change failed")
	ErrDrawingFailed    = errors.New("drawing failed on every map")
	ErrNoFetcher        = errors.New("no fetcher configured")
	ErrNoLayerExtent    = errors.New("layer has no extent")
	ErrSetView          = errors.New("view change failed")
)

var (
	metricDrawings   = gometrics.NewRegisteredCounter("viewer.drawings", gometrics.DefaultRegistry)
	metricSyncFailed = gometrics.NewRegisteredCounter("viewer.sync.failed", gometrics.DefaultRegistry)
)

type Mode string

const (
	Mode2D Mode = "2D"
	Mode3D Mode = "3D"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "2D", "FLAT":
		return Mode2D, nil
	case "3D", "GLOBE":
		return Mode3D, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Fetcher loads a source document by url or path.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

type Config struct {
	DefaultProjection string
	DeletePartials    bool
	View              mapview.ViewOptions
	// Date is the initial map date, today (UTC midnight) when zero.
	Date time.Time
}

// Viewer is the map synchronization coordinator. Every operation holds
// the coordinator lock; source fetches run outside of it.
type Viewer struct {
	mu         sync.Mutex
	log        logging.Log
	registry   *layers.Registry
	selections *drawing.AreaSelections
	fetcher    Fetcher

	flat       mapview.Map
	globe      mapview.Map
	mode       Mode
	projection string

	drawing     *drawing.GeometryType
	interaction drawing.Interaction

	date time.Time
	plot plotState

	clickMu sync.Mutex
	click   *Click

	alerts alertBox
}

type Option func(v *Viewer)

func WithFetcher(f Fetcher) Option {
	return func(v *Viewer) { v.fetcher = f }
}

func WithLogger(l logging.Log) Option {
	return func(v *Viewer) { v.log = l }
}

func WithRegistry(r *layers.Registry) Option {
	return func(v *Viewer) { v.registry = r }
}

// WithMaps replaces the backends built from the configuration.
func WithMaps(flatMap, globeMap mapview.Map) Option {
	return func(v *Viewer) {
		v.flat = flatMap
		v.globe = globeMap
	}
}

func New(cfg Config, opts ...Option) (*Viewer, error) {
	v := &Viewer{
		selections: drawing.NewAreaSelections(),
		mode:       Mode2D,
	}
	for _, o := range opts {
		o(v)
	}
	if v.log == nil {
		v.log = logging.GetLog("viewer")
	}
	if v.registry == nil {
		v.registry = layers.NewRegistry(layers.WithDeletePartials(cfg.DeletePartials))
	}
	if cfg.DefaultProjection == "" {
		cfg.DefaultProjection = geo.LatLonCode
	}
	proj, ok := geo.GetPreconfiguredProjection(cfg.DefaultProjection)
	if !ok {
		return nil, fmt.Errorf("%w: %q", geo.ErrUnknownProjection, cfg.DefaultProjection)
	}
	v.projection = proj.Code
	if cfg.Date.IsZero() {
		cfg.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}
	v.date = cfg.Date.UTC()
	v.plot.info = PlotCommandInfo{PlotType: PlotTimeseries, StartDate: v.date, EndDate: v.date, Datasets: []string{}}
	if v.flat == nil {
		viewOpts := cfg.View
		viewOpts.Projection = proj.Code
		viewOpts.Log = logging.GetLog("mapview/flat")
		m, err := flat.New("map2d", viewOpts)
		if err != nil {
			return nil, err
		}
		v.flat = m
	}
	if v.globe == nil {
		viewOpts := cfg.View
		viewOpts.Log = logging.GetLog("mapview/globe")
		m, err := globe.New("map3d", viewOpts)
		if err != nil {
			return nil, err
		}
		v.globe = m
	}
	v.flat.SetActive(true)
	v.globe.SetActive(false)
	for _, m := range v.maps() {
		m.AddEventListener(mapview.EventMoveStart, func(mapview.Event) {
			if !m.IsActive() {
				v.invalidateClick()
			}
		})
	}
	return v, nil
}

func (v *Viewer) maps() []mapview.Map {
	return []mapview.Map{v.flat, v.globe}
}

func (v *Viewer) activeLocked() mapview.Map {
	if v.mode == Mode3D {
		return v.globe
	}
	return v.flat
}

func (v *Viewer) othersLocked(m mapview.Map) []mapview.Map {
	var ret []mapview.Map
	for _, e := range v.maps() {
		if e != m {
			ret = append(ret, e)
		}
	}
	return ret
}

func (v *Viewer) Registry() *layers.Registry { return v.registry }

// Map returns the backend shown in mode.
func (v *Viewer) Map(mode Mode) mapview.Map {
	if mode == Mode3D {
		return v.globe
	}
	return v.flat
}

// State is a summary of the coordinator state.
type State struct {
	Mode        Mode                 `json:"mode"`
	Projection  string               `json:"projection"`
	Date        time.Time            `json:"date"`
	Drawing     drawing.GeometryType `json:"drawing,omitempty"`
	Interaction drawing.Interaction  `json:"interaction,omitempty"`
	Drawings    int                  `json:"drawings"`
	Alerts      int                  `json:"alerts"`
	Click       *Click               `json:"click,omitempty"`
}

func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := State{
		Mode:       v.mode,
		Projection: v.projection,
		Date:       v.date,
		Drawings:   v.selections.Len(),
		Alerts:     v.alerts.len(),
		Click:      v.Click(),
	}
	if v.drawing != nil {
		st.Drawing = *v.drawing
		st.Interaction = v.interaction
	}
	return st
}

// SetMapViewMode makes the backend of mode the one receiving input. A
// running draw session moves to the new backend and any pending click
// is dropped.
func (v *Viewer) SetMapViewMode(mode Mode) error {
	if mode != Mode2D && mode != Mode3D {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if mode == v.mode {
		return nil
	}
	prev := v.activeLocked()
	v.mode = mode
	next := v.activeLocked()
	prev.SetActive(false)
	next.SetActive(true)
	v.invalidateClick()
	if v.drawing != nil {
		prev.CancelDraw()
		next.AddDrawHandler(*v.drawing, v.interaction, v.drawEndFunc(next))
	}
	v.log.Infof("map view mode %s", mode)
	return nil
}

func (v *Viewer) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// SetProjection changes the flat map projection. The active basemap is
// hidden first and the default basemap of the new projection shown
// after. Nothing changes when the flat map rejects the projection.
func (v *Viewer) SetProjection(code string) error {
	proj, ok := geo.GetPreconfiguredProjection(code)
	if !ok {
		return fmt.Errorf("%w: %q", geo.ErrUnknownProjection, code)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setProjectionLocked(proj)
}

func (v *Viewer) setProjectionLocked(proj *geo.Projection) error {
	if proj.Code == v.projection {
		return nil
	}
	hidden := v.hideBasemapsLocked()
	if !v.flat.SetProjection(proj.Code) {
		for _, rec := range hidden {
			v.activateLocked(rec.ID, true)
		}
		return fmt.Errorf("%w: %s", ErrProjectionChange, proj.Code)
	}
	v.projection = proj.Code
	if _, ok := v.activateDefaultBasemapLocked(); !ok {
		v.log.Infof("projection %s has no default basemap", proj.Code)
	}
	return nil
}

func (v *Viewer) Projection() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.projection
}

// ResetView resets the active map, or both maps when targetActive is
// false.
func (v *Viewer) ResetView(targetActive bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if targetActive {
		v.activeLocked().ResetView()
		return
	}
	for _, m := range v.maps() {
		m.ResetView()
	}
}

// SetMapView fits ext, given in proj, on the active map, or on both maps
// when targetActive is false.
func (v *Viewer) SetMapView(ext geo.Extent, proj string, targetActive bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setMapViewLocked(ext, proj, targetActive)
}

func (v *Viewer) setMapViewLocked(ext geo.Extent, proj string, targetActive bool) error {
	if proj == "" {
		proj = geo.LatLonCode
	}
	targets := v.maps()
	if targetActive {
		targets = []mapview.Map{v.activeLocked()}
	}
	var failed []string
	for _, m := range targets {
		if !m.SetExtent(ext, proj) {
			failed = append(failed, m.Name())
		}
	}
	if len(failed) == len(targets) {
		return fmt.Errorf("%w: %v %s on %s", ErrSetView, ext, proj, strings.Join(failed, ", "))
	}
	return nil
}

func (v *Viewer) ResizeMap(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.maps() {
		m.Resize(width, height)
	}
}
