package viewer

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/layers"
)

var (
	ErrUnknownPlotType = errors.New("unknown plot type")
	ErrInvalidDate     = errors.New("invalid date")
)

type PlotType string

const (
	PlotTimeseries    PlotType = "timeseries"
	PlotTimeAvgMap    PlotType = "timeavgmap"
	PlotHovmollerLat  PlotType = "hovmollerlat"
	PlotHovmollerLon  PlotType = "hovmollerlon"
	defaultPlotWindow          = 7 * 24 * time.Hour
)

var PlotTypes = []PlotType{PlotTimeseries, PlotTimeAvgMap, PlotHovmollerLat, PlotHovmollerLon}

func (pt PlotType) Valid() bool {
	return slices.Contains(PlotTypes, pt)
}

// PlotCommandInfo holds the parameters of the notebook plot command.
type PlotCommandInfo struct {
	PlotType  PlotType          `json:"plotType"`
	StartDate time.Time         `json:"startDate"`
	EndDate   time.Time         `json:"endDate"`
	Datasets  []string          `json:"datasets"`
	Geometry  *drawing.Geometry `json:"geometry,omitempty"`
}

// PlotOptions changes the fields it sets and keeps the others. GeometryID
// refers to an area selection and wins over Geometry.
type PlotOptions struct {
	PlotType   PlotType          `json:"plotType,omitempty"`
	StartDate  *time.Time        `json:"startDate,omitempty"`
	EndDate    *time.Time        `json:"endDate,omitempty"`
	Datasets   []string          `json:"datasets,omitempty"`
	Geometry   *drawing.Geometry `json:"geometry,omitempty"`
	GeometryID string            `json:"geometryId,omitempty"`
}

// PlotCommand is the generated command text and its generation count.
type PlotCommand struct {
	Command    string          `json:"command"`
	Generation int             `json:"generation"`
	Info       PlotCommandInfo `json:"info"`
}

type plotState struct {
	info       PlotCommandInfo
	command    string
	generation int
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate accepts RFC 3339 timestamps and plain days. Dates without a
// zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (v *Viewer) Date() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.date
}

// SetDate moves the map date. Dates are kept in UTC.
func (v *Viewer) SetDate(date time.Time) time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.date = date.UTC()
	v.log.Debugf("map date %s", v.date.Format(time.RFC3339))
	return v.date
}

// StepDate moves the map date one day forward or back.
func (v *Viewer) StepDate(forward bool) time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	days := -1
	if forward {
		days = 1
	}
	v.date = v.date.AddDate(0, 0, days)
	return v.date
}

// SetPlotCommandInfo updates the plot parameters. With fillDefault the
// fields opts leaves out are derived from the viewer: the end date is the
// map date, the start date a week before it, the datasets are the active
// data layers and the plot is a time series.
func (v *Viewer) SetPlotCommandInfo(opts PlotOptions, fillDefault bool) (PlotCommandInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setPlotCommandInfoLocked(opts, fillDefault)
}

func (v *Viewer) setPlotCommandInfoLocked(opts PlotOptions, fillDefault bool) (PlotCommandInfo, error) {
	if opts.PlotType != "" && !opts.PlotType.Valid() {
		return PlotCommandInfo{}, fmt.Errorf("%w: %q", ErrUnknownPlotType, opts.PlotType)
	}
	if opts.GeometryID != "" {
		g, ok := v.selections.Get(opts.GeometryID)
		if !ok {
			return PlotCommandInfo{}, fmt.Errorf("%w: %q", ErrDrawingNotFound, opts.GeometryID)
		}
		opts.Geometry = g
	}
	if fillDefault {
		if opts.EndDate == nil {
			end := v.date
			opts.EndDate = &end
		}
		if opts.StartDate == nil {
			start := opts.EndDate.UTC().Add(-defaultPlotWindow)
			opts.StartDate = &start
		}
		if opts.Datasets == nil {
			opts.Datasets = []string{}
			for _, rec := range v.registry.Active(layers.TypeData) {
				opts.Datasets = append(opts.Datasets, rec.ID)
			}
		}
		if opts.PlotType == "" {
			opts.PlotType = PlotTimeseries
		}
	}

	info := &v.plot.info
	if opts.PlotType != "" {
		info.PlotType = opts.PlotType
	}
	if opts.StartDate != nil {
		info.StartDate = opts.StartDate.UTC()
	}
	if opts.EndDate != nil {
		info.EndDate = opts.EndDate.UTC()
	}
	if opts.Datasets != nil {
		info.Datasets = slices.Clone(opts.Datasets)
	}
	if opts.Geometry != nil {
		info.Geometry = opts.Geometry.Clone()
	}
	return v.plotInfoLocked(), nil
}

func (v *Viewer) PlotCommandInfo() PlotCommandInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.plotInfoLocked()
}

func (v *Viewer) plotInfoLocked() PlotCommandInfo {
	ret := v.plot.info
	ret.Datasets = slices.Clone(ret.Datasets)
	if ret.Geometry != nil {
		ret.Geometry = ret.Geometry.Clone()
	}
	return ret
}

// GeneratePlotCommand applies opts like SetPlotCommandInfo and renders
// the command that retrieves and plots the data in a notebook.
func (v *Viewer) GeneratePlotCommand(opts PlotOptions, fillDefault bool) (PlotCommand, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	info, err := v.setPlotCommandInfoLocked(opts, fillDefault)
	if err != nil {
		return PlotCommand{}, err
	}
	cmd, err := renderPlotCommand(info)
	if err != nil {
		return PlotCommand{}, err
	}
	v.plot.command = cmd
	v.plot.generation++
	return PlotCommand{Command: cmd, Generation: v.plot.generation, Info: info}, nil
}

// LastPlotCommand returns the most recently generated command.
func (v *Viewer) LastPlotCommand() PlotCommand {
	v.mu.Lock()
	defer v.mu.Unlock()
	return PlotCommand{Command: v.plot.command, Generation: v.plot.generation, Info: v.plotInfoLocked()}
}

const isoMillis = "2006-01-02T15:04:05.000Z"

func renderPlotCommand(info PlotCommandInfo) (string, error) {
	geom := []byte("{}")
	if info.Geometry != nil {
		b, err := json.Marshal(info.Geometry)
		if err != nil {
			return "", err
		}
		geom = b
	}
	ds := make([]string, len(info.Datasets))
	for i, id := range info.Datasets {
		ds[i] = `"` + id + `"`
	}
	return strings.Join([]string{
		"# Initialize parameter variables",
		fmt.Sprintf("plotType = %s", info.PlotType),
		fmt.Sprintf("startDate = %q", info.StartDate.UTC().Format(isoMillis)),
		fmt.Sprintf("endDate = %q", info.EndDate.UTC().Format(isoMillis)),
		fmt.Sprintf("ds = [%s]", strings.Join(ds, ", ")),
		fmt.Sprintf("geometry = %s", geom),
		"# Retrieve the data",
		"data = ipycmc.retrieve_data(plotType, startDate, endDate, ds, geometry)",
		"# Plot the data",
		"ipycmc.plot_data(plotType, data)",
	}, "\r\n"), nil
}
