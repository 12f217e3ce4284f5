package server

import (
	"net/http"
	"time"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/viewer"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleDate(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, gin.H{"date": s.viewer.Date()})
}

func (s *Server) handleDateSet(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Date string `json:"date"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	date, err := viewer.ParseDate(req.Date)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, gin.H{"date": s.viewer.SetDate(date)})
}

func (s *Server) handleDateStep(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Forward bool `json:"forward"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	replyOK(ctx, tick, gin.H{"date": s.viewer.StepDate(req.Forward)})
}

func (s *Server) handlePlot(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, s.viewer.LastPlotCommand())
}

// plotRequest carries dates as text so plain days are accepted as well
// as timestamps.
type plotRequest struct {
	PlotType    viewer.PlotType   `json:"plotType"`
	StartDate   string            `json:"startDate"`
	EndDate     string            `json:"endDate"`
	Datasets    []string          `json:"datasets"`
	Geometry    *drawing.Geometry `json:"geometry"`
	GeometryID  string            `json:"geometryId"`
	FillDefault bool              `json:"fillDefault"`
}

func (req plotRequest) options() (viewer.PlotOptions, error) {
	ret := viewer.PlotOptions{
		PlotType:   req.PlotType,
		Datasets:   req.Datasets,
		Geometry:   req.Geometry,
		GeometryID: req.GeometryID,
	}
	if req.StartDate != "" {
		t, err := viewer.ParseDate(req.StartDate)
		if err != nil {
			return ret, err
		}
		ret.StartDate = &t
	}
	if req.EndDate != "" {
		t, err := viewer.ParseDate(req.EndDate)
		if err != nil {
			return ret, err
		}
		ret.EndDate = &t
	}
	return ret, nil
}

func bindPlotRequest(ctx *gin.Context) (viewer.PlotOptions, bool, error) {
	req := plotRequest{}
	// an empty body keeps every parameter
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			return viewer.PlotOptions{}, false, err
		}
	}
	opts, err := req.options()
	return opts, req.FillDefault, err
}

func (s *Server) handlePlotInfo(ctx *gin.Context) {
	tick := time.Now()
	opts, fill, err := bindPlotRequest(ctx)
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	info, err := s.viewer.SetPlotCommandInfo(opts, fill)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, info)
}

func (s *Server) handlePlotCommand(ctx *gin.Context) {
	tick := time.Now()
	opts, fill, err := bindPlotRequest(ctx)
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	cmd, err := s.viewer.GeneratePlotCommand(opts, fill)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, cmd)
}
