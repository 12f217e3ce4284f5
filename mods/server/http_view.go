package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/dualview/dualview/mods/viewer"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleState(ctx *gin.Context) {
	tick := time.Now()
	st := s.viewer.State()
	ret := gin.H{"state": st}
	for _, mode := range []viewer.Mode{viewer.Mode2D, viewer.Mode3D} {
		m := s.viewer.Map(mode)
		ext, proj := m.ViewExtent()
		ret[string(mode)] = gin.H{
			"name":       m.Name(),
			"active":     m.IsActive(),
			"projection": proj,
			"extent":     ext,
			"layers":     m.LayerOrder(),
			"stats":      m.Stats(),
		}
	}
	replyOK(ctx, tick, ret)
}

func (s *Server) handleViewProjection(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Code string `json:"code"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Code == "" {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("missing code"))
		return
	}
	if err := s.viewer.SetProjection(req.Code); err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, gin.H{"projection": s.viewer.Projection()})
}

func (s *Server) handleViewReset(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		TargetActive bool `json:"targetActive"`
	}{}
	// an empty body resets both maps
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			replyError(ctx, tick, http.StatusBadRequest, err)
			return
		}
	}
	s.viewer.ResetView(req.TargetActive)
	replyOK(ctx, tick, nil)
}

func (s *Server) handleViewMode(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Mode string `json:"mode"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	mode, err := viewer.ParseMode(req.Mode)
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	if err := s.viewer.SetMapViewMode(mode); err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, gin.H{"mode": s.viewer.Mode()})
}

func (s *Server) handleViewResize(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("width and height must be positive"))
		return
	}
	s.viewer.ResizeMap(req.Width, req.Height)
	replyOK(ctx, tick, nil)
}

func (s *Server) handleViewClick(ctx *gin.Context) {
	tick := time.Now()
	var px mapview.Pixel
	if err := ctx.ShouldBindJSON(&px); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	click := s.viewer.PixelClick(px)
	if click == nil {
		// a draw session owns the pointer
		replyOK(ctx, tick, nil)
		return
	}
	replyOK(ctx, tick, click)
}

func (s *Server) handleViewPick(ctx *gin.Context) {
	tick := time.Now()
	x, err := strFloat(ctx.Query("x"))
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("invalid x"))
		return
	}
	y, err := strFloat(ctx.Query("y"))
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("invalid y"))
		return
	}
	replyOK(ctx, tick, s.viewer.GetDataAtPoint(mapview.Pixel{X: x, Y: y}))
}

func (s *Server) handleViewExtent(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Extent       []float64 `json:"extent"`
		Projection   string    `json:"projection"`
		TargetActive bool      `json:"targetActive"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	ext, err := geo.ExtentFromSlice(req.Extent)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	if err := s.viewer.SetMapView(ext, req.Projection, req.TargetActive); err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	m := s.viewer.Map(s.viewer.Mode())
	view, proj := m.ViewExtent()
	replyOK(ctx, tick, gin.H{"map": m.Name(), "extent": view, "projection": proj})
}
