package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/gin-gonic/gin"
)

// handleDrawings returns the area selections as a GeoJSON feature
// collection, or as records with ?format=list.
func (s *Server) handleDrawings(ctx *gin.Context) {
	tick := time.Now()
	if ctx.Query("format") == "list" {
		replyOK(ctx, tick, s.viewer.Drawings())
		return
	}
	replyOK(ctx, tick, s.viewer.AreaSelectionsGeoJSON())
}

func (s *Server) handleDrawingAdd(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Geometry *drawing.Geometry `json:"geometry"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	if req.Geometry == nil {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("missing geometry"))
		return
	}
	g, err := s.viewer.AddDrawing(req.Geometry)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, g)
}

func (s *Server) handleDrawingRemove(ctx *gin.Context) {
	tick := time.Now()
	if err := s.viewer.RemoveDrawing(ctx.Param("id")); err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, nil)
}

func (s *Server) handleDrawingsRemoveAll(ctx *gin.Context) {
	tick := time.Now()
	s.viewer.RemoveAllDrawings()
	replyOK(ctx, tick, nil)
}

func (s *Server) handleDrawingRetry(ctx *gin.Context) {
	tick := time.Now()
	pending, err := s.viewer.RetrySync(ctx.Param("id"))
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	if pending == nil {
		pending = []string{}
	}
	replyOK(ctx, tick, gin.H{"pendingMaps": pending})
}

func (s *Server) handleDrawStart(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		GeometryType string `json:"geometryType"`
		Interaction  string `json:"interaction"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	gt, err := drawing.ParseGeometryType(req.GeometryType)
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	interaction, err := drawing.ParseInteraction(req.Interaction)
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	if interaction == drawing.InteractionMeasure {
		err = s.viewer.EnableMeasuring(gt)
	} else {
		err = s.viewer.EnableDrawing(gt)
	}
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, gin.H{"geometryType": gt, "interaction": interaction})
}

// handleDrawComplete finishes the running session with canvas pixels.
// Circles take the center as the only point and radius in pixels.
func (s *Server) handleDrawComplete(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Points []mapview.Pixel `json:"points"`
		Radius float64         `json:"radius"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	if len(req.Points) == 0 {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("missing points"))
		return
	}
	g, err := s.viewer.CompleteDraw(req.Points, req.Radius)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, g)
}

func (s *Server) handleDrawCancel(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, gin.H{"cancelled": s.viewer.CancelDraw()})
}

func (s *Server) handleDrawStop(ctx *gin.Context) {
	tick := time.Now()
	st := s.viewer.State()
	var stopped bool
	switch st.Interaction {
	case drawing.InteractionMeasure:
		stopped = s.viewer.DisableMeasuring()
	case drawing.InteractionDraw:
		stopped = s.viewer.DisableDrawing()
	}
	if !stopped {
		replyError(ctx, tick, http.StatusConflict, fmt.Errorf("%w running", mapview.ErrNoDrawSession))
		return
	}
	replyOK(ctx, tick, nil)
}
