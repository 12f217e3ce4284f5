package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/viewer"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleLayers(ctx *gin.Context) {
	tick := time.Now()
	reg := s.viewer.Registry()
	if typ := ctx.Query("type"); typ != "" {
		if !layers.Type(typ).Valid() {
			replyError(ctx, tick, http.StatusBadRequest, errors.New("unknown layer type "+typ))
			return
		}
		replyOK(ctx, tick, reg.List(layers.Type(typ)))
		return
	}
	replyOK(ctx, tick, reg.Snapshot())
}

func (s *Server) handleLayersPending(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, gin.H{
		"pending":   s.viewer.Registry().Pending(),
		"unmatched": s.viewer.Registry().Unmatched(),
	})
}

func (s *Server) handleLayersIngest(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		// Config is a json document or a string holding xml.
		Config  json.RawMessage      `json:"config"`
		Options layers.SourceOptions `json:"options"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	if len(req.Config) == 0 {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("missing config"))
		return
	}
	kind, err := layers.ParseSourceKind(string(req.Options.Type))
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	req.Options.Type = kind
	doc := []byte(req.Config)
	var str string
	if err := json.Unmarshal(req.Config, &str); err == nil {
		doc = []byte(str)
	}
	descs, err := s.viewer.Ingest(doc, req.Options)
	if err != nil && len(descs) == 0 {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	replyOK(ctx, tick, gin.H{"partials": len(descs)})
}

func (s *Server) handleLayersMerge(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, s.viewer.MergeLayers())
}

func (s *Server) handleLayersLoad(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Options viewer.LoadOptions `json:"options"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	if req.Options.Location == "" {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("missing location"))
		return
	}
	ret, err := s.viewer.LoadLayerSource(ctx.Request.Context(), req.Options)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, ret)
}

func (s *Server) handleLayersClearSelected(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, s.viewer.ClearSelectedLayers())
}

func (s *Server) handleLayerActive(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Active *bool `json:"active"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Active == nil {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("missing active"))
		return
	}
	rec, err := s.viewer.ActivateLayer(ctx.Param("id"), *req.Active)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, rec)
}

func (s *Server) handleLayerOpacity(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Opacity *float64 `json:"opacity"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Opacity == nil {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("missing opacity"))
		return
	}
	if *req.Opacity < 0 || *req.Opacity > 1 {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("opacity out of range [0, 1]"))
		return
	}
	rec, err := s.viewer.SetLayerOpacity(ctx.Param("id"), *req.Opacity)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, rec)
}

func (s *Server) handleLayerMove(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Direction string `json:"direction"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	dir, err := layers.ParseDirection(req.Direction)
	if err != nil {
		replyError(ctx, tick, http.StatusBadRequest, err)
		return
	}
	rec, err := s.viewer.MoveLayer(ctx.Param("id"), dir)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, rec)
}

func (s *Server) handleLayerSelected(ctx *gin.Context) {
	tick := time.Now()
	req := struct {
		Selected *bool `json:"selected"`
	}{}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Selected == nil {
		replyError(ctx, tick, http.StatusBadRequest, errors.New("missing selected"))
		return
	}
	rec, err := s.viewer.SetLayerSelected(ctx.Param("id"), *req.Selected)
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, rec)
}

func (s *Server) handleLayerZoom(ctx *gin.Context) {
	tick := time.Now()
	if err := s.viewer.ZoomToLayer(ctx.Param("id")); err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, nil)
}

func (s *Server) handleLayerBasemap(ctx *gin.Context) {
	tick := time.Now()
	rec, err := s.viewer.SetBasemap(ctx.Param("id"))
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, rec)
}

func (s *Server) handleLayerRemove(ctx *gin.Context) {
	tick := time.Now()
	rec, err := s.viewer.RemoveLayerFromApp(ctx.Param("id"))
	if err != nil {
		replyError(ctx, tick, 0, err)
		return
	}
	replyOK(ctx, tick, rec)
}
