// Package server exposes the viewer coordinator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dualview/dualview/mods/logging"
	"github.com/dualview/dualview/mods/viewer"
	"github.com/gin-gonic/gin"
)

type Option func(s *Server)

func WithListenAddress(addr string) Option {
	return func(s *Server) {
		s.listenAddress = addr
	}
}

// WithDebug turns on gin debug mode and request logging.
func WithDebug(debug bool) Option {
	return func(s *Server) {
		s.debugMode = debug
	}
}

// WithLogFilterLatency logs every request slower than d even when debug
// is off. A negative value disables it.
func WithLogFilterLatency(d time.Duration) Option {
	return func(s *Server) {
		s.debugLogFilterLatency = d
	}
}

func WithLogger(log logging.Log) Option {
	return func(s *Server) {
		s.log = log
	}
}

type Server struct {
	log                   logging.Log
	viewer                *viewer.Viewer
	listenAddress         string
	debugMode             bool
	debugLogFilterLatency time.Duration
	httpServer            *http.Server
	listener              net.Listener
	router                *gin.Engine
}

func New(v *viewer.Viewer, opts ...Option) *Server {
	s := &Server{
		log:                   logging.GetLog("http"),
		viewer:                v,
		listenAddress:         "127.0.0.1:5680",
		debugLogFilterLatency: -1,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Start() error {
	if s.viewer == nil {
		return errors.New("no viewer instance")
	}
	lsnr, err := net.Listen("tcp", strings.TrimPrefix(s.listenAddress, "tcp://"))
	if err != nil {
		return fmt.Errorf("cannot start with failed listener, %s", err.Error())
	}
	s.listener = lsnr
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(lsnr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("serve %s", err.Error())
		}
	}()
	s.log.Infof("HTTP Listen %s", lsnr.Addr().String())
	return nil
}

func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	s.log.Infof("gracefully stopping server")
	ctx, cancelFunc := context.WithTimeout(context.Background(), 3*time.Second)
	s.httpServer.Shutdown(ctx)
	cancelFunc()
	s.httpServer.Close()
}

// AdvertiseAddress is the base url of the running listener.
func (s *Server) AdvertiseAddress() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Router builds the gin engine once. Tests drive it with httptest.
func (s *Server) Router() *gin.Engine {
	if s.router != nil {
		return s.router
	}
	if s.debugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(RecoveryWithLogging(s.log))
	r.Use(HttpLogger("http-log", &s.debugMode, &s.debugLogFilterLatency))
	r.Use(s.corsHandler())
	r.Use(MetricsInterceptor())

	api := r.Group("/api")
	api.GET("/healthz", s.handleHealthz)
	api.GET("/statz", s.handleStatz)
	api.GET("/state", s.handleState)

	api.GET("/layers", s.handleLayers)
	api.GET("/layers/pending", s.handleLayersPending)
	api.POST("/layers/ingest", s.handleLayersIngest)
	api.POST("/layers/merge", s.handleLayersMerge)
	api.POST("/layers/load", s.handleLayersLoad)
	api.POST("/layers/selected/clear", s.handleLayersClearSelected)
	api.POST("/layers/:id/active", s.handleLayerActive)
	api.POST("/layers/:id/opacity", s.handleLayerOpacity)
	api.POST("/layers/:id/move", s.handleLayerMove)
	api.POST("/layers/:id/selected", s.handleLayerSelected)
	api.POST("/layers/:id/zoom", s.handleLayerZoom)
	api.POST("/layers/:id/basemap", s.handleLayerBasemap)
	api.DELETE("/layers/:id", s.handleLayerRemove)

	api.POST("/view/projection", s.handleViewProjection)
	api.POST("/view/reset", s.handleViewReset)
	api.POST("/view/mode", s.handleViewMode)
	api.POST("/view/resize", s.handleViewResize)
	api.POST("/view/click", s.handleViewClick)
	api.GET("/view/pick", s.handleViewPick)
	api.POST("/view/extent", s.handleViewExtent)

	api.GET("/date", s.handleDate)
	api.POST("/date", s.handleDateSet)
	api.POST("/date/step", s.handleDateStep)
	api.GET("/plot", s.handlePlot)
	api.POST("/plot/info", s.handlePlotInfo)
	api.POST("/plot/command", s.handlePlotCommand)

	api.GET("/drawings", s.handleDrawings)
	api.POST("/drawings", s.handleDrawingAdd)
	api.DELETE("/drawings", s.handleDrawingsRemoveAll)
	api.DELETE("/drawings/:id", s.handleDrawingRemove)
	api.POST("/drawings/:id/retry", s.handleDrawingRetry)
	api.POST("/draw/start", s.handleDrawStart)
	api.POST("/draw/complete", s.handleDrawComplete)
	api.POST("/draw/cancel", s.handleDrawCancel)
	api.POST("/draw/stop", s.handleDrawStop)

	api.GET("/alerts", s.handleAlerts)
	api.DELETE("/alerts", s.handleAlertsDismiss)
	api.GET("/events", s.handleEvents)

	s.router = r
	return r
}
