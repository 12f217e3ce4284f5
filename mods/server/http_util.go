package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/dualview/dualview/mods/mapview"
	"github.com/dualview/dualview/mods/viewer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	gometrics "github.com/rcrowley/go-metrics"
)

func strBool(str string, def bool) bool {
	if str == "" {
		return def
	}
	return strings.ToLower(str) == "true" || str == "1"
}

func strFloat(str string) (float64, error) {
	if str == "" {
		return 0, errors.New("missing value")
	}
	return strconv.ParseFloat(str, 64)
}

var (
	metricRequestTotal     = gometrics.NewRegisteredCounter("http.count", gometrics.DefaultRegistry)
	metricResponseLatency  = gometrics.NewRegisteredTimer("http.latency", gometrics.DefaultRegistry)
	metricRecvContentBytes = gometrics.NewRegisteredCounter("http.recv_bytes", gometrics.DefaultRegistry)
	metricSendContentBytes = gometrics.NewRegisteredCounter("http.send_bytes", gometrics.DefaultRegistry)
	metricStatus2xx        = gometrics.NewRegisteredCounter("http.status_2xx", gometrics.DefaultRegistry)
	metricStatus3xx        = gometrics.NewRegisteredCounter("http.status_3xx", gometrics.DefaultRegistry)
	metricStatus4xx        = gometrics.NewRegisteredCounter("http.status_4xx", gometrics.DefaultRegistry)
	metricStatus5xx        = gometrics.NewRegisteredCounter("http.status_5xx", gometrics.DefaultRegistry)
)

func MetricsInterceptor() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		metricRequestTotal.Inc(1)
		metricResponseLatency.UpdateSince(start)
		if s := c.Request.ContentLength; s > 0 {
			metricRecvContentBytes.Inc(s)
		}
		if s := c.Writer.Size(); s > 0 {
			metricSendContentBytes.Inc(int64(s))
		}

		switch status := c.Writer.Status(); {
		case status < 300:
			metricStatus2xx.Inc(1)
		case status < 400:
			metricStatus3xx.Inc(1)
		case status < 500:
			metricStatus4xx.Inc(1)
		default:
			metricStatus5xx.Inc(1)
		}
	}
}

func RecoveryWithLogging(log logging.Log, recovery ...gin.RecoveryFunc) gin.HandlerFunc {
	gin.DefaultWriter = log
	gin.DefaultErrorWriter = log

	if len(recovery) > 0 {
		return gin.CustomRecoveryWithWriter(log, recovery[0])
	}
	return gin.CustomRecoveryWithWriter(log, func(c *gin.Context, err any) {
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

type HttpLoggerFilter func(req *http.Request, statusCode int, latency time.Duration) bool

func HttpLogger(loggingName string, logEnabled *bool, logLatencyThreshold *time.Duration) gin.HandlerFunc {
	log := logging.GetLog(loggingName)
	return logger(log, func(req *http.Request, statusCode int, latency time.Duration) bool {
		if statusCode >= 400 {
			return true
		}
		if logEnabled != nil && *logEnabled {
			return true
		}
		if logLatencyThreshold == nil || *logLatencyThreshold < 0 {
			return false
		}
		return latency >= *logLatencyThreshold
	})
}

func logger(log logging.Log, filter HttpLoggerFilter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if c.Request.Method == http.MethodGet && (strings.HasSuffix(path, "/healthz") || strings.HasSuffix(path, "/statz")) {
			return
		}
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if filter != nil && !filter(c.Request, statusCode, latency) {
			return
		}

		url := c.Request.Host + path
		if raw := c.Request.URL.RawQuery; len(raw) > 0 {
			url = url + "?" + raw
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()
		if len(errorMessage) > 0 {
			errorMessage = "\n" + errorMessage
		}
		wSize := c.Writer.Size()
		if wSize < 0 {
			wSize = 0
		}

		level := logging.LevelDebug
		if statusCode >= http.StatusInternalServerError {
			level = logging.LevelError
		} else if statusCode >= http.StatusBadRequest {
			level = logging.LevelWarn
		}
		log.Logf(level, "%3d | %13v | %15s | %8s | %8s | %-7s %s%s",
			statusCode,
			latency,
			c.ClientIP(),
			humanizeByteCount(c.Request.ContentLength),
			humanizeByteCount(int64(wSize)),
			c.Request.Method,
			url,
			errorMessage,
		)
	}
}

func humanizeByteCount(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", max(b, 0))
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func (s *Server) corsHandler() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Accept", "Content-Type"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	})
}

// replyOK writes the success envelope.
func replyOK(ctx *gin.Context, tick time.Time, data any) {
	rsp := gin.H{"success": true, "reason": "success", "elapse": time.Since(tick).String()}
	if data != nil {
		rsp["data"] = data
	}
	ctx.JSON(http.StatusOK, rsp)
}

// replyError writes the failure envelope. A zero code is derived from err.
func replyError(ctx *gin.Context, tick time.Time, code int, err error) {
	if code == 0 {
		code = statusOf(err)
	}
	ctx.JSON(code, gin.H{
		"success": false,
		"reason":  err.Error(),
		"elapse":  time.Since(tick).String(),
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, layers.ErrNotFound),
		errors.Is(err, viewer.ErrDrawingNotFound):
		return http.StatusNotFound
	case errors.Is(err, layers.ErrUnknownSource),
		errors.Is(err, viewer.ErrUnknownMode),
		errors.Is(err, drawing.ErrInvalidGeometry),
		errors.Is(err, geo.ErrUnknownProjection),
		errors.Is(err, geo.ErrInvalidExtent),
		errors.Is(err, mapview.ErrOffView),
		errors.Is(err, viewer.ErrUnknownPlotType),
		errors.Is(err, viewer.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, viewer.ErrProjectionChange),
		errors.Is(err, viewer.ErrSetView),
		errors.Is(err, viewer.ErrNoLayerExtent),
		errors.Is(err, layers.ErrNotActive),
		errors.Is(err, mapview.ErrNoDrawSession):
		return http.StatusConflict
	case errors.Is(err, viewer.ErrNoFetcher):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
