package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dualview/dualview/mods"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

func (s *Server) handleHealthz(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, gin.H{"version": mods.GetVersion()})
}

// handleStatz reports a snapshot of every registered metric.
func (s *Server) handleStatz(ctx *gin.Context) {
	tick := time.Now()
	ret := map[string]any{}
	gometrics.DefaultRegistry.Each(func(name string, i any) {
		switch m := i.(type) {
		case gometrics.Counter:
			ret[name] = m.Snapshot().Count()
		case gometrics.Gauge:
			ret[name] = m.Snapshot().Value()
		case gometrics.GaugeFloat64:
			ret[name] = m.Snapshot().Value()
		case gometrics.Meter:
			ms := m.Snapshot()
			ret[name] = gin.H{"count": ms.Count(), "rate1": ms.Rate1(), "rateMean": ms.RateMean()}
		case gometrics.Timer:
			ts := m.Snapshot()
			ret[name] = gin.H{
				"count": ts.Count(),
				"mean":  time.Duration(ts.Mean()).String(),
				"max":   time.Duration(ts.Max()).String(),
				"p99":   time.Duration(ts.Percentile(0.99)).String(),
			}
		case gometrics.Histogram:
			hs := m.Snapshot()
			ret[name] = gin.H{"count": hs.Count(), "mean": hs.Mean(), "max": hs.Max()}
		}
	})
	ret["runtime"] = s.runtimeStats()
	replyOK(ctx, tick, ret)
}

func (s *Server) runtimeStats() gin.H {
	ms := runtime.MemStats{}
	runtime.ReadMemStats(&ms)
	ret := gin.H{
		"goroutines": runtime.NumGoroutine(),
		"heap_inuse": ms.HeapInuse,
	}
	if pct, err := cpu.Percent(0, false); err != nil {
		s.log.Debugf("statz cpu %s", err.Error())
	} else if len(pct) > 0 {
		ret["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err != nil {
		s.log.Debugf("statz mem %s", err.Error())
	} else {
		ret["mem_percent"] = vm.UsedPercent
	}
	return ret
}

func (s *Server) handleAlerts(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, s.viewer.Alerts())
}

func (s *Server) handleAlertsDismiss(ctx *gin.Context) {
	tick := time.Now()
	replyOK(ctx, tick, gin.H{"dismissed": s.viewer.DismissAlerts()})
}

// handleEvents streams alerts as json text frames until the peer goes
// away.
func (s *Server) handleEvents(ctx *gin.Context) {
	// subscribe before the handshake completes so nothing raised after
	// the client connects is missed
	alerts, cancel := s.viewer.SubscribeAlerts(16)
	defer cancel()

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		s.log.Errorf("events ws upgrade fail %s", err.Error())
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ctx.Request.Context().Done():
			return
		case alert, ok := <-alerts:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(alert); err != nil {
				s.log.Debugf("events ws write %s", err.Error())
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
