package watch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 实时连接指标
type Metrics struct {
	Reconnects prometheus.Counter
	Frames     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// watchMetrics 返回进程级单例指标
func watchMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			Reconnects: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "evalconsole",
					Name:      "ws_reconnects_total",
					Help:      "Total WebSocket reconnect attempts",
				},
			),
			Frames: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "evalconsole",
					Name:      "ws_frames_total",
					Help:      "Total WebSocket frames received by type",
				},
				[]string{"type"},
			),
		}
	})
	return metricsInst
}
