package client

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 客户端请求指标
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	UploadBytes     prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// defaultMetrics 返回进程级单例指标
//
// promauto 注册到全局 Registry，多个 Client 实例共享同一组指标。
func defaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "evalconsole",
					Name:      "api_requests_total",
					Help:      "Total API requests by method and status",
				},
				[]string{"method", "status"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "evalconsole",
					Name:      "api_request_duration_seconds",
					Help:      "API request latency in seconds",
					Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				},
				[]string{"method"},
			),
			UploadBytes: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "evalconsole",
					Name:      "upload_bytes_total",
					Help:      "Total bytes uploaded",
				},
			),
		}
	})
	return metricsInst
}

// observe 记录一次请求的结果
func (m *Metrics) observe(method, path string, resp *http.Response, err error, duration time.Duration) {
	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
