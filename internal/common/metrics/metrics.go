package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 服务级指标，注册到默认 registry，由 /metrics 暴露。
var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garage_actions_total",
		Help: "Garage lifecycle actions by action kind and outcome",
	}, []string{"action", "outcome", "reason"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garage_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "garage_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "path"})
)

// ObserveAction 记录一次编排动作的结果。
func ObserveAction(action string, ok bool, reason string) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	actionsTotal.WithLabelValues(action, outcome, reason).Inc()
}

// ObserveHTTP 记录一次 HTTP 请求的状态与耗时。
func ObserveHTTP(method, path, status string, took time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(took.Seconds())
}
