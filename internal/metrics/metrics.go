// Package metrics はPrometheus形式のアプリケーションメトリクスを提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はアプリケーションのメトリクスを保持する。
// 専用のRegistryを持つため、複数インスタンスを生成しても登録が衝突しない。
type Collector struct {
	registry *prometheus.Registry

	submissionsTotal         *prometheus.CounterVec
	transitionsTotal         *prometheus.CounterVec
	notificationFailures     *prometheus.CounterVec
	notificationSendDuration prometheus.Histogram
	httpRequestsTotal        *prometheus.CounterVec
}

// NewCollector はメトリクスを登録済みのCollectorを生成する。
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_submissions_total",
			Help: "Total number of service requests submitted.",
		}, []string{"category", "priority"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_status_transitions_total",
			Help: "Total number of status transitions applied.",
		}, []string{"from", "to"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_notification_failures_total",
			Help: "Total number of failed notification deliveries.",
		}, []string{"event"}),
		notificationSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "servicedesk_notification_send_duration_seconds",
			Help:    "Time spent sending a single notification email.",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		c.submissionsTotal,
		c.transitionsTotal,
		c.notificationFailures,
		c.notificationSendDuration,
		c.httpRequestsTotal,
	)
	return c
}

// RecordSubmission はリクエスト作成を記録する。
func (c *Collector) RecordSubmission(category, priority string) {
	c.submissionsTotal.WithLabelValues(category, priority).Inc()
}

// RecordStatusTransition はステータス遷移を記録する。
func (c *Collector) RecordStatusTransition(from, to string) {
	c.transitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordNotificationFailure は通知送信の失敗を記録する。
func (c *Collector) RecordNotificationFailure(event string) {
	c.notificationFailures.WithLabelValues(event).Inc()
}

// RecordNotificationLatency は通知送信1件の所要時間を記録する。
func (c *Collector) RecordNotificationLatency(d time.Duration) {
	c.notificationSendDuration.Observe(d.Seconds())
}

// RecordHTTPRequest はHTTPリクエスト1件を記録する。
// routeはパスパラメータ展開前のルートパターンを渡し、カーディナリティを抑える。
func (c *Collector) RecordHTTPRequest(method, route string, status int) {
	c.httpRequestsTotal.WithLabelValues(method, route, statusText(status)).Inc()
}

// Handler は/metricsエンドポイント用のハンドラを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func statusText(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
