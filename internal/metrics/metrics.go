// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 上流APIクライアント・ワークフロー・リフレッシュワーカーから利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(operation string, statusCode int)
	RecordUpstreamRetry(operation string)
	RecordUpstreamLatency(operation string, duration time.Duration)
	RecordBulkSubmission(outcome string)
	RecordAssignmentsSubmitted(count int)
	RecordCacheRefreshSuccess()
	RecordCacheRefreshFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests     *prometheus.CounterVec
	upstreamRetries      *prometheus.CounterVec
	upstreamLatency      *prometheus.HistogramVec
	bulkSubmissions      *prometheus.CounterVec
	assignmentsSubmitted prometheus.Counter
	cacheRefreshSuccess  prometheus.Counter
	cacheRefreshFail     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignhub_upstream_requests_total",
			Help: "上流API操作別・ステータスコード別のリクエスト数",
		}, []string{"operation", "status_code"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignhub_upstream_retries_total",
			Help: "上流API操作別のリトライ回数",
		}, []string{"operation"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assignhub_upstream_latency_seconds",
			Help:    "上流APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		bulkSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignhub_bulk_submissions_total",
			Help: "バルク送信の結果別の合計数",
		}, []string{"outcome"}),
		assignmentsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignhub_assignments_submitted_total",
			Help: "送信された割り当ての合計数",
		}),
		cacheRefreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignhub_cache_refresh_success_total",
			Help: "キャッシュリフレッシュ成功の合計数",
		}),
		cacheRefreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignhub_cache_refresh_fail_total",
			Help: "キャッシュリフレッシュ失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamRetries,
		c.upstreamLatency,
		c.bulkSubmissions,
		c.assignmentsSubmitted,
		c.cacheRefreshSuccess,
		c.cacheRefreshFail,
	)

	return c
}

// RecordUpstreamRequest は上流APIリクエストの結果を記録する。
func (c *Collector) RecordUpstreamRequest(operation string, statusCode int) {
	c.upstreamRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamRetry は上流APIリクエストのリトライを記録する。
func (c *Collector) RecordUpstreamRetry(operation string) {
	c.upstreamRetries.WithLabelValues(operation).Inc()
}

// RecordUpstreamLatency は上流APIリクエストのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(operation string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBulkSubmission はバルク送信の結果（success / partial_failure）を記録する。
func (c *Collector) RecordBulkSubmission(outcome string) {
	c.bulkSubmissions.WithLabelValues(outcome).Inc()
}

// RecordAssignmentsSubmitted は送信された割り当て数を記録する。
func (c *Collector) RecordAssignmentsSubmitted(count int) {
	c.assignmentsSubmitted.Add(float64(count))
}

// RecordCacheRefreshSuccess はキャッシュリフレッシュ成功を記録する。
func (c *Collector) RecordCacheRefreshSuccess() {
	c.cacheRefreshSuccess.Inc()
}

// RecordCacheRefreshFailure はキャッシュリフレッシュ失敗を記録する。
func (c *Collector) RecordCacheRefreshFailure() {
	c.cacheRefreshFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
