package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus指标
var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorstore_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vectorstore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	documentsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorstore_documents_upserted_total",
			Help: "Total number of documents written to the vector backend",
		},
		[]string{"collection", "status"},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorstore_searches_total",
			Help: "Total number of similarity searches executed",
		},
		[]string{"collection", "status"},
	)

	embeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vectorstore_embedding_duration_seconds",
			Help:    "Duration of embedding provider calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordRequest 记录HTTP请求
func RecordRequest(method, path string, status string, duration time.Duration) {
	requestsTotal.WithLabelValues(method, path, status).Inc()
	requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpsert 记录文档写入
func RecordUpsert(collection string, succeeded, failed int) {
	if succeeded > 0 {
		documentsUpserted.WithLabelValues(collection, "success").Add(float64(succeeded))
	}
	if failed > 0 {
		documentsUpserted.WithLabelValues(collection, "error").Add(float64(failed))
	}
}

// RecordSearch 记录检索请求
func RecordSearch(collection string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	searchesTotal.WithLabelValues(collection, status).Inc()
}

// RecordEmbedding 记录嵌入耗时
func RecordEmbedding(duration time.Duration) {
	embeddingDuration.Observe(duration.Seconds())
}

// Handler 返回Prometheus指标的HTTP处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
