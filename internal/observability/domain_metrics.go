package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlask_questions_total",
			Help: "Total number of questions by outcome.",
		},
		[]string{"outcome"},
	)
	safetyBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlask_safety_blocks_total",
			Help: "Total number of generated statements blocked by the safety gate, by matched keyword.",
		},
		[]string{"keyword"},
	)
	translateLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlask_translate_latency_ms",
			Help:    "Text-to-SQL model latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlask_query_latency_ms",
			Help:    "Generated SQL execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	uploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlask_uploads_total",
			Help: "Total number of database uploads accepted.",
		},
	)
	uploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlask_upload_bytes_total",
			Help: "Total number of uploaded database bytes.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlask_active_sessions",
			Help: "Current number of in-memory sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		safetyBlocksTotal,
		translateLatencyMs,
		queryLatencyMs,
		uploadsTotal,
		uploadBytesTotal,
		activeSessions,
	)
}

func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func IncrementSafetyBlock(keyword string) {
	if keyword == "" {
		keyword = "none"
	}
	safetyBlocksTotal.WithLabelValues(keyword).Inc()
}

func ObserveTranslateLatency(elapsed time.Duration) {
	translateLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveQueryLatency(elapsed time.Duration) {
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveUpload(bytes int64) {
	uploadsTotal.Inc()
	if bytes > 0 {
		uploadBytesTotal.Add(float64(bytes))
	}
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}
