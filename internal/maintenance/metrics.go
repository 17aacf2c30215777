package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlask_session_sweep_runs_total",
			Help: "Total number of idle session sweeps.",
		},
	)
	sessionsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlask_sessions_swept_total",
			Help: "Total number of idle sessions removed by sweeps.",
		},
	)
	uploadsReleasedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlask_uploads_released_total",
			Help: "Uploaded database files deleted when their session was swept.",
		},
	)
)

func init() {
	prometheus.MustRegister(sweepRunsTotal, sessionsSweptTotal, uploadsReleasedTotal)
}
