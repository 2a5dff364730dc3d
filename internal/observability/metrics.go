package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type runtimeMetrics struct {
	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram

	toolDispatchTotal    *prometheus.CounterVec
	toolDispatchDuration *prometheus.HistogramVec

	modelTurnsTotal    *prometheus.CounterVec
	modelTurnDuration  *prometheus.HistogramVec
	streamErrorsTotal  *prometheus.CounterVec
	queriesInFlight    prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *runtimeMetrics
)

func getMetrics() *runtimeMetrics {
	metricsOnce.Do(func() {
		m := &runtimeMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current stored session count.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			toolDispatchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_dispatch_total",
					Help: "Total tool dispatches by endpoint kind and status.",
				},
				[]string{"kind", "status"},
			),
			toolDispatchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_dispatch_duration_seconds",
					Help:    "Tool dispatch duration in seconds by endpoint kind.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"kind"},
			),
			modelTurnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_turns_total",
					Help: "Total model turns by provider and finish reason.",
				},
				[]string{"provider", "finish"},
			),
			modelTurnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "model_turn_duration_seconds",
					Help:    "Model turn duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			streamErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_errors_total",
					Help: "Total fatal model stream errors by provider.",
				},
				[]string{"provider"},
			),
			queriesInFlight: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "queries_in_flight",
					Help: "Orchestration queries currently executing.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.toolDispatchTotal,
			m.toolDispatchDuration,
			m.modelTurnsTotal,
			m.modelTurnDuration,
			m.streamErrorsTotal,
			m.queriesInFlight,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is
// called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler exposes the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

func RecordToolDispatch(kind string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolDispatchTotal.WithLabelValues(kind, status).Inc()
	m.toolDispatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordModelTurn(provider, finish string, duration time.Duration) {
	m := getMetrics()
	m.modelTurnsTotal.WithLabelValues(provider, finish).Inc()
	m.modelTurnDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordStreamError(provider string) {
	getMetrics().streamErrorsTotal.WithLabelValues(provider).Inc()
}

func QueryStarted() {
	getMetrics().queriesInFlight.Inc()
}

func QueryFinished() {
	getMetrics().queriesInFlight.Dec()
}
