package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors updated by the tick runner.
type Metrics struct {
	// TicksTotal counts completed ticks by result (ok, store_error, conflict).
	TicksTotal *prometheus.CounterVec

	// TickDuration tracks wall time of a full tick
	TickDuration prometheus.Histogram

	// ProbeProblem is 1 when the last signal from a source reported a problem
	ProbeProblem *prometheus.GaugeVec

	// ProbeLatency tracks probe round trips by prober name
	ProbeLatency *prometheus.HistogramVec

	// Alerting mirrors the persisted alerting flag
	Alerting prometheus.Gauge

	// ConsecutiveFails mirrors the persisted counter
	ConsecutiveFails prometheus.Gauge

	// TransitionsTotal counts state transitions by direction (enter, exit)
	TransitionsTotal *prometheus.CounterVec

	// NotificationsTotal counts delivery attempts by channel and result
	NotificationsTotal *prometheus.CounterVec

	// StateStoreErrors counts backend failures by operation (read, write)
	StateStoreErrors *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgwatch_ticks_total",
				Help: "Total number of completed ticks",
			},
			[]string{"result"},
		),
		TickDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tgwatch_tick_duration_seconds",
				Help:    "Wall time of a full probe-and-decide tick",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
			},
		),
		ProbeProblem: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tgwatch_probe_problem",
				Help: "Whether the last signal from a source reported a problem (1) or not (0)",
			},
			[]string{"source"},
		),
		ProbeLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tgwatch_probe_latency_seconds",
				Help:    "Probe round trip in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"probe"},
		),
		Alerting: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tgwatch_alerting",
				Help: "Confirmed alert state of the monitored service",
			},
		),
		ConsecutiveFails: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tgwatch_consecutive_fails",
				Help: "Consecutive ticks that met the alert condition",
			},
		),
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgwatch_transitions_total",
				Help: "Total number of alert state transitions",
			},
			[]string{"direction"},
		),
		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgwatch_notifications_total",
				Help: "Total number of notification attempts",
			},
			[]string{"channel", "result"},
		),
		StateStoreErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgwatch_state_store_errors_total",
				Help: "Total number of state store failures",
			},
			[]string{"op"},
		),
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors, for serving on /metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Nop returns metrics registered on a throwaway registry.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
