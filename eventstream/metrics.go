package eventstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exported by the core. One
// instance is constructed at process startup and shared across turns.
type Metrics struct {
	ProviderLatency  *prometheus.HistogramVec
	ToolIterations   *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec
	TurnsTotal       *prometheus.CounterVec
	SupervisorErrors *prometheus.CounterVec
}

// NewMetrics registers every instrument against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groupchat",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Latency of a single Provider Gateway call, by provider_id.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider_id"}),
		ToolIterations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groupchat",
			Subsystem: "toolruntime",
			Name:      "loop_iterations",
			Help:      "Number of model round-trips a Tool Runtime loop made before returning, by agent.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"agent"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "groupchat",
			Subsystem: "eventstream",
			Name:      "turn_queue_depth",
			Help:      "Number of buffered events awaiting consumption for an in-flight turn.",
		}, []string{"group_id"}),
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupchat",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Completed turns, by group_id and terminal status.",
		}, []string{"group_id", "status"}),
		SupervisorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupchat",
			Subsystem: "supervisor",
			Name:      "errors_total",
			Help:      "Supervisor protocol failures, by kind (generation, extract, decode).",
		}, []string{"kind"}),
	}
}
