package chatsdk

import (
	"time"

	"chatsdk/go-backend/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chatsdk"

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	opsTotal          *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	unknownTokens     prometheus.Counter
	outstanding       prometheus.Gauge
	stage             *prometheus.GaugeVec
	completionLatency *prometheus.HistogramVec
}

// NewMetrics registers the client collectors on reg. A nil reg gets a private
// registry, which keeps collectors of independent clients apart.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		opsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Client operations by kind and verdict.",
		}, []string{"kind", "verdict", "reason"}),
		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "completions_total",
			Help:      "Engine completions by kind and whether an event was emitted.",
		}, []string{"kind", "outcome"}),
		unknownTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unknown_tokens_total",
			Help:      "Completions that arrived for an unknown or already resolved token.",
		}),
		outstanding: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "outstanding_requests",
			Help:      "Accepted requests whose completion has not arrived.",
		}),
		stage: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "lifecycle_stage",
			Help:      "1 for the current lifecycle stage, 0 otherwise.",
		}, []string{"stage"}),
		completionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "completion_latency_seconds",
			Help:      "Time from accepted call to engine completion.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"kind"}),
	}
}

func (m *Metrics) accepted(kind engine.Kind) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(string(kind), "accepted", "").Inc()
}

func (m *Metrics) rejected(kind engine.Kind, err error) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(string(kind), "rejected", Reason(err)).Inc()
}

func (m *Metrics) completion(kind engine.Kind, emitted bool, since time.Duration) {
	if m == nil {
		return
	}
	outcome := "suppressed"
	if emitted {
		outcome = "emitted"
	}
	m.eventsTotal.WithLabelValues(string(kind), outcome).Inc()
	if kind != engine.KindPush {
		m.completionLatency.WithLabelValues(string(kind)).Observe(since.Seconds())
	}
}

func (m *Metrics) unknownToken() {
	if m == nil {
		return
	}
	m.unknownTokens.Inc()
}

func (m *Metrics) setOutstanding(n int) {
	if m == nil {
		return
	}
	m.outstanding.Set(float64(n))
}

func (m *Metrics) setStage(current Stage) {
	if m == nil {
		return
	}
	for _, s := range Stages() {
		v := 0.0
		if s == current {
			v = 1
		}
		m.stage.WithLabelValues(string(s)).Set(v)
	}
}
