// Package metrics exposes Prometheus instruments for the mission lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lifecycle operation labels.
const (
	OperationRequest = "request"
	OperationReject  = "reject"
	OperationStatus  = "status"
)

// Outcome label used for successful calls. Failures are labelled with their
// error code.
const OutcomeOK = "ok"

// Metrics holds the lifecycle instruments. A nil *Metrics records nothing.
type Metrics struct {
	calls              *prometheus.CounterVec
	issued             prometheus.Counter
	cachedReturns      prometheus.Counter
	rejected           prometheus.Counter
	lostCreateRaces    prometheus.Counter
	generationDuration *prometheus.HistogramVec
}

// New registers the lifecycle instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.calls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missions_lifecycle_calls_total",
			Help: "lifecycle calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	m.issued = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "missions_issued_total",
			Help: "missions generated and persisted",
		},
	)
	m.cachedReturns = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "missions_cached_returns_total",
			Help: "requests answered with an already issued mission",
		},
	)
	m.rejected = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "missions_rejected_total",
			Help: "missions moved to the rejected state",
		},
	)
	m.lostCreateRaces = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "missions_create_conflicts_total",
			Help: "issuances that found a record created concurrently",
		},
	)
	m.generationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "missions_generation_duration_seconds",
			Help:    "mission generator latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		},
		[]string{"outcome"},
	)
	return m
}

// NewRegistry returns a private registry carrying the Go and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveCall counts one lifecycle call.
func (m *Metrics) ObserveCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
}

// ObserveGeneration records generator latency.
func (m *Metrics) ObserveGeneration(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = "error"
	}
	m.generationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// IncIssued counts a newly persisted mission.
func (m *Metrics) IncIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

// IncCachedReturn counts a request served from the store.
func (m *Metrics) IncCachedReturn() {
	if m == nil {
		return
	}
	m.cachedReturns.Inc()
}

// IncRejected counts a rejection.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// IncCreateConflict counts an issuance that lost a create race.
func (m *Metrics) IncCreateConflict() {
	if m == nil {
		return
	}
	m.lostCreateRaces.Inc()
}
