package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the authority and the
// tracker agent. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	movesTotal        prometheus.Counter
	moveErrorsTotal   prometheus.Counter
	publishesTotal    *prometheus.CounterVec
	streamClients     prometheus.Gauge
	samplesSubmitted  prometheus.Counter
	submitFailures    prometheus.Counter
	deliveriesMerged  *prometheus.CounterVec
	deliveriesDropped prometheus.Counter
	resyncsTotal      prometheus.Counter
	resyncErrorsTotal prometheus.Counter
	reconnectsTotal   prometheus.Counter
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		movesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movetracker_moves_total",
			Help: "Moves accepted by the authority",
		}),
		moveErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movetracker_move_errors_total",
			Help: "Moves the authority failed to apply",
		}),
		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movetracker_publishes_total",
			Help: "Distance updates published to the stream hub",
		}, []string{"kind"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "movetracker_stream_clients",
			Help: "Connected stream websocket clients",
		}),
		samplesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movetracker_samples_submitted_total",
			Help: "Position samples sent to the authority",
		}),
		submitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movetracker_submit_failures_total",
			Help: "Position submissions that failed and were dropped",
		}),
		deliveriesMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movetracker_deliveries_merged_total",
			Help: "Fan-out deliveries merged into the local cache",
		}, []string{"kind"}),
		deliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movetracker_deliveries_dropped_total",
			Help: "Fan-out deliveries without a distance",
		}),
		resyncsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movetracker_resyncs_total",
			Help: "Full state re-fetches issued",
		}),
		resyncErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movetracker_resync_errors_total",
			Help: "Full state re-fetches that failed",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movetracker_stream_reconnects_total",
			Help: "Stream link reconnections",
		}),
	}

	registry.MustRegister(
		m.movesTotal,
		m.moveErrorsTotal,
		m.publishesTotal,
		m.streamClients,
		m.samplesSubmitted,
		m.submitFailures,
		m.deliveriesMerged,
		m.deliveriesDropped,
		m.resyncsTotal,
		m.resyncErrorsTotal,
		m.reconnectsTotal,
	)
	return m
}

func (m *Metrics) IncMoves() {
	if m != nil {
		m.movesTotal.Inc()
	}
}

func (m *Metrics) IncMoveErrors() {
	if m != nil {
		m.moveErrorsTotal.Inc()
	}
}

func (m *Metrics) IncPublishes(kind string) {
	if m != nil {
		m.publishesTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SetStreamClients(n int) {
	if m != nil {
		m.streamClients.Set(float64(n))
	}
}

func (m *Metrics) IncSamplesSubmitted() {
	if m != nil {
		m.samplesSubmitted.Inc()
	}
}

func (m *Metrics) IncSubmitFailures() {
	if m != nil {
		m.submitFailures.Inc()
	}
}

func (m *Metrics) IncDeliveriesMerged(kind string) {
	if m != nil {
		m.deliveriesMerged.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncDeliveriesDropped() {
	if m != nil {
		m.deliveriesDropped.Inc()
	}
}

func (m *Metrics) IncResyncs() {
	if m != nil {
		m.resyncsTotal.Inc()
	}
}

func (m *Metrics) IncResyncErrors() {
	if m != nil {
		m.resyncErrorsTotal.Inc()
	}
}

func (m *Metrics) IncReconnects() {
	if m != nil {
		m.reconnectsTotal.Inc()
	}
}

// Handler returns an http.Handler that serves the registry.
// updateGauges is called before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
