// Package metrics exposes prometheus counters for propagation and ledger
// activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dmct"

// Suppression reasons for cascades.
const (
	ReasonHops    = "hops"
	ReasonFloor   = "amplitude_floor"
	ReasonLineage = "lineage_seen"
)

// Rejection reasons for inbound transport messages.
const (
	ReasonRateLimited = "rate_limited"
	ReasonOversized   = "oversized"
	ReasonUnreadable  = "unreadable"
	ReasonUndecodable = "undecodable"
	ReasonBadHello    = "bad_hello"
)

type Metrics struct {
	emissions        prometheus.Counter
	cascades         prometheus.Counter
	suppressed       *prometheus.CounterVec
	received         prometheus.Counter
	duplicates       prometheus.Counter
	deliveryFailures prometheus.Counter
	rejected         *prometheus.CounterVec

	ledgerEvents     prometheus.Counter
	ledgerResonances prometheus.Counter
	ledgerMerges     prometheus.Counter
	ledgerSize       prometheus.Gauge
}

// New creates the counters and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		emissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emissions_total",
			Help:      "Number of emissions created by local nodes, cascades included",
		}),
		cascades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascades_total",
			Help:      "Number of cascaded re-emissions",
		}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascades_suppressed_total",
			Help:      "Number of cascades suppressed by the storm guard",
		}, []string{"reason"}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emissions_received_total",
			Help:      "Number of emissions delivered to local nodes",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emissions_duplicate_total",
			Help:      "Number of deliveries dropped as already seen",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Number of neighbour deliveries that failed",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_rejected_total",
			Help:      "Number of inbound transport messages dropped before delivery",
		}, []string{"reason"}),
		ledgerEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_total",
			Help:      "Number of events appended to the ledger",
		}),
		ledgerResonances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_resonances_total",
			Help:      "Number of event pairs found mutually reinforcing",
		}),
		ledgerMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_merges_total",
			Help:      "Number of ledger merges",
		}),
		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_events",
			Help:      "Current number of events in the ledger",
		}),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		m.emissions, m.cascades, m.suppressed, m.received, m.duplicates,
		m.deliveryFailures, m.rejected, m.ledgerEvents, m.ledgerResonances, m.ledgerMerges,
		m.ledgerSize,
	} {
		if err := registerer.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return m, errors.Join(errs...)
}

func (m *Metrics) IncEmissions() {
	if m == nil {
		return
	}
	m.emissions.Inc()
}

func (m *Metrics) IncCascades() {
	if m == nil {
		return
	}
	m.cascades.Inc()
}

func (m *Metrics) IncSuppressed(reason string) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncReceived() {
	if m == nil {
		return
	}
	m.received.Inc()
}

func (m *Metrics) IncDuplicates() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) IncDeliveryFailures() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// MarkEventAppended records a ledger append and the pairs it resonated with.
func (m *Metrics) MarkEventAppended(resonances int, size int) {
	if m == nil {
		return
	}
	m.ledgerEvents.Inc()
	m.ledgerResonances.Add(float64(resonances))
	m.ledgerSize.Set(float64(size))
}

func (m *Metrics) MarkMerge(size int) {
	if m == nil {
		return
	}
	m.ledgerMerges.Inc()
	m.ledgerSize.Set(float64(size))
}
