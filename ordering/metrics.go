package ordering

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "iroha_ordering"

// Metrics exposes the ordering service counters. Pass the result of
// NewMetrics to WithServiceMetrics to publish them on a registry; the
// default is NopMetrics, which collects but registers nowhere.
type Metrics struct {
	ProposalsEmitted    prometheus.Counter
	ProposalsServed     prometheus.Counter
	TransactionsQueued  prometheus.Counter
	TransactionsDropped prometheus.Counter
	CachedProposals     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := NopMetrics()
	if reg != nil {
		reg.MustRegister(
			m.ProposalsEmitted,
			m.ProposalsServed,
			m.TransactionsQueued,
			m.TransactionsDropped,
			m.CachedProposals,
		)
	}
	return m
}

func NopMetrics() *Metrics {
	return &Metrics{
		ProposalsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proposals_emitted_total",
			Help:      "Number of proposals emitted by the local ordering service.",
		}),
		ProposalsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proposals_served_total",
			Help:      "Number of proposal requests answered with a proposal.",
		}),
		TransactionsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transactions_queued_total",
			Help:      "Number of transactions accepted into round queues.",
		}),
		TransactionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transactions_dropped_total",
			Help:      "Number of transactions dropped for unaccepted rounds.",
		}),
		CachedProposals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cached_proposals",
			Help:      "Number of emitted proposals currently retained.",
		}),
	}
}
