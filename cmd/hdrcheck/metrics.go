package main

import (
	"github.com/lightninglabs/spvchain/chainindex"
	"github.com/lightninglabs/spvchain/validator"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hdrcheck"

// metrics collects the outcome counters of one run. They are written as a
// node exporter textfile since the command does not stay up to be scraped.
type metrics struct {
	registry *prometheus.Registry

	outcomes   *prometheus.CounterVec
	promotions *prometheus.CounterVec
	reorgs     prometheus.Counter
	reorgDepth prometheus.Histogram
	inclusions *prometheus.CounterVec
	height     prometheus.Gauge

	maxHeight uint32
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "headers_total",
			Help:      "Submitted headers by outcome and reason.",
		}, []string{"outcome", "reason"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orphan_promotions_total",
			Help:      "Orphan headers processed after their parent arrived.",
		}, []string{"result"}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reorgs_total",
			Help:      "Best chain switches to another branch.",
		}),
		reorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "reorg_depth",
			Help:      "Headers disconnected per reorg.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		inclusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inclusion_checks_total",
			Help:      "Inclusion proof checks by result.",
		}, []string{"result"}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "max_accepted_height",
			Help:      "Greatest height of an accepted header.",
		}),
	}

	m.registry.MustRegister(
		m.outcomes, m.promotions, m.reorgs, m.reorgDepth,
		m.inclusions, m.height,
	)

	return m
}

// observeOutcome records one SubmitHeader outcome.
func (m *metrics) observeOutcome(o validator.Outcome) {
	reason := ""
	if o.Kind == validator.Rejected {
		reason = o.Reason.String()
	}
	m.outcomes.WithLabelValues(o.Kind.String(), reason).Inc()

	if o.Kind == validator.Accepted {
		m.observeHeight(o.Height)
	}

	for _, p := range o.Promoted {
		if p.Err != nil {
			m.promotions.WithLabelValues("rejected").Inc()
			continue
		}

		m.promotions.WithLabelValues("accepted").Inc()
		p.Node.WhenSome(func(n chainindex.Node) {
			m.observeHeight(n.Height)
		})
	}

	o.Reorg.WhenSome(func(r chainindex.Reorg) {
		m.reorgs.Inc()
		m.reorgDepth.Observe(float64(r.Depth()))
	})
}

func (m *metrics) observeHeight(height uint32) {
	if height > m.maxHeight {
		m.maxHeight = height
		m.height.Set(float64(height))
	}
}

// observeInclusion records one VerifyInclusion result.
func (m *metrics) observeInclusion(ok bool, err error) {
	result := "invalid"
	switch {
	case err != nil:
		result = validator.ReasonFromError(err).String()
	case ok:
		result = "valid"
	}

	m.inclusions.WithLabelValues(result).Inc()
}

// writeTextfile writes every metric to path in the text exposition format.
func (m *metrics) writeTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
