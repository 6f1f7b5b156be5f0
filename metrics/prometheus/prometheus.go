// Package prometheus exports forward index metrics to Prometheus.
//
//	obs := prometheus.NewObserver(prom.DefaultRegisterer)
//	fi, _ := forwardindex.Open(dir, "contents", annotations, forwardindex.WithMetricsObserver(obs))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/forwardindex"
)

var _ forwardindex.MetricsObserver = (*Observer)(nil)

// Observer implements forwardindex.MetricsObserver. Every metric carries
// an annotation label.
type Observer struct {
	opLatency   *prometheus.HistogramVec
	ops         *prometheus.CounterVec
	positions   *prometheus.CounterVec
	parts       *prometheus.CounterVec
	merges      *prometheus.CounterVec
	mergedTerms *prometheus.GaugeVec
	segments    *prometheus.GaugeVec
}

// NewObserver creates an Observer and registers its collectors with reg.
// A nil reg leaves them unregistered.
func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forwardindex_operation_latency_seconds",
			Help:    "Latency of forward index operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"annotation", "op", "status"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forwardindex_operations_total",
			Help: "Total forward index operations",
		}, []string{"annotation", "op", "status"}),
		positions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forwardindex_positions_added_total",
			Help: "Total token positions added",
		}, []string{"annotation"}),
		parts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forwardindex_snippet_parts_total",
			Help: "Total snippet ranges retrieved",
		}, []string{"annotation"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forwardindex_term_merges_total",
			Help: "Total merges of segment term spaces",
		}, []string{"annotation"}),
		mergedTerms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forwardindex_global_terms",
			Help: "Number of terms in the last merged global term space",
		}, []string{"annotation"}),
		segments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forwardindex_merged_segments",
			Help: "Number of segments in the last merged global term space",
		}, []string{"annotation"}),
	}

	if reg != nil {
		reg.MustRegister(o.opLatency, o.ops, o.positions, o.parts, o.merges, o.mergedTerms, o.segments)
	}
	return o
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (o *Observer) observe(annotation, op string, d time.Duration, err error) {
	s := status(err)
	o.ops.WithLabelValues(annotation, op, s).Inc()
	if d > 0 {
		o.opLatency.WithLabelValues(annotation, op, s).Observe(d.Seconds())
	}
}

func (o *Observer) OnAddDocument(annotation string, positions int, d time.Duration, err error) {
	o.observe(annotation, "add", d, err)
	if err == nil {
		o.positions.WithLabelValues(annotation).Add(float64(positions))
	}
}

func (o *Observer) OnDeleteDocument(annotation string, err error) {
	o.observe(annotation, "delete", 0, err)
}

func (o *Observer) OnRetrieve(annotation string, parts int, d time.Duration, err error) {
	o.observe(annotation, "retrieve", d, err)
	o.parts.WithLabelValues(annotation).Add(float64(parts))
}

func (o *Observer) OnInitialize(annotation string, d time.Duration, err error) {
	o.observe(annotation, "initialize", d, err)
}

func (o *Observer) OnMerge(annotation string, segments, terms int, d time.Duration) {
	o.merges.WithLabelValues(annotation).Inc()
	o.segments.WithLabelValues(annotation).Set(float64(segments))
	o.mergedTerms.WithLabelValues(annotation).Set(float64(terms))
	o.opLatency.WithLabelValues(annotation, "merge", "success").Observe(d.Seconds())
}
