// Package metrics exposes per-run extraction counters in Prometheus format.
//
// Every run gets its own registry, so nothing is shared between runs. The
// registry is written once, at the end of a run, as a node-exporter textfile.
package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "idbdump"

// Run holds the collectors of one extraction run.
type Run struct {
	reg *prometheus.Registry

	records   prometheus.Counter
	skipped   prometheus.Counter
	failed    prometheus.Counter
	extracted *prometheus.CounterVec
	duration  prometheus.Gauge
	info      *prometheus.GaugeVec
}

// NewRun creates a fresh registry labelled with runID and the extraction kind.
func NewRun(runID, kind string) *Run {
	r := &Run{reg: prometheus.NewRegistry()}

	r.records = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_total",
		Help:      "Records encountered, including skipped, dropped and failed ones",
	})
	r.skipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_skipped_total",
		Help:      "Records skipped because they had no value",
	})
	r.failed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_failed_total",
		Help:      "Records that failed normalization",
	})
	r.extracted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_extracted_total",
		Help:      "Records written to the structured output, per object store",
	}, []string{"store"})
	r.duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the extraction run",
	})
	r.info = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_info",
		Help:      "Constant 1, labelled with the run id and extraction kind",
	}, []string{"run_id", "kind"})

	r.reg.MustRegister(r.records, r.skipped, r.failed, r.extracted, r.duration, r.info)
	r.info.WithLabelValues(runID, kind).Set(1)
	return r
}

// Totals are the counts of a finished run.
type Totals struct {
	Records  int
	Skipped  int
	Failed   int
	PerStore map[string]int
}

// Observe records a finished run's totals and duration.
func (r *Run) Observe(t Totals, seconds float64) {
	r.records.Add(float64(t.Records))
	r.skipped.Add(float64(t.Skipped))
	r.failed.Add(float64(t.Failed))
	for store, n := range t.PerStore {
		r.extracted.WithLabelValues(store).Add(float64(n))
	}
	r.duration.Set(seconds)
}

// Gatherer exposes the registry, mainly for tests.
func (r *Run) Gatherer() prometheus.Gatherer { return r.reg }

// WriteTextfile writes the registry to path atomically.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return errors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
