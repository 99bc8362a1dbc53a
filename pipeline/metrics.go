package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/shopper/errors"
)

// Metrics counts what a run read, skipped, wrote and lost.
// Each run owns a registry that is exported as a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	RecordsRead    *prometheus.CounterVec
	RecordsSkipped *prometheus.CounterVec
	RecordsWritten *prometheus.CounterVec
	BatchesTotal   *prometheus.CounterVec
	BatchesFailed  *prometheus.CounterVec
	BatchDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers the stage counters on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopper_records_read_total",
				Help: "Records handed to a stage",
			},
			[]string{"stage"},
		),
		RecordsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopper_records_skipped_total",
				Help: "Records skipped by fast-forward resume",
			},
			[]string{"stage"},
		),
		RecordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopper_records_written_total",
				Help: "Artifacts appended to stage output",
			},
			[]string{"stage"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopper_batches_total",
				Help: "Batches sent to the remote runner",
			},
			[]string{"stage"},
		),
		BatchesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopper_batches_failed_total",
				Help: "Batches dropped after a remote or parse failure",
			},
			[]string{"stage"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopper_batch_duration_seconds",
				Help:    "Wall time per batch including remote calls",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"stage"},
		),
	}

	m.registry.MustRegister(
		m.RecordsRead,
		m.RecordsSkipped,
		m.RecordsWritten,
		m.BatchesTotal,
		m.BatchesFailed,
		m.BatchDuration,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests or an HTTP handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format.
// The write goes through a temp file and rename so collectors never see a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
