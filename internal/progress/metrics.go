package progress

import (
	"github.com/JonMunkholm/heapload/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports ingest progress as prometheus metrics.
type Metrics struct {
	SourceBytes      prometheus.Gauge
	BytesProcessed   prometheus.Gauge
	PercentDone      prometheus.Gauge
	BatchesCommitted prometheus.Counter
	RunsFinished     prometheus.Counter
	Running          prometheus.Gauge

	total   int64
	started bool
}

// NewMetrics registers the progress metrics with registerer. A nil
// registerer uses prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer, total int64) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SourceBytes: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "heapload_source_bytes",
				Help: "Size of the source being ingested in bytes",
			},
		),
		BytesProcessed: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "heapload_bytes_processed",
				Help: "Byte offset of the last committed checkpoint",
			},
		),
		PercentDone: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "heapload_percent_done",
				Help: "Percentage of the source processed",
			},
		),
		BatchesCommitted: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "heapload_batches_committed_total",
				Help: "Number of batches committed by this run",
			},
		),
		RunsFinished: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "heapload_runs_finished_total",
				Help: "Number of runs that completed their checkpoint",
			},
		),
		Running: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "heapload_running",
				Help: "1 while a run is in progress",
			},
		),
		total: total,
	}

	m.SourceBytes.Set(float64(total))
	return m
}

// Advance records the offset. The first call carries the resume offset and
// does not count as a batch.
func (m *Metrics) Advance(byteOffset int64) {
	if m.started {
		m.BatchesCommitted.Inc()
	} else {
		m.started = true
		m.Running.Set(1)
	}
	m.BytesProcessed.Set(float64(byteOffset))
	m.PercentDone.Set(core.Percent(byteOffset, m.total))
}

func (m *Metrics) Finish() {
	m.PercentDone.Set(100)
	m.RunsFinished.Inc()
}

func (m *Metrics) Close() error {
	m.Running.Set(0)
	return nil
}
