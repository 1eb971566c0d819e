// Package metrics exposes Prometheus metrics for scans and deletions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry        *prometheus.Registry
	engineCollector *EngineCollector

	scansTotal   *prometheus.CounterVec
	scanDuration prometheus.Histogram
	deletedFiles *prometheus.CounterVec
	bytesFreed   prometheus.Counter
}

func NewManager(source SnapshotSource) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engineCollector := NewEngineCollector(source)
	registry.MustRegister(engineCollector)

	m := &Manager{
		registry:        registry,
		engineCollector: engineCollector,
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediadupes_scans_total",
			Help: "Finished duplicate searches by outcome",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediadupes_scan_duration_seconds",
			Help:    "Wall time of finished duplicate searches",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		deletedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediadupes_deleted_files_total",
			Help: "Files processed by deletion batches by result",
		}, []string{"result"}),
		bytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediadupes_freed_bytes_total",
			Help: "Bytes freed by successful deletions",
		}),
	}
	registry.MustRegister(m.scansTotal, m.scanDuration, m.deletedFiles, m.bytesFreed)

	log.Debug().Msg("Metrics manager initialized")
	return m
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordScan counts a finished scan.
func (m *Manager) RecordScan(status string, took time.Duration) {
	m.scansTotal.WithLabelValues(status).Inc()
	m.scanDuration.Observe(took.Seconds())
}

// RecordDeletes counts the outcome of one deletion batch.
func (m *Manager) RecordDeletes(deleted, failed int, freed int64) {
	m.deletedFiles.WithLabelValues("deleted").Add(float64(deleted))
	m.deletedFiles.WithLabelValues("failed").Add(float64(failed))
	m.bytesFreed.Add(float64(freed))
}
