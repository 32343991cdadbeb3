// Package metrics collects per-run counters and publishes them for the node
// exporter's textfile collector, since a batch run has no scrape endpoint.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the run collectors.
type Metrics struct {
	DocumentsTotal *prometheus.CounterVec
	RecordsTotal   *prometheus.CounterVec
	RowsLoaded     *prometheus.CounterVec
	LinesSkipped   *prometheus.CounterVec
	StreamsAborted *prometheus.CounterVec
	RunDuration    prometheus.Gauge
	LastRun        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers the run collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobbyxml",
				Name:      "documents_total",
				Help:      "Documents processed, by outcome",
			},
			[]string{"outcome"},
		),
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobbyxml",
				Name:      "records_flattened_total",
				Help:      "Records written to the intermediate store, by relation",
			},
			[]string{"relation"},
		),
		RowsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobbyxml",
				Name:      "rows_loaded_total",
				Help:      "Rows committed to the relational store, by relation",
			},
			[]string{"relation"},
		),
		LinesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobbyxml",
				Name:      "lines_skipped_total",
				Help:      "Flat-file lines rejected at load time, by relation",
			},
			[]string{"relation"},
		),
		StreamsAborted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobbyxml",
				Name:      "streams_aborted_total",
				Help:      "Flat-file streams rolled back on a bad line, by relation",
			},
			[]string{"relation"},
		),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lobbyxml",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lobbyxml",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run started",
		}),
	}

	m.registry.MustRegister(
		m.DocumentsTotal,
		m.RecordsTotal,
		m.RowsLoaded,
		m.LinesSkipped,
		m.StreamsAborted,
		m.RunDuration,
		m.LastRun,
	)
	return m
}

// ObserveRun records the run's start and duration.
func (m *Metrics) ObserveRun(started time.Time, elapsed time.Duration) {
	m.LastRun.Set(float64(started.Unix()))
	m.RunDuration.Set(elapsed.Seconds())
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every collector to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
