// Package metrics exposes sync run metrics for Prometheus. Metrics are
// fed from service events, so the engine itself stays metrics-agnostic.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sheetsync/internal/logging"
	"sheetsync/internal/service"
)

const namespace = "sheetsync"

// Metrics holds all sync metrics and their registry.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec
	RowsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	LastSuccess *prometheus.GaugeVec
	RunningJobs prometheus.Gauge
	registry    *prometheus.Registry
}

// New creates and registers the metrics on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync runs by job and outcome",
		},
		[]string{"job", "status"}, // "success", "error"
	)

	m.RowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows handled by job and operation",
		},
		[]string{"job", "op"}, // "inserted", "updated", "unchanged", "failed", "annotated"
	)

	m.RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a sync run",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"job"},
	)

	m.LastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		},
		[]string{"job"},
	)

	m.RunningJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_jobs",
			Help:      "Jobs currently running",
		},
	)

	m.registry.MustRegister(m.RunsTotal, m.RowsTotal, m.RunDuration, m.LastSuccess, m.RunningJobs)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler for the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit implements service.EventEmitter.
func (m *Metrics) Emit(_ context.Context, event string, data any) {
	ev, ok := data.(service.SyncEvent)
	if !ok {
		return
	}
	switch event {
	case service.EventSyncStarted:
		m.RunningJobs.Inc()
	case service.EventSyncCompleted, service.EventSyncFailed:
		m.RunningJobs.Dec()
		m.recordReport(ev)
	}
}

func (m *Metrics) recordReport(ev service.SyncEvent) {
	status := "success"
	if ev.Error != "" {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(ev.Job, status).Inc()

	r := ev.Report
	if r == nil {
		return
	}
	m.RunDuration.WithLabelValues(ev.Job).Observe(r.Duration.Seconds())
	if status == "success" {
		m.RowsTotal.WithLabelValues(ev.Job, "inserted").Add(float64(r.Inserted))
		m.RowsTotal.WithLabelValues(ev.Job, "updated").Add(float64(r.Updated))
		m.RowsTotal.WithLabelValues(ev.Job, "unchanged").Add(float64(r.Unchanged))
		m.RowsTotal.WithLabelValues(ev.Job, "failed").Add(float64(len(r.Failed)))
		m.RowsTotal.WithLabelValues(ev.Job, "annotated").Add(float64(r.Annotated))
		m.LastSuccess.WithLabelValues(ev.Job).Set(float64(r.FinishedAt.Unix()))
	}
}

// Serve exposes /metrics and /health on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.FromContext(ctx).Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
