package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build statuses used as metric labels.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Metrics holds the Prometheus collectors for builds. A Metrics created with
// metrics disabled accepts every Record call and does nothing.
type Metrics struct {
	config MetricsConfig

	buildsStarted   prometheus.Counter
	buildsCompleted *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	errorsByStage   *prometheus.CounterVec
	dependencies    prometheus.Gauge
	outputBytes     prometheus.Gauge
	watchRebuilds   *prometheus.CounterVec
	activeBuilds    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_started_total",
				Help:      "Total number of builds started",
			},
		),
		buildsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_completed_total",
				Help:      "Total number of builds completed",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of a build in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of a single build stage in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		errorsByStage: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_errors_total",
				Help:      "Total number of failed builds by stage and error kind",
			},
			[]string{"stage", "kind"},
		),
		dependencies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_dependencies",
				Help:      "Number of source files read by the last build",
			},
		),
		outputBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_output_bytes",
				Help:      "Size of the last rendered output",
			},
		),
		watchRebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watch_rebuilds_total",
				Help:      "Total number of rebuilds triggered by file changes",
			},
			[]string{"trigger"},
		),
		activeBuilds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_builds",
				Help:      "Number of builds currently running",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.buildsStarted,
		m.buildsCompleted,
		m.buildDuration,
		m.stageDuration,
		m.errorsByStage,
		m.dependencies,
		m.outputBytes,
		m.watchRebuilds,
		m.activeBuilds,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordBuildStarted counts a started build.
func (m *Metrics) RecordBuildStarted() {
	if m == nil || m.buildsStarted == nil {
		return
	}
	m.buildsStarted.Inc()
	m.activeBuilds.Inc()
}

// RecordBuildCompleted records a finished build with its status and duration.
func (m *Metrics) RecordBuildCompleted(status string, duration time.Duration) {
	if m == nil || m.buildsCompleted == nil {
		return
	}
	m.buildsCompleted.WithLabelValues(status).Inc()
	m.buildDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeBuilds.Dec()
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordError counts a failed build by the stage that failed and the error kind.
func (m *Metrics) RecordError(stage, kind string) {
	if m == nil || m.errorsByStage == nil {
		return
	}
	m.errorsByStage.WithLabelValues(stage, kind).Inc()
}

// SetDependencies sets the dependency count of the last build.
func (m *Metrics) SetDependencies(n int) {
	if m == nil || m.dependencies == nil {
		return
	}
	m.dependencies.Set(float64(n))
}

// SetOutputBytes sets the size of the last rendered output.
func (m *Metrics) SetOutputBytes(n int) {
	if m == nil || m.outputBytes == nil {
		return
	}
	m.outputBytes.Set(float64(n))
}

// RecordWatchRebuild counts a rebuild triggered by the watcher.
func (m *Metrics) RecordWatchRebuild(trigger string) {
	if m == nil || m.watchRebuilds == nil {
		return
	}
	m.watchRebuilds.WithLabelValues(trigger).Inc()
}

// Registry returns the registry backing the collectors, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint on the configured address until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if !m.config.Enabled {
		return nil
	}
	if addr == "" {
		addr = m.config.ListenAddress
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
