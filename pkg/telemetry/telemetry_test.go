package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "development", mutate: func(c *Config) { *c = *DevelopmentConfig() }},
		{name: "no service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service name is required"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level: loud"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
			},
			wantErr: "otlp exporter requires an endpoint",
		},
		{name: "sampling rate", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: "sampling rate"},
		{
			name: "async without buffer",
			mutate: func(c *Config) {
				c.Events.EnableAsync = true
				c.Events.BufferSize = 0
			},
			wantErr: "event buffer size must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("engine").WithBuildID("b-1").WithEntry("main.ts").Info("Build started")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, buf.String())
	}
	want := map[string]string{
		"component": "engine",
		"build_id":  "b-1",
		"entry":     "main.ts",
		"message":   "Build started",
		"level":     "info",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("field %s = %v, want %q", k, line[k], v)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn not logged: %q", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext() returned nil without a logger")
	}
	logger := Wrap(NewLoggerTo(&bytes.Buffer{}, LoggingConfig{Level: "info", Format: "json"}).Zerolog())
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Fatal("FromContext() did not return the stored logger")
	}
}

func TestMetrics(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordBuildStarted()
	m.RecordBuildCompleted(StatusSucceeded, 10*time.Millisecond)
	m.RecordBuildStarted()
	m.RecordBuildCompleted(StatusFailed, 5*time.Millisecond)
	m.RecordError("policy", "")
	m.SetDependencies(3)
	m.RecordWatchRebuild("change")

	if got := testutil.ToFloat64(m.buildsStarted); got != 2 {
		t.Errorf("builds started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.buildsCompleted.WithLabelValues(StatusFailed)); got != 1 {
		t.Errorf("failed builds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.errorsByStage.WithLabelValues("policy", "")); got != 1 {
		t.Errorf("policy errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dependencies); got != 3 {
		t.Errorf("dependencies = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.activeBuilds); got != 0 {
		t.Errorf("active builds = %v, want 0", got)
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "confts_watch_rebuilds_total" {
			found = true
		}
	}
	if !found {
		t.Error("confts_watch_rebuilds_total not registered")
	}
}

func TestDisabledMetricsAreSafe(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.RecordBuildStarted()
	m.RecordBuildCompleted(StatusSucceeded, time.Second)
	m.RecordStage("compile", time.Second)
	m.RecordError("compile", "UnsupportedSyntax")
	m.SetDependencies(1)
	m.SetOutputBytes(1)
	m.RecordWatchRebuild("change")
	if m.Registry() != nil {
		t.Error("disabled metrics have a registry")
	}

	var nilMetrics *Metrics
	nilMetrics.RecordBuildStarted()
}

func TestStageSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tel := Nop()
	tel.Tracer = NewTracerWithExporter(exp, "confts-test")

	ctx, build := tel.Tracer.StartBuildSpan(context.Background(), "b-1", "main.ts", "json", false)
	tel.StartStage(ctx, "compile").End(nil)
	tel.StartStage(ctx, "policy").End(errors.New("denied"))
	build.End()

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	if byName["build.compile"].Status.Code != codes.Ok {
		t.Errorf("compile status = %v, want Ok", byName["build.compile"].Status.Code)
	}
	policy := byName["build.policy"]
	if policy.Status.Code != codes.Error || policy.Status.Description != "denied" {
		t.Errorf("policy status = %+v, want Error denied", policy.Status)
	}
	if policy.Parent.SpanID() != byName["build"].SpanContext.SpanID() {
		t.Error("stage span is not a child of the build span")
	}
}

func TestEventPublisher(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})

	var all, failures []Event
	ep.Subscribe(func(e Event) { all = append(all, e) }, nil)
	ep.Subscribe(func(e Event) { failures = append(failures, e) }, FilterByLevel(EventLevelError))

	if err := ep.PublishBuildStarted("b-1", "main.ts"); err != nil {
		t.Fatal(err)
	}
	if err := ep.PublishBuildFailed("b-1", "main.ts", "schema", errors.New("bad")); err != nil {
		t.Fatal(err)
	}

	if len(all) != 2 {
		t.Fatalf("got %d events, want 2", len(all))
	}
	if len(failures) != 1 || failures[0].Type != EventTypeBuildFailed {
		t.Fatalf("error subscriber got %+v", failures)
	}
	if failures[0].Data["stage"] != "schema" {
		t.Errorf("stage = %v, want schema", failures[0].Data["stage"])
	}
	if all[0].ID == "" || all[0].Timestamp.IsZero() {
		t.Error("event ID and timestamp not filled in")
	}
}

func TestEventPublisherFilters(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})
	ep.AddFilter(FilterByType(EventTypeWatchRebuild))

	var got []string
	ep.Subscribe(func(e Event) { got = append(got, e.Type) }, nil)

	_ = ep.PublishBuildStarted("b-1", "main.ts")
	_ = ep.PublishWatchRebuild("main.ts", []string{"lib.ts"})

	if len(got) != 1 || got[0] != EventTypeWatchRebuild {
		t.Fatalf("got %v, want [%s]", got, EventTypeWatchRebuild)
	}
}

func TestEventPublisherAsync(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 8})

	received := make(chan Event, 8)
	ep.Subscribe(func(e Event) { received <- e }, nil)

	for i := 0; i < 3; i++ {
		if err := ep.PublishBuildStarted("b", "main.ts"); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if len(received) != 3 {
		t.Fatalf("delivered %d events, want 3", len(received))
	}
}

func TestDisabledPublisher(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	if err := ep.PublishBuildStarted("b", "main.ts"); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("disabled publisher delivered an event")
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
