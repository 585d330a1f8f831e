package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/confts/confts/pkg/compiler"
	"github.com/confts/confts/pkg/config"
	"github.com/confts/confts/pkg/policy"
	"github.com/confts/confts/pkg/stores"
	"github.com/confts/confts/pkg/telemetry"
)

const serviceSchema = `
#Service: {
	name: string
	port: int & >0 & <65536
}
`

const portPolicy = `package confts.ports

deny contains msg if {
	input.output.port < 1024
	msg := sprintf("port %d is privileged", [input.output.port])
}

warn contains "name should be lowercase" if {
	input.output.name != lower(input.output.name)
}
`

func service(name, port string) map[string]string {
	return map[string]string{
		"main.ts":  `import { port } from "./ports"; export default { name: "` + name + `", port };`,
		"ports.ts": `export const port = ` + port + `;`,
	}
}

type fixture struct {
	engine  *Engine
	tel     *telemetry.Telemetry
	history *stores.SQLiteStore

	mu     sync.Mutex
	events []telemetry.Event
}

func (f *fixture) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	return types
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()
	ctx := context.Background()

	tel, err := telemetry.NewTelemetryWithLogger(telemetry.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelemetryWithLogger() error = %v", err)
	}

	schemas := config.NewSchemaRegistry()
	if err := schemas.RegisterSchema("service.cue", serviceSchema); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}

	policies := policy.NewEngine(zerolog.Nop())
	if err := policies.Load(ctx, []policy.Policy{{Name: "ports", Rego: portPolicy}}); err != nil {
		t.Fatalf("policy Load() error = %v", err)
	}

	history, err := stores.OpenSQLiteStore(ctx, stores.Config{Path: ":memory:", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = history.Close() })

	eng, err := New(Options{
		Telemetry:  tel,
		Schemas:    schemas,
		Policies:   policies,
		PolicyMode: mode,
		History:    history,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	f := &fixture{engine: eng, tel: tel, history: history}
	tel.Events.Subscribe(func(e telemetry.Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	}, nil)
	return f
}

func request(files map[string]string) Request {
	return Request{
		Entry:            "main.ts",
		Files:            files,
		Schema:           "service.cue",
		SchemaDefinition: "#Service",
	}
}

func TestBuildSucceeds(t *testing.T) {
	f := newFixture(t, PolicyModeEnforcing)

	res, err := f.engine.Build(context.Background(), request(service("Api", "8080")))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := "{\n  \"name\": \"Api\",\n  \"port\": 8080\n}"
	if string(res.Rendered) != want {
		t.Errorf("Rendered = %q, want %q", res.Rendered, want)
	}
	if res.Digest != stores.Digest(res.Rendered) {
		t.Error("Digest does not match the rendered output")
	}
	if !reflect.DeepEqual(res.Dependencies, []string{"main.ts", "ports.ts"}) {
		t.Errorf("Dependencies = %v", res.Dependencies)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Message != "name should be lowercase" {
		t.Errorf("Warnings = %+v", res.Warnings)
	}

	rec, err := f.history.GetBuild(context.Background(), res.BuildID)
	if err != nil {
		t.Fatalf("history GetBuild() error = %v", err)
	}
	if rec.Status != stores.BuildStatusSucceeded || rec.Digest != res.Digest || rec.Trigger != TriggerCLI {
		t.Errorf("history record = %+v", rec)
	}
	if len(rec.Messages) != 1 || rec.Messages[0].Level != stores.MessageLevelWarn {
		t.Errorf("history messages = %+v", rec.Messages)
	}

	types := f.eventTypes()
	if want := []string{telemetry.EventTypeBuildStarted, telemetry.EventTypeBuildSucceeded}; !reflect.DeepEqual(types, want) {
		t.Errorf("events = %v, want %v", types, want)
	}
}

func TestBuildYAML(t *testing.T) {
	f := newFixture(t, PolicyModeEnforcing)
	req := request(service("api", "8080"))
	req.Format = "yaml"

	res, err := f.engine.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if want := "name: api\nport: 8080\n"; string(res.Rendered) != want {
		t.Errorf("Rendered = %q, want %q", res.Rendered, want)
	}
}

func TestBuildFailures(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		format    string
		stage     Stage
		kind      string
		contains  string
		predicate func(error) bool
	}{
		{
			name:      "syntax error",
			files:     map[string]string{"main.ts": "export default {"},
			stage:     StageLoad,
			kind:      KindSyntax,
			predicate: IsCompileError,
		},
		{
			name:      "compile error",
			files:     map[string]string{"main.ts": "let x = 1;\nexport default x;"},
			stage:     StageCompile,
			kind:      string(compiler.ErrNonConstBinding),
			contains:  "NonConstBinding",
			predicate: IsCompileError,
		},
		{
			name:     "unsupported format",
			files:    service("api", "8080"),
			format:   "xml",
			stage:    StageRender,
			kind:     KindError,
			contains: "Unsupported format: xml",
		},
		{
			name:      "schema violation",
			files:     service("api", "70000"),
			stage:     StageSchema,
			kind:      KindSchemaViolation,
			contains:  "port",
			predicate: IsSchemaError,
		},
		{
			name:      "policy denial",
			files:     service("api", "80"),
			stage:     StagePolicy,
			kind:      KindPolicyDenied,
			contains:  "ports: port 80 is privileged",
			predicate: IsPolicyError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, PolicyModeEnforcing)
			req := request(tt.files)
			req.Format = tt.format

			res, err := f.engine.Build(context.Background(), req)
			if err == nil {
				t.Fatalf("Build() = %+v, want error", res)
			}
			var berr *BuildError
			if !errors.As(err, &berr) {
				t.Fatalf("error %T is not a *BuildError", err)
			}
			if berr.Stage != tt.stage || berr.Kind() != tt.kind {
				t.Errorf("stage/kind = %s/%s, want %s/%s", berr.Stage, berr.Kind(), tt.stage, tt.kind)
			}
			if !errors.Is(err, &BuildError{Stage: tt.stage}) {
				t.Error("errors.Is does not match the stage")
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.contains)
			}
			if tt.predicate != nil && !tt.predicate(err) {
				t.Error("stage predicate returned false")
			}

			builds, err := f.history.ListBuilds(context.Background(), stores.ListOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if len(builds) != 1 || builds[0].Status != stores.BuildStatusFailed || builds[0].Stage != string(tt.stage) {
				t.Fatalf("history = %+v", builds)
			}
			if builds[0].ErrorKind != tt.kind || len(builds[0].Dependencies) == 0 {
				t.Errorf("history record = %+v", builds[0])
			}

			types := f.eventTypes()
			if last := types[len(types)-1]; last != telemetry.EventTypeBuildFailed {
				t.Errorf("last event = %s", last)
			}
		})
	}
}

func TestCompileErrorKeepsLocation(t *testing.T) {
	f := newFixture(t, PolicyModeEnforcing)
	_, err := f.engine.Build(context.Background(), Request{
		Entry: "main.ts",
		Files: map[string]string{"main.ts": "let x = 1;\nexport default x;"},
	})
	if !compiler.IsKind(err, compiler.ErrNonConstBinding) {
		t.Fatalf("error = %v, want NonConstBinding", err)
	}
	if !strings.Contains(err.Error(), "at main.ts:2:") {
		t.Errorf("error %q lost its location", err.Error())
	}
}

func TestPolicyModes(t *testing.T) {
	f := newFixture(t, PolicyModeAdvisory)
	res, err := f.engine.Build(context.Background(), request(service("api", "80")))
	if err != nil {
		t.Fatalf("advisory Build() error = %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Message != "port 80 is privileged" {
		t.Errorf("Warnings = %+v", res.Warnings)
	}

	var violations int
	for _, typ := range f.eventTypes() {
		if typ == telemetry.EventTypePolicyViolation {
			violations++
		}
	}
	if violations != 1 {
		t.Errorf("policy violation events = %d, want 1", violations)
	}

	rec, err := f.history.GetBuild(context.Background(), res.BuildID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Messages) != 1 || rec.Messages[0].Level != stores.MessageLevelDeny {
		t.Errorf("history messages = %+v", rec.Messages)
	}

	if _, err := New(Options{PolicyMode: "strict"}); err == nil {
		t.Error("expected error for unknown policy mode")
	}
}

func TestBuildRequestValidation(t *testing.T) {
	eng, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing entry", req: Request{}},
		{name: "schema without definition", req: Request{Entry: "main.ts", Schema: "service.cue"}},
		{name: "unknown trigger", req: Request{Entry: "main.ts", Trigger: "cron"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Build(context.Background(), tt.req)
			var berr *BuildError
			if !errors.As(err, &berr) || berr.Stage != StageRequest || berr.Kind() != KindInvalidRequest {
				t.Errorf("error = %v, want request stage failure", err)
			}
		})
	}
}

func TestBuildWithoutOptionalStages(t *testing.T) {
	eng, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := eng.Build(context.Background(), Request{
		Entry: "main.ts",
		Files: service("api", "80"),
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %+v without policies", res.Warnings)
	}

	_, err = eng.Build(context.Background(), request(service("api", "80")))
	if !IsSchemaError(err) {
		t.Errorf("error = %v, want schema failure without a registry", err)
	}
}

func TestBuildMetrics(t *testing.T) {
	f := newFixture(t, PolicyModeEnforcing)
	ctx := context.Background()

	_, _ = f.engine.Build(ctx, request(service("api", "8080")))
	_, _ = f.engine.Build(ctx, request(service("api", "80")))

	n, err := testutil.GatherAndCount(f.tel.Metrics.Registry(), "confts_builds_completed_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("builds_completed_total series = %d, want one per status", n)
	}
	n, err = testutil.GatherAndCount(f.tel.Metrics.Registry(), "confts_build_errors_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("build_errors_total series = %d, want 1", n)
	}
}

func TestBuildAll(t *testing.T) {
	f := newFixture(t, PolicyModeEnforcing)

	reqs := []Request{
		request(service("a", "8080")),
		request(service("b", "80")),
		request(service("c", "9090")),
	}
	results := f.engine.BuildAll(context.Background(), reqs, 2)

	if len(results) != 3 {
		t.Fatalf("len(results) = %d", len(results))
	}
	if Failed(results) != 1 || !IsPolicyError(results[1].Err) {
		t.Errorf("unexpected failures: %+v", results)
	}
	for _, i := range []int{0, 2} {
		if results[i].Err != nil || results[i].Result == nil {
			t.Errorf("results[%d] = %+v", i, results[i])
		}
	}
	if !strings.Contains(string(results[2].Result.Rendered), `"c"`) {
		t.Error("results are not in request order")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, r := range f.engine.BuildAll(ctx, reqs, 0) {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("cancelled batch error = %v", r.Err)
		}
	}
}
