package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseProject(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, p *Project)
	}{
		{
			name: "empty file uses defaults",
			yaml: "",
			check: func(t *testing.T, p *Project) {
				if p.Format != "json" || p.Policy.Mode != "enforcing" {
					t.Errorf("defaults not applied: %+v", p)
				}
				if p.Watch.Debounce != 200*time.Millisecond {
					t.Errorf("Debounce = %v, want 200ms", p.Watch.Debounce)
				}
			},
		},
		{
			name: "full project",
			yaml: `
entry: src/app.conf.ts
format: yaml
macro: true
macroModule: "@acme/macro"
schema:
  file: schema.cue
  definition: "#Config"
policy:
  paths: [policies]
  mode: advisory
history:
  enabled: true
watch:
  debounce: 500ms
  metrics: true
env:
  STAGE: dev
`,
			check: func(t *testing.T, p *Project) {
				if p.Entry != "src/app.conf.ts" || p.Format != "yaml" || !p.Macro || p.MacroModule != "@acme/macro" {
					t.Errorf("unexpected project: %+v", p)
				}
				if p.Schema.Definition != "#Config" || len(p.Policy.Paths) != 1 || p.Policy.Mode != "advisory" {
					t.Errorf("unexpected schema/policy: %+v %+v", p.Schema, p.Policy)
				}
				if p.History.Path != DefaultHistoryPath {
					t.Errorf("History.Path = %q, want default", p.History.Path)
				}
				if p.Watch.Debounce != 500*time.Millisecond || p.Watch.MetricsAddr != ":9090" {
					t.Errorf("unexpected watch config: %+v", p.Watch)
				}
				if p.Env["STAGE"] != "dev" {
					t.Errorf("Env = %v", p.Env)
				}
			},
		},
		{name: "bad format", yaml: "format: toml\n", wantErr: `Project.Format: failed "oneof"`},
		{name: "schema without definition", yaml: "schema:\n  file: s.cue\n", wantErr: `Project.Schema.Definition: failed "required_with"`},
		{name: "output and generated", yaml: "output: out.json\ngenerated: true\n", wantErr: `Project.Output: failed "excluded_with"`},
		{name: "bad policy mode", yaml: "policy:\n  mode: strict\n", wantErr: `Project.Policy.Mode: failed "oneof"`},
		{name: "unknown field", yaml: "entyr: main.ts\n", wantErr: "field entyr not found"},
		{name: "bad log level", yaml: "logging:\n  level: loud\n", wantErr: `Project.Logging.Level: failed "oneof"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProject([]byte(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseProject() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProject() error = %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestLoadProjectResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultProjectFile)
	if err := os.WriteFile(path, []byte("entry: main.ts\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProject(path)
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if p.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", p.Dir(), dir)
	}
	if got := p.Resolve(p.Entry); got != filepath.Join(dir, "main.ts") {
		t.Errorf("Resolve() = %q", got)
	}
	if got := p.Resolve("/abs/x.cue"); got != "/abs/x.cue" {
		t.Errorf("Resolve() of absolute path = %q", got)
	}
}

func TestLoadProjectIfExists(t *testing.T) {
	p, err := LoadProjectIfExists(filepath.Join(t.TempDir(), DefaultProjectFile))
	if err != nil {
		t.Fatalf("LoadProjectIfExists() error = %v", err)
	}
	if p.Format != DefaultFormat {
		t.Errorf("Format = %q, want default", p.Format)
	}
}

func TestProjectLookupEnv(t *testing.T) {
	t.Setenv("CONFTS_TEST_SET", "process")
	p := &Project{Env: map[string]string{"CONFTS_TEST_SET": "file", "CONFTS_TEST_FILE": "file"}}

	if v, _ := p.LookupEnv("CONFTS_TEST_SET"); v != "process" {
		t.Errorf("process value should win, got %q", v)
	}
	if v, ok := p.LookupEnv("CONFTS_TEST_FILE"); !ok || v != "file" {
		t.Errorf("LookupEnv(file) = %q, %v", v, ok)
	}
	if _, ok := p.LookupEnv("CONFTS_TEST_UNSET"); ok {
		t.Error("unset variable reported as set")
	}
}

func TestGeneratedName(t *testing.T) {
	tests := []struct {
		entry, format, want string
	}{
		{"src/app.conf.ts", "json", "src/app.generated.json"},
		{"src/app.ts", "yaml", "src/app.generated.yaml"},
		{"main.conf.ts", "json", "main.generated.json"},
		{"settings", "json", "settings.generated.json"},
	}
	for _, tt := range tests {
		if got := GeneratedName(tt.entry, tt.format); got != tt.want {
			t.Errorf("GeneratedName(%q, %q) = %q, want %q", tt.entry, tt.format, got, tt.want)
		}
	}
}
