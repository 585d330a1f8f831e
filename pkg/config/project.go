package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultProjectFile is the project file looked up in the working directory.
const DefaultProjectFile = "confts.yaml"

// Project is the contents of a confts.yaml project file. Every field can be
// overridden by a command-line flag.
type Project struct {
	// Entry is the TypeScript file whose default export is compiled.
	Entry string `yaml:"entry"`

	// Format is the output format.
	Format string `yaml:"format" validate:"omitempty,oneof=json yaml"`

	// Macro enables macro mode.
	Macro bool `yaml:"macro"`

	// MacroModule is the module macro functions are imported from.
	MacroModule string `yaml:"macroModule"`

	// Output is the file the rendered output is written to. Empty means stdout.
	Output string `yaml:"output" validate:"excluded_with=Generated"`

	// Generated writes <base>.generated.<format> next to the entry.
	Generated bool `yaml:"generated"`

	Schema  SchemaConfig  `yaml:"schema"`
	Policy  PolicyConfig  `yaml:"policy"`
	History HistoryConfig `yaml:"history"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`

	// Env holds variables visible to the env macro in addition to the process
	// environment. Process values win.
	Env map[string]string `yaml:"env"`

	// dir is the directory of the project file. Relative paths resolve against it.
	dir string
}

// SchemaConfig selects a CUE definition the compiled output must satisfy.
type SchemaConfig struct {
	File       string `yaml:"file"`
	Definition string `yaml:"definition" validate:"required_with=File"`
}

// PolicyConfig lists rego policy files and directories evaluated after the schema.
type PolicyConfig struct {
	Paths []string `yaml:"paths"`

	// Mode is enforcing (denials fail the build) or advisory (denials are logged).
	Mode string `yaml:"mode" validate:"omitempty,oneof=advisory enforcing"`
}

// HistoryConfig enables the build history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// WatchConfig tunes confts watch.
type WatchConfig struct {
	Debounce    time.Duration `yaml:"debounce" validate:"gte=0"`
	Metrics     bool          `yaml:"metrics"`
	MetricsAddr string        `yaml:"metricsAddr" validate:"required_if=Metrics true"`
}

// LoggingConfig sets the CLI log output.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Defaults used when neither the project file nor a flag sets a value.
const (
	DefaultFormat      = "json"
	DefaultPolicyMode  = "enforcing"
	DefaultHistoryPath = ".confts/history.db"
	DefaultDebounce    = 200 * time.Millisecond
	DefaultMetricsAddr = ":9090"
)

var validate = validator.New()

// DefaultProject returns a project with every default filled in.
func DefaultProject() *Project {
	p := &Project{}
	p.applyDefaults()
	return p
}

// LoadProject reads and validates a project file.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	p, err := ParseProject(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

// LoadProjectIfExists loads path when it exists and returns the defaults otherwise.
func LoadProjectIfExists(path string) (*Project, error) {
	p, err := LoadProject(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultProject(), nil
	}
	return p, err
}

// ParseProject decodes and validates project YAML.
func ParseProject(data []byte) (*Project, error) {
	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and means all defaults.
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse project file: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Project) applyDefaults() {
	if p.Format == "" {
		p.Format = DefaultFormat
	}
	if p.Policy.Mode == "" {
		p.Policy.Mode = DefaultPolicyMode
	}
	if p.History.Enabled && p.History.Path == "" {
		p.History.Path = DefaultHistoryPath
	}
	if p.Watch.Debounce == 0 {
		p.Watch.Debounce = DefaultDebounce
	}
	if p.Watch.Metrics && p.Watch.MetricsAddr == "" {
		p.Watch.MetricsAddr = DefaultMetricsAddr
	}
}

// Validate checks the struct tags and returns the first violation in readable form.
func (p *Project) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid project field %s: failed %q validation", fe.Namespace(), fe.Tag())
	}
	return err
}

// Dir returns the directory the project file was loaded from.
func (p *Project) Dir() string {
	return p.dir
}

// Resolve makes a path from the project file relative to its directory.
func (p *Project) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// LookupEnv consults the process environment and then the project env table.
func (p *Project) LookupEnv(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	v, ok := p.Env[name]
	return v, ok
}

// GeneratedName returns the output file name used with generated output:
// <base>.generated.<format> next to entry, with .conf.ts or .ts stripped.
func GeneratedName(entry, format string) string {
	dir, base := filepath.Split(entry)
	for _, ext := range []string{".conf.ts", ".ts"} {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	return filepath.Join(dir, base+".generated."+format)
}
