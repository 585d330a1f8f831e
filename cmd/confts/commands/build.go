package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confts/confts/pkg/config"
	"github.com/confts/confts/pkg/engine"
	"github.com/confts/confts/pkg/policy"
	"github.com/confts/confts/pkg/stores"
	"github.com/confts/confts/pkg/telemetry"
)

// buildFlags are shared by compile, validate and watch. Set flags override the
// project file.
type buildFlags struct {
	format      string
	macro       bool
	macroModule string
	output      string
	generated   bool
	schema      string
	schemaDef   string
	policies    []string
	policyMode  string
	deps        bool
	history     string
}

func (f *buildFlags) register(cmd *cobra.Command, withOutput bool) {
	fs := cmd.Flags()
	fs.StringVarP(&f.format, "format", "f", config.DefaultFormat, "output format: json or yaml")
	fs.BoolVarP(&f.macro, "macro", "m", false, "enable macro mode")
	fs.StringVar(&f.macroModule, "macro-module", "", "module macros are imported from (default @conf-ts/macro)")
	fs.StringVar(&f.schema, "schema", "", "CUE file the output must satisfy")
	fs.StringVar(&f.schemaDef, "schema-def", "", "definition inside --schema, e.g. '#Config'")
	fs.StringArrayVar(&f.policies, "policy", nil, "rego policy file or directory (repeatable)")
	fs.StringVar(&f.policyMode, "policy-mode", config.DefaultPolicyMode, "enforcing or advisory")
	fs.BoolVar(&f.deps, "deps", false, "print the dependency list to stderr")
	fs.StringVar(&f.history, "history", "", "record builds in this history database")
	if withOutput {
		fs.StringVarP(&f.output, "output", "o", "", "write output to a file instead of stdout")
		fs.BoolVar(&f.generated, "generated", false, "write <base>.generated.<format> next to the entry")
	}
}

// loadProject reads the project file and applies flags that were set.
func loadProject(cmd *cobra.Command, f *buildFlags) (*config.Project, error) {
	var (
		p   *config.Project
		err error
	)
	if configPath != "" {
		p, err = config.LoadProject(configPath)
	} else {
		p, err = config.LoadProjectIfExists(config.DefaultProjectFile)
	}
	if err != nil {
		return nil, err
	}

	// Paths from the project file are relative to it.
	p.Entry = p.Resolve(p.Entry)
	p.Output = p.Resolve(p.Output)
	p.Schema.File = p.Resolve(p.Schema.File)
	for i, path := range p.Policy.Paths {
		p.Policy.Paths[i] = p.Resolve(path)
	}
	if p.History.Enabled {
		p.History.Path = p.Resolve(p.History.Path)
	}

	if !cmd.Flags().Changed("log-format") && p.Logging.Format != "" {
		if err := setLogFormat(p.Logging.Format); err != nil {
			return nil, err
		}
	}
	if !verbose {
		setLogLevel(p.Logging.Level)
	}

	if f == nil {
		return p, nil
	}
	changed := cmd.Flags().Changed
	if changed("format") {
		p.Format = f.format
	}
	if changed("macro") {
		p.Macro = f.macro
	}
	if changed("macro-module") {
		p.MacroModule = f.macroModule
	}
	if changed("output") {
		p.Output = f.output
		p.Generated = false
	}
	if changed("generated") {
		p.Generated = f.generated
		if f.generated {
			p.Output = ""
		}
	}
	if changed("schema") {
		p.Schema.File = f.schema
	}
	if changed("schema-def") {
		p.Schema.Definition = f.schemaDef
	}
	if changed("policy") {
		p.Policy.Paths = f.policies
	}
	if changed("policy-mode") {
		p.Policy.Mode = f.policyMode
	}
	if changed("history") {
		p.History.Enabled = f.history != ""
		p.History.Path = f.history
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// entries returns the entry files from args or the project file.
func entries(p *config.Project, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if p.Entry == "" {
		return nil, errors.New("no entry file given and none set in the project file")
	}
	return []string{p.Entry}, nil
}

func newTelemetry(p *config.Project) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if p.Logging.Level != "" {
		cfg.Logging.Level = p.Logging.Level
	}
	if p.Watch.MetricsAddr != "" {
		cfg.Metrics.ListenAddress = p.Watch.MetricsAddr
	}
	return telemetry.NewTelemetryWithLogger(cfg, log.Logger)
}

// builder owns the engine and everything it was wired with.
type builder struct {
	engine   *engine.Engine
	policies *policy.Engine
	loader   *policy.Loader
	history  *stores.SQLiteStore
	tel      *telemetry.Telemetry
	project  *config.Project
}

func newBuilder(ctx context.Context, p *config.Project, tel *telemetry.Telemetry) (*builder, error) {
	b := &builder{tel: tel, project: p}
	logger := log.Logger

	var schemas *config.SchemaRegistry
	if p.Schema.File != "" {
		schemas = config.NewSchemaRegistry()
		if err := schemas.RegisterFile(p.Schema.File); err != nil {
			return nil, err
		}
	}

	b.policies = policy.NewEngine(logger)
	b.loader = policy.NewLoader(logger)
	if len(p.Policy.Paths) > 0 {
		loaded, err := b.loader.LoadFromPaths(ctx, p.Policy.Paths)
		if err != nil {
			return nil, err
		}
		if err := b.policies.Load(ctx, loaded); err != nil {
			return nil, err
		}
	}

	var history stores.HistoryStore
	if p.History.Enabled {
		store, err := stores.OpenSQLiteStore(ctx, stores.Config{Path: p.History.Path, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		b.history = store
		history = store
	}

	eng, err := engine.New(engine.Options{
		Telemetry:  tel,
		Schemas:    schemas,
		Policies:   b.policies,
		PolicyMode: p.Policy.Mode,
		History:    history,
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	b.engine = eng
	return b, nil
}

func (b *builder) Close() {
	if b.history != nil {
		if err := b.history.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close history database")
		}
	}
}

// request builds an engine request for entry from the project settings.
func (b *builder) request(entry string) engine.Request {
	p := b.project
	req := engine.Request{
		Entry:       entry,
		Format:      p.Format,
		Macro:       p.Macro,
		MacroModule: p.MacroModule,
		LookupEnv:   p.LookupEnv,
	}
	if p.Schema.File != "" {
		req.Schema = p.Schema.File
		req.SchemaDefinition = p.Schema.Definition
	}
	return req
}

// emit writes a successful build where the project asks for it.
func (b *builder) emit(cmd *cobra.Command, res *engine.Result, printDeps bool) error {
	p := b.project
	logger := log.With().Str("entry", res.Entry).Logger()
	for _, w := range res.Warnings {
		logger.Warn().Str("policy", w.Policy).Msg(w.Message)
	}
	if printDeps {
		for _, d := range res.Dependencies {
			fmt.Fprintln(cmd.ErrOrStderr(), d)
		}
	}

	data := res.Rendered
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	target := p.Output
	if p.Generated {
		target = config.GeneratedName(res.Entry, res.Format)
	}
	if target == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return writeFile(target, data, logger)
}

func writeFile(path string, data []byte, logger zerolog.Logger) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	logger.Info().Str("output", path).Int("bytes", len(data)).Msg("Output written")
	return nil
}

// reportFailure logs a failed build without its multi-line message folded into a field.
func reportFailure(w io.Writer, err error) {
	var berr *engine.BuildError
	if errors.As(err, &berr) {
		log.Error().Str("entry", berr.Entry).Str("stage", string(berr.Stage)).Str("kind", berr.Kind()).Msg("Build failed")
	}
	fmt.Fprintln(w, strings.TrimRight(err.Error(), "\n"))
}
