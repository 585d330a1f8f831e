package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/confts/confts/pkg/compiler"
	"github.com/confts/confts/pkg/config"
	"github.com/confts/confts/pkg/frontend"
	"github.com/confts/confts/pkg/policy"
	"github.com/confts/confts/pkg/stores"
	"github.com/confts/confts/pkg/telemetry"
	"github.com/confts/confts/pkg/value"
)

// Options configures an Engine. Every field is optional.
type Options struct {
	Telemetry *telemetry.Telemetry

	// Schemas resolves Request.Schema.
	Schemas *config.SchemaRegistry

	// Policies is evaluated after the schema stage when it holds any policy.
	Policies   *policy.Engine
	PolicyMode string

	// History records every finished build, successful or not.
	History stores.HistoryStore
}

// Engine runs the build pipeline.
type Engine struct {
	tel        *telemetry.Telemetry
	schemas    *config.SchemaRegistry
	policies   *policy.Engine
	policyMode string
	history    stores.HistoryStore
	validate   *validator.Validate
	logger     zerolog.Logger
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}
	mode := opts.PolicyMode
	switch mode {
	case "":
		mode = PolicyModeEnforcing
	case PolicyModeEnforcing, PolicyModeAdvisory:
	default:
		return nil, fmt.Errorf("invalid policy mode %q", mode)
	}

	return &Engine{
		tel:        tel,
		schemas:    opts.Schemas,
		policies:   opts.Policies,
		policyMode: mode,
		history:    opts.History,
		validate:   validator.New(),
		logger:     tel.Logger.NewComponentLogger("engine").Zerolog(),
	}, nil
}

// build carries the state of one build through the stages.
type build struct {
	id      string
	req     Request
	program *frontend.Program
	deps    []string
	output  value.Value
	data    []byte
	result  *Result
	record  *stores.Build
}

// Build runs a request through load, compile, render, schema and policy, then
// records the outcome in history. Failures are *BuildError values.
func (e *Engine) Build(ctx context.Context, req Request) (*Result, error) {
	if req.Format == "" {
		req.Format = "json"
	}
	if req.Trigger == "" {
		req.Trigger = TriggerCLI
	}

	b := &build{
		id:  uuid.NewString(),
		req: req,
	}
	b.record = &stores.Build{
		ID:        b.id,
		Entry:     req.Entry,
		Format:    req.Format,
		Macro:     req.Macro,
		Trigger:   req.Trigger,
		StartedAt: time.Now(),
	}

	ctx, span := e.tel.Tracer.StartBuildSpan(ctx, b.id, req.Entry, req.Format, req.Macro)
	defer span.End()

	logger := e.logger.With().Str("build_id", b.id).Str("entry", req.Entry).Logger()
	logger.Debug().Str("format", req.Format).Bool("macro", req.Macro).Msg("Build started")
	e.tel.Metrics.RecordBuildStarted()
	_ = e.tel.Events.PublishBuildStarted(b.id, req.Entry)

	err := e.run(ctx, b)
	duration := time.Since(b.record.StartedAt)
	b.record.FinishedAt = b.record.StartedAt.Add(duration)
	b.record.Dependencies = b.deps

	if err != nil {
		var berr *BuildError
		if !errors.As(err, &berr) {
			berr = &BuildError{Stage: StageCompile, Err: err}
		}
		berr.BuildID = b.id
		berr.Entry = req.Entry
		berr.Dependencies = b.deps

		b.record.Status = stores.BuildStatusFailed
		b.record.Stage = string(berr.Stage)
		b.record.ErrorKind = berr.Kind()
		b.record.Error = berr.Err.Error()

		e.tel.Metrics.RecordBuildCompleted(telemetry.StatusFailed, duration)
		e.tel.Metrics.RecordError(string(berr.Stage), berr.Kind())
		telemetry.RecordError(span, berr)
		_ = e.tel.Events.PublishBuildFailed(b.id, req.Entry, string(berr.Stage), berr.Err)
		logger.Debug().Str("stage", string(berr.Stage)).Str("kind", berr.Kind()).Dur("duration", duration).Msg("Build failed")

		e.recordHistory(ctx, b.record, logger)
		return nil, berr
	}

	b.result.Duration = duration
	b.record.Status = stores.BuildStatusSucceeded
	b.record.Digest = b.result.Digest
	b.record.OutputBytes = len(b.data)

	e.tel.Metrics.RecordBuildCompleted(telemetry.StatusSucceeded, duration)
	e.tel.Metrics.SetDependencies(len(b.deps))
	e.tel.Metrics.SetOutputBytes(len(b.data))
	telemetry.RecordSuccess(span)
	_ = e.tel.Events.PublishBuildSucceeded(b.id, req.Entry, len(b.deps), duration)
	logger.Info().Int("dependencies", len(b.deps)).Int("bytes", len(b.data)).Dur("duration", duration).Msg("Build succeeded")

	e.recordHistory(ctx, b.record, logger)
	return b.result, nil
}

func (e *Engine) run(ctx context.Context, b *build) error {
	if err := e.validate.Struct(b.req); err != nil {
		return &BuildError{Stage: StageRequest, Err: requestError(err)}
	}

	steps := []struct {
		stage Stage
		fn    func(context.Context, *build) error
	}{
		{StageLoad, e.load},
		{StageCompile, e.compile},
		{StageRender, e.render},
		{StageSchema, e.checkSchema},
		{StagePolicy, e.checkPolicy},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return &BuildError{Stage: step.stage, Err: err}
		}
		stage := e.tel.StartStage(ctx, string(step.stage))
		err := step.fn(stage.Ctx, b)
		stage.End(err)
		if err != nil {
			return &BuildError{Stage: step.stage, Err: err}
		}
	}
	return nil
}

func requestError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid request field %s: failed %q validation", fe.Field(), fe.Tag())
	}
	return err
}

func (e *Engine) load(_ context.Context, b *build) error {
	var reader frontend.SourceReader = frontend.OSReader{}
	if b.req.Files != nil {
		reader = frontend.NewMemoryReader(b.req.Files)
	}
	prog, err := frontend.Load(reader, b.req.Entry)
	if err != nil {
		b.deps = []string{b.req.Entry}
		return err
	}
	b.program = prog

	// Until the compiler reports what it touched, every loaded file counts.
	for _, f := range prog.Files() {
		b.deps = append(b.deps, f.Name)
	}
	return nil
}

func (e *Engine) compile(_ context.Context, b *build) error {
	res, err := compiler.Compile(b.program, b.program.Entry(), compiler.Options{
		Macro:       b.req.Macro,
		MacroModule: b.req.MacroModule,
		LookupEnv:   b.req.LookupEnv,
		Logger:      e.logger.With().Str("build_id", b.id).Logger(),
	})
	if err != nil {
		return err
	}
	b.output = res.Output
	b.deps = res.Dependencies
	return nil
}

func (e *Engine) render(_ context.Context, b *build) error {
	data, err := value.Render(b.output, b.req.Format)
	if err != nil {
		return err
	}
	b.data = data
	b.result = &Result{
		BuildID:      b.id,
		Entry:        b.req.Entry,
		Format:       b.req.Format,
		Output:       b.output,
		Rendered:     data,
		Digest:       stores.Digest(data),
		Dependencies: b.deps,
	}
	return nil
}

func (e *Engine) checkSchema(ctx context.Context, b *build) error {
	if b.req.Schema == "" {
		return nil
	}
	if e.schemas == nil {
		return fmt.Errorf("schema %s requested but no schema registry is configured", b.req.Schema)
	}

	data := b.data
	if b.req.Format != "json" {
		var err error
		if data, err = value.RenderJSON(b.output); err != nil {
			return err
		}
	}
	return e.schemas.Validate(ctx, b.req.Schema, b.req.SchemaDefinition, data)
}

func (e *Engine) checkPolicy(ctx context.Context, b *build) error {
	if e.policies == nil || e.policies.Len() == 0 {
		return nil
	}

	res, err := e.policies.Evaluate(ctx, policy.Input{
		Output: value.ToNative(b.output),
		Build: policy.BuildInfo{
			Entry:        b.req.Entry,
			Format:       b.req.Format,
			Macro:        b.req.Macro,
			Dependencies: b.deps,
		},
	})
	if err != nil {
		return err
	}

	for _, d := range res.Denials {
		b.record.Messages = append(b.record.Messages, stores.Message{
			Level: stores.MessageLevelDeny, Policy: d.Policy, Message: d.Message,
		})
		_ = e.tel.Events.PublishPolicyViolation(b.id, b.req.Entry, d.Policy, d.Message)
	}
	for _, w := range res.Warnings {
		b.record.Messages = append(b.record.Messages, stores.Message{
			Level: stores.MessageLevelWarn, Policy: w.Policy, Message: w.Message,
		})
	}

	if !res.Allowed && e.policyMode == PolicyModeEnforcing {
		return newPolicyDenied(res.Denials)
	}
	b.result.Warnings = append(b.result.Warnings, res.Denials...)
	b.result.Warnings = append(b.result.Warnings, res.Warnings...)
	return nil
}

func (e *Engine) recordHistory(ctx context.Context, rec *stores.Build, logger zerolog.Logger) {
	if e.history == nil {
		return
	}
	// A cancelled build still gets its history row.
	if err := e.history.RecordBuild(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn().Err(err).Msg("Failed to record build history")
	}
}
