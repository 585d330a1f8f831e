package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/confts/confts/pkg/compiler"
	"github.com/confts/confts/pkg/config"
	"github.com/confts/confts/pkg/frontend"
	"github.com/confts/confts/pkg/policy"
)

// Stage names a step of the build pipeline.
type Stage string

const (
	// StageRequest is request validation, before any file is read.
	StageRequest Stage = "request"

	// StageLoad parses the entry file and everything it imports.
	StageLoad Stage = "load"

	// StageCompile evaluates the default export.
	StageCompile Stage = "compile"

	// StageRender encodes the compiled value as JSON or YAML.
	StageRender Stage = "render"

	// StageSchema checks the output against a CUE definition.
	StageSchema Stage = "schema"

	// StagePolicy evaluates rego policies over the output.
	StagePolicy Stage = "policy"
)

// Error kinds reported for failures that are not compiler errors.
const (
	KindSyntax          = "SyntaxError"
	KindSchemaViolation = "SchemaViolation"
	KindPolicyDenied    = "PolicyDenied"
	KindInvalidRequest  = "InvalidRequest"
	KindError           = "Error"
)

// ErrPolicyDenied is wrapped by policy stage failures in enforcing mode.
var ErrPolicyDenied = errors.New("build denied by policy")

// BuildError is a build failure annotated with the stage that produced it.
type BuildError struct {
	BuildID string `json:"build_id"`
	Stage   Stage  `json:"stage"`
	Entry   string `json:"entry"`

	// Dependencies holds the files loaded before the failure, if any.
	Dependencies []string `json:"dependencies,omitempty"`

	Err error `json:"-"`
}

// Error implements the error interface. Compiler errors are passed through
// unchanged so their location line stays intact.
func (e *BuildError) Error() string {
	var ce *compiler.ConfError
	if errors.As(e.Err, &ce) {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Entry, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is matches another *BuildError of the same stage.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return e.Stage == t.Stage
}

// Kind classifies the failure for metrics and history.
func (e *BuildError) Kind() string {
	var (
		ce *compiler.ConfError
		se *frontend.SyntaxError
		ve *config.SchemaError
	)
	switch {
	case errors.As(e.Err, &ce):
		return string(ce.Kind)
	case errors.As(e.Err, &se):
		return KindSyntax
	case errors.As(e.Err, &ve):
		return KindSchemaViolation
	case errors.Is(e.Err, ErrPolicyDenied):
		return KindPolicyDenied
	case e.Stage == StageRequest:
		return KindInvalidRequest
	default:
		return KindError
	}
}

func newPolicyDenied(denials []policy.Violation) error {
	msgs := make([]string, 0, len(denials))
	for _, d := range denials {
		msgs = append(msgs, d.Policy+": "+d.Message)
	}
	return fmt.Errorf("%w:\n    %s", ErrPolicyDenied, strings.Join(msgs, "\n    "))
}

func stageOf(err error) (Stage, bool) {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Stage, true
	}
	return "", false
}

// IsCompileError reports whether err failed while loading or compiling sources.
func IsCompileError(err error) bool {
	stage, ok := stageOf(err)
	return ok && (stage == StageLoad || stage == StageCompile)
}

// IsSchemaError reports whether err is a schema stage failure.
func IsSchemaError(err error) bool {
	stage, ok := stageOf(err)
	return ok && stage == StageSchema
}

// IsPolicyError reports whether err is a policy stage failure.
func IsPolicyError(err error) bool {
	stage, ok := stageOf(err)
	return ok && stage == StagePolicy
}
