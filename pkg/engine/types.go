package engine

import (
	"time"

	"github.com/confts/confts/pkg/policy"
	"github.com/confts/confts/pkg/value"
)

// Policy modes.
const (
	// PolicyModeEnforcing fails the build on any deny message.
	PolicyModeEnforcing = "enforcing"

	// PolicyModeAdvisory logs deny messages and lets the build succeed.
	PolicyModeAdvisory = "advisory"
)

// Build triggers recorded in history.
const (
	TriggerCLI   = "cli"
	TriggerWatch = "watch"
)

// Request describes one build.
type Request struct {
	// Entry is the entry file. With Files set it names a key of Files.
	Entry string `json:"entry" validate:"required"`

	// Format is json or yaml. Empty means json; anything else fails at render.
	Format string `json:"format,omitempty"`

	Macro       bool   `json:"macro,omitempty"`
	MacroModule string `json:"macro_module,omitempty"`

	// Files compiles from memory instead of the file system.
	Files map[string]string `json:"-"`

	// LookupEnv resolves env() calls. Nil uses the process environment.
	LookupEnv func(string) (string, bool) `json:"-"`

	// Schema is a name registered in the engine's schema registry. Definition
	// selects a definition inside it, such as #Config.
	Schema           string `json:"schema,omitempty"`
	SchemaDefinition string `json:"schema_definition,omitempty" validate:"required_with=Schema"`

	// Trigger is recorded in history. Empty means cli.
	Trigger string `json:"trigger,omitempty" validate:"omitempty,oneof=cli watch"`
}

// Result is a successful build.
type Result struct {
	BuildID string `json:"build_id"`
	Entry   string `json:"entry"`
	Format  string `json:"format"`

	Output   value.Value `json:"-"`
	Rendered []byte      `json:"-"`

	// Digest is the blake2b-256 hex digest of Rendered.
	Digest string `json:"digest"`

	Dependencies []string `json:"dependencies"`

	// Warnings holds policy warn messages, and deny messages in advisory mode.
	Warnings []policy.Violation `json:"warnings,omitempty"`

	Duration time.Duration `json:"duration"`
}
