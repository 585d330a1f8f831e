package stores

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// BuildStatus is the outcome of a build.
type BuildStatus string

const (
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
)

// MessageLevel distinguishes policy denials from warnings.
type MessageLevel string

const (
	MessageLevelDeny MessageLevel = "deny"
	MessageLevelWarn MessageLevel = "warn"
)

// Build is one row of build history.
type Build struct {
	ID     string      `json:"id"`
	Entry  string      `json:"entry"`
	Format string      `json:"format"`
	Macro  bool        `json:"macro"`
	Status BuildStatus `json:"status"`

	// Stage is the pipeline stage that failed. Empty on success.
	Stage     string `json:"stage,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	// Digest is the blake2b-256 of the rendered output.
	Digest      string `json:"digest,omitempty"`
	OutputBytes int    `json:"output_bytes"`

	// Trigger is cli for one-shot builds and watch for rebuilds.
	Trigger string `json:"trigger"`

	Dependencies []string  `json:"dependencies"`
	Messages     []Message `json:"messages,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the build took.
func (b *Build) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}

// Message is a policy message attached to a build.
type Message struct {
	Level   MessageLevel `json:"level"`
	Policy  string       `json:"policy"`
	Message string       `json:"message"`
}

// ListOptions filters ListBuilds. Zero values mean no filter.
type ListOptions struct {
	Entry  string
	Status BuildStatus
	Limit  int
	Offset int
}

// HistoryStore records and queries builds.
type HistoryStore interface {
	RecordBuild(ctx context.Context, b *Build) error
	GetBuild(ctx context.Context, id string) (*Build, error)
	ListBuilds(ctx context.Context, opts ListOptions) ([]*Build, error)
	PruneBuilds(ctx context.Context, keep int) (int64, error)
	Close() error
}

// Digest returns the hex blake2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
