package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
)

// Engine evaluates rego policies against compiled output. Each policy is queried
// for the deny and warn sets of its own package.
type Engine struct {
	mu       sync.RWMutex
	policies []*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy   Policy
	pkg      string
	deny     rego.PreparedEvalQuery
	warn     rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates an engine with no policies loaded.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		logger: logger.With().Str("component", "policy-engine").Logger(),
	}
}

// Load compiles policies and replaces the loaded set. On error the previous set
// is kept.
func (e *Engine) Load(ctx context.Context, policies []Policy) error {
	compiled := make([]*compiledPolicy, 0, len(policies))
	for _, p := range policies {
		cp, err := compilePolicy(ctx, p)
		if err != nil {
			return err
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	e.policies = compiled
	e.mu.Unlock()

	e.logger.Debug().Int("policies", len(compiled)).Msg("Policies loaded")
	return nil
}

func compilePolicy(ctx context.Context, p Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(p.Name+".rego", p.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
	}
	pkg := strings.TrimPrefix(module.Package.Path.String(), "data.")

	prepare := func(rule string) (rego.PreparedEvalQuery, error) {
		return rego.New(
			rego.Module(p.Name+".rego", p.Rego),
			rego.Query(fmt.Sprintf("data.%s.%s", pkg, rule)),
		).PrepareForEval(ctx)
	}

	deny, err := prepare("deny")
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
	}
	warn, err := prepare("warn")
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
	}

	return &compiledPolicy{
		policy:   p,
		pkg:      pkg,
		deny:     deny,
		warn:     warn,
		compiled: time.Now(),
	}, nil
}

// Evaluate runs every loaded policy against input.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	e.mu.RLock()
	policies := e.policies
	e.mu.RUnlock()

	result := &Result{Allowed: true, Evaluated: make([]string, 0, len(policies))}
	for _, cp := range policies {
		result.Evaluated = append(result.Evaluated, cp.policy.Name)

		denials, err := evalMessages(ctx, cp.deny, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", cp.policy.Name, err)
		}
		warnings, err := evalMessages(ctx, cp.warn, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", cp.policy.Name, err)
		}

		for _, msg := range denials {
			result.Denials = append(result.Denials, Violation{Policy: cp.policy.Name, Message: msg})
		}
		for _, msg := range warnings {
			result.Warnings = append(result.Warnings, Violation{Policy: cp.policy.Name, Message: msg})
		}
	}
	result.Allowed = len(result.Denials) == 0

	e.logger.Debug().
		Int("evaluated", len(result.Evaluated)).
		Int("denials", len(result.Denials)).
		Int("warnings", len(result.Warnings)).
		Msg("Policies evaluated")

	return result, nil
}

// evalMessages returns the sorted messages of a deny or warn set. An undefined
// rule yields no messages.
func evalMessages(ctx context.Context, q rego.PreparedEvalQuery, input Input) ([]string, error) {
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, r := range rs {
		for _, expr := range r.Expressions {
			set, ok := expr.Value.([]interface{})
			if !ok {
				return nil, fmt.Errorf("rule must be a set, got %T", expr.Value)
			}
			for _, item := range set {
				out = append(out, messageOf(item))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// messageOf accepts plain strings and objects carrying msg or message.
func messageOf(item interface{}) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]interface{}:
		for _, key := range []string{"msg", "message"} {
			if s, ok := v[key].(string); ok {
				return s
			}
		}
	}
	return fmt.Sprint(item)
}

// Policies returns the loaded policies.
func (e *Engine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, cp.policy)
	}
	return out
}

// Len returns the number of loaded policies.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policies)
}
