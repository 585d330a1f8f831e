package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// SchemaRegistry holds compiled CUE schemas that compiled output is checked against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// Violation is one CUE error reported against the output.
type Violation struct {
	Path    string
	Message string
	Line    int
	Column  int
}

// SchemaError is returned when output does not satisfy a schema definition.
type SchemaError struct {
	Schema     string
	Definition string
	Violations []Violation
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "output does not satisfy %s in %s", e.Definition, e.Schema)
	for _, v := range e.Violations {
		b.WriteString("\n    ")
		if v.Path != "" {
			b.WriteString(v.Path)
			b.WriteString(": ")
		}
		b.WriteString(v.Message)
	}
	return b.String()
}

// NewSchemaRegistry creates an empty schema registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
}

// RegisterSchema compiles CUE source under the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// RegisterFile compiles a .cue file and registers it under its path.
func (sr *SchemaRegistry) RegisterFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	return sr.RegisterSchema(path, string(content))
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks JSON document data against definition in the named schema.
// An empty definition validates against the whole schema value.
func (sr *SchemaRegistry) Validate(ctx context.Context, schemaName, definition string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	target := schema
	if definition != "" {
		target = schema.LookupPath(cue.ParsePath(definition))
		if !target.Exists() {
			return fmt.Errorf("definition %s not found in schema %s", definition, schemaName)
		}
	}

	sr.mu.Lock()
	// JSON is valid CUE, so integers stay integers and key order is kept.
	doc := sr.ctx.CompileBytes(data, cue.Filename("output.json"))
	sr.mu.Unlock()
	if err := doc.Err(); err != nil {
		return fmt.Errorf("failed to load output into CUE: %w", err)
	}

	unified := target.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{
			Schema:     schemaName,
			Definition: definition,
			Violations: convertCUEErrors(err),
		}
	}
	return nil
}

func convertCUEErrors(err error) []Violation {
	var out []Violation
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		v := Violation{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			v.Line = pos[0].Line()
			v.Column = pos[0].Column()
		}
		out = append(out, v)
	}
	return out
}
