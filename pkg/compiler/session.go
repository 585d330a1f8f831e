package compiler

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/confts/confts/pkg/ast"
	"github.com/confts/confts/pkg/value"
)

// Session holds the tables of one compile invocation. It is created by Compile and
// dropped afterwards; nothing in it outlives the call.
type Session struct {
	ID string

	fe     Frontend
	opts   Options
	logger zerolog.Logger

	// enums maps file -> "Enum.Member" -> folded value.
	enums map[string]map[string]value.Value
	// macroImports maps file -> names imported from the macro module.
	macroImports map[string]map[string]bool
	// evaluated is the dependency set.
	evaluated map[string]bool
	// active holds the declarations currently being resolved.
	active map[*ast.Declaration]bool
	folded map[*ast.EnumDecl]foldState
}

func newSession(fe Frontend, opts Options) *Session {
	id := uuid.New().String()
	return &Session{
		ID:           id,
		fe:           fe,
		opts:         opts,
		logger:       opts.Logger.With().Str("component", "compiler").Str("session_id", id).Logger(),
		enums:        make(map[string]map[string]value.Value),
		macroImports: make(map[string]map[string]bool),
		evaluated:    make(map[string]bool),
		active:       make(map[*ast.Declaration]bool),
		folded:       make(map[*ast.EnumDecl]foldState),
	}
}

// record adds file to the dependency set.
func (s *Session) record(file *ast.File) {
	if !s.evaluated[file.Name] {
		s.evaluated[file.Name] = true
		s.logger.Debug().Str("file", file.Name).Msg("Evaluating file")
	}
}

// Dependencies returns the files visited so far, sorted.
func (s *Session) Dependencies() []string {
	deps := make([]string, 0, len(s.evaluated))
	for f := range s.evaluated {
		deps = append(deps, f)
	}
	sort.Strings(deps)
	return deps
}

func (s *Session) enumValue(file, qualified string) (value.Value, bool) {
	v, ok := s.enums[file][qualified]
	return v, ok
}

func (s *Session) setEnumValue(file, qualified string, v value.Value) {
	table, ok := s.enums[file]
	if !ok {
		table = make(map[string]value.Value)
		s.enums[file] = table
	}
	table[qualified] = v
}

func (s *Session) macroImported(file, name string) bool {
	return s.macroImports[file][name]
}

// enter marks d as being resolved. It returns false when d is already on the stack.
func (s *Session) enter(d *ast.Declaration) bool {
	if s.active[d] {
		return false
	}
	s.active[d] = true
	return true
}

func (s *Session) leave(d *ast.Declaration) {
	delete(s.active, d)
}
