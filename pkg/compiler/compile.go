package compiler

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/confts/confts/pkg/ast"
	"github.com/confts/confts/pkg/value"
)

// DefaultMacroModule is the module macro functions are imported from.
const DefaultMacroModule = "@conf-ts/macro"

// Frontend is the parsed, bound program the compiler evaluates. It is implemented by
// *frontend.Program.
type Frontend interface {
	// Files returns every loaded file in load order.
	Files() []*ast.File
	File(name string) (*ast.File, bool)
	// ResolveIdent returns the declaration an identifier refers to after following
	// import and export aliases, or nil.
	ResolveIdent(id *ast.Ident) *ast.Declaration
	// ResolveMember returns the enum member or namespace export a property access
	// statically denotes, or nil.
	ResolveMember(pa *ast.PropertyAccess) *ast.Declaration
	// IsNullish reports whether the static type of e is exclusively null or undefined.
	IsNullish(e ast.Expr) bool
}

// Options control a compile invocation.
type Options struct {
	Macro       bool
	MacroModule string
	LookupEnv   func(string) (string, bool)
	Logger      zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MacroModule == "" {
		o.MacroModule = DefaultMacroModule
	}
	if o.LookupEnv == nil {
		o.LookupEnv = os.LookupEnv
	}
	return o
}

// Result is the outcome of a successful compile.
type Result struct {
	Output value.Value
	// Dependencies lists every file the evaluation touched, sorted.
	Dependencies []string
	SessionID    string
}

// Compile evaluates the default export of entry.
//
// Every non-declaration file gets its macro imports collected and its enums folded
// before the entry is evaluated. A zero Options compiles in normal mode.
func Compile(fe Frontend, entry string, opts Options) (*Result, error) {
	s := newSession(fe, opts.withDefaults())

	files := make([]*ast.File, 0, len(fe.Files()))
	for _, f := range fe.Files() {
		if f.Declaration || ast.IsDeclarationFile(f.Name) {
			continue
		}
		files = append(files, f)
	}

	for _, f := range files {
		s.collectMacroImports(f)
	}
	for _, f := range files {
		if err := s.foldEnums(f); err != nil {
			return nil, err
		}
	}

	file, ok := fe.File(entry)
	if !ok {
		return nil, &ConfError{
			Kind:      ErrMissingDefaultExport,
			Message:   "No default export found in the entry file: " + entry,
			File:      entry,
			Line:      1,
			Character: 1,
		}
	}
	def := file.DefaultExport()
	if def == nil {
		return nil, &ConfError{
			Kind:      ErrMissingDefaultExport,
			Message:   "No default export found in the entry file: " + file.Name,
			File:      file.Name,
			Line:      1,
			Character: 1,
		}
	}

	out, err := s.eval(def.Expr, file, nil)
	if err != nil {
		return nil, err
	}

	deps := s.Dependencies()
	s.logger.Debug().Int("dependencies", len(deps)).Msg("Compile finished")
	return &Result{Output: out, Dependencies: deps, SessionID: s.ID}, nil
}
