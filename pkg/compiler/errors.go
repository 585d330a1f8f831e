// Package compiler evaluates the default export of a configuration entry file into a
// JSON-compatible value. It folds enums, validates macro imports, evaluates expressions
// and dispatches compile-time macros.
package compiler

import (
	"errors"
	"fmt"

	"github.com/confts/confts/pkg/ast"
)

// ErrorKind classifies a compile failure.
type ErrorKind string

const (
	// ErrUnsupportedSyntax is any construct outside the supported subset.
	ErrUnsupportedSyntax ErrorKind = "UnsupportedSyntax"

	// ErrUnsupportedType is a function, Date or RegExp value.
	ErrUnsupportedType ErrorKind = "UnsupportedType"

	// ErrMissingDefaultExport means the entry file has no default export.
	ErrMissingDefaultExport ErrorKind = "MissingDefaultExport"

	// ErrNonConstBinding is a reference to a let or var declaration.
	ErrNonConstBinding ErrorKind = "NonConstBinding"

	// ErrMacroOnlyFunctionMisuse is a macro call outside macro mode.
	ErrMacroOnlyFunctionMisuse ErrorKind = "MacroOnlyFunctionMisuse"

	// ErrMacroImportRequired is a macro call without a named import from the macro module.
	ErrMacroImportRequired ErrorKind = "MacroImportRequired"

	// ErrMacroArityOrShapeViolation covers malformed macro calls and callback sandbox
	// violations.
	ErrMacroArityOrShapeViolation ErrorKind = "MacroArityOrShapeViolation"

	// ErrNonNullAssertionFailure is a failed `!` assertion, static or at runtime.
	ErrNonNullAssertionFailure ErrorKind = "NonNullAssertionFailure"

	// ErrEnvArgumentNotString is an env() call whose argument is not a string.
	ErrEnvArgumentNotString ErrorKind = "EnvArgumentNotString"

	// ErrCyclicReference is a constant whose value depends on itself.
	ErrCyclicReference ErrorKind = "CyclicReference"
)

// ConfError is the single error shape of the compiler. Line and Character are 1-based.
type ConfError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	File      string    `json:"file"`
	Line      int       `json:"line"`
	Character int       `json:"character"`
}

// Error implements the error interface.
func (e *ConfError) Error() string {
	file := e.File
	if file == "" {
		file = "unknown"
	}
	return fmt.Sprintf("%s: %s\n    at %s:%d:%d", e.Kind, e.Message, file, e.Line, e.Character)
}

// Is matches another *ConfError of the same kind.
func (e *ConfError) Is(target error) bool {
	t, ok := target.(*ConfError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is a *ConfError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *ConfError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func errorAt(kind ErrorKind, file string, pos ast.Pos, format string, args ...interface{}) *ConfError {
	return &ConfError{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		File:      file,
		Line:      pos.Line,
		Character: pos.Column,
	}
}
