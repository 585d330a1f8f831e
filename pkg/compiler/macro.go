package compiler

import (
	"github.com/confts/confts/pkg/ast"
	"github.com/confts/confts/pkg/value"
)

// macroArity lists the macro functions and the argument count each accepts.
var macroArity = map[string]int{
	"String":      1,
	"Number":      1,
	"Boolean":     1,
	"arrayMap":    2,
	"arrayFilter": 2,
	"env":         1,
}

// A macroHandler evaluates a call when it recognises it. handled is false when the
// call is not its business, in which case the next handler is tried.
type macroHandler func(s *Session, call *ast.Call, name string, file *ast.File, ctx bindings) (v value.Value, handled bool, err error)

// macroHandlers is set in init; the handlers reach evalMacro through eval.
var macroHandlers []macroHandler

func init() {
	macroHandlers = []macroHandler{
		evalTypecast,
		evalArrayMap,
		evalArrayFilter,
		evalEnv,
	}
}

// calleeName returns the name of a call whose callee is a bare identifier.
func calleeName(call *ast.Call) string {
	if id, ok := call.Callee.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func (s *Session) evalMacro(call *ast.Call, file *ast.File, ctx bindings) (value.Value, error) {
	name := calleeName(call)
	for _, h := range macroHandlers {
		v, handled, err := h(s, call, name, file, ctx)
		if err != nil {
			return value.Undefined, err
		}
		if handled {
			return v, nil
		}
	}

	kind := ErrUnsupportedSyntax
	if _, known := macroArity[name]; known {
		kind = ErrMacroArityOrShapeViolation
	}
	return value.Undefined, errorAt(kind, file.Name, call.Pos(),
		"Unsupported call expression in macro mode: %s", file.Text(call))
}

// matches reports whether call invokes macro name with its expected arity.
func matches(call *ast.Call, name string, want ...string) bool {
	for _, w := range want {
		if name == w && len(call.Args) == macroArity[w] {
			return true
		}
	}
	return false
}

func evalTypecast(s *Session, call *ast.Call, name string, file *ast.File, ctx bindings) (value.Value, bool, error) {
	if !matches(call, name, "String", "Number", "Boolean") {
		return value.Undefined, false, nil
	}
	if !s.macroImported(file.Name, name) {
		return value.Undefined, true, errorAt(ErrMacroImportRequired, file.Name, call.Pos(),
			"Type casting function '%s' must be imported from '%s' to use in macro mode", name, s.opts.MacroModule)
	}
	arg, err := s.eval(call.Args[0], file, ctx)
	if err != nil {
		return value.Undefined, true, err
	}
	switch name {
	case "String":
		return value.String(value.ToString(arg)), true, nil
	case "Number":
		return value.Number(value.ToNumber(arg)), true, nil
	default:
		return value.Bool(value.Truthy(arg)), true, nil
	}
}

func evalArrayMap(s *Session, call *ast.Call, name string, file *ast.File, ctx bindings) (value.Value, bool, error) {
	if !matches(call, name, "arrayMap") {
		return value.Undefined, false, nil
	}
	items, cb, err := s.arrayMacro(call, name, file, ctx)
	if err != nil {
		return value.Undefined, true, err
	}
	out := make([]value.Value, 0, len(items))
	for _, item := range items {
		v, err := s.eval(cb.body, file, bindings{cb.param: item})
		if err != nil {
			return value.Undefined, true, err
		}
		out = append(out, v)
	}
	return value.Array(out...), true, nil
}

func evalArrayFilter(s *Session, call *ast.Call, name string, file *ast.File, ctx bindings) (value.Value, bool, error) {
	if !matches(call, name, "arrayFilter") {
		return value.Undefined, false, nil
	}
	items, cb, err := s.arrayMacro(call, name, file, ctx)
	if err != nil {
		return value.Undefined, true, err
	}
	var out []value.Value
	for _, item := range items {
		keep, err := s.eval(cb.body, file, bindings{cb.param: item})
		if err != nil {
			return value.Undefined, true, err
		}
		if value.Truthy(keep) {
			out = append(out, item)
		}
	}
	return value.Array(out...), true, nil
}

func evalEnv(s *Session, call *ast.Call, name string, file *ast.File, ctx bindings) (value.Value, bool, error) {
	if !matches(call, name, "env") {
		return value.Undefined, false, nil
	}
	if !s.macroImported(file.Name, name) {
		return value.Undefined, true, errorAt(ErrMacroImportRequired, file.Name, call.Pos(),
			"Macro function '%s' must be imported from '%s' to use in macro mode", name, s.opts.MacroModule)
	}
	arg, err := s.eval(call.Args[0], file, ctx)
	if err != nil {
		return value.Undefined, true, err
	}
	if arg.Kind() != value.KindString {
		return value.Undefined, true, errorAt(ErrEnvArgumentNotString, file.Name, call.Args[0].Pos(),
			"env macro argument must be a string")
	}
	v, ok := s.opts.LookupEnv(arg.Str())
	if !ok {
		s.logger.Debug().Str("name", arg.Str()).Msg("Environment variable not set")
		return value.Undefined, true, nil
	}
	return value.String(v), true, nil
}

// callback is the vetted single-expression body of an array macro callback.
type callback struct {
	param string
	body  ast.Expr
}

// arrayMacro checks the import, evaluates the array argument and vets the callback of
// arrayMap and arrayFilter.
func (s *Session) arrayMacro(call *ast.Call, name string, file *ast.File, ctx bindings) ([]value.Value, *callback, error) {
	if !s.macroImported(file.Name, name) {
		return nil, nil, errorAt(ErrMacroImportRequired, file.Name, call.Pos(),
			"Macro function '%s' must be imported from '%s' to use in macro mode", name, s.opts.MacroModule)
	}

	arr, err := s.eval(call.Args[0], file, ctx)
	if err != nil {
		return nil, nil, err
	}
	if arr.Kind() != value.KindArray {
		return nil, nil, errorAt(ErrMacroArityOrShapeViolation, file.Name, call.Args[0].Pos(),
			"%s: first argument must be an array", name)
	}

	cb, err := s.vetCallback(call.Args[1], name, file)
	if err != nil {
		return nil, nil, err
	}
	return arr.Elems(), cb, nil
}

// vetCallback checks the shape of an array macro callback and runs the sandbox over
// its body.
func (s *Session) vetCallback(arg ast.Expr, name string, file *ast.File) (*callback, error) {
	fn, ok := arg.(*ast.Function)
	if !ok || !fn.Arrow {
		return nil, errorAt(ErrMacroArityOrShapeViolation, file.Name, arg.Pos(),
			"%s: callback must be an arrow function", name)
	}
	if len(fn.Params) != 1 || fn.Params[0].Name == nil || fn.Params[0].Rest {
		return nil, errorAt(ErrMacroArityOrShapeViolation, file.Name, fn.Pos(),
			"%s: callback must have exactly one parameter", name)
	}

	body := fn.Body
	if fn.Block != nil {
		body = nil
		if len(fn.Block.Stmts) == 1 {
			if ret, ok := fn.Block.Stmts[0].(*ast.ReturnStmt); ok {
				body = ret.Expr
			}
		}
		if body == nil {
			return nil, errorAt(ErrMacroArityOrShapeViolation, file.Name, fn.Block.Pos(),
				"%s: callback body must be a single return statement", name)
		}
	}

	cb := &callback{param: fn.Params[0].Name.Name, body: body}
	sb := sandbox{session: s, file: file, macro: name}
	if err := sb.check(body, cb.param); err != nil {
		return nil, err
	}
	return cb, nil
}
