package compiler

import "github.com/confts/confts/pkg/ast"

// sandbox vets the body of an array macro callback. The body may use its parameter,
// property chains rooted at it, literals and calls to imported macros. The parameter
// in scope is threaded through the walk.
type sandbox struct {
	session *Session
	file    *ast.File
	macro   string
}

func (sb sandbox) violation(n ast.Node) error {
	return errorAt(ErrMacroArityOrShapeViolation, sb.file.Name, n.Pos(),
		"%s: callback can only use its parameter and literals", sb.macro)
}

func (sb sandbox) check(e ast.Expr, param string) error {
	switch e := e.(type) {
	case *ast.StringLit, *ast.NumberLit, *ast.BoolLit, *ast.NullLit, *ast.RegExpLit:
		return nil

	case *ast.Ident:
		if e.Name == param {
			return nil
		}
		return sb.violation(e)

	case *ast.TemplateLit:
		for _, span := range e.Spans {
			if err := sb.check(span.Expr, param); err != nil {
				return err
			}
		}
		return nil

	case *ast.ObjectLit:
		for _, prop := range e.Props {
			var err error
			switch p := prop.(type) {
			case *ast.PropertyAssignment:
				if p.Key.Kind == ast.KeyComputed {
					if err = sb.check(p.Key.Expr, param); err != nil {
						return err
					}
				}
				err = sb.check(p.Value, param)
			case *ast.ShorthandProperty:
				err = sb.check(p.Name, param)
			case *ast.SpreadProperty:
				err = sb.check(p.Expr, param)
			}
			if err != nil {
				return err
			}
		}
		return nil

	case *ast.ArrayLit:
		return sb.checkAll(e.Elements, param)

	case *ast.SpreadElement:
		return sb.check(e.Expr, param)

	case *ast.PropertyAccess:
		if rootName(e) == param {
			return nil
		}
		if err := sb.check(e.Object, param); err != nil {
			return err
		}
		return sb.violation(e.Name)

	case *ast.ElementAccess:
		if err := sb.check(e.Object, param); err != nil {
			return err
		}
		return sb.check(e.Index, param)

	case *ast.Unary:
		return sb.check(e.Operand, param)

	case *ast.Binary:
		if err := sb.check(e.Left, param); err != nil {
			return err
		}
		return sb.check(e.Right, param)

	case *ast.Conditional:
		return sb.checkAll([]ast.Expr{e.Cond, e.Then, e.Else}, param)

	case *ast.Paren:
		return sb.check(e.Expr, param)

	case *ast.As:
		return sb.check(e.Expr, param)

	case *ast.Satisfies:
		return sb.check(e.Expr, param)

	case *ast.NonNull:
		return sb.check(e.Expr, param)

	case *ast.New:
		if err := sb.check(e.Callee, param); err != nil {
			return err
		}
		return sb.checkAll(e.Args, param)

	case *ast.Call:
		return sb.checkCall(e, param)
	}
	// Functions other than nested macro callbacks.
	return sb.violation(e)
}

func (sb sandbox) checkAll(exprs []ast.Expr, param string) error {
	for _, e := range exprs {
		if err := sb.check(e, param); err != nil {
			return err
		}
	}
	return nil
}

// checkCall allows calls whose callee is an imported macro. The callback argument of
// a nested arrayMap or arrayFilter is vetted against its own parameter.
func (sb sandbox) checkCall(call *ast.Call, param string) error {
	name := calleeName(call)
	if name == "" || !sb.session.macroImported(sb.file.Name, name) {
		return sb.violation(call.Callee)
	}
	for i, arg := range call.Args {
		fn, isFn := arg.(*ast.Function)
		if isFn && i == 1 && (name == "arrayMap" || name == "arrayFilter") {
			if err := sb.checkNested(fn); err != nil {
				return err
			}
			continue
		}
		if err := sb.check(arg, param); err != nil {
			return err
		}
	}
	return nil
}

func (sb sandbox) checkNested(fn *ast.Function) error {
	if !fn.Arrow || len(fn.Params) != 1 || fn.Params[0].Name == nil {
		return sb.violation(fn)
	}
	inner := fn.Params[0].Name.Name
	if fn.Body != nil {
		return sb.check(fn.Body, inner)
	}
	for _, stmt := range fn.Block.Stmts {
		ret, ok := stmt.(*ast.ReturnStmt)
		if !ok || ret.Expr == nil {
			return sb.violation(stmt)
		}
		if err := sb.check(ret.Expr, inner); err != nil {
			return err
		}
	}
	return nil
}
