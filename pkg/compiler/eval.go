package compiler

import (
	"github.com/confts/confts/pkg/ast"
	"github.com/confts/confts/pkg/value"
)

// bindings maps callback parameter names to the element being visited. It shadows
// every other resolution.
type bindings map[string]value.Value

// operatorTokens names operators the evaluator rejects, for diagnostics.
var operatorTokens = map[string]string{
	"&&":         "AmpersandAmpersandToken",
	"||":         "BarBarToken",
	"??":         "QuestionQuestionToken",
	"**":         "AsteriskAsteriskToken",
	"&":          "AmpersandToken",
	"|":          "BarToken",
	"^":          "CaretToken",
	"<<":         "LessThanLessThanToken",
	">>":         "GreaterThanGreaterThanToken",
	">>>":        "GreaterThanGreaterThanGreaterThanToken",
	"in":         "InKeyword",
	"instanceof": "InstanceOfKeyword",
	"=":          "EqualsToken",
	"+=":         "PlusEqualsToken",
	"-=":         "MinusEqualsToken",
	"*=":         "AsteriskEqualsToken",
	"/=":         "SlashEqualsToken",
	"%=":         "PercentEqualsToken",
	"**=":        "AsteriskAsteriskEqualsToken",
	"<<=":        "LessThanLessThanEqualsToken",
	">>=":        "GreaterThanGreaterThanEqualsToken",
	">>>=":       "GreaterThanGreaterThanGreaterThanEqualsToken",
	"&=":         "AmpersandEqualsToken",
	"|=":         "BarEqualsToken",
	"^=":         "CaretEqualsToken",
	"&&=":        "AmpersandAmpersandEqualsToken",
	"||=":        "BarBarEqualsToken",
	"??=":        "QuestionQuestionEqualsToken",
	"++":         "PlusPlusToken",
	"--":         "MinusMinusToken",
}

func operatorName(op string) string {
	if name, ok := operatorTokens[op]; ok {
		return name
	}
	return op
}

// eval folds e, which appears in file, into a value.
func (s *Session) eval(e ast.Expr, file *ast.File, ctx bindings) (value.Value, error) {
	s.record(file)

	switch e := e.(type) {
	case *ast.StringLit:
		return value.String(e.Value), nil

	case *ast.NumberLit:
		return value.Number(e.Value), nil

	case *ast.BoolLit:
		return value.Bool(e.Value), nil

	case *ast.NullLit:
		return value.Null, nil

	case *ast.TemplateLit:
		return s.evalTemplate(e, file, ctx)

	case *ast.ObjectLit:
		return s.evalObject(e, file, ctx)

	case *ast.ArrayLit:
		return s.evalArray(e, file, ctx)

	case *ast.Ident:
		return s.evalIdent(e, file, ctx)

	case *ast.PropertyAccess:
		return s.evalPropertyAccess(e, file, ctx)

	case *ast.Unary:
		return s.evalUnary(e, file, ctx)

	case *ast.Binary:
		return s.evalBinary(e, file, ctx)

	case *ast.Conditional:
		cond, err := s.eval(e.Cond, file, ctx)
		if err != nil {
			return value.Undefined, err
		}
		if value.Truthy(cond) {
			return s.eval(e.Then, file, ctx)
		}
		return s.eval(e.Else, file, ctx)

	case *ast.Paren:
		return s.eval(e.Expr, file, ctx)

	case *ast.As:
		return s.eval(e.Expr, file, ctx)

	case *ast.Satisfies:
		return s.eval(e.Expr, file, ctx)

	case *ast.NonNull:
		return s.evalNonNull(e, file, ctx)

	case *ast.Function:
		return value.Undefined, errorAt(ErrUnsupportedType, file.Name, e.Pos(), "Unsupported type: Function")

	case *ast.RegExpLit:
		return value.Undefined, errorAt(ErrUnsupportedType, file.Name, e.Pos(), "Unsupported type: RegExp")

	case *ast.New:
		callee := file.Text(e.Callee)
		if callee == "Date" {
			return value.Undefined, errorAt(ErrUnsupportedType, file.Name, e.Pos(), "Unsupported type: Date")
		}
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported \"new\" expression: %s", callee)

	case *ast.Call:
		if s.opts.Macro {
			return s.evalMacro(e, file, ctx)
		}
		if name := calleeName(e); macroArity[name] > 0 {
			return value.Undefined, errorAt(ErrMacroOnlyFunctionMisuse, file.Name, e.Pos(),
				"Function \"%s\" is only allowed in macro mode", name)
		}
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(),
			"Unsupported call expression: %s", file.Text(e))

	default:
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(),
			"Unsupported syntax kind: %s", ast.KindName(e))
	}
}

func (s *Session) evalTemplate(e *ast.TemplateLit, file *ast.File, ctx bindings) (value.Value, error) {
	out := e.Head
	for _, span := range e.Spans {
		v, err := s.eval(span.Expr, file, ctx)
		if err != nil {
			return value.Undefined, err
		}
		out += value.ToString(v) + span.Tail
	}
	return value.String(out), nil
}

func (s *Session) evalObject(e *ast.ObjectLit, file *ast.File, ctx bindings) (value.Value, error) {
	obj := value.NewObject()
	for _, prop := range e.Props {
		switch p := prop.(type) {
		case *ast.PropertyAssignment:
			key := p.Key.Name
			if p.Key.Kind == ast.KeyComputed {
				k, err := s.eval(p.Key.Expr, file, ctx)
				if err != nil {
					return value.Undefined, err
				}
				key = value.PropertyKey(k)
			}
			v, err := s.eval(p.Value, file, ctx)
			if err != nil {
				return value.Undefined, err
			}
			obj.Set(key, v)

		case *ast.ShorthandProperty:
			v, err := s.evalShorthand(p, file, ctx)
			if err != nil {
				return value.Undefined, err
			}
			obj.Set(p.Name.Name, v)

		case *ast.SpreadProperty:
			v, err := s.eval(p.Expr, file, ctx)
			if err != nil {
				return value.Undefined, err
			}
			obj.Assign(v)
		}
	}
	return value.FromObject(obj), nil
}

func (s *Session) evalArray(e *ast.ArrayLit, file *ast.File, ctx bindings) (value.Value, error) {
	elems := make([]value.Value, 0, len(e.Elements))
	for _, el := range e.Elements {
		if spread, ok := el.(*ast.SpreadElement); ok {
			v, err := s.eval(spread.Expr, file, ctx)
			if err != nil {
				return value.Undefined, err
			}
			items, ok := value.Iterate(v)
			if !ok {
				return value.Undefined, errorAt(ErrUnsupportedType, file.Name, spread.Pos(),
					"Spread of a non-iterable value: %s", v.Kind())
			}
			elems = append(elems, items...)
			continue
		}
		v, err := s.eval(el, file, ctx)
		if err != nil {
			return value.Undefined, err
		}
		elems = append(elems, v)
	}
	return value.Array(elems...), nil
}

func (s *Session) evalUnary(e *ast.Unary, file *ast.File, ctx bindings) (value.Value, error) {
	switch e.Op {
	case "typeof":
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported syntax kind: TypeOfExpression")
	case "void":
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported syntax kind: VoidExpression")
	case "delete":
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported syntax kind: DeleteExpression")
	case "++", "--":
		if e.Pos() == e.Operand.Pos() {
			return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported syntax kind: PostfixUnaryExpression")
		}
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported unary operator: %s", operatorName(e.Op))
	}

	operand, err := s.eval(e.Operand, file, ctx)
	if err != nil {
		return value.Undefined, err
	}
	v, ok := value.Unary(e.Op, operand)
	if !ok {
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported unary operator: %s", operatorName(e.Op))
	}
	return v, nil
}

func (s *Session) evalBinary(e *ast.Binary, file *ast.File, ctx bindings) (value.Value, error) {
	switch e.Op {
	case "+", "-", "*", "/", "%", ">", "<", ">=", "<=", "==", "===", "!=", "!==":
	default:
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported binary operator: %s", operatorName(e.Op))
	}

	left, err := s.eval(e.Left, file, ctx)
	if err != nil {
		return value.Undefined, err
	}
	right, err := s.eval(e.Right, file, ctx)
	if err != nil {
		return value.Undefined, err
	}
	v, ok := value.Binary(e.Op, left, right)
	if !ok {
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(), "Unsupported binary operator: %s", operatorName(e.Op))
	}
	return v, nil
}

func (s *Session) evalNonNull(e *ast.NonNull, file *ast.File, ctx bindings) (value.Value, error) {
	if s.fe.IsNullish(e.Expr) {
		return value.Undefined, errorAt(ErrNonNullAssertionFailure, file.Name, e.Pos(),
			"Non-null assertion applied to value typed as 'null' or 'undefined'")
	}
	v, err := s.eval(e.Expr, file, ctx)
	if err != nil {
		return value.Undefined, err
	}
	if v.IsNullish() {
		return value.Undefined, errorAt(ErrNonNullAssertionFailure, file.Name, e.Pos(),
			"Non-null assertion failed: value is null or undefined")
	}
	return v, nil
}
