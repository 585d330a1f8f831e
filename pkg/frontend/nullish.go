package frontend

import "github.com/confts/confts/pkg/ast"

// IsNullish reports whether the static type of e is exclusively null or undefined.
func (p *Program) IsNullish(e ast.Expr) bool {
	return p.nullish(e, make(map[*ast.Declaration]bool))
}

func (p *Program) nullish(e ast.Expr, seen map[*ast.Declaration]bool) bool {
	switch e := e.(type) {
	case *ast.NullLit:
		return true
	case *ast.Unary:
		return e.Op == "void"
	case *ast.Paren:
		return p.nullish(e.Expr, seen)
	case *ast.Satisfies:
		return p.nullish(e.Expr, seen)
	case *ast.As:
		return !e.Const && nullishType(e.Type)
	case *ast.Conditional:
		return p.nullish(e.Then, seen) && p.nullish(e.Else, seen)
	case *ast.Ident:
		d := p.ResolveIdent(e)
		if d == nil {
			return e.Name == "undefined"
		}
		if seen[d] {
			return false
		}
		seen[d] = true
		switch d.Kind {
		case ast.DeclVar:
			if d.Declarator != nil && d.Declarator.Type != nil {
				return nullishType(d.Declarator.Type)
			}
			return d.Init != nil && p.nullish(d.Init, seen)
		case ast.DeclParam:
			return d.Param.Type != nil && nullishType(d.Param.Type)
		}
	}
	return false
}

func nullishType(t ast.TypeNode) bool {
	switch t := t.(type) {
	case *ast.TypeKeyword:
		switch t.Name {
		case "null", "undefined", "void":
			return true
		}
	case *ast.TypeParen:
		return nullishType(t.Type)
	case *ast.TypeUnion:
		for _, m := range t.Types {
			if !nullishType(m) {
				return false
			}
		}
		return len(t.Types) > 0
	}
	return false
}
