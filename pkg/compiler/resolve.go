package compiler

import (
	"github.com/confts/confts/pkg/ast"
	"github.com/confts/confts/pkg/value"
)

func (s *Session) evalIdent(id *ast.Ident, file *ast.File, ctx bindings) (value.Value, error) {
	if v, ok := ctx[id.Name]; ok {
		return v, nil
	}
	d := s.fe.ResolveIdent(id)
	if d == nil {
		return value.Undefined, unsupportedIdent(file, id, id.Name)
	}
	return s.evalDeclaration(d, id, id.Name, file)
}

func (s *Session) evalShorthand(p *ast.ShorthandProperty, file *ast.File, ctx bindings) (value.Value, error) {
	if v, ok := ctx[p.Name.Name]; ok {
		return v, nil
	}
	d := s.fe.ResolveIdent(p.Name)
	if d == nil || (d.Kind != ast.DeclVar && d.Kind != ast.DeclBinding && d.Kind != ast.DeclEnumMember) ||
		(d.Kind == ast.DeclVar && d.Init == nil) {
		return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, p.Pos(),
			"Could not resolve shorthand property '%s' because its declaration is not a variable or has no initializer.", p.Name.Name)
	}
	return s.evalDeclaration(d, p, p.Name.Name, file)
}

// evalDeclaration evaluates the declaration a reference resolved to. Errors point at
// the reference, which sits in file.
func (s *Session) evalDeclaration(d *ast.Declaration, at ast.Node, name string, file *ast.File) (value.Value, error) {
	switch d.Kind {
	case ast.DeclVar:
		if d.VarKind != ast.Const {
			return value.Undefined, errorAt(ErrNonConstBinding, file.Name, at.Pos(),
				"Failed to evaluate variable \"%s\". Only 'const' declarations are supported, but it was declared with '%s'.", name, d.VarKind)
		}
		if d.Init == nil {
			return value.Undefined, unsupportedIdent(file, at, name)
		}
		if !s.enter(d) {
			return value.Undefined, cyclic(file, at, name)
		}
		defer s.leave(d)
		return s.eval(d.Init, d.File, nil)

	case ast.DeclBinding:
		if d.VarKind != ast.Const {
			return value.Undefined, errorAt(ErrNonConstBinding, file.Name, at.Pos(),
				"Failed to evaluate variable \"%s\". Only 'const' declarations are supported, but it was declared with '%s'.", name, d.VarKind)
		}
		if d.Declarator == nil || d.Declarator.Init == nil {
			return value.Undefined, unsupportedIdent(file, at, name)
		}
		if !s.enter(d) {
			return value.Undefined, cyclic(file, at, name)
		}
		defer s.leave(d)
		return s.evalBinding(d)

	case ast.DeclEnumMember:
		return s.enumMember(d, at, file)
	}
	return value.Undefined, unsupportedIdent(file, at, name)
}

// evalBinding reads one element of an object destructuring pattern out of the
// evaluated initializer. A rest element collects every key its siblings do not name.
func (s *Session) evalBinding(d *ast.Declaration) (value.Value, error) {
	src, err := s.eval(d.Declarator.Init, d.File, nil)
	if err != nil {
		return value.Undefined, err
	}

	if d.Binding.Rest {
		omit := make(map[string]bool, len(d.Pattern.Elements))
		for _, el := range d.Pattern.Elements {
			if el != d.Binding && !el.Rest {
				omit[el.Key] = true
			}
		}
		all := value.NewObject()
		all.Assign(src)
		return value.FromObject(all.Without(omit)), nil
	}

	v, _ := src.Get(d.Binding.Key)
	if v.IsUndefined() && d.Binding.Default != nil {
		return s.eval(d.Binding.Default, d.File, nil)
	}
	return v, nil
}

// evalPropertyAccess resolves, in order: a statically known enum member, a namespace
// export, a property of the evaluated base, and the dotted name in the file's enum table.
func (s *Session) evalPropertyAccess(e *ast.PropertyAccess, file *ast.File, ctx bindings) (value.Value, error) {
	if _, shadowed := ctx[rootName(e)]; !shadowed {
		if d := s.fe.ResolveMember(e); d != nil {
			if d.Kind == ast.DeclEnumMember {
				return s.enumMember(d, e, file)
			}
			return s.evalDeclaration(d, e, d.Name, file)
		}
	}

	if !s.isTypeLikeBase(e.Object, ctx) {
		base, err := s.eval(e.Object, file, ctx)
		if err != nil {
			return value.Undefined, err
		}
		switch base.Kind() {
		case value.KindObject, value.KindArray:
			if v, ok := base.Get(e.Name.Name); ok {
				return v, nil
			}
		}
	}

	text := file.Text(e)
	if v, ok := s.enumValue(file.Name, text); ok {
		return v, nil
	}
	return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, e.Pos(),
		"Unsupported property access expression: %s", text)
}

// isTypeLikeBase reports whether e names an enum or a namespace, which have no value
// of their own.
func (s *Session) isTypeLikeBase(e ast.Expr, ctx bindings) bool {
	switch e := e.(type) {
	case *ast.Ident:
		if _, ok := ctx[e.Name]; ok {
			return false
		}
		d := s.fe.ResolveIdent(e)
		return d != nil && (d.Kind == ast.DeclEnum || d.Kind == ast.DeclNamespace)
	case *ast.PropertyAccess:
		if _, ok := ctx[rootName(e)]; ok {
			return false
		}
		d := s.fe.ResolveMember(e)
		return d != nil && (d.Kind == ast.DeclEnum || d.Kind == ast.DeclNamespace)
	}
	return false
}

// rootName returns the identifier at the root of a property chain, or "".
func rootName(e ast.Expr) string {
	for {
		switch x := e.(type) {
		case *ast.PropertyAccess:
			e = x.Object
		case *ast.Ident:
			return x.Name
		default:
			return ""
		}
	}
}

func unsupportedIdent(file *ast.File, at ast.Node, name string) *ConfError {
	return errorAt(ErrUnsupportedSyntax, file.Name, at.Pos(), "Unsupported variable type for identifier: %s", name)
}

func cyclic(file *ast.File, at ast.Node, name string) *ConfError {
	return errorAt(ErrCyclicReference, file.Name, at.Pos(), "Cyclic reference detected while evaluating \"%s\"", name)
}
