package compiler

import (
	"github.com/confts/confts/pkg/ast"
	"github.com/confts/confts/pkg/value"
)

type foldState int

const (
	foldPending foldState = iota
	foldRunning
	foldDone
)

// foldEnums folds every top-level enum of f into the enum table.
func (s *Session) foldEnums(f *ast.File) error {
	for _, e := range f.Enums() {
		if err := s.foldEnum(e, f); err != nil {
			return err
		}
	}
	return nil
}

// foldEnum assigns each member of e its value, in declaration order.
//
// A member without an initializer takes the running ordinal, which starts at 0. A
// numeric initializer resets the ordinal to its value plus one; any other initializer
// leaves the ordinal where it was.
func (s *Session) foldEnum(e *ast.EnumDecl, f *ast.File) error {
	if s.folded[e] != foldPending {
		return nil
	}
	s.folded[e] = foldRunning

	next := 0.0
	for _, m := range e.Members {
		key := e.Name.Name + "." + m.Name
		if m.Init == nil {
			s.setEnumValue(f.Name, key, value.Number(next))
			next++
			continue
		}
		v, err := s.eval(m.Init, f, nil)
		if err != nil {
			return err
		}
		s.setEnumValue(f.Name, key, v)
		if v.Kind() == value.KindNumber {
			next = v.Num() + 1
		}
	}

	s.folded[e] = foldDone
	return nil
}

// enumMember returns the folded value of an enum member declaration, folding the enum
// on demand when it lives in a file that has not been folded yet. A member of an enum
// that is still being folded is only visible once its own turn has come, so forward
// references inside an enum body fail.
func (s *Session) enumMember(d *ast.Declaration, at ast.Node, file *ast.File) (value.Value, error) {
	table := d.File.Name
	key := d.QualifiedName()
	if v, ok := s.enumValue(table, key); ok {
		return v, nil
	}
	if s.folded[d.Enum] == foldPending {
		if err := s.foldEnum(d.Enum, d.File); err != nil {
			return value.Undefined, err
		}
		if v, ok := s.enumValue(table, key); ok {
			return v, nil
		}
	}
	if id, ok := at.(*ast.Ident); ok {
		return value.Undefined, unsupportedIdent(file, at, id.Name)
	}
	return value.Undefined, errorAt(ErrUnsupportedSyntax, file.Name, at.Pos(),
		"Unsupported property access expression: %s", file.Text(at))
}
