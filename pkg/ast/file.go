package ast

import "strings"

// File is one parsed source file.
type File struct {
	Name        string
	Src         string
	Declaration bool
	Stmts       []Stmt
}

// Text returns the source text of a node in this file.
func (f *File) Text(n Node) string {
	from, to := n.Pos().Offset, n.End().Offset
	if from < 0 || to > len(f.Src) || from > to {
		return ""
	}
	return f.Src[from:to]
}

// Imports returns the file's top-level import declarations in source order.
func (f *File) Imports() []*ImportDecl {
	var out []*ImportDecl
	for _, s := range f.Stmts {
		if imp, ok := s.(*ImportDecl); ok {
			out = append(out, imp)
		}
	}
	return out
}

// Enums returns the file's top-level enum declarations in source order.
func (f *File) Enums() []*EnumDecl {
	var out []*EnumDecl
	for _, s := range f.Stmts {
		if e, ok := s.(*EnumDecl); ok {
			out = append(out, e)
		}
	}
	return out
}

// DefaultExport returns the expression of `export default`, or nil.
func (f *File) DefaultExport() *ExportDefault {
	for _, s := range f.Stmts {
		if d, ok := s.(*ExportDefault); ok {
			return d
		}
	}
	return nil
}

// IsDeclarationFile reports whether name is a `.d.ts` file.
func IsDeclarationFile(name string) bool {
	return strings.HasSuffix(name, ".d.ts")
}

// DeclKind classifies what a name resolves to.
type DeclKind int

const (
	DeclVar DeclKind = iota
	DeclBinding
	DeclEnum
	DeclEnumMember
	DeclFunction
	DeclClass
	DeclParam
	DeclNamespace
)

func (k DeclKind) String() string {
	switch k {
	case DeclVar:
		return "variable"
	case DeclBinding:
		return "binding"
	case DeclEnum:
		return "enum"
	case DeclEnumMember:
		return "enum member"
	case DeclFunction:
		return "function"
	case DeclClass:
		return "class"
	case DeclParam:
		return "parameter"
	case DeclNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// Declaration is the target of name resolution.
//
// Which fields are set depends on Kind:
//   - DeclVar: VarKind, Declarator, Init (may be nil)
//   - DeclBinding: VarKind, Declarator, Pattern, Binding
//   - DeclEnum: Enum
//   - DeclEnumMember: Enum, Member
//   - DeclParam: Param
//   - DeclNamespace: Module (nil for modules with no source file)
type Declaration struct {
	Kind       DeclKind
	File       *File
	Name       string
	Node       Node
	VarKind    VarKind
	Declarator *Declarator
	Init       Expr
	Pattern    *ObjectPattern
	Binding    *BindingElement
	Enum       *EnumDecl
	Member     *EnumMember
	Param      *Param
	Module     *File
	ModuleName string
}

// QualifiedName returns "Enum.Member" for enum members and the plain name otherwise.
func (d *Declaration) QualifiedName() string {
	if d.Kind == DeclEnumMember && d.Enum != nil {
		return d.Enum.Name.Name + "." + d.Name
	}
	return d.Name
}
