package ast

// VarKind is the keyword a variable was declared with.
type VarKind string

const (
	Const VarKind = "const"
	Let   VarKind = "let"
	Var   VarKind = "var"
)

type (
	// ImportDecl is `import ... from 'module'`. TypeOnly imports bind nothing at runtime.
	ImportDecl struct {
		Span
		Module    string
		Default   *Ident
		Namespace *Ident
		Named     []*ImportSpec
		TypeOnly  bool
	}

	ImportSpec struct {
		Span
		Imported string
		Local    *Ident
		TypeOnly bool
	}

	VarDecl struct {
		Span
		Kind        VarKind
		Declarators []*Declarator
		Exported    bool
		Declare     bool
	}

	// Declarator binds either Name or Pattern.
	Declarator struct {
		Span
		Name    *Ident
		Pattern *ObjectPattern
		Type    TypeNode
		Init    Expr
	}

	// ObjectPattern is `{ a, b: c, d = 1, ...rest }`.
	ObjectPattern struct {
		Span
		Elements []*BindingElement
	}

	// BindingElement is one element of an object pattern. Key is the source property
	// name; it equals Name.Name unless the element renames.
	BindingElement struct {
		Span
		Key     string
		Name    *Ident
		Default Expr
		Rest    bool
	}

	EnumDecl struct {
		Span
		Name     *Ident
		Members  []*EnumMember
		Exported bool
		Const    bool
		Declare  bool
	}

	EnumMember struct {
		Span
		Name string
		Init Expr
	}

	ExportDefault struct {
		Span
		Expr Expr
	}

	// ExportNamed is `export { a as b }`, `export { a } from 'm'` or `export * from 'm'`.
	ExportNamed struct {
		Span
		Specs    []*ExportSpec
		Module   string
		HasFrom  bool
		Star     bool
		StarAs   string
		TypeOnly bool
	}

	ExportSpec struct {
		Span
		Local    string
		Exported string
	}

	FunctionDecl struct {
		Span
		Name     *Ident
		Exported bool
		Default  bool
	}

	ClassDecl struct {
		Span
		Name     *Ident
		Exported bool
		Default  bool
	}

	// OpaqueStmt is a statement the compiler never looks into: type aliases, interfaces,
	// namespaces, declare blocks and anything inside a function block other than the
	// statements below.
	OpaqueStmt struct {
		Span
		What string
	}

	ReturnStmt struct {
		Span
		Expr Expr
	}

	ExprStmt struct {
		Span
		Expr Expr
	}
)

func (*ImportDecl) stmtNode()    {}
func (*VarDecl) stmtNode()       {}
func (*EnumDecl) stmtNode()      {}
func (*ExportDefault) stmtNode() {}
func (*ExportNamed) stmtNode()   {}
func (*FunctionDecl) stmtNode()  {}
func (*ClassDecl) stmtNode()     {}
func (*OpaqueStmt) stmtNode()    {}
func (*ReturnStmt) stmtNode()    {}
func (*ExprStmt) stmtNode()      {}

// Type annotations.
type (
	// TypeKeyword is a single keyword or literal type such as `null`, `undefined`,
	// `string` or `void`.
	TypeKeyword struct {
		Span
		Name string
	}

	TypeUnion struct {
		Span
		Types []TypeNode
	}

	TypeParen struct {
		Span
		Type TypeNode
	}

	// TypeOther is any type the nullish query treats as not nullish.
	TypeOther struct {
		Span
	}
)

func (*TypeKeyword) typeNode() {}
func (*TypeUnion) typeNode()   {}
func (*TypeParen) typeNode()   {}
func (*TypeOther) typeNode()   {}
