// Package ast defines the expression tree consumed by the confts compiler.
//
// Expressions form a closed sum type: every concrete node implements Expr through an
// unexported marker method, so only this package can add new kinds. Consumers dispatch
// with a single type switch over the kinds listed in this file.
package ast

import "fmt"

// Pos is a position in a source file. Line and Column are 1-based; Column counts runes.
type Pos struct {
	Offset int
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is the source range of a node. To is exclusive.
type Span struct {
	From Pos
	To   Pos
}

// Pos returns the start of the span.
func (s Span) Pos() Pos { return s.From }

// End returns the position just past the span.
func (s Span) End() Pos { return s.To }

// Node is implemented by every syntax node.
type Node interface {
	Pos() Pos
	End() Pos
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a top-level or block statement.
type Stmt interface {
	Node
	stmtNode()
}

// Property is a member of an object literal.
type Property interface {
	Node
	propertyNode()
}

// TypeNode is a type annotation, kept only as far as nullability queries need it.
type TypeNode interface {
	Node
	typeNode()
}

// --- Literals ---

type (
	StringLit struct {
		Span
		Value string
	}

	NumberLit struct {
		Span
		Raw   string
		Value float64
	}

	BoolLit struct {
		Span
		Value bool
	}

	NullLit struct {
		Span
	}

	// TemplateLit is a template string. A template without substitutions has no spans.
	TemplateLit struct {
		Span
		Head  string
		Spans []*TemplateSpan
	}

	TemplateSpan struct {
		Expr Expr
		Tail string
	}

	RegExpLit struct {
		Span
		Pattern string
		Flags   string
	}
)

// --- Composite literals ---

type (
	ObjectLit struct {
		Span
		Props []Property
	}

	ArrayLit struct {
		Span
		Elements []Expr
	}

	// SpreadElement is `...expr` inside an array literal or an argument list.
	SpreadElement struct {
		Span
		Expr Expr
	}
)

// KeyKind tells how an object literal key was written.
type KeyKind int

const (
	KeyIdent KeyKind = iota
	KeyString
	KeyNumber
	KeyComputed
)

// PropertyKey is the key of a property assignment. Name is set for every kind except
// KeyComputed, which carries Expr instead.
type PropertyKey struct {
	Span
	Kind KeyKind
	Name string
	Expr Expr
}

type (
	PropertyAssignment struct {
		Span
		Key   PropertyKey
		Value Expr
	}

	ShorthandProperty struct {
		Span
		Name *Ident
	}

	SpreadProperty struct {
		Span
		Expr Expr
	}
)

// --- References and operators ---

type (
	Ident struct {
		Span
		Name string
	}

	PropertyAccess struct {
		Span
		Object Expr
		Name   *Ident
	}

	ElementAccess struct {
		Span
		Object Expr
		Index  Expr
	}

	Unary struct {
		Span
		Op      string
		Operand Expr
	}

	Binary struct {
		Span
		Op    string
		Left  Expr
		Right Expr
	}

	Conditional struct {
		Span
		Cond Expr
		Then Expr
		Else Expr
	}

	Call struct {
		Span
		Callee Expr
		Args   []Expr
	}

	New struct {
		Span
		Callee Expr
		Args   []Expr
	}

	Paren struct {
		Span
		Expr Expr
	}

	As struct {
		Span
		Expr  Expr
		Type  TypeNode
		Const bool
	}

	Satisfies struct {
		Span
		Expr Expr
		Type TypeNode
	}

	NonNull struct {
		Span
		Expr Expr
	}
)

// --- Functions ---

// Param is a function parameter. Name is nil when the parameter is a pattern.
type Param struct {
	Span
	Name    *Ident
	Type    TypeNode
	Default Expr
	Rest    bool
	Pattern bool
}

// Function is an arrow function or a function expression. Exactly one of Body and Block
// is set.
type Function struct {
	Span
	Arrow  bool
	Params []*Param
	Body   Expr
	Block  *Block
}

// Block is a statement block of a function body.
type Block struct {
	Span
	Stmts []Stmt
}

func (*StringLit) exprNode()      {}
func (*NumberLit) exprNode()      {}
func (*BoolLit) exprNode()        {}
func (*NullLit) exprNode()        {}
func (*TemplateLit) exprNode()    {}
func (*RegExpLit) exprNode()      {}
func (*ObjectLit) exprNode()      {}
func (*ArrayLit) exprNode()       {}
func (*SpreadElement) exprNode()  {}
func (*Ident) exprNode()          {}
func (*PropertyAccess) exprNode() {}
func (*ElementAccess) exprNode()  {}
func (*Unary) exprNode()          {}
func (*Binary) exprNode()         {}
func (*Conditional) exprNode()    {}
func (*Call) exprNode()           {}
func (*New) exprNode()            {}
func (*Paren) exprNode()          {}
func (*As) exprNode()             {}
func (*Satisfies) exprNode()      {}
func (*NonNull) exprNode()        {}
func (*Function) exprNode()       {}

func (*PropertyAssignment) propertyNode() {}
func (*ShorthandProperty) propertyNode()  {}
func (*SpreadProperty) propertyNode()     {}

// KindName returns the syntax kind name of an expression, used in diagnostics.
func KindName(e Expr) string {
	switch e.(type) {
	case *StringLit:
		return "StringLiteral"
	case *NumberLit:
		return "NumericLiteral"
	case *BoolLit:
		return "BooleanLiteral"
	case *NullLit:
		return "NullKeyword"
	case *TemplateLit:
		return "TemplateExpression"
	case *RegExpLit:
		return "RegularExpressionLiteral"
	case *ObjectLit:
		return "ObjectLiteralExpression"
	case *ArrayLit:
		return "ArrayLiteralExpression"
	case *SpreadElement:
		return "SpreadElement"
	case *Ident:
		return "Identifier"
	case *PropertyAccess:
		return "PropertyAccessExpression"
	case *ElementAccess:
		return "ElementAccessExpression"
	case *Unary:
		return "PrefixUnaryExpression"
	case *Binary:
		return "BinaryExpression"
	case *Conditional:
		return "ConditionalExpression"
	case *Call:
		return "CallExpression"
	case *New:
		return "NewExpression"
	case *Paren:
		return "ParenthesizedExpression"
	case *As:
		return "AsExpression"
	case *Satisfies:
		return "SatisfiesExpression"
	case *NonNull:
		return "NonNullExpression"
	case *Function:
		return "FunctionExpression"
	default:
		return fmt.Sprintf("%T", e)
	}
}
