package frontend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/confts/confts/pkg/ast"
	"github.com/confts/confts/pkg/value"
)

// SyntaxError reports source text the parser cannot read.
type SyntaxError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

// Parser builds an ast.File from tokens. It stops at the first error.
type Parser struct {
	file string
	toks []Token
	i    int
}

// bailout unwinds the parser on the first syntax error.
type bailout struct {
	err *SyntaxError
}

// ParseFile parses one source file.
func ParseFile(name, src string) (f *ast.File, err error) {
	toks, lerr := Tokenize(src)
	if lerr != nil {
		var le *lexError
		if errors.As(lerr, &le) {
			return nil, &SyntaxError{File: name, Line: le.pos.Line, Column: le.pos.Column, Msg: le.msg}
		}
		return nil, lerr
	}

	p := &Parser{file: name, toks: toks}
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			f, err = nil, b.err
		}
	}()

	f = &ast.File{Name: name, Src: src, Declaration: ast.IsDeclarationFile(name)}
	f.Stmts = p.parseStatements()
	return f, nil
}

// --- token helpers ---

func (p *Parser) cur() Token { return p.toks[p.i] }

func (p *Parser) peek(n int) Token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *Parser) next() Token {
	tok := p.toks[p.i]
	if tok.Type != EOF {
		p.i++
	}
	return tok
}

func (p *Parser) at(t TokenType) bool { return p.toks[p.i].Type == t }

func (p *Parser) atWord(w string) bool { return p.toks[p.i].isContextual(w) }

func (p *Parser) errorAt(pos ast.Pos, format string, args ...interface{}) {
	panic(bailout{err: &SyntaxError{
		File:   p.file,
		Line:   pos.Line,
		Column: pos.Column,
		Msg:    fmt.Sprintf(format, args...),
	}})
}

func (p *Parser) unexpected() {
	tok := p.cur()
	if tok.Type == EOF {
		p.errorAt(tok.Pos, "unexpected end of file")
	}
	p.errorAt(tok.Pos, "unexpected token %q", tok.Literal)
}

func (p *Parser) expect(t TokenType) Token {
	if !p.at(t) {
		tok := p.cur()
		if tok.Type == EOF {
			p.errorAt(tok.Pos, "expected %q, found end of file", string(t))
		}
		p.errorAt(tok.Pos, "expected %q, found %q", string(t), tok.Literal)
	}
	return p.next()
}

func (p *Parser) expectWord(w string) {
	if !p.atWord(w) {
		p.errorAt(p.cur().Pos, "expected %q, found %q", w, p.cur().Literal)
	}
	p.next()
}

// span closes a node that started at from and ends with the previous token.
func (p *Parser) span(from ast.Pos) ast.Span {
	to := from
	if p.i > 0 {
		to = p.toks[p.i-1].End
	}
	return ast.Span{From: from, To: to}
}

func tokSpan(t Token) ast.Span { return ast.Span{From: t.Pos, To: t.End} }

// semicolon consumes an optional statement terminator. A missing one is fine before
// `}`, at end of file or after a line break.
func (p *Parser) semicolon() {
	switch {
	case p.at(SEMICOLON):
		p.next()
	case p.at(RBRACE), p.at(EOF), p.cur().NewlineBefore:
	default:
		p.errorAt(p.cur().Pos, "expected ';', found %q", p.cur().Literal)
	}
}

// matching returns the index of the bracket closing the one at index i, or -1.
func (p *Parser) matching(i int) int {
	var stack []TokenType
	for j := i; j < len(p.toks); j++ {
		switch p.toks[j].Type {
		case LPAREN:
			stack = append(stack, RPAREN)
		case LBRACKET:
			stack = append(stack, RBRACKET)
		case LBRACE, TEMPLATE_HEAD:
			stack = append(stack, RBRACE)
		case RPAREN, RBRACKET, RBRACE, TEMPLATE_TAIL:
			want := p.toks[j].Type
			if want == TEMPLATE_TAIL {
				want = RBRACE
			}
			if len(stack) == 0 || stack[len(stack)-1] != want {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return j
			}
		case EOF:
			return -1
		}
	}
	return -1
}

// skipBalanced consumes the bracketed group starting at the current token.
func (p *Parser) skipBalanced() {
	j := p.matching(p.i)
	if j < 0 {
		p.errorAt(p.cur().Pos, "unbalanced %q", p.cur().Literal)
	}
	p.i = j + 1
}

// skipTypeArgs consumes `<...>`.
func (p *Parser) skipTypeArgs() {
	start := p.cur().Pos
	depth := 0
	for {
		switch p.cur().Type {
		case LT:
			depth++
			p.next()
		case GT:
			depth--
			p.next()
			if depth == 0 {
				return
			}
		case LPAREN, LBRACKET, LBRACE:
			p.skipBalanced()
		case EOF, SEMICOLON:
			p.errorAt(start, "unterminated type argument list")
		default:
			p.next()
		}
	}
}

// typeArgsAhead reports whether the `<` at the current token opens type arguments of a
// call, as in `f<T>(x)`.
func (p *Parser) typeArgsAhead() bool {
	depth := 0
	for j := p.i; j < len(p.toks); j++ {
		switch p.toks[j].Type {
		case LT:
			depth++
		case GT:
			depth--
			if depth == 0 {
				return p.toks[j+1].Type == LPAREN
			}
		case LPAREN, LBRACKET, LBRACE:
			k := p.matching(j)
			if k < 0 {
				return false
			}
			j = k
		case IDENT, DOT, COMMA, PIPE, AMPERSAND, STRING, NUMBER, NULL, TRUE, FALSE,
			VOID, TYPEOF, ARROW, COLON, QUESTION:
		default:
			return false
		}
	}
	return false
}

// --- statements ---

func (p *Parser) parseStatements() []ast.Stmt {
	var stmts []ast.Stmt
	var seenDefault bool
	for !p.at(EOF) {
		s := p.parseStatement()
		if s == nil {
			continue
		}
		if _, ok := s.(*ast.ExportDefault); ok {
			if seenDefault {
				p.errorAt(s.Pos(), "A module cannot have multiple default exports")
			}
			seenDefault = true
		}
		stmts = append(stmts, s)
	}
	return stmts
}

func (p *Parser) parseStatement() ast.Stmt {
	tok := p.cur()
	switch tok.Type {
	case SEMICOLON:
		p.next()
		return nil
	case IMPORT:
		if t := p.peek(1).Type; t == LPAREN || t == DOT {
			return p.skipStatement("expression")
		}
		return p.parseImport()
	case EXPORT:
		return p.parseExport()
	case CONST:
		if p.peek(1).Type == ENUM {
			p.next()
			return p.parseEnum(tok.Pos, true, false)
		}
		return p.parseVarDecl(false)
	case LET, VAR:
		return p.parseVarDecl(false)
	case ENUM:
		return p.parseEnum(tok.Pos, false, false)
	case FUNCTION:
		return p.parseFunctionDecl(tok.Pos)
	case CLASS:
		return p.parseClassDecl(tok.Pos)
	case AT:
		p.skipDecorators()
		return p.parseStatement()
	case IDENT:
		nxt := p.peek(1)
		sameLine := !nxt.NewlineBefore
		switch tok.Literal {
		case "type":
			if nxt.Type == IDENT && sameLine {
				return p.skipTypeAlias()
			}
		case "interface":
			if nxt.Type == IDENT && sameLine {
				return p.skipInterface()
			}
		case "namespace", "module":
			if (nxt.Type == IDENT || nxt.Type == STRING) && sameLine {
				return p.skipNamespace()
			}
		case "global":
			if nxt.Type == LBRACE {
				return p.skipNamespace()
			}
		case "declare":
			if nxt.isWord() && sameLine {
				return p.parseDeclare()
			}
		case "abstract":
			if nxt.Type == CLASS && sameLine {
				p.next()
				return p.parseClassDecl(tok.Pos)
			}
		case "async":
			if nxt.Type == FUNCTION && sameLine {
				p.next()
				return p.parseFunctionDecl(tok.Pos)
			}
		}
	}
	return p.skipStatement("statement")
}

// skipStatement consumes one statement the compiler has no use for.
func (p *Parser) skipStatement(what string) ast.Stmt {
	start := p.cur().Pos
	first := true
	for !p.at(EOF) {
		tok := p.cur()
		if !first && tok.NewlineBefore && p.toks[p.i-1].Type.endsOperand() && !continuesStatement(tok) {
			break
		}
		first = false
		switch tok.Type {
		case SEMICOLON:
			p.next()
			return &ast.OpaqueStmt{Span: p.span(start), What: what}
		case LPAREN, LBRACKET, LBRACE, TEMPLATE_HEAD:
			p.skipBalanced()
		case RBRACE, RPAREN, RBRACKET:
			p.unexpected()
		default:
			p.next()
		}
	}
	return &ast.OpaqueStmt{Span: p.span(start), What: what}
}

func continuesStatement(tok Token) bool {
	switch tok.Type {
	case DOT, OPT_CHAIN, LPAREN, LBRACKET, ASSIGN, COMPOUND_ASSIGN, QUESTION, COLON, COMMA,
		ARROW, PLUS, MINUS, ASTERISK, SLASH, PERCENT, EQ, NOT_EQ, STRICT_EQ, STRICT_NEQ,
		AND, OR, COALESCE, PIPE, AMPERSAND, LT, GT, LE, GE:
		return true
	case IDENT:
		switch tok.Literal {
		case "else", "catch", "finally", "while":
			return true
		}
	}
	return false
}

func (p *Parser) skipDecorators() {
	for p.at(AT) {
		p.next()
		p.expect(IDENT)
		for p.at(DOT) {
			p.next()
			p.next()
		}
		if p.at(LPAREN) {
			p.skipBalanced()
		}
	}
}

func (p *Parser) parseBindingIdent() *ast.Ident {
	tok := p.cur()
	if tok.Type != IDENT {
		if tok.Type == EOF {
			p.errorAt(tok.Pos, "expected identifier, found end of file")
		}
		p.errorAt(tok.Pos, "expected identifier, found %q", tok.Literal)
	}
	p.next()
	return &ast.Ident{Span: tokSpan(tok), Name: tok.Literal}
}

func (p *Parser) parseImport() ast.Stmt {
	start := p.next().Pos
	decl := &ast.ImportDecl{}

	if p.at(STRING) {
		decl.Module = p.next().Value
		p.semicolon()
		decl.Span = p.span(start)
		return decl
	}
	if p.atWord("type") {
		nxt := p.peek(1)
		if nxt.Type == LBRACE || nxt.Type == ASTERISK || (nxt.Type == IDENT && !nxt.isContextual("from")) {
			p.next()
			decl.TypeOnly = true
		}
	}
	// import x = require('m')
	if p.at(IDENT) && p.peek(1).Type == ASSIGN {
		return p.skipStatement("import")
	}

	if p.at(IDENT) {
		decl.Default = p.parseBindingIdent()
		if p.at(COMMA) {
			p.next()
		}
	}
	switch {
	case p.at(ASTERISK):
		p.next()
		p.expectWord("as")
		decl.Namespace = p.parseBindingIdent()
	case p.at(LBRACE):
		decl.Named = p.parseImportSpecs()
	}

	p.expectWord("from")
	decl.Module = p.expect(STRING).Value
	if (p.atWord("with") || p.atWord("assert")) && p.peek(1).Type == LBRACE && !p.cur().NewlineBefore {
		p.next()
		p.skipBalanced()
	}
	p.semicolon()
	decl.Span = p.span(start)
	return decl
}

func (p *Parser) parseImportSpecs() []*ast.ImportSpec {
	p.expect(LBRACE)
	var specs []*ast.ImportSpec
	for !p.at(RBRACE) {
		start := p.cur().Pos
		spec := &ast.ImportSpec{}
		if p.atWord("type") {
			nxt := p.peek(1)
			if (nxt.isWord() || nxt.Type == STRING) && !(nxt.isContextual("as") && !p.peek(2).isWord()) {
				p.next()
				spec.TypeOnly = true
			}
		}
		name := p.cur()
		switch {
		case name.isWord():
			spec.Imported = name.Literal
		case name.Type == STRING:
			spec.Imported = name.Value
		default:
			p.unexpected()
		}
		p.next()
		if p.atWord("as") {
			p.next()
			spec.Local = p.parseBindingIdent()
		} else {
			if name.Type != IDENT {
				p.errorAt(name.Pos, "expected 'as' after %q", name.Literal)
			}
			spec.Local = &ast.Ident{Span: tokSpan(name), Name: name.Literal}
		}
		spec.Span = p.span(start)
		specs = append(specs, spec)
		if !p.at(RBRACE) {
			p.expect(COMMA)
		}
	}
	p.expect(RBRACE)
	return specs
}

func (p *Parser) parseExport() ast.Stmt {
	start := p.next().Pos

	switch {
	case p.at(DEFAULT):
		p.next()
		switch {
		case p.at(CLASS), p.atWord("abstract") && p.peek(1).Type == CLASS:
			p.errorAt(p.cur().Pos, "Unsupported syntax kind: ClassDeclaration")
		case p.atWord("interface") && p.peek(1).Type == IDENT:
			return p.skipInterface()
		}
		expr := p.parseAssignment()
		if _, isFunc := expr.(*ast.Function); !isFunc {
			p.semicolon()
		}
		return &ast.ExportDefault{Span: p.span(start), Expr: expr}

	case p.at(ASSIGN):
		// `export = expr` is treated like a default export.
		p.next()
		expr := p.parseAssignment()
		p.semicolon()
		return &ast.ExportDefault{Span: p.span(start), Expr: expr}

	case p.at(ASTERISK):
		p.next()
		en := &ast.ExportNamed{Star: true}
		if p.atWord("as") {
			p.next()
			name := p.next()
			if !name.isWord() && name.Type != STRING {
				p.errorAt(name.Pos, "expected export name")
			}
			en.StarAs = name.Literal
			if name.Type == STRING {
				en.StarAs = name.Value
			}
		}
		p.expectWord("from")
		en.Module = p.expect(STRING).Value
		en.HasFrom = true
		p.semicolon()
		en.Span = p.span(start)
		return en

	case p.at(LBRACE), p.atWord("type") && p.peek(1).Type == LBRACE:
		en := &ast.ExportNamed{}
		if p.atWord("type") {
			p.next()
			en.TypeOnly = true
		}
		en.Specs = p.parseExportSpecs()
		if p.atWord("from") {
			p.next()
			en.Module = p.expect(STRING).Value
			en.HasFrom = true
		}
		p.semicolon()
		en.Span = p.span(start)
		return en

	case p.atWord("as") && p.peek(1).isContextual("namespace"):
		return p.skipStatement("export")
	}

	s := p.parseStatement()
	switch d := s.(type) {
	case *ast.VarDecl:
		d.Exported = true
	case *ast.EnumDecl:
		d.Exported = true
	case *ast.FunctionDecl:
		d.Exported = true
	case *ast.ClassDecl:
		d.Exported = true
	case *ast.OpaqueStmt:
	default:
		p.errorAt(start, "unexpected export")
	}
	return s
}

func (p *Parser) parseExportSpecs() []*ast.ExportSpec {
	p.expect(LBRACE)
	var specs []*ast.ExportSpec
	for !p.at(RBRACE) {
		start := p.cur().Pos
		if p.atWord("type") && (p.peek(1).isWord() || p.peek(1).Type == STRING) && !p.peek(1).isContextual("as") {
			p.next()
		}
		spec := &ast.ExportSpec{Local: p.exportName()}
		spec.Exported = spec.Local
		if p.atWord("as") {
			p.next()
			spec.Exported = p.exportName()
		}
		spec.Span = p.span(start)
		specs = append(specs, spec)
		if !p.at(RBRACE) {
			p.expect(COMMA)
		}
	}
	p.expect(RBRACE)
	return specs
}

func (p *Parser) exportName() string {
	tok := p.cur()
	switch {
	case tok.isWord():
		p.next()
		return tok.Literal
	case tok.Type == STRING:
		p.next()
		return tok.Value
	}
	p.unexpected()
	return ""
}

func (p *Parser) parseDeclare() ast.Stmt {
	start := p.next().Pos
	tok := p.cur()
	switch tok.Type {
	case CONST:
		if p.peek(1).Type == ENUM {
			p.next()
			return p.parseEnum(start, true, true)
		}
		return p.parseVarDecl(true)
	case LET, VAR:
		return p.parseVarDecl(true)
	case ENUM:
		return p.parseEnum(start, false, true)
	case FUNCTION:
		return p.parseFunctionDecl(start)
	case CLASS:
		return p.parseClassDecl(start)
	}
	switch tok.Literal {
	case "namespace", "module", "global":
		return p.skipNamespace()
	case "type":
		return p.skipTypeAlias()
	case "interface":
		return p.skipInterface()
	case "abstract":
		p.next()
		return p.parseClassDecl(start)
	}
	return p.skipStatement("declare")
}

func (p *Parser) parseVarDecl(declare bool) ast.Stmt {
	kw := p.next()
	decl := &ast.VarDecl{Kind: ast.VarKind(kw.Literal), Declare: declare}
	for {
		decl.Declarators = append(decl.Declarators, p.parseDeclarator())
		if !p.at(COMMA) {
			break
		}
		p.next()
	}
	p.semicolon()
	decl.Span = p.span(kw.Pos)
	return decl
}

func (p *Parser) parseDeclarator() *ast.Declarator {
	start := p.cur().Pos
	d := &ast.Declarator{}
	switch {
	case p.at(LBRACE):
		d.Pattern = p.parseObjectPattern()
	case p.at(LBRACKET):
		p.errorAt(start, "array destructuring is not supported")
	default:
		d.Name = p.parseBindingIdent()
	}
	if p.at(BANG) {
		p.next()
	}
	if p.at(COLON) {
		p.next()
		d.Type = p.parseType()
	}
	if p.at(ASSIGN) {
		p.next()
		d.Init = p.parseAssignment()
	}
	d.Span = p.span(start)
	return d
}

func (p *Parser) parseObjectPattern() *ast.ObjectPattern {
	start := p.expect(LBRACE).Pos
	pat := &ast.ObjectPattern{}
	for !p.at(RBRACE) {
		elStart := p.cur().Pos
		el := &ast.BindingElement{}
		if p.at(SPREAD) {
			p.next()
			el.Rest = true
			el.Name = p.parseBindingIdent()
			el.Key = el.Name.Name
		} else {
			key := p.cur()
			switch {
			case key.isWord():
				el.Key = key.Literal
			case key.Type == STRING:
				el.Key = key.Value
			case key.Type == NUMBER:
				el.Key = value.FormatNumber(value.ParseNumber(key.Value))
			case key.Type == LBRACKET:
				p.errorAt(key.Pos, "computed keys in destructuring patterns are not supported")
			default:
				p.unexpected()
			}
			p.next()
			if p.at(COLON) {
				p.next()
				if p.at(LBRACE) || p.at(LBRACKET) {
					p.errorAt(p.cur().Pos, "nested destructuring patterns are not supported")
				}
				el.Name = p.parseBindingIdent()
			} else {
				if key.Type != IDENT {
					p.errorAt(p.cur().Pos, "expected ':' after %q", key.Literal)
				}
				el.Name = &ast.Ident{Span: tokSpan(key), Name: key.Literal}
			}
			if p.at(ASSIGN) {
				p.next()
				el.Default = p.parseAssignment()
			}
		}
		el.Span = p.span(elStart)
		pat.Elements = append(pat.Elements, el)
		if !p.at(RBRACE) {
			if el.Rest {
				p.errorAt(p.cur().Pos, "a rest element must be last in a destructuring pattern")
			}
			p.expect(COMMA)
		}
	}
	p.expect(RBRACE)
	pat.Span = p.span(start)
	return pat
}

func (p *Parser) parseEnum(start ast.Pos, isConst, declare bool) ast.Stmt {
	p.expect(ENUM)
	decl := &ast.EnumDecl{Name: p.parseBindingIdent(), Const: isConst, Declare: declare}
	p.expect(LBRACE)
	for !p.at(RBRACE) {
		tok := p.cur()
		m := &ast.EnumMember{}
		switch {
		case tok.isWord():
			m.Name = tok.Literal
		case tok.Type == STRING:
			m.Name = tok.Value
		case tok.Type == LBRACKET:
			p.errorAt(tok.Pos, "computed enum member names are not supported")
		default:
			p.unexpected()
		}
		p.next()
		if p.at(ASSIGN) {
			p.next()
			m.Init = p.parseAssignment()
		}
		m.Span = p.span(tok.Pos)
		decl.Members = append(decl.Members, m)
		if !p.at(RBRACE) {
			p.expect(COMMA)
		}
	}
	p.expect(RBRACE)
	decl.Span = p.span(start)
	return decl
}

func (p *Parser) parseFunctionDecl(start ast.Pos) ast.Stmt {
	p.expect(FUNCTION)
	if p.at(ASTERISK) {
		p.next()
	}
	decl := &ast.FunctionDecl{}
	if p.at(IDENT) {
		decl.Name = p.parseBindingIdent()
	}
	if p.at(LT) {
		p.skipTypeArgs()
	}
	if !p.at(LPAREN) {
		p.unexpected()
	}
	p.skipBalanced()
	if p.at(COLON) {
		p.next()
		p.parseType()
	}
	if p.at(LBRACE) {
		p.skipBalanced()
	} else {
		p.semicolon()
	}
	decl.Span = p.span(start)
	return decl
}

func (p *Parser) parseClassDecl(start ast.Pos) ast.Stmt {
	p.expect(CLASS)
	decl := &ast.ClassDecl{}
	if p.at(IDENT) && !p.atWord("extends") && !p.atWord("implements") {
		decl.Name = p.parseBindingIdent()
	}
	p.skipToBody()
	decl.Span = p.span(start)
	return decl
}

// skipToBody skips heritage clauses and type parameters up to and including the
// following `{ ... }` body.
func (p *Parser) skipToBody() {
	for !p.at(LBRACE) {
		switch p.cur().Type {
		case EOF:
			p.unexpected()
		case LT:
			p.skipTypeArgs()
		case LPAREN, LBRACKET:
			p.skipBalanced()
		default:
			p.next()
		}
	}
	p.skipBalanced()
}

func (p *Parser) skipTypeAlias() ast.Stmt {
	start := p.next().Pos
	p.parseBindingIdent()
	if p.at(LT) {
		p.skipTypeArgs()
	}
	p.expect(ASSIGN)
	p.parseType()
	p.semicolon()
	return &ast.OpaqueStmt{Span: p.span(start), What: "type"}
}

func (p *Parser) skipInterface() ast.Stmt {
	start := p.next().Pos
	p.parseBindingIdent()
	p.skipToBody()
	return &ast.OpaqueStmt{Span: p.span(start), What: "interface"}
}

func (p *Parser) skipNamespace() ast.Stmt {
	start := p.cur().Pos
	if !p.atWord("global") {
		p.next()
		p.next()
		for p.at(DOT) {
			p.next()
			p.next()
		}
	} else {
		p.next()
	}
	if p.at(LBRACE) {
		p.skipBalanced()
	} else {
		p.semicolon()
	}
	return &ast.OpaqueStmt{Span: p.span(start), What: "namespace"}
}

// --- expressions ---

const (
	precLowest = iota
	precAssign
	precConditional
	precOr
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precExponent
)

var binaryPrec = map[TokenType]int{
	OR:         precOr,
	COALESCE:   precOr,
	AND:        precAnd,
	PIPE:       precBitOr,
	CARET:      precBitXor,
	AMPERSAND:  precBitAnd,
	EQ:         precEquality,
	NOT_EQ:     precEquality,
	STRICT_EQ:  precEquality,
	STRICT_NEQ: precEquality,
	LT:         precRelational,
	GT:         precRelational,
	LE:         precRelational,
	GE:         precRelational,
	IN:         precRelational,
	INSTANCEOF: precRelational,
	SHL:        precShift,
	PLUS:       precAdditive,
	MINUS:      precAdditive,
	ASTERISK:   precMultiplicative,
	SLASH:      precMultiplicative,
	PERCENT:    precMultiplicative,
	EXPONENT:   precExponent,
}

// ParseExpression parses a standalone expression. It is used by tests and tooling.
func ParseExpression(src string) (e ast.Expr, err error) {
	toks, lerr := Tokenize(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &Parser{file: "<expr>", toks: toks}
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			e, err = nil, b.err
		}
	}()
	e = p.parseAssignment()
	if !p.at(EOF) {
		p.unexpected()
	}
	return e, nil
}

func (p *Parser) parseAssignment() ast.Expr {
	return p.parseExpr(precAssign)
}

func (p *Parser) parseExpr(min int) ast.Expr {
	start := p.cur().Pos
	left := p.parseUnary()
	for {
		tok := p.cur()

		switch {
		case (tok.Type == ASSIGN || tok.Type == COMPOUND_ASSIGN) && min <= precAssign:
			p.next()
			right := p.parseExpr(precAssign)
			left = &ast.Binary{Span: p.span(start), Op: tok.Literal, Left: left, Right: right}
			continue

		case tok.Type == QUESTION && min <= precConditional:
			p.next()
			then := p.parseAssignment()
			p.expect(COLON)
			els := p.parseAssignment()
			left = &ast.Conditional{Span: p.span(start), Cond: left, Then: then, Else: els}
			continue

		case (tok.isContextual("as") || tok.isContextual("satisfies")) && !tok.NewlineBefore && min <= precRelational:
			p.next()
			if tok.Literal == "as" && p.at(CONST) {
				p.next()
				left = &ast.As{Span: p.span(start), Expr: left, Type: &ast.TypeOther{Span: p.span(start)}, Const: true}
				continue
			}
			typ := p.parseType()
			if tok.Literal == "as" {
				left = &ast.As{Span: p.span(start), Expr: left, Type: typ}
			} else {
				left = &ast.Satisfies{Span: p.span(start), Expr: left, Type: typ}
			}
			continue

		case tok.Type == GT && p.peek(1).Type == GT && p.peek(1).Pos.Offset == tok.End.Offset && min <= precShift:
			// `>>` and `>>>` are lexed as separate `>` so nested type arguments close.
			op := ">>"
			p.next()
			p.next()
			if p.at(GT) && p.cur().Pos.Offset == p.toks[p.i-1].End.Offset {
				op = ">>>"
				p.next()
			}
			right := p.parseExpr(precShift + 1)
			left = &ast.Binary{Span: p.span(start), Op: op, Left: left, Right: right}
			continue
		}

		prec, ok := binaryPrec[tok.Type]
		if !ok || prec < min {
			return left
		}
		p.next()
		next := prec + 1
		if tok.Type == EXPONENT {
			next = prec
		}
		right := p.parseExpr(next)
		left = &ast.Binary{Span: p.span(start), Op: tok.Literal, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	tok := p.cur()
	switch tok.Type {
	case PLUS, MINUS, BANG, TILDE, TYPEOF, VOID, DELETE, INC, DEC:
		p.next()
		operand := p.parseUnary()
		return &ast.Unary{Span: p.span(tok.Pos), Op: tok.Literal, Operand: operand}
	case LT:
		// `<T>expr` type assertion, or type parameters of a generic arrow function.
		p.skipTypeArgs()
		inner := p.parseUnary()
		if fn, ok := inner.(*ast.Function); ok {
			return fn
		}
		return &ast.As{Span: p.span(tok.Pos), Expr: inner, Type: &ast.TypeOther{Span: tokSpan(tok)}}
	}
	return p.parsePostfix(tok.Pos, p.parsePrimary())
}

func (p *Parser) parsePostfix(start ast.Pos, expr ast.Expr) ast.Expr {
	for {
		tok := p.cur()
		switch tok.Type {
		case DOT:
			p.next()
			name := p.cur()
			if !name.isWord() {
				p.errorAt(name.Pos, "expected property name, found %q", name.Literal)
			}
			p.next()
			expr = &ast.PropertyAccess{
				Span:   p.span(start),
				Object: expr,
				Name:   &ast.Ident{Span: tokSpan(name), Name: name.Literal},
			}
		case OPT_CHAIN:
			p.errorAt(tok.Pos, "optional chaining is not supported")
		case LBRACKET:
			p.next()
			index := p.parseAssignment()
			p.expect(RBRACKET)
			expr = &ast.ElementAccess{Span: p.span(start), Object: expr, Index: index}
		case LPAREN:
			args := p.parseArguments()
			expr = &ast.Call{Span: p.span(start), Callee: expr, Args: args}
		case LT:
			if !p.typeArgsAhead() {
				return expr
			}
			p.skipTypeArgs()
		case BANG:
			if tok.NewlineBefore {
				return expr
			}
			p.next()
			expr = &ast.NonNull{Span: p.span(start), Expr: expr}
		case INC, DEC:
			if tok.NewlineBefore {
				return expr
			}
			p.next()
			expr = &ast.Unary{Span: p.span(start), Op: tok.Literal, Operand: expr}
		case TEMPLATE, TEMPLATE_HEAD:
			if tok.NewlineBefore {
				return expr
			}
			p.errorAt(tok.Pos, "tagged templates are not supported")
		default:
			return expr
		}
	}
}

func (p *Parser) parseArguments() []ast.Expr {
	p.expect(LPAREN)
	var args []ast.Expr
	for !p.at(RPAREN) {
		if p.at(SPREAD) {
			start := p.next().Pos
			inner := p.parseAssignment()
			args = append(args, &ast.SpreadElement{Span: p.span(start), Expr: inner})
		} else {
			args = append(args, p.parseAssignment())
		}
		if !p.at(RPAREN) {
			p.expect(COMMA)
		}
	}
	p.expect(RPAREN)
	return args
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur()
	switch tok.Type {
	case NUMBER:
		p.next()
		return &ast.NumberLit{Span: tokSpan(tok), Raw: tok.Literal, Value: value.ParseNumber(tok.Value)}
	case STRING:
		p.next()
		return &ast.StringLit{Span: tokSpan(tok), Value: tok.Value}
	case TEMPLATE:
		p.next()
		return &ast.TemplateLit{Span: tokSpan(tok), Head: tok.Value}
	case TEMPLATE_HEAD:
		return p.parseTemplate()
	case TRUE, FALSE:
		p.next()
		return &ast.BoolLit{Span: tokSpan(tok), Value: tok.Type == TRUE}
	case NULL:
		p.next()
		return &ast.NullLit{Span: tokSpan(tok)}
	case THIS:
		p.next()
		return &ast.Ident{Span: tokSpan(tok), Name: tok.Literal}
	case REGEX:
		p.next()
		return &ast.RegExpLit{
			Span:    tokSpan(tok),
			Pattern: tok.Value,
			Flags:   tok.Literal[strings.LastIndex(tok.Literal, "/")+1:],
		}
	case IDENT:
		if p.arrowAhead() {
			return p.parseArrow()
		}
		p.next()
		return &ast.Ident{Span: tokSpan(tok), Name: tok.Literal}
	case LPAREN:
		if p.arrowAhead() {
			return p.parseArrow()
		}
		p.next()
		inner := p.parseAssignment()
		if p.at(COMMA) {
			p.errorAt(p.cur().Pos, "comma expressions are not supported")
		}
		p.expect(RPAREN)
		return &ast.Paren{Span: p.span(tok.Pos), Expr: inner}
	case LBRACKET:
		return p.parseArrayLit()
	case LBRACE:
		return p.parseObjectLit()
	case FUNCTION:
		return p.parseFunctionExpr()
	case NEW:
		return p.parseNew()
	case CLASS:
		p.errorAt(tok.Pos, "Unsupported syntax kind: ClassExpression")
	}
	p.unexpected()
	return nil
}

func (p *Parser) parseTemplate() ast.Expr {
	head := p.next()
	lit := &ast.TemplateLit{Head: head.Value}
	for {
		expr := p.parseAssignment()
		tok := p.cur()
		if tok.Type != TEMPLATE_MIDDLE && tok.Type != TEMPLATE_TAIL {
			p.errorAt(tok.Pos, "expected '}' in template literal")
		}
		p.next()
		lit.Spans = append(lit.Spans, &ast.TemplateSpan{Expr: expr, Tail: tok.Value})
		if tok.Type == TEMPLATE_TAIL {
			break
		}
	}
	lit.Span = p.span(head.Pos)
	return lit
}

// arrowAhead reports whether an arrow function starts at the current token.
func (p *Parser) arrowAhead() bool {
	tok := p.cur()
	i := p.i
	if tok.isContextual("async") && !p.peek(1).NewlineBefore && (p.peek(1).Type == IDENT || p.peek(1).Type == LPAREN) {
		if p.peek(1).Type == IDENT {
			return p.peek(2).Type == ARROW
		}
		i++
	}
	switch p.toks[i].Type {
	case IDENT:
		return p.toks[i+1].Type == ARROW && !p.toks[i+1].NewlineBefore
	case LPAREN:
		j := p.matching(i)
		if j < 0 {
			return false
		}
		switch p.toks[j+1].Type {
		case ARROW:
			return true
		case COLON:
			return p.returnTypeThenArrow(j + 2)
		}
	}
	return false
}

// returnTypeThenArrow scans a return type annotation starting at index i and reports
// whether it is followed by `=>`.
func (p *Parser) returnTypeThenArrow(i int) bool {
	angle := 0
	for j := i; j < len(p.toks); j++ {
		switch p.toks[j].Type {
		case ARROW:
			if angle == 0 {
				return true
			}
		case LT:
			angle++
		case GT:
			angle--
		case LPAREN, LBRACKET, LBRACE:
			k := p.matching(j)
			if k < 0 {
				return false
			}
			j = k
		case COMMA:
			if angle == 0 {
				return false
			}
		case SEMICOLON, RPAREN, RBRACKET, RBRACE, EOF, ASSIGN, QUESTION, COLON:
			return false
		}
	}
	return false
}

func (p *Parser) parseArrow() ast.Expr {
	start := p.cur().Pos
	fn := &ast.Function{Arrow: true}
	if p.atWord("async") && p.peek(1).Type != ARROW {
		p.next()
	}
	if p.at(IDENT) {
		name := p.parseBindingIdent()
		fn.Params = []*ast.Param{{Span: name.Span, Name: name}}
	} else {
		fn.Params = p.parseParams()
		if p.at(COLON) {
			p.next()
			p.parseType()
		}
	}
	p.expect(ARROW)
	if p.at(LBRACE) {
		fn.Block = p.parseBlock()
	} else {
		fn.Body = p.parseAssignment()
	}
	fn.Span = p.span(start)
	return fn
}

func (p *Parser) parseFunctionExpr() ast.Expr {
	start := p.cur().Pos
	if p.atWord("async") {
		p.next()
	}
	p.expect(FUNCTION)
	if p.at(ASTERISK) {
		p.next()
	}
	if p.at(IDENT) {
		p.next()
	}
	if p.at(LT) {
		p.skipTypeArgs()
	}
	fn := &ast.Function{Params: p.parseParams()}
	if p.at(COLON) {
		p.next()
		p.parseType()
	}
	fn.Block = p.parseBlock()
	fn.Span = p.span(start)
	return fn
}

func (p *Parser) parseParams() []*ast.Param {
	p.expect(LPAREN)
	var params []*ast.Param
	for !p.at(RPAREN) {
		p.skipDecorators()
		start := p.cur().Pos
		for p.cur().Type == IDENT && isParamModifier(p.cur().Literal) && p.peek(1).Type == IDENT {
			p.next()
		}
		param := &ast.Param{}
		if p.at(SPREAD) {
			p.next()
			param.Rest = true
		}
		switch {
		case p.at(LBRACE), p.at(LBRACKET):
			p.skipBalanced()
			param.Pattern = true
		case p.at(THIS):
			tok := p.next()
			param.Name = &ast.Ident{Span: tokSpan(tok), Name: tok.Literal}
		default:
			param.Name = p.parseBindingIdent()
		}
		if p.at(QUESTION) {
			p.next()
		}
		if p.at(COLON) {
			p.next()
			param.Type = p.parseType()
		}
		if p.at(ASSIGN) {
			p.next()
			param.Default = p.parseAssignment()
		}
		param.Span = p.span(start)
		params = append(params, param)
		if !p.at(RPAREN) {
			p.expect(COMMA)
		}
	}
	p.expect(RPAREN)
	return params
}

func isParamModifier(w string) bool {
	switch w {
	case "public", "private", "protected", "readonly", "override":
		return true
	}
	return false
}

// parseBlock parses a function body. Statements other than returns, declarations and
// expression statements are kept opaque.
func (p *Parser) parseBlock() *ast.Block {
	start := p.expect(LBRACE).Pos
	block := &ast.Block{}
	for !p.at(RBRACE) {
		tok := p.cur()
		switch {
		case tok.Type == EOF:
			p.unexpected()
		case tok.Type == SEMICOLON:
			p.next()
		case tok.Type == RETURN:
			p.next()
			ret := &ast.ReturnStmt{}
			if !p.at(SEMICOLON) && !p.at(RBRACE) && !p.cur().NewlineBefore {
				ret.Expr = p.parseAssignment()
			}
			p.semicolon()
			ret.Span = p.span(tok.Pos)
			block.Stmts = append(block.Stmts, ret)
		case tok.Type == CONST || tok.Type == LET || tok.Type == VAR:
			block.Stmts = append(block.Stmts, p.parseVarDecl(false))
		case tok.Type == LBRACE:
			p.skipBalanced()
			block.Stmts = append(block.Stmts, &ast.OpaqueStmt{Span: p.span(tok.Pos), What: "block"})
		case tok.Type == IDENT && isStatementKeyword(tok.Literal), tok.Type == FUNCTION, tok.Type == CLASS:
			block.Stmts = append(block.Stmts, p.skipStatement(tok.Literal))
		default:
			expr := p.parseAssignment()
			p.semicolon()
			block.Stmts = append(block.Stmts, &ast.ExprStmt{Span: p.span(tok.Pos), Expr: expr})
		}
	}
	p.expect(RBRACE)
	block.Span = p.span(start)
	return block
}

func isStatementKeyword(w string) bool {
	switch w {
	case "if", "for", "while", "do", "switch", "try", "throw", "break", "continue", "debugger", "with":
		return true
	}
	return false
}

func (p *Parser) parseNew() ast.Expr {
	start := p.expect(NEW).Pos
	if p.at(DOT) {
		p.errorAt(start, "Unsupported syntax kind: MetaProperty")
	}
	var callee ast.Expr
	if p.at(NEW) {
		callee = p.parseNew()
	} else {
		callee = p.parsePrimary()
	}
	for {
		if p.at(DOT) {
			p.next()
			name := p.cur()
			if !name.isWord() {
				p.errorAt(name.Pos, "expected property name, found %q", name.Literal)
			}
			p.next()
			callee = &ast.PropertyAccess{Span: p.span(start), Object: callee, Name: &ast.Ident{Span: tokSpan(name), Name: name.Literal}}
			continue
		}
		break
	}
	if p.at(LT) && p.typeArgsAhead() {
		p.skipTypeArgs()
	}
	var args []ast.Expr
	if p.at(LPAREN) {
		args = p.parseArguments()
	}
	return &ast.New{Span: p.span(start), Callee: callee, Args: args}
}

func (p *Parser) parseArrayLit() ast.Expr {
	start := p.expect(LBRACKET).Pos
	arr := &ast.ArrayLit{}
	for !p.at(RBRACKET) {
		switch {
		case p.at(COMMA):
			p.errorAt(p.cur().Pos, "array holes are not supported")
		case p.at(SPREAD):
			spreadStart := p.next().Pos
			inner := p.parseAssignment()
			arr.Elements = append(arr.Elements, &ast.SpreadElement{Span: p.span(spreadStart), Expr: inner})
		default:
			arr.Elements = append(arr.Elements, p.parseAssignment())
		}
		if !p.at(RBRACKET) {
			p.expect(COMMA)
		}
	}
	p.expect(RBRACKET)
	arr.Span = p.span(start)
	return arr
}

func (p *Parser) parseObjectLit() ast.Expr {
	start := p.expect(LBRACE).Pos
	obj := &ast.ObjectLit{}
	for !p.at(RBRACE) {
		obj.Props = append(obj.Props, p.parseProperty())
		if !p.at(RBRACE) {
			p.expect(COMMA)
		}
	}
	p.expect(RBRACE)
	obj.Span = p.span(start)
	return obj
}

func (p *Parser) parseProperty() ast.Property {
	start := p.cur().Pos
	if p.at(SPREAD) {
		p.next()
		inner := p.parseAssignment()
		return &ast.SpreadProperty{Span: p.span(start), Expr: inner}
	}

	// Methods, accessors and generators all evaluate to functions.
	method := false
	if p.at(ASTERISK) {
		p.next()
		method = true
	} else if (p.atWord("get") || p.atWord("set") || p.atWord("async")) && startsPropertyKey(p.peek(1)) {
		p.next()
		if p.at(ASTERISK) {
			p.next()
		}
		method = true
	}

	keyTok := p.cur()
	key := p.parsePropertyKey()
	switch {
	case method || p.at(LPAREN) || p.at(LT):
		fn := p.parseMethod(start)
		return &ast.PropertyAssignment{Span: p.span(start), Key: key, Value: fn}
	case p.at(COLON):
		p.next()
		val := p.parseAssignment()
		return &ast.PropertyAssignment{Span: p.span(start), Key: key, Value: val}
	case keyTok.Type == IDENT && (p.at(COMMA) || p.at(RBRACE)):
		return &ast.ShorthandProperty{Span: p.span(start), Name: &ast.Ident{Span: tokSpan(keyTok), Name: keyTok.Literal}}
	case p.at(ASSIGN):
		p.errorAt(p.cur().Pos, "shorthand property initializers are only valid in destructuring patterns")
	}
	p.unexpected()
	return nil
}

func startsPropertyKey(t Token) bool {
	switch t.Type {
	case STRING, NUMBER, LBRACKET, ASTERISK:
		return true
	}
	return t.isWord()
}

func (p *Parser) parsePropertyKey() ast.PropertyKey {
	tok := p.cur()
	switch {
	case tok.isWord():
		p.next()
		return ast.PropertyKey{Span: tokSpan(tok), Kind: ast.KeyIdent, Name: tok.Literal}
	case tok.Type == STRING:
		p.next()
		return ast.PropertyKey{Span: tokSpan(tok), Kind: ast.KeyString, Name: tok.Value}
	case tok.Type == NUMBER:
		p.next()
		return ast.PropertyKey{Span: tokSpan(tok), Kind: ast.KeyNumber, Name: value.FormatNumber(value.ParseNumber(tok.Value))}
	case tok.Type == LBRACKET:
		p.next()
		expr := p.parseAssignment()
		p.expect(RBRACKET)
		return ast.PropertyKey{Span: p.span(tok.Pos), Kind: ast.KeyComputed, Expr: expr}
	case tok.Type == HASH:
		p.errorAt(tok.Pos, "private names are not supported")
	}
	p.unexpected()
	return ast.PropertyKey{}
}

func (p *Parser) parseMethod(start ast.Pos) *ast.Function {
	if p.at(LT) {
		p.skipTypeArgs()
	}
	fn := &ast.Function{Params: p.parseParams()}
	if p.at(COLON) {
		p.next()
		p.parseType()
	}
	bodyStart := p.cur().Pos
	if !p.at(LBRACE) {
		p.unexpected()
	}
	p.skipBalanced()
	fn.Block = &ast.Block{Span: p.span(bodyStart)}
	fn.Span = p.span(start)
	return fn
}
