package frontend

import "github.com/confts/confts/pkg/ast"

var keywordTypes = map[string]bool{
	"undefined": true,
	"never":     true,
	"any":       true,
	"unknown":   true,
	"string":    true,
	"number":    true,
	"boolean":   true,
	"object":    true,
	"symbol":    true,
	"bigint":    true,
}

// parseType parses a type annotation. Only unions, parentheses and keyword types are
// kept; everything else is skipped and becomes TypeOther.
func (p *Parser) parseType() ast.TypeNode {
	start := p.cur().Pos
	if p.at(PIPE) || p.at(AMPERSAND) {
		p.next()
	}
	t := p.parseIntersectionType()
	if p.at(PIPE) {
		u := &ast.TypeUnion{Types: []ast.TypeNode{t}}
		for p.at(PIPE) {
			p.next()
			u.Types = append(u.Types, p.parseIntersectionType())
		}
		u.Span = p.span(start)
		t = u
	}
	if p.atWord("extends") && !p.cur().NewlineBefore {
		p.next()
		p.parseIntersectionType()
		p.expect(QUESTION)
		p.parseType()
		p.expect(COLON)
		p.parseType()
		return &ast.TypeOther{Span: p.span(start)}
	}
	return t
}

func (p *Parser) parseIntersectionType() ast.TypeNode {
	start := p.cur().Pos
	t := p.parsePostfixType()
	if !p.at(AMPERSAND) {
		return t
	}
	for p.at(AMPERSAND) {
		p.next()
		p.parsePostfixType()
	}
	return &ast.TypeOther{Span: p.span(start)}
}

func (p *Parser) parsePostfixType() ast.TypeNode {
	start := p.cur().Pos
	t := p.parsePrimaryType()
	for p.at(LBRACKET) && !p.cur().NewlineBefore {
		if p.peek(1).Type == RBRACKET {
			p.next()
			p.next()
		} else {
			p.skipBalanced()
		}
		t = &ast.TypeOther{Span: p.span(start)}
	}
	return t
}

func (p *Parser) parsePrimaryType() ast.TypeNode {
	tok := p.cur()
	switch tok.Type {
	case NULL:
		p.next()
		return &ast.TypeKeyword{Span: tokSpan(tok), Name: "null"}
	case VOID:
		p.next()
		return &ast.TypeKeyword{Span: tokSpan(tok), Name: "void"}
	case STRING, NUMBER, TRUE, FALSE, TEMPLATE:
		p.next()
		return &ast.TypeOther{Span: tokSpan(tok)}
	case TEMPLATE_HEAD:
		p.next()
		for {
			p.parseType()
			end := p.cur()
			if end.Type != TEMPLATE_MIDDLE && end.Type != TEMPLATE_TAIL {
				p.errorAt(end.Pos, "expected '}' in template literal type")
			}
			p.next()
			if end.Type == TEMPLATE_TAIL {
				break
			}
		}
		return &ast.TypeOther{Span: p.span(tok.Pos)}
	case MINUS:
		p.next()
		p.expect(NUMBER)
		return &ast.TypeOther{Span: p.span(tok.Pos)}
	case THIS:
		p.next()
		if p.atWord("is") && !p.cur().NewlineBefore {
			p.next()
			p.parseType()
		}
		return &ast.TypeOther{Span: p.span(tok.Pos)}
	case TYPEOF:
		p.next()
		p.next()
		for p.at(DOT) {
			p.next()
			p.next()
		}
		if p.at(LT) && !p.cur().NewlineBefore {
			p.skipTypeArgs()
		}
		return &ast.TypeOther{Span: p.span(tok.Pos)}
	case LBRACE, LBRACKET:
		p.skipBalanced()
		return &ast.TypeOther{Span: p.span(tok.Pos)}
	case LT:
		p.skipTypeArgs()
		return p.functionType(tok.Pos)
	case NEW:
		p.next()
		if p.at(LT) {
			p.skipTypeArgs()
		}
		return p.functionType(tok.Pos)
	case LPAREN:
		if j := p.matching(p.i); j >= 0 && p.toks[j+1].Type == ARROW {
			return p.functionType(tok.Pos)
		}
		p.next()
		inner := p.parseType()
		p.expect(RPAREN)
		return &ast.TypeParen{Span: p.span(tok.Pos), Type: inner}
	case IDENT:
		switch tok.Literal {
		case "keyof", "unique", "readonly", "infer":
			if p.peek(1).Type != DOT && !p.peek(1).NewlineBefore {
				p.next()
				p.parsePostfixType()
				return &ast.TypeOther{Span: p.span(tok.Pos)}
			}
		case "asserts":
			if p.peek(1).Type == IDENT || p.peek(1).Type == THIS {
				p.next()
				p.next()
				if p.atWord("is") {
					p.next()
					p.parseType()
				}
				return &ast.TypeOther{Span: p.span(tok.Pos)}
			}
		case "abstract":
			if p.peek(1).Type == NEW {
				p.next()
				return p.parsePrimaryType()
			}
		}
		if keywordTypes[tok.Literal] && p.peek(1).Type != DOT {
			p.next()
			return &ast.TypeKeyword{Span: tokSpan(tok), Name: tok.Literal}
		}
		p.next()
		for p.at(DOT) {
			p.next()
			p.next()
		}
		if p.at(LT) && !p.cur().NewlineBefore {
			p.skipTypeArgs()
		}
		if p.atWord("is") && !p.cur().NewlineBefore {
			p.next()
			p.parseType()
		}
		return &ast.TypeOther{Span: p.span(tok.Pos)}
	}
	p.errorAt(tok.Pos, "expected type, found %q", tok.Literal)
	return nil
}

// functionType skips `(params) => T` starting at the parameter list.
func (p *Parser) functionType(start ast.Pos) ast.TypeNode {
	if !p.at(LPAREN) {
		p.unexpected()
	}
	p.skipBalanced()
	p.expect(ARROW)
	p.parseType()
	return &ast.TypeOther{Span: p.span(start)}
}
