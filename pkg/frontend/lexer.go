package frontend

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/confts/confts/pkg/ast"
)

// Lexer turns source text into tokens.
//
// Template literals need a little state: every open `${` pushes a brace counter so the
// lexer knows which `}` resumes the template text.
type Lexer struct {
	src  string
	pos  int
	line int
	col  int

	prev  TokenType
	templ []int
}

// lexError is converted into a SyntaxError by the parser, which knows the file name.
type lexError struct {
	pos ast.Pos
	msg string
}

func (e *lexError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.pos.Line, e.pos.Column, e.msg)
}

func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

// Tokenize lexes the whole input. The last token is always EOF.
func Tokenize(src string) ([]Token, error) {
	l := NewLexer(src)
	var toks []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) position() ast.Pos {
	return ast.Pos{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) errorf(pos ast.Pos, format string, args ...interface{}) error {
	return &lexError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

func (l *Lexer) peek() rune {
	return l.peekAt(0)
}

// peekAt returns the rune n runes ahead, or -1 at end of input.
func (l *Lexer) peekAt(n int) rune {
	p := l.pos
	for i := 0; ; i++ {
		if p >= len(l.src) {
			return -1
		}
		r, size := utf8.DecodeRuneInString(l.src[p:])
		if i == n {
			return r
		}
		p += size
	}
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return -1
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	switch {
	case r == '\n' || r == '\u2028' || r == '\u2029':
		l.line++
		l.col = 1
	case r == '\r' && l.peek() != '\n':
		l.line++
		l.col = 1
	default:
		l.col++
	}
	return r
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\v', '\f', '\u00a0', '\ufeff':
		return true
	}
	return r > 0x7f && unicode.Is(unicode.Zs, r)
}

func isIdentStart(r rune) bool {
	return r == '$' || r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '\u200c' || r == '\u200d' ||
		unicode.In(r, unicode.Mn, unicode.Mc, unicode.Pc)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// skipTrivia skips whitespace and comments and reports whether a line break was seen.
func (l *Lexer) skipTrivia() (bool, error) {
	newline := false
	if l.pos == 0 && strings.HasPrefix(l.src, "#!") {
		for l.pos < len(l.src) && !isLineTerminator(l.peek()) {
			l.advance()
		}
	}
	for l.pos < len(l.src) {
		r := l.peek()
		switch {
		case isLineTerminator(r):
			newline = true
			l.advance()
		case isWhitespace(r):
			l.advance()
		case r == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.src) && !isLineTerminator(l.peek()) {
				l.advance()
			}
		case r == '/' && l.peekAt(1) == '*':
			start := l.position()
			l.advance()
			l.advance()
			closed := false
			for l.pos < len(l.src) {
				if l.peek() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				if isLineTerminator(l.advance()) {
					newline = true
				}
			}
			if !closed {
				return newline, l.errorf(start, "unterminated comment")
			}
		default:
			return newline, nil
		}
	}
	return newline, nil
}

// NextToken returns the next token in the input.
func (l *Lexer) NextToken() (Token, error) {
	newline, err := l.skipTrivia()
	if err != nil {
		return Token{}, err
	}
	start := l.position()
	tok := Token{Pos: start, NewlineBefore: newline}
	if l.pos >= len(l.src) {
		tok.Type = EOF
		tok.End = start
		return tok, nil
	}

	r := l.peek()
	switch {
	case isIdentStart(r):
		for l.pos < len(l.src) && isIdentPart(l.peek()) {
			l.advance()
		}
		tok.Type = LookupIdent(l.src[start.Offset:l.pos])
	case isDigit(r) || (r == '.' && isDigit(l.peekAt(1))):
		tok.Type = NUMBER
		tok.Value, err = l.readNumber(start)
	case r == '"' || r == '\'':
		tok.Type = STRING
		tok.Value, err = l.readString(start)
	case r == '`':
		l.advance()
		tok.Type, tok.Value, err = l.readTemplate(start, TEMPLATE, TEMPLATE_HEAD)
	case r == '}' && len(l.templ) > 0 && l.templ[len(l.templ)-1] == 0:
		l.templ = l.templ[:len(l.templ)-1]
		l.advance()
		tok.Type, tok.Value, err = l.readTemplate(start, TEMPLATE_TAIL, TEMPLATE_MIDDLE)
	case r == '/' && !l.prev.endsOperand():
		tok.Type = REGEX
		tok.Value, err = l.readRegex(start)
	default:
		tok.Type, err = l.readPunct(start)
	}
	if err != nil {
		return Token{}, err
	}
	tok.End = l.position()
	tok.Literal = l.src[start.Offset:l.pos]
	l.prev = tok.Type
	return tok, nil
}

var punctuators = []struct {
	lit string
	typ TokenType
}{
	{"...", SPREAD},
	{"===", STRICT_EQ},
	{"!==", STRICT_NEQ},
	{"**=", COMPOUND_ASSIGN},
	{"<<=", COMPOUND_ASSIGN},
	{"&&=", COMPOUND_ASSIGN},
	{"||=", COMPOUND_ASSIGN},
	{"??=", COMPOUND_ASSIGN},
	{"=>", ARROW},
	{"==", EQ},
	{"!=", NOT_EQ},
	{"<=", LE},
	{">=", GE},
	{"&&", AND},
	{"||", OR},
	{"??", COALESCE},
	{"?.", OPT_CHAIN},
	{"++", INC},
	{"--", DEC},
	{"**", EXPONENT},
	{"<<", SHL},
	{"+=", COMPOUND_ASSIGN},
	{"-=", COMPOUND_ASSIGN},
	{"*=", COMPOUND_ASSIGN},
	{"/=", COMPOUND_ASSIGN},
	{"%=", COMPOUND_ASSIGN},
	{"&=", COMPOUND_ASSIGN},
	{"|=", COMPOUND_ASSIGN},
	{"^=", COMPOUND_ASSIGN},
	{"=", ASSIGN},
	{"+", PLUS},
	{"-", MINUS},
	{"*", ASTERISK},
	{"/", SLASH},
	{"%", PERCENT},
	{"!", BANG},
	{"~", TILDE},
	{"<", LT},
	{">", GT},
	{"|", PIPE},
	{"&", AMPERSAND},
	{"^", CARET},
	{"?", QUESTION},
	{".", DOT},
	{",", COMMA},
	{";", SEMICOLON},
	{":", COLON},
	{"(", LPAREN},
	{")", RPAREN},
	{"{", LBRACE},
	{"}", RBRACE},
	{"[", LBRACKET},
	{"]", RBRACKET},
	{"@", AT},
	{"#", HASH},
}

func (l *Lexer) readPunct(start ast.Pos) (TokenType, error) {
	rest := l.src[l.pos:]
	for _, p := range punctuators {
		if !strings.HasPrefix(rest, p.lit) {
			continue
		}
		// `a ?.5 : b` is a conditional, not optional chaining.
		if p.typ == OPT_CHAIN && len(rest) > 2 && isDigit(rune(rest[2])) {
			continue
		}
		for range p.lit {
			l.advance()
		}
		switch p.typ {
		case LBRACE:
			if n := len(l.templ); n > 0 {
				l.templ[n-1]++
			}
		case RBRACE:
			if n := len(l.templ); n > 0 {
				l.templ[n-1]--
			}
		}
		return p.typ, nil
	}
	return ILLEGAL, l.errorf(start, "unexpected character %q", l.peek())
}

func (l *Lexer) readNumber(start ast.Pos) (string, error) {
	if l.peek() == '0' {
		switch l.peekAt(1) {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			l.advance()
			l.advance()
			for l.pos < len(l.src) && (isIdentPart(l.peek())) {
				l.advance()
			}
			lit := strings.ReplaceAll(l.src[start.Offset:l.pos], "_", "")
			if strings.HasSuffix(lit, "n") {
				return "", l.errorf(start, "BigInt literals are not supported")
			}
			base := map[byte]int{'x': 16, 'o': 8, 'b': 2}[lit[1]|0x20]
			if _, err := strconv.ParseUint(lit[2:], base, 64); err != nil {
				if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
					return "", l.errorf(start, "invalid numeric literal %s", l.src[start.Offset:l.pos])
				}
			}
			return lit, nil
		}
	}
	digits := func() {
		for isDigit(l.peek()) || (l.peek() == '_' && isDigit(l.peekAt(1))) {
			l.advance()
		}
	}
	digits()
	if l.peek() == '.' {
		l.advance()
		digits()
	}
	if r := l.peek(); r == 'e' || r == 'E' {
		l.advance()
		if r := l.peek(); r == '+' || r == '-' {
			l.advance()
		}
		if !isDigit(l.peek()) {
			return "", l.errorf(start, "exponent requires digits")
		}
		digits()
	}
	if l.peek() == 'n' {
		return "", l.errorf(start, "BigInt literals are not supported")
	}
	if isIdentStart(l.peek()) {
		return "", l.errorf(l.position(), "identifier starts immediately after numeric literal")
	}
	return strings.ReplaceAll(l.src[start.Offset:l.pos], "_", ""), nil
}

func (l *Lexer) readString(start ast.Pos) (string, error) {
	quote := l.advance()
	var b strings.Builder
	for {
		r := l.peek()
		switch {
		case r == -1 || r == '\n' || r == '\r':
			return "", l.errorf(start, "unterminated string literal")
		case r == quote:
			l.advance()
			return b.String(), nil
		case r == '\\':
			if err := l.readEscape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteRune(l.advance())
		}
	}
}

// readTemplate reads template text after a '`' or a substitution's closing '}'. It
// returns end when the template closes and cont when another substitution opens.
func (l *Lexer) readTemplate(start ast.Pos, end, cont TokenType) (TokenType, string, error) {
	var b strings.Builder
	for {
		r := l.peek()
		switch {
		case r == -1:
			return ILLEGAL, "", l.errorf(start, "unterminated template literal")
		case r == '`':
			l.advance()
			return end, b.String(), nil
		case r == '$' && l.peekAt(1) == '{':
			l.advance()
			l.advance()
			l.templ = append(l.templ, 0)
			return cont, b.String(), nil
		case r == '\\':
			if err := l.readEscape(&b); err != nil {
				return ILLEGAL, "", err
			}
		case r == '\r':
			l.advance()
			if l.peek() == '\n' {
				l.advance()
			}
			b.WriteByte('\n')
		default:
			b.WriteRune(l.advance())
		}
	}
}

func (l *Lexer) readEscape(b *strings.Builder) error {
	at := l.position()
	l.advance()
	r := l.advance()
	switch r {
	case -1:
		return l.errorf(at, "unterminated escape sequence")
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		if isDigit(l.peek()) {
			return l.errorf(at, "octal escape sequences are not allowed")
		}
		b.WriteByte(0)
	case 'x':
		v, err := l.readHex(at, 2)
		if err != nil {
			return err
		}
		b.WriteRune(rune(v))
	case 'u':
		cp, err := l.readUnicodeEscape(at)
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(cp) && cp < 0xdc00 && l.peek() == '\\' && l.peekAt(1) == 'u' {
			save, saveLine, saveCol := l.pos, l.line, l.col
			l.advance()
			l.advance()
			lo, err := l.readUnicodeEscape(at)
			if err == nil && lo >= 0xdc00 && lo <= 0xdfff {
				b.WriteRune(utf16.DecodeRune(cp, lo))
				return nil
			}
			l.pos, l.line, l.col = save, saveLine, saveCol
		}
		b.WriteRune(cp)
	case '\r':
		if l.peek() == '\n' {
			l.advance()
		}
	case '\n', '\u2028', '\u2029':
	default:
		b.WriteRune(r)
	}
	return nil
}

func (l *Lexer) readUnicodeEscape(at ast.Pos) (rune, error) {
	if l.peek() == '{' {
		l.advance()
		var v rune
		n := 0
		for l.peek() != '}' {
			d := hexVal(l.advance())
			if d < 0 || v > 0x10ffff {
				return 0, l.errorf(at, "invalid unicode escape")
			}
			v = v*16 + rune(d)
			n++
		}
		l.advance()
		if n == 0 || v > 0x10ffff {
			return 0, l.errorf(at, "invalid unicode escape")
		}
		return v, nil
	}
	v, err := l.readHex(at, 4)
	return rune(v), err
}

func (l *Lexer) readHex(at ast.Pos, n int) (int, error) {
	v := 0
	for i := 0; i < n; i++ {
		d := hexVal(l.advance())
		if d < 0 {
			return 0, l.errorf(at, "invalid hexadecimal escape")
		}
		v = v*16 + d
	}
	return v, nil
}

func hexVal(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10
	}
	return -1
}

func (l *Lexer) readRegex(start ast.Pos) (string, error) {
	l.advance()
	inClass := false
	for {
		r := l.peek()
		switch {
		case r == -1 || isLineTerminator(r):
			return "", l.errorf(start, "unterminated regular expression literal")
		case r == '\\':
			l.advance()
			if isLineTerminator(l.peek()) {
				return "", l.errorf(start, "unterminated regular expression literal")
			}
			l.advance()
			continue
		case r == '[':
			inClass = true
		case r == ']':
			inClass = false
		case r == '/' && !inClass:
			pattern := l.src[start.Offset+1 : l.pos]
			l.advance()
			for isIdentPart(l.peek()) {
				l.advance()
			}
			return pattern, nil
		}
		l.advance()
	}
}
