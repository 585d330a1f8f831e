package frontend

import "github.com/confts/confts/pkg/ast"

// TokenType represents the type of a token.
type TokenType string

// Token is a lexical token. Literal is the raw source text; Value is the cooked text of
// string and template tokens.
type Token struct {
	Type          TokenType
	Literal       string
	Value         string
	Pos           ast.Pos
	End           ast.Pos
	NewlineBefore bool
}

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	IDENT  TokenType = "IDENT"
	NUMBER TokenType = "NUMBER"
	STRING TokenType = "STRING"
	REGEX  TokenType = "REGEX"

	// Template literal pieces. TEMPLATE has no substitutions.
	TEMPLATE        TokenType = "TEMPLATE"
	TEMPLATE_HEAD   TokenType = "TEMPLATE_HEAD"
	TEMPLATE_MIDDLE TokenType = "TEMPLATE_MIDDLE"
	TEMPLATE_TAIL   TokenType = "TEMPLATE_TAIL"

	ASSIGN     TokenType = "="
	PLUS       TokenType = "+"
	MINUS      TokenType = "-"
	ASTERISK   TokenType = "*"
	EXPONENT   TokenType = "**"
	SLASH      TokenType = "/"
	PERCENT    TokenType = "%"
	BANG       TokenType = "!"
	TILDE      TokenType = "~"
	LT         TokenType = "<"
	GT         TokenType = ">"
	LE         TokenType = "<="
	GE         TokenType = ">="
	EQ         TokenType = "=="
	NOT_EQ     TokenType = "!="
	STRICT_EQ  TokenType = "==="
	STRICT_NEQ TokenType = "!=="
	AND        TokenType = "&&"
	OR         TokenType = "||"
	COALESCE   TokenType = "??"
	PIPE       TokenType = "|"
	AMPERSAND  TokenType = "&"
	CARET      TokenType = "^"
	SHL        TokenType = "<<"
	INC        TokenType = "++"
	DEC        TokenType = "--"
	QUESTION   TokenType = "?"
	OPT_CHAIN  TokenType = "?."
	ARROW      TokenType = "=>"
	DOT        TokenType = "."
	SPREAD     TokenType = "..."
	AT         TokenType = "@"
	HASH       TokenType = "#"

	// Compound assignment operators share one type; Literal tells them apart.
	COMPOUND_ASSIGN TokenType = "OP="

	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	COLON     TokenType = ":"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"

	CONST      TokenType = "CONST"
	LET        TokenType = "LET"
	VAR        TokenType = "VAR"
	IMPORT     TokenType = "IMPORT"
	EXPORT     TokenType = "EXPORT"
	DEFAULT    TokenType = "DEFAULT"
	ENUM       TokenType = "ENUM"
	FUNCTION   TokenType = "FUNCTION"
	CLASS      TokenType = "CLASS"
	RETURN     TokenType = "RETURN"
	NEW        TokenType = "NEW"
	TRUE       TokenType = "TRUE"
	FALSE      TokenType = "FALSE"
	NULL       TokenType = "NULL"
	TYPEOF     TokenType = "TYPEOF"
	VOID       TokenType = "VOID"
	DELETE     TokenType = "DELETE"
	IN         TokenType = "IN"
	INSTANCEOF TokenType = "INSTANCEOF"
	THIS       TokenType = "THIS"
)

var keywords = map[string]TokenType{
	"const":      CONST,
	"let":        LET,
	"var":        VAR,
	"import":     IMPORT,
	"export":     EXPORT,
	"default":    DEFAULT,
	"enum":       ENUM,
	"function":   FUNCTION,
	"class":      CLASS,
	"return":     RETURN,
	"new":        NEW,
	"true":       TRUE,
	"false":      FALSE,
	"null":       NULL,
	"typeof":     TYPEOF,
	"void":       VOID,
	"delete":     DELETE,
	"in":         IN,
	"instanceof": INSTANCEOF,
	"this":       THIS,
}

// LookupIdent returns the keyword token type for ident, or IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// isWord reports whether the token is an identifier or keyword, i.e. usable as a
// property name.
func (t Token) isWord() bool {
	if t.Type == IDENT {
		return true
	}
	kw, ok := keywords[t.Literal]
	return ok && kw == t.Type
}

// isContextual reports whether t is the identifier word.
func (t Token) isContextual(word string) bool {
	return t.Type == IDENT && t.Literal == word
}

// endsOperand reports whether a '/' after this token is a division rather than the
// start of a regular expression.
func (t TokenType) endsOperand() bool {
	switch t {
	case IDENT, NUMBER, STRING, TEMPLATE, TEMPLATE_TAIL, REGEX,
		RPAREN, RBRACKET, RBRACE, TRUE, FALSE, NULL, THIS, INC, DEC:
		return true
	}
	return false
}
