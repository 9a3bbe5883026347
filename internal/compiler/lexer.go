package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenKind classifies a lexeme of the rule language.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokKeyword  // STAGE, PREPROCESS, COMPLETION, BUILTIN, IF, OR, INFER, ASSERT, RAISE
	tokOption   // HIGHEST_PRIORITY, ..., RECURSIVE
	tokOperator // and, or, and/or, not, inverse, pairwise_disjoint
	tokRestr    // some, only, value, exactly
	tokNew
	tokFlag // infer_descendants, infer_ancestors, concrete
	tokVar
	tokInt
	tokFloat
	tokString
	tokBool
	tokCompare
	tokName
)

var tokenNames = map[tokenKind]string{
	tokEOF:      "end of input",
	tokLBrace:   "'{'",
	tokRBrace:   "'}'",
	tokLParen:   "'('",
	tokRParen:   "')'",
	tokKeyword:  "keyword",
	tokOption:   "option",
	tokOperator: "operator",
	tokRestr:    "restriction",
	tokNew:      "'new'",
	tokFlag:     "flag",
	tokVar:      "variable",
	tokInt:      "integer",
	tokFloat:    "float",
	tokString:   "string",
	tokBool:     "bool",
	tokCompare:  "comparison",
	tokName:     "name",
}

func (k tokenKind) String() string { return tokenNames[k] }

type token struct {
	kind   tokenKind
	text   string
	offset int
	line   int
	col    int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return t.kind.String()
	}
	return fmt.Sprintf("%s %q", t.kind, t.text)
}

var keywords = map[string]bool{
	"STAGE": true, "PREPROCESS": true, "COMPLETION": true, "BUILTIN": true,
	"IF": true, "OR": true, "INFER": true, "ASSERT": true, "RAISE": true,
}

var options = map[string]int{
	"HIGHEST_PRIORITY": -100,
	"HIGH_PRIORITY":    -50,
	"LOW_PRIORITY":     50,
	"LOWEST_PRIORITY":  100,
	"RECURSIVE":        0,
}

var restrictionWords = map[string]bool{"some": true, "only": true, "value": true, "exactly": true}

var flagWords = map[string]bool{"infer_descendants": true, "infer_ancestors": true, "concrete": true}

var operatorWords = map[string]bool{
	"and": true, "or": true, "not": true, "inverse": true, "pairwise_disjoint": true,
}

// lexer splits rule source into tokens, tracking byte offsets for errors.
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) errorf(offset, line, col int, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    ErrSyntax,
		Message: fmt.Sprintf(format, args...),
		Offset:  offset,
		Line:    line,
		Col:     col,
	}
}

func (l *lexer) peekByte(ahead int) byte {
	if l.pos+ahead < len(l.src) {
		return l.src[l.pos+ahead]
	}
	return 0
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance(1)
		default:
			return
		}
	}
}

// tokens lexes the whole source.
func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	start, line, col := l.pos, l.line, l.col
	emit := func(kind tokenKind, n int) token {
		text := l.src[l.pos : l.pos+n]
		l.advance(n)
		return token{kind: kind, text: text, offset: start, line: line, col: col}
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, offset: start, line: line, col: col}, nil
	}

	c := l.src[l.pos]
	switch {
	case c == '{':
		return emit(tokLBrace, 1), nil
	case c == '}':
		return emit(tokRBrace, 1), nil
	case c == '(':
		return emit(tokLParen, 1), nil
	case c == ')':
		return emit(tokRParen, 1), nil
	case c == '"' || c == '\'':
		end := strings.IndexByte(l.src[l.pos+1:], c)
		if end < 0 {
			return token{}, l.errorf(start, line, col, "unterminated string")
		}
		tok := emit(tokString, end+2)
		tok.text = tok.text[1 : len(tok.text)-1]
		return tok, nil
	case c == '?':
		if strings.HasPrefix(l.src[l.pos:], "?...") {
			return emit(tokVar, 4), nil
		}
		n := 1 + identLen(l.src[l.pos+1:])
		if n == 1 {
			return token{}, l.errorf(start, line, col, "variable name expected after '?'")
		}
		return emit(tokVar, n), nil
	case c == '<' && isIRIStart(l.src[l.pos+1:]):
		end := strings.IndexByte(l.src[l.pos:], '>')
		return emit(tokName, end+1), nil
	case c == '=' || c == '!' || c == '<' || c == '>':
		if l.peekByte(1) == '=' {
			return emit(tokCompare, 2), nil
		}
		if c == '!' {
			return token{}, l.errorf(start, line, col, "unexpected character '!'")
		}
		return emit(tokCompare, 1), nil
	case c == '-' || isDigit(c):
		if c == '-' && !isDigit(l.peekByte(1)) {
			return token{}, l.errorf(start, line, col, "unexpected character '-'")
		}
		n := 1
		for l.pos+n < len(l.src) && isDigit(l.src[l.pos+n]) {
			n++
		}
		if l.pos+n+1 < len(l.src) && l.src[l.pos+n] == '.' && isDigit(l.src[l.pos+n+1]) {
			n++
			for l.pos+n < len(l.src) && isDigit(l.src[l.pos+n]) {
				n++
			}
			return emit(tokFloat, n), nil
		}
		return emit(tokInt, n), nil
	}

	n := identLen(l.src[l.pos:])
	if n == 0 {
		r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
		return token{}, l.errorf(start, line, col, "unexpected character %q", r)
	}
	word := l.src[l.pos : l.pos+n]
	switch {
	case keywords[word]:
		return emit(tokKeyword, n), nil
	case hasOption(word):
		return emit(tokOption, n), nil
	case word == "and" && strings.HasPrefix(l.src[l.pos+n:], "/or"):
		return emit(tokOperator, n+3), nil
	case operatorWords[word]:
		return emit(tokOperator, n), nil
	case restrictionWords[word]:
		return emit(tokRestr, n), nil
	case flagWords[word]:
		return emit(tokFlag, n), nil
	case word == "new":
		return emit(tokNew, n), nil
	case word == "true" || word == "True" || word == "false" || word == "False":
		return emit(tokBool, n), nil
	case word == "is_a" && l.peekByte(n) == '(':
		if m := levelFilterLen(l.src[l.pos+n:]); m > 0 {
			return emit(tokName, n+m), nil
		}
	}
	return emit(tokName, n), nil
}

func hasOption(word string) bool {
	_, ok := options[word]
	return ok
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func identLen(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if r == '_' || unicode.IsLetter(r) || (n > 0 && unicode.IsDigit(r)) {
			n += size
			continue
		}
		break
	}
	return n
}

// isIRIStart reports whether s (after '<') spells an IRI up to a closing '>'.
func isIRIStart(s string) bool {
	if s == "" || !unicode.IsLetter(rune(s[0])) {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '>':
			return true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '<':
			return false
		}
	}
	return false
}

// levelFilterLen returns the length of a "(op N)" suffix of is_a, or 0.
func levelFilterLen(s string) int {
	if len(s) < 3 || s[0] != '(' {
		return 0
	}
	i := 1
	for i < len(s) && strings.IndexByte("!<>=", s[i]) >= 0 {
		i++
	}
	digits := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == digits || i >= len(s) || s[i] != ')' {
		return 0
	}
	return i + 1
}
