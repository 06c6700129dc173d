// Package lexer implements L0's Stage 1 lexer (spec.md §4.1).
//
// Grounded on lang/ylex/lexer.go's hand-rolled byte scanner (peek/peekN/
// advance, line tracking, scanIdentifier/scanNumber/scanEscape), adapted
// from WUT-4's line-only position tracking and token-stream-over-stdout
// protocol to an in-process scanner that returns a []token.Token plus a
// diag.Bag and tracks both line and column (L0 diagnostics need carets,
// spec.md §6).
package lexer

import (
	"strings"
	"unicode/utf8"

	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/token"
)

// maxErrors caps how many lexical errors a single file accumulates before
// the lexer stops emitting new ones (spec.md §4.1: "may continue ... up
// to an implementation-defined cap"), so one badly corrupted file can't
// produce unbounded diagnostic spam.
const maxErrors = 200

var multiCharOps = []struct {
	s string
	k token.Kind
}{
	{"==", token.Eq}, {"!=", token.NotEq}, {"<=", token.LtEq}, {">=", token.GtEq},
	{"<<", token.Shl}, {">>", token.Shr}, {"&&", token.AmpAmp}, {"||", token.PipePipe},
	{"->", token.Arrow}, {"=>", token.FatArrow}, {"::", token.ColonColon},
}

var singleCharOps = map[byte]token.Kind{
	'+': token.Plus, '-': token.Minus, '*': token.Star, '/': token.Slash, '%': token.Percent,
	'&': token.Amp, '|': token.Pipe, '^': token.Caret, '~': token.Tilde, '!': token.Bang,
	'<': token.Lt, '>': token.Gt, '=': token.Assign,
	'(': token.LParen, ')': token.RParen, '{': token.LBrace, '}': token.RBrace,
	'[': token.LBracket, ']': token.RBracket,
	';': token.Semicolon, ':': token.Colon, ',': token.Comma, '.': token.Dot,
}

// Lexer scans one source file's bytes into a token stream.
type Lexer struct {
	src      []byte
	pos      int
	line     int
	col      int
	path     string
	errs     *diag.Bag
	errCount int
}

// New creates a Lexer over src, discarding a leading UTF-8 BOM if present
// (spec.md §6: "A UTF-8 BOM is accepted and discarded").
func New(path string, src []byte, errs *diag.Bag) *Lexer {
	if len(src) >= 3 && src[0] == 0xEF && src[1] == 0xBB && src[2] == 0xBF {
		src = src[3:]
	}
	return &Lexer{src: src, line: 1, col: 1, path: path, errs: errs}
}

// Lex scans the entire source and returns its token stream, always
// terminated by a single EOF token.
func (l *Lexer) Lex() []token.Token {
	var toks []token.Token
	for {
		t := l.next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekN(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func (l *Lexer) advance() byte {
	ch := l.peek()
	if l.pos < len(l.src) {
		l.pos++
	}
	if ch == '\n' {
		l.line++
		l.col = 1
	} else if ch != 0 {
		l.col++
	}
	return ch
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		ch := l.peek()
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '/' && l.peekN(1) == '/':
			for l.peek() != '\n' && l.peek() != 0 {
				l.advance()
			}
		default:
			return
		}
	}
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentCont(ch byte) bool { return isLetter(ch) || isDigit(ch) }

func (l *Lexer) errorf(line, col int, format string, args ...interface{}) {
	if l.errCount >= maxErrors {
		return
	}
	l.errCount++
	l.errs.Errorf(diag.PhaseLex+"-0001", l.path, "", line, col, format, args...)
}

func (l *Lexer) next() token.Token {
	l.skipWhitespaceAndComments()
	line, col := l.line, l.col
	ch := l.peek()
	if ch == 0 {
		return token.Token{Kind: token.EOF, Line: line, Col: col}
	}

	switch {
	case isLetter(ch):
		return l.scanIdentOrKeyword(line, col)
	case isDigit(ch):
		return l.scanNumber(line, col)
	case ch == '"':
		return l.scanString(line, col)
	case ch == '\'':
		return l.scanByte(line, col)
	}

	for _, op := range multiCharOps {
		if l.match(op.s) {
			return token.Token{Kind: op.k, Lexeme: op.s, Line: line, Col: col}
		}
	}
	if k, ok := singleCharOps[ch]; ok {
		l.advance()
		return token.Token{Kind: k, Lexeme: string(ch), Line: line, Col: col}
	}
	if ch == '?' {
		l.advance()
		return token.Token{Kind: token.Question, Lexeme: "?", Line: line, Col: col}
	}

	l.errorf(line, col, "unexpected character %q", rune(ch))
	l.advance()
	return l.next()
}

func (l *Lexer) match(s string) bool {
	if l.pos+len(s) > len(l.src) {
		return false
	}
	if string(l.src[l.pos:l.pos+len(s)]) != s {
		return false
	}
	for range s {
		l.advance()
	}
	return true
}

func (l *Lexer) scanIdentOrKeyword(line, col int) token.Token {
	start := l.pos
	for isIdentCont(l.peek()) {
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	if lexeme == "_" {
		return token.Token{Kind: token.Wildcard, Lexeme: lexeme, Line: line, Col: col}
	}
	kind := token.Lookup(lexeme)
	if kind == token.BoolLit {
		return token.Token{Kind: token.BoolLit, Lexeme: lexeme, Line: line, Col: col}
	}
	if kind == token.NullLit {
		return token.Token{Kind: token.NullLit, Lexeme: lexeme, Line: line, Col: col}
	}
	return token.Token{Kind: kind, Lexeme: lexeme, Line: line, Col: col}
}

func (l *Lexer) scanNumber(line, col int) token.Token {
	start := l.pos
	for isDigit(l.peek()) {
		l.advance()
	}
	return token.Token{Kind: token.IntLit, Lexeme: string(l.src[start:l.pos]), Line: line, Col: col}
}

// scanEscape consumes a backslash escape sequence (the backslash has
// already been consumed) and returns its decoded byte(s).
//
// Mirrors lang/ylex/lexer.go's scanCharLiteral escape handling, extended
// per spec.md §4.1 with \xHH+ and \uHHHH/\UHHHHHHHH (UTF-8 encoded).
func (l *Lexer) scanEscape(openLine, openCol int) []byte {
	ch := l.peek()
	switch ch {
	case 'n':
		l.advance()
		return []byte{'\n'}
	case 't':
		l.advance()
		return []byte{'\t'}
	case 'r':
		l.advance()
		return []byte{'\r'}
	case '"':
		l.advance()
		return []byte{'"'}
	case '\'':
		l.advance()
		return []byte{'\''}
	case '\\':
		l.advance()
		return []byte{'\\'}
	case 'x':
		l.advance()
		start := l.pos
		for isHexDigit(l.peek()) {
			l.advance()
		}
		if l.pos == start {
			l.errorf(l.line, l.col, "invalid \\x escape: no hex digits")
			return nil
		}
		v, _ := parseUintHex(string(l.src[start:l.pos]))
		return []byte{byte(v)}
	case 'u':
		l.advance()
		return l.scanUnicodeEscape(4)
	case 'U':
		l.advance()
		return l.scanUnicodeEscape(8)
	default:
		if ch >= '0' && ch <= '7' {
			start := l.pos
			for n := 0; n < 3 && l.peek() >= '0' && l.peek() <= '7'; n++ {
				l.advance()
			}
			v, _ := parseUintOctal(string(l.src[start:l.pos]))
			return []byte{byte(v)}
		}
		l.errorf(openLine, openCol, "invalid escape sequence \\%c", ch)
		if ch != 0 {
			l.advance()
		}
		return nil
	}
}

func (l *Lexer) scanUnicodeEscape(digits int) []byte {
	start := l.pos
	for n := 0; n < digits && isHexDigit(l.peek()); n++ {
		l.advance()
	}
	if l.pos-start != digits {
		l.errorf(l.line, l.col, "invalid unicode escape: need %d hex digits", digits)
		return nil
	}
	v, _ := parseUintHex(string(l.src[start:l.pos]))
	buf := make([]byte, utf8.UTFMax)
	n := utf8.EncodeRune(buf, rune(v))
	return buf[:n]
}

func parseUintHex(s string) (uint64, bool) {
	var v uint64
	for _, c := range []byte(s) {
		v *= 16
		switch {
		case c >= '0' && c <= '9':
			v += uint64(c - '0')
		case c >= 'a' && c <= 'f':
			v += uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v += uint64(c-'A') + 10
		}
	}
	return v, true
}

func parseUintOctal(s string) (uint64, bool) {
	var v uint64
	for _, c := range []byte(s) {
		v = v*8 + uint64(c-'0')
	}
	return v, true
}

func (l *Lexer) scanString(line, col int) token.Token {
	l.advance() // opening quote
	var buf strings.Builder
	for {
		ch := l.peek()
		if ch == 0 {
			l.errorf(line, col, "unterminated string literal")
			return token.Token{Kind: token.StringLit, Lexeme: buf.String(), Line: line, Col: col}
		}
		if ch == '"' {
			l.advance()
			return token.Token{Kind: token.StringLit, Lexeme: buf.String(), Line: line, Col: col}
		}
		if ch == '\n' {
			l.errorf(line, col, "unterminated string literal")
			return token.Token{Kind: token.StringLit, Lexeme: buf.String(), Line: line, Col: col}
		}
		if ch == '\\' {
			l.advance()
			buf.Write(l.scanEscape(line, col))
			continue
		}
		buf.WriteByte(l.advance())
	}
}

func (l *Lexer) scanByte(line, col int) token.Token {
	l.advance() // opening quote
	var value byte
	if l.peek() == '\\' {
		l.advance()
		decoded := l.scanEscape(line, col)
		if len(decoded) > 0 {
			value = decoded[0]
		}
	} else if l.peek() != 0 && l.peek() != '\'' {
		value = l.advance()
	} else {
		l.errorf(line, col, "empty byte literal")
	}
	if l.peek() != '\'' {
		l.errorf(line, col, "unterminated byte literal")
		return token.Token{Kind: token.ByteLit, Lexeme: string(value), Line: line, Col: col}
	}
	l.advance() // closing quote
	return token.Token{Kind: token.ByteLit, Lexeme: string(value), Line: line, Col: col}
}
