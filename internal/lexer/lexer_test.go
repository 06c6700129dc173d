package lexer

import (
	"testing"

	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/token"
)

func lexAll(t *testing.T, src string) ([]token.Token, *diag.Bag) {
	t.Helper()
	bag := &diag.Bag{}
	toks := New("t.l0", []byte(src), bag).Lex()
	return toks, bag
}

func TestPositionsMatchVisualLayout(t *testing.T) {
	src := "module m;\nfunc f() -> int {\n  return 1;\n}\n"
	toks, bag := lexAll(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	want := []struct {
		kind     token.Kind
		line, col int
	}{
		{token.KwModule, 1, 1},
		{token.Ident, 1, 8},
		{token.Semicolon, 1, 9},
		{token.KwFunc, 2, 1},
		{token.Ident, 2, 6},
		{token.LParen, 2, 7},
		{token.RParen, 2, 8},
		{token.Arrow, 2, 10},
		{token.KwInt, 2, 13},
		{token.LBrace, 2, 17},
		{token.KwReturn, 3, 3},
		{token.IntLit, 3, 10},
		{token.Semicolon, 3, 11},
		{token.RBrace, 4, 1},
		{token.EOF, 5, 1},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, w := range want {
		got := toks[i]
		if got.Kind != w.kind || got.Line != w.line || got.Col != w.col {
			t.Errorf("token %d: got %v, want kind=%v line=%d col=%d", i, got, w.kind, w.line, w.col)
		}
	}
}

func TestUnterminatedStringIsExactlyOneError(t *testing.T) {
	_, bag := lexAll(t, `let s = "abc`)
	errs := bag.Items()
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if errs[0].Col != 9 {
		t.Errorf("error column = %d, want 9 (the opening quote)", errs[0].Col)
	}
}

func TestBOMDiscarded(t *testing.T) {
	src := "\xEF\xBB\xBFmodule m;"
	toks, bag := lexAll(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	if toks[0].Kind != token.KwModule || toks[0].Col != 1 {
		t.Errorf("got %v, want module keyword at col 1", toks[0])
	}
}

func TestWildcardIsNotIdent(t *testing.T) {
	toks, _ := lexAll(t, "_")
	if toks[0].Kind != token.Wildcard {
		t.Errorf("got %v, want Wildcard", toks[0])
	}
}

func TestStringEscapes(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`"\n\t\r\"\'\\"`, "\n\t\r\"'\\"},
		{`"\101\102"`, "AB"},
		{`"\x41\x42"`, "AB"},
		{`"A"`, "A"},
		{`"\U00000041"`, "A"},
	}
	for _, c := range cases {
		toks, bag := lexAll(t, `let s = `+c.src+`;`)
		if bag.HasErrors() {
			t.Fatalf("%s: unexpected errors: %v", c.src, bag.Items())
		}
		var lit token.Token
		for _, tok := range toks {
			if tok.Kind == token.StringLit {
				lit = tok
			}
		}
		if lit.Lexeme != c.want {
			t.Errorf("%s: got %q, want %q", c.src, lit.Lexeme, c.want)
		}
	}
}

func TestTwoCharOperators(t *testing.T) {
	toks, bag := lexAll(t, "== != <= >= << >> && || -> => ::")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	want := []token.Kind{
		token.Eq, token.NotEq, token.LtEq, token.GtEq, token.Shl, token.Shr,
		token.AmpAmp, token.PipePipe, token.Arrow, token.FatArrow, token.ColonColon, token.EOF,
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, w := range want {
		if toks[i].Kind != w {
			t.Errorf("token %d: got %v want %v", i, toks[i].Kind, w)
		}
	}
}

func TestLineComment(t *testing.T) {
	toks, bag := lexAll(t, "let x = 1; // trailing comment\nlet y = 2;")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	for _, tok := range toks {
		if tok.Kind == token.Invalid {
			t.Fatalf("comment leaked into token stream: %v", toks)
		}
	}
}
