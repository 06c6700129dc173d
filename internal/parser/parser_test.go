package parser

import (
	"testing"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/lexer"
)

func parseSrc(t *testing.T, src string) (*ast.Module, *diag.Bag) {
	t.Helper()
	bag := &diag.Bag{}
	toks := lexer.New("t.l0", []byte(src), bag).Lex()
	mod := New("t.l0", toks, bag).ParseModule()
	return mod, bag
}

func TestParseMinimalModule(t *testing.T) {
	mod, bag := parseSrc(t, `module m; func main() -> int { return 14; }`)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	if mod.Name.String() != "m" {
		t.Fatalf("module name = %q", mod.Name.String())
	}
	if len(mod.Decls) != 1 {
		t.Fatalf("got %d decls, want 1", len(mod.Decls))
	}
	fn, ok := mod.Decls[0].(*ast.Func)
	if !ok {
		t.Fatalf("decl 0 is %T, want *ast.Func", mod.Decls[0])
	}
	if fn.Name != "main" || fn.Ret == nil || fn.Ret.Name != "int" {
		t.Fatalf("got %+v", fn)
	}
}

func TestParseImportsAndDottedNames(t *testing.T) {
	mod, bag := parseSrc(t, "module a.b.c;\nimport x.y;\nimport z;\nfunc f() {}")
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	if mod.Name.String() != "a.b.c" {
		t.Fatalf("got %q", mod.Name.String())
	}
	if len(mod.Imports) != 2 || mod.Imports[0].String() != "x.y" || mod.Imports[1].String() != "z" {
		t.Fatalf("got %+v", mod.Imports)
	}
}

func TestParseEnumAndMatch(t *testing.T) {
	src := `
module m;
enum Color { Red(); Green(); Blue(); }
func f(c: Color) -> int {
	match (c) {
		Red() => { return 1; }
		Green() => { return 2; }
		_ => { return 0; }
	}
}
`
	mod, bag := parseSrc(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	en := mod.Decls[0].(*ast.Enum)
	if len(en.Variants) != 3 {
		t.Fatalf("got %d variants", len(en.Variants))
	}
	fn := mod.Decls[1].(*ast.Func)
	match := fn.Body.Stmts[0].(*ast.Match)
	if len(match.Arms) != 3 {
		t.Fatalf("got %d arms", len(match.Arms))
	}
	if _, ok := match.Arms[2].Pattern.(*ast.WildcardPattern); !ok {
		t.Fatalf("arm 2 pattern = %T, want wildcard", match.Arms[2].Pattern)
	}
}

func TestParseWithMixedCleanupIsRejected(t *testing.T) {
	src := `
module m;
func f() {
	with (let a = g() => h(a), let b = g()) {
	}
}
`
	_, bag := parseSrc(t, src)
	if !bag.HasErrors() {
		t.Fatalf("expected an error for mixed with-cleanup forms")
	}
}

func TestParseNullableTypeSuffixOnce(t *testing.T) {
	mod, bag := parseSrc(t, `module m; func f(a: string?) -> int { return 0; }`)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	fn := mod.Decls[0].(*ast.Func)
	if !fn.Params[0].Type.Nullable {
		t.Fatalf("param type not nullable: %+v", fn.Params[0].Type)
	}
}

func TestParseExpressionPrecedence(t *testing.T) {
	mod, bag := parseSrc(t, `module m; func main() -> int { return 2 + 3 * 4; }`)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	fn := mod.Decls[0].(*ast.Func)
	ret := fn.Body.Stmts[0].(*ast.Return)
	bin := ret.Value.(*ast.Binary)
	if bin.Op != ast.BinAdd {
		t.Fatalf("top operator = %v, want Add (mult should bind tighter)", bin.Op)
	}
	if _, ok := bin.Y.(*ast.Binary); !ok {
		t.Fatalf("rhs = %T, want *ast.Binary (3*4)", bin.Y)
	}
}

func TestParseInvalidSyntaxProducesDiagnostic(t *testing.T) {
	_, bag := parseSrc(t, `module m; func f( -> int { }`)
	if !bag.HasErrors() {
		t.Fatalf("expected a PAR- diagnostic for ungrammatical input")
	}
}

func TestParseCaseStatement(t *testing.T) {
	src := `
module m;
func f(x: int) -> int {
	case (x) {
		1, 2 => { return 1; }
		else => { return 0; }
	}
	return 0;
}
`
	mod, bag := parseSrc(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	fn := mod.Decls[0].(*ast.Func)
	c := fn.Body.Stmts[0].(*ast.Case)
	if len(c.Arms) != 2 || len(c.Arms[0].Values) != 2 || c.Arms[1].Values != nil {
		t.Fatalf("got %+v", c.Arms)
	}
}

func TestParseSizeofIntrinsicArgumentIsTypeExpr(t *testing.T) {
	mod, bag := parseSrc(t, `module m; func f() -> int { return sizeof(int*); }`)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	fn := mod.Decls[0].(*ast.Func)
	ret := fn.Body.Stmts[0].(*ast.Return)
	call := ret.Value.(*ast.Call)
	if _, ok := call.Args[0].(*ast.TypeExpr); !ok {
		t.Fatalf("arg 0 = %T, want *ast.TypeExpr", call.Args[0])
	}
}
