package sema

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/lexer"
	"github.com/l0-lang/l0c/internal/parser"
	"github.com/l0-lang/l0c/internal/types"
)

// analyzeSource parses src as the sole module "m" and runs the full
// semantic pipeline over it, returning the accumulated diagnostic codes
// in source order (for assertions that don't care about exact messages).
func analyzeSource(t *testing.T, src string) ([]string, *types.AnalysisResult) {
	t.Helper()
	errs := &diag.Bag{}
	lx := lexer.New("m.l0", []byte(src), errs)
	toks := lx.Lex()
	ps := parser.New("m.l0", toks, errs)
	mod := ps.ParseModule()

	modules := map[string]*ast.Module{"m": mod}
	unit := &types.CompilationUnit{Entry: "m", Modules: []string{"m"}}

	result := Analyze(unit, modules, errs)

	errs.Sort()
	var codes []string
	for _, d := range errs.Items() {
		codes = append(codes, d.Code)
	}
	return codes, result
}

func TestAnalyzeCleanProgram(t *testing.T) {
	src := `module m;

struct Point { x: int; y: int; }

enum Shape {
	Circle(r: int);
	Square(side: int);
}

func area(s: Shape) -> int {
	match (s) {
		Circle(r) => { return r * r; }
		Square(side) => { return side * side; }
	}
}

func main() -> int {
	let p: Point* = new Point(1, 2);
	let s: Shape = Circle(3);
	return area(s) + p.x;
}
`
	codes, _ := analyzeSource(t, src)
	if len(codes) != 0 {
		t.Fatalf("expected no diagnostics, got %v", codes)
	}
}

func TestAnalyzeNonExhaustiveMatchIsReported(t *testing.T) {
	src := `module m;

enum Shape {
	Circle(r: int);
	Square(side: int);
}

func area(s: Shape) -> int {
	match (s) {
		Circle(r) => { return r * r; }
	}
}
`
	codes, _ := analyzeSource(t, src)
	found := false
	for _, c := range codes {
		if c == diag.PhaseMatch+"-0006" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a non-exhaustive match diagnostic, got %v", codes)
	}
}

func TestAnalyzeMissingReturnPathIsReported(t *testing.T) {
	src := `module m;

func f(x: int) -> int {
	if (x > 0) {
		return x;
	}
}
`
	codes, _ := analyzeSource(t, src)
	if diff := deep.Equal(codes, []string{diag.PhaseType + "-0002"}); diff != nil {
		t.Fatalf("unexpected diagnostics: %v", diff)
	}
}

func TestAnalyzeUseAfterDropIsReported(t *testing.T) {
	src := `module m;

struct Box { v: int; }

func f() -> void {
	let b: Box* = new Box(1);
	drop b;
	drop b;
}
`
	codes, _ := analyzeSource(t, src)
	found := false
	for _, c := range codes {
		if c == diag.PhaseType+"-0008" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a use-after-drop diagnostic, got %v", codes)
	}
}

func TestAnalyzeDuplicateCaseLabelIsReported(t *testing.T) {
	src := `module m;

func f(x: int) -> int {
	case (x) {
		1 => { return 1; }
		1 => { return 2; }
		else => { return 0; }
	}
}
`
	codes, _ := analyzeSource(t, src)
	found := false
	for _, c := range codes {
		if c == diag.PhaseMatch+"-0008" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a duplicate case label diagnostic, got %v", codes)
	}
}

func TestAnalyzeSizeofResolvesToInt(t *testing.T) {
	src := `module m;

struct Box { v: int; }

func f() -> int {
	return sizeof(Box*);
}
`
	codes, result := analyzeSource(t, src)
	if len(codes) != 0 {
		t.Fatalf("expected no diagnostics, got %v", codes)
	}
	found := false
	for _, name := range result.IntrinsicTargets {
		if name == "sizeof" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected one call recorded as the sizeof intrinsic")
	}
}

func TestAnalyzeNullableWideningAndTry(t *testing.T) {
	src := `module m;

func find(x: int) -> int? {
	if (x > 0) {
		return x;
	}
	return null;
}

func use(x: int) -> int? {
	let v: int = find(x)?;
	return v;
}
`
	codes, _ := analyzeSource(t, src)
	if len(codes) != 0 {
		t.Fatalf("expected no diagnostics, got %v", codes)
	}
}

func TestAnalyzeTryOnNonNullableIsRejected(t *testing.T) {
	src := `module m;

func f(x: int) -> int {
	let v: int = x?;
	return v;
}
`
	codes, _ := analyzeSource(t, src)
	found := false
	for _, c := range codes {
		if c == diag.PhaseType+"-0049" || c == diag.PhaseType+"-0050" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a try-on-non-nullable diagnostic, got %v", codes)
	}
}
