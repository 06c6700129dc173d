package backend

import (
	"strings"
	"testing"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/lexer"
	"github.com/l0-lang/l0c/internal/parser"
	"github.com/l0-lang/l0c/internal/sema"
	"github.com/l0-lang/l0c/internal/types"
)

// lowerSource runs the full front end over src as the sole module "m"
// and lowers the result, failing the test if analysis recorded any
// diagnostic.
func lowerSource(t *testing.T, src string) (string, *diag.Bag) {
	t.Helper()
	errs := &diag.Bag{}
	lx := lexer.New("m.l0", []byte(src), errs)
	toks := lx.Lex()
	ps := parser.New("m.l0", toks, errs)
	mod := ps.ParseModule()

	modules := map[string]*ast.Module{"m": mod}
	unit := &types.CompilationUnit{Entry: "m", Modules: []string{"m"}}

	result := sema.Analyze(unit, modules, errs)
	if errs.HasErrors() {
		t.Fatalf("unexpected diagnostics before lowering: %v", errs.Items())
	}

	out := Lower(unit, modules, result, errs, Toggles{})
	return out, errs
}

func TestLowerArithmeticUsesCheckedHelpers(t *testing.T) {
	src := `module m;

func main() -> int {
	return 2 + 3 * 4;
}
`
	out, errs := lowerSource(t, src)
	if errs.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", errs.Items())
	}
	for _, want := range []string{"_rt_iadd", "_rt_imul"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected lowered source to call %s, got:\n%s", want, out)
		}
	}
}

func TestLowerStructGetsOptionalWrapperAndConstructor(t *testing.T) {
	src := `module m;

struct Point { x: int; y: int; }

func main() -> int {
	let p: Point* = new Point(1, 2);
	drop p;
	return 0;
}
`
	out, errs := lowerSource(t, src)
	if errs.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", errs.Items())
	}
	if !strings.Contains(out, "struct l0_m_Point {") {
		t.Errorf("expected struct definition, got:\n%s", out)
	}
	if !strings.Contains(out, "struct l0_opt_m_Point {") {
		t.Errorf("expected nullable wrapper for struct type, got:\n%s", out)
	}
	if !strings.Contains(out, "l0_m_Point_new(") {
		t.Errorf("expected constructor, got:\n%s", out)
	}
	if !strings.Contains(out, "_rt_drop(p)") {
		t.Errorf("expected drop to call _rt_drop, got:\n%s", out)
	}
}

func TestLowerEnumGetsTaggedUnionAndVariantConstructors(t *testing.T) {
	src := `module m;

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
	return area(Circle(3));
}
`
	out, errs := lowerSource(t, src)
	if errs.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", errs.Items())
	}
	if !strings.Contains(out, "enum l0_m_Shape_tag {") {
		t.Errorf("expected tag enum, got:\n%s", out)
	}
	if !strings.Contains(out, "l0_m_Shape_Circle_new(") {
		t.Errorf("expected variant constructor, got:\n%s", out)
	}
	if !strings.Contains(out, "switch (") {
		t.Errorf("expected match to lower to a switch, got:\n%s", out)
	}
}

func TestLowerTryAsLetInitializerExpandsToEarlyReturn(t *testing.T) {
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
	out, errs := lowerSource(t, src)
	if errs.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", errs.Items())
	}
	if !strings.Contains(out, "l0_opt_int_unwrap(") {
		t.Errorf("expected try to unwrap via the optional wrapper, got:\n%s", out)
	}
	if !strings.Contains(out, "has_value") {
		t.Errorf("expected try's empty check against has_value, got:\n%s", out)
	}
}

func TestLowerEntryCallsInitArgsAndReturnsIntResult(t *testing.T) {
	src := `module m;

func main() -> int {
	return 14;
}
`
	out, errs := lowerSource(t, src)
	if errs.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", errs.Items())
	}
	if !strings.Contains(out, "int main(int argc, char **argv) {") {
		t.Errorf("expected the spec's entry signature, got:\n%s", out)
	}
	if !strings.Contains(out, "_rt_init_args(argc, argv);") {
		t.Errorf("expected _rt_init_args to run first, got:\n%s", out)
	}
	if !strings.Contains(out, "return (int)rc;") {
		t.Errorf("expected main's int result to be returned, got:\n%s", out)
	}
}

func TestLowerRefusesWhenErrorsAlreadyRecorded(t *testing.T) {
	errs := &diag.Bag{}
	errs.Errorf(diag.PhaseType+"-0001", "m.l0", "m", 1, 1, "synthetic error")
	unit := &types.CompilationUnit{Entry: "m", Modules: []string{"m"}}
	out := Lower(unit, map[string]*ast.Module{}, types.NewAnalysisResult(unit), errs, Toggles{})
	if out != "" {
		t.Fatalf("expected no output once errors were recorded, got:\n%s", out)
	}
}
