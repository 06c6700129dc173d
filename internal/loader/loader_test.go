package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
)

func writeModule(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name+".l0")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadResolvesDottedNameToPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeModule(t, filepath.Join(dir, "a"), "b", "module a.b;\nfunc f() {}\n")

	bag := &diag.Bag{}
	l := New(nil, []string{dir}, bag)
	mod, err := l.Load("a.b")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mod.Name.String() != "a.b" {
		t.Fatalf("got module name %q", mod.Name.String())
	}
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
}

func TestSystemRootsTakePrecedence(t *testing.T) {
	sys := t.TempDir()
	proj := t.TempDir()
	writeModule(t, sys, "m", "module m;\nfunc f() -> int { return 1; }\n")
	writeModule(t, proj, "m", "module m;\nfunc f() -> int { return 2; }\n")

	bag := &diag.Bag{}
	l := New([]string{sys}, []string{proj}, bag)
	mod, err := l.Load("m")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fn := mod.Decls[0]
	if fn.GetSpan().Line == 0 {
		t.Fatal("expected a parsed function")
	}
	ret := fn.(*ast.Func).Body.Stmts[0].(*ast.Return)
	if got := ret.Value.(*ast.IntLit).Value; got != 1 {
		t.Fatalf("f returns %d, want 1 (the system-root module)", got)
	}
}

func TestImportCycleReportsAllModulesOnce(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "a", "module a;\nimport b;\n")
	writeModule(t, dir, "b", "module b;\nimport a;\n")

	bag := &diag.Bag{}
	l := New(nil, []string{dir}, bag)
	l.Load("a")

	var cycleDiags int
	for _, d := range bag.Items() {
		if d.Code == diag.PhaseDriver+"-0003" {
			cycleDiags++
		}
	}
	if cycleDiags != 1 {
		t.Fatalf("got %d cycle diagnostics, want 1: %v", cycleDiags, bag.Items())
	}
}

func TestClosureIsLeavesFirst(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "leaf", "module leaf;\nfunc f() {}\n")
	writeModule(t, dir, "mid", "module mid;\nimport leaf;\nfunc g() {}\n")
	writeModule(t, dir, "top", "module top;\nimport mid;\nfunc h() {}\n")

	bag := &diag.Bag{}
	l := New(nil, []string{dir}, bag)
	if _, err := l.Load("top"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	unit, modules := l.Closure("top")
	if len(modules) != 3 {
		t.Fatalf("got %d modules, want 3: %v", len(modules), unit.Modules)
	}
	pos := make(map[string]int)
	for i, m := range unit.Modules {
		pos[m] = i
	}
	if pos["leaf"] > pos["mid"] || pos["mid"] > pos["top"] {
		t.Fatalf("not leaves-first: %v", unit.Modules)
	}
}

func TestModuleNameMustMatchDeclaredName(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "wrong", "module notwrong;\nfunc f() {}\n")

	bag := &diag.Bag{}
	l := New(nil, []string{dir}, bag)
	l.Load("wrong")
	if !bag.HasErrors() {
		t.Fatalf("expected a diagnostic for mismatched module name")
	}
}
