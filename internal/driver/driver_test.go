package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-test/deep"
)

func writeModule(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name+".l0")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompileCleanProgramProducesC99(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "m", `module m;

func main() -> int {
	return 2 + 3 * 4;
}
`)

	res, err := Compile(Options{EntryModule: "m", ProjectRoots: []string{dir}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.HasErrors {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics.Items())
	}
	if !strings.Contains(res.Source, `#include "l0_runtime.h"`) {
		t.Fatalf("generated source missing runtime include:\n%s", res.Source)
	}
	if !strings.Contains(res.Source, "int main(int argc, char **argv)") {
		t.Fatalf("generated source missing entry wrapper:\n%s", res.Source)
	}
}

func TestCompileReportsDiagnosticsWithoutLowering(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "m", `module m;

func f(x: int) -> int {
	if (x > 0) {
		return x;
	}
}
`)

	res, err := Compile(Options{EntryModule: "m", ProjectRoots: []string{dir}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.HasErrors {
		t.Fatal("expected a missing-return-path diagnostic")
	}
	if res.Source != "" {
		t.Fatalf("expected no lowered source once errors were recorded, got:\n%s", res.Source)
	}
}

func TestCompileWritesOutputFiles(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "m", `module m;

func main() -> int {
	return 0;
}
`)
	outPath := filepath.Join(dir, "out.c")

	res, err := Compile(Options{EntryModule: "m", ProjectRoots: []string{dir}, OutputPath: outPath})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.HasErrors {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics.Items())
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if diff := deep.Equal(string(got), res.Source); diff != nil {
		t.Fatalf("written source differs from returned source: %v", diff)
	}

	headerPath := filepath.Join(dir, "l0_runtime.h")
	if _, err := os.Stat(headerPath); err != nil {
		t.Fatalf("expected l0_runtime.h next to output: %v", err)
	}
}

func TestLoadOptionsParsesYAML(t *testing.T) {
	yamlDoc := []byte(`
entry_module: m
project_roots: ["/a", "/b"]
trace_arc: true
output_path: out.c
`)
	opts, err := LoadOptions(yamlDoc)
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	want := Options{
		EntryModule:  "m",
		ProjectRoots: []string{"/a", "/b"},
		TraceARC:     true,
		OutputPath:   "out.c",
	}
	if diff := deep.Equal(opts, want); diff != nil {
		t.Fatalf("unexpected options: %v", diff)
	}
}
