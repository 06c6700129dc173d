// Command l0c is a thin demo entry point wiring driver.Options to
// driver.Compile, in the style of lang/yasm/main.go's flag-parse-then-
// dispatch shape (module/search roots and codegen toggles as flags
// instead of wut4's assembler mode flags, an output path instead of
// wut4's -o object file).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/driver"
)

func main() {
	entry := flag.String("entry", "", "dotted name of the entry module")
	systemRoots := flag.String("system-roots", "", "comma-separated system search roots")
	projectRoots := flag.String("project-roots", ".", "comma-separated project search roots")
	output := flag.String("o", "", "output path for the generated C99 source")
	noLines := flag.Bool("disable-line-directives", false, "suppress #line directives in the generated source")
	traceARC := flag.Bool("trace-arc", false, "enable ARC tracing in the generated program")
	traceMemory := flag.Bool("trace-memory", false, "enable allocator tracing in the generated program")
	dumpSema := flag.Bool("dump-sema", false, "print a structural dump of the semantic analysis result")
	flag.Parse()

	if *entry == "" {
		fmt.Fprintln(os.Stderr, "l0c: -entry is required")
		os.Exit(1)
	}

	opts := driver.Options{
		EntryModule:           *entry,
		SystemRoots:           splitNonEmpty(*systemRoots),
		ProjectRoots:          splitNonEmpty(*projectRoots),
		DisableLineDirectives: *noLines,
		TraceARC:              *traceARC,
		TraceMemory:           *traceMemory,
		OutputPath:            *output,
		DebugDumpSema:         *dumpSema,
	}

	res, err := driver.Compile(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "l0c: %v\n", err)
		os.Exit(1)
	}

	renderer := diag.NewRenderer(os.Stderr, nil)
	renderer.RenderAll(os.Stderr, res.Diagnostics)

	if res.SemaDump != "" {
		fmt.Fprintln(os.Stderr, res.SemaDump)
	}

	if res.HasErrors {
		os.Exit(1)
	}

	if opts.OutputPath == "" {
		fmt.Print(res.Source)
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
