// Package driver orchestrates the compiler core's passes end to end
// (spec.md §6's Driver contract): load the entry module's transitive
// closure, run semantic analysis, lower to C99, and write the generated
// source and runtime header to disk.
//
// The teacher (lang/yld/linker.go, lang/yasm/assembler.go) runs each
// pass as its own os.Exit-on-failure package main; Compile keeps that
// same fixed pass order but threads a diag.Bag through instead of
// exiting, and returns everything the CLI collaborator needs to decide
// what to do next (SPEC_FULL.md §10).
package driver

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"gopkg.in/yaml.v2"

	"github.com/l0-lang/l0c/internal/backend"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/loader"
	"github.com/l0-lang/l0c/internal/runtime"
	"github.com/l0-lang/l0c/internal/sema"
)

var (
	logDriver = loggo.GetLogger("l0.driver")
	logLoader = loggo.GetLogger("l0.loader")
	logSema   = loggo.GetLogger("l0.sema")
	logBack   = loggo.GetLogger("l0.backend")
)

// Options is the Go shape of spec.md §6's Driver contract: everything
// needed to compile one entry module, loadable from a YAML document
// (e.g. l0.yaml) or built directly by a Go caller.
type Options struct {
	// EntryModule is the dotted name of the module whose main, if any,
	// becomes the generated program's entry point.
	EntryModule string `yaml:"entry_module"`

	// ProjectRoots are searched after SystemRoots (spec.md §6: "system
	// roots take precedence over project roots").
	SystemRoots  []string `yaml:"system_roots"`
	ProjectRoots []string `yaml:"project_roots"`

	// Codegen toggles (spec.md §4.8's Debuggability, §6).
	DisableLineDirectives bool `yaml:"disable_line_directives"`
	TraceARC              bool `yaml:"trace_arc"`
	TraceMemory           bool `yaml:"trace_memory"`

	// OutputPath is where the generated C99 source is written. Empty
	// means Compile only returns the text; no file is written.
	OutputPath string `yaml:"output_path"`

	// DebugDumpSema requests sema.Dump's structural snapshot be
	// included in Result.SemaDump (developer aid, never part of the
	// diagnostic plane).
	DebugDumpSema bool `yaml:"debug_dump_sema"`
}

// LoadOptions parses a YAML document into an Options value.
func LoadOptions(data []byte) (Options, error) {
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, errors.Annotate(err, "driver: parsing options YAML")
	}
	return o, nil
}

// Result is everything Compile produces for the CLI collaborator
// (spec.md §6: "emitted C99 translation unit as text; full diagnostics
// list ... an error flag").
type Result struct {
	Source      string
	Diagnostics *diag.Bag
	HasErrors   bool
	SemaDump    string
}

// Compile runs the full pipeline for opts.EntryModule: load, analyze,
// lower. Passes still run after earlier ones report errors so a single
// invocation surfaces as many diagnostics as it safely can (spec.md §3),
// except lowering itself, which refuses to run once any error has been
// recorded (spec.md §4.8).
func Compile(opts Options) (*Result, error) {
	errs := &diag.Bag{}

	logDriver.Debugf("compiling entry module %q", opts.EntryModule)

	ld := loader.New(opts.SystemRoots, opts.ProjectRoots, errs)
	logLoader.Tracef("loading closure of %q", opts.EntryModule)
	if _, err := ld.Load(opts.EntryModule); err != nil {
		logLoader.Debugf("load of %q failed: %v", opts.EntryModule, err)
	}
	unit, modules := ld.Closure(opts.EntryModule)
	logLoader.Debugf("closure of %q has %d module(s)", opts.EntryModule, len(unit.Modules))

	logSema.Tracef("running semantic analysis")
	result := sema.Analyze(unit, modules, errs)

	semaDump := ""
	if opts.DebugDumpSema {
		semaDump = sema.Dump(result)
	}

	errs.Sort()

	var source string
	if !errs.HasErrors() {
		logBack.Tracef("lowering to C99")
		toggles := backend.Toggles{
			DisableLineDirectives: opts.DisableLineDirectives,
			TraceARC:              opts.TraceARC,
			TraceMemory:           opts.TraceMemory,
		}
		source = backend.Lower(unit, modules, result, errs, toggles)
	} else {
		logBack.Debugf("skipping lowering: %d error(s) already recorded", countErrors(errs))
	}

	res := &Result{
		Source:      source,
		Diagnostics: errs,
		HasErrors:   errs.HasErrors(),
		SemaDump:    semaDump,
	}

	if opts.OutputPath != "" && !res.HasErrors {
		if err := writeOutput(opts.OutputPath, source); err != nil {
			return res, errors.Annotatef(err, "writing output to %s", opts.OutputPath)
		}
	}

	return res, nil
}

func countErrors(b *diag.Bag) int {
	n := 0
	for _, d := range b.Items() {
		if d.Severity == diag.Error {
			n++
		}
	}
	return n
}

// writeOutput writes the generated C99 source to path and l0_runtime.h
// alongside it in the same directory, so the output compiles standalone
// with any conforming C99 toolchain.
func writeOutput(path, source string) error {
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return errors.Trace(err)
	}
	headerPath := filepath.Join(filepath.Dir(path), "l0_runtime.h")
	if err := os.WriteFile(headerPath, []byte(runtime.Header), 0o644); err != nil {
		return errors.Trace(err)
	}
	return nil
}
