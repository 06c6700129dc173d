package sema

import (
	"github.com/kr/pretty"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/types"
)

// Analyze runs the full semantic pipeline over a loaded compilation unit
// (spec.md §4.4–§4.7), in the fixed pass order the spec mandates: name
// resolution, signature resolution, local scope resolution, then type
// checking. Each pass reports into errs and later passes still run even
// after earlier ones found errors, so a single compile reports as many
// diagnostics as it safely can (spec.md §3: "Diagnostics accumulate
// across passes").
func Analyze(unit *types.CompilationUnit, modules map[string]*ast.Module, errs *diag.Bag) *types.AnalysisResult {
	result := types.NewAnalysisResult(unit)

	envs := resolveNames(unit, modules, errs)
	result.ModuleEnvs = envs

	resolveSignatures(unit, modules, envs, result, errs)
	resolveLocalScopes(unit, modules, result, errs)
	checkFunctions(unit, modules, envs, result, errs)

	return result
}

// Dump renders a human-readable snapshot of result for compiler-internal
// debugging (l0c -dump-sema); never part of the diagnostic plane seen by
// ordinary users.
func Dump(result *types.AnalysisResult) string {
	return pretty.Sprint(result)
}
