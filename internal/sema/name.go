// Package sema implements L0's semantic pipeline (spec.md §4.4–§4.7): name
// resolution, signature resolution, local scope resolution, and
// expression/statement type checking with match exhaustiveness.
//
// Grounded on lang/ysem/analyzer.go's two-phase "build symbol tables,
// then type check" Analyzer shape, split across files the way the
// teacher splits ast.go/ir.go/analyzer.go, and widened from WUT-4's
// single-file symbol tables (no imports) to L0's per-module environment
// with open imports and ambiguity tracking (spec.md §4.4).
package sema

import (
	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/types"
)

// resolveNames builds every module's ModuleEnv: first insert locally
// declared symbols (duplicate names are diagnosed), then open-import every
// exported symbol from each imported module (spec.md §4.4). The resolver
// itself never computes types; Symbol.Type is left nil, and no later pass
// sets it: the signature resolver records types in AnalysisResult's tables.
func resolveNames(unit *types.CompilationUnit, modules map[string]*ast.Module, errs *diag.Bag) map[string]*types.ModuleEnv {
	envs := make(map[string]*types.ModuleEnv, len(modules))
	for _, name := range unit.Modules {
		envs[name] = types.NewModuleEnv(name)
	}

	for _, name := range unit.Modules {
		mod, ok := modules[name]
		if !ok {
			continue
		}
		env := envs[name]
		for _, decl := range mod.Decls {
			declareLocal(env, decl, errs)
		}
	}

	for _, name := range unit.Modules {
		mod, ok := modules[name]
		if !ok {
			continue
		}
		env := envs[name]
		for _, imp := range mod.Imports {
			impEnv, ok := envs[imp.String()]
			if !ok {
				continue // unresolved import already diagnosed by the loader
			}
			for symName, sym := range impEnv.Locals {
				env.Imported[symName] = append(env.Imported[symName], sym)
			}
		}
		for symName, syms := range env.Imported {
			if _, isLocal := env.Locals[symName]; isLocal {
				continue
			}
			if len(syms) == 1 {
				env.Merged[symName] = syms[0]
			}
			// len > 1 is ambiguous: left out of Merged; flagged on use.
		}
	}

	return envs
}

func declareLocal(env *types.ModuleEnv, decl ast.TopDecl, errs *diag.Bag) {
	declare := func(kind types.SymbolKind, name string, backlink interface{}, span ast.Span) {
		if name == "" {
			return
		}
		if existing, ok := env.Locals[name]; ok {
			errs.Errorf(diag.PhaseName+"-0001", "", env.Module, span.Line, span.Col,
				"%q is already declared as a %s in this module", name, existing.Kind)
			return
		}
		env.Locals[name] = &types.Symbol{Kind: kind, Module: env.Module, Name: name, AST: backlink}
	}

	switch d := decl.(type) {
	case *ast.Func:
		declare(types.SymFunc, d.Name, d, d.Span)
	case *ast.ExternFunc:
		declare(types.SymFunc, d.Name, d, d.Span)
	case *ast.Struct:
		declare(types.SymStruct, d.Name, d, d.Span)
	case *ast.Enum:
		declare(types.SymEnum, d.Name, d, d.Span)
		for _, v := range d.Variants {
			declare(types.SymEnumVariant, v.Name, [2]interface{}{d, v}, v.Span)
		}
	case *ast.TypeAlias:
		declare(types.SymTypeAlias, d.Name, d, d.Span)
	case *ast.TopLet:
		declare(types.SymLet, d.Name, d, d.Span)
	}
}
