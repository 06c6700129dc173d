package sema

import (
	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/types"
)

// scopeResolver builds one FunctionEnv per non-extern function (spec.md
// §4.6): parameters in the root scope; each block, for-header,
// with-header, and match-arm introduces a child scope; pattern variables
// are inserted into their arm's scope (with their payload type filled in
// later by the type checker, once the scrutinee's enum type is known —
// see sema/check.go's checkMatch); the wildcard never binds.
type scopeResolver struct {
	errs *diag.Bag
}

func resolveLocalScopes(unit *types.CompilationUnit, modules map[string]*ast.Module, result *types.AnalysisResult, errs *diag.Bag) {
	r := &scopeResolver{errs: errs}
	for _, modName := range unit.Modules {
		mod, ok := modules[modName]
		if !ok {
			continue
		}
		for _, decl := range mod.Decls {
			fn, ok := decl.(*ast.Func)
			if !ok || fn.Body == nil {
				continue
			}
			fe := types.NewFunctionEnv()
			for _, p := range fn.Params {
				r.declare(fe.Root, p.Name, nil, p.Span, modName)
			}
			r.walkBlock(fn.Body, fe.Root, fe, modName)
			result.FuncEnvs[types.Qualify(modName, fn.Name)] = fe
		}
	}
}

func (r *scopeResolver) declare(scope *types.Scope, name string, t *types.Type, span ast.Span, module string) *types.Binding {
	b := &types.Binding{Name: name, Type: t, Span: span}
	if !scope.Declare(name, b) {
		r.errs.Errorf(diag.PhaseLocal+"-0001", "", module, span.Line, span.Col,
			"%q is already declared in this scope", name)
	}
	return b
}

// walkBlock resolves a block's own scope (one child of parent) and every
// statement within it.
func (r *scopeResolver) walkBlock(b *ast.Block, parent *types.Scope, fe *types.FunctionEnv, module string) {
	scope := types.NewScope(parent)
	fe.ScopeOf[b] = scope
	for _, s := range b.Stmts {
		r.walkStmt(s, scope, fe, module)
	}
}

func (r *scopeResolver) walkStmt(s ast.Stmt, scope *types.Scope, fe *types.FunctionEnv, module string) {
	switch st := s.(type) {
	case *ast.Block:
		r.walkBlock(st, scope, fe, module)
	case *ast.Let:
		r.declare(scope, st.Name, nil, st.Span, module)
	case *ast.If:
		r.walkBlock(st.Then, scope, fe, module)
		if st.Else != nil {
			r.walkStmt(st.Else, scope, fe, module)
		}
	case *ast.While:
		r.walkBlock(st.Body, scope, fe, module)
	case *ast.For:
		forScope := types.NewScope(scope)
		fe.ScopeOf[st] = forScope
		if st.Init != nil {
			r.walkStmt(st.Init, forScope, fe, module)
		}
		if st.Step != nil {
			r.walkStmt(st.Step, forScope, fe, module)
		}
		r.walkBlock(st.Body, forScope, fe, module)
	case *ast.With:
		withScope := types.NewScope(scope)
		fe.ScopeOf[st] = withScope
		for _, item := range st.Items {
			r.declare(withScope, item.Name, nil, item.Span, module)
			if item.Cleanup != nil {
				r.walkStmt(item.Cleanup, withScope, fe, module)
			}
		}
		r.walkBlock(st.Body, withScope, fe, module)
		if st.Cleanup != nil {
			r.walkBlock(st.Cleanup, withScope, fe, module)
		}
	case *ast.Match:
		for _, arm := range st.Arms {
			armScope := types.NewScope(scope)
			fe.ScopeOf[arm] = armScope
			if vp, ok := arm.Pattern.(*ast.VariantPattern); ok {
				for _, v := range vp.Vars {
					r.declare(armScope, v, nil, arm.Span, module)
				}
			}
			r.walkBlock(arm.Body, armScope, fe, module)
		}
	case *ast.Case:
		for _, arm := range st.Arms {
			r.walkBlock(arm.Body, scope, fe, module)
		}
	case *ast.Drop, *ast.ExprStmt, *ast.Assign, *ast.Break, *ast.Continue, *ast.Return:
		// No scope introduced and nothing declared; the type checker
		// resolves variable references against the tree built here.
	}
}
