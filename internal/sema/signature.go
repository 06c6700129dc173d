package sema

import (
	"strings"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/types"
)

// sigResolver resolves every top-level type reference in the compilation
// unit (spec.md §4.5): function signatures, struct fields, enum variant
// payloads, alias targets, and top-level let types. It detects alias
// cycles and value-type (struct/enum-by-value) dependency cycles via
// three-color DFS, the same shape lang/yld/linker.go uses for its
// symbol-resolution passes (collect, then verify), generalized to a
// proper cycle-aware topological walk since type references (unlike
// linker symbol references) can legitimately cycle through pointers.
type sigResolver struct {
	envs    map[string]*types.ModuleEnv
	modules map[string]*ast.Module
	errs    *diag.Bag
	result  *types.AnalysisResult

	aliasColor map[string]int // 0=unvisited 1=visiting 2=done
	aliasType  map[string]*types.Type
}

const (
	colorWhite = 0
	colorGray  = 1
	colorBlack = 2
)

func resolveSignatures(unit *types.CompilationUnit, modules map[string]*ast.Module, envs map[string]*types.ModuleEnv, result *types.AnalysisResult, errs *diag.Bag) {
	r := &sigResolver{
		envs: envs, modules: modules, errs: errs, result: result,
		aliasColor: map[string]int{}, aliasType: map[string]*types.Type{},
	}

	for _, modName := range unit.Modules {
		mod, ok := modules[modName]
		if !ok {
			continue
		}
		for _, decl := range mod.Decls {
			if alias, ok := decl.(*ast.TypeAlias); ok {
				r.resolveAlias(modName, alias)
			}
		}
	}

	for _, modName := range unit.Modules {
		mod, ok := modules[modName]
		if !ok {
			continue
		}
		for _, decl := range mod.Decls {
			switch d := decl.(type) {
			case *ast.Struct:
				r.resolveStruct(modName, d)
			case *ast.Enum:
				r.resolveEnum(modName, d)
			case *ast.Func:
				r.resolveFuncType(modName, d.Name, d.Params, d.Ret, d.Span)
			case *ast.ExternFunc:
				r.resolveFuncType(modName, d.Name, d.Params, d.Ret, d.Span)
			case *ast.TopLet:
				r.resolveTopLet(modName, d)
			}
		}
	}

	r.checkValueCycles(unit, modules)
}

// resolveAlias resolves one alias target, detecting self-referential
// alias cycles (`type A = B; type B = A;`) via the gray/black coloring.
func (r *sigResolver) resolveAlias(module string, a *ast.TypeAlias) *types.Type {
	key := types.Qualify(module, a.Name)
	switch r.aliasColor[key] {
	case colorBlack:
		return r.aliasType[key]
	case colorGray:
		r.errs.Errorf(diag.PhaseSig+"-0001", "", module, a.Span.Line, a.Span.Col,
			"alias cycle involving %q", a.Name)
		return types.TVoid
	}
	r.aliasColor[key] = colorGray
	t := r.resolveTypeRef(module, a.Target)
	r.aliasColor[key] = colorBlack
	r.aliasType[key] = t
	r.result.AliasTypes[key] = t
	return t
}

// resolveTypeRef converts an ast.TypeRef to a semantic types.Type,
// resolving qualifiers, builtins, structs/enums/aliases, pointer depth,
// and the trailing nullable suffix.
func (r *sigResolver) resolveTypeRef(module string, ref *ast.TypeRef) *types.Type {
	base := r.resolveBase(module, ref)
	for i := 0; i < ref.PtrDepth; i++ {
		base = types.NewPointer(base)
	}
	if ref.Nullable {
		if base != nil && base.Kind == types.KNullable {
			r.errs.Errorf(diag.PhaseSig+"-0002", "", module, ref.Span.Line, ref.Span.Col, "nested nullable type is not allowed")
			return base
		}
		base = types.NewNullable(base)
	}
	return base
}

var builtinNames = map[string]*types.Type{
	"int": types.TInt, "byte": types.TByte, "bool": types.TBool,
	"string": types.TString, "void": types.TVoid,
}

func (r *sigResolver) resolveBase(module string, ref *ast.TypeRef) *types.Type {
	if len(ref.Qualifier) == 0 {
		if bt, ok := builtinNames[ref.Name]; ok {
			return bt
		}
	}

	declModule := module
	var sym *types.Symbol
	if len(ref.Qualifier) > 0 {
		declModule = strings.Join(ref.Qualifier, ".")
		env, ok := r.envs[declModule]
		if !ok {
			r.errs.Errorf(diag.PhaseSig+"-0003", "", module, ref.Span.Line, ref.Span.Col,
				"unknown module %q in qualified type %q", declModule, ref.Name)
			return types.TVoid
		}
		sym, ok = env.Locals[ref.Name]
		if !ok {
			r.errs.Errorf(diag.PhaseSig+"-0004", "", module, ref.Span.Line, ref.Span.Col,
				"unknown type %q in module %q", ref.Name, declModule)
			return types.TVoid
		}
	} else {
		env := r.envs[module]
		var ambiguous bool
		sym, ambiguous = env.Lookup(ref.Name)
		if ambiguous {
			r.errs.Errorf(diag.PhaseSig+"-0005", "", module, ref.Span.Line, ref.Span.Col,
				"%q is ambiguous between multiple imports", ref.Name)
			return types.TVoid
		}
		if sym == nil {
			r.errs.Errorf(diag.PhaseSig+"-0006", "", module, ref.Span.Line, ref.Span.Col,
				"unknown type name %q", ref.Name)
			return types.TVoid
		}
		declModule = sym.Module
	}

	switch sym.Kind {
	case types.SymStruct:
		return types.NewStruct(declModule, sym.Name)
	case types.SymEnum:
		return types.NewEnum(declModule, sym.Name)
	case types.SymTypeAlias:
		return r.resolveAlias(declModule, sym.AST.(*ast.TypeAlias))
	default:
		r.errs.Errorf(diag.PhaseSig+"-0007", "", module, ref.Span.Line, ref.Span.Col,
			"%q is a %s, not a type", ref.Name, sym.Kind)
		return types.TVoid
	}
}

func (r *sigResolver) resolveStruct(module string, d *ast.Struct) {
	key := types.Qualify(module, d.Name)
	if _, ok := r.result.StructInfos[key]; ok {
		return
	}
	info := &types.StructInfo{Module: module, Name: d.Name, AST: d}
	r.result.StructInfos[key] = info
	for _, f := range d.Fields {
		info.Fields = append(info.Fields, types.FieldInfo{Name: f.Name, Type: r.resolveTypeRef(module, f.Type)})
	}
}

func (r *sigResolver) resolveEnum(module string, d *ast.Enum) {
	key := types.Qualify(module, d.Name)
	if _, ok := r.result.EnumInfos[key]; ok {
		return
	}
	info := &types.EnumInfo{Module: module, Name: d.Name, AST: d}
	r.result.EnumInfos[key] = info
	for i, v := range d.Variants {
		vi := types.VariantInfo{Name: v.Name, Index: i}
		for _, f := range v.Payload {
			vi.Payload = append(vi.Payload, types.FieldInfo{Name: f.Name, Type: r.resolveTypeRef(module, f.Type)})
		}
		info.Variants = append(info.Variants, vi)
	}
}

func (r *sigResolver) resolveFuncType(module, name string, params []*ast.Param, ret *ast.TypeRef, span ast.Span) {
	key := types.Qualify(module, name)
	var paramTypes []*types.Type
	for _, p := range params {
		paramTypes = append(paramTypes, r.resolveTypeRef(module, p.Type))
	}
	result := types.TVoid
	if ret != nil {
		result = r.resolveTypeRef(module, ret)
	}
	r.result.FuncTypes[key] = types.NewFunc(paramTypes, result)
}

func (r *sigResolver) resolveTopLet(module string, d *ast.TopLet) {
	key := types.Qualify(module, d.Name)
	if d.Type != nil {
		r.result.LetTypes[key] = r.resolveTypeRef(module, d.Type)
	}
	// An inferred (Type == nil) top-level let's type is filled in by the
	// type checker once it types Init; see sema/check.go.
}

// checkValueCycles detects struct/enum fields that depend on themselves
// by value (directly or through a non-pointer nullable wrapper; a pointer
// breaks the cycle) — an infinitely sized C struct if lowered as-is.
func (r *sigResolver) checkValueCycles(unit *types.CompilationUnit, modules map[string]*ast.Module) {
	color := map[string]int{}

	var visit func(key, module, name string, span ast.Span) bool
	visit = func(key, module, name string, span ast.Span) bool {
		switch color[key] {
		case colorBlack:
			return false
		case colorGray:
			r.errs.Errorf(diag.PhaseSig+"-0008", "", module, span.Line, span.Col,
				"%q has an infinite size: value-type cycle through %q", name, name)
			return true
		}
		color[key] = colorGray
		cyc := false
		if info, ok := r.result.StructInfos[key]; ok {
			for _, f := range info.Fields {
				if depKey, depMod, depName, depSpan, ok := valueDep(f.Type, info.AST, f.Name); ok {
					if visit(depKey, depMod, depName, depSpan) {
						cyc = true
					}
				}
			}
		}
		if info, ok := r.result.EnumInfos[key]; ok {
			for _, v := range info.Variants {
				for _, f := range v.Payload {
					if depKey, depMod, depName, depSpan, ok := valueDep(f.Type, info.AST, f.Name); ok {
						if visit(depKey, depMod, depName, depSpan) {
							cyc = true
						}
					}
				}
			}
		}
		color[key] = colorBlack
		return cyc
	}

	for _, modName := range unit.Modules {
		mod, ok := modules[modName]
		if !ok {
			continue
		}
		for _, decl := range mod.Decls {
			switch d := decl.(type) {
			case *ast.Struct:
				visit(types.Qualify(modName, d.Name), modName, d.Name, d.Span)
			case *ast.Enum:
				visit(types.Qualify(modName, d.Name), modName, d.Name, d.Span)
			}
		}
	}
}

// valueDep reports the (key, module, name) of t's value-type dependency,
// if t is a struct/enum referenced by value, either directly or through a
// nullable wrapper (`T?` of a non-pointer T lowers to a C struct holding
// the value). A pointer, nullable or not, lowers to a fixed-size C
// pointer and breaks the size cycle.
func valueDep(t *types.Type, declSite interface{}, fieldName string) (key, module, name string, span ast.Span, ok bool) {
	if t != nil && t.Kind == types.KNullable && t.Inner != nil && t.Inner.Kind != types.KPointer {
		t = t.Inner
	}
	if t == nil || (t.Kind != types.KStruct && t.Kind != types.KEnum) {
		return "", "", "", ast.Span{}, false
	}
	sp := ast.Span{}
	switch d := declSite.(type) {
	case *ast.Struct:
		sp = d.Span
	case *ast.Enum:
		sp = d.Span
	}
	return types.Qualify(t.Module, t.Name), t.Module, t.Name, sp, true
}
