// Package backend lowers a type-checked compilation unit to C99 source
// text (spec.md §4.8): name mangling, struct/enum/pointer/nullable type
// lowering, checked-arithmetic and ARC runtime calls, with/try cleanup
// ordering, and the process entry wrapper.
//
// Grounded on lang/ygen/emit.go's Emitter (raw-text helpers over a
// bufio.Writer, NewLabel for fresh names), widened from WUT-4's
// assembly-instruction emission to C statement/expression text, and on
// lang/ygen/ir_types.go's per-construct lowering dispatch (one lower*
// function per IR node kind) for the overall walk shape.
package backend

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/types"
)

// Emitter accumulates C99 source text with indentation tracking, the way
// lang/ygen/emit.go's Emitter accumulates assembly text with label
// numbering.
type Emitter struct {
	buf    bytes.Buffer
	indent int
	labels int
}

func NewEmitter() *Emitter { return &Emitter{} }

func (e *Emitter) Line(format string, args ...interface{}) {
	e.buf.WriteString(strings.Repeat("    ", e.indent))
	fmt.Fprintf(&e.buf, format, args...)
	e.buf.WriteByte('\n')
}

func (e *Emitter) Raw(s string) { e.buf.WriteString(s) }

func (e *Emitter) Blank() { e.buf.WriteByte('\n') }

func (e *Emitter) Open(format string, args ...interface{}) {
	e.Line(format, args...)
	e.indent++
}

func (e *Emitter) Close(format string, args ...interface{}) {
	e.indent--
	e.Line(format, args...)
}

// NewLabel generates a fresh C label name, the way lang/ygen/emit.go's
// Emitter.NewLabel generates fresh assembly labels.
func (e *Emitter) NewLabel(prefix string) string {
	l := fmt.Sprintf("l0_lbl_%s_%d", prefix, e.labels)
	e.labels++
	return l
}

func (e *Emitter) String() string { return e.buf.String() }

// ---------------------------------------------------------------------
// Name mangling
// ---------------------------------------------------------------------

func mangleModule(m string) string { return strings.ReplaceAll(m, ".", "_") }

func mangleType(module, name string) string { return "l0_" + mangleModule(module) + "_" + name }

func mangleFunc(module, name string) string { return "l0_" + mangleModule(module) + "_" + name }

func mangleVariantTag(module, enumName, variantName string) string {
	return mangleType(module, enumName) + "_" + variantName
}

func mangleVariantCtor(module, enumName, variantName string) string {
	return mangleVariantTag(module, enumName, variantName) + "_new"
}

func mangleStructCtor(module, name string) string { return mangleType(module, name) + "_new" }

// ---------------------------------------------------------------------
// Lower: top-level entry point
// ---------------------------------------------------------------------

// Toggles are the codegen options spec.md §4.8/§6 name: disabling #line
// directives, and enabling the ARC/memory tracing macros the runtime
// header gates behind L0_TRACE_ARC/L0_TRACE_MEMORY.
type Toggles struct {
	DisableLineDirectives bool
	TraceARC              bool
	TraceMemory           bool
}

// Lower emits complete, freestanding C99 source for unit: the runtime
// contract header include, every struct/enum type and constructor,
// every function, and, when the entry module defines `main`, a process
// entry wrapper calling it (spec.md §4.9's "Driver contract").
func Lower(unit *types.CompilationUnit, modules map[string]*ast.Module, result *types.AnalysisResult, errs *diag.Bag, toggles Toggles) string {
	if errs.HasErrors() {
		errs.ICE("", "", 0, 0, "lowering attempted with outstanding errors; refusing to emit C99")
		return ""
	}

	l := &lowerer{modules: modules, result: result, errs: errs, e: NewEmitter(), toggles: toggles}

	l.e.Line("/* generated by l0c; do not edit */")
	if toggles.TraceARC {
		l.e.Line("#define L0_TRACE_ARC 1")
	}
	if toggles.TraceMemory {
		l.e.Line("#define L0_TRACE_MEMORY 1")
	}
	l.e.Line(`#include "l0_runtime.h"`)
	l.e.Blank()

	l.emitOptionalWrapper("l0_int", "l0_opt_int")
	l.emitOptionalWrapper("l0_byte", "l0_opt_byte")
	l.emitOptionalWrapper("l0_bool", "l0_opt_bool")
	l.emitOptionalWrapper("l0_string", "l0_opt_string")

	l.lowerTypesInDependencyOrder()

	for _, modName := range unit.Modules {
		mod := modules[modName]
		if mod == nil {
			continue
		}
		for _, decl := range mod.Decls {
			if ef, ok := decl.(*ast.ExternFunc); ok {
				l.lowerExternProto(modName, ef)
			}
		}
	}

	for _, modName := range unit.Modules {
		mod := modules[modName]
		if mod == nil {
			continue
		}
		for _, decl := range mod.Decls {
			if tl, ok := decl.(*ast.TopLet); ok {
				l.lowerTopLet(modName, tl)
			}
		}
	}

	for _, modName := range unit.Modules {
		mod := modules[modName]
		if mod == nil {
			continue
		}
		for _, decl := range mod.Decls {
			if fn, ok := decl.(*ast.Func); ok && fn.Body != nil {
				l.lowerFunc(modName, fn)
			}
		}
	}

	l.lowerEntry(unit)

	return l.e.String()
}

type lowerer struct {
	modules map[string]*ast.Module
	result  *types.AnalysisResult
	errs    *diag.Bag
	e       *Emitter

	module   string
	fnResult *types.Type // declared result type of the function currently being lowered
	toggles  Toggles
}

// ---------------------------------------------------------------------
// Type lowering
// ---------------------------------------------------------------------

// cType renders t as a C99 type spelling usable in a declaration.
func (l *lowerer) cType(t *types.Type) string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case types.Int:
		return "l0_int"
	case types.Byte:
		return "l0_byte"
	case types.Bool:
		return "l0_bool"
	case types.String:
		return "l0_string"
	case types.Void:
		return "void"
	case types.KStruct, types.KEnum:
		return "struct " + mangleType(t.Module, t.Name)
	case types.KPointer:
		return l.cType(t.Inner) + "*"
	case types.KNullable:
		if t.Inner != nil && t.Inner.Kind == types.KPointer {
			// Absence is represented by the null pointer itself.
			return l.cType(t.Inner)
		}
		return "struct " + l.optionalTypeName(t.Inner)
	case types.KFunc:
		return l.cType(t.Result) + " (*)(" + l.cParamList(t.Params) + ")"
	default:
		return "void"
	}
}

func (l *lowerer) cParamList(params []*types.Type) string {
	if len(params) == 0 {
		return "void"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = l.cType(p)
	}
	return strings.Join(parts, ", ")
}

// emitOptionalWrapper emits a T? wrapper struct plus its `_some`
// (construct-from-value) and `_unwrap` (checked narrow-to-T) helpers
// (spec.md §4.9: "optional wrappers for each common payload type").
// `_unwrap` panics through the runtime when the wrapper is empty, the
// checked-unwrap path spec.md §7 calls out as a defined runtime failure.
func (l *lowerer) emitOptionalWrapper(payloadCType, optName string) {
	l.e.Open("struct %s {", optName)
	l.e.Line("l0_bool has_value;")
	l.e.Line("%s value;", payloadCType)
	l.e.Close("};")
	l.e.Blank()

	l.e.Open("static inline struct %s %s_some(%s v) {", optName, optName, payloadCType)
	l.e.Line("struct %s r;", optName)
	l.e.Line("r.has_value = (l0_bool)1;")
	l.e.Line("r.value = v;")
	l.e.Line("return r;")
	l.e.Close("}")
	l.e.Blank()

	l.e.Open("static inline %s %s_unwrap(struct %s o) {", payloadCType, optName, optName)
	l.e.Open("if (!o.has_value) {")
	l.e.Line("_rt_panic_unwrap();")
	l.e.Close("}")
	l.e.Line("return o.value;")
	l.e.Close("}")
	l.e.Blank()
}

// optionalTypeName names the generated wrapper struct for T? where T is
// not itself a pointer (spec.md §4.8's nullable representation: pointer
// nullables fold into the pointer's own NULL, everything else needs an
// explicit has_value flag).
func (l *lowerer) optionalTypeName(inner *types.Type) string {
	switch inner.Kind {
	case types.Int:
		return "l0_opt_int"
	case types.Byte:
		return "l0_opt_byte"
	case types.Bool:
		return "l0_opt_bool"
	case types.String:
		return "l0_opt_string"
	case types.KStruct, types.KEnum:
		return "l0_opt_" + mangleType(inner.Module, inner.Name)[len("l0_"):]
	default:
		return "l0_opt_value"
	}
}

// ---------------------------------------------------------------------
// Struct / enum declarations
// ---------------------------------------------------------------------

// lowerTypesInDependencyOrder emits every struct/enum type once, in a
// topological order of their by-value field dependencies, ties broken
// lexicographically by (module, name) for determinism (spec.md §5). A
// type referencing another by value needs that other type's C
// definition already in scope; pointer and nullable-pointer fields
// don't force an order since they lower to a plain pointer.
func (l *lowerer) lowerTypesInDependencyOrder() {
	var keys []string
	for k := range l.result.StructInfos {
		keys = append(keys, k)
	}
	for k := range l.result.EnumInfos {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	emitted := map[string]bool{}
	var emit func(key string)
	emit = func(key string) {
		if emitted[key] {
			return
		}
		emitted[key] = true
		for _, dep := range sortedKeys(l.valueDeps(key)) {
			emit(dep)
		}
		if info, ok := l.result.StructInfos[key]; ok {
			l.lowerStruct(info.Module, info.AST)
		} else if info, ok := l.result.EnumInfos[key]; ok {
			l.lowerEnum(info.Module, info.AST)
		}
	}
	for _, key := range keys {
		emit(key)
	}
}

func sortedKeys(m map[string]bool) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// valueDeps reports the set of struct/enum keys key's fields reference
// by value, directly or through a non-pointer nullable wrapper (whose C
// struct holds the value); pointer and nullable-pointer fields don't count.
func (l *lowerer) valueDeps(key string) map[string]bool {
	deps := map[string]bool{}
	add := func(fields []types.FieldInfo) {
		for _, f := range fields {
			ft := f.Type
			if ft != nil && ft.Kind == types.KNullable && ft.Inner != nil && ft.Inner.Kind != types.KPointer {
				ft = ft.Inner
			}
			if ft != nil && (ft.Kind == types.KStruct || ft.Kind == types.KEnum) {
				deps[types.Qualify(ft.Module, ft.Name)] = true
			}
		}
	}
	if info, ok := l.result.StructInfos[key]; ok {
		add(info.Fields)
	}
	if info, ok := l.result.EnumInfos[key]; ok {
		for _, v := range info.Variants {
			add(v.Payload)
		}
	}
	return deps
}

func (l *lowerer) lowerStruct(module string, d *ast.Struct) {
	info := l.result.StructInfos[types.Qualify(module, d.Name)]
	if info == nil {
		return
	}
	name := mangleType(module, d.Name)
	l.e.Open("struct %s {", name)
	for _, f := range info.Fields {
		l.e.Line("%s %s;", l.cType(f.Type), f.Name)
	}
	if len(info.Fields) == 0 {
		l.e.Line("char _l0_dummy;")
	}
	l.e.Close("};")
	l.e.Blank()

	l.emitOptionalWrapper("struct "+name, l.optionalTypeName(types.NewStruct(module, d.Name)))

	if info.HasARCField(l.result.StructHasARC, l.result.EnumHasARC) {
		l.lowerFieldRetainRelease(name, "struct "+name, info.Fields, func(recv, fn string) string {
			return fmt.Sprintf("%s->%s", recv, fn)
		})
	}

	// Constructor: allocates through the `new`/`drop` tracker (spec.md
	// §4.9's `_rt_alloc_obj`), field-initializes, then retains every
	// ARC-bearing field.
	params := make([]string, len(info.Fields))
	for i, f := range info.Fields {
		params[i] = fmt.Sprintf("%s f%d", l.cType(f.Type), i)
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	l.e.Open("static inline struct %s *%s(%s) {", name, mangleStructCtor(module, d.Name), strings.Join(params, ", "))
	l.e.Line("struct %s *v = (struct %s *)_rt_alloc_obj(sizeof(struct %s));", name, name, name)
	for i, f := range info.Fields {
		l.e.Line("v->%s = f%d;", f.Name, i)
	}
	if info.HasARCField(l.result.StructHasARC, l.result.EnumHasARC) {
		l.e.Line("%s_retain_fields(v);", name)
	}
	l.e.Line("return v;")
	l.e.Close("}")
	l.e.Blank()
}

// lowerFieldRetainRelease emits the <name>_retain_fields/<name>_release_fields
// pair a struct or enum-variant-payload gets once any field is ARC-bearing
// (spec.md §4.8's "owned-field cleanup" emitted before `_rt_drop`): a string
// field retains/releases directly, a nested struct/enum field defers to its
// own generated pair.
func (l *lowerer) lowerFieldRetainRelease(name, recvType string, fields []types.FieldInfo, access func(recv, field string) string) {
	for _, verb := range []string{"retain", "release"} {
		l.e.Open("static inline void %s_%s_fields(%s *v) {", name, verb, recvType)
		for _, f := range fields {
			if !f.Type.IsARC(l.result.StructHasARC, l.result.EnumHasARC) {
				continue
			}
			expr := access("v", f.Name)
			switch f.Type.Kind {
			case types.String:
				l.e.Line("rt_string_%s(&%s);", verb, expr)
			case types.KStruct, types.KEnum:
				l.e.Line("%s_%s_fields(&%s);", mangleType(f.Type.Module, f.Type.Name), verb, expr)
			}
		}
		l.e.Close("}")
		l.e.Blank()
	}
}

func (l *lowerer) lowerEnum(module string, d *ast.Enum) {
	info := l.result.EnumInfos[types.Qualify(module, d.Name)]
	if info == nil {
		return
	}
	name := mangleType(module, d.Name)

	var tags []string
	for _, v := range info.Variants {
		tags = append(tags, fmt.Sprintf("%s = %d", mangleVariantTag(module, d.Name, v.Name), v.Index))
	}
	if len(tags) == 0 {
		tags = []string{fmt.Sprintf("%s_no_variants = 0", name)}
	}
	l.e.Line("enum %s_tag { %s };", name, strings.Join(tags, ", "))
	l.e.Blank()

	l.e.Open("struct %s {", name)
	l.e.Line("enum %s_tag tag;", name)
	l.e.Open("union {")
	for _, v := range info.Variants {
		l.e.Open("struct {")
		for _, f := range v.Payload {
			l.e.Line("%s %s;", l.cType(f.Type), f.Name)
		}
		if len(v.Payload) == 0 {
			l.e.Line("char _l0_dummy;")
		}
		l.e.Close("} %s;", v.Name)
	}
	if len(info.Variants) == 0 {
		l.e.Line("char _l0_dummy;")
	}
	l.e.Close("} as;")
	l.e.Close("};")
	l.e.Blank()

	l.emitOptionalWrapper("struct "+name, l.optionalTypeName(types.NewEnum(module, d.Name)))

	for _, v := range info.Variants {
		vname := v.Name
		if hasARCPayload(v, l.result) {
			l.lowerFieldRetainRelease(mangleVariantTag(module, d.Name, v.Name), "struct "+name, v.Payload, func(recv, fn string) string {
				return fmt.Sprintf("%s->as.%s.%s", recv, vname, fn)
			})
		}
	}

	if info.HasARCPayload(l.result.StructHasARC, l.result.EnumHasARC) {
		l.lowerEnumFieldRetainRelease(module, d.Name, name, info)
	}

	for _, v := range info.Variants {
		params := make([]string, len(v.Payload))
		for i, f := range v.Payload {
			params[i] = fmt.Sprintf("%s f%d", l.cType(f.Type), i)
		}
		if len(params) == 0 {
			params = []string{"void"}
		}
		l.e.Open("static inline struct %s %s(%s) {", name, mangleVariantCtor(module, d.Name, v.Name), strings.Join(params, ", "))
		l.e.Line("struct %s v;", name)
		l.e.Line("v.tag = %s;", mangleVariantTag(module, d.Name, v.Name))
		for i, f := range v.Payload {
			l.e.Line("v.as.%s.%s = f%d;", v.Name, f.Name, i)
		}
		if hasARCPayload(v, l.result) {
			l.e.Line("%s_retain_fields(&v);", mangleVariantTag(module, d.Name, v.Name))
		}
		l.e.Line("return v;")
		l.e.Close("}")
		l.e.Blank()
	}
}

func hasARCPayload(v types.VariantInfo, result *types.AnalysisResult) bool {
	for _, f := range v.Payload {
		if f.Type.IsARC(result.StructHasARC, result.EnumHasARC) {
			return true
		}
	}
	return false
}

// lowerEnumFieldRetainRelease emits the enum-wide <name>_retain_fields/
// <name>_release_fields pair that switches on the tag and defers to
// whichever variant's own helper applies (spec.md §4.8: "emitting
// owned-field cleanup for the struct/enum pointed to" before `_rt_drop`).
func (l *lowerer) lowerEnumFieldRetainRelease(module, enumName, name string, info *types.EnumInfo) {
	for _, verb := range []string{"retain", "release"} {
		l.e.Open("static inline void %s_%s_fields(struct %s *v) {", name, verb, name)
		l.e.Open("switch (v->tag) {")
		for _, v := range info.Variants {
			if !hasARCPayload(v, l.result) {
				continue
			}
			l.e.Line("case %s: %s_%s_fields(v); break;", mangleVariantTag(module, enumName, v.Name), mangleVariantTag(module, enumName, v.Name), verb)
		}
		l.e.Line("default: break;")
		l.e.Close("}")
		l.e.Close("}")
		l.e.Blank()
	}
}

func (l *lowerer) lowerExternProto(module string, d *ast.ExternFunc) {
	ft := l.result.FuncTypes[types.Qualify(module, d.Name)]
	if ft == nil {
		return
	}
	var params []string
	for i, p := range ft.Params {
		params = append(params, fmt.Sprintf("%s p%d", l.cType(p), i))
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	l.e.Line("extern %s %s(%s);", l.cType(ft.Result), mangleFunc(module, d.Name), strings.Join(params, ", "))
}

func (l *lowerer) lowerTopLet(module string, d *ast.TopLet) {
	t := l.result.LetTypes[types.Qualify(module, d.Name)]
	l.e.Line("static %s %s = %s;", l.cType(t), mangleFunc(module, d.Name)+"_let", l.lowerExpr(module, d.Init))
}

// ---------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------

func (l *lowerer) lowerFunc(module string, fn *ast.Func) {
	ft := l.result.FuncTypes[types.Qualify(module, fn.Name)]
	if ft == nil {
		return
	}
	l.module = module
	l.fnResult = ft.Result

	var params []string
	for i, p := range fn.Params {
		params = append(params, fmt.Sprintf("%s %s", l.cType(ft.Params[i]), p.Name))
	}
	if len(params) == 0 {
		params = []string{"void"}
	}

	l.e.Open("%s %s(%s) {", l.cType(ft.Result), mangleFunc(module, fn.Name), strings.Join(params, ", "))
	l.lowerBlockBody(fn.Body)
	l.e.Close("}")
	l.e.Blank()
}

func (l *lowerer) lowerBlockBody(b *ast.Block) {
	for _, s := range b.Stmts {
		l.lowerStmt(s)
	}
}

// ---------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------

func (l *lowerer) lowerStmt(s ast.Stmt) {
	if !l.toggles.DisableLineDirectives {
		sp := s.GetSpan()
		if sp.Line > 0 {
			l.e.Line("#line %d %q", sp.Line, l.module+".l0")
		}
	}
	switch st := s.(type) {
	case *ast.Block:
		l.e.Open("{")
		l.lowerBlockBody(st)
		l.e.Close("}")

	case *ast.Let:
		t := l.exprType(st.Init)
		if tr, ok := st.Init.(*ast.Try); ok {
			l.lowerTryInto(fmt.Sprintf("%s %s", l.cType(t), st.Name), tr)
		} else {
			l.e.Line("%s %s = %s;", l.cType(t), st.Name, l.lowerExpr(l.module, st.Init))
		}

	case *ast.Assign:
		l.e.Line("%s = %s;", l.lowerExpr(l.module, st.Target), l.lowerExpr(l.module, st.Value))

	case *ast.ExprStmt:
		l.e.Line("%s;", l.lowerExpr(l.module, st.X))

	case *ast.If:
		l.e.Open("if (%s) {", l.lowerExpr(l.module, st.Cond))
		l.lowerBlockBody(st.Then)
		if st.Else == nil {
			l.e.Close("}")
		} else {
			l.e.indent--
			l.e.Line("} else")
			l.e.indent++
			l.lowerStmt(st.Else)
		}

	case *ast.While:
		l.e.Open("while (%s) {", l.lowerExpr(l.module, st.Cond))
		l.lowerBlockBody(st.Body)
		l.e.Close("}")

	case *ast.For:
		init, cond, step := "", "", ""
		if st.Init != nil {
			init = l.lowerForClause(st.Init)
		}
		if st.Cond != nil {
			cond = l.lowerExpr(l.module, st.Cond)
		}
		if st.Step != nil {
			step = l.lowerForClause(st.Step)
		}
		l.e.Open("for (%s; %s; %s) {", init, cond, step)
		l.lowerBlockBody(st.Body)
		l.e.Close("}")

	case *ast.With:
		l.lowerWith(st)

	case *ast.Match:
		l.lowerMatch(st)

	case *ast.Case:
		l.lowerCase(st)

	case *ast.Drop:
		t := l.exprType(st.Target)
		target := l.lowerExpr(l.module, st.Target)
		if t != nil && isPointerLikeType(t) {
			pointee := t
			if pointee.Kind == types.KNullable {
				pointee = pointee.Inner
			}
			pointee = pointee.Inner
			if pointee != nil && pointee.IsARC(l.result.StructHasARC, l.result.EnumHasARC) {
				l.e.Line("%s_release_fields(%s);", mangleType(pointee.Module, pointee.Name), target)
			}
			l.e.Line("_rt_drop(%s);", target)
		}

	case *ast.Break:
		l.e.Line("break;")

	case *ast.Continue:
		l.e.Line("continue;")

	case *ast.Return:
		if st.Value == nil {
			l.e.Line("return;")
		} else if tr, ok := st.Value.(*ast.Try); ok {
			label := l.e.NewLabel("try")
			decl := fmt.Sprintf("%s %s", l.cType(l.exprType(tr)), label)
			l.lowerTryInto(decl, tr)
			l.e.Line("return %s;", label)
		} else {
			l.e.Line("return %s;", l.lowerExpr(l.module, st.Value))
		}
	}
}

// lowerTryInto lowers `decl = <try-expr>;` (decl is a full C declaration
// such as "l0_int v") into the real try control flow spec.md §4.8
// describes: the fallible operand is computed once into a hidden
// temporary, and if it is empty/null the function returns its own
// null/none value immediately; otherwise decl is initialized from the
// unwrapped value.
func (l *lowerer) lowerTryInto(decl string, tr *ast.Try) {
	t := l.exprType(tr.X)
	tmp := l.e.NewLabel("try_tmp")
	l.e.Line("%s %s = %s;", l.cType(t), tmp, l.lowerExpr(l.module, tr.X))
	l.e.Open("if (%s) {", l.tryEmptyCond(t, tmp))
	l.e.Line("return %s;", l.zeroValueForType(l.fnResult))
	l.e.Close("}")
	l.e.Line("%s = %s;", decl, l.tryUnwrapExpr(t, tmp))
}

// tryEmptyCond reports t's "is empty" test for a value already bound to
// the C identifier name.
func (l *lowerer) tryEmptyCond(t *types.Type, name string) string {
	if t != nil && t.Kind == types.KNullable && t.Inner != nil && t.Inner.Kind == types.KPointer {
		return fmt.Sprintf("%s == NULL", name)
	}
	return fmt.Sprintf("!%s.has_value", name)
}

// tryUnwrapExpr reports the expression that extracts t's payload from a
// value already bound to the C identifier name.
func (l *lowerer) tryUnwrapExpr(t *types.Type, name string) string {
	if t != nil && t.Kind == types.KNullable && t.Inner != nil && t.Inner.Kind == types.KPointer {
		return name
	}
	if t != nil && t.Kind == types.KNullable {
		return fmt.Sprintf("%s_unwrap(%s)", l.optionalTypeName(t.Inner), name)
	}
	return name
}

// zeroValueForType is the enclosing function's null/none result used by
// a `try` early-return (spec.md §4.8).
func (l *lowerer) zeroValueForType(t *types.Type) string {
	if t == nil || t.Kind == types.Void {
		return ""
	}
	switch t.Kind {
	case types.KNullable:
		if t.Inner != nil && t.Inner.Kind == types.KPointer {
			return "NULL"
		}
		return fmt.Sprintf("(struct %s){0}", l.optionalTypeName(t.Inner))
	case types.KPointer:
		return "NULL"
	case types.String:
		return "L0_STRING_CONST(\"\", 0)"
	case types.Bool:
		return "((l0_bool)0)"
	case types.Byte:
		return "((l0_byte)0)"
	default:
		return "0"
	}
}

func (l *lowerer) lowerForClause(s ast.Stmt) string {
	switch st := s.(type) {
	case *ast.Let:
		t := l.exprType(st.Init)
		return fmt.Sprintf("%s %s = %s", l.cType(t), st.Name, l.lowerExpr(l.module, st.Init))
	case *ast.Assign:
		return fmt.Sprintf("%s = %s", l.lowerExpr(l.module, st.Target), l.lowerExpr(l.module, st.Value))
	case *ast.ExprStmt:
		return l.lowerExpr(l.module, st.X)
	default:
		return ""
	}
}

// lowerWith emits the with-header bindings followed by the body, then
// the cleanup actions in LIFO order regardless of which form produced
// them. The cleanups are emitted once, after the body: a `return`,
// `break` or `continue` inside the body leaves the block without
// running them.
func (l *lowerer) lowerWith(st *ast.With) {
	l.e.Open("{")
	for _, item := range st.Items {
		t := l.exprType(item.Init)
		l.e.Line("%s %s = %s;", l.cType(t), item.Name, l.lowerExpr(l.module, item.Init))
	}
	l.lowerBlockBody(st.Body)

	for i := len(st.Items) - 1; i >= 0; i-- {
		item := st.Items[i]
		if item.Cleanup != nil {
			l.lowerStmt(item.Cleanup)
		}
	}
	if st.Cleanup != nil {
		for i := len(st.Cleanup.Stmts) - 1; i >= 0; i-- {
			l.lowerStmt(st.Cleanup.Stmts[i])
		}
	}
	l.e.Close("}")
}

func (l *lowerer) lowerMatch(st *ast.Match) {
	scrutineeType := l.exprType(st.Scrutinee)
	enumT := scrutineeType
	deref := ""
	if enumT != nil && enumT.Kind == types.KPointer {
		enumT = enumT.Inner
		deref = "->"
	} else {
		deref = "."
	}
	tmp := l.e.NewLabel("match")
	l.e.Line("%s %s = %s;", l.cType(scrutineeType), tmp, l.lowerExpr(l.module, st.Scrutinee))
	l.e.Open("switch (%s%stag) {", tmp, deref)
	for _, arm := range st.Arms {
		switch p := arm.Pattern.(type) {
		case *ast.WildcardPattern:
			l.e.Open("default: {")
		case *ast.VariantPattern:
			if enumT == nil {
				continue
			}
			vi, _ := l.result.EnumInfos[types.Qualify(enumT.Module, enumT.Name)].Variant(p.Name)
			l.e.Open("case %s: {", mangleVariantTag(enumT.Module, enumT.Name, p.Name))
			for i, v := range p.Vars {
				if v == "_" {
					continue
				}
				l.e.Line("%s %s = %s%sas.%s.%s;", l.cType(vi.Payload[i].Type), v, tmp, deref, p.Name, vi.Payload[i].Name)
			}
		}
		l.lowerBlockBody(arm.Body)
		l.e.Line("break;")
		l.e.Close("}")
	}
	l.e.Close("}")
}

func (l *lowerer) lowerCase(st *ast.Case) {
	tmp := l.e.NewLabel("case")
	t := l.exprType(st.Scrutinee)
	l.e.Line("%s %s = %s;", l.cType(t), tmp, l.lowerExpr(l.module, st.Scrutinee))
	l.e.Open("switch (%s) {", tmp)
	for _, arm := range st.Arms {
		if arm.Values == nil {
			l.e.Open("default: {")
		} else {
			for _, v := range arm.Values {
				l.e.Line("case %s:", l.lowerExpr(l.module, v))
			}
			l.e.Open("{")
		}
		l.lowerBlockBody(arm.Body)
		l.e.Line("break;")
		l.e.Close("}")
	}
	l.e.Close("}")
}

// ---------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------

func (l *lowerer) exprType(e ast.Expr) *types.Type {
	return l.result.ExprTypes[e]
}

func (l *lowerer) lowerExpr(module string, e ast.Expr) string {
	switch x := e.(type) {
	case *ast.IntLit:
		return fmt.Sprintf("((l0_int)%d)", x.Value)
	case *ast.ByteLit:
		return fmt.Sprintf("((l0_byte)%d)", x.Value)
	case *ast.BoolLit:
		if x.Value {
			return "((l0_bool)1)"
		}
		return "((l0_bool)0)"
	case *ast.StringLit:
		return fmt.Sprintf("L0_STRING_CONST(%s, %d)", cQuote(x.Value), len(x.Value))
	case *ast.NullLit:
		expected := l.result.ExprTypes[x]
		if expected != nil && expected.Kind == types.KNullable && expected.Inner != nil && expected.Inner.Kind == types.KPointer {
			return "NULL"
		}
		return fmt.Sprintf("((%s){ .has_value = false })", l.cType(expected))

	case *ast.VarRef:
		return l.lowerVarRef(module, x)
	case *ast.QualifiedRef:
		return mangleFunc(strings.Join(x.Qualifier, "."), x.Name)

	case *ast.Unary:
		return l.lowerUnary(module, x)
	case *ast.Binary:
		return l.lowerBinary(module, x)

	case *ast.Call:
		return l.lowerCall(module, x)

	case *ast.Index:
		return "/* unsupported index */ 0"

	case *ast.FieldAccess:
		t := l.exprType(x.X)
		op := "."
		if t != nil && t.Kind == types.KPointer {
			op = "->"
		}
		return fmt.Sprintf("(%s%s%s)", l.lowerExpr(module, x.X), op, x.Field)

	case *ast.Cast:
		return l.lowerCast(module, x)

	case *ast.Try:
		return l.lowerTry(module, x)

	case *ast.New:
		return l.lowerNew(module, x)

	case *ast.Paren:
		return "(" + l.lowerExpr(module, x.X) + ")"

	case *ast.TypeExpr:
		return l.cType(l.resolveTypeExprType(module, x))
	}
	return "0"
}

func cQuote(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&sb, `\x%02x`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func (l *lowerer) lowerVarRef(module string, x *ast.VarRef) string {
	res := l.result.VarRefResolution[x]
	if res == nil {
		return x.Name
	}
	if res.Local != nil {
		return x.Name
	}
	sym := res.Symbol
	switch sym.Kind {
	case types.SymLet:
		return mangleFunc(sym.Module, sym.Name) + "_let"
	case types.SymFunc:
		return mangleFunc(sym.Module, sym.Name)
	case types.SymEnumVariant:
		pair := sym.AST.([2]interface{})
		enumDecl := pair[0].(*ast.Enum)
		return mangleVariantCtor(sym.Module, enumDecl.Name, sym.Name) + "()"
	default:
		return x.Name
	}
}

func (l *lowerer) lowerUnary(module string, x *ast.Unary) string {
	operand := l.lowerExpr(module, x.X)
	switch x.Op {
	case ast.UnNeg:
		return fmt.Sprintf("(-%s)", operand)
	case ast.UnNot:
		return fmt.Sprintf("(!%s)", operand)
	case ast.UnBitNot:
		return fmt.Sprintf("(~%s)", operand)
	case ast.UnDeref:
		return fmt.Sprintf("(*%s)", operand)
	}
	return operand
}

// checkedOp maps a binary operator to the runtime's checked-arithmetic
// helper name (spec.md §4.8/§4.9: `_rt_iadd/_isub/_imul/_idiv/_imod`).
// These operate on `l0_int`; a `byte`-typed operand widens into the call
// and a `byte`-typed result narrows back out through `_rt_narrow_byte`
// (spec.md §4.8's "narrowing casts go through `_rt_narrow_<dst>`").
func checkedOp(op ast.BinaryOp) (string, bool) {
	switch op {
	case ast.BinAdd:
		return "_rt_iadd", true
	case ast.BinSub:
		return "_rt_isub", true
	case ast.BinMul:
		return "_rt_imul", true
	case ast.BinDiv:
		return "_rt_idiv", true
	case ast.BinMod:
		return "_rt_imod", true
	}
	return "", false
}

func (l *lowerer) lowerBinary(module string, x *ast.Binary) string {
	lhs := l.lowerExpr(module, x.X)
	rhs := l.lowerExpr(module, x.Y)

	if fn, ok := checkedOp(x.Op); ok {
		call := fmt.Sprintf("%s((l0_int)%s, (l0_int)%s)", fn, lhs, rhs)
		if l.exprType(x) == types.TByte {
			return fmt.Sprintf("_rt_narrow_byte(%s)", call)
		}
		return call
	}

	var cop string
	switch x.Op {
	case ast.BinOr:
		cop = "||"
	case ast.BinAnd:
		cop = "&&"
	case ast.BinEq:
		return l.lowerEq(module, x, lhs, rhs, false)
	case ast.BinNotEq:
		return l.lowerEq(module, x, lhs, rhs, true)
	case ast.BinLt:
		cop = "<"
	case ast.BinLtEq:
		cop = "<="
	case ast.BinGt:
		cop = ">"
	case ast.BinGtEq:
		cop = ">="
	default:
		cop = "/* reserved */+"
	}
	return fmt.Sprintf("(%s %s %s)", lhs, cop, rhs)
}

func (l *lowerer) lowerEq(module string, x *ast.Binary, lhs, rhs string, negate bool) string {
	t := l.exprType(x.X)
	expr := fmt.Sprintf("(%s == %s)", lhs, rhs)
	if t != nil && t.Kind == types.String {
		expr = fmt.Sprintf("rt_string_eq(%s, %s)", lhs, rhs)
	}
	if negate {
		return "(!" + expr + ")"
	}
	return expr
}

func (l *lowerer) lowerCall(module string, x *ast.Call) string {
	if name, ok := l.result.IntrinsicTargets[x]; ok && name == "sizeof" {
		te := x.Args[0].(*ast.TypeExpr)
		return fmt.Sprintf("((l0_int)sizeof(%s))", l.cType(l.resolveTypeExprType(module, te)))
	}

	if res := l.variantCtorRef(x.Callee); res != "" {
		var args []string
		for _, a := range x.Args {
			args = append(args, l.lowerExpr(module, a))
		}
		return fmt.Sprintf("%s(%s)", res, strings.Join(args, ", "))
	}

	callee := l.lowerExpr(module, x.Callee)
	var args []string
	for _, a := range x.Args {
		args = append(args, l.lowerExpr(module, a))
	}
	return fmt.Sprintf("%s(%s)", callee, strings.Join(args, ", "))
}

func (l *lowerer) variantCtorRef(callee ast.Expr) string {
	x, ok := callee.(*ast.VarRef)
	if !ok {
		return ""
	}
	res := l.result.VarRefResolution[x]
	if res == nil || res.Local != nil || res.Symbol == nil || res.Symbol.Kind != types.SymEnumVariant {
		return ""
	}
	pair := res.Symbol.AST.([2]interface{})
	enumDecl := pair[0].(*ast.Enum)
	return mangleVariantCtor(res.Symbol.Module, enumDecl.Name, res.Symbol.Name)
}

func (l *lowerer) lowerCast(module string, x *ast.Cast) string {
	from := l.exprType(x.X)
	to := l.resolveTypeExprType(module, &ast.TypeExpr{Type: x.Type, Span: x.Span})
	operand := l.lowerExpr(module, x.X)

	switch {
	case from != nil && from.Kind == types.KNullable && to != nil && isPointerType(to):
		// T*? as T*: identical C representation, only a null-ness
		// assertion at runtime (spec.md §4.8's checked-narrowing path).
		return fmt.Sprintf("_rt_check_nonnull(%s)", operand)
	case from != nil && from.Kind == types.KNullable && to != nil && !isPointerType(to):
		return fmt.Sprintf("%s_unwrap(%s)", l.optionalTypeName(to), operand)
	case to != nil && to.Kind == types.KNullable && to.Inner != nil && !isPointerType(to.Inner):
		return fmt.Sprintf("%s_some(%s)", l.optionalTypeName(to.Inner), operand)
	case to != nil && to.IsNumeric() && from != nil && from.IsNumeric() && !from.Equal(to):
		return fmt.Sprintf("_rt_narrow_%s(%s)", l.cType(to)[len("l0_"):], operand)
	default:
		return fmt.Sprintf("((%s)%s)", l.cType(to), operand)
	}
}

func isPointerType(t *types.Type) bool { return t != nil && t.Kind == types.KPointer }

// lowerTry handles a `try` (`?`) that appears outside the two statement
// positions lowerTryInto covers (a `let` initializer or a `return`
// value). Those are the positions spec.md's own examples use; `?` needs
// real control flow (an early function return on the empty case), which
// a bare C expression cannot express, so any other position is reported
// as an unsupported construct rather than silently mistranslated.
func (l *lowerer) lowerTry(module string, x *ast.Try) string {
	l.errs.ICE("", module, x.Span.Line, x.Span.Col,
		"try expression is only supported as a let initializer or a return value")
	return l.lowerExpr(module, x.X)
}

func (l *lowerer) lowerNew(module string, x *ast.New) string {
	t := l.resolveTypeExprType(module, &ast.TypeExpr{Type: x.Type, Span: x.Span})
	var args []string
	for _, a := range x.Args {
		args = append(args, l.lowerExpr(module, a))
	}
	if t.Kind == types.KStruct {
		return fmt.Sprintf("%s(%s)", mangleStructCtor(t.Module, t.Name), strings.Join(args, ", "))
	}
	return fmt.Sprintf("_rt_alloc_obj(sizeof(%s))", l.cType(t))
}

// resolveTypeExprType re-derives a TypeExpr's semantic type for lowering,
// mirroring sema/check.go's resolveType but reading resolved struct/enum
// tables directly since the backend runs after checking succeeded.
func (l *lowerer) resolveTypeExprType(module string, te *ast.TypeExpr) *types.Type {
	ref := te.Type
	base := l.resolveBaseTypeRef(module, ref)
	for i := 0; i < ref.PtrDepth; i++ {
		base = types.NewPointer(base)
	}
	if ref.Nullable {
		base = types.NewNullable(base)
	}
	return base
}

func (l *lowerer) resolveBaseTypeRef(module string, ref *ast.TypeRef) *types.Type {
	if len(ref.Qualifier) == 0 {
		switch ref.Name {
		case "int":
			return types.TInt
		case "byte":
			return types.TByte
		case "bool":
			return types.TBool
		case "string":
			return types.TString
		case "void":
			return types.TVoid
		}
	}
	declModule := module
	if len(ref.Qualifier) > 0 {
		declModule = strings.Join(ref.Qualifier, ".")
	}
	env := l.result.ModuleEnvs[declModule]
	if env == nil {
		return types.TVoid
	}
	sym, ok := env.Locals[ref.Name]
	if !ok {
		sym, _ = env.Lookup(ref.Name)
	}
	if sym == nil {
		return types.TVoid
	}
	switch sym.Kind {
	case types.SymStruct:
		return types.NewStruct(sym.Module, sym.Name)
	case types.SymEnum:
		return types.NewEnum(sym.Module, sym.Name)
	case types.SymTypeAlias:
		if t, ok := l.result.AliasTypes[types.Qualify(sym.Module, sym.Name)]; ok {
			return t
		}
	}
	return types.TVoid
}

func isPointerLikeType(t *types.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind == types.KPointer {
		return true
	}
	return t.Kind == types.KNullable && t.Inner != nil && t.Inner.Kind == types.KPointer
}

// ---------------------------------------------------------------------
// Process entry
// ---------------------------------------------------------------------

// lowerEntry emits the process entry point (spec.md §4.8/§6): it runs
// `_rt_init_args` before anything else, invokes the entry module's
// mangled `main`, and translates its result to a process exit code —
// an `l0_int` result is returned directly, an `l0_bool` is 1 for true
// and 0 for false, and any other result type exits 0 after the call
// still runs for its side effects.
func (l *lowerer) lowerEntry(unit *types.CompilationUnit) {
	ft, ok := l.result.FuncTypes[types.Qualify(unit.Entry, "main")]
	if !ok {
		return
	}
	entryFn := mangleFunc(unit.Entry, "main")
	l.e.Open("int main(int argc, char **argv) {")
	l.e.Line("_rt_init_args(argc, argv);")
	switch {
	case ft != nil && ft.Result != nil && ft.Result.Kind == types.Int:
		l.e.Line("l0_int rc = %s();", entryFn)
		l.e.Line("return (int)rc;")
	case ft != nil && ft.Result != nil && ft.Result.Kind == types.Bool:
		l.e.Line("l0_bool rc = %s();", entryFn)
		l.e.Line("return rc ? 1 : 0;")
	default:
		l.e.Line("%s();", entryFn)
		l.e.Line("return 0;")
	}
	l.e.Close("}")
}
