package sema

import (
	"strings"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/types"
)

// checker implements the type checker (spec.md §4.7): it types every
// expression, validates statements, fills in the deferred match-arm
// pattern-binding types that scope.go left nil, and checks that every
// non-void function returns on all control paths.
//
// Grounded on lang/ysem/analyzer.go's single-pass "check, annotate,
// diagnose" walk, widened with the nullable/ARC-aware compatibility rules
// WUT-4 never needed (its type system has no nullable or enum sum type).
type checker struct {
	envs    map[string]*types.ModuleEnv
	modules map[string]*ast.Module
	result  *types.AnalysisResult
	errs    *diag.Bag

	module  string
	fn      *ast.Func
	fnRet   *types.Type
	fe      *types.FunctionEnv
	inLoop  int
}

func checkFunctions(unit *types.CompilationUnit, modules map[string]*ast.Module, envs map[string]*types.ModuleEnv, result *types.AnalysisResult, errs *diag.Bag) {
	c := &checker{envs: envs, modules: modules, result: result, errs: errs}

	for _, modName := range unit.Modules {
		mod, ok := modules[modName]
		if !ok {
			continue
		}
		for _, decl := range mod.Decls {
			if tl, ok := decl.(*ast.TopLet); ok {
				c.checkTopLet(modName, tl)
			}
		}
	}

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
			c.checkFunc(modName, fn)
		}
	}
}

func (c *checker) checkTopLet(module string, d *ast.TopLet) {
	key := types.Qualify(module, d.Name)
	expected := c.result.LetTypes[key]
	got := c.checkExprExpected(module, nil, d.Init, expected)
	if expected == nil {
		c.result.LetTypes[key] = got
		return
	}
	if !compatible(got, expected) {
		c.errf(module, d.Span, diag.PhaseType+"-0001", "top-level let %q initializer has type %s, expected %s", d.Name, got, expected)
	}
}

func (c *checker) checkFunc(module string, fn *ast.Func) {
	key := types.Qualify(module, fn.Name)
	ft, ok := c.result.FuncTypes[key]
	if !ok {
		return
	}
	c.module = module
	c.fn = fn
	c.fnRet = ft.Result
	c.fe = c.result.FuncEnvs[key]
	if c.fe == nil {
		c.fe = types.NewFunctionEnv()
	}
	c.inLoop = 0

	scope := c.fe.ScopeOf[fn.Body]
	if scope == nil {
		scope = c.fe.Root
	}
	c.checkBlock(fn.Body, scope)

	if c.fnRet.Kind != types.Void && !alwaysReturns(fn.Body) {
		c.errf(module, fn.Span, diag.PhaseType+"-0002",
			"function %q must return a value of type %s on every control path", fn.Name, c.fnRet)
	}
}

// ---------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------

func (c *checker) checkBlock(b *ast.Block, scope *types.Scope) {
	for _, s := range b.Stmts {
		c.checkStmt(s, scope)
	}
}

func (c *checker) scopeOf(node interface{}, fallback *types.Scope) *types.Scope {
	if s, ok := c.fe.ScopeOf[node]; ok {
		return s
	}
	return fallback
}

func (c *checker) checkStmt(s ast.Stmt, scope *types.Scope) {
	switch st := s.(type) {
	case *ast.Block:
		c.checkBlock(st, c.scopeOf(st, scope))

	case *ast.Let:
		var expected *types.Type
		if st.Type != nil {
			expected = c.resolveType(st.Type)
		}
		got := c.checkExprExpected(c.module, scope, st.Init, expected)
		if b, s2 := scope.Lookup(st.Name); b != nil && s2 == scope {
			if expected != nil {
				b.Type = expected
				if !compatible(got, expected) {
					c.errf(c.module, st.Span, diag.PhaseType+"-0003",
						"let %q initializer has type %s, expected %s", st.Name, got, expected)
				}
			} else {
				b.Type = got
			}
		}

	case *ast.Assign:
		if !isPlace(st.Target) {
			c.errf(c.module, st.Span, diag.PhaseType+"-0004", "left-hand side of assignment is not an assignable place")
		}
		targetType := c.checkExpr(c.module, scope, st.Target)
		got := c.checkExprExpected(c.module, scope, st.Value, targetType)
		if !compatible(got, targetType) {
			c.errf(c.module, st.Span, diag.PhaseType+"-0005",
				"cannot assign value of type %s to place of type %s", got, targetType)
		}
		if vr, ok := st.Target.(*ast.VarRef); ok {
			if b, _ := scope.Lookup(vr.Name); b != nil {
				b.Dropped = false
			}
		}

	case *ast.ExprStmt:
		c.checkExpr(c.module, scope, st.X)

	case *ast.If:
		cond := c.checkExpr(c.module, scope, st.Cond)
		c.requireBool(cond, st.Cond.GetSpan())
		c.checkBlock(st.Then, c.scopeOf(st.Then, scope))
		if st.Else != nil {
			c.checkStmt(st.Else, scope)
		}

	case *ast.While:
		cond := c.checkExpr(c.module, scope, st.Cond)
		c.requireBool(cond, st.Cond.GetSpan())
		c.inLoop++
		c.checkBlock(st.Body, c.scopeOf(st.Body, scope))
		c.inLoop--

	case *ast.For:
		forScope := c.scopeOf(st, scope)
		if st.Init != nil {
			c.checkStmt(st.Init, forScope)
		}
		if st.Cond != nil {
			cond := c.checkExpr(c.module, forScope, st.Cond)
			c.requireBool(cond, st.Cond.GetSpan())
		}
		if st.Step != nil {
			c.checkStmt(st.Step, forScope)
		}
		c.inLoop++
		c.checkBlock(st.Body, c.scopeOf(st.Body, forScope))
		c.inLoop--

	case *ast.With:
		withScope := c.scopeOf(st, scope)
		for _, item := range st.Items {
			got := c.checkExpr(c.module, withScope, item.Init)
			if b, s2 := withScope.Lookup(item.Name); b != nil && s2 == withScope {
				b.Type = got
			}
			if !isPointerLike(got) {
				c.errf(c.module, item.Span, diag.PhaseType+"-0006",
					"with-item %q must bind a pointer or nullable pointer, got %s", item.Name, got)
			}
			if item.Cleanup != nil {
				c.checkStmt(item.Cleanup, withScope)
			}
		}
		c.checkBlock(st.Body, c.scopeOf(st.Body, withScope))
		if st.Cleanup != nil {
			c.checkBlock(st.Cleanup, withScope)
		}

	case *ast.Match:
		c.checkMatch(st, scope)

	case *ast.Case:
		c.checkCase(st, scope)

	case *ast.Drop:
		t := c.checkExpr(c.module, scope, st.Target)
		if !isPointerLike(t) {
			c.errf(c.module, st.Span, diag.PhaseType+"-0007", "drop requires a pointer or nullable pointer, got %s", t)
		}
		if vr, ok := st.Target.(*ast.VarRef); ok {
			if b, _ := scope.Lookup(vr.Name); b != nil {
				if b.Dropped {
					c.errf(c.module, st.Span, diag.PhaseType+"-0008", "%q was already dropped", vr.Name)
				}
				b.Dropped = true
			}
		}

	case *ast.Break:
		if c.inLoop == 0 {
			c.errf(c.module, st.Span, diag.PhaseType+"-0009", "break outside a loop")
		}

	case *ast.Continue:
		if c.inLoop == 0 {
			c.errf(c.module, st.Span, diag.PhaseType+"-0010", "continue outside a loop")
		}

	case *ast.Return:
		if st.Value == nil {
			if c.fnRet != nil && c.fnRet.Kind != types.Void {
				c.errf(c.module, st.Span, diag.PhaseType+"-0011", "return without a value in function returning %s", c.fnRet)
			}
			return
		}
		got := c.checkExprExpected(c.module, scope, st.Value, c.fnRet)
		if !compatible(got, c.fnRet) {
			c.errf(c.module, st.Span, diag.PhaseType+"-0012", "return value has type %s, expected %s", got, c.fnRet)
		}
	}
}

func (c *checker) requireBool(t *types.Type, span ast.Span) {
	if t != types.TInvalid && (t == nil || t.Kind != types.Bool) {
		c.errf(c.module, span, diag.PhaseType+"-0013", "condition must be bool, got %s", t)
	}
}

// ---------------------------------------------------------------------
// Match / Case
// ---------------------------------------------------------------------

func (c *checker) checkMatch(m *ast.Match, scope *types.Scope) {
	scrutineeType := c.checkExpr(c.module, scope, m.Scrutinee)
	var enumInfo *types.EnumInfo
	if scrutineeType != types.TInvalid {
		et := scrutineeType
		if et.Kind == types.KPointer {
			et = et.Inner
		}
		if et != nil && et.Kind == types.KEnum {
			enumInfo = c.result.EnumInfos[types.Qualify(et.Module, et.Name)]
		} else {
			c.errf(c.module, m.Scrutinee.GetSpan(), diag.PhaseType+"-0014",
				"match scrutinee must be an enum value, got %s", scrutineeType)
		}
	}

	covered := map[string]ast.Span{}
	sawWildcard := false

	for _, arm := range m.Arms {
		armScope := c.scopeOf(arm, scope)

		switch p := arm.Pattern.(type) {
		case *ast.WildcardPattern:
			if sawWildcard {
				c.errf(c.module, p.Span, diag.PhaseMatch+"-0001", "duplicate wildcard arm")
			}
			sawWildcard = true

		case *ast.VariantPattern:
			if sawWildcard {
				c.errf(c.module, p.Span, diag.PhaseMatch+"-0002", "unreachable arm after wildcard")
			}
			if _, dup := covered[p.Name]; dup {
				c.errf(c.module, p.Span, diag.PhaseMatch+"-0003", "duplicate arm for variant %q", p.Name)
			}
			covered[p.Name] = p.Span

			if enumInfo != nil {
				vi, ok := enumInfo.Variant(p.Name)
				if !ok {
					c.errf(c.module, p.Span, diag.PhaseMatch+"-0004", "%q is not a variant of %s", p.Name, enumInfo.Name)
				} else if len(p.Vars) != len(vi.Payload) {
					c.errf(c.module, p.Span, diag.PhaseMatch+"-0005",
						"variant %q has %d payload field(s), pattern binds %d", p.Name, len(vi.Payload), len(p.Vars))
				} else {
					for i, v := range p.Vars {
						if v == "_" {
							continue
						}
						if b, s2 := armScope.Lookup(v); b != nil && s2 == armScope {
							b.Type = vi.Payload[i].Type
						}
					}
				}
			}
		}

		c.checkBlock(arm.Body, armScope)
	}

	if enumInfo != nil && !sawWildcard {
		var missing []string
		for _, v := range enumInfo.Variants {
			if _, ok := covered[v.Name]; !ok {
				missing = append(missing, v.Name)
			}
		}
		if len(missing) > 0 {
			c.errf(c.module, m.Span, diag.PhaseMatch+"-0006",
				"non-exhaustive match on %s: missing variant(s) %s", enumInfo.Name, strings.Join(missing, ", "))
		}
	}
}

func (c *checker) checkCase(cs *ast.Case, scope *types.Scope) {
	scrutineeType := c.checkExpr(c.module, scope, cs.Scrutinee)
	if scrutineeType != types.TInvalid && scrutineeType != nil {
		switch scrutineeType.Kind {
		case types.Int, types.Byte, types.Bool, types.String:
		default:
			c.errf(c.module, cs.Scrutinee.GetSpan(), diag.PhaseType+"-0015",
				"case scrutinee must be int, byte, bool, or string, got %s", scrutineeType)
		}
	}

	seen := map[interface{}]bool{}
	sawElse := false
	for _, arm := range cs.Arms {
		if arm.Values == nil {
			if sawElse {
				c.errf(c.module, arm.Span, diag.PhaseMatch+"-0007", "duplicate else arm")
			}
			sawElse = true
			c.checkBlock(arm.Body, scope)
			continue
		}
		for _, v := range arm.Values {
			vt := c.checkExprExpected(c.module, scope, v, scrutineeType)
			if !compatible(vt, scrutineeType) {
				c.errf(c.module, v.GetSpan(), diag.PhaseType+"-0016",
					"case label has type %s, expected %s", vt, scrutineeType)
			}
			key := literalKey(v)
			if key != nil {
				if seen[key] {
					c.errf(c.module, v.GetSpan(), diag.PhaseMatch+"-0008", "duplicate case label")
				}
				seen[key] = true
			}
		}
		c.checkBlock(arm.Body, scope)
	}
}

func literalKey(e ast.Expr) interface{} {
	switch v := e.(type) {
	case *ast.IntLit:
		return v.Value
	case *ast.ByteLit:
		return v.Value
	case *ast.BoolLit:
		return v.Value
	case *ast.StringLit:
		return string(v.Value)
	default:
		return nil
	}
}

// ---------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------

func (c *checker) checkExpr(module string, scope *types.Scope, e ast.Expr) *types.Type {
	return c.checkExprExpected(module, scope, e, nil)
}

// checkExprExpected types e, special-casing `null` literals (and
// parenthesized ones) against an expected type when one is known from
// context (let/return/assign/call-argument position).
func (c *checker) checkExprExpected(module string, scope *types.Scope, e ast.Expr, expected *types.Type) *types.Type {
	t := c.typeOf(module, scope, e, expected)
	c.result.ExprTypes[e] = t
	return t
}

func (c *checker) typeOf(module string, scope *types.Scope, e ast.Expr, expected *types.Type) *types.Type {
	switch x := e.(type) {
	case *ast.IntLit:
		return types.TInt
	case *ast.ByteLit:
		return types.TByte
	case *ast.BoolLit:
		return types.TBool
	case *ast.StringLit:
		return types.TString
	case *ast.NullLit:
		if expected != nil && expected.Kind == types.KNullable {
			return expected
		}
		c.errf(module, x.Span, diag.PhaseType+"-0017", "null requires a nullable context")
		return types.TInvalid

	case *ast.VarRef:
		return c.typeOfVarRef(module, scope, x, expected)
	case *ast.QualifiedRef:
		return c.typeOfQualifiedRef(module, x)

	case *ast.Unary:
		return c.typeOfUnary(module, scope, x)
	case *ast.Binary:
		return c.typeOfBinary(module, scope, x)

	case *ast.Call:
		return c.typeOfCall(module, scope, x)

	case *ast.Index:
		c.checkExpr(module, scope, x.X)
		c.checkExpr(module, scope, x.Index)
		c.errf(module, x.Span, diag.PhaseType+"-0018", "indexing is not supported")
		return types.TInvalid

	case *ast.FieldAccess:
		return c.typeOfFieldAccess(module, scope, x)

	case *ast.Cast:
		return c.typeOfCast(module, scope, x)

	case *ast.Try:
		return c.typeOfTry(module, scope, x)

	case *ast.New:
		return c.typeOfNew(module, scope, x)

	case *ast.Paren:
		return c.checkExprExpected(module, scope, x.X, expected)

	case *ast.TypeExpr:
		c.errf(module, x.Span, diag.PhaseType+"-0019", "a type cannot appear where a value is expected")
		return types.TInvalid
	}
	return types.TInvalid
}

func (c *checker) typeOfVarRef(module string, scope *types.Scope, x *ast.VarRef, expected *types.Type) *types.Type {
	if scope != nil {
		if b, _ := scope.Lookup(x.Name); b != nil {
			if b.Dropped {
				c.errf(module, x.Span, diag.PhaseType+"-0020", "use of %q after it was dropped", x.Name)
			}
			c.result.VarRefResolution[x] = &types.VarBinding{Local: b}
			if b.Type == nil {
				return types.TInvalid
			}
			return b.Type
		}
	}

	env := c.envs[module]
	sym, ambiguous := env.Lookup(x.Name)
	if ambiguous {
		c.errf(module, x.Span, diag.PhaseType+"-0021", "%q is ambiguous between multiple imports", x.Name)
		return types.TInvalid
	}
	if sym == nil {
		c.errf(module, x.Span, diag.PhaseType+"-0022", "undefined name %q", x.Name)
		return types.TInvalid
	}
	c.result.VarRefResolution[x] = &types.VarBinding{Symbol: sym}

	switch sym.Kind {
	case types.SymLet:
		return c.result.LetTypes[types.Qualify(sym.Module, sym.Name)]
	case types.SymFunc:
		return c.result.FuncTypes[types.Qualify(sym.Module, sym.Name)]
	case types.SymEnumVariant:
		pair := sym.AST.([2]interface{})
		enumDecl := pair[0].(*ast.Enum)
		variant := pair[1].(*ast.Variant)
		if len(variant.Payload) != 0 {
			c.errf(module, x.Span, diag.PhaseType+"-0023",
				"variant %q takes arguments; use call syntax", x.Name)
		}
		return types.NewEnum(sym.Module, enumDecl.Name)
	default:
		c.errf(module, x.Span, diag.PhaseType+"-0024", "%q is a %s, not a value", x.Name, sym.Kind)
		return types.TInvalid
	}
}

func (c *checker) typeOfQualifiedRef(module string, x *ast.QualifiedRef) *types.Type {
	declModule := strings.Join(x.Qualifier, ".")
	env, ok := c.envs[declModule]
	if !ok {
		c.errf(module, x.Span, diag.PhaseType+"-0025", "unknown module %q", declModule)
		return types.TInvalid
	}
	sym, ok := env.Locals[x.Name]
	if !ok {
		c.errf(module, x.Span, diag.PhaseType+"-0026", "unknown name %q in module %q", x.Name, declModule)
		return types.TInvalid
	}
	switch sym.Kind {
	case types.SymLet:
		return c.result.LetTypes[types.Qualify(sym.Module, sym.Name)]
	case types.SymFunc:
		return c.result.FuncTypes[types.Qualify(sym.Module, sym.Name)]
	case types.SymEnumVariant:
		pair := sym.AST.([2]interface{})
		enumDecl := pair[0].(*ast.Enum)
		return types.NewEnum(sym.Module, enumDecl.Name)
	default:
		c.errf(module, x.Span, diag.PhaseType+"-0027", "%q is a %s, not a value", x.Name, sym.Kind)
		return types.TInvalid
	}
}

func (c *checker) typeOfUnary(module string, scope *types.Scope, x *ast.Unary) *types.Type {
	t := c.checkExpr(module, scope, x.X)
	if t == types.TInvalid {
		return types.TInvalid
	}
	switch x.Op {
	case ast.UnNeg:
		if !t.IsNumeric() {
			c.errf(module, x.Span, diag.PhaseType+"-0028", "unary - requires int or byte, got %s", t)
			return types.TInvalid
		}
		return t
	case ast.UnNot:
		if t.Kind != types.Bool {
			c.errf(module, x.Span, diag.PhaseType+"-0029", "unary ! requires bool, got %s", t)
			return types.TInvalid
		}
		return types.TBool
	case ast.UnBitNot:
		if !t.IsNumeric() {
			c.errf(module, x.Span, diag.PhaseType+"-0030", "unary ~ requires int or byte, got %s", t)
			return types.TInvalid
		}
		return t
	case ast.UnDeref:
		if t.Kind != types.KPointer {
			c.errf(module, x.Span, diag.PhaseType+"-0031", "unary * requires a pointer, got %s", t)
			return types.TInvalid
		}
		return t.Inner
	}
	return types.TInvalid
}

func (c *checker) typeOfBinary(module string, scope *types.Scope, x *ast.Binary) *types.Type {
	lt := c.checkExpr(module, scope, x.X)
	rt := c.checkExpr(module, scope, x.Y)

	switch x.Op {
	case ast.BinBitOr, ast.BinBitXor, ast.BinBitAnd, ast.BinShl, ast.BinShr:
		c.errf(module, x.Span, diag.PhaseType+"-0032", "bitwise and shift operators are not supported")
		return types.TInvalid

	case ast.BinOr, ast.BinAnd:
		if lt != types.TInvalid && lt.Kind != types.Bool {
			c.errf(module, x.X.GetSpan(), diag.PhaseType+"-0033", "operand must be bool, got %s", lt)
		}
		if rt != types.TInvalid && rt.Kind != types.Bool {
			c.errf(module, x.Y.GetSpan(), diag.PhaseType+"-0034", "operand must be bool, got %s", rt)
		}
		return types.TBool

	case ast.BinEq, ast.BinNotEq:
		if lt != types.TInvalid && rt != types.TInvalid && !comparableEq(lt, rt) {
			c.errf(module, x.Span, diag.PhaseType+"-0035", "cannot compare %s with %s", lt, rt)
		}
		return types.TBool

	case ast.BinLt, ast.BinLtEq, ast.BinGt, ast.BinGtEq:
		if lt != types.TInvalid && !lt.IsNumeric() {
			c.errf(module, x.X.GetSpan(), diag.PhaseType+"-0036", "relational operand must be int or byte, got %s", lt)
		}
		if rt != types.TInvalid && !rt.IsNumeric() {
			c.errf(module, x.Y.GetSpan(), diag.PhaseType+"-0037", "relational operand must be int or byte, got %s", rt)
		}
		return types.TBool

	case ast.BinAdd, ast.BinSub, ast.BinMul, ast.BinDiv, ast.BinMod:
		if lt != types.TInvalid && !lt.IsNumeric() {
			c.errf(module, x.X.GetSpan(), diag.PhaseType+"-0038", "arithmetic operand must be int or byte, got %s", lt)
			return types.TInvalid
		}
		if rt != types.TInvalid && !rt.IsNumeric() {
			c.errf(module, x.Y.GetSpan(), diag.PhaseType+"-0039", "arithmetic operand must be int or byte, got %s", rt)
			return types.TInvalid
		}
		if lt == types.TInt || rt == types.TInt {
			return types.TInt
		}
		return types.TByte
	}
	return types.TInvalid
}

func comparableEq(a, b *types.Type) bool {
	if a.Kind == types.KNullable || b.Kind == types.KNullable {
		inner := a
		other := b
		if a.Kind != types.KNullable {
			inner, other = b, a
		}
		if other.Kind == types.KNullable {
			return inner.Inner.Equal(other.Inner)
		}
		return inner.Inner == nil || inner.Inner.Equal(other)
	}
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	return a.Equal(b)
}

func (c *checker) typeOfCall(module string, scope *types.Scope, x *ast.Call) *types.Type {
	// sizeof is lexed as a keyword, so it can never collide with a real
	// local or top-level symbol; the parser turns it into a VarRef named
	// "sizeof" (parser.go's parsePrimary), so a call through that name is
	// the intrinsic, and typeOfSizeof checks its argument count.
	if vr, ok := x.Callee.(*ast.VarRef); ok && vr.Name == "sizeof" {
		return c.typeOfSizeof(module, x)
	}

	if enumInfo, vi, ok := c.resolveVariantConstructor(module, scope, x.Callee); ok {
		return c.typeOfVariantConstructor(module, scope, x, enumInfo, vi)
	}

	calleeType := c.checkExpr(module, scope, x.Callee)
	var argTypes []*types.Type
	if calleeType != types.TInvalid && calleeType.Kind == types.KFunc {
		for i, a := range x.Args {
			var exp *types.Type
			if i < len(calleeType.Params) {
				exp = calleeType.Params[i]
			}
			argTypes = append(argTypes, c.checkExprExpected(module, scope, a, exp))
		}
	} else {
		for _, a := range x.Args {
			argTypes = append(argTypes, c.checkExpr(module, scope, a))
		}
		if calleeType != types.TInvalid {
			c.errf(module, x.Span, diag.PhaseType+"-0040", "called value of type %s is not a function", calleeType)
		}
		return types.TInvalid
	}

	if len(x.Args) != len(calleeType.Params) {
		c.errf(module, x.Span, diag.PhaseType+"-0041",
			"call has %d argument(s), function expects %d", len(x.Args), len(calleeType.Params))
		return calleeType.Result
	}
	for i, at := range argTypes {
		if !compatible(at, calleeType.Params[i]) {
			c.errf(module, x.Args[i].GetSpan(), diag.PhaseType+"-0042",
				"argument %d has type %s, expected %s", i+1, at, calleeType.Params[i])
		}
	}
	return calleeType.Result
}

// resolveVariantConstructor reports whether callee names a zero-or-more
// argument enum variant (spec.md: "Call expressions whose callee names an
// enum variant construct a value of that enum"), without going through
// typeOfVarRef/typeOfQualifiedRef, which instead construe a bare variant
// reference with no call syntax as already-constructed (valid only for
// payload-less variants).
func (c *checker) resolveVariantConstructor(module string, scope *types.Scope, callee ast.Expr) (*types.EnumInfo, *types.VariantInfo, bool) {
	var sym *types.Symbol
	switch ce := callee.(type) {
	case *ast.VarRef:
		if scope != nil {
			if b, _ := scope.Lookup(ce.Name); b != nil {
				return nil, nil, false // local binding shadows any variant of the same name
			}
		}
		var ambiguous bool
		sym, ambiguous = c.envs[module].Lookup(ce.Name)
		if ambiguous || sym == nil {
			return nil, nil, false
		}
	case *ast.QualifiedRef:
		declModule := strings.Join(ce.Qualifier, ".")
		env, ok := c.envs[declModule]
		if !ok {
			return nil, nil, false
		}
		sym, ok = env.Locals[ce.Name]
		if !ok {
			return nil, nil, false
		}
	default:
		return nil, nil, false
	}
	if sym.Kind != types.SymEnumVariant {
		return nil, nil, false
	}
	pair := sym.AST.([2]interface{})
	enumDecl := pair[0].(*ast.Enum)
	enumInfo := c.result.EnumInfos[types.Qualify(sym.Module, enumDecl.Name)]
	if enumInfo == nil {
		return nil, nil, false
	}
	vi, ok := enumInfo.Variant(sym.Name)
	if !ok {
		return nil, nil, false
	}
	return enumInfo, &vi, true
}

func (c *checker) typeOfVariantConstructor(module string, scope *types.Scope, x *ast.Call, enumInfo *types.EnumInfo, vi *types.VariantInfo) *types.Type {
	c.result.ExprTypes[x.Callee] = types.NewEnum(enumInfo.Module, enumInfo.Name)
	if len(x.Args) != len(vi.Payload) {
		c.errf(module, x.Span, diag.PhaseType+"-0059",
			"variant %q takes %d argument(s), got %d", vi.Name, len(vi.Payload), len(x.Args))
	}
	for i, a := range x.Args {
		var exp *types.Type
		if i < len(vi.Payload) {
			exp = vi.Payload[i].Type
		}
		got := c.checkExprExpected(module, scope, a, exp)
		if exp != nil && !compatible(got, exp) {
			c.errf(module, a.GetSpan(), diag.PhaseType+"-0060",
				"variant %q argument %d has type %s, expected %s", vi.Name, i+1, got, exp)
		}
	}
	return types.NewEnum(enumInfo.Module, enumInfo.Name)
}

func (c *checker) typeOfSizeof(module string, x *ast.Call) *types.Type {
	c.result.IntrinsicTargets[x] = "sizeof"
	if len(x.Args) != 1 {
		c.errf(module, x.Span, diag.PhaseType+"-0043", "sizeof takes exactly one type argument")
		return types.TInt
	}
	te, ok := x.Args[0].(*ast.TypeExpr)
	if !ok {
		c.errf(module, x.Args[0].GetSpan(), diag.PhaseType+"-0044", "sizeof's argument must be a type")
		return types.TInt
	}
	c.resolveType(te.Type)
	return types.TInt
}

func (c *checker) typeOfFieldAccess(module string, scope *types.Scope, x *ast.FieldAccess) *types.Type {
	t := c.checkExpr(module, scope, x.X)
	if t == types.TInvalid {
		return types.TInvalid
	}
	if t.Kind == types.KNullable {
		c.errf(module, x.Span, diag.PhaseType+"-0045",
			"%s must be narrowed with a cast before field access", t)
		return types.TInvalid
	}
	target := t
	if t.Kind == types.KPointer {
		target = t.Inner
	}
	if target == nil || target.Kind != types.KStruct {
		c.errf(module, x.Span, diag.PhaseType+"-0046", "field access requires a struct or pointer to struct, got %s", t)
		return types.TInvalid
	}
	info, ok := c.result.StructInfos[types.Qualify(target.Module, target.Name)]
	if !ok {
		return types.TInvalid
	}
	f, ok := info.Field(x.Field)
	if !ok {
		c.errf(module, x.Span, diag.PhaseType+"-0047", "%s has no field %q", target, x.Field)
		return types.TInvalid
	}
	return f.Type
}

func (c *checker) typeOfCast(module string, scope *types.Scope, x *ast.Cast) *types.Type {
	from := c.checkExpr(module, scope, x.X)
	to := c.resolveType(x.Type)
	if from == types.TInvalid {
		return to
	}

	switch {
	case from.Equal(to):
		return to
	case from.Kind == types.KNullable && from.Inner.Equal(to):
		return to // narrowing T? as T (checked at runtime, spec.md §4.8)
	case to.Kind == types.KNullable && from.Equal(to.Inner):
		return to // widening T as T?
	case from.IsNumeric() && to.IsNumeric():
		return to // explicit int<->byte conversion
	default:
		c.errf(module, x.Span, diag.PhaseType+"-0048", "invalid cast from %s to %s", from, to)
		return to
	}
}

func (c *checker) typeOfTry(module string, scope *types.Scope, x *ast.Try) *types.Type {
	t := c.checkExpr(module, scope, x.X)
	if c.fnRet == nil || c.fnRet.Kind != types.KNullable {
		c.errf(module, x.Span, diag.PhaseType+"-0049",
			"? can only be used in a function returning a nullable type")
	}
	if t == types.TInvalid {
		return types.TInvalid
	}
	if t.Kind != types.KNullable {
		c.errf(module, x.Span, diag.PhaseType+"-0050", "? requires a nullable operand, got %s", t)
		return types.TInvalid
	}
	return t.Inner
}

func (c *checker) typeOfNew(module string, scope *types.Scope, x *ast.New) *types.Type {
	target := c.resolveType(x.Type)
	if target.Kind == types.KStruct {
		info, ok := c.result.StructInfos[types.Qualify(target.Module, target.Name)]
		if ok {
			if len(x.Args) != len(info.Fields) {
				c.errf(module, x.Span, diag.PhaseType+"-0051",
					"new %s has %d field initializer(s), struct has %d", target, len(x.Args), len(info.Fields))
			}
			for i, a := range x.Args {
				var exp *types.Type
				if i < len(info.Fields) {
					exp = info.Fields[i].Type
				}
				got := c.checkExprExpected(module, scope, a, exp)
				if exp != nil && !compatible(got, exp) {
					c.errf(module, a.GetSpan(), diag.PhaseType+"-0052",
						"field %d initializer has type %s, expected %s", i+1, got, exp)
				}
			}
		}
	} else {
		for _, a := range x.Args {
			c.checkExpr(module, scope, a)
		}
	}
	return types.NewPointer(target)
}

// ---------------------------------------------------------------------
// Type references (duplicated, simplified resolution for value-position
// type arguments: sizeof, new, cast). Unlike sigResolver.resolveBase,
// aliases are read out of the already-computed AliasTypes table instead
// of being re-walked, since by check time every alias cycle has already
// been diagnosed once.
// ---------------------------------------------------------------------

func (c *checker) resolveType(ref *ast.TypeRef) *types.Type {
	base := c.resolveBaseType(ref)
	for i := 0; i < ref.PtrDepth; i++ {
		base = types.NewPointer(base)
	}
	if ref.Nullable {
		if base != nil && base.Kind == types.KNullable {
			c.errf(c.module, ref.Span, diag.PhaseType+"-0053", "nested nullable type is not allowed")
			return base
		}
		base = types.NewNullable(base)
	}
	return base
}

func (c *checker) resolveBaseType(ref *ast.TypeRef) *types.Type {
	if len(ref.Qualifier) == 0 {
		if bt, ok := builtinNames[ref.Name]; ok {
			return bt
		}
	}

	declModule := c.module
	var sym *types.Symbol
	if len(ref.Qualifier) > 0 {
		declModule = strings.Join(ref.Qualifier, ".")
		env, ok := c.envs[declModule]
		if !ok {
			c.errf(c.module, ref.Span, diag.PhaseType+"-0054", "unknown module %q", declModule)
			return types.TVoid
		}
		sym, ok = env.Locals[ref.Name]
		if !ok {
			c.errf(c.module, ref.Span, diag.PhaseType+"-0055", "unknown type %q in module %q", ref.Name, declModule)
			return types.TVoid
		}
	} else {
		env := c.envs[c.module]
		var ambiguous bool
		sym, ambiguous = env.Lookup(ref.Name)
		if ambiguous {
			c.errf(c.module, ref.Span, diag.PhaseType+"-0056", "%q is ambiguous between multiple imports", ref.Name)
			return types.TVoid
		}
		if sym == nil {
			c.errf(c.module, ref.Span, diag.PhaseType+"-0057", "unknown type name %q", ref.Name)
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
		if t, ok := c.result.AliasTypes[types.Qualify(declModule, sym.Name)]; ok {
			return t
		}
		return types.TVoid
	default:
		c.errf(c.module, ref.Span, diag.PhaseType+"-0058", "%q is a %s, not a type", ref.Name, sym.Kind)
		return types.TVoid
	}
}

// ---------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------

func (c *checker) errf(module string, span ast.Span, code, format string, args ...interface{}) {
	c.errs.Errorf(code, "", module, span.Line, span.Col, format, args...)
}

// compatible reports whether a value of type got may be used where
// expected is required: equal types, int/byte widening is NOT implicit
// (spec.md keeps int and byte distinct outside arithmetic promotion), and
// T may widen to T? (spec.md §4.7).
func compatible(got, expected *types.Type) bool {
	if got == types.TInvalid || expected == nil {
		return true
	}
	if got.Equal(expected) {
		return true
	}
	if expected.Kind == types.KNullable && got.Equal(expected.Inner) {
		return true
	}
	return false
}

func isPointerLike(t *types.Type) bool {
	if t == nil || t == types.TInvalid {
		return false
	}
	if t.Kind == types.KPointer {
		return true
	}
	if t.Kind == types.KNullable && t.Inner != nil && t.Inner.Kind == types.KPointer {
		return true
	}
	return false
}

// isPlace reports whether e may stand on the left of an assignment
// (spec.md §4.2): a variable, a dereference, or a field access.
func isPlace(e ast.Expr) bool {
	switch x := e.(type) {
	case *ast.VarRef:
		return true
	case *ast.FieldAccess:
		return true
	case *ast.Unary:
		return x.Op == ast.UnDeref
	case *ast.Paren:
		return isPlace(x.X)
	default:
		return false
	}
}

// alwaysReturns reports whether every control-flow path through b ends in
// a return statement (spec.md §4.7: non-void functions must return on
// every path). This is a structural approximation, not a full
// reachability analysis: `while true { return x; }` is not recognized as
// always-returning, since the condition is not evaluated for truth here.
func alwaysReturns(b *ast.Block) bool {
	for _, s := range b.Stmts {
		if stmtAlwaysReturns(s) {
			return true
		}
	}
	return false
}

func stmtAlwaysReturns(s ast.Stmt) bool {
	switch st := s.(type) {
	case *ast.Return:
		return true
	case *ast.Block:
		return alwaysReturns(st)
	case *ast.If:
		return st.Else != nil && alwaysReturns(st.Then) && stmtAlwaysReturns(st.Else)
	case *ast.With:
		return alwaysReturns(st.Body)
	case *ast.Match:
		// Exhaustiveness itself is checker.checkMatch's job (MTC- codes);
		// here every arm returning is enough, since a non-exhaustive match
		// already fails to compile regardless of this control-flow result.
		if len(st.Arms) == 0 {
			return false
		}
		for _, arm := range st.Arms {
			if !alwaysReturns(arm.Body) {
				return false
			}
		}
		return true
	case *ast.Case:
		if len(st.Arms) == 0 {
			return false
		}
		sawElse := false
		for _, arm := range st.Arms {
			if !alwaysReturns(arm.Body) {
				return false
			}
			if arm.Values == nil {
				sawElse = true
			}
		}
		return sawElse
	default:
		return false
	}
}
