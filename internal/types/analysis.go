package types

import "github.com/l0-lang/l0c/internal/ast"

// Qualify builds the canonical lookup key for a module-scoped name, used
// throughout AnalysisResult's tables.
func Qualify(module, name string) string { return module + "::" + name }

// FieldInfo is one resolved struct field or enum-variant payload field.
type FieldInfo struct {
	Name string
	Type *Type
}

// StructInfo is the signature resolver's output for one struct (spec.md
// §4.5).
type StructInfo struct {
	Module string
	Name   string
	Fields []FieldInfo
	AST    *ast.Struct
}

func (s *StructInfo) Field(name string) (FieldInfo, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// HasARCField reports whether any field of s is, directly or
// transitively, ARC-bearing, given a resolver able to answer that for
// nested struct/enum fields.
func (s *StructInfo) HasARCField(structHasARC, enumHasARC func(module, name string) bool) bool {
	for _, f := range s.Fields {
		if f.Type.IsARC(structHasARC, enumHasARC) {
			return true
		}
	}
	return false
}

// VariantInfo is one resolved enum variant.
type VariantInfo struct {
	Name    string
	Index   int
	Payload []FieldInfo
}

// EnumInfo is the signature resolver's output for one enum (spec.md §4.5).
type EnumInfo struct {
	Module   string
	Name     string
	Variants []VariantInfo
	AST      *ast.Enum
}

func (e *EnumInfo) Variant(name string) (VariantInfo, bool) {
	for _, v := range e.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return VariantInfo{}, false
}

func (e *EnumInfo) HasARCPayload(structHasARC, enumHasARC func(module, name string) bool) bool {
	for _, v := range e.Variants {
		for _, f := range v.Payload {
			if f.Type.IsARC(structHasARC, enumHasARC) {
				return true
			}
		}
	}
	return false
}

// Binding is one local name introduced in a FunctionEnv scope: a
// parameter, a `let`, or a pattern-bound match-arm variable.
type Binding struct {
	Name    string
	Type    *Type
	Span    ast.Span
	Dropped bool // flow-sensitive; set/cleared by the type checker (§4.7 Drop)
}

// Scope is one node of a function's lexical scope tree (spec.md §4.6):
// the root scope holds parameters; each block, for-header, with-header,
// and match-arm introduces a child.
type Scope struct {
	Parent   *Scope
	Bindings map[string]*Binding
}

func NewScope(parent *Scope) *Scope {
	return &Scope{Parent: parent, Bindings: make(map[string]*Binding)}
}

// Declare inserts name into this scope. It returns false (and leaves the
// scope unmodified) if name already exists directly in this scope — the
// caller reports a LOC- duplicate-in-scope diagnostic in that case. The
// wildcard name "_" never binds (spec.md §4.6) and Declare is a silent
// no-op for it.
func (s *Scope) Declare(name string, b *Binding) bool {
	if name == "_" {
		return true
	}
	if _, exists := s.Bindings[name]; exists {
		return false
	}
	s.Bindings[name] = b
	return true
}

// Lookup searches this scope and its ancestors for name.
func (s *Scope) Lookup(name string) (*Binding, *Scope) {
	for sc := s; sc != nil; sc = sc.Parent {
		if b, ok := sc.Bindings[name]; ok {
			return b, sc
		}
	}
	return nil, nil
}

// FunctionEnv is one non-extern function's scope tree (spec.md §3, §4.6).
type FunctionEnv struct {
	Root *Scope
	// ScopeOf maps a block/for/with/match-arm AST node to the Scope it
	// introduced, keyed by node identity (an ast.Stmt or *ast.MatchArm).
	ScopeOf map[interface{}]*Scope
}

func NewFunctionEnv() *FunctionEnv {
	root := NewScope(nil)
	return &FunctionEnv{Root: root, ScopeOf: map[interface{}]*Scope{}}
}

// VarBinding records where a VarRef resolved to: a local Binding, a
// top-level let, or a function/enum-variant-constructor symbol.
type VarBinding struct {
	Local  *Binding // non-nil for a local/parameter/pattern variable
	Symbol *Symbol  // non-nil for a top-level let, func, or zero-arg variant
}

// AnalysisResult is the complete output of the semantic pipeline (spec.md
// §3): module environments, resolved signatures, per-function scope
// trees, a type recorded on every expression by identity, variable
// reference resolutions, intrinsic call targets, and the accumulated
// diagnostics from every pass.
type AnalysisResult struct {
	Unit       *CompilationUnit
	ModuleEnvs map[string]*ModuleEnv

	FuncTypes   map[string]*Type // Qualify(module, funcName) -> KFunc
	StructInfos map[string]*StructInfo
	EnumInfos   map[string]*EnumInfo
	LetTypes    map[string]*Type

	// AliasTypes holds every type alias's fully resolved target, keyed by
	// Qualify(module, aliasName), computed once by the signature resolver.
	// The type checker consults this directly (sizeof's TypeExpr argument,
	// New's target type) instead of re-walking alias ASTs, which would risk
	// looping on an alias cycle a second time after it was already
	// diagnosed once during signature resolution.
	AliasTypes map[string]*Type

	FuncEnvs map[string]*FunctionEnv // Qualify(module, funcName) -> scope tree

	ExprTypes        map[ast.Expr]*Type
	VarRefResolution map[*ast.VarRef]*VarBinding

	// IntrinsicTargets maps a Call expression whose callee resolved to a
	// compiler intrinsic (currently only "sizeof") to the intrinsic's
	// name, so the backend can special-case lowering without re-deriving
	// it from the callee's AST shape.
	IntrinsicTargets map[*ast.Call]string
}

func NewAnalysisResult(unit *CompilationUnit) *AnalysisResult {
	return &AnalysisResult{
		Unit:             unit,
		ModuleEnvs:       map[string]*ModuleEnv{},
		FuncTypes:        map[string]*Type{},
		StructInfos:      map[string]*StructInfo{},
		EnumInfos:        map[string]*EnumInfo{},
		LetTypes:         map[string]*Type{},
		AliasTypes:       map[string]*Type{},
		FuncEnvs:         map[string]*FunctionEnv{},
		ExprTypes:        map[ast.Expr]*Type{},
		VarRefResolution: map[*ast.VarRef]*VarBinding{},
		IntrinsicTargets: map[*ast.Call]string{},
	}
}

// StructHasARC and EnumHasARC close over r to answer Type.IsARC's
// transitive queries; kept as methods so callers don't have to build the
// closures themselves at every call site.
func (r *AnalysisResult) StructHasARC(module, name string) bool {
	info, ok := r.StructInfos[Qualify(module, name)]
	if !ok {
		return false
	}
	return info.HasARCField(r.StructHasARC, r.EnumHasARC)
}

func (r *AnalysisResult) EnumHasARC(module, name string) bool {
	info, ok := r.EnumInfos[Qualify(module, name)]
	if !ok {
		return false
	}
	return info.HasARCPayload(r.StructHasARC, r.EnumHasARC)
}
