// Package types defines L0's semantic type system and the symbol/
// environment tables the resolver passes populate (spec.md §3).
//
// Grounded on lang/yparse/types.go's Type sum-type shape (Kind tag +
// payload fields, Equal/String methods, Size/Alignment helpers), widened
// from WUT-4's flat base/pointer/array/struct union to L0's richer sum
// (struct/enum/nullable/func) and stripped of machine layout concerns
// (size/alignment belong to the C99 backend's lowered types, not this
// semantic layer — the backend computes its own via sizeof in C).
package types

import "fmt"

// Kind tags the variant of a semantic Type.
type Kind int

const (
	Invalid Kind = iota
	Int
	Byte
	Bool
	String
	Void
	KStruct
	KEnum
	KPointer
	KNullable
	KFunc
)

// Type is the sum type of all semantic types (spec.md §3).
//
// Invariants: Nullable(Nullable(_)) is forbidden; Void never nests inside
// a container (Pointer/Nullable/Func param or result other than a plain
// void return).
type Type struct {
	Kind Kind

	// KStruct / KEnum
	Module string
	Name   string

	// KPointer / KNullable
	Inner *Type

	// KFunc
	Params []*Type
	Result *Type
}

var (
	TInt    = &Type{Kind: Int}
	TByte   = &Type{Kind: Byte}
	TBool   = &Type{Kind: Bool}
	TString = &Type{Kind: String}
	TVoid   = &Type{Kind: Void}
	// TInvalid marks an expression whose type could not be determined
	// because an earlier diagnostic already fired; checker rules skip
	// further compatibility checks against it to avoid cascades.
	TInvalid = &Type{Kind: Invalid}
)

func NewStruct(module, name string) *Type { return &Type{Kind: KStruct, Module: module, Name: name} }
func NewEnum(module, name string) *Type   { return &Type{Kind: KEnum, Module: module, Name: name} }

// NewPointer returns T*. Pointer-of-pointer is allowed by this
// constructor; the parser/checker enforce any surface restrictions.
func NewPointer(inner *Type) *Type { return &Type{Kind: KPointer, Inner: inner} }

// NewNullable returns T?. Per the invariant, nullable-of-nullable panics:
// callers (signature resolver, type checker) must never attempt it; this
// is an internal-consistency guard, not a user-facing diagnostic path.
func NewNullable(inner *Type) *Type {
	if inner != nil && inner.Kind == KNullable {
		panic("types: nested Nullable")
	}
	return &Type{Kind: KNullable, Inner: inner}
}

func NewFunc(params []*Type, result *Type) *Type {
	return &Type{Kind: KFunc, Params: params, Result: result}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Int:
		return "int"
	case Byte:
		return "byte"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Void:
		return "void"
	case KStruct, KEnum:
		if t.Module != "" {
			return t.Module + "." + t.Name
		}
		return t.Name
	case KPointer:
		return t.Inner.String() + "*"
	case KNullable:
		return t.Inner.String() + "?"
	case KFunc:
		s := "func("
		for i, p := range t.Params {
			if i > 0 {
				s += ", "
			}
			s += p.String()
		}
		return s + ") -> " + t.Result.String()
	default:
		return "<invalid>"
	}
}

// Equal reports structural equality of two semantic types.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case Int, Byte, Bool, String, Void:
		return true
	case KStruct, KEnum:
		return t.Module == o.Module && t.Name == o.Name
	case KPointer, KNullable:
		return t.Inner.Equal(o.Inner)
	case KFunc:
		if len(t.Params) != len(o.Params) || !t.Result.Equal(o.Result) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// IsNumeric reports whether t is int or byte.
func (t *Type) IsNumeric() bool {
	return t != nil && (t.Kind == Int || t.Kind == Byte)
}

// IsARC reports whether a value of t owns an ARC-managed payload, directly
// (string) or transitively (a struct/enum value type containing string).
// structHasARC/enumHasARC are supplied by the caller (sema has the field
// tables needed to answer transitively; this package only knows shapes).
func (t *Type) IsARC(structHasARC, enumHasARC func(module, name string) bool) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case String:
		return true
	case KStruct:
		return structHasARC != nil && structHasARC(t.Module, t.Name)
	case KEnum:
		return enumHasARC != nil && enumHasARC(t.Module, t.Name)
	default:
		return false
	}
}

// ---------------------------------------------------------------------
// Symbols and environments
// ---------------------------------------------------------------------

type SymbolKind int

const (
	SymFunc SymbolKind = iota
	SymStruct
	SymEnum
	SymEnumVariant
	SymTypeAlias
	SymLet
)

func (k SymbolKind) String() string {
	switch k {
	case SymFunc:
		return "func"
	case SymStruct:
		return "struct"
	case SymEnum:
		return "enum"
	case SymEnumVariant:
		return "enum variant"
	case SymTypeAlias:
		return "type alias"
	case SymLet:
		return "let"
	default:
		return "symbol"
	}
}

// Symbol is a named, top-level declaration as seen by name resolution.
// AST carries an opaque interface{} backlink (ast.TopDecl, or a
// (*ast.Enum, *ast.Variant) pair for enum variants) to avoid an import
// cycle between types and ast.
type Symbol struct {
	Kind   SymbolKind
	Module string
	Name   string
	AST    interface{}
	Type   *Type // left nil by the sema passes; resolved types live in AnalysisResult's tables
}

// ModuleEnv is one module's symbol environment (spec.md §3, §4.4).
type ModuleEnv struct {
	Module string

	// locals: symbols declared directly in this module, by name.
	Locals map[string]*Symbol

	// imported: name -> set of (module, symbol) pairs brought in by every
	// `import` of this module; more than one entry means the name is
	// ambiguous.
	Imported map[string][]*Symbol

	// merged: the actual lookup view. A name present in Locals always
	// wins (local declarations shadow imports); otherwise a name with
	// exactly one Imported entry resolves to it, and a name with more
	// than one is ambiguous (absent from merged, looked up again in
	// Imported for diagnostic purposes on use).
	Merged map[string]*Symbol
}

func NewModuleEnv(module string) *ModuleEnv {
	return &ModuleEnv{
		Module:   module,
		Locals:   make(map[string]*Symbol),
		Imported: make(map[string][]*Symbol),
		Merged:   make(map[string]*Symbol),
	}
}

// Ambiguous reports whether name resolves to more than one imported
// symbol and has no local definition shadowing it.
func (e *ModuleEnv) Ambiguous(name string) bool {
	if _, local := e.Locals[name]; local {
		return false
	}
	return len(e.Imported[name]) > 1
}

// Lookup resolves name for use within this module: local definitions
// shadow imports; an unambiguous import resolves; anything else (unknown,
// or ambiguous) returns (nil, ambiguous).
func (e *ModuleEnv) Lookup(name string) (sym *Symbol, ambiguous bool) {
	if s, ok := e.Locals[name]; ok {
		return s, false
	}
	if e.Ambiguous(name) {
		return nil, true
	}
	if s, ok := e.Merged[name]; ok {
		return s, false
	}
	return nil, false
}

// CompilationUnit is the entry module plus the cycle-checked transitive
// closure of its imports (spec.md §3, §4.3), ordered leaves-first for
// downstream emission.
type CompilationUnit struct {
	Entry   string
	Modules []string // leaves-first topological order, entry last
}

func (u *CompilationUnit) String() string {
	return fmt.Sprintf("CompilationUnit{entry=%s, modules=%v}", u.Entry, u.Modules)
}
