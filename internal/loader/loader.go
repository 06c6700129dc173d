// Package loader implements L0's module loader (spec.md §4.3): ordered
// search-root resolution, a bounded parse cache, import-cycle detection,
// and transitive-closure computation.
//
// Grounded on lang/yld/reader.go's os.ReadFile-then-annotate-error shape
// for reading inputs, widened from WUT-4's flat single-pass "read every
// object file the linker was given" model to L0's recursive, cached,
// cycle-checked module graph. Error wrapping uses github.com/juju/errors
// (see SPEC_FULL.md §10.2) in place of the teacher's bare fmt.Errorf,
// since the loader's own I/O failures must be distinguishable from the
// user-facing module-cycle diagnostic it also reports.
package loader

import (
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/juju/errors"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/lexer"
	"github.com/l0-lang/l0c/internal/parser"
	"github.com/l0-lang/l0c/internal/types"
)

// parseCacheSize bounds the loader's in-memory parsed-module cache. A
// Stage-1 compilation unit practically never approaches this many
// distinct modules; the bound exists so a pathological import graph (or
// a long-lived driver process compiling many units) can't grow the cache
// without limit.
const parseCacheSize = 4096

// Loader resolves dotted module names against ordered search roots
// (system roots before project roots, per spec.md §6) and parses each
// module at most once.
type Loader struct {
	systemRoots  []string
	projectRoots []string
	errs         *diag.Bag

	cache *lru.Cache[string, *ast.Module]

	// loading is the DFS "currently loading" set used for cycle
	// detection, keyed by dotted module name; the slice records
	// discovery order for the cycle diagnostic.
	loading    map[string]bool
	loadOrder  []string
}

// New creates a Loader. systemRoots are searched before projectRoots.
func New(systemRoots, projectRoots []string, errs *diag.Bag) *Loader {
	c, err := lru.New[string, *ast.Module](parseCacheSize)
	if err != nil {
		// lru.New only errors on a non-positive size, which parseCacheSize
		// never is; this is an internal-consistency condition.
		panic(errors.Annotate(err, "loader: constructing module cache"))
	}
	return &Loader{
		systemRoots:  systemRoots,
		projectRoots: projectRoots,
		errs:         errs,
		cache:        c,
		loading:      make(map[string]bool),
	}
}

// resolvePath maps a dotted module name to a file path by trying every
// root in order, system roots first (spec.md §6).
func (l *Loader) resolvePath(name string) (string, error) {
	rel := strings.ReplaceAll(name, ".", string(filepath.Separator)) + ".l0"
	for _, root := range append(append([]string{}, l.systemRoots...), l.projectRoots...) {
		candidate := filepath.Join(root, rel)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.NotFoundf("module %q", name)
}

// Load parses name (and, transitively, everything it imports), caching
// parsed modules by dotted name and reporting import cycles as a single
// diagnostic naming every module on the cycle in discovery order.
func (l *Loader) Load(name string) (*ast.Module, error) {
	if l.loading[name] {
		l.reportCycle(name)
		return nil, errors.Errorf("import cycle involving %q", name)
	}
	if mod, ok := l.cache.Get(name); ok {
		return mod, nil
	}

	path, err := l.resolvePath(name)
	if err != nil {
		return nil, errors.Annotatef(err, "resolving module %q", name)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", path)
	}

	l.loading[name] = true
	l.loadOrder = append(l.loadOrder, name)
	defer func() {
		delete(l.loading, name)
		l.loadOrder = l.loadOrder[:len(l.loadOrder)-1]
	}()

	toks := lexer.New(path, src, l.errs).Lex()
	mod := parser.New(path, toks, l.errs).ParseModule()

	if mod.Name.String() != name {
		l.errs.Errorf(diag.PhaseDriver+"-0001", path, "", mod.Name.Span.Line, mod.Name.Span.Col,
			"module declares name %q but was loaded as %q", mod.Name.String(), name)
	}

	l.cache.Add(name, mod)

	for _, imp := range mod.Imports {
		if _, err := l.Load(imp.String()); err != nil {
			if !l.loading[imp.String()] {
				// A genuine load failure. A cycle has already been
				// reported by the inner call, and in that case the
				// imported module is still marked in loading[] because
				// it is one of our own callers.
				l.errs.Errorf(diag.PhaseDriver+"-0002", path, "", imp.Span.Line, imp.Span.Col,
					"cannot load imported module %q: %v", imp.String(), err)
			}
		}
	}

	return mod, nil
}

// reportCycle emits a single DRV- diagnostic naming every module on the
// cycle, in discovery order (spec.md §8).
func (l *Loader) reportCycle(reentry string) {
	start := 0
	for i, m := range l.loadOrder {
		if m == reentry {
			start = i
			break
		}
	}
	cycle := append(append([]string{}, l.loadOrder[start:]...), reentry)
	l.errs.Errorf(diag.PhaseDriver+"-0003", "", "", 0, 0,
		"import cycle: %s", strings.Join(cycle, " -> "))
}

// Closure computes the transitive closure of name's imports and returns a
// types.CompilationUnit ordered leaves-first (spec.md §3, §5): a module
// appears only after everything it imports.
func (l *Loader) Closure(name string) (*types.CompilationUnit, map[string]*ast.Module) {
	modules := make(map[string]*ast.Module)
	var order []string
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(n string)
	visit = func(n string) {
		if visited[n] || visiting[n] {
			return
		}
		visiting[n] = true
		mod, ok := l.cache.Get(n)
		if ok {
			modules[n] = mod
			imports := append([]ast.DottedName(nil), mod.Imports...)
			for _, imp := range imports {
				visit(imp.String())
			}
		}
		visiting[n] = false
		visited[n] = true
		order = append(order, n)
	}
	visit(name)

	return &types.CompilationUnit{Entry: name, Modules: order}, modules
}
