// Package diag implements L0's user-facing diagnostic plane (spec.md §3,
// §6, §7): severities, stable XXX-NNNN codes, and the stderr renderer with
// gutter source line and caret span.
//
// Grounded on lang/yld/linker.go's style of attaching a secondary
// explanatory note to a resolution failure (ld.verbose branches), widened
// from plain fmt.Errorf strings to a structured, accumulating Bag the way
// spec.md §3 describes ("Diagnostics accumulate across passes").
package diag

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
)

type Severity int

const (
	Error Severity = iota
	Warning
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Phase code prefixes, spec.md §7.
const (
	PhaseLex    = "LEX"
	PhasePar    = "PAR"
	PhaseDriver = "DRV"
	PhaseName   = "NAM"
	PhaseSig    = "SIG"
	PhaseLocal  = "LOC"
	PhaseType   = "TYP"
	PhaseMatch  = "MTC"
	PhaseBack   = "BAK"
	PhaseOrch   = "L0C"
	PhaseICE    = "ICE"
)

// Span is a caret-rendering source range; column end is inclusive here
// (unlike ast.Span, which is end-exclusive) to simplify caret-run math.
type Span struct {
	Line     int
	Col      int
	EndCol   int // inclusive; 0 means "just Col"
}

// Diagnostic is one reported issue.
type Diagnostic struct {
	Severity Severity
	Code     string // "XXX-NNNN"
	Message  string
	Path     string
	Module   string
	Line     int // 0 if no location
	Col      int
	Span     *Span // optional, for caret rendering
}

// Bag is an append-only, ordered collection of diagnostics.
//
// spec.md §3: "Ordering within a pass follows source position; cross-pass
// diagnostics accumulate append-only."
type Bag struct {
	items []Diagnostic
}

func (b *Bag) Add(d Diagnostic) { b.items = append(b.items, d) }

func (b *Bag) Errorf(code, path, module string, line, col int, format string, args ...interface{}) {
	b.Add(Diagnostic{
		Severity: Error, Code: code, Path: path, Module: module,
		Line: line, Col: col, Message: fmt.Sprintf(format, args...),
	})
}

func (b *Bag) Warnf(code, path, module string, line, col int, format string, args ...interface{}) {
	b.Add(Diagnostic{
		Severity: Warning, Code: code, Path: path, Module: module,
		Line: line, Col: col, Message: fmt.Sprintf(format, args...),
	})
}

func (b *Bag) Notef(code, path, module string, line, col int, format string, args ...interface{}) {
	b.Add(Diagnostic{
		Severity: Note, Code: code, Path: path, Module: module,
		Line: line, Col: col, Message: fmt.Sprintf(format, args...),
	})
}

// ICE records an internal-consistency-error diagnostic (spec.md §7):
// fatal to lowering but not to the process.
func (b *Bag) ICE(path, module string, line, col int, format string, args ...interface{}) {
	b.Add(Diagnostic{
		Severity: Error, Code: PhaseICE + "-0001", Path: path, Module: module,
		Line: line, Col: col, Message: fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any diagnostic has Error severity. Lowering
// (spec.md §4.8) must refuse to run while this is true.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

func (b *Bag) Items() []Diagnostic { return append([]Diagnostic(nil), b.items...) }

// Sort orders diagnostics by (file, line, column, code) for determinism,
// per spec.md §5.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		a, c := b.items[i], b.items[j]
		if a.Path != c.Path {
			return a.Path < c.Path
		}
		if a.Line != c.Line {
			return a.Line < c.Line
		}
		if a.Col != c.Col {
			return a.Col < c.Col
		}
		return a.Code < c.Code
	})
}

// Merge appends another bag's diagnostics (cross-pass accumulation).
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	b.items = append(b.items, other.items...)
}

// Renderer formats diagnostics per spec.md §6:
//
//	[path]:[line]:[column]([module]): severity: [CODE] message
//
// optionally followed by a right-aligned gutter source line and a
// caret/carets line. Components degrade gracefully when absent.
type Renderer struct {
	Color bool
	// Source returns the 1-based line text of path, or "" if unavailable.
	Source func(path string, line int) string
}

// NewRenderer builds a Renderer, auto-detecting ANSI color support the way
// a terminal-aware CLI tool does (mattn/go-isatty, the same check
// playbymail-ottomap's driver layer could use before coloring output).
func NewRenderer(w io.Writer, source func(string, int) string) *Renderer {
	color := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{Color: color, Source: source}
}

func (r *Renderer) colorize(sev Severity, s string) string {
	if !r.Color {
		return s
	}
	code := "36" // note: cyan
	switch sev {
	case Error:
		code = "31"
	case Warning:
		code = "33"
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// Render writes one diagnostic's text form to w.
func (r *Renderer) Render(w io.Writer, d Diagnostic) {
	var head strings.Builder
	if d.Path != "" {
		fmt.Fprintf(&head, "%s:", d.Path)
	}
	if d.Line > 0 {
		fmt.Fprintf(&head, "%d:%d", d.Line, d.Col)
		if d.Module != "" {
			fmt.Fprintf(&head, "(%s)", d.Module)
		}
		head.WriteString(": ")
	} else if d.Path != "" {
		head.WriteString(" ")
	}
	fmt.Fprintf(&head, "%s: [%s] %s\n", r.colorize(d.Severity, d.Severity.String()), d.Code, d.Message)
	io.WriteString(w, head.String())

	if d.Span == nil || r.Source == nil {
		return
	}
	line := r.Source(d.Path, d.Span.Line)
	if line == "" {
		return
	}
	gutter := fmt.Sprintf("%d", d.Span.Line)
	fmt.Fprintf(w, "%s | %s\n", gutter, line)

	end := d.Span.EndCol
	if end < d.Span.Col {
		end = d.Span.Col
	}
	pad := strings.Repeat(" ", len(gutter)+3+d.Span.Col-1)
	carets := strings.Repeat("^", end-d.Span.Col+1)
	fmt.Fprintf(w, "%s%s\n", pad, r.colorize(d.Severity, carets))
}

// RenderAll renders every diagnostic in b, in source order.
func (r *Renderer) RenderAll(w io.Writer, b *Bag) {
	b.Sort()
	for _, d := range b.Items() {
		r.Render(w, d)
	}
}
