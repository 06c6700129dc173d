// Package parser implements L0's single-pass recursive-descent parser
// (spec.md §4.2).
//
// Grounded on lang/parse/parser.go's panic-mode recursive descent
// (parseDeclaration/parseStatement/parseExpression ladder, synchronize()
// resync to the next declaration/statement boundary), generalized from
// WUT-4's flat const/var/func/struct grammar to L0's module+imports
// header, enum/match/case/with/drop/try statements and expressions, and
// the qualified-name / nullable type grammar of spec.md §4.2.
package parser

import (
	"strconv"

	"github.com/l0-lang/l0c/internal/ast"
	"github.com/l0-lang/l0c/internal/diag"
	"github.com/l0-lang/l0c/internal/token"
)

// Parser consumes a flat token slice (as produced by internal/lexer) and
// builds a spanned ast.Module.
type Parser struct {
	toks      []token.Token
	pos       int
	path      string
	errs      *diag.Bag
	panicMode bool
}

func New(path string, toks []token.Token, errs *diag.Bag) *Parser {
	return &Parser{toks: toks, path: path, errs: errs}
}

// ---- token cursor ----------------------------------------------------

func (p *Parser) peek() token.Token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool { return p.peek().Kind == token.EOF }

func (p *Parser) advance() token.Token {
	t := p.peek()
	if !p.atEOF() {
		p.pos++
	}
	return t
}

func (p *Parser) check(k token.Kind) bool { return p.peek().Kind == k }

func (p *Parser) matchKind(k token.Kind) (token.Token, bool) {
	if p.check(k) {
		return p.advance(), true
	}
	return token.Token{}, false
}

func (p *Parser) expect(k token.Kind, what string) token.Token {
	if p.check(k) {
		return p.advance()
	}
	p.errorAt(p.peek(), "expected %s, got %q", what, p.peek().Lexeme)
	return p.peek()
}

func (p *Parser) errorAt(t token.Token, format string, args ...interface{}) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.errs.Errorf(diag.PhasePar+"-0001", p.path, "", t.Line, t.Col, format, args...)
}

// synchronize skips tokens until a declaration or statement boundary,
// mirroring lang/parse/parser.go's synchronize().
func (p *Parser) synchronizeDecl() {
	p.panicMode = false
	for !p.atEOF() {
		switch p.peek().Kind {
		case token.KwFunc, token.KwExtern, token.KwStruct, token.KwEnum, token.KwType, token.KwLet:
			return
		}
		if p.check(token.Semicolon) || p.check(token.RBrace) {
			p.advance()
			return
		}
		p.advance()
	}
}

func (p *Parser) synchronizeStmt() {
	p.panicMode = false
	for !p.atEOF() {
		if p.check(token.Semicolon) {
			p.advance()
			return
		}
		if p.check(token.RBrace) {
			return
		}
		p.advance()
	}
}

func spanOf(start, end token.Token) ast.Span {
	return ast.Span{Line: start.Line, Col: start.Col, EndLine: end.Line, EndCol: end.Col + len([]rune(end.Lexeme))}
}

func singleSpan(t token.Token) ast.Span {
	return ast.Span{Line: t.Line, Col: t.Col, EndLine: t.Line, EndCol: t.Col + len([]rune(t.Lexeme))}
}

// ---- entry point -------------------------------------------------------

// ParseModule parses one full source file.
func (p *Parser) ParseModule() *ast.Module {
	start := p.peek()
	modTok := p.expect(token.KwModule, "'module'")
	name := p.parseDottedName()
	p.expect(token.Semicolon, "';'")

	var imports []ast.DottedName
	for p.check(token.KwImport) {
		p.advance()
		imports = append(imports, p.parseDottedName())
		p.expect(token.Semicolon, "';'")
	}

	var decls []ast.TopDecl
	for !p.atEOF() {
		d := p.parseTopDecl()
		if d != nil {
			decls = append(decls, d)
		} else if p.panicMode {
			p.synchronizeDecl()
		}
	}
	last := modTok
	if len(decls) > 0 {
		last = token.Token{Line: decls[len(decls)-1].GetSpan().EndLine, Col: decls[len(decls)-1].GetSpan().EndCol}
	}
	return &ast.Module{Name: name, Imports: imports, Decls: decls, Span: spanOf(start, last)}
}

func (p *Parser) parseDottedName() ast.DottedName {
	start := p.peek()
	var segs []string
	seg := p.expect(token.Ident, "identifier")
	segs = append(segs, seg.Lexeme)
	last := seg
	for p.check(token.Dot) {
		p.advance()
		seg = p.expect(token.Ident, "identifier")
		segs = append(segs, seg.Lexeme)
		last = seg
	}
	return ast.DottedName{Segments: segs, Span: spanOf(start, last)}
}

// ---- top-level declarations --------------------------------------------

func (p *Parser) parseTopDecl() ast.TopDecl {
	switch p.peek().Kind {
	case token.KwFunc:
		return p.parseFunc()
	case token.KwExtern:
		return p.parseExternFunc()
	case token.KwStruct:
		return p.parseStruct()
	case token.KwEnum:
		return p.parseEnum()
	case token.KwType:
		return p.parseTypeAlias()
	case token.KwLet:
		return p.parseTopLet()
	case token.KwConst:
		// §9 open question: top-level const is reserved but not
		// implemented; treat it as an error and resync.
		p.errorAt(p.peek(), "top-level 'const' is reserved and not yet implemented")
		p.synchronizeDecl()
		return nil
	default:
		p.errorAt(p.peek(), "expected a top-level declaration, got %q", p.peek().Lexeme)
		p.synchronizeDecl()
		return nil
	}
}

func (p *Parser) parseParamList() []*ast.Param {
	p.expect(token.LParen, "'('")
	var params []*ast.Param
	for !p.check(token.RParen) && !p.atEOF() {
		before := p.pos
		if len(params) > 0 {
			p.expect(token.Comma, "','")
		}
		nameTok := p.expect(token.Ident, "parameter name")
		p.expect(token.Colon, "':'")
		ty := p.parseType()
		if p.pos == before {
			break // nothing consumed: leave the bad token to the caller
		}
		params = append(params, &ast.Param{Name: nameTok.Lexeme, Type: ty, Span: spanOf(nameTok, nameTok)})
	}
	p.expect(token.RParen, "')'")
	return params
}

func (p *Parser) parseRetType() *ast.TypeRef {
	if p.check(token.Arrow) {
		p.advance()
		return p.parseType()
	}
	return nil
}

func (p *Parser) parseFunc() *ast.Func {
	start := p.peek()
	p.advance() // func
	nameTok := p.expect(token.Ident, "function name")
	params := p.parseParamList()
	ret := p.parseRetType()
	body := p.parseBlock()
	return &ast.Func{Name: nameTok.Lexeme, Params: params, Ret: ret, Body: body, Span: spanOf(start, start)}
}

func (p *Parser) parseExternFunc() *ast.ExternFunc {
	start := p.peek()
	p.advance() // extern
	p.expect(token.KwFunc, "'func'")
	nameTok := p.expect(token.Ident, "function name")
	params := p.parseParamList()
	ret := p.parseRetType()
	p.expect(token.Semicolon, "';'")
	return &ast.ExternFunc{Name: nameTok.Lexeme, Params: params, Ret: ret, Span: spanOf(start, start)}
}

func (p *Parser) parseStruct() *ast.Struct {
	start := p.peek()
	p.advance() // struct
	nameTok := p.expect(token.Ident, "struct name")
	p.expect(token.LBrace, "'{'")
	var fields []*ast.Field
	for !p.check(token.RBrace) && !p.atEOF() {
		f := p.parseField()
		fields = append(fields, f)
		if p.check(token.Comma) {
			p.advance()
		} else {
			p.expect(token.Semicolon, "',' or ';'")
		}
	}
	p.expect(token.RBrace, "'}'")
	return &ast.Struct{Name: nameTok.Lexeme, Fields: fields, Span: spanOf(start, start)}
}

func (p *Parser) parseField() *ast.Field {
	nameTok := p.expect(token.Ident, "field name")
	p.expect(token.Colon, "':'")
	ty := p.parseType()
	return &ast.Field{Name: nameTok.Lexeme, Type: ty, Span: spanOf(nameTok, nameTok)}
}

func (p *Parser) parseEnum() *ast.Enum {
	start := p.peek()
	p.advance() // enum
	nameTok := p.expect(token.Ident, "enum name")
	p.expect(token.LBrace, "'{'")
	var variants []*ast.Variant
	for !p.check(token.RBrace) && !p.atEOF() {
		variants = append(variants, p.parseVariant())
	}
	p.expect(token.RBrace, "'}'")
	return &ast.Enum{Name: nameTok.Lexeme, Variants: variants, Span: spanOf(start, start)}
}

func (p *Parser) parseVariant() *ast.Variant {
	nameTok := p.expect(token.Ident, "variant name")
	p.expect(token.LParen, "'('")
	var payload []*ast.Field
	for !p.check(token.RParen) && !p.atEOF() {
		if len(payload) > 0 {
			p.expect(token.Comma, "','")
		}
		payload = append(payload, p.parseField())
	}
	p.expect(token.RParen, "')'")
	p.expect(token.Semicolon, "';'")
	return &ast.Variant{Name: nameTok.Lexeme, Payload: payload, Span: spanOf(nameTok, nameTok)}
}

func (p *Parser) parseTypeAlias() *ast.TypeAlias {
	start := p.peek()
	p.advance() // type
	nameTok := p.expect(token.Ident, "alias name")
	p.expect(token.Assign, "'='")
	target := p.parseType()
	p.expect(token.Semicolon, "';'")
	return &ast.TypeAlias{Name: nameTok.Lexeme, Target: target, Span: spanOf(start, start)}
}

func (p *Parser) parseTopLet() *ast.TopLet {
	start := p.peek()
	p.advance() // let
	nameTok := p.expect(token.Ident, "binding name")
	var ty *ast.TypeRef
	if p.check(token.Colon) {
		p.advance()
		ty = p.parseType()
	}
	p.expect(token.Assign, "'='")
	init := p.parseExpr()
	p.expect(token.Semicolon, "';'")
	return &ast.TopLet{Name: nameTok.Lexeme, Type: ty, Init: init, Span: spanOf(start, start)}
}

// ---- types --------------------------------------------------------------

var builtinTypeKinds = map[token.Kind]string{
	token.KwInt: "int", token.KwByte: "byte", token.KwBool: "bool",
	token.KwString: "string", token.KwVoid: "void",
}

// parseType parses `SimpleType PointerSuffix* NullableSuffix?` (spec.md
// §4.2). SimpleType is `seg(.seg)*::Name`; multiple "::" are consumed to
// avoid stray tokens but rejected later by the signature resolver.
func (p *Parser) parseType() *ast.TypeRef {
	start := p.peek()
	var qualifier []string
	var name string

	if n, ok := builtinTypeKinds[p.peek().Kind]; ok {
		p.advance()
		name = n
	} else {
		first := p.expect(token.Ident, "type name")
		name = first.Lexeme
		for p.check(token.Dot) {
			p.advance()
			qualifier = append(qualifier, name)
			seg := p.expect(token.Ident, "identifier")
			name = seg.Lexeme
		}
		for p.check(token.ColonColon) {
			p.advance()
			qualifier = append(qualifier, name)
			seg := p.expect(token.Ident, "identifier")
			name = seg.Lexeme
		}
	}

	depth := 0
	for p.check(token.Star) {
		p.advance()
		depth++
	}
	nullable := false
	if p.check(token.Question) {
		p.advance()
		nullable = true
	}
	last := start
	if p.pos > 0 {
		last = p.toks[p.pos-1]
	}
	return &ast.TypeRef{Qualifier: qualifier, Name: name, PtrDepth: depth, Nullable: nullable, Span: spanOf(start, last)}
}

// looksLikeTypeExpr reports whether the tokens starting at the current
// position form a type-in-argument-position (spec.md §4.2): a builtin
// type keyword, or a (possibly qualified) identifier followed by one or
// more `*` and an optional `?`, ending at `,` or `)`. A bare identifier or
// `x?` stays a value expression.
func (p *Parser) looksLikeTypeExpr() bool {
	i := p.pos
	if _, ok := builtinTypeKinds[p.toks[i].Kind]; ok {
		return true
	}
	if p.toks[i].Kind != token.Ident {
		return false
	}
	i++
	for i < len(p.toks) && (p.toks[i].Kind == token.Dot || p.toks[i].Kind == token.ColonColon) {
		i++
		if i >= len(p.toks) || p.toks[i].Kind != token.Ident {
			return false
		}
		i++
	}
	sawPtr := false
	for i < len(p.toks) && p.toks[i].Kind == token.Star {
		i++
		sawPtr = true
	}
	if i < len(p.toks) && p.toks[i].Kind == token.Question {
		i++
	}
	if !sawPtr {
		return false
	}
	return i < len(p.toks) && (p.toks[i].Kind == token.Comma || p.toks[i].Kind == token.RParen)
}

// ---- statements -----------------------------------------------------------

func (p *Parser) parseBlock() *ast.Block {
	start := p.expect(token.LBrace, "'{'")
	var stmts []ast.Stmt
	for !p.check(token.RBrace) && !p.atEOF() {
		s := p.parseStmt()
		if s != nil {
			stmts = append(stmts, s)
		} else if p.panicMode {
			p.synchronizeStmt()
		}
	}
	end := p.expect(token.RBrace, "'}'")
	return &ast.Block{Stmts: stmts, Span: spanOf(start, end)}
}

func (p *Parser) parseStmt() ast.Stmt {
	switch p.peek().Kind {
	case token.LBrace:
		return p.parseBlock()
	case token.KwLet:
		return p.parseLet()
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwWith:
		return p.parseWith()
	case token.KwMatch:
		return p.parseMatch()
	case token.KwCase:
		return p.parseCase()
	case token.KwDrop:
		return p.parseDrop()
	case token.KwBreak:
		t := p.advance()
		p.expect(token.Semicolon, "';'")
		return &ast.Break{Span: singleSpan(t)}
	case token.KwContinue:
		t := p.advance()
		p.expect(token.Semicolon, "';'")
		return &ast.Continue{Span: singleSpan(t)}
	case token.KwReturn:
		return p.parseReturn()
	default:
		return p.parseExprOrAssignStmt()
	}
}

func (p *Parser) parseLet() *ast.Let {
	start := p.advance() // let
	nameTok := p.expect(token.Ident, "binding name")
	var ty *ast.TypeRef
	if p.check(token.Colon) {
		p.advance()
		ty = p.parseType()
	}
	p.expect(token.Assign, "'='")
	init := p.parseExpr()
	p.expect(token.Semicolon, "';'")
	return &ast.Let{Name: nameTok.Lexeme, Type: ty, Init: init, Span: singleSpan(start)}
}

func (p *Parser) parseIf() *ast.If {
	start := p.advance() // if
	p.expect(token.LParen, "'('")
	cond := p.parseExpr()
	p.expect(token.RParen, "')'")
	then := p.parseBlock()
	var els ast.Stmt
	if p.check(token.KwElse) {
		p.advance()
		if p.check(token.KwIf) {
			els = p.parseIf()
		} else {
			els = p.parseBlock()
		}
	}
	return &ast.If{Cond: cond, Then: then, Else: els, Span: singleSpan(start)}
}

func (p *Parser) parseWhile() *ast.While {
	start := p.advance() // while
	p.expect(token.LParen, "'('")
	cond := p.parseExpr()
	p.expect(token.RParen, "')'")
	body := p.parseBlock()
	return &ast.While{Cond: cond, Body: body, Span: singleSpan(start)}
}

func (p *Parser) parseFor() *ast.For {
	start := p.advance() // for
	p.expect(token.LParen, "'('")
	var init ast.Stmt
	if !p.check(token.Semicolon) {
		init = p.parseForClauseStmt()
	}
	p.expect(token.Semicolon, "';'")
	var cond ast.Expr
	if !p.check(token.Semicolon) {
		cond = p.parseExpr()
	}
	p.expect(token.Semicolon, "';'")
	var step ast.Stmt
	if !p.check(token.RParen) {
		step = p.parseForClauseStmt()
	}
	p.expect(token.RParen, "')'")
	body := p.parseBlock()
	return &ast.For{Init: init, Cond: cond, Step: step, Body: body, Span: singleSpan(start)}
}

// parseForClauseStmt parses init/step positions of a for-header, which
// are statements per spec.md §4.2 but without a trailing consuming ';'
// (the caller handles separators).
func (p *Parser) parseForClauseStmt() ast.Stmt {
	if p.check(token.KwLet) {
		start := p.advance()
		nameTok := p.expect(token.Ident, "binding name")
		var ty *ast.TypeRef
		if p.check(token.Colon) {
			p.advance()
			ty = p.parseType()
		}
		p.expect(token.Assign, "'='")
		init := p.parseExpr()
		return &ast.Let{Name: nameTok.Lexeme, Type: ty, Init: init, Span: singleSpan(start)}
	}
	start := p.peek()
	e := p.parseExpr()
	if p.check(token.Assign) {
		p.advance()
		v := p.parseExpr()
		return &ast.Assign{Target: e, Value: v, Span: singleSpan(start)}
	}
	return &ast.ExprStmt{X: e, Span: singleSpan(start)}
}

func (p *Parser) parseWith() *ast.With {
	start := p.advance() // with
	p.expect(token.LParen, "'('")
	var items []*ast.WithItem
	sawInline, sawPlain := false, false
	for !p.check(token.RParen) && !p.atEOF() {
		if len(items) > 0 {
			p.expect(token.Comma, "','")
		}
		itemStart := p.peek()
		p.expect(token.KwLet, "'let'")
		nameTok := p.expect(token.Ident, "binding name")
		p.expect(token.Assign, "'='")
		init := p.parseExpr()
		var cleanup ast.Stmt
		if p.check(token.FatArrow) {
			p.advance()
			if p.check(token.LBrace) {
				cleanup = p.parseBlock()
			} else {
				cleanup = p.parseForClauseStmt() // no ';' before ',' or ')'
			}
			sawInline = true
		} else {
			sawPlain = true
		}
		items = append(items, &ast.WithItem{Name: nameTok.Lexeme, Init: init, Cleanup: cleanup, Span: singleSpan(itemStart)})
	}
	p.expect(token.RParen, "')'")
	if sawInline && sawPlain {
		p.errorAt(start, "'with' header items must either all use '=> cleanup' or none do")
	}
	body := p.parseBlock()
	var cleanupBlock *ast.Block
	if !sawInline {
		p.expect(token.KwCleanup, "'cleanup'")
		cleanupBlock = p.parseBlock()
	}
	return &ast.With{Items: items, Body: body, Cleanup: cleanupBlock, Span: singleSpan(start)}
}

func (p *Parser) parseMatch() *ast.Match {
	start := p.advance() // match
	p.expect(token.LParen, "'('")
	scrutinee := p.parseExpr()
	p.expect(token.RParen, "')'")
	p.expect(token.LBrace, "'{'")
	var arms []*ast.MatchArm
	for !p.check(token.RBrace) && !p.atEOF() {
		arms = append(arms, p.parseMatchArm())
	}
	p.expect(token.RBrace, "'}'")
	return &ast.Match{Scrutinee: scrutinee, Arms: arms, Span: singleSpan(start)}
}

func (p *Parser) parseMatchArm() *ast.MatchArm {
	start := p.peek()
	pat := p.parsePattern()
	p.expect(token.FatArrow, "'=>'")
	body := p.parseBlock()
	return &ast.MatchArm{Pattern: pat, Body: body, Span: singleSpan(start)}
}

func (p *Parser) parsePattern() ast.Pattern {
	if p.check(token.Wildcard) {
		t := p.advance()
		return &ast.WildcardPattern{Span: singleSpan(t)}
	}
	start := p.peek()
	var qualifier []string
	name := p.expect(token.Ident, "pattern").Lexeme
	for p.check(token.Dot) {
		p.advance()
		qualifier = append(qualifier, name)
		name = p.expect(token.Ident, "identifier").Lexeme
	}
	for p.check(token.ColonColon) {
		p.advance()
		qualifier = append(qualifier, name)
		name = p.expect(token.Ident, "identifier").Lexeme
	}
	var vars []string
	if p.check(token.LParen) {
		p.advance()
		for !p.check(token.RParen) && !p.atEOF() {
			if len(vars) > 0 {
				p.expect(token.Comma, "','")
			}
			vars = append(vars, p.expect(token.Ident, "bound name").Lexeme)
		}
		p.expect(token.RParen, "')'")
	}
	return &ast.VariantPattern{Qualifier: qualifier, Name: name, Vars: vars, Span: singleSpan(start)}
}

func (p *Parser) parseCase() *ast.Case {
	start := p.advance() // case
	p.expect(token.LParen, "'('")
	scrutinee := p.parseExpr()
	p.expect(token.RParen, "')'")
	p.expect(token.LBrace, "'{'")
	var arms []*ast.CaseArm
	for !p.check(token.RBrace) && !p.atEOF() {
		arms = append(arms, p.parseCaseArm())
	}
	p.expect(token.RBrace, "'}'")
	return &ast.Case{Scrutinee: scrutinee, Arms: arms, Span: singleSpan(start)}
}

func (p *Parser) parseCaseArm() *ast.CaseArm {
	start := p.peek()
	if p.check(token.KwElse) {
		p.advance()
		p.expect(token.FatArrow, "'=>'")
		body := p.parseBlock()
		return &ast.CaseArm{Values: nil, Body: body, Span: singleSpan(start)}
	}
	var values []ast.Expr
	values = append(values, p.parseExpr())
	for p.check(token.Comma) {
		p.advance()
		values = append(values, p.parseExpr())
	}
	p.expect(token.FatArrow, "'=>'")
	body := p.parseBlock()
	return &ast.CaseArm{Values: values, Body: body, Span: singleSpan(start)}
}

func (p *Parser) parseDrop() *ast.Drop {
	start := p.advance() // drop
	target := p.parseExpr()
	p.expect(token.Semicolon, "';'")
	return &ast.Drop{Target: target, Span: singleSpan(start)}
}

func (p *Parser) parseReturn() *ast.Return {
	start := p.advance() // return
	var val ast.Expr
	if !p.check(token.Semicolon) {
		val = p.parseExpr()
	}
	p.expect(token.Semicolon, "';'")
	return &ast.Return{Value: val, Span: singleSpan(start)}
}

// parseExprOrAssignStmt handles the remaining statement forms: a bare
// expression statement, or an assignment (statement-only per spec.md
// §4.2).
func (p *Parser) parseExprOrAssignStmt() ast.Stmt {
	start := p.peek()
	e := p.parseExpr()
	if p.check(token.Assign) {
		p.advance()
		v := p.parseExpr()
		p.expect(token.Semicolon, "';'")
		return &ast.Assign{Target: e, Value: v, Span: singleSpan(start)}
	}
	p.expect(token.Semicolon, "';'")
	return &ast.ExprStmt{X: e, Span: singleSpan(start)}
}

// ---- expressions -----------------------------------------------------------
//
// Precedence (low to high), per spec.md §4.2:
//   || && | ^ & ==/!= relational <<,>> +,- *,/ unary cast postfix

func (p *Parser) parseExpr() ast.Expr { return p.parseOr() }

func (p *Parser) parseOr() ast.Expr {
	x := p.parseAnd()
	for p.check(token.PipePipe) {
		start := p.peek()
		p.advance()
		y := p.parseAnd()
		x = &ast.Binary{Op: ast.BinOr, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

func (p *Parser) parseAnd() ast.Expr {
	x := p.parseBitOr()
	for p.check(token.AmpAmp) {
		start := p.peek()
		p.advance()
		y := p.parseBitOr()
		x = &ast.Binary{Op: ast.BinAnd, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

func (p *Parser) parseBitOr() ast.Expr {
	x := p.parseBitXor()
	for p.check(token.Pipe) {
		start := p.peek()
		p.advance()
		y := p.parseBitXor()
		x = &ast.Binary{Op: ast.BinBitOr, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

func (p *Parser) parseBitXor() ast.Expr {
	x := p.parseBitAnd()
	for p.check(token.Caret) {
		start := p.peek()
		p.advance()
		y := p.parseBitAnd()
		x = &ast.Binary{Op: ast.BinBitXor, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

func (p *Parser) parseBitAnd() ast.Expr {
	x := p.parseEquality()
	for p.check(token.Amp) {
		start := p.peek()
		p.advance()
		y := p.parseEquality()
		x = &ast.Binary{Op: ast.BinBitAnd, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

func (p *Parser) parseEquality() ast.Expr {
	x := p.parseRelational()
	for p.check(token.Eq) || p.check(token.NotEq) {
		start := p.peek()
		op := ast.BinEq
		if start.Kind == token.NotEq {
			op = ast.BinNotEq
		}
		p.advance()
		y := p.parseRelational()
		x = &ast.Binary{Op: op, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

var relOps = map[token.Kind]ast.BinaryOp{
	token.Lt: ast.BinLt, token.LtEq: ast.BinLtEq, token.Gt: ast.BinGt, token.GtEq: ast.BinGtEq,
}

func (p *Parser) parseRelational() ast.Expr {
	x := p.parseShift()
	for {
		op, ok := relOps[p.peek().Kind]
		if !ok {
			return x
		}
		start := p.peek()
		p.advance()
		y := p.parseShift()
		x = &ast.Binary{Op: op, X: x, Y: y, Span: singleSpan(start)}
	}
}

func (p *Parser) parseShift() ast.Expr {
	x := p.parseAdditive()
	for p.check(token.Shl) || p.check(token.Shr) {
		start := p.peek()
		op := ast.BinShl
		if start.Kind == token.Shr {
			op = ast.BinShr
		}
		p.advance()
		y := p.parseAdditive()
		x = &ast.Binary{Op: op, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

func (p *Parser) parseAdditive() ast.Expr {
	x := p.parseMultiplicative()
	for p.check(token.Plus) || p.check(token.Minus) {
		start := p.peek()
		op := ast.BinAdd
		if start.Kind == token.Minus {
			op = ast.BinSub
		}
		p.advance()
		y := p.parseMultiplicative()
		x = &ast.Binary{Op: op, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

func (p *Parser) parseMultiplicative() ast.Expr {
	x := p.parseUnary()
	for p.check(token.Star) || p.check(token.Slash) || p.check(token.Percent) {
		start := p.peek()
		var op ast.BinaryOp
		switch start.Kind {
		case token.Star:
			op = ast.BinMul
		case token.Slash:
			op = ast.BinDiv
		default:
			op = ast.BinMod
		}
		p.advance()
		y := p.parseUnary()
		x = &ast.Binary{Op: op, X: x, Y: y, Span: singleSpan(start)}
	}
	return x
}

// parseUnary handles unary operators and the cast postfix `as T`, which
// binds tighter than unary per spec.md §4.2 ("unary cast postfix" reads
// as a single precedence band between multiplicative and postfix; casts
// apply to the unary operand before further postfix chaining).
func (p *Parser) parseUnary() ast.Expr {
	switch p.peek().Kind {
	case token.Minus:
		t := p.advance()
		x := p.parseUnary()
		return p.parseCastChain(&ast.Unary{Op: ast.UnNeg, X: x, Span: singleSpan(t)})
	case token.Bang:
		t := p.advance()
		x := p.parseUnary()
		return p.parseCastChain(&ast.Unary{Op: ast.UnNot, X: x, Span: singleSpan(t)})
	case token.Tilde:
		t := p.advance()
		x := p.parseUnary()
		return p.parseCastChain(&ast.Unary{Op: ast.UnBitNot, X: x, Span: singleSpan(t)})
	case token.Star:
		t := p.advance()
		x := p.parseUnary()
		return p.parseCastChain(&ast.Unary{Op: ast.UnDeref, X: x, Span: singleSpan(t)})
	default:
		return p.parseCastChain(p.parsePostfix())
	}
}

func (p *Parser) parseCastChain(x ast.Expr) ast.Expr {
	for p.check(token.KwAs) {
		start := p.advance()
		ty := p.parseType()
		x = &ast.Cast{X: x, Type: ty, Span: singleSpan(start)}
	}
	return x
}

func (p *Parser) parsePostfix() ast.Expr {
	x := p.parsePrimary()
	for {
		switch p.peek().Kind {
		case token.LParen:
			start := p.advance()
			var args []ast.Expr
			for !p.check(token.RParen) && !p.atEOF() {
				if len(args) > 0 {
					p.expect(token.Comma, "','")
				}
				if p.looksLikeTypeExpr() {
					tyStart := p.peek()
					ty := p.parseType()
					args = append(args, &ast.TypeExpr{Type: ty, Span: singleSpan(tyStart)})
				} else {
					args = append(args, p.parseExpr())
				}
			}
			p.expect(token.RParen, "')'")
			x = &ast.Call{Callee: x, Args: args, Span: singleSpan(start)}
		case token.LBracket:
			start := p.advance()
			idx := p.parseExpr()
			p.expect(token.RBracket, "']'")
			x = &ast.Index{X: x, Index: idx, Span: singleSpan(start)}
		case token.Dot:
			p.advance()
			fieldTok := p.expect(token.Ident, "field name")
			x = &ast.FieldAccess{X: x, Field: fieldTok.Lexeme, Span: singleSpan(fieldTok)}
		case token.Question:
			t := p.advance()
			x = &ast.Try{X: x, Span: singleSpan(t)}
		default:
			return x
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	t := p.peek()
	switch t.Kind {
	case token.IntLit:
		p.advance()
		v, _ := strconv.ParseInt(t.Lexeme, 10, 64)
		return &ast.IntLit{Value: v, Span: singleSpan(t)}
	case token.ByteLit:
		p.advance()
		var v byte
		if len(t.Lexeme) > 0 {
			v = t.Lexeme[0]
		}
		return &ast.ByteLit{Value: v, Span: singleSpan(t)}
	case token.StringLit:
		p.advance()
		return &ast.StringLit{Value: []byte(t.Lexeme), Span: singleSpan(t)}
	case token.BoolLit:
		p.advance()
		return &ast.BoolLit{Value: t.Lexeme == "true", Span: singleSpan(t)}
	case token.NullLit:
		p.advance()
		return &ast.NullLit{Span: singleSpan(t)}
	case token.KwNew:
		return p.parseNew()
	case token.KwSizeof:
		// sizeof is an intrinsic, not a keyword at the grammar level
		// (spec.md §9): it parses exactly like a call to an identifier
		// named "sizeof", whose single argument is typically a TypeExpr.
		p.advance()
		return &ast.VarRef{Name: "sizeof", Span: singleSpan(t)}
	case token.LParen:
		p.advance()
		inner := p.parseExpr()
		p.expect(token.RParen, "')'")
		return &ast.Paren{X: inner, Span: singleSpan(t)}
	case token.Ident:
		p.advance()
		if p.check(token.Dot) || p.check(token.ColonColon) {
			return p.parseQualifiedRefFrom(t)
		}
		return &ast.VarRef{Name: t.Lexeme, Span: singleSpan(t)}
	default:
		p.errorAt(t, "expected an expression, got %q", t.Lexeme)
		p.advance()
		return &ast.VarRef{Name: "<error>", Span: singleSpan(t)}
	}
}

func (p *Parser) parseQualifiedRefFrom(first token.Token) ast.Expr {
	qualifier := []string{first.Lexeme}
	for p.check(token.Dot) {
		p.advance()
		seg := p.expect(token.Ident, "identifier")
		qualifier = append(qualifier, seg.Lexeme)
		if !p.check(token.Dot) {
			break
		}
	}
	if p.check(token.ColonColon) {
		p.advance()
		nameTok := p.expect(token.Ident, "identifier")
		return &ast.QualifiedRef{Qualifier: qualifier, Name: nameTok.Lexeme, Span: singleSpan(first)}
	}
	// a bare dotted chain with no `::Name` is ordinary field access
	// (`p.x.y`): fold it into a VarRef followed by a FieldAccess chain,
	// which the checker types like any other field access.
	name := qualifier[len(qualifier)-1]
	var x ast.Expr = &ast.VarRef{Name: qualifier[0], Span: singleSpan(first)}
	for _, seg := range qualifier[1 : len(qualifier)-1] {
		x = &ast.FieldAccess{X: x, Field: seg, Span: singleSpan(first)}
	}
	if len(qualifier) > 1 {
		x = &ast.FieldAccess{X: x, Field: name, Span: singleSpan(first)}
	}
	return x
}

func (p *Parser) parseNew() ast.Expr {
	start := p.advance() // new
	ty := p.parseType()
	var args []ast.Expr
	if p.check(token.LParen) {
		p.advance()
		for !p.check(token.RParen) && !p.atEOF() {
			if len(args) > 0 {
				p.expect(token.Comma, "','")
			}
			args = append(args, p.parseExpr())
		}
		p.expect(token.RParen, "')'")
	}
	return &ast.New{Type: ty, Args: args, Span: singleSpan(start)}
}
