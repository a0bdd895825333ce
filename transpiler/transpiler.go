// Package transpiler parses guest source and generates executable units.
package transpiler

import (
	"errors"
	"sort"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/rs/zerolog"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Guest programs are scripts: top-level control flow, reassignment of
// globals, while loops and recursion are all allowed.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Transpiler turns guest source into units.
type Transpiler struct {
	logger zerolog.Logger
}

// Option configures a Transpiler.
type Option func(*Transpiler)

// WithLogger sets the logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transpiler) {
		t.logger = logger
	}
}

// New creates a Transpiler.
func New(opts ...Option) *Transpiler {
	t := &Transpiler{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Parse returns the syntax tree of source. Syntax errors are returned as
// *engine.DiagnosticError.
func (t *Transpiler) Parse(source []byte, path string) (*syntax.File, error) {
	f, err := fileOptions.Parse(path, source, 0)
	if err != nil {
		return nil, diagnostic(engine.KindParse, path, err)
	}
	return f, nil
}

// Transpile parses and compiles source for mode m.
func (t *Transpiler) Transpile(source []byte, path string, m mode.Mode) (*engine.Unit, error) {
	f, err := t.Parse(source, path)
	if err != nil {
		return nil, err
	}

	hasResult := captureResult(f)

	prog, err := starlark.FileProgram(f, engine.IsPredeclared)
	if err != nil {
		return nil, diagnostic(engine.KindCompile, path, err)
	}

	unit := &engine.Unit{
		Path:      path,
		Mode:      m,
		File:      f,
		Program:   prog,
		HasResult: hasResult,
		Free:      freeNames(f),
	}
	t.logger.Debug().
		Str("path", path).
		Str("mode", m.String()).
		Bool("result", hasResult).
		Int("statements", len(f.Stmts)).
		Msg("unit generated")
	return unit, nil
}

// captureResult rewrites a trailing expression statement or top-level
// return into an assignment to the result slot. Any other return outside a
// function assigns the slot and then stops the unit through the return hook.
func captureResult(f *syntax.File) bool {
	captured := false
	if n := len(f.Stmts); n > 0 {
		var pos syntax.Position
		var value syntax.Expr
		switch stmt := f.Stmts[n-1].(type) {
		case *syntax.ExprStmt:
			pos, _ = stmt.Span()
			value = stmt.X
		case *syntax.ReturnStmt:
			pos = stmt.Return
			value = returnValue(stmt)
		}
		if value != nil {
			f.Stmts[n-1] = assignResult(pos, value)
			captured = true
		}
	}

	stmts, nested := rewriteReturns(f.Stmts)
	f.Stmts = stmts
	return captured || nested
}

// rewriteReturns replaces each return in stmts and in the blocks of
// top-level control flow. Function bodies are left alone.
func rewriteReturns(stmts []syntax.Stmt) ([]syntax.Stmt, bool) {
	if stmts == nil {
		return nil, false
	}
	out := make([]syntax.Stmt, 0, len(stmts))
	found := false
	for _, stmt := range stmts {
		var inner bool
		switch stmt := stmt.(type) {
		case *syntax.ReturnStmt:
			out = append(out,
				assignResult(stmt.Return, returnValue(stmt)),
				&syntax.ExprStmt{X: &syntax.CallExpr{
					Fn:     &syntax.Ident{NamePos: stmt.Return, Name: engine.ReturnHook},
					Lparen: stmt.Return,
					Rparen: stmt.Return,
				}},
			)
			found = true
			continue
		case *syntax.IfStmt:
			var t, f bool
			stmt.True, t = rewriteReturns(stmt.True)
			stmt.False, f = rewriteReturns(stmt.False)
			inner = t || f
		case *syntax.ForStmt:
			stmt.Body, inner = rewriteReturns(stmt.Body)
		case *syntax.WhileStmt:
			stmt.Body, inner = rewriteReturns(stmt.Body)
		}
		found = found || inner
		out = append(out, stmt)
	}
	return out, found
}

func returnValue(stmt *syntax.ReturnStmt) syntax.Expr {
	if stmt.Result == nil {
		return &syntax.Ident{NamePos: stmt.Return, Name: "None"}
	}
	return stmt.Result
}

func assignResult(pos syntax.Position, value syntax.Expr) *syntax.AssignStmt {
	return &syntax.AssignStmt{
		OpPos: pos,
		Op:    syntax.EQ,
		LHS:   &syntax.Ident{NamePos: pos, Name: engine.ResultSlot},
		RHS:   value,
	}
}

// freeNames lists the predeclared names a resolved file refers to.
func freeNames(f *syntax.File) []string {
	seen := make(map[string]bool)
	syntax.Walk(f, func(n syntax.Node) bool {
		id, ok := n.(*syntax.Ident)
		if !ok {
			return true
		}
		if b, ok := id.Binding.(*resolve.Binding); ok && b.Scope == resolve.Predeclared && id.Name != engine.ReturnHook {
			seen[id.Name] = true
		}
		return true
	})

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func diagnostic(kind, path string, err error) error {
	diag := &engine.DiagnosticError{Kind: kind, Path: path, Msg: err.Error()}

	var syntaxErr syntax.Error
	var resolveErrs resolve.ErrorList
	switch {
	case errors.As(err, &syntaxErr):
		diag.Line = int(syntaxErr.Pos.Line)
		diag.Column = int(syntaxErr.Pos.Col)
		diag.Msg = syntaxErr.Msg
	case errors.As(err, &resolveErrs) && len(resolveErrs) > 0:
		first := resolveErrs[0]
		diag.Line = int(first.Pos.Line)
		diag.Column = int(first.Pos.Col)
		diag.Msg = first.Msg
	}
	return diag
}
