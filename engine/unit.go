package engine

import (
	"context"

	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/mode"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ResultSlot is the global a unit's final expression is assigned to.
const ResultSlot = "__result__"

// ReturnHook is the builtin generated code calls to return from the top
// level of a unit before its last statement.
const ReturnHook = "__return__"

// Unit is a compiled guest program annotated with its path and the mode it
// was compiled for.
type Unit struct {
	Path    string
	Mode    mode.Mode
	File    *syntax.File
	Program *starlark.Program
	// HasResult is set when the last top-level statement yields a value.
	HasResult bool
	// Free lists the names the unit expects from its environment.
	Free []string
}

// IsPredeclared reports whether a free name in guest code is looked up in
// the environment at run time. Everything outside the Starlark universe is.
func IsPredeclared(name string) bool {
	return !starlark.Universe.Has(name)
}

// Includer resolves a guest include path to a module factory. The returned
// future is settled by the time the includer returns.
type Includer func(ctx context.Context, path string) *future.Future[ModuleFactory]

// Binding is what the compiler attaches to a unit besides its environment.
type Binding struct {
	Include Includer
	Path    string
}

// Bind returns a factory producing engines that run u in env.
func (u *Unit) Bind(b Binding, env *Environment) ModuleFactory {
	return func(opts ...InstanceOption) *Engine {
		e := &Engine{
			unit:    u,
			env:     env,
			include: b.Include,
			path:    b.Path,
		}
		if e.path == "" {
			e.path = u.Path
		}
		for _, opt := range opts {
			opt(e)
		}
		return e
	}
}
