package engine

import "go.starlark.net/starlark"

// Addon contributes predeclared bindings to environments.
type Addon interface {
	Name() string
	Bindings(env *Environment) (starlark.StringDict, error)
}

type addonFunc struct {
	name string
	fn   func(env *Environment) (starlark.StringDict, error)
}

// NewAddon returns an Addon backed by fn.
func NewAddon(name string, fn func(env *Environment) (starlark.StringDict, error)) Addon {
	return &addonFunc{name: name, fn: fn}
}

// StaticAddon returns an Addon that binds the same values in every environment.
func StaticAddon(name string, bindings starlark.StringDict) Addon {
	return NewAddon(name, func(*Environment) (starlark.StringDict, error) {
		return bindings, nil
	})
}

func (a *addonFunc) Name() string { return a.name }

func (a *addonFunc) Bindings(env *Environment) (starlark.StringDict, error) {
	return a.fn(env)
}

// BuiltinAddons returns the addons every environment starts with.
func BuiltinAddons() []Addon {
	return []Addon{CoreAddon(), LibAddon(), FileSystemAddon()}
}
