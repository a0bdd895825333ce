package executor

import (
	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/mode"
)

// Transpiler turns guest source into a unit for one mode. Parse and resolve
// failures are returned as *engine.DiagnosticError.
type Transpiler interface {
	Transpile(source []byte, path string, m mode.Mode) (*engine.Unit, error)
}

// RuntimeFactory creates the environment of one mode.
type RuntimeFactory interface {
	CreateEnvironment(opts engine.Options, addons []engine.Addon) (*engine.Environment, error)
}

// UnitCompiler compiles guest source into a module factory.
type UnitCompiler interface {
	Compile(source []byte, path string, m mode.Mode) (engine.ModuleFactory, error)
}

// Streams is anything exposing a pair of guest output channels.
type Streams interface {
	Stdout() *engine.Channel
	Stderr() *engine.Channel
}
