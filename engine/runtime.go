package engine

import "github.com/caffeineduck/dotstar/mode"

// Runtime creates environments for one mode.
type Runtime struct {
	mode mode.Mode
}

// NewRuntime returns the runtime for m.
func NewRuntime(m mode.Mode) *Runtime {
	return &Runtime{mode: m}
}

func (r *Runtime) Mode() mode.Mode {
	return r.mode
}

// CreateEnvironment creates a new environment with the given addons.
func (r *Runtime) CreateEnvironment(opts Options, addons []Addon) (*Environment, error) {
	return NewEnvironment(r.mode, opts, addons)
}
