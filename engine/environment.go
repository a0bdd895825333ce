package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/dotstar/filesystem"
	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
)

// Options configures an Environment.
type Options struct {
	FileSystem *filesystem.FileSystem
	Clock      Clock
	// Include resolves include paths for units bound without their own includer.
	Include  Includer
	Settings map[string]any
	Logger   zerolog.Logger
}

// Environment is the guest context shared by every unit of one mode.
type Environment struct {
	mode     mode.Mode
	opts     Options
	builtins starlark.StringDict
	started  time.Time

	gmu     sync.RWMutex
	globals starlark.StringDict

	run   sync.Mutex
	queue *future.Queue

	imu      sync.Mutex
	included map[string]bool

	stdout *Channel
	stderr *Channel
	logger zerolog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewEnvironment creates an environment for m. Addon bindings are applied
// in order, so later addons override earlier ones.
func NewEnvironment(m mode.Mode, opts Options, addons []Addon) (*Environment, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid mode %v", m)
	}
	if opts.FileSystem == nil {
		opts.FileSystem = filesystem.New()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Settings == nil {
		opts.Settings = map[string]any{}
	}

	env := &Environment{
		mode:     m,
		opts:     opts,
		builtins: make(starlark.StringDict),
		globals:  make(starlark.StringDict),
		included: make(map[string]bool),
		stdout:   NewChannel("stdout"),
		stderr:   NewChannel("stderr"),
		logger:   opts.Logger.With().Str("mode", m.String()).Logger(),
	}
	env.started = opts.Clock.Now()

	for _, addon := range addons {
		bindings, err := addon.Bindings(env)
		if err != nil {
			return nil, fmt.Errorf("addon %s: %w", addon.Name(), err)
		}
		for name, v := range bindings {
			env.builtins[name] = v
		}
		env.logger.Debug().Str("addon", addon.Name()).Int("bindings", len(bindings)).Msg("addon installed")
	}

	if m == mode.Async {
		env.queue = future.NewQueue()
	}
	return env, nil
}

func (env *Environment) Mode() mode.Mode {
	return env.mode
}

func (env *Environment) Stdout() *Channel {
	return env.stdout
}

func (env *Environment) Stderr() *Channel {
	return env.stderr
}

// FileSystem returns the filesystem guest code accesses.
func (env *Environment) FileSystem() *filesystem.FileSystem {
	return env.opts.FileSystem
}

// Setting returns a value from the settings bag.
func (env *Environment) Setting(name string) (any, bool) {
	v, ok := env.opts.Settings[name]
	return v, ok
}

// Globals returns a snapshot of the globals assigned by executed units.
func (env *Environment) Globals() starlark.StringDict {
	env.gmu.RLock()
	defer env.gmu.RUnlock()
	out := make(starlark.StringDict, len(env.globals))
	for k, v := range env.globals {
		out[k] = v
	}
	return out
}

// Lookup returns the value name is bound to for the next unit.
func (env *Environment) Lookup(name string) (starlark.Value, bool) {
	env.gmu.RLock()
	v, ok := env.globals[name]
	env.gmu.RUnlock()
	if ok {
		return v, true
	}
	v, ok = env.builtins[name]
	return v, ok
}

// ReportError writes a guest-facing report of err to the stderr channel.
// Setting display_errors to false silences reports.
func (env *Environment) ReportError(err error) {
	if err == nil {
		return
	}
	env.logger.Debug().Err(err).Msg("reporting error")
	if display, ok := env.opts.Settings["display_errors"].(bool); ok && !display {
		return
	}

	msg := err.Error()
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		msg = evalErr.Backtrace()
	}
	env.stderr.WriteString(msg + "\n")
}

// Close stops the async queue after queued executions finish. Executions
// started afterwards fail with ErrEnvironmentClosed.
func (env *Environment) Close() {
	env.closeOnce.Do(func() {
		env.closed.Store(true)
		if env.queue != nil {
			env.queue.Close()
		}
	})
}

// predeclared builds the lookup table of one execution: addon bindings,
// shared globals, the bindings inherited from an including unit, then the
// instance scope and the unit's location.
func (env *Environment) predeclared(path string, inherited, scope starlark.StringDict) starlark.StringDict {
	env.gmu.RLock()
	d := make(starlark.StringDict, len(env.builtins)+len(env.globals)+len(inherited)+len(scope)+3)
	for k, v := range env.builtins {
		d[k] = v
	}
	for k, v := range env.globals {
		d[k] = v
	}
	env.gmu.RUnlock()

	for k, v := range inherited {
		d[k] = v
	}
	for k, v := range scope {
		d[k] = v
	}
	d[ReturnHook] = returnBuiltin
	if path != "" {
		d["__file__"] = starlark.String(path)
		d["__dir__"] = starlark.String(filepath.Dir(path))
	}
	return d
}

// publish makes the globals of a finished unit visible to later units and,
// for nested executions, to the including unit.
func (env *Environment) publish(globals, into starlark.StringDict) {
	env.gmu.Lock()
	for k, v := range globals {
		if k == ResultSlot {
			continue
		}
		env.globals[k] = v
		if into != nil {
			into[k] = v
		}
	}
	env.gmu.Unlock()
}

// markIncluded records path and reports whether it was new.
func (env *Environment) markIncluded(path string) bool {
	env.imu.Lock()
	defer env.imu.Unlock()
	if env.included[path] {
		return false
	}
	env.included[path] = true
	return true
}
