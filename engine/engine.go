package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/mode"
	"go.starlark.net/starlark"
)

// ModuleFactory instantiates engines for one compiled unit. Calling it runs
// no guest code.
type ModuleFactory func(opts ...InstanceOption) *Engine

// InstanceOption configures a single engine instance.
type InstanceOption func(*Engine)

// WithEnvironment runs the instance in env instead of the bound environment.
func WithEnvironment(env *Environment) InstanceOption {
	return func(e *Engine) {
		e.env = env
	}
}

// WithScope adds top-level bindings visible only to this instance.
func WithScope(scope starlark.StringDict) InstanceOption {
	return func(e *Engine) {
		e.scope = scope
	}
}

// Engine is one executable instance of a unit.
type Engine struct {
	unit    *Unit
	env     *Environment
	include Includer
	path    string
	scope   starlark.StringDict
}

func (e *Engine) Path() string {
	return e.path
}

func (e *Engine) Environment() *Environment {
	return e.env
}

func (e *Engine) Stdout() *Channel {
	return e.env.stdout
}

func (e *Engine) Stderr() *Channel {
	return e.env.stderr
}

// Execute schedules the unit according to the environment's mode. Sync and
// promise-sync environments run it before returning a settled future.
func (e *Engine) Execute(ctx context.Context) *future.Future[Result] {
	if e.env.closed.Load() {
		return future.Rejected[Result](ErrEnvironmentClosed)
	}
	switch e.env.mode {
	case mode.Async:
		f := future.Submit(e.env.queue, func() (Result, error) {
			return e.runTop(ctx)
		})
		if f.Settled() {
			// Close won the race against the check above.
			if _, err := f.Await(ctx); errors.Is(err, future.ErrQueueClosed) {
				return future.Rejected[Result](ErrEnvironmentClosed)
			}
		}
		return f
	case mode.PromiseSync, mode.Sync:
		return future.From(e.runLocked(ctx))
	default:
		return future.Rejected[Result](fmt.Errorf("invalid mode %v", e.env.mode))
	}
}

// Run executes the unit and waits for its result.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if e.env.closed.Load() {
		return Result{}, ErrEnvironmentClosed
	}
	switch e.env.mode {
	case mode.Async:
		return e.Execute(ctx).Await(ctx)
	case mode.PromiseSync, mode.Sync:
		return e.runLocked(ctx)
	default:
		return Result{}, fmt.Errorf("invalid mode %v", e.env.mode)
	}
}

func (e *Engine) runLocked(ctx context.Context) (Result, error) {
	e.env.run.Lock()
	defer e.env.run.Unlock()
	return e.runTop(ctx)
}

func (e *Engine) runTop(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	thread := e.env.newThread(ctx, e.path)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	res, _, err := e.exec(thread, true, nil)
	return res, err
}

// Thread-local keys.
const (
	contextKey = "dotstar.context"
	scopeKey   = "dotstar.scope"
	engineKey  = "dotstar.engine"
	loadsKey   = "dotstar.loads"
)

func (env *Environment) newThread(ctx context.Context, name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			env.stdout.WriteString(msg + "\n")
		},
		Load: load,
	}
	thread.SetLocal(contextKey, ctx)
	thread.SetLocal(loadsKey, make(map[string]*loadEntry))
	return thread
}

// ThreadContext returns the context of the execution running on thread.
func ThreadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func currentEngine(thread *starlark.Thread) *Engine {
	e, _ := thread.Local(engineKey).(*Engine)
	return e
}

// exec runs the unit on thread. inherited holds the bindings of an including
// unit. When publish is set, the unit's globals are merged into the
// environment and into the scope of the enclosing execution.
func (e *Engine) exec(thread *starlark.Thread, publish bool, inherited starlark.StringDict) (Result, starlark.StringDict, error) {
	if e.unit.Mode != e.env.mode {
		return Result{}, nil, fmt.Errorf("%s: unit compiled for %s mode cannot run in a %s environment",
			e.path, e.unit.Mode, e.env.mode)
	}

	parentScope, _ := thread.Local(scopeKey).(starlark.StringDict)
	parentEngine := currentEngine(thread)

	scope := e.env.predeclared(e.path, inherited, e.scope)
	thread.SetLocal(scopeKey, scope)
	thread.SetLocal(engineKey, e)
	defer func() {
		thread.SetLocal(scopeKey, parentScope)
		thread.SetLocal(engineKey, parentEngine)
	}()

	globals, err := e.unit.Program.Init(thread, scope)
	if publish {
		e.env.publish(globals, parentScope)
	}

	if sig := exitFrom(thread, err); sig != nil {
		return Exit(sig.status), globals, nil
	}
	var ret *returnSignal
	if errors.As(err, &ret) {
		err = nil
	}
	if err != nil {
		return Result{}, globals, err
	}

	if !e.unit.HasResult {
		return Null(), globals, nil
	}
	return Value(globals[ResultSlot]), globals, nil
}

// resolve turns an include path into a factory. Relative paths are tried
// against the including unit's directory first. Diagnostics of the included
// file are reported here, since no evaluator sees them.
func (e *Engine) resolve(ctx context.Context, path string) (ModuleFactory, error) {
	include := e.include
	if include == nil {
		include = e.env.opts.Include
	}
	if include == nil {
		return nil, errors.New("includes are not available in this environment")
	}

	if !filepath.IsAbs(path) && e.path != "" {
		candidate := filepath.Join(filepath.Dir(e.path), path)
		if e.env.opts.FileSystem.IsFile(candidate) {
			path = candidate
		}
	}
	factory, err := include(ctx, path).Await(ctx)
	if err != nil && IsDiagnostic(err) {
		e.env.ReportError(err)
	}
	return factory, err
}

// callerBindings returns what a unit calling a builtin on thread can see:
// the scope it was started with and the globals it has assigned so far.
func callerBindings(thread *starlark.Thread) starlark.StringDict {
	parent, _ := thread.Local(scopeKey).(starlark.StringDict)
	out := make(starlark.StringDict, len(parent))
	for k, v := range parent {
		out[k] = v
	}
	for depth := 0; depth < thread.CallStackDepth(); depth++ {
		if fn, ok := thread.DebugFrame(depth).Callable().(*starlark.Function); ok {
			for k, v := range fn.Globals() {
				out[k] = v
			}
			break
		}
	}
	delete(out, ResultSlot)
	return out
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
}

// load implements Starlark load statements through the includer. Loaded
// modules run once per top-level execution and do not publish their globals.
func load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	e := currentEngine(thread)
	if e == nil {
		return nil, fmt.Errorf("load %s: no active unit", module)
	}
	cache, _ := thread.Local(loadsKey).(map[string]*loadEntry)

	if entry, ok := cache[module]; ok {
		if entry == nil {
			return nil, fmt.Errorf("cycle in load graph involving %s", module)
		}
		return entry.globals, entry.err
	}
	cache[module] = nil

	factory, err := e.resolve(ThreadContext(thread), module)
	if err != nil {
		cache[module] = &loadEntry{err: err}
		return nil, err
	}

	child := factory()
	res, globals, err := child.exec(thread, false, nil)
	if err == nil && res.IsExit() {
		err = &exitSignal{status: res.Status()}
	}
	delete(globals, ResultSlot)
	cache[module] = &loadEntry{globals: globals, err: err}
	return globals, err
}
