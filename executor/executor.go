package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/dotstar/config"
	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/filesystem"
	"github.com/caffeineduck/dotstar/future"
	"github.com/caffeineduck/dotstar/hostfunc"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/caffeineduck/dotstar/plugin"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/caffeineduck/dotstar/transpiler"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrExecutorClosed is returned by operations on a closed Executor.
var ErrExecutorClosed = errors.New("executor closed")

// Executor wires compilation, environments, inclusion, bootstrapping and IO
// together. The Sync methods always use sync mode; the others use the
// configured mode, or async when the configured mode is sync.
type Executor struct {
	mode      mode.Mode
	asyncMode mode.Mode

	fs           *filesystem.FileSystem
	paths        *PathMapper
	io           *IO
	transpiler   *transpiler.Transpiler
	includers    *IncluderFactory
	provider     *EnvironmentProvider
	compiler     *Compiler
	files        *FileCompiler
	requirer     *Requirer
	bootstrapper *Bootstrapper
	loaders      *LoaderRegistry
	extension    *RequireExtension
	evaluator    *Evaluator
	stdin        *StdinReader

	plugins *plugin.Loader
	closers []io.Closer

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	exitStatus atomic.Int64

	mu     sync.Mutex
	closed bool
}

// New creates an Executor.
func New(opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.applyConfig(); err != nil {
		return nil, err
	}

	m := mode.Async
	if cfg.mode != nil {
		m = *cfg.mode
	} else if cfg.config != nil {
		resolved, err := cfg.config.ResolveMode()
		if err != nil {
			return nil, err
		}
		m = resolved
	}
	if !m.Valid() {
		return nil, fmt.Errorf("invalid mode %v", m)
	}
	asyncMode := m
	if m.IsSynchronous() {
		asyncMode = mode.Async
	}

	e := &Executor{
		mode:      m,
		asyncMode: asyncMode,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		tracer:    telemetry.Tracer(cfg.tracerProvider),
	}

	ctx := context.Background()
	userAddons, err := e.userAddons(ctx, &cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	builtins, err := e.builtinAddons(ctx, &cfg)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.fs = cfg.fs
	if e.fs == nil {
		e.fs = filesystem.New()
	}
	e.paths = NewPathMapper(cfg.pathMap)
	e.io = NewIO(cfg.stdout, cfg.stderr, cfg.stdio == nil || *cfg.stdio)
	e.transpiler = transpiler.New(transpiler.WithLogger(telemetry.Component(cfg.logger, "transpiler")))
	e.includers = NewIncluderFactory(e.paths, WithIncluderLogger(cfg.logger), WithIncluderMetrics(cfg.metrics))
	e.provider = NewEnvironmentProvider(ProviderConfig{
		Runtimes:  cfg.runtimes,
		IO:        e.io,
		FS:        e.fs,
		Clock:     cfg.clock,
		Includers: e.includers,
		Settings:  cfg.settings,
		Builtins:  builtins,
		Addons:    userAddons,
		Logger:    cfg.logger,
		Metrics:   cfg.metrics,
	})
	e.compiler = NewCompiler(e.transpiler, e.provider, e.includers, e.fs, e.io, cfg.logger, cfg.metrics)
	e.files = NewFileCompiler(e.fs, e.paths, e.compiler)
	e.requirer = NewRequirer(e.files)
	e.bootstrapper = NewBootstrapper(e.requirer, cfg.bootstraps, asyncMode, cfg.logger, cfg.metrics)
	e.loaders = NewLoaderRegistry()
	e.extension = NewRequireExtension(e.files, e.bootstrapper, e.loaders, cfg.extension, m, cfg.logger)
	e.evaluator = NewEvaluator(e.compiler, e.provider, cfg.logger)
	e.stdin = NewStdinReader(cfg.stdin)

	e.logger.Debug().Str("mode", m.String()).Int("bootstraps", len(cfg.bootstraps)).Msg("executor ready")
	return e, nil
}

// applyConfig fills in everything no option set explicitly.
func (c *executorConfig) applyConfig() error {
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.stderr == nil {
		c.stderr = os.Stderr
	}
	if c.extension == "" {
		c.extension = config.DefaultExtension
	}

	cfg := c.config
	if cfg == nil {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.bootstraps == nil {
		c.bootstraps = cfg.Bootstraps
	}
	if c.pathMap == nil {
		c.pathMap = cfg.Map
	}
	if c.stdio == nil {
		enabled := cfg.StdioEnabled()
		c.stdio = &enabled
	}
	if cfg.Extension != "" && c.extension == config.DefaultExtension {
		c.extension = cfg.Extension
	}
	for k, v := range cfg.Settings() {
		if _, ok := c.settings[k]; !ok {
			c.settings[k] = v
		}
	}
	if cfg.KV.Enabled && !c.kvEnabled {
		c.kvEnabled = true
		c.kvPath = cfg.KV.Path
	}
	if cfg.KV.MaxEntries > 0 {
		c.kvConfig.MaxEntries = cfg.KV.MaxEntries
	}
	c.http.AllowedHosts = append(c.http.AllowedHosts, cfg.Network.AllowedHosts...)
	if cfg.Network.Timeout != "" && c.http.RequestTimeout == 0 {
		d, err := time.ParseDuration(cfg.Network.Timeout)
		if err != nil {
			return fmt.Errorf("network timeout: %w", err)
		}
		c.http.RequestTimeout = d
	}
	return nil
}

// builtinAddons returns the addons every environment starts with, plus the
// KV and network addons when enabled.
func (e *Executor) builtinAddons(ctx context.Context, cfg *executorConfig) ([]engine.Addon, error) {
	addons := engine.BuiltinAddons()

	if cfg.kvEnabled {
		kv := hostfunc.NewKV(cfg.kvConfig)
		if cfg.kvPath != "" {
			backend, err := hostfunc.OpenSQLiteBackend(ctx, cfg.kvPath)
			if err != nil {
				return nil, fmt.Errorf("open kv store: %w", err)
			}
			e.closers = append(e.closers, backend)
			kv = hostfunc.NewKVWithBackend(cfg.kvConfig, backend)
		}
		reg := hostfunc.NewRegistry()
		kv.Register(reg)
		addons = append(addons, engine.HostFuncAddon("kv", reg))
	}

	if len(cfg.http.AllowedHosts) > 0 {
		reg := hostfunc.NewRegistry()
		hostfunc.NewHTTP(cfg.http).Register(reg)
		addons = append(addons, engine.HostFuncAddon("net", reg))
	}
	return addons, nil
}

// userAddons returns the addons passed as options followed by the WASM
// addons named in configuration.
func (e *Executor) userAddons(ctx context.Context, cfg *executorConfig) ([]engine.Addon, error) {
	addons := append([]engine.Addon(nil), cfg.addons...)
	if cfg.config == nil || len(cfg.config.Addons()) == 0 {
		return addons, nil
	}

	pluginOpts := append([]plugin.Option{plugin.WithLogger(cfg.logger)}, cfg.pluginOptions...)
	loader, err := plugin.NewLoader(ctx, pluginOpts...)
	if err != nil {
		return nil, err
	}
	e.plugins = loader

	for _, path := range cfg.config.Addons() {
		addon, err := loader.LoadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("load addon %s: %w", path, err)
		}
		addons = append(addons, addon)
	}
	return addons, nil
}

// Mode returns the configured mode.
func (e *Executor) Mode() mode.Mode {
	return e.mode
}

// Environment returns the shared environment for m.
func (e *Executor) Environment(m mode.Mode) (*engine.Environment, error) {
	return e.provider.Environment(e.compiler, m)
}

// Bootstrap runs the bootstrap files as a future chain.
func (e *Executor) Bootstrap(ctx context.Context) *future.Future[engine.Result] {
	return e.track(ctx, "bootstrap", e.asyncMode, "", func(ctx context.Context) *future.Future[engine.Result] {
		return e.bootstrapper.Bootstrap(ctx)
	})
}

// BootstrapSync runs the bootstrap files in sync mode.
func (e *Executor) BootstrapSync(ctx context.Context) (engine.Result, error) {
	return e.trackSync(ctx, "bootstrap", "", e.bootstrapper.BootstrapSync)
}

// Evaluate runs source that is not backed by a file. An empty path stands
// for standard input.
func (e *Executor) Evaluate(ctx context.Context, source []byte, path string) *future.Future[engine.Result] {
	return e.track(ctx, "evaluate", e.asyncMode, path, func(ctx context.Context) *future.Future[engine.Result] {
		return e.evaluator.Evaluate(ctx, source, path, e.asyncMode)
	})
}

func (e *Executor) EvaluateSync(ctx context.Context, source []byte, path string) (engine.Result, error) {
	return e.trackSync(ctx, "evaluate", path, func(ctx context.Context) (engine.Result, error) {
		return e.evaluator.EvaluateSync(ctx, source, path)
	})
}

// Register runs the bootstraps and installs the loader for guest files, see
// RequireExtension.Install.
func (e *Executor) Register(ctx context.Context) (*future.Future[engine.Result], error) {
	if e.isClosed() {
		return nil, ErrExecutorClosed
	}
	f, err := e.extension.Install(ctx)
	if err != nil || f == nil {
		return f, err
	}
	return e.track(ctx, "register", e.mode, "", func(context.Context) *future.Future[engine.Result] {
		return f
	}), nil
}

// Require runs the guest file at path.
func (e *Executor) Require(ctx context.Context, path string) *future.Future[engine.Result] {
	return e.track(ctx, "require", e.asyncMode, path, func(ctx context.Context) *future.Future[engine.Result] {
		return e.requirer.Require(ctx, path, e.asyncMode)
	})
}

func (e *Executor) RequireSync(ctx context.Context, path string) (engine.Result, error) {
	return e.trackSync(ctx, "require", path, func(ctx context.Context) (engine.Result, error) {
		return e.requirer.RequireSync(ctx, path)
	})
}

// Compile compiles the guest file at path without running it.
func (e *Executor) Compile(path string, m mode.Mode) (engine.ModuleFactory, error) {
	if e.isClosed() {
		return nil, ErrExecutorClosed
	}
	return e.files.Compile(path, m)
}

// Load returns the host module for path through the registered loaders.
// Register installs the loader for guest files.
func (e *Executor) Load(path string) (*Module, error) {
	if e.isClosed() {
		return nil, ErrExecutorClosed
	}
	return e.loaders.Load(path)
}

// Loaders exposes the loader registry for additional host module loaders.
func (e *Executor) Loaders() *LoaderRegistry {
	return e.loaders
}

// Transpile returns a readable listing of the unit source compiles to.
func (e *Executor) Transpile(source []byte, path string) ([]byte, error) {
	unit, err := e.transpiler.Transpile(source, path, e.asyncMode)
	if err != nil {
		return nil, err
	}
	return e.transpiler.Describe(unit)
}

// DumpAST returns the syntax tree of source as indented JSON.
func (e *Executor) DumpAST(source []byte, path string) ([]byte, error) {
	return e.transpiler.DumpAST(source, path)
}

// ReadStdin reads guest source from the configured stdin.
func (e *Executor) ReadStdin() *future.Future[string] {
	return e.stdin.Read()
}

// ExitStatus returns the status of the last exit result any operation
// produced, zero if none did.
func (e *Executor) ExitStatus() int {
	return int(e.exitStatus.Load())
}

// Close closes environments, plugins and the KV store.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.provider != nil {
		e.provider.Close()
	}

	var errs []error
	if e.plugins != nil {
		if err := e.plugins.Close(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// track wraps an asynchronous operation with a span, metrics and exit
// status recording. The returned future settles after they are recorded.
func (e *Executor) track(ctx context.Context, op string, m mode.Mode, path string, run func(context.Context) *future.Future[engine.Result]) *future.Future[engine.Result] {
	if e.isClosed() {
		return future.Rejected[engine.Result](ErrExecutorClosed)
	}

	ctx, span := e.start(ctx, op, m, path)
	start := time.Now()
	f := run(ctx)

	finish := func(res engine.Result, err error) {
		e.finish(op, m, start, res, err)
		telemetry.EndSpan(span, err)
	}
	if f.Settled() {
		finish(f.Await(ctx))
		return f
	}
	return future.Go(func() (engine.Result, error) {
		res, err := f.Await(context.Background())
		finish(res, err)
		return res, err
	})
}

func (e *Executor) trackSync(ctx context.Context, op, path string, run func(context.Context) (engine.Result, error)) (engine.Result, error) {
	if e.isClosed() {
		return engine.Result{}, ErrExecutorClosed
	}

	ctx, span := e.start(ctx, op, mode.Sync, path)
	start := time.Now()
	res, err := run(ctx)
	e.finish(op, mode.Sync, start, res, err)
	telemetry.EndSpan(span, err)
	return res, err
}

func (e *Executor) start(ctx context.Context, op string, m mode.Mode, path string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "dotstar."+op, trace.WithAttributes(
		attribute.String("dotstar.mode", m.String()),
		attribute.String("dotstar.path", path),
	))
}

func (e *Executor) finish(op string, m mode.Mode, start time.Time, res engine.Result, err error) {
	if err == nil && res.IsExit() {
		e.exitStatus.Store(int64(res.Status()))
	}
	e.metrics.ObserveExecution(op, m.String(), status(res, err), time.Since(start))
	if err != nil {
		e.logger.Debug().Err(err).Str("op", op).Msg("operation failed")
	}
}
