package executor

import (
	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/filesystem"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
)

// Compiler turns guest source into module factories bound to the shared
// environment of a mode.
type Compiler struct {
	transpiler Transpiler
	provider   *EnvironmentProvider
	includers  *IncluderFactory
	fs         *filesystem.FileSystem
	io         *IO
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
}

func NewCompiler(t Transpiler, provider *EnvironmentProvider, includers *IncluderFactory, fs *filesystem.FileSystem, io *IO, logger zerolog.Logger, metrics *telemetry.Metrics) *Compiler {
	return &Compiler{
		transpiler: t,
		provider:   provider,
		includers:  includers,
		fs:         fs,
		io:         io,
		logger:     telemetry.Component(logger, "compiler"),
		metrics:    metrics,
	}
}

// Compile transpiles source and binds it to the environment for m. The
// returned factory runs no guest code; each engine it creates has IO
// installed. Transpile errors are returned unchanged.
func (c *Compiler) Compile(source []byte, path string, m mode.Mode) (engine.ModuleFactory, error) {
	unit, err := c.transpiler.Transpile(source, path, m)
	if err != nil {
		c.metrics.CompileDone(telemetry.StatusError)
		return nil, err
	}

	env, err := c.provider.Environment(c, m)
	if err != nil {
		c.metrics.CompileDone(telemetry.StatusError)
		return nil, err
	}

	include := c.includers.Create(c, c.fs, m)
	bound := unit.Bind(engine.Binding{Include: include, Path: path}, env)
	c.metrics.CompileDone(telemetry.StatusOK)
	c.logger.Debug().Str("path", path).Str("mode", m.String()).Msg("compiled")

	return func(opts ...engine.InstanceOption) *engine.Engine {
		e := bound(opts...)
		c.io.Install(e)
		return e
	}, nil
}
