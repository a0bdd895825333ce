package executor

import (
	"fmt"
	"sync"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/filesystem"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
)

// EnvironmentProvider creates one environment per mode on first use and
// returns the same instance afterwards.
type EnvironmentProvider struct {
	runtimes  map[mode.Mode]RuntimeFactory
	io        *IO
	fs        *filesystem.FileSystem
	clock     engine.Clock
	includers *IncluderFactory
	settings  map[string]any
	builtins  []engine.Addon
	addons    []engine.Addon
	logger    zerolog.Logger
	metrics   *telemetry.Metrics

	mu   sync.Mutex
	envs map[mode.Mode]*engine.Environment
}

// ProviderConfig holds the static configuration environments are built from.
type ProviderConfig struct {
	Runtimes  map[mode.Mode]RuntimeFactory
	IO        *IO
	FS        *filesystem.FileSystem
	Clock     engine.Clock
	Includers *IncluderFactory
	// Settings is the runtime settings bag. An "addons" key is ignored.
	Settings map[string]any
	// Builtins precede Addons, so user addons override builtin bindings.
	Builtins []engine.Addon
	Addons   []engine.Addon
	Logger   zerolog.Logger
	Metrics  *telemetry.Metrics
}

func NewEnvironmentProvider(cfg ProviderConfig) *EnvironmentProvider {
	runtimes := make(map[mode.Mode]RuntimeFactory, len(mode.Modes))
	for _, m := range mode.Modes {
		runtimes[m] = engine.NewRuntime(m)
	}
	for m, rt := range cfg.Runtimes {
		runtimes[m] = rt
	}

	settings := make(map[string]any, len(cfg.Settings))
	for k, v := range cfg.Settings {
		if k == "addons" {
			continue
		}
		settings[k] = v
	}

	fs := cfg.FS
	if fs == nil {
		fs = filesystem.New()
	}
	includers := cfg.Includers
	if includers == nil {
		includers = NewIncluderFactory(nil)
	}

	return &EnvironmentProvider{
		runtimes:  runtimes,
		io:        cfg.IO,
		fs:        fs,
		clock:     cfg.Clock,
		includers: includers,
		settings:  settings,
		builtins:  cfg.Builtins,
		addons:    cfg.Addons,
		logger:    telemetry.Component(cfg.Logger, "environment"),
		metrics:   cfg.Metrics,
		envs:      make(map[mode.Mode]*engine.Environment),
	}
}

// Environment returns the environment for m, creating it and installing IO
// on the first call. Includes from guest code are compiled through c.
func (p *EnvironmentProvider) Environment(c UnitCompiler, m mode.Mode) (*engine.Environment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if env, ok := p.envs[m]; ok {
		return env, nil
	}

	var rt RuntimeFactory
	switch m {
	case mode.Async, mode.PromiseSync, mode.Sync:
		rt = p.runtimes[m]
	default:
		return nil, fmt.Errorf("invalid mode %v", m)
	}

	opts := engine.Options{
		FileSystem: p.fs,
		Clock:      p.clock,
		Include:    p.includers.Create(c, p.fs, m),
		Settings:   p.settings,
		Logger:     p.logger,
	}
	addons := make([]engine.Addon, 0, len(p.builtins)+len(p.addons))
	addons = append(addons, p.builtins...)
	addons = append(addons, p.addons...)

	env, err := rt.CreateEnvironment(opts, addons)
	if err != nil {
		return nil, fmt.Errorf("create %s environment: %w", m, err)
	}
	p.io.Install(env)
	p.envs[m] = env
	p.metrics.EnvironmentCreated(m.String())
	p.logger.Debug().Str("mode", m.String()).Int("addons", len(addons)).Msg("environment created")
	return env, nil
}

// Close closes every environment created so far.
func (p *EnvironmentProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for m, env := range p.envs {
		env.Close()
		delete(p.envs, m)
	}
}
