package executor

import (
	"io"
	"time"

	"github.com/caffeineduck/dotstar/config"
	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/filesystem"
	"github.com/caffeineduck/dotstar/hostfunc"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/caffeineduck/dotstar/plugin"
	"github.com/caffeineduck/dotstar/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the Executor at creation time.
type Option func(*executorConfig)

type executorConfig struct {
	config     *config.Config
	mode       *mode.Mode
	bootstraps []string
	pathMap    map[string]string
	stdio      *bool
	extension  string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	logger         zerolog.Logger
	metrics        *telemetry.Metrics
	tracerProvider trace.TracerProvider

	fs       *filesystem.FileSystem
	clock    engine.Clock
	settings map[string]any
	runtimes map[mode.Mode]RuntimeFactory
	addons   []engine.Addon

	pluginOptions []plugin.Option

	kvEnabled bool
	kvPath    string
	kvConfig  hostfunc.KVConfig
	http      hostfunc.HTTPConfig
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger:   zerolog.Nop(),
		kvConfig: hostfunc.DefaultKVConfig(),
		runtimes: make(map[mode.Mode]RuntimeFactory),
		settings: make(map[string]any),
	}
}

// WithConfig supplies loaded configuration. Other options take precedence
// over the values it carries.
func WithConfig(cfg *config.Config) Option {
	return func(c *executorConfig) {
		c.config = cfg
	}
}

// WithMode selects the mode of the asynchronous entry points and of Register.
func WithMode(m mode.Mode) Option {
	return func(c *executorConfig) {
		c.mode = &m
	}
}

// WithBootstraps sets the files run by Bootstrap, replacing configured ones.
func WithBootstraps(paths ...string) Option {
	return func(c *executorConfig) {
		c.bootstraps = paths
	}
}

// WithPathMap redirects reads of one path to another.
//
// Example:
//
//	executor.New(executor.WithPathMap(map[string]string{
//		"/app/settings.star": "/etc/app/settings.star",
//	}))
func WithPathMap(m map[string]string) Option {
	return func(c *executorConfig) {
		c.pathMap = m
	}
}

// WithStdio enables or disables forwarding of guest output to the host.
func WithStdio(enabled bool) Option {
	return func(c *executorConfig) {
		c.stdio = &enabled
	}
}

// WithExtension sets the file suffix the require extension handles.
func WithExtension(ext string) Option {
	return func(c *executorConfig) {
		c.extension = ext
	}
}

// WithStdout sets the host writer guest stdout is forwarded to.
func WithStdout(w io.Writer) Option {
	return func(c *executorConfig) {
		c.stdout = w
	}
}

// WithStderr sets the host writer guest stderr is forwarded to.
func WithStderr(w io.Writer) Option {
	return func(c *executorConfig) {
		c.stderr = w
	}
}

// WithStdin sets the reader ReadStdin consumes.
func WithStdin(r io.Reader) Option {
	return func(c *executorConfig) {
		c.stdin = r
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *executorConfig) {
		c.metrics = m
	}
}

// WithTracerProvider records spans around top-level operations.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *executorConfig) {
		c.tracerProvider = tp
	}
}

// WithFileSystem replaces the filesystem guest code and includes use.
func WithFileSystem(fs *filesystem.FileSystem) Option {
	return func(c *executorConfig) {
		c.fs = fs
	}
}

// WithClock replaces the clock behind microtime and hrtime.
func WithClock(clock engine.Clock) Option {
	return func(c *executorConfig) {
		c.clock = clock
	}
}

// WithSetting adds a runtime setting, visible to guests through config().
func WithSetting(name string, value any) Option {
	return func(c *executorConfig) {
		c.settings[name] = value
	}
}

// WithRuntime replaces the runtime factory for m.
func WithRuntime(m mode.Mode, rt RuntimeFactory) Option {
	return func(c *executorConfig) {
		c.runtimes[m] = rt
	}
}

// WithAddons adds user addons. They are applied after the builtin ones.
func WithAddons(addons ...engine.Addon) Option {
	return func(c *executorConfig) {
		c.addons = append(c.addons, addons...)
	}
}

// WithHostFunctions exposes the functions of reg to guests as an addon.
func WithHostFunctions(name string, reg *hostfunc.Registry) Option {
	return func(c *executorConfig) {
		c.addons = append(c.addons, engine.HostFuncAddon(name, reg))
	}
}

// WithPluginOptions configures the loader of WASM addons.
func WithPluginOptions(opts ...plugin.Option) Option {
	return func(c *executorConfig) {
		c.pluginOptions = append(c.pluginOptions, opts...)
	}
}

// WithKV enables the key-value addon. A non-empty path persists entries in
// a SQLite database.
func WithKV(path string) Option {
	return func(c *executorConfig) {
		c.kvEnabled = true
		c.kvPath = path
	}
}

// WithKVMaxEntries sets the maximum number of entries in the KV store.
func WithKVMaxEntries(n int) Option {
	return func(c *executorConfig) {
		c.kvConfig.MaxEntries = n
	}
}

// WithAllowedHosts enables the network addon for the given hosts.
func WithAllowedHosts(hosts ...string) Option {
	return func(c *executorConfig) {
		c.http.AllowedHosts = append(c.http.AllowedHosts, hosts...)
	}
}

// WithHTTPTimeout sets the timeout of guest HTTP requests.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *executorConfig) {
		c.http.RequestTimeout = d
	}
}
