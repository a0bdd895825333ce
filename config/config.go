// Package config loads dotstar configuration files.
//
// A configuration file is named dotstar.yaml, dotstar.yml, dotstar.json or
// dotstar.cue and is searched for in a list of context directories. Plugin
// files listed under "plugins" contribute bootstraps, runtime addons and
// path mappings of their own.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileNames are the configuration file names searched in each directory,
// in order.
var FileNames = []string{"dotstar.yaml", "dotstar.yml", "dotstar.json", "dotstar.cue"}

// ErrModeConflict is returned by ResolveMode when both mode and sync are set.
var ErrModeConflict = errors.New(`Only one of "mode" and "sync" options should be specified`)

// DefaultExtension is the file suffix handled by the require extension.
const DefaultExtension = ".star"

// Config is the merged configuration of one Executor.
type Config struct {
	Mode       string            `yaml:"mode" json:"mode"`
	Sync       bool              `yaml:"sync" json:"sync"`
	Bootstraps []string          `yaml:"bootstraps" json:"bootstraps" validate:"dive,required"`
	Map        map[string]string `yaml:"map" json:"map" validate:"dive,keys,required,endkeys,required"`
	// Stdio controls forwarding of guest output to the host. Nil means true.
	Stdio     *bool          `yaml:"stdio" json:"stdio"`
	Extension string         `yaml:"extension" json:"extension" validate:"omitempty,startswith=."`
	Plugins   []string       `yaml:"plugins" json:"plugins" validate:"dive,required"`
	Runtime   map[string]any `yaml:"runtime" json:"runtime"`
	Network   NetworkConfig  `yaml:"network" json:"network"`
	KV        KVConfig       `yaml:"kv" json:"kv"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-" json:"-"`
}

// NetworkConfig enables the network addon for the listed hosts.
type NetworkConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts" json:"allowed_hosts" validate:"dive,hostname_port|hostname|ip"`
	Timeout      string   `yaml:"timeout" json:"timeout"`
}

// KVConfig enables the key-value addon. An empty Path keeps data in memory.
type KVConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	MaxEntries int    `yaml:"max_entries" json:"max_entries" validate:"gte=0"`
}

// LoggingConfig configures the host logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=console json"`
	Output string `yaml:"output" json:"output"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Map:     map[string]string{},
		Runtime: map[string]any{},
	}
}

// StdioEnabled reports whether guest output is forwarded to the host.
func (c *Config) StdioEnabled() bool {
	return c.Stdio == nil || *c.Stdio
}

// ExtensionOrDefault returns the configured extension or DefaultExtension.
func (c *Config) ExtensionOrDefault() string {
	if c.Extension == "" {
		return DefaultExtension
	}
	return c.Extension
}

// ResolveMode returns the synchronicity mode the configuration selects.
func (c *Config) ResolveMode() (mode.Mode, error) {
	if c.Mode != "" && c.Sync {
		return mode.Async, ErrModeConflict
	}
	if c.Sync {
		return mode.Sync, nil
	}
	m, err := mode.Parse(c.Mode)
	if err != nil {
		return mode.Async, fmt.Errorf("Invalid synchronicity mode %q", c.Mode)
	}
	return m, nil
}

// Addons returns the WASM addon paths listed under runtime.addons.
func (c *Config) Addons() []string {
	return stringList(c.Runtime["addons"])
}

// Settings returns the runtime settings bag without the addons key.
func (c *Config) Settings() map[string]any {
	out := make(map[string]any, len(c.Runtime))
	for k, v := range c.Runtime {
		if k == "addons" {
			continue
		}
		out[k] = v
	}
	return out
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config %s: %w", c.Path, err)
	}
	if _, err := c.ResolveMode(); err != nil {
		return err
	}
	return nil
}

var validate = validator.New()

// Load reads the first configuration file found in dirs, merges in its
// plugins and validates the result. It returns Default when no directory
// holds a configuration file.
func Load(dirs ...string) (*Config, error) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			return LoadFile(path)
		}
	}
	return Default(), nil
}

// LoadFile reads path and its plugins.
func LoadFile(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.mergePlugins(map[string]bool{cfg.Path: true}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergePlugins folds plugin configuration into c. Plugin bootstraps and
// addons come first; path mappings from c win over plugin mappings.
func (c *Config) mergePlugins(seen map[string]bool) error {
	base := filepath.Dir(c.Path)
	var bootstraps, addons []string
	mapping := map[string]string{}

	for _, name := range c.Plugins {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		if seen[path] {
			return fmt.Errorf("plugin %s: included more than once", path)
		}
		seen[path] = true

		plugin, err := decodeFile(path)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", name, err)
		}
		if err := plugin.mergePlugins(seen); err != nil {
			return err
		}

		for _, b := range plugin.Bootstraps {
			bootstraps = append(bootstraps, plugin.resolve(b))
		}
		for _, a := range plugin.Addons() {
			addons = append(addons, plugin.resolve(a))
		}
		for k, v := range plugin.Map {
			mapping[k] = v
		}
	}

	for _, b := range c.Bootstraps {
		bootstraps = append(bootstraps, c.resolve(b))
	}
	c.Bootstraps = bootstraps
	if c.Runtime == nil {
		c.Runtime = map[string]any{}
	}
	for _, a := range c.Addons() {
		addons = append(addons, c.resolve(a))
	}
	if len(addons) > 0 {
		all := make([]any, len(addons))
		for i, a := range addons {
			all[i] = a
		}
		c.Runtime["addons"] = all
	}
	for k, v := range c.Map {
		mapping[k] = v
	}
	c.Map = mapping
	return nil
}

// resolve makes a path from the configuration file absolute.
func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.Path == "" {
		return path
	}
	return filepath.Join(filepath.Dir(c.Path), path)
}

func decodeFile(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch filepath.Ext(abs) {
	case ".yaml", ".yml", ".json":
		// JSON is a subset of YAML.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", abs, err)
		}
	case ".cue":
		v := cuecontext.New().CompileBytes(data, cue.Filename(abs))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("compile %s: %w", abs, err)
		}
		if err := v.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", abs, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(abs))
	}
	if cfg.Map == nil {
		cfg.Map = map[string]string{}
	}
	if cfg.Runtime == nil {
		cfg.Runtime = map[string]any{}
	}
	cfg.Path = abs
	return cfg, nil
}

func stringList(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}
