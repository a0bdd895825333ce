// Package plugin loads WebAssembly modules as guest addons. Every exported
// function with numeric parameters and results becomes a member of a guest
// module named after the plugin.
package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Loader compiles plugins on a shared wazero runtime.
type Loader struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	logger   zerolog.Logger
	mu       sync.RWMutex
	closed   bool
}

// NewLoader creates a Loader.
func NewLoader(ctx context.Context, opts ...Option) (*Loader, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	return &Loader{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		logger:   cfg.logger.With().Str("component", "plugin").Logger(),
	}, nil
}

// Load compiles wasm and returns an addon binding it under name.
func (l *Loader) Load(ctx context.Context, name string, wasm []byte) (engine.Addon, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid plugin name %q", name)
	}

	compiled, err := l.getCompiled(ctx, name, wasm)
	if err != nil {
		return nil, err
	}

	exports := exportedFunctions(compiled)
	l.logger.Debug().Str("plugin", name).Int("exports", len(exports)).Msg("plugin compiled")
	return &addon{name: name, loader: l, compiled: compiled, exports: exports}, nil
}

// LoadFile loads the plugin at path, named after the file without its extension.
func (l *Loader) LoadFile(ctx context.Context, path string) (engine.Addon, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.ReplaceAll(name, "-", "_")
	return l.Load(ctx, name, wasm)
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (l *Loader) getCompiled(ctx context.Context, name string, wasm []byte) (wazero.CompiledModule, error) {
	l.mu.RLock()
	if compiled, ok := l.compiled[name]; ok {
		l.mu.RUnlock()
		return compiled, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, fmt.Errorf("plugin loader closed")
	}
	if compiled, ok := l.compiled[name]; ok {
		return compiled, nil
	}

	compiled, err := l.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	l.compiled[name] = compiled
	return compiled, nil
}

// Close releases the runtime, every plugin instance and the cache.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if err := l.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if l.cache != nil {
		if err := l.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "dotstar")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "dotstar")
	}
	return filepath.Join(os.TempDir(), "dotstar-cache")
}
