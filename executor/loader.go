package executor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caffeineduck/dotstar/engine"
)

// ErrNoLoader is returned by LoaderRegistry.Load for paths no loader handles.
var ErrNoLoader = errors.New("no loader registered")

// Module is a host module produced by a loader.
type Module struct {
	Path    string
	Exports engine.ModuleFactory
}

// LoaderFunc fills in m.Exports for the file at path.
type LoaderFunc func(m *Module, path string) error

// LoaderRegistry maps file suffixes to loaders and caches loaded modules by
// absolute path.
type LoaderRegistry struct {
	mu      sync.RWMutex
	loaders map[string]LoaderFunc
	modules map[string]*Module
}

func NewLoaderRegistry() *LoaderRegistry {
	return &LoaderRegistry{
		loaders: make(map[string]LoaderFunc),
		modules: make(map[string]*Module),
	}
}

// RegisterLoader installs fn for paths ending in suffix, replacing any
// loader already registered for it.
func (r *LoaderRegistry) RegisterLoader(suffix string, fn LoaderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[suffix] = fn
}

// HasLoader reports whether a loader is registered for suffix.
func (r *LoaderRegistry) HasLoader(suffix string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[suffix]
	return ok
}

// Load returns the module for path, running the loader with the longest
// matching suffix on first use.
func (r *LoaderRegistry) Load(path string) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if m, ok := r.modules[abs]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	fn := r.lookup(abs)
	r.mu.RUnlock()

	if fn == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoLoader, path)
	}

	m := &Module{Path: abs}
	if err := fn(m, abs); err != nil {
		return nil, err
	}
	if m.Exports == nil {
		return nil, fmt.Errorf("loader for %s set no exports", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.modules[abs]; ok {
		return cached, nil
	}
	r.modules[abs] = m
	return m, nil
}

// lookup must be called with r.mu held.
func (r *LoaderRegistry) lookup(path string) LoaderFunc {
	var (
		best   string
		bestFn LoaderFunc
	)
	for suffix, fn := range r.loaders {
		if strings.HasSuffix(path, suffix) && len(suffix) > len(best) {
			best, bestFn = suffix, fn
		}
	}
	return bestFn
}
