package executor

import (
	"sync"
	"testing"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

type countingRuntime struct {
	mode mode.Mode

	mu     sync.Mutex
	calls  int
	opts   engine.Options
	addons []string
}

func (r *countingRuntime) CreateEnvironment(opts engine.Options, addons []engine.Addon) (*engine.Environment, error) {
	r.mu.Lock()
	r.calls++
	r.opts = opts
	r.addons = r.addons[:0]
	for _, a := range addons {
		r.addons = append(r.addons, a.Name())
	}
	r.mu.Unlock()
	return engine.NewEnvironment(r.mode, opts, addons)
}

func newProvider(t *testing.T, cfg ProviderConfig) (*EnvironmentProvider, map[mode.Mode]*countingRuntime) {
	t.Helper()
	runtimes := make(map[mode.Mode]*countingRuntime)
	cfg.Runtimes = make(map[mode.Mode]RuntimeFactory)
	for _, m := range mode.Modes {
		rt := &countingRuntime{mode: m}
		runtimes[m] = rt
		cfg.Runtimes[m] = rt
	}
	p := NewEnvironmentProvider(cfg)
	t.Cleanup(p.Close)
	return p, runtimes
}

func TestEnvironmentIsMemoizedPerMode(t *testing.T) {
	var out syncBuffer
	p, runtimes := newProvider(t, ProviderConfig{IO: NewIO(&out, &out, true)})
	rc := &recordingCompiler{}

	first, err := p.Environment(rc, mode.Sync)
	require.NoError(t, err)
	second, err := p.Environment(rc, mode.Sync)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, runtimes[mode.Sync].calls)

	async, err := p.Environment(rc, mode.Async)
	require.NoError(t, err)
	assert.NotSame(t, first, async)
	assert.Equal(t, mode.Async, async.Mode())
	assert.Equal(t, 1, runtimes[mode.Async].calls)
	assert.Equal(t, 0, runtimes[mode.PromiseSync].calls)

	first.Stdout().WriteString("once")
	assert.Equal(t, "once", out.String())
}

func TestEnvironmentConcurrentFirstUse(t *testing.T) {
	p, runtimes := newProvider(t, ProviderConfig{})
	rc := &recordingCompiler{}

	var wg sync.WaitGroup
	envs := make([]*engine.Environment, 8)
	for i := range envs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env, err := p.Environment(rc, mode.PromiseSync)
			assert.NoError(t, err)
			envs[i] = env
		}(i)
	}
	wg.Wait()

	for _, env := range envs {
		assert.Same(t, envs[0], env)
	}
	assert.Equal(t, 1, runtimes[mode.PromiseSync].calls)
}

func TestEnvironmentSettingsDropAddonsKey(t *testing.T) {
	p, runtimes := newProvider(t, ProviderConfig{
		Settings: map[string]any{"display_errors": false, "addons": []any{"x.wasm"}},
	})

	_, err := p.Environment(&recordingCompiler{}, mode.Sync)
	require.NoError(t, err)

	opts := runtimes[mode.Sync].opts
	assert.Equal(t, map[string]any{"display_errors": false}, opts.Settings)
	assert.NotNil(t, opts.FileSystem)
	assert.NotNil(t, opts.Include)
}

func TestEnvironmentUserAddonsOverrideBuiltins(t *testing.T) {
	builtin := engine.StaticAddon("builtin", starlark.StringDict{"greeting": starlark.String("builtin")})
	user := engine.StaticAddon("user", starlark.StringDict{"greeting": starlark.String("user")})

	p, runtimes := newProvider(t, ProviderConfig{
		Builtins: []engine.Addon{builtin},
		Addons:   []engine.Addon{user},
	})

	env, err := p.Environment(&recordingCompiler{}, mode.Sync)
	require.NoError(t, err)

	assert.Equal(t, []string{"builtin", "user"}, runtimes[mode.Sync].addons)
	v, ok := env.Lookup("greeting")
	require.True(t, ok)
	assert.Equal(t, starlark.String("user"), v)
}

func TestEnvironmentInvalidMode(t *testing.T) {
	p, _ := newProvider(t, ProviderConfig{})
	_, err := p.Environment(&recordingCompiler{}, mode.Mode(42))
	assert.Error(t, err)
}
