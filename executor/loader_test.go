package executor

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubFactory(...engine.InstanceOption) *engine.Engine { return nil }

func TestLoaderRegistryLongestSuffix(t *testing.T) {
	r := NewLoaderRegistry()
	var used []string
	r.RegisterLoader(".star", func(m *Module, path string) error {
		used = append(used, ".star")
		m.Exports = stubFactory
		return nil
	})
	r.RegisterLoader(".test.star", func(m *Module, path string) error {
		used = append(used, ".test.star")
		m.Exports = stubFactory
		return nil
	})

	_, err := r.Load("/x/a.test.star")
	require.NoError(t, err)
	_, err = r.Load("/x/a.star")
	require.NoError(t, err)
	assert.Equal(t, []string{".test.star", ".star"}, used)
}

func TestLoaderRegistryCachesByAbsolutePath(t *testing.T) {
	r := NewLoaderRegistry()
	calls := 0
	r.RegisterLoader(".star", func(m *Module, path string) error {
		calls++
		m.Exports = stubFactory
		return nil
	})

	dir := t.TempDir()
	first, err := r.Load(filepath.Join(dir, "mod.star"))
	require.NoError(t, err)
	second, err := r.Load(filepath.Join(dir, "sub", "..", "mod.star"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, filepath.Join(dir, "mod.star"), first.Path)
}

func TestLoaderRegistryNoLoader(t *testing.T) {
	r := NewLoaderRegistry()
	_, err := r.Load("/x/a.py")
	assert.ErrorIs(t, err, ErrNoLoader)
	assert.False(t, r.HasLoader(".py"))
}

func TestLoaderRegistryErrors(t *testing.T) {
	r := NewLoaderRegistry()
	boom := errors.New("boom")
	r.RegisterLoader(".bad", func(m *Module, path string) error { return boom })
	r.RegisterLoader(".empty", func(m *Module, path string) error { return nil })

	_, err := r.Load("/x/a.bad")
	assert.ErrorIs(t, err, boom)

	_, err = r.Load("/x/a.empty")
	assert.Error(t, err)
}
