package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/caffeineduck/dotstar/mode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestCompileRunsNoGuestCode(t *testing.T) {
	e, stdout, _ := newTestExecutor(t)

	factory, err := e.compiler.Compile([]byte(`echo("ran")`), "unit.star", mode.Sync)
	require.NoError(t, err)

	eng := factory()
	assert.Empty(t, stdout.String())
	assert.Equal(t, "unit.star", eng.Path())

	_, err = eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ran", stdout.String())
}

func TestCompileSharesEnvironmentPerMode(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	a, err := e.compiler.Compile([]byte("a = 1"), "a.star", mode.Sync)
	require.NoError(t, err)
	b, err := e.compiler.Compile([]byte("b = 2"), "b.star", mode.Sync)
	require.NoError(t, err)
	c, err := e.compiler.Compile([]byte("c = 3"), "c.star", mode.Async)
	require.NoError(t, err)

	assert.Same(t, a().Environment(), b().Environment())
	assert.NotSame(t, a().Environment(), c().Environment())
}

func TestCompileReturnsDiagnosticsUnchanged(t *testing.T) {
	e, _, stderr := newTestExecutor(t)

	_, err := e.compiler.Compile([]byte("x = = 1"), "bad.star", mode.Sync)
	require.Error(t, err)

	var diag *engine.DiagnosticError
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, engine.KindParse, diag.Kind)
	assert.Equal(t, "bad.star", diag.Path)
	assert.Equal(t, 1, diag.Line)
	assert.Empty(t, stderr.String(), "the compiler does not report")
}

func TestCompileInstallsIOOnOverriddenEnvironment(t *testing.T) {
	e, stdout, _ := newTestExecutor(t)

	other, err := engine.NewEnvironment(mode.Sync, engine.Options{}, engine.BuiltinAddons())
	require.NoError(t, err)
	t.Cleanup(other.Close)

	factory, err := e.compiler.Compile([]byte(`echo("elsewhere")`), "x.star", mode.Sync)
	require.NoError(t, err)

	eng := factory(engine.WithEnvironment(other))
	factory(engine.WithEnvironment(other))
	_, err = eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", stdout.String())
}

func TestCompileWithScope(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	factory, err := e.compiler.Compile([]byte("return name.upper()"), "scope.star", mode.Sync)
	require.NoError(t, err)

	res, err := factory(engine.WithScope(starlark.StringDict{"name": starlark.String("dot")})).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, starlark.String("DOT"), res.Value())
}

func TestGuestIncludeThroughCompiler(t *testing.T) {
	dir := tempDir(t)
	writeFile(t, dir, "lib.star", "def double(n):\n    return n * 2\n\nfactor = 10\n")
	main := writeFile(t, dir, "main.star", "include(\"lib.star\")\nreturn double(factor)\n")

	e, _, _ := newTestExecutor(t, WithMode(mode.Sync))
	res, err := e.RequireSync(context.Background(), main)
	require.NoError(t, err)
	assert.Equal(t, "20", res.String())
}

func TestGuestIncludeMissingWarns(t *testing.T) {
	e, stdout, stderr := newTestExecutor(t)

	res, err := e.EvaluateSync(context.Background(), []byte(`return include("/no/such/file.star")`), "")
	require.NoError(t, err)
	assert.Equal(t, starlark.False, res.Value())
	assert.Equal(t, "Warning: include(/no/such/file.star): No such file or directory\n", stderr.String())
	assert.Empty(t, stdout.String())
}

func TestGuestRequireMissingFails(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	_, err := e.EvaluateSync(context.Background(), []byte(`require("/no/such/file.star")`), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such file or directory")
}

func TestGuestLoadThroughPathMap(t *testing.T) {
	dir := tempDir(t)
	virtual := writeFile(t, dir, "consts.star", "answer = 0\n")
	target := writeFile(t, dir, "consts_real.star", "answer = 42\n")
	main := writeFile(t, dir, "main.star", "load(\"consts.star\", \"answer\")\nreturn answer\n")

	e, _, _ := newTestExecutor(t, WithPathMap(map[string]string{virtual: target}))
	res, err := e.RequireSync(context.Background(), main)
	require.NoError(t, err)
	assert.Equal(t, "42", res.String())
}

func TestGuestIncludeSeesIncluderBindings(t *testing.T) {
	dir := tempDir(t)
	writeFile(t, dir, "child.star", "echo(greeting)\ninclude(\"grandchild.star\")\n")
	writeFile(t, dir, "grandchild.star", "echo(\" \", greeting, \" \", name)\n")
	main := writeFile(t, dir, "main.star", "greeting = \"hi\"\nname = \"dot\"\ninclude(\"child.star\")\n")

	for _, m := range []mode.Mode{mode.Sync, mode.Async, mode.PromiseSync} {
		t.Run(m.String(), func(t *testing.T) {
			e, stdout, stderr := newTestExecutor(t)

			_, err := e.requirer.Require(context.Background(), main, m).Await(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "hi hi dot", stdout.String())
			assert.Empty(t, stderr.String())
		})
	}
}

func TestGuestIncludeSeesBindingsAssignedInFunction(t *testing.T) {
	dir := tempDir(t)
	writeFile(t, dir, "child.star", "echo(limit)\n")
	main := writeFile(t, dir, "main.star", "limit = 3\n\ndef run():\n    include(\"child.star\")\n\nrun()\n")

	e, stdout, _ := newTestExecutor(t, WithMode(mode.Sync))
	_, err := e.RequireSync(context.Background(), main)
	require.NoError(t, err)
	assert.Equal(t, "3", stdout.String())
}

func TestGuestIncludeDiagnosticIsReported(t *testing.T) {
	dir := tempDir(t)
	bad := writeFile(t, dir, "bad.star", "x = = 1\n")

	for _, fn := range []string{"include", "require"} {
		t.Run(fn, func(t *testing.T) {
			main := writeFile(t, dir, fn+".star", fn+"(\"bad.star\")\necho(\"after\")\n")
			e, stdout, stderr := newTestExecutor(t)

			_, err := e.RequireSync(context.Background(), main)
			require.Error(t, err)
			assert.True(t, engine.IsDiagnostic(err))
			assert.Empty(t, stdout.String())
			assert.Equal(t, 1, strings.Count(stderr.String(), engine.KindParse))
			assert.Contains(t, stderr.String(), "in "+bad+" on line 1")
		})
	}
}
