package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func newTestSession(t *testing.T, opts ...SessionOption) (*Session, *syncBuffer) {
	t.Helper()
	e, stdout, _ := newTestExecutor(t)
	s, err := e.NewSession(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, stdout
}

func TestSessionKeepsState(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	r := s.Run(ctx, "x = 20")
	require.NoError(t, r.Error)

	r = s.Run(ctx, "def add(n):\n    return x + n\n")
	require.NoError(t, r.Error)

	r = s.Run(ctx, "add(22)")
	require.NoError(t, r.Error)
	assert.Equal(t, starlark.MakeInt(42), r.Value.Value())
}

func TestSessionCapturesOutputPerRun(t *testing.T) {
	s, stdout := newTestSession(t)
	ctx := context.Background()

	r := s.Run(ctx, `echo("one")`)
	require.NoError(t, r.Error)
	assert.Equal(t, "one", r.Output)

	r = s.Run(ctx, `print("two")`)
	require.NoError(t, r.Error)
	assert.Equal(t, "two\n", r.Output)

	assert.Equal(t, "onetwo\n", stdout.String())
}

func TestSessionReportsErrors(t *testing.T) {
	s, _ := newTestSession(t)

	r := s.Run(context.Background(), "x = = 1")
	require.Error(t, r.Error)
	assert.Contains(t, r.Output, "Parse error")
	assert.Contains(t, r.Output, "<repl>:1")
}

func TestSessionExit(t *testing.T) {
	s, _ := newTestSession(t)

	r := s.Run(context.Background(), "exit(3)")
	require.NoError(t, r.Error)
	assert.True(t, r.Value.IsExit())
	assert.Equal(t, 3, r.Value.Status())
}

func TestSessionTimeout(t *testing.T) {
	s, _ := newTestSession(t, WithSessionTimeout(50*time.Millisecond))

	r := s.Run(context.Background(), "def spin():\n    for i in range(1000000000):\n        pass\n\nspin()\n")
	require.Error(t, r.Error)
	assert.Contains(t, r.Error.Error(), "timeout after")
}

func TestSessionClosed(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Close())

	r := s.Run(context.Background(), "x = 1")
	assert.ErrorIs(t, r.Error, ErrSessionClosed)
}

func TestSessionIncomplete(t *testing.T) {
	s, _ := newTestSession(t)

	tests := []struct {
		code string
		want bool
	}{
		{"x = 1", false},
		{"def f():", true},
		{"def f():\n    return 1", false},
		{"items = [1,", true},
		{"x = = 1", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Incomplete(tt.code), "%q", tt.code)
	}
}

func TestSessionName(t *testing.T) {
	s, _ := newTestSession(t, WithSessionName("<shell>"))

	r := s.Run(context.Background(), "return __file__")
	require.NoError(t, r.Error)
	assert.Equal(t, starlark.String("<shell>:1"), r.Value.Value())
}

func TestSessionCloseStopsCapturing(t *testing.T) {
	e, stdout, _ := newTestExecutor(t)
	ctx := context.Background()

	s, err := e.NewSession()
	require.NoError(t, err)
	r := s.Run(ctx, `echo("a")`)
	require.NoError(t, r.Error)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = e.EvaluateSync(ctx, []byte(`echo("b")`), "")
	require.NoError(t, err)
	assert.Equal(t, "a", s.output.String())
	assert.Equal(t, "ab", stdout.String())
}
