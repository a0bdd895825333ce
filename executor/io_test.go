package executor

import (
	"testing"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/stretchr/testify/assert"
)

type streams struct {
	stdout *engine.Channel
	stderr *engine.Channel
}

func newStreams() *streams {
	return &streams{stdout: engine.NewChannel("stdout"), stderr: engine.NewChannel("stderr")}
}

func (s *streams) Stdout() *engine.Channel { return s.stdout }
func (s *streams) Stderr() *engine.Channel { return s.stderr }

func TestIOInstallForwardsOutput(t *testing.T) {
	var out, errOut syncBuffer
	io := NewIO(&out, &errOut, true)
	s := newStreams()
	io.Install(s)

	s.stdout.WriteString("hello ")
	s.stdout.WriteString("world")
	s.stderr.WriteString("oops")

	assert.Equal(t, "hello world", out.String())
	assert.Equal(t, "oops", errOut.String())
}

func TestIOInstallTwiceForwardsOnce(t *testing.T) {
	var out, errOut syncBuffer
	io := NewIO(&out, &errOut, true)
	s := newStreams()
	io.Install(s)
	io.Install(s)
	io.Install(&streams{stdout: s.stdout, stderr: s.stderr})

	s.stdout.WriteString("a")
	s.stderr.WriteString("b")

	assert.Equal(t, "a", out.String())
	assert.Equal(t, "b", errOut.String())
}

func TestIOInstallDistinctChannels(t *testing.T) {
	var out, errOut syncBuffer
	io := NewIO(&out, &errOut, true)
	first, second := newStreams(), newStreams()
	io.Install(first)
	io.Install(second)

	first.stdout.WriteString("1")
	second.stdout.WriteString("2")

	assert.Equal(t, "12", out.String())
}

func TestIODisabled(t *testing.T) {
	var out, errOut syncBuffer
	io := NewIO(&out, &errOut, false)
	s := newStreams()
	io.Install(s)

	s.stdout.WriteString("hidden")
	s.stderr.WriteString("hidden")

	assert.Empty(t, out.String())
	assert.Empty(t, errOut.String())
}

func TestIONilWriter(t *testing.T) {
	io := NewIO(nil, nil, true)
	s := newStreams()
	io.Install(s)
	n, err := s.stdout.WriteString("dropped")
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
}
