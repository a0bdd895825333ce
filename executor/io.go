package executor

import (
	"io"
	"sync"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/google/uuid"
)

// IO forwards guest output channels to host writers. Each channel is
// forwarded at most once, however many engines expose it.
type IO struct {
	stdout  *lockedWriter
	stderr  *lockedWriter
	enabled bool

	mu      sync.Mutex
	seenOut map[uuid.UUID]struct{}
	seenErr map[uuid.UUID]struct{}
}

// NewIO creates an IO writing to stdout and stderr. When enabled is false,
// Install does nothing.
func NewIO(stdout, stderr io.Writer, enabled bool) *IO {
	return &IO{
		stdout:  &lockedWriter{w: stdout},
		stderr:  &lockedWriter{w: stderr},
		enabled: enabled,
		seenOut: make(map[uuid.UUID]struct{}),
		seenErr: make(map[uuid.UUID]struct{}),
	}
}

// Install attaches listeners to the channels of s that are not forwarded yet.
func (o *IO) Install(s Streams) {
	if o == nil || !o.enabled {
		return
	}
	o.install(s.Stdout(), o.seenOut, o.stdout)
	o.install(s.Stderr(), o.seenErr, o.stderr)
}

func (o *IO) install(ch *engine.Channel, seen map[uuid.UUID]struct{}, w *lockedWriter) {
	o.mu.Lock()
	if _, ok := seen[ch.ID()]; ok {
		o.mu.Unlock()
		return
	}
	seen[ch.ID()] = struct{}{}
	o.mu.Unlock()

	ch.On(func(p []byte) {
		w.Write(p)
	})
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	if l.w == nil {
		return len(p), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
