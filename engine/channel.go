package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Channel is an output stream of an environment. Every channel carries a
// handle ID issued at creation; listeners receive each chunk written.
type Channel struct {
	id        uuid.UUID
	name      string
	mu        sync.RWMutex
	listeners []*listener
}

type listener struct {
	fn func([]byte)
}

// NewChannel creates a channel with a fresh handle ID.
func NewChannel(name string) *Channel {
	return &Channel{id: uuid.New(), name: name}
}

// ID returns the channel's handle ID.
func (c *Channel) ID() uuid.UUID {
	return c.id
}

func (c *Channel) Name() string {
	return c.name
}

// On registers a listener and returns a function removing it. Listeners run
// synchronously in Write, in registration order.
func (c *Channel) On(fn func([]byte)) (off func()) {
	l := &listener{fn: fn}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		kept := make([]*listener, 0, len(c.listeners))
		for _, other := range c.listeners {
			if other != l {
				kept = append(kept, other)
			}
		}
		c.listeners = kept
	}
}

// Write delivers a copy of p to every listener. It never fails.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.RLock()
	listeners := c.listeners
	c.mu.RUnlock()

	for _, l := range listeners {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		l.fn(chunk)
	}
	return len(p), nil
}

func (c *Channel) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}
