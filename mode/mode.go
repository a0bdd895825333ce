// Package mode defines the concurrency modes a guest program can be compiled
// and executed in.
package mode

import "fmt"

// Mode selects how guest code is scheduled and how results are delivered.
type Mode int

const (
	// Async runs top-level executions on a per-environment queue and
	// delivers results through futures. It is the default.
	Async Mode = iota
	// PromiseSync executes inline but keeps the future-shaped API.
	PromiseSync
	// Sync executes inline and returns results directly.
	Sync
)

// Modes lists every mode in declaration order.
var Modes = []Mode{Async, PromiseSync, Sync}

// IsSynchronous reports whether results are returned directly to the caller.
func (m Mode) IsSynchronous() bool {
	return m == Sync
}

func (m Mode) String() string {
	switch m {
	case Async:
		return "async"
	case PromiseSync:
		return "psync"
	case Sync:
		return "sync"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	switch m {
	case Async, PromiseSync, Sync:
		return true
	}
	return false
}

// Parse converts a configuration name to a Mode. The empty string selects Async.
func Parse(name string) (Mode, error) {
	switch name {
	case "", "async":
		return Async, nil
	case "psync":
		return PromiseSync, nil
	case "sync":
		return Sync, nil
	default:
		return Async, fmt.Errorf("invalid mode %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
