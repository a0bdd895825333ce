package engine

import (
	"fmt"

	"go.starlark.net/starlark"
)

// Result is the outcome of executing a unit: a guest value, or an exit
// marker carrying the status the guest asked the host to terminate with.
type Result struct {
	value  starlark.Value
	status int
	exit   bool
}

// Value wraps a guest value. A nil value is treated as None.
func Value(v starlark.Value) Result {
	if v == nil {
		v = starlark.None
	}
	return Result{value: v}
}

// Null is the result of a unit that produced nothing.
func Null() Result {
	return Result{value: starlark.None}
}

// Exit is the result of a unit that called exit.
func Exit(status int) Result {
	return Result{status: status, exit: true}
}

// Type returns "exit" for exit results and the guest type name otherwise.
func (r Result) Type() string {
	if r.exit {
		return "exit"
	}
	return r.Value().Type()
}

func (r Result) IsExit() bool {
	return r.exit
}

// Status returns the exit status. It is zero for value results.
func (r Result) Status() int {
	return r.status
}

// Value returns the guest value, None for exit and zero results.
func (r Result) Value() starlark.Value {
	if r.value == nil {
		return starlark.None
	}
	return r.value
}

// Native converts the guest value to a plain Go value.
func (r Result) Native() (any, error) {
	return FromValue(r.Value())
}

func (r Result) String() string {
	if r.exit {
		return fmt.Sprintf("exit(%d)", r.status)
	}
	return r.Value().String()
}
