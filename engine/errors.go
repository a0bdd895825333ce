package engine

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
)

// Diagnostic kinds.
const (
	KindParse   = "Parse error"
	KindCompile = "Compile error"
)

// DiagnosticError reports a problem found before any guest code ran.
type DiagnosticError struct {
	Kind   string
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *DiagnosticError) Error() string {
	path := e.Path
	if path == "" {
		path = "Standard input code"
	}
	return fmt.Sprintf("%s: %s in %s on line %d", e.Kind, e.Msg, path, e.Line)
}

// IsDiagnostic reports whether err is or wraps a DiagnosticError.
func IsDiagnostic(err error) bool {
	var diag *DiagnosticError
	return errors.As(err, &diag)
}

// exitSignal unwinds the Starlark call stack when the guest calls exit.
type exitSignal struct {
	status int
}

func (e *exitSignal) Error() string {
	return fmt.Sprintf("exit(%d)", e.status)
}

const exitKey = "dotstar.exit"

func raiseExit(thread *starlark.Thread, status int) error {
	sig := &exitSignal{status: status}
	thread.SetLocal(exitKey, sig)
	return sig
}

// exitFrom returns the pending exit of thread, if any.
func exitFrom(thread *starlark.Thread, err error) *exitSignal {
	if sig, ok := thread.Local(exitKey).(*exitSignal); ok {
		return sig
	}
	var sig *exitSignal
	if errors.As(err, &sig) {
		return sig
	}
	return nil
}

// returnSignal unwinds a unit that returns before its last statement.
type returnSignal struct{}

func (*returnSignal) Error() string {
	return "return outside a function"
}

var returnBuiltin = starlark.NewBuiltin(ReturnHook, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return nil, &returnSignal{}
})

// ErrEnvironmentClosed is returned for executions submitted after Close.
var ErrEnvironmentClosed = errors.New("environment closed")
