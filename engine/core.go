package engine

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"
)

// CoreAddon provides output, exit, inclusion, settings and timing builtins.
func CoreAddon() Addon {
	return NewAddon("core", func(env *Environment) (starlark.StringDict, error) {
		return starlark.StringDict{
			"echo":         starlark.NewBuiltin("echo", echo(env)),
			"eprint":       starlark.NewBuiltin("eprint", eprint(env)),
			"exit":         starlark.NewBuiltin("exit", exit(env)),
			"include":      starlark.NewBuiltin("include", includeFn(false, false)),
			"include_once": starlark.NewBuiltin("include_once", includeFn(true, false)),
			"require":      starlark.NewBuiltin("require", includeFn(false, true)),
			"require_once": starlark.NewBuiltin("require_once", includeFn(true, true)),
			"config":       starlark.NewBuiltin("config", configFn(env)),
			"microtime":    starlark.NewBuiltin("microtime", microtime(env)),
			"hrtime":       starlark.NewBuiltin("hrtime", hrtime(env)),
		}, nil
	})
}

type builtinFunc func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func display(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

// echo writes its arguments to stdout without separators or a newline.
func echo(env *Environment) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		var sb strings.Builder
		for _, arg := range args {
			sb.WriteString(display(arg))
		}
		env.stdout.WriteString(sb.String())
		return starlark.None, nil
	}
}

func eprint(env *Environment) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		sep := " "
		if err := starlark.UnpackArgs(b.Name(), nil, kwargs, "sep?", &sep); err != nil {
			return nil, err
		}
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = display(arg)
		}
		env.stderr.WriteString(strings.Join(parts, sep) + "\n")
		return starlark.None, nil
	}
}

// exit stops the whole execution. A string argument is printed and exits 0.
func exit(env *Environment) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var status starlark.Value = starlark.MakeInt(0)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &status); err != nil {
			return nil, err
		}
		switch v := status.(type) {
		case starlark.String:
			env.stdout.WriteString(string(v))
			return nil, raiseExit(thread, 0)
		case starlark.Int:
			code, ok := v.Int64()
			if !ok {
				return nil, fmt.Errorf("%s: status out of range", b.Name())
			}
			return nil, raiseExit(thread, int(code))
		default:
			return nil, fmt.Errorf("%s: status must be int or string, got %s", b.Name(), status.Type())
		}
	}
}

// includeFn resolves and runs another unit inline. The included unit sees
// the bindings of its includer. Plain includes warn and return False when
// the file cannot be read; required includes and files that do not compile
// fail the program.
func includeFn(once, required bool) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var path string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
			return nil, err
		}

		e := currentEngine(thread)
		if e == nil {
			return nil, fmt.Errorf("%s: no active unit", b.Name())
		}

		factory, err := e.resolve(ThreadContext(thread), path)
		if err != nil {
			if IsDiagnostic(err) {
				return nil, err
			}
			if required {
				return nil, fmt.Errorf("%s(%s): %w", b.Name(), path, err)
			}
			e.env.stderr.WriteString(fmt.Sprintf("Warning: %s(%s): %s\n", b.Name(), path, err))
			return starlark.False, nil
		}

		child := factory()
		if !child.env.markIncluded(child.Path()) && once {
			return starlark.True, nil
		}

		res, _, err := child.exec(thread, true, callerBindings(thread))
		if err != nil {
			return nil, err
		}
		if res.IsExit() {
			return nil, &exitSignal{status: res.Status()}
		}
		if child.unit.HasResult {
			return res.Value(), nil
		}
		return starlark.True, nil
	}
}

func configFn(env *Environment) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		var def starlark.Value = starlark.None
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
			return nil, err
		}
		v, ok := env.Setting(name)
		if !ok {
			return def, nil
		}
		return ToValue(v)
	}
}

// microtime returns the current Unix time in seconds as a float.
func microtime(env *Environment) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		now := env.opts.Clock.Now()
		return starlark.Float(float64(now.UnixNano()) / 1e9), nil
	}
}

// hrtime returns nanoseconds elapsed since the environment was created.
func hrtime(env *Environment) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		return starlark.MakeInt64(env.opts.Clock.Now().Sub(env.started).Nanoseconds()), nil
	}
}
