package engine

import (
	"fmt"

	"github.com/caffeineduck/dotstar/hostfunc"
	"go.starlark.net/starlark"
)

// HostFuncAddon binds every function of reg as a guest builtin.
func HostFuncAddon(name string, reg *hostfunc.Registry) Addon {
	return NewAddon(name, func(*Environment) (starlark.StringDict, error) {
		bindings := make(starlark.StringDict)
		for _, fnName := range reg.List() {
			fn, _ := reg.Get(fnName)
			bindings[fnName] = starlark.NewBuiltin(fnName, hostBuiltin(fn, reg.Params(fnName)))
		}
		return bindings, nil
	})
}

func hostBuiltin(fn hostfunc.Func, params []string) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > len(params) {
			return nil, fmt.Errorf("%s: got %d arguments, want at most %d", b.Name(), len(args), len(params))
		}

		goArgs := make(map[string]any, len(args)+len(kwargs))
		for i, arg := range args {
			v, err := FromValue(arg)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", b.Name(), params[i], err)
			}
			goArgs[params[i]] = v
		}
		for _, kv := range kwargs {
			key := string(kv[0].(starlark.String))
			if _, dup := goArgs[key]; dup {
				return nil, fmt.Errorf("%s: got multiple values for %s", b.Name(), key)
			}
			v, err := FromValue(kv[1])
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", b.Name(), key, err)
			}
			goArgs[key] = v
		}

		result, err := fn(ThreadContext(thread), goArgs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return ToValue(result)
	}
}
