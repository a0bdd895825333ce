package plugin

import (
	"context"
	"fmt"
	"sort"

	"github.com/caffeineduck/dotstar/engine"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

type addon struct {
	name     string
	loader   *Loader
	compiled wazero.CompiledModule
	exports  []api.FunctionDefinition
}

func (a *addon) Name() string { return a.name }

// Bindings instantiates the plugin for env. Plugin stdout and stderr are
// routed to the environment's channels.
func (a *addon) Bindings(env *engine.Environment) (starlark.StringDict, error) {
	ctx := context.Background()
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdout(env.Stdout()).
		WithStderr(env.Stderr()).
		WithStartFunctions("_initialize")

	mod, err := a.loader.runtime.InstantiateModule(ctx, a.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", a.name, err)
	}

	members := make(starlark.StringDict, len(a.exports))
	for _, def := range a.exports {
		fn := mod.ExportedFunction(def.ExportNames()[0])
		if fn == nil {
			continue
		}
		members[def.ExportNames()[0]] = wasmBuiltin(a.name, def, fn)
	}

	return starlark.StringDict{
		a.name: &starlarkstruct.Module{Name: a.name, Members: members},
	}, nil
}

// exportedFunctions returns the exports whose signatures are purely numeric.
func exportedFunctions(compiled wazero.CompiledModule) []api.FunctionDefinition {
	var defs []api.FunctionDefinition
	for _, def := range compiled.ExportedFunctions() {
		if numeric(def.ParamTypes()) && numeric(def.ResultTypes()) && len(def.ExportNames()) > 0 {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].ExportNames()[0] < defs[j].ExportNames()[0]
	})
	return defs
}

func numeric(types []api.ValueType) bool {
	for _, t := range types {
		switch t {
		case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
		default:
			return false
		}
	}
	return true
}

func wasmBuiltin(plugin string, def api.FunctionDefinition, fn api.Function) *starlark.Builtin {
	name := plugin + "." + def.ExportNames()[0]
	paramTypes := def.ParamTypes()
	resultTypes := def.ResultTypes()

	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", name)
		}
		if len(args) != len(paramTypes) {
			return nil, fmt.Errorf("%s: got %d arguments, want %d", name, len(args), len(paramTypes))
		}

		params := make([]uint64, len(args))
		for i, arg := range args {
			p, err := encode(arg, paramTypes[i])
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
			}
			params[i] = p
		}

		results, err := fn.Call(engine.ThreadContext(thread), params...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		values := make([]starlark.Value, len(results))
		for i, r := range results {
			values[i] = decode(r, resultTypes[i])
		}
		switch len(values) {
		case 0:
			return starlark.None, nil
		case 1:
			return values[0], nil
		default:
			return starlark.Tuple(values), nil
		}
	})
}

func encode(v starlark.Value, t api.ValueType) (uint64, error) {
	switch t {
	case api.ValueTypeI32, api.ValueTypeI64:
		var n int64
		if err := starlark.AsInt(v, &n); err != nil {
			return 0, err
		}
		if t == api.ValueTypeI32 {
			return api.EncodeI32(int32(n)), nil
		}
		return api.EncodeI64(n), nil
	case api.ValueTypeF32, api.ValueTypeF64:
		f, ok := starlark.AsFloat(v)
		if !ok {
			return 0, fmt.Errorf("want number, got %s", v.Type())
		}
		if t == api.ValueTypeF32 {
			return api.EncodeF32(float32(f)), nil
		}
		return api.EncodeF64(f), nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
}

func decode(r uint64, t api.ValueType) starlark.Value {
	switch t {
	case api.ValueTypeI32:
		return starlark.MakeInt64(int64(api.DecodeI32(r)))
	case api.ValueTypeI64:
		return starlark.MakeInt64(int64(r))
	case api.ValueTypeF32:
		return starlark.Float(api.DecodeF32(r))
	default:
		return starlark.Float(api.DecodeF64(r))
	}
}
