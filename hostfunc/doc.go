// Package hostfunc provides host capabilities that guest programs reach
// through addon builtins.
//
// Host functions are Go functions registered in a [Registry] under a name and
// an ordered list of positional parameter names. The engine package turns a
// registry into guest builtins, converting guest values to plain Go values
// (string, int64, float64, bool, []any, map[string]any) and back.
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("greet", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "hello " + args["name"].(string), nil
//	}, "name")
//
// # Built-in Capabilities
//
// HTTP: network access limited to explicitly allowed hosts via [HTTP].
//
//	http := hostfunc.NewHTTP(hostfunc.HTTPConfig{AllowedHosts: []string{"api.example.com"}})
//	http.Register(registry)
//
// Key-Value Store: [KV] shared by every environment of one executor, kept in
// memory or persisted through [SQLiteBackend].
//
//	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
//	kv.Register(registry)
//
// All capabilities have size limits to prevent resource exhaustion.
package hostfunc
