// Package dotstar runs Starlark programs as host modules.
//
// # Overview
//
// Guest files (".star") are compiled into units bound to a shared
// environment per concurrency mode: sync, async (futures settled by a
// per-environment queue) or promise-sync (inline execution behind a future
// API). Guest code includes other files with include, require and load,
// and configured bootstrap files run once before normal operation.
//
// # Basic Usage
//
//	exec, _ := executor.New(executor.WithMode(mode.Sync))
//	defer exec.Close()
//
//	res, err := exec.EvaluateSync(ctx, []byte(`x = 21`+"\n"+`return x * 2`), "")
//	fmt.Println(res) // 42
//
// # Enabling Capabilities
//
//	// HTTP access
//	executor.New(executor.WithAllowedHosts("api.example.com"))
//
//	// Key-value store, persisted in SQLite
//	executor.New(executor.WithKV("state.db"))
//
//	// WASM addons listed under runtime.addons in dotstar.yaml
//	cfg, _ := config.Load(".")
//	executor.New(executor.WithConfig(cfg))
//
// See the [executor], [engine], [transpiler], [config] and [plugin] packages
// for detailed API documentation.
package dotstar
